package llm

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrFatalAPI marks provider errors that will not resolve by retrying:
// exhausted credit, quota or rate limits, and rejected credentials.
var ErrFatalAPI = errors.New("fatal LLM API error")

var fatalPhrases = []string{
	"credit balance",
	"rate limit",
	"quota exceeded",
	"billing",
	"invalid api key",
	"authentication",
	"unauthorized",
}

var fatalStatus = regexp.MustCompile(`\b40[13]\b`)

func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range fatalPhrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return fatalStatus.MatchString(msg)
}

func wrapFatalError(err error) error {
	if !isFatalAPIError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatalAPI, err)
}
