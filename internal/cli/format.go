package cli

import (
	"fmt"

	"github.com/raphaelgruber/carechat/internal/chat"
)

const timeLayout = "2006-01-02 15:04"

// formatMessage renders a message as a single plain-text line.
func formatMessage(m chat.Message) string {
	if m.CreatedAt.IsZero() {
		return fmt.Sprintf("%s: %s", roleLabel(m.Role), m.Body)
	}
	return fmt.Sprintf("[%s] %s: %s", m.CreatedAt.Local().Format(timeLayout), roleLabel(m.Role), m.Body)
}

// truncate shortens s to max runes.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
