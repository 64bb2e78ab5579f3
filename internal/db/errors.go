package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
)

var (
	// ErrAlreadyExists means a record with the same ID exists.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrTransactionConflict means concurrent writes touched the same records.
	// The write can be retried.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrNoResult means a write returned no record.
	ErrNoResult = errors.New("no result returned")
)

// conflictRetries bounds retryOnConflict.
const conflictRetries = 3

// wrapQueryError tags known SurrealDB query errors with a sentinel.
// Anything else is returned unchanged.
func wrapQueryError(err error) error {
	var queryErr *surrealdb.QueryError
	if !errors.As(err, &queryErr) {
		return err
	}
	switch msg := queryErr.Message; {
	case strings.Contains(msg, "already exists"):
		return fmt.Errorf("%w: %s", ErrAlreadyExists, msg)
	case strings.Contains(msg, "Transaction conflict"):
		return fmt.Errorf("%w: %s", ErrTransactionConflict, msg)
	}
	return err
}

// retryOnConflict runs fn until it succeeds, fails with anything other than
// ErrTransactionConflict, or has been tried conflictRetries times.
func retryOnConflict(ctx context.Context, fn func() error) error {
	var err error
	for attempt := range conflictRetries {
		if err = fn(); !errors.Is(err, ErrTransactionConflict) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
		}
	}
	return err
}
