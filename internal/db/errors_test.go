package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/surrealdb/surrealdb.go"
)

func TestWrapQueryError(t *testing.T) {
	assert.NoError(t, wrapQueryError(nil))

	plain := errors.New("socket closed")
	assert.Same(t, plain, wrapQueryError(plain))

	exists := fmt.Errorf("query: %w", &surrealdb.QueryError{Message: "Database record `message:abc` already exists"})
	assert.ErrorIs(t, wrapQueryError(exists), ErrAlreadyExists)

	conflict := &surrealdb.QueryError{Message: "Transaction conflict: resource busy"}
	assert.ErrorIs(t, wrapQueryError(conflict), ErrTransactionConflict)

	other := &surrealdb.QueryError{Message: "Found NONE for field `name`"}
	assert.Equal(t, error(other), wrapQueryError(other))
}

func TestRetryOnConflict(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := retryOnConflict(ctx, func() error {
		calls++
		if calls < 2 {
			return fmt.Errorf("append: %w", ErrTransactionConflict)
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)

	calls = 0
	err = retryOnConflict(ctx, func() error {
		calls++
		return ErrTransactionConflict
	})
	assert.ErrorIs(t, err, ErrTransactionConflict)
	assert.Equal(t, conflictRetries, calls)

	calls = 0
	boom := errors.New("boom")
	err = retryOnConflict(ctx, func() error {
		calls++
		return boom
	})
	assert.Same(t, boom, err)
	assert.Equal(t, 1, calls)
}
