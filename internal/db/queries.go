package db

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/carechat/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// QueryGetSubject retrieves a subject by ID.
// Returns nil if not found.
func (c *Client) QueryGetSubject(ctx context.Context, id string) (_ *models.Subject, err error) {
	defer c.observe(time.Now(), &err)

	results, err := surrealdb.Query[[]models.Subject](ctx, c.db, `
		SELECT * FROM type::record("subject", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// QueryListSubjects returns all subjects ordered by name.
func (c *Client) QueryListSubjects(ctx context.Context) (_ []models.Subject, err error) {
	defer c.observe(time.Now(), &err)

	results, err := surrealdb.Query[[]models.Subject](ctx, c.db, `
		SELECT * FROM subject ORDER BY name ASC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Subject{}, nil
	}
	return (*results)[0].Result, nil
}

// QueryUpsertSubject creates or replaces a subject by ID.
// created_at is kept from the existing record on update.
func (c *Client) QueryUpsertSubject(ctx context.Context, input models.SubjectInput) (_ *models.Subject, err error) {
	defer c.observe(time.Now(), &err)

	sql := `
		UPSERT type::record("subject", $id) SET
			name = $name,
			summary = $summary,
			updated_at = time::now(),
			created_at = IF created_at THEN created_at ELSE time::now() END
		RETURN AFTER
	`

	vars := map[string]any{
		"id":      input.ID,
		"name":    input.Name,
		"summary": input.Summary,
	}
	var results *[]surrealdb.QueryResult[[]models.Subject]
	err = retryOnConflict(ctx, func() error {
		var qerr error
		results, qerr = surrealdb.Query[[]models.Subject](ctx, c.db, sql, vars)
		return wrapQueryError(qerr)
	})
	if err != nil {
		return nil, fmt.Errorf("upsert subject: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("upsert subject: %w", ErrNoResult)
	}
	return &(*results)[0].Result[0], nil
}

// QueryListMessages returns a subject's log, oldest first.
// Messages with equal timestamps are ordered by ID.
func (c *Client) QueryListMessages(ctx context.Context, subjectID string) (_ []models.Message, err error) {
	defer c.observe(time.Now(), &err)

	results, err := surrealdb.Query[[]models.Message](ctx, c.db, `
		SELECT * FROM message
		WHERE subject = type::record("subject", $subject)
		ORDER BY created_at ASC, id ASC
	`, map[string]any{"subject": subjectID})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Message{}, nil
	}
	return (*results)[0].Result, nil
}

// QueryAppendMessage creates a message with the given ID at the end of a
// subject's log. The database assigns created_at. Transaction conflicts are
// retried.
func (c *Client) QueryAppendMessage(
	ctx context.Context,
	id string,
	subjectID string,
	role string,
	body string,
) (_ *models.Message, err error) {
	defer c.observe(time.Now(), &err)

	sql := `
		CREATE type::record("message", $id) SET
			subject = type::record("subject", $subject),
			role = $role,
			body = $body,
			created_at = time::now()
		RETURN AFTER
	`

	vars := map[string]any{
		"id":      id,
		"subject": subjectID,
		"role":    role,
		"body":    body,
	}
	var results *[]surrealdb.QueryResult[[]models.Message]
	err = retryOnConflict(ctx, func() error {
		var qerr error
		results, qerr = surrealdb.Query[[]models.Message](ctx, c.db, sql, vars)
		return wrapQueryError(qerr)
	})
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("append message: %w", ErrNoResult)
	}
	return &(*results)[0].Result[0], nil
}
