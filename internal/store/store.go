// Package store holds the message log and subject directory backends used by
// the carechat server.
package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/raphaelgruber/carechat/internal/chat"
	"github.com/raphaelgruber/carechat/internal/models"
)

// Store persists subjects and their append-only message logs.
type Store interface {
	// GetSubject returns nil, nil when the subject does not exist.
	GetSubject(ctx context.Context, id string) (*chat.Subject, error)
	ListSubjects(ctx context.Context) ([]chat.Subject, error)
	// UpsertSubject creates the subject or replaces its profile.
	UpsertSubject(ctx context.Context, input models.SubjectInput) (*chat.Subject, error)
	// ListMessages returns the log ordered by creation time, then ID.
	ListMessages(ctx context.Context, subjectID string) ([]chat.Message, error)
	// AppendMessage assigns an ID and timestamp and appends to the log.
	AppendMessage(ctx context.Context, subjectID, body string, role chat.Role) (*chat.Message, error)
}

// Seed upserts every subject of a seed file.
func Seed(ctx context.Context, s Store, seed *models.SeedFile) (int, error) {
	n := 0
	for _, in := range seed.Subjects {
		if _, err := s.UpsertSubject(ctx, in); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// newMessageID returns a time-ordered UUIDv7. Messages sharing a created_at
// still sort in append order on the ID tie-break.
func newMessageID() string {
	return uuid.Must(uuid.NewV7()).String()
}
