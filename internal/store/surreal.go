package store

import (
	"context"

	"github.com/raphaelgruber/carechat/internal/chat"
	"github.com/raphaelgruber/carechat/internal/db"
	"github.com/raphaelgruber/carechat/internal/models"
)

// Surreal is a Store backed by SurrealDB.
type Surreal struct {
	db *db.Client
}

var _ Store = (*Surreal)(nil)

// NewSurreal wraps a connected database client.
func NewSurreal(c *db.Client) *Surreal {
	return &Surreal{db: c}
}

func (s *Surreal) GetSubject(ctx context.Context, id string) (*chat.Subject, error) {
	rec, err := s.db.QueryGetSubject(ctx, id)
	if err != nil || rec == nil {
		return nil, err
	}
	out := rec.ToChat()
	return &out, nil
}

func (s *Surreal) ListSubjects(ctx context.Context) ([]chat.Subject, error) {
	recs, err := s.db.QueryListSubjects(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]chat.Subject, len(recs))
	for i, r := range recs {
		out[i] = r.ToChat()
	}
	return out, nil
}

func (s *Surreal) UpsertSubject(ctx context.Context, input models.SubjectInput) (*chat.Subject, error) {
	rec, err := s.db.QueryUpsertSubject(ctx, input)
	if err != nil {
		return nil, err
	}
	out := rec.ToChat()
	return &out, nil
}

func (s *Surreal) ListMessages(ctx context.Context, subjectID string) ([]chat.Message, error) {
	recs, err := s.db.QueryListMessages(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	out := make([]chat.Message, len(recs))
	for i, r := range recs {
		out[i] = r.ToChat()
	}
	return out, nil
}

func (s *Surreal) AppendMessage(ctx context.Context, subjectID, body string, role chat.Role) (*chat.Message, error) {
	rec, err := s.db.QueryAppendMessage(ctx, newMessageID(), subjectID, string(role), body)
	if err != nil {
		return nil, err
	}
	out := rec.ToChat()
	return &out, nil
}
