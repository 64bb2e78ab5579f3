package models

import (
	"time"

	"github.com/raphaelgruber/carechat/internal/chat"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Subject is a stored subject profile.
type Subject struct {
	ID        surrealmodels.RecordID `json:"id"`
	Name      string                 `json:"name"`
	Summary   *string                `json:"summary,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// SubjectInput is the input for creating or replacing a subject.
type SubjectInput struct {
	ID      string  `json:"id" yaml:"id"`
	Name    string  `json:"name" yaml:"name"`
	Summary *string `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// ToChat converts the stored record to the chat domain type.
func (s Subject) ToChat() chat.Subject {
	out := chat.Subject{ID: MustRecordIDString(s.ID), Name: s.Name}
	if s.Summary != nil {
		out.Summary = *s.Summary
	}
	return out
}
