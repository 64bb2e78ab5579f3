package models

import (
	"time"

	"github.com/raphaelgruber/carechat/internal/chat"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Message is one stored entry of a subject's log.
type Message struct {
	ID        surrealmodels.RecordID `json:"id"`
	Subject   surrealmodels.RecordID `json:"subject"`
	Role      string                 `json:"role"`
	Body      string                 `json:"body"`
	CreatedAt time.Time              `json:"created_at"`
}

// ToChat converts the stored record to the chat domain type.
func (m Message) ToChat() chat.Message {
	return chat.Message{
		ID:        MustRecordIDString(m.ID),
		SubjectID: MustRecordIDString(m.Subject),
		Role:      chat.Role(m.Role),
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
}
