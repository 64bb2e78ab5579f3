// Package service provides the business logic of the carechat backend.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raphaelgruber/carechat/internal/chat"
	"github.com/raphaelgruber/carechat/internal/models"
	"github.com/raphaelgruber/carechat/internal/store"
)

// ChatService validates requests against the store and hands caregiver
// messages to the responder. Errors wrap chat.ErrNotFound and
// chat.ErrValidation so the transport can classify them.
type ChatService struct {
	store     store.Store
	responder *Responder
	logger    *slog.Logger
}

// NewChatService creates a chat service. responder may be nil, in which case
// no assistant replies are produced.
func NewChatService(s store.Store, responder *Responder, logger *slog.Logger) *ChatService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{store: s, responder: responder, logger: logger}
}

// GetSubject returns a subject or an error wrapping chat.ErrNotFound.
func (s *ChatService) GetSubject(ctx context.Context, id string) (*chat.Subject, error) {
	subject, err := s.store.GetSubject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}
	if subject == nil {
		return nil, fmt.Errorf("%w: subject %q", chat.ErrNotFound, id)
	}
	return subject, nil
}

// ListSubjects returns all subjects.
func (s *ChatService) ListSubjects(ctx context.Context) ([]chat.Subject, error) {
	subjects, err := s.store.ListSubjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}

// CreateSubject creates or replaces a subject profile.
func (s *ChatService) CreateSubject(ctx context.Context, input models.SubjectInput) (*chat.Subject, error) {
	input.ID = strings.TrimSpace(input.ID)
	input.Name = strings.TrimSpace(input.Name)
	if input.ID == "" {
		return nil, fmt.Errorf("%w: subject id is required", chat.ErrValidation)
	}
	if input.Name == "" {
		return nil, fmt.Errorf("%w: subject name is required", chat.ErrValidation)
	}
	if input.Summary != nil {
		summary := strings.TrimSpace(*input.Summary)
		input.Summary = &summary
		if summary == "" {
			input.Summary = nil
		}
	}

	subject, err := s.store.UpsertSubject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("create subject: %w", err)
	}
	s.logger.Info("subject saved", "subject", subject.ID)
	return subject, nil
}

// ListMessages returns a subject's log, oldest first.
func (s *ChatService) ListMessages(ctx context.Context, subjectID string) ([]chat.Message, error) {
	if _, err := s.GetSubject(ctx, subjectID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// AppendMessage appends a message with a trimmed body. A caregiver message
// schedules an assistant reply.
func (s *ChatService) AppendMessage(ctx context.Context, subjectID, body string, role chat.Role) (*chat.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: message body is empty", chat.ErrValidation)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", chat.ErrValidation, role)
	}
	if _, err := s.GetSubject(ctx, subjectID); err != nil {
		return nil, err
	}

	msg, err := s.store.AppendMessage(ctx, subjectID, body, role)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	s.logger.Debug("message appended", "subject", subjectID, "role", role, "id", msg.ID)

	if role == chat.RoleCaregiver {
		s.responder.Enqueue(subjectID)
	}
	return msg, nil
}
