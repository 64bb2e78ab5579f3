package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/carechat/internal/chat"
	"github.com/raphaelgruber/carechat/internal/models"
)

// Memory is an in-process Store. Timestamps within one subject's log are
// strictly increasing even when the wall clock is not.
type Memory struct {
	mu       sync.RWMutex
	now      func() time.Time
	subjects map[string]chat.Subject
	logs     map[string][]chat.Message
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		now:      time.Now,
		subjects: make(map[string]chat.Subject),
		logs:     make(map[string][]chat.Message),
	}
}

func (m *Memory) GetSubject(_ context.Context, id string) (*chat.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subjects[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) ListSubjects(_ context.Context) ([]chat.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]chat.Subject, 0, len(m.subjects))
	for _, s := range m.subjects {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b chat.Subject) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (m *Memory) UpsertSubject(_ context.Context, input models.SubjectInput) (*chat.Subject, error) {
	s := chat.Subject{ID: input.ID, Name: input.Name}
	if input.Summary != nil {
		s.Summary = *input.Summary
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects[s.ID] = s
	return &s, nil
}

func (m *Memory) ListMessages(_ context.Context, subjectID string) ([]chat.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Appends keep the log sorted.
	return slices.Clone(m.logs[subjectID]), nil
}

func (m *Memory) AppendMessage(_ context.Context, subjectID, body string, role chat.Role) (*chat.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	at := m.now().UTC()
	log := m.logs[subjectID]
	if n := len(log); n > 0 && !at.After(log[n-1].CreatedAt) {
		at = log[n-1].CreatedAt.Add(time.Microsecond)
	}

	msg := chat.Message{
		ID:        newMessageID(),
		SubjectID: subjectID,
		Role:      role,
		Body:      body,
		CreatedAt: at,
	}
	m.logs[subjectID] = append(log, msg)
	return &msg, nil
}
