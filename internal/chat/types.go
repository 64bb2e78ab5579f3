// Package chat keeps a caregiver's local view of one subject's conversation
// consistent with the backend-owned message log.
//
// A Controller is bound to a single subject. It loads the subject profile and
// the message log, seeds a greeting when the log is empty, submits caregiver
// messages, and polls the log on a fixed interval. Every refresh replaces the
// cached sequence with a complete read of the log; nothing is merged locally.
package chat

import (
	"context"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleCaregiver Role = "caregiver"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCaregiver, RoleAssistant:
		return true
	}
	return false
}

// Subject is the profiled individual a conversation is about.
type Subject struct {
	ID      string
	Name    string
	Summary string
}

// Message is one entry of a subject's message log.
// ID and CreatedAt are assigned by the backend and never change.
type Message struct {
	ID        string
	SubjectID string
	Role      Role
	Body      string
	CreatedAt time.Time
}

// Directory looks up subject profiles.
type Directory interface {
	// GetSubject fails with ErrNotFound when the subject does not exist.
	GetSubject(ctx context.Context, id string) (*Subject, error)
}

// MessageLog is the backend-authoritative, append-only message store.
type MessageLog interface {
	// ListMessages returns the full log for a subject ordered by creation time.
	ListMessages(ctx context.Context, subjectID string) ([]Message, error)
	// AppendMessage adds a message; the backend assigns its ID and timestamp.
	AppendMessage(ctx context.Context, subjectID, body string, role Role) error
}

// State is the lifecycle state of a session.
type State int

const (
	StateUnbound State = iota
	StateInitializing
	StateReady
	StateSyncing
	StateSending
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateSyncing:
		return "syncing"
	case StateSending:
		return "sending"
	case StateTornDown:
		return "torn down"
	default:
		return "unknown"
	}
}

// Snapshot is a read-only copy of a session for rendering.
type Snapshot struct {
	SubjectID   string
	Subject     *Subject
	Messages    []Message
	Pending     bool
	Initialized bool
	State       State
}
