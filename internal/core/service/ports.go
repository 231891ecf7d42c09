package service

import (
	"context"

	"github.com/yndnr/sessiond/internal/core/domain"
)

// SessionStorage is the durable session tier.
//
// Lookup returns domain.ErrSessionNotFound when the session is absent.
// Failures never block in-memory operations; the handler logs and counts
// them.
type SessionStorage interface {
	// Persist stores or replaces the session.
	Persist(ctx context.Context, session *domain.Session) error

	// Remove deletes the session by ID. Removing an absent session is not
	// an error.
	Remove(ctx context.Context, id string) error

	// Lookup loads a session by ID.
	Lookup(ctx context.Context, id string) (*domain.Session, error)

	// Find returns the stored sessions matching filter.
	Find(ctx context.Context, filter *SessionFilter) ([]*domain.Session, error)

	// Close releases the backend.
	Close() error
}

// RemovalKind says what a cluster removal message targets.
type RemovalKind string

const (
	RemoveBySession RemovalKind = "session"
	RemoveByUser    RemovalKind = "user"
	RemoveByContext RemovalKind = "context"
)

// RemoteRemoval is a removal published by another node.
type RemoteRemoval struct {
	Kind      RemovalKind `json:"kind"`
	SessionID string      `json:"session_id,omitempty"`
	UserID    int         `json:"user_id,omitempty"`
	ContextID int         `json:"context_id,omitempty"`
	Origin    string      `json:"origin"`
}

// Directory broadcasts session removals across the cluster. Delivery is
// best-effort.
type Directory interface {
	PublishRemoval(ctx context.Context, sessionID string) error
	PublishUserRemoval(ctx context.Context, userID, contextID int) error
	PublishContextRemoval(ctx context.Context, contextID int) error

	// Subscribe registers fn for removals received from other nodes.
	Subscribe(fn func(RemoteRemoval))

	Close() error
}

// Metrics receives handler measurements.
type Metrics interface {
	SessionAdded()
	SessionRemoved(reason domain.RemovalReason, n int)
	SessionMoved(n int)
	Rotated(tier domain.Tier)
	SessionRestored()
	StorageError(op string)
	EventDropped()
}

type nopMetrics struct{}

func (nopMetrics) SessionAdded() {}
func (nopMetrics) SessionRemoved(domain.RemovalReason, int) {}
func (nopMetrics) SessionMoved(int) {}
func (nopMetrics) Rotated(domain.Tier) {}
func (nopMetrics) SessionRestored() {}
func (nopMetrics) StorageError(string) {}
func (nopMetrics) EventDropped() {}

// SessionFilter selects sessions. Zero fields match anything.
type SessionFilter struct {
	UserID    int
	ContextID int
	Client    string
	LoginName string

	// IncludeStorage adds matching sessions that live only in durable
	// storage.
	IncludeStorage bool
}

// Matches reports whether s satisfies the filter.
func (f *SessionFilter) Matches(s *domain.Session) bool {
	if f == nil {
		return true
	}
	if f.UserID != 0 && s.UserID != f.UserID {
		return false
	}
	if f.ContextID != 0 && s.ContextID != f.ContextID {
		return false
	}
	if f.Client != "" && s.Client() != f.Client {
		return false
	}
	if f.LoginName != "" && s.LoginName != f.LoginName {
		return false
	}
	return true
}
