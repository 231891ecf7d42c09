package domain

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Tier identifies which rotation ring currently holds a session.
type Tier int

const (
	TierShortTerm Tier = iota
	TierLongTerm
)

// String implements fmt.Stringer.
func (t Tier) String() string {
	switch t {
	case TierShortTerm:
		return "short_term"
	case TierLongTerm:
		return "long_term"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// SessionControl pairs a Session with the time it was admitted and the
// tier holding it. It is owned by exactly one bucket at a time.
type SessionControl struct {
	session   *Session
	createdAt time.Time
	tier      atomic.Int32
}

// NewSessionControl wraps s as a freshly admitted short-term session.
func NewSessionControl(s *Session) *SessionControl {
	return &SessionControl{
		session:   s,
		createdAt: time.Now(),
	}
}

// Session returns the wrapped session.
func (c *SessionControl) Session() *Session { return c.session }

// CreatedAt returns the admission time.
func (c *SessionControl) CreatedAt() time.Time { return c.createdAt }

// Tier returns the current tier.
func (c *SessionControl) Tier() Tier { return Tier(c.tier.Load()) }

// PromoteToLongTerm marks the control as held by the long-term ring.
// Only the rotation path calls it.
func (c *SessionControl) PromoteToLongTerm() { c.tier.Store(int32(TierLongTerm)) }

// RemovalReason says why a session left the in-memory tier.
type RemovalReason string

const (
	ReasonLogout      RemovalReason = "logout"
	ReasonTimeout     RemovalReason = "timeout"
	ReasonEvicted     RemovalReason = "evicted"
	ReasonAdminRemove RemovalReason = "admin_remove"
)
