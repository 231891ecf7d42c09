package memory

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/yndnr/sessiond/internal/core/domain"
	"github.com/yndnr/sessiond/pkg/cmap"
	"github.com/yndnr/sessiond/pkg/token"
)

// DefaultTokenLength is the number of random bytes in a remembered token.
const DefaultTokenLength = 24

// TokenContainer maps random opaque tokens to values and remembers which
// session each token was issued for, so logout can drop them in bulk.
//
// The token map and the per-session queues are independent concurrent
// structures; there is no global lock.
type TokenContainer[V any] struct {
	tokens   *cmap.Map[string, V]
	sessions *cmap.Map[string, *sessionTokens]
	onRemove func(V)
	length   int
}

// sessionTokens is the FIFO of tokens issued for one session. Once removed
// is set the queue is dead and appenders must start over.
type sessionTokens struct {
	mu      sync.Mutex
	q       *queue.Queue
	removed bool
}

// TokenOption configures a TokenContainer.
type TokenOption[V any] func(*TokenContainer[V])

// WithCleanup registers a callback run on every value removed from the
// container.
func WithCleanup[V any](fn func(V)) TokenOption[V] {
	return func(c *TokenContainer[V]) {
		c.onRemove = fn
	}
}

// WithTokenLength sets the number of random bytes per token.
func WithTokenLength[V any](n int) TokenOption[V] {
	return func(c *TokenContainer[V]) {
		if n > 0 {
			c.length = n
		}
	}
}

// NewTokenContainer creates an empty TokenContainer.
func NewTokenContainer[V any](opts ...TokenOption[V]) *TokenContainer[V] {
	c := &TokenContainer[V]{
		tokens:   cmap.New[string, V](cmap.HashString),
		sessions: cmap.New[string, *sessionTokens](cmap.HashString),
		length:   DefaultTokenLength,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RememberForSession stores value under a fresh random token tied to
// sessionID and returns the token.
func (c *TokenContainer[V]) RememberForSession(sessionID string, value V) (string, error) {
	if sessionID == "" {
		return "", domain.ErrMissingArgument.WithDetails("session_id")
	}

	tok, err := c.insert(value)
	if err != nil {
		return "", err
	}

	for i := 0; i < MaxRetries; i++ {
		st, _ := c.sessions.GetOrSet(sessionID, &sessionTokens{q: queue.New()})
		st.mu.Lock()
		if st.removed {
			st.mu.Unlock()
			continue
		}
		st.q.Add(tok)
		st.mu.Unlock()
		return tok, nil
	}

	c.tokens.Delete(tok)
	return "", structuralRace("tokens.remember")
}

// insert retries on collision until the token map accepts a fresh token.
func (c *TokenContainer[V]) insert(value V) (string, error) {
	for i := 0; i < MaxRetries; i++ {
		tok, err := token.GenerateWithLength(c.length)
		if err != nil {
			return "", domain.ErrTokenGeneration.WithCause(err)
		}
		if c.tokens.SetIfAbsent(tok, value) {
			return tok, nil
		}
	}
	return "", domain.ErrTokenGeneration.WithDetails("too many collisions")
}

// Get returns the value stored under tok.
func (c *TokenContainer[V]) Get(tok string) (V, bool) {
	return c.tokens.Get(tok)
}

// Remove deletes tok and runs the cleanup callback on its value.
func (c *TokenContainer[V]) Remove(tok string) (V, bool) {
	v, ok := c.tokens.Pop(tok)
	if ok && c.onRemove != nil {
		c.onRemove(v)
	}
	return v, ok
}

// RemoveForSession deletes every token issued for sessionID and returns how
// many were still present. Callers serialize cleanup per session.
func (c *TokenContainer[V]) RemoveForSession(sessionID string) int {
	st, ok := c.sessions.Pop(sessionID)
	if !ok {
		return 0
	}

	st.mu.Lock()
	st.removed = true
	var pending []string
	for st.q.Length() > 0 {
		pending = append(pending, st.q.Remove().(string))
	}
	st.mu.Unlock()

	removed := 0
	for _, tok := range pending {
		if _, ok := c.Remove(tok); ok {
			removed++
		}
	}
	return removed
}

// Count returns the number of live tokens.
func (c *TokenContainer[V]) Count() int {
	return c.tokens.Count()
}

// SessionCount returns the number of sessions holding tokens.
func (c *TokenContainer[V]) SessionCount() int {
	return c.sessions.Count()
}
