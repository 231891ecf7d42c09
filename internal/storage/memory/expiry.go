package memory

import (
	"sync"
	"time"

	"github.com/yndnr/sessiond/pkg/cmap"
)

// Expirable is implemented by tokens held in a TokenStore.
type Expirable interface {
	IsExpired() bool
}

// ExpiringToken is an Expirable value with an absolute deadline.
type ExpiringToken[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// NewExpiringToken returns a token for value that expires after lifetime.
func NewExpiringToken[V any](value V, lifetime time.Duration) ExpiringToken[V] {
	return ExpiringToken[V]{Value: value, ExpiresAt: time.Now().Add(lifetime)}
}

// IsExpired reports whether the deadline has passed.
func (t ExpiringToken[V]) IsExpired() bool {
	return !time.Now().Before(t.ExpiresAt)
}

// requestTokens is the per-request token map. removed marks a bucket that
// has been unlinked by cleanup or by its last GetAndRemove.
type requestTokens[T Expirable] struct {
	mu      sync.Mutex
	tokens  map[string]T
	removed bool
}

// TokenStore holds short-lived named tokens grouped by request.
//
// The outer map is concurrent; each request bucket is guarded by its own
// mutex. An expired token is treated as absent on read and purged by the
// next Cleanup.
type TokenStore[K comparable, T Expirable] struct {
	requests *cmap.Map[K, *requestTokens[T]]
}

// NewTokenStore creates an empty TokenStore. hash selects the shard for a
// request key.
func NewTokenStore[K comparable, T Expirable](hash cmap.Hasher[K]) *TokenStore[K, T] {
	return &TokenStore[K, T]{
		requests: cmap.New[K, *requestTokens[T]](hash),
	}
}

// Add stores tok under key for request.
func (s *TokenStore[K, T]) Add(request K, key string, tok T) error {
	s.Cleanup()

	for i := 0; i < MaxRetries; i++ {
		b, _ := s.requests.GetOrSet(request, &requestTokens[T]{tokens: make(map[string]T)})
		b.mu.Lock()
		if b.removed {
			b.mu.Unlock()
			continue
		}
		b.tokens[key] = tok
		b.mu.Unlock()
		return nil
	}
	return structuralRace("expiry.add")
}

// GetAndRemove returns the token under key and removes it, unless it is
// missing or expired.
func (s *TokenStore[K, T]) GetAndRemove(request K, key string) (T, bool) {
	var zero T
	for i := 0; i < MaxRetries; i++ {
		b, ok := s.requests.Get(request)
		if !ok {
			return zero, false
		}
		b.mu.Lock()
		if b.removed {
			b.mu.Unlock()
			continue
		}
		tok, ok := b.tokens[key]
		if !ok || tok.IsExpired() {
			b.mu.Unlock()
			return zero, false
		}
		delete(b.tokens, key)
		if len(b.tokens) == 0 {
			s.unlink(request, b)
		}
		b.mu.Unlock()
		return tok, true
	}
	return zero, false
}

// TokenCount returns the number of live tokens for request.
func (s *TokenStore[K, T]) TokenCount(request K) int {
	s.Cleanup()

	b, ok := s.requests.Get(request)
	if !ok {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.removed {
		return 0
	}
	n := 0
	for _, tok := range b.tokens {
		if !tok.IsExpired() {
			n++
		}
	}
	return n
}

// Cleanup removes expired tokens and unlinks empty buckets. A token added
// while the sweep runs may or may not be seen by it. It returns the number
// of tokens removed.
func (s *TokenStore[K, T]) Cleanup() int {
	type entry struct {
		request K
		b       *requestTokens[T]
	}
	var all []entry
	s.requests.Range(func(k K, b *requestTokens[T]) bool {
		all = append(all, entry{request: k, b: b})
		return true
	})

	removed := 0
	for _, e := range all {
		e.b.mu.Lock()
		if e.b.removed {
			e.b.mu.Unlock()
			continue
		}
		for key, tok := range e.b.tokens {
			if tok.IsExpired() {
				delete(e.b.tokens, key)
				removed++
			}
		}
		if len(e.b.tokens) == 0 {
			s.unlink(e.request, e.b)
		}
		e.b.mu.Unlock()
	}
	return removed
}

// Len returns the number of request buckets.
func (s *TokenStore[K, T]) Len() int {
	return s.requests.Count()
}

// unlink must be called with b.mu held.
func (s *TokenStore[K, T]) unlink(request K, b *requestTokens[T]) {
	b.removed = true
	s.requests.DeleteIf(request, func(cur *requestTokens[T]) bool { return cur == b })
}
