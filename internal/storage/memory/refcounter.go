package memory

import (
	"sync/atomic"

	"github.com/yndnr/sessiond/pkg/cmap"
)

// UserKey identifies a user within a context.
type UserKey struct {
	UserID    int
	ContextID int
}

func hashUserKey(k UserKey) uint32 {
	return cmap.HashInts(k.UserID, k.ContextID)
}

// RefCounter tracks active sessions per (user, context) and per context.
//
// Counters live behind sharded maps as *atomic.Int64 and are updated with
// CAS loops. A counter that drops to zero is a tombstone: it is removed from
// its map by whoever observes it, and an incrementer that finds one helps
// remove it and retries against a fresh counter. No zero entry survives.
//
// Increment bumps both counters unconditionally. Decrement only touches the
// context counter when the user counter reaches zero, so the context counter
// counts active user slots rather than distinct users.
type RefCounter struct {
	contexts *cmap.Map[int, *atomic.Int64]
	users    *cmap.Map[UserKey, *atomic.Int64]
}

// NewRefCounter creates an empty RefCounter.
func NewRefCounter() *RefCounter {
	return &RefCounter{
		contexts: cmap.New[int, *atomic.Int64](cmap.HashInt),
		users:    cmap.New[UserKey, *atomic.Int64](hashUserKey),
	}
}

// Increment bumps the user counter and the context counter.
func (r *RefCounter) Increment(userID, contextID int) error {
	_, err := r.IncrementBelow(userID, contextID, 0)
	return err
}

// IncrementBelow bumps both counters only if the user counter is below
// limit, and reports whether it did. A limit of zero or less means no limit.
func (r *RefCounter) IncrementBelow(userID, contextID int, limit int64) (bool, error) {
	key := UserKey{UserID: userID, ContextID: contextID}
	ok, err := incrementCounter(r.users, key, limit)
	if !ok || err != nil {
		return false, err
	}
	if _, err := incrementCounter(r.contexts, contextID, 0); err != nil {
		decrementCounter(r.users, key)
		return false, err
	}
	return true, nil
}

// Decrement drops the user counter and, if it reached zero, the context
// counter. Decrementing an absent counter is a no-op.
func (r *RefCounter) Decrement(userID, contextID int) {
	if decrementCounter(r.users, UserKey{UserID: userID, ContextID: contextID}) {
		decrementCounter(r.contexts, contextID)
	}
}

// ContainsContext reports whether the context has a positive counter.
func (r *RefCounter) ContainsContext(contextID int) bool {
	return r.ContextCount(contextID) > 0
}

// ContainsUser reports whether the user has a positive counter.
func (r *RefCounter) ContainsUser(userID, contextID int) bool {
	return r.UserCount(userID, contextID) > 0
}

// UserCount returns the current user counter.
func (r *RefCounter) UserCount(userID, contextID int) int64 {
	return load(r.users, UserKey{UserID: userID, ContextID: contextID})
}

// ContextCount returns the current context counter.
func (r *RefCounter) ContextCount(contextID int) int64 {
	return load(r.contexts, contextID)
}

// Len returns the number of tracked users and contexts.
func (r *RefCounter) Len() (users, contexts int) {
	return r.users.Count(), r.contexts.Count()
}

func load[K comparable](m *cmap.Map[K, *atomic.Int64], key K) int64 {
	c, ok := m.Get(key)
	if !ok {
		return 0
	}
	if n := c.Load(); n > 0 {
		return n
	}
	return 0
}

// incrementCounter returns false without touching the counter when it has
// already reached a positive limit.
func incrementCounter[K comparable](m *cmap.Map[K, *atomic.Int64], key K, limit int64) (bool, error) {
	for i := 0; i < MaxRetries; i++ {
		fresh := new(atomic.Int64)
		fresh.Store(1)
		c, loaded := m.GetOrSet(key, fresh)
		if !loaded {
			return true, nil
		}
		for {
			n := c.Load()
			if n <= 0 {
				// Tombstone: help the decrementer remove it, then retry.
				m.DeleteIf(key, func(cur *atomic.Int64) bool { return cur == c })
				break
			}
			if limit > 0 && n >= limit {
				return false, nil
			}
			if c.CompareAndSwap(n, n+1) {
				return true, nil
			}
		}
	}
	return false, structuralRace("refcount.increment")
}

// decrementCounter returns true if the counter reached zero.
func decrementCounter[K comparable](m *cmap.Map[K, *atomic.Int64], key K) bool {
	c, ok := m.Get(key)
	if !ok {
		return false
	}
	for {
		n := c.Load()
		if n <= 0 {
			return false
		}
		if c.CompareAndSwap(n, n-1) {
			if n == 1 {
				m.DeleteIf(key, func(cur *atomic.Int64) bool { return cur == c })
				return true
			}
			return false
		}
	}
}
