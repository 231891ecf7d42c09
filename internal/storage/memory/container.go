package memory

import (
	"sync"

	"github.com/yndnr/sessiond/internal/core/domain"
)

// ContainerConfig sizes the rotation rings.
type ContainerConfig struct {
	// ShortTermCount is the number of short-term buckets. Must be positive.
	ShortTermCount int

	// LongTermEnabled routes sessions leaving the short-term ring into the
	// long-term ring instead of timing them out.
	LongTermEnabled bool

	// LongTermCount is the number of long-term buckets. Must be positive
	// when LongTermEnabled is set.
	LongTermCount int
}

// Validate checks the ring sizes.
func (c ContainerConfig) Validate() error {
	if c.ShortTermCount <= 0 {
		return domain.ErrConfiguration.WithDetails("short-term container count must be positive")
	}
	if c.LongTermEnabled && c.LongTermCount <= 0 {
		return domain.ErrConfiguration.WithDetails("long-term container count must be positive when long-term containers are enabled")
	}
	return nil
}

// RotationResult reports what a short-term rotation did with the oldest
// bucket.
type RotationResult struct {
	// Moved went to the newest long-term bucket.
	Moved []*domain.SessionControl

	// TimedOut left the container for good.
	TimedOut []*domain.SessionControl
}

// SessionContainer ages sessions through a short-term ring and, optionally,
// a long-term ring.
//
// A session enters the newest short-term bucket. RotateShort drains the
// oldest short-term bucket into the newest long-term bucket, or times its
// sessions out when long-term is disabled. RotateLong evicts the oldest
// long-term bucket. The RefCounter is incremented on Add and decremented
// exactly once when a session leaves.
//
// Lookups never wait for rotation. A writer that meets a drained bucket
// holding its target waits for the rotation in progress and retries.
type SessionContainer struct {
	short   *ring
	long    *ring
	counter *RefCounter

	// rotateMu serializes rotations. Writers that observe a session in
	// transit take it briefly to wait for the move to finish.
	rotateMu sync.Mutex
}

// NewSessionContainer creates a container that tracks sessions in counter.
func NewSessionContainer(cfg ContainerConfig, counter *RefCounter) (*SessionContainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if counter == nil {
		counter = NewRefCounter()
	}

	c := &SessionContainer{
		short:   newRing(cfg.ShortTermCount),
		counter: counter,
	}
	if cfg.LongTermEnabled {
		c.long = newRing(cfg.LongTermCount)
	}
	return c, nil
}

// Counter returns the RefCounter the container updates.
func (c *SessionContainer) Counter() *RefCounter {
	return c.counter
}

// LongTermEnabled reports whether a long-term ring exists.
func (c *SessionContainer) LongTermEnabled() bool {
	return c.long != nil
}

// Add admits s into the newest short-term bucket.
func (c *SessionContainer) Add(s *domain.Session) (*domain.SessionControl, error) {
	return c.AddBelow(s, 0)
}

// AddBelow admits s only if its user holds fewer than limit sessions, and
// returns domain.ErrSessionQuotaExceeded otherwise. The check and the
// increment are one atomic step. A limit of zero or less means no limit.
func (c *SessionContainer) AddBelow(s *domain.Session, limit int) (*domain.SessionControl, error) {
	// Count first so a rotation that times the session out never
	// decrements a counter that was not yet incremented.
	ok, err := c.counter.IncrementBelow(s.UserID, s.ContextID, int64(limit))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrSessionQuotaExceeded
	}

	ctl := domain.NewSessionControl(s)
	for i := 0; i < MaxRetries; i++ {
		b := c.short.newest()
		b.mu.Lock()
		if b.drained {
			b.mu.Unlock()
			c.awaitRotation()
			continue
		}
		b.put(ctl)
		b.mu.Unlock()
		return ctl, nil
	}

	c.counter.Decrement(s.UserID, s.ContextID)
	return nil, structuralRace("container.add")
}

// Get scans short-term buckets newest first, then long-term buckets.
func (c *SessionContainer) Get(id string) (*domain.SessionControl, bool) {
	for _, r := range c.rings() {
		bs := r.load()
		for i := len(bs) - 1; i >= 0; i-- {
			if ctl, ok := bs[i].get(id); ok {
				return ctl, true
			}
		}
	}
	return nil, false
}

// GetByRandomToken redeems a single-use random token. At most one caller
// gets the session; the token is cleared on success.
func (c *SessionContainer) GetByRandomToken(tok string) (*domain.SessionControl, bool) {
	if tok == "" {
		return nil, false
	}
	for _, r := range c.rings() {
		bs := r.load()
		for i := len(bs) - 1; i >= 0; i-- {
			b := bs[i]
			b.mu.Lock()
			ctl, ok := b.byRandom[tok]
			if ok {
				delete(b.byRandom, tok)
			}
			b.mu.Unlock()
			if ok && ctl.Session().ClearRandomToken(tok) {
				c.unindexRandom(tok, ctl)
				return ctl, true
			}
		}
	}
	return nil, false
}

// unindexRandom drops tok from every bucket still indexing ctl under it. A
// rotation that copied ctl before the token was cleared leaves such an
// entry in the destination bucket.
func (c *SessionContainer) unindexRandom(tok string, ctl *domain.SessionControl) {
	for _, r := range c.rings() {
		for _, b := range r.load() {
			b.mu.Lock()
			if cur, ok := b.byRandom[tok]; ok && cur == ctl {
				delete(b.byRandom, tok)
			}
			b.mu.Unlock()
		}
	}
}

// Remove takes the session with the given ID out of the container.
func (c *SessionContainer) Remove(id string) (*domain.SessionControl, bool, error) {
	for attempt := 0; attempt < MaxRetries; attempt++ {
		ctl, found, transit := c.removeOnce(id)
		if found {
			s := ctl.Session()
			c.counter.Decrement(s.UserID, s.ContextID)
			return ctl, true, nil
		}
		if !transit {
			return nil, false, nil
		}
		c.awaitRotation()
	}
	return nil, false, structuralRace("container.remove")
}

func (c *SessionContainer) removeOnce(id string) (ctl *domain.SessionControl, found, transit bool) {
	for _, r := range c.rings() {
		for _, b := range r.load() {
			b.mu.Lock()
			cur, ok := b.byID[id]
			if !ok {
				b.mu.Unlock()
				continue
			}
			if b.drained {
				b.mu.Unlock()
				return nil, false, true
			}
			b.del(cur)
			b.mu.Unlock()
			return cur, true, false
		}
	}
	return nil, false, false
}

// RemoveIf removes every session matching pred.
func (c *SessionContainer) RemoveIf(pred func(*domain.Session) bool) ([]*domain.SessionControl, error) {
	var removed []*domain.SessionControl
	for attempt := 0; attempt < MaxRetries; attempt++ {
		transit := false
		for _, r := range c.rings() {
			for _, b := range r.load() {
				b.mu.Lock()
				for _, ctl := range b.byID {
					if !pred(ctl.Session()) {
						continue
					}
					if b.drained {
						transit = true
						break
					}
					b.del(ctl)
					removed = append(removed, ctl)
				}
				b.mu.Unlock()
			}
		}
		if !transit {
			for _, ctl := range removed {
				s := ctl.Session()
				c.counter.Decrement(s.UserID, s.ContextID)
			}
			return removed, nil
		}
		c.awaitRotation()
	}

	for _, ctl := range removed {
		s := ctl.Session()
		c.counter.Decrement(s.UserID, s.ContextID)
	}
	return removed, structuralRace("container.remove_if")
}

// RemoveUser removes all sessions of userID in contextID.
func (c *SessionContainer) RemoveUser(userID, contextID int) ([]*domain.SessionControl, error) {
	return c.RemoveIf(func(s *domain.Session) bool { return s.BelongsTo(userID, contextID) })
}

// RemoveContext removes all sessions in contextID.
func (c *SessionContainer) RemoveContext(contextID int) ([]*domain.SessionControl, error) {
	return c.RemoveIf(func(s *domain.Session) bool { return s.ContextID == contextID })
}

// RotateShort advances the short-term ring.
func (c *SessionContainer) RotateShort() RotationResult {
	c.rotateMu.Lock()
	defer c.rotateMu.Unlock()

	var res RotationResult
	controls := c.short.load()[0].drain()

	if c.long != nil {
		dst := c.long.newest()
		dst.mu.Lock()
		for _, ctl := range controls {
			ctl.PromoteToLongTerm()
			dst.put(ctl)
		}
		dst.mu.Unlock()
		res.Moved = controls
	} else {
		for _, ctl := range controls {
			s := ctl.Session()
			c.counter.Decrement(s.UserID, s.ContextID)
		}
		res.TimedOut = controls
	}

	c.short.advance()
	return res
}

// RotateLong advances the long-term ring and returns the evicted sessions.
func (c *SessionContainer) RotateLong() []*domain.SessionControl {
	if c.long == nil {
		return nil
	}

	c.rotateMu.Lock()
	defer c.rotateMu.Unlock()

	evicted := c.long.load()[0].drain()
	c.long.advance()
	for _, ctl := range evicted {
		s := ctl.Session()
		c.counter.Decrement(s.UserID, s.ContextID)
	}
	return evicted
}

// Sessions returns a snapshot of all sessions, short-term first.
func (c *SessionContainer) Sessions() []*domain.SessionControl {
	seen := make(map[string]bool)
	var out []*domain.SessionControl
	for _, r := range c.rings() {
		bs := r.load()
		for i := len(bs) - 1; i >= 0; i-- {
			b := bs[i]
			b.mu.RLock()
			for id, ctl := range b.byID {
				if !seen[id] {
					seen[id] = true
					out = append(out, ctl)
				}
			}
			b.mu.RUnlock()
		}
	}
	return out
}

// Count returns the number of sessions per tier.
func (c *SessionContainer) Count() (short, long int) {
	short = c.short.count()
	if c.long != nil {
		long = c.long.count()
	}
	return short, long
}

func (c *SessionContainer) rings() []*ring {
	if c.long == nil {
		return []*ring{c.short}
	}
	return []*ring{c.short, c.long}
}

// awaitRotation blocks until the rotation in progress, if any, has finished.
func (c *SessionContainer) awaitRotation() {
	c.rotateMu.Lock()
	//nolint:staticcheck // empty critical section
	c.rotateMu.Unlock()
}
