package memory

import (
	"sync"
	"sync/atomic"

	"github.com/yndnr/sessiond/internal/core/domain"
)

// bucket is one time slot of a ring. Rotation marks it drained when it
// takes the contents; a drained bucket keeps its maps so lookups that
// loaded the old array still find sessions in transit, but it must never
// be written again.
type bucket struct {
	mu       sync.RWMutex
	byID     map[string]*domain.SessionControl
	byRandom map[string]*domain.SessionControl
	drained  bool
}

func newBucket() *bucket {
	return &bucket{
		byID:     make(map[string]*domain.SessionControl),
		byRandom: make(map[string]*domain.SessionControl),
	}
}

// put must be called with b.mu held.
func (b *bucket) put(c *domain.SessionControl) {
	s := c.Session()
	b.byID[s.ID] = c
	if rt := s.RandomToken(); rt != "" {
		b.byRandom[rt] = c
	}
}

// del must be called with b.mu held.
func (b *bucket) del(c *domain.SessionControl) {
	s := c.Session()
	delete(b.byID, s.ID)
	if rt := s.RandomToken(); rt != "" {
		if cur, ok := b.byRandom[rt]; ok && cur == c {
			delete(b.byRandom, rt)
		}
	}
}

func (b *bucket) get(id string) (*domain.SessionControl, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.byID[id]
	return c, ok
}

func (b *bucket) len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.drained {
		return 0
	}
	return len(b.byID)
}

// drain marks the bucket drained and returns its contents.
func (b *bucket) drain() []*domain.SessionControl {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drained = true
	out := make([]*domain.SessionControl, 0, len(b.byID))
	for _, c := range b.byID {
		out = append(out, c)
	}
	return out
}

// ring is a fixed-size sequence of buckets, oldest at index 0 and newest at
// the end. The array is immutable: rotation builds a new one and swaps the
// pointer, so readers always see a complete array.
type ring struct {
	buckets atomic.Pointer[[]*bucket]
}

func newRing(size int) *ring {
	r := &ring{}
	bs := make([]*bucket, size)
	for i := range bs {
		bs[i] = newBucket()
	}
	r.buckets.Store(&bs)
	return r
}

func (r *ring) load() []*bucket {
	return *r.buckets.Load()
}

func (r *ring) newest() *bucket {
	bs := r.load()
	return bs[len(bs)-1]
}

// advance drops the oldest bucket and appends a fresh one. Callers hold the
// container's rotation lock.
func (r *ring) advance() {
	old := r.load()
	next := make([]*bucket, len(old))
	copy(next, old[1:])
	next[len(next)-1] = newBucket()
	r.buckets.Store(&next)
}

func (r *ring) count() int {
	n := 0
	for _, b := range r.load() {
		n += b.len()
	}
	return n
}
