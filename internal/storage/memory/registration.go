package memory

import (
	"sync"
	"time"

	"github.com/yndnr/sessiond/internal/core/domain"
	"github.com/yndnr/sessiond/pkg/cmap"
)

// DefaultRegistrationLifetime is how long a pending registration lives.
const DefaultRegistrationLifetime = 5 * time.Minute

// Registration is a device waiting for enrollment confirmation.
type Registration[T any] struct {
	Device    T
	CreatedOn time.Time
}

type registrationKey struct {
	ContextID int
	UserID    int
}

func hashRegistrationKey(k registrationKey) uint32 {
	return cmap.HashInts(k.ContextID, k.UserID)
}

// registrationContainer holds one user's pending registrations. Once
// nonexistent is set it has been unlinked from the store and must not be
// written again.
type registrationContainer[T any] struct {
	mu          sync.Mutex
	entries     []Registration[T]
	nonexistent bool
}

// DeviceRegistrationStore keeps pending device registrations per
// (context, user) with a bounded lifetime. Expired entries are swept lazily
// before registrations and reads.
type DeviceRegistrationStore[T any] struct {
	containers *cmap.Map[registrationKey, *registrationContainer[T]]
	deviceID   func(T) string
	lifetime   time.Duration
	now        func() time.Time
}

// RegistrationOption configures a DeviceRegistrationStore.
type RegistrationOption func(*registrationOptions)

type registrationOptions struct {
	lifetime time.Duration
	now      func() time.Time
}

// WithRegistrationLifetime sets the registration lifetime. Zero disables
// expiry.
func WithRegistrationLifetime(d time.Duration) RegistrationOption {
	return func(o *registrationOptions) {
		o.lifetime = d
	}
}

// WithRegistrationClock replaces time.Now.
func WithRegistrationClock(now func() time.Time) RegistrationOption {
	return func(o *registrationOptions) {
		o.now = now
	}
}

// NewDeviceRegistrationStore creates a store. deviceID extracts the ID used
// by Unregister and Device.
func NewDeviceRegistrationStore[T any](deviceID func(T) string, opts ...RegistrationOption) (*DeviceRegistrationStore[T], error) {
	o := registrationOptions{
		lifetime: DefaultRegistrationLifetime,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if deviceID == nil {
		return nil, domain.ErrConfiguration.WithDetails("registration store requires a device id accessor")
	}
	if o.lifetime < 0 {
		return nil, domain.ErrConfiguration.WithDetails("registration lifetime must not be negative")
	}

	return &DeviceRegistrationStore[T]{
		containers: cmap.New[registrationKey, *registrationContainer[T]](hashRegistrationKey),
		deviceID:   deviceID,
		lifetime:   o.lifetime,
		now:        o.now,
	}, nil
}

// Lifetime returns the configured registration lifetime.
func (s *DeviceRegistrationStore[T]) Lifetime() time.Duration {
	return s.lifetime
}

// Register appends device to the container for (contextID, userID).
func (s *DeviceRegistrationStore[T]) Register(contextID, userID int, device T) error {
	s.Cleanup()

	key := registrationKey{ContextID: contextID, UserID: userID}
	for i := 0; i < MaxRetries; i++ {
		c, _ := s.containers.GetOrSet(key, &registrationContainer[T]{})
		c.mu.Lock()
		if c.nonexistent {
			// Removed between lookup and lock; start over.
			c.mu.Unlock()
			continue
		}
		c.entries = append(c.entries, Registration[T]{Device: device, CreatedOn: s.now()})
		c.mu.Unlock()
		return nil
	}
	return structuralRace("registration.register")
}

// Unregister removes the first registration whose device ID matches and
// returns it.
func (s *DeviceRegistrationStore[T]) Unregister(contextID, userID int, deviceID string) (T, bool, error) {
	var zero T
	key := registrationKey{ContextID: contextID, UserID: userID}

	for i := 0; i < MaxRetries; i++ {
		c, ok := s.containers.Get(key)
		if !ok {
			return zero, false, nil
		}
		c.mu.Lock()
		if c.nonexistent {
			c.mu.Unlock()
			continue
		}
		for idx, r := range c.entries {
			if s.deviceID(r.Device) != deviceID {
				continue
			}
			c.entries = append(c.entries[:idx], c.entries[idx+1:]...)
			if len(c.entries) == 0 {
				s.unlink(key, c)
			}
			c.mu.Unlock()
			return r.Device, true, nil
		}
		c.mu.Unlock()
		return zero, false, nil
	}
	return zero, false, structuralRace("registration.unregister")
}

// Devices returns a snapshot of the live registrations for (contextID,
// userID), oldest first.
func (s *DeviceRegistrationStore[T]) Devices(contextID, userID int) []T {
	s.Cleanup()

	var out []T
	s.withContainer(contextID, userID, func(c *registrationContainer[T]) {
		out = make([]T, 0, len(c.entries))
		for _, r := range c.entries {
			out = append(out, r.Device)
		}
	})
	return out
}

// Device returns the registration with the given device ID.
func (s *DeviceRegistrationStore[T]) Device(contextID, userID int, deviceID string) (T, bool) {
	s.Cleanup()

	var (
		out   T
		found bool
	)
	s.withContainer(contextID, userID, func(c *registrationContainer[T]) {
		for _, r := range c.entries {
			if s.deviceID(r.Device) == deviceID {
				out, found = r.Device, true
				return
			}
		}
	})
	return out, found
}

// withContainer runs fn under the lock of the live container for the key.
// A tombstoned container means the key was emptied, and a fresh one may
// already be in its place, so the lookup is repeated.
func (s *DeviceRegistrationStore[T]) withContainer(contextID, userID int, fn func(c *registrationContainer[T])) {
	key := registrationKey{ContextID: contextID, UserID: userID}
	for i := 0; i < MaxRetries; i++ {
		c, ok := s.containers.Get(key)
		if !ok {
			return
		}
		c.mu.Lock()
		if c.nonexistent {
			c.mu.Unlock()
			continue
		}
		fn(c)
		c.mu.Unlock()
		return
	}
}

// Cleanup drops expired registrations and unlinks containers left empty.
// It returns the number of registrations dropped.
func (s *DeviceRegistrationStore[T]) Cleanup() int {
	type entry struct {
		key registrationKey
		c   *registrationContainer[T]
	}
	var all []entry
	s.containers.Range(func(k registrationKey, c *registrationContainer[T]) bool {
		all = append(all, entry{key: k, c: c})
		return true
	})

	now := s.now()
	dropped := 0
	for _, e := range all {
		e.c.mu.Lock()
		if e.c.nonexistent {
			e.c.mu.Unlock()
			continue
		}
		if s.lifetime > 0 {
			kept := e.c.entries[:0]
			for _, r := range e.c.entries {
				if now.Sub(r.CreatedOn) > s.lifetime {
					dropped++
					continue
				}
				kept = append(kept, r)
			}
			e.c.entries = kept
		}
		if len(e.c.entries) == 0 {
			s.unlink(e.key, e.c)
		}
		e.c.mu.Unlock()
	}
	return dropped
}

// Len returns the number of (context, user) keys with pending registrations.
func (s *DeviceRegistrationStore[T]) Len() int {
	return s.containers.Count()
}

// unlink tombstones c and removes it from the store if it is still the
// mapped container. Must be called with c.mu held.
func (s *DeviceRegistrationStore[T]) unlink(key registrationKey, c *registrationContainer[T]) {
	c.nonexistent = true
	s.containers.DeleteIf(key, func(cur *registrationContainer[T]) bool { return cur == c })
}
