package service

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/sessiond/internal/core/domain"
	"github.com/yndnr/sessiond/internal/core/event"
	"github.com/yndnr/sessiond/internal/storage/memory"
	"github.com/yndnr/sessiond/pkg/cmap"
)

// restoreStripes is the number of locks serializing restores from durable
// storage, striped by session ID.
const restoreStripes = 64

// Config holds the handler's sizes, intervals and lifetimes. It is fixed
// for the handler's lifetime.
type Config struct {
	ShortTermContainers int
	ShortTermInterval   time.Duration

	LongTermEnabled    bool
	LongTermContainers int
	LongTermInterval   time.Duration

	// MaxSessionsPerUser caps sessions per (user, context). Zero means
	// unlimited.
	MaxSessionsPerUser int

	// RandomTokens issues a single-use random token with every session.
	RandomTokens bool

	RequestTokenLifetime time.Duration
	RegistrationLifetime time.Duration

	Events event.Config
}

// DefaultConfig returns the default handler configuration.
func DefaultConfig() Config {
	return Config{
		ShortTermContainers:  4,
		ShortTermInterval:    15 * time.Minute,
		LongTermEnabled:      true,
		LongTermContainers:   7,
		LongTermInterval:     24 * time.Hour,
		MaxSessionsPerUser:   0,
		RandomTokens:         true,
		RequestTokenLifetime: 2 * time.Minute,
		RegistrationLifetime: memory.DefaultRegistrationLifetime,
		Events: event.Config{
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	ring := memory.ContainerConfig{
		ShortTermCount:  c.ShortTermContainers,
		LongTermEnabled: c.LongTermEnabled,
		LongTermCount:   c.LongTermContainers,
	}
	if err := ring.Validate(); err != nil {
		return err
	}
	if c.ShortTermInterval <= 0 {
		return domain.ErrConfiguration.WithDetails("short-term interval must be positive")
	}
	if c.LongTermEnabled && c.LongTermInterval <= 0 {
		return domain.ErrConfiguration.WithDetails("long-term interval must be positive")
	}
	if c.MaxSessionsPerUser < 0 {
		return domain.ErrConfiguration.WithDetails("max sessions per user must not be negative")
	}
	if c.RequestTokenLifetime <= 0 {
		return domain.ErrConfiguration.WithDetails("request token lifetime must be positive")
	}
	if c.RegistrationLifetime < 0 {
		return domain.ErrConfiguration.WithDetails("registration lifetime must not be negative")
	}
	return nil
}

// Deps are the collaborators of a SessionHandler. Storage and Directory
// are optional.
type Deps struct {
	Storage   SessionStorage
	Directory Directory
	Sink      event.Sink
	Metrics   Metrics
	Logger    *slog.Logger
}

// SessionHandler is the entry point for session lifecycle operations.
type SessionHandler struct {
	cfg           Config
	counter       *memory.RefCounter
	container     *memory.SessionContainer
	tokens        *memory.TokenContainer[any]
	registrations *memory.DeviceRegistrationStore[domain.Device]
	requestTokens *memory.TokenStore[string, memory.ExpiringToken[string]]

	storage    SessionStorage
	directory  Directory
	dispatcher *event.Dispatcher
	metrics    Metrics
	logger     *slog.Logger

	restoreMu [restoreStripes]sync.Mutex
	// retired holds IDs of sessions that left the container, stamped with
	// the time their durable copy was last touched. restore refuses them.
	retired   *cmap.Map[string, time.Time]

	rotatorMu sync.Mutex
	rotator   *Rotator

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewSessionHandler builds a handler from cfg and deps.
func NewSessionHandler(cfg Config, deps Deps) (*SessionHandler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}

	counter := memory.NewRefCounter()
	container, err := memory.NewSessionContainer(memory.ContainerConfig{
		ShortTermCount:  cfg.ShortTermContainers,
		LongTermEnabled: cfg.LongTermEnabled,
		LongTermCount:   cfg.LongTermContainers,
	}, counter)
	if err != nil {
		return nil, err
	}

	registrations, err := memory.NewDeviceRegistrationStore(domain.DeviceID,
		memory.WithRegistrationLifetime(cfg.RegistrationLifetime))
	if err != nil {
		return nil, err
	}

	h := &SessionHandler{
		cfg:           cfg,
		counter:       counter,
		container:     container,
		registrations: registrations,
		requestTokens: memory.NewTokenStore[string, memory.ExpiringToken[string]](cmap.HashString),
		retired:       cmap.New[string, time.Time](cmap.HashString),
		storage:       deps.Storage,
		directory:     deps.Directory,
		metrics:       metrics,
		logger:        logger.With("component", "session_handler"),
	}
	h.tokens = memory.NewTokenContainer[any](memory.WithCleanup[any](h.releaseToken))
	h.dispatcher = event.NewDispatcher(cfg.Events, deps.Sink,
		event.WithLogger(h.logger),
		event.WithDropHook(metrics.EventDropped),
	)

	if h.directory != nil {
		h.directory.Subscribe(h.applyRemote)
	}

	h.logger.Info("session handler ready",
		"short_term_containers", cfg.ShortTermContainers,
		"short_term_interval", cfg.ShortTermInterval,
		"long_term_enabled", cfg.LongTermEnabled,
		"long_term_containers", cfg.LongTermContainers,
		"long_term_interval", cfg.LongTermInterval,
		"durable_storage", h.storage != nil,
		"cluster", h.directory != nil,
	)
	return h, nil
}

// Config returns the handler configuration.
func (h *SessionHandler) Config() Config {
	return h.cfg
}

// Tokens returns the session-scoped token container.
func (h *SessionHandler) Tokens() *memory.TokenContainer[any] {
	return h.tokens
}

// HasContextSessions reports whether contextID has active sessions.
func (h *SessionHandler) HasContextSessions(contextID int) bool {
	return h.counter.ContainsContext(contextID)
}

// HasUserSessions reports whether the user has active sessions.
func (h *SessionHandler) HasUserSessions(userID, contextID int) bool {
	return h.counter.ContainsUser(userID, contextID)
}

// UserSessionCount returns the number of active sessions of the user.
func (h *SessionHandler) UserSessionCount(userID, contextID int) int {
	return int(h.counter.UserCount(userID, contextID))
}

// Counts returns the number of sessions held per tier.
func (h *SessionHandler) Counts() (short, long int) {
	return h.container.Count()
}

// DroppedEvents returns the number of events the dispatcher dropped.
func (h *SessionHandler) DroppedEvents() uint64 {
	return h.dispatcher.Dropped()
}

// Close stops the rotator and flushes pending events. Storage and
// directory belong to the caller and are left open.
func (h *SessionHandler) Close() error {
	h.closeOnce.Do(func() {
		h.closed.Store(true)

		h.rotatorMu.Lock()
		r := h.rotator
		h.rotatorMu.Unlock()
		if r != nil {
			r.Stop()
		}

		h.dispatcher.Close()
		h.logger.Info("session handler closed")
	})
	return nil
}

func (h *SessionHandler) checkOpen() error {
	if h.closed.Load() {
		return domain.ErrClosed.WithDetails("session handler")
	}
	return nil
}

func (h *SessionHandler) restoreLock(id string) *sync.Mutex {
	return &h.restoreMu[cmap.HashString(id)%restoreStripes]
}

// forget marks id retired so restore never admits it again, then takes the
// session out of the container. Both happen under the restore lock, so a
// copy restored after an unlocked removal is caught too. The removed
// control is returned with its counter slot already released.
func (h *SessionHandler) forget(id string) (*domain.SessionControl, bool, error) {
	mu := h.restoreLock(id)
	mu.Lock()
	defer mu.Unlock()

	h.retired.Set(id, time.Now())
	return h.container.Remove(id)
}

// pruneRetired drops retired IDs older than the short-term interval.
func (h *SessionHandler) pruneRetired() int {
	cutoff := time.Now().Add(-h.cfg.ShortTermInterval)
	var stale []string
	h.retired.Range(func(id string, at time.Time) bool {
		if at.Before(cutoff) {
			stale = append(stale, id)
		}
		return true
	})

	n := 0
	for _, id := range stale {
		if h.retired.DeleteIf(id, func(at time.Time) bool { return at.Before(cutoff) }) {
			n++
		}
	}
	return n
}

// releaseToken runs for every value dropped from the token container.
func (h *SessionHandler) releaseToken(v any) {
	if c, ok := v.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			h.logger.Warn("release session token value", "error", err)
		}
	}
}
