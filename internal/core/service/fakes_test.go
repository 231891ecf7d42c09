package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/sessiond/internal/core/domain"
	"github.com/yndnr/sessiond/internal/core/event"
)

// memStorage is an in-process SessionStorage.
type memStorage struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	failAll  error
	removed  []string

	// beforeRemove and afterFind run outside the lock. Set them before the
	// storage is shared.
	beforeRemove func(id string)
	afterFind    func()
}

func newMemStorage() *memStorage {
	return &memStorage{sessions: make(map[string]*domain.Session)}
}

func (m *memStorage) Persist(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return m.failAll
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *memStorage) Remove(_ context.Context, id string) error {
	if m.beforeRemove != nil {
		m.beforeRemove(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return m.failAll
	}
	delete(m.sessions, id)
	m.removed = append(m.removed, id)
	return nil
}

func (m *memStorage) Lookup(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *memStorage) Find(_ context.Context, f *SessionFilter) ([]*domain.Session, error) {
	m.mu.Lock()
	if m.failAll != nil {
		m.mu.Unlock()
		return nil, m.failAll
	}
	var out []*domain.Session
	for _, s := range m.sessions {
		if f.Matches(s) {
			out = append(out, s.Clone())
		}
	}
	m.mu.Unlock()

	if m.afterFind != nil {
		m.afterFind()
	}
	return out, nil
}

// gateRemove makes the next Remove block until the returned release func
// is called. entered is closed once Remove is blocked.
func (m *memStorage) gateRemove() (entered <-chan struct{}, release func()) {
	in := make(chan struct{})
	out := make(chan struct{})
	var once sync.Once
	m.beforeRemove = func(string) {
		first := false
		once.Do(func() { first = true })
		if !first {
			return
		}
		close(in)
		<-out
	}
	return in, func() { close(out) }
}

func (m *memStorage) Close() error { return nil }

func (m *memStorage) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok
}

// fakeDirectory records publications and lets tests inject remote removals.
type fakeDirectory struct {
	mu        sync.Mutex
	published []RemoteRemoval
	handler   func(RemoteRemoval)
}

func (d *fakeDirectory) PublishRemoval(_ context.Context, id string) error {
	return d.record(RemoteRemoval{Kind: RemoveBySession, SessionID: id})
}

func (d *fakeDirectory) PublishUserRemoval(_ context.Context, userID, contextID int) error {
	return d.record(RemoteRemoval{Kind: RemoveByUser, UserID: userID, ContextID: contextID})
}

func (d *fakeDirectory) PublishContextRemoval(_ context.Context, contextID int) error {
	return d.record(RemoteRemoval{Kind: RemoveByContext, ContextID: contextID})
}

func (d *fakeDirectory) record(r RemoteRemoval) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.published = append(d.published, r)
	return nil
}

func (d *fakeDirectory) Subscribe(fn func(RemoteRemoval)) { d.handler = fn }
func (d *fakeDirectory) Close() error { return nil }

func (d *fakeDirectory) deliver(r RemoteRemoval) { d.handler(r) }

func (d *fakeDirectory) publications() []RemoteRemoval {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]RemoteRemoval(nil), d.published...)
}

// countingMetrics counts removals by reason.
type countingMetrics struct {
	nopMetrics
	mu       sync.Mutex
	removed  map[domain.RemovalReason]int
	storage  int
	restored int
}

func (m *countingMetrics) SessionRemoved(reason domain.RemovalReason, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removed == nil {
		m.removed = make(map[domain.RemovalReason]int)
	}
	m.removed[reason] += n
}

func (m *countingMetrics) StorageError(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storage++
}

func (m *countingMetrics) SessionRestored() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restored++
}

type harness struct {
	h       *SessionHandler
	sink    *event.ChannelSink
	storage *memStorage
	dir     *fakeDirectory
	metrics *countingMetrics
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ShortTermContainers = 2
	cfg.LongTermContainers = 2
	cfg.Events = event.Config{BufferSize: 256}
	return cfg
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	hs := &harness{
		sink:    event.NewChannelSink(1024),
		storage: newMemStorage(),
		dir:     &fakeDirectory{},
		metrics: &countingMetrics{},
	}
	h, err := NewSessionHandler(cfg, Deps{
		Storage:   hs.storage,
		Directory: hs.dir,
		Sink:      hs.sink,
		Metrics:   hs.metrics,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewSessionHandler: %v", err)
	}
	hs.h = h
	t.Cleanup(func() { _ = h.Close() })
	return hs
}

func (hs *harness) add(t *testing.T, userID, contextID int) *domain.Session {
	t.Helper()
	s, err := hs.h.AddSession(context.Background(), &AddSessionRequest{UserID: userID, ContextID: contextID, LoginName: "user"})
	if err != nil {
		t.Fatalf("AddSession: %v", err)
	}
	return s
}

// events closes the handler to flush the dispatcher and returns everything
// delivered.
func (hs *harness) events(t *testing.T) []event.Event {
	t.Helper()
	_ = hs.h.Close()
	var out []event.Event
	for {
		select {
		case ev := <-hs.sink.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

var errBackend = errors.New("backend down")
