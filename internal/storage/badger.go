package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/sessiond/internal/core/domain"
	"github.com/yndnr/sessiond/internal/core/service"
)

// sessionPrefix namespaces session records in badger.
var sessionPrefix = []byte("session/")

// DefaultGCThreshold is the value-log discard ratio passed to RunValueLogGC.
const DefaultGCThreshold = 0.5

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	Dir        string
	GCInterval time.Duration
	SyncWrites bool

	// InMemory runs badger without touching disk. Used in tests.
	InMemory bool
}

// BadgerStore is a service.SessionStorage backed by an embedded badger
// database.
type BadgerStore struct {
	db     *badger.DB
	codec  *Codec
	logger *slog.Logger

	lastGCTime atomic.Int64 // Unix milliseconds
	gcRuns     atomic.Uint64

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ service.SessionStorage = (*BadgerStore)(nil)

// NewBadgerStore opens the database and starts the GC loop when
// cfg.GCInterval is positive.
func NewBadgerStore(cfg BadgerConfig, codec *Codec, logger *slog.Logger) (*BadgerStore, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, domain.ErrConfiguration.WithDetails("badger: dir is required")
	}
	if codec == nil {
		codec = NewCodec(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.SyncWrites = cfg.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, storageErr("badger open", err)
	}

	s := &BadgerStore{
		db:     db,
		codec:  codec,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.wg.Add(1)
		go s.gcLoop(cfg.GCInterval)
	}

	logger.Info("badger store opened", "dir", cfg.Dir, "in_memory", cfg.InMemory, "gc_interval", cfg.GCInterval)
	return s, nil
}

func sessionKey(id string) []byte {
	return append(append([]byte(nil), sessionPrefix...), id...)
}

// Persist stores or replaces the session.
func (s *BadgerStore) Persist(ctx context.Context, session *domain.Session) error {
	data, err := s.codec.Encode(session)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(session.ID), data)
	})
	if err != nil {
		return storageErr("badger persist", err)
	}
	return nil
}

// Remove deletes the session. Absent sessions are not an error.
func (s *BadgerStore) Remove(ctx context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(id))
	})
	if err != nil {
		return storageErr("badger remove", err)
	}
	return nil
}

// Lookup loads a session by ID.
func (s *BadgerStore) Lookup(ctx context.Context, id string) (*domain.Session, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, storageErr("badger lookup", err)
	}
	return s.codec.Decode(id, value)
}

// Find scans all stored sessions and returns those matching filter.
// Records that fail to decode are logged and skipped.
func (s *BadgerStore) Find(ctx context.Context, filter *service.SessionFilter) ([]*domain.Session, error) {
	var out []*domain.Session
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = sessionPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			id := string(item.Key()[len(sessionPrefix):])
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			session, err := s.codec.Decode(id, value)
			if err != nil {
				s.logger.Warn("skipping undecodable session record", "session_id", id, "error", err)
				continue
			}
			if filter.Matches(session) {
				out = append(out, session)
			}
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("badger find", err)
	}
	return out, nil
}

// GC runs value-log GC until badger reports nothing left to rewrite and
// returns the number of rewrites.
func (s *BadgerStore) GC() (int, error) {
	start := time.Now()
	runs := 0
	for {
		err := s.db.RunValueLogGC(DefaultGCThreshold)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			break
		}
		if err != nil {
			return runs, fmt.Errorf("badger gc: %w", err)
		}
		runs++
	}

	s.lastGCTime.Store(time.Now().UnixMilli())
	s.gcRuns.Add(uint64(runs))
	s.logger.Debug("badger gc completed", "rewrites", runs, "elapsed", time.Since(start))
	return runs, nil
}

// Close stops the GC loop and closes the database.
func (s *BadgerStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		if cerr := s.db.Close(); cerr != nil {
			err = storageErr("badger close", cerr)
			return
		}
		s.logger.Info("badger store closed")
	})
	return err
}

// RegisterMetrics exports database size and GC state to reg.
func (s *BadgerStore) RegisterMetrics(reg prometheus.Registerer) error {
	size := func(pick func(lsm, vlog int64) int64) func() float64 {
		return func() float64 {
			lsm, vlog := s.db.Size()
			return float64(pick(lsm, vlog))
		}
	}
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "sessiond",
			Subsystem: "badger",
			Name:      "lsm_size_bytes",
			Help:      "Badger LSM tree size in bytes.",
		}, size(func(lsm, _ int64) int64 { return lsm })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "sessiond",
			Subsystem: "badger",
			Name:      "value_log_size_bytes",
			Help:      "Badger value log size in bytes.",
		}, size(func(_, vlog int64) int64 { return vlog })),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "sessiond",
			Subsystem: "badger",
			Name:      "last_gc_timestamp_seconds",
			Help:      "Unix timestamp of the last value-log GC run.",
		}, func() float64 { return float64(s.lastGCTime.Load()) / 1000 }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "sessiond",
			Subsystem: "badger",
			Name:      "gc_rewrites_total",
			Help:      "Value-log files rewritten by GC.",
		}, func() float64 { return float64(s.gcRuns.Load()) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *BadgerStore) gcLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.GC(); err != nil {
				s.logger.Error("badger gc failed", "error", err)
			}
		case <-s.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to badger's Logger interface. Badger's
// info output is demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
