package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/memberlist"
	"golang.org/x/time/rate"

	"github.com/yndnr/sessiond/internal/core/service"
)

// Defaults for Config.
const (
	DefaultBroadcastRate  = 500
	DefaultRetransmitMult = 3
	DefaultDedupWindow    = time.Minute
	leaveTimeout          = 5 * time.Second
)

// ErrClosed is returned when publishing on a closed Directory.
var ErrClosed = errors.New("cluster: directory closed")

// Config configures a Directory.
type Config struct {
	// NodeID is this node's memberlist name. It must be unique.
	NodeID string

	BindAddr string

	// BindPort 0 picks a free port.
	BindPort int

	// Seeds are host:port addresses of existing members.
	Seeds []string

	// BroadcastRate limits published removals per second. Removals over
	// the rate are dropped.
	BroadcastRate float64

	// OnDrop runs for every removal dropped by the rate limit.
	OnDrop func()

	// RetransmitMult scales how often each message is retransmitted.
	RetransmitMult int

	// DedupWindow is how long message IDs are remembered.
	DedupWindow time.Duration

	Logger *slog.Logger
}

// envelope is the gossip wire format.
type envelope struct {
	ID      string                `json:"id"`
	Removal service.RemoteRemoval `json:"removal"`
}

// Directory is a service.Directory over memberlist gossip.
type Directory struct {
	nodeID  string
	ml      *memberlist.Memberlist
	queue   *memberlist.TransmitLimitedQueue
	limiter *rate.Limiter
	logger  *slog.Logger

	dropped  atomic.Uint64
	onDrop   func()
	dropWarn rate.Sometimes

	mu       sync.RWMutex
	handlers []func(service.RemoteRemoval)

	dedup *dedup

	closeOnce sync.Once
	closed    chan struct{}
}

var _ service.Directory = (*Directory)(nil)

// New starts memberlist and joins cfg.Seeds, if any.
func New(cfg Config) (*Directory, error) {
	if cfg.NodeID == "" {
		return nil, errors.New("cluster: node ID is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BroadcastRate <= 0 {
		cfg.BroadcastRate = DefaultBroadcastRate
	}
	if cfg.RetransmitMult <= 0 {
		cfg.RetransmitMult = DefaultRetransmitMult
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	logger := cfg.Logger.With("component", "cluster", "node_id", cfg.NodeID)

	d := &Directory{
		nodeID:  cfg.NodeID,
		limiter:  rate.NewLimiter(rate.Limit(cfg.BroadcastRate), int(cfg.BroadcastRate)+1),
		logger:   logger,
		onDrop:   cfg.OnDrop,
		dropWarn: rate.Sometimes{First: 1, Interval: 10 * time.Second},
		dedup:    newDedup(cfg.DedupWindow),
		closed:   make(chan struct{}),
	}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = cfg.NodeID
	mlConfig.BindAddr = cfg.BindAddr
	mlConfig.BindPort = cfg.BindPort
	mlConfig.AdvertisePort = cfg.BindPort
	mlConfig.Delegate = &delegate{dir: d}
	mlConfig.Events = &eventDelegate{logger: logger}
	mlConfig.Logger = newHCLogger(logger, "memberlist").StandardLogger(nil)

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("cluster: create memberlist: %w", err)
	}
	d.ml = ml
	d.queue = &memberlist.TransmitLimitedQueue{
		NumNodes:       ml.NumMembers,
		RetransmitMult: cfg.RetransmitMult,
	}

	if len(cfg.Seeds) > 0 {
		n, err := ml.Join(cfg.Seeds)
		if err != nil {
			ml.Shutdown()
			return nil, fmt.Errorf("cluster: join seeds: %w", err)
		}
		logger.Info("joined cluster", "seeds", cfg.Seeds, "contacted", n)
	} else {
		logger.Info("started cluster as first member", "addr", ml.LocalNode().Address())
	}
	return d, nil
}

// NodeID returns this node's name.
func (d *Directory) NodeID() string {
	return d.nodeID
}

// Addr returns the gossip address other nodes can use as a seed.
func (d *Directory) Addr() string {
	return d.ml.LocalNode().Address()
}

// NumMembers returns the number of live members, including this node.
func (d *Directory) NumMembers() int {
	return d.ml.NumMembers()
}

// PublishRemoval broadcasts the removal of one session.
func (d *Directory) PublishRemoval(_ context.Context, sessionID string) error {
	return d.publish(service.RemoteRemoval{Kind: service.RemoveBySession, SessionID: sessionID})
}

// PublishUserRemoval broadcasts the removal of a user's sessions.
func (d *Directory) PublishUserRemoval(_ context.Context, userID, contextID int) error {
	return d.publish(service.RemoteRemoval{Kind: service.RemoveByUser, UserID: userID, ContextID: contextID})
}

// PublishContextRemoval broadcasts the removal of a context's sessions.
func (d *Directory) PublishContextRemoval(_ context.Context, contextID int) error {
	return d.publish(service.RemoteRemoval{Kind: service.RemoveByContext, ContextID: contextID})
}

// publish queues removal for gossip. It never blocks: over the broadcast
// rate the removal is dropped and counted.
func (d *Directory) publish(removal service.RemoteRemoval) error {
	select {
	case <-d.closed:
		return ErrClosed
	default:
	}
	if !d.limiter.Allow() {
		d.drop(removal)
		return nil
	}

	removal.Origin = d.nodeID
	env := envelope{ID: uuid.NewString(), Removal: removal}
	msg, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("cluster: encode removal: %w", err)
	}
	d.dedup.seen(env.ID)
	d.queue.QueueBroadcast(&broadcast{msg: msg})
	d.logger.Debug("queued removal broadcast", "kind", removal.Kind, "session_id", removal.SessionID,
		"user_id", removal.UserID, "context_id", removal.ContextID)
	return nil
}

func (d *Directory) drop(removal service.RemoteRemoval) {
	n := d.dropped.Add(1)
	if d.onDrop != nil {
		d.onDrop()
	}
	d.dropWarn.Do(func() {
		d.logger.Warn("broadcast rate exceeded, dropping removals",
			"kind", removal.Kind,
			"session_id", removal.SessionID,
			"dropped_total", n,
		)
	})
}

// Dropped returns the number of removals dropped by the rate limit.
func (d *Directory) Dropped() uint64 {
	return d.dropped.Load()
}

// Subscribe registers fn for removals published by other nodes.
func (d *Directory) Subscribe(fn func(service.RemoteRemoval)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, fn)
}

// receive handles one gossip message.
func (d *Directory) receive(msg []byte) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		d.logger.Warn("dropping undecodable cluster message", "error", err)
		return
	}
	if env.Removal.Origin == d.nodeID || d.dedup.seen(env.ID) {
		return
	}

	d.mu.RLock()
	handlers := d.handlers
	d.mu.RUnlock()
	for _, fn := range handlers {
		fn(env.Removal)
	}
}

// Close leaves the cluster and stops memberlist.
func (d *Directory) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.closed)
		if lerr := d.ml.Leave(leaveTimeout); lerr != nil {
			d.logger.Warn("failed to leave cluster", "error", lerr)
		}
		if serr := d.ml.Shutdown(); serr != nil {
			err = fmt.Errorf("cluster: shutdown memberlist: %w", serr)
			return
		}
		d.queue.Reset()
		d.logger.Info("left cluster")
	})
	return err
}

// dedup remembers message IDs for a window.
type dedup struct {
	window time.Duration
	mu     sync.Mutex
	ids    map[string]time.Time
	sweep  time.Time
}

func newDedup(window time.Duration) *dedup {
	return &dedup{window: window, ids: make(map[string]time.Time), sweep: time.Now()}
}

// seen records id and reports whether it was already recorded.
func (d *dedup) seen(id string) bool {
	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()

	if now.Sub(d.sweep) > d.window {
		for k, at := range d.ids {
			if now.Sub(at) > d.window {
				delete(d.ids, k)
			}
		}
		d.sweep = now
	}
	if _, ok := d.ids[id]; ok {
		return true
	}
	d.ids[id] = now
	return false
}
