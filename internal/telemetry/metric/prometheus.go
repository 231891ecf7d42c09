package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yndnr/sessiond/internal/core/domain"
)

// Namespace prefixes every sessiond metric.
const Namespace = "sessiond"

// Registry holds the application metrics. It satisfies the session
// handler's Metrics interface.
type Registry struct {
	reg *prometheus.Registry

	// Session metrics
	sessionsAdded    prometheus.Counter
	sessionsRemoved  *prometheus.CounterVec
	sessionsMoved    prometheus.Counter
	sessionsRestored prometheus.Counter
	rotations        *prometheus.CounterVec

	// Collaborator metrics
	storageErrors     *prometheus.CounterVec
	eventsDropped     prometheus.Counter
	broadcastsDropped prometheus.Counter
}

// NewRegistry creates a registry with the Go and process collectors and the
// session lifecycle metrics registered.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		sessionsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sessions",
			Name:      "added_total",
			Help:      "Sessions admitted into the short-term tier",
		}),
		sessionsRemoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sessions",
			Name:      "removed_total",
			Help:      "Sessions that left the in-memory tier, by reason",
		}, []string{"reason"}),
		sessionsMoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sessions",
			Name:      "moved_long_term_total",
			Help:      "Sessions moved from the short-term to the long-term tier",
		}),
		sessionsRestored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sessions",
			Name:      "restored_total",
			Help:      "Sessions re-admitted from durable storage",
		}),
		rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "rotation",
			Name:      "total",
			Help:      "Container rotations, by tier",
		}, []string{"tier"}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Durable storage failures, by operation",
		}, []string{"op"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Lifecycle events dropped because the buffer was full",
		}),
		broadcastsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "cluster",
			Name:      "broadcasts_dropped_total",
			Help:      "Removal broadcasts dropped by the cluster rate limit",
		}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.sessionsAdded,
		r.sessionsRemoved,
		r.sessionsMoved,
		r.sessionsRestored,
		r.rotations,
		r.storageErrors,
		r.eventsDropped,
		r.broadcastsDropped,
	)
	return r
}

// Prometheus returns the underlying registry, for components registering
// their own collectors.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.reg
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

func (r *Registry) SessionAdded() { r.sessionsAdded.Inc() }

func (r *Registry) SessionRemoved(reason domain.RemovalReason, n int) {
	r.sessionsRemoved.WithLabelValues(string(reason)).Add(float64(n))
}

func (r *Registry) SessionMoved(n int) { r.sessionsMoved.Add(float64(n)) }

func (r *Registry) Rotated(tier domain.Tier) { r.rotations.WithLabelValues(tier.String()).Inc() }

func (r *Registry) SessionRestored() { r.sessionsRestored.Inc() }

func (r *Registry) StorageError(op string) { r.storageErrors.WithLabelValues(op).Inc() }

func (r *Registry) EventDropped() { r.eventsDropped.Inc() }

func (r *Registry) BroadcastDropped() { r.broadcastsDropped.Inc() }
