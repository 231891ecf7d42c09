package metric

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/sessiond/internal/core/domain"
)

// SessionSource reports live session counts.
type SessionSource interface {
	Counts() (short, long int)
}

// Collector reads live session counts from a SessionSource on every
// scrape.
type Collector struct {
	source SessionSource
	held   *prometheus.Desc
}

// NewCollector creates a collector for source.
func NewCollector(source SessionSource) *Collector {
	return &Collector{
		source: source,
		held: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "sessions", "held"),
			"Sessions currently held in memory, by tier",
			[]string{"tier"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.held
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	short, long := c.source.Counts()
	ch <- prometheus.MustNewConstMetric(c.held, prometheus.GaugeValue, float64(short), domain.TierShortTerm.String())
	ch <- prometheus.MustNewConstMetric(c.held, prometheus.GaugeValue, float64(long), domain.TierLongTerm.String())
}

// RegisterSessions registers a Collector for source.
func (r *Registry) RegisterSessions(source SessionSource) error {
	return r.reg.Register(NewCollector(source))
}
