package bom

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics observes engine usage. A nil *Metrics is a no-op.
type Metrics struct {
	traversals *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	nodes      *prometheus.HistogramVec
	cycles     prometheus.Counter
}

// NewMetrics registers the BOM collectors. Collectors already registered on
// reg are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		traversals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "erp_bom_traversals_total",
			Help: "BOM traversals partitioned by output mode and result.",
		}, []string{"mode", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "erp_bom_traversal_duration_seconds",
			Help:    "Duration of BOM traversals per output mode.",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),
		nodes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "erp_bom_traversal_nodes",
			Help:    "Number of nodes emitted per traversal.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"mode"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "erp_bom_cycle_warnings_total",
			Help: "Circular references short-circuited during traversal.",
		}),
	}
	if err := register(reg, m.traversals, func(c prometheus.Collector) { m.traversals = c.(*prometheus.CounterVec) }); err != nil {
		return nil, err
	}
	if err := register(reg, m.duration, func(c prometheus.Collector) { m.duration = c.(*prometheus.HistogramVec) }); err != nil {
		return nil, err
	}
	if err := register(reg, m.nodes, func(c prometheus.Collector) { m.nodes = c.(*prometheus.HistogramVec) }); err != nil {
		return nil, err
	}
	if err := register(reg, m.cycles, func(c prometheus.Collector) { m.cycles = c.(prometheus.Counter) }); err != nil {
		return nil, err
	}
	return m, nil
}

func register(reg prometheus.Registerer, c prometheus.Collector, reuse func(prometheus.Collector)) error {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			reuse(already.ExistingCollector)
			return nil
		}
		return err
	}
	return nil
}

func (m *Metrics) observe(mode string, start time.Time, nodes, cycles int, err error) {
	if m == nil {
		return
	}
	result := "success"
	switch {
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
	}
	m.traversals.WithLabelValues(mode, result).Inc()
	m.duration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	if err == nil {
		m.nodes.WithLabelValues(mode).Observe(float64(nodes))
		m.cycles.Add(float64(cycles))
	}
}
