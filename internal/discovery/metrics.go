package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	Runs           prometheus.Counter
	SourceOutcomes *prometheus.CounterVec
	Results        prometheus.Histogram
	RenderFallback prometheus.Counter
}

// NewMetrics registers the collectors on reg. A nil reg yields unregistered
// collectors, which is convenient in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Runs: f.NewCounter(prometheus.CounterOpts{
			Name: "discovery_runs_total",
			Help: "The total number of discovery runs.",
		}),
		SourceOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "discovery_source_outcomes_total",
			Help: "Per-source fetch outcomes, by kind.",
		}, []string{"outcome"}),
		Results: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "discovery_results",
			Help:    "Number of records returned per run.",
			Buckets: []float64{0, 1, 2, 5, 10, 15, 20},
		}),
		RenderFallback: f.NewCounter(prometheus.CounterOpts{
			Name: "discovery_render_fallback_total",
			Help: "The total number of runs that used the render tier.",
		}),
	}
}

func (m *Metrics) observe(r *Report) {
	if m == nil || r == nil {
		return
	}
	m.Runs.Inc()
	for _, so := range r.Outcomes {
		m.SourceOutcomes.WithLabelValues(so.Outcome.Kind.String()).Inc()
	}
	m.Results.Observe(float64(len(r.Results)))
	if r.RenderUsed {
		m.RenderFallback.Inc()
	}
}
