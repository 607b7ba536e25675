package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collector for the Recall engine
type Collector struct {
	// Graph size metrics
	GraphEntities prometheus.Gauge
	GraphFacts    prometheus.Gauge

	// Lifecycle metrics
	FactTouches     prometheus.Counter
	DecayPasses     prometheus.Counter
	DecayCandidates prometheus.Counter

	// Request metrics
	RequestCount *prometheus.CounterVec

	// Traversal metrics
	TraversalDuration prometheus.Histogram

	gatherer prometheus.Gatherer
}

// NewCollector creates a new metrics collector registered on reg. A nil
// reg falls back to the process-default registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	gatherer := prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{
		GraphEntities: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "recall_graph_entities",
				Help: "Entities currently stored in the memory graph",
			},
		),

		GraphFacts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "recall_graph_facts",
				Help: "Facts currently stored in the memory graph",
			},
		),

		FactTouches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "recall_fact_touches_total",
				Help: "Total fact access recordings",
			},
		),

		DecayPasses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "recall_decay_passes_total",
				Help: "Total relevance decay sweeps",
			},
		),

		DecayCandidates: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "recall_decay_candidates_total",
				Help: "Total cleanup candidates reported by decay sweeps",
			},
		),

		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recall_http_requests_total",
				Help: "Total HTTP requests served",
			},
			[]string{"method", "endpoint", "status"},
		),

		TraversalDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "recall_traversal_duration_seconds",
				Help:    "Graph traversal duration in seconds",
				Buckets: []float64{.000001, .00001, .0001, .001, .01, .1, 1},
			},
		),

		gatherer: gatherer,
	}

	// Register all metrics
	reg.MustRegister(c.GraphEntities)
	reg.MustRegister(c.GraphFacts)
	reg.MustRegister(c.FactTouches)
	reg.MustRegister(c.DecayPasses)
	reg.MustRegister(c.DecayCandidates)
	reg.MustRegister(c.RequestCount)
	reg.MustRegister(c.TraversalDuration)

	return c
}

// SetGraphSize updates the entity and fact gauges
func (c *Collector) SetGraphSize(entities, facts int) {
	c.GraphEntities.Set(float64(entities))
	c.GraphFacts.Set(float64(facts))
}

// FactTouched records one fact access
func (c *Collector) FactTouched() {
	c.FactTouches.Inc()
}

// DecayPassCompleted records one decay sweep and its candidate count
func (c *Collector) DecayPassCompleted(candidates int) {
	c.DecayPasses.Inc()
	c.DecayCandidates.Add(float64(candidates))
}

// ObserveTraversal records the duration of one graph traversal
func (c *Collector) ObserveTraversal(seconds float64) {
	c.TraversalDuration.Observe(seconds)
}

// Handler returns HTTP handler for metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
