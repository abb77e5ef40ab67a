// Package metrics defines the Prometheus instruments of the research pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "research"
	subsystem = "pipeline"
)

// Metrics holds pipeline instruments. A nil *Metrics records nothing.
type Metrics struct {
	queryRuns       *prometheus.CounterVec
	sourceCrawls    *prometheus.CounterVec
	documentsScored *prometheus.CounterVec
	resultsStored   prometheus.Counter
	runDuration     prometheus.Histogram
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		queryRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "query_runs_total",
			Help:      "Query runs by outcome.",
		}, []string{"outcome"}),
		sourceCrawls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "source_crawls_total",
			Help:      "Per-source search attempts by outcome.",
		}, []string{"outcome"}),
		documentsScored: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "documents_scored_total",
			Help:      "Model scoring calls by outcome.",
		}, []string{"outcome"}),
		resultsStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "results_stored_total",
			Help:      "Results persisted as current.",
		}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "query_run_duration_seconds",
			Help:      "Wall time of a query run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (m *Metrics) QueryRun(ok bool, seconds float64) {
	if m == nil {
		return
	}
	m.queryRuns.WithLabelValues(outcome(ok)).Inc()
	m.runDuration.Observe(seconds)
}

func (m *Metrics) SourceCrawl(ok bool) {
	if m == nil {
		return
	}
	m.sourceCrawls.WithLabelValues(outcome(ok)).Inc()
}

func (m *Metrics) DocumentScored(ok bool) {
	if m == nil {
		return
	}
	m.documentsScored.WithLabelValues(outcome(ok)).Inc()
}

func (m *Metrics) ResultsStored(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.resultsStored.Add(float64(n))
}
