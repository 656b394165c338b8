package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Query outcomes used as the "outcome" label of hdql_queries_total.
const (
	outcomeOK             = "ok"
	outcomeParseError     = "parse_error"
	outcomeCompileError   = "compile_error"
	outcomeNotFound       = "not_found"
	outcomeExecutionError = "execution_error"
	outcomeCanceled       = "canceled"
)

type metrics struct {
	queries   *prometheus.CounterVec
	duration  prometheus.Histogram
	rows      prometheus.Histogram
	cacheHits prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		queries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hdql_queries_total",
			Help: "Queries executed, by outcome",
		}, []string{"outcome"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "hdql_query_duration_seconds",
			Help:    "Wall-clock time of parse, compile and execute",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		rows: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "hdql_result_rows",
			Help:    "Rows returned per successful query",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
		}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "hdql_parse_cache_hits_total",
			Help: "Parses served from the syntax tree cache",
		}),
	}
}
