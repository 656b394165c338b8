// Package engine is the query facade: parse, compile and execute with
// timing, caching and metrics.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"

	"hdql/internal/ast"
	"hdql/internal/executor"
	"hdql/internal/parser"
	"hdql/internal/plan"
	"hdql/internal/result"
	"hdql/internal/store"
)

// DefaultTopK is the result limit used by Explain and by callers that have
// no preference.
const DefaultTopK = 10

// ErrNotVector is returned by Analyze for queries that do not produce
// ranked matches.
var ErrNotVector = errors.New("query does not produce vector matches")

// Engine runs HDQL queries against a store. It is safe for concurrent use;
// each call pins one store snapshot for its whole run.
type Engine struct {
	snapshot  func() store.Store
	parser    *parser.Parser
	cache     *lru.Cache[string, ast.Node]
	cacheSize int
	logger    *slog.Logger
	registry  prometheus.Registerer
	metrics   *metrics
	extra     []string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLive reads a fresh snapshot from live for every query, overriding
// the store passed to New.
func WithLive(live *store.Live) Option {
	return func(e *Engine) {
		e.snapshot = func() store.Store { return live.Snapshot() }
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRegistry registers the engine's metrics with reg. Without it metrics
// go to a private registry.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.registry = reg }
}

// WithParseCacheSize caches up to n parsed queries. 0 disables the cache.
func WithParseCacheSize(n int) Option {
	return func(e *Engine) { e.cacheSize = n }
}

// WithEntityTypes accepts extra entity type tags in queries.
func WithEntityTypes(types ...string) Option {
	return func(e *Engine) { e.extra = append(e.extra, types...) }
}

// New returns an engine over st.
func New(st store.Store, opts ...Option) *Engine {
	e := &Engine{
		snapshot:  func() store.Store { return st },
		cacheSize: 256,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.parser = parser.New(parser.WithEntityTypes(e.extra...))
	if e.registry == nil {
		e.registry = prometheus.NewRegistry()
	}
	e.metrics = newMetrics(e.registry)
	if e.cacheSize > 0 {
		if c, err := lru.New[string, ast.Node](e.cacheSize); err == nil {
			e.cache = c
		}
	}
	return e
}

// Store returns the snapshot the next query would run against.
func (e *Engine) Store() store.Store { return e.snapshot() }

// EntityTypes returns the type tags queries may use.
func (e *Engine) EntityTypes() []string { return e.parser.EntityTypes() }

// Parse parses query without executing it.
func (e *Engine) Parse(query string) (ast.Node, error) {
	if e.cache != nil {
		if n, ok := e.cache.Get(query); ok {
			e.metrics.cacheHits.Inc()
			return n, nil
		}
	}
	n, err := e.parser.Parse(query)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Add(query, n)
	}
	return n, nil
}

// Plan parses and compiles query against the current snapshot.
func (e *Engine) Plan(query string, topK int) (*plan.Plan, error) {
	return e.compile(e.snapshot(), query, topK)
}

func (e *Engine) compile(st store.Store, query string, topK int) (*plan.Plan, error) {
	n, err := e.Parse(query)
	if err != nil {
		return nil, err
	}
	opts := []plan.Option{plan.WithEntityTypes(e.parser.EntityTypes()...)}
	if est, ok := st.(plan.CardinalityEstimator); ok {
		opts = append(opts, plan.WithCardinality(est))
	}
	return plan.Compile(n, topK, opts...)
}

// Explain renders the plan for query without executing it.
func (e *Engine) Explain(query string) (string, error) {
	p, err := e.Plan(query, DefaultTopK)
	if err != nil {
		return "", err
	}
	return p.Explain(), nil
}

// Execute parses, compiles and runs query, returning at most topK rows.
// The result carries a fresh query id and the wall-clock time of the
// whole call. ctx is checked between stages.
func (e *Engine) Execute(ctx context.Context, query string, topK int, verbose bool) (result.Result, error) {
	start := time.Now()
	id := uuid.NewString()
	st := e.snapshot()

	res, err := e.execute(ctx, st, query, topK, verbose)
	elapsed := time.Since(start)
	e.metrics.duration.Observe(elapsed.Seconds())
	outcome := classify(err)
	e.metrics.queries.WithLabelValues(outcome).Inc()

	if err != nil {
		e.logger.Warn("query failed", "query_id", id, "query", query, "outcome", outcome, "error", err)
		return nil, err
	}
	ms := float64(elapsed.Microseconds()) / 1000
	res = res.WithTiming(id, ms)
	e.metrics.rows.Observe(float64(res.Len()))
	e.logger.Debug("query executed",
		"query_id", id,
		"kind", res.Kind(),
		"rows", res.Len(),
		"duration_ms", ms,
	)
	return res, nil
}

func (e *Engine) execute(ctx context.Context, st store.Store, query string, topK int, verbose bool) (result.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := e.compile(st, query, topK)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("query planned", "ops", len(p.Operations), "cost", p.EstimatedCost)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return executor.New(st).ExecutePlan(p, verbose)
}

// Analyze runs query and summarises its matches.
func (e *Engine) Analyze(ctx context.Context, query string, topK int, opts result.AnalyzeOptions) (*result.AnalysisResult, error) {
	start := time.Now()
	res, err := e.Execute(ctx, query, topK, false)
	if err != nil {
		return nil, err
	}
	vr, ok := res.(*result.VectorQueryResult)
	if !ok {
		return nil, fmt.Errorf("analyze %q: %w", query, ErrNotVector)
	}
	ar := result.Analyze(vr, opts)
	ar.QueryID = vr.QueryID
	ar.ExecutionTimeMS = float64(time.Since(start).Microseconds()) / 1000
	return ar, nil
}

func classify(err error) string {
	var (
		pe *parser.ParseError
		ce *plan.CompilationError
		nf *executor.EntityNotFoundError
	)
	switch {
	case err == nil:
		return outcomeOK
	case errors.As(err, &pe):
		return outcomeParseError
	case errors.As(err, &ce):
		return outcomeCompileError
	case errors.As(err, &nf):
		return outcomeNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeCanceled
	}
	return outcomeExecutionError
}
