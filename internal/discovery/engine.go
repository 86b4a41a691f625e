package discovery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxSources caps how many catalog sources one run schedules.
const DefaultMaxSources = 10

const recordTimeout = 5 * time.Second

// Report describes one discovery run.
type Report struct {
	RunID      string
	Query      Query
	StartedAt  time.Time
	Duration   time.Duration
	Outcomes   Outcomes
	RenderUsed bool
	Results    []RawOpportunity
}

// RunRecorder persists finished runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, r *Report) error
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithRecorder(r RunRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithRenderer enables the render tier. maxURLs <= 0 means DefaultRenderURLs.
func WithRenderer(r PageRenderer, maxURLs int) Option {
	return func(e *Engine) {
		e.renderer = r
		e.renderURLs = maxURLs
	}
}

// WithBlockedDomains adds domain patterns that are never fetched.
func WithBlockedDomains(patterns []string) Option {
	return func(e *Engine) { e.blocked = append(e.blocked, patterns...) }
}

// WithMaxSources caps scheduled sources per run; 0 disables the cap.
func WithMaxSources(n int) Option {
	return func(e *Engine) { e.maxSources = n }
}

// WithMaxResults caps the returned list; values outside 1..MaxResults are ignored.
func WithMaxResults(n int) Option {
	return func(e *Engine) {
		if n > 0 && n <= MaxResults {
			e.maxResults = n
		}
	}
}

func WithOrchestratorConfig(cfg OrchestratorConfig) Option {
	return func(e *Engine) { e.orchCfg = cfg }
}

func WithStrategies(s *StrategyRegistry) Option {
	return func(e *Engine) { e.strategies = s }
}

// Engine runs a query against the catalog and assembles the final list.
type Engine struct {
	registry     *Registry
	fetcher      Fetcher
	orchestrator *Orchestrator
	renderTier   *RenderTier

	logger     *zap.Logger
	metrics    *Metrics
	recorder   RunRecorder
	renderer   PageRenderer
	renderURLs int
	blocked    []string
	maxSources int
	maxResults int
	orchCfg    OrchestratorConfig
	strategies *StrategyRegistry
}

// NewEngine wires the registry and fetcher into a ready engine.
func NewEngine(reg *Registry, fetcher Fetcher, opts ...Option) *Engine {
	e := &Engine{
		registry:   reg,
		fetcher:    fetcher,
		logger:     zap.NewNop(),
		maxSources: DefaultMaxSources,
		maxResults: MaxResults,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.strategies == nil {
		e.strategies = NewDefaultStrategies(e.logger)
	}
	e.orchestrator = NewOrchestrator(fetcher, e.strategies, e.orchCfg, e.logger)
	e.renderTier = NewRenderTier(e.renderer, e.renderURLs, e.logger)
	return e
}

// Discover returns at most 20 ranked opportunities for q. It never fails;
// unusable sources surface as placeholders or are omitted.
func (e *Engine) Discover(ctx context.Context, q Query) []RawOpportunity {
	return e.Run(ctx, q).Results
}

// Sources returns the sources a query would schedule.
func (e *Engine) Sources(q Query) []Source {
	sources := e.requested(q)
	if e.maxSources > 0 && len(sources) > e.maxSources {
		sources = sources[:e.maxSources]
	}
	return sources
}

// requested returns every allowed source of the query's categories, before the
// maxSources cap.
func (e *Engine) requested(q Query) []Source {
	q = q.Normalize()
	return FilterDenylisted(e.registry.SourcesFor(q.category()), e.blocked)
}

// Run executes a query and returns the full report.
func (e *Engine) Run(ctx context.Context, q Query) *Report {
	q = q.Normalize()
	report := &Report{
		RunID:     uuid.NewString(),
		Query:     q,
		StartedAt: time.Now(),
	}
	log := e.logger.With(zap.String("run_id", report.RunID))
	typ := q.typeFilter()

	sources := e.Sources(q)
	log.Info("discovery started",
		zap.String("keyword", q.Keyword),
		zap.String("type", typ),
		zap.String("region", q.Region),
		zap.Int("sources", len(sources)))

	report.Outcomes = e.orchestrator.FetchAll(ctx, sources, q.Keyword, typ)
	records := report.Outcomes.Records()

	if len(records) == 0 {
		if urls, selectors, ok := renderCandidates(e.requested(q), q.Keyword); ok {
			report.RenderUsed = true
			log.Info("no records extracted, trying rendered pages", zap.Int("candidates", len(urls)))
			records = e.renderTier.Fallback(ctx, urls, selectors, typ, q.Keyword)
		}
	}

	results := Filter(records, q.Keyword, typ, q.Region)
	results = append(results, blockedPlaceholders(report.Outcomes, typ)...)
	results = Truncate(Rank(Dedup(results), q.Keyword), e.maxResults)
	if len(results) == 0 {
		results = Truncate(Rank(Dedup(unreachablePlaceholders(report.Outcomes, typ)), q.Keyword), e.maxResults)
	}
	if results == nil {
		results = []RawOpportunity{}
	}
	report.Results = results
	report.Duration = time.Since(report.StartedAt)

	log.Info("discovery finished",
		zap.Int("results", len(results)),
		zap.Int("blocked", report.Outcomes.Count(OutcomeBlocked)),
		zap.Int("timeouts", report.Outcomes.Count(OutcomeTimeout)),
		zap.Int("errors", report.Outcomes.Count(OutcomeError)),
		zap.Duration("elapsed", report.Duration))

	e.metrics.observe(report)
	if e.recorder != nil {
		// The caller's deadline may already have passed; the log write gets its own.
		recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		if err := e.recorder.RecordRun(recCtx, report); err != nil {
			log.Warn("failed to record run", zap.Error(err))
		}
		cancel()
	}
	return report
}
