package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers      = 5
	DefaultFetchTimeout = 15 * time.Second
)

var errBatchBound = errors.New("batch time bound reached before the fetch completed")

// OrchestratorConfig sizes the fetch worker pool.
type OrchestratorConfig struct {
	Workers      int
	FetchTimeout time.Duration
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	return c
}

// Orchestrator fetches and extracts a batch of sources on a bounded pool.
// Every source gets its own outcome; one failure never affects another.
type Orchestrator struct {
	fetcher    Fetcher
	strategies *StrategyRegistry
	cfg        OrchestratorConfig
	logger     *zap.Logger
}

// NewOrchestrator wires a fetcher to the extraction strategies.
func NewOrchestrator(fetcher Fetcher, strategies *StrategyRegistry, cfg OrchestratorConfig, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strategies == nil {
		strategies = NewDefaultStrategies(logger)
	}
	return &Orchestrator{
		fetcher:    fetcher,
		strategies: strategies,
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

type indexedOutcome struct {
	index   int
	outcome FetchOutcome
}

// FetchAll fetches every source and returns their outcomes in input order.
// The batch waits at most FetchTimeout × len(sources); sources still running
// at that point are reported as timed out.
func (o *Orchestrator) FetchAll(ctx context.Context, sources []Source, keyword, category string) Outcomes {
	outcomes := make(Outcomes, len(sources))
	for i, s := range sources {
		outcomes[i] = SourceOutcome{Source: s, Outcome: TimedOut(s.BuildSearchURL(keyword), errBatchBound)}
	}
	if len(sources) == 0 {
		return outcomes
	}

	batchCtx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout*time.Duration(len(sources)))
	defer cancel()

	results := make(chan indexedOutcome, len(sources))
	var g errgroup.Group
	g.SetLimit(o.cfg.Workers)

	go func() {
		for i, s := range sources {
			g.Go(func() error {
				results <- indexedOutcome{index: i, outcome: o.fetchOne(batchCtx, s, keyword, category)}
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	received := 0
	for {
		select {
		case r, ok := <-results:
			if !ok {
				return outcomes
			}
			outcomes[r.index].Outcome = r.outcome
			received++
		case <-batchCtx.Done():
			received += drainReady(results, outcomes)
			o.logger.Warn("fetch batch bound reached",
				zap.Int("sources", len(sources)),
				zap.Int("completed", received))
			return outcomes
		}
	}
}

// drainReady records the outcomes already waiting in results without blocking.
func drainReady(results <-chan indexedOutcome, outcomes Outcomes) int {
	n := 0
	for {
		select {
		case r, ok := <-results:
			if !ok {
				return n
			}
			outcomes[r.index].Outcome = r.outcome
			n++
		default:
			return n
		}
	}
}

// fetchOne fetches and extracts a single source under its own timeout.
func (o *Orchestrator) fetchOne(ctx context.Context, s Source, keyword, category string) (out FetchOutcome) {
	target := s.BuildSearchURL(keyword)
	log := o.logger.With(zap.String("source", s.ID), zap.String("url", target))

	defer func() {
		if rec := recover(); rec != nil {
			out = Failed(target, fmt.Errorf("panic: %v", rec))
			log.Error("fetch panicked", zap.Any("panic", rec))
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	doc, err := o.fetcher.Fetch(fetchCtx, target)
	if err != nil {
		out = classifyFetchError(target, err)
		log.Info("source not usable",
			zap.Stringer("outcome", out.Kind),
			zap.Int("status", out.StatusCode),
			zap.Error(err))
		return out
	}
	if isBlockingStatus(doc.StatusCode) {
		return BlockedBy(target, doc.StatusCode, "blocking status")
	}

	parsed, err := ParseDocument(doc.Body)
	if err != nil {
		log.Warn("unparsable page", zap.Error(err))
		return Succeeded(target, nil)
	}

	pageURL := doc.URL
	if pageURL == "" {
		pageURL = target
	}
	records := o.strategies.Extract(ExtractInput{
		Doc:      parsed,
		PageURL:  pageURL,
		Source:   s,
		Keyword:  keyword,
		Category: category,
	})
	log.Debug("source extracted",
		zap.Int("records", len(records)),
		zap.Duration("elapsed", time.Since(start)))
	return Succeeded(target, records)
}
