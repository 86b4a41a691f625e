package discovery

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

const (
	// MaxRecordsPerSource caps what one source can contribute before filtering.
	MaxRecordsPerSource = 10
	// maxGenericCandidates bounds how many heuristic matches the generic strategy scans.
	maxGenericCandidates = 20
	maxEligibilityLen    = 200
)

// ExtractInput is everything a strategy needs to parse one fetched page.
type ExtractInput struct {
	Doc     *goquery.Document
	PageURL string
	Source  Source
	Keyword string
	// Category is the requested category, empty when none was given.
	Category string
}

// ExtractionStrategy turns a parsed listing page into records.
type ExtractionStrategy interface {
	Name() string
	Extract(in ExtractInput) []RawOpportunity
}

// StrategyRegistry maps source domains to strategies, with a generic default.
type StrategyRegistry struct {
	strategies map[string]ExtractionStrategy
	fallback   ExtractionStrategy
	logger     *zap.Logger
}

// NewStrategyRegistry creates a registry that uses fallback for unknown domains.
func NewStrategyRegistry(fallback ExtractionStrategy, logger *zap.Logger) *StrategyRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StrategyRegistry{
		strategies: make(map[string]ExtractionStrategy),
		fallback:   fallback,
		logger:     logger,
	}
}

// Register binds a strategy to a domain such as "f6s.com".
func (r *StrategyRegistry) Register(domain string, strategy ExtractionStrategy) {
	r.strategies[strings.TrimPrefix(strings.ToLower(domain), "www.")] = strategy
}

// For returns the strategy for a domain, trying parent domains before the fallback.
func (r *StrategyRegistry) For(domain string) ExtractionStrategy {
	d := strings.TrimPrefix(strings.ToLower(domain), "www.")
	for d != "" {
		if s, ok := r.strategies[d]; ok {
			return s
		}
		i := strings.IndexByte(d, '.')
		if i < 0 {
			break
		}
		d = d[i+1:]
	}
	return r.fallback
}

// NewDefaultStrategies returns the generic strategy plus every site strategy.
func NewDefaultStrategies(logger *zap.Logger) *StrategyRegistry {
	r := NewStrategyRegistry(GenericStrategy{}, logger)
	for domain, s := range siteStrategies {
		r.Register(domain, s)
	}
	return r
}

// Extract dispatches on the source's domain. It never panics; a broken
// document yields no records.
func (r *StrategyRegistry) Extract(in ExtractInput) (out []RawOpportunity) {
	if in.Doc == nil {
		return nil
	}
	strategy := r.For(in.Source.Domain())
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("extraction aborted",
				zap.String("source", in.Source.ID),
				zap.String("strategy", strategy.Name()),
				zap.Any("panic", rec))
			out = nil
		}
	}()
	out = strategy.Extract(in)
	if len(out) > MaxRecordsPerSource {
		out = out[:MaxRecordsPerSource]
	}
	return out
}

// ParseDocument parses an HTML body.
func ParseDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// collect runs build over candidate items, applying the keyword pre-filter,
// the required-field check and the per-source cap. scanLimit <= 0 scans all items.
func collect(in ExtractInput, items *goquery.Selection, scanLimit int, build func(*goquery.Selection) RawOpportunity) []RawOpportunity {
	var out []RawOpportunity
	items.EachWithBreak(func(i int, item *goquery.Selection) bool {
		if scanLimit > 0 && i >= scanLimit {
			return false
		}
		rec, ok := safeBuild(item, build)
		if !ok {
			return true
		}
		if in.Keyword != "" && rec.Title != "" && !containsFold(rec.Title, in.Keyword) {
			return true
		}
		if !rec.Valid() {
			return true
		}
		out = append(out, rec)
		return len(out) < MaxRecordsPerSource
	})
	return out
}

// safeBuild isolates a failure on one element from its siblings.
func safeBuild(item *goquery.Selection, build func(*goquery.Selection) RawOpportunity) (rec RawOpportunity, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return build(item), true
}

// recordType is the type assigned when a strategy has no fixed one.
func recordType(category string) string {
	if category != "" {
		return category
	}
	return "opportunity"
}
