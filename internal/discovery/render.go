package discovery

import (
	"context"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// DefaultRenderURLs caps how many pages the render tier visits.
const DefaultRenderURLs = 3

// ErrRendererDisabled indicates no rendering engine is available.
var ErrRendererDisabled = errors.New("renderer disabled")

// PageRenderer executes a page's scripts and returns the resulting HTML.
// waitSelector is waited for on a best-effort basis.
type PageRenderer interface {
	Render(ctx context.Context, url, waitSelector string) (string, error)
}

// NoopRenderer is used where no browser is available.
type NoopRenderer struct{}

func (NoopRenderer) Render(context.Context, string, string) (string, error) {
	return "", ErrRendererDisabled
}

// RenderTier re-reads script-dependent listing pages through a PageRenderer.
type RenderTier struct {
	renderer PageRenderer
	maxURLs  int
	logger   *zap.Logger
}

// NewRenderTier builds the tier. maxURLs is clamped to 1..DefaultRenderURLs.
func NewRenderTier(renderer PageRenderer, maxURLs int, logger *zap.Logger) *RenderTier {
	if renderer == nil {
		renderer = NoopRenderer{}
	}
	if maxURLs <= 0 || maxURLs > DefaultRenderURLs {
		maxURLs = DefaultRenderURLs
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RenderTier{renderer: renderer, maxURLs: maxURLs, logger: logger}
}

// Fallback renders up to maxURLs pages and extracts the container elements
// named by selectors. A page that fails contributes nothing.
func (t *RenderTier) Fallback(ctx context.Context, urls []string, selectors SelectorConfig, category, keyword string) []RawOpportunity {
	if len(urls) > t.maxURLs {
		urls = urls[:t.maxURLs]
	}
	var out []RawOpportunity
	for _, u := range urls {
		out = append(out, t.renderOne(ctx, u, selectors, category, keyword)...)
	}
	return out
}

func (t *RenderTier) renderOne(ctx context.Context, pageURL string, selectors SelectorConfig, category, keyword string) (out []RawOpportunity) {
	log := t.logger.With(zap.String("url", pageURL))
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("render extraction panicked", zap.Any("panic", rec))
			out = nil
		}
	}()

	markup, err := t.renderer.Render(ctx, pageURL, selectors.Container)
	if err != nil {
		log.Info("render failed", zap.Error(err))
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		log.Info("rendered page unparsable", zap.Error(err))
		return nil
	}
	if selectors.Container == "" {
		return nil
	}

	in := ExtractInput{
		Doc:      doc,
		PageURL:  pageURL,
		Source:   Source{Selectors: selectors},
		Keyword:  keyword,
		Category: category,
	}
	return collect(in, doc.Find(selectors.Container), 0, func(item *goquery.Selection) RawOpportunity {
		return genericRecord(in, item)
	})
}

// renderCandidates returns the search URLs and the first selector set of the
// catalog sources that need script execution. Additional sources are skipped.
// Candidates come from all requested sources, not just the scheduled ones.
func renderCandidates(sources []Source, keyword string) ([]string, SelectorConfig, bool) {
	var urls []string
	var selectors SelectorConfig
	found := false
	for _, s := range sources {
		if !s.RequiresDynamicRender || s.Additional {
			continue
		}
		if !found {
			selectors = s.Selectors
			found = true
		}
		urls = append(urls, s.BuildSearchURL(keyword))
	}
	return urls, selectors, found
}
