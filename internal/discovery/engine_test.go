package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorderFunc func(ctx context.Context, r *Report) error

func (f recorderFunc) RecordRun(ctx context.Context, r *Report) error { return f(ctx, r) }

func TestDiscover_DuplicateAcrossSourcesKeepsFirst(t *testing.T) {
	reg := mustRegistry(t, fellowshipRegistry)
	page := cardPage(card("Climate Fellowship", "https://fellowships.example/climate"))
	fetcher := newFakeFetcher(map[string]fakePage{
		"alpha.example": {body: page},
		"beta.example":  {body: page},
		"gamma.example": {body: cardPage()},
	})

	e := NewEngine(reg, fetcher)
	got := e.Discover(context.Background(), Query{Keyword: "climate", Category: "fellowship"})

	require.Len(t, got, 1)
	assert.Equal(t, "Climate Fellowship", got[0].Title)
	assert.Equal(t, "https://fellowships.example/climate", got[0].URL)
	assert.Equal(t, "Alpha Fellowships", got[0].Source)
	assert.Equal(t, "fellowship", got[0].Type)
	assert.False(t, got[0].IsFallbackPlaceholder)
}

func TestDiscover_BlockedSourceBecomesTrailingPlaceholder(t *testing.T) {
	reg := mustRegistry(t, fellowshipRegistry)
	fetcher := newFakeFetcher(map[string]fakePage{
		"alpha.example": {body: cardPage(card("Climate Fellowship", "/climate"))},
		"beta.example":  {status: 403},
		"gamma.example": {body: cardPage()},
	})

	got := NewEngine(reg, fetcher).Discover(context.Background(), Query{Keyword: "climate", Category: "fellowship"})

	require.Len(t, got, 2)
	assert.Equal(t, "Climate Fellowship", got[0].Title)
	assert.Equal(t, "https://alpha.example/climate", got[0].URL)

	ph := got[1]
	assert.True(t, ph.IsFallbackPlaceholder)
	assert.Equal(t, PlaceholderTitle, ph.Title)
	assert.Equal(t, "https://beta.example", ph.URL)
	assert.Equal(t, "https://beta.example", ph.Organization)
	assert.Equal(t, "fellowship", ph.Type)
	assert.Equal(t, "Beta Programs", ph.Source)
}

func TestDiscover_NoMatchesReturnsEmpty(t *testing.T) {
	reg := mustRegistry(t, fellowshipRegistry)
	page := cardPage(card("Climate Fellowship", "/climate"), card("Ocean Grant", "/ocean"))
	fetcher := newFakeFetcher(map[string]fakePage{
		"alpha.example": {body: page},
		"beta.example":  {body: page},
		"gamma.example": {body: page},
	})

	got := NewEngine(reg, fetcher).Discover(context.Background(), Query{Keyword: "robotics"})

	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestDiscover_AllTimeoutsYieldOnePlaceholderPerDomain(t *testing.T) {
	reg := mustRegistry(t, fellowshipRegistry+`
  - id: alpha_archive
    name: Alpha Archive
    category: fellowship
    base_url: "https://alpha.example"
    search_url: "https://alpha.example/archive"
`)
	slow := fakePage{delay: time.Second}
	fetcher := newFakeFetcher(map[string]fakePage{
		"alpha.example": slow,
		"beta.example":  slow,
		"gamma.example": slow,
	})

	e := NewEngine(reg, fetcher, WithOrchestratorConfig(OrchestratorConfig{FetchTimeout: 20 * time.Millisecond}))
	report := e.Run(context.Background(), Query{Keyword: "climate"})

	assert.Equal(t, 4, report.Outcomes.Count(OutcomeTimeout))
	require.Len(t, report.Results, 3)
	urls := make([]string, 0, len(report.Results))
	for _, r := range report.Results {
		assert.True(t, r.IsFallbackPlaceholder)
		assert.Equal(t, "opportunity", r.Type)
		urls = append(urls, r.URL)
	}
	assert.ElementsMatch(t, []string{"https://alpha.example", "https://beta.example", "https://gamma.example"}, urls)
}

func TestDiscover_SucceededEmptySourcesAddNoPlaceholder(t *testing.T) {
	reg := mustRegistry(t, fellowshipRegistry)
	fetcher := newFakeFetcher(map[string]fakePage{
		"alpha.example": {body: cardPage()},
		"beta.example":  {err: errors.New("connection reset")},
		"gamma.example": {body: cardPage()},
	})

	got := NewEngine(reg, fetcher).Discover(context.Background(), Query{Keyword: "climate"})

	require.Len(t, got, 1)
	assert.Equal(t, "https://beta.example", got[0].URL)
	assert.True(t, got[0].IsFallbackPlaceholder)
}

func TestDiscover_IsIdempotent(t *testing.T) {
	reg := mustRegistry(t, fellowshipRegistry)
	fetcher := newFakeFetcher(map[string]fakePage{
		"alpha.example": {body: cardPage(card("Climate Fellowship", "/a"), card("Climate Leaders", "/b"))},
		"beta.example":  {body: cardPage(card("Climate Research Grant", "/c"))},
		"gamma.example": {status: 429},
	})
	e := NewEngine(reg, fetcher)
	q := Query{Keyword: "climate", Category: "fellowships"}

	first := e.Discover(context.Background(), q)
	second := e.Discover(context.Background(), q)

	require.Len(t, first, 4)
	assert.Equal(t, first, second)
}

func TestDiscover_CapsResults(t *testing.T) {
	reg := mustRegistry(t, fellowshipRegistry)
	var cards []string
	for i := 0; i < 10; i++ {
		cards = append(cards, card("Climate Fellowship "+string(rune('A'+i)), "/f/"+string(rune('a'+i))))
	}
	page := cardPage(cards...)
	fetcher := newFakeFetcher(map[string]fakePage{
		"alpha.example": {body: page},
		"beta.example":  {body: page},
		"gamma.example": {body: page},
	})

	got := NewEngine(reg, fetcher).Discover(context.Background(), Query{Keyword: "climate"})
	assert.Len(t, got, MaxResults)

	got = NewEngine(reg, fetcher, WithMaxResults(5)).Discover(context.Background(), Query{Keyword: "climate"})
	assert.Len(t, got, 5)
}

func TestDiscover_RegionFilter(t *testing.T) {
	reg := mustRegistry(t, `
sources:
  - id: alpha
    name: Alpha Fellowships
    category: fellowship
    base_url: "https://alpha.example"
    search_url: "https://alpha.example/search"
    location: Brazil
  - id: beta
    name: Beta Programs
    category: fellowship
    base_url: "https://beta.example"
    search_url: "https://beta.example/programs"
`)
	page := cardPage(card("Climate Fellowship", "/climate"))
	fetcher := newFakeFetcher(map[string]fakePage{
		"alpha.example": {body: page},
		"beta.example":  {body: page},
	})

	got := NewEngine(reg, fetcher).Discover(context.Background(), Query{Keyword: "climate", Region: "brazil"})

	require.Len(t, got, 1)
	assert.Equal(t, "Alpha Fellowships", got[0].Source)
	assert.Equal(t, "Brazil", got[0].Location)
}

func TestEngineSources_AcceleratorQueryUsesAcceleratorCatalog(t *testing.T) {
	reg, err := LoadRegistry()
	require.NoError(t, err)

	e := NewEngine(reg, newFakeFetcher(nil), WithMaxSources(0))
	sources := e.Sources(Query{Category: "accelerator"})

	require.NotEmpty(t, sources)
	ids := make(map[string]bool)
	for _, s := range sources {
		ids[s.ID] = true
		assert.True(t, s.Category == CategoryAccelerator || s.Additional, "unexpected source %s", s.ID)
		assert.False(t, s.Denylisted)
	}
	assert.True(t, ids["f6s_programs"])
	assert.True(t, ids["station_f"])
	assert.False(t, ids["techcrunch_disrupt"])
	assert.False(t, ids["wemakescholars"])
}

func TestEngineSources_MaxSourcesAndBlockedDomains(t *testing.T) {
	reg := mustRegistry(t, fellowshipRegistry)

	e := NewEngine(reg, newFakeFetcher(nil), WithMaxSources(2))
	assert.Len(t, e.Sources(Query{}), 2)

	e = NewEngine(reg, newFakeFetcher(nil), WithBlockedDomains([]string{"*.beta.example", "gamma.example"}))
	sources := e.Sources(Query{})
	require.Len(t, sources, 1)
	assert.Equal(t, "alpha", sources[0].ID)
}

func TestDiscover_DenylistedSourceNeverFetched(t *testing.T) {
	reg := mustRegistry(t, `
sources:
  - id: alpha
    name: Alpha Fellowships
    category: fellowship
    base_url: "https://alpha.example"
    search_url: "https://alpha.example/search"
  - id: beta
    name: Beta Programs
    category: fellowship
    base_url: "https://beta.example"
    search_url: "https://beta.example/programs"
    denylisted: true
`)
	fetcher := newFakeFetcher(map[string]fakePage{
		"alpha.example": {body: cardPage(card("Climate Fellowship", "/climate"))},
		"beta.example":  {status: 403},
	})

	got := NewEngine(reg, fetcher).Discover(context.Background(), Query{Keyword: "climate"})

	require.Len(t, got, 1)
	assert.False(t, got[0].IsFallbackPlaceholder)
	assert.Equal(t, 1, fetcher.callCount())
}

const dynamicRegistry = `
sources:
  - id: one
    name: One
    category: accelerator
    base_url: "https://one.example"
    search_url: "https://one.example/programs"
    requires_dynamic_render: true
    selectors:
      container: ".program-card"
      title: ".program-name"
  - id: two
    name: Two
    category: accelerator
    base_url: "https://two.example"
    search_url: "https://two.example/programs"
    requires_dynamic_render: true
  - id: three
    name: Three
    category: accelerator
    base_url: "https://three.example"
    search_url: "https://three.example/programs"
    requires_dynamic_render: true
  - id: four
    name: Four
    category: accelerator
    base_url: "https://four.example"
    search_url: "https://four.example/programs"
    requires_dynamic_render: true
`

func TestDiscover_RenderTierRunsWhenNothingExtracted(t *testing.T) {
	reg := mustRegistry(t, dynamicRegistry)
	empty := fakePage{body: `<html><body><div id="app"></div></body></html>`}
	fetcher := newFakeFetcher(map[string]fakePage{
		"one.example":   empty,
		"two.example":   empty,
		"three.example": empty,
		"four.example":  empty,
	})
	renderer := &fakeRenderer{markup: `<html><body>
		<div class="program-card"><span class="program-name">Climate Accelerator</span><a href="https://one.example/climate">More</a></div>
	</body></html>`}

	e := NewEngine(reg, fetcher, WithRenderer(renderer, 0))
	report := e.Run(context.Background(), Query{Keyword: "climate", Category: "accelerator"})

	assert.True(t, report.RenderUsed)
	assert.Len(t, renderer.urls, DefaultRenderURLs)
	assert.Equal(t, "https://one.example/programs?q=climate", renderer.urls[0])
	require.Len(t, report.Results, 1)
	assert.Equal(t, "Climate Accelerator", report.Results[0].Title)
	assert.Equal(t, "https://one.example/climate", report.Results[0].URL)
	assert.Equal(t, "accelerator", report.Results[0].Type)
}

func TestDiscover_RenderTierWithoutCategoryConsidersUnscheduledSources(t *testing.T) {
	reg, err := LoadRegistry()
	require.NoError(t, err)
	renderer := &fakeRenderer{markup: `<html><body></body></html>`}

	e := NewEngine(reg, newFakeFetcher(nil), WithRenderer(renderer, 0))
	scheduled := e.Sources(Query{Keyword: "climate"})
	require.Len(t, scheduled, DefaultMaxSources)
	for _, s := range scheduled {
		require.False(t, s.RequiresDynamicRender, s.ID)
	}

	report := e.Run(context.Background(), Query{Keyword: "climate"})

	assert.True(t, report.RenderUsed)
	require.Len(t, renderer.urls, DefaultRenderURLs)
	for _, u := range renderer.urls {
		var dynamic bool
		for _, s := range reg.Sources {
			if s.RequiresDynamicRender && !s.Additional && s.BuildSearchURL("climate") == u {
				dynamic = true
			}
		}
		assert.True(t, dynamic, u)
	}
}

func TestDiscover_RenderTierSkippedWhenRecordsFound(t *testing.T) {
	reg := mustRegistry(t, dynamicRegistry)
	fetcher := newFakeFetcher(map[string]fakePage{
		"one.example": {body: cardPage(card("Climate Accelerator", "/climate"))},
	})
	renderer := &fakeRenderer{}

	report := NewEngine(reg, fetcher, WithRenderer(renderer, 0)).Run(context.Background(), Query{Keyword: "climate"})

	assert.False(t, report.RenderUsed)
	assert.Empty(t, renderer.urls)
	require.NotEmpty(t, report.Results)
	assert.Equal(t, "Climate Accelerator", report.Results[0].Title)
}

func TestRun_RecordsMetricsAndReport(t *testing.T) {
	reg := mustRegistry(t, fellowshipRegistry)
	fetcher := newFakeFetcher(map[string]fakePage{
		"alpha.example": {body: cardPage(card("Climate Fellowship", "/climate"))},
		"beta.example":  {status: 403},
		"gamma.example": {status: 500},
	})
	promReg := prometheus.NewRegistry()
	metrics := NewMetrics(promReg)

	var recorded *Report
	recorder := recorderFunc(func(_ context.Context, r *Report) error {
		recorded = r
		return errors.New("database unavailable")
	})

	report := NewEngine(reg, fetcher, WithMetrics(metrics), WithRecorder(recorder)).
		Run(context.Background(), Query{Keyword: "climate"})

	require.NotNil(t, recorded)
	assert.Same(t, report, recorded)
	assert.NotEmpty(t, report.RunID)
	assert.Len(t, report.Outcomes, 3)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Runs))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SourceOutcomes.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SourceOutcomes.WithLabelValues("blocked")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.SourceOutcomes.WithLabelValues("error")))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.RenderFallback))
}
