package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/opportunity-finder/internal/ai"
	"github.com/david/opportunity-finder/internal/discovery"
	"github.com/david/opportunity-finder/internal/models"
)

type fakeSearcher struct {
	results []discovery.RawOpportunity
	sources []discovery.Source
	queries []discovery.Query
}

func (f *fakeSearcher) Run(_ context.Context, q discovery.Query) *discovery.Report {
	f.queries = append(f.queries, q)
	return &discovery.Report{RunID: "run-1", Query: q, Results: f.results}
}

func (f *fakeSearcher) Sources(q discovery.Query) []discovery.Source {
	f.queries = append(f.queries, q)
	return f.sources
}

type fakeExtractor struct {
	params ai.SearchParams
	got    string
}

func (f *fakeExtractor) ExtractParameters(_ context.Context, message string) ai.SearchParams {
	f.got = message
	return f.params
}

type fakeRuns struct {
	runs  []models.SearchRun
	err   error
	limit int
}

func (f *fakeRuns) RecentRuns(_ context.Context, limit int) ([]models.SearchRun, error) {
	f.limit = limit
	return f.runs, f.err
}

func serve(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := NewServer(Deps{Engine: &fakeSearcher{}})
	rec := serve(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestSearchRequiresKeyword(t *testing.T) {
	engine := &fakeSearcher{}
	s := NewServer(Deps{Engine: engine})

	rec := serve(s, http.MethodGet, "/api/v1/search?keyword=%20%20&type=fellowship", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "keyword is required")
	assert.Empty(t, engine.queries)
}

func TestSearchReturnsResults(t *testing.T) {
	engine := &fakeSearcher{results: []discovery.RawOpportunity{
		{Title: "Climate Fellowship", URL: "https://alpha.example/c", Type: "fellowship"},
	}}
	s := NewServer(Deps{Engine: engine})

	rec := serve(s, http.MethodGet, "/api/v1/search?keyword=climate&type=fellowship&region=Europe", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-1", rec.Header().Get("X-Run-ID"))

	var got []discovery.RawOpportunity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Climate Fellowship", got[0].Title)

	require.Len(t, engine.queries, 1)
	assert.Equal(t, discovery.Query{Keyword: "climate", Category: "fellowship", Region: "Europe"}, engine.queries[0])
}

func TestSearchEmptyResultsEncodeAsArray(t *testing.T) {
	s := NewServer(Deps{Engine: &fakeSearcher{results: []discovery.RawOpportunity{}}})
	rec := serve(s, http.MethodGet, "/api/v1/search?keyword=robotics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestNaturalSearch(t *testing.T) {
	engine := &fakeSearcher{results: []discovery.RawOpportunity{}}
	extractor := &fakeExtractor{params: ai.SearchParams{Keyword: "AI", Type: "scholarship", Region: "Europe"}}
	s := NewServer(Deps{Engine: engine, Params: extractor})

	rec := serve(s, http.MethodPost, "/api/v1/search/natural", `{"message":"AI scholarships in Europe"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AI scholarships in Europe", extractor.got)

	var got naturalSearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "AI", got.Params.Keyword)
	assert.NotNil(t, got.Opportunities)

	require.Len(t, engine.queries, 1)
	assert.Equal(t, discovery.Query{Keyword: "AI", Category: "scholarship", Region: "Europe"}, engine.queries[0])
}

func TestNaturalSearchWithoutExtractorUsesMessage(t *testing.T) {
	engine := &fakeSearcher{}
	s := NewServer(Deps{Engine: engine})

	rec := serve(s, http.MethodPost, "/api/v1/search/natural", `{"message":"ocean research"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, engine.queries, 1)
	assert.Equal(t, "ocean research", engine.queries[0].Keyword)
}

func TestNaturalSearchRejectsBadInput(t *testing.T) {
	s := NewServer(Deps{Engine: &fakeSearcher{}})

	rec := serve(s, http.MethodPost, "/api/v1/search/natural", `{"message":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "message is required")

	rec = serve(s, http.MethodPost, "/api/v1/search/natural", `{"message":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSources(t *testing.T) {
	engine := &fakeSearcher{sources: []discovery.Source{
		{ID: "alpha", Name: "Alpha", Category: discovery.CategoryFellowship, BaseURL: "https://alpha.example", RequiresDynamicRender: true},
	}}
	s := NewServer(Deps{Engine: engine})

	rec := serve(s, http.MethodGet, "/api/v1/sources?type=fellowships", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":"alpha","name":"Alpha","type":"fellowship","url":"https://alpha.example","requires_dynamic_render":true}]`, rec.Body.String())
	assert.Equal(t, "fellowships", engine.queries[0].Category)

	rec = serve(s, http.MethodGet, "/api/v1/sources?type=grant", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecentRuns(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		s := NewServer(Deps{Engine: &fakeSearcher{}})
		rec := serve(s, http.MethodGet, "/api/v1/runs", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("lists runs", func(t *testing.T) {
		runs := &fakeRuns{runs: []models.SearchRun{{ID: uuid.New(), Keyword: "climate", ResultCount: 4}}}
		s := NewServer(Deps{Engine: &fakeSearcher{}, Runs: runs})

		rec := serve(s, http.MethodGet, "/api/v1/runs?limit=5", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 5, runs.limit)
		assert.Contains(t, rec.Body.String(), `"climate"`)
	})

	t.Run("store failure", func(t *testing.T) {
		runs := &fakeRuns{err: errors.New("connection refused")}
		s := NewServer(Deps{Engine: &fakeSearcher{}, Runs: runs})

		rec := serve(s, http.MethodGet, "/api/v1/runs?limit=500", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, 20, runs.limit)
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	discovery.NewMetrics(reg).Runs.Inc()

	s := NewServer(Deps{Engine: &fakeSearcher{}, Gatherer: reg})
	rec := serve(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "discovery_runs_total 1")

	s = NewServer(Deps{Engine: &fakeSearcher{}})
	rec = serve(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
