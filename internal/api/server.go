package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/david/opportunity-finder/internal/ai"
	"github.com/david/opportunity-finder/internal/discovery"
	"github.com/david/opportunity-finder/internal/models"
)

// Searcher runs discovery queries.
type Searcher interface {
	Run(ctx context.Context, q discovery.Query) *discovery.Report
	Sources(q discovery.Query) []discovery.Source
}

// ParamExtractor turns a chat message into search parameters.
type ParamExtractor interface {
	ExtractParameters(ctx context.Context, message string) ai.SearchParams
}

// RunLister reads the run log.
type RunLister interface {
	RecentRuns(ctx context.Context, limit int) ([]models.SearchRun, error)
}

// Deps are the collaborators of the HTTP server. Params, Runs and Gatherer
// are optional.
type Deps struct {
	Engine   Searcher
	Params   ParamExtractor
	Runs     RunLister
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
	// SearchTimeout bounds one search request; zero means no extra bound.
	SearchTimeout time.Duration
}

type Server struct {
	Echo *echo.Echo

	engine        Searcher
	params        ParamExtractor
	runs          RunLister
	logger        *zap.Logger
	searchTimeout time.Duration
}

func NewServer(deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		Echo:          e,
		engine:        deps.Engine,
		params:        deps.Params,
		runs:          deps.Runs,
		logger:        logger,
		searchTimeout: deps.SearchTimeout,
	}

	s.routes(deps.Gatherer)
	return s
}

func (s *Server) routes(gatherer prometheus.Gatherer) {
	s.Echo.GET("/health", s.handleHealth)
	if gatherer != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := s.Echo.Group("/api/v1")
	api.GET("/sources", s.handleGetSources)
	api.GET("/search", s.handleSearch)
	api.POST("/search/natural", s.handleNaturalSearch)
	api.GET("/runs", s.handleRecentRuns)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

type sourceView struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Type                  string `json:"type"`
	URL                   string `json:"url"`
	RequiresDynamicRender bool   `json:"requires_dynamic_render"`
}

func (s *Server) handleGetSources(c echo.Context) error {
	typ := c.QueryParam("type")
	if typ != "" {
		if _, ok := discovery.ParseCategory(typ); !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "type must be scholarship, fellowship or accelerator"})
		}
	}

	sources := s.engine.Sources(discovery.Query{Category: typ})
	out := make([]sourceView, 0, len(sources))
	for _, src := range sources {
		out = append(out, sourceView{
			ID:                    src.ID,
			Name:                  src.Name,
			Type:                  string(src.Category),
			URL:                   src.BaseURL,
			RequiresDynamicRender: src.RequiresDynamicRender,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleSearch(c echo.Context) error {
	q := discovery.Query{
		Keyword:  c.QueryParam("keyword"),
		Category: c.QueryParam("type"),
		Region:   c.QueryParam("region"),
	}.Normalize()
	if q.Keyword == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "keyword is required"})
	}

	report := s.run(c, q)
	c.Response().Header().Set("X-Run-ID", report.RunID)
	return c.JSON(http.StatusOK, report.Results)
}

type naturalSearchRequest struct {
	Message string `json:"message"`
}

type naturalSearchResponse struct {
	RunID         string                     `json:"run_id"`
	Params        ai.SearchParams            `json:"params"`
	Opportunities []discovery.RawOpportunity `json:"opportunities"`
}

func (s *Server) handleNaturalSearch(c echo.Context) error {
	var req naturalSearchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "message is required"})
	}

	params := ai.SearchParams{Keyword: req.Message}
	if s.params != nil {
		params = s.params.ExtractParameters(c.Request().Context(), req.Message)
	}

	report := s.run(c, discovery.Query{
		Keyword:  params.Keyword,
		Category: params.Type,
		Region:   params.Region,
	})
	return c.JSON(http.StatusOK, naturalSearchResponse{
		RunID:         report.RunID,
		Params:        params,
		Opportunities: report.Results,
	})
}

func (s *Server) run(c echo.Context, q discovery.Query) *discovery.Report {
	ctx := c.Request().Context()
	if s.searchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.searchTimeout)
		defer cancel()
	}
	return s.engine.Run(ctx, q)
}

func (s *Server) handleRecentRuns(c echo.Context) error {
	if s.runs == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run log not configured"})
	}
	limit := 20
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	runs, err := s.runs.RecentRuns(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) Start(addr string) error {
	return s.Echo.Start(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}
