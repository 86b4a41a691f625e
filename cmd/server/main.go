package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/david/opportunity-finder/internal/ai"
	"github.com/david/opportunity-finder/internal/api"
	"github.com/david/opportunity-finder/internal/config"
	"github.com/david/opportunity-finder/internal/db"
	"github.com/david/opportunity-finder/internal/discovery"
	"github.com/david/opportunity-finder/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	registry, err := loadRegistry(cfg.Discovery.SourcesFile)
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []discovery.Option{
		discovery.WithLogger(logger),
		discovery.WithMetrics(discovery.NewMetrics(promReg)),
		discovery.WithBlockedDomains(cfg.Discovery.BlockedDomains),
		discovery.WithMaxSources(cfg.Discovery.MaxSources),
		discovery.WithMaxResults(cfg.Discovery.MaxResults),
		discovery.WithOrchestratorConfig(discovery.OrchestratorConfig{
			Workers:      cfg.Discovery.Workers,
			FetchTimeout: cfg.Discovery.FetchTimeout,
		}),
	}

	if cfg.Render.Enabled {
		renderer, err := discovery.NewChromedpRenderer(discovery.ChromedpConfig{
			UserAgent:      cfg.Discovery.UserAgent,
			MaxConcurrency: cfg.Render.MaxConcurrency,
			PageTimeout:    cfg.Render.Timeout,
			WaitTimeout:    cfg.Render.WaitTimeout,
		}, logger)
		if err != nil {
			logger.Warn("render tier unavailable", zap.Error(err))
		} else {
			defer renderer.Close()
			opts = append(opts, discovery.WithRenderer(renderer, cfg.Render.MaxURLs))
		}
	}

	var runs api.RunLister
	if cfg.Database.URL != "" {
		pool, err := db.Connect(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := db.ApplyMigrations(ctx, pool, logger); err != nil {
			return err
		}
		store := db.NewStore(pool)
		opts = append(opts, discovery.WithRecorder(store))
		runs = store
	} else {
		logger.Info("database url not set, run log disabled")
	}

	engine := discovery.NewEngine(registry, newFetcher(cfg.Discovery), opts...)

	llm := ai.NewOllamaClient(cfg.AI.OllamaHost, cfg.AI.Model)
	srv := api.NewServer(api.Deps{
		Engine:   engine,
		Params:   ai.NewParamExtractor(llm, logger),
		Runs:     runs,
		Gatherer: promReg,
		Logger:   logger,
	})
	srv.Echo.Server.ReadTimeout = cfg.Server.ReadTimeout
	srv.Echo.Server.WriteTimeout = cfg.Server.WriteTimeout

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Addr()), zap.Int("sources", len(registry.Sources)))
		errCh <- srv.Start(cfg.Addr())
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loadRegistry(path string) (*discovery.Registry, error) {
	if path != "" {
		return discovery.LoadRegistryFile(path)
	}
	return discovery.LoadRegistry()
}

func newFetcher(cfg config.DiscoveryConfig) discovery.Fetcher {
	if cfg.Fetcher == config.FetcherHTTP {
		f := discovery.NewHTTPFetcher(cfg.FetchTimeout, cfg.AllowPrivateNetworks)
		if cfg.UserAgent != "" {
			f.UserAgent = cfg.UserAgent
		}
		if cfg.RespectRobots {
			f.Robots = discovery.NewRobotsPolicy(f.Client, f.UserAgent)
		}
		return f
	}

	f := discovery.NewCollyFetcher()
	if cfg.UserAgent != "" {
		f.UserAgent = cfg.UserAgent
	}
	f.RequestTimeout = cfg.FetchTimeout
	f.IgnoreRobotsTxt = !cfg.RespectRobots
	return f
}
