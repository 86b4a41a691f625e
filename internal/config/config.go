// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Render    RenderConfig    `mapstructure:"render"`
	AI        AIConfig        `mapstructure:"ai"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DiscoveryConfig governs fetching and assembly.
type DiscoveryConfig struct {
	Workers              int           `mapstructure:"workers"`
	FetchTimeout         time.Duration `mapstructure:"fetch_timeout"`
	MaxResults           int           `mapstructure:"max_results"`
	MaxSources           int           `mapstructure:"max_sources"`
	BlockedDomains       []string      `mapstructure:"blocked_domains"`
	Fetcher              string        `mapstructure:"fetcher"`
	UserAgent            string        `mapstructure:"user_agent"`
	RespectRobots        bool          `mapstructure:"respect_robots"`
	AllowPrivateNetworks bool          `mapstructure:"allow_private_networks"`
	SourcesFile          string        `mapstructure:"sources_file"`
}

// RenderConfig configures the headless browser tier.
type RenderConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	MaxURLs        int           `mapstructure:"max_urls"`
	Timeout        time.Duration `mapstructure:"timeout"`
	WaitTimeout    time.Duration `mapstructure:"wait_timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

// AIConfig points at the Ollama server used for parameter extraction.
type AIConfig struct {
	OllamaHost string `mapstructure:"ollama_host"`
	Model      string `mapstructure:"model"`
}

// DatabaseConfig enables the run log when URL is set.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// maxRenderURLs matches the render tier's page cap.
const maxRenderURLs = 3

const (
	FetcherColly = "colly"
	FetcherHTTP  = "http"
)

// Load builds a Config from defaults, an optional file and OPPS_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OPPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Conventional names used by hosting platforms.
	_ = v.BindEnv("database.url", "OPPS_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("server.port", "OPPS_SERVER_PORT", "PORT")
	_ = v.BindEnv("ai.ollama_host", "OPPS_AI_OLLAMA_HOST", "OLLAMA_HOST")

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("discovery.workers", 5)
	v.SetDefault("discovery.fetch_timeout", "15s")
	v.SetDefault("discovery.max_results", 20)
	v.SetDefault("discovery.max_sources", 10)
	v.SetDefault("discovery.blocked_domains", []string{})
	v.SetDefault("discovery.fetcher", FetcherColly)
	v.SetDefault("discovery.user_agent", "")
	v.SetDefault("discovery.respect_robots", true)
	v.SetDefault("discovery.allow_private_networks", false)
	v.SetDefault("discovery.sources_file", "")
	v.SetDefault("render.enabled", false)
	v.SetDefault("render.max_urls", 3)
	v.SetDefault("render.timeout", "20s")
	v.SetDefault("render.wait_timeout", "8s")
	v.SetDefault("render.max_concurrency", 1)
	v.SetDefault("ai.ollama_host", "http://localhost:11434")
	v.SetDefault("ai.model", "qwen2.5:14b")
	v.SetDefault("database.url", "")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Discovery.Workers <= 0 {
		return fmt.Errorf("discovery.workers must be > 0")
	}
	if c.Discovery.FetchTimeout <= 0 {
		return fmt.Errorf("discovery.fetch_timeout must be > 0")
	}
	if c.Discovery.MaxResults <= 0 || c.Discovery.MaxResults > 20 {
		return fmt.Errorf("discovery.max_results must be between 1 and 20")
	}
	if c.Discovery.MaxSources < 0 {
		return fmt.Errorf("discovery.max_sources must be >= 0")
	}
	switch c.Discovery.Fetcher {
	case FetcherColly, FetcherHTTP:
	default:
		return fmt.Errorf("discovery.fetcher must be %q or %q, got %q", FetcherColly, FetcherHTTP, c.Discovery.Fetcher)
	}
	if c.Render.Enabled {
		if c.Render.MaxConcurrency <= 0 {
			return fmt.Errorf("render.max_concurrency must be > 0 when render is enabled")
		}
		if c.Render.MaxURLs <= 0 || c.Render.MaxURLs > maxRenderURLs {
			return fmt.Errorf("render.max_urls must be between 1 and %d when render is enabled", maxRenderURLs)
		}
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
