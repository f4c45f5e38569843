// Package config loads service settings: defaults, then an optional YAML file,
// then environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      Server      `yaml:"server"`
	Completion  Completion  `yaml:"completion"`
	Feed        Feed        `yaml:"feed"`
	Pipeline    Pipeline    `yaml:"pipeline"`
	Store       Store       `yaml:"store"`
	Reliability Reliability `yaml:"reliability"`
	Timeouts    Timeouts    `yaml:"timeouts"`
	Logging     Logging     `yaml:"logging"`
	Debug       bool        `yaml:"debug"`
}

type Server struct {
	Addr         string        `yaml:"addr"`
	AdminToken   string        `yaml:"admin_token"`
	CORSOrigins  []string      `yaml:"cors_origins"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type Completion struct {
	Provider      string `yaml:"provider"` // gemini | openai | anthropic
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	BaseURL       string `yaml:"base_url"`
	MaxInputChars int    `yaml:"max_input_chars"`
	DailyLimit    int    `yaml:"daily_limit"` // 0 = unlimited
}

type Feed struct {
	BaseURL          string `yaml:"base_url"`
	Language         string `yaml:"hl"`
	Region           string `yaml:"gl"`
	Edition          string `yaml:"ceid"`
	ImageConcurrency int    `yaml:"image_concurrency"`
	UserAgent        string `yaml:"user_agent"`
}

type Pipeline struct {
	KeywordCount      int      `yaml:"keyword_count"`
	RelatedCap        int      `yaml:"related_cap"`
	MaxShrinkAttempts int      `yaml:"max_shrink_attempts"`
	LegacyContainment bool     `yaml:"legacy_containment"`
	DefaultBlacklist  []string `yaml:"default_blacklist"`
}

type Store struct {
	Driver string `yaml:"driver"` // memory | file | sqlite | postgres | redis
	DSN    string `yaml:"dsn"`
}

type Reliability struct {
	Path string `yaml:"path"`
}

type Timeouts struct {
	Fetch      time.Duration `yaml:"fetch"`
	Feed       time.Duration `yaml:"feed"`
	Image      time.Duration `yaml:"image"`
	Completion time.Duration `yaml:"completion"`
	Store      time.Duration `yaml:"store"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Server: Server{
			Addr:         ":8080",
			CORSOrigins:  []string{"*"},
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 90 * time.Second,
		},
		Completion: Completion{
			Provider:      "gemini",
			MaxInputChars: 12000,
		},
		Feed: Feed{
			BaseURL:          "https://news.google.com/rss/search",
			Language:         "en-US",
			Region:           "US",
			Edition:          "US:en",
			ImageConcurrency: 4,
			UserAgent:        "Mozilla/5.0 (compatible; opbop/1.0)",
		},
		Pipeline: Pipeline{
			KeywordCount:      3,
			RelatedCap:        4,
			MaxShrinkAttempts: 6,
		},
		Store: Store{
			Driver: "memory",
		},
		Reliability: Reliability{
			Path: "data/reliability.tsv",
		},
		Timeouts: Timeouts{
			Fetch:      15 * time.Second,
			Feed:       10 * time.Second,
			Image:      5 * time.Second,
			Completion: 45 * time.Second,
			Store:      5 * time.Second,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("OPBOP_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	c.Server.Addr = getEnvOrDefault("OPBOP_ADDR", c.Server.Addr)
	c.Server.AdminToken = getEnvOrDefault("OPBOP_ADMIN_TOKEN", c.Server.AdminToken)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		c.Server.CORSOrigins = splitList(origins)
	}

	c.Completion.Provider = strings.ToLower(getEnvOrDefault("COMPLETION_PROVIDER", c.Completion.Provider))
	c.Completion.Model = getEnvOrDefault("COMPLETION_MODEL", c.Completion.Model)
	c.Completion.MaxInputChars = getEnvIntOrDefault("COMPLETION_MAX_INPUT_CHARS", c.Completion.MaxInputChars)
	c.Completion.DailyLimit = getEnvIntOrDefault("MAX_COMPLETION_REQUESTS", c.Completion.DailyLimit)
	if c.Completion.APIKey == "" {
		c.Completion.APIKey = providerKey(c.Completion.Provider)
	}

	c.Feed.BaseURL = getEnvOrDefault("FEED_BASE_URL", c.Feed.BaseURL)
	c.Feed.ImageConcurrency = getEnvIntOrDefault("IMAGE_CONCURRENCY", c.Feed.ImageConcurrency)

	c.Pipeline.RelatedCap = getEnvIntOrDefault("RELATED_CAP", c.Pipeline.RelatedCap)
	c.Pipeline.MaxShrinkAttempts = getEnvIntOrDefault("MAX_SHRINK_ATTEMPTS", c.Pipeline.MaxShrinkAttempts)

	c.Store.Driver = strings.ToLower(getEnvOrDefault("STORE_DRIVER", c.Store.Driver))
	switch c.Store.Driver {
	case "postgres":
		c.Store.DSN = getEnvOrDefault("DATABASE_URL", c.Store.DSN)
	case "redis":
		c.Store.DSN = getEnvOrDefault("REDIS_URL", c.Store.DSN)
	default:
		c.Store.DSN = getEnvOrDefault("STORE_DSN", c.Store.DSN)
	}

	c.Reliability.Path = getEnvOrDefault("RELIABILITY_PATH", c.Reliability.Path)
	c.Logging.Level = getEnvOrDefault("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnvOrDefault("LOG_FORMAT", c.Logging.Format)

	if debug := os.Getenv("DEBUG"); debug == "true" {
		c.Debug = true
		c.Logging.Level = "debug"
	}
}

func providerKey(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return os.Getenv("GEMINI_API_KEY")
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) Validate() error {
	switch c.Completion.Provider {
	case "gemini", "openai", "anthropic":
	default:
		return fmt.Errorf("completion.provider must be gemini, openai or anthropic, got %q", c.Completion.Provider)
	}
	switch c.Store.Driver {
	case "memory":
	case "file", "sqlite", "postgres", "redis":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Pipeline.KeywordCount < 1 {
		return fmt.Errorf("pipeline.keyword_count must be positive")
	}
	if c.Pipeline.RelatedCap < 0 {
		return fmt.Errorf("pipeline.related_cap must not be negative")
	}
	if c.Pipeline.MaxShrinkAttempts < 1 {
		return fmt.Errorf("pipeline.max_shrink_attempts must be at least 1")
	}
	if c.Completion.MaxInputChars < 0 {
		return fmt.Errorf("completion.max_input_chars must not be negative")
	}
	if c.Feed.ImageConcurrency < 1 {
		return fmt.Errorf("feed.image_concurrency must be at least 1")
	}
	return nil
}
