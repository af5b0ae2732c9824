// Package config resolves settings from defaults, an optional YAML file and the
// environment, in that order. Command-line flags are applied on top by cmd/.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the resolved configuration for both pipelines.
type Config struct {
	Places      Places  `yaml:"places"`
	Enrich      Enrich  `yaml:"enrich"`
	Scrape      Scrape  `yaml:"scrape"`
	Gemini      Gemini  `yaml:"gemini"`
	Log         Logging `yaml:"log"`
	MetricsAddr string  `yaml:"metrics_addr"`
}

// Places configures the mapping provider. The key is only read from the environment.
type Places struct {
	APIKey  string `yaml:"-"`
	Legacy  bool   `yaml:"legacy"`
	BaseURL string `yaml:"base_url"`
}

type Enrich struct {
	DelaySeconds    float64 `yaml:"delay_seconds"`
	Threads         int     `yaml:"threads"`
	CheckpointEvery int     `yaml:"checkpoint_every"`
	RateLimitRPS    float64 `yaml:"rate_limit_rps"`
	// Schema forces an input shape ("default" or "alternate"); empty detects it from the header.
	Schema string `yaml:"schema"`
}

type Scrape struct {
	DelaySeconds float64 `yaml:"delay_seconds"`
	WaitSeconds  float64 `yaml:"wait_seconds"`
	MaxRetries   int     `yaml:"max_retries"`
	UserAgent    string  `yaml:"user_agent"`
}

// Gemini configures the extraction model. The key is only read from the environment.
type Gemini struct {
	APIKey  string `yaml:"-"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Enrich: Enrich{
			DelaySeconds: 0.1,
			Threads:      1,
		},
		Scrape: Scrape{
			DelaySeconds: 5,
			WaitSeconds:  3,
			MaxRetries:   3,
			UserAgent:    DefaultUserAgent,
		},
		Gemini: Gemini{Model: DefaultGeminiModel},
		Log:    Logging{Level: "info", Format: "console"},
	}
}

// Load resolves defaults, then path (if non-empty), then the environment.
// An explicit path that does not exist is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path = strings.TrimSpace(path); path != "" {
		if err := mergeFile(&cfg, path); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func mergeFile(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	// An empty file decodes to io.EOF and means "no overrides".
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Places.APIKey = firstNonEmpty(envString("GOOGLE_PLACES_API_KEY"), cfg.Places.APIKey)
	cfg.Places.BaseURL = firstNonEmpty(envString("PLACES_BASE_URL"), cfg.Places.BaseURL)
	cfg.Gemini.APIKey = firstNonEmpty(envString("GEMINI_API_KEY"), cfg.Gemini.APIKey)
	cfg.Gemini.Model = firstNonEmpty(envString("GEMINI_MODEL"), cfg.Gemini.Model)
	cfg.Gemini.BaseURL = firstNonEmpty(envString("GEMINI_BASE_URL"), cfg.Gemini.BaseURL)
	cfg.Log.Level = firstNonEmpty(envString("LOG_LEVEL"), cfg.Log.Level)
	cfg.Log.Format = firstNonEmpty(envString("LOG_FORMAT"), cfg.Log.Format)
	cfg.MetricsAddr = firstNonEmpty(envString("METRICS_ADDR"), cfg.MetricsAddr)
	cfg.Enrich.Schema = firstNonEmpty(envString("ENRICH_SCHEMA"), cfg.Enrich.Schema)

	var err error
	if cfg.Places.Legacy, err = envBool("PLACES_LEGACY", cfg.Places.Legacy); err != nil {
		return err
	}
	if cfg.Enrich.DelaySeconds, err = envFloat("ENRICH_DELAY", cfg.Enrich.DelaySeconds); err != nil {
		return err
	}
	if cfg.Enrich.Threads, err = envInt("ENRICH_THREADS", cfg.Enrich.Threads); err != nil {
		return err
	}
	if cfg.Enrich.CheckpointEvery, err = envInt("ENRICH_CHECKPOINT", cfg.Enrich.CheckpointEvery); err != nil {
		return err
	}
	if cfg.Enrich.RateLimitRPS, err = envFloat("RATE_LIMIT_RPS", cfg.Enrich.RateLimitRPS); err != nil {
		return err
	}
	if cfg.Scrape.DelaySeconds, err = envFloat("SCRAPE_DELAY", cfg.Scrape.DelaySeconds); err != nil {
		return err
	}
	if cfg.Scrape.WaitSeconds, err = envFloat("SCRAPE_WAIT", cfg.Scrape.WaitSeconds); err != nil {
		return err
	}
	if cfg.Scrape.MaxRetries, err = envInt("MAX_RETRIES", cfg.Scrape.MaxRetries); err != nil {
		return err
	}
	return nil
}

// Validate rejects values no run can use.
func (c Config) Validate() error {
	switch {
	case c.Enrich.DelaySeconds < 0:
		return fmt.Errorf("enrich delay must be >= 0, got %g", c.Enrich.DelaySeconds)
	case c.Enrich.Threads < 1:
		return fmt.Errorf("enrich threads must be >= 1, got %d", c.Enrich.Threads)
	case c.Enrich.CheckpointEvery < 0:
		return fmt.Errorf("checkpoint interval must be >= 0, got %d", c.Enrich.CheckpointEvery)
	case c.Enrich.RateLimitRPS < 0:
		return fmt.Errorf("rate limit must be >= 0, got %g", c.Enrich.RateLimitRPS)
	case c.Scrape.DelaySeconds < 0 || c.Scrape.WaitSeconds < 0:
		return errors.New("scrape delay and wait must be >= 0")
	case c.Scrape.MaxRetries < 0:
		return fmt.Errorf("max retries must be >= 0, got %d", c.Scrape.MaxRetries)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
