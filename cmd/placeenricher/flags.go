package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shpitdev/place-enricher/internal/config"
	"github.com/shpitdev/place-enricher/internal/logging"
	"github.com/shpitdev/place-enricher/pkg/pipeline/redact"
)

const defaultGeminiModel = config.DefaultGeminiModel

// configPath finds --config in args ahead of flag parsing, so the file can
// supply flag defaults. CONFIG_PATH is the fallback.
func configPath(args []string) string {
	for i, a := range args {
		name, val, hasVal := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "config" {
			continue
		}
		if hasVal {
			return val
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return strings.TrimSpace(os.Getenv("CONFIG_PATH"))
}

func loadConfig(args []string) (config.Config, bool) {
	cfg, err := config.Load(configPath(args))
	if err != nil {
		fail("config error: %s", err)
		return cfg, false
	}
	return cfg, true
}

// commonFlags are shared by every run command.
type commonFlags struct {
	configFile  string
	logLevel    string
	logFormat   string
	metricsAddr string
}

func (c *commonFlags) register(fs *flag.FlagSet, cfg config.Config) {
	fs.StringVar(&c.configFile, "config", "", "YAML config file (env: CONFIG_PATH)")
	fs.StringVar(&c.logLevel, "log-level", cfg.Log.Level, "Log level: debug, info, warn, error (env: LOG_LEVEL)")
	fs.StringVar(&c.logFormat, "log-format", cfg.Log.Format, "Log format: console or json (env: LOG_FORMAT)")
	fs.StringVar(&c.metricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve Prometheus /metrics on this address (env: METRICS_ADDR)")
}

func (c *commonFlags) logger() (*zap.Logger, bool) {
	log, err := logging.New(c.logLevel, c.logFormat)
	if err != nil {
		fail("config error: %s", err)
		return nil, false
	}
	return log, true
}

// parseInterspersed parses flags that may appear before or after positional
// arguments and returns the positionals in order.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return positional, nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// fail prints a redacted diagnostic to stderr.
func fail(format string, args ...any) {
	_, _ = fmt.Fprintln(os.Stderr, redact.Secrets(fmt.Sprintf(format, args...)))
}
