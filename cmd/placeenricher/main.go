package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shpitdev/place-enricher/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	code := 0
	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
	case "version", "--version":
		_, _ = fmt.Fprintln(os.Stdout, version.String())
	case "enrich":
		code = runEnrich(ctx, os.Args[2:])
	case "scrape":
		code = runScrape(ctx, os.Args[2:])
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		code = 2
	}
	stop()
	os.Exit(code)
}

// exitCode maps a run error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

func usage(w *os.File) {
	_, _ = fmt.Fprintf(w, `placeenricher: resolve restaurants to Google Places records

Usage:
  placeenricher <command> [flags]

Commands:
  enrich   Stream a restaurant CSV through Google Places lookups
  scrape   Extract places from web pages with Gemini, then resolve place ids
  version  Print the version

Examples:
  placeenricher enrich --input restaurants.csv --checkpoint 100 --resume
  placeenricher enrich --input restaurants.csv --threads 4 --delay 0.2
  placeenricher scrape https://example.com/best-tacos -o tacos.csv --json
  placeenricher scrape --bulk guides.csv --output-dir ./output

Environment:
  GOOGLE_PLACES_API_KEY  Places API key (required for enrich, optional for scrape)
  PLACES_LEGACY          Use the legacy text search API (true/false)
  PLACES_BASE_URL        Places API origin override (mock servers)
  GEMINI_API_KEY         Gemini API key (required for scrape)
  GEMINI_MODEL           Gemini model name (default %s)
  GEMINI_BASE_URL        Gemini API base URL override
  CONFIG_PATH            YAML config file (same as --config)
  LOG_LEVEL, LOG_FORMAT  Logger level and format (console or json)
  METRICS_ADDR           Serve Prometheus metrics on this address

`, defaultGeminiModel)
}
