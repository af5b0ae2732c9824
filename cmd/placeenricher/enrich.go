package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/shpitdev/place-enricher/internal/app"
	"github.com/shpitdev/place-enricher/internal/metrics"
	"github.com/shpitdev/place-enricher/internal/places"
	"github.com/shpitdev/place-enricher/pkg/pipeline/schema"
)

func runEnrich(ctx context.Context, args []string) int {
	cfg, ok := loadConfig(args)
	if !ok {
		return 2
	}

	fs := flag.NewFlagSet("enrich", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var common commonFlags
	common.register(fs, cfg)
	apiKey := fs.String("api-key", cfg.Places.APIKey, "Google Places API key (env: GOOGLE_PLACES_API_KEY)")
	input := fs.String("input", "", "Input CSV file")
	output := fs.String("output", "", "Enriched output CSV (default <input>_enriched.csv)")
	failed := fs.String("failed", "", "Failed lookups CSV (default <input>_failed.csv)")
	delay := fs.Float64("delay", cfg.Enrich.DelaySeconds, "Seconds each worker waits before a lookup (env: ENRICH_DELAY)")
	legacy := fs.Bool("legacy", cfg.Places.Legacy, "Use the legacy Places text search API (env: PLACES_LEGACY)")
	placesBaseURL := fs.String("places-base-url", cfg.Places.BaseURL, "Places API origin override (env: PLACES_BASE_URL)")
	every := fs.Int("checkpoint", cfg.Enrich.CheckpointEvery, "Save a checkpoint every N rows, 0 disables (env: ENRICH_CHECKPOINT)")
	resume := fs.Bool("resume", false, "Resume from the checkpoint next to the output file")
	limit := fs.Int("limit", 0, "Process at most N rows after the resume offset, 0 means all")
	threads := fs.Int("threads", cfg.Enrich.Threads, "Concurrent lookups; above 1 results are written in completion order (env: ENRICH_THREADS)")
	rps := fs.Float64("rate-limit-rps", cfg.Enrich.RateLimitRPS, "Aggregate lookup rate cap for --threads > 1, 0 disables (env: RATE_LIMIT_RPS)")
	schemaName := fs.String("schema", cfg.Enrich.Schema, "Force the input shape: default or alternate (env: ENRICH_SCHEMA)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 0 {
		fail("enrich takes no positional arguments, got %q", fs.Args())
		return 2
	}

	cfg.Enrich.DelaySeconds = *delay
	cfg.Enrich.Threads = *threads
	cfg.Enrich.CheckpointEvery = *every
	cfg.Enrich.RateLimitRPS = *rps
	if err := cfg.Validate(); err != nil {
		fail("config error: %s", err)
		return 2
	}
	if *limit < 0 {
		fail("config error: --limit must be >= 0")
		return 2
	}
	if strings.TrimSpace(*input) == "" {
		fail("enrich requires --input")
		return 2
	}
	if strings.TrimSpace(*apiKey) == "" {
		fail("enrich requires --api-key or GOOGLE_PLACES_API_KEY")
		return 2
	}
	if *schemaName != "" {
		if _, ok := schema.ParseKind(*schemaName); !ok {
			fail("config error: unknown schema %q (want default or alternate)", *schemaName)
			return 2
		}
	}

	log, ok := common.logger()
	if !ok {
		return 2
	}
	defer func() {
		_ = log.Sync()
	}()

	rec := metrics.New()
	if err := rec.Serve(ctx, common.metricsAddr, log); err != nil {
		fail("metrics server: %s", err)
		return 1
	}

	variant := places.VariantNew
	if *legacy {
		variant = places.VariantLegacy
	}
	client, err := places.NewClient(places.Config{
		APIKey:  *apiKey,
		Variant: variant,
		BaseURL: *placesBaseURL,
		Logger:  log,
	})
	if err != nil {
		fail("places config error: %s", err)
		return 2
	}

	opts := app.EnrichOptions{
		InputPath:       *input,
		OutputPath:      *output,
		FailedPath:      *failed,
		Resume:          *resume,
		Limit:           *limit,
		Workers:         *threads,
		Delay:           seconds(*delay),
		CheckpointEvery: *every,
		RateLimitRPS:    *rps,
		Schema:          *schemaName,
	}
	printEnrichBanner(opts, variant)

	sum, err := app.RunEnrich(ctx, opts, client, rec, log)
	if errors.Is(err, app.ErrInputNotFound) {
		fail("Error: %s", err)
		return 1
	}
	if sum.Processed() > 0 || err == nil {
		app.WriteEnrichSummary(os.Stdout, sum)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("interrupted; rerun with --resume to continue", zap.String("checkpoint", sum.CheckpointPath))
		}
		fail("enrich failed: %s", err)
	}
	return exitCode(err)
}

func printEnrichBanner(opts app.EnrichOptions, variant places.Variant) {
	rule := strings.Repeat("=", 60)
	_, _ = fmt.Fprintf(os.Stdout, "%s\nRESTAURANT ENRICHMENT\n%s\n", rule, rule)
	_, _ = fmt.Fprintf(os.Stdout, "Input: %s\n", opts.InputPath)
	_, _ = fmt.Fprintf(os.Stdout, "API: %s Places API\n", variant)
	_, _ = fmt.Fprintf(os.Stdout, "Threads: %d\n", opts.Workers)
	_, _ = fmt.Fprintf(os.Stdout, "Delay: %s between requests (per thread)\n", opts.Delay)
	if opts.CheckpointEvery > 0 {
		_, _ = fmt.Fprintf(os.Stdout, "Checkpointing every %d rows\n", opts.CheckpointEvery)
	}
}
