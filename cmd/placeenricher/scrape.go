package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"strings"

	"github.com/shpitdev/place-enricher/internal/app"
	"github.com/shpitdev/place-enricher/internal/extract/gemini"
	"github.com/shpitdev/place-enricher/internal/metrics"
	"github.com/shpitdev/place-enricher/internal/places"
	"github.com/shpitdev/place-enricher/internal/scrape"
)

func runScrape(ctx context.Context, args []string) int {
	cfg, ok := loadConfig(args)
	if !ok {
		return 2
	}

	fs := flag.NewFlagSet("scrape", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var common commonFlags
	common.register(fs, cfg)
	var output string
	fs.StringVar(&output, "output", "locations.csv", "Output CSV for a single URL")
	fs.StringVar(&output, "o", "locations.csv", "Shorthand for --output")
	bulk := fs.String("bulk", "", "CSV or text file of URLs to scrape one after another")
	outputDir := fs.String("output-dir", "output", "Output directory for --bulk")
	withJSON := fs.Bool("json", false, "Also write a JSON copy next to each CSV")
	noPlaceIDs := fs.Bool("no-place-ids", false, "Skip the Google Places lookup")
	wait := fs.Float64("wait", cfg.Scrape.WaitSeconds, "Seconds to let a page render before reading it (env: SCRAPE_WAIT)")
	delay := fs.Float64("delay", cfg.Scrape.DelaySeconds, "Seconds between URLs in --bulk mode (env: SCRAPE_DELAY)")
	simple := fs.Bool("simple", false, "Fetch pages over plain HTTP without rendering scripts")
	legacy := fs.Bool("legacy", cfg.Places.Legacy, "Use the legacy Places text search API (env: PLACES_LEGACY)")
	maxRetries := fs.Int("max-retries", cfg.Scrape.MaxRetries, "Retries per page for transient fetch or model errors (env: MAX_RETRIES)")
	model := fs.String("gemini-model", cfg.Gemini.Model, "Gemini model name (env: GEMINI_MODEL)")
	geminiBaseURL := fs.String("gemini-base-url", cfg.Gemini.BaseURL, "Gemini API base URL override (env: GEMINI_BASE_URL)")
	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return 2
	}
	if len(positional) > 1 {
		fail("scrape takes at most one URL, got %q", positional)
		return 2
	}

	opts := app.ScrapeOptions{
		BulkFile:  *bulk,
		Output:    output,
		OutputDir: *outputDir,
		JSON:      *withJSON,
		Delay:     seconds(*delay),
	}
	if len(positional) == 1 {
		opts.URL = positional[0]
	}
	if err := opts.Validate(); err != nil {
		fail("scrape: %s", err)
		return 2
	}
	cfg.Scrape.WaitSeconds = *wait
	cfg.Scrape.DelaySeconds = *delay
	cfg.Scrape.MaxRetries = *maxRetries
	if err := cfg.Validate(); err != nil {
		fail("config error: %s", err)
		return 2
	}

	log, ok := common.logger()
	if !ok {
		return 2
	}
	defer func() {
		_ = log.Sync()
	}()
	if !*simple {
		log.Debug("script rendering is not available; fetching over plain HTTP")
	}

	extractor, err := gemini.New(ctx, gemini.Config{
		APIKey:  cfg.Gemini.APIKey,
		Model:   *model,
		BaseURL: *geminiBaseURL,
		Logger:  log,
	})
	if err != nil {
		fail("gemini config error: %s", err)
		return 2
	}

	var searcher scrape.Searcher
	switch {
	case *noPlaceIDs:
	case strings.TrimSpace(cfg.Places.APIKey) == "":
		log.Warn("GOOGLE_PLACES_API_KEY is not set; skipping place id lookup")
	default:
		variant := places.VariantNew
		if *legacy {
			variant = places.VariantLegacy
		}
		client, err := places.NewClient(places.Config{
			APIKey:  cfg.Places.APIKey,
			Variant: variant,
			BaseURL: cfg.Places.BaseURL,
			Logger:  log,
		})
		if err != nil {
			fail("places config error: %s", err)
			return 2
		}
		searcher = client
	}

	rec := metrics.New()
	if err := rec.Serve(ctx, common.metricsAddr, log); err != nil {
		fail("metrics server: %s", err)
		return 1
	}

	s, err := scrape.New(scrape.Config{
		Fetcher:    scrape.NewHTTPFetcher(cfg.Scrape.UserAgent),
		Extractor:  extractor,
		Places:     searcher,
		Wait:       seconds(*wait),
		MaxRetries: *maxRetries,
		Observer:   rec,
		Logger:     log,
	})
	if err != nil {
		fail("scrape: %s", err)
		return 2
	}

	if opts.BulkFile != "" {
		sum, err := app.RunBulk(ctx, s, opts, log)
		if err != nil && sum.Total == 0 {
			fail("bulk scrape failed: %s", err)
			return 1
		}
		app.WriteBulkSummary(os.Stdout, sum, opts.OutputDir)
		if err != nil {
			fail("bulk scrape interrupted: %s", err)
		}
		return exitCode(err)
	}

	sum, err := app.RunScrape(ctx, s, opts, log)
	if errors.Is(err, scrape.ErrNoLocations) {
		fail("No locations found at %s", opts.URL)
		return 1
	}
	if err != nil {
		fail("scrape failed: %s", err)
		return exitCode(err)
	}
	app.WriteScrapeSummary(os.Stdout, sum)
	return 0
}
