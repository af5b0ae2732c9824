package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shpitdev/place-enricher/internal/scrape"
)

// ScrapeOptions describe a single-URL or bulk scrape. Exactly one of URL and
// BulkFile is set.
type ScrapeOptions struct {
	URL      string
	BulkFile string

	// Output is the CSV path for a single URL.
	Output string
	// OutputDir receives <name>.csv per bulk target.
	OutputDir string
	JSON      bool
	// Delay separates bulk pages.
	Delay time.Duration
}

// Validate enforces the URL/bulk exclusivity.
func (o ScrapeOptions) Validate() error {
	switch {
	case o.URL != "" && o.BulkFile != "":
		return errors.New("a URL and --bulk are mutually exclusive")
	case o.URL == "" && o.BulkFile == "":
		return errors.New("a URL or --bulk FILE is required")
	}
	return nil
}

// RunScrape scrapes opts.URL into opts.Output.
func RunScrape(ctx context.Context, s *scrape.Scraper, opts ScrapeOptions, log *zap.Logger) (scrape.Summary, error) {
	if err := opts.Validate(); err != nil {
		return scrape.Summary{}, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	out := firstNonEmpty(opts.Output, "locations.csv")
	log.Info("scrape starting", zap.String("run", uuid.NewString()), zap.String("url", opts.URL), zap.String("output", out))
	return s.Run(ctx, opts.URL, out, opts.JSON)
}

// RunBulk scrapes every target in opts.BulkFile into opts.OutputDir.
func RunBulk(ctx context.Context, s *scrape.Scraper, opts ScrapeOptions, log *zap.Logger) (scrape.BulkSummary, error) {
	if err := opts.Validate(); err != nil {
		return scrape.BulkSummary{}, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	if _, err := os.Stat(opts.BulkFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return scrape.BulkSummary{}, fmt.Errorf("%w: %s", ErrInputNotFound, opts.BulkFile)
		}
		return scrape.BulkSummary{}, err
	}
	targets, err := scrape.LoadTargets(opts.BulkFile)
	if err != nil {
		return scrape.BulkSummary{}, err
	}
	if len(targets) == 0 {
		return scrape.BulkSummary{}, fmt.Errorf("no URLs found in %s", opts.BulkFile)
	}
	dir := firstNonEmpty(opts.OutputDir, "output")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return scrape.BulkSummary{}, err
	}
	log.Info("bulk scrape starting",
		zap.String("run", uuid.NewString()),
		zap.Int("urls", len(targets)),
		zap.String("output_dir", dir),
		zap.Duration("delay", opts.Delay),
	)
	return s.RunBulk(ctx, targets, dir, opts.Delay, opts.JSON)
}
