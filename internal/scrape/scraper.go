// Package scrape extracts places from arbitrary web pages: a page is fetched,
// its visible text handed to a language model, and every location the model
// reports is optionally resolved to a Google place id before export.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shpitdev/place-enricher/internal/enrich"
	"github.com/shpitdev/place-enricher/internal/extract"
	"github.com/shpitdev/place-enricher/internal/places"
	"github.com/shpitdev/place-enricher/pkg/pipeline/worker"
)

// ErrNoLocations means a page was processed but nothing usable came back.
var ErrNoLocations = errors.New("no locations found")

// DefaultLookupPause separates consecutive place lookups for one page.
const DefaultLookupPause = 100 * time.Millisecond

// pageTimeout bounds one attempt at a page: fetch, model call and lookups.
const pageTimeout = 5 * time.Minute

// Searcher resolves a free-text query to a place; ok=false is "no match".
type Searcher interface {
	Search(ctx context.Context, query string) (enrich.Place, bool)
}

// Observer receives per-URL events.
type Observer interface {
	URLDone(ok bool)
	LocationsExtracted(total, withPlaceID int)
}

type Config struct {
	Fetcher   Fetcher
	Extractor extract.Extractor
	// Places is optional; without it records carry no place ids.
	Places Searcher

	// Wait is passed to the fetcher for client-side rendering.
	Wait time.Duration
	// LookupPause defaults to DefaultLookupPause; negative disables it.
	LookupPause time.Duration
	// MaxRetries is the number of extra attempts for a page after a transient failure.
	MaxRetries int

	Observer Observer
	Logger   *zap.Logger
}

type Scraper struct {
	fetch   Fetcher
	extract extract.Extractor
	places  Searcher
	wait    time.Duration
	pause   time.Duration
	retries int
	obs     Observer
	log     *zap.Logger
}

func New(cfg Config) (*Scraper, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("scrape: fetcher is required")
	}
	if cfg.Extractor == nil {
		return nil, errors.New("scrape: extractor is required")
	}
	pause := cfg.LookupPause
	if pause == 0 {
		pause = DefaultLookupPause
	}
	obs := cfg.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Scraper{
		fetch:   cfg.Fetcher,
		extract: cfg.Extractor,
		places:  cfg.Places,
		wait:    cfg.Wait,
		pause:   pause,
		retries: cfg.MaxRetries,
		obs:     obs,
		log:     log.Named("scrape"),
	}, nil
}

// Scrape fetches url and returns its locations, enriched with place ids when
// a Searcher is configured. A model reply that cannot be parsed is logged and
// reported as ErrNoLocations.
func (s *Scraper) Scrape(ctx context.Context, url string) ([]Record, error) {
	page, err := s.fetch.Fetch(ctx, url, s.wait)
	if err != nil {
		return nil, err
	}
	s.log.Debug("page fetched", zap.String("url", url), zap.Int("text_chars", len(page.Text)))
	if strings.TrimSpace(page.Text) == "" {
		return nil, fmt.Errorf("%s: page has no visible text: %w", url, ErrNoLocations)
	}

	res, err := s.extract.Extract(ctx, page.Text, url)
	if err != nil {
		var pe *extract.ParseError
		if errors.As(err, &pe) {
			s.log.Warn("model reply was not valid JSON",
				zap.String("url", url),
				zap.String("excerpt", pe.Excerpt),
				zap.Error(pe.Err),
			)
			return nil, fmt.Errorf("%s: %w", url, ErrNoLocations)
		}
		return nil, err
	}
	if len(res.Locations) == 0 {
		return nil, fmt.Errorf("%s: %w", url, ErrNoLocations)
	}

	records := make([]Record, len(res.Locations))
	for i, loc := range res.Locations {
		records[i] = Record{Location: loc}
	}
	if err := s.resolve(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

// resolve attaches place ids in place. Lookups are paused between calls.
func (s *Scraper) resolve(ctx context.Context, records []Record) error {
	if s.places == nil {
		return nil
	}
	first := true
	for i := range records {
		q := lookupQuery(records[i].Location)
		if q == "" {
			continue
		}
		if !first {
			if err := worker.Sleep(ctx, s.pause); err != nil {
				return err
			}
		}
		first = false
		p, ok := s.places.Search(ctx, q)
		if !ok {
			continue
		}
		mapURL := p.MapURL
		if mapURL == "" {
			mapURL = places.LegacyMapURL(p.PlaceID)
		}
		records[i].attach(p, mapURL)
	}
	return nil
}

// lookupQuery is the location name followed by its address, or its
// neighborhood when there is no address. Nameless locations are not looked up.
func lookupQuery(loc extract.Location) string {
	name := strings.TrimSpace(loc.Name)
	if name == "" {
		return ""
	}
	where := strings.TrimSpace(loc.Address)
	if where == "" {
		where = strings.TrimSpace(loc.Neighborhood)
	}
	return strings.TrimSpace(name + " " + where)
}

// Summary describes one written page.
type Summary struct {
	URL         string
	Locations   int
	WithPlaceID int
	CSVPath     string
	JSONPath    string
}

// Run scrapes a single url and writes the records to csvPath, plus a JSON copy
// next to it when withJSON is set.
func (s *Scraper) Run(ctx context.Context, url, csvPath string, withJSON bool) (Summary, error) {
	results, err := worker.ProcessAll(ctx, []Target{{URL: url}}, s.attempt(0), worker.Options{
		Workers:        1,
		MaxRetries:     s.retries,
		RequestTimeout: pageTimeout,
		BackoffInitial: time.Second,
		BackoffMax:     10 * time.Second,
	})
	if err != nil {
		return Summary{URL: url}, err
	}
	res := results[0]
	if res.Err != nil {
		s.obs.URLDone(false)
		return Summary{URL: url}, res.Err
	}
	sum, err := s.write(url, res.Output, csvPath, withJSON)
	s.obs.URLDone(err == nil)
	return sum, err
}

// BulkSummary reports a bulk run. Failed lists the URLs that produced no output.
type BulkSummary struct {
	Total       int
	Succeeded   int
	Failed      []string
	Locations   int
	WithPlaceID int
}

// RunBulk scrapes targets one at a time, writing <outputDir>/<name>.csv for
// each, and waits delay between pages. A failing page is recorded and the run
// moves on; only cancellation stops it early.
func (s *Scraper) RunBulk(ctx context.Context, targets []Target, outputDir string, delay time.Duration, withJSON bool) (BulkSummary, error) {
	sum := BulkSummary{Total: len(targets)}
	onResult := func(res worker.Result[Target, []Record]) error {
		t := res.Input
		if res.Err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.obs.URLDone(false)
			sum.Failed = append(sum.Failed, t.URL)
			s.log.Warn("page failed", zap.String("url", t.URL), zap.Error(res.Err))
			return nil
		}
		page, err := s.write(t.URL, res.Output, filepath.Join(outputDir, t.Name+".csv"), withJSON)
		if err != nil {
			s.obs.URLDone(false)
			sum.Failed = append(sum.Failed, t.URL)
			s.log.Warn("write failed", zap.String("url", t.URL), zap.Error(err))
			return nil
		}
		s.obs.URLDone(true)
		sum.Succeeded++
		sum.Locations += page.Locations
		sum.WithPlaceID += page.WithPlaceID
		return nil
	}

	_, err := worker.ProcessAllWithCallback(ctx, targets, s.attempt(delay), onResult, worker.Options{
		Workers:        1,
		MaxRetries:     s.retries,
		RequestTimeout: pageTimeout,
		BackoffInitial: time.Second,
		BackoffMax:     10 * time.Second,
		FailurePolicy:  worker.FailurePolicyPartialOutput,
	})
	return sum, err
}

// attempt returns the per-page processor. Consecutive attempts, retries
// included, start at least delay apart. Only one worker calls it.
func (s *Scraper) attempt(delay time.Duration) func(context.Context, Target) ([]Record, error) {
	var last time.Time
	return func(ctx context.Context, t Target) ([]Record, error) {
		if !last.IsZero() {
			if err := worker.Sleep(ctx, time.Until(last.Add(delay))); err != nil {
				return nil, err
			}
		}
		defer func() { last = time.Now() }()
		s.log.Info("scraping", zap.String("url", t.URL))
		return s.Scrape(ctx, t.URL)
	}
}

func (s *Scraper) write(url string, records []Record, csvPath string, withJSON bool) (Summary, error) {
	sum := Summary{URL: url, Locations: len(records), CSVPath: csvPath}
	for _, r := range records {
		if r.PlaceID != "" {
			sum.WithPlaceID++
		}
	}
	if err := WriteCSV(csvPath, records); err != nil {
		return sum, err
	}
	if withJSON {
		sum.JSONPath = JSONPath(csvPath)
		if err := WriteJSON(sum.JSONPath, records); err != nil {
			return sum, err
		}
	}
	s.obs.LocationsExtracted(sum.Locations, sum.WithPlaceID)
	s.log.Info("locations written",
		zap.String("url", url),
		zap.Int("locations", sum.Locations),
		zap.Int("with_place_id", sum.WithPlaceID),
		zap.String("csv", csvPath),
	)
	return sum, nil
}

type nopObserver struct{}

func (nopObserver) URLDone(bool)                {}
func (nopObserver) LocationsExtracted(int, int) {}
