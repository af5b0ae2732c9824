package scrape

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shpitdev/place-enricher/internal/enrich"
	"github.com/shpitdev/place-enricher/internal/extract"
	"github.com/shpitdev/place-enricher/pkg/pipeline/core"
)

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string][]error
	calls []string
	at    []time.Time
}

func (f *fakeFetcher) Fetch(_ context.Context, url string, _ time.Duration) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	f.at = append(f.at, time.Now())
	if q := f.errs[url]; len(q) > 0 {
		f.errs[url] = q[1:]
		return Page{}, q[0]
	}
	text, ok := f.pages[url]
	if !ok {
		return Page{}, &StatusError{URL: url, StatusCode: 404, Status: "404 Not Found"}
	}
	return Page{URL: url, HTML: "<p>" + text + "</p>", Text: text}, nil
}

// fakeExtractor returns the locations registered for the page text.
type fakeExtractor struct {
	results map[string][]extract.Location
	errs    map[string]error
}

func (f *fakeExtractor) Extract(_ context.Context, text, url string) (extract.Result, error) {
	if err := f.errs[text]; err != nil {
		return extract.Result{}, err
	}
	locs := f.results[text]
	return extract.Result{Locations: locs, SourceURL: url, TotalCount: extract.Count(len(locs))}, nil
}

type fakeSearcher struct {
	mu      sync.Mutex
	places  map[string]enrich.Place
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, q string) (enrich.Place, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	p, ok := f.places[q]
	return p, ok
}

type countingObserver struct {
	ok, failed         int
	total, withPlaceID int
}

func (o *countingObserver) URLDone(ok bool) {
	if ok {
		o.ok++
	} else {
		o.failed++
	}
}

func (o *countingObserver) LocationsExtracted(total, withPlaceID int) {
	o.total += total
	o.withPlaceID += withPlaceID
}

func newTestScraper(t *testing.T, f Fetcher, e extract.Extractor, s Searcher, obs Observer) *Scraper {
	t.Helper()
	cfg := Config{
		Fetcher:     f,
		Extractor:   e,
		LookupPause: -1,
		MaxRetries:  2,
		Observer:    obs,
		Logger:      zaptest.NewLogger(t),
	}
	if s != nil {
		cfg.Places = s
	}
	sc, err := New(cfg)
	require.NoError(t, err)
	return sc
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{Extractor: &fakeExtractor{}})
	assert.Error(t, err)
	_, err = New(Config{Fetcher: &fakeFetcher{}})
	assert.Error(t, err)
}

func TestScrape_ResolvesPlaceIDs(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"https://guide/austin": "austin guide"}}
	e := &fakeExtractor{results: map[string][]extract.Location{
		"austin guide": {
			{Name: "Cafe A", Address: "1 Main St"},
			{Name: "Cafe B", Neighborhood: "East Austin"},
			{Name: "Cafe C"},
			{Address: "no name here"},
		},
	}}
	s := &fakeSearcher{places: map[string]enrich.Place{
		"Cafe A 1 Main St": {PlaceID: "pid-a", Name: "Cafe A", MapURL: "https://maps/a"},
		"Cafe C":           {PlaceID: "pid-c", Name: "Cafe C"},
	}}

	recs, err := newTestScraper(t, f, e, s, nil).Scrape(context.Background(), "https://guide/austin")
	require.NoError(t, err)
	require.Len(t, recs, 4)

	assert.Equal(t, []string{"Cafe A 1 Main St", "Cafe B East Austin", "Cafe C"}, s.queries)
	assert.Equal(t, "pid-a", recs[0].PlaceID)
	assert.Equal(t, "https://maps/a", recs[0].GoogleMapsURL)
	assert.Empty(t, recs[1].PlaceID)
	assert.Equal(t, "pid-c", recs[2].PlaceID)
	assert.Equal(t, "https://www.google.com/maps/place/?q=place_id:pid-c", recs[2].GoogleMapsURL)
	assert.Empty(t, recs[3].PlaceID)
}

func TestScrape_WithoutSearcherSkipsLookups(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"u": "text"}}
	e := &fakeExtractor{results: map[string][]extract.Location{"text": {{Name: "Cafe A"}}}}

	recs, err := newTestScraper(t, f, e, nil, nil).Scrape(context.Background(), "u")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Empty(t, recs[0].PlaceID)
}

func TestScrape_UnparseableReplyIsNoLocations(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"u": "text"}}
	e := &fakeExtractor{errs: map[string]error{
		"text": &extract.ParseError{Excerpt: "Sure! Here are", Err: errors.New("invalid character 'S'")},
	}}

	_, err := newTestScraper(t, f, e, nil, nil).Scrape(context.Background(), "u")
	assert.ErrorIs(t, err, ErrNoLocations)
}

func TestScrape_EmptyPageIsNoLocations(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"u": "   "}}
	_, err := newTestScraper(t, f, &fakeExtractor{}, nil, nil).Scrape(context.Background(), "u")
	assert.ErrorIs(t, err, ErrNoLocations)
}

func TestRun_WritesCSVAndJSON(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"https://guide/austin": "austin guide"}}
	e := &fakeExtractor{results: map[string][]extract.Location{
		"austin guide": {{Name: "Cafe A", Address: "1 Main St"}, {Name: "Cafe B"}},
	}}
	s := &fakeSearcher{places: map[string]enrich.Place{
		"Cafe A 1 Main St": {PlaceID: "pid-a", MapURL: "https://maps/a"},
	}}
	obs := &countingObserver{}

	out := filepath.Join(t.TempDir(), "locations.csv")
	sum, err := newTestScraper(t, f, e, s, obs).Run(context.Background(), "https://guide/austin", out, true)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Locations)
	assert.Equal(t, 1, sum.WithPlaceID)
	assert.Equal(t, out, sum.CSVPath)
	assert.FileExists(t, out)
	assert.FileExists(t, JSONPath(out))
	assert.Equal(t, 1, obs.ok)
	assert.Equal(t, 2, obs.total)
	assert.Equal(t, 1, obs.withPlaceID)
}

func TestRun_RetriesTransientFetch(t *testing.T) {
	f := &fakeFetcher{
		pages: map[string]string{"u": "text"},
		errs:  map[string][]error{"u": {&core.TransientError{Err: errors.New("503")}}},
	}
	e := &fakeExtractor{results: map[string][]extract.Location{"text": {{Name: "Cafe A"}}}}

	_, err := newTestScraper(t, f, e, nil, nil).Run(context.Background(), "u", filepath.Join(t.TempDir(), "x.csv"), false)
	require.NoError(t, err)
	assert.Len(t, f.calls, 2)
}

func TestRun_NoLocationsWritesNothing(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"u": "text"}}
	obs := &countingObserver{}
	out := filepath.Join(t.TempDir(), "x.csv")

	_, err := newTestScraper(t, f, &fakeExtractor{}, nil, obs).Run(context.Background(), "u", out, false)
	assert.ErrorIs(t, err, ErrNoLocations)
	assert.NoFileExists(t, out)
	assert.Equal(t, 1, obs.failed)
}

func TestRunBulk_ContinuesPastFailures(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://guide/austin": "austin",
		"https://guide/dallas": "dallas",
	}}
	e := &fakeExtractor{results: map[string][]extract.Location{
		"austin": {{Name: "Cafe A"}},
		"dallas": {{Name: "Cafe B"}, {Name: "Cafe C"}},
	}}
	obs := &countingObserver{}
	targets := []Target{
		{URL: "https://guide/austin", Name: "austin"},
		{URL: "https://guide/missing", Name: "missing"},
		{URL: "https://guide/dallas", Name: "dallas"},
	}
	dir := filepath.Join(t.TempDir(), "out")

	delay := 30 * time.Millisecond
	sum, err := newTestScraper(t, f, e, nil, obs).RunBulk(context.Background(), targets, dir, delay, false)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, []string{"https://guide/missing"}, sum.Failed)
	assert.Equal(t, 3, sum.Locations)
	assert.FileExists(t, filepath.Join(dir, "austin.csv"))
	assert.FileExists(t, filepath.Join(dir, "dallas.csv"))
	assert.NoFileExists(t, filepath.Join(dir, "missing.csv"))
	assert.Equal(t, 2, obs.ok)
	assert.Equal(t, 1, obs.failed)

	require.Len(t, f.at, 3)
	for i := 1; i < len(f.at); i++ {
		assert.GreaterOrEqual(t, f.at[i].Sub(f.at[i-1]), delay)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRunBulk_StopsOnCancel(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{"a": "text", "b": "text"}}
	e := &fakeExtractor{results: map[string][]extract.Location{"text": {{Name: "Cafe A"}}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := newTestScraper(t, f, e, nil, nil).RunBulk(ctx, []Target{{URL: "a", Name: "a"}, {URL: "b", Name: "b"}}, t.TempDir(), time.Hour, false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sum.Succeeded)
}
