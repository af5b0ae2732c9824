package app_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shpitdev/place-enricher/internal/app"
	"github.com/shpitdev/place-enricher/internal/enrich"
	"github.com/shpitdev/place-enricher/internal/mockplaces"
	"github.com/shpitdev/place-enricher/internal/places"
	"github.com/shpitdev/place-enricher/pkg/pipeline/checkpoint"
	"github.com/shpitdev/place-enricher/pkg/pipeline/schema"
)

func newPlacesClient(t *testing.T, mock *mockplaces.Server, variant places.Variant) *places.Client {
	t.Helper()
	ts := httptest.NewServer(mock.Handler())
	t.Cleanup(ts.Close)
	c, err := places.NewClient(places.Config{
		APIKey:  "dummy-key",
		Variant: variant,
		BaseURL: ts.URL,
		Logger:  zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return c
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	require.NoError(t, err)
	return records
}

func writeInput(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "restaurants.csv")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestRunEnrich_EndToEndAgainstMock(t *testing.T) {
	t.Parallel()

	mock := mockplaces.New()
	mock.RequireAPIKey("dummy-key")
	mock.AddPlace("Cafe A", enrich.Place{
		PlaceID:  "pid-a",
		Name:     "Cafe A",
		Address:  "1 Main St, Austin, TX",
		Location: &enrich.LatLng{Lat: 30.25, Lng: -97.75},
		Website:  "https://cafe-a.example",
		MapURL:   "https://maps.google.com/?cid=1",
	})
	mock.AddPlace("Cafe C", enrich.Place{PlaceID: "pid-c", Name: "Cafe C"})
	client := newPlacesClient(t, mock, places.VariantNew)

	dir := t.TempDir()
	input := writeInput(t, dir, "name,city,state,country\nCafe A,Austin,TX,USA\nCafe B,Austin,TX,USA\nCafe C,Dallas,TX,USA\n")

	sum, err := app.RunEnrich(context.Background(), app.EnrichOptions{
		InputPath:       input,
		CheckpointEvery: 2,
	}, client, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.Equal(t, schema.KindAlternate, sum.Kind)
	assert.Equal(t, 2, sum.Stats.Success)
	assert.Equal(t, 1, sum.Stats.Failed)
	assert.Equal(t, filepath.Join(dir, "restaurants_enriched.csv"), sum.OutputPath)
	assert.Equal(t, filepath.Join(dir, "restaurants_failed.csv"), sum.FailedPath)
	assert.NotEmpty(t, sum.RunID)

	ok := readCSV(t, sum.OutputPath)
	require.Len(t, ok, 3)
	assert.Equal(t, []string{"name", "city", "state", "country", "address", "website", "lat", "lon", "place_id", "google_maps_url", "google_name"}, ok[0])
	assert.Equal(t, []string{"Cafe A", "Austin", "TX", "USA", "1 Main St, Austin, TX", "https://cafe-a.example", "30.25", "-97.75", "pid-a", "https://maps.google.com/?cid=1", "Cafe A"}, ok[1])
	assert.Equal(t, "pid-c", ok[2][8])

	failed := readCSV(t, sum.FailedPath)
	require.Len(t, failed, 2)
	assert.Equal(t, []string{"Cafe B", "Austin", "TX", "USA", "Not found in Google Places"}, failed[1])

	state, found, err := checkpoint.NewStore(sum.CheckpointPath).LoadState()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 3, state.LastRow)
	assert.Equal(t, checkpoint.Stats{Success: 2, Failed: 1}, state.Stats)

	calls := mock.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "dummy-key", calls[0].APIKey)
	assert.Equal(t, places.FieldMask, calls[0].FieldMask)
}

func TestRunEnrich_ResumeAppendsWithoutReprocessing(t *testing.T) {
	t.Parallel()

	mock := mockplaces.New()
	mock.AddPlace("Cafe", enrich.Place{PlaceID: "pid", Name: "Cafe"})
	client := newPlacesClient(t, mock, places.VariantNew)

	dir := t.TempDir()
	var in strings.Builder
	in.WriteString("City,Name,Cuisine,Neighborhood\n")
	for _, n := range []string{"A", "B", "C", "D", "E"} {
		in.WriteString("Austin,Cafe " + n + ",Tacos,East\n")
	}
	input := writeInput(t, dir, in.String())

	first, err := app.RunEnrich(context.Background(), app.EnrichOptions{
		InputPath:       input,
		Limit:           3,
		CheckpointEvery: 1,
	}, client, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, schema.KindDefault, first.Kind)
	assert.Equal(t, 3, first.Stats.Success)

	second, err := app.RunEnrich(context.Background(), app.EnrichOptions{
		InputPath:       input,
		Resume:          true,
		CheckpointEvery: 1,
	}, client, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 3, second.StartRow)
	assert.Equal(t, 2, second.Stats.Success)
	assert.Equal(t, 3, second.Stats.Skipped)

	rows := readCSV(t, second.OutputPath)
	require.Len(t, rows, 1+5, "header once plus every row exactly once")
	assert.Equal(t, "City", rows[0][0])
	var names []string
	for _, r := range rows[1:] {
		names = append(names, r[1])
	}
	assert.Equal(t, []string{"Cafe A", "Cafe B", "Cafe C", "Cafe D", "Cafe E"}, names)
	assert.Len(t, mock.Calls(), 5)
}

func TestRunEnrich_ProviderErrorsBecomeFailures(t *testing.T) {
	t.Parallel()

	mock := mockplaces.New()
	mock.FailWith(http.StatusInternalServerError)
	client := newPlacesClient(t, mock, places.VariantLegacy)

	input := writeInput(t, t.TempDir(), "name,city,state\nCafe A,Austin,TX\nCafe B,Austin,TX\n")
	sum, err := app.RunEnrich(context.Background(), app.EnrichOptions{InputPath: input, Workers: 2}, client, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Stats.Success)
	assert.Equal(t, 2, sum.Stats.Failed)
	assert.Len(t, readCSV(t, sum.FailedPath), 3)
	assert.NoFileExists(t, sum.CheckpointPath)
}

func TestRunEnrich_InputErrors(t *testing.T) {
	t.Parallel()

	never := enrich.LookupFunc(func(context.Context, enrich.Request) (enrich.Place, bool) {
		t.Error("lookup must not be called")
		return enrich.Place{}, false
	})

	t.Run("missing input", func(t *testing.T) {
		_, err := app.RunEnrich(context.Background(), app.EnrichOptions{
			InputPath: filepath.Join(t.TempDir(), "nope.csv"),
		}, never, nil, nil)
		assert.ErrorIs(t, err, app.ErrInputNotFound)
	})

	t.Run("corrupt checkpoint on resume", func(t *testing.T) {
		dir := t.TempDir()
		input := writeInput(t, dir, "name,city,state\nCafe A,Austin,TX\n")
		out, _ := app.DefaultOutputPaths(input)
		require.NoError(t, os.WriteFile(checkpoint.PathFor(out), []byte("{not json"), 0o644))

		_, err := app.RunEnrich(context.Background(), app.EnrichOptions{InputPath: input, Resume: true}, never, nil, nil)
		assert.ErrorIs(t, err, checkpoint.ErrCorrupt)
		assert.NoFileExists(t, out)
	})

	t.Run("unknown schema", func(t *testing.T) {
		input := writeInput(t, t.TempDir(), "name,city,state\nCafe A,Austin,TX\n")
		_, err := app.RunEnrich(context.Background(), app.EnrichOptions{InputPath: input, Schema: "xml"}, never, nil, nil)
		assert.Error(t, err)
	})
}

func TestRunEnrich_ForcedSchema(t *testing.T) {
	t.Parallel()

	var got []enrich.Request
	lookup := enrich.LookupFunc(func(_ context.Context, req enrich.Request) (enrich.Place, bool) {
		got = append(got, req)
		return enrich.Place{}, false
	})
	input := writeInput(t, t.TempDir(), "Name,City,name,state\nCafe A,Austin,x,TX\n")

	sum, err := app.RunEnrich(context.Background(), app.EnrichOptions{InputPath: input, Schema: "default"}, lookup, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, schema.KindDefault, sum.Kind)
	require.Len(t, got, 1)
	assert.Equal(t, "Cafe A", got[0].Name)
}

func TestWriteEnrichSummary(t *testing.T) {
	var buf bytes.Buffer
	app.WriteEnrichSummary(&buf, app.EnrichSummary{
		StartRow:   4,
		Stats:      checkpoint.Stats{Success: 3, Failed: 1, Skipped: 4},
		OutputPath: "out.csv",
		FailedPath: "failed.csv",
	})
	out := buf.String()
	assert.Contains(t, out, "Resumed from row: 4")
	assert.Contains(t, out, "Total processed: 4")
	assert.Contains(t, out, "Successfully enriched: 3 (75.0%)")
	assert.Contains(t, out, "Failed lookups: 1 (25.0%)")
}
