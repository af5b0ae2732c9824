package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shpitdev/place-enricher/internal/enrich"
	"github.com/shpitdev/place-enricher/internal/pipeline"
	"github.com/shpitdev/place-enricher/pkg/pipeline/core"
	"github.com/shpitdev/place-enricher/pkg/pipeline/schema"
)

func TestFormatDefault(t *testing.T) {
	f := pipeline.FormatFor(schema.KindDefault)
	req := f.Normalize(core.Row{Values: map[string]string{
		"City": "Chicago", "Name": "Alinea", "Cuisine": "American", "Neighborhood": "Lincoln Park",
	}})
	assert.Equal(t, enrich.Request{
		Name: "Alinea", City: "Chicago", Country: "USA", Neighborhood: "Lincoln Park", Cuisine: "American",
	}, req)

	got := f.Success(req, enrich.Place{
		PlaceID:  "pid",
		Name:     "Alinea Restaurant",
		Address:  "1723 N Halsted St",
		Location: &enrich.LatLng{Lat: 41.9133, Lng: -87.6482},
		Website:  "https://alinearestaurant.com",
		MapURL:   "https://maps.google.com/?cid=2",
	})
	assert.Equal(t, []string{
		"Chicago", "Alinea", "American", "Lincoln Park", "1723 N Halsted St", "https://alinearestaurant.com",
		"41.9133", "-87.6482", "pid", "https://maps.google.com/?cid=2", "Alinea Restaurant",
	}, got)
	assert.Len(t, got, len(f.SuccessHeader))

	fail := f.Failure(req, pipeline.NotFoundReason)
	assert.Equal(t, []string{"Chicago", "Alinea", "American", "Lincoln Park", "Not found in Google Places"}, fail)
	assert.Len(t, fail, len(f.FailureHeader))
}

func TestFormatAlternate(t *testing.T) {
	f := pipeline.FormatFor(schema.KindAlternate)
	req := f.Normalize(core.Row{Values: map[string]string{
		"name": "Cafe A", "city": "Austin", "state": "TX", "country": "USA", "extra": "ignored",
	}})
	assert.Equal(t, enrich.Request{Name: "Cafe A", City: "Austin", State: "TX", Country: "USA"}, req)

	got := f.Success(req, enrich.Place{PlaceID: "pid", Name: "Cafe A"})
	assert.Equal(t, []string{"Cafe A", "Austin", "TX", "USA", "", "", "", "", "pid", "", "Cafe A"}, got)
	assert.Equal(t, []string{"name", "city", "state", "country", "reason"}, f.FailureHeader)
	assert.Equal(t, []string{"Cafe A", "Austin", "TX", "USA", "Not found in Google Places"}, f.Failure(req, pipeline.NotFoundReason))
}
