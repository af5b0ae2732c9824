package pipeline

import (
	"strconv"

	"github.com/shpitdev/place-enricher/internal/enrich"
	"github.com/shpitdev/place-enricher/pkg/pipeline/core"
	"github.com/shpitdev/place-enricher/pkg/pipeline/schema"
)

// NotFoundReason is written to the failure sink for every unmatched row.
const NotFoundReason = "Not found in Google Places"

// Format converts between one input shape and the normalized request, and
// renders outcomes back into that shape's success and failure records.
type Format struct {
	Kind          schema.Kind
	SuccessHeader []string
	FailureHeader []string

	normalize func(core.Row) enrich.Request
	success   func(enrich.Request, enrich.Place) []string
	failure   func(enrich.Request, string) []string
}

// Normalize maps a raw input row to a lookup request.
func (f Format) Normalize(row core.Row) enrich.Request { return f.normalize(row) }

// Success renders a matched row.
func (f Format) Success(req enrich.Request, p enrich.Place) []string { return f.success(req, p) }

// Failure renders an unmatched row with reason.
func (f Format) Failure(req enrich.Request, reason string) []string { return f.failure(req, reason) }

var formats = map[schema.Kind]Format{
	schema.KindDefault: {
		Kind:          schema.KindDefault,
		SuccessHeader: []string{"City", "Name", "Cuisine", "Neighborhood", "Address", "Website", "Lat", "Lon", "Place_ID", "Google_Maps_URL", "Google_Name"},
		FailureHeader: []string{"City", "Name", "Cuisine", "Neighborhood", "Reason"},
		normalize: func(row core.Row) enrich.Request {
			return enrich.Request{
				Name:         row.Get("Name"),
				City:         row.Get("City"),
				Country:      "USA",
				Neighborhood: row.Get("Neighborhood"),
				Cuisine:      row.Get("Cuisine"),
			}
		},
		success: func(req enrich.Request, p enrich.Place) []string {
			lat, lng := coords(p)
			return []string{req.City, req.Name, req.Cuisine, req.Neighborhood, p.Address, p.Website, lat, lng, p.PlaceID, p.MapURL, p.Name}
		},
		failure: func(req enrich.Request, reason string) []string {
			return []string{req.City, req.Name, req.Cuisine, req.Neighborhood, reason}
		},
	},
	schema.KindAlternate: {
		Kind:          schema.KindAlternate,
		SuccessHeader: []string{"name", "city", "state", "country", "address", "website", "lat", "lon", "place_id", "google_maps_url", "google_name"},
		FailureHeader: []string{"name", "city", "state", "country", "reason"},
		normalize: func(row core.Row) enrich.Request {
			return enrich.Request{
				Name:    row.Get("name"),
				City:    row.Get("city"),
				State:   row.Get("state"),
				Country: row.Get("country"),
			}
		},
		success: func(req enrich.Request, p enrich.Place) []string {
			lat, lng := coords(p)
			return []string{req.Name, req.City, req.State, req.Country, p.Address, p.Website, lat, lng, p.PlaceID, p.MapURL, p.Name}
		},
		failure: func(req enrich.Request, reason string) []string {
			return []string{req.Name, req.City, req.State, req.Country, reason}
		},
	},
}

// FormatFor returns the adapter for kind. Unknown kinds fall back to the default shape.
func FormatFor(kind schema.Kind) Format {
	if f, ok := formats[kind]; ok {
		return f
	}
	return formats[schema.KindDefault]
}

func coords(p enrich.Place) (lat, lng string) {
	if p.Location == nil {
		return "", ""
	}
	return strconv.FormatFloat(p.Location.Lat, 'f', -1, 64), strconv.FormatFloat(p.Location.Lng, 'f', -1, 64)
}
