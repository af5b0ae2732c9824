package enrich

import (
	"context"
)

// Request is the normalized lookup input for one row, independent of the
// input CSV shape. Fields the shape does not carry are empty.
type Request struct {
	Name         string
	City         string
	State        string
	Country      string
	Neighborhood string
	Cuisine      string
}

// LatLng is a WGS84 coordinate.
type LatLng struct {
	Lat float64
	Lng float64
}

// Place is the top candidate returned by the mapping provider.
//
// Everything except PlaceID may be empty; Location is nil when the provider
// did not return coordinates.
type Place struct {
	PlaceID  string
	Name     string
	Address  string
	Location *LatLng
	Website  string
	MapURL   string
}

// Lookuper resolves a request to a place. ok is false when there is no confident
// match, including when the provider could not be reached; it never returns an error.
type Lookuper interface {
	Lookup(ctx context.Context, req Request) (place Place, ok bool)
}

// LookupFunc adapts a function to the Lookuper interface.
type LookupFunc func(ctx context.Context, req Request) (Place, bool)

func (f LookupFunc) Lookup(ctx context.Context, req Request) (Place, bool) {
	return f(ctx, req)
}
