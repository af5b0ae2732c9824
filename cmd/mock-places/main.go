package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/shpitdev/place-enricher/internal/enrich"
	"github.com/shpitdev/place-enricher/internal/mockplaces"
	"github.com/shpitdev/place-enricher/pkg/pipeline/io/local"
)

func main() {
	addr := defaultString("MOCK_PLACES_ADDR", ":8080")
	placesFile := defaultString("MOCK_PLACES_FILE", "")
	apiKey := defaultString("MOCK_PLACES_API_KEY", "")

	fs := flag.NewFlagSet("mock-places", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&placesFile, "places", placesFile, "CSV of canned places: match,place_id,name,address,lat,lng,website,map_url")
	fs.StringVar(&apiKey, "api-key", apiKey, "Reject requests that do not carry this key (empty accepts any)")
	_ = fs.Parse(os.Args[1:])

	srv := mockplaces.New()
	if apiKey != "" {
		srv.RequireAPIKey(apiKey)
	}
	n := 0
	if placesFile != "" {
		var err error
		if n, err = loadPlaces(srv, placesFile); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "load places: %v\n", err)
			os.Exit(2)
		}
	}

	_, _ = fmt.Fprintf(os.Stdout, "mock-places listening on %s (%d canned places)\n", addr, n)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func loadPlaces(srv *mockplaces.Server, path string) (int, error) {
	rr, err := local.OpenRows(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = rr.Close()
	}()

	n := 0
	for {
		row, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		match := strings.TrimSpace(row.Get("match"))
		if match == "" {
			continue
		}
		p := enrich.Place{
			PlaceID: row.Get("place_id"),
			Name:    row.Get("name"),
			Address: row.Get("address"),
			Website: row.Get("website"),
			MapURL:  row.Get("map_url"),
		}
		lat, latErr := strconv.ParseFloat(row.Get("lat"), 64)
		lng, lngErr := strconv.ParseFloat(row.Get("lng"), 64)
		if latErr == nil && lngErr == nil {
			p.Location = &enrich.LatLng{Lat: lat, Lng: lng}
		}
		srv.AddPlace(match, p)
		n++
	}
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
