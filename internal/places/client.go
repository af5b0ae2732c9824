// Package places looks up restaurants in the Google Places text search APIs.
package places

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shpitdev/place-enricher/internal/enrich"
	"github.com/shpitdev/place-enricher/pkg/pipeline/redact"
)

// Variant selects the request shape sent to the provider.
type Variant int

const (
	// VariantNew is the Places API (New) searchText endpoint.
	VariantNew Variant = iota
	// VariantLegacy is the legacy textsearch endpoint.
	VariantLegacy
)

func (v Variant) String() string {
	if v == VariantLegacy {
		return "legacy"
	}
	return "new"
}

const (
	DefaultNewBaseURL    = "https://places.googleapis.com"
	DefaultLegacyBaseURL = "https://maps.googleapis.com"

	searchTextPath       = "/v1/places:searchText"
	legacyTextSearchPath = "/maps/api/place/textsearch/json"

	// FieldMask limits the new API response to the fields we read.
	FieldMask = "places.id,places.displayName,places.formattedAddress,places.location,places.websiteUri,places.googleMapsUri"

	// RequestTimeout bounds every provider call.
	RequestTimeout = 10 * time.Second

	maxResponseBytes = 1 << 20
)

// ErrNoResults is returned by Find when the provider answered but had no candidate.
var ErrNoResults = errors.New("places: no results")

// Config configures a Client.
type Config struct {
	APIKey  string
	Variant Variant

	// BaseURL overrides the provider origin, e.g. for a mock server.
	BaseURL string

	// HTTPClient defaults to a client with RequestTimeout.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client performs single-candidate text searches.
type Client struct {
	apiKey  string
	variant Variant
	baseURL string
	hc      *http.Client
	log     *zap.Logger
}

var _ enrich.Lookuper = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("places: api key is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultNewBaseURL
		if cfg.Variant == VariantLegacy {
			base = DefaultLegacyBaseURL
		}
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("places: invalid base url: %w", err)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: RequestTimeout}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		apiKey:  key,
		variant: cfg.Variant,
		baseURL: base,
		hc:      hc,
		log:     log.Named("places"),
	}, nil
}

// Variant reports the request shape this client sends.
func (c *Client) Variant() Variant { return c.variant }

// Query builds the text query the client sends for req.
func (c *Client) Query(req enrich.Request) string {
	if c.variant == VariantLegacy {
		return BuildLegacyQuery(req.Name, req.City, req.State, req.Neighborhood)
	}
	return BuildQuery(req.Name, req.City, req.State, req.Neighborhood)
}

// Lookup searches for the restaurant described by req. Any provider failure is
// logged and reported as no match.
func (c *Client) Lookup(ctx context.Context, req enrich.Request) (enrich.Place, bool) {
	return c.Search(ctx, c.Query(req))
}

// Search runs a free-text query and returns the top candidate. Like Lookup it
// absorbs every error into ok=false.
func (c *Client) Search(ctx context.Context, query string) (enrich.Place, bool) {
	p, err := c.Find(ctx, query)
	if err != nil {
		if !errors.Is(err, ErrNoResults) {
			c.log.Debug("lookup failed",
				zap.String("query", query),
				zap.String("error", redact.Secrets(err.Error())),
			)
		}
		return enrich.Place{}, false
	}
	return p, true
}

// Find runs a free-text query and returns the top candidate or the error that
// prevented one. Callers that need "no match" semantics use Search.
func (c *Client) Find(ctx context.Context, query string) (enrich.Place, error) {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	if c.variant == VariantLegacy {
		return c.findLegacy(ctx, query)
	}
	return c.findNew(ctx, query)
}

type searchTextResponse struct {
	Places []struct {
		ID          string `json:"id"`
		DisplayName struct {
			Text string `json:"text"`
		} `json:"displayName"`
		FormattedAddress string `json:"formattedAddress"`
		Location         *struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"location"`
		WebsiteURI    string `json:"websiteUri"`
		GoogleMapsURI string `json:"googleMapsUri"`
	} `json:"places"`
}

func (c *Client) findNew(ctx context.Context, query string) (enrich.Place, error) {
	payload, err := json.Marshal(map[string]any{
		"textQuery":      query,
		"maxResultCount": 1,
	})
	if err != nil {
		return enrich.Place{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+searchTextPath, bytes.NewReader(payload))
	if err != nil {
		return enrich.Place{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", FieldMask)

	var out searchTextResponse
	if err := c.do(req, "searchText", &out); err != nil {
		return enrich.Place{}, err
	}
	if len(out.Places) == 0 {
		return enrich.Place{}, ErrNoResults
	}
	top := out.Places[0]
	p := enrich.Place{
		PlaceID: top.ID,
		Name:    top.DisplayName.Text,
		Address: top.FormattedAddress,
		Website: top.WebsiteURI,
		MapURL:  top.GoogleMapsURI,
	}
	if top.Location != nil {
		p.Location = &enrich.LatLng{Lat: top.Location.Latitude, Lng: top.Location.Longitude}
	}
	return p, nil
}

type legacyResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		PlaceID          string `json:"place_id"`
		Name             string `json:"name"`
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location *struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

func (c *Client) findLegacy(ctx context.Context, query string) (enrich.Place, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+legacyTextSearchPath+"?"+q.Encode(), nil)
	if err != nil {
		return enrich.Place{}, err
	}

	var out legacyResponse
	if err := c.do(req, "textsearch", &out); err != nil {
		return enrich.Place{}, err
	}
	switch out.Status {
	case "OK":
	case "ZERO_RESULTS":
		return enrich.Place{}, ErrNoResults
	default:
		return enrich.Place{}, &StatusError{Status: out.Status, Message: out.ErrorMessage}
	}
	if len(out.Results) == 0 {
		return enrich.Place{}, ErrNoResults
	}
	top := out.Results[0]
	p := enrich.Place{
		PlaceID: top.PlaceID,
		Name:    top.Name,
		Address: top.FormattedAddress,
		MapURL:  LegacyMapURL(top.PlaceID),
	}
	if top.Geometry.Location != nil {
		p.Location = &enrich.LatLng{Lat: top.Geometry.Location.Lat, Lng: top.Geometry.Location.Lng}
	}
	return p, nil
}

// LegacyMapURL synthesizes a Maps link from a place id; the legacy API does not return one.
func LegacyMapURL(placeID string) string {
	if placeID == "" {
		return ""
	}
	return "https://www.google.com/maps/place/?q=place_id:" + placeID
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newHTTPError(op, resp, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
