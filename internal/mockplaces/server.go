package mockplaces

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shpitdev/place-enricher/internal/enrich"
)

const (
	// SearchTextPath is the new Places API text search route.
	SearchTextPath = "/v1/places:searchText"
	// LegacyTextSearchPath is the legacy Places API text search route.
	LegacyTextSearchPath = "/maps/api/place/textsearch/json"
)

// Call records a request made to the mock service.
type Call struct {
	Method    string
	Path      string
	Query     string
	APIKey    string
	FieldMask string
}

type entry struct {
	match string
	place enrich.Place
}

// Server implements the text search surface of the new and legacy Places APIs.
// Queries containing a registered match string (case-insensitive) return that
// place; everything else returns an empty result set.
type Server struct {
	mu      sync.Mutex
	calls   []Call
	entries []entry

	expectedKey string
	failStatus  int
	delay       time.Duration
}

// New constructs an empty mock server.
func New() *Server {
	return &Server{}
}

// AddPlace registers a place returned for any query containing match.
// Earlier registrations win when several match.
func (s *Server) AddPlace(match string, p enrich.Place) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry{match: strings.ToLower(match), place: p})
}

// RequireAPIKey rejects requests that do not carry key. An empty key disables the check.
func (s *Server) RequireAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expectedKey = strings.TrimSpace(key)
}

// FailWith makes every request answer with status. Zero restores normal behavior.
func (s *Server) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
}

// SetDelay holds every response for d before answering.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Handler returns an http.Handler that serves the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(SearchTextPath, s.handleSearchText)
	mux.HandleFunc(LegacyTextSearchPath, s.handleLegacyTextSearch)
	return mux
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Server) record(c Call) (status int, delay time.Duration, expectedKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
	return s.failStatus, s.delay, s.expectedKey
}

func (s *Server) find(query string) (enrich.Place, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(query)
	for _, e := range s.entries {
		if strings.Contains(q, e.match) {
			return e.place, true
		}
	}
	return enrich.Place{}, false
}

// preflight records the call and applies delay, forced failures and key checks.
// It reports false when a response has already been written.
func (s *Server) preflight(w http.ResponseWriter, r *http.Request, c Call) bool {
	status, delay, key := s.record(c)
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return false
		}
	}
	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return false
	}
	if key != "" && c.APIKey != key {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error": map[string]any{"code": 403, "message": "API key not valid", "status": "PERMISSION_DENIED"},
		})
		return false
	}
	return true
}

type searchTextRequest struct {
	TextQuery      string `json:"textQuery"`
	MaxResultCount int    `json:"maxResultCount"`
}

func (s *Server) handleSearchText(w http.ResponseWriter, r *http.Request) {
	var req searchTextRequest
	decodeErr := json.NewDecoder(r.Body).Decode(&req)
	c := Call{
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     req.TextQuery,
		APIKey:    r.Header.Get("X-Goog-Api-Key"),
		FieldMask: r.Header.Get("X-Goog-FieldMask"),
	}
	if !s.preflight(w, r, c) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if decodeErr != nil || strings.TrimSpace(req.TextQuery) == "" {
		http.Error(w, "textQuery is required", http.StatusBadRequest)
		return
	}

	p, ok := s.find(req.TextQuery)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	place := map[string]any{
		"id":               p.PlaceID,
		"displayName":      map[string]any{"text": p.Name, "languageCode": "en"},
		"formattedAddress": p.Address,
		"websiteUri":       p.Website,
		"googleMapsUri":    p.MapURL,
	}
	if p.Location != nil {
		place["location"] = map[string]any{"latitude": p.Location.Lat, "longitude": p.Location.Lng}
	}
	writeJSON(w, http.StatusOK, map[string]any{"places": []any{place}})
}

func (s *Server) handleLegacyTextSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c := Call{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  q.Get("query"),
		APIKey: q.Get("key"),
	}
	if !s.preflight(w, r, c) {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if strings.TrimSpace(c.Query) == "" {
		writeJSON(w, http.StatusOK, map[string]any{"status": "INVALID_REQUEST", "results": []any{}})
		return
	}

	p, ok := s.find(c.Query)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ZERO_RESULTS", "results": []any{}})
		return
	}
	result := map[string]any{
		"place_id":          p.PlaceID,
		"name":              p.Name,
		"formatted_address": p.Address,
	}
	if p.Location != nil {
		result["geometry"] = map[string]any{"location": map[string]any{"lat": p.Location.Lat, "lng": p.Location.Lng}}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "OK", "results": []any{result}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
