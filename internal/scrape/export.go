package scrape

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shpitdev/place-enricher/internal/enrich"
	"github.com/shpitdev/place-enricher/internal/extract"
)

// Record is an extracted location plus whatever the place lookup matched.
// The google_* fields are empty when there was no match or no lookup.
type Record struct {
	extract.Location
	GoogleName    string   `json:"google_name,omitempty"`
	GoogleAddress string   `json:"google_address,omitempty"`
	PlaceID       string   `json:"place_id,omitempty"`
	GoogleMapsURL string   `json:"google_maps_url,omitempty"`
	Lat           *float64 `json:"lat,omitempty"`
	Lng           *float64 `json:"lng,omitempty"`
}

func (r *Record) attach(p enrich.Place, mapURL string) {
	r.GoogleName = p.Name
	r.GoogleAddress = p.Address
	r.PlaceID = p.PlaceID
	r.GoogleMapsURL = mapURL
	if p.Location != nil {
		lat, lng := p.Location.Lat, p.Location.Lng
		r.Lat, r.Lng = &lat, &lng
	}
}

type column struct {
	name  string
	value func(Record) string
}

func coord(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

var columns = []column{
	{"name", func(r Record) string { return r.Name }},
	{"google_name", func(r Record) string { return r.GoogleName }},
	{"address", func(r Record) string { return r.Address }},
	{"google_address", func(r Record) string { return r.GoogleAddress }},
	{"neighborhood", func(r Record) string { return r.Neighborhood }},
	{"category", func(r Record) string { return r.Category }},
	{"description", func(r Record) string { return r.Description }},
	{"price_range", func(r Record) string { return r.PriceRange }},
	{"rating", func(r Record) string { return string(r.Rating) }},
	{"place_id", func(r Record) string { return r.PlaceID }},
	{"google_maps_url", func(r Record) string { return r.GoogleMapsURL }},
	{"lat", func(r Record) string { return coord(r.Lat) }},
	{"lng", func(r Record) string { return coord(r.Lng) }},
}

// Columns returns the header for records: the fixed column order, keeping
// "name" plus every column at least one record has a value for.
func Columns(records []Record) []string {
	var out []string
	for i, c := range columns {
		if i == 0 {
			out = append(out, c.name)
			continue
		}
		for _, r := range records {
			if c.value(r) != "" {
				out = append(out, c.name)
				break
			}
		}
	}
	return out
}

// WriteCSV writes records to path, replacing any existing file.
func WriteCSV(path string, records []Record) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	header := Columns(records)
	pick := make([]column, 0, len(header))
	for _, c := range columns {
		for _, h := range header {
			if c.name == h {
				pick = append(pick, c)
			}
		}
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	row := make([]string, len(pick))
	for _, r := range records {
		for i, c := range pick {
			row[i] = c.value(r)
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// WriteJSON writes records to path as an indented array.
func WriteJSON(path string, records []Record) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if records == nil {
		records = []Record{}
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}

// JSONPath is csvPath with its extension replaced by .json.
func JSONPath(csvPath string) string {
	return strings.TrimSuffix(csvPath, filepath.Ext(csvPath)) + ".json"
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
