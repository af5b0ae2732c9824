// Package extract turns page text into place records with a language model.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxTextChars bounds the page text sent to the model.
const MaxTextChars = 100000

const truncationMarker = "\n... [truncated]"

// Location is one place the model found on a page. Every field may be empty.
type Location struct {
	Name         string `json:"name"`
	Address      string `json:"address"`
	Neighborhood string `json:"neighborhood"`
	Category     string `json:"category"`
	Description  string `json:"description"`
	PriceRange   string `json:"price_range"`
	Rating       Text   `json:"rating"`
}

// Result is the envelope the model is asked to return.
type Result struct {
	Locations  []Location `json:"locations"`
	SourceURL  string     `json:"source_url"`
	TotalCount Count      `json:"total_count"`
}

// Extractor pulls locations out of visible page text.
type Extractor interface {
	Extract(ctx context.Context, text, sourceURL string) (Result, error)
}

// Text decodes a JSON string, number or boolean as its textual form; null is "".
// Models are inconsistent about quoting values like ratings.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*t = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
	case bytes.Equal(b, []byte("true")), bytes.Equal(b, []byte("false")):
		*t = Text(b)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("rating: %w", err)
		}
		*t = Text(n.String())
	}
	return nil
}

// Count decodes a JSON integer or a quoted integer; null is 0.
type Count int

func (c *Count) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*c = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("total_count: %w", err)
	}
	*c = Count(n)
	return nil
}

// Truncate caps text at MaxTextChars runes and marks the cut.
func Truncate(text string) string {
	if utf8.RuneCountInString(text) <= MaxTextChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:MaxTextChars]) + truncationMarker
}

// BuildPrompt asks for the JSON envelope describing every location in text.
func BuildPrompt(text, sourceURL string) string {
	return strings.TrimSpace(`
Extract every restaurant, bar, cafe, shop or other physical location mentioned on this web page.

Return ONLY a single JSON object of this shape:
{
  "locations": [
    {
      "name": "place name",
      "address": "full street address if available",
      "neighborhood": "neighborhood or area if mentioned",
      "category": "type of place (restaurant, bar, cafe, ...)",
      "description": "brief description from the page",
      "price_range": "price indicator if mentioned",
      "rating": "rating if mentioned"
    }
  ],
  "source_url": "` + sourceURL + `",
  "total_count": 0
}

Rules:
- Use an empty string for any field the page does not mention.
- Include every location, not just the first few.
- total_count is the number of locations returned.

Page content:
` + Truncate(text))
}
