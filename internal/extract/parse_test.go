package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: ` {"a":1} `, want: `{"a":1}`},
		{name: "json fence", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "bare fence", in: "```\n{\"a\":1}\n```\n", want: `{"a":1}`},
		{name: "single line fence", in: "```{\"a\":1}```", want: `{"a":1}`},
		{name: "unterminated fence", in: "```json\n{\"a\":1}", want: `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFence(tt.in))
		})
	}
}

func TestParse(t *testing.T) {
	raw := "```json\n" + `{
  "locations": [
    {"name": " Cafe A ", "address": "1 Main St", "neighborhood": "East", "category": "cafe",
     "description": "espresso", "price_range": "$$", "rating": 4.5},
    {"name": "Cafe B", "rating": null}
  ],
  "source_url": "https://example.com/best-cafes",
  "total_count": "2"
}` + "\n```"

	got, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, got.Locations, 2)
	assert.Equal(t, "Cafe A", got.Locations[0].Name)
	assert.Equal(t, Text("4.5"), got.Locations[0].Rating)
	assert.Equal(t, "$$", got.Locations[0].PriceRange)
	assert.Equal(t, Text(""), got.Locations[1].Rating)
	assert.Equal(t, Count(2), got.TotalCount)
	assert.Equal(t, "https://example.com/best-cafes", got.SourceURL)
}

func TestParseErrors(t *testing.T) {
	for name, raw := range map[string]string{
		"prose":          "I could not find any locations on this page.",
		"array":          `[{"name":"Cafe A"}]`,
		"trailing prose": `{"locations":[]} hope this helps`,
		"bad count":      `{"locations":[],"total_count":"many"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(raw)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, raw, pe.Excerpt)
		})
	}

	long := strings.Repeat("x", 2000)
	_, err := Parse(long)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Len(t, pe.Excerpt, 500)
}

func TestTruncate(t *testing.T) {
	short := "hello"
	assert.Equal(t, short, Truncate(short))

	long := strings.Repeat("a", MaxTextChars+10)
	got := Truncate(long)
	assert.True(t, strings.HasSuffix(got, "\n... [truncated]"))
	assert.Equal(t, MaxTextChars+len("\n... [truncated]"), len(got))
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("Cafe A is great", "https://example.com/list")
	assert.Contains(t, p, `"source_url": "https://example.com/list"`)
	assert.True(t, strings.HasSuffix(p, "Cafe A is great"))
}
