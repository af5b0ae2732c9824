package places

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name       string
		in         [4]string // name, city, state, neighborhood
		want       string
		wantLegacy string
	}{
		{
			name:       "all segments",
			in:         [4]string{"Le Bernardin", "New York", "NY", "Midtown"},
			want:       "Le Bernardin restaurant in Midtown, New York, NY",
			wantLegacy: "Le Bernardin restaurant Midtown, New York, NY",
		},
		{
			name:       "neighborhood repeats city",
			in:         [4]string{"Katz's", "New York", "", "new york"},
			want:       "Katz's restaurant in new york",
			wantLegacy: "Katz's restaurant new york",
		},
		{
			name:       "state repeats city",
			in:         [4]string{"Cafe A", "Singapore", "Singapore", ""},
			want:       "Cafe A restaurant in Singapore",
			wantLegacy: "Cafe A restaurant Singapore",
		},
		{
			name:       "no location",
			in:         [4]string{"Cafe A", "", "", ""},
			want:       "Cafe A restaurant",
			wantLegacy: "Cafe A restaurant",
		},
		{
			name:       "city and state only",
			in:         [4]string{"Cafe B", "Denver", "CO", ""},
			want:       "Cafe B restaurant in Denver, CO",
			wantLegacy: "Cafe B restaurant Denver, CO",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildQuery(tt.in[0], tt.in[1], tt.in[2], tt.in[3]))
			assert.Equal(t, tt.wantLegacy, BuildLegacyQuery(tt.in[0], tt.in[1], tt.in[2], tt.in[3]))
		})
	}
}

func TestBuildQueryEachSegmentOnce(t *testing.T) {
	q := BuildQuery("Le Bernardin", "New York", "NY", "Midtown")
	for _, seg := range []string{"Le Bernardin", "Midtown", "New York"} {
		assert.Equal(t, 1, strings.Count(q, seg), "segment %q in %q", seg, q)
	}
}
