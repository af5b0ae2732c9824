package schema

import "strings"

// Kind identifies the tabular shape of an enrichment input.
type Kind int

const (
	// KindDefault is the City, Name, Cuisine, Neighborhood shape.
	KindDefault Kind = iota
	// KindAlternate is the name, city, state, country shape.
	KindAlternate
)

func (k Kind) String() string {
	switch k {
	case KindAlternate:
		return "alternate"
	default:
		return "default"
	}
}

// Detect picks the input shape from a header. The alternate shape requires both
// lowercase "name" and "state" columns; every other header is the default shape.
// Detection is decided once per run and is a pure function of the header.
func Detect(header []string) Kind {
	var hasName, hasState bool
	for _, col := range header {
		switch col {
		case "name":
			hasName = true
		case "state":
			hasState = true
		}
	}
	if hasName && hasState {
		return KindAlternate
	}
	return KindDefault
}

// ParseKind maps a configured shape name to a Kind. Unknown names report false.
func ParseKind(raw string) (Kind, bool) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "default", "chase":
		return KindDefault, true
	case "alternate", "resy":
		return KindAlternate, true
	default:
		return KindDefault, false
	}
}
