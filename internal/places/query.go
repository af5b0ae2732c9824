package places

import "strings"

// BuildQuery composes the free-text search for a restaurant:
// "<name> restaurant in <neighborhood>, <city>, <state>".
// Empty segments are omitted and a segment equal to an earlier one (the city
// repeated as neighborhood or state, compared case-insensitively) is dropped.
func BuildQuery(name, city, state, neighborhood string) string {
	return buildQuery(name, city, state, neighborhood, "in ")
}

// BuildLegacyQuery is BuildQuery without the "in" connective, matching the
// phrasing the legacy text search ranks best.
func BuildLegacyQuery(name, city, state, neighborhood string) string {
	return buildQuery(name, city, state, neighborhood, "")
}

func buildQuery(name, city, state, neighborhood, connective string) string {
	location := joinLocation(neighborhood, city, state)
	q := strings.TrimSpace(name) + " restaurant"
	if location == "" {
		return strings.TrimSpace(q)
	}
	return strings.TrimSpace(q + " " + connective + location)
}

func joinLocation(segments ...string) string {
	seen := make(map[string]bool, len(segments))
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		key := strings.ToLower(seg)
		if seen[key] {
			continue
		}
		seen[key] = true
		parts = append(parts, seg)
	}
	return strings.Join(parts, ", ")
}
