package research

import "strings"

// QueryOrigin tags a query with the planning pass that produced it.
type QueryOrigin string

const (
	QueryOriginInitial QueryOrigin = "initial"
	QueryOriginGapFill QueryOrigin = "gap-fill"
)

// Query is a generated search string.
type Query struct {
	// Text is the search string sent to the provider.
	Text string `json:"text"`
	// Origin is the planning pass that produced the query.
	Origin QueryOrigin `json:"origin"`
	// Iteration is the loop iteration that produced the query.
	Iteration int `json:"iteration"`
}

// normalizeQuery lowercases and collapses whitespace so duplicate queries
// compare equal.
func normalizeQuery(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// dedupeQueries drops queries that normalize to an earlier one, keeping the
// first occurrence order.
func dedupeQueries(queries []Query) []Query {
	seen := make(map[string]struct{}, len(queries))
	out := make([]Query, 0, len(queries))
	for _, q := range queries {
		key := normalizeQuery(q.Text)
		if key == "" {
			continue
		}
		if _, found := seen[key]; found {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	return out
}
