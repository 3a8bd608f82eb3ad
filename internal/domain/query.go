package domain

import "strings"

// Query is the ephemeral search request: the raw text plus an optional
// category filter ("" means all categories).
type Query struct {
	Text     string `json:"q"`
	Category string `json:"category,omitempty"`
}

// Normalize trims surrounding whitespace from both fields.
func (q Query) Normalize() Query {
	return Query{
		Text:     strings.TrimSpace(q.Text),
		Category: strings.TrimSpace(q.Category),
	}
}

// State is the query engine's per-query state.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateResults State = "results"
	StateEmpty   State = "empty"
)

// Hit is a rendered result card: the record plus its highlighted title and
// excerpt. Highlighted strings are HTML-safe.
type Hit struct {
	SearchRecord
	TitleHTML   string `json:"title_html"`
	ExcerptHTML string `json:"excerpt_html"`
}

// Group is one category block of a result set.
type Group struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
	Hits     []Hit  `json:"hits"`
}

// GroupedResults maps categories to hits while preserving the order in which
// categories were first encountered.
type GroupedResults []Group

// Total is the number of hits across all groups.
func (g GroupedResults) Total() int {
	n := 0
	for _, grp := range g {
		n += len(grp.Hits)
	}
	return n
}

// Categories returns the group labels in encounter order.
func (g GroupedResults) Categories() []string {
	out := make([]string, 0, len(g))
	for _, grp := range g {
		out = append(out, grp.Category)
	}
	return out
}
