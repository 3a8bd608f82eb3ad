package search

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

const (
	// excerptBefore is how many runes of context precede the first match.
	excerptBefore = 50
	// excerptAfter is how many runes follow the match, on top of its length.
	excerptAfter = 100
	// excerptFallback is the excerpt length when the query is not in the text.
	excerptFallback = 150

	ellipsis = "..."

	markOpen  = "<mark>"
	markClose = "</mark>"
)

// stripPolicy removes every element and keeps text content only. Stripped
// tags leave a space so adjacent blocks do not run together.
var stripPolicy = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}()

// StripMarkup removes HTML tags from s, unescapes entities, and collapses
// runs of whitespace to single spaces.
func StripMarkup(s string) string {
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "<&") {
		s = html.UnescapeString(stripPolicy.Sanitize(s))
	}
	return collapseWhitespace(s)
}

func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// matcher finds literal, case-insensitive occurrences of a query. The query
// is escaped before compilation so regexp metacharacters match themselves.
type matcher struct {
	query string
	re    *regexp.Regexp
}

func newMatcher(query string) *matcher {
	if query == "" {
		return &matcher{}
	}
	return &matcher{
		query: query,
		re:    regexp.MustCompile(`(?i)` + regexp.QuoteMeta(query)),
	}
}

// first returns the rune offsets [start, end) of the first match in s, or
// (-1, -1) when there is none.
func (m *matcher) first(s string) (int, int) {
	if m.re == nil {
		return -1, -1
	}
	loc := m.re.FindStringIndex(s)
	if loc == nil {
		return -1, -1
	}
	start := runeCount(s[:loc[0]])
	return start, start + runeCount(s[loc[0]:loc[1]])
}

// highlight HTML-escapes s and wraps every match in a mark element.
func (m *matcher) highlight(s string) string {
	if m.re == nil || s == "" {
		return html.EscapeString(s)
	}
	locs := m.re.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return html.EscapeString(s)
	}
	var b strings.Builder
	b.Grow(len(s) + len(locs)*(len(markOpen)+len(markClose)))
	prev := 0
	for _, loc := range locs {
		b.WriteString(html.EscapeString(s[prev:loc[0]]))
		b.WriteString(markOpen)
		b.WriteString(html.EscapeString(s[loc[0]:loc[1]]))
		b.WriteString(markClose)
		prev = loc[1]
	}
	b.WriteString(html.EscapeString(s[prev:]))
	return b.String()
}

// excerpt windows plain text around the first match of the query: up to
// excerptBefore runes before it and excerptAfter plus the match length
// after its start. Ellipses mark only the sides that were actually cut.
func (m *matcher) excerpt(text string) string {
	runes := []rune(text)
	start, end := m.first(text)
	if start < 0 {
		if len(runes) <= excerptFallback {
			return text
		}
		return string(runes[:excerptFallback]) + ellipsis
	}

	from := start - excerptBefore
	if from < 0 {
		from = 0
	}
	to := start + (end - start) + excerptAfter
	if to > len(runes) {
		to = len(runes)
	}

	var b strings.Builder
	if from > 0 {
		b.WriteString(ellipsis)
	}
	b.WriteString(string(runes[from:to]))
	if to < len(runes) {
		b.WriteString(ellipsis)
	}
	return b.String()
}

// Excerpt strips markup from content and returns the match window for query.
func Excerpt(content, query string) string {
	return newMatcher(query).excerpt(StripMarkup(content))
}

// Highlight HTML-escapes s and wraps every case-insensitive occurrence of
// query in <mark> tags, preserving the original casing.
func Highlight(s, query string) string {
	return newMatcher(query).highlight(s)
}

func runeCount(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}
