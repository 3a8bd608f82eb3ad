package main

import (
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tbourn/sitesearch/internal/domain"
	"github.com/tbourn/sitesearch/internal/search"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1).
			Margin(0, 0, 1, 0)

	groupStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214")).
			Margin(1, 0, 0, 0)

	hitStyle = lipgloss.NewStyle().
			Bold(true)

	markStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("220"))

	urlStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	summaryStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("32")).
			Border(lipgloss.ThickBorder()).
			BorderForeground(lipgloss.Color("32")).
			Padding(0, 1).
			Margin(1, 0, 0, 0)
)

// terminalHighlight turns highlighted HTML into styled terminal text.
func terminalHighlight(s string) string {
	var b strings.Builder
	for {
		i := strings.Index(s, "<mark>")
		if i < 0 {
			b.WriteString(html.UnescapeString(s))
			return b.String()
		}
		b.WriteString(html.UnescapeString(s[:i]))
		s = s[i+len("<mark>"):]
		j := strings.Index(s, "</mark>")
		if j < 0 {
			j = len(s)
		}
		b.WriteString(markStyle.Render(html.UnescapeString(s[:j])))
		s = strings.TrimPrefix(s[j:], "</mark>")
	}
}

func printResult(w io.Writer, res search.Result) {
	header := fmt.Sprintf("Search: %s", res.Query.Text)
	if res.Query.Category != "" {
		header += " in " + res.Query.Category
	}
	fmt.Fprintln(w, titleStyle.Render(header))

	switch res.State {
	case domain.StateIdle:
		fmt.Fprintln(w, metaStyle.Render("Query too short to search."))
		return
	case domain.StateEmpty:
		fmt.Fprintln(w, metaStyle.Render("No results."))
	}

	for _, g := range res.Groups {
		fmt.Fprintln(w, groupStyle.Render(fmt.Sprintf("%s (%d)", g.Category, g.Count)))
		for _, h := range g.Hits {
			fmt.Fprintf(w, "  %s  %s\n", hitStyle.Render(terminalHighlight(h.TitleHTML)), urlStyle.Render(h.URL))
			if h.Subtitle != "" {
				fmt.Fprintf(w, "    %s\n", metaStyle.Render(h.Subtitle))
			}
			if h.ExcerptHTML != "" {
				fmt.Fprintf(w, "    %s\n", terminalHighlight(h.ExcerptHTML))
			}
		}
	}

	summary := fmt.Sprintf("%d results: %d custom, %d static in %s", res.Total, res.CustomHits, res.StaticHits, res.Duration.Round(100*time.Microsecond))
	if !res.StaticAvailable {
		summary += " (static index unavailable)"
	}
	fmt.Fprintln(w, summaryStyle.Render(summary))
}

func printSummary(w io.Writer, title string, rows [][2]string) {
	fmt.Fprintln(w, titleStyle.Render(title))
	for _, r := range rows {
		fmt.Fprintf(w, "  %s %s\n", metaStyle.Render(r[0]+":"), r[1])
	}
}
