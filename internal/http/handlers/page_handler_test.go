package handlers

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/tbourn/sitesearch/internal/domain"
	"github.com/tbourn/sitesearch/internal/search"
)

// ---------- SearchPage ----------

func TestSearchPage_RendersGroupedResults(t *testing.T) {
	svc := newStubSearchSvc()
	r, _ := newRouter(svc, stubIndexSvc{}, Options{})

	w := get(r, "/search?q=water&category=Labs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`value="water"`,
		`<option value="Labs" selected>`,
		`<option value="News">`,
		`href="/labs/groundwater"`,
		`Ground<mark>water</mark> Lab`,
		`1 result for`,
		`"/search/live"`,
		`data-search-ignore`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("page missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "/news/water-week") {
		t.Fatalf("category filter not applied")
	}
	if strings.Contains(body, "search-notice") {
		t.Fatalf("static notice shown while static index is available")
	}
	if n := len(svc.Recorded()); n != 1 {
		t.Fatalf("recorded %d searches", n)
	}
}

func TestSearchPage_IdleEmptyAndStaticNotice(t *testing.T) {
	svc := newStubSearchSvc()
	svc.static = false
	r, _ := newRouter(svc, stubIndexSvc{}, Options{})

	w := get(r, "/search", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Type at least 2 characters") {
		t.Fatalf("idle page: status=%d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "search-notice") {
		t.Fatalf("static unavailable notice missing")
	}

	w = get(r, "/search?q=zzzz", nil)
	if !strings.Contains(w.Body.String(), "No results for &ldquo;zzzz&rdquo;") {
		t.Fatalf("empty page body=%s", w.Body.String())
	}
}

func TestSearchPage_EscapesQueryAndKeepsUnknownCategory(t *testing.T) {
	r, _ := newRouter(newStubSearchSvc(), stubIndexSvc{}, Options{})
	w := get(r, "/search?q=%3Cscript%3E&category=Archive", nil)
	body := w.Body.String()
	if strings.Contains(body, "<script>alert") || strings.Contains(body, `value="<script>"`) {
		t.Fatalf("query not escaped")
	}
	if !strings.Contains(body, `<option value="Archive" selected>`) {
		t.Fatalf("requested category should stay selectable")
	}
}

func TestSearchPage_Errors(t *testing.T) {
	r, _ := newRouter(newStubSearchSvc(), stubIndexSvc{}, Options{})
	w := get(r, "/search?q="+strings.Repeat("a", 41), nil)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "too long") {
		t.Fatalf("too long: status=%d", w.Code)
	}

	svc := newStubSearchSvc()
	svc.searchErr = errors.New("boom")
	r, _ = newRouter(svc, stubIndexSvc{}, Options{})
	w = get(r, "/search?q=water", nil)
	if w.Code != http.StatusInternalServerError || !strings.Contains(w.Body.String(), "Search failed") {
		t.Fatalf("internal: status=%d", w.Code)
	}
}

// ---------- renderResults ----------

func TestRenderResults_States(t *testing.T) {
	_, h := newRouter(newStubSearchSvc(), stubIndexSvc{}, Options{})

	html, err := h.renderResults(search.Update{State: domain.StateLoading, StaticAvailable: true})
	if err != nil || !strings.Contains(html, "Searching") {
		t.Fatalf("loading: %q err=%v", html, err)
	}

	groups := domain.GroupedResults{{Category: "Staff Directory", Count: 1, Hits: []domain.Hit{{
		SearchRecord: domain.SearchRecord{URL: "/staff/jane", Type: domain.TypeStaff, Subtitle: "Hydrologist", Address: "Room 4"},
		TitleHTML:    "<mark>Jane</mark> Doe",
		ExcerptHTML:  "&hellip;<mark>Jane</mark> Doe&hellip;",
	}}}}
	html, err = h.renderResults(search.Update{
		State:  domain.StateResults,
		Query:  domain.Query{Text: "jane"},
		Groups: groups,
		Total:  1,
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"search-hit--staff", "<mark>Jane</mark> Doe", "Hydrologist", "Room 4", "Staff Directory", "search-notice"} {
		if !strings.Contains(html, want) {
			t.Fatalf("results missing %q:\n%s", want, html)
		}
	}
}
