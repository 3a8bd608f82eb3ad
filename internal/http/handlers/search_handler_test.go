package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/sitesearch/internal/domain"
	"github.com/tbourn/sitesearch/internal/search"
	"github.com/tbourn/sitesearch/internal/services"
)

// ---------- stubs ----------

func sampleRecords() []domain.SearchRecord {
	return []domain.SearchRecord{
		{Title: "Groundwater Lab", URL: "/labs/groundwater", Content: "Water chemistry and aquifer studies", Type: domain.TypeLab, Category: "Labs"},
		{Title: "Jane Doe", URL: "/staff/jane", Content: "Jane Doe, hydrologist", Type: domain.TypeStaff, Category: "Staff Directory", Subtitle: "Hydrologist"},
		{Title: "Water Week", URL: "/news/water-week", Content: "Annual water week events", Type: domain.TypePage, Category: "News"},
	}
}

// stubSearchSvc runs the real engine over in-memory records and records
// what the handlers hand back to it.
type stubSearchSvc struct {
	engine    *search.Engine
	recs      []domain.SearchRecord
	static    bool
	maxRunes  int
	searchErr error

	popular func(context.Context, time.Duration, int) ([]domain.PopularQuery, error)
	version func(context.Context, time.Duration) (int64, *time.Time, error)

	mu       sync.Mutex
	recorded []search.Result
}

func newStubSearchSvc() *stubSearchSvc {
	return &stubSearchSvc{engine: search.NewEngine(), recs: sampleRecords(), static: true, maxRunes: 40}
}

func (s *stubSearchSvc) Validate(q domain.Query) (domain.Query, error) {
	q = q.Normalize()
	if utf8.RuneCountInString(q.Text) > s.maxRunes {
		return q, services.ErrQueryTooLong
	}
	return q, nil
}

func (s *stubSearchSvc) Session(context.Context) *search.Session {
	return search.NewSessionFromRecords(s.recs, search.NoopStatic{}, s.static, zerolog.Nop())
}

func (s *stubSearchSvc) SearchSession(ctx context.Context, sess *search.Session, q domain.Query) (search.Result, error) {
	if s.searchErr != nil {
		return search.Result{}, s.searchErr
	}
	q, err := s.Validate(q)
	if err != nil {
		return search.Result{Query: q, State: domain.StateIdle}, err
	}
	res := s.engine.Search(ctx, sess, q)
	s.Record(ctx, res)
	return res, nil
}

func (s *stubSearchSvc) Record(_ context.Context, res search.Result) {
	if res.State != domain.StateResults && res.State != domain.StateEmpty {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, res)
}

func (s *stubSearchSvc) Recorded() []search.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]search.Result(nil), s.recorded...)
}

func (s *stubSearchSvc) Popular(ctx context.Context, window time.Duration, limit int) ([]domain.PopularQuery, error) {
	if s.popular != nil {
		return s.popular(ctx, window, limit)
	}
	return []domain.PopularQuery{}, nil
}

func (s *stubSearchSvc) PopularVersion(ctx context.Context, window time.Duration) (int64, *time.Time, error) {
	if s.version != nil {
		return s.version(ctx, window)
	}
	return 0, nil, nil
}

type stubIndexSvc struct {
	snap *services.IndexSnapshot
	err  error
}

func (s stubIndexSvc) Snapshot(context.Context) (*services.IndexSnapshot, error) {
	return s.snap, s.err
}

func newRouter(svc SearchService, idx IndexService, opts Options) (*gin.Engine, *Handlers) {
	gin.SetMode(gin.TestMode)
	h := New(svc, idx, search.NewEngine(), opts)
	r := gin.New()
	r.SetHTMLTemplate(h.Templates())
	r.GET("/js/search-index.json", h.SearchIndex)
	r.GET("/search", h.SearchPage)
	r.GET(LivePath, h.LiveSearch)
	r.GET("/api/search", h.Search)
	r.GET("/api/search/popular", h.PopularQueries)
	return r, h
}

func get(r http.Handler, target string, hdr map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("error body: %v (%s)", err, w.Body.String())
	}
	return er
}

// ---------- New ----------

func TestNew_Defaults(t *testing.T) {
	h := New(newStubSearchSvc(), stubIndexSvc{}, search.NewEngine(), Options{})
	if h.PagePath() != "/search" || h.opts.Debounce != 300*time.Millisecond || h.opts.PopularWindow != 7*24*time.Hour {
		t.Fatalf("defaults = %+v", h.opts)
	}
	if h.Templates().Lookup("search.html") == nil || h.Templates().Lookup("results") == nil {
		t.Fatalf("templates not parsed")
	}
}

// ---------- SearchIndex ----------

func TestSearchIndex_ServesSnapshotWithCaching(t *testing.T) {
	built := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	body, _ := services.EncodeIndex(sampleRecords())
	idx := stubIndexSvc{snap: &services.IndexSnapshot{Records: sampleRecords(), JSON: body, ETag: `"abc123"`, BuiltAt: built}}
	r, _ := newRouter(newStubSearchSvc(), idx, Options{})

	w := get(r, "/js/search-index.json", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if w.Header().Get("ETag") != `"abc123"` || w.Header().Get("Last-Modified") != built.Format(http.TimeFormat) {
		t.Fatalf("headers = %v", w.Header())
	}
	if !strings.Contains(w.Header().Get("Cache-Control"), "max-age=3600") {
		t.Fatalf("cache-control = %q", w.Header().Get("Cache-Control"))
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") || w.Body.String() != string(body) {
		t.Fatalf("body = %q", w.Body.String())
	}

	w = get(r, "/js/search-index.json", map[string]string{"If-None-Match": `"abc123"`})
	if w.Code != http.StatusNotModified || w.Body.Len() != 0 {
		t.Fatalf("conditional status=%d len=%d", w.Code, w.Body.Len())
	}
}

func TestSearchIndex_Unavailable(t *testing.T) {
	r, _ := newRouter(newStubSearchSvc(), stubIndexSvc{err: services.ErrIndexUnavailable}, Options{})
	w := get(r, "/js/search-index.json", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", w.Code)
	}
	if er := decodeError(t, w); er.Code != ErrCodeIndexFailed {
		t.Fatalf("code=%q", er.Code)
	}
}

// ---------- Search ----------

func TestSearch_GroupsAndShareURL(t *testing.T) {
	svc := newStubSearchSvc()
	r, _ := newRouter(svc, stubIndexSvc{}, Options{})

	w := get(r, "/api/search?q=water", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.State != domain.StateResults || resp.Total != 2 || !resp.StaticAvailable {
		t.Fatalf("resp = %+v", resp)
	}
	if cats := resp.Groups.Categories(); len(cats) != 2 || cats[0] != "Labs" || cats[1] != "News" {
		t.Fatalf("categories = %v", cats)
	}
	if resp.URL != "/search?q=water" {
		t.Fatalf("url = %q", resp.URL)
	}
	if !strings.Contains(resp.Groups[0].Hits[0].TitleHTML, "<mark>") {
		t.Fatalf("title not highlighted: %q", resp.Groups[0].Hits[0].TitleHTML)
	}
	if n := len(svc.Recorded()); n != 1 {
		t.Fatalf("recorded %d searches", n)
	}

	w = get(r, "/api/search?q=water&category=News", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Category != "News" || resp.URL != "/search?category=News&q=water" {
		t.Fatalf("filtered resp = %+v", resp)
	}
}

func TestSearch_ShortQueryIsIdleWithEmptyGroups(t *testing.T) {
	r, _ := newRouter(newStubSearchSvc(), stubIndexSvc{}, Options{})
	w := get(r, "/api/search?q=w", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"groups":[]`) || !strings.Contains(w.Body.String(), `"state":"idle"`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestSearch_Errors(t *testing.T) {
	r, _ := newRouter(newStubSearchSvc(), stubIndexSvc{}, Options{})
	w := get(r, "/api/search?q="+strings.Repeat("a", 41), nil)
	if w.Code != http.StatusBadRequest || decodeError(t, w).Code != ErrCodeQueryTooLong {
		t.Fatalf("too long: status=%d body=%s", w.Code, w.Body.String())
	}

	svc := newStubSearchSvc()
	svc.searchErr = errors.New("boom")
	r, _ = newRouter(svc, stubIndexSvc{}, Options{})
	w = get(r, "/api/search?q=water", nil)
	if w.Code != http.StatusInternalServerError || decodeError(t, w).Code != ErrCodeInternal {
		t.Fatalf("internal: status=%d body=%s", w.Code, w.Body.String())
	}
}

// ---------- PopularQueries ----------

func TestPopularQueries_ParamsAndETag(t *testing.T) {
	svc := newStubSearchSvc()
	var gotWindow time.Duration
	var gotLimit int
	svc.popular = func(_ context.Context, window time.Duration, limit int) ([]domain.PopularQuery, error) {
		gotWindow, gotLimit = window, limit
		return []domain.PopularQuery{{Query: "water", Count: 3}}, nil
	}
	newest := time.Unix(1700000000, 0)
	svc.version = func(context.Context, time.Duration) (int64, *time.Time, error) { return 3, &newest, nil }
	r, _ := newRouter(svc, stubIndexSvc{}, Options{})

	w := get(r, "/api/search/popular?limit=500&window=24h", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if gotLimit != maxPopularLimit || gotWindow != 24*time.Hour {
		t.Fatalf("limit=%d window=%v", gotLimit, gotWindow)
	}
	var resp PopularResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || len(resp.Queries) != 1 || resp.Window != "24h0m0s" {
		t.Fatalf("resp=%+v err=%v", resp, err)
	}
	etag := w.Header().Get("ETag")
	if etag != `W/"popular:86400:100:3:1700000000"` {
		t.Fatalf("etag = %q", etag)
	}

	gotLimit = 0
	w = get(r, "/api/search/popular?limit=500&window=24h", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified || gotLimit != 0 {
		t.Fatalf("conditional status=%d (popular called: %v)", w.Code, gotLimit != 0)
	}

	get(r, "/api/search/popular?window=bogus", nil)
	if gotLimit != defaultPopularLimit || gotWindow != 7*24*time.Hour {
		t.Fatalf("defaults: limit=%d window=%v", gotLimit, gotWindow)
	}
	get(r, "/api/search/popular?window=30d", nil)
	if gotWindow != 30*24*time.Hour {
		t.Fatalf("day window = %v", gotWindow)
	}
}

func TestPopularQueries_Errors(t *testing.T) {
	svc := newStubSearchSvc()
	svc.version = func(context.Context, time.Duration) (int64, *time.Time, error) {
		return 0, nil, errors.New("stats down")
	}
	r, _ := newRouter(svc, stubIndexSvc{}, Options{})
	w := get(r, "/api/search/popular", nil)
	if w.Code != http.StatusOK || w.Header().Get("ETag") != "" {
		t.Fatalf("version failure should still serve: status=%d etag=%q", w.Code, w.Header().Get("ETag"))
	}

	svc.popular = func(context.Context, time.Duration, int) ([]domain.PopularQuery, error) {
		return nil, errors.New("db down")
	}
	w = get(r, "/api/search/popular", nil)
	if w.Code != http.StatusInternalServerError || decodeError(t, w).Code != ErrCodeListFailed {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}
