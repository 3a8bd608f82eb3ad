package httpapi

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/sitesearch/internal/config"
	"github.com/tbourn/sitesearch/internal/domain"
	"github.com/tbourn/sitesearch/internal/http/handlers"
	"github.com/tbourn/sitesearch/internal/search"
	"github.com/tbourn/sitesearch/internal/services"
)

// ---------- Helpers ----------

func testRecords() []domain.SearchRecord {
	return []domain.SearchRecord{
		{Title: "Groundwater Lab", URL: "/labs/groundwater", Content: "water chemistry and aquifers", Type: domain.TypeLab, Category: "Labs"},
		{Title: "Jane Doe", URL: "/staff/jane", Content: "Jane Doe hydrologist", Type: domain.TypeStaff, Category: "Staff Directory"},
	}
}

func newTestHandlers(t *testing.T) *handlers.Handlers {
	t.Helper()
	src := search.IndexSourceFunc(func(context.Context) ([]domain.SearchRecord, error) {
		return testRecords(), nil
	})
	idx := &services.IndexService{Source: src, MaxAge: time.Hour, Log: zerolog.Nop()}
	svc := &services.SearchService{Engine: search.NewEngine(), Index: idx, Log: zerolog.Nop()}
	return handlers.New(svc, idx, svc.Engine, handlers.Options{})
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     100,
		RateBurst:   50,
		OTEL:        config.OTELConfig{ServiceName: "sitesearch-test"},
	}
}

func newTestRouter(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newTestHandlers(t), cfg)
	return r
}

func do(r http.Handler, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

// ---------- Infrastructure routes ----------

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r := newTestRouter(t, testConfig())

	w := do(r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
	if w.Header().Get("Content-Security-Policy") != "" {
		t.Fatalf("CSP belongs to the page route only")
	}

	w = do(r, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	if w = do(r, http.MethodGet, "/nope", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	if w = do(r, http.MethodPost, "/health", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
	if w = do(r, http.MethodPost, "/api/v1/search", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST search expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	cfg := testConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"https://www.example.edu"}}
	r := newTestRouter(t, cfg)

	w := do(r, http.MethodGet, "/health", map[string]string{"Origin": "https://www.example.edu"})
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://www.example.edu" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}

	w = do(r, http.MethodGet, "/health", map[string]string{"Origin": "https://evil.example"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got == "https://evil.example" {
		t.Fatalf("unlisted origin must not be echoed")
	}
}

func TestRegisterRoutes_RateLimitExemptsHealth(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS = 0.001
	cfg.RateBurst = 1
	r := newTestRouter(t, cfg)

	for i := 0; i < 3; i++ {
		if w := do(r, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
			t.Fatalf("health #%d = %d", i, w.Code)
		}
	}
	if w := do(r, http.MethodGet, "/api/v1/search?q=water", nil); w.Code != http.StatusOK {
		t.Fatalf("first search = %d", w.Code)
	}
	w := do(r, http.MethodGet, "/api/v1/search?q=water", nil)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Fatalf("second search = %d retry-after=%q", w.Code, w.Header().Get("Retry-After"))
	}
}

// ---------- Search routes ----------

func TestRegisterRoutes_IndexGzipAndETag(t *testing.T) {
	r := newTestRouter(t, testConfig())

	w := do(r, http.MethodGet, IndexPath, map[string]string{"Accept-Encoding": "gzip"})
	if w.Code != http.StatusOK {
		t.Fatalf("GET index = %d", w.Code)
	}
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("index not gzipped: %v", w.Header())
	}
	zr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	body, _ := io.ReadAll(zr)
	var recs []domain.SearchRecord
	if err := json.Unmarshal(body, &recs); err != nil || len(recs) != 2 {
		t.Fatalf("index body: %v len=%d", err, len(recs))
	}

	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}
	if w = do(r, http.MethodGet, IndexPath, map[string]string{"If-None-Match": etag}); w.Code != http.StatusNotModified {
		t.Fatalf("conditional GET = %d", w.Code)
	}
}

func TestRegisterRoutes_PageHasCSP(t *testing.T) {
	r := newTestRouter(t, testConfig())

	w := do(r, http.MethodGet, "/search?q=water", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /search = %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Content-Security-Policy"), "connect-src 'self' ws: wss:") {
		t.Fatalf("CSP = %q", w.Header().Get("Content-Security-Policy"))
	}
	if !strings.Contains(w.Body.String(), `href="/labs/groundwater"`) {
		t.Fatalf("page missing result")
	}
}

func TestRegisterRoutes_APIUnderBasePath(t *testing.T) {
	cfg := testConfig()
	cfg.APIBasePath = "/api/v2"
	r := newTestRouter(t, cfg)

	w := do(r, http.MethodGet, "/api/v2/search?q=jane", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET search = %d body=%s", w.Code, w.Body.String())
	}
	var resp handlers.SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.URL != "/search?q=jane" {
		t.Fatalf("resp = %+v", resp)
	}

	if w = do(r, http.MethodGet, "/api/v2/search/popular", nil); w.Code != http.StatusOK {
		t.Fatalf("GET popular = %d", w.Code)
	}
	if w = do(r, http.MethodGet, "/api/v1/search?q=jane", nil); w.Code != http.StatusNotFound {
		t.Fatalf("old base path should 404, got %d", w.Code)
	}
}

func TestRegisterRoutes_RootBasePathDoesNotShadowPage(t *testing.T) {
	cfg := testConfig()
	cfg.APIBasePath = "/"

	var r *gin.Engine
	func() {
		defer func() {
			if p := recover(); p != nil {
				t.Fatalf("RegisterRoutes panicked with root base path: %v", p)
			}
		}()
		r = newTestRouter(t, cfg)
	}()

	w := do(r, http.MethodGet, "/search?q=jane", nil)
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("page = %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	w = do(r, http.MethodGet, "/api/search?q=jane", nil)
	if w.Code != http.StatusOK || !strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("json search = %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	if w = do(r, http.MethodGet, "/api/search/popular", nil); w.Code != http.StatusOK {
		t.Fatalf("popular = %d", w.Code)
	}
}

// ---------- Helpers under test ----------

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB"))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_apiBasePath(t *testing.T) {
	cases := []struct{ base, page, want string }{
		{"/api/v1", "/search", "/api/v1"},
		{"/", "/search", "/api"},
		{"", "/search", "/api"},
		{"/", "/find", "/"},
		{"/labs", "/labs/search", "/api"},
	}
	for _, tc := range cases {
		if got := apiBasePath(tc.base, tc.page); got != tc.want {
			t.Fatalf("apiBasePath(%q, %q) = %q, want %q", tc.base, tc.page, got, tc.want)
		}
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		w := do(r, http.MethodGet, path, nil)
		if w.Code != http.StatusOK || w.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, w.Code, w.Body.String())
		}
	}
}
