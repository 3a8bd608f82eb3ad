// Search HTTP handlers.
//
// This file exposes the read-only search endpoints:
//   - GET /js/search-index.json          (custom index, cacheable, ETag)
//   - GET {api}/search?q=&category=      (grouped results as JSON)
//   - GET {api}/search/popular?limit=&window= (popular queries, weak ETag)
//
// The results page and the live websocket live in page_handler.go and
// live_handler.go. Handlers are transport-thin: they normalize input, call
// the search services, and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tbourn/sitesearch/internal/domain"
	"github.com/tbourn/sitesearch/internal/search"
	"github.com/tbourn/sitesearch/internal/services"
	"github.com/tbourn/sitesearch/internal/utils"
)

//
// Service contracts (context-aware)
//

// SearchService defines the search operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type SearchService interface {
	// Validate normalizes q and enforces the query length cap.
	Validate(q domain.Query) (domain.Query, error)
	// Session returns a new page-view session.
	Session(ctx context.Context) *search.Session
	// SearchSession runs q within sess and records it.
	SearchSession(ctx context.Context, sess *search.Session, q domain.Query) (search.Result, error)
	// Record publishes metrics and the log row of a finished search.
	Record(ctx context.Context, res search.Result)
	// Popular returns the most frequent successful queries of the window.
	Popular(ctx context.Context, window time.Duration, limit int) ([]domain.PopularQuery, error)
	// PopularVersion returns the log row count and newest timestamp of the window.
	PopularVersion(ctx context.Context, window time.Duration) (int64, *time.Time, error)
}

// IndexService publishes the custom index.
type IndexService interface {
	Snapshot(ctx context.Context) (*services.IndexSnapshot, error)
}

//
// Handler wiring
//

// Options tunes the search handlers.
type Options struct {
	// PagePath is where the results page is mounted (default "/search").
	PagePath string
	// Debounce is the live-search keystroke delay (default 300ms).
	Debounce time.Duration
	// PopularWindow is the default look-back of the popular endpoint (default 7d).
	PopularWindow time.Duration
	// AllowedOrigins restricts websocket upgrades; empty allows any origin.
	AllowedOrigins []string
}

// Handlers groups the search HTTP endpoints.
type Handlers struct {
	svc      SearchService
	index    IndexService
	engine   *search.Engine
	opts     Options
	tmpl     *template.Template
	upgrader websocket.Upgrader
}

// New constructs and returns a Handlers instance bound to the given services.
func New(svc SearchService, index IndexService, engine *search.Engine, opts Options) *Handlers {
	if opts.PagePath == "" {
		opts.PagePath = "/search"
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	if opts.PopularWindow <= 0 {
		opts.PopularWindow = 7 * 24 * time.Hour
	}
	return &Handlers{
		svc:      svc,
		index:    index,
		engine:   engine,
		opts:     opts,
		tmpl:     Templates(),
		upgrader: newUpgrader(opts.AllowedOrigins),
	}
}

// Templates returns the parsed page templates for gin's HTML renderer.
func (h *Handlers) Templates() *template.Template { return h.tmpl }

// PagePath is where the results page is mounted.
func (h *Handlers) PagePath() string { return h.opts.PagePath }

//
// DTOs
//

// SearchResponse is the JSON body of the search endpoint. URL is the
// shareable results page link.
type SearchResponse struct {
	Query           string                `json:"query"`
	Category        string                `json:"category,omitempty"`
	State           domain.State          `json:"state"`
	Total           int                   `json:"total"`
	StaticAvailable bool                  `json:"static_available"`
	URL             string                `json:"url"`
	Groups          domain.GroupedResults `json:"groups"`
}

// PopularResponse is the JSON body of the popular-queries endpoint.
type PopularResponse struct {
	Window  string                `json:"window"`
	Queries []domain.PopularQuery `json:"queries"`
}

const (
	defaultPopularLimit = 10
	maxPopularLimit     = 100
	indexCacheControl   = "public, max-age=3600, s-maxage=3600"
)

func queryFrom(c *gin.Context) domain.Query {
	return domain.Query{Text: c.Query("q"), Category: c.Query("category")}.Normalize()
}

//
// Handlers
//

// SearchIndex godoc
// @ID          searchIndex
// @Summary     Custom search index
// @Description Returns the custom index as a JSON array of records. Supports ETag via If-None-Match.
// @Tags        Search
// @Produce     json
// @Success     200  {array}   domain.SearchRecord
// @Success     304  {string}  string "Not Modified"
// @Failure     503  {object}  handlers.ErrorResponse "Index unavailable"
// @Router      /js/search-index.json [get]
func (h *Handlers) SearchIndex(c *gin.Context) {
	snap, err := h.index.Snapshot(c.Request.Context())
	if err != nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeIndexFailed, "search index unavailable")
		return
	}
	c.Header("Cache-Control", indexCacheControl)
	c.Header("Last-Modified", snap.BuiltAt.UTC().Format(http.TimeFormat))
	if notModified(c, snap.ETag) {
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", snap.JSON)
}

// Search godoc
// @ID          search
// @Summary     Search the site
// @Description Runs a query against the custom and static indexes and returns results grouped by category.
// @Tags        Search
// @Produce     json
// @Param       q         query  string  false "Query text (at least 2 characters)"
// @Param       category  query  string  false "Category filter"
// @Success     200  {object}  handlers.SearchResponse
// @Failure     400  {object}  handlers.ErrorResponse "Query too long"
// @Router      /search [get]
func (h *Handlers) Search(c *gin.Context) {
	ctx := c.Request.Context()
	q := queryFrom(c)
	res, err := h.svc.SearchSession(ctx, h.svc.Session(ctx), q)
	if errors.Is(err, services.ErrQueryTooLong) {
		fail(c, http.StatusBadRequest, ErrCodeQueryTooLong, err.Error())
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, toResponse(res, h.opts.PagePath))
}

// PopularQueries godoc
// @ID          popularQueries
// @Summary     Popular queries
// @Description Returns the most frequent successful queries. Supports weak ETag via If-None-Match.
// @Tags        Search
// @Produce     json
// @Param       limit   query  int     false "Max rows"  minimum(1) maximum(100) default(10)
// @Param       window  query  string  false "Look-back window (e.g. 24h, 7d)"
// @Success     200  {object}  handlers.PopularResponse
// @Success     304  {string}  string "Not Modified"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /search/popular [get]
func (h *Handlers) PopularQueries(c *gin.Context) {
	ctx := c.Request.Context()
	limit := utils.Clamp(utils.AtoiDefault(c.Query("limit"), defaultPopularLimit), 1, maxPopularLimit)
	window := utils.WindowDefault(c.Query("window"), h.opts.PopularWindow)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.svc.PopularVersion(ctx, window); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"popular:%d:%d:%d:%d"`, int64(window.Seconds()), limit, count, ts)
		if notModified(c, etag) {
			return
		}
	}

	rows, err := h.svc.Popular(ctx, window, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, PopularResponse{Window: window.String(), Queries: rows})
}

func toResponse(res search.Result, page string) SearchResponse {
	groups := res.Groups
	if groups == nil {
		groups = domain.GroupedResults{}
	}
	return SearchResponse{
		Query:           res.Query.Text,
		Category:        res.Query.Category,
		State:           res.State,
		Total:           res.Total,
		StaticAvailable: res.StaticAvailable,
		URL:             search.ShareURL(page, res.Query.Text, res.Query.Category),
		Groups:          groups,
	}
}
