// Package httpapi wires the HTTP transport (Gin) to the search handlers and
// middleware. It centralizes cross-cutting concerns such as tracing,
// correlation IDs, logging/redaction, panic recovery, metrics, CORS,
// security headers, and rate limiting.
//
// Routes:
//   - GET /health, GET /metrics
//   - GET /js/search-index.json          custom index (gzip, ETag)
//   - GET /search                        results page (HTML)
//   - GET /search/live                   live search (websocket)
//   - GET {api}/search, {api}/search/popular
package httpapi

import (
	"net/http"
	"path"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/sitesearch/internal/config"
	"github.com/tbourn/sitesearch/internal/http/handlers"
	"github.com/tbourn/sitesearch/internal/http/middleware"
)

// IndexPath is where the custom index is published.
const IndexPath = "/js/search-index.json"

var (
	corsMethods = []string{"GET", "HEAD", "OPTIONS"}
	corsHeaders = []string{"Origin", "Content-Type", "Accept", "If-None-Match", "X-Request-ID"}
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with query scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per client IP; /health and /metrics exempt)
//  8. CORS and Security headers
func RegisterRoutes(r *gin.Engine, h *handlers.Handlers, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	r.SetHTMLTemplate(h.Templates())

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())

	// Search is read-only; nothing legitimate sends a large body.
	r.Use(limitBody(64 << 10))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP()).
		Exempt("/health", "/metrics")
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Published index: large and highly compressible.
	idx := r.Group("", gzip.Gzip(gzip.DefaultCompression))
	idx.GET(IndexPath, h.SearchIndex)

	r.GET(h.PagePath(), middleware.ContentSecurityPolicy(middleware.PagePolicy), h.SearchPage)
	r.GET(handlers.LivePath, h.LiveSearch)

	api := groupWithPrefix(r, apiBasePath(cfg.APIBasePath, h.PagePath()))
	{
		api.GET("/search", h.Search)
		api.GET("/search/popular", h.PopularQueries)
	}
}

// corsMiddleware returns the CORS chain. With no allowlist every origin is
// allowed and ACAO is forced to "*" even without an Origin header; with an
// allowlist a listed Origin is echoed back.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     corsMethods,
		AllowHeaders:     corsHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody caps the request body size to maxBytes using
// http.MaxBytesReader. Oversized bodies make downstream reads fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// fallbackAPIBasePath replaces a base path that would mount the JSON search
// on top of the results page.
const fallbackAPIBasePath = "/api"

func apiBasePath(base, page string) string {
	if path.Join("/", base, "search") != path.Join("/", page) {
		return base
	}
	log.Warn().Str("api_base_path", base).Str("page_path", page).
		Str("using", fallbackAPIBasePath).Msg("api base path collides with the results page")
	return fallbackAPIBasePath
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
