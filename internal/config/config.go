// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, the search sources (CMS, custom index, static index), rate
// limiting and observability.
package config

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "sitesearch")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// CMSConfig points the index builder at the headless CMS.
type CMSConfig struct {
	BaseURL         string        // CMS_BASE_URL; empty disables in-process builds
	Token           string        // CMS_TOKEN (bearer)
	Timeout         time.Duration // CMS_TIMEOUT per request
	CollectionsFile string        // CMS_COLLECTIONS_FILE; empty uses the built-in mapping
}

// SearchConfig holds the query engine and source settings.
type SearchConfig struct {
	IndexURL        string        // SEARCH_INDEX_URL; empty serves the CMS-built index
	StaticIndexPath string        // STATIC_INDEX_PATH (bleve directory)
	StaticProbeURL  string        // STATIC_BASE_URL + "/" + index meta file, when set
	MinQueryRunes   int           // SEARCH_MIN_QUERY
	StaticLimit     int           // SEARCH_STATIC_LIMIT
	Debounce        time.Duration // SEARCH_DEBOUNCE
	IndexMaxAge     time.Duration // SEARCH_INDEX_MAX_AGE
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	DBPath string // SQLite path for search logs

	Search SearchConfig
	CMS    CMSConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "sitesearch.db"),

		Search: SearchConfig{
			IndexURL:        strings.TrimSpace(getenv("SEARCH_INDEX_URL", "")),
			StaticIndexPath: getenv("STATIC_INDEX_PATH", "public/static-index"),
			MinQueryRunes:   getint("SEARCH_MIN_QUERY", 2),
			StaticLimit:     getint("SEARCH_STATIC_LIMIT", 50),
			Debounce:        getdur("SEARCH_DEBOUNCE", 300*time.Millisecond),
			IndexMaxAge:     getdur("SEARCH_INDEX_MAX_AGE", time.Hour),
		},
		CMS: CMSConfig{
			BaseURL:         strings.TrimSpace(getenv("CMS_BASE_URL", "")),
			Token:           getenv("CMS_TOKEN", ""),
			Timeout:         getdur("CMS_TIMEOUT", 10*time.Second),
			CollectionsFile: getenv("CMS_COLLECTIONS_FILE", ""),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 10.0),
		RateBurst: getint("RATE_BURST", 20),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "sitesearch"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	if base := strings.TrimRight(strings.TrimSpace(getenv("STATIC_BASE_URL", "")), "/"); base != "" {
		cfg.Search.StaticProbeURL = base + "/index_meta.json"
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.APIBasePath == "/" {
		return cfg, errors.New("API_BASE_PATH must not be root: the results page owns /search")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.Search.IndexURL != "" && !isHTTPURL(cfg.Search.IndexURL) {
		return cfg, errors.New("SEARCH_INDEX_URL must be an absolute http(s) URL")
	}
	if cfg.CMS.BaseURL != "" && !isHTTPURL(cfg.CMS.BaseURL) {
		return cfg, errors.New("CMS_BASE_URL must be an absolute http(s) URL")
	}
	if cfg.Search.StaticProbeURL != "" && !isHTTPURL(cfg.Search.StaticProbeURL) {
		return cfg, errors.New("STATIC_BASE_URL must be an absolute http(s) URL")
	}
	if cfg.CMS.Timeout <= 0 {
		return cfg, errors.New("CMS_TIMEOUT must be > 0")
	}
	if cfg.Search.MinQueryRunes < 1 {
		return cfg, errors.New("SEARCH_MIN_QUERY must be >= 1")
	}
	if cfg.Search.StaticLimit < 1 {
		return cfg, errors.New("SEARCH_STATIC_LIMIT must be >= 1")
	}
	if cfg.Search.Debounce <= 0 {
		return cfg, errors.New("SEARCH_DEBOUNCE must be > 0")
	}
	if cfg.Search.IndexMaxAge <= 0 {
		return cfg, errors.New("SEARCH_INDEX_MAX_AGE must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
