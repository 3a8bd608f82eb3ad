// Package search implements the two-source site search: a custom content
// index held in memory and a pre-built static page index. The engine queries
// both concurrently, merges hits by URL with custom records taking
// precedence, applies the category filter, and groups the outcome by
// category in encounter order.
//
// Sources never fail the merge: every load, probe, or query error is turned
// into an empty contribution at the source boundary.
package search

import (
	"context"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/sitesearch/internal/domain"
)

// ----------------------------------------------------------------------------
// Options

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	minQueryRunes int
	staticLimit   int
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		minQueryRunes: 2,
		staticLimit:   50,
	}
}

// WithMinQueryRunes sets the shortest query that triggers a search.
func WithMinQueryRunes(n int) Option {
	return func(c *engineConfig) {
		if n > 0 {
			c.minQueryRunes = n
		}
	}
}

// WithStaticLimit caps how many hits are requested from the static index.
func WithStaticLimit(n int) Option {
	return func(c *engineConfig) {
		if n > 0 {
			c.staticLimit = n
		}
	}
}

// ----------------------------------------------------------------------------
// Engine

// Result is the outcome of one committed query.
type Result struct {
	Seq             uint64
	Query           domain.Query
	State           domain.State
	Groups          domain.GroupedResults
	Total           int
	CustomHits      int
	StaticHits      int
	StaticAvailable bool
	Duration        time.Duration
}

// Engine runs queries against a Session. It holds configuration only and is
// safe for concurrent use.
type Engine struct {
	cfg engineConfig
}

// NewEngine returns an Engine with defaults overridden by opts.
func NewEngine(opts ...Option) *Engine {
	cfg := defaultEngineConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Engine{cfg: cfg}
}

// MinQueryRunes is the configured minimum query length.
func (e *Engine) MinQueryRunes() int { return e.cfg.minQueryRunes }

// Searchable reports whether text is long enough to be searched.
func (e *Engine) Searchable(text string) bool {
	return utf8.RuneCountInString(text) >= e.cfg.minQueryRunes
}

// Search allocates a new sequence number on s and runs q.
func (e *Engine) Search(ctx context.Context, s *Session, q domain.Query) Result {
	return e.Run(ctx, s, s.Next(), q)
}

// Run executes q under an already-allocated sequence number. Queries shorter
// than the minimum return StateIdle without touching either source.
func (e *Engine) Run(ctx context.Context, s *Session, seq uint64, q domain.Query) Result {
	q = q.Normalize()
	res := Result{Seq: seq, Query: q, State: domain.StateIdle, StaticAvailable: s.StaticAvailable()}
	if !e.Searchable(q.Text) {
		return res
	}

	ctx, span := otel.Tracer("search/Engine").Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("search.category", q.Category),
			attribute.Int("search.query_len", len(q.Text)),
			attribute.Int64("search.seq", int64(seq)),
		),
	)
	defer span.End()

	start := time.Now()

	var custom, static []domain.SearchRecord
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		custom = s.matchCustom(q.Text, q.Category)
		return nil
	})
	g.Go(func() error {
		static = searchStatic(gctx, s.static, q.Text, e.cfg.staticLimit, s.log)
		return nil
	})
	_ = g.Wait()

	merged := Merge(custom, static)
	merged = FilterCategory(merged, q.Category)
	groups := Group(merged, q.Text)

	res.Groups = groups
	res.Total = groups.Total()
	res.CustomHits = len(custom)
	res.StaticHits = len(static)
	res.Duration = time.Since(start)
	if res.Total == 0 {
		res.State = domain.StateEmpty
	} else {
		res.State = domain.StateResults
	}

	span.SetAttributes(
		attribute.Int("search.custom_hits", res.CustomHits),
		attribute.Int("search.static_hits", res.StaticHits),
		attribute.Int("search.total", res.Total),
	)
	return res
}

// Merge combines both sources into one list keyed by URL. Custom records come
// first in their original order; static hits follow unless their URL is
// already present. The first occurrence of a URL always wins.
func Merge(custom, static []domain.SearchRecord) []domain.SearchRecord {
	out := make([]domain.SearchRecord, 0, len(custom)+len(static))
	seen := make(map[string]struct{}, len(custom)+len(static))
	add := func(recs []domain.SearchRecord) {
		for _, r := range recs {
			if _, dup := seen[r.URL]; dup {
				continue
			}
			seen[r.URL] = struct{}{}
			out = append(out, r)
		}
	}
	add(custom)
	add(static)
	return out
}

// FilterCategory keeps records whose category equals category exactly. An
// empty category keeps everything.
func FilterCategory(recs []domain.SearchRecord, category string) []domain.SearchRecord {
	if category == "" {
		return recs
	}
	out := make([]domain.SearchRecord, 0, len(recs))
	for _, r := range recs {
		if r.Category == category {
			out = append(out, r)
		}
	}
	return out
}

// Group buckets recs by category in first-seen order and renders each card's
// highlighted title and excerpt for query.
func Group(recs []domain.SearchRecord, query string) domain.GroupedResults {
	if len(recs) == 0 {
		return nil
	}
	m := newMatcher(query)
	pos := make(map[string]int)
	var groups domain.GroupedResults
	for _, r := range recs {
		i, ok := pos[r.Category]
		if !ok {
			i = len(groups)
			pos[r.Category] = i
			groups = append(groups, domain.Group{Category: r.Category})
		}
		groups[i].Hits = append(groups[i].Hits, renderHit(m, r))
		groups[i].Count++
	}
	return groups
}

// renderHit prefers a source-supplied excerpt and only windows Content when
// the source gave none.
func renderHit(m *matcher, r domain.SearchRecord) domain.Hit {
	excerpt := StripMarkup(r.Excerpt)
	if excerpt == "" {
		excerpt = m.excerpt(StripMarkup(r.Content))
	}
	return domain.Hit{
		SearchRecord: r,
		TitleHTML:    m.highlight(r.Title),
		ExcerptHTML:  m.highlight(excerpt),
	}
}
