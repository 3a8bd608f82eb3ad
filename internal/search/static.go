package search

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tbourn/sitesearch/internal/domain"
)

// StaticProvider is a pre-built full-text index over rendered static pages.
//
// Probe is a cheap existence check of the index asset; a non-nil error
// means the index has not been produced for this environment. Search runs
// the provider's own ranking and returns hits mapped to SearchRecord with
// Type page; implementations may fill Excerpt.
type StaticProvider interface {
	Probe(ctx context.Context) error
	Search(ctx context.Context, query string, limit int) ([]domain.SearchRecord, error)
}

// NoopStatic is the stand-in selected when no static index is available.
type NoopStatic struct{}

// Probe always succeeds.
func (NoopStatic) Probe(context.Context) error { return nil }

// Search returns no hits.
func (NoopStatic) Search(context.Context, string, int) ([]domain.SearchRecord, error) {
	return nil, nil
}

// SelectStatic probes p and returns it when available. Otherwise, or when p
// is nil, it returns NoopStatic and false. Probe failures are logged, never
// returned.
func SelectStatic(ctx context.Context, p StaticProvider, lg zerolog.Logger) (StaticProvider, bool) {
	if p == nil {
		return NoopStatic{}, false
	}
	if _, ok := p.(NoopStatic); ok {
		return p, false
	}
	if err := p.Probe(ctx); err != nil {
		lg.Info().Err(err).Msg("static page index not found; static pages are not indexed")
		return NoopStatic{}, false
	}
	return p, true
}

// searchStatic runs p and converts any failure into an empty result.
// Category defaults to domain.DefaultStaticCategory.
func searchStatic(ctx context.Context, p StaticProvider, query string, limit int, lg zerolog.Logger) []domain.SearchRecord {
	hits, err := p.Search(ctx, query, limit)
	if err != nil {
		if ctx.Err() == nil {
			lg.Warn().Err(err).Str("query", query).Msg("static index search failed")
		}
		return nil
	}
	out := make([]domain.SearchRecord, 0, len(hits))
	for _, h := range hits {
		if h.URL == "" {
			continue
		}
		h.Type = domain.TypePage
		if h.Category == "" {
			h.Category = domain.DefaultStaticCategory
		}
		out = append(out, h)
	}
	return out
}
