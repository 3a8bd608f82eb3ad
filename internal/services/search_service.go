// Package services – SearchService
//
// SearchService runs queries for the HTTP and websocket transports. It
// validates the query, obtains a page-view session from the IndexService,
// runs the engine, publishes metrics, and appends a search log row. Logging
// is best-effort: a failed insert is logged and never surfaces to callers.
package services

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/sitesearch/internal/domain"
	"github.com/tbourn/sitesearch/internal/observability"
	"github.com/tbourn/sitesearch/internal/repo"
	"github.com/tbourn/sitesearch/internal/search"
)

// defaultMaxQueryRunes bounds query text when MaxQueryRunes is unset.
const defaultMaxQueryRunes = 256

// SearchService implements the search use-cases.
type SearchService struct {
	// DB stores search logs. A nil DB disables logging and popularity.
	DB     *gorm.DB
	Engine *search.Engine
	Index  *IndexService
	// MaxQueryRunes caps the query text length (default 256).
	MaxQueryRunes int
	Log           zerolog.Logger
}

// Validate normalizes q and enforces the length cap.
func (s *SearchService) Validate(q domain.Query) (domain.Query, error) {
	q = q.Normalize()
	limit := s.MaxQueryRunes
	if limit <= 0 {
		limit = defaultMaxQueryRunes
	}
	if utf8.RuneCountInString(q.Text) > limit {
		return q, ErrQueryTooLong
	}
	return q, nil
}

// Session returns a new page-view session.
func (s *SearchService) Session(ctx context.Context) *search.Session {
	return s.Index.Session(ctx)
}

// Search runs q in a one-off session. Queries below the minimum length come
// back with StateIdle and are neither measured nor logged.
func (s *SearchService) Search(ctx context.Context, q domain.Query) (search.Result, error) {
	return s.SearchSession(ctx, s.Session(ctx), q)
}

// SearchSession runs q within an existing page-view session.
func (s *SearchService) SearchSession(ctx context.Context, sess *search.Session, q domain.Query) (search.Result, error) {
	q, err := s.Validate(q)
	if err != nil {
		return search.Result{Query: q, State: domain.StateIdle, StaticAvailable: sess.StaticAvailable()}, err
	}
	res := s.Engine.Search(ctx, sess, q)
	s.Record(ctx, res)
	return res, nil
}

// Record publishes metrics for a finished search and appends its log row.
// Idle results are ignored.
func (s *SearchService) Record(ctx context.Context, res search.Result) {
	if res.State != domain.StateResults && res.State != domain.StateEmpty {
		return
	}
	observability.ObserveSearch(string(res.State), res.CustomHits, res.StaticHits, res.Duration)

	if s.DB == nil {
		return
	}
	row := &domain.SearchLog{
		Query:           res.Query.Text,
		Category:        res.Query.Category,
		State:           string(res.State),
		Total:           res.Total,
		CustomHits:      res.CustomHits,
		StaticHits:      res.StaticHits,
		StaticAvailable: res.StaticAvailable,
		DurationMs:      res.Duration.Milliseconds(),
	}
	if err := repo.CreateSearchLog(context.WithoutCancel(ctx), s.DB, row); err != nil {
		s.Log.Warn().Err(err).Str("query", res.Query.Text).Msg("search log not recorded")
	}
}

// Popular returns the most frequent successful queries of the last window.
func (s *SearchService) Popular(ctx context.Context, window time.Duration, limit int) ([]domain.PopularQuery, error) {
	if s.DB == nil {
		return []domain.PopularQuery{}, nil
	}
	rows, err := repo.PopularQueries(ctx, s.DB, time.Now().UTC().Add(-window), limit)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.PopularQuery{}
	}
	return rows, nil
}

// PopularVersion summarises the search logs of the window for ETag
// generation: the row count and the newest timestamp.
func (s *SearchService) PopularVersion(ctx context.Context, window time.Duration) (int64, *time.Time, error) {
	if s.DB == nil {
		return 0, nil, nil
	}
	return repo.SearchLogStats(ctx, s.DB, time.Now().UTC().Add(-window))
}
