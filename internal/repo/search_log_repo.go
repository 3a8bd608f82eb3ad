// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the SearchLog
// model: appending one row per committed search and aggregating the most
// frequent queries.
//
// The repository follows a "thin" approach: it performs persistence and simple
// query composition, leaving business rules (normalization, when to log) to
// the services package.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/sitesearch/internal/domain"
)

// maxPopularLimit caps PopularQueries regardless of the requested limit.
const maxPopularLimit = 100

// CreateSearchLog inserts l. A missing ID or CreatedAt is filled in.
func CreateSearchLog(ctx context.Context, db *gorm.DB, l *domain.SearchLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(l).Error
}

// PopularQueries returns the most frequent queries logged at or after since,
// most frequent first, ties broken alphabetically. Queries are compared
// case-insensitively and reported lower-cased. Only searches that produced
// results are counted.
func PopularQueries(ctx context.Context, db *gorm.DB, since time.Time, limit int) ([]domain.PopularQuery, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > maxPopularLimit {
		limit = maxPopularLimit
	}

	var rows []domain.PopularQuery
	err := db.WithContext(ctx).
		Model(&domain.SearchLog{}).
		Select("LOWER(query) AS query, COUNT(*) AS count").
		Where("created_at >= ? AND state = ?", since.UTC(), string(domain.StateResults)).
		Group("LOWER(query)").
		Order("count DESC, query ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Query = strings.TrimSpace(rows[i].Query)
	}
	return rows, nil
}
