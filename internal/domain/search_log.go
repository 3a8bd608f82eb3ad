package domain

import "time"

// SearchLog records one committed search for analytics. Rows are append-only.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Query: normalized search text; indexed for popularity aggregation.
//   - Category: category filter, empty when unfiltered.
//   - State: final engine state ("results" or "empty").
//   - Total / CustomHits / StaticHits: merged count and per-source counts.
//   - StaticAvailable: whether the static index took part in the search.
//   - DurationMs: wall-clock time of the merge in milliseconds.
type SearchLog struct {
	ID              string    `json:"id"               gorm:"type:char(36);primaryKey"`
	Query           string    `json:"query"            gorm:"type:varchar(255);not null;index:idx_search_logs_query"`
	Category        string    `json:"category"         gorm:"type:varchar(128);not null;default:''"`
	State           string    `json:"state"            gorm:"type:varchar(16);not null;check:state IN ('results','empty')"`
	Total           int       `json:"total"            gorm:"not null"`
	CustomHits      int       `json:"custom_hits"      gorm:"not null"`
	StaticHits      int       `json:"static_hits"      gorm:"not null"`
	StaticAvailable bool      `json:"static_available" gorm:"not null"`
	DurationMs      int64     `json:"duration_ms"      gorm:"not null"`
	CreatedAt       time.Time `json:"created_at"       gorm:"index:idx_search_logs_created"`
}

// TableName returns the database table name for SearchLog.
func (SearchLog) TableName() string { return "search_logs" }

// PopularQuery is an aggregate row: a query and how often it was searched.
type PopularQuery struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}
