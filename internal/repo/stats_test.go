package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/sitesearch/internal/domain"
)

func TestSearchLogStats_CountError_NoTable(t *testing.T) {
	db := newTestDB(t /* no migrations */)
	_, _, err := SearchLogStats(context.Background(), db, time.Time{})
	if err == nil {
		t.Fatalf("expected error due to missing search_logs table")
	}
}

func TestSearchLogStats_ZeroRows(t *testing.T) {
	db := newTestDB(t, &domain.SearchLog{})
	count, maxAt, err := SearchLogStats(context.Background(), db, time.Time{})
	if err != nil {
		t.Fatalf("SearchLogStats error: %v", err)
	}
	if count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil), got (%d, %v)", count, maxAt)
	}
}

func TestSearchLogStats_Success_WindowAndMax(t *testing.T) {
	db := newTestDB(t, &domain.SearchLog{})

	t1 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC) // max
	t0 := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)   // before the window

	seedLog(t, db, "a", "results", t1)
	seedLog(t, db, "b", "empty", t2)
	seedLog(t, db, "c", "results", t0)

	count, maxAt, err := SearchLogStats(context.Background(), db, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("SearchLogStats error: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count=2, got %d", count)
	}
	if maxAt == nil || !maxAt.Equal(t2) {
		t.Fatalf("expected maxCreatedAt=%v, got %v", t2, maxAt)
	}
}
