// Package services – IndexService
//
// IndexService owns the custom search index for the running process. It
// builds the index from its source (the CMS builder or a remote index URL),
// caches the records together with their published JSON encoding, and
// rebuilds after MaxAge. A failed rebuild keeps serving the previous index.
// The search Session derived from the records is cached alongside them so
// request handlers never re-normalize the index.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tbourn/sitesearch/internal/domain"
	"github.com/tbourn/sitesearch/internal/observability"
	"github.com/tbourn/sitesearch/internal/search"
)

// retryAfterFailure throttles rebuild attempts after an error.
const retryAfterFailure = 30 * time.Second

// IndexSnapshot is one built version of the custom index.
type IndexSnapshot struct {
	Records []domain.SearchRecord
	JSON    []byte
	ETag    string
	BuiltAt time.Time
}

// IndexService caches the custom index and the search session over it.
type IndexService struct {
	// Source produces the index records. Required.
	Source search.IndexSource
	// Static is the provider selected at startup; nil means NoopStatic.
	Static          search.StaticProvider
	StaticAvailable bool
	// MaxAge is how long a built index is served before rebuilding.
	MaxAge time.Duration
	Log    zerolog.Logger
	// Now is overridable in tests.
	Now func() time.Time

	mu sync.Mutex // guards snap, session and retryAfter
	sg singleflight.Group

	snap       *IndexSnapshot
	session    *search.Session
	retryAfter time.Time
}

func (s *IndexService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Records implements search.IndexSource over the cached index.
func (s *IndexService) Records(ctx context.Context) ([]domain.SearchRecord, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Records, nil
}

// Snapshot returns the current index, rebuilding it when older than MaxAge.
// If a rebuild fails the previous snapshot is returned; only when nothing has
// ever been built does it return ErrIndexUnavailable.
func (s *IndexService) Snapshot(ctx context.Context) (*IndexSnapshot, error) {
	if s.Source == nil {
		return nil, ErrNoIndexSource
	}

	s.mu.Lock()
	snap := s.snap
	now := s.now()
	fresh := snap != nil && now.Sub(snap.BuiltAt) < s.MaxAge
	throttled := now.Before(s.retryAfter)
	s.mu.Unlock()

	if fresh || (snap != nil && throttled) {
		return snap, nil
	}
	if throttled {
		return nil, ErrIndexUnavailable
	}

	v, err, _ := s.sg.Do("build", func() (any, error) {
		return s.rebuild(context.WithoutCancel(ctx))
	})
	if err != nil {
		if snap != nil {
			s.Log.Warn().Err(err).Time("built_at", snap.BuiltAt).Msg("index rebuild failed; serving previous index")
			return snap, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	return v.(*IndexSnapshot), nil
}

func (s *IndexService) rebuild(ctx context.Context) (*IndexSnapshot, error) {
	recs, err := s.Source.Records(ctx)
	if err == nil {
		recs = validRecords(recs)
	}
	var body []byte
	if err == nil {
		body, err = EncodeIndex(recs)
	}
	observability.IndexBuilt(len(recs), err)
	if err != nil {
		s.mu.Lock()
		s.retryAfter = s.now().Add(retryAfterFailure)
		s.mu.Unlock()
		return nil, err
	}

	sum := sha256.Sum256(body)
	snap := &IndexSnapshot{
		Records: recs,
		JSON:    body,
		ETag:    `"` + hex.EncodeToString(sum[:16]) + `"`,
		BuiltAt: s.now(),
	}
	sess := search.NewSessionFromRecords(recs, s.Static, s.StaticAvailable, s.Log)

	s.mu.Lock()
	s.snap = snap
	s.session = sess
	s.retryAfter = time.Time{}
	s.mu.Unlock()

	s.Log.Info().Int("records", len(recs)).Msg("custom search index ready")
	return snap, nil
}

// Session returns a fresh page-view session over the current index. When no
// index can be built the session has an empty custom index, so searches
// still reach the static index.
func (s *IndexService) Session(ctx context.Context) *search.Session {
	if _, err := s.Snapshot(ctx); err != nil {
		s.Log.Warn().Err(err).Msg("custom search index unavailable; searching static pages only")
		return search.NewSessionFromRecords(nil, s.Static, s.StaticAvailable, s.Log)
	}
	s.mu.Lock()
	base := s.session
	s.mu.Unlock()
	return base.Fork()
}

// EncodeIndex renders records in the published index format: a JSON array
// of SearchRecord.
func EncodeIndex(recs []domain.SearchRecord) ([]byte, error) {
	if recs == nil {
		recs = []domain.SearchRecord{}
	}
	return json.Marshal(recs)
}

func validRecords(recs []domain.SearchRecord) []domain.SearchRecord {
	out := make([]domain.SearchRecord, 0, len(recs))
	for _, r := range recs {
		if r.Valid() {
			out = append(out, r)
		}
	}
	return out
}
