package search

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/sitesearch/internal/domain"
)

// entry is an index record plus its lower-cased match keys. The record
// itself is never modified so highlighting keeps the original casing.
type entry struct {
	rec          domain.SearchRecord
	titleLower   string
	contentLower string
}

// Session owns the state of one page view: the custom index loaded once at
// construction, the static provider chosen by probing, and the sequence
// counter used to recognise stale results. The index is read-only after
// NewSession returns, so concurrent searches are safe.
type Session struct {
	index           []entry
	static          StaticProvider
	staticAvailable bool
	seq             atomic.Uint64
	log             zerolog.Logger
}

// NewSession loads the custom index from src and probes static in parallel.
// Neither failure is fatal: a failed load gives an empty custom index and a
// failed probe selects NoopStatic for the rest of the session.
func NewSession(ctx context.Context, src IndexSource, static StaticProvider, lg zerolog.Logger) *Session {
	var (
		recs      []domain.SearchRecord
		chosen    StaticProvider
		available bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs = LoadIndex(gctx, src, lg)
		return nil
	})
	g.Go(func() error {
		chosen, available = SelectStatic(gctx, static, lg)
		return nil
	})
	_ = g.Wait()

	return newSession(recs, chosen, available, lg)
}

// NewSessionFromRecords builds a session over an already-loaded index.
func NewSessionFromRecords(recs []domain.SearchRecord, static StaticProvider, available bool, lg zerolog.Logger) *Session {
	if static == nil {
		static, available = NoopStatic{}, false
	}
	return newSession(recs, static, available, lg)
}

func newSession(recs []domain.SearchRecord, static StaticProvider, available bool, lg zerolog.Logger) *Session {
	idx := make([]entry, 0, len(recs))
	for _, r := range recs {
		idx = append(idx, entry{
			rec:          r,
			titleLower:   strings.ToLower(r.Title),
			contentLower: strings.ToLower(r.Content),
		})
	}
	return &Session{
		index:           idx,
		static:          static,
		staticAvailable: available,
		log:             lg,
	}
}

// Fork returns a session over the same index and static provider with its
// own sequence counter, for a new page view.
func (s *Session) Fork() *Session {
	return &Session{
		index:           s.index,
		static:          s.static,
		staticAvailable: s.staticAvailable,
		log:             s.log,
	}
}

// Len is the number of records in the custom index.
func (s *Session) Len() int { return len(s.index) }

// StaticAvailable reports whether the static index takes part in searches.
func (s *Session) StaticAvailable() bool { return s.staticAvailable }

// Next allocates the sequence number for a newly committed query.
func (s *Session) Next() uint64 { return s.seq.Add(1) }

// Current is the most recently allocated sequence number.
func (s *Session) Current() uint64 { return s.seq.Load() }

// IsCurrent reports whether seq belongs to the latest committed query.
// Results carrying an older sequence must not be rendered.
func (s *Session) IsCurrent(seq uint64) bool { return seq == s.seq.Load() }

// matchCustom returns records whose title or content contains the query,
// case-insensitively, in index order. A non-empty category restricts the
// matches to that category.
func (s *Session) matchCustom(query, category string) []domain.SearchRecord {
	q := strings.ToLower(query)
	var out []domain.SearchRecord
	for i := range s.index {
		e := &s.index[i]
		if category != "" && e.rec.Category != category {
			continue
		}
		if strings.Contains(e.titleLower, q) || strings.Contains(e.contentLower, q) {
			out = append(out, e.rec)
		}
	}
	return out
}

// Categories lists the distinct categories of the custom index in first-seen
// order, plus the static default label when the static index is available.
func (s *Session) Categories() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(c string) {
		if c == "" {
			return
		}
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	for i := range s.index {
		add(s.index[i].rec.Category)
	}
	if s.staticAvailable {
		add(domain.DefaultStaticCategory)
	}
	return out
}
