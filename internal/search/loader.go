package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/sitesearch/internal/domain"
)

// IndexSource produces the custom content index.
type IndexSource interface {
	Records(ctx context.Context) ([]domain.SearchRecord, error)
}

// IndexSourceFunc adapts a function to IndexSource.
type IndexSourceFunc func(ctx context.Context) ([]domain.SearchRecord, error)

// Records calls f.
func (f IndexSourceFunc) Records(ctx context.Context) ([]domain.SearchRecord, error) { return f(ctx) }

// CacheBustToken returns the hourly rotating version token (YYYYMMDDHH, UTC)
// appended to the index URL so clients bypass caches in step with the
// endpoint's one-hour Cache-Control window.
func CacheBustToken(now time.Time) string {
	return now.UTC().Format("2006010215")
}

// ErrIndexStatus is returned by HTTPIndexSource for non-2xx responses.
var ErrIndexStatus = errors.New("unexpected index response status")

// maxIndexBytes caps the custom index download.
const maxIndexBytes = 64 << 20

// HTTPIndexSource fetches the published index JSON over HTTP.
type HTTPIndexSource struct {
	URL    string
	Client *http.Client
	Now    func() time.Time
}

// NewHTTPIndexSource returns a source for rawURL using client (or
// http.DefaultClient when nil).
func NewHTTPIndexSource(rawURL string, client *http.Client) *HTTPIndexSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPIndexSource{URL: rawURL, Client: client, Now: time.Now}
}

// Records issues GET <URL>?v=<token> and decodes a JSON array of records.
func (s *HTTPIndexSource) Records(ctx context.Context) ([]domain.SearchRecord, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return nil, fmt.Errorf("parse index url: %w", err)
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	q := u.Query()
	q.Set("v", CacheBustToken(now()))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrIndexStatus, resp.StatusCode)
	}

	var recs []domain.SearchRecord
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxIndexBytes)).Decode(&recs); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	return recs, nil
}

// LoadIndex reads the custom index once. Any failure is logged and yields an
// empty index so search degrades to the static source alone. Records missing
// a title or url are dropped.
func LoadIndex(ctx context.Context, src IndexSource, lg zerolog.Logger) []domain.SearchRecord {
	if src == nil {
		return nil
	}
	recs, err := src.Records(ctx)
	if err != nil {
		lg.Warn().Err(err).Msg("custom search index unavailable; continuing without it")
		return nil
	}
	out := make([]domain.SearchRecord, 0, len(recs))
	for _, r := range recs {
		if r.Valid() {
			out = append(out, r)
		}
	}
	if dropped := len(recs) - len(out); dropped > 0 {
		lg.Debug().Int("dropped", dropped).Msg("skipped custom index records without title or url")
	}
	return out
}
