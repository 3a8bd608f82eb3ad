package staticindex

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/tbourn/sitesearch/internal/domain"
)

// ErrNotBuilt is returned by Probe when the index has not been produced.
var ErrNotBuilt = errors.New("static index not built")

// titleBoost weights title matches above body matches.
const titleBoost = 3.0

// Option configures a Bleve provider.
type Option func(*Bleve)

// WithProbeURL makes Probe also issue a HEAD request to u. Used when the
// index is published with the site: the published copy and the local one
// searched at path must both be present.
func WithProbeURL(u string, client *http.Client) Option {
	return func(b *Bleve) {
		b.probeURL = u
		if client != nil {
			b.client = client
		}
	}
}

// Bleve serves searches from an index written by Build. The index is
// opened on first use and shared by all callers.
type Bleve struct {
	path     string
	probeURL string
	client   *http.Client

	once    sync.Once
	idx     bleve.Index
	openErr error
}

// NewBleve returns a provider for the index at path. Nothing is opened
// until Probe or Search is called.
func NewBleve(path string, opts ...Option) *Bleve {
	b := &Bleve{path: path, client: http.DefaultClient}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Probe reports whether the index asset exists. With a probe URL the
// published asset is checked first, then the local index Search opens.
func (b *Bleve) Probe(ctx context.Context) error {
	if b.probeURL != "" {
		if err := b.probeRemote(ctx); err != nil {
			return err
		}
	}
	if _, err := os.Stat(filepath.Join(b.path, MetaFile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotBuilt, b.path)
		}
		return err
	}
	return nil
}

func (b *Bleve) probeRemote(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, b.probeURL, nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: HEAD %s: %s", ErrNotBuilt, b.probeURL, resp.Status)
	}
	return nil
}

func (b *Bleve) open() (bleve.Index, error) {
	b.once.Do(func() {
		b.idx, b.openErr = bleve.OpenUsing(b.path, map[string]interface{}{
			"read_only": true,
		})
		if b.openErr != nil {
			b.openErr = fmt.Errorf("open static index: %w", b.openErr)
		}
	})
	return b.idx, b.openErr
}

// Search runs query against titles and page text, best matches first.
// Excerpt carries bleve's highlighted fragment when one exists.
func (b *Bleve) Search(ctx context.Context, q string, limit int) ([]domain.SearchRecord, error) {
	q = strings.TrimSpace(q)
	if q == "" || limit <= 0 {
		return nil, nil
	}
	idx, err := b.open()
	if err != nil {
		return nil, err
	}

	title := bleve.NewMatchQuery(q)
	title.SetField("title")
	title.SetBoost(titleBoost)
	title.SetOperator(query.MatchQueryOperatorAnd)

	content := bleve.NewMatchQuery(q)
	content.SetField("content")
	content.SetOperator(query.MatchQueryOperatorAnd)

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(title, content), limit, 0, false)
	req.Fields = []string{"title", "url", "category", "content"}
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Highlight.AddField("content")

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("static search: %w", err)
	}

	out := make([]domain.SearchRecord, 0, len(res.Hits))
	for _, hit := range res.Hits {
		rec := domain.SearchRecord{
			Title:    field(hit.Fields, "title"),
			URL:      field(hit.Fields, "url"),
			Category: field(hit.Fields, "category"),
			Content:  field(hit.Fields, "content"),
			Type:     domain.TypePage,
		}
		if rec.URL == "" {
			rec.URL = hit.ID
		}
		if frags := hit.Fragments["content"]; len(frags) > 0 {
			rec.Excerpt = frags[0]
		}
		out = append(out, rec)
	}
	return out, nil
}

// Count returns the number of indexed pages.
func (b *Bleve) Count() (uint64, error) {
	idx, err := b.open()
	if err != nil {
		return 0, err
	}
	return idx.DocCount()
}

// Close releases the index if it was opened.
func (b *Bleve) Close() error {
	if b.idx != nil {
		return b.idx.Close()
	}
	return nil
}

func field(fields map[string]interface{}, name string) string {
	s, _ := fields[name].(string)
	return s
}
