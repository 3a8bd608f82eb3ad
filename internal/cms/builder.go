package cms

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/sitesearch/internal/domain"
)

// ErrNoContent is returned when every collection failed to load.
var ErrNoContent = errors.New("cms: no collection could be loaded")

// defaultFetchConcurrency bounds parallel collection requests.
const defaultFetchConcurrency = 4

// Builder assembles the custom search index from CMS collections.
type Builder struct {
	fetch       Fetcher
	collections []Collection
	limit       int
	log         zerolog.Logger
	policy      *bluemonday.Policy
}

// NewBuilder returns a builder reading cols through f.
func NewBuilder(f Fetcher, cols []Collection, lg zerolog.Logger) *Builder {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return &Builder{
		fetch:       f,
		collections: cols,
		limit:       defaultFetchConcurrency,
		log:         lg,
		policy:      p,
	}
}

// Collections returns the mapping the builder uses.
func (b *Builder) Collections() []Collection { return b.collections }

// Build fetches all collections concurrently and maps them into records in
// collection order. Items without a title or url are skipped and the first
// record for a url wins. A failing collection is logged and left out; Build
// fails only when all of them fail.
func (b *Builder) Build(ctx context.Context) ([]domain.SearchRecord, error) {
	ctx, span := otel.Tracer("cms").Start(ctx, "cms/Build")
	defer span.End()
	start := time.Now()

	items := make([][]Item, len(b.collections))
	errs := make([]error, len(b.collections))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.limit)
	for i, c := range b.collections {
		g.Go(func() error {
			got, err := b.fetch.Items(gctx, c.Name, c.Fields())
			if err != nil {
				errs[i] = err
				return nil
			}
			items[i] = got
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		out     []domain.SearchRecord
		seen    = map[string]struct{}{}
		failed  int
		skipped int
	)
	for i, c := range b.collections {
		if errs[i] != nil {
			failed++
			b.log.Warn().Err(errs[i]).Str("collection", c.Name).Msg("cms collection skipped")
			continue
		}
		for _, it := range items[i] {
			rec, ok := b.mapItem(c, it)
			if !ok {
				skipped++
				continue
			}
			if _, dup := seen[rec.URL]; dup {
				continue
			}
			seen[rec.URL] = struct{}{}
			out = append(out, rec)
		}
	}

	span.SetAttributes(
		attribute.Int("index.records", len(out)),
		attribute.Int("index.failed_collections", failed),
	)
	if len(b.collections) > 0 && failed == len(b.collections) {
		err := fmt.Errorf("%w: %w", ErrNoContent, errors.Join(errs...))
		span.RecordError(err)
		return nil, err
	}

	b.log.Info().
		Int("records", len(out)).
		Int("skipped", skipped).
		Int("failed_collections", failed).
		Dur("took", time.Since(start)).
		Msg("search index built")
	return out, nil
}

func (b *Builder) mapItem(c Collection, it Item) (domain.SearchRecord, bool) {
	title := b.flatten(stringify(it[c.Title]))
	link, ok := expandURL(c.URL, it)
	if title == "" || !ok {
		return domain.SearchRecord{}, false
	}

	rich := make(map[string]struct{}, len(c.Rich))
	for _, f := range c.Rich {
		rich[f] = struct{}{}
	}
	parts := make([]string, 0, len(c.Content))
	for _, f := range c.Content {
		v := stringify(it[f])
		if _, isRich := rich[f]; isRich {
			v = b.flatten(v)
		} else {
			v = collapse(v)
		}
		if v != "" {
			parts = append(parts, v)
		}
	}

	return domain.SearchRecord{
		Title:    title,
		URL:      link,
		Content:  strings.Join(parts, " "),
		Type:     c.Type,
		Category: c.Category,
		Subtitle: collapse(stringify(field(it, c.Subtitle))),
		Image:    strings.TrimSpace(stringify(field(it, c.Image))),
		Address:  collapse(stringify(field(it, c.Address))),
	}, true
}

// flatten strips markup and decodes entities from rich text.
func (b *Builder) flatten(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapse(s)
	}
	return collapse(html.UnescapeString(b.policy.Sanitize(s)))
}

// expandURL fills {field} placeholders from the item. ok is false when a
// placeholder has no value.
func expandURL(pattern string, it Item) (string, bool) {
	ok := true
	out := placeholderRE.ReplaceAllStringFunc(pattern, func(m string) string {
		v := strings.TrimSpace(stringify(it[m[1:len(m)-1]]))
		if v == "" {
			ok = false
			return ""
		}
		return url.PathEscape(v)
	})
	return out, ok
}

func field(it Item, name string) any {
	if name == "" {
		return nil
	}
	return it[name]
}

// stringify renders scalar JSON values. Objects with an "id" (CMS file
// relations) render as that id; anything else renders empty.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any:
		return stringify(t["id"])
	default:
		return ""
	}
}

func collapse(s string) string { return strings.Join(strings.Fields(s), " ") }
