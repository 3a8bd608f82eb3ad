package staticindex

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// BuildStats summarises one Build run.
type BuildStats struct {
	Indexed int
	Ignored int
	Failed  int
}

// BuildOption configures Build.
type BuildOption func(*buildConfig)

type buildConfig struct {
	batchSize int
	log       zerolog.Logger
}

// WithBatchSize sets how many pages are written per bleve batch. Values <= 0
// are ignored.
func WithBatchSize(n int) BuildOption {
	return func(c *buildConfig) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithBuildLogger sets the logger used for per-page failures.
func WithBuildLogger(lg zerolog.Logger) BuildOption {
	return func(c *buildConfig) { c.log = lg }
}

// Build indexes every *.html file under siteDir into a fresh bleve index at
// indexPath. The index is written next to indexPath first and swapped in
// only when complete, so a failed build leaves any previous index intact.
// Pages that cannot be parsed are logged and counted, not fatal.
func Build(ctx context.Context, siteDir, indexPath string, opts ...BuildOption) (BuildStats, error) {
	cfg := buildConfig{batchSize: 200, log: zerolog.Nop()}
	for _, o := range opts {
		o(&cfg)
	}

	ctx, span := otel.Tracer("staticindex").Start(ctx, "staticindex/Build")
	defer span.End()

	var stats BuildStats
	info, err := os.Stat(siteDir)
	if err != nil {
		return stats, fmt.Errorf("site dir: %w", err)
	}
	if !info.IsDir() {
		return stats, fmt.Errorf("site dir %s: not a directory", siteDir)
	}

	tmp := indexPath + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return stats, fmt.Errorf("clear temp index: %w", err)
	}
	idx, err := bleve.New(tmp, newMapping())
	if err != nil {
		return stats, fmt.Errorf("create index: %w", err)
	}

	batch := idx.NewBatch()
	flush := func() error {
		if batch.Size() == 0 {
			return nil
		}
		if err := idx.Batch(batch); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
		batch.Reset()
		return nil
	}

	walkErr := filepath.WalkDir(siteDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".html") {
			return nil
		}
		rel, err := filepath.Rel(siteDir, p)
		if err != nil {
			return err
		}

		page, skip, err := readPage(p, pageURL(rel))
		switch {
		case err != nil:
			stats.Failed++
			cfg.log.Warn().Err(err).Str("file", rel).Msg("static page skipped")
			return nil
		case skip:
			stats.Ignored++
			return nil
		}

		if err := batch.Index(page.URL, page); err != nil {
			return fmt.Errorf("index %s: %w", page.URL, err)
		}
		stats.Indexed++
		if batch.Size() >= cfg.batchSize {
			return flush()
		}
		return nil
	})
	if walkErr == nil {
		walkErr = flush()
	}
	closeErr := idx.Close()
	if err := errors.Join(walkErr, closeErr); err != nil {
		_ = os.RemoveAll(tmp)
		span.RecordError(err)
		return stats, err
	}

	if err := os.RemoveAll(indexPath); err != nil {
		return stats, fmt.Errorf("remove old index: %w", err)
	}
	if err := os.Rename(tmp, indexPath); err != nil {
		return stats, fmt.Errorf("install index: %w", err)
	}

	span.SetAttributes(
		attribute.Int("pages.indexed", stats.Indexed),
		attribute.Int("pages.ignored", stats.Ignored),
		attribute.Int("pages.failed", stats.Failed),
	)
	return stats, nil
}

func readPage(file, url string) (Page, bool, error) {
	f, err := os.Open(file)
	if err != nil {
		return Page{}, false, err
	}
	defer f.Close()
	return extractPage(f, url)
}
