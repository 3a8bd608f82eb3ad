package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/tbourn/sitesearch/internal/domain"
	"github.com/tbourn/sitesearch/internal/services"
	"github.com/tbourn/sitesearch/internal/staticindex"
)

func buildIndexCommand() *cli.Command {
	return &cli.Command{
		Name:  "build-index",
		Usage: "Build the custom search index from the CMS",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "out",
				Usage: "Output file",
				Value: filepath.Join("public", "js", "search-index.json"),
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, lg, err := setup(c)
			if err != nil {
				return err
			}
			if cfg.CMS.BaseURL == "" {
				return errors.New("CMS_BASE_URL is required to build the index")
			}
			b, err := newBuilder(cfg, lg)
			if err != nil {
				return err
			}
			recs, err := b.Build(ctx)
			if err != nil {
				return fmt.Errorf("building index: %w", err)
			}
			body, err := services.EncodeIndex(recs)
			if err != nil {
				return err
			}
			out := c.String("out")
			if err := writeFileAtomic(out, body); err != nil {
				return err
			}

			rows := [][2]string{{"output", out}, {"records", strconv.Itoa(len(recs))}}
			rows = append(rows, categoryCounts(recs)...)
			printSummary(os.Stdout, "Custom index built", rows)
			return nil
		},
	}
}

func buildStaticCommand() *cli.Command {
	return &cli.Command{
		Name:  "build-static",
		Usage: "Index the rendered HTML pages of the site",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "site",
				Usage:    "Directory with the generated site",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "Index directory (defaults to STATIC_INDEX_PATH)",
			},
			&cli.IntFlag{
				Name:  "batch",
				Usage: "Pages per index batch",
				Value: 200,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, lg, err := setup(c)
			if err != nil {
				return err
			}
			out := c.String("out")
			if out == "" {
				out = cfg.Search.StaticIndexPath
			}
			stats, err := staticindex.Build(ctx, c.String("site"), out,
				staticindex.WithBatchSize(int(c.Int("batch"))),
				staticindex.WithBuildLogger(lg),
			)
			if err != nil {
				return fmt.Errorf("building static index: %w", err)
			}
			printSummary(os.Stdout, "Static index built", [][2]string{
				{"output", out},
				{"indexed", strconv.Itoa(stats.Indexed)},
				{"ignored", strconv.Itoa(stats.Ignored)},
				{"failed", strconv.Itoa(stats.Failed)},
			})
			return nil
		},
	}
}

// categoryCounts lists records per category in first-seen order.
func categoryCounts(recs []domain.SearchRecord) [][2]string {
	idx := map[string]int{}
	var cats []string
	var counts []int
	for _, r := range recs {
		i, ok := idx[r.Category]
		if !ok {
			i = len(cats)
			idx[r.Category] = i
			cats = append(cats, r.Category)
			counts = append(counts, 0)
		}
		counts[i]++
	}
	out := make([][2]string, len(cats))
	for i, c := range cats {
		out[i] = [2]string{"  " + c, strconv.Itoa(counts[i])}
	}
	return out
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
