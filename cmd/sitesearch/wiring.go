package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/sitesearch/internal/cms"
	"github.com/tbourn/sitesearch/internal/config"
	"github.com/tbourn/sitesearch/internal/domain"
	"github.com/tbourn/sitesearch/internal/observability"
	"github.com/tbourn/sitesearch/internal/search"
	"github.com/tbourn/sitesearch/internal/services"
	"github.com/tbourn/sitesearch/internal/staticindex"
)

const staticProbeTimeout = 5 * time.Second

func newBuilder(cfg config.Config, lg zerolog.Logger) (*cms.Builder, error) {
	cols, err := cms.LoadCollections(cfg.CMS.CollectionsFile)
	if err != nil {
		return nil, err
	}
	client := cms.NewClient(cfg.CMS.BaseURL, cfg.CMS.Token, cfg.CMS.Timeout)
	return cms.NewBuilder(client, cols, lg.With().Str("component", "cms").Logger()), nil
}

// indexSource picks where the custom index comes from: a published index
// URL, an in-process CMS build, or nothing (static pages only).
func indexSource(cfg config.Config, lg zerolog.Logger) (search.IndexSource, error) {
	switch {
	case cfg.Search.IndexURL != "":
		return search.NewHTTPIndexSource(cfg.Search.IndexURL, &http.Client{Timeout: cfg.CMS.Timeout}), nil
	case cfg.CMS.BaseURL != "":
		b, err := newBuilder(cfg, lg)
		if err != nil {
			return nil, err
		}
		return search.IndexSourceFunc(b.Build), nil
	default:
		lg.Warn().Msg("neither SEARCH_INDEX_URL nor CMS_BASE_URL is set; the custom index is empty")
		return search.IndexSourceFunc(func(context.Context) ([]domain.SearchRecord, error) {
			return nil, nil
		}), nil
	}
}

// newSearch wires the static provider, the index service and the search
// service. db may be nil. The returned Bleve must be closed by the caller.
func newSearch(ctx context.Context, cfg config.Config, lg zerolog.Logger, db *gorm.DB) (*services.SearchService, *staticindex.Bleve, error) {
	var opts []staticindex.Option
	if cfg.Search.StaticProbeURL != "" {
		opts = append(opts, staticindex.WithProbeURL(cfg.Search.StaticProbeURL, &http.Client{Timeout: staticProbeTimeout}))
	}
	bl := staticindex.NewBleve(cfg.Search.StaticIndexPath, opts...)
	static, available := search.SelectStatic(ctx, bl, lg)
	observability.SetStaticAvailable(available)

	src, err := indexSource(cfg, lg)
	if err != nil {
		_ = bl.Close()
		return nil, nil, fmt.Errorf("index source: %w", err)
	}

	idx := &services.IndexService{
		Source:          src,
		Static:          static,
		StaticAvailable: available,
		MaxAge:          cfg.Search.IndexMaxAge,
		Log:             lg.With().Str("component", "index").Logger(),
	}
	engine := search.NewEngine(
		search.WithMinQueryRunes(cfg.Search.MinQueryRunes),
		search.WithStaticLimit(cfg.Search.StaticLimit),
	)
	return &services.SearchService{
		DB:     db,
		Engine: engine,
		Index:  idx,
		Log:    lg.With().Str("component", "search").Logger(),
	}, bl, nil
}
