package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/sitesearch/internal/config"
	httpapi "github.com/tbourn/sitesearch/internal/http"
	"github.com/tbourn/sitesearch/internal/http/handlers"
	"github.com/tbourn/sitesearch/internal/observability"
	"github.com/tbourn/sitesearch/internal/repo"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the search server (page, live websocket, JSON API, published index)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "port",
				Usage: "Port to listen on (overrides PORT)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, lg, err := setup(c)
			if err != nil {
				return err
			}
			if p := c.String("port"); p != "" {
				cfg.Port = p
			}
			return serve(ctx, cfg, lg, c.Root().Version)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, lg zerolog.Logger, version string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() { _ = shutdownOTel(context.Background()) }()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	svc, bl, err := newSearch(ctx, cfg, lg, db)
	if err != nil {
		return err
	}
	defer bl.Close()

	// Warm the custom index; failures are retried on demand.
	if _, err := svc.Index.Snapshot(ctx); err != nil {
		lg.Warn().Err(err).Msg("custom index not built at startup")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	h := handlers.New(svc, svc.Index, svc.Engine, handlers.Options{
		Debounce:       cfg.Search.Debounce,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})
	httpapi.RegisterRoutes(r, h, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info().Str("addr", srv.Addr).Str("version", version).Msg("sitesearch listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		lg.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
