// Command sitesearch serves the hybrid site search and builds its indexes.
//
//	sitesearch serve                          start the HTTP server
//	sitesearch build-index --out FILE         build the custom index from the CMS
//	sitesearch build-static --site DIR        index the rendered HTML pages
//	sitesearch query [--category C] TEXT      search from the terminal
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/tbourn/sitesearch/internal/config"
	"github.com/tbourn/sitesearch/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	app := &cli.Command{
		Name:    "sitesearch",
		Usage:   "Hybrid site search over a CMS-built index and a static page index",
		Version: sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
				Value: false,
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			buildIndexCommand(),
			buildStaticCommand(),
			queryCommand(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("sitesearch")
	}
}

// setup loads the configuration and installs the process logger.
func setup(c *cli.Command) (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, zerolog.Nop(), fmt.Errorf("loading config: %w", err)
	}
	if c.Bool("debug") {
		cfg.LogLevel = "debug"
	}
	sysutil.SetLogLevel(cfg.LogLevel)
	lg := sysutil.NewLogger(os.Stderr, cfg.LogPretty)
	log.Logger = lg
	return cfg, lg, nil
}
