package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/tbourn/sitesearch/internal/domain"
)

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "Search both indexes from the terminal",
		ArgsUsage: "TEXT",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "category",
				Usage: "Only show results in this category",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the grouped results as JSON",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if text == "" {
				return errors.New("query text is required")
			}
			cfg, lg, err := setup(c)
			if err != nil {
				return err
			}

			// No database: terminal queries are not logged.
			svc, bl, err := newSearch(ctx, cfg, lg, nil)
			if err != nil {
				return err
			}
			defer bl.Close()

			res, err := svc.Search(ctx, domain.Query{Text: text, Category: c.String("category")})
			if err != nil {
				return err
			}
			if c.Bool("json") {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(res.Groups)
			}
			printResult(os.Stdout, res)
			return nil
		},
	}
}
