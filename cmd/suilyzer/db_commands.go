package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/suilyzer/service/db"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

func listAnalysesCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-analyses",
		Usage:   "List journaled analyses, newest first",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "sender",
				Aliases: []string{"s"},
				Usage:   "Filter by sender address",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Usage:   "Maximum number of analyses to show",
				Value:   50,
			},
			&cli.IntFlag{
				Name:  "offset",
				Usage: "Number of analyses to skip",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			params := db.ListAnalysesParams{
				Limit:  int32(c.Int("limit")),
				Offset: int32(c.Int("offset")),
			}
			if sender := c.String("sender"); sender != "" {
				params.Sender = &sender
			}

			analyses, err := store.ListRecentAnalyses(context.Background(), params)
			if err != nil {
				return fmt.Errorf("failed to list analyses: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, analyses)
			}

			// Pretty table output
			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DIGEST\tSENDER\tSTATUS\tGAS\tNODES\tEDGES\tSUMMARY\tANALYZED")
			for _, a := range analyses {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					a.Digest,
					a.Sender,
					a.Status,
					a.GasUsed,
					a.NodeCount,
					a.EdgeCount,
					a.SummarySource,
					a.AnalyzedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d analyses\n", len(analyses))
			return nil
		},
	}
}

func getAnalysisCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-analysis",
		Usage:     "Show a journaled analysis",
		ArgsUsage: "<digest>",
		Action: func(c *cli.Context) error {
			digest := c.Args().First()
			if digest == "" {
				return fmt.Errorf("digest argument is required")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			a, err := store.GetAnalysis(context.Background(), digest)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("analysis not found: %s", digest)
				}
				return fmt.Errorf("failed to get analysis: %w", err)
			}

			if c.Bool("json") {
				// The stored result is already the analysis document.
				var doc interface{}
				if err := json.Unmarshal(a.Result, &doc); err != nil {
					return fmt.Errorf("failed to decode stored result: %w", err)
				}
				return outputJSON(c.App.Writer, doc)
			}

			out := c.App.Writer
			fmt.Fprintf(out, "Digest:         %s\n", a.Digest)
			fmt.Fprintf(out, "Sender:         %s\n", a.Sender)
			fmt.Fprintf(out, "Status:         %s\n", a.Status)
			fmt.Fprintf(out, "Gas Used:       %s SUI\n", a.GasUsed)
			if a.Checkpoint != nil {
				fmt.Fprintf(out, "Checkpoint:     %d\n", *a.Checkpoint)
			}
			fmt.Fprintf(out, "Graph:          %d nodes, %d edges\n", a.NodeCount, a.EdgeCount)
			fmt.Fprintf(out, "Summary Source: %s\n", a.SummarySource)
			fmt.Fprintf(out, "Summary:        %s\n", a.Summary)
			fmt.Fprintf(out, "Analyzed:       %s\n", a.AnalyzedAt.Format(time.RFC3339))
			fmt.Fprintf(out, "Updated:        %s\n", a.UpdatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func deleteAnalysisCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete-analysis",
		Usage:     "Remove a journaled analysis",
		ArgsUsage: "<digest>",
		Action: func(c *cli.Context) error {
			digest := c.Args().First()
			if digest == "" {
				return fmt.Errorf("digest argument is required")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.DeleteAnalysis(context.Background(), digest); err != nil {
				return fmt.Errorf("failed to delete analysis: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, map[string]string{"deleted": digest})
			}
			fmt.Fprintf(c.App.Writer, "✓ Deleted analysis %s\n", digest)
			return nil
		},
	}
}

func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" && c.App != nil {
		// Try environment variable directly if flag not found
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := db.NewStore(pool, nil)
	if err := store.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	closer := func() { pool.Close() }

	return store, closer, nil
}
