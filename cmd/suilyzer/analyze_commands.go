package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/brojonat/suilyzer/client"
	"github.com/brojonat/suilyzer/service/analyzer"
	natspkg "github.com/brojonat/suilyzer/service/nats"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

var errStopWatching = errors.New("stop watching")

func newClient(c *cli.Context) (*client.Client, error) {
	serverURL := c.String("server-url")
	if serverURL == "" {
		return nil, fmt.Errorf("server-url is required (set SERVER_URL env var or use --server-url)")
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
	return client.NewClient(serverURL, nil, logger), nil
}

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Analyze a transaction by digest",
		ArgsUsage: "<digest>",
		Description: `Ask the server to analyze a transaction and print the result.

Use --jq to extract parts of the analysis, as with jq(1):

Examples:
  suilyzer analyze 8RBsoeyoRwajj86MZfZE6gMDJQVYGYcdSfx1zxqxNHbr
  suilyzer analyze --jq '.summary' -r <digest>
  suilyzer analyze --jq '.diagram.edges[] | select(.type == "transfer") | .label' <digest>`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq filter applied to the analysis (repeatable, applied in order)",
			},
			&cli.BoolFlag{
				Name:    "raw-output",
				Aliases: []string{"r"},
				Usage:   "Print string results of --jq without quotes",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 90 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			digest := strings.TrimSpace(c.Args().First())
			if digest == "" {
				return fmt.Errorf("digest argument is required")
			}

			codes, err := compileJQ(c.StringSlice("jq"))
			if err != nil {
				return err
			}

			cl, err := newClient(c)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			out := c.App.Writer

			if len(codes) > 0 || c.Bool("json") {
				raw, err := cl.AnalyzeRaw(ctx, digest)
				if err != nil {
					return fmt.Errorf("failed to analyze transaction: %w", err)
				}
				var doc interface{}
				if err := json.Unmarshal(raw, &doc); err != nil {
					return fmt.Errorf("failed to decode analysis: %w", err)
				}
				if len(codes) == 0 {
					return outputJSON(out, doc)
				}
				return printJQ(out, codes, doc, c.Bool("raw-output"))
			}

			result, err := cl.Analyze(ctx, digest)
			if err != nil {
				return fmt.Errorf("failed to analyze transaction: %w", err)
			}
			printAnalysis(out, result)
			return nil
		},
	}
}

// printJQ pipes doc through the filters in order and prints the final outputs.
func printJQ(w io.Writer, codes []*gojq.Code, doc interface{}, raw bool) error {
	inputs := []interface{}{doc}
	for _, code := range codes {
		var next []interface{}
		for _, in := range inputs {
			outs, err := runJQ(code, in)
			if err != nil {
				return fmt.Errorf("jq filter failed: %w", err)
			}
			next = append(next, outs...)
		}
		inputs = next
	}

	for _, v := range inputs {
		if s, ok := v.(string); ok && raw {
			fmt.Fprintln(w, s)
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal jq output: %w", err)
		}
		fmt.Fprintln(w, string(data))
	}
	return nil
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Follow analyses as the server completes them",
		Description: `Stream completed analyses from the server (requires NATS on the server).

Use --must-jq to only print events matching every filter.

Examples:
  suilyzer watch
  suilyzer watch --digest <digest> --count 1
  suilyzer watch --must-jq '.status == "failure"' --must-jq '.node_count > 10'`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "digest",
				Usage: "Only follow analyses of this digest",
			},
			&cli.StringSliceFlag{
				Name:  "must-jq",
				Usage: "jq filter every printed event must satisfy (repeatable)",
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "Exit after this many matching events (0 = unlimited)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Stop watching after this long (0 = no timeout)",
			},
		},
		Action: func(c *cli.Context) error {
			codes, err := compileJQ(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			cl, err := newClient(c)
			if err != nil {
				return err
			}

			ctx := c.Context
			if ctx == nil {
				ctx = context.Background()
			}
			if timeout := c.Duration("timeout"); timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			out := c.App.Writer
			jsonOutput := c.Bool("json")
			limit := c.Int("count")
			seen := 0

			err = cl.Stream(ctx, c.String("digest"), func(ev *natspkg.AnalysisEvent) error {
				if len(codes) > 0 {
					input, err := toJQInput(ev)
					if err != nil {
						return err
					}
					if !matchesAll(codes, input) {
						return nil
					}
				}

				seen++
				if jsonOutput {
					data, err := json.Marshal(ev)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, string(data))
				} else {
					printEvent(out, ev)
				}

				if limit > 0 && seen >= limit {
					return errStopWatching
				}
				return nil
			})

			switch {
			case errors.Is(err, errStopWatching):
				return nil
			case errors.Is(err, context.DeadlineExceeded):
				fmt.Fprintf(os.Stderr, "\nStopped after timeout, received %d analyses\n", seen)
				return nil
			case err != nil:
				return fmt.Errorf("failed to watch analyses: %w", err)
			}
			return nil
		},
	}
}

func cacheInvalidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "invalidate",
		Usage:     "Drop the cached analysis of a digest",
		ArgsUsage: "<digest>",
		Action: func(c *cli.Context) error {
			digest := strings.TrimSpace(c.Args().First())
			if digest == "" {
				return fmt.Errorf("digest argument is required")
			}

			cl, err := newClient(c)
			if err != nil {
				return err
			}

			msg, err := cl.Invalidate(context.Background(), digest)
			if err != nil {
				return fmt.Errorf("failed to invalidate cache: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, map[string]string{"message": msg})
			}
			fmt.Fprintf(c.App.Writer, "✓ %s\n", msg)
			return nil
		},
	}
}

func cacheClearCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Drop every cached analysis",
		Action: func(c *cli.Context) error {
			cl, err := newClient(c)
			if err != nil {
				return err
			}

			msg, err := cl.ClearCache(context.Background())
			if err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, map[string]string{"message": msg})
			}
			fmt.Fprintf(c.App.Writer, "✓ %s\n", msg)
			return nil
		},
	}
}

// printAnalysis prints a human-friendly view of an analysis.
func printAnalysis(out io.Writer, r *analyzer.Result) {
	fmt.Fprintf(out, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(out, "Transaction:  %s\n", r.Digest)
	fmt.Fprintf(out, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(out, "Sender:       %s\n", r.Sender)
	fmt.Fprintf(out, "Status:       %s\n", r.Status)
	if r.StatusError != nil {
		fmt.Fprintf(out, "Error:        %s\n", *r.StatusError)
	}
	if r.Checkpoint != nil {
		fmt.Fprintf(out, "Checkpoint:   %d\n", *r.Checkpoint)
	}
	fmt.Fprintf(out, "Gas Used:     %s SUI\n", r.GasUsed)
	fmt.Fprintf(out, "Objects:      %d created, %d mutated, %d deleted, %d wrapped\n",
		len(r.Objects.Created), len(r.Objects.Mutated), len(r.Objects.Deleted), len(r.Objects.Wrapped))
	fmt.Fprintf(out, "\nSummary (%s):\n  %s\n", r.SummarySource, r.Summary)

	if len(r.BalanceChanges) > 0 {
		fmt.Fprintf(out, "\nBalance changes:\n")
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, bc := range r.BalanceChanges {
			fmt.Fprintf(w, "  %s\t%s\n", bc.Address, bc.Display())
		}
		w.Flush()
	}

	if len(r.Packages) > 0 {
		fmt.Fprintf(out, "\nPackages:\n")
		for _, p := range r.Packages {
			call := p.PackageID
			if p.Module != nil && p.Function != nil {
				call = fmt.Sprintf("%s::%s::%s", p.PackageID, *p.Module, *p.Function)
			}
			fmt.Fprintf(out, "  %s\n", call)
		}
	}

	if r.Diagram != nil && len(r.Diagram.Edges) > 0 {
		fmt.Fprintf(out, "\nFlow:\n")
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, e := range r.Diagram.Edges {
			fmt.Fprintf(w, "  %s\t→\t%s\t%s\t%s\n", e.Source, e.Target, e.Kind, e.Label)
		}
		w.Flush()
	}
	fmt.Fprintln(out)
}

// printEvent prints a human-friendly view of an analysis event.
func printEvent(out io.Writer, ev *natspkg.AnalysisEvent) {
	fmt.Fprintf(out, "─────────────────────────────────────────────────────\n")
	fmt.Fprintf(out, "Digest:       %s\n", ev.Digest)
	fmt.Fprintf(out, "Sender:       %s\n", ev.Sender)
	fmt.Fprintf(out, "Status:       %s\n", ev.Status)
	fmt.Fprintf(out, "Gas Used:     %s SUI\n", ev.GasUsed)
	fmt.Fprintf(out, "Graph:        %d nodes, %d edges\n", ev.NodeCount, ev.EdgeCount)
	fmt.Fprintf(out, "Summary:      %s\n", ev.Summary)
	fmt.Fprintf(out, "Analyzed:     %s\n", ev.AnalyzedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "\n")
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
