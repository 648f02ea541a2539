package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/brojonat/suilyzer/client"
	"github.com/urfave/cli/v2"
)

func healthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check server health",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 5 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			serverURL := c.String("server-url")
			if serverURL == "" {
				return fmt.Errorf("server-url is required (set SERVER_URL env var or use --server-url)")
			}

			cl := client.NewClient(serverURL, &http.Client{Timeout: c.Duration("timeout")}, nil)

			health, err := cl.Health(context.Background())
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, health)
			}

			out := c.App.Writer
			fmt.Fprintf(out, "✓ Server is %s\n", health.Status)
			fmt.Fprintf(out, "  URL:          %s\n", serverURL)
			fmt.Fprintf(out, "  RPC:          %s\n", health.RPCURL)
			fmt.Fprintf(out, "  Cache:        %d entries (max %d, ttl %s)\n",
				health.CacheSize,
				health.CacheMaxEntries,
				time.Duration(health.CacheTTLSeconds*float64(time.Second)),
			)
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Action: func(c *cli.Context) error {
			out := c.App.Writer
			fmt.Fprintf(out, "suilyzer CLI\n")
			fmt.Fprintf(out, "  Version: %s\n", version)
			fmt.Fprintf(out, "  Commit:  %s\n", commit)
			fmt.Fprintf(out, "  Built:   %s\n", date)
			return nil
		},
	}
}
