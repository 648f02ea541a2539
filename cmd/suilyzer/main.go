package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "suilyzer",
		Usage: "Sui transaction analysis service CLI",
		Description: `A command-line tool for analyzing Sui transactions and operating the suilyzer service.

Use this CLI to analyze digests, manage the result cache, browse the analysis
journal and follow analyses as they complete.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			analyzeCommand(),
			watchCommand(),
			// Result cache administration
			{
				Name:  "cache",
				Usage: "Result cache commands",
				Subcommands: []*cli.Command{
					cacheInvalidateCommand(),
					cacheClearCommand(),
				},
			},
			// Database inspection commands
			{
				Name:  "db",
				Usage: "Analysis journal inspection commands",
				Subcommands: []*cli.Command{
					listAnalysesCommand(),
					getAnalysisCommand(),
					deleteAnalysisCommand(),
				},
			},
			// NATS analysis streaming commands
			{
				Name:  "nats",
				Usage: "NATS analysis streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Analysis server URL",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8000",
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}
