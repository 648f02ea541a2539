package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	natspkg "github.com/brojonat/suilyzer/service/nats"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// subscribeCommand subscribes directly to the analyses stream.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to analysis events from JetStream",
		ArgsUsage: "[digest]",
		Description: `Subscribe to the ANALYSES stream directly, bypassing the HTTP server.

Without a digest every analysis is received.

Examples:
  suilyzer nats subscribe
  suilyzer nats subscribe <digest>
  suilyzer nats subscribe --durable --consumer ops-audit`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "durable",
				Usage: "Use a durable consumer that remembers its position",
			},
			&cli.StringFlag{
				Name:  "consumer",
				Usage: "Durable consumer name",
				Value: "suilyzer-cli",
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Replay every retained event instead of only new ones",
			},
		},
		Action: func(c *cli.Context) error {
			return streamAnalyses(c, c.Args().First())
		},
	}
}

// subscriptionConfig builds the consumer for a digest filter.
func subscriptionConfig(digest string, durable bool, consumerName string, replay bool) jetstream.ConsumerConfig {
	subject := natspkg.StreamSubjects
	if digest != "" {
		subject = natspkg.Subject(digest)
	}

	cfg := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	}
	if replay {
		cfg.DeliverPolicy = jetstream.DeliverAllPolicy
	}
	if durable {
		cfg.Durable = consumerName
		cfg.Name = consumerName
	}
	return cfg
}

func streamAnalyses(c *cli.Context, digest string) error {
	natsURL := c.String("nats-url")
	jsonOutput := c.Bool("json")
	out := c.App.Writer

	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	consumerConfig := subscriptionConfig(digest, c.Bool("durable"), c.String("consumer"), c.Bool("all"))

	if !jsonOutput {
		fmt.Fprintf(os.Stderr, "📡 Subscribing to: %s\n", consumerConfig.FilterSubject)
		fmt.Fprintf(os.Stderr, "   NATS: %s\n", natsURL)
		if consumerConfig.Durable != "" {
			fmt.Fprintf(os.Stderr, "   Consumer: %s (durable)\n", consumerConfig.Durable)
		}
		fmt.Fprintf(os.Stderr, "\nWaiting for analyses... (Ctrl-C to exit)\n\n")
	}

	cons, err := js.CreateOrUpdateConsumer(context.Background(), natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	msgChan := make(chan jetstream.Msg, 10)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		msgChan <- msg
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer cc.Stop()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			var event natspkg.AnalysisEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				if !jsonOutput {
					fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
				}
				msg.Ack()
				continue
			}

			count++
			if jsonOutput {
				fmt.Fprintln(out, string(msg.Data()))
			} else {
				printEvent(out, &event)
			}
			msg.Ack()

		case <-sigChan:
			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "\n\n✅ Received %d analyses\n", count)
			}
			return nil
		}
	}
}

// inspectStreamCommand shows information about the NATS JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the ANALYSES JetStream stream",
		Description: `Show information about the JetStream stream including:
- Message count
- Consumers
- Storage usage

Example:
  suilyzer nats inspect-stream`,
		Action: func(c *cli.Context) error {
			natsURL := c.String("nats-url")

			nc, err := nats.Connect(natsURL)
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			stream, err := js.Stream(context.Background(), natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}

			info, err := stream.Info(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, info)
			}

			out := c.App.Writer
			fmt.Fprintf(out, "Stream: %s\n", info.Config.Name)
			fmt.Fprintf(out, "─────────────────────────────────────────────────────\n")
			fmt.Fprintf(out, "Description:  %s\n", info.Config.Description)
			fmt.Fprintf(out, "Subjects:     %v\n", info.Config.Subjects)
			fmt.Fprintf(out, "Messages:     %d\n", info.State.Msgs)
			fmt.Fprintf(out, "Bytes:        %d\n", info.State.Bytes)
			fmt.Fprintf(out, "First Seq:    %d\n", info.State.FirstSeq)
			fmt.Fprintf(out, "Last Seq:     %d\n", info.State.LastSeq)
			fmt.Fprintf(out, "Consumers:    %d\n", info.State.Consumers)
			fmt.Fprintf(out, "Max Age:      %s\n", info.Config.MaxAge)
			fmt.Fprintf(out, "Storage:      %s\n", info.Config.Storage)
			return nil
		},
	}
}
