package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/brojonat/tokensmith/client"
	natspkg "github.com/brojonat/tokensmith/service/nats"
	"github.com/dustin/go-humanize"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// subscribeCommand streams submission events straight from JetStream.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to submission events, optionally for one wallet",
		ArgsUsage: "[wallet_address]",
		Description: `Subscribe to submission events published to NATS JetStream.

Events are published to the subject: submissions.{wallet_address}

Example:
  tokensmith nats subscribe Fjq4jmr998ZiSbp7Ba8A9pvV82guKi9ejFaAWQ16PAzM --json`,
		Action: func(c *cli.Context) error {
			wallet := c.Args().Get(0)

			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelError,
			}))
			sub, err := natspkg.NewSubscriber(c.String("nats-url"), logger)
			if err != nil {
				return err
			}
			defer sub.Close()

			ctx, cancel := signalContext()
			defer cancel()

			events, err := sub.Subscribe(ctx, wallet)
			if err != nil {
				return err
			}

			if !streamOutput(c) {
				fmt.Fprintf(c.App.ErrWriter, "Subscribed to %s (Ctrl+C to stop)\n\n", natspkg.SubjectForWallet(wallet))
			}

			for event := range events {
				if err := writeEvent(c, eventFromNATS(event)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// eventFromNATS converts a JetStream event into the client's event type so
// both streaming commands print the same way.
func eventFromNATS(e *natspkg.SubmissionEvent) *client.SubmissionEvent {
	return &client.SubmissionEvent{
		Kind:                 e.Kind,
		WalletAddress:        e.WalletAddress,
		Network:              e.Network,
		Signature:            e.Signature,
		Blockhash:            e.Blockhash,
		LastValidBlockHeight: e.LastValidBlockHeight,
		ConfirmationStatus:   e.ConfirmationStatus,
		Slot:                 e.Slot,
		Mint:                 e.Mint,
		Metadata:             e.Metadata,
		TokenAccount:         e.TokenAccount,
		Receiver:             e.Receiver,
		Amount:               e.Amount,
		Error:                e.Error,
		ErrorKind:            e.ErrorKind,
		PublishedAt:          e.PublishedAt,
	}
}

// inspectStreamCommand shows information about the NATS JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the SUBMISSIONS JetStream stream",
		Description: `Show information about the JetStream stream including:
- Message count
- Consumers
- Storage usage
- Stream configuration

Example:
  tokensmith nats inspect-stream`,
		Action: func(c *cli.Context) error {
			nc, err := nats.Connect(c.String("nats-url"))
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

			w := c.App.Writer
			if filter := c.String("jq"); filter != "" {
				return writeJQ(w, filter, info)
			}
			if c.Bool("json") {
				data, _ := json.MarshalIndent(info, "", "  ")
				fmt.Fprintln(w, string(data))
				return nil
			}

			fmt.Fprintf(w, "Stream: %s\n", info.Config.Name)
			fmt.Fprintf(w, "─────────────────────────────────────────────────────\n")
			fmt.Fprintf(w, "Description:  %s\n", info.Config.Description)
			fmt.Fprintf(w, "Subjects:     %v\n", info.Config.Subjects)
			fmt.Fprintf(w, "Messages:     %d\n", info.State.Msgs)
			fmt.Fprintf(w, "Bytes:        %s\n", humanize.Bytes(info.State.Bytes))
			fmt.Fprintf(w, "First Seq:    %d\n", info.State.FirstSeq)
			fmt.Fprintf(w, "Last Seq:     %d\n", info.State.LastSeq)
			fmt.Fprintf(w, "Consumers:    %d\n", info.State.Consumers)
			fmt.Fprintf(w, "Max Age:      %s\n", info.Config.MaxAge)
			fmt.Fprintf(w, "Storage:      %s\n", info.Config.Storage)
			return nil
		},
	}
}
