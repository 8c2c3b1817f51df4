package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/brojonat/tokensmith/client"
	"github.com/urfave/cli/v2"
)

func remoteCommands() *cli.Command {
	return &cli.Command{
		Name:  "remote",
		Usage: "Drive a running tokensmith server over HTTP (uses --server-url)",
		Subcommands: []*cli.Command{
			remoteSessionCommand(),
			remoteConnectCommand(),
			remoteCreateTokenCommand(),
			remoteMintCommand(),
			remoteTransferCommand(),
			watchCommand(),
		},
	}
}

func newClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
	return client.NewClient(c.String("server-url"), nil, logger)
}

// submissionError adds the signature of a transaction that reached the chain
// before failing, so it can still be looked up.
func submissionError(action string, err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Result != nil && apiErr.Result.Signature != "" {
		return fmt.Errorf("failed to %s (signature %s): %w", action, apiErr.Result.Signature, err)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

func printSession(s *client.Session) func(w io.Writer) {
	return func(w io.Writer) {
		if s.Connected {
			fmt.Fprintf(w, "Connected: %s (%s)\n", s.Wallet, s.Network)
			return
		}
		fmt.Fprintf(w, "Wallet not connected (%s)\n", s.Network)
	}
}

func remoteSessionCommand() *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Show the server's wallet connection state",
		Action: func(c *cli.Context) error {
			s, err := newClient(c).Session(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get session: %w", err)
			}
			return render(c, s, printSession(s))
		},
	}
}

func remoteConnectCommand() *cli.Command {
	return &cli.Command{
		Name:  "connect",
		Usage: "Connect the server's wallet",
		Action: func(c *cli.Context) error {
			s, err := newClient(c).Connect(context.Background())
			if err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			return render(c, s, printSession(s))
		},
	}
}

func remoteCreateTokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-token",
		Usage: "Create a new token mint with metadata",
		Action: func(c *cli.Context) error {
			sub, err := newClient(c).CreateToken(context.Background())
			if err != nil {
				return submissionError("create token", err)
			}
			return render(c, sub, printSubmission("Token Created", sub))
		},
	}
}

func remoteMintCommand() *cli.Command {
	return &cli.Command{
		Name:      "mint",
		Usage:     "Mint whole tokens into the connected wallet's token account",
		ArgsUsage: "MINT_ADDRESS AMOUNT",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("mint address and amount are required")
			}
			amount, err := parseAmount(c.Args().Get(1))
			if err != nil {
				return err
			}

			sub, err := newClient(c).MintTokens(context.Background(), c.Args().Get(0), amount)
			if err != nil {
				return submissionError("mint tokens", err)
			}
			return render(c, sub, printSubmission("Tokens Minted", sub))
		},
	}
}

func remoteTransferCommand() *cli.Command {
	return &cli.Command{
		Name:  "transfer",
		Usage: "Transfer whole SOL from the connected wallet (server defaults when flags are omitted)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "receiver",
				Aliases: []string{"r"},
				Usage:   "Receiver address",
			},
			&cli.Uint64Flag{
				Name:    "amount",
				Aliases: []string{"a"},
				Usage:   "Amount in SOL",
			},
		},
		Action: func(c *cli.Context) error {
			sub, err := newClient(c).Transfer(context.Background(), c.String("receiver"), c.Uint64("amount"))
			if err != nil {
				return submissionError("transfer", err)
			}
			return render(c, sub, printSubmission("Transfer Sent", sub))
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Stream submission events from the server",
		ArgsUsage: "[wallet_address]",
		Description: `Stream submission events over Server-Sent Events.

Without a wallet address every submission is streamed.

Example:
  tokensmith remote watch Fjq4jmr998ZiSbp7Ba8A9pvV82guKi9ejFaAWQ16PAzM --json`,
		Action: func(c *cli.Context) error {
			wallet := c.Args().Get(0)

			ctx, cancel := signalContext()
			defer cancel()

			if !streamOutput(c) {
				if wallet != "" {
					fmt.Fprintf(c.App.ErrWriter, "Watching submissions for wallet: %s\n", wallet)
				} else {
					fmt.Fprintf(c.App.ErrWriter, "Watching submissions for all wallets\n")
				}
				fmt.Fprintf(c.App.ErrWriter, "Streaming... (Ctrl+C to stop)\n\n")
			}

			err := newClient(c).Watch(ctx, wallet, func(e *client.SubmissionEvent) error {
				return writeEvent(c, e)
			})
			if err != nil {
				return fmt.Errorf("stream failed: %w", err)
			}
			if !streamOutput(c) && ctx.Err() != nil {
				fmt.Fprintf(c.App.ErrWriter, "\nDisconnected\n")
			}
			return nil
		},
	}
}
