package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/brojonat/tokensmith/service/config"
	natspkg "github.com/brojonat/tokensmith/service/nats"
	"github.com/brojonat/tokensmith/service/session"
	solanasvc "github.com/brojonat/tokensmith/service/solana"
	"github.com/brojonat/tokensmith/service/wallet"
	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

func localCommands() *cli.Command {
	return &cli.Command{
		Name:  "local",
		Usage: "Sign and submit transactions with the configured wallet",
		Description: `Local commands read the same environment as the server (SOLANA_NETWORK,
SOLANA_RPC_URL, WALLET_KEYPAIR_PATH, TOKEN_NAME, ...) and submit directly
to Solana. Every transaction is shown for approval before it is signed.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Approve every transaction without prompting",
			},
			&cli.BoolFlag{
				Name:  "publish",
				Usage: "Publish submission events to NATS (uses --nats-url)",
			},
		},
		Subcommands: []*cli.Command{
			localConnectCommand(),
			localCreateTokenCommand(),
			localMintCommand(),
			localTransferCommand(),
			localStatusCommand(),
		},
	}
}

// localEnv holds the wiring for a single local command invocation.
type localEnv struct {
	builder *solanasvc.Builder
	session *session.Session
	close   func()
}

// newLocalEnv wires the builder and session from the environment. The wallet
// asks for approval on stdin unless --yes is set.
func newLocalEnv(c *cli.Context) (*localEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))

	rpcURL, err := solanasvc.SelectRandomEndpoint(cfg.SolanaRPCURL)
	if err != nil {
		return nil, err
	}
	rpcClient := solanasvc.NewRPCClient(rpcURL, cfg.Network, nil)

	key, err := wallet.LoadPrivateKey(cfg.WalletKeypairPath, cfg.WalletPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet key: %w", err)
	}

	var opts []wallet.Option
	if !c.Bool("yes") {
		opts = append(opts, wallet.WithApprover(promptApprover(os.Stdin, c.App.ErrWriter)))
	}
	provider := wallet.NewKeypairProvider(key, rpcClient, logger, opts...)
	builder := solanasvc.NewBuilder(rpcClient, provider, cfg.BuilderConfig(), nil, logger)

	env := &localEnv{builder: builder, close: func() {}}

	var publisher natspkg.Publisher
	if c.Bool("publish") {
		pub, err := natspkg.NewPublisher(c.String("nats-url"), nil, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		publisher = pub
		env.close = func() { pub.Close() }
	}

	env.session = session.New(builder, publisher, session.Config{
		TransferReceiver: cfg.TransferReceiver,
		TransferAmount:   cfg.TransferAmountSOL,
	}, logger)
	return env, nil
}

// connected returns a session with the wallet already connected.
func (e *localEnv) connected(ctx context.Context) (*session.Session, error) {
	if _, err := e.session.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect wallet: %w", err)
	}
	return e.session, nil
}

// promptApprover shows a summary of each transaction on out and approves it
// only when the answer read from in starts with y.
func promptApprover(in io.Reader, out io.Writer) wallet.Approver {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, tx *solana.Transaction) error {
		fmt.Fprintln(out, "Transaction awaiting approval:")
		if len(tx.Message.AccountKeys) > 0 {
			fmt.Fprintf(out, "  Fee payer:    %s\n", tx.Message.AccountKeys[0])
		}
		fmt.Fprintf(out, "  Blockhash:    %s\n", tx.Message.RecentBlockhash)
		fmt.Fprintf(out, "  Instructions: %d\n", len(tx.Message.Instructions))
		for i, ix := range tx.Message.Instructions {
			program, err := tx.Message.ResolveProgramIDIndex(ix.ProgramIDIndex)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "    %d. %s (%d accounts)\n", i+1, program, len(ix.Accounts))
		}
		fmt.Fprint(out, "Approve? [y/N] ")

		answer, err := reader.ReadString('\n')
		if err != nil && answer == "" {
			return wallet.ErrUserRejected
		}
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
			return wallet.ErrUserRejected
		}
		return nil
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func localConnectCommand() *cli.Command {
	return &cli.Command{
		Name:  "connect",
		Usage: "Connect the configured wallet and show its address",
		Action: func(c *cli.Context) error {
			env, err := newLocalEnv(c)
			if err != nil {
				return err
			}
			defer env.close()

			ctx, cancel := signalContext()
			defer cancel()

			pubkey, err := env.session.Connect(ctx)
			if err != nil {
				return fmt.Errorf("failed to connect wallet: %w", err)
			}

			out := map[string]interface{}{
				"connected": true,
				"wallet":    pubkey.String(),
				"network":   env.session.Network(),
			}
			return render(c, out, func(w io.Writer) {
				fmt.Fprintf(w, "Connected: %s (%s)\n", pubkey, env.session.Network())
			})
		},
	}
}

func localCreateTokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "create-token",
		Usage: "Create a new token mint with metadata",
		Action: func(c *cli.Context) error {
			env, err := newLocalEnv(c)
			if err != nil {
				return err
			}
			defer env.close()

			ctx, cancel := signalContext()
			defer cancel()

			sess, err := env.connected(ctx)
			if err != nil {
				return err
			}
			result, err := sess.CreateToken(ctx)
			if err != nil {
				return fmt.Errorf("failed to create token: %w", err)
			}

			sub := toSubmission(result)
			return render(c, sub, printSubmission("Token Created", sub))
		},
	}
}

func localMintCommand() *cli.Command {
	return &cli.Command{
		Name:      "mint",
		Usage:     "Mint whole tokens into the wallet's associated token account",
		ArgsUsage: "MINT_ADDRESS AMOUNT",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("mint address and amount are required")
			}
			mint, err := solana.PublicKeyFromBase58(c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("invalid mint address: %w", err)
			}
			amount, err := parseAmount(c.Args().Get(1))
			if err != nil {
				return err
			}

			env, err := newLocalEnv(c)
			if err != nil {
				return err
			}
			defer env.close()

			ctx, cancel := signalContext()
			defer cancel()

			sess, err := env.connected(ctx)
			if err != nil {
				return err
			}
			result, err := sess.MintTokens(ctx, mint, amount)
			if err != nil {
				return fmt.Errorf("failed to mint tokens: %w", err)
			}

			sub := toSubmission(result)
			return render(c, sub, printSubmission("Tokens Minted", sub))
		},
	}
}

func localTransferCommand() *cli.Command {
	return &cli.Command{
		Name:  "transfer",
		Usage: "Transfer whole SOL from the wallet",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "receiver",
				Aliases: []string{"r"},
				Usage:   "Receiver address (defaults to TRANSFER_RECEIVER)",
			},
			&cli.Uint64Flag{
				Name:    "amount",
				Aliases: []string{"a"},
				Usage:   "Amount in SOL (defaults to TRANSFER_AMOUNT_SOL)",
			},
		},
		Action: func(c *cli.Context) error {
			env, err := newLocalEnv(c)
			if err != nil {
				return err
			}
			defer env.close()

			receiver, amount := env.session.TransferDefaults()
			if r := c.String("receiver"); r != "" {
				receiver, err = solana.PublicKeyFromBase58(r)
				if err != nil {
					return fmt.Errorf("invalid receiver address: %w", err)
				}
			}
			if c.IsSet("amount") {
				amount = c.Uint64("amount")
			}

			ctx, cancel := signalContext()
			defer cancel()

			sess, err := env.connected(ctx)
			if err != nil {
				return err
			}
			result, err := sess.Transfer(ctx, receiver, amount)
			if err != nil {
				return fmt.Errorf("failed to transfer: %w", err)
			}

			sub := toSubmission(result)
			return render(c, sub, printSubmission(fmt.Sprintf("Sent %d SOL to %s", amount, receiver), sub))
		},
	}
}

func localStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Look up the status of a transaction signature",
		ArgsUsage: "SIGNATURE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("signature is required")
			}
			sig, err := solana.SignatureFromBase58(c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("invalid signature: %w", err)
			}

			env, err := newLocalEnv(c)
			if err != nil {
				return err
			}
			defer env.close()

			ctx, cancel := signalContext()
			defer cancel()

			status, err := env.builder.SignatureStatus(ctx, sig)
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}

			out := map[string]interface{}{
				"signature":           sig.String(),
				"confirmation_status": "unknown",
			}
			if status != nil {
				out["confirmation_status"] = status.ConfirmationStatus
				out["slot"] = status.Slot
				if status.Err != nil {
					out["err"] = *status.Err
				}
			}
			return render(c, out, func(w io.Writer) {
				fmt.Fprintf(w, "Signature: %s\n", sig)
				fmt.Fprintf(w, "Status:    %s\n", out["confirmation_status"])
				if status != nil {
					fmt.Fprintf(w, "Slot:      %d\n", status.Slot)
					if status.Err != nil {
						fmt.Fprintf(w, "Error:     %s\n", *status.Err)
					}
				}
			})
		},
	}
}

// parseAmount parses a positive whole-unit amount.
func parseAmount(s string) (uint64, error) {
	amount, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || amount == 0 {
		return 0, fmt.Errorf("amount must be a positive integer, got %q", s)
	}
	return amount, nil
}
