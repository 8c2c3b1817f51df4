// Package session holds the connected-wallet state and the user actions that
// become available once a wallet is connected.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	natspkg "github.com/brojonat/tokensmith/service/nats"
	solanasvc "github.com/brojonat/tokensmith/service/solana"
	"github.com/brojonat/tokensmith/service/txerr"
	"github.com/gagliardetto/solana-go"
)

// ErrNotConnected is returned by every action attempted before Connect succeeds.
var ErrNotConnected = errors.New("wallet not connected")

// DefaultReceiver is the account the default transfer pays.
var DefaultReceiver = solana.MustPublicKeyFromBase58("Fjq4jmr998ZiSbp7Ba8A9pvV82guKi9ejFaAWQ16PAzM")

// DefaultTransferAmount is the default transfer size in whole SOL.
const DefaultTransferAmount uint64 = 1

// Config holds the values behind the default transfer action.
type Config struct {
	TransferReceiver solana.PublicKey
	TransferAmount   uint64
}

// Session is the connect-then-act state machine. The wallet key is written
// once by Connect and read by every action, possibly from concurrent requests.
type Session struct {
	mu     sync.RWMutex
	wallet solana.PublicKey

	builder   *solanasvc.Builder
	publisher natspkg.Publisher
	cfg       Config
	logger    *slog.Logger
}

// New creates a disconnected session. publisher may be nil.
func New(builder *solanasvc.Builder, publisher natspkg.Publisher, cfg Config, logger *slog.Logger) *Session {
	if cfg.TransferReceiver.IsZero() {
		cfg.TransferReceiver = DefaultReceiver
	}
	if cfg.TransferAmount == 0 {
		cfg.TransferAmount = DefaultTransferAmount
	}
	return &Session{
		builder:   builder,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Wallet returns the connected wallet and whether one is connected.
func (s *Session) Wallet() (solana.PublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wallet, !s.wallet.IsZero()
}

// Network returns the network the session submits to.
func (s *Session) Network() string {
	return s.builder.Config().Network
}

// Connect connects the wallet. Calling it again reconnects and replaces the
// stored key.
func (s *Session) Connect(ctx context.Context) (solana.PublicKey, error) {
	pubkey, err := s.builder.Connect(ctx)
	if err != nil {
		return solana.PublicKey{}, err
	}

	s.mu.Lock()
	s.wallet = pubkey
	s.mu.Unlock()

	return pubkey, nil
}

func (s *Session) requireWallet(ctx context.Context, op string) (solana.PublicKey, error) {
	wallet, ok := s.Wallet()
	if !ok {
		s.logger.WarnContext(ctx, "action attempted before wallet connected", "op", op)
		return solana.PublicKey{}, txerr.New(txerr.Connection, op, ErrNotConnected)
	}
	return wallet, nil
}

// CreateToken creates a new mint with metadata, paid for and controlled by the
// connected wallet.
func (s *Session) CreateToken(ctx context.Context) (*solanasvc.SubmitResult, error) {
	payer, err := s.requireWallet(ctx, "create_token")
	if err != nil {
		return nil, err
	}

	tx, mintKey, err := s.builder.BuildCreateMint(ctx, payer, s.builder.Config().MintDecimals)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to build create token transaction", "error", err)
		s.publish(ctx, natspkg.NewSubmissionEvent(natspkg.KindCreateMint, payer.String(), s.Network(), nil, err))
		return nil, err
	}

	mint := mintKey.PublicKey()
	metadata, _, err := solanasvc.FindMetadataAddress(s.builder.Config().Programs.Metadata, mint)
	if err != nil {
		err = txerr.New(txerr.Validation, "find_metadata_address", err)
		s.logger.ErrorContext(ctx, "failed to derive metadata address", "mint", mint.String(), "error", err)
		event := natspkg.NewSubmissionEvent(natspkg.KindCreateMint, payer.String(), s.Network(), nil, err)
		event.Mint = mint.String()
		s.publish(ctx, event)
		return nil, err
	}

	result, err := s.builder.FinalizeAndSubmit(ctx, tx, payer, mintKey)
	if result != nil {
		result.Mint = &mint
		result.Metadata = &metadata
	}
	s.publish(ctx, natspkg.NewSubmissionEvent(natspkg.KindCreateMint, payer.String(), s.Network(), result, err))
	if err != nil {
		return result, err
	}

	s.logger.InfoContext(ctx, "token created",
		"mint", mint.String(),
		"metadata", metadata.String(),
		"signature", result.Signature.String(),
	)
	return result, nil
}

// MintTokens mints amount whole tokens of mint into the connected wallet's
// token account, creating that account if needed.
func (s *Session) MintTokens(ctx context.Context, mint solana.PublicKey, amount uint64) (*solanasvc.SubmitResult, error) {
	payer, err := s.requireWallet(ctx, "mint_tokens")
	if err != nil {
		return nil, err
	}

	tx, err := s.builder.BuildMintTo(ctx, mint, payer, amount)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to build mint transaction", "mint", mint.String(), "error", err)
		event := natspkg.NewSubmissionEvent(natspkg.KindMintTo, payer.String(), s.Network(), nil, err)
		event.Mint = mint.String()
		event.Amount = amount
		s.publish(ctx, event)
		return nil, err
	}

	ata, err := s.builder.AssociatedTokenAddress(payer, mint)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to derive token account", "mint", mint.String(), "error", err)
		event := natspkg.NewSubmissionEvent(natspkg.KindMintTo, payer.String(), s.Network(), nil, err)
		event.Mint = mint.String()
		event.Amount = amount
		s.publish(ctx, event)
		return nil, err
	}

	result, err := s.builder.FinalizeAndSubmit(ctx, tx, payer)
	if result != nil {
		result.Mint = &mint
		result.TokenAccount = &ata
	}
	event := natspkg.NewSubmissionEvent(natspkg.KindMintTo, payer.String(), s.Network(), result, err)
	event.Mint = mint.String()
	event.Amount = amount
	s.publish(ctx, event)

	return result, err
}

// Transfer sends amount whole SOL from the connected wallet to receiver.
func (s *Session) Transfer(ctx context.Context, receiver solana.PublicKey, amount uint64) (*solanasvc.SubmitResult, error) {
	payer, err := s.requireWallet(ctx, "transfer")
	if err != nil {
		return nil, err
	}

	var result *solanasvc.SubmitResult
	tx, err := s.builder.BuildTransfer(payer, receiver, amount)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to build transfer transaction", "receiver", receiver.String(), "error", err)
	} else {
		result, err = s.builder.FinalizeAndSubmit(ctx, tx, payer)
	}

	event := natspkg.NewSubmissionEvent(natspkg.KindTransfer, payer.String(), s.Network(), result, err)
	event.Receiver = receiver.String()
	event.Amount = amount
	s.publish(ctx, event)

	return result, err
}

// DefaultTransfer runs Transfer with the configured receiver and amount.
func (s *Session) DefaultTransfer(ctx context.Context) (*solanasvc.SubmitResult, error) {
	return s.Transfer(ctx, s.cfg.TransferReceiver, s.cfg.TransferAmount)
}

// TransferDefaults returns the configured receiver and amount.
func (s *Session) TransferDefaults() (solana.PublicKey, uint64) {
	return s.cfg.TransferReceiver, s.cfg.TransferAmount
}

// publish sends event when a publisher is configured. Failures are logged only.
func (s *Session) publish(ctx context.Context, event *natspkg.SubmissionEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSubmission(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish submission event",
			"kind", event.Kind,
			"signature", event.Signature,
			"error", err,
		)
	}
}
