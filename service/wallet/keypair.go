package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/tokensmith/service/metrics"
	"github.com/brojonat/tokensmith/service/txerr"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// rpcSimulationFailed is the JSON-RPC error code returned when preflight
// simulation rejects a transaction.
const rpcSimulationFailed = -32002

// Sender broadcasts a fully signed transaction.
type Sender interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// Approver is asked before every signature. Returning an error rejects the
// signing request.
type Approver func(ctx context.Context, tx *solana.Transaction) error

// KeypairProvider is a Provider backed by a local private key, the same kind
// of keypair the Solana CLI writes to ~/.config/solana/id.json.
type KeypairProvider struct {
	key     solana.PrivateKey
	sender  Sender
	approve Approver
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a KeypairProvider.
type Option func(*KeypairProvider)

// WithApprover installs a hook that must approve each signing request.
func WithApprover(a Approver) Option {
	return func(p *KeypairProvider) {
		p.approve = a
	}
}

// WithMetrics records connect and sign-and-send outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *KeypairProvider) {
		p.metrics = m
	}
}

// NewKeypairProvider creates a provider that signs with key and broadcasts through sender.
func NewKeypairProvider(key solana.PrivateKey, sender Sender, logger *slog.Logger, opts ...Option) *KeypairProvider {
	p := &KeypairProvider{
		key:    key,
		sender: sender,
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LoadPrivateKey reads a key from a Solana CLI keypair file, or from a base58
// encoded secret when path is empty.
func LoadPrivateKey(path, base58Secret string) (solana.PrivateKey, error) {
	switch {
	case path != "":
		key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read keypair file %s: %w", path, err)
		}
		return key, nil
	case base58Secret != "":
		key, err := solana.PrivateKeyFromBase58(base58Secret)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base58 private key: %w", err)
		}
		return key, nil
	default:
		return nil, ErrNoKey
	}
}

// Connect returns the public key of the configured keypair.
func (p *KeypairProvider) Connect(ctx context.Context) (pubkey solana.PublicKey, err error) {
	defer metrics.Timer(time.Now(), func(d float64) {
		p.metrics.RecordWalletOperation("connect", err, d)
	})()

	if len(p.key) != 64 {
		return solana.PublicKey{}, txerr.New(txerr.Connection, "connect", ErrNoKey)
	}

	pubkey = p.key.PublicKey()
	p.logger.DebugContext(ctx, "keypair wallet connected", "wallet", pubkey.String())
	return pubkey, nil
}

// SignAndSendTransaction signs the fee payer slot with the local key and
// broadcasts the transaction. Signatures already present (e.g. a new mint
// account's) are kept.
func (p *KeypairProvider) SignAndSendTransaction(ctx context.Context, tx *solana.Transaction) (sig solana.Signature, err error) {
	defer metrics.Timer(time.Now(), func(d float64) {
		p.metrics.RecordWalletOperation("sign_and_send", err, d)
	})()

	if len(p.key) != 64 {
		return solana.Signature{}, txerr.New(txerr.Connection, "sign_and_send", ErrNoKey)
	}
	pubkey := p.key.PublicKey()

	if len(tx.Message.AccountKeys) == 0 || !tx.Message.AccountKeys[0].Equals(pubkey) {
		return solana.Signature{}, txerr.Errorf(txerr.Signing, "sign_and_send",
			"fee payer is not the connected wallet %s", pubkey)
	}

	if p.approve != nil {
		if err := p.approve(ctx, tx); err != nil {
			p.logger.InfoContext(ctx, "signing request rejected", "wallet", pubkey.String(), "error", err)
			return solana.Signature{}, txerr.New(txerr.Signing, "sign_and_send", err)
		}
	}

	if _, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(pubkey) {
			return &p.key
		}
		return nil
	}); err != nil {
		return solana.Signature{}, txerr.New(txerr.Signing, "sign_and_send", err)
	}

	if err := tx.VerifySignatures(); err != nil {
		return solana.Signature{}, txerr.Errorf(txerr.Signing, "sign_and_send",
			"transaction is missing signatures: %w", err)
	}

	sig, err = p.sender.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, classifySendError(err)
	}

	p.logger.DebugContext(ctx, "transaction sent", "wallet", pubkey.String(), "signature", sig.String())
	return sig, nil
}

// classifySendError separates on-chain rejections found during preflight from
// transport failures.
func classifySendError(err error) error {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == rpcSimulationFailed {
		return txerr.New(txerr.Program, "send_transaction", err)
	}
	return txerr.New(txerr.RPC, "send_transaction", err)
}
