package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brojonat/tokensmith/service/metrics"
	"github.com/brojonat/tokensmith/service/txerr"
	"github.com/brojonat/tokensmith/service/wallet"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetLatestBlockhash(
		ctx context.Context,
		commitment rpc.CommitmentType,
	) (*rpc.GetLatestBlockhashResult, error)

	GetAccountInfo(
		ctx context.Context,
		account solana.PublicKey,
	) (*rpc.GetAccountInfoResult, error)

	GetMinimumBalanceForRentExemption(
		ctx context.Context,
		dataSize uint64,
		commitment rpc.CommitmentType,
	) (uint64, error)

	GetSignatureStatuses(
		ctx context.Context,
		searchTransactionHistory bool,
		signatures ...solana.Signature,
	) (*rpc.GetSignatureStatusesResult, error)

	SendTransaction(
		ctx context.Context,
		tx *solana.Transaction,
	) (solana.Signature, error)
}

// BuilderConfig parameterizes a Builder for one network.
type BuilderConfig struct {
	Network      string // "mainnet" or "devnet", used for logging
	Commitment   rpc.CommitmentType
	Metadata     TokenMetadata
	Programs     ProgramIDs
	MintDecimals uint8
}

// Builder assembles token and transfer transactions and submits them through
// a wallet provider. Every RPC call is awaited in sequence and nothing is
// retried.
type Builder struct {
	rpc      RPCClient
	provider wallet.Provider
	cfg      BuilderConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger

	newMintKey func() (*AccountKeypair, error)
}

// NewBuilder creates a new Builder.
// Zero programs fall back to the default deployments and an empty commitment
// to finalized. MintDecimals is used as given, zero included. If metrics is
// nil, no metrics will be recorded.
func NewBuilder(rpcClient RPCClient, provider wallet.Provider, cfg BuilderConfig, m *metrics.Metrics, logger *slog.Logger) *Builder {
	defaults := DefaultProgramIDs()
	if cfg.Programs.Token.IsZero() {
		cfg.Programs.Token = defaults.Token
	}
	if cfg.Programs.AssociatedToken.IsZero() {
		cfg.Programs.AssociatedToken = defaults.AssociatedToken
	}
	if cfg.Programs.Metadata.IsZero() {
		cfg.Programs.Metadata = defaults.Metadata
	}
	if cfg.Commitment == "" {
		cfg.Commitment = rpc.CommitmentFinalized
	}

	return &Builder{
		rpc:      rpcClient,
		provider: provider,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,

		newMintKey: NewAccountKeypair,
	}
}

// Config returns the effective configuration.
func (b *Builder) Config() BuilderConfig {
	return b.cfg
}

// Connect asks the wallet provider for the connected account.
func (b *Builder) Connect(ctx context.Context) (solana.PublicKey, error) {
	pubkey, err := b.provider.Connect(ctx)
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to connect wallet", "error", err)
		return solana.PublicKey{}, txerr.New(txerr.Connection, "connect", err)
	}

	b.logger.InfoContext(ctx, "wallet connected",
		"wallet", pubkey.String(),
		"network", b.cfg.Network,
	)
	return pubkey, nil
}

// BuildTransfer builds a transaction moving amount whole SOL from sender to
// receiver. It performs no network I/O.
func (b *Builder) BuildTransfer(sender, receiver solana.PublicKey, amount uint64) (*Transaction, error) {
	if sender.IsZero() || receiver.IsZero() {
		return nil, txerr.Errorf(txerr.Validation, "build_transfer", "sender and receiver are required")
	}
	if amount == 0 {
		return nil, txerr.Errorf(txerr.Validation, "build_transfer", "amount must be greater than zero")
	}

	lamports, err := solToLamports(amount)
	if err != nil {
		return nil, txerr.New(txerr.Validation, "build_transfer", err)
	}

	tx := NewTransaction(system.NewTransferInstruction(lamports, sender, receiver).Build())
	b.metrics.RecordTransactionBuilt("transfer", len(tx.Instructions))
	return tx, nil
}

// BuildCreateMint builds a transaction that creates a new mint account,
// initializes it with payer as mint and freeze authority, and creates its
// metadata record. The instruction order is fixed: each one depends on the
// account produced by the previous. The returned keypair must co-sign the
// transaction.
func (b *Builder) BuildCreateMint(ctx context.Context, payer solana.PublicKey, decimals uint8) (*Transaction, *AccountKeypair, error) {
	if payer.IsZero() {
		return nil, nil, txerr.Errorf(txerr.Validation, "build_create_mint", "payer is required")
	}

	lamports, err := b.rpc.GetMinimumBalanceForRentExemption(ctx, MintAccountSize, b.cfg.Commitment)
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to get rent-exempt balance", "error", err)
		return nil, nil, txerr.New(txerr.RPC, "get_minimum_balance_for_rent_exemption", err)
	}

	mintKeypair, err := b.newMintKey()
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to generate mint keypair", "error", err)
		return nil, nil, txerr.New(txerr.Signing, "generate_mint_keypair", err)
	}
	mint := mintKeypair.PublicKey()

	metadataAddr, _, err := FindMetadataAddress(b.cfg.Programs.Metadata, mint)
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to derive metadata address", "mint", mint.String(), "error", err)
		return nil, nil, txerr.New(txerr.Validation, "find_metadata_address", err)
	}

	createAccount := system.NewCreateAccountInstruction(
		lamports,
		MintAccountSize,
		b.cfg.Programs.Token,
		payer,
		mint,
	).Build()

	initMint, err := token.NewInitializeMintInstruction(
		decimals,
		payer,
		payer,
		mint,
		solana.SysVarRentPubkey,
	).ValidateAndBuild()
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to build initialize mint instruction", "error", err)
		return nil, nil, txerr.New(txerr.Validation, "build_create_mint", err)
	}
	initMintIx, err := onProgram(b.cfg.Programs.Token, initMint)
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to rebind initialize mint instruction", "error", err)
		return nil, nil, txerr.New(txerr.Validation, "build_create_mint", err)
	}

	createMetadata, err := NewCreateMetadataAccountV3Instruction(
		b.cfg.Programs.Metadata,
		CreateMetadataAccounts{
			Metadata:        metadataAddr,
			Mint:            mint,
			MintAuthority:   payer,
			Payer:           payer,
			UpdateAuthority: payer,
		},
		b.cfg.Metadata,
	)
	if err != nil {
		return nil, nil, txerr.New(txerr.Validation, "build_create_mint", err)
	}

	tx := NewTransaction(createAccount, initMintIx, createMetadata)
	b.metrics.RecordTransactionBuilt("create_mint", len(tx.Instructions))

	b.logger.DebugContext(ctx, "built create mint transaction",
		"payer", payer.String(),
		"mint", mint.String(),
		"metadata", metadataAddr.String(),
		"rent_lamports", lamports,
		"decimals", decimals,
	)

	return tx, mintKeypair, nil
}

// AssociatedTokenAddress returns owner's token account for mint.
func (b *Builder) AssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := FindAssociatedTokenAddress(b.cfg.Programs, owner, mint)
	if err != nil {
		return solana.PublicKey{}, txerr.New(txerr.Validation, "find_associated_token_address", err)
	}
	return ata, nil
}

// BuildMintTo builds a transaction minting amount whole tokens of mint into
// payer's associated token account. The account creation instruction is
// prepended only when the account does not exist on chain yet.
func (b *Builder) BuildMintTo(ctx context.Context, mint, payer solana.PublicKey, amount uint64) (*Transaction, error) {
	if mint.IsZero() || payer.IsZero() {
		return nil, txerr.Errorf(txerr.Validation, "build_mint_to", "mint and payer are required")
	}
	if amount == 0 {
		return nil, txerr.Errorf(txerr.Validation, "build_mint_to", "amount must be greater than zero")
	}

	baseUnits, err := scaleAmount(amount, b.cfg.MintDecimals)
	if err != nil {
		return nil, txerr.New(txerr.Validation, "build_mint_to", err)
	}

	ata, err := b.AssociatedTokenAddress(payer, mint)
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to derive token account", "mint", mint.String(), "error", err)
		return nil, err
	}

	exists, err := b.accountExists(ctx, ata)
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to look up token account", "account", ata.String(), "error", err)
		return nil, txerr.New(txerr.RPC, "get_account_info", err)
	}

	tx := NewTransaction()
	if !exists {
		tx.Add(newCreateAssociatedTokenAccountInstruction(b.cfg.Programs, payer, payer, mint, ata))
		b.metrics.RecordATACreated()
	}

	mintTo, err := token.NewMintToInstruction(baseUnits, mint, ata, payer, nil).ValidateAndBuild()
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to build mint to instruction", "error", err)
		return nil, txerr.New(txerr.Validation, "build_mint_to", err)
	}
	mintToIx, err := onProgram(b.cfg.Programs.Token, mintTo)
	if err != nil {
		b.logger.ErrorContext(ctx, "failed to rebind mint to instruction", "error", err)
		return nil, txerr.New(txerr.Validation, "build_mint_to", err)
	}
	tx.Add(mintToIx)

	b.metrics.RecordTransactionBuilt("mint_to", len(tx.Instructions))
	b.logger.DebugContext(ctx, "built mint to transaction",
		"mint", mint.String(),
		"token_account", ata.String(),
		"create_account", !exists,
		"amount", amount,
		"base_units", baseUnits,
	)

	return tx, nil
}

// FinalizeAndSubmit stamps a fresh blockhash and the fee payer on tx, applies
// the extra co-signatures, hands it to the wallet provider to sign and send,
// and looks up the signature status once. Nothing is retried.
//
// Every failure is logged and returned as a *txerr.Error. When the status
// lookup itself fails after a successful send, the result is still returned
// with a nil Status.
func (b *Builder) FinalizeAndSubmit(ctx context.Context, tx *Transaction, feePayer solana.PublicKey, extraSigners ...*AccountKeypair) (*SubmitResult, error) {
	result, err := b.finalizeAndSubmit(ctx, tx, feePayer, extraSigners)
	if err != nil {
		b.metrics.RecordSubmission(txerr.KindOf(err).String())
		b.logger.ErrorContext(ctx, "transaction submission failed",
			"fee_payer", feePayer.String(),
			"kind", txerr.KindOf(err).String(),
			"error", err,
		)
		return result, err
	}
	b.metrics.RecordSubmission("success")
	return result, nil
}

func (b *Builder) finalizeAndSubmit(ctx context.Context, tx *Transaction, feePayer solana.PublicKey, extraSigners []*AccountKeypair) (*SubmitResult, error) {
	if tx == nil {
		return nil, txerr.Errorf(txerr.Validation, "finalize", "transaction is required")
	}
	if tx.submitted {
		return nil, txerr.New(txerr.Validation, "finalize", ErrTransactionReused)
	}

	latest, err := b.rpc.GetLatestBlockhash(ctx, b.cfg.Commitment)
	if err != nil {
		return nil, txerr.New(txerr.RPC, "get_latest_blockhash", err)
	}
	if latest == nil || latest.Value == nil {
		return nil, txerr.Errorf(txerr.RPC, "get_latest_blockhash", "empty response")
	}

	tx.RecentBlockhash = latest.Value.Blockhash
	tx.FeePayer = feePayer

	compiled, err := tx.Compile()
	if err != nil {
		return nil, txerr.New(txerr.Validation, "compile", err)
	}

	if len(extraSigners) > 0 {
		if _, err := compiled.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
			for _, s := range extraSigners {
				if s != nil && key.Equals(s.PublicKey()) {
					return &s.key
				}
			}
			return nil
		}); err != nil {
			return nil, txerr.New(txerr.Signing, "partial_sign", err)
		}
	}

	tx.submitted = true
	sig, err := b.provider.SignAndSendTransaction(ctx, compiled)
	if err != nil {
		return nil, txerr.New(txerr.Signing, "sign_and_send", err)
	}

	result := &SubmitResult{
		Signature:            sig,
		Blockhash:            latest.Value.Blockhash,
		LastValidBlockHeight: latest.Value.LastValidBlockHeight,
		FeePayer:             feePayer,
	}

	b.logger.InfoContext(ctx, "transaction submitted",
		"signature", sig.String(),
		"fee_payer", feePayer.String(),
		"instructions", len(tx.Instructions),
		"network", b.cfg.Network,
	)

	status, err := b.signatureStatus(ctx, sig)
	if err != nil {
		b.logger.WarnContext(ctx, "failed to get signature status",
			"signature", sig.String(),
			"error", err,
		)
		return result, nil
	}
	result.Status = status

	if status != nil && status.Err != nil {
		return result, txerr.Errorf(txerr.Program, "transaction", "transaction %s failed: %s", sig, *status.Err)
	}

	return result, nil
}

// SignatureStatus looks up a signature once, searching transaction history.
// It returns nil when the node does not know the signature.
func (b *Builder) SignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error) {
	out, err := b.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, txerr.New(txerr.RPC, "get_signature_statuses", err)
	}
	return statusFromResult(out), nil
}

func (b *Builder) signatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error) {
	out, err := b.rpc.GetSignatureStatuses(ctx, false, sig)
	if err != nil {
		return nil, err
	}
	return statusFromResult(out), nil
}

func statusFromResult(out *rpc.GetSignatureStatusesResult) *SignatureStatus {
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return nil
	}
	v := out.Value[0]
	status := &SignatureStatus{
		Slot:               v.Slot,
		ConfirmationStatus: string(v.ConfirmationStatus),
	}
	if v.Err != nil {
		errMsg := fmt.Sprintf("%v", v.Err)
		status.Err = &errMsg
	}
	return status
}

// accountExists reports whether account is present on chain. Lookup failures
// other than not-found are returned, never treated as absence.
func (b *Builder) accountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	info, err := b.rpc.GetAccountInfo(ctx, account)
	if errors.Is(err, rpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info != nil && info.Value != nil, nil
}

// onProgram re-targets an instruction built by a solana-go program package at
// the configured program ID. Instructions already aimed there are returned as is.
func onProgram(programID solana.PublicKey, ix solana.Instruction) (solana.Instruction, error) {
	if ix.ProgramID().Equals(programID) {
		return ix, nil
	}
	data, err := ix.Data()
	if err != nil {
		return nil, fmt.Errorf("failed to encode instruction data: %w", err)
	}
	return solana.NewInstruction(programID, ix.Accounts(), data), nil
}

// newCreateAssociatedTokenAccountInstruction creates owner's token account for
// mint at ata, funded by payer.
func newCreateAssociatedTokenAccountInstruction(programs ProgramIDs, payer, owner, mint, ata solana.PublicKey) solana.Instruction {
	keys := solana.AccountMetaSlice{
		{PublicKey: payer, IsSigner: true, IsWritable: true},
		{PublicKey: ata, IsSigner: false, IsWritable: true},
		{PublicKey: owner, IsSigner: false, IsWritable: false},
		{PublicKey: mint, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: programs.Token, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SysVarRentPubkey, IsSigner: false, IsWritable: false},
	}
	return solana.NewInstruction(programs.AssociatedToken, keys, []byte{})
}
