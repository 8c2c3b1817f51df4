package nats

import (
	"fmt"
	"time"

	"github.com/brojonat/tokensmith/service/solana"
	"github.com/brojonat/tokensmith/service/txerr"
)

// Submission kinds.
const (
	KindTransfer   = "transfer"
	KindCreateMint = "create_mint"
	KindMintTo     = "mint_to"
)

// SubmissionEvent represents a submitted transaction published to NATS.
// This is published to the subject "submissions.{wallet_address}" in JetStream.
type SubmissionEvent struct {
	Kind          string `json:"kind"`
	WalletAddress string `json:"wallet_address"` // fee payer
	Network       string `json:"network"`

	// Empty when the transaction never reached the wallet.
	Signature            string `json:"signature,omitempty"`
	Blockhash            string `json:"blockhash,omitempty"`
	LastValidBlockHeight uint64 `json:"last_valid_block_height,omitempty"`
	ConfirmationStatus   string `json:"confirmation_status"`
	Slot                 uint64 `json:"slot,omitempty"`

	Mint         string `json:"mint,omitempty"`
	Metadata     string `json:"metadata,omitempty"`
	TokenAccount string `json:"token_account,omitempty"`
	Receiver     string `json:"receiver,omitempty"`
	Amount       uint64 `json:"amount,omitempty"`

	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`

	PublishedAt time.Time `json:"published_at"`
}

// Subject returns the subject the event is published on.
func (e *SubmissionEvent) Subject() string {
	return SubjectForWallet(e.WalletAddress)
}

// SubjectForWallet returns the subject for a wallet, or the wildcard subject
// when wallet is empty.
func SubjectForWallet(wallet string) string {
	if wallet == "" {
		return StreamSubjects
	}
	return fmt.Sprintf("%s.%s", subjectPrefix, wallet)
}

// NewSubmissionEvent converts a submission outcome into an event. result may be
// nil when the submission failed before reaching the wallet.
func NewSubmissionEvent(kind, wallet, network string, result *solana.SubmitResult, err error) *SubmissionEvent {
	event := &SubmissionEvent{
		Kind:               kind,
		WalletAddress:      wallet,
		Network:            network,
		ConfirmationStatus: "unknown",
		PublishedAt:        time.Now().UTC(),
	}

	if result != nil {
		if !result.Signature.IsZero() {
			event.Signature = result.Signature.String()
		}
		if !result.Blockhash.IsZero() {
			event.Blockhash = result.Blockhash.String()
		}
		event.LastValidBlockHeight = result.LastValidBlockHeight
		event.ConfirmationStatus = result.StatusString()
		if result.Status != nil {
			event.Slot = result.Status.Slot
		}
		if result.Mint != nil {
			event.Mint = result.Mint.String()
		}
		if result.Metadata != nil {
			event.Metadata = result.Metadata.String()
		}
		if result.TokenAccount != nil {
			event.TokenAccount = result.TokenAccount.String()
		}
	}

	if err != nil {
		event.Error = err.Error()
		event.ErrorKind = txerr.KindOf(err).String()
	}

	return event
}
