package solana

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	// ErrNoInstructions is returned when compiling a transaction with nothing in it.
	ErrNoInstructions = errors.New("transaction has no instructions")

	// ErrMissingBlockhash is returned when compiling a transaction before it was stamped.
	ErrMissingBlockhash = errors.New("transaction has no recent blockhash")

	// ErrMissingFeePayer is returned when compiling a transaction without a fee payer.
	ErrMissingFeePayer = errors.New("transaction has no fee payer")

	// ErrTransactionReused is returned when a transaction is submitted twice.
	ErrTransactionReused = errors.New("transaction was already submitted")
)

// Transaction is an ordered list of instructions waiting to be stamped with a
// recent blockhash and fee payer. It is submitted at most once.
type Transaction struct {
	Instructions    []solana.Instruction
	RecentBlockhash solana.Hash
	FeePayer        solana.PublicKey

	submitted bool
}

// NewTransaction creates a transaction holding the given instructions in order.
func NewTransaction(instructions ...solana.Instruction) *Transaction {
	return (&Transaction{}).Add(instructions...)
}

// Add appends instructions and returns the transaction for chaining.
func (t *Transaction) Add(instructions ...solana.Instruction) *Transaction {
	t.Instructions = append(t.Instructions, instructions...)
	return t
}

// Submitted reports whether the transaction was already handed to a wallet.
func (t *Transaction) Submitted() bool {
	return t.submitted
}

// Compile turns the transaction into a wire transaction. It fails unless the
// transaction carries instructions, a recent blockhash and a fee payer.
func (t *Transaction) Compile() (*solana.Transaction, error) {
	if len(t.Instructions) == 0 {
		return nil, ErrNoInstructions
	}
	if t.RecentBlockhash.IsZero() {
		return nil, ErrMissingBlockhash
	}
	if t.FeePayer.IsZero() {
		return nil, ErrMissingFeePayer
	}

	tx, err := solana.NewTransaction(
		t.Instructions,
		t.RecentBlockhash,
		solana.TransactionPayer(t.FeePayer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compile transaction: %w", err)
	}
	return tx, nil
}

// AccountKeypair is a freshly generated account key used to co-sign the single
// transaction that creates the account. It is never persisted.
type AccountKeypair struct {
	key solana.PrivateKey
}

// NewAccountKeypair generates a random keypair.
func NewAccountKeypair() (*AccountKeypair, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate account keypair: %w", err)
	}
	return &AccountKeypair{key: key}, nil
}

// PublicKey returns the account address.
func (k *AccountKeypair) PublicKey() solana.PublicKey {
	return k.key.PublicKey()
}

// SignatureStatus is the one-shot status lookup made right after submission.
type SignatureStatus struct {
	Slot               uint64
	ConfirmationStatus string  // processed, confirmed or finalized
	Err                *string // nil if the transaction succeeded
}

// SubmitResult describes a submitted transaction.
type SubmitResult struct {
	Signature            solana.Signature
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
	FeePayer             solana.PublicKey

	// Status is nil when the RPC node had not seen the signature yet or the
	// lookup failed.
	Status *SignatureStatus

	// Set by the session for create-mint and mint-to submissions.
	Mint         *solana.PublicKey
	Metadata     *solana.PublicKey
	TokenAccount *solana.PublicKey
}

// StatusString returns the confirmation status or "unknown".
func (r *SubmitResult) StatusString() string {
	if r.Status == nil || r.Status.ConfirmationStatus == "" {
		return "unknown"
	}
	return r.Status.ConfirmationStatus
}
