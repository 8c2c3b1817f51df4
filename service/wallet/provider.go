// Package wallet holds the wallet providers that connect an account and sign
// and send transactions on its behalf.
package wallet

import (
	"context"
	"errors"

	"github.com/gagliardetto/solana-go"
)

// Provider is the wallet side of the signing flow. Connect yields the public
// key of the connected account; SignAndSendTransaction adds the account's
// signature and broadcasts the transaction, returning its signature.
type Provider interface {
	Connect(ctx context.Context) (solana.PublicKey, error)
	SignAndSendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

var (
	// ErrUserRejected is returned when the user declines a connect or signing request.
	ErrUserRejected = errors.New("user rejected the request")

	// ErrNoKey is returned when a provider has no key material to connect with.
	ErrNoKey = errors.New("no wallet key configured")
)
