// Package txerr classifies failures of the transaction workflow so callers can
// decide what to show a user without parsing error strings.
package txerr

import (
	"errors"
	"fmt"
)

// Kind identifies which collaborator a failure came from.
type Kind int

const (
	// Unknown is returned by KindOf for errors that were never classified.
	Unknown Kind = iota
	// Connection means the wallet provider is unavailable or the user refused to connect.
	Connection
	// Signing means the user rejected signing or the signer failed.
	Signing
	// RPC means a call to the chain RPC endpoint failed.
	RPC
	// Program means an on-chain program rejected the transaction.
	Program
	// Validation means the request was malformed before anything left the process.
	Validation
)

func (k Kind) String() string {
	switch k {
	case Connection:
		return "connection"
	case Signing:
		return "signing"
	case RPC:
		return "rpc"
	case Program:
		return "program"
	case Validation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Op names the operation that failed
// (e.g. "connect", "get_latest_blockhash").
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind and operation. A nil err yields nil.
// If err is already classified it is returned unchanged so the innermost
// classification wins.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
