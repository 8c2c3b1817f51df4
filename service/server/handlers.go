package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/brojonat/tokensmith/service/session"
	solanasvc "github.com/brojonat/tokensmith/service/solana"
	"github.com/brojonat/tokensmith/service/txerr"
	solanago "github.com/gagliardetto/solana-go"
)

const (
	maxRequestBodySize = 1 << 16 // 64KB, requests carry at most an address and an amount
	maxAddressLength   = 100     // Solana addresses are 44 chars, give buffer
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

type sessionResponse struct {
	Connected bool   `json:"connected"`
	Wallet    string `json:"wallet,omitempty"`
	Network   string `json:"network"`
}

type statusResponse struct {
	Slot               uint64  `json:"slot"`
	ConfirmationStatus string  `json:"confirmation_status"`
	Err                *string `json:"err,omitempty"`
}

type submitResponse struct {
	Signature            string          `json:"signature"`
	Blockhash            string          `json:"blockhash"`
	LastValidBlockHeight uint64          `json:"last_valid_block_height"`
	FeePayer             string          `json:"fee_payer"`
	ConfirmationStatus   string          `json:"confirmation_status"`
	Status               *statusResponse `json:"status,omitempty"`
	Mint                 string          `json:"mint,omitempty"`
	Metadata             string          `json:"metadata,omitempty"`
	TokenAccount         string          `json:"token_account,omitempty"`
}

type mintRequest struct {
	Amount uint64 `json:"amount"`
}

type transferRequest struct {
	Receiver string `json:"receiver"`
	Amount   uint64 `json:"amount"`
}

// handleGetSession returns a handler reporting the connection state.
// GET /api/v1/session
func handleGetSession(s *session.Session) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := sessionResponse{Network: s.Network()}
		if wallet, ok := s.Wallet(); ok {
			resp.Connected = true
			resp.Wallet = wallet.String()
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

// handleConnect returns a handler that connects the wallet.
// POST /api/v1/connect
func handleConnect(s *session.Session, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pubkey, err := s.Connect(r.Context())
		if err != nil {
			writeTxError(w, r, logger, "connect", err)
			return
		}

		writeJSON(w, sessionResponse{
			Connected: true,
			Wallet:    pubkey.String(),
			Network:   s.Network(),
		}, http.StatusOK)
	})
}

// handleCreateToken returns a handler that creates a new mint with metadata.
// POST /api/v1/tokens
func handleCreateToken(s *session.Session, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result, err := s.CreateToken(r.Context())
		if err != nil {
			writeSubmitError(w, r, logger, "create_token", result, err)
			return
		}
		writeJSON(w, submitResultToResponse(result), http.StatusCreated)
	})
}

// handleMintTokens returns a handler that mints tokens into the connected
// wallet's token account.
// POST /api/v1/tokens/{mint}/mint
func handleMintTokens(s *session.Session, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mint, err := parseAddress(r.PathValue("mint"))
		if err != nil {
			logger.DebugContext(r.Context(), "invalid mint", "mint", r.PathValue("mint"), "error", err)
			writeError(w, fmt.Sprintf("invalid mint: %v", err), http.StatusBadRequest)
			return
		}

		var req mintRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Amount == 0 {
			writeError(w, "amount must be greater than zero", http.StatusBadRequest)
			return
		}

		result, err := s.MintTokens(r.Context(), mint, req.Amount)
		if err != nil {
			writeSubmitError(w, r, logger, "mint_tokens", result, err)
			return
		}
		writeJSON(w, submitResultToResponse(result), http.StatusOK)
	})
}

// handleTransfer returns a handler that transfers SOL from the connected
// wallet. An empty body runs the default transfer.
// POST /api/v1/transfers
func handleTransfer(s *session.Session, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		receiver, amount := s.TransferDefaults()
		if req.Receiver != "" {
			pk, err := parseAddress(req.Receiver)
			if err != nil {
				logger.DebugContext(r.Context(), "invalid receiver", "receiver", req.Receiver, "error", err)
				writeError(w, fmt.Sprintf("invalid receiver: %v", err), http.StatusBadRequest)
				return
			}
			receiver = pk
		}
		if req.Amount != 0 {
			amount = req.Amount
		}

		result, err := s.Transfer(r.Context(), receiver, amount)
		if err != nil {
			writeSubmitError(w, r, logger, "transfer", result, err)
			return
		}
		writeJSON(w, submitResultToResponse(result), http.StatusOK)
	})
}

// decodeBody decodes an optional JSON body into dst. An empty body leaves dst
// untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errorf("request body too large")
		}
		return errorf("invalid request body: %v", err)
	}
	return nil
}

// statusForKind maps an error kind to the HTTP status reported to clients.
func statusForKind(kind txerr.Kind) int {
	switch kind {
	case txerr.Connection:
		return http.StatusConflict
	case txerr.Validation:
		return http.StatusBadRequest
	case txerr.Signing:
		return http.StatusForbidden
	case txerr.RPC:
		return http.StatusBadGateway
	case txerr.Program:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error  string          `json:"error"`
	Kind   string          `json:"kind"`
	Result *submitResponse `json:"result,omitempty"`
}

// writeTxError logs err and writes it with the status for its kind.
func writeTxError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	writeSubmitError(w, r, logger, op, nil, err)
}

// writeSubmitError is writeTxError that also carries a partial result, such as
// a signature whose transaction failed on chain.
func writeSubmitError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, result *solanasvc.SubmitResult, err error) {
	kind := txerr.KindOf(err)
	logger.ErrorContext(r.Context(), "request failed",
		"op", op,
		"kind", kind.String(),
		"error", err,
	)

	resp := errorResponse{Error: err.Error(), Kind: kind.String()}
	if result != nil {
		sr := submitResultToResponse(result)
		resp.Result = &sr
	}
	writeJSON(w, resp, statusForKind(kind))
}

func submitResultToResponse(r *solanasvc.SubmitResult) submitResponse {
	resp := submitResponse{
		Signature:            r.Signature.String(),
		Blockhash:            r.Blockhash.String(),
		LastValidBlockHeight: r.LastValidBlockHeight,
		FeePayer:             r.FeePayer.String(),
		ConfirmationStatus:   r.StatusString(),
	}
	if r.Status != nil {
		resp.Status = &statusResponse{
			Slot:               r.Status.Slot,
			ConfirmationStatus: r.Status.ConfirmationStatus,
			Err:                r.Status.Err,
		}
	}
	if r.Mint != nil {
		resp.Mint = r.Mint.String()
	}
	if r.Metadata != nil {
		resp.Metadata = r.Metadata.String()
	}
	if r.TokenAccount != nil {
		resp.TokenAccount = r.TokenAccount.String()
	}
	return resp
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"kind":  txerr.Validation.String(),
	})
}

// validateAddress validates a wallet address for security and format.
func validateAddress(address string) error {
	if address == "" {
		return errorf("address is required")
	}

	if len(address) > maxAddressLength {
		return errorf("address too long: maximum length is %d characters", maxAddressLength)
	}

	// Check for null bytes and control characters
	for _, r := range address {
		if r == 0 || unicode.IsControl(r) {
			return errorf("invalid characters in address: control characters not allowed")
		}
	}

	if !validAddressRegex.MatchString(address) {
		return errorf("invalid address format: must contain only valid base58 characters")
	}

	return nil
}

// parseAddress validates and decodes a base58 public key.
func parseAddress(address string) (solanago.PublicKey, error) {
	if err := validateAddress(address); err != nil {
		return solanago.PublicKey{}, err
	}
	pk, err := solanago.PublicKeyFromBase58(address)
	if err != nil {
		return solanago.PublicKey{}, errorf("invalid address: %v", err)
	}
	return pk, nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
