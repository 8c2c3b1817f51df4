package wallet

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// MockProvider is a mock implementation of Provider for testing.
type MockProvider struct {
	mu           sync.RWMutex
	pubkey       solana.PublicKey
	signature    solana.Signature
	connectError error
	sendError    error
	connects     int
	submitted    []*solana.Transaction
}

// NewMockProvider creates a mock wallet that connects as pubkey and reports
// signature for every submitted transaction.
func NewMockProvider(pubkey solana.PublicKey, signature solana.Signature) *MockProvider {
	return &MockProvider{
		pubkey:    pubkey,
		signature: signature,
	}
}

// Connect returns the configured public key or the configured error.
func (m *MockProvider) Connect(ctx context.Context) (solana.PublicKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connects++
	if m.connectError != nil {
		return solana.PublicKey{}, m.connectError
	}
	return m.pubkey, nil
}

// SignAndSendTransaction records the transaction and returns the configured
// signature or error. The transaction is recorded even when an error is returned.
func (m *MockProvider) SignAndSendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.submitted = append(m.submitted, tx)
	if m.sendError != nil {
		return solana.Signature{}, m.sendError
	}
	return m.signature, nil
}

// SetConnectError configures the error returned by Connect.
func (m *MockProvider) SetConnectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectError = err
}

// SetSendError configures the error returned by SignAndSendTransaction.
func (m *MockProvider) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendError = err
}

// GetSubmitted returns every transaction handed to the mock (for testing).
func (m *MockProvider) GetSubmitted() []*solana.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*solana.Transaction, len(m.submitted))
	copy(out, m.submitted)
	return out
}

// ConnectCount returns how many times Connect was called.
func (m *MockProvider) ConnectCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connects
}
