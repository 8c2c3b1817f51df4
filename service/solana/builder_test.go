package solana

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/brojonat/tokensmith/service/txerr"
	"github.com/brojonat/tokensmith/service/wallet"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRPCClient implements RPCClient for testing.
// It's behavior-focused: we set what it should return, not verify call sequences.
type mockRPCClient struct {
	mu sync.Mutex

	blockhash     solana.Hash
	lastValid     uint64
	blockhashErr  error
	rentLamports  uint64
	rentErr       error
	accounts      map[solana.PublicKey]bool
	accountErr    error
	status        *rpc.SignatureStatusesResult
	statusErr     error
	blockhashHits int
}

func newMockRPC() *mockRPCClient {
	return &mockRPCClient{
		blockhash:    solana.MustHashFromBase58("4uQeVj5tqViQh7yWWGStvkEG1Zmhx6uasJtWCJziofM"),
		lastValid:    1234,
		rentLamports: 1461600,
		accounts:     make(map[solana.PublicKey]bool),
	}
}

func (m *mockRPCClient) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockhashHits++
	if m.blockhashErr != nil {
		return nil, m.blockhashErr
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{
			Blockhash:            m.blockhash,
			LastValidBlockHeight: m.lastValid,
		},
	}, nil
}

func (m *mockRPCClient) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accountErr != nil {
		return nil, m.accountErr
	}
	if !m.accounts[account] {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{Value: &rpc.Account{Owner: TokenProgramID}}, nil
}

func (m *mockRPCClient) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error) {
	if m.rentErr != nil {
		return 0, m.rentErr
	}
	return m.rentLamports, nil
}

func (m *mockRPCClient) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, signatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{m.status}}, nil
}

func (m *mockRPCClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return tx.Signatures[0], nil
}

var (
	testReceiver  = solana.MustPublicKeyFromBase58("Fjq4jmr998ZiSbp7Ba8A9pvV82guKi9ejFaAWQ16PAzM")
	testSignature = solana.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")
)

func testMetadata() TokenMetadata {
	return TokenMetadata{
		Name:      "Kappa",
		Symbol:    "KAP",
		URI:       "https://example.com/metadata.json",
		IsMutable: true,
	}
}

func newTestBuilder(t *testing.T, mock *mockRPCClient) (*Builder, *wallet.MockProvider, solana.PublicKey) {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	provider := wallet.NewMockProvider(key.PublicKey(), testSignature)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := NewBuilder(mock, provider, BuilderConfig{
		Network:      "devnet",
		Metadata:     testMetadata(),
		MintDecimals: DefaultMintDecimals,
	}, nil, logger)
	return b, provider, key.PublicKey()
}

func instructionData(t *testing.T, ix solana.Instruction) []byte {
	t.Helper()
	data, err := ix.Data()
	require.NoError(t, err)
	return data
}

func TestNewBuilder_Defaults(t *testing.T) {
	b, _, _ := newTestBuilder(t, newMockRPC())

	cfg := b.Config()
	assert.Equal(t, DefaultProgramIDs(), cfg.Programs)
	assert.Equal(t, rpc.CommitmentFinalized, cfg.Commitment)
	assert.Equal(t, DefaultMintDecimals, cfg.MintDecimals)
}

func TestBuilder_ZeroDecimals(t *testing.T) {
	mock := newMockRPC()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	payer := key.PublicKey()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := NewBuilder(mock, wallet.NewMockProvider(payer, testSignature), BuilderConfig{
		Metadata:     testMetadata(),
		MintDecimals: 0,
	}, nil, logger)
	require.Equal(t, uint8(0), b.Config().MintDecimals)

	tx, mintKey, err := b.BuildCreateMint(context.Background(), payer, b.Config().MintDecimals)
	require.NoError(t, err)
	assert.Equal(t, byte(0), instructionData(t, tx.Instructions[1])[1])

	mintTx, err := b.BuildMintTo(context.Background(), mintKey.PublicKey(), payer, 100)
	require.NoError(t, err)
	data := instructionData(t, mintTx.Instructions[len(mintTx.Instructions)-1])
	assert.Equal(t, byte(7), data[0])
	assert.Equal(t, uint64(100), binary.LittleEndian.Uint64(data[1:9]))
}

func TestBuilder_Connect(t *testing.T) {
	b, provider, payer := newTestBuilder(t, newMockRPC())

	pubkey, err := b.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, payer, pubkey)

	provider.SetConnectError(wallet.ErrUserRejected)
	_, err = b.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, txerr.Is(err, txerr.Connection))
	assert.ErrorIs(t, err, wallet.ErrUserRejected)
}

func TestBuildTransfer_OneSOL(t *testing.T) {
	b, _, payer := newTestBuilder(t, newMockRPC())

	tx, err := b.BuildTransfer(payer, testReceiver, 1)
	require.NoError(t, err)
	require.Len(t, tx.Instructions, 1)

	ix := tx.Instructions[0]
	assert.Equal(t, solana.SystemProgramID, ix.ProgramID())

	data := instructionData(t, ix)
	require.Len(t, data, 12)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(t, uint64(1_000_000_000), binary.LittleEndian.Uint64(data[4:12]))

	accounts := ix.Accounts()
	require.Len(t, accounts, 2)
	assert.Equal(t, payer, accounts[0].PublicKey)
	assert.True(t, accounts[0].IsSigner)
	assert.Equal(t, testReceiver, accounts[1].PublicKey)
	assert.True(t, accounts[1].IsWritable)

	// No blockhash or fee payer until finalized.
	assert.True(t, tx.RecentBlockhash.IsZero())
	assert.True(t, tx.FeePayer.IsZero())
}

func TestBuildTransfer_Invalid(t *testing.T) {
	b, _, payer := newTestBuilder(t, newMockRPC())

	tests := []struct {
		name     string
		sender   solana.PublicKey
		receiver solana.PublicKey
		amount   uint64
	}{
		{"zero amount", payer, testReceiver, 0},
		{"overflow", payer, testReceiver, ^uint64(0)},
		{"missing receiver", payer, solana.PublicKey{}, 1},
		{"missing sender", solana.PublicKey{}, testReceiver, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := b.BuildTransfer(tt.sender, tt.receiver, tt.amount)
			require.Error(t, err)
			assert.Nil(t, tx)
			assert.True(t, txerr.Is(err, txerr.Validation))
		})
	}
}

func TestBuildCreateMint(t *testing.T) {
	mock := newMockRPC()
	b, _, payer := newTestBuilder(t, mock)

	tx, mintKey, err := b.BuildCreateMint(context.Background(), payer, 9)
	require.NoError(t, err)
	require.NotNil(t, mintKey)
	require.Len(t, tx.Instructions, 3)

	mint := mintKey.PublicKey()

	// 1. create the mint account owned by the token program
	createAccount := tx.Instructions[0]
	assert.Equal(t, solana.SystemProgramID, createAccount.ProgramID())
	accounts := createAccount.Accounts()
	require.Len(t, accounts, 2)
	assert.Equal(t, payer, accounts[0].PublicKey)
	assert.Equal(t, mint, accounts[1].PublicKey)
	assert.True(t, accounts[1].IsSigner)
	data := instructionData(t, createAccount)
	// u32 discriminator, u64 lamports, u64 space, owner
	require.Len(t, data, 52)
	assert.Equal(t, mock.rentLamports, binary.LittleEndian.Uint64(data[4:12]))
	assert.Equal(t, MintAccountSize, binary.LittleEndian.Uint64(data[12:20]))
	assert.Equal(t, TokenProgramID[:], data[20:52])

	// 2. initialize it with payer as mint authority
	initMint := tx.Instructions[1]
	assert.Equal(t, TokenProgramID, initMint.ProgramID())
	assert.Equal(t, mint, initMint.Accounts()[0].PublicKey)
	data = instructionData(t, initMint)
	assert.Equal(t, byte(0), data[0])
	assert.Equal(t, byte(9), data[1])
	assert.Equal(t, payer[:], data[2:34])

	// 3. attach metadata at the derived address
	createMetadata := tx.Instructions[2]
	assert.Equal(t, TokenMetadataProgramID, createMetadata.ProgramID())
	expected, _, err := FindMetadataAddress(TokenMetadataProgramID, mint)
	require.NoError(t, err)
	metaAccounts := createMetadata.Accounts()
	require.Len(t, metaAccounts, 6)
	assert.Equal(t, expected, metaAccounts[0].PublicKey)
	assert.Equal(t, mint, metaAccounts[1].PublicKey)
	assert.Equal(t, payer, metaAccounts[2].PublicKey)
	assert.Equal(t, payer, metaAccounts[3].PublicKey)
	assert.Equal(t, payer, metaAccounts[4].PublicKey)
	assert.Equal(t, byte(MetadataCreateMetadataAccountV3Instruction), instructionData(t, createMetadata)[0])
}

func TestBuildCreateMint_RentLookupFails(t *testing.T) {
	mock := newMockRPC()
	mock.rentErr = errors.New("node unavailable")
	b, _, payer := newTestBuilder(t, mock)

	tx, mintKey, err := b.BuildCreateMint(context.Background(), payer, 9)
	require.Error(t, err)
	assert.Nil(t, tx)
	assert.Nil(t, mintKey)
	assert.True(t, txerr.Is(err, txerr.RPC))
}

func TestBuildCreateMint_KeyGenerationFails(t *testing.T) {
	var logs bytes.Buffer
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	b := NewBuilder(newMockRPC(), wallet.NewMockProvider(key.PublicKey(), testSignature), BuilderConfig{
		Metadata: testMetadata(),
	}, nil, logger)
	b.newMintKey = func() (*AccountKeypair, error) {
		return nil, errors.New("entropy source unavailable")
	}

	tx, mintKey, err := b.BuildCreateMint(context.Background(), key.PublicKey(), 9)
	require.Error(t, err)
	assert.Nil(t, tx)
	assert.Nil(t, mintKey)
	assert.True(t, txerr.Is(err, txerr.Signing))
	assert.Contains(t, err.Error(), "entropy source unavailable")
	assert.Contains(t, logs.String(), "failed to generate mint keypair")
}

func TestBuildCreateMint_InvalidMetadata(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	md := testMetadata()
	md.Symbol = "WAYTOOLONGSYMBOL"
	b := NewBuilder(newMockRPC(), wallet.NewMockProvider(key.PublicKey(), testSignature), BuilderConfig{Metadata: md}, nil, logger)

	_, _, err = b.BuildCreateMint(context.Background(), key.PublicKey(), 9)
	require.Error(t, err)
	assert.True(t, txerr.Is(err, txerr.Validation))
}

func TestBuildMintTo_AccountExists(t *testing.T) {
	mock := newMockRPC()
	b, _, payer := newTestBuilder(t, mock)
	mint := solana.NewWallet().PublicKey()

	ata, err := b.AssociatedTokenAddress(payer, mint)
	require.NoError(t, err)
	mock.accounts[ata] = true

	tx, err := b.BuildMintTo(context.Background(), mint, payer, 100)
	require.NoError(t, err)
	require.Len(t, tx.Instructions, 1)

	mintTo := tx.Instructions[0]
	assert.Equal(t, TokenProgramID, mintTo.ProgramID())
	accounts := mintTo.Accounts()
	assert.Equal(t, mint, accounts[0].PublicKey)
	assert.Equal(t, ata, accounts[1].PublicKey)
	assert.Equal(t, payer, accounts[2].PublicKey)

	data := instructionData(t, mintTo)
	require.Len(t, data, 9)
	assert.Equal(t, byte(7), data[0])
	assert.Equal(t, uint64(100_000_000_000), binary.LittleEndian.Uint64(data[1:9]))
}

func TestBuildMintTo_AccountAbsent(t *testing.T) {
	mock := newMockRPC()
	b, _, payer := newTestBuilder(t, mock)
	mint := solana.NewWallet().PublicKey()

	tx, err := b.BuildMintTo(context.Background(), mint, payer, 1)
	require.NoError(t, err)
	require.Len(t, tx.Instructions, 2)

	ata, err := b.AssociatedTokenAddress(payer, mint)
	require.NoError(t, err)

	create := tx.Instructions[0]
	assert.Equal(t, AssociatedTokenProgramID, create.ProgramID())
	accounts := create.Accounts()
	require.Len(t, accounts, 7)
	assert.Equal(t, payer, accounts[0].PublicKey)
	assert.Equal(t, ata, accounts[1].PublicKey)
	assert.Equal(t, payer, accounts[2].PublicKey)
	assert.Equal(t, mint, accounts[3].PublicKey)
	assert.Equal(t, TokenProgramID, accounts[5].PublicKey)
	assert.Empty(t, instructionData(t, create))

	assert.Equal(t, TokenProgramID, tx.Instructions[1].ProgramID())
}

func TestBuildMintTo_LookupFails(t *testing.T) {
	mock := newMockRPC()
	mock.accountErr = errors.New("connection refused")
	b, _, payer := newTestBuilder(t, mock)

	tx, err := b.BuildMintTo(context.Background(), solana.NewWallet().PublicKey(), payer, 1)
	require.Error(t, err)
	assert.Nil(t, tx)
	assert.True(t, txerr.Is(err, txerr.RPC))
}

func TestBuildMintTo_ConfiguredPrograms(t *testing.T) {
	tokenProgram := solana.NewWallet().PublicKey()
	ataProgram := solana.NewWallet().PublicKey()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	payer := key.PublicKey()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := NewBuilder(newMockRPC(), wallet.NewMockProvider(payer, testSignature), BuilderConfig{
		Metadata:     testMetadata(),
		Programs:     ProgramIDs{Token: tokenProgram, AssociatedToken: ataProgram},
		MintDecimals: DefaultMintDecimals,
	}, nil, logger)

	mint := solana.NewWallet().PublicKey()
	tx, err := b.BuildMintTo(context.Background(), mint, payer, 1)
	require.NoError(t, err)
	require.Len(t, tx.Instructions, 2)
	assert.Equal(t, ataProgram, tx.Instructions[0].ProgramID())
	assert.Equal(t, tokenProgram, tx.Instructions[0].Accounts()[5].PublicKey)
	assert.Equal(t, tokenProgram, tx.Instructions[1].ProgramID())

	// The metadata program falls back to the default.
	assert.Equal(t, TokenMetadataProgramID, b.Config().Programs.Metadata)
}

func TestFinalizeAndSubmit_Transfer(t *testing.T) {
	mock := newMockRPC()
	mock.status = &rpc.SignatureStatusesResult{Slot: 42, ConfirmationStatus: rpc.ConfirmationStatusProcessed}
	b, provider, payer := newTestBuilder(t, mock)

	tx, err := b.BuildTransfer(payer, testReceiver, 1)
	require.NoError(t, err)

	result, err := b.FinalizeAndSubmit(context.Background(), tx, payer)
	require.NoError(t, err)
	assert.Equal(t, testSignature, result.Signature)
	assert.Equal(t, mock.blockhash, result.Blockhash)
	assert.Equal(t, uint64(1234), result.LastValidBlockHeight)
	assert.Equal(t, payer, result.FeePayer)
	require.NotNil(t, result.Status)
	assert.Equal(t, uint64(42), result.Status.Slot)
	assert.Equal(t, "processed", result.StatusString())

	// The wallet received a transaction already stamped with blockhash and payer.
	submitted := provider.GetSubmitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, mock.blockhash, submitted[0].Message.RecentBlockhash)
	assert.Equal(t, payer, submitted[0].Message.AccountKeys[0])
	assert.True(t, tx.Submitted())
}

func TestFinalizeAndSubmit_CoSignsCreateMint(t *testing.T) {
	mock := newMockRPC()
	b, provider, payer := newTestBuilder(t, mock)

	tx, mintKey, err := b.BuildCreateMint(context.Background(), payer, 9)
	require.NoError(t, err)

	_, err = b.FinalizeAndSubmit(context.Background(), tx, payer, mintKey)
	require.NoError(t, err)

	submitted := provider.GetSubmitted()
	require.Len(t, submitted, 1)
	compiled := submitted[0]

	mintIndex := -1
	for i, k := range compiled.Message.AccountKeys {
		if k.Equals(mintKey.PublicKey()) {
			mintIndex = i
		}
	}
	require.GreaterOrEqual(t, mintIndex, 0)
	require.Greater(t, len(compiled.Signatures), mintIndex)
	assert.False(t, compiled.Signatures[mintIndex].IsZero())
	// The payer's slot is left for the wallet.
	assert.True(t, compiled.Signatures[0].IsZero())
}

func TestFinalizeAndSubmit_WalletRejects(t *testing.T) {
	b, provider, payer := newTestBuilder(t, newMockRPC())
	provider.SetSendError(wallet.ErrUserRejected)

	tx, err := b.BuildTransfer(payer, testReceiver, 1)
	require.NoError(t, err)

	var result *SubmitResult
	require.NotPanics(t, func() {
		result, err = b.FinalizeAndSubmit(context.Background(), tx, payer)
	})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, txerr.Is(err, txerr.Signing))
	assert.ErrorIs(t, err, wallet.ErrUserRejected)
}

func TestFinalizeAndSubmit_KeepsProviderClassification(t *testing.T) {
	b, provider, payer := newTestBuilder(t, newMockRPC())
	provider.SetSendError(txerr.Errorf(txerr.Program, "send_transaction", "insufficient funds"))

	tx, err := b.BuildTransfer(payer, testReceiver, 1)
	require.NoError(t, err)

	_, err = b.FinalizeAndSubmit(context.Background(), tx, payer)
	require.Error(t, err)
	assert.True(t, txerr.Is(err, txerr.Program))
}

func TestFinalizeAndSubmit_RejectsReuse(t *testing.T) {
	mock := newMockRPC()
	b, provider, payer := newTestBuilder(t, mock)

	tx, err := b.BuildTransfer(payer, testReceiver, 1)
	require.NoError(t, err)

	_, err = b.FinalizeAndSubmit(context.Background(), tx, payer)
	require.NoError(t, err)

	_, err = b.FinalizeAndSubmit(context.Background(), tx, payer)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransactionReused)
	assert.True(t, txerr.Is(err, txerr.Validation))
	assert.Len(t, provider.GetSubmitted(), 1)
	assert.Equal(t, 1, mock.blockhashHits)
}

func TestFinalizeAndSubmit_BlockhashFails(t *testing.T) {
	mock := newMockRPC()
	mock.blockhashErr = errors.New("timeout")
	b, provider, payer := newTestBuilder(t, mock)

	tx, err := b.BuildTransfer(payer, testReceiver, 1)
	require.NoError(t, err)

	_, err = b.FinalizeAndSubmit(context.Background(), tx, payer)
	require.Error(t, err)
	assert.True(t, txerr.Is(err, txerr.RPC))
	assert.Empty(t, provider.GetSubmitted())
	assert.False(t, tx.Submitted())
}

func TestFinalizeAndSubmit_EmptyTransaction(t *testing.T) {
	b, provider, payer := newTestBuilder(t, newMockRPC())

	_, err := b.FinalizeAndSubmit(context.Background(), NewTransaction(), payer)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoInstructions)
	assert.True(t, txerr.Is(err, txerr.Validation))
	assert.Empty(t, provider.GetSubmitted())
}

func TestFinalizeAndSubmit_StatusLookupFails(t *testing.T) {
	mock := newMockRPC()
	mock.statusErr = errors.New("rate limited")
	b, _, payer := newTestBuilder(t, mock)

	tx, err := b.BuildTransfer(payer, testReceiver, 1)
	require.NoError(t, err)

	result, err := b.FinalizeAndSubmit(context.Background(), tx, payer)
	require.NoError(t, err)
	assert.Equal(t, testSignature, result.Signature)
	assert.Nil(t, result.Status)
	assert.Equal(t, "unknown", result.StatusString())
}

func TestFinalizeAndSubmit_OnChainFailure(t *testing.T) {
	mock := newMockRPC()
	mock.status = &rpc.SignatureStatusesResult{
		Slot:               7,
		ConfirmationStatus: rpc.ConfirmationStatusConfirmed,
		Err:                map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
	}
	b, _, payer := newTestBuilder(t, mock)

	tx, err := b.BuildTransfer(payer, testReceiver, 1)
	require.NoError(t, err)

	result, err := b.FinalizeAndSubmit(context.Background(), tx, payer)
	require.Error(t, err)
	assert.True(t, txerr.Is(err, txerr.Program))
	require.NotNil(t, result)
	require.NotNil(t, result.Status)
	require.NotNil(t, result.Status.Err)
	assert.Contains(t, *result.Status.Err, "InstructionError")
}

func TestSignatureStatus_Unknown(t *testing.T) {
	b, _, _ := newTestBuilder(t, newMockRPC())

	status, err := b.SignatureStatus(context.Background(), testSignature)
	require.NoError(t, err)
	assert.Nil(t, status)
}
