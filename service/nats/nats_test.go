package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/brojonat/tokensmith/service/solana"
	"github.com/brojonat/tokensmith/service/txerr"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWallet = "Fjq4jmr998ZiSbp7Ba8A9pvV82guKi9ejFaAWQ16PAzM"

func TestSubjectForWallet(t *testing.T) {
	assert.Equal(t, "submissions."+testWallet, SubjectForWallet(testWallet))
	assert.Equal(t, StreamSubjects, SubjectForWallet(""))
}

func TestNewSubmissionEvent_Success(t *testing.T) {
	sig := solanago.MustSignatureFromBase58("5j7s6NiJS3JAkvgkoc18WVAsiSaci2pxB2A6ueCJP4tprA2TFg9wSyTLeYouxPBJEMzJinENTkpA52YStRW5Dia7")
	mint := solanago.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	result := &solana.SubmitResult{
		Signature:            sig,
		Blockhash:            solanago.MustHashFromBase58("4uQeVj5tqViQh7yWWGStvkEG1Zmhx6uasJtWCJziofM"),
		LastValidBlockHeight: 99,
		Status:               &solana.SignatureStatus{Slot: 5, ConfirmationStatus: "confirmed"},
		Mint:                 &mint,
	}

	event := NewSubmissionEvent(KindCreateMint, testWallet, "devnet", result, nil)

	assert.Equal(t, KindCreateMint, event.Kind)
	assert.Equal(t, sig.String(), event.Signature)
	assert.Equal(t, "confirmed", event.ConfirmationStatus)
	assert.Equal(t, uint64(5), event.Slot)
	assert.Equal(t, mint.String(), event.Mint)
	assert.Empty(t, event.Error)
	assert.Equal(t, "submissions."+testWallet, event.Subject())
	assert.False(t, event.PublishedAt.IsZero())
}

func TestNewSubmissionEvent_Failure(t *testing.T) {
	err := txerr.New(txerr.Signing, "sign_and_send", errors.New("user rejected the request"))

	event := NewSubmissionEvent(KindTransfer, testWallet, "mainnet", nil, err)

	assert.Empty(t, event.Signature)
	assert.Equal(t, "unknown", event.ConfirmationStatus)
	assert.Equal(t, "signing", event.ErrorKind)
	assert.Contains(t, event.Error, "user rejected")

	data, jerr := json.Marshal(event)
	require.NoError(t, jerr)
	assert.NotContains(t, string(data), `"signature"`)
}

func TestMockPublisher_FanOut(t *testing.T) {
	mock := NewMockPublisher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	all, err := mock.Subscribe(ctx, "")
	require.NoError(t, err)
	mine, err := mock.Subscribe(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, 2, mock.SubscriberCount())

	other := &SubmissionEvent{Kind: KindTransfer, WalletAddress: "someone-else"}
	ours := &SubmissionEvent{Kind: KindMintTo, WalletAddress: testWallet}
	require.NoError(t, mock.PublishSubmission(ctx, other))
	require.NoError(t, mock.PublishSubmission(ctx, ours))

	assert.Equal(t, other, <-all)
	assert.Equal(t, ours, <-all)
	assert.Equal(t, ours, <-mine)
	assert.Equal(t, 2, mock.GetPublishedEventCount())

	cancel()
	assert.Eventually(t, func() bool { return mock.SubscriberCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestMockPublisher_Errors(t *testing.T) {
	mock := NewMockPublisher()
	mock.SetPublishError(errors.New("nats down"))
	mock.SetSubscribeError(errors.New("no stream"))

	assert.Error(t, mock.PublishSubmission(context.Background(), &SubmissionEvent{}))
	_, err := mock.Subscribe(context.Background(), "")
	assert.Error(t, err)
	assert.Zero(t, mock.GetPublishedEventCount())

	require.NoError(t, mock.Close())
	assert.True(t, mock.IsClosed())
}
