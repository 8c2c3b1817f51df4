package nats

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const otherWallet = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

// runJetStream starts an in-process NATS server with JetStream enabled.
func runJetStream(t *testing.T) string {
	t.Helper()
	ns, err := natsserver.NewServer(&natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	require.NoError(t, err)

	go ns.Start()
	require.True(t, ns.ReadyForConnections(5*time.Second), "nats server not ready")
	t.Cleanup(ns.Shutdown)

	return ns.ClientURL()
}

func TestJetStreamPublisher_CreatesStream(t *testing.T) {
	url := runJetStream(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pub, err := NewPublisher(url, nil, logger)
	require.NoError(t, err)
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := pub.js.Stream(ctx, StreamName)
	require.NoError(t, err)
	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{StreamSubjects}, info.Config.Subjects)
	assert.Equal(t, StreamRetention, info.Config.MaxAge)

	require.NoError(t, pub.PublishSubmission(ctx, &SubmissionEvent{
		Kind:          KindTransfer,
		WalletAddress: testWallet,
		Signature:     "sig-1",
	}))

	info, err = stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs)

	// A second publisher reuses the existing stream.
	again, err := NewPublisher(url, nil, logger)
	require.NoError(t, err)
	defer again.Close()

	info, err = stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs)
}

func TestJetStreamSubscriber_DeliversNewEventsForWallet(t *testing.T) {
	url := runJetStream(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pub, err := NewPublisher(url, nil, logger)
	require.NoError(t, err)
	defer pub.Close()

	sub, err := NewSubscriber(url, logger)
	require.NoError(t, err)
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Published before the subscription exists, so never delivered.
	require.NoError(t, pub.PublishSubmission(ctx, &SubmissionEvent{
		Kind:          KindCreateMint,
		WalletAddress: testWallet,
		Signature:     "before",
	}))

	subCtx, stop := context.WithCancel(ctx)
	events, err := sub.Subscribe(subCtx, testWallet)
	require.NoError(t, err)

	require.NoError(t, pub.PublishSubmission(ctx, &SubmissionEvent{
		Kind:          KindTransfer,
		WalletAddress: otherWallet,
		Signature:     "other-wallet",
	}))
	require.NoError(t, pub.PublishSubmission(ctx, &SubmissionEvent{
		Kind:          KindMintTo,
		WalletAddress: testWallet,
		Signature:     "after",
		Amount:        5,
	}))

	select {
	case event := <-events:
		require.NotNil(t, event)
		assert.Equal(t, "after", event.Signature)
		assert.Equal(t, KindMintTo, event.Kind)
		assert.Equal(t, uint64(5), event.Amount)
	case <-ctx.Done():
		t.Fatal("timed out waiting for submission event")
	}

	stop()
	for event := range events {
		t.Fatalf("unexpected event after cancel: %+v", event)
	}
}
