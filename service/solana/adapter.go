package solana

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/brojonat/tokensmith/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// realRPCClient adapts the actual solana-go RPC client to our RPCClient interface.
// This adapter allows us to control the interface and makes testing easier.
type realRPCClient struct {
	client   *rpc.Client
	endpoint string // label for metrics (e.g., "mainnet", "devnet")
	metrics  *metrics.Metrics
}

// NewRPCClient creates a new RPCClient that wraps the solana-go RPC client.
// For premium RPC endpoints that require API keys, include the key in the URL:
// - Helius: https://mainnet.helius-rpc.com/?api-key=YOUR-KEY
// - QuickNode: https://YOUR-ENDPOINT.quiknode.pro/YOUR-KEY/
// If metrics is nil, no metrics will be recorded.
func NewRPCClient(rpcURL, endpoint string, m *metrics.Metrics) RPCClient {
	return &realRPCClient{
		client:   rpc.New(rpcURL),
		endpoint: endpoint,
		metrics:  m,
	}
}

// SelectRandomEndpoint picks one RPC URL from the configured list so load is
// spread across providers.
func SelectRandomEndpoint(endpoints []string) (string, error) {
	if len(endpoints) == 0 {
		return "", fmt.Errorf("no RPC endpoints configured")
	}
	return endpoints[rand.IntN(len(endpoints))], nil
}

func (r *realRPCClient) record(method string, start time.Time, err error) {
	status := "success"
	switch {
	case errors.Is(err, rpc.ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	r.metrics.RecordRPCCall(method, status, r.endpoint, time.Since(start).Seconds())
}

func (r *realRPCClient) GetLatestBlockhash(
	ctx context.Context,
	commitment rpc.CommitmentType,
) (out *rpc.GetLatestBlockhashResult, err error) {
	defer func(start time.Time) { r.record("GetLatestBlockhash", start, err) }(time.Now())
	return r.client.GetLatestBlockhash(ctx, commitment)
}

func (r *realRPCClient) GetAccountInfo(
	ctx context.Context,
	account solana.PublicKey,
) (out *rpc.GetAccountInfoResult, err error) {
	defer func(start time.Time) { r.record("GetAccountInfo", start, err) }(time.Now())
	return r.client.GetAccountInfo(ctx, account)
}

func (r *realRPCClient) GetMinimumBalanceForRentExemption(
	ctx context.Context,
	dataSize uint64,
	commitment rpc.CommitmentType,
) (lamports uint64, err error) {
	defer func(start time.Time) { r.record("GetMinimumBalanceForRentExemption", start, err) }(time.Now())
	return r.client.GetMinimumBalanceForRentExemption(ctx, dataSize, commitment)
}

func (r *realRPCClient) GetSignatureStatuses(
	ctx context.Context,
	searchTransactionHistory bool,
	signatures ...solana.Signature,
) (out *rpc.GetSignatureStatusesResult, err error) {
	defer func(start time.Time) { r.record("GetSignatureStatuses", start, err) }(time.Now())
	return r.client.GetSignatureStatuses(ctx, searchTransactionHistory, signatures...)
}

func (r *realRPCClient) SendTransaction(
	ctx context.Context,
	tx *solana.Transaction,
) (sig solana.Signature, err error) {
	defer func(start time.Time) { r.record("SendTransaction", start, err) }(time.Now())
	return r.client.SendTransaction(ctx, tx)
}
