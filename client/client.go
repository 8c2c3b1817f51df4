package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Session is the connection state reported by the server.
type Session struct {
	Connected bool   `json:"connected"`
	Wallet    string `json:"wallet,omitempty"`
	Network   string `json:"network"`
}

// Status is the on-chain status of a submitted transaction.
type Status struct {
	Slot               uint64  `json:"slot"`
	ConfirmationStatus string  `json:"confirmation_status"`
	Err                *string `json:"err,omitempty"`
}

// Submission is the outcome of a submitted transaction.
type Submission struct {
	Signature            string  `json:"signature"`
	Blockhash            string  `json:"blockhash"`
	LastValidBlockHeight uint64  `json:"last_valid_block_height"`
	FeePayer             string  `json:"fee_payer"`
	ConfirmationStatus   string  `json:"confirmation_status"`
	Status               *Status `json:"status,omitempty"`
	Mint                 string  `json:"mint,omitempty"`
	Metadata             string  `json:"metadata,omitempty"`
	TokenAccount         string  `json:"token_account,omitempty"`
}

// SubmissionEvent is a submission streamed from the server. Signature is
// empty when the transaction never reached the wallet.
type SubmissionEvent struct {
	Kind                 string    `json:"kind"`
	WalletAddress        string    `json:"wallet_address"`
	Network              string    `json:"network"`
	Signature            string    `json:"signature,omitempty"`
	Blockhash            string    `json:"blockhash,omitempty"`
	LastValidBlockHeight uint64    `json:"last_valid_block_height,omitempty"`
	ConfirmationStatus   string    `json:"confirmation_status"`
	Slot                 uint64    `json:"slot,omitempty"`
	Mint                 string    `json:"mint,omitempty"`
	Metadata             string    `json:"metadata,omitempty"`
	TokenAccount         string    `json:"token_account,omitempty"`
	Receiver             string    `json:"receiver,omitempty"`
	Amount               uint64    `json:"amount,omitempty"`
	Error                string    `json:"error,omitempty"`
	ErrorKind            string    `json:"error_kind,omitempty"`
	PublishedAt          time.Time `json:"published_at"`
}

// APIError is a failed request. Kind is the error kind reported by the server
// (connection, validation, signing, rpc, program, unknown). Result is set when
// the transaction reached the chain before failing.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
	Result     *Submission
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("request failed (%s): %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("request failed: %s", e.Message)
}

// KindOf returns the server-reported kind of err, or "" when err is not an
// APIError.
func KindOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// Client is the HTTP client for the token service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new token service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		// wallet approval can hold a request open for a while
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Session returns the server's wallet connection state.
func (c *Client) Session(ctx context.Context) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodGet, "/api/v1/session", nil, http.StatusOK, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Connect asks the server to connect its wallet.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, "/api/v1/connect", nil, http.StatusOK, &s); err != nil {
		return nil, err
	}
	c.logger.Debug("wallet connected", "wallet", s.Wallet, "network", s.Network)
	return &s, nil
}

// CreateToken creates a new mint with metadata owned by the connected wallet.
func (c *Client) CreateToken(ctx context.Context) (*Submission, error) {
	var sub Submission
	if err := c.do(ctx, http.MethodPost, "/api/v1/tokens", nil, http.StatusCreated, &sub); err != nil {
		return nil, err
	}
	c.logger.Debug("token created", "mint", sub.Mint, "signature", sub.Signature)
	return &sub, nil
}

// MintTokens mints amount whole tokens of mint into the connected wallet's
// associated token account.
func (c *Client) MintTokens(ctx context.Context, mint string, amount uint64) (*Submission, error) {
	path := fmt.Sprintf("/api/v1/tokens/%s/mint", url.PathEscape(mint))
	body := map[string]interface{}{"amount": amount}

	var sub Submission
	if err := c.do(ctx, http.MethodPost, path, body, http.StatusOK, &sub); err != nil {
		return nil, err
	}
	c.logger.Debug("tokens minted", "mint", mint, "amount", amount, "signature", sub.Signature)
	return &sub, nil
}

// Transfer sends amount SOL to receiver. An empty receiver or zero amount
// falls back to the server's configured defaults.
func (c *Client) Transfer(ctx context.Context, receiver string, amount uint64) (*Submission, error) {
	var body map[string]interface{}
	if receiver != "" || amount != 0 {
		body = map[string]interface{}{}
		if receiver != "" {
			body["receiver"] = receiver
		}
		if amount != 0 {
			body["amount"] = amount
		}
	}

	var sub Submission
	if err := c.do(ctx, http.MethodPost, "/api/v1/transfers", body, http.StatusOK, &sub); err != nil {
		return nil, err
	}
	c.logger.Debug("transfer submitted", "receiver", receiver, "amount", amount, "signature", sub.Signature)
	return &sub, nil
}

// Health returns nil when the server reports healthy.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Watch streams submission events until ctx is cancelled or the server closes
// the stream. An empty wallet streams every submission. fn is called for each
// event; returning an error stops the stream and Watch returns that error.
func (c *Client) Watch(ctx context.Context, wallet string, fn func(*SubmissionEvent) error) error {
	u := c.baseURL + "/api/v1/stream/submissions"
	if wallet != "" {
		u += "?wallet=" + url.QueryEscape(wallet)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// No timeout for streaming; ctx ends it.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var eventType, data string

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line terminates an event
		if line == "" {
			if eventType == "submission" && data != "" {
				var event SubmissionEvent
				if err := json.Unmarshal([]byte(data), &event); err != nil {
					c.logger.Warn("failed to decode submission event", "error", err)
				} else if err := fn(&event); err != nil {
					return err
				}
			} else if eventType == "connected" {
				c.logger.Debug("stream connected", "data", data)
			}
			eventType, data = "", ""
			continue
		}

		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("error reading stream: %w", err)
	}
	return nil
}

// do sends a JSON request and decodes the JSON response into out when the
// status matches want.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, want int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return c.parseErrorResponse(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error  string      `json:"error"`
		Kind   string      `json:"kind"`
		Result *Submission `json:"result"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Kind:       errResp.Kind,
		Message:    errResp.Error,
		Result:     errResp.Result,
	}
}
