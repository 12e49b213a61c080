package solana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"solana-sweeper/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0

	// maxErrorBody bounds how much of a failed response is kept in errors.
	maxErrorBody = 512
)

// HTTPClient implements RPCClient over HTTP JSON-RPC 2.0. Transport failures,
// 429 and 5xx answers are retried with exponential backoff; node errors and
// other 4xx answers are returned at once.
type HTTPClient struct {
	endpoint    string
	commitment  string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

var _ RPCClient = (*HTTPClient)(nil)

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.client.Timeout = d }
}

// WithMaxRetries sets how many times a retryable failure is retried.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) { c.maxRetries = n }
}

// WithRetryDelay sets the first backoff delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.retryDelay = d }
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) { c.maxDelay = d }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) { c.client = client }
}

// WithCommitment sets the commitment used for balance and blockhash reads.
func WithCommitment(commitment string) ClientOption {
	return func(c *HTTPClient) { c.commitment = commitment }
}

// NewHTTPClient creates a client for endpoint. Streaming URLs (ws://, wss://)
// are converted to their HTTP form.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    HTTPEndpoint(endpoint),
		commitment:  CommitmentConfirmed,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the HTTP endpoint the client talks to.
func (c *HTTPClient) Endpoint() string {
	return c.endpoint
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// StatusError is a non-200 HTTP answer.
type StatusError struct {
	StatusCode int
	Body       string
	retryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the node may answer differently on retry.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// call performs method, decoding the result into result when non-nil.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	start := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
	}()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	delay := c.retryDelay
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := delay
			var se *StatusError
			if errors.As(lastErr, &se) && se.retryAfter > 0 && se.retryAfter <= c.maxDelay {
				wait = se.retryAfter
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			delay = c.nextDelay(delay)
		}

		raw, err := c.post(ctx, body)
		if err == nil {
			if result == nil || len(raw) == 0 {
				return nil
			}
			if err := json.Unmarshal(raw, result); err != nil {
				return fmt.Errorf("unmarshal %s result: %w", method, err)
			}
			return nil
		}
		if !retryable(ctx, err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%s: max retries exceeded: %w", method, lastErr)
}

// post sends one request and returns the raw result.
func (c *HTTPClient) post(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       string(bytes.TrimSpace(data)),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(data, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

func (c *HTTPClient) nextDelay(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * c.backoffMult)
	if next > c.maxDelay {
		return c.maxDelay
	}
	return next
}

// retryable reports whether err came from the transport and not the node.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

type rpcContext struct {
	Slot int64 `json:"slot"`
}

// contextual is the {context, value} wrapper of most read results.
type contextual[T any] struct {
	Context rpcContext `json:"context"`
	Value   T          `json:"value"`
}

func (c *HTTPClient) readConfig() map[string]interface{} {
	return map[string]interface{}{"commitment": c.commitment}
}

// GetLatestBlockhash returns a recent blockhash to anchor a transaction.
func (c *HTTPClient) GetLatestBlockhash(ctx context.Context) (*Blockhash, error) {
	var res contextual[*struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	}]
	if err := c.call(ctx, "getLatestBlockhash", []interface{}{c.readConfig()}, &res); err != nil {
		return nil, err
	}
	if res.Value == nil || res.Value.Blockhash == "" {
		return nil, errors.New("empty blockhash in response")
	}
	return &Blockhash{
		Hash:                 res.Value.Blockhash,
		LastValidBlockHeight: res.Value.LastValidBlockHeight,
		Slot:                 res.Context.Slot,
	}, nil
}

// SendTransaction submits a base64 encoded, signed transaction.
func (c *HTTPClient) SendTransaction(ctx context.Context, encodedTx string, opts *SendOpts) (string, error) {
	cfg := map[string]interface{}{"encoding": "base64"}
	if opts != nil {
		cfg["skipPreflight"] = opts.SkipPreflight
		if opts.PreflightCommitment != "" {
			cfg["preflightCommitment"] = opts.PreflightCommitment
		}
		if opts.MaxRetries > 0 {
			cfg["maxRetries"] = opts.MaxRetries
		}
	}

	var signature string
	if err := c.call(ctx, "sendTransaction", []interface{}{encodedTx, cfg}, &signature); err != nil {
		return "", err
	}
	if signature == "" {
		return "", errors.New("empty signature in response")
	}
	return signature, nil
}

// GetSignatureStatuses returns statuses in the order of the given signatures.
// Unknown signatures yield nil entries.
func (c *HTTPClient) GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error) {
	params := []interface{}{
		signatures,
		map[string]interface{}{"searchTransactionHistory": false},
	}

	var res contextual[[]*struct {
		Slot               int64       `json:"slot"`
		Confirmations      *uint64     `json:"confirmations"`
		Err                interface{} `json:"err"`
		ConfirmationStatus string      `json:"confirmationStatus"`
	}]
	if err := c.call(ctx, "getSignatureStatuses", params, &res); err != nil {
		return nil, err
	}

	statuses := make([]*SignatureStatus, len(signatures))
	for i, v := range res.Value {
		if i >= len(statuses) {
			break
		}
		if v != nil {
			statuses[i] = &SignatureStatus{
				Slot:               v.Slot,
				Confirmations:      v.Confirmations,
				Err:                v.Err,
				ConfirmationStatus: v.ConfirmationStatus,
			}
		}
	}
	return statuses, nil
}
