package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func rpcServer(t *testing.T, method string, result interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}

		if req.Method != method {
			t.Errorf("expected method %s, got %s", method, req.Method)
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  result,
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestHTTPClient_GetLatestBlockhash(t *testing.T) {
	server := rpcServer(t, "getLatestBlockhash", map[string]interface{}{
		"context": map[string]interface{}{"slot": int64(2792)},
		"value": map[string]interface{}{
			"blockhash":            "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N",
			"lastValidBlockHeight": uint64(3090),
		},
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)

	bh, err := client.GetLatestBlockhash(context.Background())
	if err != nil {
		t.Fatalf("GetLatestBlockhash: %v", err)
	}

	if bh.Hash != "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N" {
		t.Errorf("unexpected blockhash: %s", bh.Hash)
	}

	if bh.LastValidBlockHeight != 3090 {
		t.Errorf("expected lastValidBlockHeight 3090, got %d", bh.LastValidBlockHeight)
	}

	if bh.Slot != 2792 {
		t.Errorf("expected slot 2792, got %d", bh.Slot)
	}
}

func TestHTTPClient_GetLatestBlockhash_Empty(t *testing.T) {
	server := rpcServer(t, "getLatestBlockhash", map[string]interface{}{
		"context": map[string]interface{}{"slot": int64(1)},
		"value":   nil,
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)

	if _, err := client.GetLatestBlockhash(context.Background()); err == nil {
		t.Fatal("expected error for empty blockhash")
	}
}

func TestHTTPClient_SendTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}

		if req.Method != "sendTransaction" {
			t.Errorf("expected method sendTransaction, got %s", req.Method)
		}
		if len(req.Params) != 2 {
			t.Errorf("expected 2 params, got %d", len(req.Params))
			return
		}

		var encoded string
		json.Unmarshal(req.Params[0], &encoded)
		if encoded != "AQID" {
			t.Errorf("unexpected payload: %s", encoded)
		}

		var cfg map[string]interface{}
		json.Unmarshal(req.Params[1], &cfg)
		if cfg["encoding"] != "base64" {
			t.Errorf("expected base64 encoding, got %v", cfg["encoding"])
		}
		if cfg["skipPreflight"] != false {
			t.Errorf("expected skipPreflight false, got %v", cfg["skipPreflight"])
		}
		if cfg["maxRetries"] != float64(3) {
			t.Errorf("expected maxRetries 3, got %v", cfg["maxRetries"])
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)

	sig, err := client.SendTransaction(context.Background(), "AQID", &SendOpts{
		SkipPreflight:       false,
		PreflightCommitment: CommitmentConfirmed,
		MaxRetries:          3,
	})
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}

	if sig != "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW" {
		t.Errorf("unexpected signature: %s", sig)
	}
}

func TestHTTPClient_GetSignatureStatuses(t *testing.T) {
	server := rpcServer(t, "getSignatureStatuses", map[string]interface{}{
		"context": map[string]interface{}{"slot": int64(82)},
		"value": []interface{}{
			map[string]interface{}{
				"slot":               int64(72),
				"confirmations":      uint64(10),
				"err":                nil,
				"confirmationStatus": "confirmed",
			},
			nil,
		},
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)

	statuses, err := client.GetSignatureStatuses(context.Background(), []string{"sig1", "sig2"})
	if err != nil {
		t.Fatalf("GetSignatureStatuses: %v", err)
	}

	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}

	if !statuses[0].Confirmed() {
		t.Errorf("expected first status confirmed, got %+v", statuses[0])
	}
	if statuses[0].Slot != 72 {
		t.Errorf("expected slot 72, got %d", statuses[0].Slot)
	}

	if statuses[1] != nil {
		t.Errorf("expected nil for unknown signature, got %+v", statuses[1])
	}
	if statuses[1].Confirmed() {
		t.Error("nil status must not be confirmed")
	}
}

func TestHTTPClient_Retry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := attempts.Add(1)
		if count < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]interface{}{
				"context": map[string]interface{}{"slot": int64(1)},
				"value": map[string]interface{}{
					"blockhash":            "retried",
					"lastValidBlockHeight": uint64(999),
				},
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(3),
		WithRetryDelay(10*time.Millisecond),
	)

	bh, err := client.GetLatestBlockhash(context.Background())
	if err != nil {
		t.Fatalf("GetLatestBlockhash: %v", err)
	}

	if bh.Hash != "retried" || bh.LastValidBlockHeight != 999 {
		t.Errorf("unexpected blockhash: %+v", bh)
	}

	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestHTTPClient_RPCError(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)

		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error": map[string]interface{}{
				"code":    -32002,
				"message": "Transaction simulation failed",
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(time.Millisecond))

	_, err := client.SendTransaction(context.Background(), "AQID", nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %T", err)
	}

	if rpcErr.Code != -32002 {
		t.Errorf("expected code -32002, got %d", rpcErr.Code)
	}

	if attempts.Load() != 1 {
		t.Errorf("RPC errors must not be retried, got %d attempts", attempts.Load())
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	_, err := client.GetLatestBlockhash(ctx)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestNewHTTPClient_ConvertsStreamingURL(t *testing.T) {
	client := NewHTTPClient("wss://api.mainnet-beta.solana.com")
	if client.Endpoint() != "https://api.mainnet-beta.solana.com" {
		t.Errorf("unexpected endpoint: %s", client.Endpoint())
	}
}

func TestEndpointConversion(t *testing.T) {
	tests := []struct {
		in       string
		wantHTTP string
		wantWS   string
	}{
		{"https://rpc.example.com", "https://rpc.example.com", "wss://rpc.example.com"},
		{"http://127.0.0.1:8899", "http://127.0.0.1:8899", "ws://127.0.0.1:8899"},
		{"wss://rpc.example.com/key", "https://rpc.example.com/key", "wss://rpc.example.com/key"},
		{"ws://localhost:8900", "http://localhost:8900", "ws://localhost:8900"},
		{"  https://padded.example.com ", "https://padded.example.com", "wss://padded.example.com"},
	}

	for _, tt := range tests {
		if got := HTTPEndpoint(tt.in); got != tt.wantHTTP {
			t.Errorf("HTTPEndpoint(%q) = %q, want %q", tt.in, got, tt.wantHTTP)
		}
		if got := WSEndpoint(tt.in); got != tt.wantWS {
			t.Errorf("WSEndpoint(%q) = %q, want %q", tt.in, got, tt.wantWS)
		}
	}
}

func TestHTTPClient_ClientErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(time.Millisecond))

	_, err := client.GetLatestBlockhash(context.Background())
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusForbidden || se.Temporary() {
		t.Errorf("unexpected status error: %+v", se)
	}
	if attempts.Load() != 1 {
		t.Errorf("4xx must not be retried, got %d attempts", attempts.Load())
	}
}

func TestHTTPClient_ServerErrorExhaustsRetries(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(2),
		WithRetryDelay(time.Millisecond),
		WithMaxDelay(2*time.Millisecond),
	)

	if _, err := client.GetLatestBlockhash(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("2"); got != 2*time.Second {
		t.Errorf("expected 2s, got %v", got)
	}
	for _, v := range []string{"", "0", "-1", "Wed, 21 Oct 2015 07:28:00 GMT"} {
		if got := parseRetryAfter(v); got != 0 {
			t.Errorf("parseRetryAfter(%q) = %v, want 0", v, got)
		}
	}
}
