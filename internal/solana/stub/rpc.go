package stub

import (
	"context"
	"fmt"
	"sync"

	"solana-sweeper/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	mu sync.Mutex

	Blockhash *solana.Blockhash
	// Statuses overrides the status reported for a signature.
	// Signatures without an entry are reported as confirmed.
	Statuses map[string]*solana.SignatureStatus

	BlockhashErr error
	// SendErrs are returned by successive SendTransaction calls.
	SendErrs []error

	Sent      []string
	sendCalls int
}

// Compile-time interface check.
var _ solana.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Blockhash: &solana.Blockhash{
			Hash:                 "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N",
			LastValidBlockHeight: 1000,
			Slot:                 1,
		},
		Statuses: make(map[string]*solana.SignatureStatus),
	}
}

// GetLatestBlockhash returns the configured blockhash or BlockhashErr.
func (c *RPCClient) GetLatestBlockhash(_ context.Context) (*solana.Blockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.BlockhashErr != nil {
		return nil, c.BlockhashErr
	}
	bh := *c.Blockhash
	return &bh, nil
}

// SendTransaction records the payload and returns a generated signature.
func (c *RPCClient) SendTransaction(_ context.Context, encodedTx string, _ *solana.SendOpts) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	call := c.sendCalls
	c.sendCalls++
	if call < len(c.SendErrs) && c.SendErrs[call] != nil {
		return "", c.SendErrs[call]
	}

	c.Sent = append(c.Sent, encodedTx)
	return fmt.Sprintf("sig-%d", len(c.Sent)), nil
}

// GetSignatureStatuses reports Statuses entries, confirmed by default.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		if st, ok := c.Statuses[sig]; ok {
			out[i] = st
			continue
		}
		out[i] = &solana.SignatureStatus{Slot: 2, ConfirmationStatus: solana.CommitmentConfirmed}
	}
	return out, nil
}

// SetStatus overrides the status of a signature. A nil status means unknown.
func (c *RPCClient) SetStatus(signature string, status *solana.SignatureStatus) {
	c.mu.Lock()
	c.Statuses[signature] = status
	c.mu.Unlock()
}

// SentCount returns the number of accepted submissions.
func (c *RPCClient) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}

// SendCalls returns the number of SendTransaction calls, failed ones included.
func (c *RPCClient) SendCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendCalls
}
