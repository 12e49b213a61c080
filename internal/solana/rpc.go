package solana

import "context"

// RPCClient defines Solana RPC HTTP interface.
type RPCClient interface {
	// GetLatestBlockhash returns a recent blockhash to anchor a transaction.
	GetLatestBlockhash(ctx context.Context) (*Blockhash, error)

	// SendTransaction submits a base64 encoded, signed transaction and returns its signature.
	SendTransaction(ctx context.Context, encodedTx string, opts *SendOpts) (string, error)

	// GetSignatureStatuses returns statuses in the order of the given signatures.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)
}
