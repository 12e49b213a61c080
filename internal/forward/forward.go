// Package forward sweeps an account's balance to the destination.
package forward

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"solana-sweeper/internal/keys"
	"solana-sweeper/internal/observability"
	"solana-sweeper/internal/solana"
)

// Defaults.
const (
	DefaultDestination    = "282RaYXcDsxJhNMDiG3ZPHRUM4MFX1aVPQ3dYKxDPg7b"
	DefaultFee            = 5000
	DefaultSubmitAttempts = 3
	DefaultRetryDelay     = 500 * time.Millisecond
	DefaultConfirmTimeout = 60 * time.Second
	DefaultPollInterval   = time.Second
)

// Config contains forwarding parameters.
type Config struct {
	Destination    string        // base58 destination account
	Fee            uint64        // lamports withheld for the transaction fee
	SubmitAttempts int           // sendTransaction calls before giving up
	RetryDelay     time.Duration // pause between submissions
	ConfirmTimeout time.Duration // bound on confirmation polling
	PollInterval   time.Duration // getSignatureStatuses cadence
}

// DefaultConfig returns the default forwarding configuration.
func DefaultConfig() Config {
	return Config{
		Destination:    DefaultDestination,
		Fee:            DefaultFee,
		SubmitAttempts: DefaultSubmitAttempts,
		RetryDelay:     DefaultRetryDelay,
		ConfirmTimeout: DefaultConfirmTimeout,
		PollInterval:   DefaultPollInterval,
	}
}

// Result describes a confirmed forward.
type Result struct {
	Signature string
	Observed  uint64 // balance that triggered the forward
	Amount    uint64 // lamports sent
	Slot      int64  // slot of confirmation
	Latency   time.Duration
}

// Forwarder executes sweeps. A Forwarder has no per-account state and is
// safe for concurrent use.
type Forwarder struct {
	cfg    Config
	dest   solanago.PublicKey
	logger *log.Logger
}

// New creates a Forwarder. Zero config fields take their defaults.
func New(cfg Config, logger *log.Logger) (*Forwarder, error) {
	def := DefaultConfig()
	if cfg.Destination == "" {
		cfg.Destination = def.Destination
	}
	if cfg.Fee == 0 {
		cfg.Fee = def.Fee
	}
	if cfg.SubmitAttempts <= 0 {
		cfg.SubmitAttempts = def.SubmitAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = def.ConfirmTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}

	dest, err := solanago.PublicKeyFromBase58(cfg.Destination)
	if err != nil {
		return nil, fmt.Errorf("invalid destination %q: %w", cfg.Destination, err)
	}

	if logger == nil {
		logger = log.Default()
	}

	return &Forwarder{cfg: cfg, dest: dest, logger: logger}, nil
}

// Destination returns the base58 destination account.
func (f *Forwarder) Destination() string {
	return f.dest.String()
}

// Fee returns the lamports withheld from every sweep.
func (f *Forwarder) Fee() uint64 {
	return f.cfg.Fee
}

// Forward sends observed minus the fee from the credential's account to the
// destination and waits for confirmation. Every failure is a *Failure.
// The caller must not retry a failed forward.
func (f *Forwarder) Forward(ctx context.Context, rpc solana.RPCClient, cred keys.Credential, observed uint64) (*Result, error) {
	start := time.Now()
	short := keys.ShortKey(cred.PublicKey, 4, 3)

	if observed <= f.cfg.Fee {
		f.logger.Printf("%s: amount too small after fees (%d lamports)", short, observed)
		return nil, &Failure{Reason: ReasonAmountTooSmall}
	}
	amount := observed - f.cfg.Fee

	bh, err := rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, &Failure{Reason: ReasonCheckpointUnavailable, Err: err}
	}

	transfer, err := BuildTransfer(cred, f.dest, amount, bh.Hash)
	if err != nil {
		return nil, &Failure{Reason: ReasonSubmissionRejected, Err: err}
	}

	sig, err := f.submit(ctx, rpc, transfer.Encoded)
	if err != nil {
		return nil, &Failure{Reason: ReasonSubmissionRejected, Err: err}
	}

	slot, err := f.confirm(ctx, rpc, sig)
	if err != nil {
		return nil, err
	}

	return &Result{
		Signature: sig,
		Observed:  observed,
		Amount:    amount,
		Slot:      slot,
		Latency:   time.Since(start),
	}, nil
}

// submit sends the transaction up to SubmitAttempts times.
func (f *Forwarder) submit(ctx context.Context, rpc solana.RPCClient, encoded string) (string, error) {
	opts := &solana.SendOpts{
		SkipPreflight:       false,
		PreflightCommitment: solana.CommitmentConfirmed,
		MaxRetries:          3,
	}

	var lastErr error
	for attempt := 1; attempt <= f.cfg.SubmitAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(f.cfg.RetryDelay):
			}
		}

		observability.RecordSubmission()
		sig, err := rpc.SendTransaction(ctx, encoded, opts)
		if err == nil {
			return sig, nil
		}
		lastErr = err
		f.logger.Printf("submit attempt %d/%d failed: %v", attempt, f.cfg.SubmitAttempts, err)

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
	}

	return "", fmt.Errorf("after %d attempts: %w", f.cfg.SubmitAttempts, lastErr)
}

// confirm polls the signature status until confirmed, failed or timed out.
func (f *Forwarder) confirm(ctx context.Context, rpc solana.RPCClient, sig string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	for {
		statuses, err := rpc.GetSignatureStatuses(ctx, []string{sig})
		switch {
		case err != nil:
			f.logger.Printf("status poll for %s: %v", sig, err)
		case len(statuses) == 1 && statuses[0] != nil:
			st := statuses[0]
			if st.Err != nil {
				return 0, &Failure{
					Reason:    ReasonSubmissionRejected,
					Signature: sig,
					Err:       fmt.Errorf("transaction failed: %v", st.Err),
				}
			}
			if st.Confirmed() {
				return st.Slot, nil
			}
		}

		select {
		case <-ctx.Done():
			return 0, &Failure{Reason: ReasonConfirmationTimeout, Signature: sig, Err: ctx.Err()}
		case <-ticker.C:
		}
	}
}
