package forward

import (
	"errors"
	"fmt"
)

// Reason classifies why a forward did not complete.
type Reason string

const (
	// ReasonAmountTooSmall means the observed balance does not cover the fee.
	ReasonAmountTooSmall Reason = "amount_too_small"
	// ReasonCheckpointUnavailable means no recent blockhash could be fetched.
	ReasonCheckpointUnavailable Reason = "checkpoint_unavailable"
	// ReasonSubmissionRejected means the node refused the transaction or it failed on chain.
	ReasonSubmissionRejected Reason = "submission_rejected"
	// ReasonConfirmationTimeout means the transaction was not confirmed in time.
	ReasonConfirmationTimeout Reason = "confirmation_timeout"
)

// Failure is returned by Forward for every unsuccessful attempt.
type Failure struct {
	Reason Reason
	// Signature is set once a transaction was accepted by the node.
	Signature string
	Err       error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("forward failed: %s", f.Reason)
	}
	return fmt.Sprintf("forward failed: %s: %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// ReasonOf returns the failure reason carried by err, or "" when err is not a *Failure.
func ReasonOf(err error) Reason {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ""
}
