package domain

import "time"

// SweepStatus is the outcome of a forward.
type SweepStatus string

const (
	SweepSucceeded SweepStatus = "succeeded"
	SweepFailed    SweepStatus = "failed"
)

// SweepRecord is one forward attempt in the sweep ledger.
// Corresponds to sweeps table in ClickHouse.
type SweepRecord struct {
	ID          string      // uuid
	Owner       string      // owner notified of the outcome
	Account     string      // source public key
	Destination string      // destination public key
	Observed    uint64      // balance that triggered the forward (lamports)
	Amount      uint64      // amount sent, observed minus fee (lamports)
	Signature   string      // empty when nothing was submitted
	Status      SweepStatus // succeeded | failed
	Reason      string      // failure reason, empty on success
	LatencyMs   int64       // detection to confirmation
	CreatedAt   time.Time
}
