package registry

import (
	"sync"
	"time"

	"solana-sweeper/internal/keys"
	"solana-sweeper/internal/pool"
)

// Account is one monitored wallet.
type Account struct {
	Owner      string
	Credential keys.Credential
	Endpoint   *pool.Endpoint
	AddedAt    time.Time

	mu          sync.Mutex
	lastBalance uint64
	retired     bool
}

// PublicKey returns the derived identity of the account.
func (a *Account) PublicKey() string {
	return a.Credential.PublicKey
}

// LastBalance returns the baseline for the next deposit check.
func (a *Account) LastBalance() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastBalance
}

// SetLastBalance stores the most recently observed balance.
func (a *Account) SetLastBalance(lamports uint64) {
	a.mu.Lock()
	a.lastBalance = lamports
	a.mu.Unlock()
}

// Retired reports whether the account was retired by endpoint health.
func (a *Account) Retired() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.retired
}

// SetRetired flags the account as retired. It reports whether the flag changed.
func (a *Account) SetRetired(retired bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	changed := a.retired != retired
	a.retired = retired
	return changed
}
