// Package monitor watches registered accounts for deposits and sweeps them.
//
// Every account gets its own subscription goroutine, so events of one
// account are handled strictly in order while accounts proceed
// concurrently. The baseline of a freshly started account is zero: a
// pre-existing balance is reported and swept on the first event rather
// than risk missing a deposit.
package monitor

// IsDeposit reports whether an observed balance is an incoming deposit
// relative to the last known balance.
func IsDeposit(last, observed uint64) bool {
	return observed > last && observed > 0
}
