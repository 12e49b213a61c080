package domain

import "time"

// Session is the owner-scoped unit of persistence.
// Corresponds to monitoring_sessions table.
type Session struct {
	Owner        string     // owner identifier, unique
	StartedAt    time.Time  // last (re)registration time
	StoppedAt    *time.Time // NULL while monitoring is open
	AccountCount int        // declared number of monitored accounts
}

// Open reports whether the session has not been stopped.
func (s *Session) Open() bool {
	return s != nil && s.StoppedAt == nil
}

// CredentialRecord is one persisted credential.
// Corresponds to wallets table.
type CredentialRecord struct {
	Secret    string    // base58 keypair, unique
	PublicKey string    // derived identity
	Owner     string    // owning session
	Position  int       // registration order within the owner
	Active    bool      // false once stopped or replaced
	CreatedAt time.Time // first time the credential was stored
}

// AccountStats summarizes the persisted credentials of an owner.
type AccountStats struct {
	Total        int
	Active       int
	FirstAddedAt *time.Time // NULL when the owner has no records
}
