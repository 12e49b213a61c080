package storage

import "errors"

var (
	// ErrNotFound reports a lookup that matched no record, such as
	// FindLastOpenSession with every session stopped.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey reports an Insert whose ID is already in the sweep ledger.
	ErrDuplicateKey = errors.New("duplicate sweep record")

	// ErrInvalidInput reports a record missing its owner, secret or public key.
	ErrInvalidInput = errors.New("invalid storage input")
)
