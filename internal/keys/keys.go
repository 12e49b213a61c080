// Package keys parses and validates account credentials.
//
// A credential is a base58 encoded 64 byte keypair: a 32 byte seed followed
// by the 32 byte public key derived from it.
package keys

import (
	"bytes"
	"crypto/sha512"
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// KeypairSize is the decoded length of a credential.
const KeypairSize = 64

// Accepted encoded lengths of a credential.
const (
	MinEncodedLen = 64
	MaxEncodedLen = 88
)

// ErrMalformedCredential is returned for key material that is not a valid keypair.
var ErrMalformedCredential = errors.New("malformed credential")

// Credential is a validated keypair.
type Credential struct {
	// Encoded is the base58 form as supplied by the operator.
	Encoded string
	// PublicKey is the base58 derived identity.
	PublicKey string

	secret []byte
}

// SecretBytes returns a copy of the 64 byte keypair.
func (c Credential) SecretBytes() []byte {
	out := make([]byte, len(c.secret))
	copy(out, c.secret)
	return out
}

// Parse decodes and validates a single credential.
func Parse(s string) (Credential, error) {
	s = strings.TrimSpace(s)
	if len(s) < MinEncodedLen || len(s) > MaxEncodedLen {
		return Credential{}, fmt.Errorf("%w: encoded length %d", ErrMalformedCredential, len(s))
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}
	if len(raw) != KeypairSize {
		return Credential{}, fmt.Errorf("%w: decoded length %d", ErrMalformedCredential, len(raw))
	}

	pub, err := derivePublic(raw[:32])
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrMalformedCredential, err)
	}
	if !bytes.Equal(pub, raw[32:]) {
		return Credential{}, fmt.Errorf("%w: public half does not match seed", ErrMalformedCredential)
	}

	return Credential{
		Encoded:   s,
		PublicKey: base58.Encode(pub),
		secret:    raw,
	}, nil
}

// FromSeed builds a credential from a 32 byte ed25519 seed.
func FromSeed(seed []byte) (Credential, error) {
	if len(seed) != 32 {
		return Credential{}, fmt.Errorf("%w: seed length %d", ErrMalformedCredential, len(seed))
	}
	pub, err := derivePublic(seed)
	if err != nil {
		return Credential{}, err
	}
	raw := make([]byte, 0, KeypairSize)
	raw = append(raw, seed...)
	raw = append(raw, pub...)
	return Credential{
		Encoded:   base58.Encode(raw),
		PublicKey: base58.Encode(pub),
		secret:    raw,
	}, nil
}

// derivePublic computes the ed25519 public key for seed (RFC 8032 5.1.5).
func derivePublic(seed []byte) ([]byte, error) {
	h := sha512.Sum512(seed)
	s, err := edwards25519.NewScalar().SetBytesWithClamping(h[:32])
	if err != nil {
		return nil, err
	}
	return new(edwards25519.Point).ScalarBaseMult(s).Bytes(), nil
}

// ShortKey abbreviates a public key to its first head and last tail characters.
func ShortKey(pubkey string, head, tail int) string {
	if len(pubkey) <= head+tail {
		return pubkey
	}
	return pubkey[:head] + "..." + pubkey[len(pubkey)-tail:]
}
