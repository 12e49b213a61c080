// Package keystest generates deterministic credentials for tests.
package keystest

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"solana-sweeper/internal/keys"
)

// Generate returns n distinct credentials derived from label.
// Keys whose encoded form the line filter would discard are skipped,
// so every returned credential survives keys.Filter.
func Generate(label string, n int) []keys.Credential {
	out := make([]keys.Credential, 0, n)
	for i := uint64(0); len(out) < n; i++ {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], i)
		seed := sha256.Sum256(append([]byte(label), buf[:]...))

		c, err := keys.FromSeed(seed[:])
		if err != nil {
			panic(fmt.Sprintf("keystest: %v", err))
		}
		if len(keys.Filter(c.Encoded).Valid) != 1 {
			continue
		}
		out = append(out, c)
	}
	return out
}

// One returns a single credential derived from label.
func One(label string) keys.Credential {
	return Generate(label, 1)[0]
}

// Lines returns the encoded forms of creds, one per element.
func Lines(creds []keys.Credential) []string {
	out := make([]string, len(creds))
	for i, c := range creds {
		out[i] = c.Encoded
	}
	return out
}
