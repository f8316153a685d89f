// Package crypto defines the hashing primitives used to fingerprint rosters,
// address books and proofs.
//
// The signature scheme itself is not part of this package: the history
// package consumes it through its Library capability.
package crypto

import (
	"hash"
)

// HashFactory is an interface to produce a hash digest.
type HashFactory interface {
	New() hash.Hash
}

// Fingerprinter is implemented by the values that can write a canonical
// representation of themselves into a hash.
type Fingerprinter interface {
	Fingerprint(w hash.Hash) error
}

// Digest returns the digest of the fingerprinter using a fresh hash from the
// factory.
func Digest(fac HashFactory, f Fingerprinter) ([]byte, error) {
	h := fac.New()

	err := f.Fingerprint(h)
	if err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}
