package crypto

import (
	"crypto/sha256"
	"hash"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"
	"golang.org/x/xerrors"
)

// HashAlgorithm identifies one of the supported hash functions.
type HashAlgorithm int

const (
	// Blake3 is the default algorithm of the module.
	Blake3 HashAlgorithm = iota
	Sha256
	Sha3_256
)

// String implements fmt.Stringer.
func (a HashAlgorithm) String() string {
	switch a {
	case Blake3:
		return "blake3"
	case Sha256:
		return "sha256"
	case Sha3_256:
		return "sha3-256"
	default:
		return "unknown"
	}
}

// hashFactory is a hash factory for one of the supported algorithms.
//
// - implements crypto.HashFactory
type hashFactory struct {
	hashType HashAlgorithm
}

// NewHashFactory returns a new instance of the factory.
func NewHashFactory(a HashAlgorithm) HashFactory {
	return hashFactory{hashType: a}
}

// NewBlake3Factory returns a factory producing 256-bit blake3 hashes.
func NewBlake3Factory() HashFactory {
	return hashFactory{hashType: Blake3}
}

// New implements crypto.HashFactory. It returns a new Hash instance.
func (f hashFactory) New() hash.Hash {
	switch f.hashType {
	case Blake3:
		return blake3.New()
	case Sha256:
		return sha256.New()
	case Sha3_256:
		return sha3.New256()
	default:
		panic("unknown hash type")
	}
}

// ParseHashAlgorithm returns the algorithm of the textual representation
// returned by String.
func ParseHashAlgorithm(text string) (HashAlgorithm, error) {
	for _, a := range []HashAlgorithm{Blake3, Sha256, Sha3_256} {
		if a.String() == text {
			return a, nil
		}
	}

	return Blake3, xerrors.Errorf("unknown hash algorithm '%s'", text)
}
