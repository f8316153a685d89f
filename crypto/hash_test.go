package crypto

import (
	"hash"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestHashFactory_New(t *testing.T) {
	require.Equal(t, 32, NewBlake3Factory().New().Size())
	require.Equal(t, 32, NewHashFactory(Sha256).New().Size())
	require.Equal(t, 32, NewHashFactory(Sha3_256).New().Size())

	require.Panics(t, func() { NewHashFactory(HashAlgorithm(99)).New() })
}

func TestHashAlgorithm_String(t *testing.T) {
	require.Equal(t, "blake3", Blake3.String())
	require.Equal(t, "sha256", Sha256.String())
	require.Equal(t, "sha3-256", Sha3_256.String())
	require.Equal(t, "unknown", HashAlgorithm(42).String())
}

func TestParseHashAlgorithm(t *testing.T) {
	for _, a := range []HashAlgorithm{Blake3, Sha256, Sha3_256} {
		parsed, err := ParseHashAlgorithm(a.String())
		require.NoError(t, err)
		require.Equal(t, a, parsed)
	}

	_, err := ParseHashAlgorithm("md5")
	require.EqualError(t, err, "unknown hash algorithm 'md5'")
}

func TestDigest(t *testing.T) {
	fac := NewBlake3Factory()

	first, err := Digest(fac, fakeFingerprinter{data: []byte("ping")})
	require.NoError(t, err)
	require.Len(t, first, 32)

	second, err := Digest(fac, fakeFingerprinter{data: []byte("ping")})
	require.NoError(t, err)
	require.Equal(t, first, second)

	other, err := Digest(fac, fakeFingerprinter{data: []byte("pong")})
	require.NoError(t, err)
	require.NotEqual(t, first, other)

	_, err = Digest(fac, fakeFingerprinter{err: xerrors.New("oops")})
	require.EqualError(t, err, "oops")
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeFingerprinter struct {
	data []byte
	err  error
}

func (f fakeFingerprinter) Fingerprint(w hash.Hash) error {
	if f.err != nil {
		return f.err
	}

	_, err := w.Write(f.data)
	return err
}
