package keys

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/joshmarinacci/hiero-consensus-node-sub002/core/store/kv"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/history/types"
)

func TestAccessor_GetOrCreateSchnorrKeyPair(t *testing.T) {
	db, err := kv.New(filepath.Join(t.TempDir(), "keys.db"))
	require.NoError(t, err)

	defer db.Close()

	gen := &fakeGenerator{}
	accessor := NewAccessor(db, gen)

	first, err := accessor.GetOrCreateSchnorrKeyPair(1)
	require.NoError(t, err)
	require.Equal(t, []byte{1}, first.PublicKey)
	require.Equal(t, 1, gen.calls)

	again, err := accessor.GetOrCreateSchnorrKeyPair(1)
	require.NoError(t, err)
	require.Equal(t, first, again)

	next, err := accessor.GetOrCreateSchnorrKeyPair(2)
	require.NoError(t, err)
	require.Equal(t, first, next)
	require.Equal(t, 1, gen.calls)
}

func TestAccessor_GeneratorFailure(t *testing.T) {
	db, err := kv.New(filepath.Join(t.TempDir(), "keys.db"))
	require.NoError(t, err)

	defer db.Close()

	accessor := NewAccessor(db, &fakeGenerator{err: xerrors.New("oops")})

	_, err = accessor.GetOrCreateSchnorrKeyPair(1)
	require.EqualError(t, err, "couldn't get key pair: oops")
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeGenerator struct {
	calls int
	err   error
}

func (g *fakeGenerator) NewSchnorrKeyPair() (types.SchnorrKeyPair, error) {
	if g.err != nil {
		return types.SchnorrKeyPair{}, g.err
	}

	g.calls++

	return types.SchnorrKeyPair{
		PrivateKey: []byte{byte(g.calls), 0},
		PublicKey:  []byte{byte(g.calls)},
	}, nil
}
