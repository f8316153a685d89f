package schnorr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshmarinacci/hiero-consensus-node-sub002/crypto"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/history/types"
)

func TestLibrary_SignAndVerify(t *testing.T) {
	lib := NewLibrary()

	kp, err := lib.NewSchnorrKeyPair()
	require.NoError(t, err)
	require.Len(t, kp.PublicKey, 32)
	require.Len(t, kp.PrivateKey, 32)

	sig, err := lib.SignSchnorr([]byte("message"), kp.PrivateKey)
	require.NoError(t, err)

	require.True(t, lib.VerifySchnorr(kp.PublicKey, []byte("message"), sig))
	require.False(t, lib.VerifySchnorr(kp.PublicKey, []byte("other"), sig))
	require.False(t, lib.VerifySchnorr([]byte("bad key"), []byte("message"), sig))

	other, err := lib.NewSchnorrKeyPair()
	require.NoError(t, err)
	require.False(t, lib.VerifySchnorr(other.PublicKey, []byte("message"), sig))

	_, err = lib.SignSchnorr([]byte("message"), []byte("short"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "couldn't unmarshal private key: ")
}

func TestLibrary_VerificationCache(t *testing.T) {
	lib := NewLibrary(WithVerificationCache(2))

	kp, err := lib.NewSchnorrKeyPair()
	require.NoError(t, err)

	sig, err := lib.SignSchnorr([]byte("message"), kp.PrivateKey)
	require.NoError(t, err)

	require.True(t, lib.VerifySchnorr(kp.PublicKey, []byte("message"), sig))
	require.Equal(t, 1, lib.CachedVerifications())

	// A copy of the library shares the cache.
	other := lib
	require.True(t, other.VerifySchnorr(kp.PublicKey, []byte("message"), sig))
	require.Equal(t, 1, lib.CachedVerifications())

	require.False(t, lib.VerifySchnorr(kp.PublicKey, []byte("other"), sig))
	require.Equal(t, 1, lib.CachedVerifications())

	for _, msg := range []string{"a", "b", "c"} {
		sig, err := lib.SignSchnorr([]byte(msg), kp.PrivateKey)
		require.NoError(t, err)
		require.True(t, lib.VerifySchnorr(kp.PublicKey, []byte(msg), sig))
	}

	require.Equal(t, 2, lib.CachedVerifications())

	require.Equal(t, 0, NewLibrary().CachedVerifications())
	require.Equal(t, 0, NewLibrary(WithVerificationCache(0)).CachedVerifications())
}

func TestLibrary_HashAddressBook(t *testing.T) {
	lib := NewLibrary()

	book := types.NewAddressBook(map[uint64]uint64{1: 10, 2: 20}, map[uint64][]byte{1: []byte("a")})

	first, err := lib.HashAddressBook(book)
	require.NoError(t, err)
	require.Len(t, first, 32)

	second, err := lib.HashAddressBook(book)
	require.NoError(t, err)
	require.Equal(t, first, second)

	other := types.NewAddressBook(map[uint64]uint64{1: 10, 2: 20}, map[uint64][]byte{2: []byte("a")})

	third, err := lib.HashAddressBook(other)
	require.NoError(t, err)
	require.NotEqual(t, first, third)

	sha := NewLibrary(WithHashFactory(crypto.NewHashFactory(crypto.Sha256)))

	fourth, err := sha.HashAddressBook(book)
	require.NoError(t, err)
	require.NotEqual(t, first, fourth)
}

func TestLibrary_HashHintsVerificationKey(t *testing.T) {
	lib := NewLibrary()

	first, err := lib.HashHintsVerificationKey([]byte("vk"))
	require.NoError(t, err)

	second, err := lib.HashHintsVerificationKey([]byte("vk"))
	require.NoError(t, err)
	require.Equal(t, first, second)

	third, err := lib.HashHintsVerificationKey([]byte("other"))
	require.NoError(t, err)
	require.NotEqual(t, first, third)
}

func TestLibrary_ListProof(t *testing.T) {
	lib := NewLibrary()
	net := makeNetwork(t, lib, 4)

	req := net.request(t, lib, 1, 2, 3)

	proof, err := lib.ProveChainOfTrust(req)
	require.NoError(t, err)
	require.Equal(t, types.ListProof, proof.Kind)

	again, err := lib.ProveChainOfTrust(req)
	require.NoError(t, err)
	require.Equal(t, proof, again)

	require.NoError(t, lib.VerifyChainOfTrust(req, proof))

	other := req
	other.TargetHistory = types.History{AddressBookHash: []byte("other")}
	err = lib.VerifyChainOfTrust(other, proof)
	require.EqualError(t, err, "invalid signatures: wrong signature of node 1")

	other = req
	other.SourceAddressBook = types.NewAddressBook(map[uint64]uint64{1: 1}, nil)
	err = lib.VerifyChainOfTrust(other, proof)
	require.EqualError(t, err, "source address book mismatch")

	proof.Data = proof.Data[:len(proof.Data)-1]
	err = lib.VerifyChainOfTrust(req, proof)
	require.Error(t, err)
	require.Contains(t, err.Error(), "couldn't decode signatures: ")
}

func TestLibrary_LedgerProof(t *testing.T) {
	lib := NewLibrary()
	net := makeNetwork(t, lib, 4)

	source := types.ChainOfTrustProof{Kind: types.ListProof, Data: []byte("genesis")}

	req := net.request(t, lib, 1, 2, 3, 4)
	req.LedgerID = []byte("ledger")
	req.SourceProof = &source

	proof, err := lib.ProveChainOfTrust(req)
	require.NoError(t, err)
	require.Equal(t, types.LedgerProof, proof.Kind)

	require.NoError(t, lib.VerifyChainOfTrust(req, proof))

	other := req
	other.LedgerID = []byte("another ledger")
	err = lib.VerifyChainOfTrust(other, proof)
	require.EqualError(t, err, "ledger id mismatch: 6c6564676572 != 616e6f74686572206c6564676572")

	other = req
	other.SourceProof = &types.ChainOfTrustProof{Kind: types.ListProof, Data: []byte("fork")}
	err = lib.VerifyChainOfTrust(other, proof)
	require.EqualError(t, err, "proof is not linked to the source proof")

	other = req
	other.SourceProof = nil
	err = lib.VerifyChainOfTrust(other, proof)
	require.EqualError(t, err, "missing source proof")

	err = lib.VerifyChainOfTrust(req, types.ChainOfTrustProof{Kind: 9})
	require.EqualError(t, err, "unknown proof kind 9")
}

func TestLibrary_ProveInsufficientWeight(t *testing.T) {
	lib := NewLibrary()
	net := makeNetwork(t, lib, 4)

	_, err := lib.ProveChainOfTrust(net.request(t, lib, 1, 2))
	require.EqualError(t, err, "invalid signatures: weight 20 is below 27")

	req := net.request(t, lib, 1, 2, 3)
	req.Signatures[4] = []byte("forged")
	req.SourceAddressBook = types.NewAddressBook(net.weights, map[uint64][]byte{
		1: net.keys[1].PublicKey,
		2: net.keys[2].PublicKey,
		3: net.keys[3].PublicKey,
	})

	_, err = lib.ProveChainOfTrust(req)
	require.EqualError(t, err, "invalid signatures: no key for node 4")
}

// -----------------------------------------------------------------------------
// Utility functions

type network struct {
	weights map[uint64]uint64
	keys    map[uint64]types.SchnorrKeyPair
	book    types.AddressBook
}

func makeNetwork(t *testing.T, lib Library, n int) network {
	net := network{
		weights: make(map[uint64]uint64),
		keys:    make(map[uint64]types.SchnorrKeyPair),
	}

	publicKeys := make(map[uint64][]byte)

	for i := 1; i <= n; i++ {
		kp, err := lib.NewSchnorrKeyPair()
		require.NoError(t, err)

		net.weights[uint64(i)] = 10
		net.keys[uint64(i)] = kp
		publicKeys[uint64(i)] = kp.PublicKey
	}

	net.book = types.NewAddressBook(net.weights, publicKeys)

	return net
}

func (net network) request(t *testing.T, lib Library, signers ...uint64) types.ProofRequest {
	history := types.History{AddressBookHash: []byte("target"), Metadata: []byte("metadata")}

	req := types.ProofRequest{
		SourceAddressBook: net.book,
		TargetHistory:     history,
		Signatures:        make(map[uint64][]byte),
	}

	for _, nodeID := range signers {
		sig, err := lib.SignSchnorr(history.Bytes(), net.keys[nodeID].PrivateKey)
		require.NoError(t, err)

		req.Signatures[nodeID] = sig
	}

	return req
}
