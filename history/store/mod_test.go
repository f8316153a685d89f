package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joshmarinacci/hiero-consensus-node-sub002/config"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/core/store/kv"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/history/types"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/roster"
)

var testTss = config.Tss{
	BootstrapGracePeriod:  time.Minute,
	TransitionGracePeriod: 10 * time.Second,
}

var (
	genesis = roster.New(
		roster.Entry{NodeID: 1, Weight: 10},
		roster.Entry{NodeID: 2, Weight: 10},
		roster.Entry{NodeID: 3, Weight: 10},
	)

	candidate = roster.New(
		roster.Entry{NodeID: 1, Weight: 10},
		roster.Entry{NodeID: 2, Weight: 10},
		roster.Entry{NodeID: 4, Weight: 10},
	)
)

func TestStore_GetOrCreateConstruction(t *testing.T) {
	store := makeStore(t)
	now := time.Unix(1000, 0)

	active, err := store.GetActiveConstruction()
	require.NoError(t, err)
	require.Nil(t, active)

	rosters := roster.NewBootstrap(genesis)

	construction, err := store.GetOrCreateConstruction(rosters, now, testTss)
	require.NoError(t, err)
	require.Equal(t, uint64(1), construction.ConstructionID)
	require.Equal(t, genesis.Hash(), construction.SourceRosterHash)
	require.Equal(t, genesis.Hash(), construction.TargetRosterHash)
	require.True(t, now.Add(time.Minute).Equal(*construction.GracePeriodEndTime))
	require.Nil(t, construction.SourceProof)
	require.True(t, construction.IsInProgress())

	again, err := store.GetOrCreateConstruction(rosters, now.Add(time.Hour), testTss)
	require.NoError(t, err)
	require.Equal(t, construction.ConstructionID, again.ConstructionID)
	require.True(t, construction.GracePeriodEndTime.Equal(*again.GracePeriodEndTime))

	found, err := store.GetConstructionFor(rosters)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, uint64(1), found.ConstructionID)

	found, err = store.GetConstructionFor(roster.NewTransition(genesis, candidate))
	require.NoError(t, err)
	require.Nil(t, found)

	active, err = store.GetActiveConstruction()
	require.NoError(t, err)
	require.Equal(t, uint64(1), active.ConstructionID)
}

func TestStore_TransitionExtendsSourceProof(t *testing.T) {
	store := makeStore(t)
	now := time.Unix(1000, 0)

	bootstrap, err := store.GetOrCreateConstruction(roster.NewBootstrap(genesis), now, testTss)
	require.NoError(t, err)

	proof := makeProof("genesis")

	_, err = store.CompleteProof(bootstrap.ConstructionID, proof)
	require.NoError(t, err)

	transition, err := store.GetOrCreateConstruction(roster.NewTransition(genesis, candidate),
		now, testTss)
	require.NoError(t, err)
	require.Equal(t, uint64(2), transition.ConstructionID)
	require.NotNil(t, transition.SourceProof)
	require.True(t, proof.Equal(*transition.SourceProof))
	require.True(t, now.Add(10*time.Second).Equal(*transition.GracePeriodEndTime))

	previous, err := store.GetConstruction(bootstrap.ConstructionID)
	require.NoError(t, err)
	require.True(t, previous.HasTargetProof())
	require.False(t, previous.HasFailed())
}

func TestStore_Supersede(t *testing.T) {
	store := makeStore(t)
	now := time.Unix(1000, 0)

	bootstrap, err := store.GetOrCreateConstruction(roster.NewBootstrap(genesis), now, testTss)
	require.NoError(t, err)

	_, err = store.CompleteProof(bootstrap.ConstructionID, makeProof("genesis"))
	require.NoError(t, err)

	first, err := store.GetOrCreateConstruction(roster.NewTransition(genesis, candidate), now, testTss)
	require.NoError(t, err)

	other := roster.New(roster.Entry{NodeID: 1, Weight: 5}, roster.Entry{NodeID: 2, Weight: 5})

	second, err := store.GetOrCreateConstruction(roster.NewTransition(genesis, other), now, testTss)
	require.NoError(t, err)
	require.Equal(t, uint64(3), second.ConstructionID)

	previous, err := store.GetConstruction(first.ConstructionID)
	require.NoError(t, err)
	require.Equal(t, SupersededReason, previous.FailureReason)
	require.False(t, previous.IsInProgress())

	active, err := store.GetActiveConstruction()
	require.NoError(t, err)
	require.Equal(t, second.ConstructionID, active.ConstructionID)

	constructions, err := store.ListConstructions()
	require.NoError(t, err)
	require.Len(t, constructions, 3)
}

func TestStore_SetAssemblyTime(t *testing.T) {
	store := makeStore(t)
	now := time.Unix(1000, 0)

	construction, err := store.GetOrCreateConstruction(roster.NewBootstrap(genesis), now, testTss)
	require.NoError(t, err)

	updated, err := store.SetAssemblyTime(construction.ConstructionID, now.Add(time.Second))
	require.NoError(t, err)
	require.True(t, now.Add(time.Second).Equal(*updated.AssemblyStartTime))

	updated, err = store.SetAssemblyTime(construction.ConstructionID, now.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, now.Add(time.Second).Equal(*updated.AssemblyStartTime))

	_, err = store.SetAssemblyTime(42, now)
	require.EqualError(t, err, "couldn't update construction: construction 42 not found")
}

func TestStore_CompleteAndFail(t *testing.T) {
	store := makeStore(t)
	now := time.Unix(1000, 0)

	construction, err := store.GetOrCreateConstruction(roster.NewBootstrap(genesis), now, testTss)
	require.NoError(t, err)

	first := makeProof("first")

	done, err := store.CompleteProof(construction.ConstructionID, first)
	require.NoError(t, err)
	require.True(t, first.Equal(*done.TargetProof))

	done, err = store.CompleteProof(construction.ConstructionID, makeProof("second"))
	require.NoError(t, err)
	require.True(t, first.Equal(*done.TargetProof))

	done, err = store.FailForReason(construction.ConstructionID, "too late")
	require.NoError(t, err)
	require.False(t, done.HasFailed())

	cached, err := store.GetConstruction(construction.ConstructionID)
	require.NoError(t, err)
	require.True(t, first.Equal(*cached.TargetProof))

	missing, err := store.GetConstruction(42)
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestStore_FailForReason(t *testing.T) {
	store := makeStore(t)

	construction, err := store.GetOrCreateConstruction(roster.NewBootstrap(genesis),
		time.Unix(1000, 0), testTss)
	require.NoError(t, err)

	failed, err := store.FailForReason(construction.ConstructionID, "no keys")
	require.NoError(t, err)
	require.Equal(t, "no keys", failed.FailureReason)

	failed, err = store.CompleteProof(construction.ConstructionID, makeProof("late"))
	require.NoError(t, err)
	require.Nil(t, failed.TargetProof)
}

func TestStore_Publications(t *testing.T) {
	store := makeStore(t)
	now := time.Unix(1000, 0)

	err := store.AddProofKeyPublication(types.ProofKeyPublication{
		NodeID: 2, ProofKey: []byte("k2"), PublishedAt: now.Add(2 * time.Second),
	})
	require.NoError(t, err)

	err = store.AddProofKeyPublication(types.ProofKeyPublication{
		NodeID: 1, ProofKey: []byte("old"), PublishedAt: now,
	})
	require.NoError(t, err)

	err = store.AddProofKeyPublication(types.ProofKeyPublication{
		NodeID: 1, ProofKey: []byte("k1"), PublishedAt: now.Add(time.Second),
	})
	require.NoError(t, err)

	keys, err := store.GetProofKeyPublications([]uint64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, keys, 2)
	require.Equal(t, uint64(1), keys[0].NodeID)
	require.Equal(t, []byte("k1"), keys[0].ProofKey)
	require.Equal(t, uint64(2), keys[1].NodeID)

	pub := types.SignaturePublication{
		NodeID:      3,
		Signature:   types.HistorySignature{Signature: []byte("sig")},
		PublishedAt: now,
	}

	added, err := store.AddSignaturePublication(1, pub)
	require.NoError(t, err)
	require.True(t, added)

	added, err = store.AddSignaturePublication(1, pub)
	require.NoError(t, err)
	require.False(t, added)

	signatures, err := store.GetSignaturePublications(1, []uint64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, signatures, 1)
	require.Equal(t, []byte("sig"), signatures[0].Signature.Signature)

	signatures, err = store.GetSignaturePublications(2, []uint64{3})
	require.NoError(t, err)
	require.Empty(t, signatures)
}

func TestStore_Votes(t *testing.T) {
	store := makeStore(t)

	votes, err := store.GetVotes(1, []uint64{1})
	require.NoError(t, err)
	require.Empty(t, votes)

	err = store.AddProofVote(1, 1, types.NewProofVote(makeProof("a")))
	require.NoError(t, err)

	err = store.AddProofVote(1, 1, types.NewProofVote(makeProof("b")))
	require.NoError(t, err)

	err = store.AddProofVote(2, 1, types.NewCongruentVote(1))
	require.NoError(t, err)

	votes, err = store.GetVotes(1, []uint64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, votes, 2)
	require.True(t, makeProof("a").Equal(*votes[1].Proof))
	require.Equal(t, uint64(1), *votes[2].CongruentNodeID)
}

func TestStore_LedgerID(t *testing.T) {
	store := makeStore(t)

	ledgerID, err := store.GetLedgerID()
	require.NoError(t, err)
	require.Nil(t, ledgerID)

	err = store.SetLedgerID([]byte("ledger"))
	require.NoError(t, err)

	ledgerID, err = store.GetLedgerID()
	require.NoError(t, err)
	require.Equal(t, []byte("ledger"), ledgerID)
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	db, err := kv.New(path)
	require.NoError(t, err)

	store, err := NewStore(db)
	require.NoError(t, err)

	construction, err := store.GetOrCreateConstruction(roster.NewBootstrap(genesis),
		time.Unix(1000, 0), testTss)
	require.NoError(t, err)

	require.NoError(t, db.Close())

	db, err = kv.New(path)
	require.NoError(t, err)

	defer db.Close()

	store, err = NewStore(db)
	require.NoError(t, err)

	active, err := store.GetActiveConstruction()
	require.NoError(t, err)
	require.Equal(t, construction.ConstructionID, active.ConstructionID)
}

// -----------------------------------------------------------------------------
// Utility functions

func makeStore(t *testing.T) *Store {
	db, err := kv.New(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db)
	require.NoError(t, err)

	return store
}

func makeProof(name string) types.Proof {
	return types.Proof{
		SourceAddressBookHash: []byte(name),
		TargetProofKeys:       []types.ProofKey{{NodeID: 1, Key: []byte("key")}},
		TargetHistory: types.History{
			AddressBookHash: []byte("book"),
			Metadata:        []byte("metadata"),
		},
		ChainOfTrustProof: &types.ChainOfTrustProof{Kind: types.ListProof, Data: []byte(name)},
	}
}
