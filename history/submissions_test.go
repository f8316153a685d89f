package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshmarinacci/hiero-consensus-node-sub002/history/types"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/internal/testing/fake"
)

func TestSubmissions_Submit(t *testing.T) {
	sink := &fakeSink{}
	subs := NewSubmissions(3, sink)

	ctx := context.Background()

	require.NoError(t, <-subs.SubmitProofKeyPublication(ctx, []byte("key")))

	signature := types.HistorySignature{Signature: []byte("sig")}
	require.NoError(t, <-subs.SubmitAssemblySignature(ctx, 2, signature))

	vote := types.NewCongruentVote(1)
	require.NoError(t, <-subs.SubmitProofVote(ctx, 2, vote))

	require.Len(t, sink.txs, 3)

	for _, tx := range sink.txs {
		require.Equal(t, uint64(3), tx.NodeID)
		require.NoError(t, tx.Validate())
	}

	require.Equal(t, types.KeyPublicationTx, sink.txs[0].Kind)
	require.Equal(t, []byte("key"), sink.txs[0].ProofKey)
	require.Equal(t, uint64(2), sink.txs[1].ConstructionID)
	require.Equal(t, signature, *sink.txs[1].Signature)
	require.Equal(t, vote, *sink.txs[2].Vote)

	sink.err = fake.GetError()

	err := <-subs.SubmitProofKeyPublication(ctx, []byte("key"))
	require.Equal(t, fake.GetError(), err)
}

// -----------------------------------------------------------------------------
// Utility functions

type fakeSink struct {
	txs []types.Transaction
	err error
}

func (s *fakeSink) Submit(ctx context.Context, tx types.Transaction) error {
	if s.err != nil {
		return s.err
	}

	s.txs = append(s.txs, tx)

	return nil
}
