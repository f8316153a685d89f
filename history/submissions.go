package history

import (
	"context"

	"github.com/joshmarinacci/hiero-consensus-node-sub002/history/types"
)

// TransactionSink is where the transactions of a node are sent to reach the
// consensus.
type TransactionSink interface {
	Submit(ctx context.Context, tx types.Transaction) error
}

// sinkSubmissions creates the transactions of the node and sends them to a
// sink.
//
// - implements history.Submissions
type sinkSubmissions struct {
	selfID uint64
	sink   TransactionSink
}

// NewSubmissions returns the submissions of the node that go through the
// sink.
func NewSubmissions(selfID uint64, sink TransactionSink) Submissions {
	return sinkSubmissions{
		selfID: selfID,
		sink:   sink,
	}
}

// SubmitProofKeyPublication implements history.Submissions.
func (s sinkSubmissions) SubmitProofKeyPublication(ctx context.Context, proofKey []byte) Future {
	return s.submit(ctx, types.Transaction{
		Kind:     types.KeyPublicationTx,
		NodeID:   s.selfID,
		ProofKey: proofKey,
	})
}

// SubmitAssemblySignature implements history.Submissions.
func (s sinkSubmissions) SubmitAssemblySignature(ctx context.Context, constructionID uint64,
	signature types.HistorySignature) Future {

	return s.submit(ctx, types.Transaction{
		Kind:           types.AssemblySignatureTx,
		NodeID:         s.selfID,
		ConstructionID: constructionID,
		Signature:      &signature,
	})
}

// SubmitProofVote implements history.Submissions.
func (s sinkSubmissions) SubmitProofVote(ctx context.Context, constructionID uint64,
	vote types.ProofVote) Future {

	return s.submit(ctx, types.Transaction{
		Kind:           types.ProofVoteTx,
		NodeID:         s.selfID,
		ConstructionID: constructionID,
		Vote:           &vote,
	})
}

func (s sinkSubmissions) submit(ctx context.Context, tx types.Transaction) Future {
	future := make(chan error, 1)

	go func() {
		future <- s.sink.Submit(ctx, tx)
	}()

	return future
}
