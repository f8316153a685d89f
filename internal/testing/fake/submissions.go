package fake

import (
	"context"
	"sync"

	"github.com/joshmarinacci/hiero-consensus-node-sub002/history/types"
)

// Submissions is a fake implementation of the history submissions. It
// records the transactions and completes the futures with the configured
// error.
//
// - implements history.Submissions
type Submissions struct {
	sync.Mutex

	NodeID uint64
	Err    error
	Txs    []types.Transaction
}

// SubmitProofKeyPublication implements history.Submissions.
func (s *Submissions) SubmitProofKeyPublication(ctx context.Context, proofKey []byte) <-chan error {
	return s.submit(types.Transaction{
		Kind:     types.KeyPublicationTx,
		NodeID:   s.NodeID,
		ProofKey: proofKey,
	})
}

// SubmitAssemblySignature implements history.Submissions.
func (s *Submissions) SubmitAssemblySignature(ctx context.Context, constructionID uint64,
	signature types.HistorySignature) <-chan error {

	return s.submit(types.Transaction{
		Kind:           types.AssemblySignatureTx,
		NodeID:         s.NodeID,
		ConstructionID: constructionID,
		Signature:      &signature,
	})
}

// SubmitProofVote implements history.Submissions.
func (s *Submissions) SubmitProofVote(ctx context.Context, constructionID uint64,
	vote types.ProofVote) <-chan error {

	return s.submit(types.Transaction{
		Kind:           types.ProofVoteTx,
		NodeID:         s.NodeID,
		ConstructionID: constructionID,
		Vote:           &vote,
	})
}

// Transactions returns the transactions of the kind submitted so far.
func (s *Submissions) Transactions(kind types.TransactionKind) []types.Transaction {
	s.Lock()
	defer s.Unlock()

	var txs []types.Transaction
	for _, tx := range s.Txs {
		if tx.Kind == kind {
			txs = append(txs, tx)
		}
	}

	return txs
}

func (s *Submissions) submit(tx types.Transaction) <-chan error {
	s.Lock()
	s.Txs = append(s.Txs, tx)
	err := s.Err
	s.Unlock()

	future := make(chan error, 1)
	future <- err

	return future
}
