package types

import "golang.org/x/xerrors"

// TransactionKind is the kind of protocol message a node submits.
type TransactionKind byte

const (
	// KeyPublicationTx publishes the proof key of the node.
	KeyPublicationTx TransactionKind = iota + 1

	// AssemblySignatureTx publishes the signature of the node over the history
	// of a construction.
	AssemblySignatureTx

	// ProofVoteTx publishes the vote of the node for the proof of a
	// construction.
	ProofVoteTx
)

func (k TransactionKind) String() string {
	switch k {
	case KeyPublicationTx:
		return "key-publication"
	case AssemblySignatureTx:
		return "assembly-signature"
	case ProofVoteTx:
		return "proof-vote"
	default:
		return "unknown"
	}
}

// Transaction is the body of a protocol message submitted by a node. Only the
// field matching the kind is set.
type Transaction struct {
	Kind           TransactionKind   `json:"kind"`
	NodeID         uint64            `json:"nodeId"`
	ConstructionID uint64            `json:"constructionId,omitempty"`
	ProofKey       []byte            `json:"proofKey,omitempty"`
	Signature      *HistorySignature `json:"signature,omitempty"`
	Vote           *ProofVote        `json:"vote,omitempty"`
}

// Validate returns an error if the body does not match the kind.
func (tx Transaction) Validate() error {
	switch tx.Kind {
	case KeyPublicationTx:
		if len(tx.ProofKey) == 0 {
			return xerrors.New("missing proof key")
		}
	case AssemblySignatureTx:
		if tx.Signature == nil {
			return xerrors.New("missing signature")
		}
	case ProofVoteTx:
		if tx.Vote == nil {
			return xerrors.New("missing vote")
		}

		err := tx.Vote.Validate()
		if err != nil {
			return xerrors.Errorf("invalid vote: %v", err)
		}
	default:
		return xerrors.Errorf("unknown transaction kind %d", tx.Kind)
	}

	return nil
}
