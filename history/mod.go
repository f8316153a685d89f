// Package history implements the construction of the chain-of-trust proofs
// that bind each roster of the network to the genesis roster.
//
// A construction goes through three stages. The nodes of the target roster
// first publish their proof keys. Once enough keys are known, the assembly
// starts and the nodes of the source roster sign the history of the target
// roster. When the signatures carry enough weight, each node builds the proof
// and votes for it, and the construction finishes with the first proof that
// gathers a super-majority of the source weight.
//
// Every transition is driven by the reconciliation loop of the node, through
// the Service. The cryptographic work and the submission of transactions run
// asynchronously on an executor and the results are observed on the next
// reconciliation.
package history

import (
	"context"
	"time"

	"github.com/joshmarinacci/hiero-consensus-node-sub002/config"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/history/types"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/roster"
)

// Library is the cryptographic capability used by the constructions.
type Library interface {
	// NewSchnorrKeyPair returns a fresh key pair for a proof key.
	NewSchnorrKeyPair() (types.SchnorrKeyPair, error)

	// HashAddressBook returns the hash of the address book.
	HashAddressBook(book types.AddressBook) ([]byte, error)

	// HashHintsVerificationKey returns the metadata of a history from the
	// verification key of a hints construction.
	HashHintsVerificationKey(key []byte) ([]byte, error)

	// SignSchnorr signs the message with the private key.
	SignSchnorr(message, privateKey []byte) ([]byte, error)

	// VerifySchnorr returns true if the signature of the message is valid for
	// the public key.
	VerifySchnorr(publicKey, message, signature []byte) bool

	// ProveChainOfTrust creates the chain-of-trust proof of the request.
	ProveChainOfTrust(req types.ProofRequest) (types.ChainOfTrustProof, error)
}

// Future is the completion of an asynchronous submission. It yields a single
// error, nil on success.
type Future = <-chan error

// Submissions is the egress of the constructions: each function submits a
// transaction to the network.
type Submissions interface {
	SubmitProofKeyPublication(ctx context.Context, proofKey []byte) Future

	SubmitAssemblySignature(ctx context.Context, constructionID uint64,
		signature types.HistorySignature) Future

	SubmitProofVote(ctx context.Context, constructionID uint64, vote types.ProofVote) Future
}

// ReadableStore is the read access to the state of the constructions.
type ReadableStore interface {
	// GetActiveConstruction returns the construction for the latest target
	// roster, or nil.
	GetActiveConstruction() (*types.Construction, error)

	// GetConstruction returns the construction with the identifier, or nil.
	GetConstruction(id uint64) (*types.Construction, error)

	// GetConstructionFor returns the construction for the rosters, or nil.
	GetConstructionFor(rosters roster.ActiveRosters) (*types.Construction, error)

	// GetLedgerID returns the ledger id, or nil when it is not known yet.
	GetLedgerID() ([]byte, error)

	// GetProofKeyPublications returns the latest key publication of each of
	// the nodes that has one, ordered by publication time.
	GetProofKeyPublications(nodeIDs []uint64) ([]types.ProofKeyPublication, error)

	// GetSignaturePublications returns the signature publications of the
	// nodes for the construction, ordered by publication time.
	GetSignaturePublications(constructionID uint64,
		nodeIDs []uint64) ([]types.SignaturePublication, error)

	// GetVotes returns the votes of the nodes for the construction.
	GetVotes(constructionID uint64, nodeIDs []uint64) (map[uint64]types.ProofVote, error)
}

// WritableStore is the read and write access to the state of the
// constructions.
type WritableStore interface {
	ReadableStore

	// GetOrCreateConstruction returns the construction for the rosters and
	// creates it if necessary.
	GetOrCreateConstruction(rosters roster.ActiveRosters, now time.Time,
		cfg config.Tss) (types.Construction, error)

	// SetAssemblyTime sets the assembly start time of the construction if it
	// is not set yet, and returns the construction.
	SetAssemblyTime(constructionID uint64, now time.Time) (types.Construction, error)

	// AddProofKeyPublication records the key of a node. It replaces a previous
	// publication of the node.
	AddProofKeyPublication(pub types.ProofKeyPublication) error

	// AddSignaturePublication records the signature of a node for the
	// construction. It returns false if the node already signed.
	AddSignaturePublication(constructionID uint64, pub types.SignaturePublication) (bool, error)

	// AddProofVote records the vote of a node. The first vote of a node is
	// kept.
	AddProofVote(nodeID, constructionID uint64, vote types.ProofVote) error

	// CompleteProof sets the target proof of the construction if it is not
	// finished yet, and returns the construction.
	CompleteProof(constructionID uint64, proof types.Proof) (types.Construction, error)

	// FailForReason fails the construction if it is not finished yet, and
	// returns the construction.
	FailForReason(constructionID uint64, reason string) (types.Construction, error)

	// SetLedgerID sets the ledger id.
	SetLedgerID(ledgerID []byte) error
}

// ProofKeysAccessor gives access to the proof keys of the node.
type ProofKeysAccessor interface {
	// GetOrCreateSchnorrKeyPair returns the key pair of the node for the
	// construction and creates it if necessary.
	GetOrCreateSchnorrKeyPair(constructionID uint64) (types.SchnorrKeyPair, error)
}

// FinishedListener is notified when a construction finishes with a proof.
type FinishedListener interface {
	OnFinished(store WritableStore, construction types.Construction)
}

// Controller drives a single construction.
type Controller interface {
	// ConstructionID returns the identifier of the construction.
	ConstructionID() uint64

	// IsStillInProgress returns true if the construction is neither finished
	// nor failed.
	IsStillInProgress() bool

	// AdvanceConstruction does the work required by the current stage of the
	// construction. It is idempotent and only returns an error when the store
	// fails. Nothing is scheduled when the node is not active.
	AdvanceConstruction(now time.Time, metadata []byte, store WritableStore, isActive bool) error

	// AddProofKeyPublication makes the controller aware of the key of a node.
	AddProofKeyPublication(pub types.ProofKeyPublication)

	// AddSignaturePublication makes the controller aware of the signature of a
	// node. It returns true if the signature is taken into account.
	AddSignaturePublication(pub types.SignaturePublication) bool

	// AddProofVote records the vote of a node and finishes the construction
	// when a proof has enough votes.
	AddProofVote(nodeID uint64, vote types.ProofVote, store WritableStore) error

	// CancelPendingWork cancels every task in flight.
	CancelPendingWork()
}
