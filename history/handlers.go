package history

import (
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/xerrors"

	hiero "github.com/joshmarinacci/hiero-consensus-node-sub002"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/history/types"
)

// Handlers apply the transactions of the history proofs to the state of a
// node, in the order decided by the consensus.
type Handlers struct {
	logger      zerolog.Logger
	controllers *Controllers
}

// NewHandlers returns the handlers of the node of the service.
func NewHandlers(service *Service) Handlers {
	return Handlers{
		logger:      hiero.Logger,
		controllers: service.Controllers(),
	}
}

// Handle applies the transaction reached at the consensus time.
func (h Handlers) Handle(tx types.Transaction, consensusTime time.Time, store WritableStore) error {
	err := tx.Validate()
	if err != nil {
		return xerrors.Errorf("invalid transaction: %v", err)
	}

	switch tx.Kind {
	case types.KeyPublicationTx:
		return h.handleKeyPublication(tx, consensusTime, store)
	case types.AssemblySignatureTx:
		return h.handleSignature(tx, consensusTime, store)
	default:
		return h.handleVote(tx, store)
	}
}

func (h Handlers) handleKeyPublication(tx types.Transaction, at time.Time, store WritableStore) error {
	pub := types.ProofKeyPublication{
		NodeID:      tx.NodeID,
		ProofKey:    tx.ProofKey,
		PublishedAt: at,
	}

	err := store.AddProofKeyPublication(pub)
	if err != nil {
		return xerrors.Errorf("couldn't store key publication: %v", err)
	}

	ctrl, found := h.controllers.GetAnyInProgress()
	if found {
		ctrl.AddProofKeyPublication(pub)
	}

	return nil
}

func (h Handlers) handleSignature(tx types.Transaction, at time.Time, store WritableStore) error {
	construction, err := store.GetConstruction(tx.ConstructionID)
	if err != nil {
		return xerrors.Errorf("couldn't read construction: %v", err)
	}

	if construction == nil || !construction.IsInProgress() || !construction.HasAssemblyStartTime() {
		h.logger.Debug().
			Uint64("construction", tx.ConstructionID).
			Uint64("signer", tx.NodeID).
			Msg("signature ignored")

		return nil
	}

	pub := types.SignaturePublication{
		NodeID:      tx.NodeID,
		Signature:   *tx.Signature,
		PublishedAt: at,
	}

	added, err := store.AddSignaturePublication(tx.ConstructionID, pub)
	if err != nil {
		return xerrors.Errorf("couldn't store signature: %v", err)
	}

	if !added {
		return nil
	}

	ctrl, found := h.controllers.GetInProgressByID(tx.ConstructionID)
	if found {
		ctrl.AddSignaturePublication(pub)
	}

	return nil
}

func (h Handlers) handleVote(tx types.Transaction, store WritableStore) error {
	ctrl, found := h.controllers.GetInProgressByID(tx.ConstructionID)
	if !found {
		h.logger.Debug().
			Uint64("construction", tx.ConstructionID).
			Uint64("voter", tx.NodeID).
			Msg("vote ignored")

		return nil
	}

	err := ctrl.AddProofVote(tx.NodeID, *tx.Vote, store)
	if err != nil {
		return xerrors.Errorf("couldn't add vote: %v", err)
	}

	return nil
}
