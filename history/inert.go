package history

import (
	"time"

	"github.com/joshmarinacci/hiero-consensus-node-sub002/history/types"
)

// inertController is the controller of a construction that cannot finish
// because the target nodes of the source roster do not have enough weight. It
// ignores everything.
//
// - implements history.Controller
type inertController struct {
	constructionID uint64
}

// ConstructionID implements history.Controller.
func (c inertController) ConstructionID() uint64 {
	return c.constructionID
}

// IsStillInProgress implements history.Controller. It always returns false.
func (inertController) IsStillInProgress() bool {
	return false
}

// AdvanceConstruction implements history.Controller. It does nothing.
func (inertController) AdvanceConstruction(time.Time, []byte, WritableStore, bool) error {
	return nil
}

// AddProofKeyPublication implements history.Controller. It does nothing.
func (inertController) AddProofKeyPublication(types.ProofKeyPublication) {}

// AddSignaturePublication implements history.Controller. It always returns
// false.
func (inertController) AddSignaturePublication(types.SignaturePublication) bool {
	return false
}

// AddProofVote implements history.Controller. It does nothing.
func (inertController) AddProofVote(uint64, types.ProofVote, WritableStore) error {
	return nil
}

// CancelPendingWork implements history.Controller. It does nothing.
func (inertController) CancelPendingWork() {}
