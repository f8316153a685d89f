package history

import (
	opentracing "github.com/opentracing/opentracing-go"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"

	hiero "github.com/joshmarinacci/hiero-consensus-node-sub002"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/core/executor"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/history/types"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/roster"
)

// ControllersParam is the set of parameters to create the registry of
// controllers.
type ControllersParam struct {
	SelfID      uint64
	Library     Library
	Submissions Submissions
	Keys        ProofKeysAccessor
	Executor    executor.Executor

	// Tracer is used for the spans of the tasks. The global tracer is used
	// when it is nil.
	Tracer opentracing.Tracer

	// Listener is notified when a construction finishes.
	Listener FinishedListener
}

// Controllers is the registry of the controllers of a node. It keeps the
// controller of the latest construction only.
type Controllers struct {
	logger      zerolog.Logger
	param       ControllersParam
	controllers map[uint64]Controller
}

// NewControllers creates an empty registry.
func NewControllers(param ControllersParam) *Controllers {
	return &Controllers{
		logger:      hiero.Logger.With().Uint64("node", param.SelfID).Logger(),
		param:       param,
		controllers: make(map[uint64]Controller),
	}
}

// GetOrCreateFor returns the controller of the construction. When it does not
// exist, the controllers of other constructions are canceled and a new one is
// created from the content of the store.
func (cs *Controllers) GetOrCreateFor(rosters roster.ActiveRosters, construction types.Construction,
	ledgerID []byte, store ReadableStore, hints *types.HintsConstruction) (Controller, error) {

	ctrl, found := cs.controllers[construction.ConstructionID]
	if found {
		return ctrl, nil
	}

	for id, other := range cs.controllers {
		other.CancelPendingWork()
		delete(cs.controllers, id)
	}

	ctrl, err := cs.newController(rosters, construction, ledgerID, store, hints)
	if err != nil {
		return nil, err
	}

	cs.controllers[construction.ConstructionID] = ctrl

	return ctrl, nil
}

// GetAnyInProgress returns a controller whose construction is in progress.
func (cs *Controllers) GetAnyInProgress() (Controller, bool) {
	for _, ctrl := range cs.controllers {
		if ctrl.IsStillInProgress() {
			return ctrl, true
		}
	}

	return nil, false
}

// GetInProgressByID returns the controller of the construction if it is in
// progress.
func (cs *Controllers) GetInProgressByID(id uint64) (Controller, bool) {
	ctrl, found := cs.controllers[id]
	if !found || !ctrl.IsStillInProgress() {
		return nil, false
	}

	return ctrl, true
}

// Close cancels the work of every controller.
func (cs *Controllers) Close() {
	for id, ctrl := range cs.controllers {
		ctrl.CancelPendingWork()
		delete(cs.controllers, id)
	}
}

func (cs *Controllers) newController(rosters roster.ActiveRosters, construction types.Construction,
	ledgerID []byte, store ReadableStore, hints *types.HintsConstruction) (Controller, error) {

	weights, err := rosters.TransitionWeights()
	if err != nil {
		return nil, xerrors.Errorf("couldn't compute weights: %v", err)
	}

	if !weights.SourceNodesHaveTargetThreshold() {
		cs.logger.Warn().
			Uint64("construction", construction.ConstructionID).
			Msg("source nodes lack the target threshold, construction is inert")

		return inertController{constructionID: construction.ConstructionID}, nil
	}

	keyPair, err := cs.param.Keys.GetOrCreateSchnorrKeyPair(construction.ConstructionID)
	if err != nil {
		return nil, xerrors.Errorf("couldn't get key pair: %v", err)
	}

	var metadata []byte
	if hints.HasVerificationKey() {
		metadata, err = cs.param.Library.HashHintsVerificationKey(hints.VerificationKey)
		if err != nil {
			return nil, xerrors.Errorf("couldn't hash verification key: %v", err)
		}
	}

	ctrl := newActiveController(controllerParam{
		Logger:       cs.logger,
		Tracer:       cs.param.Tracer,
		SelfID:       cs.param.SelfID,
		LedgerID:     ledgerID,
		KeyPair:      keyPair,
		Weights:      weights,
		Construction: construction,
		Metadata:     metadata,
		Library:      cs.param.Library,
		Submissions:  cs.param.Submissions,
		Executor:     cs.param.Executor,
		Listener:     cs.param.Listener,
	})

	if construction.IsInProgress() {
		err = ctrl.ingest(store)
		if err != nil {
			return nil, xerrors.Errorf("couldn't seed controller: %v", err)
		}
	}

	cs.logger.Info().
		Uint64("construction", construction.ConstructionID).
		Str("phase", rosters.Phase().String()).
		Int("keys", len(ctrl.targetKeys)).
		Int("signatures", len(ctrl.signatures)).
		Int("votes", len(ctrl.votes)).
		Msg("controller created")

	return ctrl, nil
}
