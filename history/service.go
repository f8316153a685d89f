package history

import (
	"bytes"
	"context"
	"sync"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"

	hiero "github.com/joshmarinacci/hiero-consensus-node-sub002"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/config"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/core/executor"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/history/types"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/roster"
)

var (
	// ErrNotReady is returned when the node does not have a chain-of-trust
	// proof yet.
	ErrNotReady = xerrors.New("no chain-of-trust proof available")

	// ErrMetadataMismatch is returned when the current proof does not prove
	// the expected metadata.
	ErrMetadataMismatch = xerrors.New("metadata mismatch")
)

var (
	promFinished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hiero_history_constructions_finished_total",
		Help: "total number of constructions finished with a proof",
	})

	promReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hiero_history_ready",
		Help: "1 when the node has a chain-of-trust proof",
	})
)

func registerMetrics(collectors ...prometheus.Collector) {
	hiero.PromCollectors = append(hiero.PromCollectors, collectors...)
}

func init() {
	registerMetrics(promTasks, promTaskFailures, promFinished, promReady)
}

// ServiceParam is the set of parameters to create a service.
type ServiceParam struct {
	SelfID      uint64
	Library     Library
	Submissions Submissions
	Keys        ProofKeysAccessor
	Executor    executor.Executor
	Tracer      opentracing.Tracer
}

// Service is the entry point of the history proofs of a node. It is driven by
// the reconciliation loop and gives access to the current proof.
//
// - implements history.FinishedListener
type Service struct {
	sync.Mutex

	logger      zerolog.Logger
	library     Library
	controllers *Controllers
	current     *types.Proof
	watcher     *watcher
}

// NewService creates a new service for the node.
func NewService(param ServiceParam) *Service {
	s := &Service{
		logger:  hiero.Logger.With().Uint64("node", param.SelfID).Logger(),
		library: param.Library,
		watcher: newWatcher(),
	}

	s.controllers = NewControllers(ControllersParam{
		SelfID:      param.SelfID,
		Library:     param.Library,
		Submissions: param.Submissions,
		Keys:        param.Keys,
		Executor:    param.Executor,
		Tracer:      param.Tracer,
		Listener:    s,
	})

	return s
}

// Controllers returns the registry of the controllers of the node.
func (s *Service) Controllers() *Controllers {
	return s.controllers
}

// Reconcile advances the construction of the active rosters. Nothing is done
// once the rosters are handed off.
func (s *Service) Reconcile(rosters roster.ActiveRosters, ledgerID []byte, store WritableStore,
	now time.Time, cfg config.Tss, isActive bool, hints *types.HintsConstruction) error {

	if rosters.Phase() == roster.Handoff {
		return nil
	}

	construction, err := store.GetOrCreateConstruction(rosters, now, cfg)
	if err != nil {
		return xerrors.Errorf("couldn't get construction: %v", err)
	}

	if !construction.IsInProgress() {
		return nil
	}

	ctrl, err := s.controllers.GetOrCreateFor(rosters, construction, ledgerID, store, hints)
	if err != nil {
		return xerrors.Errorf("couldn't get controller: %v", err)
	}

	var metadata []byte
	if hints.HasVerificationKey() {
		metadata, err = s.library.HashHintsVerificationKey(hints.VerificationKey)
		if err != nil {
			return xerrors.Errorf("couldn't hash verification key: %v", err)
		}
	}

	err = ctrl.AdvanceConstruction(now, metadata, store, isActive)
	if err != nil {
		return xerrors.Errorf("couldn't advance construction %d: %v",
			construction.ConstructionID, err)
	}

	return nil
}

// OnFinished implements history.FinishedListener. The proof becomes the
// current one when the construction is the active one, and the proof of the
// genesis roster defines the ledger id.
func (s *Service) OnFinished(store WritableStore, construction types.Construction) {
	if construction.TargetProof == nil {
		return
	}

	proof := *construction.TargetProof

	active, err := store.GetActiveConstruction()
	if err != nil {
		s.logger.Err(err).Msg("couldn't read active construction")
	}

	if active != nil && active.ConstructionID == construction.ConstructionID {
		s.setCurrent(&proof)
	}

	ledgerID, err := store.GetLedgerID()
	if err != nil {
		s.logger.Err(err).Msg("couldn't read ledger id")
	}

	if ledgerID == nil && construction.SourceProof == nil {
		err = store.SetLedgerID(proof.TargetHistory.AddressBookHash)
		if err != nil {
			s.logger.Err(err).Msg("couldn't set ledger id")
		} else {
			s.logger.Info().
				Hex("ledger", proof.TargetHistory.AddressBookHash).
				Msg("ledger id set from genesis proof")
		}
	}

	promFinished.Inc()

	s.logger.Info().
		Uint64("construction", construction.ConstructionID).
		Str("proof", proof.ID()).
		Msg("construction finished")

	s.watcher.notify(construction)
}

// GetCurrentChainOfTrustProof returns the chain-of-trust proof of the current
// roster. The proof must prove the expected metadata.
func (s *Service) GetCurrentChainOfTrustProof(expectedMetadata []byte) (types.ChainOfTrustProof, error) {
	s.Lock()
	defer s.Unlock()

	if s.current == nil || !s.current.HasChainOfTrustProof() {
		return types.ChainOfTrustProof{}, ErrNotReady
	}

	metadata := s.current.TargetHistory.Metadata
	if !bytes.Equal(metadata, expectedMetadata) {
		return types.ChainOfTrustProof{}, xerrors.Errorf("%w: expected %x but got %x",
			ErrMetadataMismatch, expectedMetadata, metadata)
	}

	return *s.current.ChainOfTrustProof, nil
}

// IsReady returns true if the node has a chain-of-trust proof.
func (s *Service) IsReady() bool {
	s.Lock()
	defer s.Unlock()

	return s.current != nil && s.current.HasChainOfTrustProof()
}

// Load restores the current proof from the store. The proof of the active
// construction is used when it is finished, and the proof of its source
// roster otherwise.
func (s *Service) Load(store ReadableStore) error {
	active, err := store.GetActiveConstruction()
	if err != nil {
		return xerrors.Errorf("couldn't read active construction: %v", err)
	}

	if active == nil {
		return nil
	}

	switch {
	case active.TargetProof != nil:
		s.setCurrent(active.TargetProof)
	case active.SourceProof != nil:
		s.setCurrent(active.SourceProof)
	}

	return nil
}

// Watch returns a channel populated with the constructions that finish. The
// channel is closed when the context is done.
func (s *Service) Watch(ctx context.Context) <-chan types.Construction {
	return s.watcher.watch(ctx)
}

// Close cancels the pending work of the controllers.
func (s *Service) Close() {
	s.controllers.Close()
}

func (s *Service) setCurrent(proof *types.Proof) {
	s.Lock()
	s.current = proof
	s.Unlock()

	if proof.HasChainOfTrustProof() {
		promReady.Set(1)
	}
}
