// Package sim runs an in-process network of nodes through the history proof
// constructions.
//
// Every node has its own database, store, key accessor and executor. The
// transactions submitted by the nodes are collected by a shared queue that
// stands for the consensus: at the end of each round, every node applies the
// same transactions in the same order at the same consensus time.
package sim

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"

	hiero "github.com/joshmarinacci/hiero-consensus-node-sub002"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/config"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/core/executor"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/core/store/kv"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/crypto"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/history"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/history/keys"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/history/schnorr"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/history/store"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/history/types"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/roster"
)

const (
	defaultMaxRounds = 50
	defaultTick      = time.Second
)

// Param is the set of parameters of a network.
type Param struct {
	// Dir is the directory where the databases of the nodes are created.
	Dir string

	Config config.Config

	// HashFactory is the hash algorithm of the library. The library default
	// is used when it is nil.
	HashFactory crypto.HashFactory

	Tracer opentracing.Tracer

	// MaxRounds is the number of rounds after which a construction that is
	// not finished is an error.
	MaxRounds int

	// Tick is the consensus time between two rounds.
	Tick time.Duration

	// Start is the consensus time of the first round.
	Start time.Time
}

// Network is a set of nodes that agree on the order of their transactions.
type Network struct {
	logger  zerolog.Logger
	param   Param
	library schnorr.Library
	queue   *queue
	nodes   map[uint64]*node
	current roster.Roster
	now     time.Time
}

// NewNetwork creates a network with a node for each member of the genesis
// roster.
func NewNetwork(param Param, genesis roster.Roster) (*Network, error) {
	if param.MaxRounds <= 0 {
		param.MaxRounds = defaultMaxRounds
	}

	if param.Tick <= 0 {
		param.Tick = defaultTick
	}

	if param.Start.IsZero() {
		param.Start = time.Now()
	}

	opts := []schnorr.Option{schnorr.WithVerificationCache(param.Config.VerificationCacheSize)}
	if param.HashFactory != nil {
		opts = append(opts, schnorr.WithHashFactory(param.HashFactory))
	}

	n := &Network{
		logger:  hiero.Logger.With().Str("component", "sim").Logger(),
		param:   param,
		library: schnorr.NewLibrary(opts...),
		queue:   &queue{},
		nodes:   make(map[uint64]*node),
		current: genesis,
		now:     param.Start,
	}

	for _, entry := range genesis.Entries {
		err := n.addNode(entry.NodeID, nil)
		if err != nil {
			n.Close()
			return nil, err
		}
	}

	return n, nil
}

// Library returns the cryptographic library of the nodes.
func (n *Network) Library() schnorr.Library {
	return n.library
}

// Now returns the consensus time of the next round.
func (n *Network) Now() time.Time {
	return n.now
}

// Service returns the history service of the node, or nil.
func (n *Network) Service(nodeID uint64) *history.Service {
	nd, found := n.nodes[nodeID]
	if !found {
		return nil
	}

	return nd.service
}

// Store returns the store of the node, or nil.
func (n *Network) Store(nodeID uint64) *store.Store {
	nd, found := n.nodes[nodeID]
	if !found {
		return nil
	}

	return nd.store
}

// Bootstrap runs the construction of the proof of the genesis roster. The
// verification key is the metadata proven by the history.
func (n *Network) Bootstrap(ctx context.Context, verificationKey []byte) (types.Proof, error) {
	return n.run(ctx, roster.NewBootstrap(n.current), verificationKey)
}

// Transition runs the construction of the proof of the candidate roster and
// hands the network off to it. The nodes that join the network receive its
// ledger id.
func (n *Network) Transition(ctx context.Context, candidate roster.Roster,
	verificationKey []byte) (types.Proof, error) {

	ledgerID, err := n.ledgerID()
	if err != nil {
		return types.Proof{}, err
	}

	for _, entry := range candidate.Entries {
		_, found := n.nodes[entry.NodeID]
		if found {
			continue
		}

		err = n.addNode(entry.NodeID, ledgerID)
		if err != nil {
			return types.Proof{}, err
		}
	}

	proof, err := n.run(ctx, roster.NewTransition(n.current, candidate), verificationKey)
	if err != nil {
		return types.Proof{}, err
	}

	n.current = candidate

	return proof, nil
}

// Close releases the resources of every node.
func (n *Network) Close() error {
	var first error

	for _, id := range n.nodeIDs() {
		err := n.nodes[id].close()
		if err != nil && first == nil {
			first = xerrors.Errorf("couldn't close node %d: %v", id, err)
		}
	}

	return first
}

func (n *Network) run(ctx context.Context, rosters roster.ActiveRosters,
	verificationKey []byte) (types.Proof, error) {

	hints := &types.HintsConstruction{VerificationKey: verificationKey}
	participants := n.participants(rosters)

	n.logger.Info().
		Str("phase", rosters.Phase().String()).
		Int("nodes", len(participants)).
		Msg("starting construction")

	for round := 0; round < n.param.MaxRounds; round++ {
		if ctx.Err() != nil {
			return types.Proof{}, xerrors.Errorf("simulation interrupted: %v", ctx.Err())
		}

		for _, nd := range participants {
			ledgerID, err := nd.store.GetLedgerID()
			if err != nil {
				return types.Proof{}, xerrors.Errorf("couldn't read ledger id of node %d: %v", nd.id, err)
			}

			err = nd.service.Reconcile(rosters, ledgerID, nd.store, n.now,
				n.param.Config.Tss, true, hints)
			if err != nil {
				return types.Proof{}, xerrors.Errorf("couldn't reconcile node %d: %v", nd.id, err)
			}
		}

		wait(participants)

		txs := n.queue.drain()

		for _, tx := range txs {
			for _, nd := range participants {
				err := nd.handlers.Handle(tx, n.now, nd.store)
				if err != nil {
					return types.Proof{}, xerrors.Errorf("node %d couldn't handle %v of node %d: %v",
						nd.id, tx.Kind, tx.NodeID, err)
				}
			}
		}

		wait(participants)

		n.logger.Debug().Int("round", round).Int("transactions", len(txs)).Msg("round done")

		proof, done, err := n.finished(rosters, participants)
		if err != nil {
			return types.Proof{}, err
		}

		n.now = n.now.Add(n.param.Tick)

		if done {
			n.logger.Info().
				Int("rounds", round+1).
				Str("proof", proof.ID()).
				Str("kind", proof.ChainOfTrustProof.Kind.String()).
				Msg("construction finished")

			return proof, nil
		}
	}

	return types.Proof{}, xerrors.Errorf("construction not finished after %d rounds", n.param.MaxRounds)
}

// finished returns the proof of the construction when every participant
// completed it with the same proof, and the proof is valid.
func (n *Network) finished(rosters roster.ActiveRosters, participants []*node) (types.Proof, bool, error) {
	var reference *types.Construction
	var referenceID uint64

	for _, nd := range participants {
		construction, err := nd.store.GetConstructionFor(rosters)
		if err != nil {
			return types.Proof{}, false, xerrors.Errorf("couldn't read construction of node %d: %v", nd.id, err)
		}

		if construction == nil {
			return types.Proof{}, false, nil
		}

		if construction.HasFailed() {
			return types.Proof{}, false, xerrors.Errorf("construction %d of node %d failed: %s",
				construction.ConstructionID, nd.id, construction.FailureReason)
		}

		if !construction.HasTargetProof() {
			return types.Proof{}, false, nil
		}

		// The proof is checked with the view of a source node, which knows
		// the proof of the source roster.
		if reference == nil || (!rosters.Source().Includes(referenceID) && rosters.Source().Includes(nd.id)) {
			if reference != nil && !construction.TargetProof.Equal(*reference.TargetProof) {
				return types.Proof{}, false, xerrors.Errorf("nodes %d and %d disagree on the proof",
					referenceID, nd.id)
			}

			reference = construction
			referenceID = nd.id

			continue
		}

		if !construction.TargetProof.Equal(*reference.TargetProof) {
			return types.Proof{}, false, xerrors.Errorf("nodes %d and %d disagree on the proof",
				referenceID, nd.id)
		}
	}

	if reference == nil {
		return types.Proof{}, false, nil
	}

	ledgerID, err := n.nodes[referenceID].store.GetLedgerID()
	if err != nil {
		return types.Proof{}, false, xerrors.Errorf("couldn't read ledger id: %v", err)
	}

	err = n.verify(rosters, *reference, ledgerID)
	if err != nil {
		return types.Proof{}, false, xerrors.Errorf("invalid proof: %v", err)
	}

	return *reference.TargetProof, true, nil
}

// verify checks the chain-of-trust proof of the construction against the keys
// of the source roster.
func (n *Network) verify(rosters roster.ActiveRosters, construction types.Construction, ledgerID []byte) error {
	proof := construction.TargetProof

	if !proof.HasChainOfTrustProof() {
		return xerrors.New("missing chain-of-trust proof")
	}

	proven := proof.TargetProofKeys
	if construction.SourceProof != nil {
		proven = construction.SourceProof.TargetProofKeys
	}

	keys := make(map[uint64][]byte, len(proven))
	for _, key := range proven {
		keys[key.NodeID] = key.Key
	}

	req := types.ProofRequest{
		LedgerID:          ledgerID,
		SourceAddressBook: types.NewAddressBook(rosters.Source().Weights(), keys),
		TargetHistory:     proof.TargetHistory,
	}

	if construction.SourceProof != nil {
		req.SourceProof = construction.SourceProof.ChainOfTrustProof
	}

	return n.library.VerifyChainOfTrust(req, *proof.ChainOfTrustProof)
}

func (n *Network) participants(rosters roster.ActiveRosters) []*node {
	var participants []*node

	for _, id := range n.nodeIDs() {
		if rosters.Source().Includes(id) || rosters.Target().Includes(id) {
			participants = append(participants, n.nodes[id])
		}
	}

	return participants
}

func (n *Network) ledgerID() ([]byte, error) {
	for _, id := range n.nodeIDs() {
		if !n.current.Includes(id) {
			continue
		}

		ledgerID, err := n.nodes[id].store.GetLedgerID()
		if err != nil {
			return nil, xerrors.Errorf("couldn't read ledger id: %v", err)
		}

		if ledgerID != nil {
			return ledgerID, nil
		}
	}

	return nil, nil
}

func (n *Network) nodeIDs() []uint64 {
	ids := make([]uint64, 0, len(n.nodes))
	for id := range n.nodes {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

func (n *Network) addNode(id uint64, ledgerID []byte) error {
	path := NodePath(n.param.Dir, id)

	db, err := kv.New(path)
	if err != nil {
		return xerrors.Errorf("couldn't open database of node %d: %v", id, err)
	}

	st, err := store.NewStore(db)
	if err != nil {
		db.Close()
		return xerrors.Errorf("couldn't create store of node %d: %v", id, err)
	}

	if ledgerID != nil {
		err = st.SetLedgerID(ledgerID)
		if err != nil {
			db.Close()
			return xerrors.Errorf("couldn't set ledger id of node %d: %v", id, err)
		}
	}

	pool := executor.NewPool(n.param.Config.ExecutorSize)

	service := history.NewService(history.ServiceParam{
		SelfID:      id,
		Library:     n.library,
		Submissions: history.NewSubmissions(id, n.queue),
		Keys:        keys.NewAccessor(db, n.library),
		Executor:    pool,
		Tracer:      n.param.Tracer,
	})

	err = service.Load(st)
	if err != nil {
		pool.Close()
		db.Close()
		return xerrors.Errorf("couldn't load node %d: %v", id, err)
	}

	n.nodes[id] = &node{
		id:       id,
		db:       db,
		store:    st,
		pool:     pool,
		service:  service,
		handlers: history.NewHandlers(service),
	}

	n.logger.Debug().Uint64("node", id).Str("path", path).Msg("node added")

	return nil
}

// NodePath returns the path of the database of the node in the directory.
func NodePath(dir string, nodeID uint64) string {
	return filepath.Join(dir, fmt.Sprintf("node%d.db", nodeID))
}

type node struct {
	id       uint64
	db       kv.DB
	store    *store.Store
	pool     *executor.Pool
	service  *history.Service
	handlers history.Handlers
}

func (nd *node) close() error {
	nd.service.Close()
	nd.pool.Close()

	return nd.db.Close()
}

func wait(nodes []*node) {
	for _, nd := range nodes {
		nd.pool.Wait()
	}
}

// queue is the consensus of the network: it totally orders the transactions
// of the nodes.
//
// - implements history.TransactionSink
type queue struct {
	sync.Mutex
	txs []types.Transaction
}

// Submit implements history.TransactionSink.
func (q *queue) Submit(ctx context.Context, tx types.Transaction) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	q.Lock()
	q.txs = append(q.txs, tx)
	q.Unlock()

	return nil
}

func (q *queue) drain() []types.Transaction {
	q.Lock()
	defer q.Unlock()

	txs := q.txs
	q.txs = nil

	return txs
}
