package history

import (
	"bytes"
	"context"
	"sort"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"

	"github.com/joshmarinacci/hiero-consensus-node-sub002/core/executor"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/history/types"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/roster"
)

var (
	promVotes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hiero_history_votes_total",
		Help: "total number of proof votes recorded",
	})

	promRejectedVotes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hiero_history_votes_rejected_total",
		Help: "total number of proof votes that could not be resolved",
	})

	promAssemblies = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hiero_history_assemblies_total",
		Help: "total number of constructions that started the assembly",
	})
)

// verification is the outcome of the check of a signature publication.
type verification struct {
	nodeID uint64
	valid  bool
}

type signatureEntry struct {
	pub      types.SignaturePublication
	verified bool
	valid    bool
}

// controllerParam is the set of parameters of an active controller.
type controllerParam struct {
	Logger       zerolog.Logger
	Tracer       opentracing.Tracer
	SelfID       uint64
	LedgerID     []byte
	KeyPair      types.SchnorrKeyPair
	Weights      roster.TransitionWeights
	Construction types.Construction
	Metadata     []byte
	Library      Library
	Submissions  Submissions
	Executor     executor.Executor
	Listener     FinishedListener
}

// activeController is the controller of a construction that the node takes
// part in. It must only be driven by one goroutine at a time; the tasks it
// schedules communicate with it through channels.
//
// - implements history.Controller
type activeController struct {
	logger      zerolog.Logger
	runner      taskRunner
	selfID      uint64
	ledgerID    []byte
	keyPair     types.SchnorrKeyPair
	weights     roster.TransitionWeights
	library     Library
	submissions Submissions
	listener    FinishedListener

	construction types.Construction
	metadata     []byte

	targetKeys map[uint64]types.ProofKeyPublication
	signatures map[uint64]*signatureEntry
	votes      map[uint64]types.ProofVote

	verifications chan verification
	seeded        bool

	// storedVotes is set when votes were read from the store instead of
	// being added through AddProofVote, so the tally must be checked again.
	storedVotes bool

	publication *task
	signing     *task
	vote        *task

	ctx    context.Context
	cancel context.CancelFunc
}

func newActiveController(param controllerParam) *activeController {
	ctx, cancel := context.WithCancel(context.Background())

	tracer := param.Tracer
	if tracer == nil {
		tracer = opentracing.GlobalTracer()
	}

	logger := param.Logger.With().
		Uint64("construction", param.Construction.ConstructionID).
		Uint64("node", param.SelfID).
		Logger()

	return &activeController{
		logger: logger,
		runner: taskRunner{
			logger:         logger,
			tracer:         tracer,
			exec:           param.Executor,
			constructionID: param.Construction.ConstructionID,
		},
		selfID:        param.SelfID,
		ledgerID:      param.LedgerID,
		keyPair:       param.KeyPair,
		weights:       param.Weights,
		library:       param.Library,
		submissions:   param.Submissions,
		listener:      param.Listener,
		construction:  param.Construction,
		metadata:      param.Metadata,
		targetKeys:    make(map[uint64]types.ProofKeyPublication),
		signatures:    make(map[uint64]*signatureEntry),
		votes:         make(map[uint64]types.ProofVote),
		verifications: make(chan verification, len(param.Weights.SourceNodeIDs())),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// ConstructionID implements history.Controller.
func (c *activeController) ConstructionID() uint64 {
	return c.construction.ConstructionID
}

// IsStillInProgress implements history.Controller.
func (c *activeController) IsStillInProgress() bool {
	return c.construction.IsInProgress()
}

// AdvanceConstruction implements history.Controller. It refreshes the
// construction from the store and does the work of its current stage.
func (c *activeController) AdvanceConstruction(now time.Time, metadata []byte,
	store WritableStore, isActive bool) error {

	if !c.construction.IsInProgress() {
		return nil
	}

	if metadata != nil {
		c.metadata = metadata
	}

	err := c.refresh(store)
	if err != nil {
		return xerrors.Errorf("couldn't refresh construction: %v", err)
	}

	if !c.construction.IsInProgress() {
		return nil
	}

	if c.storedVotes {
		c.storedVotes = false

		err = c.completeIfWon(store)
		if err != nil {
			return err
		}

		if !c.construction.IsInProgress() {
			return nil
		}
	}

	if c.construction.HasAssemblyStartTime() {
		if isActive {
			c.advanceAssembly()
		}

		return nil
	}

	if c.shouldAssemble(now) {
		construction, err := store.SetAssemblyTime(c.construction.ConstructionID, now)
		if err != nil {
			return xerrors.Errorf("couldn't set assembly time: %v", err)
		}

		c.construction = construction
		c.freezeKeys()

		promAssemblies.Inc()

		c.logger.Info().
			Int("keys", len(c.targetKeys)).
			Time("at", *construction.AssemblyStartTime).
			Msg("assembly started")

		if isActive {
			c.advanceAssembly()
		}

		return nil
	}

	if isActive {
		c.ensureProofKeyPublished()
	}

	return nil
}

// AddProofKeyPublication implements history.Controller. Keys of nodes outside
// of the target roster are ignored, and the keys are frozen once the assembly
// started.
func (c *activeController) AddProofKeyPublication(pub types.ProofKeyPublication) {
	if !c.weights.TargetIncludes(pub.NodeID) || c.construction.HasAssemblyStartTime() {
		return
	}

	c.targetKeys[pub.NodeID] = pub
}

// AddSignaturePublication implements history.Controller. Only the first
// signature of each source node after the assembly started is accepted, and
// it is verified asynchronously.
func (c *activeController) AddSignaturePublication(pub types.SignaturePublication) bool {
	if !c.construction.IsInProgress() || !c.construction.HasAssemblyStartTime() {
		return false
	}

	if !c.weights.SourceIncludes(pub.NodeID) {
		return false
	}

	_, found := c.signatures[pub.NodeID]
	if found {
		return false
	}

	c.signatures[pub.NodeID] = &signatureEntry{pub: pub}

	key := c.sourceAddressBook().KeyOf(pub.NodeID)
	message := pub.Signature.History.Bytes()
	signature := pub.Signature.Signature

	c.runner.run(c.ctx, verificationTask, func(ctx context.Context) error {
		valid := len(key) > 0 && c.library.VerifySchnorr(key, message, signature)

		select {
		case c.verifications <- verification{nodeID: pub.NodeID, valid: valid}:
		case <-ctx.Done():
			return ctx.Err()
		}

		return nil
	})

	return true
}

// AddProofVote implements history.Controller. A congruent vote must refer to
// a vote that resolves to a proof, otherwise it is rejected. The construction
// is completed by the first proof whose voters reach the source threshold.
func (c *activeController) AddProofVote(nodeID uint64, vote types.ProofVote,
	store WritableStore) error {

	if !c.construction.IsInProgress() {
		return nil
	}

	_, found := c.votes[nodeID]
	if found {
		return nil
	}

	err := vote.Validate()
	if err != nil {
		promRejectedVotes.Inc()
		c.logger.Warn().Err(err).Uint64("voter", nodeID).Msg("invalid vote")
		return nil
	}

	if vote.IsCongruent() {
		_, err = c.resolve(*vote.CongruentNodeID)
		if err != nil {
			promRejectedVotes.Inc()
			c.logger.Warn().Err(err).Uint64("voter", nodeID).Msg("unresolvable congruent vote")
			return nil
		}
	}

	err = store.AddProofVote(nodeID, c.construction.ConstructionID, vote)
	if err != nil {
		return xerrors.Errorf("couldn't store vote: %v", err)
	}

	c.votes[nodeID] = vote
	promVotes.Inc()

	return c.completeIfWon(store)
}

// completeIfWon completes the construction with the winning proof, if any.
func (c *activeController) completeIfWon(store WritableStore) error {
	proof, found := c.winningProof()
	if !found {
		return nil
	}

	construction, err := store.CompleteProof(c.construction.ConstructionID, proof)
	if err != nil {
		return xerrors.Errorf("couldn't complete proof: %v", err)
	}

	c.construction = construction
	c.CancelPendingWork()

	c.logger.Info().Str("proof", proof.ID()).Msg("history proof constructed")

	if c.listener != nil {
		c.listener.OnFinished(store, construction)
	}

	return nil
}

// CancelPendingWork implements history.Controller. The tasks that did not
// reach their submission yet skip it. The signatures whose verification did
// not complete are forgotten so that the next refresh verifies them again
// from the store.
func (c *activeController) CancelPendingWork() {
	pending := make([]string, 0, 3)
	for _, t := range []*task{c.publication, c.signing, c.vote} {
		if t != nil && !t.isDone() {
			pending = append(pending, string(t.kind))
		}
	}

	if len(pending) > 0 {
		c.logger.Info().Strs("tasks", pending).Msg("canceling pending work")
	}

	c.cancel()
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.drainVerifications()

	for nodeID, entry := range c.signatures {
		if !entry.verified {
			delete(c.signatures, nodeID)
		}
	}
}

// refresh reloads the construction and ingests the publications and the votes
// persisted since the last call.
func (c *activeController) refresh(store ReadableStore) error {
	latest, err := store.GetConstruction(c.construction.ConstructionID)
	if err != nil {
		return xerrors.Errorf("couldn't read construction: %v", err)
	}

	if latest != nil {
		c.construction = *latest
	}

	if !c.construction.IsInProgress() {
		c.CancelPendingWork()
		return nil
	}

	return c.ingest(store)
}

func (c *activeController) ingest(store ReadableStore) error {
	keys, err := store.GetProofKeyPublications(c.weights.TargetNodeIDs())
	if err != nil {
		return xerrors.Errorf("couldn't read keys: %v", err)
	}

	for _, pub := range keys {
		if !c.seeded && c.construction.HasAssemblyStartTime() {
			// Restores the keys known when the assembly started.
			start := *c.construction.AssemblyStartTime
			if c.weights.TargetIncludes(pub.NodeID) && !pub.PublishedAt.After(start) {
				c.targetKeys[pub.NodeID] = pub
			}

			continue
		}

		c.AddProofKeyPublication(pub)
	}

	id := c.construction.ConstructionID
	sourceIDs := c.weights.SourceNodeIDs()

	if c.construction.HasAssemblyStartTime() {
		signatures, err := store.GetSignaturePublications(id, sourceIDs)
		if err != nil {
			return xerrors.Errorf("couldn't read signatures: %v", err)
		}

		for _, pub := range signatures {
			c.AddSignaturePublication(pub)
		}
	}

	votes, err := store.GetVotes(id, sourceIDs)
	if err != nil {
		return xerrors.Errorf("couldn't read votes: %v", err)
	}

	for nodeID, vote := range votes {
		_, found := c.votes[nodeID]
		if !found {
			c.votes[nodeID] = vote
			c.storedVotes = true
		}
	}

	c.drainVerifications()
	c.seeded = true

	return nil
}

func (c *activeController) drainVerifications() {
	for {
		select {
		case res := <-c.verifications:
			entry, found := c.signatures[res.nodeID]
			if !found {
				continue
			}

			entry.verified = true
			entry.valid = res.valid

			if !res.valid {
				c.logger.Warn().Uint64("signer", res.nodeID).Msg("invalid history signature")
			}
		default:
			return
		}
	}
}

// shouldAssemble returns true when all the target nodes of the source roster
// published their keys, or when the grace period is over and the published
// keys carry enough of the target weight.
func (c *activeController) shouldAssemble(now time.Time) bool {
	inSource := 0
	var weight uint64

	for nodeID := range c.targetKeys {
		if c.weights.SourceIncludes(nodeID) {
			inSource++
		}

		weight += c.weights.TargetWeightOf(nodeID)
	}

	if inSource == c.weights.NumTargetNodesInSource() {
		return true
	}

	end := c.construction.GracePeriodEndTime
	if end == nil || now.Before(*end) {
		return false
	}

	return weight >= c.weights.TargetWeightThreshold()
}

// freezeKeys drops the keys published after the assembly started.
func (c *activeController) freezeKeys() {
	start := c.construction.AssemblyStartTime
	if start == nil {
		return
	}

	for nodeID, pub := range c.targetKeys {
		if pub.PublishedAt.After(*start) {
			delete(c.targetKeys, nodeID)
		}
	}
}

func (c *activeController) ensureProofKeyPublished() {
	if !c.weights.TargetIncludes(c.selfID) {
		return
	}

	pub, found := c.targetKeys[c.selfID]
	if found && bytes.Equal(pub.ProofKey, c.keyPair.PublicKey) {
		return
	}

	if isPending(c.publication) {
		return
	}

	key := c.keyPair.PublicKey

	c.publication = c.runner.run(c.ctx, publicationTask, func(ctx context.Context) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		return await(ctx, c.submissions.SubmitProofKeyPublication(ctx, key))
	})
}

// advanceAssembly either votes when the signatures are sufficient, or signs
// the history when the node did not yet.
func (c *activeController) advanceAssembly() {
	if !c.weights.SourceIncludes(c.selfID) {
		return
	}

	_, voted := c.votes[c.selfID]
	if voted || isPending(c.vote) {
		return
	}

	history, signers, found := c.sufficientSignatures()
	if found {
		c.vote = c.scheduleVote(history, signers)
		return
	}

	_, signed := c.signatures[c.selfID]
	if signed || isPending(c.signing) || c.metadata == nil {
		return
	}

	c.signing = c.scheduleSigning()
}

func (c *activeController) scheduleSigning() *task {
	book := c.targetAddressBook()
	metadata := append([]byte{}, c.metadata...)
	privateKey := c.keyPair.PrivateKey
	id := c.construction.ConstructionID

	return c.runner.run(c.ctx, signingTask, func(ctx context.Context) error {
		hash, err := c.library.HashAddressBook(book)
		if err != nil {
			return xerrors.Errorf("couldn't hash address book: %v", err)
		}

		history := types.History{AddressBookHash: hash, Metadata: metadata}

		signature, err := c.library.SignSchnorr(history.Bytes(), privateKey)
		if err != nil {
			return xerrors.Errorf("couldn't sign history: %v", err)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		sig := types.HistorySignature{History: history, Signature: signature}

		return await(ctx, c.submissions.SubmitAssemblySignature(ctx, id, sig))
	})
}

func (c *activeController) scheduleVote(history types.History, signers []uint64) *task {
	req := types.ProofRequest{
		LedgerID:          c.ledgerID,
		SourceAddressBook: c.sourceAddressBook(),
		TargetHistory:     history,
		Signatures:        make(map[uint64][]byte),
	}

	if c.construction.SourceProof != nil {
		req.SourceProof = c.construction.SourceProof.ChainOfTrustProof
	}

	for _, nodeID := range signers {
		req.Signatures[nodeID] = c.signatures[nodeID].pub.Signature.Signature
	}

	targetKeys := c.targetAddressBook().ProofKeys()
	id := c.construction.ConstructionID

	// Proofs already voted for, by voter, so that an identical proof is sent
	// as a congruent vote.
	voted := make(map[uint64]types.Proof)
	for nodeID := range c.votes {
		proof, err := c.resolve(nodeID)
		if err == nil {
			voted[nodeID] = proof
		}
	}

	return c.runner.run(c.ctx, voteTask, func(ctx context.Context) error {
		sourceHash, err := c.library.HashAddressBook(req.SourceAddressBook)
		if err != nil {
			return xerrors.Errorf("couldn't hash source address book: %v", err)
		}

		cot, err := c.library.ProveChainOfTrust(req)
		if err != nil {
			return xerrors.Errorf("couldn't prove chain of trust: %v", err)
		}

		proof := types.Proof{
			SourceAddressBookHash: sourceHash,
			TargetProofKeys:       targetKeys,
			TargetHistory:         history,
			ChainOfTrustProof:     &cot,
		}

		vote := types.NewProofVote(proof)

		for _, nodeID := range sortedIDs(voted) {
			if voted[nodeID].Equal(proof) {
				vote = types.NewCongruentVote(nodeID)
				break
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		return await(ctx, c.submissions.SubmitProofVote(ctx, id, vote))
	})
}

// sufficientSignatures looks for the first history whose valid signatures
// reach the source threshold. The publications are considered in the order of
// consensus and the search stops at the first pending verification, so that
// every node picks the same history and the same signers.
func (c *activeController) sufficientSignatures() (types.History, []uint64, bool) {
	entries := make([]*signatureEntry, 0, len(c.signatures))
	for _, entry := range c.signatures {
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].pub, entries[j].pub
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.Before(b.PublishedAt)
		}
		return a.NodeID < b.NodeID
	})

	threshold := c.weights.SourceWeightThreshold()
	weights := make(map[string]uint64)
	signers := make(map[string][]uint64)

	for _, entry := range entries {
		if !entry.verified {
			return types.History{}, nil, false
		}

		if !entry.valid {
			continue
		}

		history := entry.pub.Signature.History
		key := string(history.Bytes())

		weights[key] += c.weights.SourceWeightOf(entry.pub.NodeID)
		signers[key] = append(signers[key], entry.pub.NodeID)

		if weights[key] >= threshold {
			return history, signers[key], true
		}
	}

	return types.History{}, nil, false
}

// winningProof returns the first proof, in the order of the voters, whose
// votes reach the source threshold.
func (c *activeController) winningProof() (types.Proof, bool) {
	threshold := c.weights.SourceWeightThreshold()
	weights := make(map[string]uint64)

	for _, nodeID := range sortedIDs(c.votes) {
		proof, err := c.resolve(nodeID)
		if err != nil {
			continue
		}

		id := proof.ID()
		weights[id] += c.weights.SourceWeightOf(nodeID)

		if weights[id] >= threshold {
			return proof, true
		}
	}

	return types.Proof{}, false
}

// resolve follows the congruent votes starting from the vote of the node
// until a proof is found.
func (c *activeController) resolve(nodeID uint64) (types.Proof, error) {
	current := nodeID
	visited := make(map[uint64]struct{})

	for {
		vote, found := c.votes[current]
		if !found {
			return types.Proof{}, xerrors.Errorf("node %d did not vote", current)
		}

		if vote.Proof != nil {
			return *vote.Proof, nil
		}

		if vote.CongruentNodeID == nil {
			return types.Proof{}, xerrors.Errorf("vote of node %d is empty", current)
		}

		visited[current] = struct{}{}

		_, cycle := visited[*vote.CongruentNodeID]
		if cycle || len(visited) > len(c.votes) {
			return types.Proof{}, xerrors.Errorf("congruent votes of node %d form a cycle", nodeID)
		}

		current = *vote.CongruentNodeID
	}
}

// sourceAddressBook returns the address book of the signers. The keys are the
// ones proven by the source proof, or the keys of the construction when the
// source roster has no proof.
func (c *activeController) sourceAddressBook() types.AddressBook {
	if c.construction.SourceProof == nil {
		return types.NewAddressBook(c.weights.SourceNodeWeights(), c.keys())
	}

	keys := make(map[uint64][]byte)
	for _, key := range c.construction.SourceProof.TargetProofKeys {
		keys[key.NodeID] = key.Key
	}

	return types.NewAddressBook(c.weights.SourceNodeWeights(), keys)
}

func (c *activeController) targetAddressBook() types.AddressBook {
	return types.NewAddressBook(c.weights.TargetNodeWeights(), c.keys())
}

func (c *activeController) keys() map[uint64][]byte {
	keys := make(map[uint64][]byte, len(c.targetKeys))
	for nodeID, pub := range c.targetKeys {
		keys[nodeID] = pub.ProofKey
	}

	return keys
}

func sortedIDs[V any](m map[uint64]V) []uint64 {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

func init() {
	registerMetrics(promVotes, promRejectedVotes, promAssemblies)
}
