package fake

import (
	"bytes"
	"sort"
	"sync"
	"time"

	"github.com/joshmarinacci/hiero-consensus-node-sub002/config"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/history/types"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/roster"
)

type votesKey struct {
	constructionID uint64
	nodeID         uint64
}

// Store is an in-memory implementation of the history store. It records the
// calls to the functions that change a construction.
//
// - implements history.WritableStore
type Store struct {
	sync.Mutex

	constructions map[uint64]types.Construction
	active        uint64
	ledgerID      []byte
	keys          map[uint64]types.ProofKeyPublication
	signatures    map[votesKey]types.SignaturePublication
	votes         map[votesKey]types.ProofVote

	Completions    *Call
	AssemblyTimes  *Call
	Err            error
	ErrVote        error
	ErrConstructed error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		constructions: make(map[uint64]types.Construction),
		keys:          make(map[uint64]types.ProofKeyPublication),
		signatures:    make(map[votesKey]types.SignaturePublication),
		votes:         make(map[votesKey]types.ProofVote),
		Completions:   &Call{},
		AssemblyTimes: &Call{},
	}
}

// NewBadStore returns a store that fails every read of a construction.
func NewBadStore() *Store {
	store := NewStore()
	store.Err = fakeErr

	return store
}

// Put stores the construction and makes it the active one.
func (s *Store) Put(construction types.Construction) {
	s.Lock()
	s.constructions[construction.ConstructionID] = construction
	s.active = construction.ConstructionID
	s.Unlock()
}

// GetActiveConstruction implements history.ReadableStore.
func (s *Store) GetActiveConstruction() (*types.Construction, error) {
	s.Lock()
	defer s.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}

	return s.get(s.active), nil
}

// GetConstruction implements history.ReadableStore.
func (s *Store) GetConstruction(id uint64) (*types.Construction, error) {
	s.Lock()
	defer s.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}

	return s.get(id), nil
}

// GetConstructionFor implements history.ReadableStore.
func (s *Store) GetConstructionFor(rosters roster.ActiveRosters) (*types.Construction, error) {
	s.Lock()
	defer s.Unlock()

	return s.find(rosters), s.Err
}

// GetOrCreateConstruction implements history.WritableStore.
func (s *Store) GetOrCreateConstruction(rosters roster.ActiveRosters, now time.Time,
	cfg config.Tss) (types.Construction, error) {

	s.Lock()
	defer s.Unlock()

	if s.ErrConstructed != nil {
		return types.Construction{}, s.ErrConstructed
	}

	existing := s.find(rosters)
	if existing != nil {
		return *existing, nil
	}

	end := now.Add(cfg.GracePeriod(rosters.Phase() == roster.Bootstrap))

	construction := types.Construction{
		ConstructionID:     uint64(len(s.constructions) + 1),
		SourceRosterHash:   rosters.SourceRosterHash(),
		TargetRosterHash:   rosters.TargetRosterHash(),
		GracePeriodEndTime: &end,
	}

	s.constructions[construction.ConstructionID] = construction
	s.active = construction.ConstructionID

	return construction, nil
}

// SetAssemblyTime implements history.WritableStore.
func (s *Store) SetAssemblyTime(id uint64, now time.Time) (types.Construction, error) {
	s.AssemblyTimes.Add(id, now)

	return s.update(id, func(c *types.Construction) {
		if c.AssemblyStartTime == nil {
			c.AssemblyStartTime = &now
		}
	})
}

// CompleteProof implements history.WritableStore.
func (s *Store) CompleteProof(id uint64, proof types.Proof) (types.Construction, error) {
	s.Completions.Add(id, proof)

	return s.update(id, func(c *types.Construction) {
		if c.IsInProgress() {
			c.TargetProof = &proof
		}
	})
}

// FailForReason implements history.WritableStore.
func (s *Store) FailForReason(id uint64, reason string) (types.Construction, error) {
	return s.update(id, func(c *types.Construction) {
		if c.IsInProgress() {
			c.FailureReason = reason
		}
	})
}

// AddProofKeyPublication implements history.WritableStore.
func (s *Store) AddProofKeyPublication(pub types.ProofKeyPublication) error {
	s.Lock()
	s.keys[pub.NodeID] = pub
	s.Unlock()

	return nil
}

// AddSignaturePublication implements history.WritableStore.
func (s *Store) AddSignaturePublication(id uint64, pub types.SignaturePublication) (bool, error) {
	s.Lock()
	defer s.Unlock()

	key := votesKey{constructionID: id, nodeID: pub.NodeID}

	_, found := s.signatures[key]
	if found {
		return false, nil
	}

	s.signatures[key] = pub

	return true, nil
}

// AddProofVote implements history.WritableStore.
func (s *Store) AddProofVote(nodeID, id uint64, vote types.ProofVote) error {
	s.Lock()
	defer s.Unlock()

	if s.ErrVote != nil {
		return s.ErrVote
	}

	key := votesKey{constructionID: id, nodeID: nodeID}

	_, found := s.votes[key]
	if !found {
		s.votes[key] = vote
	}

	return nil
}

// GetLedgerID implements history.ReadableStore.
func (s *Store) GetLedgerID() ([]byte, error) {
	s.Lock()
	defer s.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}

	return s.ledgerID, nil
}

// SetLedgerID implements history.WritableStore.
func (s *Store) SetLedgerID(ledgerID []byte) error {
	s.Lock()
	s.ledgerID = ledgerID
	s.Unlock()

	return nil
}

// GetProofKeyPublications implements history.ReadableStore.
func (s *Store) GetProofKeyPublications(nodeIDs []uint64) ([]types.ProofKeyPublication, error) {
	s.Lock()
	defer s.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}

	var pubs []types.ProofKeyPublication
	for _, nodeID := range nodeIDs {
		pub, found := s.keys[nodeID]
		if found {
			pubs = append(pubs, pub)
		}
	}

	sort.SliceStable(pubs, func(i, j int) bool {
		return pubs[i].PublishedAt.Before(pubs[j].PublishedAt)
	})

	return pubs, nil
}

// GetSignaturePublications implements history.ReadableStore.
func (s *Store) GetSignaturePublications(id uint64, nodeIDs []uint64) ([]types.SignaturePublication, error) {
	s.Lock()
	defer s.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}

	var pubs []types.SignaturePublication
	for _, nodeID := range nodeIDs {
		pub, found := s.signatures[votesKey{constructionID: id, nodeID: nodeID}]
		if found {
			pubs = append(pubs, pub)
		}
	}

	sort.SliceStable(pubs, func(i, j int) bool {
		return pubs[i].PublishedAt.Before(pubs[j].PublishedAt)
	})

	return pubs, nil
}

// GetVotes implements history.ReadableStore.
func (s *Store) GetVotes(id uint64, nodeIDs []uint64) (map[uint64]types.ProofVote, error) {
	s.Lock()
	defer s.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}

	votes := make(map[uint64]types.ProofVote)
	for _, nodeID := range nodeIDs {
		vote, found := s.votes[votesKey{constructionID: id, nodeID: nodeID}]
		if found {
			votes[nodeID] = vote
		}
	}

	return votes, nil
}

func (s *Store) get(id uint64) *types.Construction {
	construction, found := s.constructions[id]
	if !found {
		return nil
	}

	return &construction
}

func (s *Store) find(rosters roster.ActiveRosters) *types.Construction {
	for _, construction := range s.constructions {
		if bytes.Equal(construction.SourceRosterHash, rosters.SourceRosterHash()) &&
			bytes.Equal(construction.TargetRosterHash, rosters.TargetRosterHash()) {

			return &construction
		}
	}

	return nil
}

func (s *Store) update(id uint64, change func(c *types.Construction)) (types.Construction, error) {
	s.Lock()
	defer s.Unlock()

	construction, found := s.constructions[id]
	if !found {
		return construction, fakeErr
	}

	change(&construction)
	s.constructions[id] = construction

	return construction, nil
}
