// Package store implements a persistent storage of the history proof
// constructions on top of a key/value database.
//
// Every record is encoded in JSON in its own bucket. The constructions are
// indexed by the hashes of their rosters, and the decoded constructions are
// kept in a cache that is updated when a transaction commits.
package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/xerrors"

	"github.com/joshmarinacci/hiero-consensus-node-sub002/config"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/core/store/kv"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/history/types"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/roster"
)

// SupersededReason is the failure reason of a construction replaced by one for
// a newer target roster.
const SupersededReason = "superseded"

const defaultCacheSize = 64

var (
	constructionsBucket = []byte("history-constructions")
	indexBucket         = []byte("history-index")
	keysBucket          = []byte("history-keys")
	signaturesBucket    = []byte("history-signatures")
	votesBucket         = []byte("history-votes")
	metaBucket          = []byte("history-meta")

	nextIDKey   = []byte("next-id")
	activeKey   = []byte("active")
	ledgerIDKey = []byte("ledger-id")
)

// Store is the persistent storage of the constructions.
//
// - implements history.WritableStore
type Store struct {
	db    kv.DB
	cache *lru.Cache
}

// NewStore creates a store on top of the database.
func NewStore(db kv.DB) (*Store, error) {
	cache, err := lru.New(defaultCacheSize)
	if err != nil {
		return nil, xerrors.Errorf("couldn't create cache: %v", err)
	}

	return &Store{
		db:    db,
		cache: cache,
	}, nil
}

// GetActiveConstruction implements history.ReadableStore. It returns the
// construction of the latest target roster, or nil.
func (s *Store) GetActiveConstruction() (*types.Construction, error) {
	var construction *types.Construction

	err := s.db.View(func(tx kv.ReadableTx) error {
		id, found := readUint64(tx.GetBucket(metaBucket), activeKey)
		if !found {
			return nil
		}

		var err error
		construction, err = s.readConstruction(tx, id)

		return err
	})

	if err != nil {
		return nil, xerrors.Errorf("couldn't read active construction: %v", err)
	}

	return construction, nil
}

// GetConstruction implements history.ReadableStore. It returns the
// construction with the identifier, or nil.
func (s *Store) GetConstruction(id uint64) (*types.Construction, error) {
	cached, found := s.cache.Get(id)
	if found {
		construction := cached.(types.Construction)
		return &construction, nil
	}

	var construction *types.Construction

	err := s.db.View(func(tx kv.ReadableTx) error {
		var err error
		construction, err = s.readConstruction(tx, id)

		return err
	})

	if err != nil {
		return nil, xerrors.Errorf("couldn't read construction %d: %v", id, err)
	}

	return construction, nil
}

// GetConstructionFor implements history.ReadableStore. It returns the
// construction of the rosters, or nil.
func (s *Store) GetConstructionFor(rosters roster.ActiveRosters) (*types.Construction, error) {
	var construction *types.Construction

	key := indexKey(rosters.SourceRosterHash(), rosters.TargetRosterHash())

	err := s.db.View(func(tx kv.ReadableTx) error {
		id, found := readUint64(tx.GetBucket(indexBucket), key)
		if !found {
			return nil
		}

		var err error
		construction, err = s.readConstruction(tx, id)

		return err
	})

	if err != nil {
		return nil, xerrors.Errorf("couldn't read construction: %v", err)
	}

	return construction, nil
}

// GetOrCreateConstruction implements history.WritableStore. A new
// construction extends the proof of its source roster when it exists, and
// supersedes the active construction if it is still in progress.
func (s *Store) GetOrCreateConstruction(rosters roster.ActiveRosters, now time.Time,
	cfg config.Tss) (types.Construction, error) {

	var construction types.Construction

	sourceHash := rosters.SourceRosterHash()
	targetHash := rosters.TargetRosterHash()
	key := indexKey(sourceHash, targetHash)

	err := s.db.Update(func(tx kv.WritableTx) error {
		index, err := tx.GetBucketOrCreate(indexBucket)
		if err != nil {
			return err
		}

		id, found := readUint64(index, key)
		if found {
			existing, err := s.readConstruction(tx, id)
			if err != nil {
				return err
			}

			if existing != nil {
				construction = *existing
				return nil
			}
		}

		meta, err := tx.GetBucketOrCreate(metaBucket)
		if err != nil {
			return err
		}

		nextID, _ := readUint64(meta, nextIDKey)
		id = nextID + 1

		bootstrap := rosters.Phase() == roster.Bootstrap
		end := now.Add(cfg.GracePeriod(bootstrap))

		construction = types.Construction{
			ConstructionID:     id,
			SourceRosterHash:   sourceHash,
			TargetRosterHash:   targetHash,
			GracePeriodEndTime: &end,
		}

		if !bootstrap {
			construction.SourceProof, err = s.findProofOf(tx, sourceHash)
			if err != nil {
				return err
			}
		}

		activeID, found := readUint64(meta, activeKey)
		if found {
			err = s.supersede(tx, activeID, targetHash)
			if err != nil {
				return err
			}
		}

		err = s.writeConstruction(tx, construction)
		if err != nil {
			return err
		}

		err = writeUint64(index, key, id)
		if err != nil {
			return err
		}

		err = writeUint64(meta, nextIDKey, id)
		if err != nil {
			return err
		}

		return writeUint64(meta, activeKey, id)
	})

	if err != nil {
		return construction, xerrors.Errorf("couldn't create construction: %v", err)
	}

	return construction, nil
}

// SetAssemblyTime implements history.WritableStore. The first assembly time
// is kept.
func (s *Store) SetAssemblyTime(id uint64, now time.Time) (types.Construction, error) {
	return s.updateConstruction(id, func(c *types.Construction) bool {
		if c.AssemblyStartTime != nil {
			return false
		}

		at := now
		c.AssemblyStartTime = &at

		return true
	})
}

// CompleteProof implements history.WritableStore. The first proof is kept and
// a failed construction is left untouched.
func (s *Store) CompleteProof(id uint64, proof types.Proof) (types.Construction, error) {
	return s.updateConstruction(id, func(c *types.Construction) bool {
		if !c.IsInProgress() {
			return false
		}

		c.TargetProof = &proof

		return true
	})
}

// FailForReason implements history.WritableStore. A construction that is
// already finished or failed is left untouched.
func (s *Store) FailForReason(id uint64, reason string) (types.Construction, error) {
	return s.updateConstruction(id, func(c *types.Construction) bool {
		if !c.IsInProgress() {
			return false
		}

		c.FailureReason = reason

		return true
	})
}

// AddProofKeyPublication implements history.WritableStore. It replaces the
// previous publication of the node.
func (s *Store) AddProofKeyPublication(pub types.ProofKeyPublication) error {
	data, err := json.Marshal(pub)
	if err != nil {
		return xerrors.Errorf("couldn't marshal key publication: %v", err)
	}

	err = s.db.Update(func(tx kv.WritableTx) error {
		bucket, err := tx.GetBucketOrCreate(keysBucket)
		if err != nil {
			return err
		}

		return bucket.Set(uint64Key(pub.NodeID), data)
	})

	if err != nil {
		return xerrors.Errorf("couldn't write key publication: %v", err)
	}

	return nil
}

// AddSignaturePublication implements history.WritableStore. It returns false
// when the node already signed for the construction.
func (s *Store) AddSignaturePublication(id uint64, pub types.SignaturePublication) (bool, error) {
	data, err := json.Marshal(pub)
	if err != nil {
		return false, xerrors.Errorf("couldn't marshal signature: %v", err)
	}

	added := false

	err = s.db.Update(func(tx kv.WritableTx) error {
		bucket, err := tx.GetBucketOrCreate(signaturesBucket)
		if err != nil {
			return err
		}

		key := pairKey(id, pub.NodeID)
		if bucket.Get(key) != nil {
			return nil
		}

		added = true

		return bucket.Set(key, data)
	})

	if err != nil {
		return false, xerrors.Errorf("couldn't write signature: %v", err)
	}

	return added, nil
}

// AddProofVote implements history.WritableStore. The first vote of a node is
// kept.
func (s *Store) AddProofVote(nodeID, id uint64, vote types.ProofVote) error {
	data, err := json.Marshal(vote)
	if err != nil {
		return xerrors.Errorf("couldn't marshal vote: %v", err)
	}

	err = s.db.Update(func(tx kv.WritableTx) error {
		bucket, err := tx.GetBucketOrCreate(votesBucket)
		if err != nil {
			return err
		}

		key := pairKey(id, nodeID)
		if bucket.Get(key) != nil {
			return nil
		}

		return bucket.Set(key, data)
	})

	if err != nil {
		return xerrors.Errorf("couldn't write vote: %v", err)
	}

	return nil
}

// GetLedgerID implements history.ReadableStore. It returns nil when the
// ledger id is not set.
func (s *Store) GetLedgerID() ([]byte, error) {
	var ledgerID []byte

	err := s.db.View(func(tx kv.ReadableTx) error {
		meta := tx.GetBucket(metaBucket)
		if meta == nil {
			return nil
		}

		value := meta.Get(ledgerIDKey)
		if value != nil {
			ledgerID = append([]byte{}, value...)
		}

		return nil
	})

	if err != nil {
		return nil, xerrors.Errorf("couldn't read ledger id: %v", err)
	}

	return ledgerID, nil
}

// SetLedgerID implements history.WritableStore.
func (s *Store) SetLedgerID(ledgerID []byte) error {
	err := s.db.Update(func(tx kv.WritableTx) error {
		meta, err := tx.GetBucketOrCreate(metaBucket)
		if err != nil {
			return err
		}

		return meta.Set(ledgerIDKey, ledgerID)
	})

	if err != nil {
		return xerrors.Errorf("couldn't write ledger id: %v", err)
	}

	return nil
}

// GetProofKeyPublications implements history.ReadableStore. It returns the
// publications of the nodes ordered by publication time.
func (s *Store) GetProofKeyPublications(nodeIDs []uint64) ([]types.ProofKeyPublication, error) {
	pubs := make([]types.ProofKeyPublication, 0, len(nodeIDs))

	err := s.db.View(func(tx kv.ReadableTx) error {
		bucket := tx.GetBucket(keysBucket)
		if bucket == nil {
			return nil
		}

		for _, nodeID := range nodeIDs {
			value := bucket.Get(uint64Key(nodeID))
			if value == nil {
				continue
			}

			var pub types.ProofKeyPublication
			err := json.Unmarshal(value, &pub)
			if err != nil {
				return xerrors.Errorf("malformed key publication: %v", err)
			}

			pubs = append(pubs, pub)
		}

		return nil
	})

	if err != nil {
		return nil, xerrors.Errorf("couldn't read key publications: %v", err)
	}

	sort.SliceStable(pubs, func(i, j int) bool {
		return pubs[i].PublishedAt.Before(pubs[j].PublishedAt)
	})

	return pubs, nil
}

// GetSignaturePublications implements history.ReadableStore. It returns the
// publications of the nodes for the construction, ordered by publication
// time.
func (s *Store) GetSignaturePublications(id uint64, nodeIDs []uint64) ([]types.SignaturePublication, error) {
	pubs := make([]types.SignaturePublication, 0, len(nodeIDs))

	err := s.db.View(func(tx kv.ReadableTx) error {
		bucket := tx.GetBucket(signaturesBucket)
		if bucket == nil {
			return nil
		}

		for _, nodeID := range nodeIDs {
			value := bucket.Get(pairKey(id, nodeID))
			if value == nil {
				continue
			}

			var pub types.SignaturePublication
			err := json.Unmarshal(value, &pub)
			if err != nil {
				return xerrors.Errorf("malformed signature: %v", err)
			}

			pubs = append(pubs, pub)
		}

		return nil
	})

	if err != nil {
		return nil, xerrors.Errorf("couldn't read signatures: %v", err)
	}

	sort.SliceStable(pubs, func(i, j int) bool {
		return pubs[i].PublishedAt.Before(pubs[j].PublishedAt)
	})

	return pubs, nil
}

// GetVotes implements history.ReadableStore. It returns the votes of the
// nodes for the construction.
func (s *Store) GetVotes(id uint64, nodeIDs []uint64) (map[uint64]types.ProofVote, error) {
	votes := make(map[uint64]types.ProofVote)

	err := s.db.View(func(tx kv.ReadableTx) error {
		bucket := tx.GetBucket(votesBucket)
		if bucket == nil {
			return nil
		}

		for _, nodeID := range nodeIDs {
			value := bucket.Get(pairKey(id, nodeID))
			if value == nil {
				continue
			}

			var vote types.ProofVote
			err := json.Unmarshal(value, &vote)
			if err != nil {
				return xerrors.Errorf("malformed vote: %v", err)
			}

			votes[nodeID] = vote
		}

		return nil
	})

	if err != nil {
		return nil, xerrors.Errorf("couldn't read votes: %v", err)
	}

	return votes, nil
}

// ListConstructions returns every construction in the order of the
// identifiers.
func (s *Store) ListConstructions() ([]types.Construction, error) {
	var constructions []types.Construction

	err := s.db.View(func(tx kv.ReadableTx) error {
		bucket := tx.GetBucket(constructionsBucket)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var construction types.Construction
			err := json.Unmarshal(v, &construction)
			if err != nil {
				return xerrors.Errorf("malformed construction: %v", err)
			}

			constructions = append(constructions, construction)

			return nil
		})
	})

	if err != nil {
		return nil, xerrors.Errorf("couldn't list constructions: %v", err)
	}

	return constructions, nil
}

// updateConstruction applies the change to the construction and writes it
// when the change returns true.
func (s *Store) updateConstruction(id uint64,
	change func(c *types.Construction) bool) (types.Construction, error) {

	var construction types.Construction

	err := s.db.Update(func(tx kv.WritableTx) error {
		current, err := s.readConstruction(tx, id)
		if err != nil {
			return err
		}

		if current == nil {
			return xerrors.Errorf("construction %d not found", id)
		}

		construction = *current

		if !change(&construction) {
			return nil
		}

		return s.writeConstruction(tx, construction)
	})

	if err != nil {
		return construction, xerrors.Errorf("couldn't update construction: %v", err)
	}

	return construction, nil
}

// supersede fails the construction when it is in progress for another target
// roster.
func (s *Store) supersede(tx kv.WritableTx, id uint64, targetHash []byte) error {
	previous, err := s.readConstruction(tx, id)
	if err != nil || previous == nil {
		return err
	}

	if !previous.IsInProgress() || bytes.Equal(previous.TargetRosterHash, targetHash) {
		return nil
	}

	previous.FailureReason = SupersededReason

	return s.writeConstruction(tx, *previous)
}

// findProofOf returns the proof of the latest finished construction whose
// target is the roster.
func (s *Store) findProofOf(tx kv.ReadableTx, rosterHash []byte) (*types.Proof, error) {
	bucket := tx.GetBucket(constructionsBucket)
	if bucket == nil {
		return nil, nil
	}

	var proof *types.Proof

	err := bucket.ForEach(func(k, v []byte) error {
		var construction types.Construction
		err := json.Unmarshal(v, &construction)
		if err != nil {
			return xerrors.Errorf("malformed construction: %v", err)
		}

		if construction.TargetProof != nil &&
			bytes.Equal(construction.TargetRosterHash, rosterHash) {
			proof = construction.TargetProof
		}

		return nil
	})

	return proof, err
}

func (s *Store) readConstruction(tx kv.ReadableTx, id uint64) (*types.Construction, error) {
	bucket := tx.GetBucket(constructionsBucket)
	if bucket == nil {
		return nil, nil
	}

	value := bucket.Get(uint64Key(id))
	if value == nil {
		return nil, nil
	}

	var construction types.Construction
	err := json.Unmarshal(value, &construction)
	if err != nil {
		return nil, xerrors.Errorf("malformed construction: %v", err)
	}

	return &construction, nil
}

func (s *Store) writeConstruction(tx kv.WritableTx, construction types.Construction) error {
	data, err := json.Marshal(construction)
	if err != nil {
		return xerrors.Errorf("couldn't marshal construction: %v", err)
	}

	bucket, err := tx.GetBucketOrCreate(constructionsBucket)
	if err != nil {
		return err
	}

	err = bucket.Set(uint64Key(construction.ConstructionID), data)
	if err != nil {
		return err
	}

	tx.OnCommit(func() {
		s.cache.Add(construction.ConstructionID, construction)
	})

	return nil
}

func indexKey(sourceHash, targetHash []byte) []byte {
	key := make([]byte, 0, 8+len(sourceHash)+len(targetHash))
	key = append(key, uint64Key(uint64(len(sourceHash)))...)
	key = append(key, sourceHash...)

	return append(key, targetHash...)
}

func pairKey(id, nodeID uint64) []byte {
	return append(uint64Key(id), uint64Key(nodeID)...)
}

func uint64Key(value uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, value)

	return key
}

func readUint64(bucket kv.Bucket, key []byte) (uint64, bool) {
	if bucket == nil {
		return 0, false
	}

	value := bucket.Get(key)
	if len(value) != 8 {
		return 0, false
	}

	return binary.BigEndian.Uint64(value), true
}

func writeUint64(bucket kv.Bucket, key []byte, value uint64) error {
	return bucket.Set(key, uint64Key(value))
}
