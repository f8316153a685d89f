// Package keys implements the persistent storage of the proof keys of a node.
//
// A node keeps the same key pair from one construction to the next so that
// the keys proven by a construction can verify the signatures of the next
// one. The pair is recorded for every construction it is used for.
package keys

import (
	"encoding/binary"
	"encoding/json"
	"sync"

	"golang.org/x/xerrors"

	"github.com/joshmarinacci/hiero-consensus-node-sub002/core/store/kv"
	"github.com/joshmarinacci/hiero-consensus-node-sub002/history/types"
)

var bucketName = []byte("history-schnorr-keys")

// Generator creates new key pairs.
type Generator interface {
	NewSchnorrKeyPair() (types.SchnorrKeyPair, error)
}

// Accessor is the key/value implementation of the proof keys accessor.
//
// - implements history.ProofKeysAccessor
type Accessor struct {
	sync.Mutex

	db  kv.DB
	gen Generator
}

// NewAccessor returns an accessor storing the keys in the database.
func NewAccessor(db kv.DB, gen Generator) *Accessor {
	return &Accessor{
		db:  db,
		gen: gen,
	}
}

// GetOrCreateSchnorrKeyPair implements history.ProofKeysAccessor. It returns
// the pair of the construction, or the latest pair of the node, or it
// generates the first one.
func (a *Accessor) GetOrCreateSchnorrKeyPair(constructionID uint64) (types.SchnorrKeyPair, error) {
	a.Lock()
	defer a.Unlock()

	var kp types.SchnorrKeyPair

	err := a.db.Update(func(tx kv.WritableTx) error {
		bucket, err := tx.GetBucketOrCreate(bucketName)
		if err != nil {
			return err
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, constructionID)

		value := bucket.Get(key)
		if value != nil {
			return json.Unmarshal(value, &kp)
		}

		var latest []byte
		err = bucket.ForEach(func(k, v []byte) error {
			latest = v
			return nil
		})
		if err != nil {
			return err
		}

		if latest != nil {
			err = json.Unmarshal(latest, &kp)
		} else {
			kp, err = a.gen.NewSchnorrKeyPair()
		}
		if err != nil {
			return err
		}

		data, err := json.Marshal(kp)
		if err != nil {
			return err
		}

		return bucket.Set(key, data)
	})

	if err != nil {
		return kp, xerrors.Errorf("couldn't get key pair: %v", err)
	}

	return kp, nil
}
