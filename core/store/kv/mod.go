// Package kv defines the key/value database the history state of a node is
// persisted in.
//
// The implementation uses bbolt (https://github.com/etcd-io/bbolt). The
// history store and the proof key accessor each keep their records in their
// own buckets of the same database.
package kv

import "github.com/joshmarinacci/hiero-consensus-node-sub002/core/store"

// Bucket is a named set of records of the database.
type Bucket interface {
	// Get returns the value of the key, or nil when it is missing.
	Get(key []byte) []byte

	Set(key, value []byte) error

	Delete(key []byte) error

	// ForEach calls fn on every record in the order of the keys until fn
	// returns an error.
	ForEach(fn func(k, v []byte) error) error

	// Scan is like ForEach but only for the keys starting with the prefix.
	Scan(prefix []byte, fn func(k, v []byte) error) error
}

// ReadableTx is a read-only transaction.
type ReadableTx interface {
	// GetBucket returns the bucket, or nil when it does not exist yet.
	GetBucket(name []byte) Bucket
}

// WritableTx is a read-write transaction. The callbacks registered with
// OnCommit run once the changes are persisted.
type WritableTx interface {
	store.Transaction

	ReadableTx

	GetBucketOrCreate(name []byte) (Bucket, error)
}

// DB is the database of a node. Update transactions are serialized.
type DB interface {
	View(fn func(ReadableTx) error) error

	Update(fn func(WritableTx) error) error

	Close() error
}
