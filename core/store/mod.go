// Package store holds what the storage backends of the node have in common.
package store

// Transaction is an atomic set of changes.
type Transaction interface {
	// OnCommit registers fn to run after the transaction is committed. It is
	// not called when the transaction is rolled back.
	OnCommit(fn func())
}
