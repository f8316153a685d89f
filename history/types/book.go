package types

import (
	"bytes"
	"hash"
	"sort"

	"golang.org/x/xerrors"
)

// AddressBookEntry is a node of an address book with its weight and its proof
// key. The key is empty when the node did not publish one.
type AddressBookEntry struct {
	NodeID uint64 `json:"nodeId"`
	Weight uint64 `json:"weight"`
	Key    []byte `json:"key,omitempty"`
}

// AddressBook is the list of the nodes of a roster with their weights and
// proof keys, ordered by node id.
type AddressBook struct {
	Entries []AddressBookEntry `json:"entries"`
}

// NewAddressBook creates the address book of the weights. Nodes without a key
// are kept with an empty key so that the book always covers the roster.
func NewAddressBook(weights map[uint64]uint64, keys map[uint64][]byte) AddressBook {
	ids := make([]uint64, 0, len(weights))
	for id := range weights {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	entries := make([]AddressBookEntry, len(ids))
	for i, id := range ids {
		entries[i] = AddressBookEntry{
			NodeID: id,
			Weight: weights[id],
			Key:    keys[id],
		}
	}

	return AddressBook{Entries: entries}
}

// Len returns the number of nodes in the book.
func (b AddressBook) Len() int {
	return len(b.Entries)
}

// KeyOf returns the proof key of the node, or nil.
func (b AddressBook) KeyOf(id uint64) []byte {
	entry, found := b.find(id)
	if !found {
		return nil
	}

	return entry.Key
}

// WeightOf returns the weight of the node, or zero.
func (b AddressBook) WeightOf(id uint64) uint64 {
	entry, found := b.find(id)
	if !found {
		return 0
	}

	return entry.Weight
}

// ProofKeys returns the entries of the nodes that have a key.
func (b AddressBook) ProofKeys() []ProofKey {
	keys := make([]ProofKey, 0, len(b.Entries))
	for _, entry := range b.Entries {
		if len(entry.Key) == 0 {
			continue
		}

		keys = append(keys, ProofKey{NodeID: entry.NodeID, Key: entry.Key})
	}

	return keys
}

// Fingerprint implements crypto.Fingerprinter. It writes the entries in order
// with their lengths so that two different books never share a fingerprint.
func (b AddressBook) Fingerprint(w hash.Hash) error {
	buffer := new(bytes.Buffer)

	writeUint64(buffer, uint64(len(b.Entries)))
	for _, entry := range b.Entries {
		writeUint64(buffer, entry.NodeID)
		writeUint64(buffer, entry.Weight)
		writeBytes(buffer, entry.Key)
	}

	_, err := w.Write(buffer.Bytes())
	if err != nil {
		return xerrors.Errorf("couldn't write address book: %v", err)
	}

	return nil
}

func (b AddressBook) find(id uint64) (AddressBookEntry, bool) {
	i := sort.Search(len(b.Entries), func(i int) bool {
		return b.Entries[i].NodeID >= id
	})

	if i < len(b.Entries) && b.Entries[i].NodeID == id {
		return b.Entries[i], true
	}

	return AddressBookEntry{}, false
}

// ProofRequest is the input of a chain-of-trust proof: the signatures of the
// source roster over the target history, and what is known of the chain the
// proof extends.
type ProofRequest struct {
	// LedgerID is the identifier of the ledger, nil when it is not known yet.
	LedgerID []byte

	// SourceProof is the chain-of-trust proof of the source roster, nil for
	// the genesis roster.
	SourceProof *ChainOfTrustProof

	SourceAddressBook AddressBook
	TargetHistory     History

	// Signatures are the signatures of the source nodes over the target
	// history, by node id.
	Signatures map[uint64][]byte
}
