// Package types defines the data model of the history proofs: the
// constructions, the publications and votes of the nodes, and the proofs
// themselves.
package types

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"time"

	"github.com/joshmarinacci/hiero-consensus-node-sub002/crypto"
	"golang.org/x/xerrors"
)

// Construction is one attempt to assemble a chain-of-trust proof for a
// roster transition.
type Construction struct {
	ConstructionID   uint64 `json:"constructionId"`
	SourceRosterHash []byte `json:"sourceRosterHash"`
	TargetRosterHash []byte `json:"targetRosterHash"`

	// GracePeriodEndTime is the deadline after which missing proof keys are
	// tolerated.
	GracePeriodEndTime *time.Time `json:"gracePeriodEndTime,omitempty"`

	// AssemblyStartTime is set once the proof keys are frozen and the
	// signatures are collected. It is never unset.
	AssemblyStartTime *time.Time `json:"assemblyStartTime,omitempty"`

	// SourceProof is the proof of the source roster, if any, that the new
	// proof extends.
	SourceProof *Proof `json:"sourceProof,omitempty"`

	TargetProof   *Proof `json:"targetProof,omitempty"`
	FailureReason string `json:"failureReason,omitempty"`
}

// HasTargetProof returns true if the construction is finished.
func (c Construction) HasTargetProof() bool {
	return c.TargetProof != nil
}

// HasFailed returns true if the construction failed.
func (c Construction) HasFailed() bool {
	return c.FailureReason != ""
}

// HasAssemblyStartTime returns true if the construction collects signatures.
func (c Construction) HasAssemblyStartTime() bool {
	return c.AssemblyStartTime != nil
}

// IsInProgress returns true if the construction is neither finished nor
// failed.
func (c Construction) IsInProgress() bool {
	return !c.HasTargetProof() && !c.HasFailed()
}

// History is the roster metadata being proven: the hash of the address book
// of the target roster and the metadata bound to it.
type History struct {
	AddressBookHash []byte `json:"addressBookHash"`
	Metadata        []byte `json:"metadata"`
}

// Bytes returns the canonical encoding of the history, which is the message
// signed by the nodes.
func (h History) Bytes() []byte {
	buffer := new(bytes.Buffer)
	writeBytes(buffer, h.AddressBookHash)
	writeBytes(buffer, h.Metadata)

	return buffer.Bytes()
}

// Equal returns true if both histories are the same.
func (h History) Equal(other History) bool {
	return bytes.Equal(h.AddressBookHash, other.AddressBookHash) &&
		bytes.Equal(h.Metadata, other.Metadata)
}

// HistorySignature is the signature of a node over a history.
type HistorySignature struct {
	History   History `json:"history"`
	Signature []byte  `json:"signature"`
}

// ProofKeyPublication is the declaration by a node of the public key it uses
// to sign histories during a roster era.
type ProofKeyPublication struct {
	NodeID      uint64    `json:"nodeId"`
	ProofKey    []byte    `json:"proofKey"`
	PublishedAt time.Time `json:"publishedAt"`
}

// SignaturePublication is the signature of a node for a construction.
type SignaturePublication struct {
	NodeID      uint64           `json:"nodeId"`
	Signature   HistorySignature `json:"signature"`
	PublishedAt time.Time        `json:"publishedAt"`
}

// ProofKey is an entry of the address book of a proof.
type ProofKey struct {
	NodeID uint64 `json:"nodeId"`
	Key    []byte `json:"key"`
}

// ProofKind is the kind of chain-of-trust proof.
type ProofKind byte

const (
	// ListProof is a proof made of the list of signatures of the source
	// roster. It is used when the ledger id or the source proof is unknown.
	ListProof ProofKind = iota

	// LedgerProof is a proof bound to the ledger id and extending the proof of
	// the source roster.
	LedgerProof
)

func (k ProofKind) String() string {
	switch k {
	case ListProof:
		return "list"
	case LedgerProof:
		return "ledger"
	default:
		return "unknown"
	}
}

// ChainOfTrustProof is the opaque cryptographic artifact binding a target
// history to a previously trusted state.
type ChainOfTrustProof struct {
	Kind ProofKind `json:"kind"`
	Data []byte    `json:"data"`
}

// Proof is a complete history proof for a target roster.
type Proof struct {
	SourceAddressBookHash []byte             `json:"sourceAddressBookHash"`
	TargetProofKeys       []ProofKey         `json:"targetProofKeys"`
	TargetHistory         History            `json:"targetHistory"`
	ChainOfTrustProof     *ChainOfTrustProof `json:"chainOfTrustProof,omitempty"`
}

// HasChainOfTrustProof returns true if the proof carries its cryptographic
// component.
func (p Proof) HasChainOfTrustProof() bool {
	return p.ChainOfTrustProof != nil
}

// Fingerprint implements crypto.Fingerprinter. It writes a deterministic
// representation of the proof. Two proofs have the same fingerprint if and
// only if they are bit-identical.
func (p Proof) Fingerprint(w hash.Hash) error {
	buffer := new(bytes.Buffer)

	writeBytes(buffer, p.SourceAddressBookHash)

	writeUint64(buffer, uint64(len(p.TargetProofKeys)))
	for _, key := range p.TargetProofKeys {
		writeUint64(buffer, key.NodeID)
		writeBytes(buffer, key.Key)
	}

	writeBytes(buffer, p.TargetHistory.Bytes())

	if p.ChainOfTrustProof != nil {
		buffer.WriteByte(1)
		buffer.WriteByte(byte(p.ChainOfTrustProof.Kind))
		writeBytes(buffer, p.ChainOfTrustProof.Data)
	} else {
		buffer.WriteByte(0)
	}

	_, err := w.Write(buffer.Bytes())
	if err != nil {
		return xerrors.Errorf("couldn't write proof: %v", err)
	}

	return nil
}

// ID returns the hexadecimal blake3 digest of the proof.
func (p Proof) ID() string {
	digest, err := crypto.Digest(crypto.NewBlake3Factory(), p)
	if err != nil {
		panic(err)
	}

	return hex.EncodeToString(digest)
}

// Equal returns true if both proofs are bit-identical.
func (p Proof) Equal(other Proof) bool {
	return p.ID() == other.ID()
}

// ProofVote is the vote of a node for the proof of a construction. Exactly one
// of the fields is set: either the proof itself, or the node whose vote is
// the same as this one.
type ProofVote struct {
	Proof           *Proof  `json:"proof,omitempty"`
	CongruentNodeID *uint64 `json:"congruentNodeId,omitempty"`
}

// NewProofVote returns a vote for the proof.
func NewProofVote(proof Proof) ProofVote {
	return ProofVote{Proof: &proof}
}

// NewCongruentVote returns a vote identical to the vote of the node.
func NewCongruentVote(nodeID uint64) ProofVote {
	return ProofVote{CongruentNodeID: &nodeID}
}

// IsCongruent returns true if the vote refers to another vote.
func (v ProofVote) IsCongruent() bool {
	return v.CongruentNodeID != nil
}

// Validate returns an error if the vote does not have exactly one form.
func (v ProofVote) Validate() error {
	if v.Proof == nil && v.CongruentNodeID == nil {
		return xerrors.New("vote has neither a proof nor a congruent node")
	}

	if v.Proof != nil && v.CongruentNodeID != nil {
		return xerrors.New("vote has both a proof and a congruent node")
	}

	return nil
}

// SchnorrKeyPair is the signing material of a node for its proof key.
type SchnorrKeyPair struct {
	PrivateKey []byte `json:"privateKey"`
	PublicKey  []byte `json:"publicKey"`
}

// HintsConstruction is the construction of the threshold signing scheme whose
// verification key is the metadata proven by a history.
type HintsConstruction struct {
	ConstructionID  uint64
	VerificationKey []byte
}

// HasVerificationKey returns true if the construction produced a key.
func (h *HintsConstruction) HasVerificationKey() bool {
	return h != nil && len(h.VerificationKey) > 0
}

func writeBytes(buffer *bytes.Buffer, data []byte) {
	writeUint64(buffer, uint64(len(data)))
	buffer.Write(data)
}

func writeUint64(buffer *bytes.Buffer, value uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], value)
	buffer.Write(tmp[:])
}
