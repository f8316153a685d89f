// Package roster defines the weighted sets of nodes participating to the
// ledger, the phases of a roster transition, and the weight view used to
// decide which subsets of a roster can authorize a transition.
package roster

import (
	"encoding/binary"
	"hash"

	"github.com/joshmarinacci/hiero-consensus-node-sub002/crypto"
	"golang.org/x/xerrors"
)

// Entry is a member of a roster.
type Entry struct {
	NodeID uint64 `json:"nodeId" yaml:"node"`
	Weight uint64 `json:"weight" yaml:"weight"`
}

// Roster is the weighted set of nodes of an era. The order of the entries is
// the canonical order used to fingerprint the roster.
type Roster struct {
	Entries []Entry `json:"entries" yaml:"entries"`
}

// New creates a roster from the list of entries.
func New(entries ...Entry) Roster {
	return Roster{Entries: append([]Entry{}, entries...)}
}

// Len returns the number of members.
func (r Roster) Len() int {
	return len(r.Entries)
}

// WeightOf returns the weight of the node, or zero if it is not a member.
func (r Roster) WeightOf(id uint64) uint64 {
	for _, e := range r.Entries {
		if e.NodeID == id {
			return e.Weight
		}
	}

	return 0
}

// Includes returns true if the node is a member of the roster.
func (r Roster) Includes(id uint64) bool {
	for _, e := range r.Entries {
		if e.NodeID == id {
			return true
		}
	}

	return false
}

// Weights returns the weight of each member by node identifier.
func (r Roster) Weights() map[uint64]uint64 {
	weights := make(map[uint64]uint64, len(r.Entries))
	for _, e := range r.Entries {
		weights[e.NodeID] = e.Weight
	}

	return weights
}

// TotalWeight returns the sum of the weights, or an error if it overflows.
func (r Roster) TotalWeight() (uint64, error) {
	weights := make([]uint64, len(r.Entries))
	for i, e := range r.Entries {
		weights[i] = e.Weight
	}

	return SumWeights(weights...)
}

// Fingerprint implements crypto.Fingerprinter. It writes a deterministic
// binary representation of the roster.
func (r Roster) Fingerprint(w hash.Hash) error {
	buffer := make([]byte, 16)

	for _, e := range r.Entries {
		binary.BigEndian.PutUint64(buffer[:8], e.NodeID)
		binary.BigEndian.PutUint64(buffer[8:], e.Weight)

		_, err := w.Write(buffer)
		if err != nil {
			return xerrors.Errorf("couldn't write entry: %v", err)
		}
	}

	return nil
}

// Hash returns the blake3 digest of the roster.
func (r Roster) Hash() []byte {
	digest, err := crypto.Digest(crypto.NewBlake3Factory(), r)
	if err != nil {
		// Writing to a hash never fails.
		panic(err)
	}

	return digest
}

// Phase is the step of a roster transition the network is in.
type Phase byte

const (
	// Bootstrap is the phase of a network that has no proof yet for its
	// genesis roster.
	Bootstrap Phase = iota

	// Transition is the phase where a candidate roster is waiting for the
	// proof that lets it take over the current roster.
	Transition

	// Handoff is the phase right after a target roster became the current
	// one, and nothing needs to be proven.
	Handoff
)

func (p Phase) String() string {
	switch p {
	case Bootstrap:
		return "bootstrap"
	case Transition:
		return "transition"
	case Handoff:
		return "handoff"
	default:
		return "unknown"
	}
}

// ActiveRosters is the pair of rosters a node works with at a given round
// alongside the phase of the transition between them.
type ActiveRosters struct {
	phase  Phase
	source Roster
	target Roster
}

// NewBootstrap returns the active rosters of a network proving its genesis
// roster. The roster is both the source and the target.
func NewBootstrap(genesis Roster) ActiveRosters {
	return ActiveRosters{phase: Bootstrap, source: genesis, target: genesis}
}

// NewTransition returns the active rosters of a network moving from the
// current roster to the candidate one.
func NewTransition(current, candidate Roster) ActiveRosters {
	return ActiveRosters{phase: Transition, source: current, target: candidate}
}

// NewHandoff returns the active rosters right after the previous roster
// handed off to the current one.
func NewHandoff(previous, current Roster) ActiveRosters {
	return ActiveRosters{phase: Handoff, source: previous, target: current}
}

// Phase returns the phase of the transition.
func (a ActiveRosters) Phase() Phase {
	return a.phase
}

// Source returns the roster that must endorse the target roster.
func (a ActiveRosters) Source() Roster {
	return a.source
}

// Target returns the roster being proven.
func (a ActiveRosters) Target() Roster {
	return a.target
}

// SourceRosterHash returns the hash of the source roster.
func (a ActiveRosters) SourceRosterHash() []byte {
	return a.source.Hash()
}

// TargetRosterHash returns the hash of the target roster.
func (a ActiveRosters) TargetRosterHash() []byte {
	return a.target.Hash()
}

// TransitionWeights returns the weight view of the transition from the source
// roster to the target roster.
func (a ActiveRosters) TransitionWeights() (TransitionWeights, error) {
	return NewTransitionWeights(a.source, a.target)
}
