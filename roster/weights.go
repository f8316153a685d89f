package roster

import (
	"sort"

	"golang.org/x/xerrors"
)

// TransitionWeights is a read-only view over the weights of the source and
// target rosters of a transition. The source roster endorses the target
// roster, so signatures and votes are counted with source weights, while
// proof keys are counted with target weights.
type TransitionWeights struct {
	source      map[uint64]uint64
	target      map[uint64]uint64
	sourceIDs   []uint64
	targetIDs   []uint64
	sourceTotal uint64
	targetTotal uint64
}

// NewTransitionWeights computes the view of the transition between the two
// rosters.
func NewTransitionWeights(source, target Roster) (TransitionWeights, error) {
	sourceTotal, err := source.TotalWeight()
	if err != nil {
		return TransitionWeights{}, xerrors.Errorf("source roster: %v", err)
	}

	targetTotal, err := target.TotalWeight()
	if err != nil {
		return TransitionWeights{}, xerrors.Errorf("target roster: %v", err)
	}

	tw := TransitionWeights{
		source:      source.Weights(),
		target:      target.Weights(),
		sourceTotal: sourceTotal,
		targetTotal: targetTotal,
	}

	tw.sourceIDs = sortedKeys(tw.source)
	tw.targetIDs = sortedKeys(tw.target)

	return tw, nil
}

// SourceWeightOf returns the weight of the node in the source roster.
func (tw TransitionWeights) SourceWeightOf(id uint64) uint64 {
	return tw.source[id]
}

// TargetWeightOf returns the weight of the node in the target roster.
func (tw TransitionWeights) TargetWeightOf(id uint64) uint64 {
	return tw.target[id]
}

// SourceTotalWeight returns the total weight of the source roster.
func (tw TransitionWeights) SourceTotalWeight() uint64 {
	return tw.sourceTotal
}

// TargetTotalWeight returns the total weight of the target roster.
func (tw TransitionWeights) TargetTotalWeight() uint64 {
	return tw.targetTotal
}

// SourceWeightThreshold returns the source weight that signatures and votes
// must reach, which is a super-majority of the source roster.
func (tw TransitionWeights) SourceWeightThreshold() uint64 {
	return SuperMajority.MinWeight(tw.sourceTotal)
}

// TargetWeightThreshold returns the target weight the published proof keys
// must reach after the grace period, which is a strong minority of the target
// roster.
func (tw TransitionWeights) TargetWeightThreshold() uint64 {
	return StrongMinority.MinWeight(tw.targetTotal)
}

// SourceNodesHaveTargetThreshold returns true if the nodes of the source
// roster that are also in the target roster hold at least the target weight
// threshold. Otherwise the source roster cannot safely vouch for the target.
func (tw TransitionWeights) SourceNodesHaveTargetThreshold() bool {
	var weight uint64
	for _, id := range tw.targetIDs {
		if _, found := tw.source[id]; found {
			// The total of the target roster does not overflow so neither
			// does a partial sum.
			weight += tw.target[id]
		}
	}

	return weight >= tw.TargetWeightThreshold()
}

// SourceIncludes returns true if the node is in the source roster.
func (tw TransitionWeights) SourceIncludes(id uint64) bool {
	_, found := tw.source[id]
	return found
}

// TargetIncludes returns true if the node is in the target roster.
func (tw TransitionWeights) TargetIncludes(id uint64) bool {
	_, found := tw.target[id]
	return found
}

// NumTargetNodesInSource returns the number of target nodes that are also
// members of the source roster.
func (tw TransitionWeights) NumTargetNodesInSource() int {
	n := 0
	for _, id := range tw.targetIDs {
		if _, found := tw.source[id]; found {
			n++
		}
	}

	return n
}

// SourceNodeIDs returns the sorted identifiers of the source roster.
func (tw TransitionWeights) SourceNodeIDs() []uint64 {
	return append([]uint64{}, tw.sourceIDs...)
}

// TargetNodeIDs returns the sorted identifiers of the target roster.
func (tw TransitionWeights) TargetNodeIDs() []uint64 {
	return append([]uint64{}, tw.targetIDs...)
}

// SourceNodeWeights returns a copy of the weights of the source roster.
func (tw TransitionWeights) SourceNodeWeights() map[uint64]uint64 {
	return copyWeights(tw.source)
}

// TargetNodeWeights returns a copy of the weights of the target roster.
func (tw TransitionWeights) TargetNodeWeights() map[uint64]uint64 {
	return copyWeights(tw.target)
}

func sortedKeys(weights map[uint64]uint64) []uint64 {
	ids := make([]uint64, 0, len(weights))
	for id := range weights {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

func copyWeights(weights map[uint64]uint64) map[uint64]uint64 {
	res := make(map[uint64]uint64, len(weights))
	for k, v := range weights {
		res[k] = v
	}

	return res
}
