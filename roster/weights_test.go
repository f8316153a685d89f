package roster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionWeights_Basic(t *testing.T) {
	source := New(
		Entry{NodeID: 1, Weight: 10},
		Entry{NodeID: 2, Weight: 20},
		Entry{NodeID: 3, Weight: 30},
	)
	target := New(
		Entry{NodeID: 2, Weight: 5},
		Entry{NodeID: 3, Weight: 5},
		Entry{NodeID: 4, Weight: 5},
	)

	tw, err := NewTransitionWeights(source, target)
	require.NoError(t, err)

	require.Equal(t, uint64(20), tw.SourceWeightOf(2))
	require.Equal(t, uint64(0), tw.SourceWeightOf(4))
	require.Equal(t, uint64(5), tw.TargetWeightOf(4))
	require.Equal(t, uint64(0), tw.TargetWeightOf(1))

	require.Equal(t, uint64(40), tw.SourceWeightThreshold())
	require.Equal(t, uint64(6), tw.TargetWeightThreshold())
	require.True(t, tw.SourceNodesHaveTargetThreshold())

	require.True(t, tw.SourceIncludes(1))
	require.False(t, tw.SourceIncludes(4))
	require.True(t, tw.TargetIncludes(4))
	require.False(t, tw.TargetIncludes(1))

	require.Equal(t, 2, tw.NumTargetNodesInSource())
	require.Equal(t, []uint64{1, 2, 3}, tw.SourceNodeIDs())
	require.Equal(t, []uint64{2, 3, 4}, tw.TargetNodeIDs())

	weights := tw.SourceNodeWeights()
	weights[1] = 99
	require.Equal(t, uint64(10), tw.SourceWeightOf(1))
	require.Equal(t, map[uint64]uint64{2: 5, 3: 5, 4: 5}, tw.TargetNodeWeights())
}

func TestTransitionWeights_NotEnoughOverlap(t *testing.T) {
	source := New(Entry{NodeID: 1, Weight: 10})
	target := New(
		Entry{NodeID: 1, Weight: 1},
		Entry{NodeID: 2, Weight: 10},
	)

	tw, err := NewTransitionWeights(source, target)
	require.NoError(t, err)
	require.False(t, tw.SourceNodesHaveTargetThreshold())
}

func TestTransitionWeights_Overflow(t *testing.T) {
	bad := New(Entry{NodeID: 1, Weight: math.MaxUint64}, Entry{NodeID: 2, Weight: 1})
	good := New(Entry{NodeID: 1, Weight: 1})

	_, err := NewTransitionWeights(bad, good)
	require.EqualError(t, err, "source roster: weight overflowed")

	_, err = NewTransitionWeights(good, bad)
	require.EqualError(t, err, "target roster: weight overflowed")
}
