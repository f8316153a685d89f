package roster

import (
	"math/bits"

	"golang.org/x/xerrors"
)

// ErrWeightOverflow is returned when the sum of weights does not fit on 64
// bits.
var ErrWeightOverflow = xerrors.New("weight overflowed")

// Threshold is a fraction of a total weight that a subset must hold.
type Threshold byte

const (
	// StrongMinority is satisfied by more than a third of the total weight,
	// i.e. 3w > total. Such a subset always contains an honest node.
	StrongMinority Threshold = iota

	// Majority is satisfied by more than half of the total weight, i.e.
	// 2w > total.
	Majority

	// SuperMajority is satisfied by at least two thirds of the total weight,
	// i.e. 3w >= 2*total.
	SuperMajority
)

func (t Threshold) String() string {
	switch t {
	case StrongMinority:
		return "strong-minority"
	case Majority:
		return "majority"
	case SuperMajority:
		return "super-majority"
	default:
		return "unknown"
	}
}

// MinWeight returns the smallest weight that satisfies the threshold for the
// given total. The computation does not overflow for any total.
func (t Threshold) MinWeight(total uint64) uint64 {
	switch t {
	case StrongMinority:
		return total/3 + 1
	case Majority:
		return total/2 + 1
	case SuperMajority:
		// ceil(2*total/3) without computing 2*total.
		return total - total/3
	default:
		panic("unknown threshold")
	}
}

// IsSatisfiedBy returns true if the weight satisfies the threshold of the
// total.
func (t Threshold) IsSatisfiedBy(weight, total uint64) bool {
	return weight >= t.MinWeight(total)
}

// SumWeights returns the sum of the weights, or an error if it overflows.
func SumWeights(weights ...uint64) (uint64, error) {
	var sum, carry uint64

	for _, w := range weights {
		sum, carry = bits.Add64(sum, w, 0)
		if carry != 0 {
			return 0, ErrWeightOverflow
		}
	}

	return sum, nil
}
