// Package quorum computes weighted subsets of a set of nodes that satisfy, or
// stay below, the Byzantine thresholds of the roster package.
//
// All the searches ignore nodes without weight since they can neither help
// nor prevent reaching a threshold. Results are returned in input order.
//
// The searches are exact: a branch and bound over the nodes sorted by
// decreasing weight, seeded with the greedy solution. A step budget bounds
// the exploration of very large rosters, in which case the best subset found
// so far is returned; it always satisfies the requested band.
package quorum

import (
	"sort"

	"github.com/joshmarinacci/hiero-consensus-node-sub002/roster"
	"golang.org/x/xerrors"
)

// defaultBudget is the number of search steps after which the exploration
// stops.
const defaultBudget = 1 << 22

var (
	// ErrNilNodes is returned when the list of nodes is nil.
	ErrNilNodes = xerrors.New("nodes must not be nil")

	// ErrEmptyNodes is returned when the list of nodes is empty.
	ErrEmptyNodes = xerrors.New("nodes must not be empty")

	// ErrNoWeight is returned when no node has a positive weight.
	ErrNoWeight = xerrors.New("nodes must have a positive total weight")

	// ErrNoPartition is returned when no subset lies in the requested band.
	ErrNoPartition = xerrors.New("no valid partition found")
)

// Node is a participant with its weight.
type Node struct {
	ID     uint64
	Weight uint64
}

// Option is the type of option to configure a calculator.
type Option func(*Calculator)

// WithBudget sets the maximum number of steps of a search.
func WithBudget(steps int) Option {
	return func(c *Calculator) {
		c.budget = steps
	}
}

// Calculator computes the partitions. It is stateless and safe to use
// concurrently.
type Calculator struct {
	budget int
}

// NewCalculator returns a new calculator.
func NewCalculator(opts ...Option) Calculator {
	c := Calculator{budget: defaultBudget}

	for _, opt := range opts {
		opt(&c)
	}

	return c
}

var defaultCalculator = NewCalculator()

// SmallestStrongMinority returns the subset of minimum weight w such that
// 3w > total and 2w < total.
func SmallestStrongMinority(nodes []Node) ([]Node, error) {
	return defaultCalculator.SmallestStrongMinority(nodes)
}

// SmallestMajority returns the subset of minimum weight w such that
// 2w > total and 3w < 2*total.
func SmallestMajority(nodes []Node) ([]Node, error) {
	return defaultCalculator.SmallestMajority(nodes)
}

// SmallestSuperMajority returns the subset of minimum weight w such that
// 3w >= 2*total.
func SmallestSuperMajority(nodes []Node) ([]Node, error) {
	return defaultCalculator.SmallestSuperMajority(nodes)
}

// LargestSubStrongMinority returns the non-empty subset of maximum weight w
// such that 3w <= total.
func LargestSubStrongMinority(nodes []Node) ([]Node, error) {
	return defaultCalculator.LargestSubStrongMinority(nodes)
}

// SmallestStrongMinority returns the subset of minimum weight that is a strong
// minority without being half of the total weight.
func (c Calculator) SmallestStrongMinority(nodes []Node) ([]Node, error) {
	s, total, err := c.prepare(nodes)
	if err != nil {
		return nil, xerrors.Errorf("strong minority: %w", err)
	}

	lo := roster.StrongMinority.MinWeight(total)
	// Smallest weight w with 2w >= total.
	hi := total - total/2

	res, err := s.smallestIn(lo, hi)
	if err != nil {
		return nil, xerrors.Errorf("strong minority: %w", err)
	}

	return res, nil
}

// SmallestMajority returns the subset of minimum weight that is a majority
// without being a super-majority.
func (c Calculator) SmallestMajority(nodes []Node) ([]Node, error) {
	s, total, err := c.prepare(nodes)
	if err != nil {
		return nil, xerrors.Errorf("majority: %w", err)
	}

	lo := roster.Majority.MinWeight(total)
	hi := roster.SuperMajority.MinWeight(total)

	res, err := s.smallestIn(lo, hi)
	if err != nil {
		return nil, xerrors.Errorf("majority: %w", err)
	}

	return res, nil
}

// SmallestSuperMajority returns the subset of minimum weight that is a
// super-majority. A solution always exists.
func (c Calculator) SmallestSuperMajority(nodes []Node) ([]Node, error) {
	s, total, err := c.prepare(nodes)
	if err != nil {
		return nil, xerrors.Errorf("super-majority: %w", err)
	}

	lo := roster.SuperMajority.MinWeight(total)

	res, err := s.smallestIn(lo, 0)
	if err != nil {
		return nil, xerrors.Errorf("super-majority: %w", err)
	}

	return res, nil
}

// LargestSubStrongMinority returns the non-empty subset of maximum weight that
// is not a strong minority. No other node of the input can be added to the
// result without crossing the threshold.
func (c Calculator) LargestSubStrongMinority(nodes []Node) ([]Node, error) {
	s, total, err := c.prepare(nodes)
	if err != nil {
		return nil, xerrors.Errorf("sub strong minority: %w", err)
	}

	limit := roster.StrongMinority.MinWeight(total) - 1

	sel := s.maxAtMost(limit)
	if len(sel.indices) == 0 {
		return nil, xerrors.Errorf("sub strong minority: %w", ErrNoPartition)
	}

	return s.nodesOf(sel), nil
}

func (c Calculator) prepare(nodes []Node) (*search, uint64, error) {
	if nodes == nil {
		return nil, 0, ErrNilNodes
	}

	if len(nodes) == 0 {
		return nil, 0, ErrEmptyNodes
	}

	weights := make([]uint64, len(nodes))
	for i, n := range nodes {
		weights[i] = n.Weight
	}

	total, err := roster.SumWeights(weights...)
	if err != nil {
		return nil, 0, err
	}

	if total == 0 {
		return nil, 0, ErrNoWeight
	}

	return newSearch(nodes, c.budget), total, nil
}

// entry is a node with a positive weight and its position in the input.
type entry struct {
	Node
	pos int
}

// selection is a candidate subset. The indices refer to the sorted entries of
// the search.
type selection struct {
	indices []int
	sum     uint64
}

type search struct {
	entries []entry
	// suffix[i] is the total weight of entries[i:].
	suffix []uint64
	budget int
	steps  int
}

func newSearch(nodes []Node, budget int) *search {
	entries := make([]entry, 0, len(nodes))
	for i, n := range nodes {
		if n.Weight > 0 {
			entries = append(entries, entry{Node: n, pos: i})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Weight > entries[j].Weight
	})

	suffix := make([]uint64, len(entries)+1)
	for i := len(entries) - 1; i >= 0; i-- {
		suffix[i] = suffix[i+1] + entries[i].Weight
	}

	return &search{
		entries: entries,
		suffix:  suffix,
		budget:  budget,
	}
}

// smallestIn returns the subset of minimum weight in [lo, hi). A zero hi means
// there is no upper bound.
func (s *search) smallestIn(lo, hi uint64) ([]Node, error) {
	sel := s.minAtLeast(lo)

	if hi > 0 && sel.sum >= hi {
		// Every subset reaching lo weighs at least sel.sum.
		return nil, ErrNoPartition
	}

	return s.nodesOf(sel), nil
}

// minAtLeast returns the subset of minimum weight that is at least lo. The
// caller guarantees that the total weight is at least lo.
func (s *search) minAtLeast(lo uint64) selection {
	best := s.greedyAtLeast(lo)
	chosen := make([]int, 0, len(s.entries))
	s.steps = 0

	var visit func(i int, sum uint64)
	visit = func(i int, sum uint64) {
		if s.steps >= s.budget {
			return
		}
		s.steps++

		if sum >= lo {
			cand := selection{indices: chosen, sum: sum}
			if s.lessMin(cand, best) {
				best = selection{indices: append([]int{}, chosen...), sum: sum}
			}
			return
		}

		if i == len(s.entries) || sum+s.suffix[i] < lo {
			return
		}

		if best.sum == lo && len(chosen)+1 > len(best.indices) {
			// Only ties on the weight are possible, and with more nodes.
			return
		}

		chosen = append(chosen, i)
		visit(i+1, sum+s.entries[i].Weight)
		chosen = chosen[:len(chosen)-1]

		visit(i+1, sum)
	}

	visit(0, 0)

	return best
}

// maxAtMost returns the non-empty subset of maximum weight that is at most
// limit, or an empty selection when every node is heavier than the limit.
func (s *search) maxAtMost(limit uint64) selection {
	best := s.greedyAtMost(limit)
	if len(best.indices) == 0 {
		return best
	}

	chosen := make([]int, 0, len(s.entries))
	s.steps = 0

	var visit func(i int, sum uint64)
	visit = func(i int, sum uint64) {
		if s.steps >= s.budget {
			return
		}
		s.steps++

		if len(chosen) > 0 {
			cand := selection{indices: chosen, sum: sum}
			if s.lessMax(cand, best) {
				best = selection{indices: append([]int{}, chosen...), sum: sum}
			}
		}

		if i == len(s.entries) || sum+s.suffix[i] < best.sum {
			return
		}

		if best.sum == limit && len(chosen) >= len(best.indices) {
			// Only ties on the weight are possible, and with more nodes.
			return
		}

		if sum+s.entries[i].Weight <= limit {
			chosen = append(chosen, i)
			visit(i+1, sum+s.entries[i].Weight)
			chosen = chosen[:len(chosen)-1]
		}

		visit(i+1, sum)
	}

	visit(0, 0)

	return s.fill(best, limit)
}

// greedyAtLeast accumulates the heaviest nodes until the sum reaches lo.
func (s *search) greedyAtLeast(lo uint64) selection {
	sel := selection{}

	for i, e := range s.entries {
		if sel.sum >= lo {
			break
		}

		sel.indices = append(sel.indices, i)
		sel.sum += e.Weight
	}

	return sel
}

// greedyAtMost adds the heaviest nodes that still fit under the limit.
func (s *search) greedyAtMost(limit uint64) selection {
	return s.fill(selection{}, limit)
}

// fill adds every node, heaviest first, that fits under the limit so that the
// selection is maximal.
func (s *search) fill(sel selection, limit uint64) selection {
	in := make(map[int]struct{}, len(sel.indices))
	for _, i := range sel.indices {
		in[i] = struct{}{}
	}

	res := selection{indices: append([]int{}, sel.indices...), sum: sel.sum}

	for i, e := range s.entries {
		if _, found := in[i]; found {
			continue
		}

		if res.sum+e.Weight <= limit {
			res.indices = append(res.indices, i)
			res.sum += e.Weight
		}
	}

	sort.Ints(res.indices)

	return res
}

// lessMin returns true if a is a better minimal selection than b: a smaller
// weight, then fewer nodes, then earlier input positions.
func (s *search) lessMin(a, b selection) bool {
	if a.sum != b.sum {
		return a.sum < b.sum
	}

	return s.lessTie(a, b)
}

// lessMax returns true if a is a better maximal selection than b: a larger
// weight, then fewer nodes, then earlier input positions.
func (s *search) lessMax(a, b selection) bool {
	if a.sum != b.sum {
		return a.sum > b.sum
	}

	return s.lessTie(a, b)
}

func (s *search) lessTie(a, b selection) bool {
	if len(a.indices) != len(b.indices) {
		return len(a.indices) < len(b.indices)
	}

	pa := s.positions(a)
	pb := s.positions(b)

	for i := range pa {
		if pa[i] != pb[i] {
			return pa[i] < pb[i]
		}
	}

	return false
}

func (s *search) positions(sel selection) []int {
	pos := make([]int, len(sel.indices))
	for i, index := range sel.indices {
		pos[i] = s.entries[index].pos
	}

	sort.Ints(pos)

	return pos
}

func (s *search) nodesOf(sel selection) []Node {
	entries := make([]entry, len(sel.indices))
	for i, index := range sel.indices {
		entries[i] = s.entries[index]
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].pos < entries[j].pos })

	nodes := make([]Node, len(entries))
	for i, e := range entries {
		nodes[i] = e.Node
	}

	return nodes
}
