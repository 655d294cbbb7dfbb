// Package rank computes PageRank-style authority scores by damped power iteration.
package rank

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/gorbunovakris4/hse-crawler/internal/graph"
)

// Solver defaults.
const (
	DefaultDamping       = 0.85
	DefaultTolerance     = 1e-6
	DefaultMaxIterations = 1000
)

// ErrEmptyGraph is returned when there are no nodes to rank.
var ErrEmptyGraph = errors.New("rank: graph has no nodes")

// Options tunes the solver. Zero values select the defaults.
type Options struct {
	Damping       float64
	Tolerance     float64
	MaxIterations int
}

func (o Options) withDefaults() (Options, error) {
	if o.Damping == 0 {
		o.Damping = DefaultDamping
	}
	if o.Tolerance == 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.MaxIterations == 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	switch {
	case o.Damping <= 0 || o.Damping >= 1:
		return o, fmt.Errorf("rank: damping must be in (0, 1), got %v", o.Damping)
	case o.Tolerance < 0:
		return o, fmt.Errorf("rank: tolerance must be positive, got %v", o.Tolerance)
	case o.MaxIterations < 0:
		return o, fmt.Errorf("rank: max iterations must be positive, got %d", o.MaxIterations)
	}
	return o, nil
}

// Result is the outcome of a solve. When Converged is false the last
// iterate is still returned in Ranks.
type Result struct {
	Ranks      []float64
	Iterations int
	Converged  bool
	Delta      float64
}

// adjacency stores outgoing edges in compressed sparse row form. Parallel
// edges are kept, so a node's out-degree counts link multiplicity.
type adjacency struct {
	offsets []int
	targets []int
}

func newAdjacency(n int, edges []graph.Edge) (adjacency, error) {
	offsets := make([]int, n+1)
	for _, e := range edges {
		if e.From < 0 || e.From >= n || e.To < 0 || e.To >= n {
			return adjacency{}, fmt.Errorf("rank: edge %d->%d outside 0..%d", e.From, e.To, n-1)
		}
		offsets[e.From+1]++
	}
	for i := 0; i < n; i++ {
		offsets[i+1] += offsets[i]
	}
	targets := make([]int, len(edges))
	next := append([]int(nil), offsets[:n]...)
	for _, e := range edges {
		targets[next[e.From]] = e.To
		next[e.From]++
	}
	return adjacency{offsets: offsets, targets: targets}, nil
}

func (a adjacency) outDegree(j int) int {
	return a.offsets[j+1] - a.offsets[j]
}

func (a adjacency) out(j int) []int {
	return a.targets[a.offsets[j]:a.offsets[j+1]]
}

// Solve ranks the n nodes of the graph described by edges. Rank mass held by
// dangling nodes is spread uniformly over all nodes on every iteration, so
// the vector keeps summing to 1.
func Solve(n int, edges []graph.Edge, opts Options) (Result, error) {
	if n <= 0 {
		return Result{}, ErrEmptyGraph
	}
	opts, err := opts.withDefaults()
	if err != nil {
		return Result{}, err
	}
	adj, err := newAdjacency(n, edges)
	if err != nil {
		return Result{}, err
	}

	size := float64(n)
	current := make([]float64, n)
	for i := range current {
		current[i] = 1 / size
	}
	acc := make([]float64, n)
	next := make([]float64, n)

	res := Result{}
	for res.Iterations < opts.MaxIterations {
		res.Iterations++
		for k := range acc {
			acc[k] = 0
		}
		dangling := 0.0
		for j := 0; j < n; j++ {
			deg := adj.outDegree(j)
			if deg == 0 {
				dangling += current[j]
				continue
			}
			share := current[j] / float64(deg)
			for _, k := range adj.out(j) {
				acc[k] += share
			}
		}
		floats.ScaleTo(next, opts.Damping, acc)
		floats.AddConst((1-opts.Damping)/size+opts.Damping*dangling/size, next)

		res.Delta = floats.Distance(next, current, 2)
		current, next = next, current
		if res.Delta < opts.Tolerance {
			res.Converged = true
			break
		}
	}
	res.Ranks = current
	return res, nil
}

// Top returns the ids of the k highest ranked nodes, ties broken by id.
func Top(ranks []float64, k int) []int {
	if k > len(ranks) {
		k = len(ranks)
	}
	if k < 0 {
		k = 0
	}
	ids := make([]int, len(ranks))
	for i := range ids {
		ids[i] = i
	}
	sort.SliceStable(ids, func(a, b int) bool {
		return ranks[ids[a]] > ranks[ids[b]]
	})
	return ids[:k]
}
