// Package generator builds synthetic task graphs for benchmarks and tests:
// a few elementary shapes (fork-join, triplet chains, a wide merge) and two
// randomized families (independent pairwise dependencies, layered levels).
// Randomized generators take an explicit *rand.Rand so runs are repeatable
// from a seed.
package generator

import (
	"fmt"
	"math/rand"

	"github.com/swarmguard/schedsim/internal/taskgraph"
)

// ForkJoin builds source -> n parallel middle tasks -> join. Middle tasks
// carry the compute (duration dur) and produce outputs of the given size.
func ForkJoin(n int, dur, size float64) (*taskgraph.Graph, error) {
	b := taskgraph.NewBuilder()
	_, srcOut := b.NewTask(taskgraph.NewTaskSpec{Name: "fork", Duration: 1, OutputSizes: []float64{size}})
	join, _ := b.NewTask(taskgraph.NewTaskSpec{Name: "join", Duration: 1})
	for i := 0; i < n; i++ {
		mid, midOut := b.NewTask(taskgraph.NewTaskSpec{
			Name:        fmt.Sprintf("work-%d", i),
			Duration:    dur,
			OutputSizes: []float64{size},
		})
		b.AddInput(mid, srcOut[0])
		b.AddInput(join, midOut[0])
	}
	return b.Finalize()
}

// Triplets builds n independent three-task chains: a generator feeding a
// heavy middle stage feeding a cheap collector.
func Triplets(n int) (*taskgraph.Graph, error) {
	b := taskgraph.NewBuilder()
	for i := 0; i < n; i++ {
		_, aOut := b.NewTask(taskgraph.NewTaskSpec{
			Name: fmt.Sprintf("t%d-gen", i), Duration: 5, OutputSizes: []float64{40},
		})
		mid, mOut := b.NewTask(taskgraph.NewTaskSpec{
			Name: fmt.Sprintf("t%d-work", i), Duration: 120, CPUs: 4, OutputSizes: []float64{120},
		})
		end, _ := b.NewTask(taskgraph.NewTaskSpec{
			Name: fmt.Sprintf("t%d-collect", i), Duration: 32,
		})
		b.AddInput(mid, aOut[0])
		b.AddInput(end, mOut[0])
	}
	return b.Finalize()
}

// Merge builds n independent producers and a single consumer of all their
// outputs.
func Merge(n int, dur, size float64) (*taskgraph.Graph, error) {
	b := taskgraph.NewBuilder()
	merge, _ := b.NewTask(taskgraph.NewTaskSpec{Name: "merge", Duration: dur})
	for i := 0; i < n; i++ {
		_, out := b.NewTask(taskgraph.NewTaskSpec{
			Name: fmt.Sprintf("produce-%d", i), Duration: dur, OutputSizes: []float64{size},
		})
		b.AddInput(merge, out[0])
	}
	return b.Finalize()
}

// RandomDependencies builds n unit tasks and, for every ordered pair
// (i, j) with i < j, adds an arc with probability p.
func RandomDependencies(n int, p float64, rng *rand.Rand) (*taskgraph.Graph, error) {
	b := taskgraph.NewBuilder()
	ids := make([]taskgraph.TaskID, n)
	outs := make([]taskgraph.OutputID, n)
	for i := 0; i < n; i++ {
		id, o := b.NewTask(taskgraph.NewTaskSpec{
			Name: fmt.Sprintf("task-%d", i), Duration: 1, OutputSizes: []float64{1},
		})
		ids[i] = id
		outs[i] = o[0]
	}
	for j := 1; j < n; j++ {
		for i := 0; i < j; i++ {
			if rng.Float64() < p {
				b.AddInput(ids[j], outs[i])
			}
		}
	}
	return b.Finalize()
}

// RandomLevels builds a layered graph: counts[l] tasks on level l, each
// drawing inputs[l] distinct inputs at random from the previous level.
// inputs[0] must be 0; inputs[l] must not exceed counts[l-1].
func RandomLevels(counts, inputs []int, rng *rand.Rand) (*taskgraph.Graph, error) {
	if len(counts) != len(inputs) {
		return nil, fmt.Errorf("generator: counts and inputs must have equal length")
	}
	if len(counts) > 0 && inputs[0] != 0 {
		return nil, fmt.Errorf("generator: level 0 cannot have inputs")
	}

	b := taskgraph.NewBuilder()
	var prev []taskgraph.OutputID
	for level, count := range counts {
		if level > 0 && inputs[level] > len(prev) {
			return nil, fmt.Errorf("generator: level %d wants %d inputs from %d tasks", level, inputs[level], len(prev))
		}
		var cur []taskgraph.OutputID
		for i := 0; i < count; i++ {
			id, outs := b.NewTask(taskgraph.NewTaskSpec{
				Name: fmt.Sprintf("l%d-%d", level, i), Duration: 1, OutputSizes: []float64{1},
			})
			for _, pick := range rng.Perm(len(prev))[:inputs[level]] {
				b.AddInput(id, prev[pick])
			}
			cur = append(cur, outs[0])
		}
		prev = cur
	}
	return b.Finalize()
}
