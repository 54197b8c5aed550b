package scheduler

import (
	"github.com/swarmguard/schedsim/internal/runtime"
	"github.com/swarmguard/schedsim/internal/taskgraph"
)

// TransferCost is the parallel transfer-cost model: the size of data
// task's inputs would require fetching to worker, counting only outputs
// not already placed there and not already in flight to it. The sum
// represents bytes still to move (transfers overlap, they don't serialize);
// the caller divides by bandwidth for a time estimate.
func TransferCost(ctx Context, worker runtime.WorkerID, task taskgraph.TaskID) float64 {
	g := ctx.Graph()
	inFlight := ctx.InFlight(worker)
	var total float64
	for _, in := range g.Task(task).Inputs {
		info := ctx.OutputInfo(in)
		if hasWorker(info.Placing, worker) {
			continue
		}
		if inFlight != nil && inFlight[in] {
			continue
		}
		total += g.Output(in).Size
	}
	return total
}

func hasWorker(list []runtime.WorkerID, w runtime.WorkerID) bool {
	for _, x := range list {
		if x == w {
			return true
		}
	}
	return false
}

// topoOrder returns tasks in a dependency-respecting order (producers
// before consumers) via Kahn's algorithm. The graph is already known
// acyclic (enforced at Finalize), so this always succeeds.
func topoOrder(g *taskgraph.Graph) []taskgraph.TaskID {
	n := g.TaskCount()
	// in-degree by distinct producing tasks, not by input count, so a
	// task with two inputs from the same producer isn't double-counted.
	indegree := make([]int, n)
	for i := range g.Tasks() {
		t := g.Task(taskgraph.TaskID(i))
		seen := make(map[taskgraph.TaskID]struct{})
		for _, in := range t.Inputs {
			seen[g.Output(in).Parent] = struct{}{}
		}
		indegree[i] = len(seen)
	}

	var queue []taskgraph.TaskID
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			queue = append(queue, taskgraph.TaskID(i))
		}
	}

	order := make([]taskgraph.TaskID, 0, n)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, c := range g.Task(id).Consumers {
			indegree[c]--
			if indegree[c] == 0 {
				queue = append(queue, c)
			}
		}
	}
	return order
}

// EdgeCostFunc prices the arc from a producing task to a consuming task,
// e.g. for ALAP where it's transfer time normalized by bandwidth. A nil
// EdgeCostFunc means "duration only", matching the plain DLS/ETF b-level.
type EdgeCostFunc func(from, to taskgraph.TaskID) float64

// BLevel computes the static longest-remaining-path cost from every task
// to a sink: duration(t) plus the most expensive continuation through t's
// consumers, optionally priced with edgeCost. Computed once, in a single
// reverse-topological pass.
func BLevel(g *taskgraph.Graph, duration func(taskgraph.TaskID) float64, edgeCost EdgeCostFunc) map[taskgraph.TaskID]float64 {
	order := topoOrder(g)
	level := make(map[taskgraph.TaskID]float64, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		t := order[i]
		task := g.Task(t)
		var best float64
		for _, c := range task.Consumers {
			v := level[c]
			if edgeCost != nil {
				v += edgeCost(t, c)
			}
			if v > best {
				best = v
			}
		}
		level[t] = duration(t) + best
	}
	return level
}

// transferEdgeCost is the per-edge cost ALAP normalizes by bandwidth: the
// size of outputs `from` produces that `to` actually consumes.
func transferEdgeCost(g *taskgraph.Graph, bandwidth float64) EdgeCostFunc {
	return func(from, to taskgraph.TaskID) float64 {
		var size float64
		for _, in := range g.Task(to).Inputs {
			if g.Output(in).Parent == from {
				size += g.Output(in).Size
			}
		}
		if bandwidth <= 0 {
			return 0
		}
		return size / bandwidth
	}
}

// ALAP computes the as-late-as-possible start time of every task under a
// zero-contention assumption: the latest a task can start and still allow
// the longest remaining path through it to finish by the overall
// critical-path length.
func ALAP(g *taskgraph.Graph, duration func(taskgraph.TaskID) float64, bandwidth float64) map[taskgraph.TaskID]float64 {
	level := BLevel(g, duration, transferEdgeCost(g, bandwidth))

	var length float64
	for _, s := range g.SourceTasks() {
		if v := level[s]; v > length {
			length = v
		}
	}

	alap := make(map[taskgraph.TaskID]float64, len(level))
	for t, v := range level {
		alap[t] = length - v
	}
	return alap
}
