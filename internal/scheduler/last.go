package scheduler

import (
	"github.com/swarmguard/schedsim/internal/runtime"
	"github.com/swarmguard/schedsim/internal/taskgraph"
)

// LAST implements "The LAST Algorithm: A Heuristic-Based Static Task
// Allocation Algorithm" (1989). It minimizes overall communication by
// prioritizing tasks whose inputs are already local to their assigned
// workers: priority is (input_weighted + output) / (input + output), where
// input_weighted discounts edges whose producing output is already placed
// exactly where the consumer is assigned. Source tasks get priority 1. The
// highest-priority task is picked each round and put on its cheapest
// feasible worker.
type LAST struct{}

func NewLAST() *LAST { return &LAST{} }

func (l *LAST) Init(ctx Context) {}

func (l *LAST) Schedule(ctx Context, newReady, newFinished []taskgraph.TaskID) []TaskAssignment {
	g := ctx.Graph()
	bw := ctx.Bandwidth()

	priority := make(map[taskgraph.TaskID]float64, len(newReady))
	for _, t := range newReady {
		priority[t] = l.priority(ctx, t, bw)
	}

	var out []TaskAssignment
	for len(priority) > 0 {
		var best taskgraph.TaskID
		bestSet := false
		for t, p := range priority {
			if !bestSet || p > priority[best] || (p == priority[best] && t < best) {
				best, bestSet = t, true
			}
		}

		bestW := -1
		var bestCost float64
		for wi, w := range ctx.Workers() {
			cost := TransferCost(ctx, w.ID, best)
			if g.Task(best).CPUs > w.CPUs {
				cost += InfeasibleCost
			}
			if bestW == -1 || cost < bestCost {
				bestW, bestCost = wi, cost
			}
		}
		out = append(out, TaskAssignment{Worker: ctx.Workers()[bestW].ID, Task: best})
		delete(priority, best)
	}
	return out
}

func (l *LAST) priority(ctx Context, t taskgraph.TaskID, bw float64) float64 {
	g := ctx.Graph()
	task := g.Task(t)
	if len(task.Inputs) == 0 {
		return 1
	}

	var inputWeighted, input float64
	for _, in := range task.Inputs {
		size := g.Output(in).Size / bw
		input += size
		inputWeighted += size * l.edgeCost(ctx, in, t)
	}

	// task "size" is the sum of its output sizes; every consumer will
	// eventually pull it over the network once.
	var taskSize float64
	for _, o := range task.Outputs {
		taskSize += g.Output(o).Size
	}
	output := float64(len(task.Consumers)) * taskSize / bw

	if input+output == 0 {
		return 1
	}
	return (inputWeighted + output) / (input + output)
}

// edgeCost is 0 when the producing output's placing already equals the
// consumer's assigned-worker set, 1 otherwise. Read as set equality; the
// alternatives are discussed in DESIGN.md.
func (l *LAST) edgeCost(ctx Context, o taskgraph.OutputID, consumer taskgraph.TaskID) float64 {
	placing := ctx.OutputInfo(o).Placing
	assigned := ctx.TaskInfo(consumer).AssignedWorkers
	if sameWorkerSet(placing, assigned) {
		return 0
	}
	return 1
}

func sameWorkerSet(a, b []runtime.WorkerID) bool {
	if len(a) == 0 && len(b) == 0 {
		return false // nothing placed anywhere is not "already local"
	}
	as := make(map[runtime.WorkerID]struct{}, len(a))
	for _, w := range a {
		as[w] = struct{}{}
	}
	bs := make(map[runtime.WorkerID]struct{}, len(b))
	for _, w := range b {
		bs[w] = struct{}{}
	}
	if len(as) != len(bs) {
		return false
	}
	for w := range as {
		if _, ok := bs[w]; !ok {
			return false
		}
	}
	return true
}
