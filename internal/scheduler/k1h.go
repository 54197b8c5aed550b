package scheduler

import (
	"github.com/swarmguard/schedsim/internal/taskgraph"
)

// K1h is a one-hop-lookahead greedy scheduler: a candidate (worker, task)
// pair is priced by the data still to move, the task's own compute time,
// the load already committed to the worker, and the sizes of "sibling"
// inputs -- inputs of the task's consumers produced elsewhere -- that this
// placement would eventually force the worker to fetch. The cheapest pair
// wins each round.
type K1h struct{}

func NewK1h() *K1h { return &K1h{} }

func (k *K1h) Init(ctx Context) {}

func (k *K1h) Schedule(ctx Context, newReady, newFinished []taskgraph.TaskID) []TaskAssignment {
	return scheduleAll(ctx, newReady, k.cost, true)
}

func (k *K1h) cost(ctx Context, w WorkerRef, t taskgraph.TaskID) float64 {
	g := ctx.Graph()
	task := g.Task(t)
	if task.CPUs > w.CPUs {
		return InfeasibleCost
	}

	transfer := TransferCost(ctx, w.ID, t)
	for _, c := range task.Consumers {
		for _, in := range g.Task(c).Inputs {
			parent := g.Output(in).Parent
			if parent == t {
				continue
			}
			if hasWorker(ctx.TaskInfo(parent).AssignedWorkers, w.ID) {
				continue
			}
			transfer += g.Output(in).Size
		}
	}

	bw := ctx.Bandwidth()
	if bw > 0 {
		transfer /= bw
	} else {
		transfer = 0
	}
	return transfer + task.Duration + w.AssignedLoad
}
