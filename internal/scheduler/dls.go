package scheduler

import (
	"github.com/swarmguard/schedsim/internal/taskgraph"
)

// DLS is the Dynamic Level Scheduler from "A Compile-Time Scheduling
// Heuristic for Interconnection-Constrained Heterogeneous Processor
// Architectures" (1993): for every feasible (worker, task) pair it scores
// b_level[task] - earliest-data-available-time on worker, and greedily
// assigns the maximum-scoring pair until every ready task is placed.
type DLS struct {
	// ExtendedSelection substitutes the worker's projected last-finish
	// time for raw transfer cost when it is later, the paper's extended
	// processor selection.
	ExtendedSelection bool

	bLevel map[taskgraph.TaskID]float64
}

func NewDLS(extendedSelection bool) *DLS {
	return &DLS{ExtendedSelection: extendedSelection}
}

func (d *DLS) Init(ctx Context) {
	g := ctx.Graph()
	d.bLevel = BLevel(g, func(t taskgraph.TaskID) float64 { return g.Task(t).Duration }, nil)
}

func (d *DLS) Schedule(ctx Context, newReady, newFinished []taskgraph.TaskID) []TaskAssignment {
	return scheduleAll(ctx, newReady, d.cost, false) // false: maximize score
}

func (d *DLS) cost(ctx Context, w WorkerRef, t taskgraph.TaskID) float64 {
	task := ctx.Graph().Task(t)
	if task.CPUs > w.CPUs {
		return -InfeasibleCost
	}

	now := ctx.Now()
	bw := ctx.Bandwidth()
	transfer := now
	if bw > 0 {
		transfer += TransferCost(ctx, w.ID, t) / bw
	}

	if d.ExtendedSelection {
		var lastFinish float64
		for _, remaining := range w.RunningRemaining {
			if v := now + remaining; v > lastFinish {
				lastFinish = v
			}
		}
		if lastFinish > transfer {
			transfer = lastFinish
		}
	}

	return d.bLevel[t] - transfer
}
