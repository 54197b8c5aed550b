package scheduler

import (
	"github.com/swarmguard/schedsim/internal/taskgraph"
)

// ETF is the Earliest Time First scheduler from "Scheduling Precedence
// Graphs in Systems with Interprocessor Communication Times" (1989): it
// greedily picks the (worker, task) pair with the smallest estimated start
// time (transfer cost over bandwidth), breaking ties by higher static
// B-level so critical-path work goes first.
type ETF struct {
	bLevel map[taskgraph.TaskID]float64
}

func NewETF() *ETF { return &ETF{} }

func (e *ETF) Init(ctx Context) {
	g := ctx.Graph()
	e.bLevel = BLevel(g, func(t taskgraph.TaskID) float64 { return g.Task(t).Duration }, nil)
}

func (e *ETF) Schedule(ctx Context, newReady, newFinished []taskgraph.TaskID) []TaskAssignment {
	return scheduleAllTieBreak(ctx, newReady, e.cost, true,
		func(t taskgraph.TaskID) float64 { return e.bLevel[t] }, true)
}

func (e *ETF) cost(ctx Context, w WorkerRef, t taskgraph.TaskID) float64 {
	if ctx.Graph().Task(t).CPUs > w.CPUs {
		return InfeasibleCost
	}
	bw := ctx.Bandwidth()
	if bw <= 0 {
		return 0
	}
	return TransferCost(ctx, w.ID, t) / bw
}
