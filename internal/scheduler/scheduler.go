// Package scheduler defines the policy contract -- Init/Schedule against a
// read-only view of the running simulation -- plus the static-metric
// helpers (transfer cost, B-level, ALAP) shared by the reference
// heuristics in this package.
package scheduler

import (
	"github.com/swarmguard/schedsim/internal/runtime"
	"github.com/swarmguard/schedsim/internal/taskgraph"
)

// Sentinel cost pushing CPU-infeasible (worker, task) pairs last (or never)
// in a min/max search.
const InfeasibleCost = 1e10

// TaskAssignment is a scheduler's decision to run a task on a worker.
// Priority defaults to zero; higher runs first within a worker's queue.
type TaskAssignment struct {
	Worker   runtime.WorkerID
	Task     taskgraph.TaskID
	Priority float64
}

// WorkerRef is the read-only per-worker view a policy needs to price a
// candidate assignment: capacity, and the load already committed to it.
type WorkerRef struct {
	ID       runtime.WorkerID
	CPUs     int
	// AssignedLoad is the sum of durations of tasks currently
	// assigned-but-not-finished on this worker -- K1h's worker_cost.
	AssignedLoad float64
	// RunningRemaining is the remaining compute time of each task
	// currently executing on this worker, at Context.Now() -- used by
	// DLS's extended_selection variant.
	RunningRemaining []float64
}

// Context is the non-owning, run-scoped view of the simulator a policy
// queries from inside Schedule. Passed as a parameter rather than stored,
// since a stored back-pointer would outlive the run it is valid for.
type Context interface {
	Now() float64
	Bandwidth() float64
	Graph() *taskgraph.Graph
	TaskInfo(taskgraph.TaskID) *runtime.TaskInfo
	OutputInfo(taskgraph.OutputID) *runtime.OutputInfo
	Workers() []WorkerRef
	// InFlight reports which outputs are already being downloaded to
	// worker, so transfer-cost helpers don't double-count them.
	InFlight(worker runtime.WorkerID) map[taskgraph.OutputID]bool
}

// Policy is the scheduler contract: precompute static metrics once at
// Init, then answer Schedule calls with zero or more new assignments for
// tasks that became ready or whose producers just finished. Schedule is
// never asked about an already-Assigned task, and may legitimately return
// nothing.
type Policy interface {
	Init(ctx Context)
	Schedule(ctx Context, newReady, newFinished []taskgraph.TaskID) []TaskAssignment
}
