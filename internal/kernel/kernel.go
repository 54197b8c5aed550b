// Package kernel is the discrete-event simulation core: it wires the task
// graph, the worker pool, the network model, and a scheduler policy
// together, drives the virtual clock, and owns all mutable runtime state
// for the duration of a run.
package kernel

import (
	"github.com/swarmguard/schedsim/internal/runtime"
	"github.com/swarmguard/schedsim/internal/scheduler"
	"github.com/swarmguard/schedsim/internal/taskgraph"
)

// Worker is the contract the kernel requires of a worker implementation.
// The worker's internal execution model (CPU reservation, input fetching,
// compute accounting) is its own business; the kernel only hands it work
// and expects OnTaskFinished calls back at the simulated completion
// instants.
type Worker interface {
	// CPUs announces the worker's capacity.
	CPUs() int
	// Attach is called once at run start with the id the kernel assigned
	// and a back-handle to the simulator, before any other method.
	Attach(id runtime.WorkerID, sim *Simulator)
	// AssignTasks hands over newly assigned tasks, highest priority first.
	AssignTasks(assignments []scheduler.TaskAssignment)
	// UpdateTasks informs the worker that these tasks' assignment or
	// placing situation changed (a producer finished somewhere).
	UpdateTasks(tasks []taskgraph.TaskID)

	// The three read-only views scheduler policies price candidates with.
	AssignedLoad() float64
	RunningRemaining(now float64) []float64
	InFlightOutputs() map[taskgraph.OutputID]bool
}
