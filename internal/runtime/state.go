// Package runtime holds the mutable per-run state that mirrors a
// taskgraph.Graph: dense arrays keyed by task/output id, owned exclusively
// by the kernel during a Run. No allocation happens here during
// steady-state scheduling beyond what's fixed at Store construction.
package runtime

import (
	"fmt"

	"github.com/swarmguard/schedsim/internal/taskgraph"
)

// TaskState is the lifecycle of a task during a single run. Transitions are
// monotonic: Waiting -> Ready -> Assigned -> Finished. The kernel never
// reverses a transition.
type TaskState int

const (
	Waiting TaskState = iota
	Ready
	Assigned
	Finished
)

func (s TaskState) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Ready:
		return "ready"
	case Assigned:
		return "assigned"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// WorkerID identifies a worker for the duration of one run.
type WorkerID int

// TaskInfo is the mutable per-run state for one task.
type TaskInfo struct {
	State            TaskState
	UnfinishedInputs int
	AssignedWorkers  []WorkerID // list, not set: allows explicit duplicates for speculative policies
	EndTime          float64
}

// OutputInfo is the mutable per-run state for one output.
type OutputInfo struct {
	Placing []WorkerID // workers currently holding a copy, grows monotonically
}

// Store is the canonical mutable state for a run: two dense arrays sized to
// the graph at construction, indexed directly by TaskID/OutputID.
type Store struct {
	tasks   []TaskInfo
	outputs []OutputInfo
}

// NewStore builds runtime info sized to graph, with UnfinishedInputs
// pre-seeded from each task's input count and every task Waiting.
func NewStore(graph *taskgraph.Graph) *Store {
	s := &Store{
		tasks:   make([]TaskInfo, graph.TaskCount()),
		outputs: make([]OutputInfo, graph.OutputCount()),
	}
	for i, t := range graph.Tasks() {
		s.tasks[i].UnfinishedInputs = len(t.Inputs)
		if len(t.Inputs) == 0 {
			s.tasks[i].State = Waiting // becomes Ready via the kernel's initial scheduling pass
		}
	}
	return s
}

func (s *Store) Task(id taskgraph.TaskID) *TaskInfo     { return &s.tasks[id] }
func (s *Store) Output(id taskgraph.OutputID) *OutputInfo { return &s.outputs[id] }

// UnprocessedTasks counts tasks not yet Finished. The kernel keeps its own
// bookkeeping counter of the same quantity and does not call this.
func (s *Store) UnprocessedTasks() int {
	n := 0
	for i := range s.tasks {
		if s.tasks[i].State != Finished {
			n++
		}
	}
	return n
}

// ErrInvariant marks a fatal run-time contract violation: a double- or
// re-assignment, a completion of a task not assigned to the worker, or an
// unfinished-inputs underflow. (Graph problems such as cycles are returned
// as errors by taskgraph.Builder.Finalize instead.) These are never locally
// recoverable; callers panic with an *ErrInvariant, and the outer boundaries
// that must not crash a host process (the CLI run command and
// batch.ExecuteScenario) recover it.
type ErrInvariant struct {
	Op   string
	Task taskgraph.TaskID
	Msg  string
}

func (e *ErrInvariant) Error() string {
	return fmt.Sprintf("schedsim: invariant violation in %s on task %d: %s", e.Op, e.Task, e.Msg)
}

// DecrementUnfinishedInputs decrements the consumer's unfinished-input
// counter, transitioning Waiting->Ready when it reaches zero. Panics with
// *ErrInvariant if the counter would go negative.
func (s *Store) DecrementUnfinishedInputs(consumer taskgraph.TaskID) (becameReady bool) {
	info := s.Task(consumer)
	info.UnfinishedInputs--
	if info.UnfinishedInputs < 0 {
		panic(&ErrInvariant{Op: "on_task_finished", Task: consumer, Msg: fmt.Sprintf("unfinished inputs dropped to %d", info.UnfinishedInputs)})
	}
	if info.UnfinishedInputs == 0 {
		if info.State == Waiting {
			info.State = Ready
			return true
		}
	}
	return false
}
