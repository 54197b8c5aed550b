// Package taskgraph implements the immutable task-dependency DAG: tasks,
// their outputs, and the arcs between them. Cross-references between tasks
// and outputs are plain integer indices into the graph's two arenas rather
// than pointers, so the structure has no cycles at the Go value level even
// though the domain relation it encodes (producer -> consumer) does form a
// graph.
package taskgraph

import (
	"fmt"
	"sort"
)

// TaskID and OutputID are dense, zero-based indices into a Graph's arenas.
type TaskID int
type OutputID int

// Task is an immutable node in the DAG.
type Task struct {
	ID               TaskID
	Name             string
	Duration         float64  // CPU cost: positive real, the compute duration
	ExpectedDuration *float64 // optional estimate used by schedulers
	CPUs             int      // positive integer CPU requirement

	Outputs []OutputID // owned outputs, in declaration order

	// Derived at Finalize.
	Inputs    []OutputID // outputs this task consumes, in declaration order
	Consumers []TaskID   // tasks that consume any of this task's outputs, sorted by ID
}

// Output is a data artifact produced by exactly one task.
type Output struct {
	ID           OutputID
	Parent       TaskID
	Size         float64 // non-negative real, bytes-equivalent
	ExpectedSize *float64

	// Consumers are the tasks consuming this specific output, sorted by
	// ID. Derived at Finalize. A task's Consumers is the union over its
	// outputs.
	Consumers []TaskID
}

// Graph is a collection of tasks with arc-consistent inputs/outputs. Once
// built via Builder.Finalize it is immutable for the remainder of its
// lifetime; a simulation Run creates fresh runtime state against it but
// never mutates the graph itself.
type Graph struct {
	tasks   []Task
	outputs []Output
}

func (g *Graph) Tasks() []Task     { return g.tasks }
func (g *Graph) Outputs() []Output { return g.outputs }
func (g *Graph) TaskCount() int    { return len(g.tasks) }
func (g *Graph) OutputCount() int  { return len(g.outputs) }

func (g *Graph) Task(id TaskID) *Task     { return &g.tasks[id] }
func (g *Graph) Output(id OutputID) *Output { return &g.outputs[id] }

// SourceTasks returns tasks with no inputs, eligible for scheduling at time
// zero, ordered by ID.
func (g *Graph) SourceTasks() []TaskID {
	var out []TaskID
	for i := range g.tasks {
		if len(g.tasks[i].Inputs) == 0 {
			out = append(out, TaskID(i))
		}
	}
	return out
}

// Arc is a producer-consumer dependency edge: an (output, consumer-task) pair.
type Arc struct {
	Output   OutputID
	Consumer TaskID
}

// Arcs enumerates every dependency edge in the graph, ordered by consumer ID
// then by the consumer's input order, for deterministic iteration.
func (g *Graph) Arcs() []Arc {
	var arcs []Arc
	for i := range g.tasks {
		for _, out := range g.tasks[i].Inputs {
			arcs = append(arcs, Arc{Output: out, Consumer: TaskID(i)})
		}
	}
	return arcs
}

// Builder accumulates tasks and outputs before the graph's arcs are
// finalized. Construction is an explicit two-phase build (declare every
// task and output, then Finalize) so a task can consume outputs of tasks
// declared after it.
type Builder struct {
	tasks      []Task
	outputs    []Output
	pendingIn  [][]OutputID // pendingIn[taskID] = inputs declared so far
}

func NewBuilder() *Builder {
	return &Builder{}
}

// NewTaskSpec describes a task to add to the builder.
type NewTaskSpec struct {
	Name             string
	Duration         float64
	ExpectedDuration *float64
	CPUs             int
	OutputSizes      []float64
	ExpectedSizes    []*float64 // optional, same length as OutputSizes if given
}

// NewTask appends a task with the given outputs and returns its ID along
// with the IDs of the outputs it owns.
func (b *Builder) NewTask(spec NewTaskSpec) (TaskID, []OutputID) {
	id := TaskID(len(b.tasks))
	cpus := spec.CPUs
	if cpus <= 0 {
		cpus = 1
	}
	outIDs := make([]OutputID, len(spec.OutputSizes))
	for i, size := range spec.OutputSizes {
		oid := OutputID(len(b.outputs))
		var expected *float64
		if i < len(spec.ExpectedSizes) {
			expected = spec.ExpectedSizes[i]
		}
		b.outputs = append(b.outputs, Output{ID: oid, Parent: id, Size: size, ExpectedSize: expected})
		outIDs[i] = oid
	}
	b.tasks = append(b.tasks, Task{
		ID:               id,
		Name:             spec.Name,
		Duration:         spec.Duration,
		ExpectedDuration: spec.ExpectedDuration,
		CPUs:             cpus,
		Outputs:          outIDs,
	})
	b.pendingIn = append(b.pendingIn, nil)
	return id, outIDs
}

// AddInput declares that task consumes output as one of its inputs.
// Order of calls determines the task's final Inputs order.
func (b *Builder) AddInput(task TaskID, output OutputID) {
	b.pendingIn[task] = append(b.pendingIn[task], output)
}

// Finalize validates the declared arcs and produces an immutable Graph.
// Invariants enforced: every input references an output whose parent exists
// in the same graph; the induced task-dependency relation is acyclic;
// output and task identifiers are dense and unique (true by construction
// here, since IDs are assigned densely by NewTask).
func (b *Builder) Finalize() (*Graph, error) {
	tasks := make([]Task, len(b.tasks))
	copy(tasks, b.tasks)

	for i := range tasks {
		tasks[i].Inputs = append([]OutputID(nil), b.pendingIn[i]...)
	}

	for _, t := range tasks {
		for _, in := range t.Inputs {
			if int(in) < 0 || int(in) >= len(b.outputs) {
				return nil, fmt.Errorf("taskgraph: task %d references unknown output %d", t.ID, in)
			}
		}
	}

	outputs := append([]Output(nil), b.outputs...)

	consumerSet := make([]map[TaskID]struct{}, len(tasks))
	for i := range consumerSet {
		consumerSet[i] = make(map[TaskID]struct{})
	}
	outputConsumerSet := make([]map[TaskID]struct{}, len(outputs))
	for i := range outputConsumerSet {
		outputConsumerSet[i] = make(map[TaskID]struct{})
	}
	for i, t := range tasks {
		for _, in := range t.Inputs {
			parent := outputs[in].Parent
			consumerSet[parent][TaskID(i)] = struct{}{}
			outputConsumerSet[in][TaskID(i)] = struct{}{}
		}
	}
	sortedIDs := func(set map[TaskID]struct{}) []TaskID {
		ids := make([]TaskID, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
		return ids
	}
	for i := range tasks {
		tasks[i].Consumers = sortedIDs(consumerSet[i])
	}
	for i := range outputs {
		outputs[i].Consumers = sortedIDs(outputConsumerSet[i])
	}

	g := &Graph{tasks: tasks, outputs: outputs}
	if err := g.validateAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

// validateAcyclic detects cycles in the induced task-dependency relation via
// iterative DFS with an explicit stack (no recursion, so arbitrarily deep
// chains can't blow the Go stack).
func (g *Graph) validateAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]byte, len(g.tasks))

	parentsOf := func(t TaskID) []TaskID {
		seen := make(map[TaskID]struct{})
		var parents []TaskID
		for _, in := range g.tasks[t].Inputs {
			p := g.outputs[in].Parent
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				parents = append(parents, p)
			}
		}
		return parents
	}

	type frame struct {
		node TaskID
		idx  int
		deps []TaskID
	}

	for start := range g.tasks {
		if color[start] != white {
			continue
		}
		stack := []frame{{node: TaskID(start), deps: parentsOf(TaskID(start))}}
		color[start] = gray
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.idx < len(top.deps) {
				next := top.deps[top.idx]
				top.idx++
				switch color[next] {
				case white:
					color[next] = gray
					stack = append(stack, frame{node: next, deps: parentsOf(next)})
				case gray:
					return fmt.Errorf("taskgraph: cycle detected through task %d", next)
				}
				continue
			}
			color[top.node] = black
			stack = stack[:len(stack)-1]
		}
	}
	return nil
}
