package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/swarmguard/schedsim/internal/desim"
	"github.com/swarmguard/schedsim/internal/network"
	"github.com/swarmguard/schedsim/internal/runtime"
	"github.com/swarmguard/schedsim/internal/scheduler"
	"github.com/swarmguard/schedsim/internal/taskgraph"
	"github.com/swarmguard/schedsim/internal/trace"
)

// Option configures a Simulator at construction.
type Option func(*Simulator)

// WithTrace enables the event journal. Off by default; enabling adds memory
// proportional to the number of events.
func WithTrace() Option {
	return func(s *Simulator) { s.journal = trace.NewJournal(true) }
}

// WithTraceBus additionally publishes every journal event onto a NATS
// subject for live consumers. Implies nothing about the journal itself.
func WithTraceBus(bus *trace.Bus) Option {
	return func(s *Simulator) { s.bus = bus }
}

// Simulator coordinates one run: task-state transitions, worker readiness,
// and scheduler callbacks, all against a single virtual clock. It is the
// sole writer of task and output runtime info.
type Simulator struct {
	graph   *taskgraph.Graph
	workers []Worker
	policy  scheduler.Policy
	net     network.Model

	runID   uuid.UUID
	clock   *desim.Clock
	store   *runtime.Store
	journal *trace.Journal
	bus     *trace.Bus

	newReady      []taskgraph.TaskID
	newFinished   []taskgraph.TaskID
	unprocessed   int
	wakeupPending bool

	tracer         oteltrace.Tracer
	taskCompletion metric.Float64Histogram
	violations     metric.Int64Counter
}

// New wires a simulator. Worker ids are assigned here, in slice order, and
// are valid for this simulator's lifetime only.
func New(graph *taskgraph.Graph, workers []Worker, policy scheduler.Policy, net network.Model, opts ...Option) *Simulator {
	meter := otel.Meter("schedsim-kernel")
	taskCompletion, _ := meter.Float64Histogram("schedsim_task_completion_time")
	violations, _ := meter.Int64Counter("schedsim_contract_violations_total")

	s := &Simulator{
		graph:          graph,
		workers:        workers,
		policy:         policy,
		net:            net,
		runID:          uuid.New(),
		tracer:         otel.Tracer("schedsim-kernel"),
		taskCompletion: taskCompletion,
		violations:     violations,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunID identifies this simulator instance on trace journals and persisted
// run records.
func (s *Simulator) RunID() uuid.UUID { return s.runID }

// Accessors workers use to act as simulation entities.
func (s *Simulator) Clock() *desim.Clock     { return s.clock }
func (s *Simulator) Network() network.Model  { return s.net }
func (s *Simulator) Graph() *taskgraph.Graph { return s.graph }

// OutputPlacing reports which workers currently hold a copy of output.
func (s *Simulator) OutputPlacing(o taskgraph.OutputID) []runtime.WorkerID {
	return s.store.Output(o).Placing
}

// TraceEvents returns the journal after (or during) a run; nil when tracing
// is disabled.
func (s *Simulator) TraceEvents() []trace.Event { return s.journal.Events() }

// AddTraceEvent appends to the journal; a no-op when tracing is disabled.
// Publishing to the bus is independent of the journal being enabled.
func (s *Simulator) AddTraceEvent(e trace.Event) {
	s.journal.Add(e)
	if s.bus != nil {
		if err := s.bus.Publish(context.Background(), e); err != nil {
			slog.Warn("trace bus publish failed", "kind", e.Kind(), "error", err)
		}
	}
}

// Run executes the simulation to completion and returns the makespan.
// Contract violations (scheduler misuse, counter underflow) panic with
// *runtime.ErrInvariant; the caller that must not crash recovers them.
func (s *Simulator) Run(ctx context.Context) float64 {
	_, span := s.tracer.Start(ctx, "schedsim.run", oteltrace.WithAttributes(
		attribute.String("run_id", s.runID.String()),
		attribute.Int("tasks", s.graph.TaskCount()),
		attribute.Int("workers", len(s.workers)),
	))
	defer span.End()

	s.clock = desim.New()
	s.store = runtime.NewStore(s.graph)
	s.unprocessed = s.graph.TaskCount()

	ids := make([]network.WorkerID, len(s.workers))
	for i, w := range s.workers {
		w.Attach(runtime.WorkerID(i), s)
		ids[i] = network.WorkerID(i)
	}
	s.net.Init(s.clock, ids)
	s.wireFlowTrace()

	s.policy.Init(s)

	sources := s.graph.SourceTasks()
	for _, t := range sources {
		s.store.Task(t).State = runtime.Ready
	}
	s.dispatch(sources, nil)

	makespan := s.clock.Run(func() bool { return s.unprocessed == 0 })

	span.SetAttributes(attribute.Float64("makespan", makespan))
	slog.Info("simulation finished",
		"run_id", s.runID.String(),
		"makespan", makespan,
		"tasks", s.graph.TaskCount(),
		"workers", len(s.workers),
	)
	return makespan
}

// wireFlowTrace hooks the network model's flow listener into the journal
// when the model supports one and anything is listening.
func (s *Simulator) wireFlowTrace() {
	if !s.journal.Enabled() && s.bus == nil {
		return
	}
	type flowTracer interface{ SetFlowListener(network.FlowListener) }
	if ft, ok := s.net.(flowTracer); ok {
		ft.SetFlowListener(func(now float64, source, target network.WorkerID, bandwidth float64) {
			s.AddTraceEvent(trace.FlowChange{Time: now, Source: int(source), Target: int(target), Bandwidth: bandwidth})
		})
	}
}

// wakeMaster schedules one master resumption for the current instant. The
// wakeup is one-shot: several completions within the same instant collapse
// into a single scheduling round.
func (s *Simulator) wakeMaster() {
	if s.wakeupPending {
		return
	}
	s.wakeupPending = true
	s.clock.Schedule(0, s.masterStep)
}

func (s *Simulator) masterStep() {
	s.wakeupPending = false
	if s.unprocessed == 0 {
		return
	}
	ready := s.newReady
	finished := s.newFinished
	s.newReady = nil
	s.newFinished = nil
	s.dispatch(ready, finished)
}

// dispatch runs one scheduling round: query the policy with the deltas,
// validate and apply each assignment, then hand each worker its new tasks
// in descending priority order.
func (s *Simulator) dispatch(newReady, newFinished []taskgraph.TaskID) {
	_, span := s.tracer.Start(context.Background(), "schedsim.schedule_round", oteltrace.WithAttributes(
		attribute.Int("new_ready", len(newReady)),
		attribute.Int("new_finished", len(newFinished)),
	))
	defer span.End()

	assignments := s.policy.Schedule(s, newReady, newFinished)
	if len(assignments) == 0 {
		return
	}
	sort.SliceStable(assignments, func(i, j int) bool {
		return assignments[i].Priority > assignments[j].Priority
	})

	perWorker := make(map[runtime.WorkerID][]scheduler.TaskAssignment)
	for _, a := range assignments {
		info := s.store.Task(a.Task)
		switch info.State {
		case runtime.Finished:
			s.violations.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", "assign_finished")))
			panic(&runtime.ErrInvariant{Op: "schedule", Task: a.Task, Msg: "scheduler tries to assign a finished task"})
		case runtime.Assigned:
			s.violations.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", "reassign")))
			panic(&runtime.ErrInvariant{Op: "schedule", Task: a.Task, Msg: "scheduler reassigns an already assigned task"})
		}
		info.State = runtime.Assigned
		info.AssignedWorkers = append(info.AssignedWorkers, a.Worker)
		perWorker[a.Worker] = append(perWorker[a.Worker], a)
		s.AddTraceEvent(trace.TaskAssign{Time: s.clock.Now(), Worker: int(a.Worker), Task: int(a.Task)})
	}

	workerIDs := make([]runtime.WorkerID, 0, len(perWorker))
	for w := range perWorker {
		workerIDs = append(workerIDs, w)
	}
	sort.Slice(workerIDs, func(i, j int) bool { return workerIDs[i] < workerIDs[j] })
	for _, w := range workerIDs {
		s.workers[w].AssignTasks(perWorker[w])
	}
	span.SetAttributes(attribute.Int("assignments", len(assignments)))
}

// OnTaskFinished is the worker callback invoked at the simulated moment a
// task completes. It transitions the task to Finished, extends each
// output's placing, wakes newly ready consumers, notifies affected workers,
// and wakes the master.
func (s *Simulator) OnTaskFinished(worker runtime.WorkerID, task taskgraph.TaskID) {
	info := s.store.Task(task)
	if info.State != runtime.Assigned {
		s.violations.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", "finish_unassigned")))
		panic(&runtime.ErrInvariant{Op: "on_task_finished", Task: task,
			Msg: fmt.Sprintf("task finished in state %s", info.State)})
	}
	assignedHere := false
	for _, w := range info.AssignedWorkers {
		if w == worker {
			assignedHere = true
			break
		}
	}
	if !assignedHere {
		panic(&runtime.ErrInvariant{Op: "on_task_finished", Task: task,
			Msg: fmt.Sprintf("worker %d finished a task not assigned to it", worker)})
	}

	now := s.clock.Now()
	info.State = runtime.Finished
	info.EndTime = now
	s.newFinished = append(s.newFinished, task)
	s.unprocessed--
	s.taskCompletion.Record(context.Background(), now)

	workerUpdates := make(map[runtime.WorkerID][]taskgraph.TaskID)
	var updateOrder []runtime.WorkerID
	for _, o := range s.graph.Task(task).Outputs {
		oInfo := s.store.Output(o)
		oInfo.Placing = append(oInfo.Placing, worker)

		// Consumers is already sorted by task id, which makes the
		// readiness wave and the notification order deterministic.
		consumers := s.graph.Output(o).Consumers
		for _, c := range consumers {
			if s.store.DecrementUnfinishedInputs(c) {
				s.newReady = append(s.newReady, c)
			}
		}
		for _, c := range consumers {
			for _, w := range s.store.Task(c).AssignedWorkers {
				if _, seen := workerUpdates[w]; !seen {
					updateOrder = append(updateOrder, w)
				}
				workerUpdates[w] = append(workerUpdates[w], c)
			}
		}
	}

	for _, w := range updateOrder {
		s.workers[w].UpdateTasks(workerUpdates[w])
	}
	s.wakeMaster()
}

// The scheduler.Context implementation: the policy's non-owning view into
// the running simulation, valid only between Run start and completion.

func (s *Simulator) Now() float64       { return s.clock.Now() }
func (s *Simulator) Bandwidth() float64 { return s.net.Bandwidth() }

func (s *Simulator) TaskInfo(t taskgraph.TaskID) *runtime.TaskInfo {
	return s.store.Task(t)
}

func (s *Simulator) OutputInfo(o taskgraph.OutputID) *runtime.OutputInfo {
	return s.store.Output(o)
}

func (s *Simulator) Workers() []scheduler.WorkerRef {
	now := s.clock.Now()
	refs := make([]scheduler.WorkerRef, len(s.workers))
	for i, w := range s.workers {
		refs[i] = scheduler.WorkerRef{
			ID:               runtime.WorkerID(i),
			CPUs:             w.CPUs(),
			AssignedLoad:     w.AssignedLoad(),
			RunningRemaining: w.RunningRemaining(now),
		}
	}
	return refs
}

func (s *Simulator) InFlight(w runtime.WorkerID) map[taskgraph.OutputID]bool {
	return s.workers[w].InFlightOutputs()
}
