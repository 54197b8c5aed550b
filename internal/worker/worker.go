// Package worker is the reference worker implementation: it fetches task
// inputs over the network model, reserves CPUs, runs tasks for their
// declared duration in virtual time, and reports completions back to the
// kernel. The kernel only depends on the kernel.Worker contract; this is
// the one concrete implementation the simulator ships.
package worker

import (
	"log/slog"

	"github.com/swarmguard/schedsim/internal/kernel"
	"github.com/swarmguard/schedsim/internal/network"
	"github.com/swarmguard/schedsim/internal/runtime"
	"github.com/swarmguard/schedsim/internal/scheduler"
	"github.com/swarmguard/schedsim/internal/taskgraph"
	"github.com/swarmguard/schedsim/internal/trace"
)

type runningTask struct {
	start    float64
	duration float64
}

// SimWorker executes assigned tasks against the CPU count it announces.
// Tasks start in the priority order the kernel dispatched them, as soon as
// every input is local and enough CPUs are free.
type SimWorker struct {
	cpus int

	id  runtime.WorkerID
	sim *kernel.Simulator

	assigned []scheduler.TaskAssignment // FIFO in dispatch (priority) order
	running  map[taskgraph.TaskID]*runningTask
	freeCPUs int

	local    map[taskgraph.OutputID]bool
	inFlight map[taskgraph.OutputID]bool
}

func New(cpus int) *SimWorker {
	if cpus <= 0 {
		cpus = 1
	}
	return &SimWorker{
		cpus:     cpus,
		running:  make(map[taskgraph.TaskID]*runningTask),
		local:    make(map[taskgraph.OutputID]bool),
		inFlight: make(map[taskgraph.OutputID]bool),
	}
}

func (w *SimWorker) CPUs() int { return w.cpus }

func (w *SimWorker) Attach(id runtime.WorkerID, sim *kernel.Simulator) {
	w.id = id
	w.sim = sim
	w.freeCPUs = w.cpus
}

func (w *SimWorker) AssignTasks(assignments []scheduler.TaskAssignment) {
	w.assigned = append(w.assigned, assignments...)
	w.tryProgress()
}

// UpdateTasks fires when a producer finished somewhere: placing sets grew,
// so downloads that had no source before may be startable now.
func (w *SimWorker) UpdateTasks(tasks []taskgraph.TaskID) {
	w.tryProgress()
}

func (w *SimWorker) AssignedLoad() float64 {
	g := w.sim.Graph()
	var load float64
	for _, a := range w.assigned {
		load += g.Task(a.Task).Duration
	}
	for t := range w.running {
		load += g.Task(t).Duration
	}
	return load
}

func (w *SimWorker) RunningRemaining(now float64) []float64 {
	out := make([]float64, 0, len(w.running))
	for _, rt := range w.running {
		out = append(out, rt.start+rt.duration-now)
	}
	return out
}

func (w *SimWorker) InFlightOutputs() map[taskgraph.OutputID]bool { return w.inFlight }

// tryProgress is the worker's whole event loop body: kick off any download
// that now has a source, and start any queued task whose inputs are all
// local and whose CPU demand fits. Called after every state change that can
// unblock work.
func (w *SimWorker) tryProgress() {
	g := w.sim.Graph()

	kept := w.assigned[:0]
	for _, a := range w.assigned {
		task := g.Task(a.Task)
		allLocal := true
		for _, in := range task.Inputs {
			if w.local[in] {
				continue
			}
			allLocal = false
			w.maybeDownload(in)
		}
		if allLocal && w.freeCPUs >= task.CPUs {
			w.start(a.Task)
		} else {
			kept = append(kept, a)
		}
	}
	w.assigned = kept
}

// maybeDownload fetches an input not yet local, once a copy exists
// anywhere. The first placing entry is the transfer source; a placing that
// includes this worker means the bytes are already here.
func (w *SimWorker) maybeDownload(o taskgraph.OutputID) {
	if w.inFlight[o] {
		return
	}
	placing := w.sim.OutputPlacing(o)
	if len(placing) == 0 {
		return
	}
	for _, p := range placing {
		if p == w.id {
			w.local[o] = true
			return
		}
	}

	source := placing[0]
	w.inFlight[o] = true
	w.sim.Network().Download(network.Download{
		Source:  network.WorkerID(source),
		Target:  network.WorkerID(w.id),
		Size:    w.sim.Graph().Output(o).Size,
		Payload: o,
	}, func(payload any) {
		oid := payload.(taskgraph.OutputID)
		delete(w.inFlight, oid)
		w.local[oid] = true
		w.tryProgress()
	})
}

func (w *SimWorker) start(t taskgraph.TaskID) {
	task := w.sim.Graph().Task(t)
	now := w.sim.Clock().Now()
	w.freeCPUs -= task.CPUs
	w.running[t] = &runningTask{start: now, duration: task.Duration}
	w.sim.AddTraceEvent(trace.TaskStart{Time: now, Worker: int(w.id), Task: int(t)})
	slog.Debug("task started", "worker", w.id, "task", t, "time", now)

	w.sim.Clock().Schedule(task.Duration, func() { w.finish(t) })
}

func (w *SimWorker) finish(t taskgraph.TaskID) {
	task := w.sim.Graph().Task(t)
	w.freeCPUs += task.CPUs
	delete(w.running, t)
	for _, o := range task.Outputs {
		w.local[o] = true
	}
	now := w.sim.Clock().Now()
	w.sim.AddTraceEvent(trace.TaskEnd{Time: now, Worker: int(w.id), Task: int(t)})
	slog.Debug("task finished", "worker", w.id, "task", t, "time", now)

	w.sim.OnTaskFinished(w.id, t)
	w.tryProgress()
}
