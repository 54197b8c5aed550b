package scheduler

import (
	"testing"

	"github.com/swarmguard/schedsim/internal/runtime"
	"github.com/swarmguard/schedsim/internal/taskgraph"
)

type fakeCtx struct {
	now     float64
	bw      float64
	g       *taskgraph.Graph
	store   *runtime.Store
	workers []WorkerRef
}

func (f *fakeCtx) Now() float64             { return f.now }
func (f *fakeCtx) Bandwidth() float64       { return f.bw }
func (f *fakeCtx) Graph() *taskgraph.Graph  { return f.g }
func (f *fakeCtx) Workers() []WorkerRef     { return f.workers }
func (f *fakeCtx) TaskInfo(t taskgraph.TaskID) *runtime.TaskInfo {
	return f.store.Task(t)
}
func (f *fakeCtx) OutputInfo(o taskgraph.OutputID) *runtime.OutputInfo {
	return f.store.Output(o)
}
func (f *fakeCtx) InFlight(w runtime.WorkerID) map[taskgraph.OutputID]bool { return nil }

func newCtx(t *testing.T, g *taskgraph.Graph, workers int, bw float64) *fakeCtx {
	t.Helper()
	refs := make([]WorkerRef, workers)
	for i := range refs {
		refs[i] = WorkerRef{ID: runtime.WorkerID(i), CPUs: 1}
	}
	return &fakeCtx{bw: bw, g: g, store: runtime.NewStore(g), workers: refs}
}

// chain builds t0 -> t1 -> ... -> t(n-1) with unit durations and unit
// output sizes.
func chain(t *testing.T, n int) *taskgraph.Graph {
	t.Helper()
	b := taskgraph.NewBuilder()
	var prev []taskgraph.OutputID
	for i := 0; i < n; i++ {
		id, outs := b.NewTask(taskgraph.NewTaskSpec{Duration: 1, OutputSizes: []float64{1}})
		for _, o := range prev {
			b.AddInput(id, o)
		}
		prev = outs
	}
	g, err := b.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return g
}

func TestBLevelChain(t *testing.T) {
	g := chain(t, 3)
	level := BLevel(g, func(id taskgraph.TaskID) float64 { return g.Task(id).Duration }, nil)
	want := []float64{3, 2, 1}
	for i, w := range want {
		if got := level[taskgraph.TaskID(i)]; got != w {
			t.Fatalf("b-level of task %d = %v, want %v", i, got, w)
		}
	}
}

func TestALAPForkJoinOrdering(t *testing.T) {
	// a -> {b (dur 5), c (dur 1)} -> d. The branch through b is critical,
	// so ALAP[b] < ALAP[c]: b must sort first for MCP.
	b := taskgraph.NewBuilder()
	a, aOut := b.NewTask(taskgraph.NewTaskSpec{Name: "a", Duration: 1, OutputSizes: []float64{0}})
	_ = a
	bt, bOut := b.NewTask(taskgraph.NewTaskSpec{Name: "b", Duration: 5, OutputSizes: []float64{0}})
	ct, cOut := b.NewTask(taskgraph.NewTaskSpec{Name: "c", Duration: 1, OutputSizes: []float64{0}})
	d, _ := b.NewTask(taskgraph.NewTaskSpec{Name: "d", Duration: 1})
	b.AddInput(bt, aOut[0])
	b.AddInput(ct, aOut[0])
	b.AddInput(d, bOut[0])
	b.AddInput(d, cOut[0])
	g, err := b.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	alap := ALAP(g, func(id taskgraph.TaskID) float64 { return g.Task(id).Duration }, 1)
	if alap[bt] >= alap[ct] {
		t.Fatalf("ALAP[b]=%v should be < ALAP[c]=%v", alap[bt], alap[ct])
	}

	ctx := newCtx(t, g, 2, 1)
	mcp := NewMCP()
	mcp.Init(ctx)
	assignments := mcp.Schedule(ctx, []taskgraph.TaskID{ct, bt}, nil)
	if len(assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(assignments))
	}
	if assignments[0].Task != bt {
		t.Fatalf("MCP scheduled task %d first, want critical task %d", assignments[0].Task, bt)
	}
}

func independentPair(t *testing.T) *taskgraph.Graph {
	t.Helper()
	b := taskgraph.NewBuilder()
	b.NewTask(taskgraph.NewTaskSpec{Duration: 3})
	b.NewTask(taskgraph.NewTaskSpec{Duration: 4})
	g, err := b.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return g
}

func TestDLSSpreadsIndependentTasks(t *testing.T) {
	g := independentPair(t)
	ctx := newCtx(t, g, 2, 1)
	dls := NewDLS(false)
	dls.Init(ctx)
	assignments := dls.Schedule(ctx, []taskgraph.TaskID{0, 1}, nil)
	if len(assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(assignments))
	}
	if assignments[0].Worker == assignments[1].Worker {
		t.Fatalf("DLS co-located two independent tasks on worker %d", assignments[0].Worker)
	}
}

func TestETFSpreadsIndependentTasks(t *testing.T) {
	g := independentPair(t)
	ctx := newCtx(t, g, 2, 1)
	etf := NewETF()
	etf.Init(ctx)
	assignments := etf.Schedule(ctx, []taskgraph.TaskID{0, 1}, nil)
	if len(assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(assignments))
	}
	if assignments[0].Worker == assignments[1].Worker {
		t.Fatalf("ETF co-located two independent tasks on worker %d", assignments[0].Worker)
	}
}

func TestTransferCostSkipsPlacedAndInFlight(t *testing.T) {
	g := chain(t, 2)
	ctx := newCtx(t, g, 2, 1)

	// Nothing placed on worker 1: the full input must move.
	if got := TransferCost(ctx, 1, 1); got != 1 {
		t.Fatalf("transfer cost = %v, want 1", got)
	}

	// Once the producing output is placed on worker 1 the cost is zero.
	out := g.Task(0).Outputs[0]
	ctx.store.Output(out).Placing = append(ctx.store.Output(out).Placing, 1)
	if got := TransferCost(ctx, 1, 1); got != 0 {
		t.Fatalf("transfer cost after placing = %v, want 0", got)
	}
}

func TestCPUInfeasibleWorkerAvoided(t *testing.T) {
	b := taskgraph.NewBuilder()
	b.NewTask(taskgraph.NewTaskSpec{Duration: 1, CPUs: 4})
	g, err := b.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	ctx := newCtx(t, g, 2, 1)
	ctx.workers[1].CPUs = 4

	for _, name := range Names() {
		p, err := New(name)
		if err != nil {
			t.Fatalf("New(%s): %v", name, err)
		}
		p.Init(ctx)
		assignments := p.Schedule(ctx, []taskgraph.TaskID{0}, nil)
		if len(assignments) != 1 {
			t.Fatalf("%s: expected 1 assignment, got %d", name, len(assignments))
		}
		if assignments[0].Worker != 1 {
			t.Fatalf("%s assigned a 4-cpu task to the 1-cpu worker", name)
		}
	}
}

func TestLASTSourcePriority(t *testing.T) {
	g := independentPair(t)
	ctx := newCtx(t, g, 2, 1)
	l := NewLAST()
	if got := l.priority(ctx, 0, 1); got != 1 {
		t.Fatalf("source task priority = %v, want 1", got)
	}
}

func TestK1hPrefersLessLoadedWorker(t *testing.T) {
	b := taskgraph.NewBuilder()
	b.NewTask(taskgraph.NewTaskSpec{Duration: 1})
	g, err := b.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	ctx := newCtx(t, g, 2, 1)
	ctx.workers[0].AssignedLoad = 10

	k := NewK1h()
	k.Init(ctx)
	assignments := k.Schedule(ctx, []taskgraph.TaskID{0}, nil)
	if assignments[0].Worker != 1 {
		t.Fatalf("K1h picked the loaded worker")
	}
}
