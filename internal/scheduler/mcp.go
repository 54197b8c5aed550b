package scheduler

import (
	"sort"

	"github.com/swarmguard/schedsim/internal/taskgraph"
)

// MCP is the Modified Critical Path scheduler from "Hypertool: A
// Programming Aid for Message-Passing Systems" (1990). Tasks are ordered by
// their as-late-as-possible start times, lexicographically extended with
// the ALAPs of their consumers, and each is placed on the worker with the
// cheapest transfer cost among those with sufficient CPUs.
type MCP struct {
	alap map[taskgraph.TaskID]float64
}

func NewMCP() *MCP { return &MCP{} }

func (m *MCP) Init(ctx Context) {
	g := ctx.Graph()
	m.alap = ALAP(g, func(t taskgraph.TaskID) float64 { return g.Task(t).Duration }, ctx.Bandwidth())
}

func (m *MCP) Schedule(ctx Context, newReady, newFinished []taskgraph.TaskID) []TaskAssignment {
	g := ctx.Graph()

	keys := make(map[taskgraph.TaskID][]float64, len(newReady))
	for _, t := range newReady {
		key := []float64{m.alap[t]}
		for _, c := range g.Task(t).Consumers {
			key = append(key, m.alap[c])
		}
		keys[t] = key
	}

	tasks := append([]taskgraph.TaskID(nil), newReady...)
	sort.SliceStable(tasks, func(i, j int) bool {
		return lexLess(keys[tasks[i]], keys[tasks[j]])
	})

	bw := ctx.Bandwidth()
	var out []TaskAssignment
	for _, t := range tasks {
		bestW := -1
		var bestCost float64
		for wi, w := range ctx.Workers() {
			cost := InfeasibleCost
			if g.Task(t).CPUs <= w.CPUs {
				cost = TransferCost(ctx, w.ID, t)
				if bw > 0 {
					cost /= bw
				}
			}
			if bestW == -1 || cost < bestCost {
				bestW, bestCost = wi, cost
			}
		}
		out = append(out, TaskAssignment{Worker: ctx.Workers()[bestW].ID, Task: t})
	}
	return out
}

func lexLess(a, b []float64) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
