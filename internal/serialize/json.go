// Package serialize reads and writes task graphs: a compact JSON array
// format and the Pegasus DAX workflow XML. Both round-trip a graph up to
// isomorphism (ids are renumbered densely, arc structure is preserved).
package serialize

import (
	"encoding/json"
	"fmt"

	"github.com/swarmguard/schedsim/internal/taskgraph"
)

type jsonOutput struct {
	Size         float64  `json:"s"`
	ExpectedSize *float64 `json:"e_s"`
}

type jsonTask struct {
	Duration         float64  `json:"d"`
	ExpectedDuration *float64 `json:"e_d"`
	CPUs             int      `json:"cpus"`
	Outputs          []jsonOutput `json:"outputs"`
	// Inputs are [parent task index, output index within parent] pairs.
	Inputs [][2]int `json:"inputs"`
}

// MarshalJSON serializes a graph as an array of task objects with
// structural (index-based) input references.
func MarshalJSON(g *taskgraph.Graph) ([]byte, error) {
	tasks := make([]jsonTask, g.TaskCount())
	for i, t := range g.Tasks() {
		outs := make([]jsonOutput, len(t.Outputs))
		for j, o := range t.Outputs {
			out := g.Output(o)
			outs[j] = jsonOutput{Size: out.Size, ExpectedSize: out.ExpectedSize}
		}
		inputs := make([][2]int, len(t.Inputs))
		for j, in := range t.Inputs {
			out := g.Output(in)
			parent := g.Task(out.Parent)
			idx := -1
			for k, po := range parent.Outputs {
				if po == in {
					idx = k
					break
				}
			}
			inputs[j] = [2]int{int(out.Parent), idx}
		}
		tasks[i] = jsonTask{
			Duration:         t.Duration,
			ExpectedDuration: t.ExpectedDuration,
			CPUs:             t.CPUs,
			Outputs:          outs,
			Inputs:           inputs,
		}
	}
	return json.Marshal(tasks)
}

// UnmarshalJSON rebuilds a graph from the array format and validates it.
func UnmarshalJSON(data []byte) (*taskgraph.Graph, error) {
	var tasks []jsonTask
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("serialize: decode graph json: %w", err)
	}

	b := taskgraph.NewBuilder()
	outIDs := make([][]taskgraph.OutputID, len(tasks))
	taskIDs := make([]taskgraph.TaskID, len(tasks))
	for i, t := range tasks {
		sizes := make([]float64, len(t.Outputs))
		expected := make([]*float64, len(t.Outputs))
		for j, o := range t.Outputs {
			sizes[j] = o.Size
			expected[j] = o.ExpectedSize
		}
		id, outs := b.NewTask(taskgraph.NewTaskSpec{
			Duration:         t.Duration,
			ExpectedDuration: t.ExpectedDuration,
			CPUs:             t.CPUs,
			OutputSizes:      sizes,
			ExpectedSizes:    expected,
		})
		taskIDs[i] = id
		outIDs[i] = outs
	}
	for i, t := range tasks {
		for _, in := range t.Inputs {
			parent, outIdx := in[0], in[1]
			if parent < 0 || parent >= len(tasks) || outIdx < 0 || outIdx >= len(outIDs[parent]) {
				return nil, fmt.Errorf("serialize: task %d input references unknown output (%d, %d)", i, parent, outIdx)
			}
			b.AddInput(taskIDs[i], outIDs[parent][outIdx])
		}
	}
	return b.Finalize()
}
