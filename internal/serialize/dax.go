package serialize

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/swarmguard/schedsim/internal/taskgraph"
)

// The Pegasus DAX workflow XML: <job> declares tasks with <uses> file
// references; <child><parent/> declares dependency edges. Edges are
// reconstructed by matching file names between a parent's output uses and a
// child's input uses. When a declared child/parent pair shares no named
// file, an implicit zero-size synthetic output is injected to carry the
// dependency.

type daxUses struct {
	Link         string `xml:"link,attr"`
	File         string `xml:"file,attr"`
	Size         string `xml:"size,attr,omitempty"`
	ExpectedSize string `xml:"expectedSize,attr,omitempty"`
}

type daxJob struct {
	ID              string    `xml:"id,attr"`
	Name            string    `xml:"name,attr,omitempty"`
	Runtime         string    `xml:"runtime,attr,omitempty"`
	ExpectedRuntime string    `xml:"expectedRuntime,attr,omitempty"`
	Cores           string    `xml:"cores,attr,omitempty"`
	Uses            []daxUses `xml:"uses"`
}

type daxParent struct {
	Ref string `xml:"ref,attr"`
}

type daxChild struct {
	Ref     string      `xml:"ref,attr"`
	Parents []daxParent `xml:"parent"`
}

type daxADAG struct {
	XMLName  xml.Name   `xml:"adag"`
	Jobs     []daxJob   `xml:"job"`
	Children []daxChild `xml:"child"`
}

type daxOutput struct {
	name         string
	size         float64
	expectedSize *float64
}

type daxTask struct {
	id               string
	name             string
	duration         float64
	expectedDuration *float64
	cpus             int
	outputs          []daxOutput
	inputs           []string
}

// parseFloat handles the format's tri-state attributes: missing uses the
// default, the literal string "None" means explicitly unset.
func parseFloat(s string, def float64) (float64, error) {
	if s == "" || s == "None" {
		return def, nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseOptFloat(s string) (*float64, error) {
	if s == "" || s == "None" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// UnmarshalDAX parses a Pegasus DAX document into a validated graph.
func UnmarshalDAX(r io.Reader) (*taskgraph.Graph, error) {
	var doc daxADAG
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("serialize: decode dax: %w", err)
	}

	tasks := make(map[string]*daxTask, len(doc.Jobs))
	ids := make([]string, 0, len(doc.Jobs))
	for _, job := range doc.Jobs {
		if job.ID == "" {
			return nil, fmt.Errorf("serialize: dax job without id")
		}
		if _, dup := tasks[job.ID]; dup {
			return nil, fmt.Errorf("serialize: duplicate dax job id %q", job.ID)
		}
		name := job.Name
		if name == "" {
			name = job.ID
		}
		duration, err := parseFloat(job.Runtime, 1)
		if err != nil {
			return nil, fmt.Errorf("serialize: job %s runtime: %w", job.ID, err)
		}
		expectedDuration, err := parseOptFloat(job.ExpectedRuntime)
		if err != nil {
			return nil, fmt.Errorf("serialize: job %s expectedRuntime: %w", job.ID, err)
		}
		cpus := 1
		if job.Cores != "" && job.Cores != "None" {
			cpus, err = strconv.Atoi(job.Cores)
			if err != nil {
				return nil, fmt.Errorf("serialize: job %s cores: %w", job.ID, err)
			}
		}

		t := &daxTask{id: job.ID, name: name, duration: duration, expectedDuration: expectedDuration, cpus: cpus}
		for _, u := range job.Uses {
			switch u.Link {
			case "output":
				size, err := parseFloat(u.Size, 1)
				if err != nil {
					return nil, fmt.Errorf("serialize: job %s output %s size: %w", job.ID, u.File, err)
				}
				expectedSize, err := parseOptFloat(u.ExpectedSize)
				if err != nil {
					return nil, fmt.Errorf("serialize: job %s output %s expectedSize: %w", job.ID, u.File, err)
				}
				t.outputs = append(t.outputs, daxOutput{name: u.File, size: size, expectedSize: expectedSize})
			case "input":
				t.inputs = append(t.inputs, u.File)
			}
		}
		tasks[job.ID] = t
		ids = append(ids, job.ID)
	}

	// A child/parent relation with no shared file gets a synthetic
	// zero-size output injected so the dependency survives.
	for _, child := range doc.Children {
		ct, ok := tasks[child.Ref]
		if !ok {
			return nil, fmt.Errorf("serialize: dax child references unknown job %q", child.Ref)
		}
		for _, p := range child.Parents {
			pt, ok := tasks[p.Ref]
			if !ok {
				return nil, fmt.Errorf("serialize: dax parent references unknown job %q", p.Ref)
			}
			if sharesFile(ct.inputs, pt.outputs) {
				continue
			}
			name := uuid.New().String()
			zero := 0.0
			pt.outputs = append(pt.outputs, daxOutput{name: name, size: 0, expectedSize: &zero})
			ct.inputs = append(ct.inputs, name)
		}
	}

	b := taskgraph.NewBuilder()
	outputByName := make(map[string]taskgraph.OutputID)
	taskByID := make(map[string]taskgraph.TaskID, len(ids))
	for _, id := range ids {
		t := tasks[id]
		sizes := make([]float64, len(t.outputs))
		expected := make([]*float64, len(t.outputs))
		for i, o := range t.outputs {
			sizes[i] = o.size
			expected[i] = o.expectedSize
		}
		tid, outs := b.NewTask(taskgraph.NewTaskSpec{
			Name:             t.name,
			Duration:         t.duration,
			ExpectedDuration: t.expectedDuration,
			CPUs:             t.cpus,
			OutputSizes:      sizes,
			ExpectedSizes:    expected,
		})
		for i, o := range t.outputs {
			if _, dup := outputByName[o.name]; dup {
				return nil, fmt.Errorf("serialize: dax output file %q produced twice", o.name)
			}
			outputByName[o.name] = outs[i]
		}
		taskByID[id] = tid
	}
	for _, id := range ids {
		for _, in := range tasks[id].inputs {
			if out, ok := outputByName[in]; ok {
				b.AddInput(taskByID[id], out)
			}
		}
	}
	return b.Finalize()
}

func sharesFile(inputs []string, outputs []daxOutput) bool {
	for _, in := range inputs {
		for _, o := range outputs {
			if o.name == in {
				return true
			}
		}
	}
	return false
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func formatOptFloat(v *float64) string {
	if v == nil {
		return "None"
	}
	return formatFloat(*v)
}

// MarshalDAX writes the graph as a Pegasus DAX document. Output files are
// named deterministically ("task-N-oI") so a round-trip reconstructs the
// identical arc structure, synthetic outputs included (they are real
// outputs by the time a graph is serialized, so the operation is
// idempotent).
func MarshalDAX(g *taskgraph.Graph, w io.Writer) error {
	doc := daxADAG{}

	jobID := func(t taskgraph.TaskID) string { return fmt.Sprintf("task-%d", t) }
	fileName := func(o taskgraph.OutputID) string {
		out := g.Output(o)
		parent := g.Task(out.Parent)
		for i, po := range parent.Outputs {
			if po == o {
				return fmt.Sprintf("%s-o%d", jobID(out.Parent), i)
			}
		}
		return ""
	}

	for _, t := range g.Tasks() {
		job := daxJob{
			ID:              jobID(t.ID),
			Name:            t.Name,
			Runtime:         formatFloat(t.Duration),
			ExpectedRuntime: formatOptFloat(t.ExpectedDuration),
			Cores:           strconv.Itoa(t.CPUs),
		}
		if job.Name == "" {
			job.Name = job.ID
		}
		for _, o := range t.Outputs {
			out := g.Output(o)
			job.Uses = append(job.Uses, daxUses{
				Link:         "output",
				File:         fileName(o),
				Size:         formatFloat(out.Size),
				ExpectedSize: formatOptFloat(out.ExpectedSize),
			})
		}
		inputs := append([]taskgraph.OutputID(nil), t.Inputs...)
		sort.Slice(inputs, func(i, j int) bool { return fileName(inputs[i]) < fileName(inputs[j]) })
		for _, o := range inputs {
			out := g.Output(o)
			job.Uses = append(job.Uses, daxUses{
				Link:         "input",
				File:         fileName(o),
				Size:         formatFloat(out.Size),
				ExpectedSize: formatOptFloat(out.ExpectedSize),
			})
		}
		doc.Jobs = append(doc.Jobs, job)
	}

	for _, t := range g.Tasks() {
		if len(t.Inputs) == 0 {
			continue
		}
		seen := make(map[taskgraph.TaskID]struct{})
		var parents []taskgraph.TaskID
		for _, in := range t.Inputs {
			p := g.Output(in).Parent
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				parents = append(parents, p)
			}
		}
		sort.Slice(parents, func(i, j int) bool { return jobID(parents[i]) < jobID(parents[j]) })
		child := daxChild{Ref: jobID(t.ID)}
		for _, p := range parents {
			child.Parents = append(child.Parents, daxParent{Ref: jobID(p)})
		}
		doc.Children = append(doc.Children, child)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("serialize: encode dax: %w", err)
	}
	return enc.Close()
}
