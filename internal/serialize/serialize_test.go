package serialize

import (
	"bytes"
	"strings"
	"testing"

	"github.com/swarmguard/schedsim/internal/taskgraph"
)

func sampleGraph(t *testing.T) *taskgraph.Graph {
	t.Helper()
	b := taskgraph.NewBuilder()
	ed := 2.5
	es := 7.0
	a, aOut := b.NewTask(taskgraph.NewTaskSpec{
		Name: "a", Duration: 2, ExpectedDuration: &ed, CPUs: 2,
		OutputSizes: []float64{10, 5}, ExpectedSizes: []*float64{&es, nil},
	})
	_ = a
	bt, bOut := b.NewTask(taskgraph.NewTaskSpec{Name: "b", Duration: 3, OutputSizes: []float64{1}})
	c, _ := b.NewTask(taskgraph.NewTaskSpec{Name: "c", Duration: 1})
	b.AddInput(bt, aOut[0])
	b.AddInput(c, aOut[1])
	b.AddInput(c, bOut[0])
	g, err := b.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return g
}

func assertIsomorphic(t *testing.T, a, b *taskgraph.Graph) {
	t.Helper()
	if a.TaskCount() != b.TaskCount() || a.OutputCount() != b.OutputCount() {
		t.Fatalf("shape differs: %d/%d tasks, %d/%d outputs",
			a.TaskCount(), b.TaskCount(), a.OutputCount(), b.OutputCount())
	}
	for i := range a.Tasks() {
		ta, tb := a.Task(taskgraph.TaskID(i)), b.Task(taskgraph.TaskID(i))
		if ta.Duration != tb.Duration || ta.CPUs != tb.CPUs {
			t.Fatalf("task %d attributes differ: %+v vs %+v", i, ta, tb)
		}
		if (ta.ExpectedDuration == nil) != (tb.ExpectedDuration == nil) {
			t.Fatalf("task %d expected duration presence differs", i)
		}
		if ta.ExpectedDuration != nil && *ta.ExpectedDuration != *tb.ExpectedDuration {
			t.Fatalf("task %d expected duration differs", i)
		}
		if len(ta.Inputs) != len(tb.Inputs) || len(ta.Outputs) != len(tb.Outputs) {
			t.Fatalf("task %d arity differs", i)
		}
		// Arc structure: the multiset of (parent, size) per input must
		// agree; ids are renumbered densely but order is preserved.
		for j := range ta.Inputs {
			oa, ob := a.Output(ta.Inputs[j]), b.Output(tb.Inputs[j])
			if oa.Parent != ob.Parent || oa.Size != ob.Size {
				t.Fatalf("task %d input %d differs: parent %d size %v vs parent %d size %v",
					i, j, oa.Parent, oa.Size, ob.Parent, ob.Size)
			}
		}
	}
}

func TestJSONRoundTrip(t *testing.T) {
	g := sampleGraph(t)
	data, err := MarshalJSON(g)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := UnmarshalJSON(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	assertIsomorphic(t, g, back)
}

func TestJSONRejectsDanglingInput(t *testing.T) {
	if _, err := UnmarshalJSON([]byte(`[{"d":1,"cpus":1,"outputs":[],"inputs":[[5,0]]}]`)); err == nil {
		t.Fatal("expected error for dangling input reference")
	}
}

func TestDAXRoundTrip(t *testing.T) {
	g := sampleGraph(t)
	var buf bytes.Buffer
	if err := MarshalDAX(g, &buf); err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := UnmarshalDAX(&buf)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	assertIsomorphic(t, g, back)

	// Serializing the reconstruction again is idempotent at the
	// structural level.
	var buf2 bytes.Buffer
	if err := MarshalDAX(back, &buf2); err != nil {
		t.Fatalf("re-marshal: %v", err)
	}
	again, err := UnmarshalDAX(&buf2)
	if err != nil {
		t.Fatalf("re-unmarshal: %v", err)
	}
	assertIsomorphic(t, back, again)
}

// A child/parent relation with no shared file gets a synthetic zero-size
// output injected to carry the dependency.
func TestDAXSyntheticOutput(t *testing.T) {
	doc := `<?xml version="1.0" encoding="utf-8"?>
<adag>
  <job id="p" name="p" runtime="1" cores="1"/>
  <job id="c" name="c" runtime="2" cores="1"/>
  <child ref="c"><parent ref="p"/></child>
</adag>`
	g, err := UnmarshalDAX(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if g.TaskCount() != 2 || g.OutputCount() != 1 {
		t.Fatalf("got %d tasks, %d outputs; want 2 tasks and 1 synthetic output",
			g.TaskCount(), g.OutputCount())
	}
	out := g.Output(0)
	if out.Size != 0 {
		t.Fatalf("synthetic output size = %v, want 0", out.Size)
	}
	child := g.Task(1)
	if len(child.Inputs) != 1 || child.Inputs[0] != out.ID {
		t.Fatalf("dependency not carried: child inputs = %v", child.Inputs)
	}
}

func TestDAXNamespaceAndDefaults(t *testing.T) {
	doc := `<?xml version="1.0"?>
<adag xmlns="http://pegasus.isi.edu/schema/DAX">
  <job id="j1" name="preprocess">
    <uses link="output" file="f1"/>
  </job>
  <job id="j2" name="analyze" runtime="None">
    <uses link="input" file="f1"/>
  </job>
</adag>`
	g, err := UnmarshalDAX(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// Missing runtime and size default to 1; "None" parses as the default.
	if g.Task(0).Duration != 1 || g.Task(1).Duration != 1 {
		t.Fatalf("durations = %v, %v; want defaults of 1", g.Task(0).Duration, g.Task(1).Duration)
	}
	if g.Output(0).Size != 1 {
		t.Fatalf("output size = %v, want default 1", g.Output(0).Size)
	}
	if len(g.Task(1).Inputs) != 1 {
		t.Fatal("file-linked edge not reconstructed")
	}
}
