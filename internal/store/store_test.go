package store

import (
	"path/filepath"
	"testing"
	"time"
)

func openStore(t *testing.T) *RunStore {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "schedsim.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRunRecordRoundTrip(t *testing.T) {
	st := openStore(t)
	rec := RunRecord{
		RunID:     "r1",
		Scenario:  "fj",
		Scheduler: "dls",
		NetModel:  "maxmin",
		Bandwidth: 100,
		Workers:   4,
		Tasks:     12,
		Makespan:  42.5,
		StartedAt: time.Unix(1000, 0),
	}
	if err := st.PutRun(rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, found, err := st.GetRun("r1")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.Makespan != rec.Makespan || got.Scheduler != rec.Scheduler {
		t.Fatalf("got %+v, want %+v", got, rec)
	}
}

func TestListRunsOrderedByStart(t *testing.T) {
	st := openStore(t)
	for i, id := range []string{"b", "a", "c"} {
		rec := RunRecord{RunID: id, Scenario: "s", Scheduler: "etf",
			StartedAt: time.Unix(int64(100-i*10), 0)}
		if err := st.PutRun(rec); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	runs, err := st.ListRuns("s", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("listed %d runs, want 3", len(runs))
	}
	for i := 1; i < len(runs); i++ {
		if runs[i].StartedAt.Before(runs[i-1].StartedAt) {
			t.Fatalf("runs out of order: %v", runs)
		}
	}

	other, err := st.ListRuns("unknown", 10)
	if err != nil || len(other) != 0 {
		t.Fatalf("unknown scenario returned %v, %v", other, err)
	}
}

func TestScenarioRoundTrip(t *testing.T) {
	st := openStore(t)
	sc := Scenario{
		Name:       "fj",
		GraphJSON:  []byte(`[]`),
		Workers:    2,
		WorkerCPUs: 4,
		NetModel:   "simple",
		Bandwidth:  10,
		Schedulers: []string{"dls", "mcp"},
	}
	if err := st.PutScenario(sc); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, found, err := st.GetScenario("fj")
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got.Workers != 2 || len(got.Schedulers) != 2 {
		t.Fatalf("got %+v", got)
	}

	names, err := st.ListScenarios()
	if err != nil || len(names) != 1 || names[0] != "fj" {
		t.Fatalf("list scenarios = %v, %v", names, err)
	}

	if err := st.PutScenario(Scenario{}); err == nil {
		t.Fatal("expected error for unnamed scenario")
	}
}
