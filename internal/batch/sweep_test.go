package batch

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/swarmguard/schedsim/internal/generator"
	"github.com/swarmguard/schedsim/internal/serialize"
	"github.com/swarmguard/schedsim/internal/store"
)

func scenarioFixture(t *testing.T) store.Scenario {
	t.Helper()
	g, err := generator.ForkJoin(4, 2, 1)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	data, err := serialize.MarshalJSON(g)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return store.Scenario{
		Name:       "fj",
		GraphJSON:  data,
		Workers:    2,
		WorkerCPUs: 1,
		NetModel:   "simple",
		Bandwidth:  10,
		Schedulers: []string{"dls", "etf"},
	}
}

func TestExecuteScenario(t *testing.T) {
	sc := scenarioFixture(t)
	rec, err := ExecuteScenario(context.Background(), sc, "dls")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if rec.Makespan <= 0 {
		t.Fatalf("makespan = %v, want positive", rec.Makespan)
	}
	if rec.Scheduler != "dls" || rec.Tasks != 6 || rec.Workers != 2 {
		t.Fatalf("record = %+v", rec)
	}
}

func TestExecuteScenarioUnknownScheduler(t *testing.T) {
	sc := scenarioFixture(t)
	if _, err := ExecuteScenario(context.Background(), sc, "nope"); err == nil {
		t.Fatal("expected error for unknown scheduler")
	}
}

func TestSweepOncePersistsEveryScheduler(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "schedsim.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	sc := scenarioFixture(t)
	if err := st.PutScenario(sc); err != nil {
		t.Fatalf("put scenario: %v", err)
	}

	NewSweeper(st).SweepOnce(context.Background(), "fj")

	runs, err := st.ListRuns("fj", 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != len(sc.Schedulers) {
		t.Fatalf("persisted %d runs, want %d", len(runs), len(sc.Schedulers))
	}
}

func TestSweeperRejectsUnknownScenario(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "schedsim.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	if err := NewSweeper(st).Add("*/5 * * * * *", "missing"); err == nil {
		t.Fatal("expected error for unknown scenario")
	}
}
