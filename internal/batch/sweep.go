// Package batch runs named scenarios across schedulers and persists the
// results, optionally on a recurring cron schedule -- the sweep side of the
// simulator, kept outside the core kernel.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/swarmguard/schedsim/internal/kernel"
	"github.com/swarmguard/schedsim/internal/network"
	"github.com/swarmguard/schedsim/internal/scheduler"
	"github.com/swarmguard/schedsim/internal/serialize"
	"github.com/swarmguard/schedsim/internal/store"
	"github.com/swarmguard/schedsim/internal/worker"
)

// ExecuteScenario runs one scenario under one scheduler and returns the
// summary record. Contract-violation panics from the kernel surface as
// errors here, so a sweep over a buggy policy reports instead of crashing.
func ExecuteScenario(ctx context.Context, sc store.Scenario, schedulerName string) (rec store.RunRecord, err error) {
	graph, err := serialize.UnmarshalJSON(sc.GraphJSON)
	if err != nil {
		return rec, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	policy, err := scheduler.New(schedulerName)
	if err != nil {
		return rec, err
	}
	net, err := network.New(sc.NetModel, sc.Bandwidth)
	if err != nil {
		return rec, err
	}
	workers := make([]kernel.Worker, sc.Workers)
	for i := range workers {
		workers[i] = worker.New(sc.WorkerCPUs)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scenario %s under %s: %v", sc.Name, schedulerName, r)
		}
	}()

	sim := kernel.New(graph, workers, policy, net)
	started := time.Now()
	makespan := sim.Run(ctx)

	return store.RunRecord{
		RunID:     sim.RunID().String(),
		Scenario:  sc.Name,
		Scheduler: schedulerName,
		NetModel:  sc.NetModel,
		Bandwidth: sc.Bandwidth,
		Workers:   sc.Workers,
		Tasks:     graph.TaskCount(),
		Makespan:  makespan,
		StartedAt: started,
	}, nil
}

// Sweeper cron-schedules recurring re-runs of stored scenarios across
// their configured schedulers, persisting every result.
type Sweeper struct {
	cron  *cron.Cron
	store *store.RunStore

	tracer     oteltrace.Tracer
	sweepRuns  metric.Int64Counter
	sweepFails metric.Int64Counter
}

func NewSweeper(st *store.RunStore) *Sweeper {
	meter := otel.Meter("schedsim-batch")
	sweepRuns, _ := meter.Int64Counter("schedsim_sweep_runs_total")
	sweepFails, _ := meter.Int64Counter("schedsim_sweep_failures_total")
	return &Sweeper{
		cron:       cron.New(cron.WithSeconds()),
		store:      st,
		tracer:     otel.Tracer("schedsim-batch"),
		sweepRuns:  sweepRuns,
		sweepFails: sweepFails,
	}
}

// Add registers a cron expression (with seconds precision) for a stored
// scenario. The scenario must exist at registration time.
func (s *Sweeper) Add(cronExpr, scenarioName string) error {
	if _, found, err := s.store.GetScenario(scenarioName); err != nil {
		return err
	} else if !found {
		return fmt.Errorf("batch: scenario %q not stored", scenarioName)
	}
	entryID, err := s.cron.AddFunc(cronExpr, func() {
		s.SweepOnce(context.Background(), scenarioName)
	})
	if err != nil {
		return fmt.Errorf("add cron sweep: %w", err)
	}
	slog.Info("sweep scheduled", "scenario", scenarioName, "cron", cronExpr, "entry_id", entryID)
	return nil
}

// SweepOnce re-loads the scenario and runs it under every configured
// scheduler, persisting each result.
func (s *Sweeper) SweepOnce(ctx context.Context, scenarioName string) {
	ctx, span := s.tracer.Start(ctx, "batch.sweep",
		oteltrace.WithAttributes(attribute.String("scenario", scenarioName)))
	defer span.End()

	sc, found, err := s.store.GetScenario(scenarioName)
	if err != nil || !found {
		slog.Error("sweep scenario unavailable", "scenario", scenarioName, "error", err)
		s.sweepFails.Add(ctx, 1, metric.WithAttributes(attribute.String("scenario", scenarioName)))
		return
	}

	for _, name := range sc.Schedulers {
		rec, err := ExecuteScenario(ctx, sc, name)
		if err != nil {
			slog.Error("sweep run failed", "scenario", scenarioName, "scheduler", name, "error", err)
			s.sweepFails.Add(ctx, 1, metric.WithAttributes(attribute.String("scheduler", name)))
			continue
		}
		if err := s.store.PutRun(rec); err != nil {
			slog.Error("failed to persist run", "run_id", rec.RunID, "error", err)
			continue
		}
		s.sweepRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("scheduler", name)))
		slog.Info("sweep run completed",
			"scenario", scenarioName,
			"scheduler", name,
			"makespan", rec.Makespan,
			"run_id", rec.RunID,
		)
	}
}

func (s *Sweeper) Start() {
	s.cron.Start()
	slog.Info("sweeper started")
}

func (s *Sweeper) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		slog.Info("sweeper stopped")
		return nil
	case <-ctx.Done():
		slog.Warn("sweeper stop timeout")
		return ctx.Err()
	}
}
