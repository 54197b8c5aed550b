package scheduler

import "github.com/swarmguard/schedsim/internal/taskgraph"

// ScoreFunc prices a candidate (worker, task) pair for a greedy selection.
type ScoreFunc func(ctx Context, w WorkerRef, t taskgraph.TaskID) float64

// scheduleAll repeatedly scans the full (worker, task) product over the
// still-unassigned tasks, picks the best-scoring pair, assigns it, and
// repeats until every task has a worker -- the greedy sweep the DLS, ETF,
// and K1h heuristics share. A worker's AssignedLoad is bumped by the
// assigned task's duration after each pick, so later picks in the same
// call see the updated load.
func scheduleAll(ctx Context, tasks []taskgraph.TaskID, score ScoreFunc, wantMin bool) []TaskAssignment {
	return scheduleAllTieBreak(ctx, tasks, score, wantMin, nil, false)
}

// TieBreakFunc breaks ties on the primary score by task alone (e.g. ETF's
// "ties broken by higher B-level").
type TieBreakFunc func(t taskgraph.TaskID) float64

func scheduleAllTieBreak(ctx Context, tasks []taskgraph.TaskID, score ScoreFunc, wantMin bool, tiebreak TieBreakFunc, tieWantMax bool) []TaskAssignment {
	workers := append([]WorkerRef(nil), ctx.Workers()...)
	remaining := append([]taskgraph.TaskID(nil), tasks...)
	g := ctx.Graph()

	var out []TaskAssignment
	for len(remaining) > 0 {
		bestW, bestT := -1, -1
		var bestPrimary, bestSecondary float64

		for wi := range workers {
			for ti, t := range remaining {
				primary := score(ctx, workers[wi], t)
				var secondary float64
				if tiebreak != nil {
					secondary = tiebreak(t)
				}

				better := bestW == -1
				if !better {
					if primary != bestPrimary {
						better = (wantMin && primary < bestPrimary) || (!wantMin && primary > bestPrimary)
					} else if tiebreak != nil && secondary != bestSecondary {
						better = (tieWantMax && secondary > bestSecondary) || (!tieWantMax && secondary < bestSecondary)
					} else {
						// Full tie: fall to the least-loaded worker, so
						// a batch of equal-cost tasks spreads across
						// the pool instead of piling onto worker 0.
						better = workers[wi].AssignedLoad < workers[bestW].AssignedLoad
					}
				}
				if better {
					bestW, bestT = wi, ti
					bestPrimary, bestSecondary = primary, secondary
				}
			}
		}

		w := workers[bestW]
		t := remaining[bestT]
		out = append(out, TaskAssignment{Worker: w.ID, Task: t})
		workers[bestW].AssignedLoad += g.Task(t).Duration
		remaining = append(remaining[:bestT], remaining[bestT+1:]...)
	}
	return out
}
