// Package network implements the three transfer-scheduling variants: an
// instant model, a fixed-bandwidth simple model, and a max-min fair
// fluid-flow model. All three share the same contract: Init once per run,
// then Download per transfer, with a completion callback delivered exactly
// once at the simulated instant the transfer finishes.
package network

import (
	"github.com/swarmguard/schedsim/internal/desim"
)

// WorkerID identifies a worker endpoint for the duration of one run. It is
// deliberately untyped against runtime.WorkerID to keep this package free
// of a kernel/runtime import cycle; the kernel passes its own WorkerID
// values through unchanged.
type WorkerID int

// Download describes one requested transfer.
type Download struct {
	Source  WorkerID
	Target  WorkerID
	Size    float64
	Payload any
}

// CompletionFunc is invoked exactly once, at the instant a download
// finishes, with the payload it was started with.
type CompletionFunc func(payload any)

// Model is the contract every network variant implements.
type Model interface {
	// Init is called once at run start with the clock driving the
	// simulation and the set of participating worker ids.
	Init(clock *desim.Clock, workers []WorkerID)
	// Download schedules a transfer and calls onComplete exactly once,
	// at the simulated instant it finishes. source != target and size
	// must be >= 0; both are asserted.
	Download(d Download, onComplete CompletionFunc)
	// Bandwidth is the announced per-pair capacity; what the network
	// advertises publicly, not necessarily how it behaves under
	// contention. Schedulers normalize transfer costs by it.
	Bandwidth() float64
}

// FlowListener observes per-pair flow changes, used by the trace journal.
type FlowListener func(now float64, source, target WorkerID, bandwidth float64)

func assertTransfer(d Download) {
	if d.Source == d.Target {
		panic("network: download source and target must differ")
	}
	if d.Size < 0 {
		panic("network: download size must be non-negative")
	}
}
