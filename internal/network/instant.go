package network

import (
	"math"

	"github.com/swarmguard/schedsim/internal/desim"
)

// InstantModel fires completion in the same simulated instant it was
// requested. Used for baselines where network contention is out of scope.
type InstantModel struct {
	clock *desim.Clock
}

func NewInstantModel() *InstantModel { return &InstantModel{} }

func (m *InstantModel) Init(clock *desim.Clock, workers []WorkerID) {
	m.clock = clock
}

func (m *InstantModel) Bandwidth() float64 { return math.Inf(1) }

func (m *InstantModel) Download(d Download, onComplete CompletionFunc) {
	assertTransfer(d)
	m.clock.Schedule(0, func() { onComplete(d.Payload) })
}
