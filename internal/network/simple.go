package network

import "github.com/swarmguard/schedsim/internal/desim"

// SimpleModel gives every directional pair a fixed, non-interacting
// bandwidth: completion time is simply size/bandwidth. Transfers sharing an
// endpoint do not contend with each other.
type SimpleModel struct {
	bandwidth float64
	clock     *desim.Clock
	listener  FlowListener
	active    map[[2]WorkerID]float64 // trace-only aggregate bandwidth per pair
}

func NewSimpleModel(bandwidth float64) *SimpleModel {
	return &SimpleModel{bandwidth: bandwidth, active: make(map[[2]WorkerID]float64)}
}

func (m *SimpleModel) Init(clock *desim.Clock, workers []WorkerID) {
	m.clock = clock
}

func (m *SimpleModel) Bandwidth() float64 { return m.bandwidth }

// SetFlowListener wires an optional listener for per-pair bandwidth
// changes, consumed by the trace journal.
func (m *SimpleModel) SetFlowListener(l FlowListener) { m.listener = l }

func (m *SimpleModel) Download(d Download, onComplete CompletionFunc) {
	assertTransfer(d)
	key := [2]WorkerID{d.Source, d.Target}
	if m.listener != nil {
		m.traceBandwidth(key, m.bandwidth)
	}
	m.clock.Schedule(d.Size/m.bandwidth, func() {
		if m.listener != nil {
			m.traceBandwidth(key, -m.bandwidth)
		}
		onComplete(d.Payload)
	})
}

func (m *SimpleModel) traceBandwidth(key [2]WorkerID, delta float64) {
	v := m.active[key] + delta
	m.active[key] = v
	m.listener(m.clock.Now(), key[0], key[1], v)
}
