package network

import (
	"context"
	"encoding/binary"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/swarmguard/schedsim/internal/desim"
)

const (
	completionEpsilon = 2e-6
	flowCacheSize     = 256
)

type pairKey struct{ source, target WorkerID }

type runningDownload struct {
	size       float64
	speed      float64
	hasSpeed   bool
	payload    any
	onComplete CompletionFunc
}

// MaxMinModel is the fluid-flow network model: a bipartite max-min fair
// allocation recomputed whenever the set of active (source,target) pairs
// changes, with a bounded LRU cache keyed by the connectivity bitmap
// (topology changes far less often than individual transfers start and
// finish).
type MaxMinModel struct {
	bandwidth float64

	clock   *desim.Clock
	workers []WorkerID
	n       int

	downloads      map[pairKey][]*runningDownload
	flows          *FlowMatrix
	recomputeFlows bool
	cache          *flowCache
	listener       FlowListener

	waitStart     float64
	timeoutHandle desim.Handle
	signalPending bool

	tracer       trace.Tracer
	cacheHits    metric.Int64Counter
	cacheMisses  metric.Int64Counter
	recomputeDur metric.Float64Histogram
}

func NewMaxMinModel(bandwidth float64) *MaxMinModel {
	meter := otel.Meter("schedsim-network")
	cacheHits, _ := meter.Int64Counter("schedsim_flow_cache_hits_total")
	cacheMisses, _ := meter.Int64Counter("schedsim_flow_cache_misses_total")
	recomputeDur, _ := meter.Float64Histogram("schedsim_flow_recompute_ms")
	return &MaxMinModel{
		bandwidth:    bandwidth,
		downloads:    make(map[pairKey][]*runningDownload),
		cache:        newFlowCache(flowCacheSize),
		tracer:       otel.Tracer("schedsim-network"),
		cacheHits:    cacheHits,
		cacheMisses:  cacheMisses,
		recomputeDur: recomputeDur,
	}
}

func (m *MaxMinModel) Bandwidth() float64 { return m.bandwidth }

func (m *MaxMinModel) SetFlowListener(l FlowListener) { m.listener = l }

func (m *MaxMinModel) Init(clock *desim.Clock, workers []WorkerID) {
	m.clock = clock
	m.workers = workers
	m.n = len(workers)
	m.flows = newFlowMatrix(m.n)
	m.loopStep()
}

func (m *MaxMinModel) Download(d Download, onComplete CompletionFunc) {
	assertTransfer(d)
	key := pairKey{d.Source, d.Target}
	rd := &runningDownload{size: d.Size, payload: d.Payload, onComplete: onComplete}
	lst := m.downloads[key]
	if len(lst) == 0 {
		slog.Debug("network link opened, flows need recompute", "source", d.Source, "target", d.Target)
		m.recomputeFlows = true
	}
	m.downloads[key] = append(lst, rd)
	m.requestSignal()
}

// requestSignal wakes the control loop, preempting the scheduled horizon
// timeout. Deferred via a zero-delay event (rather than invoked inline) so
// that several downloads starting within the same simulated instant
// collapse into a single resumption.
func (m *MaxMinModel) requestSignal() {
	if m.signalPending {
		return
	}
	m.signalPending = true
	m.timeoutHandle.Cancel()
	m.clock.Schedule(0, func() {
		m.signalPending = false
		elapsed := m.clock.Now() - m.waitStart
		m.advanceSizes(elapsed)
		m.loopStep()
	})
}

// loopStep is one pass of the control loop body: recompute flows if
// flagged, recompute per-download speeds, and schedule the next horizon (or
// go idle if nothing is active).
func (m *MaxMinModel) loopStep() {
	if m.recomputeFlows {
		m.recomputeFlows = false
		m.recomputeFlowsNow()
	}

	horizon, hasActive := m.updateSpeeds()
	m.waitStart = m.clock.Now()
	if hasActive {
		m.timeoutHandle = m.clock.Schedule(horizon, m.onTimeout)
	} else {
		m.timeoutHandle = desim.Handle{}
	}
}

func (m *MaxMinModel) onTimeout() {
	elapsed := m.clock.Now() - m.waitStart
	m.advanceSizes(elapsed)
	m.loopStep()
}

// updateSpeeds assigns each active download flows[source,target]/n where n
// is the number of concurrent transfers on that pair, and returns the
// smallest size/speed across all active downloads (the next event horizon).
func (m *MaxMinModel) updateSpeeds() (horizon float64, hasActive bool) {
	for key, lst := range m.downloads {
		if len(lst) == 0 {
			continue
		}
		speed := m.flows.At(int(key.source), int(key.target)) / float64(len(lst))
		for _, d := range lst {
			d.speed = speed
			d.hasSpeed = speed > 0
			if d.hasSpeed {
				t := d.size / speed
				if !hasActive || t < horizon {
					horizon, hasActive = t, true
				}
			}
		}
	}
	return horizon, hasActive
}

// advanceSizes deducts elapsed*speed from every active download's
// remaining size, firing completions for anything under the epsilon
// threshold and flagging recompute when a pair's download list empties.
func (m *MaxMinModel) advanceSizes(elapsed float64) {
	if elapsed < 0 {
		return
	}
	for key, lst := range m.downloads {
		if len(lst) == 0 {
			continue
		}
		kept := lst[:0:0]
		for _, d := range lst {
			if !d.hasSpeed {
				kept = append(kept, d)
				continue
			}
			// elapsed can be zero when a wakeup lands in the same
			// instant as the horizon; sub-epsilon downloads (zero-size
			// transfers included) still complete on that pass.
			d.size -= elapsed * d.speed
			if d.size < completionEpsilon {
				// Deliver in a fresh event at the same instant: the
				// callback may start new downloads, which must not
				// race this sweep over the download lists.
				d := d
				m.clock.Schedule(0, func() { d.onComplete(d.payload) })
				continue
			}
			kept = append(kept, d)
		}
		if len(kept) == 0 {
			delete(m.downloads, key)
			slog.Debug("network link closed, flows need recompute", "source", key.source, "target", key.target)
			m.recomputeFlows = true
		} else {
			m.downloads[key] = kept
		}
	}
}

func (m *MaxMinModel) recomputeFlowsNow() {
	_, span := m.tracer.Start(context.Background(), "network.recompute_flows",
		trace.WithAttributes(attribute.Int("workers", m.n)))
	defer span.End()
	start := time.Now()
	defer func() {
		m.recomputeDur.Record(context.Background(), float64(time.Since(start).Microseconds())/1000)
	}()

	connectivity := make([][]int, m.n)
	for i := range connectivity {
		connectivity[i] = make([]int, m.n)
	}
	for key, lst := range m.downloads {
		if len(lst) > 0 {
			connectivity[int(key.source)][int(key.target)] = 1
		}
	}

	key := connectivityDigest(connectivity)
	f, ok := m.cache.Get(key)
	if ok {
		m.cacheHits.Add(context.Background(), 1)
	} else {
		m.cacheMisses.Add(context.Background(), 1)
		sendCap := make([]float64, m.n)
		recvCap := make([]float64, m.n)
		for i := range sendCap {
			sendCap[i] = m.bandwidth
			recvCap[i] = m.bandwidth
		}
		f = computeMaxMinFlow(sendCap, recvCap, connectivity)
		m.cache.Set(key, f)
	}

	m.traceFlows(m.flows, f)
	m.flows = f
}

func (m *MaxMinModel) traceFlows(old, updated *FlowMatrix) {
	if m.listener == nil {
		return
	}
	now := m.clock.Now()
	for _, s := range m.workers {
		for _, t := range m.workers {
			nv := updated.At(int(s), int(t))
			if old.At(int(s), int(t)) != nv {
				m.listener(now, s, t, nv)
			}
		}
	}
}

func connectivityDigest(connectivity [][]int) string {
	n := len(connectivity)
	buf := make([]byte, n*n*4)
	off := 0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			binary.LittleEndian.PutUint32(buf[off:], uint32(connectivity[i][j]))
			off += 4
		}
	}
	return string(buf)
}
