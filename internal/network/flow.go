package network

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// FlowMatrix is an n x n matrix of per-pair bandwidth allocations, n being
// the number of workers in the run. flows[i][j] is the bandwidth currently
// granted from worker i to worker j.
type FlowMatrix struct {
	n     int
	flows *mat.Dense
}

func newFlowMatrix(n int) *FlowMatrix {
	return &FlowMatrix{n: n, flows: mat.NewDense(n, n, nil)}
}

func (f *FlowMatrix) At(i, j int) float64 { return f.flows.At(i, j) }
func (f *FlowMatrix) Set(i, j int, v float64) { f.flows.Set(i, j, v) }

// computeMaxMinFlow solves the bipartite max-min fair allocation:
// repeatedly find the most-constrained sender or receiver, saturate its
// active pairs equally, remove them from consideration, and repeat until
// every active pair has been assigned a rate. sendCap/recvCap are
// per-worker capacities (here uniform, the announced bandwidth);
// connectivity[i][j] is 1 where a transfer is currently active from i to j.
func computeMaxMinFlow(sendCap, recvCap []float64, connectivity [][]int) *FlowMatrix {
	n := len(sendCap)
	result := newFlowMatrix(n)

	send := append([]float64(nil), sendCap...)
	recv := append([]float64(nil), recvCap...)
	conn := make([][]int, n)
	for i := range conn {
		conn[i] = append([]int(nil), connectivity[i]...)
	}

	rowSum := func(i int) int {
		s := 0
		for j := 0; j < n; j++ {
			s += conn[i][j]
		}
		return s
	}
	colSum := func(j int) int {
		s := 0
		for i := 0; i < n; i++ {
			s += conn[i][j]
		}
		return s
	}
	remaining := func() int {
		s := 0
		for i := 0; i < n; i++ {
			s += rowSum(i)
		}
		return s
	}

	for remaining() > 0 {
		// sends[i] = send_cap[i] / row_sum(i), undefined (+Inf, skipped)
		// for rows with no remaining connectivity.
		bestSendIdx, bestSend := -1, math.Inf(1)
		for i := 0; i < n; i++ {
			rs := rowSum(i)
			if rs == 0 {
				continue
			}
			v := send[i] / float64(rs)
			if v < bestSend {
				bestSend, bestSendIdx = v, i
			}
		}
		bestRecvIdx, bestRecv := -1, math.Inf(1)
		for j := 0; j < n; j++ {
			cs := colSum(j)
			if cs == 0 {
				continue
			}
			v := recv[j] / float64(cs)
			if v < bestRecv {
				bestRecv, bestRecvIdx = v, j
			}
		}

		if bestSendIdx == -1 && bestRecvIdx == -1 {
			break
		}

		if bestRecvIdx == -1 || bestSend <= bestRecv {
			// Sender bestSendIdx is the bottleneck: its active entries
			// each receive bestSend, then the row is retired.
			i := bestSendIdx
			for j := 0; j < n; j++ {
				if conn[i][j] == 0 {
					continue
				}
				result.flows.Set(i, j, result.flows.At(i, j)+bestSend)
				recv[j] -= bestSend
				conn[i][j] = 0
			}
		} else {
			j := bestRecvIdx
			for i := 0; i < n; i++ {
				if conn[i][j] == 0 {
					continue
				}
				result.flows.Set(i, j, result.flows.At(i, j)+bestRecv)
				send[i] -= bestRecv
				conn[i][j] = 0
			}
		}
	}

	return result
}
