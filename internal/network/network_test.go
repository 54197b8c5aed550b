package network

import (
	"math"
	"testing"

	"github.com/swarmguard/schedsim/internal/desim"
)

func TestInstantCompletesSameInstant(t *testing.T) {
	clock := desim.New()
	m := NewInstantModel()
	m.Init(clock, []WorkerID{0, 1})

	var done float64 = -1
	m.Download(Download{Source: 0, Target: 1, Size: 100}, func(any) { done = clock.Now() })
	clock.Run(nil)
	if done != 0 {
		t.Fatalf("instant download completed at %v, want 0", done)
	}
}

func TestSimpleCompletionIsSizeOverBandwidth(t *testing.T) {
	clock := desim.New()
	m := NewSimpleModel(5)
	m.Init(clock, []WorkerID{0, 1})

	var done float64 = -1
	m.Download(Download{Source: 0, Target: 1, Size: 10, Payload: "x"}, func(p any) {
		if p != "x" {
			t.Fatalf("payload = %v", p)
		}
		done = clock.Now()
	})
	clock.Run(nil)
	if done != 2 {
		t.Fatalf("simple download completed at %v, want 2", done)
	}
}

func TestSimpleTransfersDoNotInteract(t *testing.T) {
	clock := desim.New()
	m := NewSimpleModel(1)
	m.Init(clock, []WorkerID{0, 1, 2})

	times := map[WorkerID]float64{}
	for _, target := range []WorkerID{1, 2} {
		target := target
		m.Download(Download{Source: 0, Target: target, Size: 10}, func(any) { times[target] = clock.Now() })
	}
	clock.Run(nil)
	if times[1] != 10 || times[2] != 10 {
		t.Fatalf("completion times = %v, want both 10", times)
	}
}

// Two simultaneous downloads sharing one source, both size 10, bandwidth 1:
// each gets half the source's send capacity and completes at 20.
func TestMaxMinSharedSourceSplitsBandwidth(t *testing.T) {
	clock := desim.New()
	m := NewMaxMinModel(1)
	m.Init(clock, []WorkerID{0, 1, 2})

	times := map[WorkerID]float64{}
	for _, target := range []WorkerID{1, 2} {
		target := target
		m.Download(Download{Source: 0, Target: target, Size: 10}, func(any) { times[target] = clock.Now() })
	}
	clock.Run(nil)

	for _, target := range []WorkerID{1, 2} {
		if math.Abs(times[target]-20) > 1e-6 {
			t.Fatalf("download to %d completed at %v, want 20", target, times[target])
		}
	}
}

func TestMaxMinIndependentPairsFullBandwidth(t *testing.T) {
	clock := desim.New()
	m := NewMaxMinModel(2)
	m.Init(clock, []WorkerID{0, 1, 2, 3})

	times := map[WorkerID]float64{}
	m.Download(Download{Source: 0, Target: 1, Size: 10}, func(any) { times[1] = clock.Now() })
	m.Download(Download{Source: 2, Target: 3, Size: 20}, func(any) { times[3] = clock.Now() })
	clock.Run(nil)

	// No shared endpoints: completion order equals ascending size/speed.
	if math.Abs(times[1]-5) > 1e-6 || math.Abs(times[3]-10) > 1e-6 {
		t.Fatalf("completion times = %v, want 5 and 10", times)
	}
}

func TestMaxMinConcurrentOnOnePairShareTheFlow(t *testing.T) {
	clock := desim.New()
	m := NewMaxMinModel(1)
	m.Init(clock, []WorkerID{0, 1})

	var first, second float64
	m.Download(Download{Source: 0, Target: 1, Size: 5}, func(any) { first = clock.Now() })
	m.Download(Download{Source: 0, Target: 1, Size: 5}, func(any) { second = clock.Now() })
	clock.Run(nil)

	// Each gets flow/2 = 0.5, so both finish at 10.
	if math.Abs(first-10) > 1e-6 || math.Abs(second-10) > 1e-6 {
		t.Fatalf("completions at %v and %v, want both 10", first, second)
	}
}

func TestComputeMaxMinFlowCapacities(t *testing.T) {
	sendCap := []float64{1, 1, 1}
	recvCap := []float64{1, 1, 1}
	connectivity := [][]int{
		{0, 1, 1},
		{0, 0, 1},
		{0, 0, 0},
	}
	f := computeMaxMinFlow(sendCap, recvCap, connectivity)

	// Row and column sums bounded by capacity, every active pair nonzero.
	for i := 0; i < 3; i++ {
		var row, col float64
		for j := 0; j < 3; j++ {
			row += f.At(i, j)
			col += f.At(j, i)
		}
		if row > 1+1e-9 || col > 1+1e-9 {
			t.Fatalf("capacity exceeded at %d: row=%v col=%v", i, row, col)
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if connectivity[i][j] == 1 && f.At(i, j) <= 0 {
				t.Fatalf("active pair (%d,%d) got zero bandwidth", i, j)
			}
		}
	}

	// Receiver 2 is the contended endpoint: its incoming flows share its
	// capacity.
	if got := f.At(0, 2) + f.At(1, 2); math.Abs(got-1) > 1e-9 {
		t.Fatalf("recv 2 total = %v, want 1", got)
	}
}

func TestComputeMaxMinFlowDeterministic(t *testing.T) {
	connectivity := [][]int{{0, 1}, {1, 0}}
	a := computeMaxMinFlow([]float64{3, 3}, []float64{3, 3}, connectivity)
	b := computeMaxMinFlow([]float64{3, 3}, []float64{3, 3}, connectivity)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if a.At(i, j) != b.At(i, j) {
				t.Fatalf("recompute differs at (%d,%d): %v vs %v", i, j, a.At(i, j), b.At(i, j))
			}
		}
	}
}

func TestFlowCacheHitReturnsSameMatrix(t *testing.T) {
	c := newFlowCache(2)
	conn := [][]int{{0, 1}, {0, 0}}
	key := connectivityDigest(conn)
	m := computeMaxMinFlow([]float64{1, 1}, []float64{1, 1}, conn)
	c.Set(key, m)

	got, ok := c.Get(key)
	if !ok || got != m {
		t.Fatal("cache miss for stored connectivity pattern")
	}
}

func TestFlowCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newFlowCache(2)
	c.Set("a", newFlowMatrix(1))
	c.Set("b", newFlowMatrix(1))
	c.Get("a") // refresh a; b is now the eviction candidate
	c.Set("c", newFlowMatrix(1))

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should have survived")
	}
}

func TestDownloadAssertions(t *testing.T) {
	clock := desim.New()
	m := NewInstantModel()
	m.Init(clock, []WorkerID{0, 1})

	for _, d := range []Download{
		{Source: 0, Target: 0, Size: 1},
		{Source: 0, Target: 1, Size: -1},
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("download %+v did not panic", d)
				}
			}()
			m.Download(d, func(any) {})
		}()
	}
}
