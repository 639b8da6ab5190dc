package health

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loykin/warden/internal/probe"
)

func countingProber(n *atomic.Int64, state probe.State) probe.Prober {
	return probe.Func(func(_ context.Context) probe.Result {
		n.Add(1)
		return probe.Result{State: state, CheckedAt: time.Now()}
	})
}

func TestGetOrProbeServesFreshRecord(t *testing.T) {
	var calls atomic.Int64
	c := NewCache(countingProber(&calls, probe.StateHealthy), 30*time.Second, nil)

	r1 := c.GetOrProbe(context.Background())
	r2 := c.GetOrProbe(context.Background())
	if !r1.Healthy() || !r2.Healthy() {
		t.Fatalf("results: %+v %+v", r1, r2)
	}
	if calls.Load() != 1 {
		t.Fatalf("two calls within the window must issue one probe, got %d", calls.Load())
	}
}

func TestGetOrProbeReprobesAfterWindow(t *testing.T) {
	var calls atomic.Int64
	c := NewCache(countingProber(&calls, probe.StateHealthy), 30*time.Second, nil)
	fake := time.Now()
	c.now = func() time.Time { return fake }

	c.GetOrProbe(context.Background())
	fake = fake.Add(31 * time.Second)
	c.GetOrProbe(context.Background())
	if calls.Load() != 2 {
		t.Fatalf("stale record must trigger a second probe, got %d", calls.Load())
	}
}

func TestRefreshBypassesFreshness(t *testing.T) {
	var calls atomic.Int64
	c := NewCache(countingProber(&calls, probe.StateHealthy), time.Hour, nil)

	c.GetOrProbe(context.Background())
	c.Refresh(context.Background())
	if calls.Load() != 2 {
		t.Fatalf("refresh must probe regardless of freshness, got %d", calls.Load())
	}
}

func TestObservedAtStrictlyIncreases(t *testing.T) {
	var calls atomic.Int64
	c := NewCache(countingProber(&calls, probe.StateHealthy), time.Hour, nil)
	fake := time.Now()
	c.now = func() time.Time { return fake } // frozen clock

	c.Refresh(context.Background())
	first, _ := c.Snapshot()
	c.Refresh(context.Background())
	second, _ := c.Snapshot()
	if !second.ObservedAt.After(first.ObservedAt) {
		t.Fatalf("observed_at must strictly increase: %v then %v", first.ObservedAt, second.ObservedAt)
	}
}

func TestConcurrentMissesCoalesce(t *testing.T) {
	var calls atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})
	p := probe.Func(func(_ context.Context) probe.Result {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return probe.Result{State: probe.StateHealthy, CheckedAt: time.Now()}
	})
	c := NewCache(p, time.Hour, nil)

	var wg sync.WaitGroup
	results := make([]probe.Result, 8)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = c.GetOrProbe(context.Background())
	}()
	<-started
	for i := 1; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.GetOrProbe(context.Background())
		}(i)
	}
	// Give the latecomers time to reach the in-flight wait before releasing.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("concurrent misses must share one probe, got %d", calls.Load())
	}
	for i, r := range results {
		if !r.Healthy() {
			t.Fatalf("caller %d did not receive the shared result: %+v", i, r)
		}
	}
}

func TestCoalescedCallerHonorsCancel(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	p := probe.Func(func(_ context.Context) probe.Result {
		close(started)
		<-release
		return probe.Result{State: probe.StateHealthy, CheckedAt: time.Now()}
	})
	c := NewCache(p, time.Hour, nil)

	go c.GetOrProbe(context.Background())
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := c.GetOrProbe(ctx)
	close(release)
	if res.State != probe.StateUnhealthy {
		t.Fatalf("cancelled waiter should classify unhealthy, got %+v", res)
	}
}

func TestSnapshotBeforeAnyProbe(t *testing.T) {
	c := NewCache(probe.Func(func(context.Context) probe.Result { return probe.Result{} }), 0, nil)
	if _, ok := c.Snapshot(); ok {
		t.Fatalf("snapshot should report no record before first probe")
	}
}
