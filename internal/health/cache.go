package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/probe"
)

// DefaultFreshness is how long a probe result stays trustworthy.
const DefaultFreshness = 30 * time.Second

// Record is the last observed probe outcome. ObservedAt strictly increases
// across mutations.
type Record struct {
	Result     probe.Result `json:"result"`
	ObservedAt time.Time    `json:"observed_at"`
}

// Cache remembers the last probe result and suppresses redundant probing
// within the freshness window. Concurrent cache-miss callers coalesce onto a
// single in-flight probe; latecomers wait for its result instead of issuing
// their own.
type Cache struct {
	prober    probe.Prober
	freshness time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	record   *Record
	inflight chan struct{} // non-nil while a probe is running
	now      func() time.Time
}

// NewCache builds a cache over p. freshness <= 0 selects DefaultFreshness.
func NewCache(p probe.Prober, freshness time.Duration, logger *slog.Logger) *Cache {
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{prober: p, freshness: freshness, logger: logger, now: time.Now}
}

// Snapshot returns a copy of the last record, or ok=false when nothing has
// been observed yet.
func (c *Cache) Snapshot() (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.record == nil {
		return Record{}, false
	}
	return *c.record, true
}

// GetOrProbe returns the cached result while it is fresh, otherwise runs one
// probe (shared with any concurrent callers) and returns its result.
func (c *Cache) GetOrProbe(ctx context.Context) probe.Result {
	c.mu.Lock()
	if rec := c.record; rec != nil && c.now().Sub(rec.ObservedAt) < c.freshness {
		res := rec.Result
		c.mu.Unlock()
		metrics.IncProbeCacheHit()
		return res
	}
	return c.probeLocked(ctx)
}

// Refresh always produces a fresh result, bypassing the freshness window.
// Concurrent refreshes still coalesce onto one in-flight probe.
func (c *Cache) Refresh(ctx context.Context) probe.Result {
	c.mu.Lock()
	return c.probeLocked(ctx)
}

// probeLocked is entered holding mu and releases it before any blocking work.
func (c *Cache) probeLocked(ctx context.Context) probe.Result {
	if c.inflight != nil {
		// Another caller owns the probe; wait for it and read what it stored.
		done := c.inflight
		c.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return probe.Result{State: probe.StateUnhealthy, Reason: ctx.Err().Error(), CheckedAt: c.now()}
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.record != nil {
			return c.record.Result
		}
		return probe.Result{State: probe.StateUnhealthy, Reason: "coalesced probe produced no record", CheckedAt: c.now()}
	}

	done := make(chan struct{})
	c.inflight = done
	c.mu.Unlock()

	res := c.prober.Probe(ctx)
	metrics.ObserveProbe(string(res.State), res.Elapsed.Seconds())
	c.logger.Debug("probe completed",
		"component", "health_cache",
		"event", "probe",
		"outcome", string(res.State),
		"duration", res.Elapsed,
	)

	c.mu.Lock()
	c.store(res)
	c.inflight = nil
	close(done)
	c.mu.Unlock()
	return res
}

// store records res with a strictly increasing ObservedAt.
func (c *Cache) store(res probe.Result) {
	obs := c.now()
	if c.record != nil && !obs.After(c.record.ObservedAt) {
		obs = c.record.ObservedAt.Add(time.Nanosecond)
	}
	c.record = &Record{Result: res, ObservedAt: obs}
}
