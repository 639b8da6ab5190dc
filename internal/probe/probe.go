package probe

import (
	"context"
	"time"
)

// State classifies the outcome of one probe.
type State string

const (
	StateHealthy   State = "healthy"
	StateUnhealthy State = "unhealthy"
	StateTimedOut  State = "timed_out"
)

// Target identifies the endpoint to probe. It is immutable; build it once
// from configuration and pass it by value.
type Target struct {
	URL           string        `json:"url"`
	Authorization string        `json:"-"` // opaque credential, sent as Authorization header
	Timeout       time.Duration `json:"timeout"`
}

// DefaultTimeout bounds a single probe when the target does not set one.
const DefaultTimeout = 15 * time.Second

// EffectiveTimeout returns the target timeout or the default.
func (t Target) EffectiveTimeout() time.Duration {
	if t.Timeout > 0 {
		return t.Timeout
	}
	return DefaultTimeout
}

// Result is the value-typed outcome of a single probe.
type Result struct {
	State     State         `json:"state"`
	Reason    string        `json:"reason,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Healthy reports whether the probe succeeded.
func (r Result) Healthy() bool { return r.State == StateHealthy }

// Prober issues exactly one check per call. Implementations must not retry
// internally; retry policy lives with the caller.
type Prober interface {
	Probe(ctx context.Context) Result
}

// Func adapts a closure to the Prober interface.
type Func func(ctx context.Context) Result

func (f Func) Probe(ctx context.Context) Result { return f(ctx) }
