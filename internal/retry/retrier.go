package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/probe"
)

// DefaultMaxAttempts is the attempt budget when none is configured.
const DefaultMaxAttempts = 3

// Refresher produces a genuinely fresh probe result. A health cache
// satisfies this with its freshness-bypassing refresh path.
type Refresher interface {
	Refresh(ctx context.Context) probe.Result
}

// ExhaustedError reports that every attempt failed. It carries the last
// observed result so callers can distinguish timeouts from rejections.
type ExhaustedError struct {
	Attempts int
	Last     probe.Result
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("connectivity check failed after %d attempts: %s: %s", e.Attempts, e.Last.State, e.Last.Reason)
}

// Retrier drives a Refresher through a bounded attempt sequence with
// exponential backoff between failures.
type Retrier struct {
	MaxAttempts int
	Backoff     Backoff
	Logger      *slog.Logger
	// Sleep is swappable for tests; nil means a ctx-aware time.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (r Retrier) attempts() int {
	if r.MaxAttempts > 0 {
		return r.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (r Retrier) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConnectWithRetry runs up to MaxAttempts probes through ref, short-circuiting
// on the first healthy result. Each attempt is a real probe, never a cache
// hit. On exhaustion it returns the last result wrapped in *ExhaustedError.
func (r Retrier) ConnectWithRetry(ctx context.Context, ref Refresher) (probe.Result, error) {
	lg := r.Logger
	if lg == nil {
		lg = slog.Default()
	}
	max := r.attempts()

	var last probe.Result
	for attempt := 0; attempt < max; attempt++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		last = ref.Refresh(ctx)
		lg.Info("connectivity attempt",
			"component", "retrier",
			"event", "probe",
			"attempt", attempt+1,
			"max_attempts", max,
			"outcome", string(last.State),
			"duration", last.Elapsed,
		)
		if last.Healthy() {
			return last, nil
		}
		metrics.IncRetrierFailure(string(last.State))
		if attempt < max-1 {
			d := r.Backoff.Delay(attempt)
			lg.Debug("backing off before next attempt",
				"component", "retrier",
				"event", "backoff",
				"attempt", attempt+1,
				"duration", d,
			)
			if err := r.sleep(ctx, d); err != nil {
				return last, err
			}
		}
	}
	return last, &ExhaustedError{Attempts: max, Last: last}
}
