package retry

import "time"

// Default backoff parameters. The base matches the 2^attempt seconds schedule
// the connection checks have always used; the cap keeps late attempts bounded.
const (
	DefaultBase = time.Second
	DefaultCap  = 30 * time.Second
)

// Backoff computes the delay before the next attempt. Zero value means
// DefaultBase with DefaultCap.
type Backoff struct {
	Base time.Duration `json:"base"`
	Cap  time.Duration `json:"cap"` // <= 0 disables the cap
}

// Delay returns Base * 2^attempt, clamped to Cap when set. attempt is the
// zero-based index of the attempt that just failed; negative values are
// treated as 0.
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = DefaultBase
	}
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if b.Cap > 0 && d >= b.Cap {
			return b.Cap
		}
		if d <= 0 { // overflow guard for very large attempt counts
			if b.Cap > 0 {
				return b.Cap
			}
			return 1<<63 - 1
		}
	}
	if b.Cap > 0 && d > b.Cap {
		return b.Cap
	}
	return d
}
