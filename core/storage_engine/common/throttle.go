package common

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Throttle bounds the byte throughput of page copies. A nil *Throttle or a
// zero rate means unthrottled.
type Throttle struct {
	limiter *rate.Limiter
	burst   int
}

// NewThrottle returns a Throttle admitting bytesPerSec bytes per second with
// bursts of up to burst bytes. bytesPerSec <= 0 disables throttling.
func NewThrottle(bytesPerSec int64, burst int) *Throttle {
	if bytesPerSec <= 0 {
		return &Throttle{}
	}
	if burst <= 0 {
		burst = int(bytesPerSec)
	}
	return &Throttle{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		burst:   burst,
	}
}

// Enabled reports whether waits can block.
func (t *Throttle) Enabled() bool {
	return t != nil && t.limiter != nil
}

// WaitN blocks until n bytes may be written. Requests larger than the burst
// are split so WaitN never fails on size alone.
func (t *Throttle) WaitN(ctx context.Context, n int) error {
	if !t.Enabled() {
		return nil
	}
	for n > 0 {
		step := n
		if step > t.burst {
			step = t.burst
		}
		if err := t.limiter.WaitN(ctx, step); err != nil {
			return fmt.Errorf("%w: %v", ErrRateLimiterWait, err)
		}
		n -= step
	}
	return nil
}
