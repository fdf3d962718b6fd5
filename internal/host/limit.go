package host

import (
	"context"

	"golang.org/x/time/rate"
)

const defaultBurst = 64 * 1024

// outputLimiter paces PTY output to a sustained byte rate. A nil limiter
// never waits.
type outputLimiter struct {
	lim   *rate.Limiter
	burst int
}

func newOutputLimiter(bytesPerSec int) *outputLimiter {
	if bytesPerSec <= 0 {
		return nil
	}
	burst := defaultBurst
	if bytesPerSec > burst {
		burst = bytesPerSec
	}
	return &outputLimiter{lim: rate.NewLimiter(rate.Limit(bytesPerSec), burst), burst: burst}
}

// wait blocks until n bytes may be sent, or ctx is done.
func (l *outputLimiter) wait(ctx context.Context, n int) error {
	if l == nil {
		return nil
	}
	// Chunk so WaitN never rejects n > burst.
	for n > 0 {
		chunk := min(n, l.burst)
		if err := l.lim.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}
