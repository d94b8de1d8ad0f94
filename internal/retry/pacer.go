package retry

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out per-venue work. The first Wait returns at once; each later Wait
// blocks until interval has passed since the previous one.
type Pacer struct {
	limiter *rate.Limiter
}

func NewPacer(interval time.Duration) *Pacer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Pacer{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until the next slot or until ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
