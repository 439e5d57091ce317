package pace

import (
	"context"

	"golang.org/x/time/rate"
)

// Gate enforces a minimum interval between successive operations of one
// class. Burst is pinned at 1 so no credit accumulates while the caller is
// busy elsewhere: any two consecutive permitted proceedings are at least
// 1/rate seconds apart, regardless of how the calls cluster.
type Gate struct {
	lim *rate.Limiter
}

// NewGate returns a gate permitting at most perSecond operations per second.
func NewGate(perSecond float64) *Gate {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Gate{lim: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

// Wait suspends the caller until the next operation may proceed, or until
// ctx is cancelled. The first call on a fresh gate proceeds immediately.
func (g *Gate) Wait(ctx context.Context) error {
	return g.lim.Wait(ctx)
}
