package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telescribe/internal/logging"
	"telescribe/internal/metrics"
	"telescribe/internal/pace"
)

// Throttled is the platform's slow-down signal. It carries the wait the
// server mandates before the call may be repeated. It is transient and never
// terminal: callers wait it out and retry.
type Throttled struct {
	RetryAfter time.Duration
}

func (e *Throttled) Error() string {
	return fmt.Sprintf("throttled: retry after %s", e.RetryAfter)
}

// RetryAfter reports the mandated wait when err is (or wraps) a Throttled
// signal.
func RetryAfter(err error) (time.Duration, bool) {
	var t *Throttled
	if errors.As(err, &t) {
		return t.RetryAfter, true
	}
	return 0, false
}

// Sleep suspends the caller for d or until ctx is cancelled, logging the
// wait so throttling is visible in timing but never reported as a failure.
func Sleep(ctx context.Context, op string, d time.Duration) error {
	logging.Info("throttle_wait", map[string]any{"op": op, "seconds": d.Seconds()})
	metrics.ObserveThrottleWait(op, d)
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs op behind gate: acquire gate, invoke, and on a Throttled signal
// sleep out the server-mandated interval and repeat the whole sequence.
// Retries are unbounded; the server's own backoff schedule is the only cap.
// Any non-throttle failure propagates immediately as terminal for this unit
// of work.
func Do[T any](ctx context.Context, gate *pace.Gate, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	for {
		if err := gate.Wait(ctx); err != nil {
			return zero, err
		}
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		wait, ok := RetryAfter(err)
		if !ok {
			return zero, err
		}
		if err := Sleep(ctx, op, wait); err != nil {
			return zero, err
		}
	}
}
