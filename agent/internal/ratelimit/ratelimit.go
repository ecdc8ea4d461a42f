// Package ratelimit paces repeated calls with a fixed minimum interval
// between the starts of consecutive Tick calls.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/obsidianstack/scalarship/agent/internal/clock"
)

// Limiter permits one Tick per interval. The first Tick never blocks.
//
// Tokens come from a rate.Limiter with a burst of one, driven by clk's
// time so a fake clock controls it completely.
//
// A Limiter is not safe for concurrent use; callers sharing one must
// synchronise externally.
type Limiter struct {
	interval time.Duration
	clk      clock.Clock
	lim      *rate.Limiter
}

// New returns a Limiter with the given minimum interval. A nil clk uses the
// real clock.
func New(interval time.Duration, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Limiter{
		interval: interval,
		clk:      clk,
		lim:      rate.NewLimiter(every(interval), 1),
	}
}

// PerSecond returns a Limiter allowing at most r ticks per second.
// A non-positive r disables pacing.
func PerSecond(r float64, clk clock.Clock) *Limiter {
	var interval time.Duration
	if r > 0 {
		interval = time.Duration(float64(time.Second) / r)
	}
	return New(interval, clk)
}

// Interval returns the minimum spacing between ticks.
func (l *Limiter) Interval() time.Duration { return l.interval }

// SetInterval changes the spacing for subsequent ticks.
func (l *Limiter) SetInterval(d time.Duration) {
	l.interval = d
	l.lim.SetLimitAt(l.clk.Now(), every(d))
}

// Tick blocks until Interval has passed since the previous Tick returned.
// Spacing is exact for whole-microsecond intervals and never more than a
// microsecond short otherwise. It returns ctx.Err() if ctx is cancelled while waiting; the
// reservation is given back in that case.
func (l *Limiter) Tick(ctx context.Context) error {
	now := l.clk.Now()
	r := l.lim.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	if wait <= 0 {
		return nil
	}
	// rate computes delays in float64 seconds and can land a nanosecond
	// short; round up so the spacing never drops below Interval.
	if rem := wait % time.Microsecond; rem != 0 {
		wait += time.Microsecond - rem
	}
	if err := l.clk.Sleep(ctx, wait); err != nil {
		r.CancelAt(l.clk.Now())
		return err
	}
	return nil
}

// every maps a non-positive interval to an unlimited rate.
func every(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}
