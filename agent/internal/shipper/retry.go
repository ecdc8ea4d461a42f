package shipper

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/obsidianstack/scalarship/agent/internal/clock"
	"github.com/obsidianstack/scalarship/pkg/types"
)

const (
	defaultMaxAttempts = 5
	backoffBase        = 2 * time.Second
	backoffMultiplier  = 2.0
)

// Retrier runs a call with classification-driven retries.
// It holds no per-call state and is safe for concurrent use if its clock
// and jitter source are.
type Retrier struct {
	maxAttempts int
	base        time.Duration
	clk         clock.Clock
	jitter      func() float64 // [0, 1)
}

// RetryOption configures a Retrier.
type RetryOption func(*Retrier)

// WithClock replaces the clock used for backoff sleeps.
func WithClock(c clock.Clock) RetryOption {
	return func(r *Retrier) { r.clk = c }
}

// WithJitter replaces the jitter source. fn must return values in [0, 1).
func WithJitter(fn func() float64) RetryOption {
	return func(r *Retrier) { r.jitter = fn }
}

// WithMaxAttempts sets the total number of attempts, including the first.
func WithMaxAttempts(n int) RetryOption {
	return func(r *Retrier) { r.maxAttempts = n }
}

// WithBackoffBase sets the lower bound of the first backoff window.
func WithBackoffBase(d time.Duration) RetryOption {
	return func(r *Retrier) { r.base = d }
}

// NewRetrier returns a Retrier with 5 attempts and a 2s base backoff.
func NewRetrier(opts ...RetryOption) *Retrier {
	r := &Retrier{
		maxAttempts: defaultMaxAttempts,
		base:        backoffBase,
		clk:         clock.Real{},
		jitter:      rand.Float64,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.maxAttempts < 1 {
		r.maxAttempts = 1
	}
	return r
}

// Do calls fn until it succeeds, fails with a non-transient error, or
// maxAttempts is reached. The ctx passed to fn carries the client version
// metadata. Failures are returned as *RemoteError.
func (r *Retrier) Do(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	ctx = withVersion(ctx)
	bo := newBackoff(r.base, r.jitter)

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		rerr := &RemoteError{
			Method:   method,
			Class:    Classify(err),
			Code:     status.Code(err),
			Attempts: attempt,
			Err:      err,
		}
		if ctx.Err() != nil {
			rerr.Class = ClassTransient
			rerr.Abandoned = true
			return rerr
		}
		if rerr.Class != ClassTransient || attempt >= r.maxAttempts {
			return rerr
		}

		wait := bo.next()
		slog.Warn("shipper: transient error, will retry",
			"method", method,
			"attempt", attempt,
			"code", rerr.Code.String(),
			"err", err,
			"retry_in", wait)
		if err := r.clk.Sleep(ctx, wait); err != nil {
			rerr.Abandoned = true
			return rerr
		}
	}
}

// withVersion attaches the client version to the outgoing metadata.
func withVersion(ctx context.Context) context.Context {
	return metadata.AppendToOutgoingContext(ctx, types.VersionMetadataKey, types.Version)
}

// backoff produces doubling windows with jitter: the n-th wait falls in
// [base*2^(n-1), base*2^n).
type backoff struct {
	current time.Duration
	jitter  func() float64
}

func newBackoff(base time.Duration, jitter func() float64) *backoff {
	return &backoff{current: base, jitter: jitter}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := time.Duration(float64(b.current) * (1 + b.jitter()))
	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	return d
}
