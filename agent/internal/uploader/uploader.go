package uploader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/obsidianstack/scalarship/agent/internal/builder"
	"github.com/obsidianstack/scalarship/agent/internal/clock"
	"github.com/obsidianstack/scalarship/agent/internal/ratelimit"
	"github.com/obsidianstack/scalarship/agent/internal/shipper"
	"github.com/obsidianstack/scalarship/pkg/types"
	"github.com/obsidianstack/scalarship/pkg/wire"
)

var tracer = otel.Tracer("github.com/obsidianstack/scalarship/agent/internal/uploader")

const (
	defaultPollInterval = 5 * time.Second
	defaultWriteRate    = 1.0
)

// Writer sends one batch. shipper.Client satisfies it.
type Writer interface {
	WriteScalar(ctx context.Context, batch *wire.Batch) error
}

// Source returns the records that have not been uploaded yet, grouped by
// run. Each call consumes what it returns.
type Source interface {
	Pending(ctx context.Context) ([]types.RunRecords, error)
}

// Deleter deletes an experiment. shipper.Client satisfies it.
type Deleter interface {
	DeleteExperiment(ctx context.Context, id string) error
}

// Stats is a snapshot of the upload counters.
type Stats struct {
	Cycles         int64
	BatchesSent    int64
	PointsSent     int64
	BytesSent      int64
	BatchesSkipped int64
}

// Uploader owns the builder session and both limiters for one experiment.
// UploadOnce and Run must not be called concurrently; SetPollInterval and
// Stats may be called from any goroutine.
type Uploader struct {
	experimentID string
	writer       Writer
	source       Source
	builder      *builder.Builder

	pollLimiter *ratelimit.Limiter
	rpcLimiter  *ratelimit.Limiter

	// nextPoll holds a poll interval set by SetPollInterval, applied
	// before the next cycle. Zero means unchanged.
	nextPoll atomic.Int64

	cycles, batchesSent, pointsSent, bytesSent, batchesSkipped atomic.Int64
}

// Option configures an Uploader.
type Option func(*options)

type options struct {
	clk          clock.Clock
	pollInterval time.Duration
	writeRate    float64
	builderOpts  []builder.Option
}

// WithClock replaces the clock used by both limiters.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clk = c }
}

// WithPollInterval sets the minimum spacing between cycles started by Run.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// WithWriteRate caps WriteScalar calls per second. Zero disables pacing.
func WithWriteRate(rate float64) Option {
	return func(o *options) { o.writeRate = rate }
}

// WithMaxRequestBytes overrides the per-batch byte budget.
func WithMaxRequestBytes(n int) Option {
	return func(o *options) { o.builderOpts = append(o.builderOpts, builder.WithMaxRequestBytes(n)) }
}

// New returns an Uploader writing experimentID's records from source
// through w.
func New(w Writer, source Source, experimentID string, opts ...Option) *Uploader {
	o := options{
		clk:          clock.Real{},
		pollInterval: defaultPollInterval,
		writeRate:    defaultWriteRate,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Uploader{
		experimentID: experimentID,
		writer:       w,
		source:       source,
		builder:      builder.New(experimentID, o.builderOpts...),
		pollLimiter:  ratelimit.New(o.pollInterval, o.clk),
		rpcLimiter:   ratelimit.PerSecond(o.writeRate, o.clk),
	}
}

// SetPollInterval changes the poll interval from the next cycle on.
func (u *Uploader) SetPollInterval(d time.Duration) {
	if d > 0 {
		u.nextPoll.Store(int64(d))
	}
}

// Stats returns the current counters.
func (u *Uploader) Stats() Stats {
	return Stats{
		Cycles:         u.cycles.Load(),
		BatchesSent:    u.batchesSent.Load(),
		PointsSent:     u.pointsSent.Load(),
		BytesSent:      u.bytesSent.Load(),
		BatchesSkipped: u.batchesSkipped.Load(),
	}
}

// UploadOnce runs one cycle: every pending record is built into batches and
// sent, one rate-limited WriteScalar per batch.
//
// Batches whose retries ran out are skipped and returned together as a
// joined error matching ErrBatchSkipped once every other batch was sent.
// Any other failure stops the cycle at once.
func (u *Uploader) UploadOnce(ctx context.Context) (err error) {
	u.cycles.Add(1)

	ctx, span := tracer.Start(ctx, "UploadOnce",
		trace.WithAttributes(attribute.String("experiment_id", u.experimentID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		}
		span.End()
	}()

	runs, err := u.source.Pending(ctx)
	if err != nil {
		return fmt.Errorf("uploader: read pending records: %w", err)
	}
	if len(runs) == 0 {
		return nil
	}
	span.SetAttributes(attribute.Int("records", types.Count(runs)))

	var skipped []error
	for batch, err := range u.builder.Build(runs) {
		if err != nil {
			return err
		}
		if err := u.rpcLimiter.Tick(ctx); err != nil {
			return err
		}
		if err := u.send(ctx, batch); err != nil {
			var be *BatchError
			if errors.As(err, &be) && be.Skipped {
				skipped = append(skipped, err)
				continue
			}
			return err
		}
	}
	return errors.Join(skipped...)
}

func (u *Uploader) send(ctx context.Context, batch *wire.Batch) error {
	points, size := batch.PointCount(), batch.Size()

	err := u.writer.WriteScalar(ctx, batch)
	if err == nil {
		u.batchesSent.Add(1)
		u.pointsSent.Add(int64(points))
		u.bytesSent.Add(int64(size))
		slog.Debug("uploader: batch sent", "points", points, "bytes", size)
		return nil
	}

	// The in-flight error is kept alongside ctx's so callers can still see
	// the abandoned call.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("uploader: batch abandoned: %w", errors.Join(ctxErr, err))
	}

	if status.Code(err) == codes.NotFound {
		slog.Error("uploader: experiment not found, aborting cycle",
			"experiment_id", u.experimentID, "err", err)
		return fmt.Errorf("uploader: experiment %q: %w", u.experimentID, ErrExperimentNotFound)
	}

	be := &BatchError{Points: points, Bytes: size, Err: err}
	if shipper.Classify(err) == shipper.ClassTransient {
		be.Skipped = true
		u.batchesSkipped.Add(1)
		slog.Warn("uploader: batch skipped after retries",
			"points", points, "bytes", size, "err", err)
		return be
	}

	slog.Error("uploader: batch rejected, aborting cycle",
		"points", points, "bytes", size, "err", err)
	return be
}

// Run repeats UploadOnce no more often than the poll interval. Skipped
// batches are logged and the loop continues; any other error ends Run.
// Run returns nil once ctx is cancelled.
func (u *Uploader) Run(ctx context.Context) error {
	slog.Info("uploader: starting",
		"experiment_id", u.experimentID,
		"poll_interval", u.pollLimiter.Interval(),
		"max_request_bytes", u.builder.MaxRequestBytes())

	for {
		if d := u.nextPoll.Swap(0); d > 0 {
			u.pollLimiter.SetInterval(time.Duration(d))
			slog.Info("uploader: poll interval changed", "poll_interval", time.Duration(d))
		}
		if err := u.pollLimiter.Tick(ctx); err != nil {
			return nil
		}

		err := u.UploadOnce(ctx)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			var re *shipper.RemoteError
			if errors.As(err, &re) {
				slog.Info("uploader: stopped with a batch in flight",
					"method", re.Method, "attempts", re.Attempts, "abandoned", re.Abandoned)
			}
			return nil
		case errors.Is(err, ErrBatchSkipped):
			slog.Warn("uploader: cycle finished with skipped batches", "err", err)
		default:
			return err
		}
	}
}

// DeleteExperiment deletes experiment id through d, translating NotFound
// and PermissionDenied into ErrExperimentNotFound and ErrPermissionDenied.
func DeleteExperiment(ctx context.Context, d Deleter, id string) error {
	err := d.DeleteExperiment(ctx, id)
	switch status.Code(err) {
	case codes.OK:
		return nil
	case codes.NotFound:
		return fmt.Errorf("uploader: delete experiment %q: %w", id, ErrExperimentNotFound)
	case codes.PermissionDenied:
		return fmt.Errorf("uploader: delete experiment %q: %w", id, ErrPermissionDenied)
	}
	return fmt.Errorf("uploader: delete experiment %q: %w", id, err)
}
