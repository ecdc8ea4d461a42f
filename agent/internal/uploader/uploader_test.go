package uploader

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/obsidianstack/scalarship/agent/internal/builder"
	"github.com/obsidianstack/scalarship/agent/internal/clock"
	"github.com/obsidianstack/scalarship/agent/internal/shipper"
	"github.com/obsidianstack/scalarship/pkg/types"
	"github.com/obsidianstack/scalarship/pkg/wire"
)

// fakeWriter returns errs[i] for the i-th call, then nil.
type fakeWriter struct {
	mu      sync.Mutex
	errs    []error
	batches []*wire.Batch
	onCall  func(n int)
}

func (w *fakeWriter) WriteScalar(_ context.Context, b *wire.Batch) error {
	w.mu.Lock()
	n := len(w.batches)
	w.batches = append(w.batches, b)
	var err error
	if n < len(w.errs) {
		err = w.errs[n]
	}
	hook := w.onCall
	w.mu.Unlock()
	if hook != nil {
		hook(n + 1)
	}
	return err
}

func (w *fakeWriter) calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.batches)
}

// fakeSource hands out each queued slice once, then nothing.
type fakeSource struct {
	mu    sync.Mutex
	queue [][]types.RunRecords
	err   error
}

func (s *fakeSource) Pending(context.Context) ([]types.RunRecords, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if len(s.queue) == 0 {
		return nil, nil
	}
	out := s.queue[0]
	s.queue = s.queue[1:]
	return out, nil
}

func scalar(tag string, step int64) types.Record {
	return types.Record{
		Tag:      tag,
		Step:     step,
		WallTime: float64(step),
		Value:    float64(step) / 10,
		Metadata: []byte("scalars"),
		Kind:     types.KindScalar,
	}
}

// bigRuns returns n runs whose single record is too large to share a
// 1024-byte batch with another, so they pack one run per batch.
func bigRuns(n int) []types.RunRecords {
	runs := make([]types.RunRecords, n)
	for i := range runs {
		runs[i] = types.RunRecords{
			Name:    strings.Repeat(string(rune('a'+i)), 8),
			Records: []types.Record{scalar(strings.Repeat("t", 600), 1)},
		}
	}
	return runs
}

func transientExhausted() error {
	return &shipper.RemoteError{
		Method:   "WriteScalar",
		Class:    shipper.ClassTransient,
		Code:     codes.Unavailable,
		Attempts: 5,
		Err:      status.Error(codes.Unavailable, "down"),
	}
}

func permanent(code codes.Code) error {
	return &shipper.RemoteError{
		Method:   "WriteScalar",
		Class:    shipper.ClassifyCode(code),
		Code:     code,
		Attempts: 1,
		Err:      status.Error(code, "nope"),
	}
}

func newTestUploader(w Writer, src Source, clk clock.Clock, opts ...Option) *Uploader {
	opts = append([]Option{WithClock(clk), WithMaxRequestBytes(1024)}, opts...)
	return New(w, src, "exp-1", opts...)
}

func TestUploadOnce_SendsEverything(t *testing.T) {
	w := &fakeWriter{}
	src := &fakeSource{queue: [][]types.RunRecords{bigRuns(3)}}
	u := newTestUploader(w, src, clock.NewFake(time.Unix(0, 0)))

	if err := u.UploadOnce(context.Background()); err != nil {
		t.Fatalf("UploadOnce: %v", err)
	}
	if w.calls() != 3 {
		t.Fatalf("calls = %d, want 3", w.calls())
	}
	for i, b := range w.batches {
		if b.ExperimentID != "exp-1" {
			t.Errorf("batch %d experiment = %q", i, b.ExperimentID)
		}
		if b.Size() > 1024 {
			t.Errorf("batch %d size %d exceeds budget", i, b.Size())
		}
	}

	st := u.Stats()
	if st.BatchesSent != 3 || st.PointsSent != 3 || st.BatchesSkipped != 0 || st.BytesSent == 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestUploadOnce_NothingPending(t *testing.T) {
	w := &fakeWriter{}
	u := newTestUploader(w, &fakeSource{}, clock.NewFake(time.Unix(0, 0)))
	if err := u.UploadOnce(context.Background()); err != nil {
		t.Fatalf("UploadOnce: %v", err)
	}
	if w.calls() != 0 {
		t.Errorf("calls = %d, want 0", w.calls())
	}
}

func TestUploadOnce_PacesWrites(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	w := &fakeWriter{}
	src := &fakeSource{queue: [][]types.RunRecords{bigRuns(3)}}
	u := newTestUploader(w, src, clk, WithWriteRate(1))

	if err := u.UploadOnce(context.Background()); err != nil {
		t.Fatalf("UploadOnce: %v", err)
	}
	sleeps := clk.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != time.Second || sleeps[1] != time.Second {
		t.Errorf("sleeps = %v, want [1s 1s]", sleeps)
	}
}

func TestUploadOnce_NotFoundAborts(t *testing.T) {
	w := &fakeWriter{errs: []error{permanent(codes.NotFound)}}
	src := &fakeSource{queue: [][]types.RunRecords{bigRuns(3)}}
	u := newTestUploader(w, src, clock.NewFake(time.Unix(0, 0)))

	err := u.UploadOnce(context.Background())
	if !errors.Is(err, ErrExperimentNotFound) {
		t.Fatalf("want ErrExperimentNotFound, got %v", err)
	}
	if w.calls() != 1 {
		t.Errorf("calls = %d, want 1", w.calls())
	}
}

func TestUploadOnce_PermanentAborts(t *testing.T) {
	w := &fakeWriter{errs: []error{permanent(codes.PermissionDenied)}}
	src := &fakeSource{queue: [][]types.RunRecords{bigRuns(3)}}
	u := newTestUploader(w, src, clock.NewFake(time.Unix(0, 0)))

	err := u.UploadOnce(context.Background())
	var be *BatchError
	if !errors.As(err, &be) {
		t.Fatalf("want *BatchError, got %T: %v", err, err)
	}
	if be.Skipped || errors.Is(err, ErrBatchSkipped) {
		t.Error("permanent failure must not be reported as skipped")
	}
	if !errors.Is(err, ErrPermissionDenied) {
		t.Error("want errors.Is(err, ErrPermissionDenied)")
	}
	if be.Points != 1 {
		t.Errorf("Points = %d, want 1", be.Points)
	}
	if w.calls() != 1 {
		t.Errorf("calls = %d, want 1", w.calls())
	}
}

func TestUploadOnce_UnknownAborts(t *testing.T) {
	w := &fakeWriter{errs: []error{errors.New("boom")}}
	src := &fakeSource{queue: [][]types.RunRecords{bigRuns(2)}}
	u := newTestUploader(w, src, clock.NewFake(time.Unix(0, 0)))

	err := u.UploadOnce(context.Background())
	var be *BatchError
	if !errors.As(err, &be) || be.Skipped {
		t.Fatalf("want rejected *BatchError, got %v", err)
	}
	if w.calls() != 1 {
		t.Errorf("calls = %d, want 1", w.calls())
	}
}

func TestUploadOnce_SkipsExhaustedBatchAndContinues(t *testing.T) {
	w := &fakeWriter{errs: []error{transientExhausted(), nil, transientExhausted()}}
	src := &fakeSource{queue: [][]types.RunRecords{bigRuns(3)}}
	u := newTestUploader(w, src, clock.NewFake(time.Unix(0, 0)))

	err := u.UploadOnce(context.Background())
	if !errors.Is(err, ErrBatchSkipped) {
		t.Fatalf("want ErrBatchSkipped, got %v", err)
	}
	if w.calls() != 3 {
		t.Errorf("calls = %d, want 3", w.calls())
	}

	joined, ok := err.(interface{ Unwrap() []error })
	if !ok || len(joined.Unwrap()) != 2 {
		t.Errorf("want 2 joined batch errors, got %v", err)
	}

	st := u.Stats()
	if st.BatchesSent != 1 || st.BatchesSkipped != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestUploadOnce_FatalBuilderError(t *testing.T) {
	w := &fakeWriter{}
	src := &fakeSource{queue: [][]types.RunRecords{bigRuns(1)}}
	u := New(w, src, strings.Repeat("x", 64), WithClock(clock.NewFake(time.Unix(0, 0))), WithMaxRequestBytes(32))

	err := u.UploadOnce(context.Background())
	if !errors.Is(err, builder.ErrBudgetTooSmall) {
		t.Fatalf("want ErrBudgetTooSmall, got %v", err)
	}
	if w.calls() != 0 {
		t.Errorf("calls = %d, want 0", w.calls())
	}
}

func TestUploadOnce_SourceError(t *testing.T) {
	u := newTestUploader(&fakeWriter{}, &fakeSource{err: errors.New("disk gone")}, clock.NewFake(time.Unix(0, 0)))
	if err := u.UploadOnce(context.Background()); err == nil || !strings.Contains(err.Error(), "disk gone") {
		t.Fatalf("want source error, got %v", err)
	}
}

func TestUploadOnce_CancelledDuringSend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	abandoned := &shipper.RemoteError{
		Method: "WriteScalar", Class: shipper.ClassTransient, Code: codes.Unavailable,
		Attempts: 2, Abandoned: true, Err: status.Error(codes.Unavailable, "down"),
	}
	w := &fakeWriter{errs: []error{abandoned}, onCall: func(int) { cancel() }}
	src := &fakeSource{queue: [][]types.RunRecords{bigRuns(2)}}
	u := newTestUploader(w, src, clock.NewFake(time.Unix(0, 0)))

	err := u.UploadOnce(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	var re *shipper.RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("in-flight RemoteError lost: %v", err)
	}
	if !re.Abandoned || re.Class != shipper.ClassTransient {
		t.Errorf("RemoteError = %+v, want abandoned transient", re)
	}
	if errors.Is(err, ErrBatchSkipped) {
		t.Error("abandoned batch must not match ErrBatchSkipped")
	}
	if w.calls() != 1 {
		t.Errorf("calls = %d, want 1", w.calls())
	}
	if u.Stats().BatchesSkipped != 0 {
		t.Error("abandoned batch must not count as skipped")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := &fakeWriter{onCall: func(n int) {
		if n == 2 {
			cancel()
		}
	}}
	src := &fakeSource{queue: [][]types.RunRecords{bigRuns(1), bigRuns(1), bigRuns(1)}}
	clk := clock.NewFake(time.Unix(0, 0))
	u := newTestUploader(w, src, clk, WithPollInterval(30*time.Second))

	if err := u.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if w.calls() != 2 {
		t.Errorf("calls = %d, want 2", w.calls())
	}
	if st := u.Stats(); st.Cycles != 2 {
		t.Errorf("cycles = %d, want 2", st.Cycles)
	}
	if sleeps := clk.Sleeps(); len(sleeps) != 1 || sleeps[0] != 30*time.Second {
		t.Errorf("sleeps = %v, want [30s]", sleeps)
	}
}

func TestRun_ContinuesAfterSkippedBatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := &fakeWriter{errs: []error{transientExhausted()}, onCall: func(n int) {
		if n == 2 {
			cancel()
		}
	}}
	src := &fakeSource{queue: [][]types.RunRecords{bigRuns(1), bigRuns(1)}}
	u := newTestUploader(w, src, clock.NewFake(time.Unix(0, 0)))

	if err := u.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if w.calls() != 2 {
		t.Errorf("calls = %d, want 2", w.calls())
	}
}

func TestRun_AbandonedBatchOnCancelStopsCleanly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	abandoned := &shipper.RemoteError{
		Method: "WriteScalar", Class: shipper.ClassTransient, Code: codes.Unavailable,
		Attempts: 1, Abandoned: true, Err: status.Error(codes.Unavailable, "down"),
	}
	w := &fakeWriter{errs: []error{abandoned}, onCall: func(int) { cancel() }}
	src := &fakeSource{queue: [][]types.RunRecords{bigRuns(1)}}
	u := newTestUploader(w, src, clock.NewFake(time.Unix(0, 0)))

	if err := u.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if w.calls() != 1 {
		t.Errorf("calls = %d, want 1", w.calls())
	}
}

func TestRun_EndsOnNotFound(t *testing.T) {
	w := &fakeWriter{errs: []error{permanent(codes.NotFound)}}
	src := &fakeSource{queue: [][]types.RunRecords{bigRuns(1)}}
	u := newTestUploader(w, src, clock.NewFake(time.Unix(0, 0)))

	if err := u.Run(context.Background()); !errors.Is(err, ErrExperimentNotFound) {
		t.Fatalf("want ErrExperimentNotFound, got %v", err)
	}
}

func TestRun_AppliesPollIntervalChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.NewFake(time.Unix(0, 0))
	var u *Uploader
	w := &fakeWriter{onCall: func(n int) {
		switch n {
		case 1:
			u.SetPollInterval(time.Minute)
		case 2:
			cancel()
		}
	}}
	src := &fakeSource{queue: [][]types.RunRecords{bigRuns(1), bigRuns(1)}}
	u = newTestUploader(w, src, clk, WithPollInterval(time.Second))

	if err := u.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sleeps := clk.Sleeps(); len(sleeps) != 1 || sleeps[0] != time.Minute {
		t.Errorf("sleeps = %v, want [1m]", sleeps)
	}
}

type fakeDeleter struct{ err error }

func (d fakeDeleter) DeleteExperiment(context.Context, string) error { return d.err }

func TestDeleteExperiment(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"ok", nil, nil},
		{"not found", permanent(codes.NotFound), ErrExperimentNotFound},
		{"permission denied", permanent(codes.PermissionDenied), ErrPermissionDenied},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := DeleteExperiment(context.Background(), fakeDeleter{tc.err}, "exp-1")
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("want %v, got %v", tc.want, err)
			}
		})
	}

	err := DeleteExperiment(context.Background(), fakeDeleter{permanent(codes.Internal)}, "exp-1")
	if err == nil || errors.Is(err, ErrExperimentNotFound) || errors.Is(err, ErrPermissionDenied) {
		t.Errorf("internal error mapped wrongly: %v", err)
	}
}
