package receiver

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/obsidianstack/scalarship/pkg/wire"
	"github.com/obsidianstack/scalarship/server/internal/store"
)

// Receiver implements wire.WriterServer on top of a store.Store.
type Receiver struct {
	store *store.Store
}

var _ wire.WriterServer = (*Receiver)(nil)

// New creates a Receiver that writes accepted batches to st.
func New(st *store.Store) *Receiver {
	return &Receiver{store: st}
}

// WriteScalar stores every point of the batch.
func (r *Receiver) WriteScalar(ctx context.Context, b *wire.Batch) (*wire.WriteScalarResponse, error) {
	if b.ExperimentID == "" {
		return nil, status.Error(codes.InvalidArgument, "experiment_id is required")
	}

	n, err := r.store.Write(b)
	if errors.Is(err, store.ErrDeleted) {
		return nil, status.Errorf(codes.NotFound, "experiment %q has been deleted", b.ExperimentID)
	}
	if err != nil {
		return nil, status.Errorf(codes.Internal, "store batch: %v", err)
	}

	slog.Debug("receiver: batch stored",
		"experiment_id", b.ExperimentID,
		"runs", len(b.Runs),
		"points", n,
	)
	return &wire.WriteScalarResponse{}, nil
}

// DeleteExperiment removes the experiment and refuses later writes to it.
func (r *Receiver) DeleteExperiment(ctx context.Context, req *wire.DeleteExperimentRequest) (*wire.DeleteExperimentResponse, error) {
	if req.ExperimentID == "" {
		return nil, status.Error(codes.InvalidArgument, "experiment_id is required")
	}
	if err := r.store.Delete(req.ExperimentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, status.Errorf(codes.NotFound, "experiment %q not found", req.ExperimentID)
		}
		return nil, status.Errorf(codes.Internal, "delete experiment: %v", err)
	}
	slog.Info("receiver: experiment deleted", "experiment_id", req.ExperimentID)
	return &wire.DeleteExperimentResponse{}, nil
}
