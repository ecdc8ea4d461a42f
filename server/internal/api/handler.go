package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/proto"

	"github.com/obsidianstack/scalarship/server/internal/store"
)

// Handler is the HTTP handler for all /api/v1/* endpoints.
// It reads experiment state from the scalar store and returns JSON responses.
type Handler struct {
	store *store.Store
	mux   *http.ServeMux
}

// New creates a Handler wired to the given store and registers all routes.
func New(st *store.Store) http.Handler {
	h := &Handler{store: st, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/experiments", h.listExperiments)
	h.mux.HandleFunc("/api/v1/experiments/", h.getExperiment) // subtree, extracts {id}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:          "ok",
		ExperimentCount: h.store.Count(),
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
	})
}

// listExperiments returns GET /api/v1/experiments, sorted by ID.
func (h *Handler) listExperiments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	infos := h.store.Experiments()
	out := make([]ExperimentResponse, 0, len(infos))
	for _, e := range infos {
		out = append(out, ExperimentResponse{
			ID:          e.ID,
			SeriesCount: e.Series,
			PointCount:  e.Points,
			UpdatedAt:   e.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	jsonResp(w, http.StatusOK, out)
}

// getExperiment returns GET /api/v1/experiments/{id} with every series.
func (h *Handler) getExperiment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/experiments/")
	if id == "" {
		h.listExperiments(w, r)
		return
	}

	series, err := h.store.Series(id)
	if errors.Is(err, store.ErrNotFound) {
		jsonErr(w, http.StatusNotFound, "experiment not found")
		return
	}
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := ExperimentDetailResponse{ID: id, Series: make([]SeriesResponse, 0, len(series))}
	for _, s := range series {
		out.Series = append(out.Series, toSeriesResponse(s))
	}
	jsonResp(w, http.StatusOK, out)
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// toSeriesResponse maps a stored series to JSON. Metadata written by the
// agent's Prometheus sources is a serialized metric family; its help text
// and type are surfaced directly. Anything else is passed through raw.
func toSeriesResponse(s store.Series) SeriesResponse {
	out := SeriesResponse{
		Run:    s.Run,
		Tag:    s.Tag,
		Points: make([]PointResponse, 0, len(s.Points)),
	}
	for _, p := range s.Points {
		out.Points = append(out.Points, PointResponse{Step: p.Step, WallTime: p.WallTime.UTC(), Value: p.Value})
	}

	if len(s.Metadata) == 0 {
		return out
	}
	var mf dto.MetricFamily
	if err := proto.Unmarshal(s.Metadata, &mf); err != nil || mf.Type == nil {
		out.Metadata = s.Metadata
		return out
	}
	out.Kind = strings.ToLower(mf.GetType().String())
	out.Help = mf.GetHelp()
	return out
}
