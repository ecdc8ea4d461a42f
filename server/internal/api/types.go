package api

import "time"

// HealthResponse is the JSON body for GET /api/v1/health.
type HealthResponse struct {
	Status          string `json:"status"`
	ExperimentCount int    `json:"experiment_count"`
	GeneratedAt     string `json:"generated_at"`
}

// ExperimentResponse summarises one experiment in GET /api/v1/experiments.
type ExperimentResponse struct {
	ID          string `json:"id"`
	SeriesCount int    `json:"series_count"`
	PointCount  int    `json:"point_count"`
	UpdatedAt   string `json:"updated_at"`
}

// SeriesResponse is one (run, tag) series of an experiment.
type SeriesResponse struct {
	Run  string `json:"run"`
	Tag  string `json:"tag"`
	Kind string `json:"kind,omitempty"`
	Help string `json:"help,omitempty"`
	// Metadata is the raw plugin metadata, present only when it is not a
	// Prometheus metric family.
	Metadata []byte          `json:"metadata,omitempty"`
	Points   []PointResponse `json:"points"`
}

// PointResponse is one scalar sample.
type PointResponse struct {
	Step     int64     `json:"step"`
	WallTime time.Time `json:"wall_time"`
	Value    float64   `json:"value"`
}

// ExperimentDetailResponse is the JSON body for GET /api/v1/experiments/{id}.
type ExperimentDetailResponse struct {
	ID     string           `json:"id"`
	Series []SeriesResponse `json:"series"`
}

type errorResponse struct {
	Error string `json:"error"`
}
