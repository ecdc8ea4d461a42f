package store

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/obsidianstack/scalarship/pkg/wire"
)

var (
	// ErrNotFound is returned for an experiment that does not exist.
	ErrNotFound = errors.New("store: experiment not found")
	// ErrDeleted is returned when writing to a deleted experiment.
	ErrDeleted = errors.New("store: experiment deleted")
)

// Point is one stored scalar sample.
type Point struct {
	Step     int64     `json:"step"`
	WallTime time.Time `json:"wall_time"`
	Value    float64   `json:"value"`
}

// Series is the data for one (run, tag) pair.
type Series struct {
	Run      string
	Tag      string
	Metadata []byte // first non-empty metadata received
	Points   []Point
}

// ExperimentInfo summarises one experiment.
type ExperimentInfo struct {
	ID        string
	Series    int
	Points    int
	UpdatedAt time.Time
}

type seriesKey struct{ run, tag string }

type experiment struct {
	series    map[seriesKey]*Series
	order     []seriesKey
	points    int
	updatedAt time.Time
}

// Store is a thread-safe in-memory scalar store, keyed by experiment ID.
type Store struct {
	mu          sync.RWMutex
	experiments map[string]*experiment
	deleted     map[string]time.Time
	ttl         time.Duration
	now         func() time.Time // injectable for deterministic tests
}

// New creates a Store. A zero ttl keeps experiments until deleted.
func New(ttl time.Duration) *Store {
	return &Store{
		experiments: make(map[string]*experiment),
		deleted:     make(map[string]time.Time),
		ttl:         ttl,
		now:         time.Now,
	}
}

// TTL returns the idle time after which an experiment is evicted.
func (s *Store) TTL() time.Duration { return s.ttl }

// Write appends every point in b to its experiment and returns the number
// of points stored. Callers must not modify b after calling Write.
func (s *Store) Write(b *wire.Batch) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, gone := s.deleted[b.ExperimentID]; gone {
		return 0, ErrDeleted
	}
	exp, ok := s.experiments[b.ExperimentID]
	if !ok {
		exp = &experiment{series: make(map[seriesKey]*Series)}
		s.experiments[b.ExperimentID] = exp
	}

	n := 0
	for _, run := range b.Runs {
		for _, tag := range run.Tags {
			key := seriesKey{run.Name, tag.Name}
			ser, ok := exp.series[key]
			if !ok {
				ser = &Series{Run: run.Name, Tag: tag.Name}
				exp.series[key] = ser
				exp.order = append(exp.order, key)
			}
			if len(ser.Metadata) == 0 && len(tag.Metadata) > 0 {
				ser.Metadata = tag.Metadata
			}
			for _, p := range tag.Points {
				ser.Points = append(ser.Points, Point{
					Step:     p.Step,
					WallTime: time.Unix(0, p.WallTime.UnixNano()).UTC(),
					Value:    p.Value,
				})
				n++
			}
		}
	}
	exp.points += n
	exp.updatedAt = s.now()
	return n, nil
}

// Delete removes an experiment and refuses further writes to it.
// Deleting an unknown or already deleted experiment returns ErrNotFound.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.experiments[id]; !ok {
		return ErrNotFound
	}
	delete(s.experiments, id)
	s.deleted[id] = s.now()
	return nil
}

// Experiments lists live experiments sorted by ID.
func (s *Store) Experiments() []ExperimentInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ExperimentInfo, 0, len(s.experiments))
	for id, e := range s.experiments {
		out = append(out, ExperimentInfo{ID: id, Series: len(e.series), Points: e.points, UpdatedAt: e.updatedAt})
	}
	slices.SortFunc(out, func(a, b ExperimentInfo) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// Series returns copies of an experiment's series in first-write order.
func (s *Store) Series(id string) ([]Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.experiments[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Series, 0, len(e.order))
	for _, key := range e.order {
		ser := e.series[key]
		out = append(out, Series{
			Run:      ser.Run,
			Tag:      ser.Tag,
			Metadata: ser.Metadata,
			Points:   slices.Clone(ser.Points),
		})
	}
	return out, nil
}

// Count returns the number of live experiments.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.experiments)
}

// Evict removes experiments whose last write is older than now minus TTL.
// It returns the number removed. Evicted experiments are not tombstoned.
func (s *Store) Evict(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, e := range s.experiments {
		if !e.updatedAt.After(cutoff) {
			delete(s.experiments, id)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL interval
// (minimum 1 second) so entries are evicted promptly. Run blocks until ctx is
// cancelled and returns at once when the TTL is zero.
func (s *Store) Run(ctx context.Context) {
	if s.ttl <= 0 {
		return
	}
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted idle experiments", "count", n)
			}
		}
	}
}
