package stats

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anchorwatch/backend/internal/storage/models"
	"github.com/anchorwatch/backend/internal/storage/sqlite"
	"github.com/anchorwatch/backend/pkg/logger"
)

type Config struct {
	WindowDays int
	MinSamples int
}

// Store supplies the historical link scores the service aggregates.
type Store interface {
	ScoreSamples(ctx context.Context, since time.Time) ([]sqlite.ScoreSample, error)
}

// TierStats is the rolling aggregate for one (anchor, tier) combination.
type TierStats struct {
	Mean    float64
	StdDev  float64
	Samples int
}

type key struct {
	anchorID int64
	tier     models.Tier
}

// Snapshot is an immutable view of the statistics at refresh time. The
// classifier reads whichever snapshot was current when its run started.
type Snapshot struct {
	computedAt time.Time
	byKey      map[key]TierStats
	minSamples int
}

// Stats returns the aggregate for an (anchor, tier) pair, or false when the
// pair has fewer than the minimum sample count. Callers fall back to a
// configured default threshold in that case, never to an undefined statistic.
func (s *Snapshot) Stats(anchorID int64, tier models.Tier) (TierStats, bool) {
	if s == nil {
		return TierStats{}, false
	}
	ts, ok := s.byKey[key{anchorID: anchorID, tier: tier}]
	if !ok || ts.Samples < s.minSamples {
		return TierStats{}, false
	}
	return ts, true
}

// TotalSamples is the number of scores inside the window at refresh time.
func (s *Snapshot) TotalSamples() int {
	if s == nil {
		return 0
	}
	total := 0
	for _, ts := range s.byKey {
		total += ts.Samples
	}
	return total
}

func (s *Snapshot) ComputedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.computedAt
}

// Service maintains rolling per-anchor, per-tier score statistics over a
// bounded trailing window. Refresh cadence is independent of the matcher and
// classifier; they consume the latest snapshot.
type Service struct {
	store Store
	cfg   Config

	mu       sync.RWMutex
	snapshot *Snapshot
}

func NewService(store Store, cfg Config) *Service {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 30
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 10
	}
	return &Service{store: store, cfg: cfg}
}

// Refresh rebuilds the snapshot from link scores inside the trailing window.
func (s *Service) Refresh(ctx context.Context) (*Snapshot, error) {
	since := time.Now().AddDate(0, 0, -s.cfg.WindowDays)
	samples, err := s.store.ScoreSamples(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load score samples: %w", err)
	}

	grouped := make(map[key][]float64)
	for _, sample := range samples {
		k := key{anchorID: sample.AnchorID, tier: models.TierForCategory(sample.Category)}
		grouped[k] = append(grouped[k], sample.Score)
	}

	byKey := make(map[key]TierStats, len(grouped))
	for k, scores := range grouped {
		mean, stddev := meanStdDev(scores)
		byKey[k] = TierStats{Mean: mean, StdDev: stddev, Samples: len(scores)}
	}

	snap := &Snapshot{
		computedAt: time.Now(),
		byKey:      byKey,
		minSamples: s.cfg.MinSamples,
	}

	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()

	logger.Info("Threshold statistics refreshed",
		zap.Int("samples", len(samples)),
		zap.Int("groups", len(byKey)),
		zap.Int("window_days", s.cfg.WindowDays),
	)

	return snap, nil
}

// Current returns the latest snapshot, which may be nil before the first
// refresh.
func (s *Service) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// meanStdDev returns the arithmetic mean and population standard deviation.
// A single sample yields a stddev of zero, matching the source data where a
// lone score defines its own baseline.
func meanStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sqDiff float64
	for _, v := range values {
		d := v - mean
		sqDiff += d * d
	}
	return mean, math.Sqrt(sqDiff / float64(len(values)))
}
