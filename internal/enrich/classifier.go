package enrich

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/anchorwatch/backend/internal/stats"
	"github.com/anchorwatch/backend/internal/storage/models"
	"github.com/anchorwatch/backend/internal/storage/sqlite"
	"github.com/anchorwatch/backend/pkg/logger"
)

type Config struct {
	BatchSize         int
	Tier1Threshold    float64
	FallbackThreshold float64
}

// Store is the persistence surface the classifier needs. The frontier is
// links with an undecided highlight flag, so links created for a document
// after its first enrichment pass still get evaluated.
type Store interface {
	UnresolvedLinks(ctx context.Context, limit int) ([]models.LinkCandidate, error)
	EmptyEnrichFrontier(ctx context.Context, limit int) ([]int64, error)
	CommitEnrichBatch(ctx context.Context, updates []sqlite.LinkHighlight, docIDs []int64, now time.Time) error
}

// SnapshotProvider hands out the current threshold statistics snapshot.
type SnapshotProvider interface {
	Current() *stats.Snapshot
}

// Classifier applies the tiered threshold policy to unresolved links and
// maintains each document's org-level highlight aggregate.
type Classifier struct {
	store Store
	stats SnapshotProvider
	cfg   Config
}

type Result struct {
	LinksResolved     int
	AnchorHighlights  int
	DocumentsEnriched int
}

func New(store Store, statsProvider SnapshotProvider, cfg Config) *Classifier {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Classifier{store: store, stats: statsProvider, cfg: cfg}
}

// Run drains the unresolved-link frontier, then stamps documents that were
// matched with zero surviving links. Absence of match is a valid terminal
// state, not an error.
func (c *Classifier) Run(ctx context.Context) (Result, error) {
	var result Result
	snapshot := c.stats.Current()

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		candidates, err := c.store.UnresolvedLinks(ctx, c.cfg.BatchSize)
		if err != nil {
			return result, fmt.Errorf("failed to load unresolved links: %w", err)
		}
		if len(candidates) == 0 {
			break
		}

		updates := make([]sqlite.LinkHighlight, 0, len(candidates))
		docSet := make(map[int64]bool)
		for _, cand := range candidates {
			highlight := c.decide(cand, snapshot)
			updates = append(updates, sqlite.LinkHighlight{LinkID: cand.LinkID, Highlight: highlight})
			docSet[cand.DocumentID] = true
			if highlight {
				result.AnchorHighlights++
			}
		}

		docIDs := make([]int64, 0, len(docSet))
		for id := range docSet {
			docIDs = append(docIDs, id)
		}

		if err := c.store.CommitEnrichBatch(ctx, updates, docIDs, time.Now()); err != nil {
			return result, fmt.Errorf("failed to commit enrich batch: %w", err)
		}

		result.LinksResolved += len(updates)
		result.DocumentsEnriched += len(docIDs)

		logger.Info("Enrich batch committed",
			zap.Int("links", len(updates)),
			zap.Int("documents", len(docIDs)),
		)
	}

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		docIDs, err := c.store.EmptyEnrichFrontier(ctx, c.cfg.BatchSize)
		if err != nil {
			return result, fmt.Errorf("failed to load empty enrich frontier: %w", err)
		}
		if len(docIDs) == 0 {
			break
		}

		if err := c.store.CommitEnrichBatch(ctx, nil, docIDs, time.Now()); err != nil {
			return result, fmt.Errorf("failed to stamp linkless documents: %w", err)
		}
		result.DocumentsEnriched += len(docIDs)

		logger.Info("Linkless documents stamped enriched", zap.Int("documents", len(docIDs)))
	}

	logger.Info("Classifier run finished",
		zap.Int("links_resolved", result.LinksResolved),
		zap.Int("anchor_highlights", result.AnchorHighlights),
		zap.Int("documents_enriched", result.DocumentsEnriched),
	)

	return result, nil
}

// decide applies the tier policy. The comparison is inclusive: a score equal
// to its threshold is a highlight.
func (c *Classifier) decide(cand models.LinkCandidate, snapshot *stats.Snapshot) bool {
	tier := models.TierForCategory(cand.SourceCategory)
	return cand.Score >= c.threshold(cand.AnchorID, tier, snapshot)
}

func (c *Classifier) threshold(anchorID int64, tier models.Tier, snapshot *stats.Snapshot) float64 {
	switch tier {
	case models.TierFixed:
		return c.cfg.Tier1Threshold
	case models.TierMean:
		if ts, ok := snapshot.Stats(anchorID, tier); ok {
			return ts.Mean
		}
	case models.TierStrict:
		if ts, ok := snapshot.Stats(anchorID, tier); ok {
			return ts.Mean + ts.StdDev
		}
	}
	return c.cfg.FallbackThreshold
}
