package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/anchorwatch/backend/internal/storage/sqlite"
)

// Stage is a document's position in the pipeline. Stages advance through
// monotonic timestamps that are only ever cleared by an explicit reset.
type Stage int

const (
	StageIngested Stage = iota
	StageIndexed
	StageMatched
	StageEnriched
)

func (s Stage) String() string {
	switch s {
	case StageIngested:
		return "ingested"
	case StageIndexed:
		return "indexed"
	case StageMatched:
		return "matched"
	case StageEnriched:
		return "enriched"
	default:
		return "unknown"
	}
}

// TrackerStore is the persistence surface behind the state tracker.
type TrackerStore interface {
	MarkIndexed(ctx context.Context, docIDs []int64, now time.Time) error
	CountFrontiers(ctx context.Context) (sqlite.FrontierCounts, error)
	ResetDocuments(ctx context.Context, docIDs []int64) error
	ResetAnchor(ctx context.Context, anchorID int64) error
}

// Tracker exposes frontier inspection, stage advancement for external
// collaborators, and the administrative reset that re-admits work.
type Tracker struct {
	store TrackerStore
}

func NewTracker(store TrackerStore) *Tracker {
	return &Tracker{store: store}
}

// Advance stamps the given stage on the documents. Only the indexed stage is
// advanced through the tracker: matching and enrichment stamps are owned by
// their batch commits, and ingestion stamps rows at insert.
func (t *Tracker) Advance(ctx context.Context, stage Stage, docIDs []int64, now time.Time) error {
	switch stage {
	case StageIndexed:
		return t.store.MarkIndexed(ctx, docIDs, now)
	default:
		return fmt.Errorf("stage %s cannot be advanced externally", stage)
	}
}

// Frontiers reports outstanding work per stage.
func (t *Tracker) Frontiers(ctx context.Context) (sqlite.FrontierCounts, error) {
	return t.store.CountFrontiers(ctx)
}

// ResetDocuments re-admits the documents to the match frontier, discarding
// their links and downstream flags.
func (t *Tracker) ResetDocuments(ctx context.Context, docIDs []int64) error {
	if len(docIDs) == 0 {
		return nil
	}
	return t.store.ResetDocuments(ctx, docIDs)
}

// ResetAnchor discards the anchor's links and re-opens matching for the whole
// corpus against it.
func (t *Tracker) ResetAnchor(ctx context.Context, anchorID int64) error {
	return t.store.ResetAnchor(ctx, anchorID)
}
