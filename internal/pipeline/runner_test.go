package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchorwatch/backend/internal/anchor"
	"github.com/anchorwatch/backend/internal/enrich"
	"github.com/anchorwatch/backend/internal/matcher"
	"github.com/anchorwatch/backend/internal/stats"
	"github.com/anchorwatch/backend/internal/storage/models"
	"github.com/anchorwatch/backend/internal/storage/sqlite"
)

type stubComponents struct {
	vectors map[string][][]float32
}

func (s *stubComponents) ComponentVectors(_ context.Context, comp models.AnchorComponent) ([][]float32, error) {
	return s.vectors[comp.ComponentID], nil
}

type stubDocuments struct {
	vectors map[int64][][]float32
}

func (s *stubDocuments) DocumentVectors(_ context.Context, docID int64) ([][]float32, error) {
	return s.vectors[docID], nil
}

// TestRunOnceEndToEnd drives a seeded store through a full pass: statistics
// refresh, matching, enrichment, run ledger.
func TestRunOnceEndToEnd(t *testing.T) {
	db, err := sqlite.NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())

	ctx := context.Background()
	srcID, err := db.InsertSource(ctx, &models.Source{
		Name: "Policy Forum", Category: "Think Tank", IsActive: true, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	indexed := time.Now()
	hitDoc, err := db.InsertDocument(ctx, &models.Document{
		SourceID: srcID, URL: "https://example.org/hit", Title: "Hit",
		IngestedAt: time.Now(), IndexedAt: &indexed,
	})
	require.NoError(t, err)
	missDoc, err := db.InsertDocument(ctx, &models.Document{
		SourceID: srcID, URL: "https://example.org/miss", Title: "Miss",
		IngestedAt: time.Now(), IndexedAt: &indexed,
	})
	require.NoError(t, err)

	_, err = db.InsertAnchor(ctx, &models.Anchor{
		Name: "ai-governance", IsActive: true, CreatedAt: time.Now(),
		Components: []models.AnchorComponent{{Type: models.ComponentTag, ComponentID: "governance"}},
	})
	require.NoError(t, err)

	compositor := anchor.NewCompositor(&stubComponents{
		vectors: map[string][][]float32{"governance": {{1, 0}}},
	})
	docs := &stubDocuments{
		vectors: map[int64][][]float32{
			hitDoc:  {{1, 0.05}}, // near-parallel, scores ~1
			missDoc: {{0.1, 1}},  // scores ~0.1, below the fixed tier threshold
		},
	}

	m, err := matcher.New(db, docs, compositor, matcher.Config{BatchSize: 10})
	require.NoError(t, err)
	statsService := stats.NewService(db, stats.Config{WindowDays: 30, MinSamples: 10})
	classifier := enrich.New(db, statsService, enrich.Config{Tier1Threshold: 0.20, FallbackThreshold: 0.25})
	tracker := NewTracker(db)
	runner := NewRunner(db, statsService, m, classifier, tracker)

	require.NoError(t, runner.RunOnce(ctx))

	runs, err := db.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusSuccess, runs[0].Status)
	assert.Equal(t, 2, runs[0].DocumentsMatched)
	assert.Equal(t, 2, runs[0].LinksCreated)
	assert.Equal(t, 1, runs[0].HighlightsFound)
	assert.NotNil(t, runs[0].FinishedAt)

	hit, err := db.GetDocument(ctx, hitDoc)
	require.NoError(t, err)
	require.NotNil(t, hit.OrgHighlight)
	assert.True(t, *hit.OrgHighlight)
	assert.NotNil(t, hit.EnrichedAt)

	miss, err := db.GetDocument(ctx, missDoc)
	require.NoError(t, err)
	require.NotNil(t, miss.OrgHighlight)
	assert.False(t, *miss.OrgHighlight)

	counts, err := tracker.Frontiers(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.AwaitingMatch)
	assert.Zero(t, counts.UnresolvedLink)

	// A second pass finds no work and records a clean run.
	require.NoError(t, runner.RunOnce(ctx))
	runs, err = db.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
}
