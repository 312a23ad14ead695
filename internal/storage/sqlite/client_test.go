package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchorwatch/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.InitSchema())
	return client
}

func seedSource(t *testing.T, c *Client, category string) int64 {
	t.Helper()
	id, err := c.InsertSource(context.Background(), &models.Source{
		Name: category + " source", Category: category, IsActive: true, CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	return id
}

func seedDocument(t *testing.T, c *Client, sourceID int64, url string, indexed bool) int64 {
	t.Helper()
	doc := models.Document{SourceID: sourceID, URL: url, Title: url, IngestedAt: time.Now()}
	if indexed {
		now := time.Now()
		doc.IndexedAt = &now
	}
	id, err := c.InsertDocument(context.Background(), &doc)
	require.NoError(t, err)
	return id
}

func seedAnchor(t *testing.T, c *Client, name string) int64 {
	t.Helper()
	id, err := c.InsertAnchor(context.Background(), &models.Anchor{
		Name: name, IsActive: true, CreatedAt: time.Now(),
		Components: []models.AnchorComponent{
			{Type: models.ComponentTag, ComponentID: name + "-tag"},
		},
	})
	require.NoError(t, err)
	return id
}

func TestActiveAnchorsAttachComponents(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	id, err := c.InsertAnchor(ctx, &models.Anchor{
		Name: "ai-safety", IsActive: true, CreatedAt: time.Now(),
		Components: []models.AnchorComponent{
			{Type: models.ComponentTag, ComponentID: "alignment"},
			{Type: models.ComponentKBItem, ComponentID: "kb-42"},
		},
	})
	require.NoError(t, err)

	_, err = c.InsertAnchor(ctx, &models.Anchor{Name: "dormant", IsActive: false, CreatedAt: time.Now()})
	require.NoError(t, err)

	anchors, err := c.ActiveAnchors(ctx)
	require.NoError(t, err)
	require.Len(t, anchors, 1)
	assert.Equal(t, id, anchors[0].ID)
	assert.Len(t, anchors[0].Components, 2)
}

func TestCommitMatchBatchIdempotent(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	srcID := seedSource(t, c, "Think Tank")
	docID := seedDocument(t, c, srcID, "https://example.org/a", true)
	anchorID := seedAnchor(t, c, "governance")

	first := time.Now().Add(-time.Hour)
	links := []models.Link{{DocumentID: docID, AnchorID: anchorID, Score: 0.5}}
	require.NoError(t, c.CommitMatchBatch(ctx, links, []int64{docID}, first))

	// Recommitting upserts the score but keeps the original matched_at.
	links[0].Score = 0.7
	require.NoError(t, c.CommitMatchBatch(ctx, links, []int64{docID}, time.Now()))

	stored, err := c.LinksForDocument(ctx, docID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.InDelta(t, 0.7, stored[0].Score, 1e-9)

	doc, err := c.GetDocument(ctx, docID)
	require.NoError(t, err)
	require.NotNil(t, doc.MatchedAt)
	assert.Equal(t, first.Unix(), doc.MatchedAt.Unix())
}

func TestMatchFrontierRequiresIndexed(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	srcID := seedSource(t, c, "Government")
	unindexed := seedDocument(t, c, srcID, "https://example.org/raw", false)
	indexed := seedDocument(t, c, srcID, "https://example.org/ready", true)

	docs, err := c.MatchFrontier(ctx, 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, indexed, docs[0].ID)
	assert.Equal(t, "Government", docs[0].SourceCategory)

	// MarkIndexed admits the document; a second call keeps the first stamp.
	first := time.Now().Add(-time.Hour)
	require.NoError(t, c.MarkIndexed(ctx, []int64{unindexed}, first))
	require.NoError(t, c.MarkIndexed(ctx, []int64{unindexed}, time.Now()))

	doc, err := c.GetDocument(ctx, unindexed)
	require.NoError(t, err)
	require.NotNil(t, doc.IndexedAt)
	assert.Equal(t, first.Unix(), doc.IndexedAt.Unix())

	docs, err = c.MatchFrontier(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestUnresolvedLinksSkipInactiveAnchors(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	srcID := seedSource(t, c, "Think Tank")
	docID := seedDocument(t, c, srcID, "https://example.org/a", true)
	activeID := seedAnchor(t, c, "active")
	inactiveID, err := c.InsertAnchor(ctx, &models.Anchor{Name: "inactive", IsActive: false, CreatedAt: time.Now()})
	require.NoError(t, err)

	links := []models.Link{
		{DocumentID: docID, AnchorID: activeID, Score: 0.5},
		{DocumentID: docID, AnchorID: inactiveID, Score: 0.9},
	}
	require.NoError(t, c.CommitMatchBatch(ctx, links, []int64{docID}, time.Now()))

	candidates, err := c.UnresolvedLinks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, activeID, candidates[0].AnchorID)
	assert.Equal(t, "Think Tank", candidates[0].SourceCategory)
}

func TestCommitEnrichBatchAggregatesOrgHighlight(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	srcID := seedSource(t, c, "Think Tank")
	docID := seedDocument(t, c, srcID, "https://example.org/a", true)
	a1 := seedAnchor(t, c, "first")
	a2 := seedAnchor(t, c, "second")

	links := []models.Link{
		{DocumentID: docID, AnchorID: a1, Score: 0.1},
		{DocumentID: docID, AnchorID: a2, Score: 0.6},
	}
	require.NoError(t, c.CommitMatchBatch(ctx, links, []int64{docID}, time.Now()))

	stored, err := c.LinksForDocument(ctx, docID)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	// All links false: the document aggregate stays false.
	updates := []LinkHighlight{
		{LinkID: stored[0].ID, Highlight: false},
		{LinkID: stored[1].ID, Highlight: false},
	}
	require.NoError(t, c.CommitEnrichBatch(ctx, updates, []int64{docID}, time.Now()))

	doc, err := c.GetDocument(ctx, docID)
	require.NoError(t, err)
	require.NotNil(t, doc.OrgHighlight)
	assert.False(t, *doc.OrgHighlight)

	// Flipping one link to true flips the aggregate.
	require.NoError(t, c.CommitEnrichBatch(ctx,
		[]LinkHighlight{{LinkID: stored[1].ID, Highlight: true}}, []int64{docID}, time.Now()))

	doc, err = c.GetDocument(ctx, docID)
	require.NoError(t, err)
	require.NotNil(t, doc.OrgHighlight)
	assert.True(t, *doc.OrgHighlight)
}

func TestEmptyEnrichFrontier(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	srcID := seedSource(t, c, "News Media")
	docID := seedDocument(t, c, srcID, "https://example.org/filtered", true)

	// Matched with zero links after pre-filtering.
	require.NoError(t, c.CommitMatchBatch(ctx, nil, []int64{docID}, time.Now()))

	ids, err := c.EmptyEnrichFrontier(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{docID}, ids)

	require.NoError(t, c.CommitEnrichBatch(ctx, nil, ids, time.Now()))

	doc, err := c.GetDocument(ctx, docID)
	require.NoError(t, err)
	assert.NotNil(t, doc.EnrichedAt)
	require.NotNil(t, doc.OrgHighlight)
	assert.False(t, *doc.OrgHighlight)

	ids, err = c.EmptyEnrichFrontier(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestScoreSamplesWindow(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	srcID := seedSource(t, c, "Government")
	docID := seedDocument(t, c, srcID, "https://example.org/a", true)
	anchorID := seedAnchor(t, c, "governance")

	old := time.Now().AddDate(0, 0, -60)
	require.NoError(t, c.CommitMatchBatch(ctx,
		[]models.Link{{DocumentID: docID, AnchorID: anchorID, Score: 0.4}}, []int64{docID}, old))

	samples, err := c.ScoreSamples(ctx, time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Empty(t, samples)

	samples, err = c.ScoreSamples(ctx, time.Now().AddDate(0, 0, -90))
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, anchorID, samples[0].AnchorID)
	assert.Equal(t, "Government", samples[0].Category)
	assert.InDelta(t, 0.4, samples[0].Score, 1e-9)
}

func TestHighlightsWindow(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	srcID := seedSource(t, c, "Think Tank")
	docID := seedDocument(t, c, srcID, "https://example.org/a", true)
	anchorID := seedAnchor(t, c, "governance")

	require.NoError(t, c.CommitMatchBatch(ctx,
		[]models.Link{{DocumentID: docID, AnchorID: anchorID, Score: 0.8}}, []int64{docID}, time.Now()))

	stored, err := c.LinksForDocument(ctx, docID)
	require.NoError(t, err)
	enrichedAt := time.Now()
	require.NoError(t, c.CommitEnrichBatch(ctx,
		[]LinkHighlight{{LinkID: stored[0].ID, Highlight: true}}, []int64{docID}, enrichedAt))

	highlights, err := c.Highlights(ctx, enrichedAt.Add(-time.Minute), enrichedAt.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, highlights, 1)
	assert.Equal(t, "governance", highlights[0].AnchorName)
	assert.True(t, highlights[0].AnchorHighlight)
	assert.True(t, highlights[0].OrgHighlight)

	// Outside the window.
	highlights, err = c.Highlights(ctx, enrichedAt.Add(time.Hour), enrichedAt.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, highlights)
}

func TestCountFrontiers(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	srcID := seedSource(t, c, "Think Tank")
	seedDocument(t, c, srcID, "https://example.org/raw", false)
	matchable := seedDocument(t, c, srcID, "https://example.org/ready", true)
	anchorID := seedAnchor(t, c, "governance")

	fc, err := c.CountFrontiers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fc.AwaitingIndex)
	assert.Equal(t, 1, fc.AwaitingMatch)
	assert.Zero(t, fc.UnresolvedLink)

	require.NoError(t, c.CommitMatchBatch(ctx,
		[]models.Link{{DocumentID: matchable, AnchorID: anchorID, Score: 0.5}}, []int64{matchable}, time.Now()))

	fc, err = c.CountFrontiers(ctx)
	require.NoError(t, err)
	assert.Zero(t, fc.AwaitingMatch)
	assert.Equal(t, 1, fc.UnresolvedLink)
}

func TestResetDocuments(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	srcID := seedSource(t, c, "Think Tank")
	docID := seedDocument(t, c, srcID, "https://example.org/a", true)
	anchorID := seedAnchor(t, c, "governance")

	require.NoError(t, c.CommitMatchBatch(ctx,
		[]models.Link{{DocumentID: docID, AnchorID: anchorID, Score: 0.5}}, []int64{docID}, time.Now()))
	stored, err := c.LinksForDocument(ctx, docID)
	require.NoError(t, err)
	require.NoError(t, c.CommitEnrichBatch(ctx,
		[]LinkHighlight{{LinkID: stored[0].ID, Highlight: true}}, []int64{docID}, time.Now()))

	require.NoError(t, c.ResetDocuments(ctx, []int64{docID}))

	doc, err := c.GetDocument(ctx, docID)
	require.NoError(t, err)
	assert.Nil(t, doc.MatchedAt)
	assert.Nil(t, doc.EnrichedAt)
	assert.Nil(t, doc.OrgHighlight)
	assert.NotNil(t, doc.IndexedAt)

	links, err := c.LinksForDocument(ctx, docID)
	require.NoError(t, err)
	assert.Empty(t, links)

	docs, err := c.MatchFrontier(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestResetAnchorReopensFrontier(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	srcID := seedSource(t, c, "Think Tank")
	docID := seedDocument(t, c, srcID, "https://example.org/a", true)
	keepID := seedAnchor(t, c, "kept")
	resetID := seedAnchor(t, c, "reworked")

	links := []models.Link{
		{DocumentID: docID, AnchorID: keepID, Score: 0.5},
		{DocumentID: docID, AnchorID: resetID, Score: 0.6},
	}
	require.NoError(t, c.CommitMatchBatch(ctx, links, []int64{docID}, time.Now()))

	require.NoError(t, c.ResetAnchor(ctx, resetID))

	// Only the reset anchor's links are gone; the document is matchable again.
	stored, err := c.LinksForDocument(ctx, docID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, keepID, stored[0].AnchorID)

	docs, err := c.MatchFrontier(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestInsertDocumentResubmissionKeepsID(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	srcID := seedSource(t, c, "Think Tank")
	docID := seedDocument(t, c, srcID, "https://example.org/report", true)

	// Shift last_insert_rowid() to another table before resubmitting.
	seedSource(t, c, "Government")

	again, err := c.InsertDocument(ctx, &models.Document{
		SourceID: srcID, URL: "https://example.org/report",
		Title: "updated title", IngestedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, docID, again)

	doc, err := c.GetDocument(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, "updated title", doc.Title)
}

func TestResetThenRematchRestampsEnriched(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	srcID := seedSource(t, c, "Think Tank")
	docID := seedDocument(t, c, srcID, "https://example.org/a", true)
	keepID := seedAnchor(t, c, "kept")
	resetID := seedAnchor(t, c, "reworked")

	links := []models.Link{
		{DocumentID: docID, AnchorID: keepID, Score: 0.5},
		{DocumentID: docID, AnchorID: resetID, Score: 0.6},
	}
	require.NoError(t, c.CommitMatchBatch(ctx, links, []int64{docID}, time.Now()))

	stored, err := c.LinksForDocument(ctx, docID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	updates := []LinkHighlight{
		{LinkID: stored[0].ID, Highlight: true},
		{LinkID: stored[1].ID, Highlight: false},
	}
	require.NoError(t, c.CommitEnrichBatch(ctx, updates, []int64{docID}, time.Now()))

	require.NoError(t, c.ResetAnchor(ctx, resetID))

	// Rematch produces no new link for the reset anchor (pre-filtered), so the
	// document's only remaining link is the kept anchor's resolved one.
	require.NoError(t, c.CommitMatchBatch(ctx, nil, []int64{docID}, time.Now()))

	unresolved, err := c.UnresolvedLinks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unresolved)

	ids, err := c.EmptyEnrichFrontier(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{docID}, ids)

	require.NoError(t, c.CommitEnrichBatch(ctx, nil, ids, time.Now()))

	doc, err := c.GetDocument(ctx, docID)
	require.NoError(t, err)
	assert.NotNil(t, doc.EnrichedAt)
	require.NotNil(t, doc.OrgHighlight)
	assert.True(t, *doc.OrgHighlight)
}

func TestRunLedger(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	run := models.PipelineRun{
		ID: "run-1", StartedAt: time.Now().Add(-time.Minute), Status: models.RunStatusRunning,
	}
	require.NoError(t, c.InsertRun(ctx, &run))

	run.Status = models.RunStatusSuccess
	run.DocumentsMatched = 12
	run.LinksCreated = 30
	run.HighlightsFound = 4
	require.NoError(t, c.FinishRun(ctx, &run))

	runs, err := c.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, models.RunStatusSuccess, runs[0].Status)
	assert.Equal(t, 12, runs[0].DocumentsMatched)
	assert.NotNil(t, runs[0].FinishedAt)
}
