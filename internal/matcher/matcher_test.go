package matcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchorwatch/backend/internal/anchor"
	"github.com/anchorwatch/backend/internal/storage/models"
	"github.com/anchorwatch/backend/internal/storage/sqlite"
)

type stubComponentResolver struct {
	vectors map[string][][]float32
}

func (s *stubComponentResolver) ComponentVectors(_ context.Context, comp models.AnchorComponent) ([][]float32, error) {
	return s.vectors[comp.ComponentID], nil
}

type stubDocResolver struct {
	vectors map[int64][][]float32
	errs    map[int64]error
}

func (s *stubDocResolver) DocumentVectors(_ context.Context, docID int64) ([][]float32, error) {
	if err, ok := s.errs[docID]; ok {
		return nil, err
	}
	return s.vectors[docID], nil
}

func newTestStore(t *testing.T) *sqlite.Client {
	t.Helper()
	store, err := sqlite.NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.InitSchema())
	return store
}

func seedSource(t *testing.T, store *sqlite.Client, name, category string) int64 {
	t.Helper()
	id, err := store.InsertSource(context.Background(), &models.Source{
		Name: name, Category: category, IsActive: true, CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	return id
}

func seedDocument(t *testing.T, store *sqlite.Client, sourceID int64, url string) int64 {
	t.Helper()
	indexed := time.Now()
	id, err := store.InsertDocument(context.Background(), &models.Document{
		SourceID:   sourceID,
		URL:        url,
		Title:      url,
		IngestedAt: time.Now(),
		IndexedAt:  &indexed,
	})
	require.NoError(t, err)
	return id
}

func seedAnchor(t *testing.T, store *sqlite.Client, name string, tags ...string) int64 {
	t.Helper()
	a := models.Anchor{Name: name, IsActive: true, CreatedAt: time.Now()}
	for _, tag := range tags {
		a.Components = append(a.Components, models.AnchorComponent{
			Type: models.ComponentTag, ComponentID: tag,
		})
	}
	id, err := store.InsertAnchor(context.Background(), &a)
	require.NoError(t, err)
	return id
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{0.6, 0.6}, []float32{0.5, 0.5}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 1}))
}

func TestAggregatePolicies(t *testing.T) {
	scores := []float64{0.9, 0.1, 0.5, 0.7, 0.3, 0.2}

	assert.InDelta(t, 0.9, aggregate(scores, AggregateMax, 5), 1e-9)
	assert.InDelta(t, 0.45, aggregate(scores, AggregateMean, 5), 1e-9)
	// top-5 of the six scores: 0.9, 0.7, 0.5, 0.3, 0.2
	assert.InDelta(t, 0.52, aggregate(scores, AggregateTopKMean, 5), 1e-9)
	// k larger than the score count falls back to a plain mean
	assert.InDelta(t, 0.45, aggregate(scores, AggregateTopKMean, 10), 1e-9)
	assert.Equal(t, 0.0, aggregate(nil, AggregateMax, 5))
}

func TestNewRejectsUnknownAggregation(t *testing.T) {
	_, err := New(nil, nil, nil, Config{ChunkAggregation: "topk_maen"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topk_maen")

	m, err := New(nil, nil, nil, Config{})
	require.NoError(t, err)
	assert.Equal(t, AggregateTopKMean, m.cfg.ChunkAggregation)
	assert.Equal(t, 5, m.cfg.ChunkTopK)
}

func TestMatcherCreatesLinksAndAdvances(t *testing.T) {
	store := newTestStore(t)
	srcID := seedSource(t, store, "Policy Forum", "Think Tank")
	docID := seedDocument(t, store, srcID, "https://example.org/brief-1")
	anchorID := seedAnchor(t, store, "ai-governance", "governance")

	compositor := anchor.NewCompositor(&stubComponentResolver{
		vectors: map[string][][]float32{"governance": {{1, 0}, {0, 1}}},
	})
	docs := &stubDocResolver{
		vectors: map[int64][][]float32{docID: {{0.6, 0.6}}},
	}

	m, err := New(store, docs, compositor, Config{BatchSize: 10, Workers: 2})
	require.NoError(t, err)
	result, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.DocumentsMatched)
	assert.Equal(t, 1, result.LinksCreated)

	links, err := store.LinksForDocument(context.Background(), docID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, anchorID, links[0].AnchorID)
	assert.InDelta(t, 1.0, links[0].Score, 1e-6)
	assert.Nil(t, links[0].AnchorHighlight)

	doc, err := store.GetDocument(context.Background(), docID)
	require.NoError(t, err)
	assert.NotNil(t, doc.MatchedAt)
	assert.Nil(t, doc.EnrichedAt)
}

func TestMatcherPreFiltersNoisyCategories(t *testing.T) {
	store := newTestStore(t)
	newsID := seedSource(t, store, "Daily Wire Feed", "News Media")
	thinkID := seedSource(t, store, "Policy Forum", "Think Tank")
	newsDoc := seedDocument(t, store, newsID, "https://example.org/news-1")
	thinkDoc := seedDocument(t, store, thinkID, "https://example.org/brief-1")
	seedAnchor(t, store, "ai-governance", "governance")

	compositor := anchor.NewCompositor(&stubComponentResolver{
		vectors: map[string][][]float32{"governance": {{1, 0}}},
	})
	// Both documents score ~0.196 against the anchor, below the 0.25
	// pre-filter minimum.
	docs := &stubDocResolver{
		vectors: map[int64][][]float32{
			newsDoc:  {{0.2, 1.0}},
			thinkDoc: {{0.2, 1.0}},
		},
	}

	m, err := New(store, docs, compositor, Config{
		BatchSize:       10,
		PreFilterScore:  0.25,
		NoisyCategories: []string{"News Media", "Misc. Research"},
	})
	require.NoError(t, err)
	result, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.DocumentsMatched)
	assert.Equal(t, 1, result.LinksCreated)
	assert.Equal(t, 1, result.LinksFiltered)

	newsLinks, err := store.LinksForDocument(context.Background(), newsDoc)
	require.NoError(t, err)
	assert.Empty(t, newsLinks)

	thinkLinks, err := store.LinksForDocument(context.Background(), thinkDoc)
	require.NoError(t, err)
	assert.Len(t, thinkLinks, 1)

	// The noisy document is still matched: absence of links is terminal.
	doc, err := store.GetDocument(context.Background(), newsDoc)
	require.NoError(t, err)
	assert.NotNil(t, doc.MatchedAt)
}

func TestMatcherLinkUniquenessAfterReset(t *testing.T) {
	store := newTestStore(t)
	srcID := seedSource(t, store, "Policy Forum", "Think Tank")
	docID := seedDocument(t, store, srcID, "https://example.org/brief-1")
	seedAnchor(t, store, "ai-governance", "governance")

	compositor := anchor.NewCompositor(&stubComponentResolver{
		vectors: map[string][][]float32{"governance": {{1, 1}}},
	})
	docs := &stubDocResolver{vectors: map[int64][][]float32{docID: {{1, 1}}}}

	m, err := New(store, docs, compositor, Config{BatchSize: 10})
	require.NoError(t, err)

	_, err = m.Run(context.Background())
	require.NoError(t, err)

	// Second run over a drained frontier does nothing.
	result, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.DocumentsMatched)

	// Reprocessing after a reset upserts rather than duplicating.
	require.NoError(t, store.ResetDocuments(context.Background(), []int64{docID}))
	_, err = m.Run(context.Background())
	require.NoError(t, err)

	links, err := store.LinksForDocument(context.Background(), docID)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestMatcherSkipsFailingDocument(t *testing.T) {
	store := newTestStore(t)
	srcID := seedSource(t, store, "Policy Forum", "Think Tank")
	badDoc := seedDocument(t, store, srcID, "https://example.org/bad")
	goodDoc := seedDocument(t, store, srcID, "https://example.org/good")
	seedAnchor(t, store, "ai-governance", "governance")

	compositor := anchor.NewCompositor(&stubComponentResolver{
		vectors: map[string][][]float32{"governance": {{1, 1}}},
	})
	docs := &stubDocResolver{
		vectors: map[int64][][]float32{goodDoc: {{1, 1}}},
		errs:    map[int64]error{badDoc: errors.New("vector store unavailable")},
	}

	m, err := New(store, docs, compositor, Config{BatchSize: 10})
	require.NoError(t, err)
	result, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.DocumentsMatched)
	assert.Equal(t, 1, result.DocumentsSkipped)

	// The failing document stays on the frontier for the next run.
	bad, err := store.GetDocument(context.Background(), badDoc)
	require.NoError(t, err)
	assert.Nil(t, bad.MatchedAt)

	good, err := store.GetDocument(context.Background(), goodDoc)
	require.NoError(t, err)
	assert.NotNil(t, good.MatchedAt)
}

func TestMatcherSkipsNonComposableAnchor(t *testing.T) {
	store := newTestStore(t)
	srcID := seedSource(t, store, "Policy Forum", "Think Tank")
	docID := seedDocument(t, store, srcID, "https://example.org/brief-1")
	seedAnchor(t, store, "empty-anchor", "missing-tag")
	seedAnchor(t, store, "ai-governance", "governance")

	compositor := anchor.NewCompositor(&stubComponentResolver{
		vectors: map[string][][]float32{"governance": {{1, 1}}},
	})
	docs := &stubDocResolver{vectors: map[int64][][]float32{docID: {{1, 1}}}}

	m, err := New(store, docs, compositor, Config{BatchSize: 10})
	require.NoError(t, err)
	result, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.LinksCreated)

	links, err := store.LinksForDocument(context.Background(), docID)
	require.NoError(t, err)
	require.Len(t, links, 1)
}
