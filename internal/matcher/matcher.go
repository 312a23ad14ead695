package matcher

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/anchorwatch/backend/internal/anchor"
	"github.com/anchorwatch/backend/internal/storage/models"
	"github.com/anchorwatch/backend/pkg/logger"
)

// Chunk aggregation policies: how multiple chunk similarities reduce to one
// document-anchor score.
const (
	AggregateMax      = "max"
	AggregateMean     = "mean"
	AggregateTopKMean = "topk_mean"
)

type Config struct {
	BatchSize        int
	Workers          int
	ChunkAggregation string
	ChunkTopK        int
	PreFilterScore   float64
	NoisyCategories  []string
}

// DocumentResolver returns a document's chunk vectors.
type DocumentResolver interface {
	DocumentVectors(ctx context.Context, docID int64) ([][]float32, error)
}

// Store is the persistence surface the matcher needs.
type Store interface {
	ActiveAnchors(ctx context.Context) ([]models.Anchor, error)
	MatchFrontier(ctx context.Context, limit int) ([]models.Document, error)
	CommitMatchBatch(ctx context.Context, links []models.Link, docIDs []int64, now time.Time) error
}

// Matcher scores unmatched documents against every composable active anchor
// and persists the surviving links.
type Matcher struct {
	store      Store
	resolver   DocumentResolver
	compositor *anchor.Compositor
	cfg        Config
	noisy      map[string]bool
}

type Result struct {
	DocumentsMatched int
	LinksCreated     int
	LinksFiltered    int
	DocumentsSkipped int
}

type compositeAnchor struct {
	id     int64
	name   string
	vector []float32
}

func New(store Store, resolver DocumentResolver, compositor *anchor.Compositor, cfg Config) (*Matcher, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	switch cfg.ChunkAggregation {
	case "":
		cfg.ChunkAggregation = AggregateTopKMean
	case AggregateMax, AggregateMean, AggregateTopKMean:
	default:
		return nil, fmt.Errorf("unknown chunk aggregation policy %q", cfg.ChunkAggregation)
	}
	if cfg.ChunkTopK <= 0 {
		cfg.ChunkTopK = 5
	}

	noisy := make(map[string]bool, len(cfg.NoisyCategories))
	for _, cat := range cfg.NoisyCategories {
		noisy[cat] = true
	}

	return &Matcher{
		store:      store,
		resolver:   resolver,
		compositor: compositor,
		cfg:        cfg,
		noisy:      noisy,
	}, nil
}

// Run drains the match frontier batch by batch. Composite vectors are built
// once per run; anchors that cannot be composed are skipped. Documents whose
// vectors cannot be resolved stay on the frontier for the next run.
func (m *Matcher) Run(ctx context.Context) (Result, error) {
	var result Result

	anchors, err := m.store.ActiveAnchors(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to load anchors: %w", err)
	}

	composites := make([]compositeAnchor, 0, len(anchors))
	for _, a := range anchors {
		vec, err := m.compositor.Composite(ctx, a)
		if err != nil {
			logger.Warn("Skipping non-composable anchor",
				zap.String("anchor", a.Name),
				zap.Error(err),
			)
			continue
		}
		composites = append(composites, compositeAnchor{id: a.ID, name: a.Name, vector: vec})
	}

	if len(composites) == 0 {
		logger.Warn("No composable active anchors, nothing to match")
		return result, nil
	}

	pool, err := ants.NewPool(m.cfg.Workers)
	if err != nil {
		return result, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	failed := make(map[int64]bool)
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		docs, err := m.store.MatchFrontier(ctx, m.cfg.BatchSize+len(failed))
		if err != nil {
			return result, fmt.Errorf("failed to load match frontier: %w", err)
		}

		pending := docs[:0]
		for _, d := range docs {
			if !failed[d.ID] {
				pending = append(pending, d)
			}
		}
		if len(pending) > m.cfg.BatchSize {
			pending = pending[:m.cfg.BatchSize]
		}
		if len(pending) == 0 {
			break
		}

		batch, err := m.runBatch(ctx, pool, pending, composites)
		if err != nil {
			return result, err
		}

		for _, id := range batch.failedDocs {
			failed[id] = true
		}
		result.DocumentsMatched += len(batch.matchedDocs)
		result.LinksCreated += len(batch.links)
		result.LinksFiltered += batch.filtered
		result.DocumentsSkipped += len(batch.failedDocs)
	}

	logger.Info("Matcher run finished",
		zap.Int("documents_matched", result.DocumentsMatched),
		zap.Int("links_created", result.LinksCreated),
		zap.Int("links_filtered", result.LinksFiltered),
		zap.Int("documents_skipped", result.DocumentsSkipped),
	)

	return result, nil
}

type batchOutcome struct {
	links       []models.Link
	matchedDocs []int64
	failedDocs  []int64
	filtered    int
}

type docOutcome struct {
	docID    int64
	links    []models.Link
	filtered int
	err      error
}

// runBatch scores each pending document in parallel, then commits all links
// and timestamp advances in one transaction. Scoring is pure: nothing is
// written until the whole batch is done.
func (m *Matcher) runBatch(ctx context.Context, pool *ants.Pool, docs []models.Document, composites []compositeAnchor) (batchOutcome, error) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		outcomes []docOutcome
	)

	for _, doc := range docs {
		doc := doc
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			out := m.scoreDocument(ctx, doc, composites)
			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			return batchOutcome{}, fmt.Errorf("failed to submit scoring task: %w", err)
		}
	}
	wg.Wait()

	var batch batchOutcome
	for _, out := range outcomes {
		if out.err != nil {
			logger.Warn("Document scoring failed, will retry next run",
				zap.Int64("document_id", out.docID),
				zap.Error(out.err),
			)
			batch.failedDocs = append(batch.failedDocs, out.docID)
			continue
		}
		batch.links = append(batch.links, out.links...)
		batch.matchedDocs = append(batch.matchedDocs, out.docID)
		batch.filtered += out.filtered
	}

	if len(batch.matchedDocs) == 0 {
		return batch, nil
	}

	if err := m.store.CommitMatchBatch(ctx, batch.links, batch.matchedDocs, time.Now()); err != nil {
		return batchOutcome{}, fmt.Errorf("failed to commit match batch: %w", err)
	}

	logger.Info("Match batch committed",
		zap.Int("documents", len(batch.matchedDocs)),
		zap.Int("links", len(batch.links)),
		zap.Int("filtered", batch.filtered),
	)

	return batch, nil
}

func (m *Matcher) scoreDocument(ctx context.Context, doc models.Document, composites []compositeAnchor) docOutcome {
	out := docOutcome{docID: doc.ID}

	chunks, err := m.resolver.DocumentVectors(ctx, doc.ID)
	if err != nil {
		out.err = err
		return out
	}
	if len(chunks) == 0 {
		out.err = fmt.Errorf("document %d has no stored vectors", doc.ID)
		return out
	}

	noisy := m.noisy[doc.SourceCategory]
	for _, comp := range composites {
		score := m.score(chunks, comp.vector)

		// High-volume, low-precision categories must clear the
		// pre-filter before a link is stored at all.
		if noisy && score < m.cfg.PreFilterScore {
			out.filtered++
			continue
		}

		out.links = append(out.links, models.Link{
			DocumentID: doc.ID,
			AnchorID:   comp.id,
			Score:      score,
		})
	}

	return out
}

// score reduces the document's chunk similarities against one composite
// vector to a single clamped score using the configured policy.
func (m *Matcher) score(chunks [][]float32, composite []float32) float64 {
	scores := make([]float64, 0, len(chunks))
	for _, chunk := range chunks {
		scores = append(scores, clamp01(CosineSimilarity(chunk, composite)))
	}
	return aggregate(scores, m.cfg.ChunkAggregation, m.cfg.ChunkTopK)
}

func aggregate(scores []float64, policy string, k int) float64 {
	if len(scores) == 0 {
		return 0
	}

	switch policy {
	case AggregateMax:
		best := scores[0]
		for _, s := range scores[1:] {
			if s > best {
				best = s
			}
		}
		return best
	case AggregateMean:
		return mean(scores)
	default: // AggregateTopKMean
		sorted := make([]float64, len(scores))
		copy(sorted, scores)
		sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
		if k > len(sorted) {
			k = len(sorted)
		}
		return mean(sorted[:k])
	}
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
