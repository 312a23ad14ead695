package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anchorwatch/backend/internal/enrich"
	"github.com/anchorwatch/backend/internal/matcher"
	"github.com/anchorwatch/backend/internal/metrics"
	"github.com/anchorwatch/backend/internal/stats"
	"github.com/anchorwatch/backend/internal/storage/models"
	"github.com/anchorwatch/backend/pkg/logger"
)

// RunStore persists the per-run ledger.
type RunStore interface {
	InsertRun(ctx context.Context, run *models.PipelineRun) error
	FinishRun(ctx context.Context, run *models.PipelineRun) error
}

// Runner executes one full pipeline pass: statistics refresh, matching,
// enrichment. Stages run sequentially; a stage failure aborts the run and the
// untouched frontiers are simply picked up by the next one.
type Runner struct {
	runs       RunStore
	stats      *stats.Service
	matcher    *matcher.Matcher
	classifier *enrich.Classifier
	tracker    *Tracker
}

func NewRunner(runs RunStore, statsService *stats.Service, m *matcher.Matcher, c *enrich.Classifier, t *Tracker) *Runner {
	return &Runner{
		runs:       runs,
		stats:      statsService,
		matcher:    m,
		classifier: c,
		tracker:    t,
	}
}

func (r *Runner) RunOnce(ctx context.Context) error {
	run := &models.PipelineRun{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	if err := r.runs.InsertRun(ctx, run); err != nil {
		return err
	}

	logger.Info("Pipeline run started", zap.String("run_id", run.ID))
	start := time.Now()

	err := r.execute(ctx, run)
	if err != nil {
		run.Status = models.RunStatusFailure
		logger.Error("Pipeline run failed", zap.String("run_id", run.ID), zap.Error(err))
	} else {
		run.Status = models.RunStatusSuccess
	}

	metrics.RunDuration.WithLabelValues(run.Status).Observe(time.Since(start).Seconds())

	if finishErr := r.runs.FinishRun(ctx, run); finishErr != nil {
		logger.Error("Failed to record run outcome", zap.String("run_id", run.ID), zap.Error(finishErr))
	}

	if err == nil {
		logger.Info("Pipeline run finished",
			zap.String("run_id", run.ID),
			zap.Int("documents_matched", run.DocumentsMatched),
			zap.Int("links_created", run.LinksCreated),
			zap.Int("highlights_found", run.HighlightsFound),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	return err
}

func (r *Runner) execute(ctx context.Context, run *models.PipelineRun) error {
	snapshot, err := r.stats.Refresh(ctx)
	if err != nil {
		metrics.BatchFailures.WithLabelValues("stats").Inc()
		return err
	}
	metrics.ThresholdSamples.Set(float64(snapshot.TotalSamples()))

	matchResult, err := r.matcher.Run(ctx)
	if err != nil {
		metrics.BatchFailures.WithLabelValues("match").Inc()
		return err
	}
	run.DocumentsMatched = matchResult.DocumentsMatched
	run.LinksCreated = matchResult.LinksCreated
	metrics.DocumentsMatched.Add(float64(matchResult.DocumentsMatched))
	metrics.DocumentsSkipped.Add(float64(matchResult.DocumentsSkipped))
	metrics.LinksCreated.Add(float64(matchResult.LinksCreated))
	metrics.LinksFiltered.Add(float64(matchResult.LinksFiltered))

	enrichResult, err := r.classifier.Run(ctx)
	if err != nil {
		metrics.BatchFailures.WithLabelValues("enrich").Inc()
		return err
	}
	run.HighlightsFound = enrichResult.AnchorHighlights
	metrics.LinksResolved.Add(float64(enrichResult.LinksResolved))
	metrics.AnchorHighlights.Add(float64(enrichResult.AnchorHighlights))

	if counts, err := r.tracker.Frontiers(ctx); err == nil {
		metrics.FrontierSize.WithLabelValues("index").Set(float64(counts.AwaitingIndex))
		metrics.FrontierSize.WithLabelValues("match").Set(float64(counts.AwaitingMatch))
		metrics.FrontierSize.WithLabelValues("enrich").Set(float64(counts.UnresolvedLink))
	}

	return nil
}

// Schedule runs the pipeline on a fixed interval until the context is
// cancelled. Failures are logged and retried on the next tick; cancellation
// lands between batches, never mid-commit.
func (r *Runner) Schedule(ctx context.Context, interval time.Duration, runOnStart bool) {
	if runOnStart {
		if err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Scheduled run failed", zap.Error(err))
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Pipeline scheduler stopped")
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Error("Scheduled run failed", zap.Error(err))
			}
		}
	}
}
