package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "anchorwatch_run_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: []float64{1, 5, 15, 60, 300, 900},
		},
		[]string{"status"},
	)

	DocumentsMatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "anchorwatch_documents_matched_total",
			Help: "Total documents scored and advanced by the matcher",
		},
	)

	DocumentsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "anchorwatch_documents_skipped_total",
			Help: "Total documents skipped due to unresolvable vectors",
		},
	)

	LinksCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "anchorwatch_links_created_total",
			Help: "Total document-anchor links persisted",
		},
	)

	LinksFiltered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "anchorwatch_links_prefiltered_total",
			Help: "Total candidate links dropped by the category pre-filter",
		},
	)

	LinksResolved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "anchorwatch_links_resolved_total",
			Help: "Total links whose highlight flag was decided",
		},
	)

	AnchorHighlights = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "anchorwatch_anchor_highlights_total",
			Help: "Total links flagged as anchor highlights",
		},
	)

	BatchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anchorwatch_batch_failures_total",
			Help: "Total aborted batches by pipeline stage",
		},
		[]string{"stage"},
	)

	FrontierSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "anchorwatch_frontier_size",
			Help: "Entities awaiting a pipeline stage",
		},
		[]string{"stage"},
	)

	ThresholdSamples = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "anchorwatch_threshold_samples",
			Help: "Link scores inside the statistics window at last refresh",
		},
	)
)

func Init() {
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(DocumentsMatched)
	prometheus.MustRegister(DocumentsSkipped)
	prometheus.MustRegister(LinksCreated)
	prometheus.MustRegister(LinksFiltered)
	prometheus.MustRegister(LinksResolved)
	prometheus.MustRegister(AnchorHighlights)
	prometheus.MustRegister(BatchFailures)
	prometheus.MustRegister(FrontierSize)
	prometheus.MustRegister(ThresholdSamples)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
