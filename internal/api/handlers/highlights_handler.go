package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/anchorwatch/backend/internal/storage/sqlite"
	"github.com/anchorwatch/backend/pkg/logger"
)

type HighlightsHandler struct {
	store *sqlite.Client
}

func NewHighlightsHandler(store *sqlite.Client) *HighlightsHandler {
	return &HighlightsHandler{
		store: store,
	}
}

// GetHighlights returns resolved links enriched within the requested window.
// This is the only contract delivery and export code depend on.
func (h *HighlightsHandler) GetHighlights(c *fiber.Ctx) error {
	until := time.Now()
	since := until.AddDate(0, 0, -7)

	if v := c.Query("since"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "since must be RFC3339",
			})
		}
		since = parsed
	}
	if v := c.Query("until"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "until must be RFC3339",
			})
		}
		until = parsed
	}

	highlights, err := h.store.Highlights(c.Context(), since, until)
	if err != nil {
		logger.Error("Failed to query highlights", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to query highlights",
		})
	}

	items := make([]fiber.Map, 0, len(highlights))
	for _, hl := range highlights {
		items = append(items, fiber.Map{
			"link_id":          hl.LinkID,
			"document_id":      hl.DocumentID,
			"document_url":     hl.DocumentURL,
			"document_title":   hl.DocumentTitle,
			"anchor_id":        hl.AnchorID,
			"anchor_name":      hl.AnchorName,
			"source_name":      hl.SourceName,
			"source_category":  hl.SourceCategory,
			"score":            hl.Score,
			"anchor_highlight": hl.AnchorHighlight,
			"org_highlight":    hl.OrgHighlight,
			"enriched_at":      hl.EnrichedAt.UTC().Format(time.RFC3339),
		})
	}

	return c.JSON(fiber.Map{
		"since":      since.UTC().Format(time.RFC3339),
		"until":      until.UTC().Format(time.RFC3339),
		"count":      len(items),
		"highlights": items,
	})
}

func (h *HighlightsHandler) GetRuns(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)

	runs, err := h.store.RecentRuns(c.Context(), limit)
	if err != nil {
		logger.Error("Failed to query runs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to query runs",
		})
	}

	items := make([]fiber.Map, 0, len(runs))
	for _, run := range runs {
		item := fiber.Map{
			"id":                run.ID,
			"started_at":        run.StartedAt.UTC().Format(time.RFC3339),
			"status":            run.Status,
			"documents_matched": run.DocumentsMatched,
			"links_created":     run.LinksCreated,
			"highlights_found":  run.HighlightsFound,
		}
		if run.FinishedAt != nil {
			item["finished_at"] = run.FinishedAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}

	return c.JSON(fiber.Map{
		"runs": items,
	})
}
