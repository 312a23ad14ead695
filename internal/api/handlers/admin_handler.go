package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/anchorwatch/backend/internal/pipeline"
	"github.com/anchorwatch/backend/pkg/logger"
)

type AdminHandler struct {
	tracker *pipeline.Tracker
}

func NewAdminHandler(tracker *pipeline.Tracker) *AdminHandler {
	return &AdminHandler{tracker: tracker}
}

// Reset clears pipeline state for a document or anchor scope, re-admitting
// the affected entities to their frontiers.
func (h *AdminHandler) Reset(c *fiber.Ctx) error {
	var req struct {
		DocumentIDs []int64 `json:"document_ids"`
		AnchorID    int64   `json:"anchor_id"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse reset request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if len(req.DocumentIDs) == 0 && req.AnchorID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "document_ids or anchor_id is required",
		})
	}

	if len(req.DocumentIDs) > 0 {
		if err := h.tracker.ResetDocuments(c.Context(), req.DocumentIDs); err != nil {
			logger.Error("Failed to reset documents", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to reset documents",
			})
		}
	}

	if req.AnchorID != 0 {
		if err := h.tracker.ResetAnchor(c.Context(), req.AnchorID); err != nil {
			logger.Error("Failed to reset anchor", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to reset anchor",
			})
		}
	}

	return c.JSON(fiber.Map{
		"status":          "reset",
		"documents_reset": len(req.DocumentIDs),
		"anchor_id":       req.AnchorID,
	})
}

// Frontiers reports outstanding work per pipeline stage.
func (h *AdminHandler) Frontiers(c *fiber.Ctx) error {
	counts, err := h.tracker.Frontiers(c.Context())
	if err != nil {
		logger.Error("Failed to count frontiers", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to count frontiers",
		})
	}

	return c.JSON(fiber.Map{
		"awaiting_index":   counts.AwaitingIndex,
		"awaiting_match":   counts.AwaitingMatch,
		"unresolved_links": counts.UnresolvedLink,
	})
}
