package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/anchorwatch/backend/internal/ingest"
	"github.com/anchorwatch/backend/pkg/logger"
)

type IngestHandler struct {
	ingestor *ingest.Ingestor
}

func NewIngestHandler(ingestor *ingest.Ingestor) *IngestHandler {
	return &IngestHandler{ingestor: ingestor}
}

// SubmitDocument accepts one document with its chunk embeddings, stores it and
// stamps it indexed. The matcher picks it up on the next pass.
func (h *IngestHandler) SubmitDocument(c *fiber.Ctx) error {
	var req struct {
		SourceID int64       `json:"source_id"`
		URL      string      `json:"url"`
		Title    string      `json:"title"`
		Chunks   [][]float32 `json:"chunks"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	docID, err := h.ingestor.Ingest(c.Context(), ingest.Submission{
		SourceID: req.SourceID,
		URL:      req.URL,
		Title:    req.Title,
		Chunks:   req.Chunks,
	})
	if err != nil {
		if errors.Is(err, ingest.ErrInvalidSubmission) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		logger.Error("Failed to ingest document", zap.String("url", req.URL), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to ingest document",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"document_id": docID,
		"chunks":      len(req.Chunks),
	})
}
