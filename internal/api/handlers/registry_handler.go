package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/anchorwatch/backend/internal/storage/models"
	"github.com/anchorwatch/backend/internal/storage/sqlite"
	"github.com/anchorwatch/backend/pkg/logger"
)

// Invalidator drops cached component vectors after anchor edits.
type Invalidator interface {
	InvalidateComponents(ctx context.Context) error
}

// RegistryHandler manages the source and anchor registries.
type RegistryHandler struct {
	store *sqlite.Client
	cache Invalidator
}

func NewRegistryHandler(store *sqlite.Client, cache Invalidator) *RegistryHandler {
	return &RegistryHandler{store: store, cache: cache}
}

func (h *RegistryHandler) CreateSource(c *fiber.Ctx) error {
	var req struct {
		Name     string `json:"name"`
		Category string `json:"category"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Name == "" || req.Category == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name and category are required",
		})
	}

	id, err := h.store.InsertSource(c.Context(), &models.Source{
		Name:      req.Name,
		Category:  req.Category,
		IsActive:  true,
		CreatedAt: time.Now(),
	})
	if err != nil {
		logger.Error("Failed to create source", zap.String("name", req.Name), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create source",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"source_id": id,
		"tier":      models.TierForCategory(req.Category).String(),
	})
}

// CreateAnchor registers an anchor with its component references and drops the
// component vector cache so the next composition sees fresh embeddings.
func (h *RegistryHandler) CreateAnchor(c *fiber.Ctx) error {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Author      string `json:"author"`
		Components  []struct {
			Type        string `json:"type"`
			ComponentID string `json:"component_id"`
		} `json:"components"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name is required",
		})
	}

	// Zero components is allowed: the anchor stays non-composable and the
	// matcher skips it until components are attached.
	a := models.Anchor{
		Name:        req.Name,
		Description: req.Description,
		Author:      req.Author,
		IsActive:    true,
		CreatedAt:   time.Now(),
	}
	for _, comp := range req.Components {
		switch comp.Type {
		case models.ComponentTag, models.ComponentKBItem, models.ComponentHypoDoc:
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "unknown component type: " + comp.Type,
			})
		}
		a.Components = append(a.Components, models.AnchorComponent{
			Type:        comp.Type,
			ComponentID: comp.ComponentID,
		})
	}

	id, err := h.store.InsertAnchor(c.Context(), &a)
	if err != nil {
		logger.Error("Failed to create anchor", zap.String("name", req.Name), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create anchor",
		})
	}

	if h.cache != nil {
		if err := h.cache.InvalidateComponents(c.Context()); err != nil {
			logger.Warn("Failed to invalidate component cache", zap.Error(err))
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"anchor_id":  id,
		"components": len(a.Components),
	})
}
