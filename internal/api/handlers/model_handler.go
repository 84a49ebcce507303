package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/vivi-ai/backend/internal/metrics"
	"github.com/vivi-ai/backend/internal/ollama"
	"github.com/vivi-ai/backend/pkg/logger"
)

// ModelGateway is the catalog capability of the inference client.
type ModelGateway interface {
	ListModels(ctx context.Context) ([]ollama.ModelInfo, error)
}

// ModelCache holds the cached model catalog. A nil cache disables caching.
type ModelCache interface {
	GetModelList(ctx context.Context) ([]ollama.ModelInfo, bool, error)
	SetModelList(ctx context.Context, models []ollama.ModelInfo) error
	InvalidateModelList(ctx context.Context) error
}

type ModelHandler struct {
	gateway ModelGateway
	cache   ModelCache
}

func NewModelHandler(gateway ModelGateway, cache ModelCache) *ModelHandler {
	return &ModelHandler{gateway: gateway, cache: cache}
}

// List returns the models available on the inference backend. The catalog is
// served from cache when fresh; ?refresh=true drops the cached copy and
// forces a backend fetch.
func (h *ModelHandler) List(c *fiber.Ctx) error {
	if _, _, ok := principal(c); !ok {
		return unauthorized(c)
	}

	refresh := c.QueryBool("refresh")

	if h.cache != nil {
		if refresh {
			if err := h.cache.InvalidateModelList(c.Context()); err != nil {
				logger.Warn("Model list cache invalidation failed", zap.Error(err))
			}
		} else {
			cached, found, err := h.cache.GetModelList(c.Context())
			if err != nil {
				logger.Warn("Model list cache read failed", zap.Error(err))
			}
			if found {
				metrics.CacheHits.WithLabelValues("model_list").Inc()
				return c.JSON(modelListJSON(cached))
			}
			metrics.CacheMisses.WithLabelValues("model_list").Inc()
		}
	}

	list, err := h.gateway.ListModels(c.Context())
	if err != nil {
		logger.Error("Failed to list models", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Failed to fetch available models",
		})
	}

	if h.cache != nil {
		if err := h.cache.SetModelList(c.Context(), list); err != nil {
			logger.Warn("Model list cache write failed", zap.Error(err))
		}
	}

	return c.JSON(modelListJSON(list))
}

func modelListJSON(list []ollama.ModelInfo) fiber.Map {
	out := make([]fiber.Map, 0, len(list))
	for _, m := range list {
		out = append(out, fiber.Map{
			"name":     m.Name,
			"size":     m.Size,
			"modified": m.ModifiedAt,
		})
	}
	return fiber.Map{
		"models": out,
		"count":  len(out),
	}
}
