package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/vivi-ai/backend/internal/conversation"
	"github.com/vivi-ai/backend/internal/middleware/validation"
	"github.com/vivi-ai/backend/internal/ollama"
	"github.com/vivi-ai/backend/internal/storage/models"
	"github.com/vivi-ai/backend/pkg/logger"
)

type ChatHandler struct {
	manager *conversation.Manager
	gateway *ollama.Client
}

func NewChatHandler(manager *conversation.Manager, gateway *ollama.Client) *ChatHandler {
	return &ChatHandler{manager: manager, gateway: gateway}
}

// Chat runs one conversational turn inside an existing session.
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	userID, orgID, ok := principal(c)
	if !ok {
		return unauthorized(c)
	}

	var req struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
		Language  string `json:"language"`
		Model     string `json:"model"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session_id is required",
		})
	}
	if req.Model == "" {
		req.Model = h.gateway.ChatModel()
	}
	if req.Language == "" {
		req.Language = "en"
	}

	result, err := h.manager.SubmitTurn(c.Context(), conversation.TurnRequest{
		SessionID:      req.SessionID,
		UserID:         userID,
		OrganizationID: orgID,
		Message:        validation.Sanitize(req.Message),
		Language:       req.Language,
		Model:          req.Model,
	})
	if err != nil {
		return h.turnError(c, req.SessionID, err)
	}

	return c.JSON(fiber.Map{
		"message": result.Message,
		"usage": fiber.Map{
			"tokens": result.Usage.Tokens,
			"model":  result.Usage.Model,
		},
	})
}

func (h *ChatHandler) turnError(c *fiber.Ctx, sessionID string, err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	case errors.Is(err, ollama.ErrUnavailable):
		logger.Error("Inference backend unavailable",
			zap.String("session_id", sessionID), zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "AI service is temporarily unavailable",
		})
	default:
		logger.Error("Chat turn failed",
			zap.String("session_id", sessionID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process message",
		})
	}
}

// CreateSession starts a new chat session for the caller.
func (h *ChatHandler) CreateSession(c *fiber.Ctx) error {
	userID, orgID, ok := principal(c)
	if !ok {
		return unauthorized(c)
	}

	var req struct {
		Name     string `json:"name"`
		Language string `json:"language"`
	}
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	session, err := h.manager.CreateSession(c.Context(), userID, orgID, req.Name, req.Language)
	if err != nil {
		logger.Error("Failed to create session", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create session",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session": sessionJSON(session),
	})
}

// ListSessions returns the caller's sessions, most recently active first.
func (h *ChatHandler) ListSessions(c *fiber.Ctx) error {
	userID, orgID, ok := principal(c)
	if !ok {
		return unauthorized(c)
	}

	sessions, err := h.manager.ListSessions(c.Context(), userID, orgID)
	if err != nil {
		logger.Error("Failed to list sessions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list sessions",
		})
	}

	out := make([]fiber.Map, 0, len(sessions))
	for i := range sessions {
		out = append(out, sessionJSON(&sessions[i]))
	}

	return c.JSON(fiber.Map{
		"sessions": out,
		"count":    len(out),
	})
}

func sessionJSON(s *models.ChatSession) fiber.Map {
	return fiber.Map{
		"id":               s.ID,
		"name":             s.Name,
		"language":         s.Language,
		"last_interaction": s.LastInteraction,
		"created_at":       s.CreatedAt,
	}
}
