// Package conversation owns chat sessions: context assembly for the
// inference call and turn persistence with session ownership checks.
package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vivi-ai/backend/internal/metrics"
	"github.com/vivi-ai/backend/internal/ollama"
	"github.com/vivi-ai/backend/internal/storage/models"
	"github.com/vivi-ai/backend/pkg/logger"
)

// Store is the persistence surface the manager needs.
type Store interface {
	ContextStore
	GetOrganization(ctx context.Context, id string) (*models.Organization, error)
	GetSessionForUser(ctx context.Context, sessionID, userID, orgID string) (*models.ChatSession, error)
	ListSessions(ctx context.Context, userID, orgID string) ([]models.ChatSession, error)
	InsertSession(ctx context.Context, session *models.ChatSession) error
	ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error)
	InsertMessage(ctx context.Context, msg *models.ChatMessage) error
	TouchSession(ctx context.Context, sessionID string) error
}

// Gateway is the chat capability of the inference client.
type Gateway interface {
	Chat(ctx context.Context, model string, messages []ollama.ChatMessage) (*ollama.ChatResult, error)
}

type Manager struct {
	store        Store
	gateway      Gateway
	assembler    *Assembler
	historyLimit int
}

type TurnRequest struct {
	SessionID      string
	UserID         string
	OrganizationID string
	Message        string
	Language       string
	Model          string
}

type Usage struct {
	Tokens int
	Model  string
}

type TurnResult struct {
	Message models.ChatMessage
	Usage   Usage
}

func NewManager(store Store, gateway Gateway, assembler *Assembler, historyLimit int) *Manager {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Manager{
		store:        store,
		gateway:      gateway,
		assembler:    assembler,
		historyLimit: historyLimit,
	}
}

// SubmitTurn runs one chat turn: ownership check, context assembly, inference
// call, then persistence of both turns. A failed inference call persists
// nothing, so the session's message count is unchanged on error.
func (m *Manager) SubmitTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if req.Language == "" {
		req.Language = "en"
	}

	session, err := m.store.GetSessionForUser(ctx, req.SessionID, req.UserID, req.OrganizationID)
	if err != nil {
		return nil, err
	}

	org, err := m.store.GetOrganization(ctx, session.OrganizationID)
	if err != nil {
		return nil, err
	}

	history, err := m.store.ListRecentMessages(ctx, session.ID, m.historyLimit)
	if err != nil {
		return nil, err
	}

	messages := m.assembler.BuildMessages(ctx, org, req.Language, req.Message, history)

	result, err := m.gateway.Chat(ctx, req.Model, messages)
	if err != nil {
		metrics.ChatRequests.WithLabelValues("error").Inc()
		return nil, err
	}

	now := time.Now()

	userMsg := &models.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		Role:      models.RoleUser,
		Content:   req.Message,
		Language:  req.Language,
		Model:     req.Model,
		CreatedAt: now,
	}
	if err := m.store.InsertMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	assistantMsg := &models.ChatMessage{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		Role:      models.RoleAssistant,
		Content:   result.Content,
		Language:  req.Language,
		Model:     req.Model,
		Tokens:    result.EvalCount,
		CreatedAt: now,
	}
	if err := m.store.InsertMessage(ctx, assistantMsg); err != nil {
		return nil, err
	}

	if err := m.store.TouchSession(ctx, session.ID); err != nil {
		logger.Warn("Failed to update session timestamp", zap.Error(err))
	}

	metrics.ChatRequests.WithLabelValues("success").Inc()
	metrics.ChatTokensUsed.WithLabelValues(req.Model).Add(float64(result.EvalCount))

	logger.Info("Chat turn completed",
		zap.String("session_id", session.ID),
		zap.Int("tokens", result.EvalCount),
	)

	return &TurnResult{
		Message: *assistantMsg,
		Usage:   Usage{Tokens: result.EvalCount, Model: req.Model},
	}, nil
}

// CreateSession opens a new conversation for the principal.
func (m *Manager) CreateSession(ctx context.Context, userID, orgID, name, language string) (*models.ChatSession, error) {
	if name == "" {
		name = "New Chat"
	}
	if language == "" {
		language = "en"
	}

	now := time.Now()
	session := &models.ChatSession{
		ID:              uuid.New().String(),
		UserID:          userID,
		OrganizationID:  orgID,
		Name:            name,
		Language:        language,
		IsActive:        true,
		LastInteraction: now,
		CreatedAt:       now,
	}

	if err := m.store.InsertSession(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

// ListSessions returns the principal's sessions, most recently used first.
func (m *Manager) ListSessions(ctx context.Context, userID, orgID string) ([]models.ChatSession, error) {
	return m.store.ListSessions(ctx, userID, orgID)
}
