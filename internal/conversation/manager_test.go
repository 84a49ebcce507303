package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivi-ai/backend/internal/ollama"
	"github.com/vivi-ai/backend/internal/storage/models"
)

type fakeManagerStore struct {
	fakeContextStore

	org      *models.Organization
	session  *models.ChatSession
	history  []models.ChatMessage
	messages []models.ChatMessage
	touched  int
	sessions []models.ChatSession
}

func (s *fakeManagerStore) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	if s.org == nil || s.org.ID != id {
		return nil, models.ErrNotFound
	}
	return s.org, nil
}

func (s *fakeManagerStore) GetSessionForUser(ctx context.Context, sessionID, userID, orgID string) (*models.ChatSession, error) {
	if s.session == nil || s.session.ID != sessionID || s.session.UserID != userID || s.session.OrganizationID != orgID {
		return nil, models.ErrNotFound
	}
	return s.session, nil
}

func (s *fakeManagerStore) ListSessions(ctx context.Context, userID, orgID string) ([]models.ChatSession, error) {
	return s.sessions, nil
}

func (s *fakeManagerStore) InsertSession(ctx context.Context, session *models.ChatSession) error {
	s.sessions = append(s.sessions, *session)
	return nil
}

func (s *fakeManagerStore) ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	return s.history, nil
}

func (s *fakeManagerStore) InsertMessage(ctx context.Context, msg *models.ChatMessage) error {
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *fakeManagerStore) TouchSession(ctx context.Context, sessionID string) error {
	s.touched++
	return nil
}

type fakeChatGateway struct {
	result   *ollama.ChatResult
	err      error
	received []ollama.ChatMessage
}

func (g *fakeChatGateway) Chat(ctx context.Context, model string, messages []ollama.ChatMessage) (*ollama.ChatResult, error) {
	g.received = messages
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

func managerFixture(gateway *fakeChatGateway) (*Manager, *fakeManagerStore) {
	store := &fakeManagerStore{
		org: &models.Organization{ID: "org-1", Name: "Acme Corp"},
		session: &models.ChatSession{
			ID:             "sess-1",
			UserID:         "user-1",
			OrganizationID: "org-1",
		},
	}
	assembler := NewAssembler(store, 3, 500, 10)
	return NewManager(store, gateway, assembler, 10), store
}

func TestSubmitTurn_Success(t *testing.T) {
	gateway := &fakeChatGateway{result: &ollama.ChatResult{Content: "hello there", EvalCount: 42}}
	m, store := managerFixture(gateway)

	result, err := m.SubmitTurn(context.Background(), TurnRequest{
		SessionID:      "sess-1",
		UserID:         "user-1",
		OrganizationID: "org-1",
		Message:        "hi",
		Model:          "qwen3:0.6b",
	})
	require.NoError(t, err)

	assert.Equal(t, "hello there", result.Message.Content)
	assert.Equal(t, models.RoleAssistant, result.Message.Role)
	assert.Equal(t, 42, result.Usage.Tokens)
	assert.Equal(t, "qwen3:0.6b", result.Usage.Model)

	require.Len(t, store.messages, 2)
	assert.Equal(t, models.RoleUser, store.messages[0].Role)
	assert.Equal(t, "hi", store.messages[0].Content)
	assert.Equal(t, models.RoleAssistant, store.messages[1].Role)
	assert.Equal(t, 42, store.messages[1].Tokens)
	assert.Equal(t, 1, store.touched)

	// The gateway saw system prompt plus the new user turn.
	require.Len(t, gateway.received, 2)
	assert.Equal(t, models.RoleSystem, gateway.received[0].Role)
	assert.Equal(t, "hi", gateway.received[1].Content)
}

func TestSubmitTurn_GatewayFailurePersistsNothing(t *testing.T) {
	gateway := &fakeChatGateway{err: errors.New("model offline")}
	m, store := managerFixture(gateway)

	_, err := m.SubmitTurn(context.Background(), TurnRequest{
		SessionID:      "sess-1",
		UserID:         "user-1",
		OrganizationID: "org-1",
		Message:        "hi",
	})
	require.Error(t, err)

	assert.Empty(t, store.messages)
	assert.Zero(t, store.touched)
}

func TestSubmitTurn_SessionOwnership(t *testing.T) {
	gateway := &fakeChatGateway{result: &ollama.ChatResult{Content: "x"}}
	m, _ := managerFixture(gateway)

	_, err := m.SubmitTurn(context.Background(), TurnRequest{
		SessionID:      "sess-1",
		UserID:         "someone-else",
		OrganizationID: "org-1",
		Message:        "hi",
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateSession_Defaults(t *testing.T) {
	m, store := managerFixture(&fakeChatGateway{})

	session, err := m.CreateSession(context.Background(), "user-1", "org-1", "", "")
	require.NoError(t, err)

	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "New Chat", session.Name)
	assert.Equal(t, "en", session.Language)
	assert.True(t, session.IsActive)
	require.Len(t, store.sessions, 1)
}
