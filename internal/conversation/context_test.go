package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vivi-ai/backend/internal/storage/models"
)

type fakeContextStore struct {
	docs []models.Document
	err  error
}

func (s *fakeContextStore) ListCompletedDocuments(ctx context.Context, orgID string, limit int) ([]models.Document, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.docs) > limit {
		return s.docs[:limit], nil
	}
	return s.docs, nil
}

func testOrg() *models.Organization {
	return &models.Organization{ID: "org-1", Name: "Acme Corp"}
}

func TestBuildMessages_Shape(t *testing.T) {
	store := &fakeContextStore{}
	a := NewAssembler(store, 3, 500, 10)

	history := []models.ChatMessage{
		{Role: models.RoleUser, Content: "earlier question"},
		{Role: models.RoleAssistant, Content: "earlier answer"},
	}

	messages := a.BuildMessages(context.Background(), testOrg(), "en", "new question", history)

	require.Len(t, messages, 4)
	assert.Equal(t, models.RoleSystem, messages[0].Role)
	assert.Equal(t, "earlier question", messages[1].Content)
	assert.Equal(t, "earlier answer", messages[2].Content)
	assert.Equal(t, models.RoleUser, messages[3].Role)
	assert.Equal(t, "new question", messages[3].Content)
}

func TestBuildMessages_TrimsHistoryToMostRecent(t *testing.T) {
	store := &fakeContextStore{}
	a := NewAssembler(store, 3, 500, 10)

	history := make([]models.ChatMessage, 12)
	for i := range history {
		history[i] = models.ChatMessage{Role: models.RoleUser, Content: fmt.Sprintf("msg-%d", i)}
	}

	messages := a.BuildMessages(context.Background(), testOrg(), "en", "latest", history)

	// system + 10 history + user turn
	require.Len(t, messages, 12)
	assert.Equal(t, "msg-2", messages[1].Content)
	assert.Equal(t, "msg-11", messages[10].Content)
	assert.Equal(t, "latest", messages[11].Content)
}

func TestBuildMessages_SystemPromptNamesOrgAndLanguage(t *testing.T) {
	store := &fakeContextStore{}
	a := NewAssembler(store, 3, 500, 10)

	messages := a.BuildMessages(context.Background(), testOrg(), "de", "hallo", nil)

	system := messages[0].Content
	assert.Contains(t, system, "Acme Corp")
	assert.Contains(t, system, "Respond in de language.")
}

func TestBuildMessages_DocumentBlocks(t *testing.T) {
	store := &fakeContextStore{docs: []models.Document{
		{OriginalName: "handbook.pdf", Content: "welcome to the company"},
		{OriginalName: "policy.txt", Content: "remote work is allowed"},
	}}
	a := NewAssembler(store, 3, 500, 10)

	system := a.BuildMessages(context.Background(), testOrg(), "en", "hi", nil)[0].Content

	assert.Contains(t, system, "Document: handbook.pdf\nContent: welcome to the company...")
	assert.Contains(t, system, "Document: policy.txt\nContent: remote work is allowed...")
}

func TestBuildMessages_TruncatesDocumentContent(t *testing.T) {
	long := strings.Repeat("a", 600)
	store := &fakeContextStore{docs: []models.Document{
		{OriginalName: "big.txt", Content: long},
	}}
	a := NewAssembler(store, 3, 500, 10)

	system := a.BuildMessages(context.Background(), testOrg(), "en", "hi", nil)[0].Content

	assert.Contains(t, system, long[:500]+"...")
	assert.NotContains(t, system, long[:501])
}

func TestBuildMessages_StoreFailureDegradesToEmptyContext(t *testing.T) {
	store := &fakeContextStore{err: errors.New("db gone")}
	a := NewAssembler(store, 3, 500, 10)

	messages := a.BuildMessages(context.Background(), testOrg(), "en", "hi", nil)

	require.Len(t, messages, 2)
	assert.Contains(t, messages[0].Content, "Acme Corp")
	assert.NotContains(t, messages[0].Content, "Document:")
}
