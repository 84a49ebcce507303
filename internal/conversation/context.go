package conversation

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vivi-ai/backend/internal/ollama"
	"github.com/vivi-ai/backend/internal/storage/models"
	"github.com/vivi-ai/backend/pkg/logger"
)

// ContextStore supplies the processed documents used as organizational
// context.
type ContextStore interface {
	ListCompletedDocuments(ctx context.Context, orgID string, limit int) ([]models.Document, error)
}

// Assembler builds the ordered message list handed to the chat capability:
// system prompt with organizational context, trimmed history, new user turn.
type Assembler struct {
	store        ContextStore
	docLimit     int
	contentLimit int
	historyLimit int
}

func NewAssembler(store ContextStore, docLimit, contentLimit, historyLimit int) *Assembler {
	if docLimit <= 0 {
		docLimit = 3
	}
	if contentLimit <= 0 {
		contentLimit = 500
	}
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Assembler{
		store:        store,
		docLimit:     docLimit,
		contentLimit: contentLimit,
		historyLimit: historyLimit,
	}
}

// BuildMessages assembles [system] + [history...] + [user turn]. History is
// trimmed to the most recent messages, kept chronological.
func (a *Assembler) BuildMessages(ctx context.Context, org *models.Organization, language, userMessage string, history []models.ChatMessage) []ollama.ChatMessage {
	orgContext := a.organizationalContext(ctx, org.ID)

	if len(history) > a.historyLimit {
		history = history[len(history)-a.historyLimit:]
	}

	messages := make([]ollama.ChatMessage, 0, len(history)+2)
	messages = append(messages, ollama.ChatMessage{
		Role:    models.RoleSystem,
		Content: systemPrompt(org.Name, orgContext, language),
	})

	for _, msg := range history {
		messages = append(messages, ollama.ChatMessage{Role: msg.Role, Content: msg.Content})
	}

	messages = append(messages, ollama.ChatMessage{Role: models.RoleUser, Content: userMessage})

	return messages
}

// organizationalContext concatenates the most recently processed documents
// into prompt blocks. Recency bias, not relevance ranking. Failures degrade
// to an empty context rather than blocking the chat.
func (a *Assembler) organizationalContext(ctx context.Context, orgID string) string {
	docs, err := a.store.ListCompletedDocuments(ctx, orgID, a.docLimit)
	if err != nil {
		logger.Warn("Failed to load organizational context", zap.Error(err))
		return ""
	}

	blocks := make([]string, 0, len(docs))
	for _, doc := range docs {
		content := doc.Content
		if len(content) > a.contentLimit {
			content = content[:a.contentLimit]
		}
		blocks = append(blocks, fmt.Sprintf("Document: %s\nContent: %s...", doc.OriginalName, content))
	}

	return strings.Join(blocks, "\n\n")
}

func systemPrompt(orgName, orgContext, language string) string {
	return fmt.Sprintf(`You are a helpful AI assistant for %s.
Answer questions based on the organizational information provided and general knowledge.
Always be helpful, accurate, and professional.

Organizational Context:
%s

Respond in %s language.`, orgName, orgContext, language)
}
