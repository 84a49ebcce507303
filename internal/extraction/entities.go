package extraction

import (
	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/vivi-ai/backend/pkg/logger"
)

// entityInputLimit bounds the text fed to the tokenizer; entity annotation is
// metadata enrichment, not a full-document index.
const entityInputLimit = 10000

// NamedEntities runs local named-entity recognition over extracted content.
// Best-effort: failures return nil and the document still completes.
func NamedEntities(content string) []map[string]string {
	if content == "" {
		return nil
	}
	if len(content) > entityInputLimit {
		content = content[:entityInputLimit]
	}

	doc, err := prose.NewDocument(content, prose.WithSegmentation(false))
	if err != nil {
		logger.Warn("Entity annotation failed", zap.Error(err))
		return nil
	}

	seen := make(map[string]bool)
	var entities []map[string]string
	for _, ent := range doc.Entities() {
		key := ent.Label + ":" + ent.Text
		if seen[key] {
			continue
		}
		seen[key] = true
		entities = append(entities, map[string]string{
			"text":  ent.Text,
			"label": ent.Label,
		})
	}

	return entities
}
