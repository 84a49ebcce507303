// Package ingestion drives the document processing state machine:
// pending -> processing -> completed|failed, with failure recovery and
// per-document mutual exclusion.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vivi-ai/backend/internal/extraction"
	"github.com/vivi-ai/backend/internal/metrics"
	"github.com/vivi-ai/backend/internal/storage/models"
	"github.com/vivi-ai/backend/pkg/logger"
	"github.com/vivi-ai/backend/pkg/utils"
)

var (
	// ErrSourceMissing means the stored bytes are gone; the attempt fails.
	ErrSourceMissing = errors.New("document file not found on disk")

	// ErrEmptyExtraction means the model returned no usable text.
	ErrEmptyExtraction = errors.New("extraction produced no content")

	// ErrProcessingConflict means another worker holds the document.
	ErrProcessingConflict = errors.New("document is already being processed")
)

const embeddingCacheTTL = time.Hour

// Store is the document persistence surface the coordinator drives.
type Store interface {
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ClaimProcessing(ctx context.Context, id string) (bool, error)
	ClaimReprocessing(ctx context.Context, id string) (bool, error)
	MarkDocumentCompleted(ctx context.Context, id, content string, embedding []float32, metadata map[string]interface{}) error
	MarkDocumentFailed(ctx context.Context, id, reason string) error
}

// FileStore supplies the raw stored bytes.
type FileStore interface {
	Exists(path string) bool
	Read(path string) ([]byte, error)
}

// Extractor produces text from stored bytes.
type Extractor interface {
	Extract(ctx context.Context, data []byte, fileType string) (*extraction.Result, error)
	Analyze(ctx context.Context, content string) extraction.StructuredAnalysis
}

// Embedder is the embedding capability of the inference client.
type Embedder interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// EmbeddingCache short-circuits repeat embedding calls for identical content.
// A nil cache is allowed.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

type Processor struct {
	store          Store
	files          FileStore
	extractor      Extractor
	embedder       Embedder
	cache          EmbeddingCache
	embeddingModel string
	locks          keyedMutex
}

func NewProcessor(store Store, files FileStore, extractor Extractor, embedder Embedder, cache EmbeddingCache, embeddingModel string) *Processor {
	return &Processor{
		store:          store,
		files:          files,
		extractor:      extractor,
		embedder:       embedder,
		cache:          cache,
		embeddingModel: embeddingModel,
	}
}

// Process runs one ingestion attempt for the document. Completed documents
// are returned unchanged without touching the extractor. Concurrent calls on
// the same document serialize on a per-document lock, so a second caller
// either observes the first attempt's terminal state or claims a failed
// document for a fresh attempt.
func (p *Processor) Process(ctx context.Context, documentID string) (*models.Document, error) {
	unlock := p.locks.lock(documentID)
	defer unlock()

	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	if doc.Status == models.StatusCompleted {
		logger.Debug("Document already processed", zap.String("doc_id", documentID))
		return doc, nil
	}

	claimed, err := p.store.ClaimProcessing(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Someone outside this process holds the row. Reload: a completed
		// result is still a success for this caller.
		doc, err = p.store.GetDocument(ctx, documentID)
		if err != nil {
			return nil, err
		}
		if doc.Status == models.StatusCompleted {
			return doc, nil
		}
		return nil, ErrProcessingConflict
	}

	return p.runClaimed(ctx, doc)
}

// Reprocess is the explicit forced path: it re-runs extraction even for a
// completed document.
func (p *Processor) Reprocess(ctx context.Context, documentID string) (*models.Document, error) {
	unlock := p.locks.lock(documentID)
	defer unlock()

	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	claimed, err := p.store.ClaimReprocessing(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrProcessingConflict
	}

	return p.runClaimed(ctx, doc)
}

// runClaimed executes extraction and embedding for a document already in
// processing state. The document always leaves in a terminal state: any
// failure is recorded in the row before the error is returned.
func (p *Processor) runClaimed(ctx context.Context, doc *models.Document) (*models.Document, error) {
	start := time.Now()

	content, embedding, metadata, err := p.extract(ctx, doc)
	if err != nil {
		if markErr := p.store.MarkDocumentFailed(ctx, doc.ID, err.Error()); markErr != nil {
			logger.Error("Failed to record document failure",
				zap.String("doc_id", doc.ID), zap.Error(markErr))
		}
		metrics.DocumentsProcessed.WithLabelValues("failed").Inc()
		return nil, err
	}

	if err := p.store.MarkDocumentCompleted(ctx, doc.ID, content, embedding, metadata); err != nil {
		return nil, err
	}

	metrics.DocumentsProcessed.WithLabelValues("completed").Inc()
	metrics.IngestionDuration.Observe(time.Since(start).Seconds())

	logger.Info("Document processed successfully",
		zap.String("doc_id", doc.ID),
		zap.String("name", doc.OriginalName),
		zap.Duration("elapsed", time.Since(start)),
	)

	return p.store.GetDocument(ctx, doc.ID)
}

func (p *Processor) extract(ctx context.Context, doc *models.Document) (string, []float32, map[string]interface{}, error) {
	if !p.files.Exists(doc.FilePath) {
		return "", nil, nil, ErrSourceMissing
	}

	data, err := p.files.Read(doc.FilePath)
	if err != nil {
		return "", nil, nil, fmt.Errorf("%w: %v", ErrSourceMissing, err)
	}

	result, err := p.extractor.Extract(ctx, data, doc.FileType)
	if err != nil {
		return "", nil, nil, err
	}

	if strings.TrimSpace(result.Text) == "" {
		return "", nil, nil, ErrEmptyExtraction
	}

	embedding, err := p.embed(ctx, result.Text)
	if err != nil {
		return "", nil, nil, err
	}

	metadata := map[string]interface{}{
		"processed_at":      time.Now().UTC().Format(time.RFC3339),
		"processing_method": result.Method,
	}

	analysis := p.extractor.Analyze(ctx, result.Text)
	if analysis.IsStructured() {
		metadata["structured_data"] = analysis.Fields
	} else if analysis.Raw != "" {
		metadata["raw_analysis"] = analysis.Raw
	}

	if entities := extraction.NamedEntities(result.Text); len(entities) > 0 {
		metadata["entities"] = entities
	}

	return result.Text, embedding, metadata, nil
}

func (p *Processor) embed(ctx context.Context, text string) ([]float32, error) {
	hash := utils.HashString(p.embeddingModel + ":" + text)

	if p.cache != nil {
		if embedding, ok, err := p.cache.GetEmbedding(ctx, hash); err == nil && ok {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			return embedding, nil
		}
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
	}

	embedding, err := p.embedder.Embed(ctx, p.embeddingModel, text)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		if err := p.cache.SetEmbedding(ctx, hash, embedding, embeddingCacheTTL); err != nil {
			logger.Warn("Failed to cache embedding", zap.Error(err))
		}
	}

	return embedding, nil
}

// keyedMutex serializes work per document id. Entries are reference counted
// and removed once the last holder unlocks, so the table only holds documents
// currently being processed.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*lockEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
