package handlers

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vivi-ai/backend/internal/filestore"
	"github.com/vivi-ai/backend/internal/ingestion"
	"github.com/vivi-ai/backend/internal/metrics"
	"github.com/vivi-ai/backend/internal/retrieval"
	"github.com/vivi-ai/backend/internal/storage/models"
	"github.com/vivi-ai/backend/internal/storage/sqlite"
	"github.com/vivi-ai/backend/pkg/logger"
)

// ErrUnsupportedFileType rejects uploads outside the MIME allowlist before
// any row or file exists.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// searchCorpusLimit bounds how many completed documents a search scores.
const searchCorpusLimit = 50

type DocumentHandler struct {
	store       *sqlite.Client
	files       *filestore.Store
	processor   *ingestion.Processor
	retriever   *retrieval.Retriever
	maxFileSize int64
	searchLimit int
}

func NewDocumentHandler(store *sqlite.Client, files *filestore.Store, processor *ingestion.Processor, retriever *retrieval.Retriever, maxFileSize int64, searchLimit int) *DocumentHandler {
	return &DocumentHandler{
		store:       store,
		files:       files,
		processor:   processor,
		retriever:   retriever,
		maxFileSize: maxFileSize,
		searchLimit: searchLimit,
	}
}

// Upload accepts one multipart file, validates it, stores the bytes, and
// creates the pending document row. Validation happens before any row or
// file exists.
func (h *DocumentHandler) Upload(c *fiber.Ctx) error {
	userID, orgID, ok := principal(c)
	if !ok {
		return unauthorized(c)
	}

	fileHeader, err := c.FormFile("document")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file uploaded",
		})
	}

	if fileHeader.Size > h.maxFileSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File too large",
		})
	}

	mimeType := fileHeader.Header.Get("Content-Type")
	if !models.AllowedMIMETypes[mimeType] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  ErrUnsupportedFileType.Error(),
			"detail": "Only PDF, DOC, DOCX, TXT, HTML, and image uploads are allowed.",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read uploaded file",
		})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read uploaded file",
		})
	}

	filename, path, err := h.files.Save(data, fileHeader.Filename)
	if err != nil {
		logger.Error("Failed to store upload", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store file",
		})
	}

	language := c.FormValue("language")
	if language == "" {
		language = "en"
	}

	now := time.Now()
	doc := &models.Document{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		Filename:       filename,
		OriginalName:   fileHeader.Filename,
		FilePath:       path,
		FileType:       mimeType,
		FileSize:       fileHeader.Size,
		Status:         models.StatusPending,
		Language:       language,
		UploadedBy:     userID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := h.store.InsertDocument(c.Context(), doc); err != nil {
		logger.Error("Failed to insert document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create document",
		})
	}

	metrics.DocumentsUploaded.Inc()
	logger.Info("Document uploaded",
		zap.String("doc_id", doc.ID),
		zap.String("name", doc.OriginalName),
		zap.String("org_id", orgID),
	)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Document uploaded successfully",
		"document": documentJSON(doc),
	})
}

// Process runs ingestion for a document.
func (h *DocumentHandler) Process(c *fiber.Ctx) error {
	return h.runIngestion(c, h.processor.Process)
}

// Reprocess forces a fresh ingestion attempt, including for completed
// documents.
func (h *DocumentHandler) Reprocess(c *fiber.Ctx) error {
	return h.runIngestion(c, h.processor.Reprocess)
}

func (h *DocumentHandler) runIngestion(c *fiber.Ctx, run func(ctx context.Context, id string) (*models.Document, error)) error {
	_, orgID, ok := principal(c)
	if !ok {
		return unauthorized(c)
	}

	documentID := c.Params("id")

	doc, err := h.store.GetDocument(c.Context(), documentID)
	if err != nil || doc.OrganizationID != orgID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Document not found",
		})
	}

	processed, err := run(c.Context(), documentID)
	if err != nil {
		return h.ingestionError(c, documentID, err)
	}

	return c.JSON(fiber.Map{
		"message":  "Document processed successfully",
		"document": documentJSON(processed),
	})
}

func (h *DocumentHandler) ingestionError(c *fiber.Ctx, documentID string, err error) error {
	logger.Error("Document processing failed",
		zap.String("doc_id", documentID), zap.Error(err))

	switch {
	case errors.Is(err, models.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Document not found",
		})
	case errors.Is(err, ingestion.ErrProcessingConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Document is already being processed",
		})
	default:
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":  "Document processing failed",
			"detail": err.Error(),
		})
	}
}

// List returns the organization's documents with optional status and
// language filters.
func (h *DocumentHandler) List(c *fiber.Ctx) error {
	_, orgID, ok := principal(c)
	if !ok {
		return unauthorized(c)
	}

	limit := c.QueryInt("limit", 50)
	offset := c.QueryInt("offset", 0)

	docs, err := h.store.ListDocuments(c.Context(), orgID, c.Query("status"), c.Query("language"), limit, offset)
	if err != nil {
		logger.Error("Failed to list documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list documents",
		})
	}

	out := make([]fiber.Map, 0, len(docs))
	for i := range docs {
		out = append(out, documentJSON(&docs[i]))
	}

	return c.JSON(fiber.Map{
		"documents": out,
		"count":     len(out),
	})
}

// Search scores the organization's processed documents against the query.
func (h *DocumentHandler) Search(c *fiber.Ctx) error {
	_, orgID, ok := principal(c)
	if !ok {
		return unauthorized(c)
	}

	var req struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Limit <= 0 {
		req.Limit = h.searchLimit
	}

	corpus, err := h.store.ListCompletedDocuments(c.Context(), orgID, searchCorpusLimit)
	if err != nil {
		logger.Error("Failed to load search corpus", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Search failed",
		})
	}

	results := h.retriever.Search(corpus, req.Query, req.Limit)

	metrics.SearchRequests.Inc()
	metrics.SearchResultsCount.Observe(float64(len(results)))

	out := make([]fiber.Map, 0, len(results))
	for _, r := range results {
		out = append(out, fiber.Map{
			"id":         r.Document.ID,
			"filename":   r.Document.OriginalName,
			"relevance":  r.Score,
			"excerpt":    r.Excerpt,
			"created_at": r.Document.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{
		"results": out,
		"query":   req.Query,
		"count":   len(out),
	})
}

func documentJSON(doc *models.Document) fiber.Map {
	return fiber.Map{
		"id":                 doc.ID,
		"organization_id":    doc.OrganizationID,
		"filename":           doc.Filename,
		"original_name":      doc.OriginalName,
		"file_type":          doc.FileType,
		"file_size":          doc.FileSize,
		"processing_status":  doc.Status,
		"extracted_metadata": doc.Metadata,
		"language":           doc.Language,
		"uploaded_by":        doc.UploadedBy,
		"created_at":         doc.CreatedAt,
		"updated_at":         doc.UpdatedAt,
	}
}
