package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/vivi-ai/backend/internal/storage/models"
	"github.com/vivi-ai/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS organizations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT UNIQUE NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		original_name TEXT NOT NULL,
		file_path TEXT NOT NULL,
		file_type TEXT,
		file_size INTEGER,
		processing_status TEXT NOT NULL DEFAULT 'pending',
		content TEXT,
		embedding TEXT,
		extracted_metadata TEXT,
		language TEXT DEFAULT 'en',
		uploaded_by TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (organization_id) REFERENCES organizations(id)
	);
	CREATE INDEX IF NOT EXISTS idx_documents_org ON documents(organization_id);
	CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(processing_status);
	CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		organization_id TEXT NOT NULL,
		session_name TEXT NOT NULL DEFAULT 'New Chat',
		language TEXT DEFAULT 'en',
		is_active INTEGER NOT NULL DEFAULT 1,
		last_interaction INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (organization_id) REFERENCES organizations(id)
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON chat_sessions(user_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_org ON chat_sessions(organization_id);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		language TEXT,
		model TEXT,
		tokens INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES chat_sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON chat_messages(session_id);
	CREATE INDEX IF NOT EXISTS idx_messages_created ON chat_messages(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertOrganization(ctx context.Context, org *models.Organization) error {
	query := `INSERT INTO organizations (id, name, slug, is_active, created_at) VALUES (?, ?, ?, ?, ?)`

	isActive := 0
	if org.IsActive {
		isActive = 1
	}

	_, err := c.db.ExecContext(ctx, query, org.ID, org.Name, org.Slug, isActive, org.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert organization: %w", err)
	}

	return nil
}

func (c *Client) GetOrganization(ctx context.Context, id string) (*models.Organization, error) {
	query := `SELECT id, name, slug, is_active, created_at FROM organizations WHERE id = ?`

	var org models.Organization
	var isActive int
	var createdAt int64

	err := c.db.QueryRowContext(ctx, query, id).Scan(&org.ID, &org.Name, &org.Slug, &isActive, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	org.IsActive = isActive == 1
	org.CreatedAt = time.Unix(createdAt, 0)

	return &org, nil
}

func (c *Client) InsertDocument(ctx context.Context, doc *models.Document) error {
	query := `
		INSERT INTO documents (id, organization_id, filename, original_name, file_path, file_type,
			file_size, processing_status, language, uploaded_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.OrganizationID,
		doc.Filename,
		doc.OriginalName,
		doc.FilePath,
		doc.FileType,
		doc.FileSize,
		doc.Status,
		doc.Language,
		doc.UploadedBy,
		doc.CreatedAt.Unix(),
		doc.UpdatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	logger.Debug("Document inserted", zap.String("doc_id", doc.ID), zap.String("name", doc.OriginalName))
	return nil
}

func (c *Client) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	query := `
		SELECT id, organization_id, filename, original_name, file_path, file_type, file_size,
			processing_status, content, embedding, extracted_metadata, language, uploaded_by,
			created_at, updated_at
		FROM documents WHERE id = ?
	`

	row := c.db.QueryRowContext(ctx, query, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return doc, nil
}

// ClaimProcessing atomically transitions a document from pending or failed to
// processing. It returns false when the document is already processing,
// completed, or absent; the caller decides what that means after reloading.
func (c *Client) ClaimProcessing(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE documents
		SET processing_status = ?, updated_at = ?
		WHERE id = ? AND processing_status IN (?, ?)
	`

	res, err := c.db.ExecContext(ctx, query,
		models.StatusProcessing, time.Now().Unix(), id, models.StatusPending, models.StatusFailed)
	if err != nil {
		return false, fmt.Errorf("failed to claim document: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return n == 1, nil
}

// ClaimReprocessing is the forced variant: it claims a document in any
// terminal or pending state. Only an in-flight processing row blocks it.
func (c *Client) ClaimReprocessing(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE documents
		SET processing_status = ?, updated_at = ?
		WHERE id = ? AND processing_status != ?
	`

	res, err := c.db.ExecContext(ctx, query,
		models.StatusProcessing, time.Now().Unix(), id, models.StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("failed to claim document: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return n == 1, nil
}

func (c *Client) MarkDocumentCompleted(ctx context.Context, id, content string, embedding []float32, metadata map[string]interface{}) error {
	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		UPDATE documents
		SET processing_status = ?, content = ?, embedding = ?, extracted_metadata = ?, updated_at = ?
		WHERE id = ?
	`

	_, err = c.db.ExecContext(ctx, query,
		models.StatusCompleted, content, string(embeddingJSON), string(metadataJSON), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark document completed: %w", err)
	}

	logger.Info("Document completed", zap.String("doc_id", id))
	return nil
}

// MarkDocumentFailed records the terminal failure. A failed document keeps
// only the failure metadata; content and embedding from any earlier completed
// run are cleared so a reprocess that fails never leaves stale results behind.
func (c *Client) MarkDocumentFailed(ctx context.Context, id, reason string) error {
	metadata := map[string]interface{}{
		"error":     reason,
		"failed_at": time.Now().UTC().Format(time.RFC3339),
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		UPDATE documents
		SET processing_status = ?, content = NULL, embedding = NULL, extracted_metadata = ?, updated_at = ?
		WHERE id = ?
	`

	_, err = c.db.ExecContext(ctx, query, models.StatusFailed, string(metadataJSON), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark document failed: %w", err)
	}

	logger.Warn("Document failed", zap.String("doc_id", id), zap.String("reason", reason))
	return nil
}

// ListCompletedDocuments returns the most recently created completed documents
// for an organization, newest first.
func (c *Client) ListCompletedDocuments(ctx context.Context, orgID string, limit int) ([]models.Document, error) {
	query := `
		SELECT id, organization_id, filename, original_name, file_path, file_type, file_size,
			processing_status, content, embedding, extracted_metadata, language, uploaded_by,
			created_at, updated_at
		FROM documents
		WHERE organization_id = ? AND processing_status = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, orgID, models.StatusCompleted, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list completed documents: %w", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

func (c *Client) ListDocuments(ctx context.Context, orgID, status, language string, limit, offset int) ([]models.Document, error) {
	query := `
		SELECT id, organization_id, filename, original_name, file_path, file_type, file_size,
			processing_status, content, embedding, extracted_metadata, language, uploaded_by,
			created_at, updated_at
		FROM documents
		WHERE organization_id = ?
	`
	args := []interface{}{orgID}

	if status != "" {
		query += " AND processing_status = ?"
		args = append(args, status)
	}
	if language != "" {
		query += " AND language = ?"
		args = append(args, language)
	}

	query += " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

func (c *Client) InsertSession(ctx context.Context, session *models.ChatSession) error {
	query := `
		INSERT INTO chat_sessions (id, user_id, organization_id, session_name, language, is_active,
			last_interaction, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	isActive := 0
	if session.IsActive {
		isActive = 1
	}

	_, err := c.db.ExecContext(
		ctx,
		query,
		session.ID,
		session.UserID,
		session.OrganizationID,
		session.Name,
		session.Language,
		isActive,
		session.LastInteraction.Unix(),
		session.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

// GetSessionForUser loads a session only when it belongs to the given user and
// organization. Anything else reads as not found.
func (c *Client) GetSessionForUser(ctx context.Context, sessionID, userID, orgID string) (*models.ChatSession, error) {
	query := `
		SELECT id, user_id, organization_id, session_name, language, is_active, last_interaction, created_at
		FROM chat_sessions
		WHERE id = ? AND user_id = ? AND organization_id = ?
	`

	var s models.ChatSession
	var isActive int
	var lastInteraction, createdAt int64

	err := c.db.QueryRowContext(ctx, query, sessionID, userID, orgID).Scan(
		&s.ID, &s.UserID, &s.OrganizationID, &s.Name, &s.Language, &isActive, &lastInteraction, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	s.IsActive = isActive == 1
	s.LastInteraction = time.Unix(lastInteraction, 0)
	s.CreatedAt = time.Unix(createdAt, 0)

	return &s, nil
}

func (c *Client) ListSessions(ctx context.Context, userID, orgID string) ([]models.ChatSession, error) {
	query := `
		SELECT id, user_id, organization_id, session_name, language, is_active, last_interaction, created_at
		FROM chat_sessions
		WHERE user_id = ? AND organization_id = ?
		ORDER BY last_interaction DESC
	`

	rows, err := c.db.QueryContext(ctx, query, userID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.ChatSession
	for rows.Next() {
		var s models.ChatSession
		var isActive int
		var lastInteraction, createdAt int64

		err := rows.Scan(&s.ID, &s.UserID, &s.OrganizationID, &s.Name, &s.Language, &isActive, &lastInteraction, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		s.IsActive = isActive == 1
		s.LastInteraction = time.Unix(lastInteraction, 0)
		s.CreatedAt = time.Unix(createdAt, 0)
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

func (c *Client) TouchSession(ctx context.Context, sessionID string) error {
	query := `UPDATE chat_sessions SET last_interaction = ? WHERE id = ?`

	_, err := c.db.ExecContext(ctx, query, time.Now().Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	return nil
}

func (c *Client) InsertMessage(ctx context.Context, msg *models.ChatMessage) error {
	query := `
		INSERT INTO chat_messages (id, session_id, role, content, language, model, tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(
		ctx,
		query,
		msg.ID,
		msg.SessionID,
		msg.Role,
		msg.Content,
		msg.Language,
		msg.Model,
		msg.Tokens,
		msg.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	return nil
}

// ListRecentMessages returns the N most recent messages of a session in
// chronological order. Rowid breaks ties within the same second so read-back
// always matches insertion order.
func (c *Client) ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]models.ChatMessage, error) {
	query := `
		SELECT id, session_id, role, content, language, model, tokens, created_at
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		var createdAt int64

		err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Language, &m.Model, &m.Tokens, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		m.CreatedAt = time.Unix(createdAt, 0)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (c *Client) CountMessages(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_messages WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row scanner) (*models.Document, error) {
	var doc models.Document
	var content, embedding, metadata sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(
		&doc.ID,
		&doc.OrganizationID,
		&doc.Filename,
		&doc.OriginalName,
		&doc.FilePath,
		&doc.FileType,
		&doc.FileSize,
		&doc.Status,
		&content,
		&embedding,
		&metadata,
		&doc.Language,
		&doc.UploadedBy,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Content = content.String
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &doc.Embedding); err != nil {
			logger.Warn("Failed to decode stored embedding",
				zap.String("doc_id", doc.ID), zap.Error(err))
		}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &doc.Metadata); err != nil {
			logger.Warn("Failed to decode stored metadata",
				zap.String("doc_id", doc.ID), zap.Error(err))
		}
	}
	doc.CreatedAt = time.Unix(createdAt, 0)
	doc.UpdatedAt = time.Unix(updatedAt, 0)

	return &doc, nil
}

func collectDocuments(rows *sql.Rows) ([]models.Document, error) {
	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}
