package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist or is not visible
// to the requesting principal.
var ErrNotFound = errors.New("record not found")

// Document processing statuses. Transitions are monotonic per attempt:
// pending -> processing -> completed|failed. A failed document may be
// resubmitted, restarting at processing.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Chat message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// AllowedMIMETypes is the upload allowlist. Files outside this set are
// rejected before any Document row is created.
var AllowedMIMETypes = map[string]bool{
	"application/pdf": true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"text/plain": true,
	"text/html":  true,
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
}

type Organization struct {
	ID        string
	Name      string
	Slug      string
	IsActive  bool
	CreatedAt time.Time
}

type Document struct {
	ID             string
	OrganizationID string
	Filename       string
	OriginalName   string
	FilePath       string
	FileType       string
	FileSize       int64
	Status         string
	Content        string
	Embedding      []float32
	Metadata       map[string]interface{}
	Language       string
	UploadedBy     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type ChatSession struct {
	ID              string
	UserID          string
	OrganizationID  string
	Name            string
	Language        string
	IsActive        bool
	LastInteraction time.Time
	CreatedAt       time.Time
}

type ChatMessage struct {
	ID        string
	SessionID string
	Role      string
	Content   string
	Language  string
	Model     string
	Tokens    int
	CreatedAt time.Time
}
