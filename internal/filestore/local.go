// Package filestore persists uploaded document bytes on local disk.
package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vivi-ai/backend/pkg/logger"
)

type Store struct {
	baseDir string
}

func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// Save writes the bytes under a collision-free generated filename and returns
// the stored filename and full path.
func (s *Store) Save(data []byte, originalName string) (filename, path string, err error) {
	filename = fmt.Sprintf("%s_%d%s", uuid.New().String(), time.Now().UnixMilli(), filepath.Ext(originalName))
	path = filepath.Join(s.baseDir, filename)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write file: %w", err)
	}

	logger.Debug("File stored", zap.String("filename", filename), zap.Int("size", len(data)))
	return filename, path, nil
}

func (s *Store) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

func (s *Store) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (s *Store) Delete(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	logger.Info("File deleted", zap.String("path", path))
	return nil
}
