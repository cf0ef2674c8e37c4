package core

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"deckforge.app/deck-backend/internal/store"
)

// ErrDisallowedExtension is returned when an upload's extension is not in the
// allow-list.
var ErrDisallowedExtension = errors.New("file extension not allowed")

// UploadService stores manually uploaded slide images and keeps a process-wide
// record of them. Records have no delete path.
type UploadService struct {
	uploadDir string
	allowed   map[string]bool

	mu     sync.Mutex
	images []store.UploadedImage
}

func NewUploadService(uploadDir string, allowedExtensions map[string]bool) (*UploadService, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", uploadDir, err)
	}
	return &UploadService{
		uploadDir: uploadDir,
		allowed:   allowedExtensions,
	}, nil
}

// SaveUpload validates the extension, writes the file under a timestamped name
// and records it. Nothing is stored when validation fails.
func (s *UploadService) SaveUpload(originalName string, r io.Reader) (*store.UploadedImage, error) {
	name := sanitizeFilename(originalName)

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" || !s.allowed[ext] {
		return nil, ErrDisallowedExtension
	}

	filename := fmt.Sprintf("%d_%s", time.Now().Unix(), name)
	path := filepath.Join(s.uploadDir, filename)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to close upload file: %w", err)
	}

	record := store.UploadedImage{
		Filename: filename,
		URL:      uploadPublicPath + "/" + filename,
		Path:     path,
	}

	s.mu.Lock()
	s.images = append(s.images, record)
	s.mu.Unlock()

	return &record, nil
}

// ListImages returns a copy of all upload records made in this process.
func (s *UploadService) ListImages() []store.UploadedImage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.UploadedImage, len(s.images))
	copy(out, s.images)
	return out
}

// sanitizeFilename keeps the base name and replaces anything outside
// [A-Za-z0-9._-] so uploads cannot escape the upload directory.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
