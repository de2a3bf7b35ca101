package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	// ErrTooLarge is returned when an upload exceeds the configured size.
	ErrTooLarge = errors.New("upload exceeds size limit")
	// ErrUnsupportedType is returned when sniffed content is not an accepted image.
	ErrUnsupportedType = errors.New("unsupported image type")
	// ErrEmpty is returned for zero-byte uploads.
	ErrEmpty = errors.New("empty upload")
)

// LocalStore writes uploads into a single flat directory.
type LocalStore struct {
	dir      string
	maxBytes int64
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir string, maxBytes int64) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: abs, maxBytes: maxBytes}, nil
}

// Dir is the absolute upload directory.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Save sniffs r, stores it under a fresh name owned by the kid, and returns the
// public URL path.
func (s *LocalStore) Save(r io.Reader, familyID, kidID uint) (string, error) {
	// Enforce the limit by reading one byte past it
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return "", ErrTooLarge
	}
	if len(data) == 0 {
		return "", ErrEmpty
	}

	detected := mimetype.Detect(data)
	ext, ok := allowedTypes[detected.String()]
	if !ok {
		return "", ErrUnsupportedType
	}

	name := fmt.Sprintf("family-%d-kid-%d-%s.%s", familyID, kidID, uuid.NewString(), ext)
	dst, err := s.resolve(name)
	if err != nil {
		return "", err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(out, bytes.NewReader(data)); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("close upload file: %w", err)
	}
	return PublicPrefix + name, nil
}

// resolve joins name onto the upload dir and refuses anything that escapes it.
func (s *LocalStore) resolve(name string) (string, error) {
	dst := filepath.Join(s.dir, name)
	rel, err := filepath.Rel(s.dir, dst)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || strings.ContainsRune(rel, filepath.Separator) {
		return "", fmt.Errorf("invalid upload path %q", name)
	}
	return dst, nil
}
