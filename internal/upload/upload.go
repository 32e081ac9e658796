// Package upload validates photo uploads and manages their on-disk lifetime.
// Saved files are scoped resources: callers must invoke the returned cleanup
// on every exit path so no request leaks disk space.
package upload

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MaxBytes is the upload size cap.
const MaxBytes = 5 << 20 // 5 MB

// Validation failures, mapped to 400 before any policy logic runs.
var (
	ErrMissingPhoto = errors.New("photo file is required")
	ErrInvalidType  = errors.New("only .jpg, .jpeg and .png images are allowed")
	ErrTooLarge     = errors.New("photo exceeds the 5 MB limit")
)

var allowedExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// Saver writes validated uploads into a temp directory.
type Saver struct {
	dir string
}

// NewSaver ensures the upload directory exists.
func NewSaver(dir string) (*Saver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Saver{dir: dir}, nil
}

// Save validates and stores the uploaded photo, returning its path and a
// cleanup that removes the file. cleanup is safe to call more than once.
func (s *Saver) Save(fh *multipart.FileHeader) (string, func(), error) {
	if fh == nil {
		return "", nil, ErrMissingPhoto
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowedExts[ext] {
		return "", nil, ErrInvalidType
	}
	if fh.Size > MaxBytes {
		return "", nil, ErrTooLarge
	}

	src, err := fh.Open()
	if err != nil {
		return "", nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	path := filepath.Join(s.dir, uuid.NewString()+ext)
	dst, err := os.Create(path)
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}

	cleanup := func() { _ = os.Remove(path) }
	return path, cleanup, nil
}

// IsValidationError reports whether err is one of the upload validation
// failures.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrMissingPhoto) || errors.Is(err, ErrInvalidType) || errors.Is(err, ErrTooLarge)
}
