// Package storage keeps uploaded product images on the local filesystem.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// UploadsPath is the HTTP path prefix under which stored images are served.
const UploadsPath = "/uploads"

var (
	// ErrUnsupportedExtension is returned by Save for files outside the
	// allowed image extensions.
	ErrUnsupportedExtension = errors.New("unsupported image extension")
	// ErrInvalidName is returned for stored names that could escape the root.
	ErrInvalidName = errors.New("invalid stored image name")
)

var allowedExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"gif":  {},
	"webp": {},
}

var (
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	dotRuns     = regexp.MustCompile(`\.{2,}`)
)

// LocalImageStore writes images below Root and builds public URLs from BaseURL.
type LocalImageStore struct {
	root    string
	baseURL string
}

// NewLocalImageStore creates a store rooted at root. The directory is created
// lazily on the first Save.
func NewLocalImageStore(root, baseURL string) *LocalImageStore {
	return &LocalImageStore{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Root returns the storage directory.
func (s *LocalImageStore) Root() string {
	return s.root
}

// Allowed reports whether name carries an allowed image extension.
func (s *LocalImageStore) Allowed(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	_, ok := allowedExtensions[ext]
	return ok
}

// Save writes the content of r under a freshly generated name and returns
// that name.
func (s *LocalImageStore) Save(r io.Reader, originalName string) (string, error) {
	if !s.Allowed(originalName) {
		return "", fmt.Errorf("%q: %w", originalName, ErrUnsupportedExtension)
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	stored := strings.ReplaceAll(uuid.NewString(), "-", "") + "_" + SanitizeFilename(originalName)
	path := filepath.Join(s.root, stored)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create image file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write image file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close image file: %w", err)
	}
	return stored, nil
}

// Delete removes a stored image. A file that is already gone is not an error.
func (s *LocalImageStore) Delete(storedName string) error {
	path, err := s.Path(storedName)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete image %s: %w", storedName, err)
	}
	return nil
}

// ResolveURL returns the public address of a stored image.
func (s *LocalImageStore) ResolveURL(storedName string) string {
	return s.baseURL + UploadsPath + "/" + storedName
}

// Path maps a stored name to its location on disk.
func (s *LocalImageStore) Path(storedName string) (string, error) {
	if storedName == "" || storedName == "." || storedName == ".." ||
		strings.ContainsAny(storedName, `/\`) || strings.Contains(storedName, "..") {
		return "", fmt.Errorf("%q: %w", storedName, ErrInvalidName)
	}
	return filepath.Join(s.root, storedName), nil
}

// SanitizeFilename reduces a client supplied name to a safe base name.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(name)
	name = unsafeChars.ReplaceAllString(name, "_")
	name = dotRuns.ReplaceAllString(name, ".")
	name = strings.TrimLeft(name, "._")
	if name == "" {
		return "image"
	}
	return name
}
