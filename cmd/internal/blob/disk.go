// Package blob stores uploaded files on local disk under <root>/<category>/<name>.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".pdf":  "application/pdf",
}

// DiskStore keeps blobs as plain files.
type DiskStore struct {
	root       string
	publicBase string
}

// NewDiskStore creates root if needed. publicBase prefixes PublicURL results.
func NewDiskStore(root, publicBase string) (*DiskStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("blob: empty root")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("blob: create root: %w", err)
	}
	publicBase = "/" + strings.Trim(strings.TrimSpace(publicBase), "/")
	return &DiskStore{root: root, publicBase: publicBase}, nil
}

// Store writes data under a generated name that keeps the extension of originalName.
func (s *DiskStore) Store(ctx context.Context, data []byte, category, originalName string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyFile
	}
	if !validSegment(category) {
		return "", fmt.Errorf("%w: category %q", ErrInvalidName, category)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(s.root, category)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("blob: create category dir: %w", err)
	}

	name := uuid.NewString() + Extension(originalName)

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("blob: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("blob: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("blob: close: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return "", fmt.Errorf("blob: publish: %w", err)
	}
	return name, nil
}

// Load returns the bytes of category/filename.
func (s *DiskStore) Load(ctx context.Context, category, filename string) ([]byte, error) {
	p, err := s.path(category, filename)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, category, filename)
	}
	if err != nil {
		return nil, fmt.Errorf("blob: read: %w", err)
	}
	return b, nil
}

// Delete removes category/filename and reports whether it existed.
func (s *DiskStore) Delete(ctx context.Context, category, filename string) (bool, error) {
	p, err := s.path(category, filename)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("blob: delete: %w", err)
	}
	return true, nil
}

// Exists reports whether category/filename is present.
func (s *DiskStore) Exists(category, filename string) bool {
	p, err := s.path(category, filename)
	if err != nil {
		return false
	}
	st, err := os.Stat(p)
	return err == nil && st.Mode().IsRegular()
}

// PublicURL is the path under which a stored blob is served.
func (s *DiskStore) PublicURL(category, filename string) string {
	return path.Join(s.publicBase, category, filename)
}

func (s *DiskStore) path(category, filename string) (string, error) {
	if !validSegment(category) {
		return "", fmt.Errorf("%w: category %q", ErrInvalidName, category)
	}
	if !validSegment(filename) {
		return "", fmt.Errorf("%w: filename %q", ErrInvalidName, filename)
	}
	return filepath.Join(s.root, category, filename), nil
}

func validSegment(s string) bool {
	return segmentPattern.MatchString(s) && !strings.Contains(s, "..")
}

// Extension returns the lower-cased extension of name, including the dot.
func Extension(name string) string {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(name)))
	if len(ext) < 2 || !segmentPattern.MatchString(ext[1:]) {
		return ""
	}
	return ext
}

// ContentType guesses a media type from the filename extension.
func ContentType(filename string) string {
	if ct, ok := contentTypes[Extension(filename)]; ok {
		return ct
	}
	return "application/octet-stream"
}
