package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrTooLarge        = errors.New("image is too large")
	ErrUnsupportedType = errors.New("only PNG, JPEG, GIF and WebP images are allowed")
)

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImageStore keeps uploaded profile images and returns a URL to show them.
type ImageStore interface {
	Save(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// ReadImage reads at most maxBytes from r, sniffs the content type and builds
// a fresh file name for it.
func ReadImage(r io.Reader, maxBytes int64) (data []byte, contentType, name string, err error) {
	data, err = io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, "", "", ErrTooLarge
	}
	contentType = http.DetectContentType(data)
	ext, ok := extensions[contentType]
	if !ok {
		return nil, "", "", ErrUnsupportedType
	}
	return data, contentType, uuid.NewString() + ext, nil
}

// LocalStore writes images under Dir and serves them from URLPrefix.
type LocalStore struct {
	Dir       string
	URLPrefix string
}

func NewLocalStore(dir, urlPrefix string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}
	return &LocalStore{Dir: dir, URLPrefix: urlPrefix}, nil
}

func (s *LocalStore) Save(_ context.Context, name, _ string, data []byte) (string, error) {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid image name")
	}
	dst := filepath.Join(s.Dir, name)
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create image file: %w", err)
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("failed to write image file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close image file: %w", err)
	}
	return path.Join(s.URLPrefix, name), nil
}
