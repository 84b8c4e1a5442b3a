// Package storage stores uploaded blobs (completion photos, avatars) and
// hands back a URL they can be fetched from.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MaxObjectSize bounds a single upload.
const MaxObjectSize = 10 << 20

var (
	ErrEmptyObject   = errors.New("empty object")
	ErrObjectTooBig  = errors.New("object too large")
	ErrInvalidObjKey = errors.New("invalid object key")
)

// ObjectStore stores bytes under a key and returns a public URL.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Local is an ObjectStore on the local filesystem, served under baseURL.
type Local struct {
	dir     string
	baseURL string
}

func NewLocal(dir, baseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir %q: %w", dir, err)
	}
	return &Local{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (l *Local) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrEmptyObject
	}
	if len(data) > MaxObjectSize {
		return "", ErrObjectTooBig
	}
	clean := path.Clean("/" + key)[1:]
	if clean == "" || clean != key {
		return "", fmt.Errorf("%w: %q", ErrInvalidObjKey, key)
	}

	dst := filepath.Join(l.dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("commit object: %w", err)
	}
	return l.baseURL + "/" + clean, nil
}

// PhotoKey names a fresh object for a completion photo.
func PhotoKey(userID, taskID uint, contentType string) string {
	return fmt.Sprintf("photos/%d/%d/%s%s", userID, taskID, uuid.NewString(), extension(contentType))
}

// AvatarKey names a fresh object for a user avatar.
func AvatarKey(userID uint, contentType string) string {
	return fmt.Sprintf("avatars/%d/%s%s", userID, uuid.NewString(), extension(contentType))
}

func extension(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "image/heic":
		return ".heic"
	}
	return ".bin"
}
