package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/fitundfun/ffbackup/internal/config"
)

var (
	ErrNotFound = errors.New("object not found")
	ErrExists   = errors.New("object already exists")
)

// Entry is one item of a bucket listing. An entry without ID is a directory
// and has to be listed again to reach the files below it.
type Entry struct {
	Name string
	ID   string
	Size int64
}

func (e Entry) IsDir() bool { return e.ID == "" }

// Store is the file side of the platform as seen by backup and restore.
// Paths are relative to the bucket root and slash separated.
type Store interface {
	Name() string
	Ping(ctx context.Context) error
	List(ctx context.Context, bucket, prefix string) ([]Entry, error)
	Download(ctx context.Context, bucket, path string) ([]byte, error)
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string, overwrite bool) error
	Remove(ctx context.Context, bucket string, paths []string) error
}

// NewStore opens the configured blob store.
func NewStore(cfg config.BlobConfig) (Store, error) {
	switch cfg.Type {
	case "s3", "":
		if cfg.S3.Endpoint == "" {
			return nil, fmt.Errorf("blob.s3.endpoint is required")
		}
		return NewS3(cfg.S3)
	case "fs", "local":
		return NewFS(cfg.FS.Path), nil
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported blob store: %s", cfg.Type)
	}
}

// Join builds the bucket-relative path of a listed entry.
func Join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return strings.TrimSuffix(prefix, "/") + "/" + name
}

func validPath(p string) error {
	if p == "" || strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/") {
		return fmt.Errorf("invalid object path %q", p)
	}
	cleaned := path.Clean(p)
	if cleaned != p || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("invalid object path %q", p)
	}
	return nil
}
