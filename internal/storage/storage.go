package storage

import (
	"context"
	"errors"
	"io"
	"sort"
	"time"
)

var ErrNotFound = errors.New("archive not found")

// ObjectInfo describes one stored archive.
type ObjectInfo struct {
	Key      string            `json:"key" yaml:"key"`
	Size     int64             `json:"size" yaml:"size"`
	Modified time.Time         `json:"modified" yaml:"modified"`
	ETag     string            `json:"etag,omitempty" yaml:"etag,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Storage keeps archives produced by the CLI.
type Storage interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, metadata map[string]string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// SortNewestFirst orders archives by modification time, newest first.
func SortNewestFirst(objects []ObjectInfo) {
	sort.SliceStable(objects, func(i, j int) bool {
		if objects[i].Modified.Equal(objects[j].Modified) {
			return objects[i].Key > objects[j].Key
		}
		return objects[i].Modified.After(objects[j].Modified)
	})
}
