package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// FS keeps each bucket as a directory under BasePath. It backs local
// development and tests.
type FS struct {
	BasePath string
}

func NewFS(path string) *FS {
	return &FS{BasePath: path}
}

func (f *FS) Name() string { return "fs" }

func (f *FS) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(f.BasePath)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", f.BasePath)
	}
	return nil
}

func (f *FS) target(bucket, path string) (string, error) {
	if err := validPath(bucket); err != nil {
		return "", err
	}
	if path == "" {
		return filepath.Join(f.BasePath, bucket), nil
	}
	if err := validPath(path); err != nil {
		return "", err
	}
	return filepath.Join(f.BasePath, bucket, filepath.FromSlash(path)), nil
}

func (f *FS) List(ctx context.Context, bucket, prefix string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := f.target(bucket, prefix)
	if err != nil {
		return nil, err
	}
	items, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name() < items[j].Name() })

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		if item.IsDir() {
			entries = append(entries, Entry{Name: item.Name()})
			continue
		}
		info, err := item.Info()
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Name: item.Name(), ID: Join(prefix, item.Name()), Size: info.Size()})
	}
	return entries, nil
}

func (f *FS) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target, err := f.target(bucket, path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s/%s: %w", bucket, path, ErrNotFound)
	}
	return data, err
}

func (f *FS) Upload(ctx context.Context, bucket, path string, data []byte, _ string, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := f.target(bucket, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	if !overwrite {
		if _, err := os.Stat(target); err == nil {
			return fmt.Errorf("%s/%s: %w", bucket, path, ErrExists)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func (f *FS) Remove(ctx context.Context, bucket string, paths []string) error {
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := f.target(bucket, p)
		if err != nil {
			return err
		}
		if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}
