package blob

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store for tests and dry runs.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]map[string]memObject

	PingErr      error
	FailList     map[string]error // keyed by bucket or bucket/prefix
	FailDownload map[string]error // keyed by bucket/path
	FailUpload   map[string]error // keyed by bucket/path
	FailRemove   map[string]error // keyed by bucket
}

type memObject struct {
	data        []byte
	contentType string
}

func NewMemory() *Memory {
	return &Memory{buckets: map[string]map[string]memObject{}}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Ping(context.Context) error { return m.PingErr }

// Put stores an object directly, bypassing overwrite checks.
func (m *Memory) Put(bucket, path string, data []byte, contentType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.bucket(bucket)
	b[path] = memObject{data: append([]byte(nil), data...), contentType: contentType}
}

// ContentType reports the type an object was stored with.
func (m *Memory) ContentType(bucket, path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.buckets[bucket][path]
	return obj.contentType, ok
}

// Paths returns every object path in bucket, sorted.
func (m *Memory) Paths(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.buckets[bucket]))
	for p := range m.buckets[bucket] {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (m *Memory) bucket(name string) map[string]memObject {
	b, ok := m.buckets[name]
	if !ok {
		b = map[string]memObject{}
		m.buckets[name] = b
	}
	return b
}

func (m *Memory) List(ctx context.Context, bucket, prefix string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := bucket
	if prefix != "" {
		key = bucket + "/" + prefix
	}
	if err := m.FailList[key]; err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	keyPrefix := ""
	if prefix != "" {
		keyPrefix = strings.TrimSuffix(prefix, "/") + "/"
	}
	dirs := map[string]bool{}
	var entries []Entry
	for p, obj := range m.buckets[bucket] {
		if !strings.HasPrefix(p, keyPrefix) {
			continue
		}
		rest := strings.TrimPrefix(p, keyPrefix)
		if i := strings.Index(rest, "/"); i >= 0 {
			dirs[rest[:i]] = true
			continue
		}
		entries = append(entries, Entry{Name: rest, ID: p, Size: int64(len(obj.data))})
	}
	for d := range dirs {
		entries = append(entries, Entry{Name: d})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (m *Memory) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.FailDownload[bucket+"/"+path]; err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.buckets[bucket][path]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, path, ErrNotFound)
	}
	return append([]byte(nil), obj.data...), nil
}

func (m *Memory) Upload(ctx context.Context, bucket, path string, data []byte, contentType string, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.FailUpload[bucket+"/"+path]; err != nil {
		return err
	}
	if err := validPath(path); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.bucket(bucket)
	if _, exists := b[path]; exists && !overwrite {
		return fmt.Errorf("%s/%s: %w", bucket, path, ErrExists)
	}
	b[path] = memObject{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

func (m *Memory) Remove(ctx context.Context, bucket string, paths []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.FailRemove[bucket]; err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range paths {
		delete(m.buckets[bucket], p)
	}
	return nil
}
