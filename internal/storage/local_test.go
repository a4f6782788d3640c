package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(t.TempDir())

	if err := l.Put(ctx, "nightly/a.zip", strings.NewReader("zipdata"), 7, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ok, err := l.Exists(ctx, "nightly/a.zip")
	if err != nil || !ok {
		t.Fatalf("expected archive to exist: %v", err)
	}
	rc, err := l.Get(ctx, "nightly/a.zip")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "zipdata" {
		t.Fatalf("unexpected content: %q", data)
	}

	objs, err := l.List(ctx, "nightly")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(objs) != 1 || objs[0].Key != "nightly/a.zip" || objs[0].Size != 7 {
		t.Fatalf("unexpected listing: %+v", objs)
	}

	if err := l.Delete(ctx, "nightly/a.zip"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := l.Stat(ctx, "nightly/a.zip"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalListMissingPrefix(t *testing.T) {
	objs, err := NewLocal(t.TempDir()).List(context.Background(), "nothing-here")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(objs) != 0 {
		t.Fatalf("expected empty listing, got %+v", objs)
	}
}

func TestLocalRejectsEscapingKey(t *testing.T) {
	l := NewLocal(t.TempDir())
	if err := l.Put(context.Background(), "../outside.zip", strings.NewReader("x"), 1, nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSortNewestFirst(t *testing.T) {
	now := time.Now()
	objs := []ObjectInfo{
		{Key: "old", Modified: now.Add(-time.Hour)},
		{Key: "new", Modified: now},
	}
	SortNewestFirst(objs)
	if objs[0].Key != "new" {
		t.Fatalf("unexpected order: %+v", objs)
	}
}
