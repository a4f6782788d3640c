package blob

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestWalkExpandsDirectories(t *testing.T) {
	mem := NewMemory()
	mem.Put("images", "logo.png", []byte("p"), "image/png")
	mem.Put("images", "2024/summer/a.jpg", []byte("a"), "image/jpeg")
	mem.Put("images", "2024/b.jpg", []byte("b"), "image/jpeg")

	files, err := Walk(context.Background(), mem, "images", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"2024/b.jpg", "2024/summer/a.jpg", "logo.png"}
	if !reflect.DeepEqual(files, want) {
		t.Fatalf("unexpected files: %v", files)
	}
}

func TestWalkEmptyBucket(t *testing.T) {
	files, err := Walk(context.Background(), NewMemory(), "pdfs", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected no files, got %v", files)
	}
}

func TestWalkTopLevelFailure(t *testing.T) {
	mem := NewMemory()
	mem.FailList = map[string]error{"images": errors.New("denied")}
	if _, err := Walk(context.Background(), mem, "images", nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestWalkNestedFailureIsReported(t *testing.T) {
	mem := NewMemory()
	mem.Put("pdfs", "ok.pdf", []byte("x"), "application/pdf")
	mem.Put("pdfs", "broken/x.pdf", []byte("x"), "application/pdf")
	mem.FailList = map[string]error{"pdfs/broken": errors.New("timeout")}

	var failed []string
	files, err := Walk(context.Background(), mem, "pdfs", func(prefix string, _ error) {
		failed = append(failed, prefix)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(files, []string{"ok.pdf"}) {
		t.Fatalf("unexpected files: %v", files)
	}
	if !reflect.DeepEqual(failed, []string{"broken"}) {
		t.Fatalf("unexpected failures: %v", failed)
	}
}

// loopStore lists the directory d twice and a parent reference inside it.
type loopStore struct {
	*Memory
	calls int
}

func (l *loopStore) List(_ context.Context, _, prefix string) ([]Entry, error) {
	l.calls++
	if prefix == "" {
		return []Entry{{Name: "d"}, {Name: "d"}}, nil
	}
	return []Entry{{Name: ".."}, {Name: "f", ID: "1"}}, nil
}

func TestWalkTerminates(t *testing.T) {
	store := &loopStore{Memory: NewMemory()}
	files, err := Walk(context.Background(), store, "images", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 1 || files[0] != "d/f" || store.calls != 2 {
		t.Fatalf("unexpected walk: files=%v calls=%d", files, store.calls)
	}
}
