package blob

import (
	"context"
	"errors"
	"testing"

	"github.com/fitundfun/ffbackup/internal/config"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if err := s.Upload(ctx, "pdfs", "docs/plan.pdf", []byte("plan"), "application/pdf", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Upload(ctx, "pdfs", "docs/plan.pdf", []byte("again"), "application/pdf", false); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if err := s.Upload(ctx, "pdfs", "docs/plan.pdf", []byte("v2"), "application/pdf", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := s.Download(ctx, "pdfs", "docs/plan.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "v2" {
		t.Fatalf("unexpected content: %q", data)
	}

	top, err := s.List(ctx, "pdfs", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(top) != 1 || !top[0].IsDir() || top[0].Name != "docs" {
		t.Fatalf("unexpected listing: %+v", top)
	}
	inner, err := s.List(ctx, "pdfs", "docs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inner) != 1 || inner[0].IsDir() || inner[0].Size != 2 {
		t.Fatalf("unexpected listing: %+v", inner)
	}

	if err := s.Remove(ctx, "pdfs", []string{"docs/plan.pdf"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Download(ctx, "pdfs", "docs/plan.pdf"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestFSStore(t *testing.T) {
	exerciseStore(t, NewFS(t.TempDir()))
}

func TestFSRejectsEscapingPaths(t *testing.T) {
	s := NewFS(t.TempDir())
	if err := s.Upload(context.Background(), "images", "../secret", []byte("x"), "", true); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMemoryKeepsContentType(t *testing.T) {
	m := NewMemory()
	if err := m.Upload(context.Background(), "images", "a.svg", []byte("<svg/>"), "image/svg+xml", false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct, _ := m.ContentType("images", "a.svg"); ct != "image/svg+xml" {
		t.Fatalf("unexpected content type: %s", ct)
	}
}

func TestNewStore(t *testing.T) {
	if _, err := NewStore(config.BlobConfig{Type: "memory"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewStore(config.BlobConfig{Type: "s3"}); err == nil {
		t.Fatalf("expected missing endpoint error")
	}
	if _, err := NewStore(config.BlobConfig{Type: "ftp"}); err == nil {
		t.Fatalf("expected unsupported error")
	}
	s, err := NewStore(config.BlobConfig{Type: "s3", S3: config.BlobS3{Endpoint: "http://localhost:9000", PathStyle: true}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Name() != "s3" {
		t.Fatalf("unexpected store: %s", s.Name())
	}
}
