package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fitundfun/ffbackup/internal/archive"
	"github.com/fitundfun/ffbackup/internal/config"
	"github.com/fitundfun/ffbackup/internal/restore"
)

func TestApplyOverrides(t *testing.T) {
	cfg := &config.Config{}
	applyOverrides(cfg, &rootFlags{LogLevel: "debug"}, &overrideFlags{
		DBType:      "SQLite",
		SQLitePath:  "/tmp/site.db",
		BlobType:    "FS",
		BlobPath:    "/tmp/buckets",
		Storage:     "S3",
		S3Bucket:    "archives",
		S3PathStyle: "1",
	})
	if cfg.Global.LogLevel != "debug" || cfg.Database.Type != "sqlite" || cfg.Blob.Type != "fs" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Storage.Backend != "s3" || cfg.Storage.S3.Bucket != "archives" || !cfg.Storage.S3.ForcePathStyle {
		t.Fatalf("unexpected storage config: %+v", cfg.Storage)
	}
}

func TestPrintResultYAML(t *testing.T) {
	rep := &restore.Report{
		Manifest:       archive.Manifest{Version: "1.0", CreatedBy: "admin@example.org"},
		RestoredTables: []string{"lager"},
		RestoredFiles:  []string{"images/a.png"},
		Errors:         []string{},
	}
	buf := &bytes.Buffer{}
	if err := printResult(buf, "yaml", rep); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "restored_tables:") || !strings.Contains(out, "created_by: admin@example.org") {
		t.Fatalf("unexpected yaml: %s", out)
	}
	if err := printResult(buf, "xml", rep); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
