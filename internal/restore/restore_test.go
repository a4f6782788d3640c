package restore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"

	"github.com/fitundfun/ffbackup/internal/archive"
	"github.com/fitundfun/ffbackup/internal/backup"
	"github.com/fitundfun/ffbackup/internal/blob"
	"github.com/fitundfun/ffbackup/internal/db"
	"github.com/fitundfun/ffbackup/internal/schema"
)

func newRestorer(tables db.Store, blobs blob.Store) *Restorer {
	return &Restorer{Tables: tables, Blobs: blobs, Log: zerolog.Nop(), Concurrency: 2}
}

func buildArchive(t *testing.T, tables []archive.Table, blobs []archive.Blob) []byte {
	t.Helper()
	m := archive.NewManifest("admin@example.org", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	for _, tb := range tables {
		m.Tables = append(m.Tables, tb.Name)
	}
	seen := map[string]bool{}
	for _, b := range blobs {
		if !seen[b.Bucket] {
			seen[b.Bucket] = true
			m.StorageBuckets = append(m.StorageBuckets, b.Bucket)
		}
	}
	data, err := archive.EncodeBytes(m, tables, blobs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return data
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := db.NewMemory()
	src.Seed("lagerhaus", db.Row{"id": "h1", "name": "Haus am See"})
	src.Seed("lager", db.Row{"id": "c1", "titel": "Sommerlager", "jahr": json.Number("2024"), "lagerhaus_id": "h1"})
	src.Seed("lager_downloads", db.Row{"id": "d1", "lager_id": "c1", "titel": "Packliste", "datei_url": "pdfs/packliste.pdf"})
	srcBlobs := blob.NewMemory()
	srcBlobs.Put("images", "camps/2024/hero.jpg", []byte("jpeg"), "image/jpeg")
	srcBlobs.Put("pdfs", "packliste.pdf", []byte("%PDF"), "application/pdf")

	producer := &backup.Producer{Tables: src, Blobs: srcBlobs, Log: zerolog.Nop()}
	snap, err := producer.Produce(ctx, schema.Tables, schema.Buckets, "admin@example.org")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := snap.EncodeBytes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dst := db.NewMemory()
	dst.EnforceReferences = true
	dstBlobs := blob.NewMemory()
	rep, err := newRestorer(dst, dstBlobs).Restore(ctx, data, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rep.OK() {
		t.Fatalf("unexpected errors: %v", rep.Errors)
	}
	if !reflect.DeepEqual(rep.RestoredTables, []string{"lagerhaus", "lager", "lager_downloads"}) {
		t.Fatalf("unexpected tables: %v", rep.RestoredTables)
	}
	if !reflect.DeepEqual(rep.RestoredFiles, []string{"images/camps/2024/hero.jpg", "pdfs/packliste.pdf"}) {
		t.Fatalf("unexpected files: %v", rep.RestoredFiles)
	}

	for _, table := range schema.Tables {
		want, _ := src.SelectAll(ctx, table)
		got, _ := dst.SelectAll(ctx, table)
		if len(want) != len(got) {
			t.Fatalf("table %s: want %d rows, got %d", table, len(want), len(got))
		}
	}
	camps, _ := dst.SelectAll(ctx, "lager")
	if camps[0]["jahr"] != json.Number("2024") || camps[0]["lagerhaus_id"] != "h1" {
		t.Fatalf("unexpected row: %v", camps[0])
	}
	if ct, _ := dstBlobs.ContentType("images", "camps/2024/hero.jpg"); ct != "image/jpeg" {
		t.Fatalf("unexpected content type: %s", ct)
	}
}

func TestRestoreIsIdempotent(t *testing.T) {
	ctx := context.Background()
	data := buildArchive(t,
		[]archive.Table{{Name: "sponsoren", Rows: []map[string]any{{"id": "sp1", "name": "Bäckerei"}, {"id": "sp2", "name": "Metzgerei"}}}},
		[]archive.Blob{{Bucket: "images", Path: "logo.png", Data: []byte("png")}},
	)
	tables := db.NewMemory()
	blobs := blob.NewMemory()
	r := newRestorer(tables, blobs)
	for i := 0; i < 2; i++ {
		rep, err := r.Restore(ctx, data, DefaultOptions())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !rep.OK() {
			t.Fatalf("run %d: unexpected errors: %v", i, rep.Errors)
		}
	}
	rows, _ := tables.SelectAll(ctx, "sponsoren")
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if got := blobs.Paths("images"); !reflect.DeepEqual(got, []string{"logo.png"}) {
		t.Fatalf("unexpected files: %v", got)
	}
}

func TestRestoreLagerClearExisting(t *testing.T) {
	ctx := context.Background()
	data := buildArchive(t, []archive.Table{{Name: "lager", Rows: []map[string]any{
		{"id": "A", "titel": "Camp A"},
		{"id": "B", "titel": "Camp B"},
	}}}, nil)

	tables := db.NewMemory()
	tables.Seed("lager", db.Row{"id": "C", "titel": "Old camp"})
	opts := Options{RestoreData: true, ClearExisting: true}
	rep, err := newRestorer(tables, blob.NewMemory()).Restore(ctx, data, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(rep.RestoredTables, []string{"lager"}) || !rep.OK() {
		t.Fatalf("unexpected report: %+v", rep)
	}
	rows, _ := tables.SelectAll(ctx, "lager")
	var ids []string
	for _, row := range rows {
		ids = append(ids, row["id"].(string))
	}
	if !reflect.DeepEqual(ids, []string{"A", "B"}) {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestRestoreImagesContentTypes(t *testing.T) {
	ctx := context.Background()
	data := buildArchive(t, nil, []archive.Blob{
		{Bucket: "images", Path: "a.PNG", Data: []byte("1")},
		{Bucket: "images", Path: "sub/b.svg", Data: []byte("2")},
		{Bucket: "images", Path: "c.bin", Data: []byte("3")},
	})
	blobs := blob.NewMemory()
	rep, err := newRestorer(db.NewMemory(), blobs).Restore(ctx, data, Options{RestoreStorage: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"images/a.PNG", "images/sub/b.svg", "images/c.bin"}
	if !reflect.DeepEqual(rep.RestoredFiles, want) {
		t.Fatalf("unexpected files: %v", rep.RestoredFiles)
	}
	types := map[string]string{"a.PNG": "image/png", "sub/b.svg": "image/svg+xml", "c.bin": "application/octet-stream"}
	for p, ct := range types {
		if got, _ := blobs.ContentType("images", p); got != ct {
			t.Fatalf("%s: expected %s, got %s", p, ct, got)
		}
	}
}

func TestRestoreIsolatesMalformedTable(t *testing.T) {
	ctx := context.Background()
	data := buildArchive(t, []archive.Table{
		{Name: "settings", Rows: []map[string]any{{"id": "s1"}}},
		{Name: "sponsoren", Rows: []map[string]any{{"id": "sp1"}}},
	}, nil)

	rd, err := archive.Decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cases := map[string]string{
		"truncated":     `[{"id": "sp1",`,
		"trailing data": `[{"id": "sp1"}] }garbage`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			corrupt := corruptTable(t, rd, "sponsoren", content)
			tables := db.NewMemory()
			rep, err := newRestorer(tables, blob.NewMemory()).Restore(ctx, corrupt, Options{RestoreData: true})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(rep.RestoredTables, []string{"settings"}) {
				t.Fatalf("unexpected tables: %v", rep.RestoredTables)
			}
			if len(rep.Errors) != 1 || !strings.HasPrefix(rep.Errors[0], "restore sponsoren: parse data/sponsoren.json") {
				t.Fatalf("unexpected errors: %v", rep.Errors)
			}
			rows, _ := tables.SelectAll(ctx, "sponsoren")
			if len(rows) != 0 {
				t.Fatalf("malformed table was written: %v", rows)
			}
		})
	}
}

func TestRestoreReportsUpsertFailureAndContinues(t *testing.T) {
	ctx := context.Background()
	data := buildArchive(t, []archive.Table{
		{Name: "lagerhaus", Rows: []map[string]any{{"id": "h1"}}},
		{Name: "kontakt_nachrichten", Rows: []map[string]any{{"id": "k1"}}},
	}, nil)
	tables := db.NewMemory()
	tables.FailUpsert["lagerhaus"] = errors.New("violates check constraint")
	tables.FailDelete["lagerhaus"] = errors.New("permission denied")

	rep, err := newRestorer(tables, blob.NewMemory()).Restore(ctx, data, Options{RestoreData: true, ClearExisting: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"delete lagerhaus: permission denied", "restore lagerhaus: violates check constraint"}
	if !reflect.DeepEqual(rep.Errors, want) {
		t.Fatalf("unexpected errors: %v", rep.Errors)
	}
	if !reflect.DeepEqual(rep.RestoredTables, []string{"kontakt_nachrichten"}) {
		t.Fatalf("unexpected tables: %v", rep.RestoredTables)
	}
}

func TestRestoreSkipsEmptyTableWithoutClearing(t *testing.T) {
	ctx := context.Background()
	data := buildArchive(t, []archive.Table{{Name: "sponsoren", Rows: nil}}, nil)
	tables := db.NewMemory()
	tables.Seed("sponsoren", db.Row{"id": "keep"})

	rep, err := newRestorer(tables, blob.NewMemory()).Restore(ctx, data, Options{RestoreData: true, ClearExisting: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rep.RestoredTables) != 0 || !rep.OK() {
		t.Fatalf("unexpected report: %+v", rep)
	}
	rows, _ := tables.SelectAll(ctx, "sponsoren")
	if len(rows) != 1 {
		t.Fatalf("empty table file cleared existing rows")
	}
}

func TestRestoreClearsBucket(t *testing.T) {
	ctx := context.Background()
	data := buildArchive(t, nil, []archive.Blob{{Bucket: "pdfs", Path: "new.pdf", Data: []byte("new")}})
	blobs := blob.NewMemory()
	blobs.Put("pdfs", "old/stale.pdf", []byte("old"), "application/pdf")
	blobs.Put("images", "old.png", []byte("old"), "image/png")

	rep, err := newRestorer(db.NewMemory(), blobs).Restore(ctx, data, Options{RestoreStorage: true, ClearExisting: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rep.OK() {
		t.Fatalf("unexpected errors: %v", rep.Errors)
	}
	if got := blobs.Paths("pdfs"); !reflect.DeepEqual(got, []string{"new.pdf"}) {
		t.Fatalf("unexpected pdfs: %v", got)
	}
	if got := blobs.Paths("images"); len(got) != 0 {
		t.Fatalf("expected images to be cleared, got %v", got)
	}
}

func TestRestoreReportsClearFailureAndContinues(t *testing.T) {
	ctx := context.Background()
	data := buildArchive(t, nil, []archive.Blob{{Bucket: "images", Path: "a.jpg", Data: []byte("jpeg")}})
	blobs := blob.NewMemory()
	blobs.Put("images", "old.png", []byte("old"), "image/png")
	blobs.FailRemove = map[string]error{"images": errors.New("denied")}

	rep, err := newRestorer(db.NewMemory(), blobs).Restore(ctx, data, Options{RestoreStorage: true, ClearExisting: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(rep.Errors, []string{"clear bucket images: denied"}) {
		t.Fatalf("unexpected errors: %v", rep.Errors)
	}
	if !reflect.DeepEqual(rep.RestoredFiles, []string{"images/a.jpg"}) {
		t.Fatalf("unexpected files: %v", rep.RestoredFiles)
	}
	if got := blobs.Paths("images"); !reflect.DeepEqual(got, []string{"a.jpg", "old.png"}) {
		t.Fatalf("unexpected images: %v", got)
	}
}

func TestRestoreReportsUploadFailure(t *testing.T) {
	ctx := context.Background()
	data := buildArchive(t, nil, []archive.Blob{
		{Bucket: "pdfs", Path: "a.pdf", Data: []byte("a")},
		{Bucket: "pdfs", Path: "b.pdf", Data: []byte("b")},
	})
	blobs := blob.NewMemory()
	blobs.FailUpload = map[string]error{"pdfs/a.pdf": errors.New("quota exceeded")}

	rep, err := newRestorer(db.NewMemory(), blobs).Restore(ctx, data, Options{RestoreStorage: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(rep.Errors, []string{"upload pdfs/a.pdf: quota exceeded"}) {
		t.Fatalf("unexpected errors: %v", rep.Errors)
	}
	if !reflect.DeepEqual(rep.RestoredFiles, []string{"pdfs/b.pdf"}) {
		t.Fatalf("unexpected files: %v", rep.RestoredFiles)
	}
}

func TestRestoreRejectsInvalidArchive(t *testing.T) {
	_, err := newRestorer(db.NewMemory(), blob.NewMemory()).Restore(context.Background(), []byte("not a zip"), DefaultOptions())
	if !errors.Is(err, archive.ErrInvalidArchive) {
		t.Fatalf("expected ErrInvalidArchive, got %v", err)
	}

	tables := db.NewMemory()
	tables.PingErr = errors.New("refused")
	data := buildArchive(t, nil, nil)
	_, err = newRestorer(tables, blob.NewMemory()).Restore(context.Background(), data, DefaultOptions())
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

// corruptTable copies the archive with the data file of table replaced by
// content.
func corruptTable(t *testing.T, rd *archive.Reader, table, content string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, name := range rd.Names() {
		body, err := rd.ReadFile(name)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if name == archive.DataPath(table) {
			body = []byte(content)
		}
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := w.Write(body); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return buf.Bytes()
}
