package restore

import (
	"encoding/json"
	"testing"

	"github.com/fitundfun/ffbackup/internal/archive"
)

func TestParseOptions(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Options
	}{
		{"empty", "", DefaultOptions()},
		{"malformed", "{restore_data:", DefaultOptions()},
		{"not an object", "[true]", DefaultOptions()},
		{"partial", `{"clear_existing":true}`, Options{RestoreData: true, RestoreStorage: true, ClearExisting: true}},
		{"data only", `{"restore_storage":false}`, Options{RestoreData: true}},
		{"all off", `{"restore_data":false,"restore_storage":false,"clear_existing":false}`, Options{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseOptions([]byte(tc.raw)); got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestReportEncodesEmptyLists(t *testing.T) {
	rep := newReport(archive.Manifest{Version: archive.FormatVersion})
	raw, err := json.Marshal(rep)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, key := range []string{"manifest", "restored_tables", "restored_files", "errors"} {
		if _, ok := doc[key]; !ok {
			t.Fatalf("missing key %s in %s", key, raw)
		}
	}
	if doc["errors"] == nil {
		t.Fatalf("errors encoded as null")
	}
	rep.addError("restore %s: %s", "lager", "boom")
	rep.addFile("pdfs", "a.pdf")
	if rep.OK() || rep.Errors[0] != "restore lager: boom" || rep.RestoredFiles[0] != "pdfs/a.pdf" {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"a.jpg":       "image/jpeg",
		"b.JPEG":      "image/jpeg",
		"c.webp":      "image/webp",
		"d.gif":       "image/gif",
		"docs/e.pdf":  "application/pdf",
		"f.json":      "application/json",
		"g.txt":       "text/plain",
		"noext":       "application/octet-stream",
		"archive.tar": "application/octet-stream",
	}
	for name, want := range cases {
		if got := ContentType(name); got != want {
			t.Fatalf("%s: expected %s, got %s", name, want, got)
		}
	}
}
