package db

import "testing"

func TestUpsertQuery(t *testing.T) {
	got := upsertQuery("lager", []string{"id", "jahr", "titel"}, "id")
	want := `INSERT INTO "lager" ("id", "jahr", "titel") SELECT "id", "jahr", "titel" FROM json_populate_recordset(NULL::"lager", $1::json) ON CONFLICT ("id") DO UPDATE SET "jahr" = EXCLUDED."jahr", "titel" = EXCLUDED."titel"`
	if got != want {
		t.Fatalf("unexpected query:\n%s\nwant:\n%s", got, want)
	}
}

func TestUpsertQueryOnlyKey(t *testing.T) {
	got := upsertQuery("settings", []string{"id"}, "id")
	want := `INSERT INTO "settings" ("id") SELECT "id" FROM json_populate_recordset(NULL::"settings", $1::json) ON CONFLICT ("id") DO NOTHING`
	if got != want {
		t.Fatalf("unexpected query: %s", got)
	}
}

func TestUpsertQueryQuotesColumns(t *testing.T) {
	got := upsertQuery("lager", []string{`evil"col`, "id"}, "id")
	want := `INSERT INTO "lager" ("evil""col", "id") SELECT "evil""col", "id" FROM json_populate_recordset(NULL::"lager", $1::json) ON CONFLICT ("id") DO UPDATE SET "evil""col" = EXCLUDED."evil""col"`
	if got != want {
		t.Fatalf("unexpected query: %s", got)
	}
}
