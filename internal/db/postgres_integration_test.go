//go:build integration

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/fitundfun/ffbackup/internal/schema"
)

const integrationSchema = `
CREATE TABLE lagerhaus (id uuid PRIMARY KEY, name text NOT NULL);
CREATE TABLE lager (
    id uuid PRIMARY KEY,
    jahr integer NOT NULL,
    titel text NOT NULL,
    ist_aktuell boolean NOT NULL DEFAULT false,
    lagerhaus_id uuid REFERENCES lagerhaus (id),
    meta jsonb
);`

func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("site"),
		postgres.WithUsername("service_role"),
		postgres.WithPassword("secret"),
		testcontainers.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(2*time.Minute)),
	)
	if err != nil {
		t.Fatalf("could not start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := conn.ExecContext(ctx, integrationSchema); err != nil {
		t.Fatalf("schema: %v", err)
	}
	store := NewPostgresFromDB(conn)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPostgresRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestPostgres(t)

	houseID := "6f1c2a9e-7a59-4f5a-9d0a-3b1f1d9c0001"
	campID := "6f1c2a9e-7a59-4f5a-9d0a-3b1f1d9c0002"
	if err := s.Upsert(ctx, "lagerhaus", []Row{{"id": houseID, "name": "Brigels"}}, schema.PrimaryKey); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	camp := Row{
		"id":           campID,
		"jahr":         json.Number("2025"),
		"titel":        "Skilager",
		"ist_aktuell":  true,
		"lagerhaus_id": houseID,
		"meta":         map[string]any{"plaetze": json.Number("40")},
	}
	for i := 0; i < 2; i++ {
		if err := s.Upsert(ctx, "lager", []Row{camp}, schema.PrimaryKey); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	rows, err := s.SelectAll(ctx, "lager")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	if rows[0]["titel"] != "Skilager" || rows[0]["jahr"] != json.Number("2025") {
		t.Fatalf("unexpected row: %v", rows[0])
	}

	if err := s.Delete(ctx, "lager", All()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, _ = s.SelectAll(ctx, "lager")
	if len(rows) != 0 {
		t.Fatalf("expected empty table after delete, got %d", len(rows))
	}
}
