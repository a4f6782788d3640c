package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/fitundfun/ffbackup/internal/config"
	"github.com/fitundfun/ffbackup/internal/db/migrations"
)

// SQLite is a local stand-in for the platform database, used for
// development and for rehearsing restores.
type SQLite struct {
	db   *sql.DB
	path string
}

func NewSQLite(cfg config.DatabaseConfig) (*SQLite, error) {
	if cfg.SQLitePath == "" {
		return nil, fmt.Errorf("sqlite_path is required")
	}
	conn, err := OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	if cfg.Migrate {
		if err := migrations.Up(conn); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return &SQLite{db: conn, path: cfg.SQLitePath}, nil
}

// OpenSQLite opens path with foreign keys enforced on every connection.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		dsn = "file:" + path
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	conn, err := sql.Open("sqlite3", dsn+sep+"_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps :memory: databases alive and serialises writers.
	conn.SetMaxOpenConns(1)
	return conn, nil
}

// Migrate applies the embedded schema.
func (s *SQLite) Migrate() error { return migrations.Up(s.db) }

func (s *SQLite) Name() string { return "sqlite" }

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) SelectAll(ctx context.Context, table string) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(table))
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []Row{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return out, nil
}

func (s *SQLite) Delete(ctx context.Context, table string, f Filter) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if err := checkFilter(f); err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s %s ?", quoteIdent(table), quoteIdent(f.Column), sqlOp(f.Op))
	if _, err := s.db.ExecContext(ctx, query, f.Value); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

// Upsert writes all rows in one transaction; a failing row rolls back the
// whole table.
func (s *SQLite) Upsert(ctx context.Context, table string, rows []Row, conflictKey string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, row := range rows {
		cols := columnsOf([]Row{row})
		args := make([]any, len(cols))
		for j, c := range cols {
			v, err := sqliteValue(row[c])
			if err != nil {
				return fmt.Errorf("upsert %s row %d column %s: %w", table, i, c, err)
			}
			args[j] = v
		}
		if _, err := tx.ExecContext(ctx, sqliteUpsertQuery(table, cols, conflictKey), args...); err != nil {
			return fmt.Errorf("upsert %s row %d: %w", table, i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// DB exposes the connection for migrations and tests.
func (s *SQLite) DB() *sql.DB { return s.db }

func sqliteUpsertQuery(table string, cols []string, conflictKey string) string {
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	var sets []string
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		marks[i] = "?"
		if c != conflictKey {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", quoted[i], quoted[i]))
		}
	}
	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		quoteIdent(table), strings.Join(quoted, ", "), strings.Join(marks, ", "), quoteIdent(conflictKey), action)
}

// sqliteValue maps JSON-decoded values onto types the driver accepts.
func sqliteValue(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		return val.Float64()
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	default:
		return val, nil
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
