package db

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/fitundfun/ffbackup/internal/config"
)

// Postgres talks to the platform database directly with a service-role
// connection string.
type Postgres struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgres(cfg config.DatabaseConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	conn, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	return &Postgres{db: conn, timeout: cfg.ConnectionTimeout}, nil
}

// NewPostgresFromDB wraps an existing connection pool.
func NewPostgresFromDB(conn *sql.DB) *Postgres {
	return &Postgres{db: conn}
}

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) Ping(ctx context.Context) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.db.PingContext(ctx)
}

func (p *Postgres) SelectAll(ctx context.Context, table string) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	ident := pq.QuoteIdentifier(table)
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf("SELECT row_to_json(t) FROM %s AS t", ident))
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	out := []Row{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		row, err := decodeRow(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", table, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return out, nil
}

func (p *Postgres) Delete(ctx context.Context, table string, f Filter) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if err := checkFilter(f); err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s %s $1", pq.QuoteIdentifier(table), pq.QuoteIdentifier(f.Column), sqlOp(f.Op))
	if _, err := p.db.ExecContext(ctx, query, f.Value); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

// Upsert writes rows in one statement. Postgres coerces the JSON values to
// the column types through json_populate_recordset, so rows keep whatever
// shape row_to_json produced at export time.
func (p *Postgres) Upsert(ctx context.Context, table string, rows []Row, conflictKey string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	payload, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode %s rows: %w", table, err)
	}
	query := upsertQuery(table, columnsOf(rows), conflictKey)
	if _, err := p.db.ExecContext(ctx, query, string(payload)); err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func upsertQuery(table string, cols []string, conflictKey string) string {
	ident := pq.QuoteIdentifier(table)
	quoted := make([]string, len(cols))
	var sets []string
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
		if c != conflictKey {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", quoted[i], quoted[i]))
		}
	}
	list := strings.Join(quoted, ", ")
	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM json_populate_recordset(NULL::%s, $1::json) ON CONFLICT (%s) %s",
		ident, list, list, ident, pq.QuoteIdentifier(conflictKey), action)
}

func decodeRow(raw []byte) (Row, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var row Row
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	return row, nil
}
