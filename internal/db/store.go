package db

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/fitundfun/ffbackup/internal/config"
	"github.com/fitundfun/ffbackup/internal/schema"
)

// Row is one record: column name to scalar or JSON value.
type Row = map[string]any

type Op string

const (
	OpEq  Op = "eq"
	OpNeq Op = "neq"
)

// Filter is a single-column predicate for Delete.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// All matches every row whose primary key is a real id.
func All() Filter {
	return Filter{Column: schema.PrimaryKey, Op: OpNeq, Value: schema.NilID}
}

var ErrUnknownTable = errors.New("unknown table")

// Store is the relational side of the platform as seen by backup and restore.
type Store interface {
	Name() string
	Ping(ctx context.Context) error
	SelectAll(ctx context.Context, table string) ([]Row, error)
	Delete(ctx context.Context, table string, f Filter) error
	Upsert(ctx context.Context, table string, rows []Row, conflictKey string) error
	Close() error
}

// NewStore opens the configured store.
func NewStore(cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Type {
	case "postgres", "postgresql", "":
		return NewPostgres(cfg)
	case "sqlite", "sqlite3":
		return NewSQLite(cfg)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

func checkTable(table string) error {
	if !schema.IsTable(table) {
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	return nil
}

func checkFilter(f Filter) error {
	if f.Column == "" {
		return errors.New("filter column is empty")
	}
	if f.Op != OpEq && f.Op != OpNeq {
		return fmt.Errorf("unsupported filter op %q", f.Op)
	}
	return nil
}

// columnsOf returns the union of keys across rows, sorted.
func columnsOf(rows []Row) []string {
	seen := map[string]struct{}{}
	for _, r := range rows {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func sqlOp(op Op) string {
	if op == OpNeq {
		return "<>"
	}
	return "="
}
