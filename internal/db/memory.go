package db

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fitundfun/ffbackup/internal/schema"
)

// Memory is an in-process Store. Rows are kept per table in insertion order
// and copied on the way in and out. The Fail* maps inject per-table errors.
// With EnforceReferences set, an upsert whose foreign keys point at missing
// parent rows fails the way a database constraint would.
type Memory struct {
	mu     sync.Mutex
	tables map[string][]Row

	EnforceReferences bool

	PingErr    error
	FailSelect map[string]error
	FailDelete map[string]error
	FailUpsert map[string]error
}

func NewMemory() *Memory {
	return &Memory{
		tables:     map[string][]Row{},
		FailSelect: map[string]error{},
		FailDelete: map[string]error{},
		FailUpsert: map[string]error{},
	}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Ping(context.Context) error { return m.PingErr }

func (m *Memory) SelectAll(_ context.Context, table string) ([]Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailSelect[table]; err != nil {
		return nil, err
	}
	out := make([]Row, 0, len(m.tables[table]))
	for _, r := range m.tables[table] {
		out = append(out, copyRow(r))
	}
	return out, nil
}

func (m *Memory) Delete(_ context.Context, table string, f Filter) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if err := checkFilter(f); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailDelete[table]; err != nil {
		return err
	}
	kept := m.tables[table][:0]
	for _, r := range m.tables[table] {
		match := valueKey(r[f.Column]) == valueKey(f.Value)
		if f.Op == OpNeq {
			match = !match
		}
		if !match {
			kept = append(kept, r)
		}
	}
	m.tables[table] = kept
	return nil
}

func (m *Memory) Upsert(_ context.Context, table string, rows []Row, conflictKey string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailUpsert[table]; err != nil {
		return err
	}
	for i, r := range rows {
		if _, ok := r[conflictKey]; !ok {
			return fmt.Errorf("upsert %s row %d: missing %s", table, i, conflictKey)
		}
		if m.EnforceReferences {
			if err := m.checkReferences(table, r); err != nil {
				return err
			}
		}
	}
	for _, r := range rows {
		key := valueKey(r[conflictKey])
		replaced := false
		for j, existing := range m.tables[table] {
			if valueKey(existing[conflictKey]) == key {
				m.tables[table][j] = copyRow(r)
				replaced = true
				break
			}
		}
		if !replaced {
			m.tables[table] = append(m.tables[table], copyRow(r))
		}
	}
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) checkReferences(table string, r Row) error {
	for _, fk := range schema.References[table] {
		v, ok := r[fk.Column]
		if !ok || v == nil {
			continue
		}
		want := valueKey(v)
		found := false
		for _, parent := range m.tables[fk.Parent] {
			if valueKey(parent[schema.PrimaryKey]) == want {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("insert or update on table %q violates foreign key %q: %s not present in %q", table, fk.Column, want, fk.Parent)
		}
	}
	return nil
}

// Seed replaces a table's contents.
func (m *Memory) Seed(table string, rows ...Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([]Row, 0, len(rows))
	for _, r := range rows {
		copied = append(copied, copyRow(r))
	}
	m.tables[table] = copied
}

func copyRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// valueKey compares ids independent of their decoded Go type, so "1",
// json.Number("1") and int 1 collide the way they would in a database column.
func valueKey(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case nil:
		return "\x00null"
	default:
		return fmt.Sprint(val)
	}
}
