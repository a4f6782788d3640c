package schema

import "testing"

func TestRestoreOrderRespectsReferences(t *testing.T) {
	pos := map[string]int{}
	for i, table := range RestoreOrder {
		pos[table] = i
	}
	if len(pos) != len(Tables) {
		t.Fatalf("restore order has %d tables, schema has %d", len(pos), len(Tables))
	}
	for table, refs := range References {
		if _, ok := pos[table]; !ok {
			t.Fatalf("table %s missing from restore order", table)
		}
		for _, ref := range refs {
			if pos[ref.Parent] >= pos[table] {
				t.Fatalf("table %s restored before its parent %s", table, ref.Parent)
			}
		}
	}
}

func TestIsTable(t *testing.T) {
	if !IsTable("lager") || IsTable("users") || IsTable("lager; drop table x") {
		t.Fatalf("unexpected table membership")
	}
	if !IsBucket("pdfs") || IsBucket("videos") {
		t.Fatalf("unexpected bucket membership")
	}
}
