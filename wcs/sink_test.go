package wcs

import "testing"

func TestSprintfKeyspaceSubstitutesAllOccurrences(t *testing.T) {
	stmt := `CREATE TABLE IF NOT EXISTS %s.markets (market_id text, PRIMARY KEY (market_id))`
	got := sprintfKeyspace(stmt, "injective")
	want := `CREATE TABLE IF NOT EXISTS injective.markets (market_id text, PRIMARY KEY (market_id))`
	if got != want {
		t.Fatalf("sprintfKeyspace = %q, want %q", got, want)
	}
}

func TestDDLStatementsCoverAllSpecTables(t *testing.T) {
	wantTables := []string{
		"markets", "positions", "market_positions", "positions_by_subaccount",
		"exchange_balances", "exchange_balances_by_subaccount",
		"orderbook_snapshots", "orderbook_orders", "liquidatable_positions",
		"market_statistics",
	}
	for _, tbl := range wantTables {
		found := false
		for _, stmt := range ddlStatements {
			if containsTable(stmt, tbl) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("no CREATE TABLE statement found for %q", tbl)
		}
	}
}

// TestLatestPerSubaccountTakesNewestRowPerSubaccount exercises the pure
// reduction processMarket applies to rows read from market_positions,
// standing in for a live Scylla session (no mocking library for gocql
// appears anywhere in the pack; see DESIGN.md's Stdlib Justifications).
func TestLatestPerSubaccountTakesNewestRowPerSubaccount(t *testing.T) {
	rows := []marketPositionRow{
		{SubaccountID: "s1", Quantity: "10", EntryPrice: "100"}, // block_height DESC: newest first
		{SubaccountID: "s1", Quantity: "9", EntryPrice: "90"},   // stale snapshot for s1, must be dropped
		{SubaccountID: "s2", Quantity: "5", EntryPrice: "50"},
	}

	got, truncated := latestPerSubaccount(rows, 1000)
	if truncated {
		t.Fatal("expected no truncation under the cap")
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	if got[0].SubaccountID != "s1" || got[0].Quantity != "10" {
		t.Errorf("s1 row = %+v, want the newest snapshot (quantity=10)", got[0])
	}
	if got[1].SubaccountID != "s2" || got[1].Quantity != "5" {
		t.Errorf("s2 row = %+v", got[1])
	}
}

func TestLatestPerSubaccountReportsTruncationAtCap(t *testing.T) {
	rows := []marketPositionRow{
		{SubaccountID: "s1"},
		{SubaccountID: "s2"},
		{SubaccountID: "s3"},
	}
	got, truncated := latestPerSubaccount(rows, 2)
	if !truncated {
		t.Fatal("expected truncation when rows exceed the cap")
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
}

func containsTable(stmt, table string) bool {
	needle := "%s." + table + " ("
	for i := 0; i+len(needle) <= len(stmt); i++ {
		if stmt[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
