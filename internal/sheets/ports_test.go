package sheets

import (
	"testing"

	"receipts/internal/core"
)

func TestLedgerRows(t *testing.T) {
	projects := []core.Project{{ID: "p1", Name: "Kitchen", Client: "Smith"}}
	entries := []core.Entry{
		{ID: "a", Kind: core.KindExpense, Date: core.NewDate(2024, 3, 1), Price: core.Money{Cents: 1050}, Description: "fuel"},
		{ID: "b", Kind: core.KindReceipt, Date: core.NewDate(2024, 3, 5), Price: core.Money{Cents: 2000}, ProjectID: "p1", Description: "tiles", ReceiptImages: []string{"x", "y"}},
	}
	rows := LedgerRows(projects, entries)
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(rows))
	}
	if rows[1][0] != "2024-03-05" || rows[1][2] != "Kitchen" || rows[1][5] != 2 {
		t.Fatalf("newest row = %v", rows[1])
	}
	if rows[2][2] != core.UnassignedLabel {
		t.Fatalf("unassigned label = %v", rows[2][2])
	}
	if rows[3][0] != "Total" || rows[3][4] != 30.5 {
		t.Fatalf("total row = %v", rows[3])
	}

	summary := ProjectSummaryRows(projects, entries)
	if len(summary) != 2 || summary[1][2] != 1 || summary[1][3] != 20.0 {
		t.Fatalf("summary = %v", summary)
	}
}
