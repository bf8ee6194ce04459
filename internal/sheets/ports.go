// Package sheets mirrors a user's ledger into a spreadsheet tab so it can be
// shared with clients and accountants.
package sheets

import (
	"context"
	"sort"

	"receipts/internal/core"
)

// Mirror replaces the contents of a user's tab.
type Mirror interface {
	WriteLedger(ctx context.Context, uid string, rows [][]any) error
}

// Header is the first row of every mirrored tab.
var Header = []any{"Date", "Type", "Project", "Description", "Amount", "Receipts"}

// TabName is the tab that holds uid's ledger.
func TabName(uid string) string {
	return "Ledger " + uid
}

// LedgerRows lays out the ledger as spreadsheet rows: the header, every entry
// newest first, then a total row.
func LedgerRows(projects []core.Project, entries []core.Entry) [][]any {
	list := core.FilterEntries(entries, projects, core.Filter{})
	rows := make([][]any, 0, len(list)+2)
	rows = append(rows, Header)
	for _, e := range list {
		rows = append(rows, []any{
			e.Date.String(),
			string(e.Kind),
			e.ProjectName,
			e.Description,
			e.Price.Dollars(),
			len(e.ReceiptImages),
		})
	}
	rows = append(rows, []any{"Total", "", "", "", core.Total(list).Dollars(), ""})
	return rows
}

// ProjectSummaryRows lists each project with its entry count and total, by
// name.
func ProjectSummaryRows(projects []core.Project, entries []core.Entry) [][]any {
	sorted := append([]core.Project(nil), projects...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	rows := [][]any{{"Project", "Client", "Entries", "Total"}}
	for _, p := range sorted {
		rows = append(rows, []any{
			p.Name,
			p.Client,
			len(core.ProjectEntries(p.ID, entries)),
			core.ProjectTotal(p.ID, entries).Dollars(),
		})
	}
	return rows
}
