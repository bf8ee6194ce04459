package session

import (
	"time"

	"receipts/internal/core"
	"receipts/internal/store"
)

// Views recomputes the derived views from the store's current snapshot on
// every call.
type Views struct {
	store *store.Store
	now   func() time.Time
}

func NewViews(s *store.Store, now func() time.Time) *Views {
	if now == nil {
		now = time.Now
	}
	return &Views{store: s, now: now}
}

func (v *Views) Today() core.Date { return core.DateOf(v.now()) }

func (v *Views) Projects() []core.Project {
	return v.store.Snapshot().Projects
}

// Entries returns the filtered entry list and its total.
func (v *Views) Entries(f core.Filter) ([]core.EnrichedEntry, core.Money) {
	snap := v.store.Snapshot()
	list := core.FilterEntries(snap.Entries, snap.Projects, f)
	return list, core.Total(list)
}

func (v *Views) Months() []string {
	return core.AvailableMonths(v.store.Snapshot().Entries)
}

// Calendar returns the grid for ym and the month's total.
func (v *Views) Calendar(ym core.YearMonth) ([]core.CalendarDay, core.Money) {
	entries := v.store.Snapshot().Entries
	return core.CalendarGrid(ym, v.Today(), entries), core.MonthlyTotal(ym, entries)
}

func (v *Views) Day(d core.Date, urlFor func(string) string) ([]core.DayEntry, bool) {
	snap := v.store.Snapshot()
	return core.DayDetail(d, snap.Entries, snap.Projects, urlFor)
}

// ProjectDetail is a project with its entries, newest first, and their total.
type ProjectDetail struct {
	Project core.Project
	Entries []core.Entry
	Total   core.Money
}

func (v *Views) Project(id string) (ProjectDetail, bool) {
	snap := v.store.Snapshot()
	for _, p := range snap.Projects {
		if p.ID == id {
			return ProjectDetail{
				Project: p,
				Entries: core.ProjectEntries(id, snap.Entries),
				Total:   core.ProjectTotal(id, snap.Entries),
			}, true
		}
	}
	return ProjectDetail{}, false
}
