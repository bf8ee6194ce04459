package session

import (
	"testing"
	"time"

	"receipts/internal/core"
	"receipts/internal/store"
)

func TestViewsRecomputeFromSnapshot(t *testing.T) {
	s := store.New()
	v := NewViews(s, func() time.Time { return time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC) })

	pid, _ := s.AddProject(core.Project{Name: "Kitchen"})
	s.AddEntry(core.Entry{Kind: core.KindReceipt, Date: core.NewDate(2024, 3, 5), Price: core.Money{Cents: 10000}, ProjectID: pid, Description: "tiles"})
	s.AddEntry(core.Entry{Kind: core.KindExpense, Date: core.NewDate(2024, 2, 29), Price: core.Money{Cents: 2500}, Description: "fuel"})

	list, total := v.Entries(core.Filter{})
	if len(list) != 2 || total.Cents != 12500 {
		t.Fatalf("entries = %d total = %d", len(list), total.Cents)
	}
	if list[0].ProjectName != "Kitchen" || list[1].ProjectName != core.UnassignedLabel {
		t.Fatalf("unexpected enrichment %+v", list)
	}

	grid, month := v.Calendar(core.YearMonth{Year: 2024, Month: 3})
	if month.Cents != 10000 {
		t.Fatalf("monthly total = %d", month.Cents)
	}
	var today int
	for _, c := range grid {
		if c.IsToday {
			today++
			if c.DayOfMonth != 5 {
				t.Fatalf("today cell is day %d", c.DayOfMonth)
			}
		}
	}
	if today != 1 {
		t.Fatalf("expected one today cell, got %d", today)
	}

	d, ok := v.Project(pid)
	if !ok || d.Total.Cents != 10000 || len(d.Entries) != 1 {
		t.Fatalf("project detail %+v", d)
	}

	s.DeleteProject(pid)
	list, _ = v.Entries(core.Filter{})
	for _, e := range list {
		if e.ProjectName != core.UnassignedLabel {
			t.Fatalf("deleted project still referenced: %+v", e)
		}
	}
	if got := v.Months(); len(got) != 2 || got[0] != "2024-03" {
		t.Fatalf("months %v", got)
	}
}
