package core

import (
	"fmt"
	"testing"
)

func fixture() ([]Project, []Entry) {
	projects := []Project{{ID: "p1", Name: "Downtown"}}
	entries := []Entry{
		{ID: "e1", Date: NewDate(2024, 3, 5), Price: Money{Cents: 10000}, ProjectID: "p1", Kind: KindExpense, Description: "lunch"},
		{ID: "e2", Date: NewDate(2024, 3, 5), Price: Money{Cents: 5000}, Kind: KindReceipt, Description: "lumber", ReceiptImages: []string{"img1"}},
	}
	return projects, entries
}

func TestFilterEntriesScenario(t *testing.T) {
	projects, entries := fixture()
	f, err := ParseFilter("all", "all", "2024-03")
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}
	got := FilterEntries(entries, projects, f)
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ID != "e1" || got[1].ID != "e2" {
		t.Fatalf("unexpected order: %s, %s", got[0].ID, got[1].ID)
	}
	if got[0].ProjectName != "Downtown" || got[1].ProjectName != UnassignedLabel {
		t.Fatalf("unexpected names: %q, %q", got[0].ProjectName, got[1].ProjectName)
	}
	if total := Total(got); total.Cents != 15000 {
		t.Fatalf("expected total 15000, got %d", total.Cents)
	}
}

func TestFilterEntriesPredicates(t *testing.T) {
	projects := []Project{{ID: "p1", Name: "One"}, {ID: "p2", Name: "Two"}}
	var entries []Entry
	kinds := []EntryKind{KindReceipt, KindExpense}
	refs := []string{"p1", "p2", "", "ghost"}
	i := 0
	for _, k := range kinds {
		for _, ref := range refs {
			for _, m := range []int{1, 2} {
				i++
				entries = append(entries, Entry{
					ID:        fmt.Sprintf("e%02d", i),
					Kind:      k,
					Date:      NewDate(2024, m, 1+i%27),
					Price:     Money{Cents: int64(i * 100)},
					ProjectID: ref,
				})
			}
		}
	}

	kindOpts := []string{FilterAll, "receipt", "expense"}
	projectOpts := []string{FilterAll, "p1", "p2", "ghost"}
	monthOpts := []string{FilterAll, "2024-01", "2024-02", "2023-12"}
	for _, k := range kindOpts {
		for _, p := range projectOpts {
			for _, m := range monthOpts {
				f := Filter{Kind: k, ProjectID: p, Month: m}
				got := FilterEntries(entries, projects, f)

				var want int
				var wantTotal int64
				for _, e := range entries {
					if (k == FilterAll || string(e.Kind) == k) &&
						(p == FilterAll || e.ProjectID == p) &&
						(m == FilterAll || e.Date.YearMonth().String() == m) {
						want++
						wantTotal += e.Price.Cents
					}
				}
				if len(got) != want {
					t.Fatalf("filter %+v: got %d entries, want %d", f, len(got), want)
				}
				if Total(got).Cents != wantTotal {
					t.Fatalf("filter %+v: total %d, want %d", f, Total(got).Cents, wantTotal)
				}
				for j := 1; j < len(got); j++ {
					if newestFirst(got[j].Entry, got[j-1].Entry) {
						t.Fatalf("filter %+v: result not sorted at %d", f, j)
					}
				}
			}
		}
	}

	all := FilterEntries(entries, projects, Filter{})
	if len(all) != len(entries) {
		t.Fatalf("empty filter should match everything, got %d", len(all))
	}
	for _, e := range all {
		if e.ProjectID == "ghost" && e.ProjectName != UnassignedLabel {
			t.Fatalf("unresolvable project should fall back, got %q", e.ProjectName)
		}
	}
}

func TestTotalEmpty(t *testing.T) {
	if got := Total(nil); got.Cents != 0 {
		t.Fatalf("expected 0, got %d", got.Cents)
	}
}

func TestParseFilterErrors(t *testing.T) {
	if _, err := ParseFilter("invoice", "", ""); err == nil {
		t.Fatalf("expected error for bad kind")
	}
	if _, err := ParseFilter("", "", "2024-3"); err == nil {
		t.Fatalf("expected error for bad month")
	}
	f, err := ParseFilter("", "", "")
	if err != nil || f.Kind != FilterAll || f.ProjectID != FilterAll || f.Month != FilterAll {
		t.Fatalf("unexpected filter %+v err=%v", f, err)
	}
}

func TestAvailableMonths(t *testing.T) {
	entries := []Entry{
		{Date: NewDate(2024, 3, 5)},
		{Date: NewDate(2023, 12, 1)},
		{Date: NewDate(2024, 3, 20)},
		{Date: NewDate(2024, 1, 9)},
	}
	got := AvailableMonths(entries)
	want := []string{"2024-03", "2024-01", "2023-12"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if len(AvailableMonths(nil)) != 0 {
		t.Fatalf("expected no months")
	}
}

func TestCalendarGridMarch2024(t *testing.T) {
	_, entries := fixture()
	entries = append(entries, Entry{ID: "e3", Date: NewDate(2024, 2, 29), Price: Money{Cents: 700}})
	view := YearMonth{Year: 2024, Month: 3}
	today := NewDate(2024, 3, 10)

	grid := CalendarGrid(view, today, entries)
	if len(grid) != 42 {
		t.Fatalf("expected 42 cells, got %d", len(grid))
	}
	if grid[0].Date.Weekday() != 0 || !grid[0].Date.Equal(NewDate(2024, 2, 25)) {
		t.Fatalf("grid should start Sunday Feb 25, got %v", grid[0].Date)
	}
	if grid[41].Date.Weekday() != 6 || !grid[41].Date.Equal(NewDate(2024, 4, 6)) {
		t.Fatalf("grid should end Saturday Apr 6, got %v", grid[41].Date)
	}

	var inMonth, todays int
	var sum int64
	for _, c := range grid {
		if c.IsCurrentMonth {
			inMonth++
			sum += c.Total.Cents
		}
		if c.IsToday {
			todays++
			if !c.Date.Equal(today) {
				t.Fatalf("wrong today cell %v", c.Date)
			}
		}
		if c.Date.Equal(NewDate(2024, 3, 5)) && c.Total.Cents != 15000 {
			t.Fatalf("March 5 total = %d, want 15000", c.Total.Cents)
		}
		if c.Date.Equal(NewDate(2024, 2, 29)) {
			if c.IsCurrentMonth || c.Total.Cents != 700 {
				t.Fatalf("Feb 29 cell = %+v", c)
			}
		}
	}
	if inMonth != 31 || todays != 1 {
		t.Fatalf("inMonth=%d todays=%d", inMonth, todays)
	}
	if mt := MonthlyTotal(view, entries); mt.Cents != 15000 || mt.Cents != sum {
		t.Fatalf("monthly total %d, grid sum %d", mt.Cents, sum)
	}
}

func TestCalendarGridShape(t *testing.T) {
	for year := 2023; year <= 2026; year++ {
		for month := 1; month <= 12; month++ {
			view := YearMonth{Year: year, Month: month}
			grid := CalendarGrid(view, NewDate(2000, 1, 1), nil)
			if len(grid)%7 != 0 {
				t.Fatalf("%s: %d cells", view, len(grid))
			}
			if grid[0].Date.Weekday() != 0 || grid[len(grid)-1].Date.Weekday() != 6 {
				t.Fatalf("%s: grid not Sunday..Saturday", view)
			}
			days := 0
			for _, c := range grid {
				if c.IsCurrentMonth {
					days++
				}
			}
			if days != view.Last().Day() {
				t.Fatalf("%s: covers %d days, want %d", view, days, view.Last().Day())
			}
		}
	}
}

func TestDayDetail(t *testing.T) {
	projects, entries := fixture()
	urlFor := func(id string) string { return "https://img/" + id }

	detail, ok := DayDetail(NewDate(2024, 3, 5), entries, projects, urlFor)
	if !ok || len(detail) != 2 {
		t.Fatalf("expected 2 entries, got %d ok=%v", len(detail), ok)
	}
	if detail[1].ID != "e2" || len(detail[1].ImageURLs) != 1 || detail[1].ImageURLs[0] != "https://img/img1" {
		t.Fatalf("unexpected detail %+v", detail[1])
	}
	if _, ok := DayDetail(NewDate(2024, 3, 6), entries, projects, urlFor); ok {
		t.Fatalf("empty day must not be actionable")
	}
}

func TestProjectEntriesAndTotal(t *testing.T) {
	_, entries := fixture()
	entries = append(entries, Entry{ID: "e0", Date: NewDate(2024, 4, 1), Price: Money{Cents: 1}, ProjectID: "p1"})
	got := ProjectEntries("p1", entries)
	if len(got) != 2 || got[0].ID != "e0" || got[1].ID != "e1" {
		t.Fatalf("unexpected project entries %+v", got)
	}
	if ProjectTotal("p1", entries).Cents != 10001 {
		t.Fatalf("unexpected total")
	}
	if len(ProjectEntries("", entries)) != 0 {
		t.Fatalf("empty project id must not match unassigned entries")
	}
}

func TestReceiptPages(t *testing.T) {
	entries := []Entry{
		{ID: "a", Kind: KindReceipt, ReceiptImages: []string{"i1", "i2"}, Description: "A"},
		{ID: "b", Kind: KindExpense, Description: "B"},
		{ID: "c", Kind: KindReceipt, Description: "C"},
		{ID: "d", Kind: KindReceipt, ReceiptImages: []string{"i3"}, Description: "D"},
	}
	pages := ReceiptPages(entries)
	if len(pages) != 3 || pages[0].ImageID != "i1" || pages[2].Description != "D" {
		t.Fatalf("unexpected pages %+v", pages)
	}
}

func TestYearMonth(t *testing.T) {
	ym, err := ParseYearMonth("2024-12")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if next := ym.AddMonths(1); next.String() != "2025-01" {
		t.Fatalf("got %s", next)
	}
	if prev := ym.AddMonths(-12); prev.String() != "2023-12" {
		t.Fatalf("got %s", prev)
	}
	if ym.Last().Day() != 31 {
		t.Fatalf("unexpected last day %v", ym.Last())
	}
}
