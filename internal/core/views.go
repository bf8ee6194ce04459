package core

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// FilterAll disables a filter dimension.
const FilterAll = "all"

var ErrInvalidFilter = errors.New("invalid filter")

type (
	// YearMonth identifies a calendar month, printed as YYYY-MM.
	YearMonth struct {
		Year  int
		Month int // 1-12
	}

	EnrichedEntry struct {
		Entry
		ProjectName string
	}

	// CalendarDay is one cell of the month grid.
	CalendarDay struct {
		Date           Date
		DayOfMonth     int
		IsCurrentMonth bool
		IsToday        bool
		Total          Money
	}

	// DayEntry is an enriched entry with display URLs for its receipt images.
	DayEntry struct {
		EnrichedEntry
		ImageURLs []string
	}

	// Filter selects entries by kind, project and month. Empty fields and
	// FilterAll both match everything.
	Filter struct {
		Kind      string
		ProjectID string
		Month     string
	}

	// ReceiptPage is one photographed receipt of a PDF export.
	ReceiptPage struct {
		ImageID     string
		Date        Date
		Description string
		Price       Money
	}
)

func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("%w: %q", ErrInvalidYearMonth, s)
	}
	return YearMonth{Year: t.Year(), Month: int(t.Month())}, nil
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, ym.Month)
}

// First returns the first day of the month.
func (ym YearMonth) First() Date {
	return NewDate(ym.Year, ym.Month, 1)
}

// Last returns the last day of the month.
func (ym YearMonth) Last() Date {
	return NewDate(ym.Year, ym.Month+1, 0)
}

// AddMonths moves ym by n months.
func (ym YearMonth) AddMonths(n int) YearMonth {
	t := ym.First().AddDate(0, n, 0)
	return YearMonth{Year: t.Year(), Month: int(t.Month())}
}

// ParseFilter validates raw filter values. Empty values mean FilterAll.
func ParseFilter(kind, projectID, month string) (Filter, error) {
	f := Filter{Kind: orAll(kind), ProjectID: orAll(projectID), Month: orAll(month)}
	if f.Kind != FilterAll && !EntryKind(f.Kind).Valid() {
		return Filter{}, fmt.Errorf("%w: kind %q", ErrInvalidFilter, kind)
	}
	if f.Month != FilterAll {
		if _, err := ParseYearMonth(f.Month); err != nil {
			return Filter{}, fmt.Errorf("%w: month %q", ErrInvalidFilter, month)
		}
	}
	return f, nil
}

func orAll(s string) string {
	if s == "" {
		return FilterAll
	}
	return s
}

func (f Filter) Match(e Entry) bool {
	kindMatch := orAll(f.Kind) == FilterAll || EntryKind(f.Kind) == e.Kind
	projectMatch := orAll(f.ProjectID) == FilterAll || f.ProjectID == e.ProjectID
	monthMatch := orAll(f.Month) == FilterAll || e.Date.YearMonth().String() == f.Month
	return kindMatch && projectMatch && monthMatch
}

func projectNames(projects []Project) map[string]string {
	names := make(map[string]string, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
	}
	return names
}

func enrich(e Entry, names map[string]string) EnrichedEntry {
	name, ok := names[e.ProjectID]
	if e.ProjectID == "" || !ok {
		name = UnassignedLabel
	}
	return EnrichedEntry{Entry: e.Clone(), ProjectName: name}
}

// Enrich resolves the project name of every entry, keeping input order.
func Enrich(entries []Entry, projects []Project) []EnrichedEntry {
	names := projectNames(projects)
	out := make([]EnrichedEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, enrich(e, names))
	}
	return out
}

// newestFirst orders by date descending, then id ascending.
func newestFirst(a, b Entry) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date.Time)
	}
	return a.ID < b.ID
}

// FilterEntries returns the enriched entries matching f, newest first.
func FilterEntries(entries []Entry, projects []Project, f Filter) []EnrichedEntry {
	names := projectNames(projects)
	out := make([]EnrichedEntry, 0, len(entries))
	for _, e := range entries {
		if f.Match(e) {
			out = append(out, enrich(e, names))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return newestFirst(out[i].Entry, out[j].Entry)
	})
	return out
}

// Total sums the price of the given entries.
func Total(entries []EnrichedEntry) Money {
	var sum Money
	for _, e := range entries {
		sum = sum.Add(e.Price)
	}
	return sum
}

func sumEntries(entries []Entry, keep func(Entry) bool) Money {
	var sum Money
	for _, e := range entries {
		if keep(e) {
			sum = sum.Add(e.Price)
		}
	}
	return sum
}

// AvailableMonths lists every distinct YYYY-MM present in entries, most
// recent first.
func AvailableMonths(entries []Entry) []string {
	seen := make(map[string]struct{})
	months := make([]string, 0)
	for _, e := range entries {
		if e.Date.IsZero() {
			continue
		}
		m := e.Date.YearMonth().String()
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		months = append(months, m)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))
	return months
}

// CalendarGrid builds the Sunday-to-Saturday weeks covering view. Cell totals
// are unfiltered and computed from each cell's real date, including the
// leading and trailing days of the neighbouring months.
func CalendarGrid(view YearMonth, today Date, entries []Entry) []CalendarDay {
	first, last := view.First(), view.Last()
	start := first.AddDays(-int(first.Weekday()))
	end := last.AddDays(int(time.Saturday - last.Weekday()))

	totals := make(map[string]Money)
	for _, e := range entries {
		k := e.Date.String()
		totals[k] = totals[k].Add(e.Price)
	}

	var grid []CalendarDay
	for d := start; !d.After(end.Time); d = d.AddDays(1) {
		grid = append(grid, CalendarDay{
			Date:           d,
			DayOfMonth:     d.Day(),
			IsCurrentMonth: d.YearMonth() == view,
			IsToday:        d.Equal(today),
			Total:          totals[d.String()],
		})
	}
	return grid
}

// MonthlyTotal sums every entry dated within view.
func MonthlyTotal(view YearMonth, entries []Entry) Money {
	return sumEntries(entries, func(e Entry) bool { return e.Date.YearMonth() == view })
}

// DayDetail returns the enriched entries dated on day, with display URLs for
// their receipts. ok is false when the day has nothing to show.
func DayDetail(day Date, entries []Entry, projects []Project, urlFor func(imageID string) string) (detail []DayEntry, ok bool) {
	if sumEntries(entries, func(e Entry) bool { return e.Date.Equal(day) }).Cents == 0 {
		return nil, false
	}
	names := projectNames(projects)
	for _, e := range entries {
		if !e.Date.Equal(day) {
			continue
		}
		de := DayEntry{EnrichedEntry: enrich(e, names)}
		if urlFor != nil {
			for _, id := range e.ReceiptImages {
				de.ImageURLs = append(de.ImageURLs, urlFor(id))
			}
		}
		detail = append(detail, de)
	}
	sort.SliceStable(detail, func(i, j int) bool { return detail[i].ID < detail[j].ID })
	return detail, true
}

// ProjectEntries returns the entries assigned to projectID, newest first.
func ProjectEntries(projectID string, entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if projectID != "" && e.ProjectID == projectID {
			out = append(out, e.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return newestFirst(out[i], out[j]) })
	return out
}

// ProjectTotal sums the entries assigned to projectID.
func ProjectTotal(projectID string, entries []Entry) Money {
	return sumEntries(entries, func(e Entry) bool { return projectID != "" && e.ProjectID == projectID })
}

// ReceiptPages flattens receipt entries into one page per attached image,
// keeping entry order.
func ReceiptPages(entries []Entry) []ReceiptPage {
	var pages []ReceiptPage
	for _, e := range entries {
		if e.Kind != KindReceipt {
			continue
		}
		for _, id := range e.ReceiptImages {
			pages = append(pages, ReceiptPage{
				ImageID:     id,
				Date:        e.Date,
				Description: e.Description,
				Price:       e.Price,
			})
		}
	}
	return pages
}
