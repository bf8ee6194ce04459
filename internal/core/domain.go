package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	KindReceipt EntryKind = "receipt"
	KindExpense EntryKind = "expense"
)

// MaxReceiptImages caps the number of photographed receipts attached to one entry.
const MaxReceiptImages = 3

// UnassignedLabel is shown in place of a project name when an entry has no
// resolvable project.
const UnassignedLabel = "N/A"

const dateLayout = "2006-01-02"

type (
	EntryKind string

	// Date is a calendar day with no time-of-day component.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Project struct {
		ID      string
		Name    string
		Client  string
		Address string
		Mobile  string
		ImageID string // hosted image public id, empty when none
	}

	Entry struct {
		ID            string
		Kind          EntryKind
		Date          Date
		Price         Money
		ProjectID     string // empty when unassigned
		Description   string
		ReceiptImages []string
	}
)

var (
	ErrInvalidKind      = errors.New("invalid entry kind")
	ErrZeroDate         = errors.New("date cannot be zero")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrTooManyImages    = fmt.Errorf("too many receipt images (max %d)", MaxReceiptImages)
	ErrImagesOnExpense  = errors.New("expense entries cannot carry receipt images")
	ErrEmptyProjectName = errors.New("empty project name")
	ErrEmptyClient      = errors.New("empty client")
	ErrEmptyAddress     = errors.New("empty address")
	ErrEmptyMobile      = errors.New("empty mobile")
	ErrInvalidYearMonth = errors.New("invalid year-month")
	// ErrUnknownProject is returned when an entry names a project that does
	// not exist.
	ErrUnknownProject = errors.New("unknown project")
)

func (k EntryKind) Valid() bool {
	return k == KindReceipt || k == KindExpense
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// YearMonth returns the month the date falls in.
func (d Date) YearMonth() YearMonth {
	return YearMonth{Year: d.Year(), Month: int(d.Month())}
}

func (d Date) Equal(o Date) bool {
	return d.Time.Equal(o.Time)
}

// AddDays returns the date n days later (earlier for negative n).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// NormalizeProjectRef maps the different spellings of "no project" to the
// canonical empty reference.
func NormalizeProjectRef(ref string) string {
	ref = strings.TrimSpace(ref)
	switch ref {
	case "null", "undefined":
		return ""
	}
	return ref
}

// Normalize canonicalises an entry before validation or persistence: the
// project reference is normalised and expenses drop any receipt images.
func (e Entry) Normalize() Entry {
	e.ProjectID = NormalizeProjectRef(e.ProjectID)
	e.Description = strings.TrimSpace(e.Description)
	if e.Kind != KindReceipt || len(e.ReceiptImages) == 0 {
		e.ReceiptImages = nil
	} else {
		e.ReceiptImages = append([]string(nil), e.ReceiptImages...)
	}
	return e
}

func (e Entry) Validate() error {
	if !e.Kind.Valid() {
		return ErrInvalidKind
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if err := e.Price.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if e.Kind == KindExpense && len(e.ReceiptImages) > 0 {
		return ErrImagesOnExpense
	}
	if len(e.ReceiptImages) > MaxReceiptImages {
		return ErrTooManyImages
	}
	return nil
}

func (p Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyProjectName
	}
	if strings.TrimSpace(p.Client) == "" {
		return ErrEmptyClient
	}
	if strings.TrimSpace(p.Address) == "" {
		return ErrEmptyAddress
	}
	if strings.TrimSpace(p.Mobile) == "" {
		return ErrEmptyMobile
	}
	return nil
}

// Clone returns a copy that shares no slices with e.
func (e Entry) Clone() Entry {
	if e.ReceiptImages != nil {
		e.ReceiptImages = append([]string(nil), e.ReceiptImages...)
	}
	return e
}
