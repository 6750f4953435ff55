package periods

import (
	"fmt"
	"time"
)

// YearMonth packs a calendar month as YYYYMM.
type YearMonth int

// NewYearMonth builds a YearMonth from a date.
func NewYearMonth(t time.Time) YearMonth {
	return YearMonth(t.Year()*100 + int(t.Month()))
}

func (ym YearMonth) Year() int { return int(ym) / 100 }

func (ym YearMonth) Month() time.Month { return time.Month(int(ym) % 100) }

func (ym YearMonth) String() string { return fmt.Sprintf("%04d-%02d", ym.Year(), int(ym.Month())) }

// Valid reports whether the month part is 1..12.
func (ym YearMonth) Valid() bool {
	m := int(ym) % 100
	return ym > 0 && m >= 1 && m <= 12
}

// AcYear is an accounting year. At most one year is active.
type AcYear struct {
	ID            int64
	FromYearMonth YearMonth
	ToYearMonth   YearMonth
	Active        bool
	HasClosed     bool
	ClosedAt      *time.Time
	ClosedBy      *int64
	CreatedAt     time.Time
}

// Start returns the first day of the year.
func (y AcYear) Start() time.Time {
	return time.Date(y.FromYearMonth.Year(), y.FromYearMonth.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the year.
func (y AcYear) End() time.Time {
	first := time.Date(y.ToYearMonth.Year(), y.ToYearMonth.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 1, -1)
}

// Covers reports whether date falls inside the year, compared by calendar month.
func (y AcYear) Covers(date time.Time) bool {
	ym := NewYearMonth(date)
	return ym >= y.FromYearMonth && ym <= y.ToYearMonth
}

// Editable reports whether entries dated date may still change.
func (y AcYear) Editable(date time.Time) bool {
	return !y.HasClosed && y.Covers(date)
}
