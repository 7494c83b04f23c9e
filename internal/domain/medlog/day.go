package medlog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jinzhu/now"
)

const dayLayout = "2006-01-02"

// Day is a calendar date without a time of day or zone. It is stored in a
// Postgres DATE column and serialised as YYYY-MM-DD.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the calendar day of t in t's location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{Year: y, Month: m, Day: d}
}

func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DayOf(t), nil
}

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Time returns midnight UTC at the start of d.
func (d Day) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Day) IsZero() bool { return d == Day{} }

func (d Day) Before(o Day) bool { return d.Time().Before(o.Time()) }

func (d Day) After(o Day) bool { return d.Time().After(o.Time()) }

func (d Day) AddDays(n int) Day { return DayOf(d.Time().AddDate(0, 0, n)) }

// MonthRange returns the first and last day of the month.
func MonthRange(year int, month time.Month) (Day, Day) {
	n := now.With(time.Date(year, month, 1, 12, 0, 0, 0, time.UTC))
	return DayOf(n.BeginningOfMonth()), DayOf(n.EndOfMonth())
}

// DaysIn returns the number of days in the month.
func DaysIn(year int, month time.Month) int {
	_, last := MonthRange(year, month)
	return last.Day
}

func (d Day) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Day) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDay(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ScanDate implements pgtype.DateScanner.
func (d *Day) ScanDate(v pgtype.Date) error {
	if !v.Valid {
		*d = Day{}
		return nil
	}
	*d = DayOf(v.Time)
	return nil
}

// DateValue implements pgtype.DateValuer.
func (d Day) DateValue() (pgtype.Date, error) {
	if d.IsZero() {
		return pgtype.Date{}, nil
	}
	return pgtype.Date{Time: d.Time(), Valid: true}, nil
}
