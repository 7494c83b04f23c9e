// Package adherence turns medications and their logs into per-day statuses
// and monthly percentages.
package adherence

import (
	"math"
	"time"

	"github.com/medtrack/medtrack/internal/domain/medication"
	"github.com/medtrack/medtrack/internal/domain/medlog"
)

type Status string

const (
	StatusNone   Status = ""
	StatusTaken  Status = "taken"
	StatusMissed Status = "missed"
	StatusToday  Status = "today"
)

// GroupByDay buckets logs by their date.
func GroupByDay(logs []*medlog.Log) map[medlog.Day][]*medlog.Log {
	out := make(map[medlog.Day][]*medlog.Log)
	for _, l := range logs {
		out[l.Date] = append(out[l.Date], l)
	}
	return out
}

// StatusFor classifies a day. A day is taken when it has logs and every
// medication has a taken log on it; otherwise it is missed if it is in the
// past, today if it is today, and none in the future. Without medications
// every day is none.
func StatusFor(day, today medlog.Day, meds []*medication.Medication, byDay map[medlog.Day][]*medlog.Log) Status {
	if len(meds) == 0 {
		return StatusNone
	}
	logs := byDay[day]
	if len(logs) > 0 && allTaken(meds, logs) {
		return StatusTaken
	}
	switch {
	case day.Before(today):
		return StatusMissed
	case day == today:
		return StatusToday
	default:
		return StatusNone
	}
}

func allTaken(meds []*medication.Medication, logs []*medlog.Log) bool {
	for _, m := range meds {
		found := false
		for _, l := range logs {
			if l.MedicationID == m.ID && l.Taken {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// MonthlyPercentage is the share of expected doses taken in the month,
// counting one dose per medication per day regardless of frequency.
func MonthlyPercentage(year int, month time.Month, meds []*medication.Medication, byDay map[medlog.Day][]*medlog.Log) int {
	first, _ := medlog.MonthRange(year, month)
	days := medlog.DaysIn(year, month)

	total, taken := 0, 0
	for i := 0; i < days; i++ {
		day := first.AddDays(i)
		total += len(meds)
		for _, l := range byDay[day] {
			if l.Taken {
				taken++
			}
		}
	}
	return percentage(taken, total)
}

// LivePercentage is taken over total for a flat list of logs.
func LivePercentage(logs []*medlog.Log) int {
	taken := 0
	for _, l := range logs {
		if l.Taken {
			taken++
		}
	}
	return percentage(taken, len(logs))
}

func percentage(taken, total int) int {
	if total == 0 {
		return 0
	}
	p := int(math.Round(float64(taken) / float64(total) * 100))
	if p > 100 {
		return 100
	}
	return p
}

type CalendarDay struct {
	Date   medlog.Day `json:"date"`
	Status Status     `json:"status,omitempty"`
	Taken  int        `json:"taken"`
}

type Calendar struct {
	Year       int           `json:"year"`
	Month      time.Month    `json:"month"`
	Percentage int           `json:"percentage"`
	Days       []CalendarDay `json:"days"`
}

// BuildCalendar lays out every day of the month with its status.
func BuildCalendar(year int, month time.Month, today medlog.Day, meds []*medication.Medication, logs []*medlog.Log) *Calendar {
	byDay := GroupByDay(logs)
	first, _ := medlog.MonthRange(year, month)
	days := medlog.DaysIn(year, month)

	cal := &Calendar{
		Year:       year,
		Month:      month,
		Percentage: MonthlyPercentage(year, month, meds, byDay),
		Days:       make([]CalendarDay, 0, days),
	}
	for i := 0; i < days; i++ {
		day := first.AddDays(i)
		taken := 0
		for _, l := range byDay[day] {
			if l.Taken {
				taken++
			}
		}
		cal.Days = append(cal.Days, CalendarDay{
			Date:   day,
			Status: StatusFor(day, today, meds, byDay),
			Taken:  taken,
		})
	}
	return cal
}
