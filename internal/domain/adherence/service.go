package adherence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/medtrack/internal/domain/medication"
	"github.com/medtrack/medtrack/internal/domain/medlog"
	"github.com/medtrack/medtrack/internal/platform/auth"
)

type Medications interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*medication.Medication, error)
}

type Logs interface {
	LogsForMonth(ctx context.Context, userID uuid.UUID, year int, month time.Month) ([]*medlog.Log, error)
	Today() medlog.Day
}

type Service struct {
	meds Medications
	logs Logs
}

func NewService(meds Medications, logs Logs) *Service {
	return &Service{meds: meds, logs: logs}
}

type Dashboard struct {
	Today       medlog.Day               `json:"today"`
	TodayStatus Status                   `json:"today_status,omitempty"`
	Medications []*medication.Medication `json:"medications"`
	Calendar    *Calendar                `json:"calendar"`
}

// Dashboard builds the adherence calendar for the session user. Any failed
// load fails the whole dashboard.
func (s *Service) Dashboard(ctx context.Context, sess *auth.Session, year int, month time.Month) (*Dashboard, error) {
	userID, err := auth.RequireUser(sess)
	if err != nil {
		return nil, err
	}
	return s.ForUser(ctx, userID, year, month)
}

// ForUser is Dashboard for an already authorised user id.
func (s *Service) ForUser(ctx context.Context, userID uuid.UUID, year int, month time.Month) (*Dashboard, error) {
	meds, err := s.meds.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load medications: %w", err)
	}
	logs, err := s.logs.LogsForMonth(ctx, userID, year, month)
	if err != nil {
		return nil, fmt.Errorf("load medication logs: %w", err)
	}

	today := s.logs.Today()
	d := &Dashboard{
		Today:       today,
		Medications: meds,
		Calendar:    BuildCalendar(year, month, today, meds, logs),
	}
	if today.Year == year && today.Month == month {
		d.TodayStatus = d.Calendar.Days[today.Day-1].Status
	}
	return d, nil
}
