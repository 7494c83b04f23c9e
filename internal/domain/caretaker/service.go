package caretaker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/domain/adherence"
	"github.com/medtrack/medtrack/internal/domain/medlog"
	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/platform/changefeed"
	"github.com/medtrack/medtrack/internal/platform/querycache"
)

var ErrNotLinked = errors.New("not a caretaker of this patient")

// LogReader is the medication log range query.
type LogReader interface {
	ListForRange(ctx context.Context, userID uuid.UUID, from, to medlog.Day) ([]*medlog.Log, error)
}

// Scope runs fn with database access on behalf of userID. Live views use it
// for their initial load so that the connection is not held for the life of
// the stream.
type Scope func(ctx context.Context, userID string, fn func(ctx context.Context) error) error

type Options struct {
	Scope  Scope
	Today  func() medlog.Day
	Logger zerolog.Logger
}

type Service struct {
	repo   Repository
	logs   LogReader
	cache  *querycache.Cache
	source changefeed.Source
	scope  Scope
	today  func() medlog.Day
	logger zerolog.Logger
}

func NewService(repo Repository, logs LogReader, cache *querycache.Cache, source changefeed.Source, opts Options) *Service {
	s := &Service{
		repo:   repo,
		logs:   logs,
		cache:  cache,
		source: source,
		scope:  opts.Scope,
		today:  opts.Today,
		logger: opts.Logger.With().Str("component", "caretaker").Logger(),
	}
	if s.scope == nil {
		s.scope = func(ctx context.Context, _ string, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	if s.today == nil {
		s.today = func() medlog.Day { return medlog.DayOf(time.Now().UTC()) }
	}
	return s
}

// Today is the day the service treats as the current one.
func (s *Service) Today() medlog.Day {
	return s.today()
}

func (s *Service) ListPatients(ctx context.Context, sess *auth.Session) ([]Patient, error) {
	caretakerID, err := auth.RequireUser(sess)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPatients(ctx, caretakerID)
}

func (s *Service) authorize(ctx context.Context, caretakerID, patientID uuid.UUID) error {
	linked, err := s.repo.IsLinked(ctx, caretakerID, patientID)
	if err != nil {
		return err
	}
	if !linked {
		return ErrNotLinked
	}
	return nil
}

func (s *Service) monthLogs(ctx context.Context, patientID uuid.UUID, year int, month time.Month) ([]*medlog.Log, error) {
	from, to := medlog.MonthRange(year, month)
	return s.logs.ListForRange(ctx, patientID, from, to)
}

// PatientLogs returns the patient's logs for the month through the cache.
func (s *Service) PatientLogs(ctx context.Context, sess *auth.Session, patientID uuid.UUID, year int, month time.Month) (*Snapshot, error) {
	caretakerID, err := auth.RequireUser(sess)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, caretakerID, patientID); err != nil {
		return nil, err
	}

	logs, err := querycache.Load(ctx, s.cache, querycache.CaretakerLogsKey(patientID.String(), year, int(month)),
		func(ctx context.Context) ([]*medlog.Log, error) {
			return s.monthLogs(ctx, patientID, year, month)
		})
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		PatientID:  patientID,
		Logs:       logs,
		Percentage: adherence.LivePercentage(logs),
	}, nil
}

// OpenLiveView checks the link and starts a live view over the patient's
// logs for the current month. The caller must Close it.
func (s *Service) OpenLiveView(ctx context.Context, sess *auth.Session, patientID uuid.UUID) (*LiveView, error) {
	caretakerID, err := auth.RequireUser(sess)
	if err != nil {
		return nil, err
	}

	today := s.today()
	view := NewLiveView(patientID, func(ctx context.Context) ([]*medlog.Log, error) {
		return s.monthLogs(ctx, patientID, today.Year, today.Month)
	}, s.source, s.logger)

	err = s.scope(ctx, caretakerID.String(), func(ctx context.Context) error {
		if err := s.authorize(ctx, caretakerID, patientID); err != nil {
			return err
		}
		return view.Start(ctx)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug().
		Str("caretaker_id", caretakerID.String()).
		Str("patient_id", patientID.String()).
		Msg("live view started")
	return view, nil
}
