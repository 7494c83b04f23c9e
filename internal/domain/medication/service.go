package medication

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/platform/querycache"
)

var (
	// ErrRequiredFields is shown to the user as is.
	ErrRequiredFields       = errors.New("All fields are required")
	ErrInvalidFrequency     = errors.New("invalid frequency")
	ErrConfirmationRequired = errors.New("deleting a medication removes its logs; confirmation required")
	ErrNotFound             = errors.New("medication not found")
)

type Service struct {
	repo  Repository
	cache *querycache.Cache
}

func NewService(repo Repository, cache *querycache.Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// normalize trims the input and applies the default frequency. Blank name or
// dosage is rejected before any repository call.
func normalize(in Input) (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Dosage = strings.TrimSpace(in.Dosage)
	if in.Name == "" || in.Dosage == "" {
		return in, ErrRequiredFields
	}
	if in.Frequency == "" {
		in.Frequency = DefaultFrequency
	}
	if !in.Frequency.Valid() {
		return in, fmt.Errorf("%w: %q", ErrInvalidFrequency, in.Frequency)
	}
	return in, nil
}

// List returns the session user's medications, newest first.
func (s *Service) List(ctx context.Context, sess *auth.Session) ([]*Medication, error) {
	userID, err := auth.RequireUser(sess)
	if err != nil {
		return nil, err
	}
	return s.ListForUser(ctx, userID)
}

// ListForUser is the cached medication query shared by the dashboard and
// caretaker views.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]*Medication, error) {
	return querycache.Load(ctx, s.cache, querycache.MedicationsKey(userID.String()),
		func(ctx context.Context) ([]*Medication, error) {
			return s.repo.ListByUser(ctx, userID)
		})
}

func (s *Service) Add(ctx context.Context, sess *auth.Session, in Input) (*Medication, error) {
	userID, err := auth.RequireUser(sess)
	if err != nil {
		return nil, err
	}
	in, err = normalize(in)
	if err != nil {
		return nil, err
	}

	m := &Medication{
		UserID:    userID,
		Name:      in.Name,
		Dosage:    in.Dosage,
		Frequency: in.Frequency,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	s.cache.Invalidate(querycache.AddMedication, userID.String())
	return m, nil
}

// Edit replaces name, dosage and frequency of a medication the user owns.
func (s *Service) Edit(ctx context.Context, sess *auth.Session, id uuid.UUID, in Input) (*Medication, error) {
	userID, err := auth.RequireUser(sess)
	if err != nil {
		return nil, err
	}
	in, err = normalize(in)
	if err != nil {
		return nil, err
	}

	m, err := s.repo.Update(ctx, id, userID, Patch{
		Name:      &in.Name,
		Dosage:    &in.Dosage,
		Frequency: &in.Frequency,
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(querycache.EditMedication, userID.String())
	return m, nil
}

// Delete removes a medication and all of its logs. confirmed must be true.
func (s *Service) Delete(ctx context.Context, sess *auth.Session, id uuid.UUID, confirmed bool) error {
	userID, err := auth.RequireUser(sess)
	if err != nil {
		return err
	}
	if !confirmed {
		return ErrConfirmationRequired
	}
	if _, err := s.repo.GetByID(ctx, id, userID); err != nil {
		return err
	}
	if err := s.repo.DeleteWithLogs(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(querycache.DeleteMedication, userID.String())
	return nil
}
