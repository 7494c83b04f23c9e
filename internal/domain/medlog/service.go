package medlog

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/medtrack/internal/domain/medication"
	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/platform/blobstore"
	"github.com/medtrack/medtrack/internal/platform/querycache"
)

var ErrNotFound = errors.New("medication log not found")

// Medications is the cached medication query.
type Medications interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*medication.Medication, error)
}

type Options struct {
	// PublicBaseURL prefixes proof photo links in the today view.
	PublicBaseURL string
	// Location decides which calendar day "today" is.
	Location *time.Location
}

type Service struct {
	repo    Repository
	meds    Medications
	store   blobstore.ObjectStore
	cache   *querycache.Cache
	baseURL string
	loc     *time.Location
	now     func() time.Time
}

func NewService(repo Repository, meds Medications, store blobstore.ObjectStore, cache *querycache.Cache, opts Options) *Service {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:    repo,
		meds:    meds,
		store:   store,
		cache:   cache,
		baseURL: opts.PublicBaseURL,
		loc:     loc,
		now:     time.Now,
	}
}

// Today is the current calendar day in the configured location.
func (s *Service) Today() Day {
	return DayOf(s.now().In(s.loc))
}

// LogsForDay is the cached per-day log query.
func (s *Service) LogsForDay(ctx context.Context, userID uuid.UUID, day Day) ([]*Log, error) {
	return querycache.Load(ctx, s.cache, querycache.LogsTodayKey(userID.String(), day.String()),
		func(ctx context.Context) ([]*Log, error) {
			return s.repo.ListForDay(ctx, userID, day)
		})
}

// LogsForMonth is the cached query for every log of the user in the month.
func (s *Service) LogsForMonth(ctx context.Context, userID uuid.UUID, year int, month time.Month) ([]*Log, error) {
	return querycache.Load(ctx, s.cache, querycache.LogsMonthKey(userID.String(), year, int(month)),
		func(ctx context.Context) ([]*Log, error) {
			from, to := MonthRange(year, month)
			return s.repo.ListForRange(ctx, userID, from, to)
		})
}

// MonthLogs is LogsForMonth for the session user.
func (s *Service) MonthLogs(ctx context.Context, sess *auth.Session, year int, month time.Month) ([]*Log, error) {
	userID, err := auth.RequireUser(sess)
	if err != nil {
		return nil, err
	}
	return s.LogsForMonth(ctx, userID, year, month)
}

// PhotoPath is where a proof photo for the dose is stored inside the
// proof photos bucket.
func PhotoPath(userID, medicationID uuid.UUID, day Day, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "photo"
	}
	return fmt.Sprintf("%s/%s/%s-%s", userID, medicationID, day, name)
}

// MarkTaken records today's dose of the medication as taken. When a photo is
// given it is uploaded first, overwriting any earlier photo for the same
// dose, and its path is stored on the log. Marking twice keeps one log.
func (s *Service) MarkTaken(ctx context.Context, sess *auth.Session, medicationID uuid.UUID, photo *Photo) (*Log, error) {
	userID, err := auth.RequireUser(sess)
	if err != nil {
		return nil, err
	}
	if err := s.ownsMedication(ctx, userID, medicationID); err != nil {
		return nil, err
	}

	today := s.Today()
	var photoPath *string
	if photo != nil {
		meta, err := s.store.Upload(ctx, blobstore.UploadInput{
			Bucket:      blobstore.ProofPhotosBucket,
			Path:        PhotoPath(userID, medicationID, today, photo.Filename),
			ContentType: photo.ContentType,
			Body:        photo.Body,
			Upsert:      true,
		})
		if err != nil {
			return nil, fmt.Errorf("upload proof photo: %w", err)
		}
		photoPath = &meta.Path
	}

	l := &Log{
		UserID:        userID,
		MedicationID:  medicationID,
		Date:          today,
		Taken:         true,
		ProofPhotoURL: photoPath,
	}
	if err := s.repo.Upsert(ctx, l); err != nil {
		return nil, err
	}
	s.cache.Invalidate(querycache.MarkTaken, userID.String())
	return l, nil
}

// DeleteLog removes one of the user's logs.
func (s *Service) DeleteLog(ctx context.Context, sess *auth.Session, id uuid.UUID) error {
	userID, err := auth.RequireUser(sess)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id, userID); err != nil {
		return err
	}
	s.cache.Invalidate(querycache.MarkTaken, userID.String())
	return nil
}

func (s *Service) ownsMedication(ctx context.Context, userID, medicationID uuid.UUID) error {
	meds, err := s.meds.ListForUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, m := range meds {
		if m.ID == medicationID {
			return nil
		}
	}
	return medication.ErrNotFound
}

// TodayView lists every medication with its log for today, if any.
func (s *Service) TodayView(ctx context.Context, sess *auth.Session) (*TodayView, error) {
	userID, err := auth.RequireUser(sess)
	if err != nil {
		return nil, err
	}
	meds, err := s.meds.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	today := s.Today()
	logs, err := s.LogsForDay(ctx, userID, today)
	if err != nil {
		return nil, err
	}

	byMed := make(map[uuid.UUID]*Log, len(logs))
	for _, l := range logs {
		byMed[l.MedicationID] = l
	}

	view := &TodayView{Date: today, Items: make([]TodayItem, 0, len(meds))}
	for _, m := range meds {
		item := TodayItem{Medication: m}
		if l, ok := byMed[m.ID]; ok {
			item.Log = l
			item.Completed = l.Taken
			if l.Taken && l.ProofPhotoURL != nil && *l.ProofPhotoURL != "" {
				item.ProofPhotoPublicURL = blobstore.PublicURL(s.baseURL, blobstore.ProofPhotosBucket, *l.ProofPhotoURL)
			}
		}
		view.Items = append(view.Items, item)
	}
	return view, nil
}
