package medlog

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/medtrack/internal/domain/medication"
	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/platform/blobstore"
	"github.com/medtrack/medtrack/internal/platform/querycache"
)

// -- Mock Repository --

type logKey struct {
	user, med uuid.UUID
	day       Day
}

type mockRepo struct {
	logs        map[logKey]*Log
	upsertCalls int
	dayCalls    int
	rangeCalls  int
}

func newMockRepo() *mockRepo {
	return &mockRepo{logs: make(map[logKey]*Log)}
}

func (m *mockRepo) Get(_ context.Context, userID, medicationID uuid.UUID, day Day) (*Log, error) {
	l, ok := m.logs[logKey{userID, medicationID, day}]
	if !ok {
		return nil, ErrNotFound
	}
	return l, nil
}

func (m *mockRepo) ListForDay(_ context.Context, userID uuid.UUID, day Day) ([]*Log, error) {
	m.dayCalls++
	var out []*Log
	for k, l := range m.logs {
		if k.user == userID && k.day == day {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *mockRepo) ListForRange(_ context.Context, userID uuid.UUID, from, to Day) ([]*Log, error) {
	m.rangeCalls++
	var out []*Log
	for k, l := range m.logs {
		if k.user == userID && !k.day.Before(from) && !k.day.After(to) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *mockRepo) Upsert(_ context.Context, l *Log) error {
	m.upsertCalls++
	k := logKey{l.UserID, l.MedicationID, l.Date}
	if existing, ok := m.logs[k]; ok {
		existing.Taken = l.Taken
		existing.ProofPhotoURL = l.ProofPhotoURL
		l.ID = existing.ID
		l.CreatedAt = existing.CreatedAt
		return nil
	}
	l.ID = uuid.New()
	l.CreatedAt = time.Now()
	stored := *l
	m.logs[k] = &stored
	return nil
}

func (m *mockRepo) Update(_ context.Context, id, userID uuid.UUID, p Patch) (*Log, error) {
	for k, l := range m.logs {
		if l.ID == id && k.user == userID {
			if p.Taken != nil {
				l.Taken = *p.Taken
			}
			if p.ProofPhotoURL != nil {
				l.ProofPhotoURL = p.ProofPhotoURL
			}
			return l, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) Delete(_ context.Context, id, userID uuid.UUID) error {
	for k, l := range m.logs {
		if l.ID == id && k.user == userID {
			delete(m.logs, k)
			return nil
		}
	}
	return ErrNotFound
}

type mockMeds struct {
	meds []*medication.Medication
	err  error
}

func (m *mockMeds) ListForUser(_ context.Context, userID uuid.UUID) ([]*medication.Medication, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*medication.Medication
	for _, med := range m.meds {
		if med.UserID == userID {
			out = append(out, med)
		}
	}
	return out, nil
}

type fixture struct {
	svc   *Service
	repo  *mockRepo
	meds  *mockMeds
	store *blobstore.InMemory
	cache *querycache.Cache
	sess  *auth.Session
	user  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	user := uuid.New()
	f := &fixture{
		repo:  newMockRepo(),
		meds:  &mockMeds{},
		store: blobstore.NewInMemory(),
		cache: querycache.New(time.Minute),
		sess:  &auth.Session{UserID: user.String(), ExpiresAt: time.Now().Add(time.Hour)},
		user:  user,
	}
	f.svc = NewService(f.repo, f.meds, f.store, f.cache, Options{PublicBaseURL: "http://localhost:8000"})
	f.svc.now = func() time.Time { return time.Date(2024, 5, 15, 9, 30, 0, 0, time.UTC) }
	return f
}

func (f *fixture) addMed(name string) *medication.Medication {
	m := &medication.Medication{ID: uuid.New(), UserID: f.user, Name: name, Dosage: "1", Frequency: medication.OnceDaily}
	f.meds.meds = append(f.meds.meds, m)
	return m
}

func TestToday_UsesLocation(t *testing.T) {
	f := newFixture(t)
	f.svc.now = func() time.Time { return time.Date(2024, 5, 15, 23, 30, 0, 0, time.UTC) }
	if got := f.svc.Today().String(); got != "2024-05-15" {
		t.Errorf("expected 2024-05-15 in UTC, got %s", got)
	}
	f.svc.loc = time.FixedZone("UTC+2", 2*60*60)
	if got := f.svc.Today().String(); got != "2024-05-16" {
		t.Errorf("expected 2024-05-16 in UTC+2, got %s", got)
	}
}

func TestMarkTaken_NoPhoto(t *testing.T) {
	f := newFixture(t)
	med := f.addMed("A")

	l, err := f.svc.MarkTaken(context.Background(), f.sess, med.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !l.Taken || l.Date.String() != "2024-05-15" {
		t.Errorf("unexpected log %+v", l)
	}
	if l.ProofPhotoURL != nil {
		t.Errorf("expected no photo, got %q", *l.ProofPhotoURL)
	}
}

func TestMarkTaken_TwiceKeepsOneLog(t *testing.T) {
	f := newFixture(t)
	med := f.addMed("A")
	ctx := context.Background()

	first, err := f.svc.MarkTaken(ctx, f.sess, med.ID, nil)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := f.svc.MarkTaken(ctx, f.sess, med.ID, nil)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if len(f.repo.logs) != 1 {
		t.Errorf("expected 1 log, got %d", len(f.repo.logs))
	}
	if first.ID != second.ID {
		t.Error("expected the same log to be updated")
	}
}

func TestMarkTaken_WithPhotoUploadsFirst(t *testing.T) {
	f := newFixture(t)
	med := f.addMed("A")
	ctx := context.Background()

	photo := &Photo{Filename: "pill.png", ContentType: "image/png", Body: bytes.NewReader([]byte("png-1"))}
	l, err := f.svc.MarkTaken(ctx, f.sess, med.ID, photo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := f.user.String() + "/" + med.ID.String() + "/2024-05-15-pill.png"
	if l.ProofPhotoURL == nil || *l.ProofPhotoURL != want {
		t.Fatalf("expected photo path %q, got %v", want, l.ProofPhotoURL)
	}

	// Retaking with a new photo overwrites the object at the same path.
	photo = &Photo{Filename: "pill.png", ContentType: "image/png", Body: bytes.NewReader([]byte("png-2"))}
	if _, err := f.svc.MarkTaken(ctx, f.sess, med.ID, photo); err != nil {
		t.Fatalf("retake: %v", err)
	}
	rc, _, err := f.store.Download(ctx, blobstore.ProofPhotosBucket, want)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer rc.Close()
	buf := new(bytes.Buffer)
	buf.ReadFrom(rc)
	if buf.String() != "png-2" {
		t.Errorf("expected overwritten photo, got %q", buf.String())
	}
}

func TestMarkTaken_PhotoNameWithDots(t *testing.T) {
	f := newFixture(t)
	med := f.addMed("A")
	ctx := context.Background()

	photo := &Photo{Filename: "pill..jpg", ContentType: "image/jpeg", Body: strings.NewReader("jpg")}
	l, err := f.svc.MarkTaken(ctx, f.sess, med.ID, photo)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := f.user.String() + "/" + med.ID.String() + "/2024-05-15-pill..jpg"
	if l.ProofPhotoURL == nil || *l.ProofPhotoURL != want {
		t.Fatalf("expected photo path %q, got %v", want, l.ProofPhotoURL)
	}
	rc, _, err := f.store.Download(ctx, blobstore.ProofPhotosBucket, want)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	rc.Close()
}

func TestMarkTaken_RejectedPhotoSkipsUpsert(t *testing.T) {
	f := newFixture(t)
	med := f.addMed("A")

	photo := &Photo{Filename: "notes.txt", ContentType: "text/plain", Body: strings.NewReader("hi")}
	_, err := f.svc.MarkTaken(context.Background(), f.sess, med.ID, photo)
	if !errors.Is(err, blobstore.ErrInvalidContentType) {
		t.Fatalf("expected ErrInvalidContentType, got %v", err)
	}
	if f.repo.upsertCalls != 0 {
		t.Error("expected no upsert after failed upload")
	}
}

func TestMarkTaken_UnknownMedication(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.MarkTaken(context.Background(), f.sess, uuid.New(), nil)
	if !errors.Is(err, medication.ErrNotFound) {
		t.Errorf("expected medication.ErrNotFound, got %v", err)
	}
}

func TestMarkTaken_NoSession(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.MarkTaken(context.Background(), nil, uuid.New(), nil); !errors.Is(err, auth.ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestMarkTaken_InvalidatesLogQueries(t *testing.T) {
	f := newFixture(t)
	med := f.addMed("A")
	ctx := context.Background()

	if _, err := f.svc.TodayView(ctx, f.sess); err != nil {
		t.Fatalf("today: %v", err)
	}
	if _, err := f.svc.LogsForMonth(ctx, f.user, 2024, time.May); err != nil {
		t.Fatalf("month: %v", err)
	}
	medsKey := querycache.MedicationsKey(f.user.String())
	querycache.Load(ctx, f.cache, medsKey, func(ctx context.Context) (int, error) { return 1, nil })
	if f.cache.Len() != 3 {
		t.Fatalf("expected 3 cached queries, got %d", f.cache.Len())
	}

	if _, err := f.svc.MarkTaken(ctx, f.sess, med.ID, nil); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if f.cache.Len() != 1 {
		t.Errorf("expected only the medication list to stay cached, got %d entries", f.cache.Len())
	}

	view, err := f.svc.TodayView(ctx, f.sess)
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if f.repo.dayCalls != 2 {
		t.Errorf("expected refetch of today's logs, got %d calls", f.repo.dayCalls)
	}
	if !view.Items[0].Completed {
		t.Error("expected medication to be completed after marking")
	}
}

func TestTodayView(t *testing.T) {
	f := newFixture(t)
	a := f.addMed("A")
	b := f.addMed("B")
	ctx := context.Background()

	photo := &Photo{Filename: "a.jpg", ContentType: "image/jpeg", Body: strings.NewReader("jpg")}
	if _, err := f.svc.MarkTaken(ctx, f.sess, a.ID, photo); err != nil {
		t.Fatalf("mark: %v", err)
	}

	view, err := f.svc.TodayView(ctx, f.sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Date.String() != "2024-05-15" || len(view.Items) != 2 {
		t.Fatalf("unexpected view %+v", view)
	}

	for _, item := range view.Items {
		switch item.Medication.ID {
		case a.ID:
			if !item.Completed {
				t.Error("expected A completed")
			}
			want := "http://localhost:8000/storage/v1/object/public/proof-photos/" +
				f.user.String() + "/" + a.ID.String() + "/2024-05-15-a.jpg"
			if item.ProofPhotoPublicURL != want {
				t.Errorf("expected public url %q, got %q", want, item.ProofPhotoPublicURL)
			}
		case b.ID:
			if item.Completed || item.Log != nil {
				t.Error("expected B actionable")
			}
		}
	}
}

func TestTodayView_ReadThroughSeesWritesFromElsewhere(t *testing.T) {
	f := newFixture(t)
	f.svc = NewService(f.repo, f.meds, f.store, querycache.New(0), Options{PublicBaseURL: "http://localhost:8000"})
	f.svc.now = func() time.Time { return time.Date(2024, 5, 15, 9, 30, 0, 0, time.UTC) }
	med := f.addMed("A")
	ctx := context.Background()

	before, err := f.svc.TodayView(ctx, f.sess)
	if err != nil {
		t.Fatalf("first view: %v", err)
	}
	if before.Items[0].Completed {
		t.Fatal("expected not taken before any log")
	}

	// Recorded by the API server, not through this service.
	today := f.svc.Today()
	if err := f.repo.Upsert(ctx, &Log{UserID: f.user, MedicationID: med.ID, Date: today, Taken: true}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	after, err := f.svc.TodayView(ctx, f.sess)
	if err != nil {
		t.Fatalf("second view: %v", err)
	}
	if !after.Items[0].Completed {
		t.Error("expected the dose recorded elsewhere to show as taken")
	}
}

func TestTodayView_MedicationsError(t *testing.T) {
	f := newFixture(t)
	f.meds.err = errors.New("connection refused")
	if _, err := f.svc.TodayView(context.Background(), f.sess); err == nil {
		t.Error("expected error")
	}
}

func TestLogsForMonth_Range(t *testing.T) {
	f := newFixture(t)
	med := f.addMed("A")
	for _, d := range []string{"2024-04-30", "2024-05-01", "2024-05-31", "2024-06-01"} {
		day, _ := ParseDay(d)
		f.repo.Upsert(context.Background(), &Log{UserID: f.user, MedicationID: med.ID, Date: day, Taken: true})
	}

	logs, err := f.svc.LogsForMonth(context.Background(), f.user, 2024, time.May)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs) != 2 {
		t.Errorf("expected 2 logs in May, got %d", len(logs))
	}
}

func TestDeleteLog(t *testing.T) {
	f := newFixture(t)
	med := f.addMed("A")
	ctx := context.Background()
	l, _ := f.svc.MarkTaken(ctx, f.sess, med.ID, nil)

	other := &auth.Session{UserID: uuid.NewString()}
	if err := f.svc.DeleteLog(ctx, other, l.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for another user, got %v", err)
	}
	if err := f.svc.DeleteLog(ctx, f.sess, l.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.repo.logs) != 0 {
		t.Error("expected log removed")
	}
}

func TestPhotoPath(t *testing.T) {
	u, m := uuid.New(), uuid.New()
	day := Day{2024, time.May, 6}
	tests := []struct {
		filename string
		want     string
	}{
		{"pill.png", "2024-05-06-pill.png"},
		{"../../etc/passwd", "2024-05-06-passwd"},
		{`C:\photos\pill.jpg`, "2024-05-06-pill.jpg"},
		{"", "2024-05-06-photo"},
	}
	for _, tt := range tests {
		got := PhotoPath(u, m, day, tt.filename)
		if got != u.String()+"/"+m.String()+"/"+tt.want {
			t.Errorf("PhotoPath(%q) = %q", tt.filename, got)
		}
	}
}
