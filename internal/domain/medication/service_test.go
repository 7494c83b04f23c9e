package medication

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/platform/querycache"
)

// -- Mock Repository --

type mockRepo struct {
	meds        map[uuid.UUID]*Medication
	createCalls int
	listCalls   int
	deleted     []uuid.UUID
	failWith    error
}

func newMockRepo() *mockRepo {
	return &mockRepo{meds: make(map[uuid.UUID]*Medication)}
}

func (m *mockRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]*Medication, error) {
	m.listCalls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []*Medication
	for _, med := range m.meds {
		if med.UserID == userID {
			out = append(out, med)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockRepo) GetByID(_ context.Context, id, userID uuid.UUID) (*Medication, error) {
	med, ok := m.meds[id]
	if !ok || med.UserID != userID {
		return nil, ErrNotFound
	}
	return med, nil
}

func (m *mockRepo) Create(_ context.Context, med *Medication) error {
	m.createCalls++
	if m.failWith != nil {
		return m.failWith
	}
	med.ID = uuid.New()
	med.CreatedAt = time.Now().Add(time.Duration(len(m.meds)) * time.Second)
	m.meds[med.ID] = med
	return nil
}

func (m *mockRepo) Update(_ context.Context, id, userID uuid.UUID, p Patch) (*Medication, error) {
	med, ok := m.meds[id]
	if !ok || med.UserID != userID {
		return nil, ErrNotFound
	}
	if p.Name != nil {
		med.Name = *p.Name
	}
	if p.Dosage != nil {
		med.Dosage = *p.Dosage
	}
	if p.Frequency != nil {
		med.Frequency = *p.Frequency
	}
	return med, nil
}

func (m *mockRepo) Delete(_ context.Context, id, userID uuid.UUID) error {
	med, ok := m.meds[id]
	if !ok || med.UserID != userID {
		return ErrNotFound
	}
	delete(m.meds, id)
	return nil
}

func (m *mockRepo) DeleteWithLogs(_ context.Context, id uuid.UUID) error {
	delete(m.meds, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func newTestService() (*Service, *mockRepo, *querycache.Cache) {
	repo := newMockRepo()
	cache := querycache.New(time.Minute)
	return NewService(repo, cache), repo, cache
}

func testSession() *auth.Session {
	return &auth.Session{UserID: uuid.NewString(), ExpiresAt: time.Now().Add(time.Hour)}
}

func TestAdd_Valid(t *testing.T) {
	svc, repo, _ := newTestService()
	sess := testSession()

	m, err := svc.Add(context.Background(), sess, Input{Name: "  Aspirin ", Dosage: "100mg"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Name != "Aspirin" {
		t.Errorf("expected trimmed name, got %q", m.Name)
	}
	if m.Frequency != OnceDaily {
		t.Errorf("expected default frequency, got %q", m.Frequency)
	}
	if m.UserID.String() != sess.UserID {
		t.Errorf("expected owner %s, got %s", sess.UserID, m.UserID)
	}
	if repo.createCalls != 1 {
		t.Errorf("expected 1 create, got %d", repo.createCalls)
	}
}

func TestAdd_BlankFieldsNoRepoCall(t *testing.T) {
	tests := []struct {
		name string
		in   Input
	}{
		{"empty name", Input{Name: "", Dosage: "100mg"}},
		{"blank dosage", Input{Name: "Aspirin", Dosage: "   "}},
		{"both blank", Input{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService()
			_, err := svc.Add(context.Background(), testSession(), tt.in)
			if !errors.Is(err, ErrRequiredFields) {
				t.Fatalf("expected ErrRequiredFields, got %v", err)
			}
			if err.Error() != "All fields are required" {
				t.Errorf("unexpected message %q", err.Error())
			}
			if repo.createCalls != 0 {
				t.Errorf("expected no create call, got %d", repo.createCalls)
			}
		})
	}
}

func TestAdd_InvalidFrequency(t *testing.T) {
	svc, repo, _ := newTestService()
	_, err := svc.Add(context.Background(), testSession(), Input{Name: "A", Dosage: "1", Frequency: "Hourly"})
	if !errors.Is(err, ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}
	if repo.createCalls != 0 {
		t.Error("expected no create call")
	}
}

func TestAdd_NoSession(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.Add(context.Background(), nil, Input{Name: "A", Dosage: "1"}); !errors.Is(err, auth.ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestAdd_BackendErrorSurfaced(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.failWith = errors.New("duplicate key value violates unique constraint")
	_, err := svc.Add(context.Background(), testSession(), Input{Name: "A", Dosage: "1"})
	if err == nil || err.Error() != "duplicate key value violates unique constraint" {
		t.Errorf("expected backend message verbatim, got %v", err)
	}
}

func TestList_CachedUntilMutation(t *testing.T) {
	svc, repo, _ := newTestService()
	sess := testSession()
	ctx := context.Background()

	if _, err := svc.List(ctx, sess); err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := svc.List(ctx, sess); err != nil {
		t.Fatalf("list: %v", err)
	}
	if repo.listCalls != 1 {
		t.Fatalf("expected cached list, got %d calls", repo.listCalls)
	}

	if _, err := svc.Add(ctx, sess, Input{Name: "A", Dosage: "1"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	items, err := svc.List(ctx, sess)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if repo.listCalls != 2 {
		t.Errorf("expected refetch after add, got %d calls", repo.listCalls)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 medication, got %d", len(items))
	}
}

func TestList_NewestFirst(t *testing.T) {
	svc, _, _ := newTestService()
	sess := testSession()
	ctx := context.Background()
	svc.Add(ctx, sess, Input{Name: "First", Dosage: "1"})
	svc.Add(ctx, sess, Input{Name: "Second", Dosage: "1"})

	items, _ := svc.List(ctx, sess)
	if len(items) != 2 || items[0].Name != "Second" {
		t.Errorf("expected newest first, got %+v", items)
	}
}

func TestEdit(t *testing.T) {
	svc, _, _ := newTestService()
	sess := testSession()
	ctx := context.Background()
	m, _ := svc.Add(ctx, sess, Input{Name: "A", Dosage: "1"})

	updated, err := svc.Edit(ctx, sess, m.ID, Input{Name: "B", Dosage: "2", Frequency: Weekly})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Name != "B" || updated.Dosage != "2" || updated.Frequency != Weekly {
		t.Errorf("unexpected medication %+v", updated)
	}

	if _, err := svc.Edit(ctx, sess, m.ID, Input{Name: "", Dosage: "2"}); !errors.Is(err, ErrRequiredFields) {
		t.Errorf("expected ErrRequiredFields, got %v", err)
	}
	if _, err := svc.Edit(ctx, testSession(), m.ID, Input{Name: "C", Dosage: "3"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for other user, got %v", err)
	}
}

func TestDelete_RequiresConfirmation(t *testing.T) {
	svc, repo, _ := newTestService()
	sess := testSession()
	ctx := context.Background()
	m, _ := svc.Add(ctx, sess, Input{Name: "A", Dosage: "1"})

	if err := svc.Delete(ctx, sess, m.ID, false); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("expected ErrConfirmationRequired, got %v", err)
	}
	if len(repo.deleted) != 0 {
		t.Fatal("expected nothing deleted without confirmation")
	}

	if err := svc.Delete(ctx, sess, m.ID, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != m.ID {
		t.Errorf("expected cascading delete of %s, got %v", m.ID, repo.deleted)
	}
}

func TestDelete_InvalidatesDependentQueries(t *testing.T) {
	svc, _, cache := newTestService()
	sess := testSession()
	ctx := context.Background()
	m, _ := svc.Add(ctx, sess, Input{Name: "A", Dosage: "1"})

	keys := []string{
		querycache.MedicationsKey(sess.UserID),
		querycache.LogsTodayKey(sess.UserID, "2024-05-01"),
		querycache.LogsMonthKey(sess.UserID, 2024, 5),
		querycache.CaretakerLogsKey(sess.UserID, 2024, 5),
	}
	for _, k := range keys {
		querycache.Load(ctx, cache, k, func(ctx context.Context) (int, error) { return 1, nil })
	}
	if cache.Len() != len(keys) {
		t.Fatalf("expected %d cached keys, got %d", len(keys), cache.Len())
	}

	if err := svc.Delete(ctx, sess, m.ID, true); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if cache.Len() != 0 {
		t.Errorf("expected all dependent queries invalidated, %d remain", cache.Len())
	}
}

func TestDelete_OtherUsersMedication(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	m, _ := svc.Add(ctx, testSession(), Input{Name: "A", Dosage: "1"})

	if err := svc.Delete(ctx, testSession(), m.ID, true); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if len(repo.deleted) != 0 {
		t.Error("expected no delete for another user's medication")
	}
}
