package syncer

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"pulsecoach/internal/models"
	"pulsecoach/internal/whoop"
)

type fakeFetcher struct {
	sleep       []models.SleepRecord
	sleepErr    error
	recovery    []models.RecoveryRecord
	recoveryErr error
	workouts    []models.WorkoutRecord
	workoutErr  error

	calls map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{calls: make(map[string]int)}
}

func (f *fakeFetcher) FetchSleep(ctx context.Context, userID string, q whoop.Query) ([]models.SleepRecord, error) {
	f.calls["sleep"]++
	return f.sleep, f.sleepErr
}

func (f *fakeFetcher) FetchRecovery(ctx context.Context, userID string, q whoop.Query) ([]models.RecoveryRecord, error) {
	f.calls["recovery"]++
	return f.recovery, f.recoveryErr
}

func (f *fakeFetcher) FetchWorkouts(ctx context.Context, userID string, q whoop.Query) ([]models.WorkoutRecord, error) {
	f.calls["workouts"]++
	return f.workouts, f.workoutErr
}

type fakeMetricsStore struct {
	linked    []string
	upserts   []models.DailyMetrics
	upsertErr error
}

func (s *fakeMetricsStore) ListLinkedUserIDs() ([]string, error) {
	return s.linked, nil
}

func (s *fakeMetricsStore) UpsertDailyMetrics(m models.DailyMetrics) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts = append(s.upserts, m)
	return nil
}

func TestSyncUserAllCategories(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.sleep = []models.SleepRecord{{ID: "sl-1"}}
	fetcher.recovery = []models.RecoveryRecord{{CycleID: 9}}
	fetcher.workouts = []models.WorkoutRecord{{ID: "wk-1"}}
	store := &fakeMetricsStore{}
	s := NewSynchronizer(store, fetcher)

	out, err := s.SyncUser(context.Background(), "42", "2026-08-29")
	if err != nil {
		t.Fatalf("SyncUser failed: %v", err)
	}
	if out.Partial {
		t.Error("expected complete sync, got partial")
	}
	if out.Sleep.Count != 1 || out.Recovery.Count != 1 || out.Workout.Count != 1 {
		t.Errorf("unexpected counts: %+v", out)
	}
	if len(store.upserts) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(store.upserts))
	}
	m := store.upserts[0]
	if m.UserID != "42" || m.Date != "2026-08-29" {
		t.Errorf("upsert keyed wrong: %+v", m)
	}
	if len(m.SleepRecords) != 1 || len(m.RecoveryRecords) != 1 || len(m.WorkoutRecords) != 1 {
		t.Errorf("records not carried into upsert: %+v", m)
	}
}

func TestSyncUserIdempotent(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.sleep = []models.SleepRecord{{ID: "sl-1"}}
	fetcher.recovery = []models.RecoveryRecord{{CycleID: 9}}
	fetcher.workouts = []models.WorkoutRecord{{ID: "wk-1"}}
	store := &fakeMetricsStore{}
	s := NewSynchronizer(store, fetcher)

	if _, err := s.SyncUser(context.Background(), "42", "2026-08-29"); err != nil {
		t.Fatalf("first SyncUser failed: %v", err)
	}
	if _, err := s.SyncUser(context.Background(), "42", "2026-08-29"); err != nil {
		t.Fatalf("second SyncUser failed: %v", err)
	}
	if len(store.upserts) != 2 {
		t.Fatalf("expected 2 upserts, got %d", len(store.upserts))
	}

	// With unchanged upstream data the second write replaces the first with
	// an equal record, only the sync timestamp moves.
	first, second := store.upserts[0], store.upserts[1]
	first.SyncedAt, second.SyncedAt = time.Time{}, time.Time{}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated sync diverged:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestSyncUserPartialFailure(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.sleep = []models.SleepRecord{{ID: "sl-1"}}
	fetcher.recoveryErr = &whoop.Error{Kind: whoop.KindUpstreamError, Status: 502, Message: "bad gateway"}
	fetcher.workouts = []models.WorkoutRecord{{ID: "wk-1"}}
	store := &fakeMetricsStore{}
	s := NewSynchronizer(store, fetcher)

	out, err := s.SyncUser(context.Background(), "42", "2026-08-29")
	if err != nil {
		t.Fatalf("SyncUser should tolerate a category failure: %v", err)
	}
	if !out.Partial {
		t.Error("expected partial outcome")
	}
	if out.Recovery.Err == nil {
		t.Error("expected recovery error in outcome")
	}
	if len(store.upserts) != 1 {
		t.Fatalf("expected upsert despite partial failure, got %d", len(store.upserts))
	}
	m := store.upserts[0]
	if len(m.SleepRecords) != 1 || len(m.WorkoutRecords) != 1 {
		t.Errorf("surviving categories should be written: %+v", m)
	}
	if m.RecoveryRecords == nil || len(m.RecoveryRecords) != 0 {
		t.Errorf("failed category should be an empty sequence, got %+v", m.RecoveryRecords)
	}
}

func TestSyncUserNotLinkedShortCircuits(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.sleepErr = &whoop.Error{Kind: whoop.KindNotLinked, Message: "no credential"}
	store := &fakeMetricsStore{}
	s := NewSynchronizer(store, fetcher)

	_, err := s.SyncUser(context.Background(), "42", "2026-08-29")
	if !whoop.IsKind(err, whoop.KindNotLinked) {
		t.Fatalf("expected not_linked error, got %v", err)
	}
	if fetcher.calls["recovery"] != 0 || fetcher.calls["workouts"] != 0 {
		t.Errorf("remaining categories should not be fetched: %v", fetcher.calls)
	}
	if len(store.upserts) != 0 {
		t.Errorf("nothing should be written for an unlinked user, got %d upserts", len(store.upserts))
	}
}

func TestSyncUserInvalidDate(t *testing.T) {
	s := NewSynchronizer(&fakeMetricsStore{}, newFakeFetcher())
	if _, err := s.SyncUser(context.Background(), "42", "29-08-2026"); !errors.Is(err, models.ErrInvalidDate) {
		t.Fatalf("expected invalid date error, got %v", err)
	}
}

func TestSyncUserUpsertFailure(t *testing.T) {
	fetcher := newFakeFetcher()
	store := &fakeMetricsStore{upsertErr: errors.New("disk full")}
	s := NewSynchronizer(store, fetcher)

	if _, err := s.SyncUser(context.Background(), "42", "2026-08-29"); err == nil {
		t.Fatal("expected error when upsert fails")
	}
}

// failingFetcher fails every category for one specific user.
type failingFetcher struct {
	fakeFetcher
	failUser string
}

func (f *failingFetcher) FetchSleep(ctx context.Context, userID string, q whoop.Query) ([]models.SleepRecord, error) {
	if userID == f.failUser {
		return nil, &whoop.Error{Kind: whoop.KindNotLinked, Message: "no credential"}
	}
	return f.fakeFetcher.FetchSleep(ctx, userID, q)
}

func TestSyncAllIsolatesFailures(t *testing.T) {
	fetcher := &failingFetcher{fakeFetcher: *newFakeFetcher(), failUser: "2"}
	store := &fakeMetricsStore{linked: []string{"1", "2", "3"}}
	s := NewSynchronizer(store, fetcher)

	report, err := s.SyncAll(context.Background(), "2026-08-29")
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if report.Total != 3 || report.Synced != 2 || report.Failed != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
	if len(store.upserts) != 2 {
		t.Errorf("expected 2 upserts, got %d", len(store.upserts))
	}
}

func TestSyncAllCanceledContext(t *testing.T) {
	store := &fakeMetricsStore{linked: []string{"1", "2"}}
	s := NewSynchronizer(store, newFakeFetcher())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.SyncAll(ctx, "2026-08-29"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDayHelpersUseLocation(t *testing.T) {
	loc := time.FixedZone("TEST", -12*60*60)
	s := NewSynchronizer(&fakeMetricsStore{}, newFakeFetcher(), WithLocation(loc))

	wantToday := time.Now().In(loc).Format(models.DateLayout)
	if got := s.Today(); got != wantToday {
		t.Errorf("Today() = %s, want %s", got, wantToday)
	}
	wantYesterday := time.Now().In(loc).AddDate(0, 0, -1).Format(models.DateLayout)
	if got := s.Yesterday(); got != wantYesterday {
		t.Errorf("Yesterday() = %s, want %s", got, wantYesterday)
	}
}
