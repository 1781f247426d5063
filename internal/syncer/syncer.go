// Package syncer pulls daily WHOOP metrics into the store.
//
// One synchronization covers a single (user, day) pair: the three record
// categories are fetched independently and whatever arrived is written as that
// day's metrics document. A category that fails leaves an empty sequence, so a
// sweep can always make partial progress.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pulsecoach/internal/models"
	"pulsecoach/internal/whoop"
)

// DefaultFetchTimeout bounds each upstream category fetch.
const DefaultFetchTimeout = 30 * time.Second

// Fetcher is the slice of the WHOOP client the synchronizer depends on.
type Fetcher interface {
	FetchSleep(ctx context.Context, userID string, q whoop.Query) ([]models.SleepRecord, error)
	FetchRecovery(ctx context.Context, userID string, q whoop.Query) ([]models.RecoveryRecord, error)
	FetchWorkouts(ctx context.Context, userID string, q whoop.Query) ([]models.WorkoutRecord, error)
}

// MetricsStore is the slice of the store the synchronizer depends on.
type MetricsStore interface {
	ListLinkedUserIDs() ([]string, error)
	UpsertDailyMetrics(m models.DailyMetrics) error
}

// Opts holds configuration options for the synchronizer.
type Opts struct {
	Timeout  time.Duration
	Location *time.Location
}

// Option defines a configuration option for the synchronizer.
type Option func(*Opts)

// WithTimeout sets the per-category fetch timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.Timeout = d
	}
}

// WithLocation sets the time zone that decides where day boundaries fall.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) {
		o.Location = loc
	}
}

// CategoryStatus records how one record category fared during a sync.
type CategoryStatus struct {
	Count int   `json:"count"`
	Err   error `json:"-"`
}

// Outcome summarizes one (user, day) synchronization.
type Outcome struct {
	UserID   string         `json:"user_id"`
	Date     string         `json:"date"`
	Sleep    CategoryStatus `json:"sleep"`
	Recovery CategoryStatus `json:"recovery"`
	Workout  CategoryStatus `json:"workout"`
	Partial  bool           `json:"partial"`
}

// Report summarizes a sweep over all linked users.
type Report struct {
	Total    int       `json:"total"`
	Synced   int       `json:"synced"`
	Partial  int       `json:"partial"`
	Failed   int       `json:"failed"`
	Outcomes []Outcome `json:"outcomes"`
}

// Synchronizer fetches per-day metrics for linked users and upserts them.
type Synchronizer struct {
	store   MetricsStore
	fetcher Fetcher
	timeout time.Duration
	loc     *time.Location
}

// NewSynchronizer creates a synchronizer over the given store and fetcher.
func NewSynchronizer(store MetricsStore, fetcher Fetcher, opts ...Option) *Synchronizer {
	cfg := Opts{Timeout: DefaultFetchTimeout, Location: time.UTC}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	slog.Debug("Synchronizer created", "timeout", cfg.Timeout, "location", cfg.Location.String())
	return &Synchronizer{store: store, fetcher: fetcher, timeout: cfg.Timeout, loc: cfg.Location}
}

// Today returns the current date in the configured location, YYYY-MM-DD.
func (s *Synchronizer) Today() string {
	return time.Now().In(s.loc).Format(models.DateLayout)
}

// Yesterday returns the previous date in the configured location, YYYY-MM-DD.
func (s *Synchronizer) Yesterday() string {
	return time.Now().In(s.loc).AddDate(0, 0, -1).Format(models.DateLayout)
}

// SyncUser fetches the three record categories for one user and date and
// upserts the result. Category failures are tolerated and reported in the
// Outcome; the returned error is non-nil only when nothing could be done at
// all (unlinked user, invalid date, failed write).
func (s *Synchronizer) SyncUser(ctx context.Context, userID, date string) (Outcome, error) {
	out := Outcome{UserID: userID, Date: date}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return out, fmt.Errorf("Synchronizer.SyncUser: %w", models.ErrInvalidDate)
	}
	q := whoop.Query{StartDate: date, EndDate: date, Limit: 1}

	metrics := models.DailyMetrics{
		UserID:          userID,
		Date:            date,
		SleepRecords:    []models.SleepRecord{},
		RecoveryRecords: []models.RecoveryRecord{},
		WorkoutRecords:  []models.WorkoutRecord{},
		SyncedAt:        time.Now().UTC(),
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	sleep, err := s.fetcher.FetchSleep(fetchCtx, userID, q)
	cancel()
	if err != nil {
		// An unlinked user cannot produce data in any category; bail before
		// hammering the remaining endpoints.
		if whoop.IsKind(err, whoop.KindNotLinked) {
			slog.Debug("Synchronizer.SyncUser: user not linked", "userID", userID)
			return out, err
		}
		slog.Warn("Synchronizer.SyncUser: sleep fetch failed", "error", err, "userID", userID, "date", date)
		out.Sleep.Err = err
	} else {
		metrics.SleepRecords = sleep
		out.Sleep.Count = len(sleep)
	}

	fetchCtx, cancel = context.WithTimeout(ctx, s.timeout)
	recovery, err := s.fetcher.FetchRecovery(fetchCtx, userID, q)
	cancel()
	if err != nil {
		slog.Warn("Synchronizer.SyncUser: recovery fetch failed", "error", err, "userID", userID, "date", date)
		out.Recovery.Err = err
	} else {
		metrics.RecoveryRecords = recovery
		out.Recovery.Count = len(recovery)
	}

	fetchCtx, cancel = context.WithTimeout(ctx, s.timeout)
	workouts, err := s.fetcher.FetchWorkouts(fetchCtx, userID, q)
	cancel()
	if err != nil {
		slog.Warn("Synchronizer.SyncUser: workout fetch failed", "error", err, "userID", userID, "date", date)
		out.Workout.Err = err
	} else {
		metrics.WorkoutRecords = workouts
		out.Workout.Count = len(workouts)
	}

	out.Partial = out.Sleep.Err != nil || out.Recovery.Err != nil || out.Workout.Err != nil

	if err := s.store.UpsertDailyMetrics(metrics); err != nil {
		slog.Error("Synchronizer.SyncUser: upsert failed", "error", err, "userID", userID, "date", date)
		return out, fmt.Errorf("failed to upsert daily metrics for %s: %w", userID, err)
	}
	slog.Info("Synchronizer.SyncUser: synced", "userID", userID, "date", date,
		"sleep", out.Sleep.Count, "recovery", out.Recovery.Count, "workouts", out.Workout.Count, "partial", out.Partial)
	return out, nil
}

// SyncAll runs SyncUser for every linked user for the given date. One user's
// failure never stops the sweep.
func (s *Synchronizer) SyncAll(ctx context.Context, date string) (Report, error) {
	ids, err := s.store.ListLinkedUserIDs()
	if err != nil {
		slog.Error("Synchronizer.SyncAll: listing linked users failed", "error", err)
		return Report{}, fmt.Errorf("failed to list linked users: %w", err)
	}

	report := Report{Total: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		out, err := s.SyncUser(ctx, id, date)
		report.Outcomes = append(report.Outcomes, out)
		switch {
		case err != nil:
			report.Failed++
		case out.Partial:
			report.Partial++
			report.Synced++
		default:
			report.Synced++
		}
	}
	slog.Info("Synchronizer.SyncAll: sweep complete", "date", date,
		"total", report.Total, "synced", report.Synced, "partial", report.Partial, "failed", report.Failed)
	return report, nil
}
