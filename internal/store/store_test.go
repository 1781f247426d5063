package store

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"pulsecoach/internal/models"
)

func TestInMemoryStoreCredentials(t *testing.T) {
	s := NewInMemoryStore()

	got, err := s.GetCredential("42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil credential for unknown user, got %+v", got)
	}

	cred := models.Credential{
		UserID:       "42",
		AccessToken:  "a1",
		RefreshToken: "r1",
		Scope:        "read:sleep",
		UpdatedAt:    time.Now(),
	}
	if err := s.SaveCredential(cred); err != nil {
		t.Fatalf("SaveCredential failed: %v", err)
	}
	got, err = s.GetCredential("42")
	if err != nil {
		t.Fatalf("GetCredential failed: %v", err)
	}
	if got == nil || got.AccessToken != "a1" || got.RefreshToken != "r1" {
		t.Errorf("credential not stored or retrieved correctly: %+v", got)
	}

	// Overwrite on refresh
	cred.AccessToken = "a2"
	cred.RefreshToken = "r2"
	if err := s.SaveCredential(cred); err != nil {
		t.Fatalf("SaveCredential overwrite failed: %v", err)
	}
	got, _ = s.GetCredential("42")
	if got.AccessToken != "a2" || got.RefreshToken != "r2" {
		t.Errorf("credential overwrite did not take: %+v", got)
	}

	ids, err := s.ListLinkedUserIDs()
	if err != nil {
		t.Fatalf("ListLinkedUserIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "42" {
		t.Errorf("expected linked IDs [42], got %v", ids)
	}
}

func TestInMemoryStoreConsumeOAuthStateOnce(t *testing.T) {
	s := NewInMemoryStore()
	state := models.OAuthState{Value: "st-1", UserID: "42", CreatedAt: time.Now()}
	if err := s.SaveOAuthState(state); err != nil {
		t.Fatalf("SaveOAuthState failed: %v", err)
	}

	got, err := s.ConsumeOAuthState("st-1")
	if err != nil {
		t.Fatalf("ConsumeOAuthState failed: %v", err)
	}
	if got == nil || got.UserID != "42" {
		t.Fatalf("expected state bound to user 42, got %+v", got)
	}

	// Second consumption must miss
	got, err = s.ConsumeOAuthState("st-1")
	if err != nil {
		t.Fatalf("unexpected error on replay: %v", err)
	}
	if got != nil {
		t.Errorf("state consumed twice: %+v", got)
	}
}

func TestInMemoryStoreChatHistoryLimit(t *testing.T) {
	s := NewInMemoryStore()
	base := time.Now()
	for i := 0; i < 5; i++ {
		msg := models.ChatMessage{
			ID:        fmt.Sprintf("m%d", i),
			UserID:    "42",
			Role:      models.ChatRoleUser,
			Content:   fmt.Sprintf("message %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.AddChatMessage(msg); err != nil {
			t.Fatalf("AddChatMessage failed: %v", err)
		}
	}

	msgs, err := s.GetChatHistory("42", 3)
	if err != nil {
		t.Fatalf("GetChatHistory failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	// Most recent 3, oldest first
	if msgs[0].Content != "message 2" || msgs[2].Content != "message 4" {
		t.Errorf("chat history not in expected order: %+v", msgs)
	}
}

// exerciseStore runs the shared persistence contract against any backend.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)

	user := models.User{ID: "7", Name: "Dana", JoinedAt: now}
	if err := s.SaveUser(user); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}
	gotUser, err := s.GetUser("7")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if gotUser == nil || gotUser.Name != "Dana" {
		t.Errorf("user not stored or retrieved correctly: %+v", gotUser)
	}
	users, err := s.ListUsers()
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("expected 1 user, got %d", len(users))
	}

	cred := models.Credential{UserID: "7", AccessToken: "a1", RefreshToken: "r1", UpdatedAt: now}
	if err := s.SaveCredential(cred); err != nil {
		t.Fatalf("SaveCredential failed: %v", err)
	}
	cred.AccessToken = "a2"
	if err := s.SaveCredential(cred); err != nil {
		t.Fatalf("SaveCredential overwrite failed: %v", err)
	}
	gotCred, err := s.GetCredential("7")
	if err != nil {
		t.Fatalf("GetCredential failed: %v", err)
	}
	if gotCred == nil || gotCred.AccessToken != "a2" {
		t.Errorf("credential overwrite did not take: %+v", gotCred)
	}

	if err := s.SaveOAuthState(models.OAuthState{Value: "st-x", UserID: "7", CreatedAt: now}); err != nil {
		t.Fatalf("SaveOAuthState failed: %v", err)
	}
	st, err := s.ConsumeOAuthState("st-x")
	if err != nil {
		t.Fatalf("ConsumeOAuthState failed: %v", err)
	}
	if st == nil || st.UserID != "7" {
		t.Fatalf("expected state for user 7, got %+v", st)
	}
	st, err = s.ConsumeOAuthState("st-x")
	if err != nil {
		t.Fatalf("unexpected error on replay: %v", err)
	}
	if st != nil {
		t.Errorf("state consumed twice: %+v", st)
	}

	metrics := models.DailyMetrics{
		UserID: "7",
		Date:   "2026-08-29",
		SleepRecords: []models.SleepRecord{{
			ID: "sl-1",
		}},
		RecoveryRecords: []models.RecoveryRecord{},
		SyncedAt:        now,
	}
	if err := s.UpsertDailyMetrics(metrics); err != nil {
		t.Fatalf("UpsertDailyMetrics failed: %v", err)
	}
	// Re-sync overwrites the same day
	metrics.WorkoutRecords = []models.WorkoutRecord{{ID: "wk-1"}}
	if err := s.UpsertDailyMetrics(metrics); err != nil {
		t.Fatalf("UpsertDailyMetrics overwrite failed: %v", err)
	}
	gotMetrics, err := s.GetDailyMetrics("7", "2026-08-29")
	if err != nil {
		t.Fatalf("GetDailyMetrics failed: %v", err)
	}
	if gotMetrics == nil {
		t.Fatal("expected metrics for 2026-08-29, got nil")
	}
	if len(gotMetrics.SleepRecords) != 1 || gotMetrics.SleepRecords[0].ID != "sl-1" {
		t.Errorf("sleep records not round-tripped: %+v", gotMetrics.SleepRecords)
	}
	if len(gotMetrics.WorkoutRecords) != 1 || gotMetrics.WorkoutRecords[0].ID != "wk-1" {
		t.Errorf("workout records not round-tripped: %+v", gotMetrics.WorkoutRecords)
	}
	if len(gotMetrics.RecoveryRecords) != 0 {
		t.Errorf("expected empty recovery records, got %+v", gotMetrics.RecoveryRecords)
	}
	missing, err := s.GetDailyMetrics("7", "2026-08-28")
	if err != nil {
		t.Fatalf("GetDailyMetrics for absent day failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil metrics for absent day, got %+v", missing)
	}

	for i := 0; i < 4; i++ {
		role := models.ChatRoleUser
		if i%2 == 1 {
			role = models.ChatRoleAssistant
		}
		msg := models.ChatMessage{
			ID:        fmt.Sprintf("cm-%d", i),
			UserID:    "7",
			Role:      role,
			Content:   fmt.Sprintf("turn %d", i),
			Timestamp: now.Add(time.Duration(i) * time.Minute),
		}
		if err := s.AddChatMessage(msg); err != nil {
			t.Fatalf("AddChatMessage failed: %v", err)
		}
	}
	history, err := s.GetChatHistory("7", 2)
	if err != nil {
		t.Fatalf("GetChatHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].Content != "turn 2" || history[1].Content != "turn 3" {
		t.Errorf("chat history not in chronological order: %+v", history)
	}
}

func TestSQLiteStore(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "pulsecoach_sqlite_")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	s, err := NewSQLiteStore(WithDSN(filepath.Join(tempDir, "test.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	exerciseStore(t, s)
}

func TestSQLiteStoreRequiresDSN(t *testing.T) {
	if _, err := NewSQLiteStore(); err == nil {
		t.Error("expected error when DSN is not set")
	}
}

func TestPostgresStore(t *testing.T) {
	// This test requires a running PostgreSQL instance.
	// Set the DATABASE_URL environment variable for connection string.
	connStr := getenvOrSkip(t, "DATABASE_URL")
	pgStore, err := NewPostgresStore(WithDSN(connStr))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer pgStore.Close()
	// Clean up tables before test
	pgStore.db.Exec("DELETE FROM chat_messages")
	pgStore.db.Exec("DELETE FROM daily_metrics")
	pgStore.db.Exec("DELETE FROM oauth_states")
	pgStore.db.Exec("DELETE FROM credentials")
	pgStore.db.Exec("DELETE FROM users")

	exerciseStore(t, pgStore)
}

func getenvOrSkip(t *testing.T, key string) string {
	v := ""
	if val, ok := syscall.Getenv(key); ok {
		v = val
	}
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}
