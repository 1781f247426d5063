// Package store provides storage backends for PulseCoach.
//
// This file implements an SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"pulsecoach/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	slog.Debug("SQLite database directory verified/created", "dir", dir)

	slog.Debug("Opening SQLite database connection")
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	slog.Debug("SQLite database opened")

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLite ping successful")

	// Run migrations to ensure tables exist
	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetUser(id string) (*models.User, error) {
	var u models.User
	var name sql.NullString
	err := s.db.QueryRow(`SELECT id, name, joined_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &name, &u.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetUser failed", "error", err, "userID", id)
		return nil, fmt.Errorf("failed to query user %s: %w", id, err)
	}
	u.Name = name.String
	return &u, nil
}

func (s *SQLiteStore) SaveUser(u models.User) error {
	if u.ID == "" {
		return models.ErrEmptyUserID
	}
	_, err := s.db.Exec(`INSERT INTO users (id, name, joined_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		u.ID, nilIfEmpty(u.Name), u.JoinedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveUser failed", "error", err, "userID", u.ID)
		return fmt.Errorf("failed to save user %s: %w", u.ID, err)
	}
	slog.Debug("SQLiteStore SaveUser succeeded", "userID", u.ID)
	return nil
}

func (s *SQLiteStore) ListUsers() ([]models.User, error) {
	rows, err := s.db.Query(`SELECT id, name, joined_at FROM users ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore ListUsers query failed", "error", err)
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		var name sql.NullString
		if err := rows.Scan(&u.ID, &name, &u.JoinedAt); err != nil {
			slog.Error("SQLiteStore ListUsers scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		u.Name = name.String
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListUsers rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	slog.Debug("SQLiteStore ListUsers succeeded", "count", len(users))
	return users, nil
}

func (s *SQLiteStore) GetCredential(userID string) (*models.Credential, error) {
	var c models.Credential
	var refresh, scope sql.NullString
	err := s.db.QueryRow(`SELECT user_id, access_token, refresh_token, scope, updated_at FROM credentials WHERE user_id = ?`, userID).
		Scan(&c.UserID, &c.AccessToken, &refresh, &scope, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetCredential failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query credential for %s: %w", userID, err)
	}
	c.RefreshToken = refresh.String
	c.Scope = scope.String
	return &c, nil
}

func (s *SQLiteStore) SaveCredential(cred models.Credential) error {
	if err := cred.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT INTO credentials (user_id, access_token, refresh_token, scope, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET access_token = excluded.access_token, refresh_token = excluded.refresh_token, scope = excluded.scope, updated_at = excluded.updated_at`,
		cred.UserID, cred.AccessToken, nilIfEmpty(cred.RefreshToken), nilIfEmpty(cred.Scope), cred.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveCredential failed", "error", err, "userID", cred.UserID)
		return fmt.Errorf("failed to save credential for %s: %w", cred.UserID, err)
	}
	slog.Debug("SQLiteStore SaveCredential succeeded", "userID", cred.UserID)
	return nil
}

func (s *SQLiteStore) ListLinkedUserIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT user_id FROM credentials ORDER BY user_id`)
	if err != nil {
		slog.Error("SQLiteStore ListLinkedUserIDs query failed", "error", err)
		return nil, fmt.Errorf("failed to query credentials: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			slog.Error("SQLiteStore ListLinkedUserIDs scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan credential row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListLinkedUserIDs rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate credential rows: %w", err)
	}
	return ids, nil
}

func (s *SQLiteStore) SaveOAuthState(state models.OAuthState) error {
	if err := state.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT INTO oauth_states (value, user_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT(value) DO UPDATE SET user_id = excluded.user_id, created_at = excluded.created_at`,
		state.Value, state.UserID, state.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveOAuthState failed", "error", err, "userID", state.UserID)
		return fmt.Errorf("failed to save oauth state for %s: %w", state.UserID, err)
	}
	slog.Debug("SQLiteStore SaveOAuthState succeeded", "userID", state.UserID)
	return nil
}

func (s *SQLiteStore) ConsumeOAuthState(value string) (*models.OAuthState, error) {
	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("SQLiteStore ConsumeOAuthState begin failed", "error", err)
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var st models.OAuthState
	err = tx.QueryRow(`SELECT value, user_id, created_at FROM oauth_states WHERE value = ?`, value).
		Scan(&st.Value, &st.UserID, &st.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore ConsumeOAuthState query failed", "error", err)
		return nil, fmt.Errorf("failed to query oauth state: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM oauth_states WHERE value = ?`, value); err != nil {
		slog.Error("SQLiteStore ConsumeOAuthState delete failed", "error", err)
		return nil, fmt.Errorf("failed to delete oauth state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		slog.Error("SQLiteStore ConsumeOAuthState commit failed", "error", err)
		return nil, fmt.Errorf("failed to commit oauth state consumption: %w", err)
	}
	slog.Debug("SQLiteStore ConsumeOAuthState succeeded", "userID", st.UserID)
	return &st, nil
}

func (s *SQLiteStore) GetDailyMetrics(userID, date string) (*models.DailyMetrics, error) {
	var m models.DailyMetrics
	var sleepJSON, recoveryJSON, workoutJSON string
	err := s.db.QueryRow(`SELECT user_id, date, sleep_records, recovery_records, workout_records, synced_at FROM daily_metrics WHERE user_id = ? AND date = ?`,
		userID, date).
		Scan(&m.UserID, &m.Date, &sleepJSON, &recoveryJSON, &workoutJSON, &m.SyncedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetDailyMetrics failed", "error", err, "userID", userID, "date", date)
		return nil, fmt.Errorf("failed to query daily metrics for %s on %s: %w", userID, date, err)
	}
	if err := decodeRecords(sleepJSON, &m.SleepRecords); err != nil {
		return nil, err
	}
	if err := decodeRecords(recoveryJSON, &m.RecoveryRecords); err != nil {
		return nil, err
	}
	if err := decodeRecords(workoutJSON, &m.WorkoutRecords); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLiteStore) UpsertDailyMetrics(m models.DailyMetrics) error {
	if err := m.Validate(); err != nil {
		return err
	}
	sleepJSON, err := encodeRecords(m.SleepRecords)
	if err != nil {
		return err
	}
	recoveryJSON, err := encodeRecords(m.RecoveryRecords)
	if err != nil {
		return err
	}
	workoutJSON, err := encodeRecords(m.WorkoutRecords)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO daily_metrics (user_id, date, sleep_records, recovery_records, workout_records, synced_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET sleep_records = excluded.sleep_records, recovery_records = excluded.recovery_records, workout_records = excluded.workout_records, synced_at = excluded.synced_at`,
		m.UserID, m.Date, sleepJSON, recoveryJSON, workoutJSON, m.SyncedAt)
	if err != nil {
		slog.Error("SQLiteStore UpsertDailyMetrics failed", "error", err, "userID", m.UserID, "date", m.Date)
		return fmt.Errorf("failed to upsert daily metrics for %s on %s: %w", m.UserID, m.Date, err)
	}
	slog.Debug("SQLiteStore UpsertDailyMetrics succeeded", "userID", m.UserID, "date", m.Date)
	return nil
}

func (s *SQLiteStore) AddChatMessage(msg models.ChatMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT INTO chat_messages (id, user_id, role, content, timestamp) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.UserID, string(msg.Role), msg.Content, msg.Timestamp)
	if err != nil {
		slog.Error("SQLiteStore AddChatMessage failed", "error", err, "userID", msg.UserID)
		return fmt.Errorf("failed to insert chat message for %s: %w", msg.UserID, err)
	}
	slog.Debug("SQLiteStore AddChatMessage succeeded", "userID", msg.UserID, "role", msg.Role)
	return nil
}

func (s *SQLiteStore) GetChatHistory(userID string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unbounded
	}
	rows, err := s.db.Query(`SELECT id, user_id, role, content, timestamp FROM (
			SELECT id, user_id, role, content, timestamp FROM chat_messages WHERE user_id = ? ORDER BY timestamp DESC LIMIT ?
		) ORDER BY timestamp ASC`, userID, limit)
	if err != nil {
		slog.Error("SQLiteStore GetChatHistory query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query chat history for %s: %w", userID, err)
	}
	defer rows.Close()

	var msgs []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		var role string
		if err := rows.Scan(&m.ID, &m.UserID, &role, &m.Content, &m.Timestamp); err != nil {
			slog.Error("SQLiteStore GetChatHistory scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan chat message row: %w", err)
		}
		m.Role = models.ChatRole(role)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore GetChatHistory rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate chat message rows: %w", err)
	}
	return msgs, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
