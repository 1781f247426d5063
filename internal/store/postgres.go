// Package store provides storage backends for PulseCoach.
//
// This file implements a PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"pulsecoach/internal/models"

	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	// Apply options
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	// Determine DSN (required)
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	slog.Debug("Opening Postgres database connection")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	slog.Debug("Postgres database opened")

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	slog.Debug("Postgres ping successful")

	// Run migrations to ensure tables exist
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetUser(id string) (*models.User, error) {
	var u models.User
	var name sql.NullString
	err := s.db.QueryRow(`SELECT id, name, joined_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &name, &u.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUser failed", "error", err, "userID", id)
		return nil, fmt.Errorf("failed to query user %s: %w", id, err)
	}
	u.Name = name.String
	return &u, nil
}

func (s *PostgresStore) SaveUser(u models.User) error {
	if u.ID == "" {
		return models.ErrEmptyUserID
	}
	_, err := s.db.Exec(`INSERT INTO users (id, name, joined_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		u.ID, nilIfEmpty(u.Name), u.JoinedAt)
	if err != nil {
		slog.Error("PostgresStore SaveUser failed", "error", err, "userID", u.ID)
		return fmt.Errorf("failed to save user %s: %w", u.ID, err)
	}
	slog.Debug("PostgresStore SaveUser succeeded", "userID", u.ID)
	return nil
}

func (s *PostgresStore) ListUsers() ([]models.User, error) {
	rows, err := s.db.Query(`SELECT id, name, joined_at FROM users ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore ListUsers query failed", "error", err)
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		var name sql.NullString
		if err := rows.Scan(&u.ID, &name, &u.JoinedAt); err != nil {
			slog.Error("PostgresStore ListUsers scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		u.Name = name.String
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListUsers rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	slog.Debug("PostgresStore ListUsers succeeded", "count", len(users))
	return users, nil
}

func (s *PostgresStore) GetCredential(userID string) (*models.Credential, error) {
	var c models.Credential
	var refresh, scope sql.NullString
	err := s.db.QueryRow(`SELECT user_id, access_token, refresh_token, scope, updated_at FROM credentials WHERE user_id = $1`, userID).
		Scan(&c.UserID, &c.AccessToken, &refresh, &scope, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetCredential failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query credential for %s: %w", userID, err)
	}
	c.RefreshToken = refresh.String
	c.Scope = scope.String
	return &c, nil
}

func (s *PostgresStore) SaveCredential(cred models.Credential) error {
	if err := cred.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT INTO credentials (user_id, access_token, refresh_token, scope, updated_at) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET access_token = EXCLUDED.access_token, refresh_token = EXCLUDED.refresh_token, scope = EXCLUDED.scope, updated_at = EXCLUDED.updated_at`,
		cred.UserID, cred.AccessToken, nilIfEmpty(cred.RefreshToken), nilIfEmpty(cred.Scope), cred.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveCredential failed", "error", err, "userID", cred.UserID)
		return fmt.Errorf("failed to save credential for %s: %w", cred.UserID, err)
	}
	slog.Debug("PostgresStore SaveCredential succeeded", "userID", cred.UserID)
	return nil
}

func (s *PostgresStore) ListLinkedUserIDs() ([]string, error) {
	rows, err := s.db.Query(`SELECT user_id FROM credentials ORDER BY user_id`)
	if err != nil {
		slog.Error("PostgresStore ListLinkedUserIDs query failed", "error", err)
		return nil, fmt.Errorf("failed to query credentials: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			slog.Error("PostgresStore ListLinkedUserIDs scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan credential row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListLinkedUserIDs rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate credential rows: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) SaveOAuthState(state models.OAuthState) error {
	if err := state.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT INTO oauth_states (value, user_id, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (value) DO UPDATE SET user_id = EXCLUDED.user_id, created_at = EXCLUDED.created_at`,
		state.Value, state.UserID, state.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveOAuthState failed", "error", err, "userID", state.UserID)
		return fmt.Errorf("failed to save oauth state for %s: %w", state.UserID, err)
	}
	slog.Debug("PostgresStore SaveOAuthState succeeded", "userID", state.UserID)
	return nil
}

func (s *PostgresStore) ConsumeOAuthState(value string) (*models.OAuthState, error) {
	var st models.OAuthState
	err := s.db.QueryRow(`DELETE FROM oauth_states WHERE value = $1 RETURNING value, user_id, created_at`, value).
		Scan(&st.Value, &st.UserID, &st.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore ConsumeOAuthState failed", "error", err)
		return nil, fmt.Errorf("failed to consume oauth state: %w", err)
	}
	slog.Debug("PostgresStore ConsumeOAuthState succeeded", "userID", st.UserID)
	return &st, nil
}

func (s *PostgresStore) GetDailyMetrics(userID, date string) (*models.DailyMetrics, error) {
	var m models.DailyMetrics
	var sleepJSON, recoveryJSON, workoutJSON string
	err := s.db.QueryRow(`SELECT user_id, date, sleep_records, recovery_records, workout_records, synced_at FROM daily_metrics WHERE user_id = $1 AND date = $2`,
		userID, date).
		Scan(&m.UserID, &m.Date, &sleepJSON, &recoveryJSON, &workoutJSON, &m.SyncedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetDailyMetrics failed", "error", err, "userID", userID, "date", date)
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

func (s *PostgresStore) UpsertDailyMetrics(m models.DailyMetrics) error {
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
	_, err = s.db.Exec(`INSERT INTO daily_metrics (user_id, date, sleep_records, recovery_records, workout_records, synced_at) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, date) DO UPDATE SET sleep_records = EXCLUDED.sleep_records, recovery_records = EXCLUDED.recovery_records, workout_records = EXCLUDED.workout_records, synced_at = EXCLUDED.synced_at`,
		m.UserID, m.Date, sleepJSON, recoveryJSON, workoutJSON, m.SyncedAt)
	if err != nil {
		slog.Error("PostgresStore UpsertDailyMetrics failed", "error", err, "userID", m.UserID, "date", m.Date)
		return fmt.Errorf("failed to upsert daily metrics for %s on %s: %w", m.UserID, m.Date, err)
	}
	slog.Debug("PostgresStore UpsertDailyMetrics succeeded", "userID", m.UserID, "date", m.Date)
	return nil
}

func (s *PostgresStore) AddChatMessage(msg models.ChatMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT INTO chat_messages (id, user_id, role, content, timestamp) VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.UserID, string(msg.Role), msg.Content, msg.Timestamp)
	if err != nil {
		slog.Error("PostgresStore AddChatMessage failed", "error", err, "userID", msg.UserID)
		return fmt.Errorf("failed to insert chat message for %s: %w", msg.UserID, err)
	}
	slog.Debug("PostgresStore AddChatMessage succeeded", "userID", msg.UserID, "role", msg.Role)
	return nil
}

func (s *PostgresStore) GetChatHistory(userID string, limit int) ([]models.ChatMessage, error) {
	var limitArg interface{}
	if limit > 0 {
		limitArg = limit
	}
	rows, err := s.db.Query(`SELECT id, user_id, role, content, timestamp FROM (
			SELECT id, user_id, role, content, timestamp FROM chat_messages WHERE user_id = $1 ORDER BY timestamp DESC LIMIT $2
		) recent ORDER BY timestamp ASC`, userID, limitArg)
	if err != nil {
		slog.Error("PostgresStore GetChatHistory query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query chat history for %s: %w", userID, err)
	}
	defer rows.Close()

	var msgs []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		var role string
		if err := rows.Scan(&m.ID, &m.UserID, &role, &m.Content, &m.Timestamp); err != nil {
			slog.Error("PostgresStore GetChatHistory scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan chat message row: %w", err)
		}
		m.Role = models.ChatRole(role)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore GetChatHistory rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate chat message rows: %w", err)
	}
	return msgs, nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
