// Package store provides storage backends for PulseCoach.
//
// It persists user profiles, WHOOP credentials, one-time OAuth link states,
// date-keyed daily health metrics, and chat history. An in-memory store backs
// unit tests; SQLite and PostgreSQL back deployments.
package store

import (
	"sort"
	"sync"

	"pulsecoach/internal/models"
)

// Opts holds configuration options for persistent stores.
type Opts struct {
	DSN string // database connection string or file path
}

// Option defines a configuration option for a store.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// Store is the persistence surface shared by all backends. Get operations
// return (nil, nil) when the keyed record is absent; writes are last-write-wins
// upserts.
type Store interface {
	GetUser(id string) (*models.User, error)
	SaveUser(u models.User) error
	ListUsers() ([]models.User, error)

	GetCredential(userID string) (*models.Credential, error)
	SaveCredential(cred models.Credential) error
	// ListLinkedUserIDs returns the IDs of all users with a credential on file.
	ListLinkedUserIDs() ([]string, error)

	SaveOAuthState(state models.OAuthState) error
	// ConsumeOAuthState looks up a state by value and deletes it in the same
	// operation, so a state can resolve at most once. A miss returns (nil, nil).
	ConsumeOAuthState(value string) (*models.OAuthState, error)

	GetDailyMetrics(userID, date string) (*models.DailyMetrics, error)
	UpsertDailyMetrics(m models.DailyMetrics) error

	AddChatMessage(msg models.ChatMessage) error
	// GetChatHistory returns up to limit most recent messages for the user,
	// in chronological order (oldest first).
	GetChatHistory(userID string, limit int) ([]models.ChatMessage, error)

	Close() error
}

// InMemoryStore is a map-backed Store used by tests and local development.
type InMemoryStore struct {
	mu       sync.RWMutex
	users    map[string]models.User
	creds    map[string]models.Credential
	states   map[string]models.OAuthState
	metrics  map[string]models.DailyMetrics // keyed by userID + "/" + date
	messages map[string][]models.ChatMessage
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:    make(map[string]models.User),
		creds:    make(map[string]models.Credential),
		states:   make(map[string]models.OAuthState),
		metrics:  make(map[string]models.DailyMetrics),
		messages: make(map[string][]models.ChatMessage),
	}
}

func metricsKey(userID, date string) string {
	return userID + "/" + date
}

func (s *InMemoryStore) GetUser(id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *InMemoryStore) SaveUser(u models.User) error {
	if u.ID == "" {
		return models.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *InMemoryStore) ListUsers() ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *InMemoryStore) GetCredential(userID string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[userID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *InMemoryStore) SaveCredential(cred models.Credential) error {
	if err := cred.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[cred.UserID] = cred
	return nil
}

func (s *InMemoryStore) ListLinkedUserIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.creds))
	for id := range s.creds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *InMemoryStore) SaveOAuthState(state models.OAuthState) error {
	if err := state.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.Value] = state
	return nil
}

func (s *InMemoryStore) ConsumeOAuthState(value string) (*models.OAuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[value]
	if !ok {
		return nil, nil
	}
	delete(s.states, value)
	return &st, nil
}

func (s *InMemoryStore) GetDailyMetrics(userID, date string) (*models.DailyMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metrics[metricsKey(userID, date)]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *InMemoryStore) UpsertDailyMetrics(m models.DailyMetrics) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[metricsKey(m.UserID, m.Date)] = m
	return nil
}

func (s *InMemoryStore) AddChatMessage(msg models.ChatMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.UserID] = append(s.messages[msg.UserID], msg)
	return nil
}

func (s *InMemoryStore) GetChatHistory(userID string, limit int) ([]models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[userID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]models.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
