// Package store provides storage backends for the support bot.
//
// It persists the per-sender handoff flag and the advisory conversation log.
// Backends: in-memory (tests/dev), SQLite, and PostgreSQL, plus an optional
// Redis read-through cache for the handoff flag.
package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/neuroclinic/supportbot/internal/models"
)

// Store is the persistence interface used by the handoff engine.
type Store interface {
	// GetUserState returns the handoff record for a sender. The boolean
	// reports whether a record exists; an absent record reads as AI active.
	GetUserState(ctx context.Context, sender string) (models.UserState, bool, error)
	// SetHandoff upserts the handoff flag for a sender.
	SetHandoff(ctx context.Context, sender string, inHandoff bool) error
	// SaveConversationLog upserts the last (message, response) turn for a sender.
	SaveConversationLog(ctx context.Context, log models.ConversationLog) error
	// GetConversationLog returns the last recorded turn for a sender.
	GetConversationLog(ctx context.Context, sender string) (models.ConversationLog, bool, error)
	// Close releases the underlying resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store constructors.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite3" for anything else (treated as a file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}

// InMemoryStore is a map-backed store for tests and development.
type InMemoryStore struct {
	mu     sync.RWMutex
	states map[string]models.UserState
	logs   map[string]models.ConversationLog
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		states: make(map[string]models.UserState),
		logs:   make(map[string]models.ConversationLog),
	}
}

// GetUserState returns the handoff record for a sender.
func (s *InMemoryStore) GetUserState(ctx context.Context, sender string) (models.UserState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[sender]
	return state, ok, nil
}

// SetHandoff upserts the handoff flag for a sender.
func (s *InMemoryStore) SetHandoff(ctx context.Context, sender string, inHandoff bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[sender] = models.UserState{Sender: sender, InHandoff: inHandoff, UpdatedAt: time.Now()}
	return nil
}

// SaveConversationLog upserts the last turn for a sender.
func (s *InMemoryStore) SaveConversationLog(ctx context.Context, log models.ConversationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log.UpdatedAt = time.Now()
	s.logs[log.Sender] = log
	return nil
}

// GetConversationLog returns the last recorded turn for a sender.
func (s *InMemoryStore) GetConversationLog(ctx context.Context, sender string) (models.ConversationLog, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log, ok := s.logs[sender]
	return log, ok, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
