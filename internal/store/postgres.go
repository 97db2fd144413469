// Package store provides storage backends for the support bot.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"

	"github.com/neuroclinic/supportbot/internal/models"
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

// PostgresStore persists handoff state and conversation logs in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
// The schema is created at startup if absent.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// GetUserState returns the handoff record for a sender.
func (s *PostgresStore) GetUserState(ctx context.Context, sender string) (models.UserState, bool, error) {
	var state models.UserState
	row := s.db.QueryRowContext(ctx, `SELECT sender, in_handoff, updated_at FROM user_states WHERE sender = $1`, sender)
	err := row.Scan(&state.Sender, &state.InHandoff, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.UserState{}, false, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetUserState scan failed", "error", err, "sender", sender)
		return models.UserState{}, false, fmt.Errorf("failed to read user state for %s: %w", sender, err)
	}
	return state, true, nil
}

// SetHandoff upserts the handoff flag for a sender. The upsert keeps the
// per-sender row unique without explicit locking.
func (s *PostgresStore) SetHandoff(ctx context.Context, sender string, inHandoff bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_states (sender, in_handoff, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (sender) DO UPDATE SET in_handoff = EXCLUDED.in_handoff, updated_at = NOW()`,
		sender, inHandoff)
	if err != nil {
		slog.Error("PostgresStore.SetHandoff failed", "error", err, "sender", sender, "in_handoff", inHandoff)
		return fmt.Errorf("failed to set handoff flag for %s: %w", sender, err)
	}
	slog.Debug("PostgresStore.SetHandoff succeeded", "sender", sender, "in_handoff", inHandoff)
	return nil
}

// SaveConversationLog upserts the last turn for a sender.
func (s *PostgresStore) SaveConversationLog(ctx context.Context, log models.ConversationLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_logs (sender, message, response, updated_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (sender) DO UPDATE SET message = EXCLUDED.message, response = EXCLUDED.response, updated_at = NOW()`,
		log.Sender, log.Message, log.Response)
	if err != nil {
		slog.Error("PostgresStore.SaveConversationLog failed", "error", err, "sender", log.Sender)
		return fmt.Errorf("failed to save conversation log for %s: %w", log.Sender, err)
	}
	return nil
}

// GetConversationLog returns the last recorded turn for a sender.
func (s *PostgresStore) GetConversationLog(ctx context.Context, sender string) (models.ConversationLog, bool, error) {
	var log models.ConversationLog
	row := s.db.QueryRowContext(ctx, `SELECT sender, message, response, updated_at FROM conversation_logs WHERE sender = $1`, sender)
	err := row.Scan(&log.Sender, &log.Message, &log.Response, &log.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.ConversationLog{}, false, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetConversationLog scan failed", "error", err, "sender", sender)
		return models.ConversationLog{}, false, fmt.Errorf("failed to read conversation log for %s: %w", sender, err)
	}
	return log, true, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
