// Package store provides storage backends for the support bot.
//
// This file implements the SQLite-backed store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"

	"github.com/neuroclinic/supportbot/internal/models"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists handoff state and conversation logs in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")
	return &SQLiteStore{db: db}, nil
}

// GetUserState returns the handoff record for a sender.
func (s *SQLiteStore) GetUserState(ctx context.Context, sender string) (models.UserState, bool, error) {
	var state models.UserState
	row := s.db.QueryRowContext(ctx, `SELECT sender, in_handoff, updated_at FROM user_states WHERE sender = ?`, sender)
	err := row.Scan(&state.Sender, &state.InHandoff, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.UserState{}, false, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetUserState scan failed", "error", err, "sender", sender)
		return models.UserState{}, false, fmt.Errorf("failed to read user state for %s: %w", sender, err)
	}
	return state, true, nil
}

// SetHandoff upserts the handoff flag for a sender.
func (s *SQLiteStore) SetHandoff(ctx context.Context, sender string, inHandoff bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_states (sender, in_handoff, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(sender) DO UPDATE SET in_handoff = excluded.in_handoff, updated_at = CURRENT_TIMESTAMP`,
		sender, inHandoff)
	if err != nil {
		slog.Error("SQLiteStore.SetHandoff failed", "error", err, "sender", sender, "in_handoff", inHandoff)
		return fmt.Errorf("failed to set handoff flag for %s: %w", sender, err)
	}
	slog.Debug("SQLiteStore.SetHandoff succeeded", "sender", sender, "in_handoff", inHandoff)
	return nil
}

// SaveConversationLog upserts the last turn for a sender.
func (s *SQLiteStore) SaveConversationLog(ctx context.Context, log models.ConversationLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_logs (sender, message, response, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(sender) DO UPDATE SET message = excluded.message, response = excluded.response, updated_at = CURRENT_TIMESTAMP`,
		log.Sender, log.Message, log.Response)
	if err != nil {
		slog.Error("SQLiteStore.SaveConversationLog failed", "error", err, "sender", log.Sender)
		return fmt.Errorf("failed to save conversation log for %s: %w", log.Sender, err)
	}
	return nil
}

// GetConversationLog returns the last recorded turn for a sender.
func (s *SQLiteStore) GetConversationLog(ctx context.Context, sender string) (models.ConversationLog, bool, error) {
	var log models.ConversationLog
	row := s.db.QueryRowContext(ctx, `SELECT sender, message, response, updated_at FROM conversation_logs WHERE sender = ?`, sender)
	err := row.Scan(&log.Sender, &log.Message, &log.Response, &log.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.ConversationLog{}, false, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetConversationLog scan failed", "error", err, "sender", sender)
		return models.ConversationLog{}, false, fmt.Errorf("failed to read conversation log for %s: %w", sender, err)
	}
	return log, true, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
