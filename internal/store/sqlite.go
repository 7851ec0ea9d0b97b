package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS login_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id  TEXT NOT NULL,
	success    INTEGER NOT NULL,
	message    TEXT,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS order_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id  TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	side       TEXT,
	quantity   TEXT,
	price      TEXT,
	order_id   TEXT,
	success    INTEGER NOT NULL,
	message    TEXT,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_login_events_client ON login_events(client_id, created_at);
CREATE INDEX IF NOT EXISTS idx_order_events_client ON order_events(client_id, created_at);
`

// SQLiteAudit is an AuditLog backed by a local SQLite database.
type SQLiteAudit struct {
	db *sql.DB
}

// NewSQLiteAudit opens (creating if needed) the audit database at path.
func NewSQLiteAudit(path string) (*SQLiteAudit, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating audit db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening audit db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing audit schema: %w", err)
	}

	return &SQLiteAudit{db: db}, nil
}

// RecordLogin implements AuditLog.
func (s *SQLiteAudit) RecordLogin(ctx context.Context, clientID string, success bool, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO login_events (client_id, success, message, created_at) VALUES (?, ?, ?, ?)`,
		clientID, boolToInt(success), message, time.Now().UTC())
	return err
}

// RecordOrder implements AuditLog.
func (s *SQLiteAudit) RecordOrder(ctx context.Context, clientID, symbol, side, quantity, price, orderID string, success bool, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO order_events (client_id, symbol, side, quantity, price, order_id, success, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		clientID, symbol, side, quantity, price, orderID, boolToInt(success), message, time.Now().UTC())
	return err
}

// Close implements AuditLog.
func (s *SQLiteAudit) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ AuditLog = (*SQLiteAudit)(nil)
