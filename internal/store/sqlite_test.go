package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestAudit(t *testing.T) *SQLiteAudit {
	t.Helper()
	audit, err := NewSQLiteAudit(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("NewSQLiteAudit: %v", err)
	}
	t.Cleanup(func() { audit.Close() })
	return audit
}

func TestRecordLogin(t *testing.T) {
	audit := newTestAudit(t)
	ctx := context.Background()

	if err := audit.RecordLogin(ctx, "A123456", true, "login successful"); err != nil {
		t.Fatalf("RecordLogin: %v", err)
	}
	if err := audit.RecordLogin(ctx, "A123456", false, "Invalid totp"); err != nil {
		t.Fatalf("RecordLogin: %v", err)
	}

	var count int
	if err := audit.db.QueryRow(`SELECT COUNT(*) FROM login_events WHERE client_id = ?`, "A123456").Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 2 {
		t.Errorf("login events = %d, want 2", count)
	}

	var success int
	var message string
	err := audit.db.QueryRow(
		`SELECT success, message FROM login_events WHERE client_id = ? ORDER BY id DESC LIMIT 1`,
		"A123456").Scan(&success, &message)
	if err != nil {
		t.Fatalf("row query: %v", err)
	}
	if success != 0 || message != "Invalid totp" {
		t.Errorf("last event: success=%d message=%q", success, message)
	}
}

func TestRecordOrder(t *testing.T) {
	audit := newTestAudit(t)
	ctx := context.Background()

	err := audit.RecordOrder(ctx, "A123456", "SBIN-EQ", "BUY", "1", "0", "240603000000123", true, "order placed")
	if err != nil {
		t.Fatalf("RecordOrder: %v", err)
	}

	var symbol, orderID string
	err = audit.db.QueryRow(
		`SELECT symbol, order_id FROM order_events WHERE client_id = ?`, "A123456").Scan(&symbol, &orderID)
	if err != nil {
		t.Fatalf("row query: %v", err)
	}
	if symbol != "SBIN-EQ" || orderID != "240603000000123" {
		t.Errorf("stored order: symbol=%q order_id=%q", symbol, orderID)
	}
}

func TestSchemaIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	first, err := NewSQLiteAudit(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := first.RecordLogin(context.Background(), "A1", true, "ok"); err != nil {
		t.Fatalf("RecordLogin: %v", err)
	}
	first.Close()

	second, err := NewSQLiteAudit(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	var count int
	if err := second.db.QueryRow(`SELECT COUNT(*) FROM login_events`).Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 1 {
		t.Errorf("events after reopen = %d, want 1", count)
	}
}
