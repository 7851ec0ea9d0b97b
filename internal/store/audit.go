// Package store provides the optional local audit log.
package store

import "context"

// AuditLog records login attempts and order submissions for debugging and
// manual recovery. It is deliberately append-only and best-effort: callers
// treat every error as non-fatal. Session state is never persisted here.
type AuditLog interface {
	RecordLogin(ctx context.Context, clientID string, success bool, message string) error
	RecordOrder(ctx context.Context, clientID, symbol, side, quantity, price, orderID string, success bool, message string) error
	Close() error
}

// NopAudit discards all records.
type NopAudit struct{}

// RecordLogin implements AuditLog.
func (NopAudit) RecordLogin(ctx context.Context, clientID string, success bool, message string) error {
	return nil
}

// RecordOrder implements AuditLog.
func (NopAudit) RecordOrder(ctx context.Context, clientID, symbol, side, quantity, price, orderID string, success bool, message string) error {
	return nil
}

// Close implements AuditLog.
func (NopAudit) Close() error { return nil }
