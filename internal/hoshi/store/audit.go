package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/igorvasilek/hoshi/common/redact"
)

// AuditEntry represents an audit log entry
type AuditEntry struct {
	ID           int64
	Timestamp    time.Time
	TraceID      string
	ActorID      int64
	Action       string
	Target       sql.NullString
	PayloadJSON  sql.NullString
	Result       string
	ErrorMessage sql.NullString
}

// AuditPayload is a helper for structured audit payloads
type AuditPayload map[string]any

// WriteAudit records one admin action. Payload keys that look like secrets
// are redacted before they reach the database.
func (s *Store) WriteAudit(ctx context.Context, traceID string, actorID int64, action, target, result string, payload AuditPayload, errorMsg string) error {
	var payloadJSON sql.NullString
	if payload != nil {
		b, err := json.Marshal(redact.Map(payload))
		if err != nil {
			return fmt.Errorf("failed to marshal audit payload: %w", err)
		}
		payloadJSON = sql.NullString{String: string(b), Valid: true}
	}

	targetNull := sql.NullString{String: target, Valid: target != ""}
	errorNull := sql.NullString{String: errorMsg, Valid: errorMsg != ""}

	return s.exec(ctx, "write audit", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO audit_log (ts, trace_id, actor_id, action, target, payload_json, result, error_message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, time.Now().UTC(), traceID, actorID, action, targetNull, payloadJSON, result, errorNull)
		return err
	})
}

// AuditLog returns the most recent limit entries, newest first.
func (s *Store) AuditLog(ctx context.Context, limit int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryAudit(ctx, `
		SELECT id, ts, trace_id, actor_id, action, target, payload_json, result, error_message
		FROM audit_log
		ORDER BY id DESC
		LIMIT ?
	`, limit)
}

// AuditByTrace returns every entry recorded under traceID, oldest first.
func (s *Store) AuditByTrace(ctx context.Context, traceID string) ([]*AuditEntry, error) {
	return s.queryAudit(ctx, `
		SELECT id, ts, trace_id, actor_id, action, target, payload_json, result, error_message
		FROM audit_log
		WHERE trace_id = ?
		ORDER BY id ASC
	`, traceID)
}

func (s *Store) queryAudit(ctx context.Context, query string, args ...any) ([]*AuditEntry, error) {
	var entries []*AuditEntry
	err := s.exec(ctx, "query audit log", func() error {
		entries = entries[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			e := &AuditEntry{}
			if err := rows.Scan(
				&e.ID, &e.Timestamp, &e.TraceID, &e.ActorID,
				&e.Action, &e.Target, &e.PayloadJSON,
				&e.Result, &e.ErrorMessage,
			); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
