package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/munin-ai/munin/pkg/models"
)

// AuditRepository reads and writes the append-only audit log and its
// linked tool-execution rows.
type AuditRepository struct {
	store *Store
}

// LogMessage appends one audit entry and returns its id.
func (r *AuditRepository) LogMessage(ctx context.Context, source string, messageType models.MessageType, content, userID, sessionID string, metadata map[string]any) (int64, error) {
	var metaJSON any
	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err != nil {
			return 0, fmt.Errorf("store: marshal metadata: %w", err)
		}
		metaJSON = string(data)
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	result, err := r.store.db.ExecContext(ctx,
		`INSERT INTO audit_logs (timestamp, source, user_id, session_id, message_type, content, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC(), source, nullable(userID), nullable(sessionID), string(messageType), content, metaJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("store: log message: %w", err)
	}
	return result.LastInsertId()
}

// LogToolExecution appends one tool-execution row, optionally linked to a
// parent audit entry, and returns its id.
func (r *AuditRepository) LogToolExecution(ctx context.Context, toolName, parameters, result string, durationMs int64, success bool, auditLogID *int64, errorMessage string) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	res, err := r.store.db.ExecContext(ctx,
		`INSERT INTO tool_executions (audit_log_id, timestamp, tool_name, parameters, result, duration_ms, success, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		auditLogID, time.Now().UTC(), toolName, parameters, result, durationMs, success, nullable(errorMessage),
	)
	if err != nil {
		return 0, fmt.Errorf("store: log tool execution: %w", err)
	}
	return res.LastInsertId()
}

// RecentLogs returns entries newest-first, optionally filtered by source
// and message type.
func (r *AuditRepository) RecentLogs(ctx context.Context, limit, offset int, source string, messageType models.MessageType) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT id, timestamp, source, user_id, session_id, message_type, content, metadata FROM audit_logs"
	var conditions []string
	var args []any
	if source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, source)
	}
	if messageType != "" {
		conditions = append(conditions, "message_type = ?")
		args = append(args, string(messageType))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	return r.queryEntries(ctx, query, args...)
}

// RecentLogsForUser returns the newest entries attributed to one user.
func (r *AuditRepository) RecentLogsForUser(ctx context.Context, userID string, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.queryEntries(ctx,
		`SELECT id, timestamp, source, user_id, session_id, message_type, content, metadata
		 FROM audit_logs WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, limit,
	)
}

// SearchLogs returns entries whose content contains the substring,
// newest-first.
func (r *AuditRepository) SearchLogs(ctx context.Context, substring string, limit, offset int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.queryEntries(ctx,
		`SELECT id, timestamp, source, user_id, session_id, message_type, content, metadata
		 FROM audit_logs WHERE content LIKE ? ORDER BY id DESC LIMIT ? OFFSET ?`,
		"%"+substring+"%", limit, offset,
	)
}

// GetLogByID fetches one entry with its tool-execution rows joined in.
func (r *AuditRepository) GetLogByID(ctx context.Context, id int64) (*models.AuditEntry, error) {
	entries, err := r.queryEntries(ctx,
		`SELECT id, timestamp, source, user_id, session_id, message_type, content, metadata
		 FROM audit_logs WHERE id = ?`, id,
	)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	entry := entries[0]

	rows, err := r.store.db.QueryContext(ctx,
		`SELECT id, audit_log_id, timestamp, tool_name, parameters, result, duration_ms, success, error_message
		 FROM tool_executions WHERE audit_log_id = ? ORDER BY id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("store: load tool executions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		exec, err := scanToolExecution(rows)
		if err != nil {
			return nil, err
		}
		entry.ToolExecutions = append(entry.ToolExecutions, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate tool executions: %w", err)
	}
	return &entry, nil
}

// CleanupOldLogs deletes tool executions referencing entries older than the
// cutoff, then the entries themselves. Returns the number of audit entries
// removed.
func (r *AuditRepository) CleanupOldLogs(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := fmt.Sprintf("-%d days", days)

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin cleanup: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM tool_executions WHERE audit_log_id IN
		 (SELECT id FROM audit_logs WHERE timestamp < datetime('now', ?))`, cutoff,
	); err != nil {
		return 0, fmt.Errorf("store: cleanup tool executions: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM audit_logs WHERE timestamp < datetime('now', ?)`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("store: cleanup audit logs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit cleanup: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		r.store.log.Info("cleaned up old audit entries", "deleted", deleted, "days", days)
	}
	return deleted, nil
}

func (r *AuditRepository) queryEntries(ctx context.Context, query string, args ...any) ([]models.AuditEntry, error) {
	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query audit logs: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var (
			entry     models.AuditEntry
			userID    sql.NullString
			sessionID sql.NullString
			metadata  sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.Source, &userID, &sessionID,
			&entry.MessageType, &entry.Content, &metadata); err != nil {
			return nil, fmt.Errorf("store: scan audit log: %w", err)
		}
		entry.UserID = userID.String
		entry.SessionID = sessionID.String
		if metadata.Valid && metadata.String != "" {
			_ = json.Unmarshal([]byte(metadata.String), &entry.Metadata)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate audit logs: %w", err)
	}
	return entries, nil
}

func scanToolExecution(rows *sql.Rows) (models.ToolExecutionEntry, error) {
	var (
		exec       models.ToolExecutionEntry
		auditLogID sql.NullInt64
		result     sql.NullString
		errMsg     sql.NullString
	)
	if err := rows.Scan(&exec.ID, &auditLogID, &exec.Timestamp, &exec.ToolName,
		&exec.Parameters, &result, &exec.DurationMs, &exec.Success, &errMsg); err != nil {
		return exec, fmt.Errorf("store: scan tool execution: %w", err)
	}
	if auditLogID.Valid {
		exec.AuditLogID = &auditLogID.Int64
	}
	exec.Result = result.String
	exec.ErrorMessage = errMsg.String
	return exec, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
