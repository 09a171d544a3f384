package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/merchantrisk/internal/domain"
)

const auditColumns = `
	id, action_type, merchant_id, config_key, description, previous_value, new_value,
	ip_address, endpoint, user_agent, user_id, created_at`

// AppendAuditLog writes one audit entry. Entries are never updated or deleted.
func (r *SQLRepository) AppendAuditLog(ctx context.Context, e *domain.AuditLogEntry) error {
	if !e.ActionType.Valid() {
		return fmt.Errorf("%w: unknown audit action %q", ErrInvalidInput, e.ActionType)
	}
	if e.ID == "" {
		e.ID = newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	prev, err := nullableJSON(e.PreviousValue)
	if err != nil {
		return err
	}
	next, err := nullableJSON(e.NewValue)
	if err != nil {
		return err
	}

	query := `INSERT INTO audit_logs (` + auditColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.q.ExecContext(ctx, r.rebind(query),
		e.ID, string(e.ActionType), e.MerchantID, e.ConfigKey, e.Description, prev, next,
		e.IPAddress, e.Endpoint, e.UserAgent, e.UserID, e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns entries matching filter, newest first.
func (r *SQLRepository) ListAuditLogs(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLogEntry, error) {
	var where []string
	var args []any

	if filter.MerchantID != "" {
		where = append(where, "merchant_id = ?")
		args = append(args, filter.MerchantID)
	}
	if filter.ActionType != "" {
		where = append(where, "action_type = ?")
		args = append(args, string(filter.ActionType))
	}
	if filter.ConfigKey != "" {
		where = append(where, "config_key = ?")
		args = append(args, filter.ConfigKey)
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.UTC())
	}

	query := `SELECT ` + auditColumns + ` FROM audit_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := r.q.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var out []*domain.AuditLogEntry
	for rows.Next() {
		var (
			e          domain.AuditLogEntry
			action     string
			prev, next *string
		)
		if err := rows.Scan(
			&e.ID, &action, &e.MerchantID, &e.ConfigKey, &e.Description, &prev, &next,
			&e.IPAddress, &e.Endpoint, &e.UserAgent, &e.UserID, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.ActionType = domain.AuditAction(action)
		e.CreatedAt = e.CreatedAt.UTC()
		if prev != nil {
			if err := unmarshalJSON(*prev, &e.PreviousValue); err != nil {
				return nil, err
			}
		}
		if next != nil {
			if err := unmarshalJSON(*next, &e.NewValue); err != nil {
				return nil, err
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nullableJSON(v map[string]any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	s, err := marshalJSON(v)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
