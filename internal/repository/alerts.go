package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/merchantrisk/internal/domain"
)

const alertColumns = `
	id, merchant_id, assessment_id, alert_type, severity, title, description,
	is_resolved, resolved_by, resolved_at, resolution_notes, created_at`

// SaveAlert inserts a new open alert. ID and CreatedAt are assigned when empty.
func (r *SQLRepository) SaveAlert(ctx context.Context, a *domain.Alert) error {
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO alerts (` + alertColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.q.ExecContext(ctx, r.rebind(query),
		a.ID, a.MerchantID, a.AssessmentID, a.AlertType, string(a.Severity), a.Title, a.Description,
		boolToInt(a.IsResolved), a.ResolvedBy, nullableTime(a.ResolvedAt), a.ResolutionNotes, a.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// GetAlert retrieves one alert.
func (r *SQLRepository) GetAlert(ctx context.Context, alertID string) (*domain.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`

	a, err := scanAlert(r.q.QueryRowContext(ctx, r.rebind(query), alertID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: alert %s", ErrNotFound, alertID)
	}
	return a, err
}

// ListAlerts returns alerts matching filter, newest first.
func (r *SQLRepository) ListAlerts(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, error) {
	var where []string
	var args []any

	if filter.MerchantID != "" {
		where = append(where, "merchant_id = ?")
		args = append(args, filter.MerchantID)
	}
	if filter.Resolved != nil {
		where = append(where, "is_resolved = ?")
		args = append(args, boolToInt(*filter.Resolved))
	}
	if filter.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, string(filter.Severity))
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limitOrDefault(filter.Limit))

	rows, err := r.q.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []*domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ResolveAlert performs the one-way open to resolved transition.
// Only an open alert is updated, so of two concurrent resolutions exactly one succeeds.
func (r *SQLRepository) ResolveAlert(ctx context.Context, alertID, resolvedBy, notes string, at time.Time) (*domain.Alert, error) {
	query := `
		UPDATE alerts SET is_resolved = 1, resolved_by = ?, resolved_at = ?, resolution_notes = ?
		WHERE id = ? AND is_resolved = 0
	`
	res, err := r.q.ExecContext(ctx, r.rebind(query), resolvedBy, at.UTC(), notes, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve alert: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}

	alert, err := r.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: alert %s is already resolved", domain.ErrConflict, alertID)
	}
	return alert, nil
}

func scanAlert(row rowScanner) (*domain.Alert, error) {
	var (
		a          domain.Alert
		severity   string
		resolved   int
		resolvedAt sql.NullTime
	)

	err := row.Scan(
		&a.ID, &a.MerchantID, &a.AssessmentID, &a.AlertType, &severity, &a.Title, &a.Description,
		&resolved, &a.ResolvedBy, &resolvedAt, &a.ResolutionNotes, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Severity = domain.AlertSeverity(severity)
	a.IsResolved = resolved != 0
	a.ResolvedAt = timePtr(resolvedAt)
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}
