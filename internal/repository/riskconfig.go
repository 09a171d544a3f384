package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/merchantrisk/internal/domain"
)

// GetRiskConfig returns the stored override for key, or ErrNotFound when none exists.
func (r *SQLRepository) GetRiskConfig(ctx context.Context, key string) (*domain.RiskConfigEntry, error) {
	query := `
		SELECT config_key, config_value, config_type, description, updated_by, created_at, updated_at
		FROM risk_configurations
		WHERE config_key = ?
	`

	var e domain.RiskConfigEntry
	var value string
	err := r.q.QueryRowContext(ctx, r.rebind(query), key).Scan(
		&e.Key, &value, &e.Type, &e.Description, &e.UpdatedBy, &e.CreatedAt, &e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: config %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", key, err)
	}

	e.Value = []byte(value)
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return &e, nil
}

// SaveRiskConfig upserts an override. The row is created on first write; later writes win.
func (r *SQLRepository) SaveRiskConfig(ctx context.Context, e *domain.RiskConfigEntry) error {
	if e.Key == "" {
		return fmt.Errorf("%w: config key is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	query := `
		INSERT INTO risk_configurations (config_key, config_value, config_type, description, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (config_key) DO UPDATE SET
			config_value = excluded.config_value,
			config_type = excluded.config_type,
			description = excluded.description,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at
	`

	_, err := r.q.ExecContext(ctx, r.rebind(query),
		e.Key, string(e.Value), e.Type, e.Description, e.UpdatedBy, e.CreatedAt.UTC(), e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save config %s: %w", e.Key, err)
	}
	return nil
}
