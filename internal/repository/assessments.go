package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/merchantrisk/internal/domain"
)

const assessmentColumns = `
	id, merchant_id, risk_score, risk_level, reasons, applied_rules,
	input_data, weights_used, thresholds_used, lists_used,
	is_override, override_reason, override_by, assessed_by, created_at`

// SaveAssessment appends an assessment record. ID and CreatedAt are assigned when empty.
func (r *SQLRepository) SaveAssessment(ctx context.Context, a *domain.AssessmentRecord) error {
	if a.MerchantID == "" {
		return fmt.Errorf("%w: assessment requires a merchant id", ErrInvalidInput)
	}
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	cols := make([]string, 0, 6)
	for _, v := range []any{a.Reasons, a.AppliedRules, a.InputData, a.WeightsUsed, a.ThresholdsUsed, a.ListsUsed} {
		s, err := marshalJSON(v)
		if err != nil {
			return err
		}
		cols = append(cols, s)
	}

	query := `INSERT INTO risk_assessments (` + assessmentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.q.ExecContext(ctx, r.rebind(query),
		a.ID, a.MerchantID, a.RiskScore, string(a.RiskLevel), cols[0], cols[1],
		cols[2], cols[3], cols[4], cols[5],
		boolToInt(a.IsOverride), a.OverrideReason, a.OverrideBy, a.AssessedBy, a.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert assessment: %w", err)
	}
	return nil
}

// GetAssessment retrieves one assessment record.
func (r *SQLRepository) GetAssessment(ctx context.Context, assessmentID string) (*domain.AssessmentRecord, error) {
	query := `SELECT ` + assessmentColumns + ` FROM risk_assessments WHERE id = ?`

	a, err := scanAssessment(r.q.QueryRowContext(ctx, r.rebind(query), assessmentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: assessment %s", ErrNotFound, assessmentID)
	}
	return a, err
}

// ListAssessments returns a merchant's assessment history, newest first.
func (r *SQLRepository) ListAssessments(ctx context.Context, merchantID string, limit int) ([]*domain.AssessmentRecord, error) {
	query := `SELECT ` + assessmentColumns + ` FROM risk_assessments
		WHERE merchant_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	rows, err := r.q.QueryContext(ctx, r.rebind(query), merchantID, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	defer rows.Close()

	var out []*domain.AssessmentRecord
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAssessment(row rowScanner) (*domain.AssessmentRecord, error) {
	var (
		a                                     domain.AssessmentRecord
		level                                 string
		reasons, rules, input, weights, th, l string
		override                              int
	)

	err := row.Scan(
		&a.ID, &a.MerchantID, &a.RiskScore, &level, &reasons, &rules,
		&input, &weights, &th, &l,
		&override, &a.OverrideReason, &a.OverrideBy, &a.AssessedBy, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.RiskLevel = domain.RiskLevel(level)
	a.IsOverride = override != 0
	a.CreatedAt = a.CreatedAt.UTC()

	for _, c := range []struct {
		raw string
		dst any
	}{
		{reasons, &a.Reasons},
		{rules, &a.AppliedRules},
		{input, &a.InputData},
		{weights, &a.WeightsUsed},
		{th, &a.ThresholdsUsed},
		{l, &a.ListsUsed},
	} {
		if err := unmarshalJSON(c.raw, c.dst); err != nil {
			return nil, err
		}
	}

	return &a, nil
}
