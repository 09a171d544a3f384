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

const merchantColumns = `
	merchant_id, business_name, owner_name, country, industry, mcc_code,
	annual_volume, monthly_tx_count, owner_pep, owner_sanctioned, years_in_business,
	offshore_structure, cash_intensive, complex_ownership,
	refund_rate, chargeback_rate, volume_change_pct,
	status, risk_score, risk_level, last_risk_assessment, created_at, updated_at`

// CreateMerchant inserts a new merchant. A duplicate id returns ErrConflict.
func (r *SQLRepository) CreateMerchant(ctx context.Context, m *domain.Merchant) error {
	if m.MerchantID == "" {
		return fmt.Errorf("%w: merchant id is required", ErrInvalidInput)
	}

	var exists int
	err := r.q.QueryRowContext(ctx, r.rebind(`SELECT 1 FROM merchants WHERE merchant_id = ?`), m.MerchantID).Scan(&exists)
	if err == nil {
		return fmt.Errorf("%w: merchant %s already exists", domain.ErrConflict, m.MerchantID)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check merchant: %w", err)
	}

	return r.insertMerchant(ctx, m)
}

// insertMerchant writes the row. A concurrent create that won the race surfaces here
// as a key violation and is reported as ErrConflict.
func (r *SQLRepository) insertMerchant(ctx context.Context, m *domain.Merchant) error {
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	query := `INSERT INTO merchants (` + merchantColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.q.ExecContext(ctx, r.rebind(query),
		m.MerchantID, m.BusinessName, m.OwnerName, m.Country, m.Industry, m.MCCCode,
		m.AnnualVolume, m.MonthlyTxCount, boolToInt(m.OwnerPEP), boolToInt(m.OwnerSanctioned), m.YearsInBusiness,
		boolToInt(m.OffshoreStruct), boolToInt(m.CashIntensive), boolToInt(m.ComplexOwnership),
		m.RefundRate, m.ChargebackRate, m.VolumeChangePct,
		string(m.Status), m.RiskScore, string(m.RiskLevel), nullableTime(m.LastRiskAssessment),
		m.CreatedAt.UTC(), m.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: merchant %s already exists", domain.ErrConflict, m.MerchantID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert merchant: %w", err)
	}
	return nil
}

// UpdateMerchant overwrites every mutable column of an existing merchant.
func (r *SQLRepository) UpdateMerchant(ctx context.Context, m *domain.Merchant) error {
	m.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE merchants SET
			business_name = ?, owner_name = ?, country = ?, industry = ?, mcc_code = ?,
			annual_volume = ?, monthly_tx_count = ?, owner_pep = ?, owner_sanctioned = ?,
			years_in_business = ?, offshore_structure = ?, cash_intensive = ?, complex_ownership = ?,
			refund_rate = ?, chargeback_rate = ?, volume_change_pct = ?,
			status = ?, risk_score = ?, risk_level = ?, last_risk_assessment = ?, updated_at = ?
		WHERE merchant_id = ?
	`

	res, err := r.q.ExecContext(ctx, r.rebind(query),
		m.BusinessName, m.OwnerName, m.Country, m.Industry, m.MCCCode,
		m.AnnualVolume, m.MonthlyTxCount, boolToInt(m.OwnerPEP), boolToInt(m.OwnerSanctioned),
		m.YearsInBusiness, boolToInt(m.OffshoreStruct), boolToInt(m.CashIntensive), boolToInt(m.ComplexOwnership),
		m.RefundRate, m.ChargebackRate, m.VolumeChangePct,
		string(m.Status), m.RiskScore, string(m.RiskLevel), nullableTime(m.LastRiskAssessment), m.UpdatedAt,
		m.MerchantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update merchant: %w", err)
	}
	return expectOneRow(res, "merchant", m.MerchantID)
}

// GetMerchant retrieves a merchant by id.
func (r *SQLRepository) GetMerchant(ctx context.Context, merchantID string) (*domain.Merchant, error) {
	query := `SELECT ` + merchantColumns + ` FROM merchants WHERE merchant_id = ?`

	m, err := scanMerchant(r.q.QueryRowContext(ctx, r.rebind(query), merchantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: merchant %s", ErrNotFound, merchantID)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListMerchants returns merchants matching filter, highest risk score first.
func (r *SQLRepository) ListMerchants(ctx context.Context, filter domain.MerchantFilter) ([]*domain.Merchant, error) {
	var where []string
	var args []any

	if filter.RiskLevel != "" {
		where = append(where, "risk_level = ?")
		args = append(args, string(filter.RiskLevel))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Country != "" {
		where = append(where, "LOWER(country) LIKE ?")
		args = append(args, "%"+strings.ToLower(filter.Country)+"%")
	}

	query := `SELECT ` + merchantColumns + ` FROM merchants`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY risk_score DESC, merchant_id ASC LIMIT ? OFFSET ?"
	args = append(args, limitOrDefault(filter.Limit), max(filter.Offset, 0))

	rows, err := r.q.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list merchants: %w", err)
	}
	defer rows.Close()

	var merchants []*domain.Merchant
	for rows.Next() {
		m, err := scanMerchant(rows)
		if err != nil {
			return nil, err
		}
		merchants = append(merchants, m)
	}
	return merchants, rows.Err()
}

// ListMerchantIDs returns every merchant id in a stable order.
func (r *SQLRepository) ListMerchantIDs(ctx context.Context) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT merchant_id FROM merchants ORDER BY merchant_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list merchant ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteMerchant removes the merchant row. Assessment, alert and audit history is kept.
func (r *SQLRepository) DeleteMerchant(ctx context.Context, merchantID string) error {
	res, err := r.q.ExecContext(ctx, r.rebind(`DELETE FROM merchants WHERE merchant_id = ?`), merchantID)
	if err != nil {
		return fmt.Errorf("failed to delete merchant: %w", err)
	}
	return expectOneRow(res, "merchant", merchantID)
}

func scanMerchant(row rowScanner) (*domain.Merchant, error) {
	var (
		m                                    domain.Merchant
		status, level                        string
		pep, sanctioned, offshore, cash, cpx int
		lastAssessment                       sql.NullTime
	)

	err := row.Scan(
		&m.MerchantID, &m.BusinessName, &m.OwnerName, &m.Country, &m.Industry, &m.MCCCode,
		&m.AnnualVolume, &m.MonthlyTxCount, &pep, &sanctioned, &m.YearsInBusiness,
		&offshore, &cash, &cpx,
		&m.RefundRate, &m.ChargebackRate, &m.VolumeChangePct,
		&status, &m.RiskScore, &level, &lastAssessment, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.OwnerPEP = pep != 0
	m.OwnerSanctioned = sanctioned != 0
	m.OffshoreStruct = offshore != 0
	m.CashIntensive = cash != 0
	m.ComplexOwnership = cpx != 0
	m.Status = domain.MerchantStatus(status)
	m.RiskLevel = domain.RiskLevel(level)
	m.LastRiskAssessment = timePtr(lastAssessment)
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()

	return &m, nil
}

func expectOneRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return nil
}
