package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/merchantrisk/internal/domain"
)

const topCountriesLimit = 5

// DashboardStats aggregates registry counters. since bounds the "recent" assessment counts.
func (r *SQLRepository) DashboardStats(ctx context.Context, since time.Time) (*domain.DashboardStats, error) {
	stats := &domain.DashboardStats{
		ByRiskLevel:          map[string]int{},
		ByStatus:             map[string]int{},
		TopHighRiskCountries: []domain.CountryCount{},
	}

	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(risk_score), 0) FROM merchants`,
	).Scan(&stats.TotalMerchants, &stats.AverageRiskScore)
	if err != nil {
		return nil, fmt.Errorf("failed to count merchants: %w", err)
	}

	if err := r.groupCount(ctx, `SELECT risk_level, COUNT(*) FROM merchants GROUP BY risk_level`, stats.ByRiskLevel); err != nil {
		return nil, err
	}
	if err := r.groupCount(ctx, `SELECT status, COUNT(*) FROM merchants GROUP BY status`, stats.ByStatus); err != nil {
		return nil, err
	}

	counts := []struct {
		dst   *int
		query string
		args  []any
	}{
		{
			&stats.RecentHighRisk,
			`SELECT COUNT(*) FROM risk_assessments WHERE risk_level IN ('HIGH', 'CRITICAL') AND created_at >= ?`,
			[]any{since.UTC()},
		},
		{
			&stats.AssessmentsLast7Days,
			`SELECT COUNT(*) FROM risk_assessments WHERE created_at >= ?`,
			[]any{since.UTC()},
		},
		{
			&stats.UnresolvedAlerts,
			`SELECT COUNT(*) FROM alerts WHERE is_resolved = 0`,
			nil,
		},
	}
	for _, c := range counts {
		if err := r.q.QueryRowContext(ctx, r.rebind(c.query), c.args...).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("failed to compute dashboard counter: %w", err)
		}
	}

	rows, err := r.q.QueryContext(ctx, r.rebind(`
		SELECT country, COUNT(*) AS n FROM merchants
		WHERE risk_level IN ('HIGH', 'CRITICAL')
		GROUP BY country
		ORDER BY n DESC, country ASC
		LIMIT ?`), topCountriesLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to rank countries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var cc domain.CountryCount
		if err := rows.Scan(&cc.Country, &cc.Count); err != nil {
			return nil, err
		}
		stats.TopHighRiskCountries = append(stats.TopHighRiskCountries, cc)
	}
	return stats, rows.Err()
}

func (r *SQLRepository) groupCount(ctx context.Context, query string, dst map[string]int) error {
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to group merchants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		dst[key] = n
	}
	return rows.Err()
}
