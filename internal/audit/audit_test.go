package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/merchantrisk/internal/domain"
	"github.com/opensource-finance/merchantrisk/internal/repository"
)

func newTestLogger(t *testing.T) (*Logger, domain.Repository) {
	t.Helper()
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "audit.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return New(repo), repo
}

func TestAppend(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLogger(t)

	t.Run("FillsIDAndTime", func(t *testing.T) {
		e := &domain.AuditLogEntry{ActionType: domain.ActionMerchantCreate, MerchantID: "M1", Description: "Created merchant M1"}
		require.NoError(t, l.Append(ctx, e))
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.CreatedAt.IsZero())
	})

	t.Run("RejectsUnknownAction", func(t *testing.T) {
		err := l.Append(ctx, &domain.AuditLogEntry{ActionType: "MERCHANT_PURGE", Description: "x"})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("RequiresDescription", func(t *testing.T) {
		err := l.Append(ctx, &domain.AuditLogEntry{ActionType: domain.ActionMerchantDelete, Description: "  "})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestMerchantTrail(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLogger(t)
	meta := domain.RequestMeta{IPAddress: "10.0.0.1", Endpoint: "POST /merchants", UserAgent: "curl/8", UserID: "analyst"}

	_, err := l.Merchant(ctx, domain.ActionMerchantCreate, "M1", "Created merchant M1", nil, map[string]any{"riskLevel": "LOW"}, meta)
	require.NoError(t, err)
	_, err = l.Merchant(ctx, domain.ActionMerchantUpdate, "M1", "Updated merchant M1",
		map[string]any{"riskLevel": "LOW"}, map[string]any{"riskLevel": "HIGH"}, meta)
	require.NoError(t, err)
	_, err = l.Merchant(ctx, domain.ActionMerchantCreate, "M2", "Created merchant M2", nil, nil, meta)
	require.NoError(t, err)

	trail, err := l.MerchantTrail(ctx, "M1", 0)
	require.NoError(t, err)
	require.Len(t, trail, 2)

	assert.Equal(t, domain.ActionMerchantUpdate, trail[0].ActionType, "newest first")
	assert.Equal(t, "HIGH", trail[0].NewValue["riskLevel"])
	assert.Equal(t, "LOW", trail[0].PreviousValue["riskLevel"])
	assert.Equal(t, meta, trail[0].RequestMeta)

	limited, err := l.MerchantTrail(ctx, "M1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = l.MerchantTrail(ctx, "", 10)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRecent(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLogger(t)

	now := time.Now().UTC()
	old := &domain.AuditLogEntry{
		ActionType:  domain.ActionRiskAssessment,
		MerchantID:  "M1",
		Description: "old assessment",
		CreatedAt:   now.Add(-48 * time.Hour),
	}
	require.NoError(t, l.Append(ctx, old))
	_, err := l.Merchant(ctx, domain.ActionRiskAssessment, "M1", "fresh assessment", nil, nil, domain.RequestMeta{})
	require.NoError(t, err)
	_, err = l.Merchant(ctx, domain.ActionAlertCreate, "M1", "alert", nil, nil, domain.RequestMeta{})
	require.NoError(t, err)

	all, err := l.Recent(ctx, "", 24, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assessments, err := l.Recent(ctx, domain.ActionRiskAssessment, 24, 0)
	require.NoError(t, err)
	require.Len(t, assessments, 1)
	assert.Equal(t, "fresh assessment", assessments[0].Description)

	wide, err := l.Recent(ctx, domain.ActionRiskAssessment, 72, 0)
	require.NoError(t, err)
	assert.Len(t, wide, 2)

	_, err = l.Recent(ctx, "NOT_AN_ACTION", 24, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestConfigHistory(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLogger(t)
	meta := domain.RequestMeta{UserID: "admin"}

	_, err := l.ConfigChange(ctx, domain.ConfigKeyWeights, map[string]any{"owner_pep": 50}, map[string]any{"owner_pep": 60}, meta)
	require.NoError(t, err)
	_, err = l.ConfigChange(ctx, domain.ConfigKeyThresholds, nil, map[string]any{"low_max": 25}, meta)
	require.NoError(t, err)
	_, err = l.Merchant(ctx, domain.ActionMerchantCreate, "M1", "Created merchant M1", nil, nil, meta)
	require.NoError(t, err)

	all, err := l.ConfigHistory(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, domain.ConfigKeyThresholds, all[0].ConfigKey)

	weights, err := l.ConfigHistory(ctx, domain.ConfigKeyWeights, 0)
	require.NoError(t, err)
	require.Len(t, weights, 1)
	assert.Equal(t, "Updated risk_weights", weights[0].Description)
	assert.EqualValues(t, 60, weights[0].NewValue["owner_pep"])
}

func TestAppendInsideTransaction(t *testing.T) {
	ctx := context.Background()
	l, repo := newTestLogger(t)

	err := repo.InTx(ctx, func(tx domain.Repository) error {
		if _, err := New(tx).Merchant(ctx, domain.ActionMerchantDelete, "M9", "Deleted merchant M9", nil, nil, domain.RequestMeta{}); err != nil {
			return err
		}
		return domain.ErrConflict
	})
	require.ErrorIs(t, err, domain.ErrConflict)

	trail, err := l.MerchantTrail(ctx, "M9", 0)
	require.NoError(t, err)
	assert.Empty(t, trail, "rolled back entry must not be visible")
}

func TestClamp(t *testing.T) {
	assert.Equal(t, DefaultLimit, clamp(0))
	assert.Equal(t, 5, clamp(5))
	assert.Equal(t, 1000, clamp(5000))
}
