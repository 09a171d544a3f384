package assessment

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/merchantrisk/internal/domain"
	"github.com/opensource-finance/merchantrisk/internal/repository"
	"github.com/opensource-finance/merchantrisk/internal/rules"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "assessment.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newEngine(t *testing.T) *rules.Engine {
	t.Helper()
	e, err := rules.NewEngine()
	require.NoError(t, err)
	return e
}

func pepMerchant() *domain.Merchant {
	return &domain.Merchant{
		MerchantProfile: domain.MerchantProfile{
			MerchantID:      "M-PEP",
			Country:         "Germany",
			Industry:        "Retail",
			AnnualVolume:    decimal.NewFromInt(2_000_000),
			OwnerPEP:        true,
			YearsInBusiness: 5,
		},
		BusinessName: "Acme Trading GmbH",
		OwnerName:    "A. Owner",
		Status:       domain.StatusPending,
	}
}

func TestRecord(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	rec := NewRecorder(repo)
	engine := newEngine(t)

	m := pepMerchant()
	snap := rules.DefaultSnapshot()
	res := engine.Evaluate(&m.MerchantProfile, snap)
	require.Equal(t, domain.RiskHigh, res.Level)

	stored, err := rec.Record(ctx, m, res, snap, "")
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, domain.SystemAssessor, stored.AssessedBy)
	assert.False(t, stored.IsOverride)

	got, err := repo.GetAssessment(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, res, got.Result())
	assert.Equal(t, snap.Weights, got.WeightsUsed)
	assert.Equal(t, snap.Thresholds, got.ThresholdsUsed)
	assert.Equal(t, snap.HighRiskCountries, got.ListsUsed.Countries)
	assert.True(t, m.AnnualVolume.Equal(got.InputData.AnnualVolume))

	t.Run("SnapshotIsCopied", func(t *testing.T) {
		snap.Weights[rules.WeightOwnerPEP] = 1
		snap.HighRiskCountries[0] = "Nowhere"
		assert.Equal(t, 50, stored.WeightsUsed[rules.WeightOwnerPEP])
		assert.NotEqual(t, "Nowhere", stored.ListsUsed.Countries[0])
	})
}

func TestRecordOverride(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	rec := NewRecorder(repo)

	m := pepMerchant()
	m.RiskLevel = domain.RiskHigh
	m.RiskScore = 65

	snap := rules.DefaultSnapshot()
	snap.Weights[rules.WeightOwnerPEP] = 70
	snap.Thresholds.LowMax = 25
	snap.BlacklistedMCCs = []string{"7995"}

	cases := []struct {
		level domain.RiskLevel
		score int
	}{
		{domain.RiskLow, 15},
		{domain.RiskMedium, 45},
		{domain.RiskHigh, 75},
		{domain.RiskCritical, 95},
	}
	for _, tc := range cases {
		t.Run(string(tc.level), func(t *testing.T) {
			got, err := rec.RecordOverride(ctx, m, tc.level, "  documented source of funds  ", snap, "analyst")
			require.NoError(t, err)
			assert.Equal(t, tc.score, got.RiskScore)
			assert.True(t, got.IsOverride)
			assert.Equal(t, "documented source of funds", got.OverrideReason)
			assert.Equal(t, "analyst", got.OverrideBy)
			assert.Equal(t, []string{"Manual override from HIGH to " + string(tc.level)}, got.Reasons)
			assert.Equal(t, []string{domain.ManualOverrideRule}, got.AppliedRules)
		})
	}

	t.Run("StoresConfiguration", func(t *testing.T) {
		got, err := rec.RecordOverride(ctx, m, domain.RiskMedium, "enhanced due diligence done", snap, "analyst")
		require.NoError(t, err)

		stored, err := repo.GetAssessment(ctx, got.ID)
		require.NoError(t, err)
		assert.Equal(t, 70, stored.WeightsUsed[rules.WeightOwnerPEP])
		assert.Equal(t, snap.Thresholds, stored.ThresholdsUsed)
		assert.Equal(t, snap.HighRiskCountries, stored.ListsUsed.Countries)
		assert.Equal(t, []string{"7995"}, stored.ListsUsed.MCCs)
	})

	t.Run("ShortJustification", func(t *testing.T) {
		_, err := rec.RecordOverride(ctx, m, domain.RiskLow, "   too short  ", snap, "analyst")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("UnknownLevel", func(t *testing.T) {
		_, err := rec.RecordOverride(ctx, m, "SEVERE", "a perfectly fine reason", snap, "analyst")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	history, err := repo.ListAssessments(ctx, m.MerchantID, 0)
	require.NoError(t, err)
	assert.Len(t, history, len(cases)+1, "failed overrides store nothing")
}

func TestReplay(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	rec := NewRecorder(repo)
	engine := newEngine(t)

	m := pepMerchant()
	m.Country = "Panama"
	snap := rules.DefaultSnapshot()
	res := engine.Evaluate(&m.MerchantProfile, snap)

	stored, err := rec.Record(ctx, m, res, snap, "system")
	require.NoError(t, err)

	loaded, err := repo.GetAssessment(ctx, stored.ID)
	require.NoError(t, err)

	report, err := Replay(loaded, engine)
	require.NoError(t, err)
	assert.True(t, report.Identical)
	assert.Equal(t, stored.ID, report.AssessmentID)
	assert.Equal(t, res, report.Replayed)

	t.Run("IndependentOfCurrentDefaults", func(t *testing.T) {
		// a record made under a custom snapshot replays against that snapshot
		custom := rules.DefaultSnapshot()
		custom.Weights[rules.WeightOwnerPEP] = 5
		custom.HighRiskCountries = []string{"Germany"}
		m2 := pepMerchant()
		res2 := engine.Evaluate(&m2.MerchantProfile, custom)

		stored2, err := rec.Record(ctx, m2, res2, custom, "system")
		require.NoError(t, err)
		loaded2, err := repo.GetAssessment(ctx, stored2.ID)
		require.NoError(t, err)

		report, err := Replay(loaded2, engine)
		require.NoError(t, err)
		assert.True(t, report.Identical)
	})

	t.Run("DetectsDrift", func(t *testing.T) {
		tampered := *loaded
		tampered.RiskScore++
		report, err := Replay(&tampered, engine)
		require.NoError(t, err)
		assert.False(t, report.Identical)
	})

	t.Run("OverrideNotReplayable", func(t *testing.T) {
		ov, err := rec.RecordOverride(ctx, m, domain.RiskLow, "verified by compliance", nil, "analyst")
		require.NoError(t, err)
		_, err = Replay(ov, engine)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestMaybeCreate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	gen := NewAlertGenerator(repo)
	m := pepMerchant()

	for _, level := range []domain.RiskLevel{domain.RiskLow, domain.RiskMedium} {
		alert, err := gen.MaybeCreate(ctx, m, "A1", level, []string{"x"})
		require.NoError(t, err)
		assert.Nil(t, alert, string(level))
	}

	high, err := gen.MaybeCreate(ctx, m, "A2", domain.RiskHigh, []string{"Owner is Politically Exposed Person (PEP)", "High annual volume: $2,000,000"})
	require.NoError(t, err)
	require.NotNil(t, high)
	assert.Equal(t, domain.SeverityWarning, high.Severity)
	assert.Equal(t, "HIGH_RISK_DETECTED", high.AlertType)
	assert.Equal(t, "HIGH Risk Merchant Detected: Acme Trading GmbH", high.Title)
	assert.Equal(t, "Merchant M-PEP assessed as HIGH risk. Reasons: Owner is Politically Exposed Person (PEP); High annual volume: $2,000,000", high.Description)
	assert.Equal(t, "A2", high.AssessmentID)
	assert.False(t, high.IsResolved)

	critical, err := gen.MaybeCreate(ctx, m, "A3", domain.RiskCritical, []string{"Owner on sanctions list - automatic CRITICAL risk"})
	require.NoError(t, err)
	require.NotNil(t, critical)
	assert.Equal(t, domain.SeverityCritical, critical.Severity)
	assert.Equal(t, "CRITICAL_RISK_DETECTED", critical.AlertType)

	t.Run("NoDeduplication", func(t *testing.T) {
		_, err := gen.MaybeCreate(ctx, m, "A4", domain.RiskHigh, []string{"again"})
		require.NoError(t, err)

		open := false
		alerts, err := repo.ListAlerts(ctx, domain.AlertFilter{MerchantID: m.MerchantID, Resolved: &open})
		require.NoError(t, err)
		assert.Len(t, alerts, 3)
	})
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	gen := NewAlertGenerator(repo)

	alert, err := gen.MaybeCreate(ctx, pepMerchant(), "", domain.RiskHigh, []string{"r"})
	require.NoError(t, err)

	t.Run("ShortNotes", func(t *testing.T) {
		_, err := gen.Resolve(ctx, alert.ID, "analyst", " ok ")
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("UnknownAlert", func(t *testing.T) {
		_, err := gen.Resolve(ctx, "missing", "analyst", "false positive")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	resolved, err := gen.Resolve(ctx, alert.ID, "analyst", "  false positive  ")
	require.NoError(t, err)
	assert.True(t, resolved.IsResolved)
	assert.Equal(t, "analyst", resolved.ResolvedBy)
	assert.Equal(t, "false positive", resolved.ResolutionNotes)
	require.NotNil(t, resolved.ResolvedAt)

	t.Run("AlreadyResolved", func(t *testing.T) {
		_, err := gen.Resolve(ctx, alert.ID, "someone-else", "second attempt")
		assert.ErrorIs(t, err, domain.ErrConflict)

		again, err := repo.GetAlert(ctx, alert.ID)
		require.NoError(t, err)
		assert.Equal(t, "analyst", again.ResolvedBy, "first resolution is kept")
	})
}

func TestResolveConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	gen := NewAlertGenerator(repo)

	alert, err := gen.MaybeCreate(ctx, pepMerchant(), "", domain.RiskCritical, []string{"r"})
	require.NoError(t, err)

	const racers = 8
	var wg sync.WaitGroup
	errs := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gen.Resolve(ctx, alert.ID, "analyst", "closing this alert")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, domain.ErrConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, racers-1, conflicts)
}
