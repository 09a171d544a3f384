package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/merchantrisk/internal/domain"
	"github.com/shopspring/decimal"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "merchantrisk-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() {
		os.Remove(tmpPath)
		os.Remove(tmpPath + "-wal")
		os.Remove(tmpPath + "-shm")
	})

	repo, err := New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testMerchant(id string) *domain.Merchant {
	return &domain.Merchant{
		MerchantProfile: domain.MerchantProfile{
			MerchantID:      id,
			Country:         "Panama",
			Industry:        "Retail",
			MCCCode:         "5411",
			AnnualVolume:    decimal.RequireFromString("125000.50"),
			OwnerPEP:        true,
			YearsInBusiness: 4,
			CashIntensive:   true,
			RefundRate:      1.25,
			ChargebackRate:  0.4,
			VolumeChangePct: -12.5,
		},
		BusinessName:   "Acme Traders",
		OwnerName:      "Jane Doe",
		MonthlyTxCount: 320,
		Status:         domain.StatusUnderReview,
		RiskScore:      80,
		RiskLevel:      domain.RiskHigh,
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("CreateAndGetMerchant", func(t *testing.T) {
		m := testMerchant("M-001")
		now := time.Now().UTC()
		m.LastRiskAssessment = &now

		if err := repo.CreateMerchant(ctx, m); err != nil {
			t.Fatalf("CreateMerchant failed: %v", err)
		}

		got, err := repo.GetMerchant(ctx, "M-001")
		if err != nil {
			t.Fatalf("GetMerchant failed: %v", err)
		}
		if !got.AnnualVolume.Equal(m.AnnualVolume) {
			t.Errorf("expected volume %s, got %s", m.AnnualVolume, got.AnnualVolume)
		}
		if !got.OwnerPEP || !got.CashIntensive || got.OffshoreStruct {
			t.Errorf("boolean flags not round-tripped: %+v", got.MerchantProfile)
		}
		if got.RiskLevel != domain.RiskHigh || got.Status != domain.StatusUnderReview {
			t.Errorf("unexpected risk state %s/%s", got.RiskLevel, got.Status)
		}
		if got.VolumeChangePct != -12.5 {
			t.Errorf("expected volume change -12.5, got %v", got.VolumeChangePct)
		}
		if got.LastRiskAssessment == nil {
			t.Error("expected last assessment time")
		}
	})

	t.Run("DuplicateMerchant", func(t *testing.T) {
		err := repo.CreateMerchant(ctx, testMerchant("M-001"))
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("DuplicateInsertRace", func(t *testing.T) {
		// the existence check passed on another connection; only the key stops the insert
		err := repo.(*SQLRepository).insertMerchant(ctx, testMerchant("M-001"))
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected ErrConflict from the key violation, got %v", err)
		}
	})

	t.Run("MerchantNotFound", func(t *testing.T) {
		if _, err := repo.GetMerchant(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := repo.UpdateMerchant(ctx, testMerchant("missing")); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on update, got %v", err)
		}
		if err := repo.DeleteMerchant(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on delete, got %v", err)
		}
	})

	t.Run("UpdateMerchant", func(t *testing.T) {
		m, _ := repo.GetMerchant(ctx, "M-001")
		m.Status = domain.StatusActive
		m.RiskScore = 20
		m.RiskLevel = domain.RiskLow

		if err := repo.UpdateMerchant(ctx, m); err != nil {
			t.Fatalf("UpdateMerchant failed: %v", err)
		}
		got, _ := repo.GetMerchant(ctx, "M-001")
		if got.Status != domain.StatusActive || got.RiskScore != 20 {
			t.Errorf("update not persisted: %+v", got)
		}
	})

	t.Run("ListMerchants", func(t *testing.T) {
		for i, c := range []string{"Germany", "Iran", "Panama"} {
			m := testMerchant("M-L" + c)
			m.Country = c
			m.RiskScore = 50 + i*10
			if err := repo.CreateMerchant(ctx, m); err != nil {
				t.Fatalf("CreateMerchant failed: %v", err)
			}
		}

		all, err := repo.ListMerchants(ctx, domain.MerchantFilter{})
		if err != nil {
			t.Fatalf("ListMerchants failed: %v", err)
		}
		if len(all) != 4 {
			t.Fatalf("expected 4 merchants, got %d", len(all))
		}
		for i := 1; i < len(all); i++ {
			if all[i-1].RiskScore < all[i].RiskScore {
				t.Errorf("not ordered by score: %d before %d", all[i-1].RiskScore, all[i].RiskScore)
			}
		}

		pan, _ := repo.ListMerchants(ctx, domain.MerchantFilter{Country: "pan"})
		if len(pan) != 2 {
			t.Errorf("expected 2 Panama merchants, got %d", len(pan))
		}

		active, _ := repo.ListMerchants(ctx, domain.MerchantFilter{Status: domain.StatusActive})
		if len(active) != 1 {
			t.Errorf("expected 1 active merchant, got %d", len(active))
		}

		page, _ := repo.ListMerchants(ctx, domain.MerchantFilter{Offset: 1, Limit: 2})
		if len(page) != 2 || page[0].MerchantID != all[1].MerchantID {
			t.Errorf("unexpected page: %d entries", len(page))
		}

		ids, err := repo.ListMerchantIDs(ctx)
		if err != nil || len(ids) != 4 {
			t.Errorf("expected 4 ids, got %v (%v)", ids, err)
		}
	})

	t.Run("DeleteKeepsHistory", func(t *testing.T) {
		a := &domain.AssessmentRecord{MerchantID: "M-LGermany", RiskScore: 50, RiskLevel: domain.RiskMedium, AssessedBy: domain.SystemAssessor}
		if err := repo.SaveAssessment(ctx, a); err != nil {
			t.Fatalf("SaveAssessment failed: %v", err)
		}
		if err := repo.DeleteMerchant(ctx, "M-LGermany"); err != nil {
			t.Fatalf("DeleteMerchant failed: %v", err)
		}
		history, _ := repo.ListAssessments(ctx, "M-LGermany", 10)
		if len(history) != 1 {
			t.Errorf("expected assessment history to survive delete, got %d", len(history))
		}
	})
}

func TestAssessments(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := &domain.AssessmentRecord{
		MerchantID:     "M-100",
		RiskScore:      80,
		RiskLevel:      domain.RiskHigh,
		Reasons:        []string{"High-risk country: Panama", "Owner is Politically Exposed Person (PEP)"},
		AppliedRules:   []string{"RULE:high_risk_country", "RULE:owner_pep"},
		InputData:      testMerchant("M-100").MerchantProfile,
		WeightsUsed:    domain.Weights{"high_risk_country": 30, "owner_pep": 50},
		ThresholdsUsed: domain.Thresholds{LowMax: 30, MediumMax: 60, HighMin: 61, CriticalMin: 85},
		ListsUsed:      domain.RiskLists{Countries: []string{"Panama"}},
		AssessedBy:     domain.SystemAssessor,
	}
	if err := repo.SaveAssessment(ctx, first); err != nil {
		t.Fatalf("SaveAssessment failed: %v", err)
	}
	if first.ID == "" || first.CreatedAt.IsZero() {
		t.Fatal("expected id and timestamp to be assigned")
	}

	second := &domain.AssessmentRecord{
		MerchantID:     "M-100",
		RiskScore:      15,
		RiskLevel:      domain.RiskLow,
		Reasons:        []string{"Manual override from HIGH to LOW"},
		AppliedRules:   []string{domain.ManualOverrideRule},
		IsOverride:     true,
		OverrideReason: "verified by compliance",
		OverrideBy:     "analyst-1",
		AssessedBy:     "analyst-1",
	}
	if err := repo.SaveAssessment(ctx, second); err != nil {
		t.Fatalf("SaveAssessment failed: %v", err)
	}

	t.Run("GetAssessment", func(t *testing.T) {
		got, err := repo.GetAssessment(ctx, first.ID)
		if err != nil {
			t.Fatalf("GetAssessment failed: %v", err)
		}
		if got.WeightsUsed["owner_pep"] != 50 || got.ThresholdsUsed.HighMin != 61 {
			t.Errorf("snapshot not round-tripped: %+v", got)
		}
		if len(got.Reasons) != 2 || got.AppliedRules[1] != "RULE:owner_pep" {
			t.Errorf("reasons/rules not round-tripped: %v %v", got.Reasons, got.AppliedRules)
		}
		if got.InputData.Country != "Panama" || !got.InputData.AnnualVolume.Equal(decimal.RequireFromString("125000.5")) {
			t.Errorf("input snapshot not round-tripped: %+v", got.InputData)
		}
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		history, err := repo.ListAssessments(ctx, "M-100", 10)
		if err != nil {
			t.Fatalf("ListAssessments failed: %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("expected 2 records, got %d", len(history))
		}
		if history[0].ID != second.ID || !history[0].IsOverride || history[0].OverrideBy != "analyst-1" {
			t.Errorf("expected override record first, got %+v", history[0])
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.GetAssessment(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestAlerts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	alert := &domain.Alert{
		MerchantID:  "M-200",
		AlertType:   "HIGH_RISK_DETECTED",
		Severity:    domain.SeverityWarning,
		Title:       "HIGH Risk Merchant Detected: Acme",
		Description: "Merchant M-200 assessed as HIGH risk. Reasons: x",
	}
	if err := repo.SaveAlert(ctx, alert); err != nil {
		t.Fatalf("SaveAlert failed: %v", err)
	}

	t.Run("ListOpen", func(t *testing.T) {
		open := false
		alerts, err := repo.ListAlerts(ctx, domain.AlertFilter{Resolved: &open})
		if err != nil || len(alerts) != 1 {
			t.Fatalf("expected 1 open alert, got %d (%v)", len(alerts), err)
		}
	})

	t.Run("ResolveOnce", func(t *testing.T) {
		got, err := repo.ResolveAlert(ctx, alert.ID, "analyst-1", "false positive", time.Now())
		if err != nil {
			t.Fatalf("ResolveAlert failed: %v", err)
		}
		if !got.IsResolved || got.ResolvedAt == nil || got.ResolvedBy != "analyst-1" {
			t.Errorf("resolution not persisted: %+v", got)
		}

		if _, err := repo.ResolveAlert(ctx, alert.ID, "analyst-2", "again", time.Now()); !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}

		reread, _ := repo.GetAlert(ctx, alert.ID)
		if reread.ResolvedBy != "analyst-1" {
			t.Errorf("second resolution overwrote the first: %s", reread.ResolvedBy)
		}
	})

	t.Run("ResolveMissing", func(t *testing.T) {
		if _, err := repo.ResolveAlert(ctx, "nope", "a", "notes", time.Now()); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestAuditLogs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	entries := []*domain.AuditLogEntry{
		{ActionType: domain.ActionMerchantCreate, MerchantID: "M-1", Description: "created", NewValue: map[string]any{"riskScore": 30}},
		{ActionType: domain.ActionConfigChange, ConfigKey: domain.ConfigKeyThresholds, Description: "thresholds",
			PreviousValue: map[string]any{"low_max": 30}, NewValue: map[string]any{"low_max": 25}},
		{ActionType: domain.ActionConfigChange, ConfigKey: domain.ConfigKeyWeights, Description: "weights"},
		{ActionType: domain.ActionMerchantUpdate, MerchantID: "M-1", Description: "updated",
			RequestMeta: domain.RequestMeta{IPAddress: "10.0.0.1", Endpoint: "/merchants/M-1", UserID: "ops"}},
	}
	for _, e := range entries {
		if err := repo.AppendAuditLog(ctx, e); err != nil {
			t.Fatalf("AppendAuditLog failed: %v", err)
		}
	}

	t.Run("RejectsUnknownAction", func(t *testing.T) {
		err := repo.AppendAuditLog(ctx, &domain.AuditLogEntry{ActionType: "NOPE"})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("ByMerchant", func(t *testing.T) {
		got, err := repo.ListAuditLogs(ctx, domain.AuditFilter{MerchantID: "M-1"})
		if err != nil {
			t.Fatalf("ListAuditLogs failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(got))
		}
		if got[0].ActionType != domain.ActionMerchantUpdate || got[0].IPAddress != "10.0.0.1" {
			t.Errorf("expected newest entry with request context first, got %+v", got[0])
		}
	})

	t.Run("ByConfigKey", func(t *testing.T) {
		got, _ := repo.ListAuditLogs(ctx, domain.AuditFilter{ActionType: domain.ActionConfigChange, ConfigKey: domain.ConfigKeyThresholds})
		if len(got) != 1 {
			t.Fatalf("expected 1 entry, got %d", len(got))
		}
		if got[0].PreviousValue["low_max"] != float64(30) || got[0].NewValue["low_max"] != float64(25) {
			t.Errorf("value snapshots not round-tripped: %+v", got[0])
		}
	})

	t.Run("TimeWindow", func(t *testing.T) {
		got, _ := repo.ListAuditLogs(ctx, domain.AuditFilter{Since: time.Now().Add(-time.Hour)})
		if len(got) != len(entries) {
			t.Errorf("expected %d recent entries, got %d", len(entries), len(got))
		}
		none, _ := repo.ListAuditLogs(ctx, domain.AuditFilter{Since: time.Now().Add(time.Hour)})
		if len(none) != 0 {
			t.Errorf("expected no future entries, got %d", len(none))
		}
	})
}

func TestRiskConfig(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.GetRiskConfig(ctx, domain.ConfigKeyWeights); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first write, got %v", err)
	}

	for _, v := range []string{`{"owner_pep":40}`, `{"owner_pep":45}`} {
		err := repo.SaveRiskConfig(ctx, &domain.RiskConfigEntry{Key: domain.ConfigKeyWeights, Value: []byte(v), Type: "weights"})
		if err != nil {
			t.Fatalf("SaveRiskConfig failed: %v", err)
		}
	}

	got, err := repo.GetRiskConfig(ctx, domain.ConfigKeyWeights)
	if err != nil {
		t.Fatalf("GetRiskConfig failed: %v", err)
	}
	if string(got.Value) != `{"owner_pep":45}` {
		t.Errorf("expected last write to win, got %s", got.Value)
	}
}

func TestInTx(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("RollbackLeavesNothing", func(t *testing.T) {
		boom := errors.New("boom")
		err := repo.InTx(ctx, func(tx domain.Repository) error {
			if err := tx.CreateMerchant(ctx, testMerchant("M-TX")); err != nil {
				return err
			}
			if err := tx.SaveAssessment(ctx, &domain.AssessmentRecord{MerchantID: "M-TX", AssessedBy: "system"}); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}

		if _, err := repo.GetMerchant(ctx, "M-TX"); !errors.Is(err, ErrNotFound) {
			t.Errorf("merchant survived rollback: %v", err)
		}
		if history, _ := repo.ListAssessments(ctx, "M-TX", 10); len(history) != 0 {
			t.Errorf("assessment survived rollback")
		}
	})

	t.Run("CommitPersists", func(t *testing.T) {
		err := repo.InTx(ctx, func(tx domain.Repository) error {
			if err := tx.CreateMerchant(ctx, testMerchant("M-TX")); err != nil {
				return err
			}
			return tx.AppendAuditLog(ctx, &domain.AuditLogEntry{ActionType: domain.ActionMerchantCreate, MerchantID: "M-TX", Description: "created"})
		})
		if err != nil {
			t.Fatalf("InTx failed: %v", err)
		}
		if _, err := repo.GetMerchant(ctx, "M-TX"); err != nil {
			t.Errorf("merchant not committed: %v", err)
		}
	})

	t.Run("ConcurrentTransactions", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- repo.InTx(ctx, func(tx domain.Repository) error {
					return tx.SaveAssessment(ctx, &domain.AssessmentRecord{MerchantID: "M-CONC", AssessedBy: "system"})
				})
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Errorf("concurrent transaction failed: %v", err)
			}
		}
		history, _ := repo.ListAssessments(ctx, "M-CONC", 100)
		if len(history) != 20 {
			t.Errorf("expected 20 records, got %d", len(history))
		}
	})
}

func TestDashboardStats(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	levels := map[string]domain.RiskLevel{"M-A": domain.RiskLow, "M-B": domain.RiskHigh, "M-C": domain.RiskCritical}
	for id, level := range levels {
		m := testMerchant(id)
		m.RiskLevel = level
		m.RiskScore = map[domain.RiskLevel]int{domain.RiskLow: 10, domain.RiskHigh: 70, domain.RiskCritical: 100}[level]
		if err := repo.CreateMerchant(ctx, m); err != nil {
			t.Fatalf("CreateMerchant failed: %v", err)
		}
		if err := repo.SaveAssessment(ctx, &domain.AssessmentRecord{MerchantID: id, RiskLevel: level, AssessedBy: "system"}); err != nil {
			t.Fatalf("SaveAssessment failed: %v", err)
		}
	}
	if err := repo.SaveAlert(ctx, &domain.Alert{MerchantID: "M-B", AlertType: "HIGH_RISK_DETECTED", Severity: domain.SeverityWarning}); err != nil {
		t.Fatalf("SaveAlert failed: %v", err)
	}

	stats, err := repo.DashboardStats(ctx, time.Now().Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("DashboardStats failed: %v", err)
	}

	if stats.TotalMerchants != 3 {
		t.Errorf("expected 3 merchants, got %d", stats.TotalMerchants)
	}
	if stats.ByRiskLevel["HIGH"] != 1 || stats.ByRiskLevel["CRITICAL"] != 1 {
		t.Errorf("unexpected level counts: %v", stats.ByRiskLevel)
	}
	if stats.RecentHighRisk != 2 || stats.AssessmentsLast7Days != 3 {
		t.Errorf("unexpected assessment counts: %d/%d", stats.RecentHighRisk, stats.AssessmentsLast7Days)
	}
	if stats.UnresolvedAlerts != 1 {
		t.Errorf("expected 1 unresolved alert, got %d", stats.UnresolvedAlerts)
	}
	if stats.AverageRiskScore < 59.9 || stats.AverageRiskScore > 60.1 {
		t.Errorf("expected average 60, got %v", stats.AverageRiskScore)
	}
	if len(stats.TopHighRiskCountries) != 1 || stats.TopHighRiskCountries[0].Count != 2 {
		t.Errorf("unexpected top countries: %v", stats.TopHighRiskCountries)
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{driver: "postgres"}
	if got := pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"); got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Errorf("unexpected rebind: %s", got)
	}
	lite := &SQLRepository{driver: "sqlite"}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite query should be unchanged, got %s", got)
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(domain.RepositoryConfig{PostgresUser: "svc", PostgresPassword: "p'w d"})
	want := `host=localhost port=5432 dbname=merchantrisk sslmode=disable application_name=merchantrisk connect_timeout=10 user=svc password='p\'w d'`
	if dsn != want {
		t.Errorf("unexpected dsn:\n got %s\nwant %s", dsn, want)
	}
}
