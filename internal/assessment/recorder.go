// Package assessment persists assessment records and the alerts they raise.
// Both types write through whatever repository they are given, so binding them to a
// transaction's repository makes their writes part of that transaction.
package assessment

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/opensource-finance/merchantrisk/internal/domain"
	"github.com/opensource-finance/merchantrisk/internal/rules"
)

// MinJustificationLength is the shortest accepted override justification, after trimming.
const MinJustificationLength = 10

// Recorder writes immutable assessment records.
type Recorder struct {
	repo domain.Repository
	now  func() time.Time
}

// NewRecorder creates a Recorder on repo.
func NewRecorder(repo domain.Repository) *Recorder {
	return &Recorder{repo: repo, now: time.Now}
}

// Record stores the outcome of an evaluation together with the profile and the
// configuration it ran against.
func (r *Recorder) Record(ctx context.Context, m *domain.Merchant, res domain.EvaluationResult, snap *domain.RiskSnapshot, actor string) (*domain.AssessmentRecord, error) {
	rec := &domain.AssessmentRecord{
		MerchantID:   m.MerchantID,
		RiskScore:    res.Score,
		RiskLevel:    res.Level,
		Reasons:      slices.Clone(res.Reasons),
		AppliedRules: slices.Clone(res.AppliedRules),
		InputData:    m.MerchantProfile,
		AssessedBy:   actorOrSystem(actor),
		CreatedAt:    r.now().UTC(),
	}
	withConfig(rec, snap)
	if err := r.repo.SaveAssessment(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to record assessment for %s: %w", m.MerchantID, err)
	}
	return rec, nil
}

// RecordOverride stores a manual level change. The score is the fixed score of the new level;
// snap is the configuration in effect when the decision was taken.
func (r *Recorder) RecordOverride(ctx context.Context, m *domain.Merchant, level domain.RiskLevel, justification string, snap *domain.RiskSnapshot, actor string) (*domain.AssessmentRecord, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("%w: unknown risk level %q", domain.ErrValidation, level)
	}
	justification = strings.TrimSpace(justification)
	if len(justification) < MinJustificationLength {
		return nil, fmt.Errorf("%w: override justification must be at least %d characters", domain.ErrValidation, MinJustificationLength)
	}

	from := m.RiskLevel
	if from == "" {
		from = "UNASSESSED"
	}
	actor = actorOrSystem(actor)

	rec := &domain.AssessmentRecord{
		MerchantID:     m.MerchantID,
		RiskScore:      rules.OverrideScore(level),
		RiskLevel:      level,
		Reasons:        []string{fmt.Sprintf("Manual override from %s to %s", from, level)},
		AppliedRules:   []string{domain.ManualOverrideRule},
		InputData:      m.MerchantProfile,
		IsOverride:     true,
		OverrideReason: justification,
		OverrideBy:     actor,
		AssessedBy:     actor,
		CreatedAt:      r.now().UTC(),
	}
	withConfig(rec, snap)
	if err := r.repo.SaveAssessment(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to record override for %s: %w", m.MerchantID, err)
	}
	return rec, nil
}

// Replay re-evaluates a stored record against its own snapshot.
// Override records carry no evaluation and cannot be replayed.
func Replay(rec *domain.AssessmentRecord, engine *rules.Engine) (*domain.ReplayReport, error) {
	if rec.IsOverride {
		return nil, fmt.Errorf("%w: assessment %s is a manual override and cannot be replayed", domain.ErrValidation, rec.ID)
	}
	profile := rec.InputData
	replayed := engine.Evaluate(&profile, rec.Snapshot())
	stored := rec.Result()

	return &domain.ReplayReport{
		AssessmentID: rec.ID,
		Stored:       stored,
		Replayed:     replayed,
		Identical:    sameResult(stored, replayed),
	}, nil
}

func withConfig(rec *domain.AssessmentRecord, snap *domain.RiskSnapshot) {
	if snap == nil {
		snap = rules.DefaultSnapshot()
	}
	rec.WeightsUsed = snap.Weights.Clone()
	rec.ThresholdsUsed = snap.Thresholds
	rec.ListsUsed = domain.RiskLists{
		Countries:  slices.Clone(snap.HighRiskCountries),
		Industries: slices.Clone(snap.HighRiskIndustries),
		MCCs:       slices.Clone(snap.BlacklistedMCCs),
	}
}

func sameResult(a, b domain.EvaluationResult) bool {
	return a.Score == b.Score &&
		a.Level == b.Level &&
		slices.Equal(a.Reasons, b.Reasons) &&
		slices.Equal(a.AppliedRules, b.AppliedRules)
}

func actorOrSystem(actor string) string {
	if strings.TrimSpace(actor) == "" {
		return domain.SystemAssessor
	}
	return actor
}
