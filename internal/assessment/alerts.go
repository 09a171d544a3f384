package assessment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/merchantrisk/internal/domain"
)

// MinResolutionNotesLength is the shortest accepted resolution note, after trimming.
const MinResolutionNotesLength = 5

// AlertGenerator raises alerts for high-risk assessments and resolves them.
type AlertGenerator struct {
	repo domain.Repository
	now  func() time.Time
}

// NewAlertGenerator creates an AlertGenerator on repo.
func NewAlertGenerator(repo domain.Repository) *AlertGenerator {
	return &AlertGenerator{repo: repo, now: time.Now}
}

// MaybeCreate raises an alert when level is HIGH or CRITICAL and returns nil otherwise.
// Earlier open alerts for the merchant are not consulted.
func (g *AlertGenerator) MaybeCreate(ctx context.Context, m *domain.Merchant, assessmentID string, level domain.RiskLevel, reasons []string) (*domain.Alert, error) {
	if level != domain.RiskHigh && level != domain.RiskCritical {
		return nil, nil
	}

	severity := domain.SeverityWarning
	if level == domain.RiskCritical {
		severity = domain.SeverityCritical
	}

	alert := &domain.Alert{
		MerchantID:   m.MerchantID,
		AssessmentID: assessmentID,
		AlertType:    string(level) + "_RISK_DETECTED",
		Severity:     severity,
		Title:        fmt.Sprintf("%s Risk Merchant Detected: %s", level, m.BusinessName),
		Description: fmt.Sprintf("Merchant %s assessed as %s risk. Reasons: %s",
			m.MerchantID, level, strings.Join(reasons, "; ")),
		CreatedAt: g.now().UTC(),
	}
	if err := g.repo.SaveAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to raise alert for %s: %w", m.MerchantID, err)
	}
	return alert, nil
}

// Resolve closes an open alert. Unknown alerts are ErrNotFound, already resolved ones ErrConflict.
func (g *AlertGenerator) Resolve(ctx context.Context, alertID, resolver, notes string) (*domain.Alert, error) {
	notes = strings.TrimSpace(notes)
	if len(notes) < MinResolutionNotesLength {
		return nil, fmt.Errorf("%w: resolution notes must be at least %d characters", domain.ErrValidation, MinResolutionNotesLength)
	}
	return g.repo.ResolveAlert(ctx, alertID, actorOrSystem(resolver), notes, g.now().UTC())
}
