package onboarding

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/merchantrisk/internal/assessment"
	"github.com/opensource-finance/merchantrisk/internal/domain"
	"github.com/opensource-finance/merchantrisk/internal/rules"
)

// StatsWindow is how far back the dashboard counts recent assessments.
const StatsWindow = 7 * 24 * time.Hour

func (s *Service) Get(ctx context.Context, merchantID string) (*domain.Merchant, error) {
	return s.repo.GetMerchant(ctx, merchantID)
}

func (s *Service) List(ctx context.Context, filter domain.MerchantFilter) ([]*domain.Merchant, error) {
	return s.repo.ListMerchants(ctx, filter)
}

// History returns a merchant's assessments, newest first.
func (s *Service) History(ctx context.Context, merchantID string, limit int) ([]*domain.AssessmentRecord, error) {
	if _, err := s.repo.GetMerchant(ctx, merchantID); err != nil {
		return nil, err
	}
	return s.repo.ListAssessments(ctx, merchantID, limit)
}

// Latest returns the most recent assessment of a merchant.
func (s *Service) Latest(ctx context.Context, merchantID string) (*domain.AssessmentRecord, error) {
	recs, err := s.History(ctx, merchantID, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: merchant %s has no assessments", domain.ErrNotFound, merchantID)
	}
	return recs[0], nil
}

func (s *Service) Assessment(ctx context.Context, assessmentID string) (*domain.AssessmentRecord, error) {
	return s.repo.GetAssessment(ctx, assessmentID)
}

// Replay re-runs a stored assessment against the snapshot it was recorded with.
func (s *Service) Replay(ctx context.Context, assessmentID string) (*domain.ReplayReport, error) {
	rec, err := s.repo.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	return assessment.Replay(rec, s.engine)
}

func (s *Service) Alerts(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, error) {
	return s.repo.ListAlerts(ctx, filter)
}

// Stats returns the dashboard counters.
func (s *Service) Stats(ctx context.Context) (*domain.DashboardStats, error) {
	return s.repo.DashboardStats(ctx, s.now().UTC().Add(-StatsWindow))
}

// Evaluate scores a profile against the current configuration without storing anything.
func (s *Service) Evaluate(ctx context.Context, p *domain.MerchantProfile) (domain.EvaluationResult, error) {
	if err := validateProfile(p); err != nil {
		return domain.EvaluationResult{}, err
	}
	snap, err := s.config.Snapshot(ctx)
	if err != nil {
		return domain.EvaluationResult{}, err
	}
	return s.engine.Evaluate(p, snap), nil
}

// Catalogue lists the rules with their effective weights.
func (s *Service) Catalogue(ctx context.Context) ([]rules.RuleInfo, error) {
	snap, err := s.config.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.engine.Catalogue(snap), nil
}
