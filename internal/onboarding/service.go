// Package onboarding runs the merchant registry lifecycle: registration, updates,
// reviews, reassessments and overrides. Every mutation commits its merchant row,
// assessment, alert and audit entry in one transaction.
package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/opensource-finance/merchantrisk/internal/assessment"
	"github.com/opensource-finance/merchantrisk/internal/audit"
	"github.com/opensource-finance/merchantrisk/internal/domain"
	"github.com/opensource-finance/merchantrisk/internal/logger"
	"github.com/opensource-finance/merchantrisk/internal/metrics"
	"github.com/opensource-finance/merchantrisk/internal/riskconfig"
	"github.com/opensource-finance/merchantrisk/internal/rules"
)

var tracer = otel.Tracer("merchantrisk-onboarding")

// Outcome is what a mutating operation produced.
type Outcome struct {
	Merchant   *domain.Merchant         `json:"merchant"`
	Assessment *domain.AssessmentRecord `json:"assessment,omitempty"`
	Alert      *domain.Alert            `json:"alert,omitempty"`
}

// Service coordinates the repository, rule engine and configuration store.
type Service struct {
	repo    domain.Repository
	engine  *rules.Engine
	config  *riskconfig.Store
	bus     domain.EventBus
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithBus publishes assessment and alert events, and queues bulk reassessments, on b.
func WithBus(b domain.EventBus) Option {
	return func(s *Service) { s.bus = b }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = logger.OrNop(l) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a Service.
func New(repo domain.Repository, engine *rules.Engine, config *riskconfig.Store, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		engine: engine,
		config: config,
		log:    zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a merchant and runs its first assessment.
// LOW risk merchants are approved straight away, everyone else goes to review.
// The single MERCHANT_CREATE entry carries the id of any alert raised.
func (s *Service) Create(ctx context.Context, m *domain.Merchant, meta domain.RequestMeta) (out *Outcome, err error) {
	ctx, span := s.start(ctx, "onboarding.Create", m.MerchantID)
	defer func() { endSpan(span, err) }()

	if err := ValidateMerchant(m); err != nil {
		return nil, err
	}
	snap, err := s.config.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	res := s.engine.Evaluate(&m.MerchantProfile, snap)
	now := s.now().UTC()
	m.RiskScore = res.Score
	m.RiskLevel = res.Level
	m.Status = domain.StatusForLevel(res.Level)
	m.LastRiskAssessment = &now
	m.CreatedAt = now

	out = &Outcome{Merchant: m}
	err = s.repo.InTx(ctx, func(tx domain.Repository) error {
		if err := tx.CreateMerchant(ctx, m); err != nil {
			return err
		}
		if err := s.assess(ctx, tx, out, res, snap, meta); err != nil {
			return err
		}

		next := withIDs(m.Snapshot(), out)
		desc := fmt.Sprintf("Created merchant %s with %s risk (score %d)", m.MerchantID, res.Level, res.Score)
		_, err := audit.New(tx).Merchant(ctx, domain.ActionMerchantCreate, m.MerchantID, desc, nil, next, meta)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, out)
	logger.WithContext(ctx, s.log).Info("merchant created",
		zap.String("merchant_id", m.MerchantID),
		zap.Int("risk_score", res.Score),
		zap.String("risk_level", string(res.Level)),
		zap.String("status", string(m.Status)),
	)
	return out, nil
}

// Update applies a partial change, re-evaluates the merchant and re-derives its status.
// As with Create, an alert is recorded through the alertId of the MERCHANT_UPDATE entry.
func (s *Service) Update(ctx context.Context, merchantID string, patch *domain.MerchantPatch, meta domain.RequestMeta) (out *Outcome, err error) {
	ctx, span := s.start(ctx, "onboarding.Update", merchantID)
	defer func() { endSpan(span, err) }()

	snap, err := s.config.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	err = s.repo.InTx(ctx, func(tx domain.Repository) error {
		m, err := tx.GetMerchant(ctx, merchantID)
		if err != nil {
			return err
		}
		prev := m.Snapshot()

		patch.Apply(m)
		if err := ValidateMerchant(m); err != nil {
			return err
		}

		res := s.engine.Evaluate(&m.MerchantProfile, snap)
		now := s.now().UTC()
		m.RiskScore = res.Score
		m.RiskLevel = res.Level
		m.Status = domain.StatusForLevel(res.Level)
		m.LastRiskAssessment = &now
		if err := tx.UpdateMerchant(ctx, m); err != nil {
			return err
		}

		out = &Outcome{Merchant: m}
		if err := s.assess(ctx, tx, out, res, snap, meta); err != nil {
			return err
		}

		desc := fmt.Sprintf("Updated merchant %s, reassessed as %s risk (score %d)", m.MerchantID, res.Level, res.Score)
		_, err = audit.New(tx).Merchant(ctx, domain.ActionMerchantUpdate, m.MerchantID, desc, prev, withIDs(m.Snapshot(), out), meta)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, out)
	return out, nil
}

// Delete removes the merchant row. Its assessments, alerts and audit trail stay.
func (s *Service) Delete(ctx context.Context, merchantID string, meta domain.RequestMeta) error {
	return s.repo.InTx(ctx, func(tx domain.Repository) error {
		m, err := tx.GetMerchant(ctx, merchantID)
		if err != nil {
			return err
		}
		if err := tx.DeleteMerchant(ctx, merchantID); err != nil {
			return err
		}
		_, err = audit.New(tx).Merchant(ctx, domain.ActionMerchantDelete, merchantID,
			fmt.Sprintf("Deleted merchant %s", merchantID), m.Snapshot(), nil, meta)
		return err
	})
}

// Approve sets a merchant ACTIVE.
func (s *Service) Approve(ctx context.Context, merchantID, notes string, meta domain.RequestMeta) (*domain.Merchant, error) {
	return s.decide(ctx, merchantID, domain.StatusActive, domain.ActionMerchantApproved, "approved", notes, meta)
}

// Reject sets a merchant TERMINATED.
func (s *Service) Reject(ctx context.Context, merchantID, notes string, meta domain.RequestMeta) (*domain.Merchant, error) {
	return s.decide(ctx, merchantID, domain.StatusTerminated, domain.ActionMerchantRejected, "rejected", notes, meta)
}

func (s *Service) decide(ctx context.Context, merchantID string, status domain.MerchantStatus, action domain.AuditAction, verb, notes string, meta domain.RequestMeta) (*domain.Merchant, error) {
	var m *domain.Merchant
	err := s.repo.InTx(ctx, func(tx domain.Repository) error {
		var err error
		if m, err = tx.GetMerchant(ctx, merchantID); err != nil {
			return err
		}
		prev := map[string]any{"status": string(m.Status)}

		m.Status = status
		if err := tx.UpdateMerchant(ctx, m); err != nil {
			return err
		}

		next := map[string]any{"status": string(status)}
		if notes != "" {
			next["notes"] = notes
		}
		_, err = audit.New(tx).Merchant(ctx, action, merchantID,
			fmt.Sprintf("Merchant %s manually %s", merchantID, verb), prev, next, meta)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx, s.log).Info("merchant "+verb,
		zap.String("merchant_id", merchantID),
		zap.String("actor", meta.Actor()),
	)
	return m, nil
}

// Reassess evaluates a merchant against the current configuration. Status is left alone.
// A raised alert gets its own ALERT_CREATE entry next to the RISK_ASSESSMENT one.
func (s *Service) Reassess(ctx context.Context, merchantID string, meta domain.RequestMeta) (out *Outcome, err error) {
	ctx, span := s.start(ctx, "onboarding.Reassess", merchantID)
	defer func() { endSpan(span, err) }()

	snap, err := s.config.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	err = s.repo.InTx(ctx, func(tx domain.Repository) error {
		m, err := tx.GetMerchant(ctx, merchantID)
		if err != nil {
			return err
		}
		prev := riskState(m)

		res := s.engine.Evaluate(&m.MerchantProfile, snap)
		now := s.now().UTC()
		m.RiskScore = res.Score
		m.RiskLevel = res.Level
		m.LastRiskAssessment = &now
		if err := tx.UpdateMerchant(ctx, m); err != nil {
			return err
		}

		out = &Outcome{Merchant: m}
		if err := s.assess(ctx, tx, out, res, snap, meta); err != nil {
			return err
		}

		log := audit.New(tx)
		next := riskState(m)
		next["reasons"] = res.Reasons
		next["appliedRules"] = res.AppliedRules
		desc := fmt.Sprintf("Risk assessment: score %d, level %s", res.Score, res.Level)
		if _, err := log.Merchant(ctx, domain.ActionRiskAssessment, merchantID, desc, prev, withIDs(next, out), meta); err != nil {
			return err
		}
		if out.Alert != nil {
			_, err = log.Merchant(ctx, domain.ActionAlertCreate, merchantID, out.Alert.Title, nil, alertState(out.Alert), meta)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, out)
	return out, nil
}

// Override replaces the merchant's level with a manual decision. Status is left alone.
func (s *Service) Override(ctx context.Context, merchantID string, level domain.RiskLevel, justification string, meta domain.RequestMeta) (out *Outcome, err error) {
	ctx, span := s.start(ctx, "onboarding.Override", merchantID)
	defer func() { endSpan(span, err) }()

	snap, err := s.config.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	err = s.repo.InTx(ctx, func(tx domain.Repository) error {
		m, err := tx.GetMerchant(ctx, merchantID)
		if err != nil {
			return err
		}
		prev := riskState(m)

		rec, err := assessment.NewRecorder(tx).RecordOverride(ctx, m, level, justification, snap, meta.Actor())
		if err != nil {
			return err
		}

		m.RiskScore = rec.RiskScore
		m.RiskLevel = rec.RiskLevel
		m.LastRiskAssessment = &rec.CreatedAt
		if err := tx.UpdateMerchant(ctx, m); err != nil {
			return err
		}
		out = &Outcome{Merchant: m, Assessment: rec}

		next := riskState(m)
		next["justification"] = rec.OverrideReason
		next["assessmentId"] = rec.ID
		_, err = audit.New(tx).Merchant(ctx, domain.ActionRiskOverride, merchantID, rec.Reasons[0], prev, next, meta)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, out)
	logger.WithContext(ctx, s.log).Warn("risk level overridden",
		zap.String("merchant_id", merchantID),
		zap.String("risk_level", string(level)),
		zap.String("actor", meta.Actor()),
	)
	return out, nil
}

// ResolveAlert closes an open alert.
func (s *Service) ResolveAlert(ctx context.Context, alertID, notes string, meta domain.RequestMeta) (*domain.Alert, error) {
	var alert *domain.Alert
	err := s.repo.InTx(ctx, func(tx domain.Repository) error {
		var err error
		alert, err = assessment.NewAlertGenerator(tx).Resolve(ctx, alertID, meta.Actor(), notes)
		if err != nil {
			return err
		}
		_, err = audit.New(tx).Merchant(ctx, domain.ActionAlertResolve, alert.MerchantID,
			fmt.Sprintf("Resolved alert %s", alertID),
			map[string]any{"isResolved": false},
			map[string]any{"isResolved": true, "alertId": alertID, "resolutionNotes": alert.ResolutionNotes},
			meta)
		return err
	})
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// ReassessAll queues a reassessment for every merchant and returns how many were queued.
// Without an event bus the merchants are reassessed inline.
func (s *Service) ReassessAll(ctx context.Context, reason string, meta domain.RequestMeta) (int, error) {
	ids, err := s.repo.ListMerchantIDs(ctx)
	if err != nil {
		return 0, err
	}

	if s.bus == nil {
		var errs []error
		for _, id := range ids {
			if _, err := s.Reassess(ctx, id, meta); err != nil && !errors.Is(err, domain.ErrNotFound) {
				errs = append(errs, fmt.Errorf("reassess %s: %w", id, err))
			}
		}
		return len(ids), errors.Join(errs...)
	}

	for i, id := range ids {
		payload, err := json.Marshal(domain.ReassessRequest{MerchantID: id, Reason: reason, RequestMeta: meta})
		if err != nil {
			return i, err
		}
		if err := s.bus.Publish(ctx, domain.TopicMerchantReassess, payload); err != nil {
			return i, fmt.Errorf("failed to queue reassessment for %s: %w", id, err)
		}
	}

	logger.WithContext(ctx, s.log).Info("bulk reassessment queued", zap.Int("merchants", len(ids)))
	return len(ids), nil
}

// assess records the evaluation and raises an alert when the level calls for one.
func (s *Service) assess(ctx context.Context, tx domain.Repository, out *Outcome, res domain.EvaluationResult, snap *domain.RiskSnapshot, meta domain.RequestMeta) error {
	rec, err := assessment.NewRecorder(tx).Record(ctx, out.Merchant, res, snap, meta.Actor())
	if err != nil {
		return err
	}
	out.Assessment = rec

	out.Alert, err = assessment.NewAlertGenerator(tx).MaybeCreate(ctx, out.Merchant, rec.ID, res.Level, res.Reasons)
	return err
}

// committed publishes the outcome's events. Failures are logged, never returned.
func (s *Service) committed(ctx context.Context, out *Outcome) {
	if rec := out.Assessment; rec != nil {
		s.metrics.ObserveAssessment(string(rec.RiskLevel), rec.IsOverride)
		s.publish(ctx, domain.TopicAssessmentRecorded, domain.AssessmentEvent{
			AssessmentID: rec.ID,
			MerchantID:   rec.MerchantID,
			RiskScore:    rec.RiskScore,
			RiskLevel:    rec.RiskLevel,
			IsOverride:   rec.IsOverride,
			AssessedBy:   rec.AssessedBy,
		})
	}
	if out.Alert != nil {
		s.metrics.ObserveAlert(string(out.Alert.Severity))
		s.publish(ctx, domain.TopicAlertRaised, out.Alert)
	}
}

func (s *Service) publish(ctx context.Context, topic string, v any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err == nil {
		err = s.bus.Publish(ctx, topic, payload)
	}
	if err != nil {
		logger.WithContext(ctx, s.log).Warn("event publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

func (s *Service) start(ctx context.Context, name, merchantID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("merchant.id", merchantID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func riskState(m *domain.Merchant) map[string]any {
	return map[string]any{
		"riskScore": m.RiskScore,
		"riskLevel": string(m.RiskLevel),
	}
}

func alertState(a *domain.Alert) map[string]any {
	return map[string]any{
		"alertId":   a.ID,
		"alertType": a.AlertType,
		"severity":  string(a.Severity),
	}
}

func withIDs(v map[string]any, out *Outcome) map[string]any {
	if out.Assessment != nil {
		v["assessmentId"] = out.Assessment.ID
	}
	if out.Alert != nil {
		v["alertId"] = out.Alert.ID
	} else {
		v["alertId"] = nil
	}
	return v
}
