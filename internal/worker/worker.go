// Package worker consumes queued merchant reassessments from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/opensource-finance/merchantrisk/internal/domain"
	"github.com/opensource-finance/merchantrisk/internal/logger"
	"github.com/opensource-finance/merchantrisk/internal/metrics"
	"github.com/opensource-finance/merchantrisk/internal/onboarding"
)

// Reassessor runs one merchant reassessment.
type Reassessor interface {
	Reassess(ctx context.Context, merchantID string, meta domain.RequestMeta) (*onboarding.Outcome, error)
}

// Worker processes reassessment requests asynchronously.
type Worker struct {
	bus     domain.EventBus
	svc     Reassessor
	limiter *rate.Limiter
	log     *zap.Logger
	metrics *metrics.Metrics

	processed atomic.Int64
	failed    atomic.Int64
	alerts    atomic.Int64

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a worker. A zero ReassessPerSecond disables pacing.
func NewWorker(bus domain.EventBus, svc Reassessor, cfg domain.WorkerConfig, log *zap.Logger, m *metrics.Metrics) *Worker {
	limit := rate.Inf
	if cfg.ReassessPerSecond > 0 {
		limit = rate.Limit(cfg.ReassessPerSecond)
	}
	burst := cfg.ReassessBurst
	if burst < 1 {
		burst = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		svc:     svc,
		limiter: rate.NewLimiter(limit, burst),
		log:     logger.OrNop(log),
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the reassessment queue and the alert feed.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	handlers := []struct {
		topic   string
		handler domain.MessageHandler
	}{
		{domain.TopicMerchantReassess, w.handleReassess},
		{domain.TopicAlertRaised, w.handleAlert},
	}
	for _, h := range handlers {
		sub, err := w.bus.Subscribe(w.ctx, h.topic, h.handler)
		if err != nil {
			w.unsubscribeLocked()
			return fmt.Errorf("failed to subscribe to %s: %w", h.topic, err)
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	w.log.Info("reassessment worker started", zap.Int("subscriptions", len(w.subscriptions)))
	return nil
}

func (w *Worker) handleReassess(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req domain.ReassessRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		w.failed.Add(1)
		w.log.Error("failed to parse reassessment request", zap.String("message_id", msg.ID), zap.Error(err))
		return err
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}

	out, err := w.svc.Reassess(ctx, req.MerchantID, req.RequestMeta)
	if err != nil {
		w.failed.Add(1)
		w.metrics.ObserveReassessment(false)
		// deleted since it was queued
		if errors.Is(err, domain.ErrNotFound) {
			w.log.Warn("queued merchant no longer exists", zap.String("merchant_id", req.MerchantID))
			return nil
		}
		w.log.Error("reassessment failed", zap.String("merchant_id", req.MerchantID), zap.Error(err))
		return err
	}

	w.processed.Add(1)
	w.metrics.ObserveReassessment(true)
	w.log.Info("merchant reassessed",
		zap.String("merchant_id", req.MerchantID),
		zap.String("reason", req.Reason),
		zap.Int("risk_score", out.Merchant.RiskScore),
		zap.String("risk_level", string(out.Merchant.RiskLevel)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (w *Worker) handleAlert(_ context.Context, msg *domain.Message) error {
	var alert domain.Alert
	if err := json.Unmarshal(msg.Payload, &alert); err != nil {
		w.log.Error("failed to parse alert", zap.String("message_id", msg.ID), zap.Error(err))
		return err
	}

	w.alerts.Add(1)
	w.log.Warn("risk alert raised",
		zap.String("alert_id", alert.ID),
		zap.String("merchant_id", alert.MerchantID),
		zap.String("severity", string(alert.Severity)),
		zap.String("title", alert.Title),
	)
	return nil
}

// Stop cancels in-flight work and unsubscribes.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.unsubscribeLocked()

	w.log.Info("reassessment worker stopped",
		zap.Int64("processed", w.processed.Load()),
		zap.Int64("failed", w.failed.Load()),
	)
	return err
}

func (w *Worker) unsubscribeLocked() error {
	var errs []error
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe %s: %w", sub.Topic(), err))
		}
	}
	w.subscriptions = nil
	return errors.Join(errs...)
}

// Stats is a point-in-time view of the worker.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
	AlertsSeen        int64    `json:"alertsSeen"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
		AlertsSeen:        w.alerts.Load(),
	}
}
