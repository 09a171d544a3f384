package bus

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/opensource-finance/merchantrisk/internal/domain"
	"github.com/opensource-finance/merchantrisk/internal/metrics"
)

// ErrUnavailable is returned by Publish while the breaker is open.
var ErrUnavailable = errors.New("event bus unavailable: circuit breaker is open")

// BreakerBus guards Publish with a circuit breaker. Subscriptions pass straight through.
type BreakerBus struct {
	domain.EventBus
	cb *gobreaker.CircuitBreaker
}

// NewBreakerBus wraps next. The breaker opens after BreakerMaxFailures consecutive publish
// failures and retries after BreakerOpenTimeout seconds.
func NewBreakerBus(next domain.EventBus, cfg domain.EventBusConfig, log *zap.Logger, m *metrics.Metrics) *BreakerBus {
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	timeout := time.Duration(cfg.BreakerOpenTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	st := gobreaker.Settings{
		Name:        "event-bus-publish",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// a cancelled caller says nothing about the bus
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			m.SetBreakerState(name, int(to))
		},
	}

	return &BreakerBus{EventBus: next, cb: gobreaker.NewCircuitBreaker(st)}
}

// Publish sends through the breaker.
func (b *BreakerBus) Publish(ctx context.Context, topic string, payload []byte) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.EventBus.Publish(ctx, topic, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrUnavailable
	}
	return err
}

// State reports the breaker state.
func (b *BreakerBus) State() gobreaker.State {
	return b.cb.State()
}
