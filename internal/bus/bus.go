package bus

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/opensource-finance/merchantrisk/internal/domain"
	"github.com/opensource-finance/merchantrisk/internal/logger"
	"github.com/opensource-finance/merchantrisk/internal/metrics"
)

// New creates an event bus based on configuration.
// For Community tier: returns ChannelBus.
// For Pro tier: returns NATSBus.
// Publishing goes through a circuit breaker when BreakerMaxFailures is set.
func New(cfg domain.EventBusConfig, log *zap.Logger, m *metrics.Metrics) (domain.EventBus, error) {
	log = logger.OrNop(log).Named("bus")

	var b domain.EventBus
	switch cfg.Type {
	case "channel":
		b = NewChannelBus(cfg.ChannelBufferSize)

	case "nats":
		nb, err := NewNATSBus(cfg, log)
		if err != nil {
			return nil, err
		}
		b = nb

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}

	if cfg.BreakerMaxFailures > 0 {
		b = NewBreakerBus(b, cfg, log, m)
	}
	return b, nil
}
