package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/opensource-finance/merchantrisk/internal/bus"
	"github.com/opensource-finance/merchantrisk/internal/domain"
	"github.com/opensource-finance/merchantrisk/internal/onboarding"
)

type fakeReassessor struct {
	mu    sync.Mutex
	calls []string
	metas []domain.RequestMeta
	err   map[string]error
}

func (f *fakeReassessor) Reassess(_ context.Context, merchantID string, meta domain.RequestMeta) (*onboarding.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, merchantID)
	f.metas = append(f.metas, meta)
	if err := f.err[merchantID]; err != nil {
		return nil, err
	}
	return &onboarding.Outcome{Merchant: &domain.Merchant{
		MerchantProfile: domain.MerchantProfile{MerchantID: merchantID},
		RiskScore:       40,
		RiskLevel:       domain.RiskMedium,
	}}, nil
}

func (f *fakeReassessor) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func publishReassess(t *testing.T, b domain.EventBus, merchantID string) {
	t.Helper()
	payload, err := json.Marshal(domain.ReassessRequest{
		MerchantID:  merchantID,
		Reason:      "weights changed",
		RequestMeta: domain.RequestMeta{UserID: "analyst-1"},
	})
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), domain.TopicMerchantReassess, payload))
}

func TestWorker(t *testing.T) {
	t.Run("StartAndStop", func(t *testing.T) {
		b := bus.NewChannelBus(10)
		defer b.Close()
		w := NewWorker(b, &fakeReassessor{}, domain.WorkerConfig{}, nil, nil)

		require.NoError(t, w.Start())
		stats := w.GetStats()
		assert.Equal(t, 2, stats.SubscriptionCount)
		assert.ElementsMatch(t, []string{domain.TopicMerchantReassess, domain.TopicAlertRaised}, stats.Topics)

		require.NoError(t, w.Stop())
		assert.Equal(t, 0, w.GetStats().SubscriptionCount)
	})

	t.Run("ProcessesQueue", func(t *testing.T) {
		b := bus.NewChannelBus(10)
		defer b.Close()
		svc := &fakeReassessor{}
		w := NewWorker(b, svc, domain.WorkerConfig{}, nil, nil)
		require.NoError(t, w.Start())
		defer w.Stop()

		for _, id := range []string{"M-1", "M-2", "M-3"} {
			publishReassess(t, b, id)
		}

		require.Eventually(t, func() bool { return w.GetStats().Processed == 3 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, []string{"M-1", "M-2", "M-3"}, svc.called())
		assert.Equal(t, "analyst-1", svc.metas[0].UserID)
	})

	t.Run("CountsFailures", func(t *testing.T) {
		b := bus.NewChannelBus(10)
		defer b.Close()
		svc := &fakeReassessor{err: map[string]error{
			"gone":   domain.ErrNotFound,
			"broken": errors.New("database is locked"),
		}}
		w := NewWorker(b, svc, domain.WorkerConfig{}, nil, nil)
		require.NoError(t, w.Start())
		defer w.Stop()

		publishReassess(t, b, "gone")
		publishReassess(t, b, "broken")
		publishReassess(t, b, "M-1")
		require.NoError(t, b.Publish(context.Background(), domain.TopicMerchantReassess, []byte("{")))

		require.Eventually(t, func() bool {
			s := w.GetStats()
			return s.Processed == 1 && s.Failed == 3
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("Paced", func(t *testing.T) {
		b := bus.NewChannelBus(10)
		defer b.Close()
		svc := &fakeReassessor{}
		w := NewWorker(b, svc, domain.WorkerConfig{ReassessPerSecond: 20, ReassessBurst: 1}, nil, nil)
		require.NoError(t, w.Start())
		defer w.Stop()

		start := time.Now()
		for _, id := range []string{"M-1", "M-2", "M-3"} {
			publishReassess(t, b, id)
		}
		require.Eventually(t, func() bool { return w.GetStats().Processed == 3 }, 2*time.Second, 5*time.Millisecond)
		assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	})

	t.Run("LogsAlerts", func(t *testing.T) {
		b := bus.NewChannelBus(10)
		defer b.Close()
		core, logs := observer.New(zap.WarnLevel)
		w := NewWorker(b, &fakeReassessor{}, domain.WorkerConfig{}, zap.New(core), nil)
		require.NoError(t, w.Start())
		defer w.Stop()

		payload, err := json.Marshal(domain.Alert{ID: "a-1", MerchantID: "M-1", Severity: domain.SeverityCritical, Title: "CRITICAL Risk Merchant Detected: X"})
		require.NoError(t, err)
		require.NoError(t, b.Publish(context.Background(), domain.TopicAlertRaised, payload))

		require.Eventually(t, func() bool { return w.GetStats().AlertsSeen == 1 }, time.Second, 5*time.Millisecond)
		entries := logs.FilterMessage("risk alert raised").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "M-1", entries[0].ContextMap()["merchant_id"])
	})
}
