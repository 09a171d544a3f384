package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/merchantrisk/internal/domain"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newClockedCache(size int) (*LRUCache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache(size)
	c.now = clock.Now
	return c, clock
}

func TestLRUCache(t *testing.T) {
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		cache, _ := newClockedCache(100)
		if err := cache.Set(ctx, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		cache, _ := newClockedCache(100)
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		cache, _ := newClockedCache(100)
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)

		if err := cache.Delete(ctx, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := cache.Get(ctx, "key2"); val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		cache, clock := newClockedCache(100)
		_ = cache.Set(ctx, "expiring", []byte("temp"), time.Second)

		if val, _ := cache.Get(ctx, "expiring"); val == nil {
			t.Error("expected value before expiration")
		}

		clock.Advance(2 * time.Second)

		if val, _ := cache.Get(ctx, "expiring"); val != nil {
			t.Error("expected nil after expiration")
		}
		if size, _ := cache.Stats(); size != 0 {
			t.Errorf("expected expired entry to be dropped, size %d", size)
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		cache, _ := newClockedCache(3)

		_ = cache.Set(ctx, "a", []byte("1"), time.Minute)
		_ = cache.Set(ctx, "b", []byte("2"), time.Minute)
		_ = cache.Set(ctx, "c", []byte("3"), time.Minute)

		// Touch 'a' so 'b' becomes the oldest
		_, _ = cache.Get(ctx, "a")
		_ = cache.Set(ctx, "d", []byte("4"), time.Minute)

		if val, _ := cache.Get(ctx, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		if val, _ := cache.Get(ctx, "a"); val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("IncrementCounter", func(t *testing.T) {
		cache, clock := newClockedCache(100)
		window := time.Minute

		for want := int64(1); want <= 3; want++ {
			got, err := cache.IncrementCounter(ctx, "ratelimit:10.0.0.1", window)
			if err != nil {
				t.Fatalf("IncrementCounter failed: %v", err)
			}
			if got != want {
				t.Errorf("expected count %d, got %d", want, got)
			}
		}

		if other, _ := cache.IncrementCounter(ctx, "ratelimit:10.0.0.2", window); other != 1 {
			t.Errorf("expected independent counter per key, got %d", other)
		}

		clock.Advance(window + time.Second)

		if got, _ := cache.IncrementCounter(ctx, "ratelimit:10.0.0.1", window); got != 1 {
			t.Errorf("expected count 1 after window reset, got %d", got)
		}
	})

	t.Run("CounterSweep", func(t *testing.T) {
		cache, clock := newClockedCache(2)
		_, _ = cache.IncrementCounter(ctx, "a", time.Second)
		_, _ = cache.IncrementCounter(ctx, "b", time.Second)

		clock.Advance(2 * time.Second)
		_, _ = cache.IncrementCounter(ctx, "c", time.Second)

		if len(cache.counters) != 1 {
			t.Errorf("expected expired counters to be swept, have %d", len(cache.counters))
		}
	})

	t.Run("Stats", func(t *testing.T) {
		cache, _ := newClockedCache(50)
		_ = cache.Set(ctx, "k1", []byte("v1"), time.Minute)
		_ = cache.Set(ctx, "k2", []byte("v2"), time.Minute)

		size, capacity := cache.Stats()
		if size != 2 || capacity != 50 {
			t.Errorf("expected 2/50, got %d/%d", size, capacity)
		}
	})

	t.Run("Close", func(t *testing.T) {
		cache, _ := newClockedCache(10)
		_ = cache.Set(ctx, "k", []byte("v"), time.Minute)

		if err := cache.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
		if val, _ := cache.Get(ctx, "k"); val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		cache := NewLRUCache(1000)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := fmt.Sprintf("k%d", i%10)
				_ = cache.Set(ctx, key, []byte("v"), time.Minute)
				_, _ = cache.Get(ctx, key)
				_, _ = cache.IncrementCounter(ctx, "shared", time.Minute)
			}(i)
		}
		wg.Wait()

		if got, _ := cache.IncrementCounter(ctx, "shared", time.Minute); got != 51 {
			t.Errorf("expected 51 increments, got %d", got)
		}
	})
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(10)

	snap := domain.RiskSnapshot{
		Weights:           domain.Weights{"owner_pep": 50},
		Thresholds:        domain.Thresholds{LowMax: 30, MediumMax: 60, HighMin: 61, CriticalMin: 85},
		HighRiskCountries: []string{"Panama"},
	}
	if err := SetJSON(ctx, cache, "risk:snapshot", snap, time.Minute); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	var got domain.RiskSnapshot
	hit, err := GetJSON(ctx, cache, "risk:snapshot", &got)
	if err != nil || !hit {
		t.Fatalf("expected hit, got %v %v", hit, err)
	}
	if got.Weights["owner_pep"] != 50 || got.Thresholds.HighMin != 61 || got.HighRiskCountries[0] != "Panama" {
		t.Errorf("snapshot not round-tripped: %+v", got)
	}

	hit, err = GetJSON(ctx, cache, "missing", &got)
	if hit || err != nil {
		t.Errorf("expected clean miss, got %v %v", hit, err)
	}

	_ = cache.Set(ctx, "garbage", []byte("{not json"), time.Minute)
	if _, err := GetJSON(ctx, cache, "garbage", &got); err == nil {
		t.Error("expected decode error")
	}
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cache, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		if _, ok := cache.(*LRUCache); !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestTwoPhaseLocalTTL(t *testing.T) {
	c := &TwoPhaseCache{l1TTL: 5 * time.Minute}

	tests := []struct {
		remaining time.Duration
		want      time.Duration
	}{
		{remaining: 40 * time.Second, want: 40 * time.Second},
		{remaining: 10 * time.Minute, want: 5 * time.Minute},
		{remaining: 0, want: 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := c.localTTL(tt.remaining); got != tt.want {
			t.Errorf("localTTL(%v) = %v, want %v", tt.remaining, got, tt.want)
		}
	}
}
