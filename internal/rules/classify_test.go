package rules

import (
	"testing"

	"github.com/opensource-finance/merchantrisk/internal/domain"
)

func TestClassify(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		score int
		want  domain.RiskLevel
	}{
		{0, domain.RiskLow},
		{30, domain.RiskLow},
		{31, domain.RiskMedium},
		{60, domain.RiskMedium},
		{61, domain.RiskHigh},
		{84, domain.RiskHigh},
		{85, domain.RiskCritical},
		{100, domain.RiskCritical},
	}

	for _, tt := range tests {
		if got := Classify(tt.score, th); got != tt.want {
			t.Errorf("Classify(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestClassifyMonotonic(t *testing.T) {
	thresholds := []domain.Thresholds{
		DefaultThresholds(),
		{LowMax: 0, MediumMax: 1, HighMin: 2, CriticalMin: 2},
		{LowMax: 10, MediumMax: 50, HighMin: 70, CriticalMin: 100},
		{LowMax: 97, MediumMax: 98, HighMin: 99, CriticalMin: 100},
	}

	for _, th := range thresholds {
		if err := th.Validate(); err != nil {
			t.Fatalf("test thresholds %+v invalid: %v", th, err)
		}
		prev := Classify(0, th)
		for score := 1; score <= 100; score++ {
			cur := Classify(score, th)
			if cur.Rank() < prev.Rank() {
				t.Fatalf("thresholds %+v: level dropped from %s to %s at score %d", th, prev, cur, score)
			}
			prev = cur
		}
	}
}

func TestOverrideScore(t *testing.T) {
	want := map[domain.RiskLevel]int{
		domain.RiskLow:      15,
		domain.RiskMedium:   45,
		domain.RiskHigh:     75,
		domain.RiskCritical: 95,
	}
	for level, score := range want {
		if got := OverrideScore(level); got != score {
			t.Errorf("OverrideScore(%s) = %d, want %d", level, got, score)
		}
	}
}

func TestDefaultThresholdsValid(t *testing.T) {
	if err := DefaultThresholds().Validate(); err != nil {
		t.Fatalf("default thresholds invalid: %v", err)
	}
}
