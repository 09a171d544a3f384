package rules

import "github.com/opensource-finance/merchantrisk/internal/domain"

// Classify maps a score to a level. The thresholds are assumed valid.
// A score equal to low_max is LOW.
func Classify(score int, t domain.Thresholds) domain.RiskLevel {
	switch {
	case score >= t.CriticalMin:
		return domain.RiskCritical
	case score >= t.HighMin:
		return domain.RiskHigh
	case score > t.LowMax:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// OverrideScore is the nominal score recorded for a manually assigned level.
func OverrideScore(level domain.RiskLevel) int {
	switch level {
	case domain.RiskLow:
		return 15
	case domain.RiskMedium:
		return 45
	case domain.RiskHigh:
		return 75
	case domain.RiskCritical:
		return 95
	}
	return 50
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
