package rules

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/opensource-finance/merchantrisk/internal/domain"
)

// Rule identifier prefixes.
const (
	RulePrefix         = "RULE:"
	HardOverridePrefix = "HARD_OVERRIDE:"
)

// NoRiskFactorsReason is the single reason given when no rule fires.
const NoRiskFactorsReason = "no high-risk factors identified"

// Terminal rule names.
const (
	TerminalOwnerSanctioned         = "owner_sanctioned"
	TerminalOwnerPEPHighRiskCountry = "owner_pep_high_risk_country"
)

// AdditiveRule adds its weight to the running score when its predicate holds.
type AdditiveRule struct {
	Name string

	// Expression is a CEL predicate over the profile variables.
	Expression string

	// WeightExpression, when set, is a CEL int expression that replaces the
	// configured weight. The weights map is not consulted for such rules.
	WeightExpression string

	DefaultWeight int

	Reason func(p *domain.MerchantProfile) string
}

// TerminalRule stops evaluation and fixes the outcome when its predicate holds.
type TerminalRule struct {
	Name       string
	Expression string

	// After names the additive rule whose firing arms this rule.
	// Empty means the rule is checked before any scoring.
	After string

	Level  domain.RiskLevel
	Reason string

	// Score computes the final score from the running score at the point the rule is checked.
	Score func(running int, t domain.Thresholds) int
}

// DefaultAdditiveRules returns the additive rules in evaluation order.
func DefaultAdditiveRules() []AdditiveRule {
	return []AdditiveRule{
		{
			Name:          WeightHighRiskCountry,
			Expression:    `country in high_risk_countries`,
			DefaultWeight: 30,
			Reason: func(p *domain.MerchantProfile) string {
				return fmt.Sprintf("High-risk country: %s", p.Country)
			},
		},
		{
			Name:          WeightHighRiskIndustry,
			Expression:    `industry in high_risk_industries`,
			DefaultWeight: 25,
			Reason: func(p *domain.MerchantProfile) string {
				return fmt.Sprintf("High-risk industry: %s", p.Industry)
			},
		},
		{
			Name:          WeightBlacklistedMCC,
			Expression:    `mcc_code != "" && mcc_code in blacklisted_mccs`,
			DefaultWeight: 35,
			Reason: func(p *domain.MerchantProfile) string {
				return fmt.Sprintf("Blacklisted MCC: %s", p.MCCCode)
			},
		},
		{
			Name:          WeightOwnerPEP,
			Expression:    `owner_pep`,
			DefaultWeight: 50,
			Reason: func(*domain.MerchantProfile) string {
				return "Owner is Politically Exposed Person (PEP)"
			},
		},
		{
			Name:          WeightHighAnnualVolume,
			Expression:    `annual_volume > 1000000.0`,
			DefaultWeight: 15,
			Reason: func(p *domain.MerchantProfile) string {
				return "High annual volume: $" + humanize.FormatFloat("#,###.##", p.AnnualVolume.InexactFloat64())
			},
		},
		{
			Name:          WeightNewBusiness,
			Expression:    `years_in_business < 2`,
			DefaultWeight: 10,
			Reason: func(p *domain.MerchantProfile) string {
				return fmt.Sprintf("New business: %d years", p.YearsInBusiness)
			},
		},
		{
			Name:          WeightOffshoreStructure,
			Expression:    `offshore_structure`,
			DefaultWeight: 25,
			Reason: func(*domain.MerchantProfile) string {
				return "Offshore corporate structure"
			},
		},
		{
			Name:          WeightCashIntensive,
			Expression:    `cash_intensive`,
			DefaultWeight: 20,
			Reason: func(*domain.MerchantProfile) string {
				return "Cash-intensive business"
			},
		},
		{
			Name:          WeightComplexOwnership,
			Expression:    `complex_ownership`,
			DefaultWeight: 15,
			Reason: func(*domain.MerchantProfile) string {
				return "Complex ownership structure"
			},
		},
		{
			Name:          WeightHighRefundRate,
			Expression:    `refund_rate > 5.0`,
			DefaultWeight: 20,
			Reason: func(p *domain.MerchantProfile) string {
				return fmt.Sprintf("High refund rate: %.1f%%", p.RefundRate)
			},
		},
		{
			Name:          WeightAbnormalVolumeSpike,
			Expression:    `volume_change_pct > 50.0`,
			DefaultWeight: 25,
			Reason: func(p *domain.MerchantProfile) string {
				return fmt.Sprintf("Abnormal volume spike: %.1f%% increase", p.VolumeChangePct)
			},
		},
		{
			Name:             "high_chargeback_rate",
			Expression:       `chargeback_rate > 1.0`,
			WeightExpression: `int(chargeback_rate * 10.0)`,
			Reason: func(p *domain.MerchantProfile) string {
				return fmt.Sprintf("High chargeback rate: %.2f%%", p.ChargebackRate)
			},
		},
	}
}

// DefaultTerminalRules returns the hard-override rules.
func DefaultTerminalRules() []TerminalRule {
	return []TerminalRule{
		{
			Name:       TerminalOwnerSanctioned,
			Expression: `owner_sanctioned`,
			Level:      domain.RiskCritical,
			Reason:     "Owner on sanctions list - automatic CRITICAL risk",
			Score: func(int, domain.Thresholds) int {
				return 100
			},
		},
		{
			Name:       TerminalOwnerPEPHighRiskCountry,
			Expression: `owner_pep && country in high_risk_countries`,
			After:      WeightOwnerPEP,
			Level:      domain.RiskHigh,
			Reason:     "PEP owner in high-risk country - elevated to HIGH",
			Score: func(running int, t domain.Thresholds) int {
				return max(running, t.HighMin)
			},
		},
	}
}

// RuleInfo describes one catalogue entry for display.
// Weights are nil for terminal rules and EffectiveWeight is nil for computed weights.
type RuleInfo struct {
	ID               string `json:"id"`
	Kind             string `json:"kind"`
	Expression       string `json:"expression"`
	WeightExpression string `json:"weightExpression,omitempty"`
	After            string `json:"after,omitempty"`
	DefaultWeight    *int   `json:"defaultWeight,omitempty"`
	EffectiveWeight  *int   `json:"effectiveWeight,omitempty"`
	Level            string `json:"level,omitempty"`
}
