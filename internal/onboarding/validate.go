package onboarding

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/merchantrisk/internal/domain"
)

// ValidateMerchant checks the fields a merchant must carry before it is stored.
func ValidateMerchant(m *domain.Merchant) error {
	problems := profileProblems(&m.MerchantProfile)
	if strings.TrimSpace(m.BusinessName) == "" {
		problems = append(problems, "businessName is required")
	}
	if m.MonthlyTxCount < 0 {
		problems = append(problems, "monthlyTransactionCount must not be negative")
	}
	return invalid(problems)
}

func validateProfile(p *domain.MerchantProfile) error {
	return invalid(profileProblems(p))
}

func profileProblems(p *domain.MerchantProfile) []string {
	var problems []string
	if strings.TrimSpace(p.MerchantID) == "" {
		problems = append(problems, "merchantId is required")
	}
	if strings.TrimSpace(p.Country) == "" {
		problems = append(problems, "country is required")
	}
	if strings.TrimSpace(p.Industry) == "" {
		problems = append(problems, "industry is required")
	}
	if p.AnnualVolume.IsNegative() {
		problems = append(problems, "annualVolume must not be negative")
	}
	if p.YearsInBusiness < 0 {
		problems = append(problems, "yearsInBusiness must not be negative")
	}
	if p.RefundRate < 0 || p.RefundRate > 100 {
		problems = append(problems, "refundRate must be between 0 and 100")
	}
	if p.ChargebackRate < 0 || p.ChargebackRate > 100 {
		problems = append(problems, "chargebackRate must be between 0 and 100")
	}
	if p.VolumeChangePct < -100 {
		problems = append(problems, "volumeChangePct must not be below -100")
	}
	return problems
}

func invalid(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(problems, "; "))
}
