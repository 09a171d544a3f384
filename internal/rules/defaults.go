package rules

import "github.com/opensource-finance/merchantrisk/internal/domain"

// Weight names. Every configurable weight key must be one of these.
const (
	WeightHighRiskCountry     = "high_risk_country"
	WeightFATFGreyListCountry = "fatf_grey_list_country"
	WeightHighRiskIndustry    = "high_risk_industry"
	WeightBlacklistedMCC      = "blacklisted_mcc"
	WeightOwnerPEP            = "owner_pep"
	WeightOwnerSanctioned     = "owner_sanctioned"
	WeightHighAnnualVolume    = "high_annual_volume"
	WeightNewBusiness         = "new_business"
	WeightOffshoreStructure   = "offshore_structure"
	WeightCashIntensive       = "cash_intensive"
	WeightComplexOwnership    = "complex_ownership"
	WeightHighRefundRate      = "high_refund_rate"
	WeightAbnormalVolumeSpike = "abnormal_volume_spike"
)

// DefaultWeights returns the built-in weight table.
// fatf_grey_list_country and owner_sanctioned are configurable but not read by
// the pipeline: grey-list countries share the high-risk list and sanctions are a hard stop.
func DefaultWeights() domain.Weights {
	return domain.Weights{
		WeightHighRiskCountry:     30,
		WeightFATFGreyListCountry: 20,
		WeightHighRiskIndustry:    25,
		WeightBlacklistedMCC:      35,
		WeightOwnerPEP:            50,
		WeightOwnerSanctioned:     100,
		WeightHighAnnualVolume:    15,
		WeightNewBusiness:         10,
		WeightOffshoreStructure:   25,
		WeightCashIntensive:       20,
		WeightComplexOwnership:    15,
		WeightHighRefundRate:      20,
		WeightAbnormalVolumeSpike: 25,
	}
}

// IsKnownWeight reports whether name is a configurable weight key.
func IsKnownWeight(name string) bool {
	_, ok := DefaultWeights()[name]
	return ok
}

// DefaultThresholds returns the built-in level boundaries.
func DefaultThresholds() domain.Thresholds {
	return domain.Thresholds{
		LowMax:      30,
		MediumMax:   60,
		HighMin:     61,
		CriticalMin: 85,
	}
}

// DefaultHighRiskCountries is the FATF black and grey list seed.
func DefaultHighRiskCountries() []string {
	return []string{
		"North Korea", "Iran", "Myanmar",
		"Syria", "Yemen", "Afghanistan", "Albania", "Barbados",
		"Burkina Faso", "Cambodia", "Cayman Islands", "Haiti",
		"Jamaica", "Jordan", "Mali", "Morocco", "Nicaragua",
		"Pakistan", "Panama", "Philippines", "Senegal",
		"South Sudan", "Tanzania", "Turkey", "Uganda",
		"United Arab Emirates", "Vietnam", "Zimbabwe",
	}
}

// DefaultHighRiskIndustries is the built-in high-risk industry seed.
func DefaultHighRiskIndustries() []string {
	return []string{
		"Gambling", "Casino", "Gaming",
		"CurrencyExchange", "MoneyServices", "CryptoExchange",
		"RealEstate", "HighValueGoods", "JewelryDealer",
		"ArtDealer", "PreciousMetals",
		"Arms", "Defense", "Weapons",
		"AdultEntertainment",
		"CharityNonProfit",
		"PaymentProcessor", "MoneyRemittance",
		"TobaccoAlcohol",
		"UsedCarDealer", "BoatDealer",
		"TravelAgency",
		"LegalServices", "AccountingServices",
	}
}

// DefaultBlacklistedMCCs is the built-in merchant category code blacklist.
func DefaultBlacklistedMCCs() []string {
	return []string{
		"7995", // Gambling
		"7994", // Video game arcades
		"7801", // Government-licensed casinos
		"7802", // Horse/dog racing
		"5933", // Pawn shops
		"5944", // Jewelry stores
		"6051", // Quasi-cash, crypto
		"6211", // Security brokers
		"4829", // Money transfer
		"6540", // Stored value card purchase
	}
}

// DefaultList returns the seed list of the given type.
func DefaultList(lt domain.ListType) []string {
	switch lt {
	case domain.ListCountries:
		return DefaultHighRiskCountries()
	case domain.ListIndustries:
		return DefaultHighRiskIndustries()
	case domain.ListMCCs:
		return DefaultBlacklistedMCCs()
	}
	return nil
}

// DefaultSnapshot returns a snapshot made entirely of built-in defaults.
func DefaultSnapshot() *domain.RiskSnapshot {
	return &domain.RiskSnapshot{
		Weights:            DefaultWeights(),
		Thresholds:         DefaultThresholds(),
		HighRiskCountries:  DefaultHighRiskCountries(),
		HighRiskIndustries: DefaultHighRiskIndustries(),
		BlacklistedMCCs:    DefaultBlacklistedMCCs(),
	}
}
