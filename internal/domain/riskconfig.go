package domain

import "time"

// Configuration keys held by the configuration store.
const (
	ConfigKeyWeights    = "risk_weights"
	ConfigKeyThresholds = "risk_thresholds"
	ConfigKeyCountries  = "high_risk_countries"
	ConfigKeyIndustries = "high_risk_industries"
	ConfigKeyMCCs       = "blacklisted_mccs"
)

// ConfigKeyForList maps a list type to its configuration key.
func ConfigKeyForList(lt ListType) string {
	switch lt {
	case ListCountries:
		return ConfigKeyCountries
	case ListIndustries:
		return ConfigKeyIndustries
	case ListMCCs:
		return ConfigKeyMCCs
	}
	return ""
}

// RiskConfigEntry is one stored configuration override.
type RiskConfigEntry struct {
	Key         string    `json:"configKey"`
	Value       []byte    `json:"configValue"` // JSON
	Type        string    `json:"configType"`
	Description string    `json:"description,omitempty"`
	UpdatedBy   string    `json:"updatedBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// DashboardStats summarises the registry for the dashboard.
type DashboardStats struct {
	TotalMerchants       int            `json:"totalMerchants"`
	ByRiskLevel          map[string]int `json:"byRiskLevel"`
	ByStatus             map[string]int `json:"byStatus"`
	RecentHighRisk       int            `json:"recentHighRisk"`
	UnresolvedAlerts     int            `json:"unresolvedAlerts"`
	AverageRiskScore     float64        `json:"averageRiskScore"`
	TopHighRiskCountries []CountryCount `json:"topHighRiskCountries"`
	AssessmentsLast7Days int            `json:"assessmentsLast7Days"`
}

// CountryCount is a country with the number of HIGH or CRITICAL merchants in it.
type CountryCount struct {
	Country string `json:"country"`
	Count   int    `json:"count"`
}
