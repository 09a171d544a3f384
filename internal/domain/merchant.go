package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MerchantStatus is the onboarding state of a merchant.
type MerchantStatus string

const (
	StatusPending     MerchantStatus = "PENDING"
	StatusActive      MerchantStatus = "ACTIVE"
	StatusSuspended   MerchantStatus = "SUSPENDED"
	StatusTerminated  MerchantStatus = "TERMINATED"
	StatusUnderReview MerchantStatus = "UNDER_REVIEW"
)

// Valid reports whether s is a known status.
func (s MerchantStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended, StatusTerminated, StatusUnderReview:
		return true
	}
	return false
}

// StatusForLevel returns the onboarding status implied by a fresh assessment.
// Only LOW risk merchants are approved automatically.
func StatusForLevel(level RiskLevel) MerchantStatus {
	if level == RiskLow {
		return StatusActive
	}
	return StatusUnderReview
}

// MerchantProfile holds the KYC and behavioral attributes the rule pipeline reads.
// It is treated as immutable for the duration of an evaluation.
type MerchantProfile struct {
	MerchantID       string          `json:"merchantId"`
	Country          string          `json:"country"`
	Industry         string          `json:"industry"`
	MCCCode          string          `json:"mccCode,omitempty"`
	AnnualVolume     decimal.Decimal `json:"annualVolume"`
	OwnerPEP         bool            `json:"ownerPep"`
	OwnerSanctioned  bool            `json:"ownerSanctioned"`
	YearsInBusiness  int             `json:"yearsInBusiness"`
	OffshoreStruct   bool            `json:"offshoreStructure"`
	CashIntensive    bool            `json:"cashIntensive"`
	ComplexOwnership bool            `json:"complexOwnership"`
	RefundRate       float64         `json:"refundRate"`
	ChargebackRate   float64         `json:"chargebackRate"`
	VolumeChangePct  float64         `json:"volumeChangePct"`
}

// Merchant is a registered merchant together with its current risk standing.
type Merchant struct {
	MerchantProfile

	BusinessName       string         `json:"businessName"`
	OwnerName          string         `json:"ownerName"`
	MonthlyTxCount     int            `json:"monthlyTransactionCount"`
	Status             MerchantStatus `json:"status"`
	RiskScore          int            `json:"riskScore"`
	RiskLevel          RiskLevel      `json:"riskLevel"`
	LastRiskAssessment *time.Time     `json:"lastRiskAssessment,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// MerchantPatch is a partial update. Nil fields are left untouched.
type MerchantPatch struct {
	BusinessName     *string          `json:"businessName,omitempty"`
	OwnerName        *string          `json:"ownerName,omitempty"`
	Country          *string          `json:"country,omitempty"`
	Industry         *string          `json:"industry,omitempty"`
	MCCCode          *string          `json:"mccCode,omitempty"`
	AnnualVolume     *decimal.Decimal `json:"annualVolume,omitempty"`
	MonthlyTxCount   *int             `json:"monthlyTransactionCount,omitempty"`
	OwnerPEP         *bool            `json:"ownerPep,omitempty"`
	OwnerSanctioned  *bool            `json:"ownerSanctioned,omitempty"`
	YearsInBusiness  *int             `json:"yearsInBusiness,omitempty"`
	OffshoreStruct   *bool            `json:"offshoreStructure,omitempty"`
	CashIntensive    *bool            `json:"cashIntensive,omitempty"`
	ComplexOwnership *bool            `json:"complexOwnership,omitempty"`
	RefundRate       *float64         `json:"refundRate,omitempty"`
	ChargebackRate   *float64         `json:"chargebackRate,omitempty"`
	VolumeChangePct  *float64         `json:"volumeChangePct,omitempty"`
}

// Apply copies every non-nil field of p onto m.
func (p *MerchantPatch) Apply(m *Merchant) {
	if p.BusinessName != nil {
		m.BusinessName = *p.BusinessName
	}
	if p.OwnerName != nil {
		m.OwnerName = *p.OwnerName
	}
	if p.Country != nil {
		m.Country = *p.Country
	}
	if p.Industry != nil {
		m.Industry = *p.Industry
	}
	if p.MCCCode != nil {
		m.MCCCode = *p.MCCCode
	}
	if p.AnnualVolume != nil {
		m.AnnualVolume = *p.AnnualVolume
	}
	if p.MonthlyTxCount != nil {
		m.MonthlyTxCount = *p.MonthlyTxCount
	}
	if p.OwnerPEP != nil {
		m.OwnerPEP = *p.OwnerPEP
	}
	if p.OwnerSanctioned != nil {
		m.OwnerSanctioned = *p.OwnerSanctioned
	}
	if p.YearsInBusiness != nil {
		m.YearsInBusiness = *p.YearsInBusiness
	}
	if p.OffshoreStruct != nil {
		m.OffshoreStruct = *p.OffshoreStruct
	}
	if p.CashIntensive != nil {
		m.CashIntensive = *p.CashIntensive
	}
	if p.ComplexOwnership != nil {
		m.ComplexOwnership = *p.ComplexOwnership
	}
	if p.RefundRate != nil {
		m.RefundRate = *p.RefundRate
	}
	if p.ChargebackRate != nil {
		m.ChargebackRate = *p.ChargebackRate
	}
	if p.VolumeChangePct != nil {
		m.VolumeChangePct = *p.VolumeChangePct
	}
}

// MerchantFilter narrows a merchant listing.
type MerchantFilter struct {
	RiskLevel RiskLevel
	Status    MerchantStatus
	Country   string // case-insensitive substring
	Offset    int
	Limit     int
}

// Snapshot returns the merchant as a flat map for audit value snapshots.
func (m *Merchant) Snapshot() map[string]any {
	return map[string]any{
		"merchantId":              m.MerchantID,
		"businessName":            m.BusinessName,
		"ownerName":               m.OwnerName,
		"country":                 m.Country,
		"industry":                m.Industry,
		"mccCode":                 m.MCCCode,
		"annualVolume":            m.AnnualVolume.String(),
		"monthlyTransactionCount": m.MonthlyTxCount,
		"ownerPep":                m.OwnerPEP,
		"ownerSanctioned":         m.OwnerSanctioned,
		"yearsInBusiness":         m.YearsInBusiness,
		"offshoreStructure":       m.OffshoreStruct,
		"cashIntensive":           m.CashIntensive,
		"complexOwnership":        m.ComplexOwnership,
		"refundRate":              m.RefundRate,
		"chargebackRate":          m.ChargebackRate,
		"volumeChangePct":         m.VolumeChangePct,
		"status":                  string(m.Status),
		"riskScore":               m.RiskScore,
		"riskLevel":               string(m.RiskLevel),
	}
}
