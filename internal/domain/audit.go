package domain

import "time"

// AuditAction enumerates the mutating actions that are written to the audit log.
type AuditAction string

const (
	ActionMerchantCreate   AuditAction = "MERCHANT_CREATE"
	ActionMerchantUpdate   AuditAction = "MERCHANT_UPDATE"
	ActionMerchantDelete   AuditAction = "MERCHANT_DELETE"
	ActionMerchantApproved AuditAction = "MERCHANT_APPROVED"
	ActionMerchantRejected AuditAction = "MERCHANT_REJECTED"
	ActionRiskAssessment   AuditAction = "RISK_ASSESSMENT"
	ActionRiskOverride     AuditAction = "RISK_OVERRIDE"
	ActionConfigChange     AuditAction = "CONFIG_CHANGE"
	ActionAlertCreate      AuditAction = "ALERT_CREATE"
	ActionAlertResolve     AuditAction = "ALERT_RESOLVE"
)

// Valid reports whether a is a known action.
func (a AuditAction) Valid() bool {
	switch a {
	case ActionMerchantCreate, ActionMerchantUpdate, ActionMerchantDelete,
		ActionMerchantApproved, ActionMerchantRejected,
		ActionRiskAssessment, ActionRiskOverride, ActionConfigChange,
		ActionAlertCreate, ActionAlertResolve:
		return true
	}
	return false
}

// RequestMeta is the caller context attached to audit entries.
type RequestMeta struct {
	IPAddress string `json:"ipAddress,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	UserID    string `json:"userId,omitempty"`
}

// Actor returns the identity to credit for an action.
func (m RequestMeta) Actor() string {
	if m.UserID != "" {
		return m.UserID
	}
	return SystemAssessor
}

// AuditLogEntry is one append-only audit record.
type AuditLogEntry struct {
	ID            string         `json:"id"`
	ActionType    AuditAction    `json:"actionType"`
	MerchantID    string         `json:"merchantId,omitempty"`
	ConfigKey     string         `json:"configKey,omitempty"`
	Description   string         `json:"description"`
	PreviousValue map[string]any `json:"previousValue,omitempty"`
	NewValue      map[string]any `json:"newValue,omitempty"`
	RequestMeta
	CreatedAt time.Time `json:"createdAt"`
}

// AuditFilter narrows an audit query. Zero values are ignored.
type AuditFilter struct {
	MerchantID string
	ActionType AuditAction
	ConfigKey  string
	Since      time.Time
	Limit      int
}
