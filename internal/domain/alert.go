package domain

import "time"

// AlertSeverity grades an alert.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "INFO"
	SeverityWarning  AlertSeverity = "WARNING"
	SeverityCritical AlertSeverity = "CRITICAL"
)

// Alert is raised for HIGH and CRITICAL assessments. It moves from open to
// resolved exactly once.
type Alert struct {
	ID              string        `json:"id"`
	MerchantID      string        `json:"merchantId"`
	AssessmentID    string        `json:"assessmentId,omitempty"`
	AlertType       string        `json:"alertType"`
	Severity        AlertSeverity `json:"severity"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	IsResolved      bool          `json:"isResolved"`
	ResolvedBy      string        `json:"resolvedBy,omitempty"`
	ResolvedAt      *time.Time    `json:"resolvedAt,omitempty"`
	ResolutionNotes string        `json:"resolutionNotes,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// AlertFilter narrows an alert listing.
type AlertFilter struct {
	MerchantID string
	Resolved   *bool
	Severity   AlertSeverity
	Limit      int
}
