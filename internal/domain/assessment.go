package domain

import "time"

// Assessor identity used for automated assessments.
const SystemAssessor = "system"

// Rule identifiers that are not produced by the rule catalogue.
const (
	ManualOverrideRule = "MANUAL_OVERRIDE"
)

// AssessmentRecord is the immutable historical record of one assessment.
// It carries everything needed to reproduce the result after the
// configuration has moved on.
type AssessmentRecord struct {
	ID             string          `json:"id"`
	MerchantID     string          `json:"merchantId"`
	RiskScore      int             `json:"riskScore"`
	RiskLevel      RiskLevel       `json:"riskLevel"`
	Reasons        []string        `json:"reasons"`
	AppliedRules   []string        `json:"appliedRules"`
	InputData      MerchantProfile `json:"inputData"`
	WeightsUsed    Weights         `json:"weightsUsed"`
	ThresholdsUsed Thresholds      `json:"thresholdsUsed"`
	ListsUsed      RiskLists       `json:"listsUsed"`
	IsOverride     bool            `json:"isOverride"`
	OverrideReason string          `json:"overrideReason,omitempty"`
	OverrideBy     string          `json:"overrideBy,omitempty"`
	AssessedBy     string          `json:"assessedBy"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// RiskLists is the list part of a RiskSnapshot as stored on an assessment.
type RiskLists struct {
	Countries  []string `json:"countries"`
	Industries []string `json:"industries"`
	MCCs       []string `json:"mccs"`
}

// Snapshot rebuilds the configuration the record was evaluated against.
func (a *AssessmentRecord) Snapshot() *RiskSnapshot {
	return &RiskSnapshot{
		Weights:            a.WeightsUsed,
		Thresholds:         a.ThresholdsUsed,
		HighRiskCountries:  a.ListsUsed.Countries,
		HighRiskIndustries: a.ListsUsed.Industries,
		BlacklistedMCCs:    a.ListsUsed.MCCs,
	}
}

// Result returns the evaluation outcome stored on the record.
func (a *AssessmentRecord) Result() EvaluationResult {
	return EvaluationResult{
		Score:        a.RiskScore,
		Level:        a.RiskLevel,
		Reasons:      a.Reasons,
		AppliedRules: a.AppliedRules,
	}
}

// ReplayReport compares a stored assessment with a fresh evaluation
// against the same snapshot.
type ReplayReport struct {
	AssessmentID string           `json:"assessmentId"`
	Stored       EvaluationResult `json:"stored"`
	Replayed     EvaluationResult `json:"replayed"`
	Identical    bool             `json:"identical"`
}
