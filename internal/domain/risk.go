package domain

import (
	"fmt"
	"strings"
)

// RiskLevel is one of the four ordered risk levels.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Rank orders levels LOW < MEDIUM < HIGH < CRITICAL. Unknown levels rank 0.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	}
	return 0
}

// Valid reports whether l is one of the four levels.
func (l RiskLevel) Valid() bool { return l.Rank() > 0 }

// ParseRiskLevel accepts a level name in any case.
func ParseRiskLevel(s string) (RiskLevel, error) {
	l := RiskLevel(strings.ToUpper(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("%w: unknown risk level %q", ErrValidation, s)
	}
	return l, nil
}

// Thresholds are the score boundaries used to classify a score into a level.
type Thresholds struct {
	LowMax      int `json:"low_max"`
	MediumMax   int `json:"medium_max"`
	HighMin     int `json:"high_min"`
	CriticalMin int `json:"critical_min"`
}

// Validate enforces 0 <= low_max < medium_max < high_min <= critical_min <= 100.
func (t Thresholds) Validate() error {
	for _, b := range []struct {
		name  string
		value int
	}{
		{"low_max", t.LowMax},
		{"medium_max", t.MediumMax},
		{"high_min", t.HighMin},
		{"critical_min", t.CriticalMin},
	} {
		if b.value < 0 || b.value > 100 {
			return fmt.Errorf("%w: threshold %s must be between 0 and 100, got %d", ErrValidation, b.name, b.value)
		}
	}
	if t.LowMax >= t.MediumMax {
		return fmt.Errorf("%w: low_max (%d) must be less than medium_max (%d)", ErrValidation, t.LowMax, t.MediumMax)
	}
	if t.MediumMax >= t.HighMin {
		return fmt.Errorf("%w: medium_max (%d) must be less than high_min (%d)", ErrValidation, t.MediumMax, t.HighMin)
	}
	if t.HighMin > t.CriticalMin {
		return fmt.Errorf("%w: high_min (%d) must not exceed critical_min (%d)", ErrValidation, t.HighMin, t.CriticalMin)
	}
	return nil
}

// Snapshot returns t as a flat map for audit value snapshots.
func (t Thresholds) Snapshot() map[string]any {
	return map[string]any{
		"low_max":      t.LowMax,
		"medium_max":   t.MediumMax,
		"high_min":     t.HighMin,
		"critical_min": t.CriticalMin,
	}
}

// Weights maps a rule name to the points it adds when it fires.
type Weights map[string]int

// Get returns the weight for name, or fallback when it is not configured.
func (w Weights) Get(name string, fallback int) int {
	if v, ok := w[name]; ok {
		return v
	}
	return fallback
}

// Clone returns an independent copy of w.
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// ListType names one of the three lookup lists.
type ListType string

const (
	ListCountries  ListType = "countries"
	ListIndustries ListType = "industries"
	ListMCCs       ListType = "mccs"
)

// ParseListType maps the API name of a list to its type.
func ParseListType(s string) (ListType, error) {
	switch lt := ListType(strings.ToLower(strings.TrimSpace(s))); lt {
	case ListCountries, ListIndustries, ListMCCs:
		return lt, nil
	}
	return "", fmt.Errorf("%w: unknown list type %q, expected countries, industries or mccs", ErrValidation, s)
}

// RiskSnapshot is the point-in-time configuration an evaluation runs against.
// It is passed explicitly into every evaluation and stored with every assessment.
type RiskSnapshot struct {
	Weights            Weights    `json:"weights"`
	Thresholds         Thresholds `json:"thresholds"`
	HighRiskCountries  []string   `json:"highRiskCountries"`
	HighRiskIndustries []string   `json:"highRiskIndustries"`
	BlacklistedMCCs    []string   `json:"blacklistedMccs"`
}

// List returns the list of the given type.
func (s *RiskSnapshot) List(lt ListType) []string {
	switch lt {
	case ListCountries:
		return s.HighRiskCountries
	case ListIndustries:
		return s.HighRiskIndustries
	case ListMCCs:
		return s.BlacklistedMCCs
	}
	return nil
}

// EvaluationResult is the outcome of running the rule pipeline over one profile.
type EvaluationResult struct {
	Score        int       `json:"riskScore"`
	Level        RiskLevel `json:"riskLevel"`
	Reasons      []string  `json:"reasons"`
	AppliedRules []string  `json:"appliedRules"`
}
