// Package rules provides the CEL-Go based merchant risk rule pipeline.
package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/opensource-finance/merchantrisk/internal/domain"
)

// Engine evaluates merchant profiles against an ordered rule catalogue.
// All programs are compiled at construction; an Engine is immutable and safe for concurrent use.
type Engine struct {
	env      *cel.Env
	additive []*compiledAdditive
	// terminals keyed by the additive rule that arms them ("" = before scoring)
	terminals map[string][]*compiledTerminal
	order     []*compiledTerminal
}

type compiledAdditive struct {
	rule      AdditiveRule
	predicate cel.Program
	weight    cel.Program
}

type compiledTerminal struct {
	rule      TerminalRule
	predicate cel.Program
}

// NewEngine creates an engine over the built-in catalogue.
func NewEngine() (*Engine, error) {
	return NewEngineWithRules(DefaultAdditiveRules(), DefaultTerminalRules())
}

// NewEngineWithRules creates an engine over a custom catalogue.
// Additive rules run in slice order.
func NewEngineWithRules(additive []AdditiveRule, terminal []TerminalRule) (*Engine, error) {
	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{
		env:       env,
		terminals: make(map[string][]*compiledTerminal),
	}

	seen := make(map[string]bool)
	for _, r := range additive {
		if r.Name == "" || seen[r.Name] {
			return nil, fmt.Errorf("additive rule name %q is empty or duplicated", r.Name)
		}
		if r.Reason == nil {
			return nil, fmt.Errorf("rule %s: reason is required", r.Name)
		}
		seen[r.Name] = true

		c := &compiledAdditive{rule: r}
		if c.predicate, err = e.compile(r.Name, r.Expression, cel.BoolType); err != nil {
			return nil, err
		}
		if r.WeightExpression != "" {
			if c.weight, err = e.compile(r.Name, r.WeightExpression, cel.IntType); err != nil {
				return nil, err
			}
		}
		e.additive = append(e.additive, c)
	}

	for _, t := range terminal {
		if t.Name == "" || seen[t.Name] {
			return nil, fmt.Errorf("terminal rule name %q is empty or duplicated", t.Name)
		}
		if t.After != "" && !seen[t.After] {
			return nil, fmt.Errorf("terminal rule %s: unknown additive rule %q", t.Name, t.After)
		}
		if t.Score == nil || !t.Level.Valid() {
			return nil, fmt.Errorf("terminal rule %s: score and level are required", t.Name)
		}
		seen[t.Name] = true

		program, err := e.compile(t.Name, t.Expression, cel.BoolType)
		if err != nil {
			return nil, err
		}
		c := &compiledTerminal{rule: t, predicate: program}
		e.terminals[t.After] = append(e.terminals[t.After], c)
		e.order = append(e.order, c)
	}

	return e, nil
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("country", cel.StringType),
		cel.Variable("industry", cel.StringType),
		cel.Variable("mcc_code", cel.StringType),
		cel.Variable("annual_volume", cel.DoubleType),
		cel.Variable("owner_pep", cel.BoolType),
		cel.Variable("owner_sanctioned", cel.BoolType),
		cel.Variable("years_in_business", cel.IntType),
		cel.Variable("offshore_structure", cel.BoolType),
		cel.Variable("cash_intensive", cel.BoolType),
		cel.Variable("complex_ownership", cel.BoolType),
		cel.Variable("refund_rate", cel.DoubleType),
		cel.Variable("chargeback_rate", cel.DoubleType),
		cel.Variable("volume_change_pct", cel.DoubleType),
		cel.Variable("high_risk_countries", cel.ListType(cel.StringType)),
		cel.Variable("high_risk_industries", cel.ListType(cel.StringType)),
		cel.Variable("blacklisted_mccs", cel.ListType(cel.StringType)),
	)
}

func (e *Engine) compile(name, expr string, want *cel.Type) (cel.Program, error) {
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", name, issues.Err())
	}

	if outputType := ast.OutputType(); !outputType.IsExactType(want) {
		return nil, fmt.Errorf("rule %s: expression %q must return %s, got %s", name, expr, want, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", name, err)
	}
	return program, nil
}

// Evaluate runs the pipeline over p using the configuration in snap.
// A nil snapshot evaluates against the built-in defaults.
func (e *Engine) Evaluate(p *domain.MerchantProfile, snap *domain.RiskSnapshot) domain.EvaluationResult {
	if snap == nil {
		snap = DefaultSnapshot()
	}
	act := activation(p, snap)

	reasons := []string{}
	applied := []string{}

	if t := e.firstTerminal("", act); t != nil {
		return terminalResult(t, 0, snap.Thresholds, reasons, applied)
	}

	score := 0
	for _, r := range e.additive {
		if !matches(r.predicate, act) {
			continue
		}
		weight, ok := e.weightOf(r, act, snap.Weights)
		if !ok {
			continue
		}
		score += weight
		reasons = append(reasons, r.rule.Reason(p))
		applied = append(applied, RulePrefix+r.rule.Name)

		if t := e.firstTerminal(r.rule.Name, act); t != nil {
			return terminalResult(t, score, snap.Thresholds, reasons, applied)
		}
	}

	score = clampScore(score)
	if len(reasons) == 0 {
		reasons = append(reasons, NoRiskFactorsReason)
	}

	return domain.EvaluationResult{
		Score:        score,
		Level:        Classify(score, snap.Thresholds),
		Reasons:      reasons,
		AppliedRules: applied,
	}
}

func (e *Engine) firstTerminal(after string, act map[string]any) *compiledTerminal {
	for _, t := range e.terminals[after] {
		if matches(t.predicate, act) {
			return t
		}
	}
	return nil
}

func terminalResult(t *compiledTerminal, running int, th domain.Thresholds, reasons, applied []string) domain.EvaluationResult {
	return domain.EvaluationResult{
		Score:        clampScore(t.rule.Score(running, th)),
		Level:        t.rule.Level,
		Reasons:      append(reasons, t.rule.Reason),
		AppliedRules: append(applied, HardOverridePrefix+t.rule.Name),
	}
}

func (e *Engine) weightOf(r *compiledAdditive, act map[string]any, w domain.Weights) (int, bool) {
	if r.weight == nil {
		return w.Get(r.rule.Name, r.rule.DefaultWeight), true
	}
	out, _, err := r.weight.Eval(act)
	if err != nil {
		return 0, false
	}
	v, ok := out.Value().(int64)
	if !ok {
		return 0, false
	}
	return int(v), true
}

// matches evaluates a predicate. Evaluation errors count as not fired.
func matches(program cel.Program, act map[string]any) bool {
	out, _, err := program.Eval(act)
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

func activation(p *domain.MerchantProfile, snap *domain.RiskSnapshot) map[string]any {
	return map[string]any{
		"country":              p.Country,
		"industry":             p.Industry,
		"mcc_code":             p.MCCCode,
		"annual_volume":        p.AnnualVolume.InexactFloat64(),
		"owner_pep":            p.OwnerPEP,
		"owner_sanctioned":     p.OwnerSanctioned,
		"years_in_business":    int64(p.YearsInBusiness),
		"offshore_structure":   p.OffshoreStruct,
		"cash_intensive":       p.CashIntensive,
		"complex_ownership":    p.ComplexOwnership,
		"refund_rate":          p.RefundRate,
		"chargeback_rate":      p.ChargebackRate,
		"volume_change_pct":    p.VolumeChangePct,
		"high_risk_countries":  nonNil(snap.HighRiskCountries),
		"high_risk_industries": nonNil(snap.HighRiskIndustries),
		"blacklisted_mccs":     nonNil(snap.BlacklistedMCCs),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Catalogue describes every rule with its effective weight under snap.
func (e *Engine) Catalogue(snap *domain.RiskSnapshot) []RuleInfo {
	if snap == nil {
		snap = DefaultSnapshot()
	}

	infos := make([]RuleInfo, 0, len(e.additive)+len(e.order))
	for _, t := range e.terminals[""] {
		infos = append(infos, terminalInfo(t.rule))
	}
	for _, r := range e.additive {
		def := r.rule.DefaultWeight
		info := RuleInfo{
			ID:               RulePrefix + r.rule.Name,
			Kind:             "additive",
			Expression:       r.rule.Expression,
			WeightExpression: r.rule.WeightExpression,
			DefaultWeight:    &def,
		}
		if r.weight == nil {
			effective := snap.Weights.Get(r.rule.Name, r.rule.DefaultWeight)
			info.EffectiveWeight = &effective
		}
		infos = append(infos, info)
		for _, t := range e.terminals[r.rule.Name] {
			infos = append(infos, terminalInfo(t.rule))
		}
	}
	return infos
}

func terminalInfo(t TerminalRule) RuleInfo {
	return RuleInfo{
		ID:         HardOverridePrefix + t.Name,
		Kind:       "terminal",
		Expression: t.Expression,
		After:      t.After,
		Level:      string(t.Level),
	}
}

// RulesCount returns the number of compiled rules.
func (e *Engine) RulesCount() int {
	return len(e.additive) + len(e.order)
}
