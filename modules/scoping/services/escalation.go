package services

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/cel-go/cel"

	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/domain/types"
)

// Escalation actions an eligible rule may recommend. Advisory only: a rule
// never transitions a version, it annotates the mismatch report for the
// report owner.
const (
	EscalationApprove         = "approve"
	EscalationReject          = "reject"
	EscalationRequestRevision = "request-revision"
	EscalationWait            = "wait"
)

// EscalationRule is one configurable advice rule over a reconciliation
// result. Both expressions are CEL over a `ctx` map: eligibility_expr must
// yield bool, decision_expr must yield one of the action strings.
type EscalationRule struct {
	RuleID          string `json:"rule_id" yaml:"rule_id"`
	Priority        int    `json:"priority" yaml:"priority"`
	EligibilityExpr string `json:"eligibility_expr" yaml:"eligibility_expr"`
	DecisionExpr    string `json:"decision_expr" yaml:"decision_expr"`
	ReasonCode      string `json:"reason_code" yaml:"reason_code"`
}

// EscalationAdvice is the recommendation attached to a failed auto-check.
type EscalationAdvice struct {
	Action     string `json:"action"`
	RuleID     string `json:"rule_id"`
	ReasonCode string `json:"reason_code"`
}

type compiledEscalationRule struct {
	rule        EscalationRule
	eligibility cel.Program
	decision    cel.Program
}

// EscalationPolicy evaluates rules highest priority first; the first
// eligible rule wins. Programs are compiled once at construction.
type EscalationPolicy struct {
	rules []compiledEscalationRule
}

var errEscalationRuleInvalid = errors.New("SCOPING_ESCALATION_RULE_INVALID")

func newEscalationCELEnv() (*cel.Env, error) {
	return cel.NewEnv(cel.Variable("ctx", cel.MapType(cel.StringType, cel.DynType)))
}

// NewEscalationPolicy compiles the rule set. An empty rule set is valid and
// yields no advice.
func NewEscalationPolicy(rules []EscalationRule) (*EscalationPolicy, error) {
	env, err := newEscalationCELEnv()
	if err != nil {
		return nil, err
	}
	compiled := make([]compiledEscalationRule, 0, len(rules))
	for _, rule := range rules {
		if rule.RuleID == "" || rule.EligibilityExpr == "" || rule.DecisionExpr == "" {
			return nil, fmt.Errorf("%w: rule %q", errEscalationRuleInvalid, rule.RuleID)
		}
		eligibility, err := compileEscalationExpr(env, rule.EligibilityExpr)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %q eligibility: %v", errEscalationRuleInvalid, rule.RuleID, err)
		}
		decision, err := compileEscalationExpr(env, rule.DecisionExpr)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %q decision: %v", errEscalationRuleInvalid, rule.RuleID, err)
		}
		compiled = append(compiled, compiledEscalationRule{rule: rule, eligibility: eligibility, decision: decision})
	}
	sort.SliceStable(compiled, func(i, j int) bool { return compiled[i].rule.Priority > compiled[j].rule.Priority })
	return &EscalationPolicy{rules: compiled}, nil
}

func compileEscalationExpr(env *cel.Env, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	return env.Program(ast)
}

// Advise returns the first eligible rule's recommendation for a failed
// auto-check, or false when no rule matches.
func (p *EscalationPolicy) Advise(result types.ReconciliationResult, phase types.Phase) (EscalationAdvice, bool, error) {
	if p == nil || len(p.rules) == 0 {
		return EscalationAdvice{}, false, nil
	}

	needsRevision := 0
	for _, m := range result.Mismatches {
		if m.Owner == types.OwnerNeedsRevision {
			needsRevision++
		}
	}
	activation := map[string]any{
		"ctx": map[string]any{
			"mismatch_count":       len(result.Mismatches),
			"undecided_count":      len(result.UndecidedItems),
			"needs_revision_count": needsRevision,
			"phase":                string(phase),
		},
	}

	for _, c := range p.rules {
		eligible, _, err := c.eligibility.Eval(activation)
		if err != nil {
			return EscalationAdvice{}, false, err
		}
		ok, isBool := eligible.Value().(bool)
		if !isBool || !ok {
			continue
		}
		decided, _, err := c.decision.Eval(activation)
		if err != nil {
			return EscalationAdvice{}, false, err
		}
		action, isString := decided.Value().(string)
		if !isString {
			return EscalationAdvice{}, false, fmt.Errorf("%w: rule %q decision is not a string", errEscalationRuleInvalid, c.rule.RuleID)
		}
		return EscalationAdvice{Action: action, RuleID: c.rule.RuleID, ReasonCode: c.rule.ReasonCode}, true, nil
	}
	return EscalationAdvice{}, false, nil
}

// DefaultEscalationRules is the stock advice set: wait on partial review,
// suggest revision when the owner flagged rework, otherwise suggest an
// explicit owner decision round.
func DefaultEscalationRules() []EscalationRule {
	return []EscalationRule{
		{
			RuleID:          "wait-for-review",
			Priority:        300,
			EligibilityExpr: `ctx.undecided_count > 0`,
			DecisionExpr:    `"wait"`,
			ReasonCode:      "OWNER_REVIEW_INCOMPLETE",
		},
		{
			RuleID:          "revision-flagged",
			Priority:        200,
			EligibilityExpr: `ctx.needs_revision_count > 0`,
			DecisionExpr:    `"request-revision"`,
			ReasonCode:      "OWNER_FLAGGED_REVISION",
		},
		{
			RuleID:          "disagreement",
			Priority:        100,
			EligibilityExpr: `ctx.mismatch_count > 0`,
			DecisionExpr:    `"reject"`,
			ReasonCode:      "DECISIONS_DISAGREE",
		},
	}
}
