package domain

import (
	"context"
	"strings"
)

// Severity decides whether a violation stops the commit.
type Severity string

const (
	// SeverityBlock aborts the transaction.
	SeverityBlock Severity = "block"
	// SeverityWarn is reported with the result; the commit proceeds.
	SeverityWarn Severity = "warn"
)

// Violation is one rule finding against a transaction's changes.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Key      Key
}

// Result carries the findings of every rule plus, after commit, the events the
// transaction published.
type Result struct {
	Violations []Violation
	Events     []Event
}

// Merge adds the violations of other. Events are left alone.
func (r *Result) Merge(other Result) {
	r.Violations = append(r.Violations, other.Violations...)
}

// Blocking returns the violations with SeverityBlock.
func (r Result) Blocking() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			out = append(out, v)
		}
	}
	return out
}

// HasBlocking reports whether any violation blocks the commit.
func (r Result) HasBlocking() bool { return len(r.Blocking()) > 0 }

// RuleViolationError aborts a transaction that a rule blocked.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	var b strings.Builder
	b.WriteString("transaction blocked by rules")
	for i, v := range e.Result.Blocking() {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(v.Rule)
		b.WriteString(": ")
		b.WriteString(v.Message)
	}
	return b.String()
}

// Rule inspects the pending changes of a transaction before it commits. The
// view reflects those changes.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, view TransactionView, changes []Change) (Result, error)
}

// RulesEngine runs rules in registration order.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine returns an engine with no rules.
func NewRulesEngine() *RulesEngine { return &RulesEngine{} }

// Register adds rule after those already registered.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns a copy of the registered rules.
func (e *RulesEngine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Evaluate runs every rule and merges the findings. The first rule error stops
// evaluation.
func (e *RulesEngine) Evaluate(ctx context.Context, view TransactionView, changes []Change) (Result, error) {
	var out Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, view, changes)
		if err != nil {
			return Result{}, err
		}
		out.Merge(res)
	}
	return out, nil
}
