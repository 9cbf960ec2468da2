package service

import (
	"context"

	"github.com/bivex/renewal-retry/internal/domain/entity"
)

// RuleProvider resolves the retry rule for a given attempt number (0-based)
// and renewal order. Returning nil signals "stop retrying".
type RuleProvider interface {
	HasRule(ctx context.Context, attempt int, orderID int64) bool
	RuleFor(ctx context.Context, attempt int, orderID int64) *entity.RetryRule
}

// RuleOverride lets a collaborator substitute the rule for a specific order,
// e.g. returning nil to stop retrying high-value orders. The default rule
// (nil when the schedule is exhausted) is passed in.
type RuleOverride func(ctx context.Context, attempt int, orderID int64, rule *entity.RetryRule) *entity.RetryRule

// ScheduleRuleProvider serves rules from a fixed ordered schedule, with an
// optional per-order override strategy.
type ScheduleRuleProvider struct {
	rules    []entity.RetryRule
	override RuleOverride
}

// NewScheduleRuleProvider creates a provider over the given schedule.
// override may be nil.
func NewScheduleRuleProvider(rules []entity.RetryRule, override RuleOverride) *ScheduleRuleProvider {
	return &ScheduleRuleProvider{rules: rules, override: override}
}

// NewDefaultRuleProvider creates a provider over the built-in schedule.
func NewDefaultRuleProvider() *ScheduleRuleProvider {
	return NewScheduleRuleProvider(entity.DefaultRetrySchedule(), nil)
}

// RuleFor returns the rule for the attempt, or nil when the schedule is
// exhausted or the override suppresses it.
func (p *ScheduleRuleProvider) RuleFor(ctx context.Context, attempt int, orderID int64) *entity.RetryRule {
	var rule *entity.RetryRule
	if attempt >= 0 && attempt < len(p.rules) {
		r := p.rules[attempt]
		rule = &r
	}
	if p.override != nil {
		rule = p.override(ctx, attempt, orderID, rule)
	}
	return rule
}

// HasRule reports whether a rule exists for the attempt.
func (p *ScheduleRuleProvider) HasRule(ctx context.Context, attempt int, orderID int64) bool {
	return p.RuleFor(ctx, attempt, orderID) != nil
}
