/*
rules.go - Rule set resolution

PURPOSE:
  Maps (rule-set name, agency) to the RuleSet that governs a contract.
  A missing rule set is not an error: the documented defaults below are
  substituted and the result is flagged IsDefault. Every path (single
  refresh, batch, preview, stats, contract creation) resolves through
  RuleResolver, so the defaults are applied identically everywhere.

DEFAULTS:
  Duration                  1 day   (base salary is not prorated)
  Late cutoff               19:30
  First-minute penalty      0
  Additional-minute penalty 5
  Drink price               120
  Staff commission / drink  100
*/
package payroll

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

var defaultRules = RuleSet{
	DurationDays:            1,
	LateCutoff:              NewClockTime(19, 30),
	FirstMinutePenalty:      decimal.Zero,
	AdditionalMinutePenalty: decimal.NewFromInt(5),
	DrinkPrice:              decimal.NewFromInt(120),
	StaffCommission:         decimal.NewFromInt(100),
	IsDefault:               true,
}

// RuleOverrides replace individual default values, typically from the
// process configuration. Empty fields keep the documented defaults. The
// duration is not overridable: missing rules never prorate.
type RuleOverrides struct {
	LateCutoff              string
	FirstMinutePenalty      *decimal.Decimal
	AdditionalMinutePenalty *decimal.Decimal
	DrinkPrice              *decimal.Decimal
	StaffCommission         *decimal.Decimal
}

// Apply returns the default rule set with o applied.
func (o RuleOverrides) Apply() (RuleSet, error) {
	rs := DefaultRuleSet(RuleKey{})
	if o.LateCutoff != "" {
		cutoff, err := ParseClockTime(o.LateCutoff)
		if err != nil {
			return RuleSet{}, fmt.Errorf("default late cutoff: %w", err)
		}
		rs.LateCutoff = cutoff
	}
	for _, f := range []struct {
		src *decimal.Decimal
		dst *decimal.Decimal
	}{
		{o.FirstMinutePenalty, &rs.FirstMinutePenalty},
		{o.AdditionalMinutePenalty, &rs.AdditionalMinutePenalty},
		{o.DrinkPrice, &rs.DrinkPrice},
		{o.StaffCommission, &rs.StaffCommission},
	} {
		if f.src == nil {
			continue
		}
		if f.src.IsNegative() {
			return RuleSet{}, &ValidationError{Field: "defaults", Reason: "amounts must not be negative"}
		}
		*f.dst = *f.src
	}
	return rs, nil
}

// DefaultRuleSet returns the fallback rules for key.
func DefaultRuleSet(key RuleKey) RuleSet {
	rs := defaultRules
	rs.Key = key
	return rs
}

// RuleResolver resolves rule sets against a repository, substituting
// defaults on a miss.
type RuleResolver struct {
	repo     RuleRepository
	defaults RuleSet
}

// NewRuleResolver creates a resolver. defaults is used as a template for
// missing keys; pass DefaultRuleSet(RuleKey{}) for the documented values.
func NewRuleResolver(repo RuleRepository, defaults RuleSet) *RuleResolver {
	defaults.IsDefault = true
	return &RuleResolver{repo: repo, defaults: defaults}
}

// Resolve returns the rule set for key, or the defaults if none exists.
func (r *RuleResolver) Resolve(ctx context.Context, key RuleKey) (RuleSet, error) {
	found, err := r.ResolveMany(ctx, []RuleKey{key})
	if err != nil {
		return RuleSet{}, err
	}
	return found[key], nil
}

// ResolveMany resolves every distinct key with exactly one repository call.
// The returned map has an entry for each requested key.
func (r *RuleResolver) ResolveMany(ctx context.Context, keys []RuleKey) (map[RuleKey]RuleSet, error) {
	distinct := make([]RuleKey, 0, len(keys))
	seen := make(map[RuleKey]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			distinct = append(distinct, k)
		}
	}

	out := make(map[RuleKey]RuleSet, len(distinct))
	if len(distinct) == 0 {
		return out, nil
	}

	rows, err := r.repo.GetRuleSets(ctx, distinct)
	if err != nil {
		return nil, err
	}
	for _, rs := range rows {
		if seen[rs.Key] {
			out[rs.Key] = rs
		}
	}
	for _, k := range distinct {
		if _, ok := out[k]; !ok {
			rs := r.defaults
			rs.Key = k
			out[k] = rs
		}
	}
	return out, nil
}
