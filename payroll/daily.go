/*
daily.go - Per-day payroll formula

PURPOSE:
  CalculateDay is the single implementation of the day formula. It is used
  when an entry is written (results are stored on the entry), when totals
  are refreshed for an entry whose stored results are stale, and by the
  non-persisting preview.

FORMULA:
  prorated_base    = base_salary / rules.duration   (rule set duration, not
                                                     the contract's own length)
  lateness_penalty = LatenessPenalty(arrival, rules)
  daily_salary     = prorated_base + bonus - malus - lateness_penalty
  revenue          = drinks * drink_price + special_commission
  commission       = drinks * staff_commission
  daily_profit     = revenue - daily_salary - commission
*/
package payroll

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// DayInput is everything the formula reads from an entry.
type DayInput struct {
	Arrival           *ClockTime
	DrinksSold        int
	SpecialCommission decimal.Decimal
	Bonus             decimal.Decimal
	Malus             decimal.Decimal
}

// DayResult is the formula's output.
type DayResult struct {
	ProratedBase    decimal.Decimal
	LateMinutes     int
	LatenessPenalty decimal.Decimal
	DailySalary     decimal.Decimal
	Revenue         decimal.Decimal
	Commission      decimal.Decimal
	DailyProfit     decimal.Decimal
}

// ProratedBase divides the contract's flat salary over the rule set duration.
func ProratedBase(baseSalary decimal.Decimal, rules RuleSet) decimal.Decimal {
	return baseSalary.Div(decimal.NewFromInt(int64(rules.EffectiveDuration())))
}

// CalculateDay applies the day formula. It performs no I/O.
func CalculateDay(in DayInput, baseSalary decimal.Decimal, rules RuleSet) DayResult {
	drinks := decimal.NewFromInt(int64(in.DrinksSold))

	res := DayResult{
		ProratedBase:    ProratedBase(baseSalary, rules),
		LatenessPenalty: LatenessPenalty(in.Arrival, rules),
		Revenue:         drinks.Mul(rules.DrinkPrice).Add(in.SpecialCommission),
		Commission:      drinks.Mul(rules.StaffCommission),
	}
	if in.Arrival != nil {
		res.LateMinutes = LateMinutes(*in.Arrival, rules.LateCutoff)
	}
	res.DailySalary = res.ProratedBase.Add(in.Bonus).Sub(in.Malus).Sub(res.LatenessPenalty)
	res.DailyProfit = res.Revenue.Sub(res.DailySalary).Sub(res.Commission)
	return res
}

// Input extracts the formula inputs from a stored entry.
func (e *DailyEntry) Input() DayInput {
	return DayInput{
		Arrival:           e.Arrival,
		DrinksSold:        e.DrinksSold,
		SpecialCommission: e.SpecialCommission,
		Bonus:             e.Bonus,
		Malus:             e.Malus,
	}
}

// Apply stores res on the entry and marks it fresh as of at.
func (e *DailyEntry) Apply(res DayResult, at time.Time) {
	e.LatenessPenalty = res.LatenessPenalty
	e.DailySalary = res.DailySalary
	e.DailyCommission = res.Commission
	e.DailyProfit = res.DailyProfit
	e.ComputedAt = &at
}

// Recalculate runs the formula for the entry and stores the results.
func (e *DailyEntry) Recalculate(baseSalary decimal.Decimal, rules RuleSet, at time.Time) DayResult {
	res := CalculateDay(e.Input(), baseSalary, rules)
	e.Apply(res, at)
	return res
}

// =============================================================================
// DRAFT ENTRY - Unsaved input from a caller
// =============================================================================

// DraftEntry is an entry as submitted by a caller, before it is persisted.
type DraftEntry struct {
	Date              time.Time
	Arrival           *ClockTime      `validate:"omitempty"`
	Departure         *ClockTime      `validate:"omitempty"`
	DrinksSold        int             `validate:"gte=0"`
	SpecialCommission decimal.Decimal `validate:"gte=0"`
	Bonus             decimal.Decimal `validate:"gte=0"`
	Malus             decimal.Decimal `validate:"gte=0"`
}

func (d DraftEntry) Input() DayInput {
	return DayInput{
		Arrival:           d.Arrival,
		DrinksSold:        d.DrinksSold,
		SpecialCommission: d.SpecialCommission,
		Bonus:             d.Bonus,
		Malus:             d.Malus,
	}
}

// applyTo overwrites every caller-supplied field of e.
func (d DraftEntry) applyTo(e *DailyEntry) {
	e.Date = Day(d.Date)
	e.Arrival = d.Arrival
	e.Departure = d.Departure
	e.DrinksSold = d.DrinksSold
	e.SpecialCommission = d.SpecialCommission
	e.Bonus = d.Bonus
	e.Malus = d.Malus
}

// =============================================================================
// VALIDATION
// =============================================================================

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	return v
}

// decimalValue lets numeric tags (gte, lte...) apply to decimal fields.
func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return nil
}

func validateClock(field string, c *ClockTime) error {
	if c == nil {
		return nil
	}
	if c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 || c.Second < 0 || c.Second > 59 {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("%02d:%02d:%02d is not a time of day", c.Hour, c.Minute, c.Second)}
	}
	return nil
}

func (e *Engine) validateDraft(d DraftEntry) error {
	if err := e.validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ValidationError{Field: fe.Field(), Reason: fmt.Sprintf("must satisfy %s=%s", fe.Tag(), fe.Param())}
		}
		return &ValidationError{Field: "entry", Reason: err.Error()}
	}
	if err := validateClock("Arrival", d.Arrival); err != nil {
		return err
	}
	return validateClock("Departure", d.Departure)
}
