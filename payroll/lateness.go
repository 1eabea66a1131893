package payroll

import "github.com/shopspring/decimal"

// LateMinutes returns the whole minutes between cutoff and arrival, with
// partial minutes truncated. Arrivals at or before the cutoff are 0.
func LateMinutes(arrival, cutoff ClockTime) int {
	diff := arrival.SecondsOfDay() - cutoff.SecondsOfDay()
	if diff <= 0 {
		return 0
	}
	return diff / 60
}

// LatenessPenalty computes the two-tier lateness deduction:
//
//	0 minutes late  -> 0
//	1 minute late   -> FirstMinutePenalty
//	N minutes late  -> FirstMinutePenalty + (N-1) * AdditionalMinutePenalty
//
// A nil arrival carries no penalty.
func LatenessPenalty(arrival *ClockTime, rules RuleSet) decimal.Decimal {
	if arrival == nil {
		return decimal.Zero
	}
	minutes := LateMinutes(*arrival, rules.LateCutoff)
	if minutes <= 0 {
		return decimal.Zero
	}
	penalty := rules.FirstMinutePenalty
	if minutes > 1 {
		extra := decimal.NewFromInt(int64(minutes - 1))
		penalty = penalty.Add(extra.Mul(rules.AdditionalMinutePenalty))
	}
	return penalty
}
