/*
stats.go - Performance rollups across many contracts

PURPOSE:
  Groups an already-loaded collection of contracts for dashboards: overall
  profit and days worked, distinct staff, and breakdowns by rule set and by
  completion.

COMPLETION:
  A contract is complete when days worked >= its rule set's duration. The
  classification is recomputed from current totals and rules on every call
  and never stored, since either can change after a contract ends.

UNIQUE STAFF:
  Keyed by staff id. Contracts whose staff record is gone fall back to the
  archived staff name, so departed staff are still counted exactly once.
*/
package payroll

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type CompletionStatus string

const (
	StatusComplete   CompletionStatus = "complete"
	StatusIncomplete CompletionStatus = "incomplete"
)

type Breakdown struct {
	Count       int
	TotalProfit decimal.Decimal
	TotalDays   int
}

func (b Breakdown) add(profit decimal.Decimal, days int) Breakdown {
	return Breakdown{
		Count:       b.Count + 1,
		TotalProfit: b.TotalProfit.Add(profit),
		TotalDays:   b.TotalDays + days,
	}
}

type Stats struct {
	ContractCount    int
	TotalProfit      decimal.Decimal
	TotalSalary      decimal.Decimal
	TotalCommission  decimal.Decimal
	TotalDrinks      int
	TotalDaysWorked  int
	UniqueStaffCount int
	ByType           map[string]Breakdown
	ByStatus         map[CompletionStatus]Breakdown
}

// GenerateStats rolls up contracts. Stored totals are used when loaded;
// otherwise totals are summed in memory from the loaded entries without
// being persisted. Rules are resolved with a single bulk lookup.
func (e *Engine) GenerateStats(ctx context.Context, contracts []Contract) (Stats, error) {
	keys := make([]RuleKey, 0, len(contracts))
	for i := range contracts {
		keys = append(keys, contracts[i].RuleKey())
	}
	rules, err := e.resolver(e.store).ResolveMany(ctx, keys)
	if err != nil {
		return Stats{}, persistenceError("resolve rules", err)
	}
	return rollup(contracts, rules, e.now()), nil
}

func rollup(contracts []Contract, rules map[RuleKey]RuleSet, at time.Time) Stats {
	st := Stats{
		TotalProfit:     decimal.Zero,
		TotalSalary:     decimal.Zero,
		TotalCommission: decimal.Zero,
		ByType:          make(map[string]Breakdown),
		ByStatus:        make(map[CompletionStatus]Breakdown),
	}
	staff := make(map[string]bool)

	for i := range contracts {
		c := contracts[i]
		rs := rules[c.RuleKey()]

		var t ContractTotals
		if c.Totals != nil {
			t = *c.Totals
		} else {
			c.Entries = append([]DailyEntry(nil), c.Entries...)
			t, _ = summarize(&c, rs, at)
		}

		st.ContractCount++
		st.TotalProfit = st.TotalProfit.Add(t.TotalProfit)
		st.TotalSalary = st.TotalSalary.Add(t.TotalSalary)
		st.TotalCommission = st.TotalCommission.Add(t.TotalCommission)
		st.TotalDrinks += t.TotalDrinks
		st.TotalDaysWorked += t.DaysWorked

		if key := staffKey(&c); key != "" {
			staff[key] = true
		}

		st.ByType[c.RuleSetName] = st.ByType[c.RuleSetName].add(t.TotalProfit, t.DaysWorked)

		status := StatusIncomplete
		if t.DaysWorked >= rs.DurationDays {
			status = StatusComplete
		}
		st.ByStatus[status] = st.ByStatus[status].add(t.TotalProfit, t.DaysWorked)
	}

	st.UniqueStaffCount = len(staff)
	return st
}

// staffKey identifies the person behind a contract, or "" if unknown.
func staffKey(c *Contract) string {
	if c.StaffID != nil {
		return fmt.Sprintf("id:%d", *c.StaffID)
	}
	if name := strings.TrimSpace(c.ArchivedStaffName); name != "" {
		return "archived:" + name
	}
	return ""
}
