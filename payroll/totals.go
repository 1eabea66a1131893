/*
totals.go - Contract totals (single-contract path)

PURPOSE:
  Recomputes a contract's ContractTotals from its entries and overwrites the
  stored row. Totals are never patched incrementally: entries can be
  inserted, edited, deleted or backdated in any order, and only a full
  recompute is correct after an arbitrary sequence of those.

SHARED SUMMATION:
  summarize() is used by this path, by the batch path and by stats, so the
  two refresh paths cannot drift apart. It sums the stored per-entry
  results; only entries flagged stale (ComputedAt == nil) are run through
  CalculateDay first, and those refreshed entries are written back in the
  same transaction.

  Entries that are fresh are never recalculated, so a rule set change does
  not rewrite history.
*/
package payroll

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// summarize computes totals for c. Stale entries in c.Entries are
// recalculated in place and returned so the caller can persist them.
func summarize(c *Contract, rules RuleSet, at time.Time) (ContractTotals, []DailyEntry) {
	t := ContractTotals{
		ContractID:             c.ID,
		TotalSalary:            decimal.Zero,
		TotalCommission:        decimal.Zero,
		TotalProfit:            decimal.Zero,
		TotalSpecialCommission: decimal.Zero,
		LastUpdated:            at,
	}

	var refreshed []DailyEntry
	for i := range c.Entries {
		entry := &c.Entries[i]
		if entry.IsStale() {
			entry.Recalculate(c.BaseSalary, rules, at)
			refreshed = append(refreshed, *entry)
		}
		t.DaysWorked++
		t.TotalDrinks += entry.DrinksSold
		t.TotalSpecialCommission = t.TotalSpecialCommission.Add(entry.SpecialCommission)
		t.TotalSalary = t.TotalSalary.Add(entry.DailySalary)
		t.TotalCommission = t.TotalCommission.Add(entry.DailyCommission)
		t.TotalProfit = t.TotalProfit.Add(entry.DailyProfit)
	}
	return t, refreshed
}

// SameFigures reports whether two totals agree on every numeric field.
func (t ContractTotals) SameFigures(o ContractTotals) bool {
	return t.ContractID == o.ContractID &&
		t.TotalSalary.Equal(o.TotalSalary) &&
		t.TotalCommission.Equal(o.TotalCommission) &&
		t.TotalProfit.Equal(o.TotalProfit) &&
		t.DaysWorked == o.DaysWorked &&
		t.TotalDrinks == o.TotalDrinks &&
		t.TotalSpecialCommission.Equal(o.TotalSpecialCommission)
}

// ComputeOrRefreshTotals recomputes and stores the totals of one contract.
func (e *Engine) ComputeOrRefreshTotals(ctx context.Context, agencyID AgencyID, id ContractID) (ContractTotals, error) {
	var out ContractTotals
	err := e.store.WithTx(ctx, func(s Store) error {
		c, err := loadContract(ctx, s, agencyID, id)
		if err != nil {
			return err
		}
		t, err := e.refreshContract(ctx, s, c)
		if err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return ContractTotals{}, persistenceError("compute totals", err)
	}
	return out, nil
}

// refreshContract resolves rules, recomputes totals for an already-loaded
// contract and writes them (plus any refreshed entries) through s.
func (e *Engine) refreshContract(ctx context.Context, s Store, c *Contract) (ContractTotals, error) {
	rules, err := e.resolver(s).Resolve(ctx, c.RuleKey())
	if err != nil {
		return ContractTotals{}, err
	}

	t, refreshed := summarize(c, rules, e.now())
	if len(refreshed) > 0 {
		if err := s.SaveEntryResults(ctx, refreshed); err != nil {
			return ContractTotals{}, err
		}
	}
	if err := s.SaveTotals(ctx, []ContractTotals{t}); err != nil {
		return ContractTotals{}, err
	}
	c.Totals = &t
	return t, nil
}
