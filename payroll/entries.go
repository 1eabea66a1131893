package payroll

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RecordResult is returned by RecordEntry.
type RecordResult struct {
	Entry  DailyEntry
	Totals ContractTotals
}

// RecordEntry validates draft, computes its day results, upserts it on
// (contract, date) and refreshes the contract totals, all in one
// transaction. Writes are only accepted for active contracts and dates
// within [start, end].
func (e *Engine) RecordEntry(ctx context.Context, agencyID AgencyID, contractID ContractID, draft DraftEntry) (RecordResult, error) {
	if draft.Date.IsZero() {
		return RecordResult{}, &ValidationError{Field: "date", Reason: "required"}
	}
	if err := e.validateDraft(draft); err != nil {
		return RecordResult{}, err
	}

	var out RecordResult
	err := e.store.WithTx(ctx, func(s Store) error {
		c, err := loadContract(ctx, s, agencyID, contractID)
		if err != nil {
			return err
		}
		if err := checkWritable(c, draft.Date); err != nil {
			return err
		}
		rules, err := e.resolver(s).Resolve(ctx, c.RuleKey())
		if err != nil {
			return err
		}

		entry := DailyEntry{ContractID: c.ID}
		idx := c.EntryOn(draft.Date)
		if idx >= 0 {
			entry = c.Entries[idx]
		}
		draft.applyTo(&entry)
		entry.Recalculate(c.BaseSalary, rules, e.now())
		if err := s.SaveEntry(ctx, &entry); err != nil {
			return err
		}

		if idx >= 0 {
			c.Entries[idx] = entry
		} else {
			c.Entries = append(c.Entries, entry)
		}
		totals, err := e.refreshContract(ctx, s, c)
		if err != nil {
			return err
		}
		out = RecordResult{Entry: entry, Totals: totals}
		return nil
	})
	if err != nil {
		return RecordResult{}, persistenceError("record entry", err)
	}
	return out, nil
}

// DeleteEntry removes the entry dated date and refreshes the totals.
func (e *Engine) DeleteEntry(ctx context.Context, agencyID AgencyID, contractID ContractID, date time.Time) (ContractTotals, error) {
	var out ContractTotals
	err := e.store.WithTx(ctx, func(s Store) error {
		c, err := loadContract(ctx, s, agencyID, contractID)
		if err != nil {
			return err
		}
		if err := checkWritable(c, date); err != nil {
			return err
		}
		idx := c.EntryOn(date)
		if idx < 0 {
			return ErrEntryNotFound
		}
		if err := s.DeleteEntry(ctx, c.ID, Day(date)); err != nil {
			return err
		}
		c.Entries = append(c.Entries[:idx], c.Entries[idx+1:]...)

		totals, err := e.refreshContract(ctx, s, c)
		if err != nil {
			return err
		}
		out = totals
		return nil
	})
	if err != nil {
		return ContractTotals{}, persistenceError("delete entry", err)
	}
	return out, nil
}

func checkWritable(c *Contract, date time.Time) error {
	if c.Status != ContractActive {
		return &ValidationError{
			Field:  "status",
			Reason: fmt.Sprintf("contract %d is %s; entries can only be written while active", c.ID, c.Status),
		}
	}
	if !c.Covers(date) {
		return &ValidationError{
			Field: "date",
			Reason: fmt.Sprintf("%s is outside the contract period %s to %s",
				Day(date).Format(time.DateOnly), c.StartDate.Format(time.DateOnly), c.EndDate.Format(time.DateOnly)),
		}
	}
	return nil
}

// =============================================================================
// PREVIEW
// =============================================================================

// DailyPreview is the non-persisted result of the day formula.
type DailyPreview struct {
	ProratedBase    decimal.Decimal
	LateMinutes     int
	LatenessPenalty decimal.Decimal
	DailySalary     decimal.Decimal
	Revenue         decimal.Decimal
	Commission      decimal.Decimal
	DailyProfit     decimal.Decimal
	DefaultRules    bool
}

// PreviewDailyCalculation runs the day formula for an unsaved draft. It
// reads the contract's rules and writes nothing.
func (e *Engine) PreviewDailyCalculation(ctx context.Context, contract Contract, draft DraftEntry) (DailyPreview, error) {
	if err := e.validateDraft(draft); err != nil {
		return DailyPreview{}, err
	}
	rules, err := e.ResolveRules(ctx, contract.RuleKey())
	if err != nil {
		return DailyPreview{}, err
	}
	res := CalculateDay(draft.Input(), contract.BaseSalary, rules)
	return DailyPreview{
		ProratedBase:    res.ProratedBase,
		LateMinutes:     res.LateMinutes,
		LatenessPenalty: res.LatenessPenalty,
		DailySalary:     res.DailySalary,
		Revenue:         res.Revenue,
		Commission:      res.Commission,
		DailyProfit:     res.DailyProfit,
		DefaultRules:    rules.IsDefault,
	}, nil
}
