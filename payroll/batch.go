/*
batch.go - Batch aggregation for many contracts

PURPOSE:
  Refreshes ContractTotals for N contracts with a constant number of store
  round trips. A list or report view over tens to hundreds of contracts
  would otherwise pay one rule lookup and one totals lookup per contract.

ALGORITHM:
  1. Collect the distinct (rule-set name, agency) keys and the contract ids.
     One bulk fetch for rule sets, one bulk fetch for existing totals.
  2. Walk the contracts in memory. Entries must already be loaded by the
     caller (ListContracts does this); nothing here fetches per contract.
     Stored per-entry results are summed as-is; stale entries are run
     through CalculateDay with the rules already in memory.
  3. Write the computed fields of refreshed entries and every totals row,
     then commit once. Only computed columns of rows that are still stale
     are written, so an entry edited since the caller loaded its contracts
     keeps its new inputs and results.

FAILURE POLICY:
  - Anything that goes wrong before the writes (lookup error, panic while
    summing) is a BatchComputeError: it is logged with the contract ids and
    the engine falls back to ComputeOrRefreshTotals per contract. Slower,
    same figures.
  - A failed write or commit is a PersistenceError: the transaction is
    rolled back and the error is returned. Nothing from the batch is
    visible.
*/
package payroll

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/warp/payroll-engine/config"
)

// ComputeOrRefreshTotalsBatch refreshes the totals of every contract in
// contracts and returns them keyed by contract id.
func (e *Engine) ComputeOrRefreshTotalsBatch(ctx context.Context, contracts []Contract) (map[ContractID]ContractTotals, error) {
	if len(contracts) == 0 {
		return map[ContractID]ContractTotals{}, nil
	}

	batch, err := prepareBatch(contracts)
	if err != nil {
		return nil, err
	}
	ids := contractIDs(batch)

	var out map[ContractID]ContractTotals
	err = e.store.WithTx(ctx, func(s Store) error {
		totals, refreshed, err := e.computeBatch(ctx, s, batch, ids)
		if err != nil {
			return &BatchComputeError{ContractIDs: ids, Err: err}
		}

		if len(refreshed) > 0 {
			if err := s.SaveEntryResults(ctx, refreshed); err != nil {
				return &PersistenceError{Op: "save refreshed entries", Err: err}
			}
		}

		rows := make([]ContractTotals, 0, len(batch))
		for _, id := range ids {
			rows = append(rows, totals[id])
		}
		if err := s.SaveTotals(ctx, rows); err != nil {
			return &PersistenceError{Op: "save batch totals", Err: err}
		}

		out = totals
		return nil
	})
	if err == nil {
		return out, nil
	}

	var berr *BatchComputeError
	if errors.As(err, &berr) {
		config.LogError(e.log, "payroll", "ComputeOrRefreshTotalsBatch", "falling back to per-contract refresh",
			logrus.Fields{"contract_ids": berr.ContractIDs}, berr.Err)
		return e.refreshEach(ctx, batch)
	}
	return nil, persistenceError("commit batch totals", err)
}

// computeBatch performs the two bulk lookups and sums every contract in
// memory. It never writes.
func (e *Engine) computeBatch(ctx context.Context, s Store, batch []Contract, ids []ContractID) (totals map[ContractID]ContractTotals, refreshed []DailyEntry, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while computing batch: %v", r)
		}
	}()

	keys := make([]RuleKey, 0, len(batch))
	for i := range batch {
		keys = append(keys, batch[i].RuleKey())
	}
	rules, err := e.resolver(s).ResolveMany(ctx, keys)
	if err != nil {
		return nil, nil, fmt.Errorf("bulk rule lookup: %w", err)
	}

	existing, err := s.GetTotals(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("bulk totals lookup: %w", err)
	}
	known := make(map[ContractID]bool, len(existing))
	for _, t := range existing {
		known[t.ContractID] = true
	}

	now := e.now()
	totals = make(map[ContractID]ContractTotals, len(batch))
	created := 0
	for i := range batch {
		c := &batch[i]
		rs, ok := rules[c.RuleKey()]
		if !ok {
			return nil, nil, fmt.Errorf("contract %d: rules %s not resolved", c.ID, c.RuleKey())
		}
		t, stale := summarize(c, rs, now)
		totals[c.ID] = t
		refreshed = append(refreshed, stale...)
		if !known[c.ID] {
			created++
		}
	}

	e.log.WithFields(logrus.Fields{
		"module":    "payroll",
		"contracts": len(batch),
		"created":   created,
		"refreshed": len(refreshed),
		"rule_sets": len(rules),
	}).Debug("batch totals computed")
	return totals, refreshed, nil
}

// refreshEach is the fallback: the single-contract path, one contract at a
// time. Each contract commits on its own; failures are collected.
func (e *Engine) refreshEach(ctx context.Context, batch []Contract) (map[ContractID]ContractTotals, error) {
	out := make(map[ContractID]ContractTotals, len(batch))
	var errs []error
	for i := range batch {
		c := &batch[i]
		t, err := e.ComputeOrRefreshTotals(ctx, c.AgencyID, c.ID)
		if err != nil {
			config.LogError(e.log, "payroll", "refreshEach", "per-contract refresh failed",
				logrus.Fields{"contract_id": c.ID, "agency_id": c.AgencyID}, err)
			errs = append(errs, fmt.Errorf("contract %d: %w", c.ID, err))
			continue
		}
		out[c.ID] = t
	}
	return out, errors.Join(errs...)
}

// prepareBatch drops duplicate contracts and copies entry slices so that
// in-memory recalculation never leaks into the caller's data.
func prepareBatch(contracts []Contract) ([]Contract, error) {
	seen := make(map[ContractID]bool, len(contracts))
	batch := make([]Contract, 0, len(contracts))
	for _, c := range contracts {
		if c.ID == 0 {
			return nil, &ValidationError{Field: "contract", Reason: "batch contains an unsaved contract"}
		}
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		c.Entries = append([]DailyEntry(nil), c.Entries...)
		batch = append(batch, c)
	}
	return batch, nil
}

func contractIDs(cs []Contract) []ContractID {
	ids := make([]ContractID, len(cs))
	for i := range cs {
		ids[i] = cs[i].ID
	}
	return ids
}
