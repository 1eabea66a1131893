/*
store.go - Persistence interface between the engine and the contract store

PURPOSE:
  Defines what the engine needs from persistence. The engine never reaches
  for a database directly; it talks to a Store, and wraps every write path in
  TxStore.WithTx so that readers only ever observe fully-committed state.

KEY INTERFACES:
  RuleRepository: Bulk RuleSet lookup by composite key
  Store:          Contracts (with eager entries), rule sets, entries, totals
  TxStore:        Store + atomic unit of work

BULK LOOKUPS:
  GetRuleSets and GetTotals accept many keys and MUST answer with a single
  round trip. The batch aggregator relies on this to keep its fetch count
  constant regardless of how many contracts it refreshes.

UNIQUENESS:
  - rule sets:       (name, agency)
  - daily entries:   (contract, date) - SaveEntry upserts on it,
                                        SaveEntryResults updates on it
  - contract totals: contract        - SaveTotals overwrites on it

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go:  SQLite via database/sql
  - payroll/store/memory.go: In-memory for tests and dev
*/
package payroll

import (
	"context"
	"time"
)

// RuleRepository resolves rule sets. Missing keys are simply absent from
// the result; it is the resolver's job to substitute defaults.
type RuleRepository interface {
	GetRuleSets(ctx context.Context, keys []RuleKey) ([]RuleSet, error)
}

// Store handles persistence of contracts, entries and totals.
type Store interface {
	RuleRepository

	// SaveRuleSet inserts or replaces the rule set for its key.
	SaveRuleSet(ctx context.Context, rs RuleSet) error

	// GetContract returns the contract with its entries (ordered by date)
	// and totals loaded, or nil if it does not exist within the agency.
	GetContract(ctx context.Context, agencyID AgencyID, id ContractID) (*Contract, error)

	// ListContracts returns matching contracts with entries loaded.
	ListContracts(ctx context.Context, filter ContractFilter) ([]Contract, error)

	// SaveContract inserts (ID == 0, ID is assigned) or updates the
	// contract header. Entries and totals are not touched.
	SaveContract(ctx context.Context, c *Contract) error

	// SaveEntry upserts on (contract, date) and assigns e.ID.
	SaveEntry(ctx context.Context, e *DailyEntry) error

	// SaveEntryResults writes only the computed fields of each entry
	// (penalty, salary, commission, profit, ComputedAt), matched on
	// (contract, date), and only where the stored row is still stale.
	// Rows that are missing or already computed are left as they are.
	SaveEntryResults(ctx context.Context, entries []DailyEntry) error

	// DeleteEntry removes the entry for (contract, date).
	DeleteEntry(ctx context.Context, contractID ContractID, date time.Time) error

	// GetTotals returns the existing totals for any of ids, in one query.
	GetTotals(ctx context.Context, ids []ContractID) ([]ContractTotals, error)

	// SaveTotals overwrites every field of each contract's totals row,
	// creating it if needed.
	SaveTotals(ctx context.Context, totals []ContractTotals) error

	// ListAgencies returns every agency that owns at least one contract.
	ListAgencies(ctx context.Context) ([]AgencyID, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// FILTER
// =============================================================================

// ContractFilter selects contracts for listing. AgencyID is required.
// Results are ordered active, ended, archived, then by start date and id.
type ContractFilter struct {
	AgencyID    AgencyID
	IDs         []ContractID
	Statuses    []ContractStatus
	RuleSetName string
	VenueID     *VenueID
	StaffID     *StaffID

	// From/To keep contracts overlapping [From, To].
	From *time.Time
	To   *time.Time

	// EndedBefore keeps contracts whose end date is strictly before it.
	EndedBefore *time.Time

	Limit  int
	Offset int
}

// Matches applies every predicate except paging.
func (f ContractFilter) Matches(c *Contract) bool {
	if c.AgencyID != f.AgencyID {
		return false
	}
	if len(f.IDs) > 0 && !containsID(f.IDs, c.ID) {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, c.Status) {
		return false
	}
	if f.RuleSetName != "" && c.RuleSetName != f.RuleSetName {
		return false
	}
	if f.VenueID != nil && (c.VenueID == nil || *c.VenueID != *f.VenueID) {
		return false
	}
	if f.StaffID != nil && (c.StaffID == nil || *c.StaffID != *f.StaffID) {
		return false
	}
	if f.From != nil && Day(c.EndDate).Before(Day(*f.From)) {
		return false
	}
	if f.To != nil && Day(c.StartDate).After(Day(*f.To)) {
		return false
	}
	if f.EndedBefore != nil && !Day(c.EndDate).Before(Day(*f.EndedBefore)) {
		return false
	}
	return true
}

// StatusOrder is the listing rank of a status.
func StatusOrder(s ContractStatus) int {
	switch s {
	case ContractActive:
		return 1
	case ContractEnded:
		return 2
	case ContractArchived:
		return 3
	default:
		return 4
	}
}

func containsID(ids []ContractID, id ContractID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func containsStatus(ss []ContractStatus, s ContractStatus) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
