// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu   sync.RWMutex
	data state
}

type state struct {
	ruleSets       map[payroll.RuleKey]payroll.RuleSet
	contracts      map[payroll.ContractID]payroll.Contract
	entries        map[entryKey]payroll.DailyEntry
	totals         map[payroll.ContractID]payroll.ContractTotals
	nextContractID payroll.ContractID
	nextEntryID    payroll.EntryID
}

type entryKey struct {
	ContractID payroll.ContractID
	Date       string
}

func keyFor(id payroll.ContractID, date time.Time) entryKey {
	return entryKey{ContractID: id, Date: payroll.Day(date).Format(time.DateOnly)}
}

func NewMemory() *Memory {
	return &Memory{data: state{
		ruleSets:  make(map[payroll.RuleKey]payroll.RuleSet),
		contracts: make(map[payroll.ContractID]payroll.Contract),
		entries:   make(map[entryKey]payroll.DailyEntry),
		totals:    make(map[payroll.ContractID]payroll.ContractTotals),
	}}
}

func (s *state) clone() state {
	c := state{
		ruleSets:       make(map[payroll.RuleKey]payroll.RuleSet, len(s.ruleSets)),
		contracts:      make(map[payroll.ContractID]payroll.Contract, len(s.contracts)),
		entries:        make(map[entryKey]payroll.DailyEntry, len(s.entries)),
		totals:         make(map[payroll.ContractID]payroll.ContractTotals, len(s.totals)),
		nextContractID: s.nextContractID,
		nextEntryID:    s.nextEntryID,
	}
	for k, v := range s.ruleSets {
		c.ruleSets[k] = v
	}
	for k, v := range s.contracts {
		c.contracts[k] = v
	}
	for k, v := range s.entries {
		c.entries[k] = v
	}
	for k, v := range s.totals {
		c.totals[k] = v
	}
	return c
}

// WithTx runs fn against a private copy of the data and swaps it in only
// if fn succeeds. The write lock is held for the whole unit of work, so
// other callers neither see its writes early nor write underneath it.
func (m *Memory) WithTx(_ context.Context, fn func(payroll.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.data.clone()
	if err := fn(&memTx{data: &work}); err != nil {
		return err
	}
	m.data = work
	return nil
}

// memTx is the store handed to a unit of work. The parent lock is already
// held by WithTx.
type memTx struct {
	data *state
}

func (t *memTx) GetRuleSets(_ context.Context, keys []payroll.RuleKey) ([]payroll.RuleSet, error) {
	return t.data.getRuleSets(keys), nil
}

func (t *memTx) SaveRuleSet(_ context.Context, rs payroll.RuleSet) error {
	t.data.ruleSets[rs.Key] = rs
	return nil
}

func (t *memTx) GetContract(_ context.Context, agencyID payroll.AgencyID, id payroll.ContractID) (*payroll.Contract, error) {
	return t.data.getContract(agencyID, id), nil
}

func (t *memTx) ListContracts(_ context.Context, filter payroll.ContractFilter) ([]payroll.Contract, error) {
	return t.data.listContracts(filter), nil
}

func (t *memTx) SaveContract(_ context.Context, c *payroll.Contract) error {
	return t.data.saveContract(c)
}

func (t *memTx) ListAgencies(_ context.Context) ([]payroll.AgencyID, error) {
	return t.data.listAgencies(), nil
}

func (t *memTx) SaveEntry(_ context.Context, e *payroll.DailyEntry) error {
	return t.data.saveEntry(e)
}

func (t *memTx) SaveEntryResults(_ context.Context, entries []payroll.DailyEntry) error {
	t.data.saveEntryResults(entries)
	return nil
}

func (t *memTx) DeleteEntry(_ context.Context, contractID payroll.ContractID, date time.Time) error {
	return t.data.deleteEntry(contractID, date)
}

func (t *memTx) GetTotals(_ context.Context, ids []payroll.ContractID) ([]payroll.ContractTotals, error) {
	return t.data.getTotals(ids), nil
}

func (t *memTx) SaveTotals(_ context.Context, totals []payroll.ContractTotals) error {
	return t.data.saveTotals(totals)
}

// =============================================================================
// RULE SETS
// =============================================================================

func (m *Memory) GetRuleSets(_ context.Context, keys []payroll.RuleKey) ([]payroll.RuleSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getRuleSets(keys), nil
}

func (m *Memory) SaveRuleSet(_ context.Context, rs payroll.RuleSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.ruleSets[rs.Key] = rs
	return nil
}

func (s *state) getRuleSets(keys []payroll.RuleKey) []payroll.RuleSet {
	var out []payroll.RuleSet
	for _, k := range keys {
		if rs, ok := s.ruleSets[k]; ok {
			out = append(out, rs)
		}
	}
	return out
}

// =============================================================================
// CONTRACTS
// =============================================================================

func (m *Memory) GetContract(_ context.Context, agencyID payroll.AgencyID, id payroll.ContractID) (*payroll.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getContract(agencyID, id), nil
}

func (m *Memory) ListContracts(_ context.Context, filter payroll.ContractFilter) ([]payroll.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listContracts(filter), nil
}

func (m *Memory) SaveContract(_ context.Context, c *payroll.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.saveContract(c)
}

func (m *Memory) ListAgencies(_ context.Context) ([]payroll.AgencyID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.listAgencies(), nil
}

func (s *state) getContract(agencyID payroll.AgencyID, id payroll.ContractID) *payroll.Contract {
	c, ok := s.contracts[id]
	if !ok || c.AgencyID != agencyID {
		return nil
	}
	s.load(&c)
	return &c
}

func (s *state) listContracts(filter payroll.ContractFilter) []payroll.Contract {
	var out []payroll.Contract
	for _, c := range s.contracts {
		if filter.Matches(&c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if oa, ob := payroll.StatusOrder(a.Status), payroll.StatusOrder(b.Status); oa != ob {
			return oa < ob
		}
		if !a.StartDate.Equal(b.StartDate) {
			return a.StartDate.Before(b.StartDate)
		}
		return a.ID < b.ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	for i := range out {
		s.load(&out[i])
	}
	return out
}

// load attaches entries (by date) and totals.
func (s *state) load(c *payroll.Contract) {
	c.Entries = nil
	c.Totals = nil
	for k, e := range s.entries {
		if k.ContractID == c.ID {
			c.Entries = append(c.Entries, e)
		}
	}
	sort.Slice(c.Entries, func(i, j int) bool {
		return c.Entries[i].Date.Before(c.Entries[j].Date)
	})
	if t, ok := s.totals[c.ID]; ok {
		c.Totals = &t
	}
}

func (s *state) saveContract(c *payroll.Contract) error {
	if c.ID == 0 {
		s.nextContractID++
		c.ID = s.nextContractID
	} else if _, ok := s.contracts[c.ID]; !ok {
		return fmt.Errorf("contract %d: %w", c.ID, payroll.ErrContractNotFound)
	}
	header := *c
	header.Entries = nil
	header.Totals = nil
	s.contracts[c.ID] = header
	return nil
}

func (s *state) listAgencies() []payroll.AgencyID {
	seen := make(map[payroll.AgencyID]bool)
	var out []payroll.AgencyID
	for _, c := range s.contracts {
		if !seen[c.AgencyID] {
			seen[c.AgencyID] = true
			out = append(out, c.AgencyID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// =============================================================================
// ENTRIES
// =============================================================================

func (m *Memory) SaveEntry(_ context.Context, e *payroll.DailyEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.saveEntry(e)
}

func (m *Memory) SaveEntryResults(_ context.Context, entries []payroll.DailyEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.saveEntryResults(entries)
	return nil
}

func (m *Memory) DeleteEntry(_ context.Context, contractID payroll.ContractID, date time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.deleteEntry(contractID, date)
}

func (s *state) saveEntry(e *payroll.DailyEntry) error {
	if _, ok := s.contracts[e.ContractID]; !ok {
		return fmt.Errorf("entry for contract %d: %w", e.ContractID, payroll.ErrContractNotFound)
	}
	e.Date = payroll.Day(e.Date)
	k := keyFor(e.ContractID, e.Date)
	if existing, ok := s.entries[k]; ok {
		e.ID = existing.ID
	} else {
		s.nextEntryID++
		e.ID = s.nextEntryID
	}
	s.entries[k] = *e
	return nil
}

// saveEntryResults copies computed fields onto stored entries that are
// still stale. Input fields are never touched.
func (s *state) saveEntryResults(entries []payroll.DailyEntry) {
	for _, e := range entries {
		k := keyFor(e.ContractID, e.Date)
		stored, ok := s.entries[k]
		if !ok || !stored.IsStale() {
			continue
		}
		stored.LatenessPenalty = e.LatenessPenalty
		stored.DailySalary = e.DailySalary
		stored.DailyCommission = e.DailyCommission
		stored.DailyProfit = e.DailyProfit
		stored.ComputedAt = e.ComputedAt
		s.entries[k] = stored
	}
}

func (s *state) deleteEntry(contractID payroll.ContractID, date time.Time) error {
	k := keyFor(contractID, date)
	if _, ok := s.entries[k]; !ok {
		return payroll.ErrEntryNotFound
	}
	delete(s.entries, k)
	return nil
}

// =============================================================================
// TOTALS
// =============================================================================

func (m *Memory) GetTotals(_ context.Context, ids []payroll.ContractID) ([]payroll.ContractTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.getTotals(ids), nil
}

func (m *Memory) SaveTotals(_ context.Context, totals []payroll.ContractTotals) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.saveTotals(totals)
}

func (s *state) getTotals(ids []payroll.ContractID) []payroll.ContractTotals {
	var out []payroll.ContractTotals
	for _, id := range ids {
		if t, ok := s.totals[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

func (s *state) saveTotals(totals []payroll.ContractTotals) error {
	for _, t := range totals {
		if _, ok := s.contracts[t.ContractID]; !ok {
			return fmt.Errorf("totals for contract %d: %w", t.ContractID, payroll.ErrContractNotFound)
		}
	}
	for _, t := range totals {
		s.totals[t.ContractID] = t
	}
	return nil
}
