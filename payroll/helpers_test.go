package payroll_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const agency payroll.AgencyID = 1

var fixedNow = time.Date(2025, time.March, 20, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func clock(h, m int) *payroll.ClockTime {
	c := payroll.NewClockTime(h, m)
	return &c
}

func march(day int) time.Time {
	return payroll.Date(2025, time.March, day)
}

// standardRules is the nominal rule set: 10 days, 19:30 cutoff, 0 then 5
// per minute late, drinks sold at 220 with 100 commission.
func standardRules(agencyID payroll.AgencyID) payroll.RuleSet {
	return payroll.RuleSet{
		Key:                     payroll.RuleKey{Name: "Standard", AgencyID: agencyID},
		DurationDays:            10,
		LateCutoff:              payroll.NewClockTime(19, 30),
		FirstMinutePenalty:      decimal.Zero,
		AdditionalMinutePenalty: dec("5"),
		DrinkPrice:              dec("220"),
		StaffCommission:         dec("100"),
	}
}

type testEnv struct {
	engine *payroll.Engine
	mem    *store.Memory
	hook   *logtest.Hook
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := store.NewMemory()
	return newTestEnvWith(t, mem, mem)
}

// newTestEnvWith builds an engine over txs; mem is the underlying memory
// store for direct inspection.
func newTestEnvWith(t *testing.T, txs payroll.TxStore, mem *store.Memory) *testEnv {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	engine := payroll.NewEngine(txs,
		payroll.WithLogger(logger),
		payroll.WithClock(func() time.Time { return fixedNow }),
	)
	require.NoError(t, engine.SaveRuleSet(context.Background(), standardRules(agency)))
	return &testEnv{engine: engine, mem: mem, hook: hook}
}

// newContract opens a Standard contract starting March 1 (ends March 10).
func (env *testEnv) newContract(t *testing.T, staff payroll.StaffID, base string) payroll.Contract {
	t.Helper()
	c, err := env.engine.CreateContract(context.Background(), payroll.NewContractRequest{
		AgencyID:    agency,
		StaffID:     &staff,
		StaffName:   "Staff",
		RuleSetName: "Standard",
		StartDate:   march(1),
		BaseSalary:  dec(base),
	})
	require.NoError(t, err)
	return c
}

// recordNominal records the two reference days: an on-time day with
// 5 drinks, 50 special commission and a 20 bonus, then a day 15 minutes
// late with 3 drinks, 30 special commission and a 10 malus.
func (env *testEnv) recordNominal(t *testing.T, id payroll.ContractID) payroll.ContractTotals {
	t.Helper()
	ctx := context.Background()
	_, err := env.engine.RecordEntry(ctx, agency, id, payroll.DraftEntry{
		Date:              march(1),
		Arrival:           clock(19, 0),
		DrinksSold:        5,
		SpecialCommission: dec("50"),
		Bonus:             dec("20"),
	})
	require.NoError(t, err)
	res, err := env.engine.RecordEntry(ctx, agency, id, payroll.DraftEntry{
		Date:              march(2),
		Arrival:           clock(19, 45),
		DrinksSold:        3,
		SpecialCommission: dec("30"),
		Malus:             dec("10"),
	})
	require.NoError(t, err)
	return res.Totals
}

func (env *testEnv) contract(t *testing.T, id payroll.ContractID) payroll.Contract {
	t.Helper()
	c, err := env.engine.GetContract(context.Background(), agency, id)
	require.NoError(t, err)
	return c
}

func (env *testEnv) errorEntries(funcName string) []*logrus.Entry {
	var out []*logrus.Entry
	for _, e := range env.hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Data["funcName"] == funcName {
			out = append(out, e)
		}
	}
	return out
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}

// =============================================================================
// STORE WRAPPERS
// =============================================================================

// countingStore counts bulk lookups, including those made inside units of
// work.
type countingStore struct {
	payroll.TxStore

	mu          sync.Mutex
	ruleCalls   int
	totalsCalls int
}

func (c *countingStore) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ruleCalls, c.totalsCalls = 0, 0
}

func (c *countingStore) counts() (rules, totals int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ruleCalls, c.totalsCalls
}

func (c *countingStore) GetRuleSets(ctx context.Context, keys []payroll.RuleKey) ([]payroll.RuleSet, error) {
	c.mu.Lock()
	c.ruleCalls++
	c.mu.Unlock()
	return c.TxStore.GetRuleSets(ctx, keys)
}

func (c *countingStore) GetTotals(ctx context.Context, ids []payroll.ContractID) ([]payroll.ContractTotals, error) {
	c.mu.Lock()
	c.totalsCalls++
	c.mu.Unlock()
	return c.TxStore.GetTotals(ctx, ids)
}

func (c *countingStore) WithTx(ctx context.Context, fn func(payroll.Store) error) error {
	return c.TxStore.WithTx(ctx, func(s payroll.Store) error {
		return fn(&countingView{Store: s, parent: c})
	})
}

type countingView struct {
	payroll.Store
	parent *countingStore
}

func (v *countingView) GetRuleSets(ctx context.Context, keys []payroll.RuleKey) ([]payroll.RuleSet, error) {
	v.parent.mu.Lock()
	v.parent.ruleCalls++
	v.parent.mu.Unlock()
	return v.Store.GetRuleSets(ctx, keys)
}

func (v *countingView) GetTotals(ctx context.Context, ids []payroll.ContractID) ([]payroll.ContractTotals, error) {
	v.parent.mu.Lock()
	v.parent.totalsCalls++
	v.parent.mu.Unlock()
	return v.Store.GetTotals(ctx, ids)
}

var errCommit = errors.New("disk I/O error")

// failingCommit runs every unit of work and then fails as a commit would,
// rolling the memory store back.
type failingCommit struct {
	*store.Memory
	enabled bool
}

func (f *failingCommit) WithTx(ctx context.Context, fn func(payroll.Store) error) error {
	return f.Memory.WithTx(ctx, func(s payroll.Store) error {
		if err := fn(s); err != nil {
			return err
		}
		if f.enabled {
			return errCommit
		}
		return nil
	})
}

var errBulkTotals = errors.New("too many SQL variables")

// failingBulkTotals rejects totals lookups for more than one contract,
// inside units of work only.
type failingBulkTotals struct {
	*store.Memory
}

func (f *failingBulkTotals) WithTx(ctx context.Context, fn func(payroll.Store) error) error {
	return f.Memory.WithTx(ctx, func(s payroll.Store) error {
		return fn(&bulkTotalsView{Store: s})
	})
}

type bulkTotalsView struct {
	payroll.Store
}

func (v *bulkTotalsView) GetTotals(ctx context.Context, ids []payroll.ContractID) ([]payroll.ContractTotals, error) {
	if len(ids) > 1 {
		return nil, errBulkTotals
	}
	return v.Store.GetTotals(ctx, ids)
}
