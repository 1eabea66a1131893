package payroll_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// RECORDING ENTRIES
// =============================================================================

func TestRecordEntry_NominalContractTotals(t *testing.T) {
	// GIVEN: A 1000 base contract under the 10-day rules
	env := newTestEnv(t)
	c := env.newContract(t, 7, "1000")

	// WHEN: The two reference days are recorded
	totals := env.recordNominal(t, c.ID)

	// THEN: Totals are the sums of both days
	assert.Equal(t, c.ID, totals.ContractID)
	assert.Equal(t, 2, totals.DaysWorked)
	assert.Equal(t, 8, totals.TotalDrinks)
	assertDec(t, "140", totals.TotalSalary)
	assertDec(t, "800", totals.TotalCommission)
	assertDec(t, "900", totals.TotalProfit)
	assertDec(t, "80", totals.TotalSpecialCommission)
	assert.Equal(t, fixedNow, totals.LastUpdated)

	// AND: The stored totals and entries match
	stored := env.contract(t, c.ID)
	require.NotNil(t, stored.Totals)
	assert.True(t, totals.SameFigures(*stored.Totals))
	require.Len(t, stored.Entries, 2)
	assertDec(t, "70", stored.Entries[1].LatenessPenalty)
	assertDec(t, "20", stored.Entries[1].DailySalary)
	assert.False(t, stored.Entries[1].IsStale())
}

func TestRecordEntry_SameDateIsUpdated(t *testing.T) {
	env := newTestEnv(t)
	c := env.newContract(t, 7, "1000")
	ctx := context.Background()

	first, err := env.engine.RecordEntry(ctx, agency, c.ID, payroll.DraftEntry{Date: march(3), DrinksSold: 2})
	require.NoError(t, err)

	// WHEN: The same day is recorded again
	second, err := env.engine.RecordEntry(ctx, agency, c.ID, payroll.DraftEntry{Date: march(3), DrinksSold: 4})
	require.NoError(t, err)

	// THEN: One row, updated in place
	assert.Equal(t, first.Entry.ID, second.Entry.ID)
	assert.Equal(t, 1, second.Totals.DaysWorked)
	assert.Equal(t, 4, second.Totals.TotalDrinks)
	assert.Len(t, env.contract(t, c.ID).Entries, 1)
}

func TestRecordEntry_DateOutsideContractRejected(t *testing.T) {
	// GIVEN: A contract running March 1 to March 10
	env := newTestEnv(t)
	c := env.newContract(t, 7, "1000")
	ctx := context.Background()

	for _, date := range []int{0, 11} {
		day := payroll.Date(2025, 3, 1).AddDate(0, 0, date-1)

		// WHEN: Writing outside the bounds
		_, err := env.engine.RecordEntry(ctx, agency, c.ID, payroll.DraftEntry{Date: day, DrinksSold: 1})

		// THEN: Validation error, nothing stored
		var verr *payroll.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "date", verr.Field)
	}
	stored := env.contract(t, c.ID)
	assert.Empty(t, stored.Entries)
	assert.Nil(t, stored.Totals)

	// Both bounds are inclusive
	_, err := env.engine.RecordEntry(ctx, agency, c.ID, payroll.DraftEntry{Date: march(1)})
	assert.NoError(t, err)
	_, err = env.engine.RecordEntry(ctx, agency, c.ID, payroll.DraftEntry{Date: march(10)})
	assert.NoError(t, err)
}

func TestRecordEntry_NonActiveContractRejected(t *testing.T) {
	env := newTestEnv(t)
	c := env.newContract(t, 7, "1000")
	ctx := context.Background()

	_, err := env.engine.TransitionContract(ctx, agency, c.ID, payroll.ContractEnded)
	require.NoError(t, err)

	_, err = env.engine.RecordEntry(ctx, agency, c.ID, payroll.DraftEntry{Date: march(2), DrinksSold: 1})

	var verr *payroll.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "status", verr.Field)
	assert.True(t, payroll.IsClientError(err))
	assert.Empty(t, env.contract(t, c.ID).Entries)
}

func TestRecordEntry_InvalidDraftRejected(t *testing.T) {
	env := newTestEnv(t)
	c := env.newContract(t, 7, "1000")
	ctx := context.Background()

	cases := map[string]payroll.DraftEntry{
		"missing date":    {DrinksSold: 1},
		"negative drinks": {Date: march(2), DrinksSold: -1},
		"negative bonus":  {Date: march(2), Bonus: dec("-5")},
		"negative malus":  {Date: march(2), Malus: dec("-5")},
		"bad arrival":     {Date: march(2), Arrival: &payroll.ClockTime{Hour: 19, Minute: 75}},
	}
	for name, draft := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.engine.RecordEntry(ctx, agency, c.ID, draft)
			assert.ErrorIs(t, err, payroll.ErrValidation)
		})
	}
	assert.Empty(t, env.contract(t, c.ID).Entries)
}

func TestRecordEntry_ContractScopedByAgency(t *testing.T) {
	env := newTestEnv(t)
	c := env.newContract(t, 7, "1000")
	ctx := context.Background()

	_, err := env.engine.RecordEntry(ctx, 2, c.ID, payroll.DraftEntry{Date: march(2)})
	assert.ErrorIs(t, err, payroll.ErrContractNotFound)

	_, err = env.engine.RecordEntry(ctx, agency, 999, payroll.DraftEntry{Date: march(2)})
	assert.ErrorIs(t, err, payroll.ErrContractNotFound)
	assert.True(t, payroll.IsNotFound(err))
}

// =============================================================================
// DELETING ENTRIES
// =============================================================================

func TestDeleteEntry_TotalsRecomputed(t *testing.T) {
	env := newTestEnv(t)
	c := env.newContract(t, 7, "1000")
	env.recordNominal(t, c.ID)

	// WHEN: The late day is removed
	totals, err := env.engine.DeleteEntry(context.Background(), agency, c.ID, march(2))
	require.NoError(t, err)

	// THEN: Only the first day remains
	assert.Equal(t, 1, totals.DaysWorked)
	assert.Equal(t, 5, totals.TotalDrinks)
	assertDec(t, "120", totals.TotalSalary)
	assertDec(t, "530", totals.TotalProfit)
	assert.Len(t, env.contract(t, c.ID).Entries, 1)
}

func TestDeleteEntry_MissingDay(t *testing.T) {
	env := newTestEnv(t)
	c := env.newContract(t, 7, "1000")

	_, err := env.engine.DeleteEntry(context.Background(), agency, c.ID, march(4))
	assert.ErrorIs(t, err, payroll.ErrEntryNotFound)
}

// =============================================================================
// SINGLE-CONTRACT REFRESH
// =============================================================================

func TestComputeOrRefreshTotals_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	c := env.newContract(t, 7, "1000")
	recorded := env.recordNominal(t, c.ID)
	ctx := context.Background()

	first, err := env.engine.ComputeOrRefreshTotals(ctx, agency, c.ID)
	require.NoError(t, err)
	second, err := env.engine.ComputeOrRefreshTotals(ctx, agency, c.ID)
	require.NoError(t, err)

	assert.True(t, recorded.SameFigures(first))
	assert.True(t, first.SameFigures(second))
}

func TestComputeOrRefreshTotals_EmptyContractHasZeroTotals(t *testing.T) {
	env := newTestEnv(t)
	c := env.newContract(t, 7, "1000")

	totals, err := env.engine.ComputeOrRefreshTotals(context.Background(), agency, c.ID)
	require.NoError(t, err)

	assert.Equal(t, 0, totals.DaysWorked)
	assertDec(t, "0", totals.TotalProfit)

	summary, err := env.engine.GetContractSummary(context.Background(), agency, c.ID)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.True(t, totals.SameFigures(*summary))
}

func TestComputeOrRefreshTotals_RuleChangeIsNotRetroactive(t *testing.T) {
	// GIVEN: Entries recorded under a drink price of 220
	env := newTestEnv(t)
	c := env.newContract(t, 7, "1000")
	before := env.recordNominal(t, c.ID)
	ctx := context.Background()

	// WHEN: The agency raises the drink price and totals are refreshed
	rules := standardRules(agency)
	rules.DrinkPrice = dec("300")
	require.NoError(t, env.engine.SaveRuleSet(ctx, rules))
	after, err := env.engine.ComputeOrRefreshTotals(ctx, agency, c.ID)
	require.NoError(t, err)

	// THEN: Already-computed days keep their figures
	assert.True(t, before.SameFigures(after))

	// AND: A new day uses the new price
	res, err := env.engine.RecordEntry(ctx, agency, c.ID, payroll.DraftEntry{Date: march(3), DrinksSold: 1})
	require.NoError(t, err)
	// revenue 300 - salary 100 - commission 100
	assertDec(t, "100", res.Entry.DailyProfit)
}

func TestComputeOrRefreshTotals_StaleEntryRecomputed(t *testing.T) {
	// GIVEN: An entry written without computed results
	env := newTestEnv(t)
	c := env.newContract(t, 7, "15000")
	ctx := context.Background()
	require.NoError(t, env.mem.SaveEntry(ctx, &payroll.DailyEntry{
		ContractID: c.ID,
		Date:       march(4),
		DrinksSold: 12,
	}))

	// WHEN: Totals are refreshed
	totals, err := env.engine.ComputeOrRefreshTotals(ctx, agency, c.ID)
	require.NoError(t, err)

	// THEN: The entry is run through the day formula and written back
	assertDec(t, "1500", totals.TotalSalary)
	assertDec(t, "-60", totals.TotalProfit)
	stored := env.contract(t, c.ID)
	require.Len(t, stored.Entries, 1)
	assert.False(t, stored.Entries[0].IsStale())
	assertDec(t, "1200", stored.Entries[0].DailyCommission)
}

func TestGetContractSummary_NotComputedYet(t *testing.T) {
	env := newTestEnv(t)
	c := env.newContract(t, 7, "1000")

	summary, err := env.engine.GetContractSummary(context.Background(), agency, c.ID)
	require.NoError(t, err)
	assert.Nil(t, summary)

	_, err = env.engine.GetContractSummary(context.Background(), agency, 404)
	assert.ErrorIs(t, err, payroll.ErrContractNotFound)
}

// =============================================================================
// PREVIEW
// =============================================================================

func TestPreviewDailyCalculation_PersistsNothing(t *testing.T) {
	env := newTestEnv(t)
	c := env.newContract(t, 7, "15000")

	p, err := env.engine.PreviewDailyCalculation(context.Background(), c, payroll.DraftEntry{
		Arrival:    clock(19, 45),
		DrinksSold: 12,
	})
	require.NoError(t, err)

	assert.False(t, p.DefaultRules)
	assert.Equal(t, 15, p.LateMinutes)
	assertDec(t, "70", p.LatenessPenalty)
	assertDec(t, "1430", p.DailySalary)
	assertDec(t, "10", p.DailyProfit)

	stored := env.contract(t, c.ID)
	assert.Empty(t, stored.Entries)
	assert.Nil(t, stored.Totals)
}

func TestPreviewDailyCalculation_UnknownRuleSetUsesDefaults(t *testing.T) {
	env := newTestEnv(t)
	draft := payroll.Contract{AgencyID: agency, RuleSetName: "Unconfigured", BaseSalary: dec("500")}

	p, err := env.engine.PreviewDailyCalculation(context.Background(), draft, payroll.DraftEntry{DrinksSold: 2})
	require.NoError(t, err)

	assert.True(t, p.DefaultRules)
	assertDec(t, "500", p.ProratedBase)
	assertDec(t, "240", p.Revenue)
	assertDec(t, "200", p.Commission)
	assertDec(t, "-460", p.DailyProfit)
}
