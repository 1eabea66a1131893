package payroll_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
)

func TestGenerateStats_ArchivedStaffCountedOnce(t *testing.T) {
	// GIVEN: Two archived contracts for Sophie, whose staff record is
	// gone, and one contract for staff 7
	env := newTestEnv(t)
	sophie := []payroll.Contract{
		{ID: 1, AgencyID: agency, RuleSetName: "Standard", ArchivedStaffName: "Sophie", Status: payroll.ContractArchived},
		{ID: 2, AgencyID: agency, RuleSetName: "Standard", ArchivedStaffName: " Sophie ", Status: payroll.ContractArchived},
	}
	staff := payroll.StaffID(7)
	other := payroll.Contract{ID: 3, AgencyID: agency, RuleSetName: "Standard", StaffID: &staff, ArchivedStaffName: "Sophie"}

	// WHEN: Stats are generated
	st, err := env.engine.GenerateStats(context.Background(), append(sophie, other))
	require.NoError(t, err)

	// THEN: Sophie counts once, staff 7 once
	assert.Equal(t, 3, st.ContractCount)
	assert.Equal(t, 2, st.UniqueStaffCount)
}

func TestGenerateStats_TotalsAndBreakdowns(t *testing.T) {
	// GIVEN: A complete 2-day Weekend contract and a partial Standard one
	env := newTestEnv(t)
	ctx := context.Background()
	weekend := standardRules(agency)
	weekend.Key.Name = "Weekend"
	weekend.DurationDays = 2
	require.NoError(t, env.engine.SaveRuleSet(ctx, weekend))

	standard := env.newContract(t, 1, "1000")
	env.recordNominal(t, standard.ID)

	staff := payroll.StaffID(2)
	we, err := env.engine.CreateContract(ctx, payroll.NewContractRequest{
		AgencyID: agency, StaffID: &staff, RuleSetName: "Weekend", StartDate: march(1), BaseSalary: dec("200"),
	})
	require.NoError(t, err)
	for _, day := range []int{1, 2} {
		_, err := env.engine.RecordEntry(ctx, agency, we.ID, payroll.DraftEntry{Date: march(day), DrinksSold: 1})
		require.NoError(t, err)
	}

	cs, err := env.engine.ListContracts(ctx, payroll.ContractFilter{AgencyID: agency})
	require.NoError(t, err)

	// WHEN: Stats are generated
	st, err := env.engine.GenerateStats(ctx, cs)
	require.NoError(t, err)

	// THEN: Weekend days: salary 100, revenue 220, commission 100 -> profit 20 each
	assert.Equal(t, 2, st.ContractCount)
	assert.Equal(t, 4, st.TotalDaysWorked)
	assert.Equal(t, 10, st.TotalDrinks)
	assertDec(t, "940", st.TotalProfit)
	assertDec(t, "340", st.TotalSalary)
	assertDec(t, "1000", st.TotalCommission)
	assert.Equal(t, 2, st.UniqueStaffCount)

	assert.Equal(t, 1, st.ByType["Standard"].Count)
	assertDec(t, "900", st.ByType["Standard"].TotalProfit)
	assert.Equal(t, 2, st.ByType["Weekend"].TotalDays)

	assert.Equal(t, 1, st.ByStatus[payroll.StatusComplete].Count)
	assertDec(t, "40", st.ByStatus[payroll.StatusComplete].TotalProfit)
	assert.Equal(t, 1, st.ByStatus[payroll.StatusIncomplete].Count)
	assert.Equal(t, 2, st.ByStatus[payroll.StatusIncomplete].TotalDays)
}

func TestGenerateStats_UnloadedTotalsSummedWithoutWriting(t *testing.T) {
	// GIVEN: A contract whose totals were never stored
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.newContract(t, 1, "15000")
	require.NoError(t, env.mem.SaveEntry(ctx, &payroll.DailyEntry{ContractID: c.ID, Date: march(1), DrinksSold: 12}))
	loaded := env.contract(t, c.ID)
	require.Nil(t, loaded.Totals)

	// WHEN: Stats are generated from the loaded entries
	st, err := env.engine.GenerateStats(ctx, []payroll.Contract{loaded})
	require.NoError(t, err)

	// THEN: Figures come from the day formula and nothing is persisted
	assertDec(t, "-60", st.TotalProfit)
	after := env.contract(t, c.ID)
	assert.Nil(t, after.Totals)
	assert.True(t, after.Entries[0].IsStale())
}

func TestGenerateStats_Empty(t *testing.T) {
	env := newTestEnv(t)

	st, err := env.engine.GenerateStats(context.Background(), nil)
	require.NoError(t, err)

	assert.Zero(t, st.ContractCount)
	assertDec(t, "0", st.TotalProfit)
	assert.Empty(t, st.ByType)
}
