/*
handlers_test.go - Tests for API handlers

Tests for:
- The contract workflow over HTTP (rule set, contract, entries, totals, payroll)
- Error mapping (400, 404, 409)
- Preview and progress endpoints
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/store"
)

type testServer struct {
	router http.Handler
	engine *payroll.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	engine := payroll.NewEngine(store.NewMemory(),
		payroll.WithLogger(logger),
		payroll.WithClock(func() time.Time { return time.Date(2025, time.March, 20, 12, 0, 0, 0, time.UTC) }),
	)
	return &testServer{
		router: NewRouter(NewHandler(engine, logger), nil),
		engine: engine,
	}
}

// do sends body (if any) as JSON and decodes the response into out.
func (ts *testServer) do(t *testing.T, method, path string, body, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	if out != nil && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func (ts *testServer) setup(t *testing.T) ContractDTO {
	t.Helper()
	code := ts.do(t, http.MethodPost, "/api/agencies/1/rule-sets", RuleSetRequest{
		Name:                    "Standard",
		DurationDays:            10,
		LateCutoff:              "19:30",
		FirstMinutePenalty:      decimal.Zero,
		AdditionalMinutePenalty: decimal.NewFromInt(5),
		DrinkPrice:              decimal.NewFromInt(220),
		StaffCommission:         decimal.NewFromInt(100),
	}, nil)
	require.Equal(t, http.StatusCreated, code)

	staff := int64(7)
	var c ContractDTO
	code = ts.do(t, http.MethodPost, "/api/agencies/1/contracts", CreateContractRequest{
		StaffID:     &staff,
		StaffName:   "Sophie",
		RuleSetName: "Standard",
		StartDate:   "2025-03-01",
		BaseSalary:  decimal.NewFromInt(1000),
	}, &c)
	require.Equal(t, http.StatusCreated, code)
	return c
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

// =============================================================================
// WORKFLOW
// =============================================================================

func TestContractWorkflow(t *testing.T) {
	// GIVEN: A Standard rule set and a contract starting March 1
	ts := newTestServer(t)
	c := ts.setup(t)
	assert.Equal(t, "2025-03-10", c.EndDate)
	assert.Equal(t, "active", c.Status)

	base := "/api/agencies/1/contracts/" + itoa(c.ID)

	// WHEN: Two days are recorded
	var first RecordEntryResponse
	code := ts.do(t, http.MethodPost, base+"/entries", EntryRequest{
		Date: "2025-03-01", Arrival: "19:00", DrinksSold: 5,
		SpecialCommission: decimal.NewFromInt(50), Bonus: decimal.NewFromInt(20),
	}, &first)
	require.Equal(t, http.StatusOK, code)
	assertDec(t, "120", first.Entry.DailySalary)

	var second RecordEntryResponse
	code = ts.do(t, http.MethodPost, base+"/entries", EntryRequest{
		Date: "2025-03-02", Arrival: "19:45", DrinksSold: 3,
		SpecialCommission: decimal.NewFromInt(30), Malus: decimal.NewFromInt(10),
	}, &second)
	require.Equal(t, http.StatusOK, code)

	// THEN: Totals are returned and stored
	assertDec(t, "70", second.Entry.LatenessPenalty)
	assertDec(t, "900", second.Totals.TotalProfit)

	var totals TotalsDTO
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, base+"/totals", nil, &totals))
	assertDec(t, "140", totals.TotalSalary)
	assertDec(t, "800", totals.TotalCommission)
	assert.Equal(t, 8, totals.TotalDrinks)

	var full ContractDTO
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, base, nil, &full))
	assert.Len(t, full.Entries, 2)
	require.NotNil(t, full.Totals)

	// AND: The payroll listing carries the row and its stats
	var report PayrollResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/agencies/1/payroll?status=active", nil, &report))
	require.Len(t, report.Rows, 1)
	assert.Equal(t, 10, report.Rows[0].RuleSetDuration)
	assertDec(t, "900", report.Rows[0].Totals.TotalProfit)
	assert.Equal(t, 1, report.Stats.ContractCount)
	assert.Equal(t, 2, report.Stats.TotalDaysWorked)
	assert.Equal(t, 1, report.Stats.ByStatus["incomplete"].Count)

	// AND: Deleting a day recomputes the totals
	var after TotalsDTO
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodDelete, base+"/entries/2025-03-02", nil, &after))
	assertDec(t, "530", after.TotalProfit)
}

func TestPreviewAndProgress(t *testing.T) {
	ts := newTestServer(t)
	c := ts.setup(t)
	base := "/api/agencies/1/contracts/" + itoa(c.ID)

	var p PreviewDTO
	code := ts.do(t, http.MethodPost, base+"/preview", EntryRequest{Arrival: "19:45", DrinksSold: 2}, &p)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 15, p.LateMinutes)
	assertDec(t, "70", p.LatenessPenalty)
	assertDec(t, "30", p.DailySalary)
	assertDec(t, "210", p.DailyProfit)

	var totals TotalsDTO
	var errResp ErrorResponse
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, base+"/totals", nil, &errResp))
	assert.Equal(t, "Totals not computed yet", errResp.Error)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, base+"/totals", nil, &totals))
	assert.Equal(t, 0, totals.DaysWorked)

	var progress ProgressDTO
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, base+"/progress", nil, &progress))
	assert.Equal(t, 10, progress.ContractDays)
	assert.Equal(t, 0, progress.DaysRecorded)
	assert.Equal(t, "active", progress.DisplayStatus)
}

func TestRuleSetDefaultsWhenMissing(t *testing.T) {
	ts := newTestServer(t)

	var rs RuleSetDTO
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/agencies/3/rule-sets/Unknown", nil, &rs))
	assert.True(t, rs.IsDefault)
	assert.Equal(t, 1, rs.DurationDays)
	assert.Equal(t, "19:30", rs.LateCutoff)
	assertDec(t, "120", rs.DrinkPrice)
}

func TestRecalculate(t *testing.T) {
	ts := newTestServer(t)
	ts.setup(t)

	var resp RecalculateResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/agencies/1/recalculate", nil, &resp))
	assert.Equal(t, 1, resp.Refreshed)
	assert.Empty(t, resp.Error)
}

func TestPayrollLimitBoundedByPageSize(t *testing.T) {
	// GIVEN: Three contracts and a handler refreshing two per request
	ts := newTestServer(t)
	for i := 0; i < 3; i++ {
		_, err := ts.engine.CreateContract(context.Background(), payroll.NewContractRequest{
			AgencyID: 1, StaffName: "Staff", RuleSetName: "Standard",
			StartDate: payroll.Date(2025, time.March, 1+i), BaseSalary: decimal.NewFromInt(1000),
		})
		require.NoError(t, err)
	}
	logger, _ := logtest.NewNullLogger()
	h := NewHandler(ts.engine, logger)
	h.PageSize = 2
	ts.router = NewRouter(h, nil)

	cases := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"?limit=10", 2},
		{"?limit=1", 1},
		{"?offset=2", 1},
	}
	for _, tc := range cases {
		// WHEN: The payroll is listed
		var report PayrollResponse
		require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/agencies/1/payroll"+tc.query, nil, &report))

		// THEN: No more rows than one page are refreshed
		assert.Len(t, report.Rows, tc.want, tc.query)
		assert.Equal(t, tc.want, report.Stats.ContractCount, tc.query)
	}
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestStatusTransitions(t *testing.T) {
	ts := newTestServer(t)
	c := ts.setup(t)
	base := "/api/agencies/1/contracts/" + itoa(c.ID)

	var ended ContractDTO
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, base+"/status", StatusRequest{Status: "ended"}, &ended))
	assert.Equal(t, "ended", ended.Status)

	// Backwards is a conflict
	var errResp ErrorResponse
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, base+"/status", StatusRequest{Status: "active"}, &errResp))
	assert.Equal(t, "Invalid status transition", errResp.Error)

	// Writing to an ended contract is a validation error
	code := ts.do(t, http.MethodPost, base+"/entries", EntryRequest{Date: "2025-03-02"}, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestNotFoundAndBadInput(t *testing.T) {
	ts := newTestServer(t)
	c := ts.setup(t)
	base := "/api/agencies/1/contracts/" + itoa(c.ID)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown contract", http.MethodGet, "/api/agencies/1/contracts/999", nil, http.StatusNotFound},
		{"other agency", http.MethodGet, "/api/agencies/2/contracts/" + itoa(c.ID), nil, http.StatusNotFound},
		{"missing entry", http.MethodDelete, base + "/entries/2025-03-05", nil, http.StatusNotFound},
		{"bad agency", http.MethodGet, "/api/agencies/abc/payroll", nil, http.StatusBadRequest},
		{"bad contract id", http.MethodGet, "/api/agencies/1/contracts/x", nil, http.StatusBadRequest},
		{"bad date", http.MethodPost, base + "/entries", EntryRequest{Date: "03/02/2025"}, http.StatusBadRequest},
		{"bad arrival", http.MethodPost, base + "/entries", EntryRequest{Date: "2025-03-02", Arrival: "7pm"}, http.StatusBadRequest},
		{"outside contract", http.MethodPost, base + "/entries", EntryRequest{Date: "2025-04-01"}, http.StatusBadRequest},
		{"negative drinks", http.MethodPost, base + "/entries", EntryRequest{Date: "2025-03-02", DrinksSold: -1}, http.StatusBadRequest},
		{"bad status filter", http.MethodGet, "/api/agencies/1/payroll?status=paused", nil, http.StatusBadRequest},
		{"bad cutoff", http.MethodPost, "/api/agencies/1/rule-sets", RuleSetRequest{Name: "X", LateCutoff: "late"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var errResp ErrorResponse
			code := ts.do(t, tc.method, tc.path, tc.body, &errResp)
			assert.Equal(t, tc.want, code)
			assert.NotEmpty(t, errResp.Error)
		})
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	var body map[string]string
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/health", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
