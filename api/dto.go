/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the payroll domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

FORMATS:
  - Money is a decimal string ("1500.5"); requests also accept numbers
  - Days are "YYYY-MM-DD"
  - Clock times are "HH:MM" or "HH:MM:SS"

SEE ALSO:
  - handlers.go: Uses these types
  - payroll/types.go: Domain types
*/
package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// RULE SETS
// =============================================================================

type RuleSetRequest struct {
	Name                    string          `json:"name"`
	DurationDays            int             `json:"durationDays"`
	LateCutoff              string          `json:"lateCutoff"`
	FirstMinutePenalty      decimal.Decimal `json:"firstMinutePenalty"`
	AdditionalMinutePenalty decimal.Decimal `json:"additionalMinutePenalty"`
	DrinkPrice              decimal.Decimal `json:"drinkPrice"`
	StaffCommission         decimal.Decimal `json:"staffCommission"`
}

type RuleSetDTO struct {
	Name                    string          `json:"name"`
	AgencyID                int64           `json:"agencyId"`
	DurationDays            int             `json:"durationDays"`
	LateCutoff              string          `json:"lateCutoff"`
	FirstMinutePenalty      decimal.Decimal `json:"firstMinutePenalty"`
	AdditionalMinutePenalty decimal.Decimal `json:"additionalMinutePenalty"`
	DrinkPrice              decimal.Decimal `json:"drinkPrice"`
	StaffCommission         decimal.Decimal `json:"staffCommission"`
	IsDefault               bool            `json:"isDefault"`
}

func toRuleSetDTO(rs payroll.RuleSet) RuleSetDTO {
	return RuleSetDTO{
		Name:                    rs.Key.Name,
		AgencyID:                int64(rs.Key.AgencyID),
		DurationDays:            rs.DurationDays,
		LateCutoff:              rs.LateCutoff.String(),
		FirstMinutePenalty:      rs.FirstMinutePenalty,
		AdditionalMinutePenalty: rs.AdditionalMinutePenalty,
		DrinkPrice:              rs.DrinkPrice,
		StaffCommission:         rs.StaffCommission,
		IsDefault:               rs.IsDefault,
	}
}

// =============================================================================
// CONTRACTS
// =============================================================================

type CreateContractRequest struct {
	StaffID     *int64          `json:"staffId,omitempty"`
	StaffName   string          `json:"staffName"`
	VenueID     *int64          `json:"venueId,omitempty"`
	Role        string          `json:"role"`
	RuleSetName string          `json:"ruleSet"`
	StartDate   string          `json:"startDate"`
	BaseSalary  decimal.Decimal `json:"baseSalary"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

type DetachStaffRequest struct {
	StaffName  string `json:"staffName"`
	StaffPhoto string `json:"staffPhoto"`
}

type ContractDTO struct {
	ID                 int64           `json:"id"`
	AgencyID           int64           `json:"agencyId"`
	StaffID            *int64          `json:"staffId,omitempty"`
	ArchivedStaffName  string          `json:"archivedStaffName,omitempty"`
	ArchivedStaffPhoto string          `json:"archivedStaffPhoto,omitempty"`
	VenueID            *int64          `json:"venueId,omitempty"`
	Role               string          `json:"role"`
	RuleSet            string          `json:"ruleSet"`
	StartDate          string          `json:"startDate"`
	EndDate            string          `json:"endDate"`
	BaseSalary         decimal.Decimal `json:"baseSalary"`
	Status             string          `json:"status"`
	Entries            []EntryDTO      `json:"entries,omitempty"`
	Totals             *TotalsDTO      `json:"totals,omitempty"`
}

func toContractDTO(c payroll.Contract) ContractDTO {
	dto := ContractDTO{
		ID:                 int64(c.ID),
		AgencyID:           int64(c.AgencyID),
		ArchivedStaffName:  c.ArchivedStaffName,
		ArchivedStaffPhoto: c.ArchivedStaffPhoto,
		Role:               c.Role,
		RuleSet:            c.RuleSetName,
		StartDate:          formatDay(c.StartDate),
		EndDate:            formatDay(c.EndDate),
		BaseSalary:         c.BaseSalary,
		Status:             string(c.Status),
	}
	if c.StaffID != nil {
		id := int64(*c.StaffID)
		dto.StaffID = &id
	}
	if c.VenueID != nil {
		id := int64(*c.VenueID)
		dto.VenueID = &id
	}
	for _, e := range c.Entries {
		dto.Entries = append(dto.Entries, toEntryDTO(e))
	}
	if c.Totals != nil {
		t := toTotalsDTO(*c.Totals)
		dto.Totals = &t
	}
	return dto
}

type ProgressDTO struct {
	ContractID      int64  `json:"contractId"`
	Status          string `json:"status"`
	DisplayStatus   string `json:"displayStatus"`
	ContractDays    int    `json:"contractDays"`
	DaysRecorded    int    `json:"daysRecorded"`
	RuleSetDuration int    `json:"ruleSetDuration"`
}

// =============================================================================
// DAILY ENTRIES
// =============================================================================

// EntryRequest is the body for recording and previewing a day.
type EntryRequest struct {
	Date              string          `json:"date"`
	Arrival           string          `json:"arrival,omitempty"`
	Departure         string          `json:"departure,omitempty"`
	DrinksSold        int             `json:"drinksSold"`
	SpecialCommission decimal.Decimal `json:"specialCommission"`
	Bonus             decimal.Decimal `json:"bonus"`
	Malus             decimal.Decimal `json:"malus"`
}

// Draft converts the request. A missing date is left zero for the engine
// to reject; preview does not need one.
func (r EntryRequest) Draft() (payroll.DraftEntry, error) {
	d := payroll.DraftEntry{
		DrinksSold:        r.DrinksSold,
		SpecialCommission: r.SpecialCommission,
		Bonus:             r.Bonus,
		Malus:             r.Malus,
	}
	if r.Date != "" {
		date, err := parseDay(r.Date)
		if err != nil {
			return d, err
		}
		d.Date = date
	}
	var err error
	if d.Arrival, err = parseClock(r.Arrival); err != nil {
		return d, fmt.Errorf("arrival: %w", err)
	}
	if d.Departure, err = parseClock(r.Departure); err != nil {
		return d, fmt.Errorf("departure: %w", err)
	}
	return d, nil
}

type EntryDTO struct {
	ID                int64           `json:"id"`
	Date              string          `json:"date"`
	Arrival           string          `json:"arrival,omitempty"`
	Departure         string          `json:"departure,omitempty"`
	DrinksSold        int             `json:"drinksSold"`
	SpecialCommission decimal.Decimal `json:"specialCommission"`
	Bonus             decimal.Decimal `json:"bonus"`
	Malus             decimal.Decimal `json:"malus"`
	LatenessPenalty   decimal.Decimal `json:"latenessPenalty"`
	DailySalary       decimal.Decimal `json:"dailySalary"`
	DailyCommission   decimal.Decimal `json:"dailyCommission"`
	DailyProfit       decimal.Decimal `json:"dailyProfit"`
}

func toEntryDTO(e payroll.DailyEntry) EntryDTO {
	dto := EntryDTO{
		ID:                int64(e.ID),
		Date:              formatDay(e.Date),
		DrinksSold:        e.DrinksSold,
		SpecialCommission: e.SpecialCommission,
		Bonus:             e.Bonus,
		Malus:             e.Malus,
		LatenessPenalty:   e.LatenessPenalty,
		DailySalary:       e.DailySalary,
		DailyCommission:   e.DailyCommission,
		DailyProfit:       e.DailyProfit,
	}
	if e.Arrival != nil {
		dto.Arrival = e.Arrival.String()
	}
	if e.Departure != nil {
		dto.Departure = e.Departure.String()
	}
	return dto
}

type RecordEntryResponse struct {
	Entry  EntryDTO  `json:"entry"`
	Totals TotalsDTO `json:"totals"`
}

type PreviewDTO struct {
	ProratedBase    decimal.Decimal `json:"proratedBase"`
	LateMinutes     int             `json:"lateMinutes"`
	LatenessPenalty decimal.Decimal `json:"latenessPenalty"`
	DailySalary     decimal.Decimal `json:"dailySalary"`
	Revenue         decimal.Decimal `json:"revenue"`
	Commission      decimal.Decimal `json:"commission"`
	DailyProfit     decimal.Decimal `json:"dailyProfit"`
	DefaultRules    bool            `json:"defaultRules"`
}

// =============================================================================
// TOTALS AND PAYROLL
// =============================================================================

type TotalsDTO struct {
	ContractID             int64           `json:"contractId"`
	TotalSalary            decimal.Decimal `json:"totalSalary"`
	TotalCommission        decimal.Decimal `json:"totalCommission"`
	TotalProfit            decimal.Decimal `json:"totalProfit"`
	DaysWorked             int             `json:"daysWorked"`
	TotalDrinks            int             `json:"totalDrinks"`
	TotalSpecialCommission decimal.Decimal `json:"totalSpecialCommission"`
	LastUpdated            time.Time       `json:"lastUpdated"`
}

func toTotalsDTO(t payroll.ContractTotals) TotalsDTO {
	return TotalsDTO{
		ContractID:             int64(t.ContractID),
		TotalSalary:            t.TotalSalary,
		TotalCommission:        t.TotalCommission,
		TotalProfit:            t.TotalProfit,
		DaysWorked:             t.DaysWorked,
		TotalDrinks:            t.TotalDrinks,
		TotalSpecialCommission: t.TotalSpecialCommission,
		LastUpdated:            t.LastUpdated,
	}
}

type PayrollRowDTO struct {
	Contract        ContractDTO `json:"contract"`
	Totals          TotalsDTO   `json:"totals"`
	ContractDays    int         `json:"contractDays"`
	RuleSetDuration int         `json:"ruleSetDuration"`
}

type BreakdownDTO struct {
	Count       int             `json:"count"`
	TotalProfit decimal.Decimal `json:"totalProfit"`
	TotalDays   int             `json:"totalDays"`
}

type StatsDTO struct {
	ContractCount    int                     `json:"contractCount"`
	TotalProfit      decimal.Decimal         `json:"totalProfit"`
	TotalSalary      decimal.Decimal         `json:"totalSalary"`
	TotalCommission  decimal.Decimal         `json:"totalCommission"`
	TotalDrinks      int                     `json:"totalDrinks"`
	TotalDaysWorked  int                     `json:"totalDaysWorked"`
	UniqueStaffCount int                     `json:"uniqueStaffCount"`
	ByType           map[string]BreakdownDTO `json:"byType"`
	ByStatus         map[string]BreakdownDTO `json:"byStatus"`
}

func toStatsDTO(st payroll.Stats) StatsDTO {
	dto := StatsDTO{
		ContractCount:    st.ContractCount,
		TotalProfit:      st.TotalProfit,
		TotalSalary:      st.TotalSalary,
		TotalCommission:  st.TotalCommission,
		TotalDrinks:      st.TotalDrinks,
		TotalDaysWorked:  st.TotalDaysWorked,
		UniqueStaffCount: st.UniqueStaffCount,
		ByType:           make(map[string]BreakdownDTO, len(st.ByType)),
		ByStatus:         make(map[string]BreakdownDTO, len(st.ByStatus)),
	}
	for k, b := range st.ByType {
		dto.ByType[k] = BreakdownDTO{Count: b.Count, TotalProfit: b.TotalProfit, TotalDays: b.TotalDays}
	}
	for k, b := range st.ByStatus {
		dto.ByStatus[string(k)] = BreakdownDTO{Count: b.Count, TotalProfit: b.TotalProfit, TotalDays: b.TotalDays}
	}
	return dto
}

type PayrollResponse struct {
	Rows  []PayrollRowDTO `json:"rows"`
	Stats StatsDTO        `json:"stats"`
}

type RecalculateResponse struct {
	Refreshed int    `json:"refreshed"`
	Error     string `json:"error,omitempty"`
}

// ErrorResponse is the standard error format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

func formatDay(t time.Time) string {
	return t.Format(time.DateOnly)
}

func parseClock(s string) (*payroll.ClockTime, error) {
	if s == "" {
		return nil, nil
	}
	c, err := payroll.ParseClockTime(s)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
