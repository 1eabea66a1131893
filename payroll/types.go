/*
Package payroll provides the contract payroll calculation and aggregation engine.

PURPOSE:
  Turns per-day performance entries recorded against a staff contract into
  per-contract financial totals (salary, commission, profit, drinks), applies
  the tiered lateness penalty, and maintains a materialized ContractTotals row
  that is fully recomputed on every refresh.

KEY CONCEPTS IN THIS FILE (types.go):
  - RuleSet:        Agency-scoped pricing, duration and lateness configuration
  - Contract:       A staff placement at a venue for a bounded date range
  - DailyEntry:     One day's recorded performance within a contract
  - ContractTotals: The materialized aggregate of a contract's entries
  - ClockTime:      A time of day (arrival, departure, lateness cutoff)

DESIGN PRINCIPLES:
  1. Precision: all money is decimal.Decimal, never float64
  2. Explicit scoping: every lookup carries an AgencyID, there is no ambient agency
  3. Full overwrite: totals are recomputed from entries, never patched
  4. Explicit staleness: an entry whose ComputedAt is nil is recomputed, not trusted

SEE ALSO:
  - rules.go:    Rule resolution with documented defaults
  - lateness.go: Lateness penalty calculation
  - daily.go:    Per-day formula shared by every path
  - batch.go:    Bulk aggregation for many contracts
  - stats.go:    Dashboard rollups
*/
package payroll

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AgencyID int64
type ContractID int64
type StaffID int64
type VenueID int64
type EntryID int64

// RuleKey is the composite identity of a RuleSet. Rule set names are only
// unique within one agency.
type RuleKey struct {
	Name     string
	AgencyID AgencyID
}

func (k RuleKey) String() string {
	return fmt.Sprintf("%d/%s", k.AgencyID, k.Name)
}

// =============================================================================
// CLOCK TIME - Time of day without a date
// =============================================================================

// ClockTime is a wall-clock time of day. Arrival and departure are recorded
// without a date; the entry's Date carries the day.
type ClockTime struct {
	Hour   int
	Minute int
	Second int
}

func NewClockTime(hour, minute int) ClockTime {
	return ClockTime{Hour: hour, Minute: minute}
}

// ParseClockTime accepts "HH:MM" or "HH:MM:SS".
func ParseClockTime(s string) (ClockTime, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return ClockTime{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return ClockTime{}, fmt.Errorf("invalid clock time %q: want HH:MM or HH:MM:SS", s)
}

// SecondsOfDay returns the number of seconds since midnight.
func (c ClockTime) SecondsOfDay() int {
	return c.Hour*3600 + c.Minute*60 + c.Second
}

func (c ClockTime) String() string {
	if c.Second != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
	}
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// =============================================================================
// RULE SET - Per-agency configuration for a named contract type
// =============================================================================

type RuleSet struct {
	Key                     RuleKey
	DurationDays            int
	LateCutoff              ClockTime
	FirstMinutePenalty      decimal.Decimal
	AdditionalMinutePenalty decimal.Decimal
	DrinkPrice              decimal.Decimal
	StaffCommission         decimal.Decimal
	UpdatedAt               time.Time

	// IsDefault is set when no explicit rule set exists for Key and the
	// documented defaults were substituted.
	IsDefault bool
}

// EffectiveDuration is the divisor used to prorate the base salary.
// A non-positive configured duration prorates over a single day.
func (r RuleSet) EffectiveDuration() int {
	if r.DurationDays <= 0 {
		return 1
	}
	return r.DurationDays
}

// =============================================================================
// CONTRACT
// =============================================================================

type ContractStatus string

const (
	ContractActive   ContractStatus = "active"
	ContractEnded    ContractStatus = "ended"
	ContractArchived ContractStatus = "archived"
)

type Contract struct {
	ID       ContractID
	AgencyID AgencyID

	// StaffID is nil once the staff record has been deleted. The archived
	// name and photo keep the contract attributable.
	StaffID            *StaffID
	ArchivedStaffName  string
	ArchivedStaffPhoto string

	VenueID     *VenueID
	Role        string
	RuleSetName string
	StartDate   time.Time
	EndDate     time.Time
	BaseSalary  decimal.Decimal
	Status      ContractStatus
	CreatedAt   time.Time

	// Eagerly loaded by the store.
	Entries []DailyEntry
	Totals  *ContractTotals
}

func (c *Contract) RuleKey() RuleKey {
	return RuleKey{Name: c.RuleSetName, AgencyID: c.AgencyID}
}

// ContractDays is the inclusive number of calendar days in the contract.
func (c *Contract) ContractDays() int {
	return int(Day(c.EndDate).Sub(Day(c.StartDate)).Hours()/24) + 1
}

// Covers reports whether date lies within [StartDate, EndDate].
func (c *Contract) Covers(date time.Time) bool {
	d := Day(date)
	return !d.Before(Day(c.StartDate)) && !d.After(Day(c.EndDate))
}

// EntryOn returns the index of the entry recorded on date, or -1.
func (c *Contract) EntryOn(date time.Time) int {
	d := Day(date)
	for i := range c.Entries {
		if Day(c.Entries[i].Date).Equal(d) {
			return i
		}
	}
	return -1
}

// =============================================================================
// DAILY ENTRY
// =============================================================================

type DailyEntry struct {
	ID         EntryID
	ContractID ContractID
	Date       time.Time

	Arrival           *ClockTime
	Departure         *ClockTime
	DrinksSold        int
	SpecialCommission decimal.Decimal
	Bonus             decimal.Decimal
	Malus             decimal.Decimal

	// Stored results of CalculateDay.
	LatenessPenalty decimal.Decimal
	DailySalary     decimal.Decimal
	DailyCommission decimal.Decimal
	DailyProfit     decimal.Decimal
	ComputedAt      *time.Time
}

// IsStale reports whether the stored computed fields must not be trusted.
func (e *DailyEntry) IsStale() bool {
	return e.ComputedAt == nil
}

// =============================================================================
// CONTRACT TOTALS
// =============================================================================

type ContractTotals struct {
	ContractID             ContractID
	TotalSalary            decimal.Decimal
	TotalCommission        decimal.Decimal
	TotalProfit            decimal.Decimal
	DaysWorked             int
	TotalDrinks            int
	TotalSpecialCommission decimal.Decimal
	LastUpdated            time.Time
}

// =============================================================================
// DATE HELPERS
// =============================================================================

// Date returns midnight UTC of the given calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
