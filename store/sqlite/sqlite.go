/*
Package sqlite provides a SQLite-backed implementation of payroll.TxStore.

PURPOSE:
  Persists rule sets, contracts, daily entries and materialized contract
  totals. In production, the same patterns apply to PostgreSQL - only
  minor SQL dialect differences (upsert syntax, placeholders).

KEY TABLES:
  rule_sets:       Per-agency rule sets, PRIMARY KEY (name, agency_id)
  contracts:       Contract headers, scoped by agency_id
  daily_entries:   One row per (contract_id, entry_date), upserted
  contract_totals: One row per contract, overwritten on every refresh

STORAGE FORMATS:
  - Money is stored as TEXT (decimal string) so no precision is lost
  - Calendar days are "YYYY-MM-DD", which sorts and compares lexically
  - Timestamps are RFC3339Nano in UTC
  - Clock times are "HH:MM:SS"

BULK QUERIES:
  GetRuleSets, GetTotals and the entry loading behind ListContracts each
  issue exactly one statement regardless of how many keys are requested.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single open connection, so
  ":memory:" databases are shared across calls and a transaction never
  waits on a second connection. Rows are always closed before the next
  statement is issued on that connection.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) and foreign keys on.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := payroll.NewEngine(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - payroll/store.go: Interface definitions
  - payroll/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// Store implements payroll.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection, for health endpoints.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Rule sets: names are only unique within an agency
	CREATE TABLE IF NOT EXISTS rule_sets (
		name TEXT NOT NULL,
		agency_id INTEGER NOT NULL,
		duration_days INTEGER NOT NULL,
		late_cutoff TEXT NOT NULL,
		first_minute_penalty TEXT NOT NULL,
		additional_minute_penalty TEXT NOT NULL,
		drink_price TEXT NOT NULL,
		staff_commission TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (name, agency_id)
	);

	-- Contracts
	CREATE TABLE IF NOT EXISTS contracts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agency_id INTEGER NOT NULL,
		staff_id INTEGER,
		archived_staff_name TEXT NOT NULL DEFAULT '',
		archived_staff_photo TEXT NOT NULL DEFAULT '',
		venue_id INTEGER,
		role TEXT NOT NULL,
		rule_set_name TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		base_salary TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Listing order within an agency (hot path)
	CREATE INDEX IF NOT EXISTS idx_contracts_agency_status_start
		ON contracts(agency_id, status, start_date);

	-- Daily entries: one per contract and day
	CREATE TABLE IF NOT EXISTS daily_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		contract_id INTEGER NOT NULL REFERENCES contracts(id) ON DELETE CASCADE,
		entry_date TEXT NOT NULL,
		arrival TEXT,
		departure TEXT,
		drinks_sold INTEGER NOT NULL DEFAULT 0,
		special_commission TEXT NOT NULL,
		bonus TEXT NOT NULL,
		malus TEXT NOT NULL,
		lateness_penalty TEXT NOT NULL,
		daily_salary TEXT NOT NULL,
		daily_commission TEXT NOT NULL,
		daily_profit TEXT NOT NULL,
		computed_at TEXT,
		UNIQUE(contract_id, entry_date)
	);

	-- Materialized totals: one row per contract
	CREATE TABLE IF NOT EXISTS contract_totals (
		contract_id INTEGER PRIMARY KEY REFERENCES contracts(id) ON DELETE CASCADE,
		total_salary TEXT NOT NULL,
		total_commission TEXT NOT NULL,
		total_profit TEXT NOT NULL,
		days_worked INTEGER NOT NULL,
		total_drinks INTEGER NOT NULL,
		total_special_commission TEXT NOT NULL,
		last_updated TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (payroll.TxStore interface)
// =============================================================================

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store payroll.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{conn{q: sqlTx}}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore runs every call on the open transaction. The parent lock is
// already held by WithTx.
type txStore struct {
	conn
}

func (s *Store) pool() conn { return conn{q: s.db} }

func (s *Store) GetRuleSets(ctx context.Context, keys []payroll.RuleKey) ([]payroll.RuleSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool().GetRuleSets(ctx, keys)
}

func (s *Store) SaveRuleSet(ctx context.Context, rs payroll.RuleSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool().SaveRuleSet(ctx, rs)
}

func (s *Store) GetContract(ctx context.Context, agencyID payroll.AgencyID, id payroll.ContractID) (*payroll.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool().GetContract(ctx, agencyID, id)
}

func (s *Store) ListContracts(ctx context.Context, filter payroll.ContractFilter) ([]payroll.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool().ListContracts(ctx, filter)
}

func (s *Store) SaveContract(ctx context.Context, c *payroll.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool().SaveContract(ctx, c)
}

func (s *Store) SaveEntry(ctx context.Context, e *payroll.DailyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool().SaveEntry(ctx, e)
}

func (s *Store) SaveEntryResults(ctx context.Context, entries []payroll.DailyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool().SaveEntryResults(ctx, entries)
}

func (s *Store) DeleteEntry(ctx context.Context, contractID payroll.ContractID, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool().DeleteEntry(ctx, contractID, date)
}

func (s *Store) GetTotals(ctx context.Context, ids []payroll.ContractID) ([]payroll.ContractTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool().GetTotals(ctx, ids)
}

func (s *Store) SaveTotals(ctx context.Context, totals []payroll.ContractTotals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool().SaveTotals(ctx, totals)
}

func (s *Store) ListAgencies(ctx context.Context) ([]payroll.AgencyID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool().ListAgencies(ctx)
}

// conn holds the SQL for every operation, independent of whether it runs
// on the pool or inside a transaction.
type conn struct {
	q queryer
}

// =============================================================================
// RULE SETS
// =============================================================================

func (c conn) GetRuleSets(ctx context.Context, keys []payroll.RuleKey) ([]payroll.RuleSet, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		clauses = append(clauses, "(name = ? AND agency_id = ?)")
		args = append(args, k.Name, int64(k.AgencyID))
	}
	query := `
		SELECT name, agency_id, duration_days, late_cutoff, first_minute_penalty,
		       additional_minute_penalty, drink_price, staff_commission, updated_at
		FROM rule_sets
		WHERE ` + strings.Join(clauses, " OR ")

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule sets: %w", err)
	}
	defer rows.Close()

	var out []payroll.RuleSet
	for rows.Next() {
		var (
			rs                                  payroll.RuleSet
			agencyID                            int64
			cutoff, first, extra, price, commis string
			updatedAt                           string
		)
		if err := rows.Scan(&rs.Key.Name, &agencyID, &rs.DurationDays, &cutoff, &first,
			&extra, &price, &commis, &updatedAt); err != nil {
			return nil, err
		}
		var d decoder
		rs.Key.AgencyID = payroll.AgencyID(agencyID)
		rs.LateCutoff = d.clockValue(cutoff)
		rs.FirstMinutePenalty = d.decimal(first)
		rs.AdditionalMinutePenalty = d.decimal(extra)
		rs.DrinkPrice = d.decimal(price)
		rs.StaffCommission = d.decimal(commis)
		rs.UpdatedAt = d.timestamp(updatedAt)
		if d.err != nil {
			return nil, fmt.Errorf("rule set %s: %w", rs.Key, d.err)
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

func (c conn) SaveRuleSet(ctx context.Context, rs payroll.RuleSet) error {
	query := `
		INSERT INTO rule_sets
		(name, agency_id, duration_days, late_cutoff, first_minute_penalty,
		 additional_minute_penalty, drink_price, staff_commission, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, agency_id) DO UPDATE SET
			duration_days = excluded.duration_days,
			late_cutoff = excluded.late_cutoff,
			first_minute_penalty = excluded.first_minute_penalty,
			additional_minute_penalty = excluded.additional_minute_penalty,
			drink_price = excluded.drink_price,
			staff_commission = excluded.staff_commission,
			updated_at = excluded.updated_at
	`

	_, err := c.q.ExecContext(ctx, query,
		rs.Key.Name,
		int64(rs.Key.AgencyID),
		rs.DurationDays,
		formatClock(rs.LateCutoff),
		rs.FirstMinutePenalty.String(),
		rs.AdditionalMinutePenalty.String(),
		rs.DrinkPrice.String(),
		rs.StaffCommission.String(),
		formatTimestamp(rs.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save rule set: %w", err)
	}
	return nil
}

// =============================================================================
// CONTRACTS
// =============================================================================

const contractColumns = `
	id, agency_id, staff_id, archived_staff_name, archived_staff_photo, venue_id,
	role, rule_set_name, start_date, end_date, base_salary, status, created_at`

func (c conn) GetContract(ctx context.Context, agencyID payroll.AgencyID, id payroll.ContractID) (*payroll.Contract, error) {
	cs, err := c.ListContracts(ctx, payroll.ContractFilter{
		AgencyID: agencyID,
		IDs:      []payroll.ContractID{id},
	})
	if err != nil {
		return nil, err
	}
	if len(cs) == 0 {
		return nil, nil
	}
	return &cs[0], nil
}

func (c conn) ListContracts(ctx context.Context, filter payroll.ContractFilter) ([]payroll.Contract, error) {
	where := []string{"agency_id = ?"}
	args := []any{int64(filter.AgencyID)}

	if len(filter.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(filter.IDs))+")")
		for _, id := range filter.IDs {
			args = append(args, int64(id))
		}
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(filter.Statuses))+")")
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	if filter.RuleSetName != "" {
		where = append(where, "rule_set_name = ?")
		args = append(args, filter.RuleSetName)
	}
	if filter.VenueID != nil {
		where = append(where, "venue_id = ?")
		args = append(args, int64(*filter.VenueID))
	}
	if filter.StaffID != nil {
		where = append(where, "staff_id = ?")
		args = append(args, int64(*filter.StaffID))
	}
	if filter.From != nil {
		where = append(where, "end_date >= ?")
		args = append(args, formatDate(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "start_date <= ?")
		args = append(args, formatDate(*filter.To))
	}
	if filter.EndedBefore != nil {
		where = append(where, "end_date < ?")
		args = append(args, formatDate(*filter.EndedBefore))
	}

	query := `SELECT ` + contractColumns + `
		FROM contracts
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY CASE status
			WHEN 'active' THEN 1
			WHEN 'ended' THEN 2
			WHEN 'archived' THEN 3
			ELSE 4 END,
			start_date ASC, id ASC`
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, filter.Offset)
	}

	cs, err := c.queryContracts(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(cs) == 0 {
		return nil, nil
	}
	if err := c.attach(ctx, cs); err != nil {
		return nil, err
	}
	return cs, nil
}

func (c conn) queryContracts(ctx context.Context, query string, args ...any) ([]payroll.Contract, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}
	defer rows.Close()

	var out []payroll.Contract
	for rows.Next() {
		var (
			ct                       payroll.Contract
			id, agencyID             int64
			staffID, venueID         sql.NullInt64
			start, end, base, status string
			createdAt                string
		)
		if err := rows.Scan(&id, &agencyID, &staffID, &ct.ArchivedStaffName, &ct.ArchivedStaffPhoto,
			&venueID, &ct.Role, &ct.RuleSetName, &start, &end, &base, &status, &createdAt); err != nil {
			return nil, err
		}
		var d decoder
		ct.ID = payroll.ContractID(id)
		ct.AgencyID = payroll.AgencyID(agencyID)
		if staffID.Valid {
			sid := payroll.StaffID(staffID.Int64)
			ct.StaffID = &sid
		}
		if venueID.Valid {
			vid := payroll.VenueID(venueID.Int64)
			ct.VenueID = &vid
		}
		ct.StartDate = d.date(start)
		ct.EndDate = d.date(end)
		ct.BaseSalary = d.decimal(base)
		ct.Status = payroll.ContractStatus(status)
		ct.CreatedAt = d.timestamp(createdAt)
		if d.err != nil {
			return nil, fmt.Errorf("contract %d: %w", id, d.err)
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}

// attach loads entries and totals for cs with one query each.
func (c conn) attach(ctx context.Context, cs []payroll.Contract) error {
	ids := make([]payroll.ContractID, len(cs))
	index := make(map[payroll.ContractID]int, len(cs))
	for i := range cs {
		ids[i] = cs[i].ID
		index[cs[i].ID] = i
	}

	entries, err := c.entriesFor(ctx, ids)
	if err != nil {
		return err
	}
	for _, e := range entries {
		i := index[e.ContractID]
		cs[i].Entries = append(cs[i].Entries, e)
	}

	totals, err := c.GetTotals(ctx, ids)
	if err != nil {
		return err
	}
	for _, t := range totals {
		t := t
		cs[index[t.ContractID]].Totals = &t
	}
	return nil
}

func (c conn) SaveContract(ctx context.Context, ct *payroll.Contract) error {
	args := []any{
		int64(ct.AgencyID),
		nullID(ct.StaffID),
		ct.ArchivedStaffName,
		ct.ArchivedStaffPhoto,
		nullID(ct.VenueID),
		ct.Role,
		ct.RuleSetName,
		formatDate(ct.StartDate),
		formatDate(ct.EndDate),
		ct.BaseSalary.String(),
		string(ct.Status),
	}

	if ct.ID == 0 {
		query := `
			INSERT INTO contracts
			(agency_id, staff_id, archived_staff_name, archived_staff_photo, venue_id,
			 role, rule_set_name, start_date, end_date, base_salary, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		res, err := c.q.ExecContext(ctx, query, append(args, formatTimestamp(ct.CreatedAt))...)
		if err != nil {
			return fmt.Errorf("failed to insert contract: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		ct.ID = payroll.ContractID(id)
		return nil
	}

	query := `
		UPDATE contracts SET
			agency_id = ?, staff_id = ?, archived_staff_name = ?, archived_staff_photo = ?,
			venue_id = ?, role = ?, rule_set_name = ?, start_date = ?, end_date = ?,
			base_salary = ?, status = ?
		WHERE id = ?
	`
	res, err := c.q.ExecContext(ctx, query, append(args, int64(ct.ID))...)
	if err != nil {
		return fmt.Errorf("failed to update contract: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("contract %d: %w", ct.ID, payroll.ErrContractNotFound)
	}
	return nil
}

func (c conn) ListAgencies(ctx context.Context) ([]payroll.AgencyID, error) {
	rows, err := c.q.QueryContext(ctx, "SELECT DISTINCT agency_id FROM contracts ORDER BY agency_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query agencies: %w", err)
	}
	defer rows.Close()

	var out []payroll.AgencyID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, payroll.AgencyID(id))
	}
	return out, rows.Err()
}

// =============================================================================
// DAILY ENTRIES
// =============================================================================

func (c conn) entriesFor(ctx context.Context, ids []payroll.ContractID) ([]payroll.DailyEntry, error) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
	}
	query := `
		SELECT id, contract_id, entry_date, arrival, departure, drinks_sold,
		       special_commission, bonus, malus, lateness_penalty, daily_salary,
		       daily_commission, daily_profit, computed_at
		FROM daily_entries
		WHERE contract_id IN (` + placeholders(len(ids)) + `)
		ORDER BY contract_id ASC, entry_date ASC
	`

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily entries: %w", err)
	}
	defer rows.Close()

	var out []payroll.DailyEntry
	for rows.Next() {
		var (
			e                              payroll.DailyEntry
			id, contractID                 int64
			date                           string
			arrival, departure, computedAt sql.NullString
			special, bonus, malus, late    string
			salary, commission, profit     string
		)
		if err := rows.Scan(&id, &contractID, &date, &arrival, &departure, &e.DrinksSold,
			&special, &bonus, &malus, &late, &salary, &commission, &profit, &computedAt); err != nil {
			return nil, err
		}
		var d decoder
		e.ID = payroll.EntryID(id)
		e.ContractID = payroll.ContractID(contractID)
		e.Date = d.date(date)
		e.Arrival = d.clock(arrival)
		e.Departure = d.clock(departure)
		e.SpecialCommission = d.decimal(special)
		e.Bonus = d.decimal(bonus)
		e.Malus = d.decimal(malus)
		e.LatenessPenalty = d.decimal(late)
		e.DailySalary = d.decimal(salary)
		e.DailyCommission = d.decimal(commission)
		e.DailyProfit = d.decimal(profit)
		if computedAt.Valid {
			at := d.timestamp(computedAt.String)
			e.ComputedAt = &at
		}
		if d.err != nil {
			return nil, fmt.Errorf("daily entry %d: %w", id, d.err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (c conn) SaveEntry(ctx context.Context, e *payroll.DailyEntry) error {
	e.Date = payroll.Day(e.Date)
	query := `
		INSERT INTO daily_entries
		(contract_id, entry_date, arrival, departure, drinks_sold, special_commission,
		 bonus, malus, lateness_penalty, daily_salary, daily_commission, daily_profit, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(contract_id, entry_date) DO UPDATE SET
			arrival = excluded.arrival,
			departure = excluded.departure,
			drinks_sold = excluded.drinks_sold,
			special_commission = excluded.special_commission,
			bonus = excluded.bonus,
			malus = excluded.malus,
			lateness_penalty = excluded.lateness_penalty,
			daily_salary = excluded.daily_salary,
			daily_commission = excluded.daily_commission,
			daily_profit = excluded.daily_profit,
			computed_at = excluded.computed_at
	`

	var computedAt sql.NullString
	if e.ComputedAt != nil {
		computedAt = sql.NullString{String: formatTimestamp(*e.ComputedAt), Valid: true}
	}
	_, err := c.q.ExecContext(ctx, query,
		int64(e.ContractID),
		formatDate(e.Date),
		nullClock(e.Arrival),
		nullClock(e.Departure),
		e.DrinksSold,
		e.SpecialCommission.String(),
		e.Bonus.String(),
		e.Malus.String(),
		e.LatenessPenalty.String(),
		e.DailySalary.String(),
		e.DailyCommission.String(),
		e.DailyProfit.String(),
		computedAt,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("entry for contract %d: %w", e.ContractID, payroll.ErrContractNotFound)
		}
		return fmt.Errorf("failed to save daily entry: %w", err)
	}

	// LastInsertId is not reliable when the upsert took the UPDATE branch.
	var id int64
	err = c.q.QueryRowContext(ctx,
		"SELECT id FROM daily_entries WHERE contract_id = ? AND entry_date = ?",
		int64(e.ContractID), formatDate(e.Date),
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to read daily entry id: %w", err)
	}
	e.ID = payroll.EntryID(id)
	return nil
}

// SaveEntryResults updates the computed columns of rows that are still
// stale. Input columns are left alone.
func (c conn) SaveEntryResults(ctx context.Context, entries []payroll.DailyEntry) error {
	query := `
		UPDATE daily_entries
		SET lateness_penalty = ?, daily_salary = ?, daily_commission = ?,
		    daily_profit = ?, computed_at = ?
		WHERE contract_id = ? AND entry_date = ? AND computed_at IS NULL
	`

	for _, e := range entries {
		var computedAt sql.NullString
		if e.ComputedAt != nil {
			computedAt = sql.NullString{String: formatTimestamp(*e.ComputedAt), Valid: true}
		}
		_, err := c.q.ExecContext(ctx, query,
			e.LatenessPenalty.String(),
			e.DailySalary.String(),
			e.DailyCommission.String(),
			e.DailyProfit.String(),
			computedAt,
			int64(e.ContractID),
			formatDate(e.Date),
		)
		if err != nil {
			return fmt.Errorf("failed to save entry results: %w", err)
		}
	}
	return nil
}

func (c conn) DeleteEntry(ctx context.Context, contractID payroll.ContractID, date time.Time) error {
	res, err := c.q.ExecContext(ctx,
		"DELETE FROM daily_entries WHERE contract_id = ? AND entry_date = ?",
		int64(contractID), formatDate(date),
	)
	if err != nil {
		return fmt.Errorf("failed to delete daily entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return payroll.ErrEntryNotFound
	}
	return nil
}

// =============================================================================
// CONTRACT TOTALS
// =============================================================================

func (c conn) GetTotals(ctx context.Context, ids []payroll.ContractID) ([]payroll.ContractTotals, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
	}
	query := `
		SELECT contract_id, total_salary, total_commission, total_profit, days_worked,
		       total_drinks, total_special_commission, last_updated
		FROM contract_totals
		WHERE contract_id IN (` + placeholders(len(ids)) + `)
	`

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contract totals: %w", err)
	}
	defer rows.Close()

	var out []payroll.ContractTotals
	for rows.Next() {
		var (
			t                                 payroll.ContractTotals
			contractID                        int64
			salary, commission, profit, extra string
			updated                           string
		)
		if err := rows.Scan(&contractID, &salary, &commission, &profit, &t.DaysWorked,
			&t.TotalDrinks, &extra, &updated); err != nil {
			return nil, err
		}
		var d decoder
		t.ContractID = payroll.ContractID(contractID)
		t.TotalSalary = d.decimal(salary)
		t.TotalCommission = d.decimal(commission)
		t.TotalProfit = d.decimal(profit)
		t.TotalSpecialCommission = d.decimal(extra)
		t.LastUpdated = d.timestamp(updated)
		if d.err != nil {
			return nil, fmt.Errorf("totals for contract %d: %w", contractID, d.err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (c conn) SaveTotals(ctx context.Context, totals []payroll.ContractTotals) error {
	query := `
		INSERT INTO contract_totals
		(contract_id, total_salary, total_commission, total_profit, days_worked,
		 total_drinks, total_special_commission, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(contract_id) DO UPDATE SET
			total_salary = excluded.total_salary,
			total_commission = excluded.total_commission,
			total_profit = excluded.total_profit,
			days_worked = excluded.days_worked,
			total_drinks = excluded.total_drinks,
			total_special_commission = excluded.total_special_commission,
			last_updated = excluded.last_updated
	`

	for _, t := range totals {
		_, err := c.q.ExecContext(ctx, query,
			int64(t.ContractID),
			t.TotalSalary.String(),
			t.TotalCommission.String(),
			t.TotalProfit.String(),
			t.DaysWorked,
			t.TotalDrinks,
			t.TotalSpecialCommission.String(),
			formatTimestamp(t.LastUpdated),
		)
		if err != nil {
			if isForeignKeyError(err) {
				return fmt.Errorf("totals for contract %d: %w", t.ContractID, payroll.ErrContractNotFound)
			}
			return fmt.Errorf("failed to save contract totals: %w", err)
		}
	}
	return nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"contract_totals", "daily_entries", "contracts", "rule_sets"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

// decoder parses stored text columns, keeping the first error.
type decoder struct {
	err error
}

func (d *decoder) decimal(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil && d.err == nil {
		d.err = err
	}
	return v
}

func (d *decoder) date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil && d.err == nil {
		d.err = err
	}
	return t
}

func (d *decoder) timestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil && d.err == nil {
		d.err = err
	}
	return t
}

func (d *decoder) clockValue(s string) payroll.ClockTime {
	ct, err := payroll.ParseClockTime(s)
	if err != nil && d.err == nil {
		d.err = err
	}
	return ct
}

func (d *decoder) clock(ns sql.NullString) *payroll.ClockTime {
	if !ns.Valid {
		return nil
	}
	ct := d.clockValue(ns.String)
	return &ct
}

func formatDate(t time.Time) string {
	return payroll.Day(t).Format(time.DateOnly)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatClock(c payroll.ClockTime) string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
}

func nullClock(c *payroll.ClockTime) sql.NullString {
	if c == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatClock(*c), Valid: true}
}

func nullID[T ~int64](id *T) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isForeignKeyError(err error) bool {
	var sqlErr sqlite3.Error
	return errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}
