package payroll

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/warp/payroll-engine/config"
)

// DefaultPageSize bounds each batch when RecalculateAll pages through an
// agency.
const DefaultPageSize = 100

// PayrollRow is one contract line of a payroll listing.
type PayrollRow struct {
	Contract        Contract
	Totals          ContractTotals
	ContractDays    int
	RuleSetDuration int
}

type PayrollReport struct {
	Rows  []PayrollRow
	Stats Stats
}

// Payroll lists the contracts matching filter, refreshes their totals
// through the batch path and rolls them up. Callers should page large
// agencies with filter.Limit/Offset.
func (e *Engine) Payroll(ctx context.Context, filter ContractFilter) (PayrollReport, error) {
	cs, err := e.ListContracts(ctx, filter)
	if err != nil {
		return PayrollReport{}, err
	}

	totals, err := e.ComputeOrRefreshTotalsBatch(ctx, cs)
	if err != nil && len(totals) == 0 {
		return PayrollReport{}, err
	}
	if err != nil {
		config.LogError(e.log, "payroll", "Payroll", "some contracts could not be refreshed", logrus.Fields{"agency_id": filter.AgencyID}, err)
	}

	keys := make([]RuleKey, 0, len(cs))
	for i := range cs {
		keys = append(keys, cs[i].RuleKey())
	}
	rules, err := e.resolver(e.store).ResolveMany(ctx, keys)
	if err != nil {
		return PayrollReport{}, persistenceError("resolve rules", err)
	}

	report := PayrollReport{Rows: make([]PayrollRow, 0, len(cs))}
	for i := range cs {
		c := &cs[i]
		if t, ok := totals[c.ID]; ok {
			c.Totals = &t
		}
		row := PayrollRow{
			Contract:        *c,
			ContractDays:    c.ContractDays(),
			RuleSetDuration: rules[c.RuleKey()].DurationDays,
		}
		if c.Totals != nil {
			row.Totals = *c.Totals
		}
		report.Rows = append(report.Rows, row)
	}
	report.Stats = rollup(cs, rules, e.now())
	return report, nil
}

// RecalculateAll refreshes every contract of an agency, pageSize contracts
// per batch. It returns how many contracts were refreshed; failures of
// individual pages are joined into the error and do not stop the run.
func (e *Engine) RecalculateAll(ctx context.Context, agencyID AgencyID, pageSize int) (int, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	count := 0
	var errs []error
	for offset := 0; ; offset += pageSize {
		page, err := e.store.ListContracts(ctx, ContractFilter{
			AgencyID: agencyID,
			Limit:    pageSize,
			Offset:   offset,
		})
		if err != nil {
			errs = append(errs, persistenceError("list contracts", err))
			break
		}
		if len(page) == 0 {
			break
		}

		totals, err := e.ComputeOrRefreshTotalsBatch(ctx, page)
		count += len(totals)
		if err != nil {
			config.LogError(e.log, "payroll", "RecalculateAll", "page refresh failed",
				logrus.Fields{"agency_id": agencyID, "offset": offset}, err)
			errs = append(errs, err)
		}
		if len(page) < pageSize {
			break
		}
	}

	e.log.WithFields(logrus.Fields{
		"module":    "payroll",
		"agency_id": agencyID,
		"refreshed": count,
	}).Info("recalculated contracts")
	return count, errors.Join(errs...)
}
