/*
contract.go - Contract lifecycle

STATE MACHINE:
  active -> ended -> archived

  Transitions only move forward. active -> archived is allowed (the step
  through ended is implied); nothing moves backwards and archived is
  terminal. Daily entries may only be written while a contract is active.
*/
package payroll

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CanTransition reports whether a contract may move from s to to.
func (s ContractStatus) CanTransition(to ContractStatus) bool {
	if StatusOrder(to) > 3 || StatusOrder(s) > 3 {
		return false
	}
	return StatusOrder(to) > StatusOrder(s)
}

// Valid reports whether s is a known status.
func (s ContractStatus) Valid() bool {
	return s == ContractActive || s == ContractEnded || s == ContractArchived
}

// NewContractRequest carries what a caller supplies to open a contract.
type NewContractRequest struct {
	AgencyID    AgencyID
	StaffID     *StaffID
	StaffName   string
	VenueID     *VenueID
	Role        string
	RuleSetName string
	StartDate   time.Time
	BaseSalary  decimal.Decimal
}

// CreateContract opens an active contract. The end date is derived from the
// rule set's duration: end = start + duration - 1.
func (e *Engine) CreateContract(ctx context.Context, req NewContractRequest) (Contract, error) {
	if strings.TrimSpace(req.RuleSetName) == "" {
		return Contract{}, &ValidationError{Field: "rule_set", Reason: "required"}
	}
	if req.StartDate.IsZero() {
		return Contract{}, &ValidationError{Field: "start_date", Reason: "required"}
	}
	if req.BaseSalary.IsNegative() {
		return Contract{}, &ValidationError{Field: "base_salary", Reason: "must not be negative"}
	}

	rules, err := e.ResolveRules(ctx, RuleKey{Name: req.RuleSetName, AgencyID: req.AgencyID})
	if err != nil {
		return Contract{}, err
	}

	role := req.Role
	if role == "" {
		role = "Dancer"
	}
	start := Day(req.StartDate)
	c := Contract{
		AgencyID:          req.AgencyID,
		StaffID:           req.StaffID,
		ArchivedStaffName: req.StaffName,
		VenueID:           req.VenueID,
		Role:              role,
		RuleSetName:       req.RuleSetName,
		StartDate:         start,
		EndDate:           start.AddDate(0, 0, rules.EffectiveDuration()-1),
		BaseSalary:        req.BaseSalary,
		Status:            ContractActive,
		CreatedAt:         e.now(),
	}
	if err := e.store.SaveContract(ctx, &c); err != nil {
		return Contract{}, persistenceError("create contract", err)
	}
	return c, nil
}

// TransitionContract moves a contract forward in its lifecycle.
func (e *Engine) TransitionContract(ctx context.Context, agencyID AgencyID, id ContractID, to ContractStatus) (Contract, error) {
	if !to.Valid() {
		return Contract{}, &ValidationError{Field: "status", Reason: "unknown status " + string(to)}
	}

	var out Contract
	err := e.store.WithTx(ctx, func(s Store) error {
		c, err := loadContract(ctx, s, agencyID, id)
		if err != nil {
			return err
		}
		if !c.Status.CanTransition(to) {
			return &TransitionError{ContractID: id, From: c.Status, To: to}
		}
		c.Status = to
		if err := s.SaveContract(ctx, c); err != nil {
			return err
		}
		out = *c
		return nil
	})
	if err != nil {
		return Contract{}, persistenceError("transition contract", err)
	}

	e.log.WithFields(logrus.Fields{
		"module":      "payroll",
		"contract_id": id,
		"agency_id":   agencyID,
		"status":      to,
	}).Info("contract status changed")
	return out, nil
}

// DetachStaff clears the staff reference of a contract whose staff record
// is being deleted, keeping the name and photo for history and stats.
func (e *Engine) DetachStaff(ctx context.Context, agencyID AgencyID, id ContractID, name, photo string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "archived_staff_name", Reason: "required"}
	}
	err := e.store.WithTx(ctx, func(s Store) error {
		c, err := loadContract(ctx, s, agencyID, id)
		if err != nil {
			return err
		}
		c.StaffID = nil
		c.ArchivedStaffName = name
		c.ArchivedStaffPhoto = photo
		return s.SaveContract(ctx, c)
	})
	return persistenceError("detach staff", err)
}

// EndExpiredContracts ends every active contract of the agency whose end
// date is before asOf. It returns the ids that were ended.
func (e *Engine) EndExpiredContracts(ctx context.Context, agencyID AgencyID, asOf time.Time) ([]ContractID, error) {
	var ended []ContractID
	err := e.store.WithTx(ctx, func(s Store) error {
		cs, err := s.ListContracts(ctx, ContractFilter{
			AgencyID:    agencyID,
			Statuses:    []ContractStatus{ContractActive},
			EndedBefore: &asOf,
		})
		if err != nil {
			return err
		}
		for i := range cs {
			cs[i].Status = ContractEnded
			if err := s.SaveContract(ctx, &cs[i]); err != nil {
				return err
			}
			ended = append(ended, cs[i].ID)
		}
		return nil
	})
	if err != nil {
		return nil, persistenceError("end expired contracts", err)
	}
	return ended, nil
}

// =============================================================================
// PROGRESS
// =============================================================================

// Progress describes how far a contract has been recorded.
type Progress struct {
	ContractID      ContractID
	Status          ContractStatus
	ContractDays    int
	DaysRecorded    int
	RuleSetDuration int

	// DisplayStatus is "completed" for an active contract whose every
	// calendar day has an entry, otherwise the status itself. It is
	// derived on every call and never stored.
	DisplayStatus string
}

// ContractProgress reports recording progress for one contract.
func (e *Engine) ContractProgress(ctx context.Context, agencyID AgencyID, id ContractID) (Progress, error) {
	c, err := e.store.GetContract(ctx, agencyID, id)
	if err != nil {
		return Progress{}, persistenceError("get contract", err)
	}
	if c == nil {
		return Progress{}, ErrContractNotFound
	}
	rules, err := e.ResolveRules(ctx, c.RuleKey())
	if err != nil {
		return Progress{}, err
	}

	p := Progress{
		ContractID:      c.ID,
		Status:          c.Status,
		ContractDays:    c.ContractDays(),
		DaysRecorded:    len(c.Entries),
		RuleSetDuration: rules.DurationDays,
		DisplayStatus:   string(c.Status),
	}
	if c.Status == ContractActive && p.DaysRecorded >= p.ContractDays {
		p.DisplayStatus = "completed"
	}
	return p, nil
}
