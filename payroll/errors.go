/*
errors.go - Error taxonomy for the payroll engine

ERROR CATEGORIES:
  1. Validation   - bad input or a write against a non-active contract.
                    Rejected before anything is persisted.
  2. Not found    - contract or entry missing within the caller's agency.
  3. Batch        - unexpected failure while computing a batch. Logged with
                    the contract ids, then the engine falls back to the
                    per-contract path. Callers only see it if the fallback
                    fails as well.
  4. Persistence  - a write or the final commit failed. The whole unit of
                    work is rolled back.

  A missing rule set is NOT an error: defaults are substituted (see rules.go).

USAGE:
    if errors.Is(err, payroll.ErrValidation) {
        // 400
    }
*/
package payroll

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation        = errors.New("validation failed")
	ErrContractNotFound  = errors.New("contract not found")
	ErrEntryNotFound     = errors.New("daily entry not found")
	ErrInvalidTransition = errors.New("invalid contract status transition")
	ErrBatchCompute      = errors.New("batch compute failed")
	ErrPersistence       = errors.New("persistence failed")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// TransitionError describes a rejected status change.
type TransitionError struct {
	ContractID ContractID
	From       ContractStatus
	To         ContractStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("contract %d: cannot move from %s to %s", e.ContractID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// BatchComputeError carries the contracts that were part of the failed batch.
type BatchComputeError struct {
	ContractIDs []ContractID
	Err         error
}

func (e *BatchComputeError) Error() string {
	return fmt.Sprintf("batch compute for %d contracts: %v", len(e.ContractIDs), e.Err)
}

func (e *BatchComputeError) Unwrap() []error { return []error{ErrBatchCompute, e.Err} }

// PersistenceError wraps a store failure with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrContractNotFound) ||
		errors.Is(err, ErrEntryNotFound)
}

// persistenceError wraps err unless it already belongs to the taxonomy.
func persistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsClientError(err) || IsNotFound(err) || errors.Is(err, ErrPersistence) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
