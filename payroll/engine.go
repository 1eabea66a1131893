package payroll

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// Engine is the payroll calculation and aggregation engine. It is
// synchronous: every call runs to completion on the caller's goroutine and
// finishes with an explicit commit or rollback.
type Engine struct {
	store    TxStore
	defaults RuleSet
	log      *logrus.Logger
	now      func() time.Time
	validate *validator.Validate
}

type Option func(*Engine)

// WithLogger sets the logger used for batch failures and lifecycle events.
func WithLogger(l *logrus.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock overrides the time source for ComputedAt / LastUpdated.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithDefaults replaces the rules substituted when no rule set exists.
func WithDefaults(rs RuleSet) Option {
	return func(e *Engine) { e.defaults = rs }
}

func NewEngine(store TxStore, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		defaults: DefaultRuleSet(RuleKey{}),
		log:      logrus.StandardLogger(),
		now:      func() time.Time { return time.Now().UTC() },
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) resolver(repo RuleRepository) *RuleResolver {
	return NewRuleResolver(repo, e.defaults)
}

// ResolveRules returns the rules governing key, defaults included.
func (e *Engine) ResolveRules(ctx context.Context, key RuleKey) (RuleSet, error) {
	rs, err := e.resolver(e.store).Resolve(ctx, key)
	return rs, persistenceError("resolve rules", err)
}

// SaveRuleSet stores rs. Existing entries keep the results computed under
// the previous rules.
func (e *Engine) SaveRuleSet(ctx context.Context, rs RuleSet) error {
	if rs.Key.Name == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if rs.DurationDays <= 0 {
		return &ValidationError{Field: "duration_days", Reason: "must be positive"}
	}
	if err := validateClock("late_cutoff", &rs.LateCutoff); err != nil {
		return err
	}
	rs.IsDefault = false
	rs.UpdatedAt = e.now()
	return persistenceError("save rule set", e.store.SaveRuleSet(ctx, rs))
}

// ListContracts returns the contracts matching filter with entries loaded.
func (e *Engine) ListContracts(ctx context.Context, filter ContractFilter) ([]Contract, error) {
	cs, err := e.store.ListContracts(ctx, filter)
	return cs, persistenceError("list contracts", err)
}

// GetContractSummary returns the stored totals without recomputing them,
// or nil if the contract has never been computed.
func (e *Engine) GetContractSummary(ctx context.Context, agencyID AgencyID, id ContractID) (*ContractTotals, error) {
	c, err := e.store.GetContract(ctx, agencyID, id)
	if err != nil {
		return nil, persistenceError("get contract", err)
	}
	if c == nil {
		return nil, ErrContractNotFound
	}
	return c.Totals, nil
}

// loadContract fetches a contract inside a unit of work.
func loadContract(ctx context.Context, s Store, agencyID AgencyID, id ContractID) (*Contract, error) {
	c, err := s.GetContract(ctx, agencyID, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrContractNotFound
	}
	return c, nil
}

// GetContract returns a contract with its entries and stored totals.
func (e *Engine) GetContract(ctx context.Context, agencyID AgencyID, id ContractID) (Contract, error) {
	c, err := e.store.GetContract(ctx, agencyID, id)
	if err != nil {
		return Contract{}, persistenceError("get contract", err)
	}
	if c == nil {
		return Contract{}, ErrContractNotFound
	}
	return *c, nil
}

// ListAgencies returns every agency that owns contracts.
func (e *Engine) ListAgencies(ctx context.Context) ([]AgencyID, error) {
	ids, err := e.store.ListAgencies(ctx)
	return ids, persistenceError("list agencies", err)
}
