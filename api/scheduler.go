/*
scheduler.go - Automated contract maintenance scheduler

PURPOSE:
  Periodically ends contracts whose end date has passed and recalculates
  the totals of every agency, so that listings read fresh figures even
  when no one has written an entry for a while.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each run walks every agency that owns contracts:
      1. EndExpiredContracts(agency, today)
      2. RecalculateAll(agency, PageSize)
  - One agency failing is logged and does not stop the others

CONFIGURATION:
  - CheckInterval: How often to run (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewRecalculationScheduler(engine, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Recalculate endpoint (manual run for one agency)
  - payroll/report.go: RecalculateAll
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/payroll"
)

// RecalculationScheduler handles automated contract maintenance.
type RecalculationScheduler struct {
	Engine        *payroll.Engine
	Log           *logrus.Logger
	CheckInterval time.Duration
	PageSize      int
	Enabled       bool

	// Now returns the current time; tests override it.
	Now func() time.Time

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// RunSummary is what one scheduler pass did.
type RunSummary struct {
	Agencies  int
	Ended     int
	Refreshed int
	Failed    int
}

// NewRecalculationScheduler creates a new scheduler.
func NewRecalculationScheduler(engine *payroll.Engine, log *logrus.Logger) *RecalculationScheduler {
	return &RecalculationScheduler{
		Engine:        engine,
		Log:           log,
		CheckInterval: 1 * time.Hour,
		PageSize:      payroll.DefaultPageSize,
		Enabled:       true,
		Now:           func() time.Time { return time.Now().UTC() },
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (rs *RecalculationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled || rs.CheckInterval <= 0 {
		rs.Log.WithField("module", "scheduler").Info("disabled, not starting")
		return
	}

	if rs.ticker != nil {
		return
	}
	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan bool)
	rs.wg.Add(1)

	go rs.run()

	rs.Log.WithFields(logrus.Fields{
		"module":   "scheduler",
		"interval": rs.CheckInterval.String(),
	}).Info("started")
}

// Stop stops the scheduler.
func (rs *RecalculationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.Log.WithField("module", "scheduler").Info("stopped")
	}
}

func (rs *RecalculationScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.RunNow(context.Background())

	for {
		select {
		case <-rs.ticker.C:
			rs.RunNow(context.Background())
		case <-rs.stop:
			return
		}
	}
}

// RunNow performs one pass over every agency (for testing/admin).
func (rs *RecalculationScheduler) RunNow(ctx context.Context) RunSummary {
	var sum RunSummary

	agencies, err := rs.Engine.ListAgencies(ctx)
	if err != nil {
		config.LogError(rs.Log, "scheduler", "RunNow", "listing agencies", nil, err)
		return sum
	}

	today := payroll.Day(rs.Now())
	for _, agencyID := range agencies {
		sum.Agencies++

		ended, err := rs.Engine.EndExpiredContracts(ctx, agencyID, today)
		if err != nil {
			config.LogError(rs.Log, "scheduler", "RunNow", "ending expired contracts",
				logrus.Fields{"agency_id": agencyID}, err)
			sum.Failed++
			continue
		}
		sum.Ended += len(ended)

		n, err := rs.Engine.RecalculateAll(ctx, agencyID, rs.PageSize)
		sum.Refreshed += n
		if err != nil {
			config.LogError(rs.Log, "scheduler", "RunNow", "recalculating agency",
				logrus.Fields{"agency_id": agencyID}, err)
			sum.Failed++
		}
	}

	if sum.Ended > 0 || sum.Refreshed > 0 || sum.Failed > 0 {
		rs.Log.WithFields(logrus.Fields{
			"module":    "scheduler",
			"agencies":  sum.Agencies,
			"ended":     sum.Ended,
			"refreshed": sum.Refreshed,
			"failed":    sum.Failed,
		}).Info("run completed")
	}
	return sum
}

// GetNextRunTime returns when the next scheduled check will occur.
func (rs *RecalculationScheduler) GetNextRunTime() time.Time {
	return rs.Now().Add(rs.CheckInterval)
}
