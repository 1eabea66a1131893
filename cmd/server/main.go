/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Build the logrus logger
  3. Initialize SQLite store
  4. Create the payroll engine and API handler
  5. Start the recalculation scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS (override the environment):
  -port    HTTP server port (env PORT, default: 8080)
  -db      SQLite database path (env DB_PATH, default: payroll.db)
           Use ":memory:" for in-memory database

ENVIRONMENT:
  LOG_LEVEL, LOG_FORMAT, BATCH_PAGE_SIZE, RECALC_INTERVAL ("0" disables),
  DEFAULT_LATE_CUTOFF, DEFAULT_FIRST_MINUTE_PENALTY,
  DEFAULT_ADDITIONAL_MINUTE_PENALTY, DEFAULT_DRINK_PRICE,
  DEFAULT_STAFF_COMMISSION, CORS_ORIGINS (comma separated)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Environment variables
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	logg := config.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logg.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	defaults, err := payroll.RuleOverrides{
		LateCutoff:              cfg.DefaultCutoff,
		FirstMinutePenalty:      cfg.DefaultFirstMinutePenalty,
		AdditionalMinutePenalty: cfg.DefaultAdditionalMinutePenalty,
		DrinkPrice:              cfg.DefaultDrinkPrice,
		StaffCommission:         cfg.DefaultStaffCommission,
	}.Apply()
	if err != nil {
		logg.Fatalf("Invalid default rules: %v", err)
	}

	engine := payroll.NewEngine(store,
		payroll.WithLogger(logg),
		payroll.WithDefaults(defaults),
	)

	handler := api.NewHandler(engine, logg)
	handler.PageSize = cfg.BatchPageSize

	var origins []string
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		origins = strings.Split(v, ",")
	}
	router := api.NewRouter(handler, origins)

	scheduler := api.NewRecalculationScheduler(engine, logg)
	scheduler.CheckInterval = cfg.RecalcInterval
	scheduler.PageSize = cfg.BatchPageSize
	scheduler.Start()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logg.WithFields(logrus.Fields{"port": *port, "db": *dbPath}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logg.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logg.Errorf("Server forced to shutdown: %v", err)
	}

	logg.Info("server stopped")
}
