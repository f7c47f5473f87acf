/*
main.go - Application entry point

PURPOSE:
  Starts the La Rioja Cuida approval and vacation engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (-config file, CUIDA_* environment)
  2. Build the zap logger
  3. Open the SQLite store (schema auto-migrated)
  4. Load approval policies: file, stored set, or seeded defaults
  5. Wire services, handler and router
  6. Start the escalation scheduler and the HTTP server

COMMAND-LINE FLAGS:
  -config  YAML configuration file (optional)
  -db      SQLite path, overrides database.path
           Use ":memory:" for an in-memory database
  -port    HTTP port, overrides server.port

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the escalation scheduler (waits for a running pass)
  2. Stop accepting new connections
  3. Wait for active requests (server.shutdown_timeout, default 30s)
  4. Close the database

EXAMPLES:
  ./server -config=config.yaml
  CUIDA_LOGGER_FORMAT=console ./server -db=":memory:"

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
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
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rioja-cuida/approval-engine/api"
	"github.com/rioja-cuida/approval-engine/approval"
	"github.com/rioja-cuida/approval-engine/config"
	"github.com/rioja-cuida/approval-engine/factory"
	"github.com/rioja-cuida/approval-engine/store/sqlite"
	"github.com/rioja-cuida/approval-engine/timeoff"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()
	logger.Info("database ready", zap.String("path", cfg.Database.Path))

	// Services
	validator := timeoff.NewValidator(cfg.Validator.Timeoff())
	requests := timeoff.NewRequestService(store, validator, store, logger.Named("requests"))

	policies, err := approval.NewPolicyStore()
	if err != nil {
		return err
	}
	engine := approval.NewEngine(policies,
		approval.WithFallbackLevel(cfg.FallbackLevel()),
		approval.WithDefaultEscalationDays(cfg.Approval.DefaultEscalationDays),
		approval.WithLogger(logger.Named("engine")))
	approvals := approval.NewService(engine, store, policies, requests, store, store, logger.Named("approvals"))

	if err := loadPolicies(ctx, cfg, approvals, logger); err != nil {
		return err
	}

	// Escalation
	scheduler := api.NewEscalationScheduler(approvals, cfg.Approval.EscalationSchedule, logger)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	// HTTP
	handler := api.NewHandler(store, requests, approvals, logger.Named("http"))
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(handler, cfg.Server.AllowedOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// loadPolicies prefers approval.policies_file; otherwise the stored set,
// seeding defaults into an empty database.
func loadPolicies(ctx context.Context, cfg *config.Config, approvals *approval.Service, logger *zap.Logger) error {
	if cfg.Approval.PoliciesFile == "" {
		return approvals.LoadPolicies(ctx, approval.DefaultPolicies())
	}

	policies, err := factory.NewApprovalPolicyFactory().LoadFile(cfg.Approval.PoliciesFile)
	if err != nil {
		return err
	}
	for _, p := range policies {
		if err := approvals.SavePolicy(ctx, approval.SystemActor, p); err != nil {
			return fmt.Errorf("failed to store policy %s: %w", p.ID, err)
		}
	}
	logger.Info("approval policies loaded from file",
		zap.String("path", cfg.Approval.PoliciesFile),
		zap.Int("count", len(policies)))
	return approvals.LoadPolicies(ctx, nil)
}
