// Command lendingd runs the demo lending service: an HTTP API over the
// PostgreSQL-backed lending engine, with Prometheus metrics and a periodic
// overdue scan worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/pkleindienst/library-lending-go/example/demo/config"
	"github.com/pkleindienst/library-lending-go/example/demo/httpapi"
	"github.com/pkleindienst/library-lending-go/example/demo/overduescan"
	"github.com/pkleindienst/library-lending-go/example/demo/prommetrics"
	"github.com/pkleindienst/library-lending-go/lending"
	"github.com/pkleindienst/library-lending-go/lending/oteladapters"
	"github.com/pkleindienst/library-lending-go/lending/postgresstore"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "lendingd",
		Short:         "Library lending demo service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	root.AddCommand(newServeCommand(&configPath))
	root.AddCommand(newScanOverdueCommand(&configPath))
	root.AddCommand(newInitSchemaCommand(&configPath))

	return root
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the periodic overdue scan worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func newScanOverdueCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "scan-overdue",
		Short: "Run one overdue sweep and print the overdue loans",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScanOverdue(cmd.Context(), *configPath, cmd.OutOrStdout())
		},
	}
}

func newInitSchemaCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init-schema",
		Short: "Create the database tables and indexes if they do not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInitSchema(cmd.Context(), *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, logger, loadErr := loadConfigAndLogger(configPath)
	if loadErr != nil {
		return loadErr
	}

	pool, store, openErr := openStore(ctx, cfg, logger)
	if openErr != nil {
		return openErr
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	clock := lending.SystemClock{}

	engineOptions := []lending.Option{
		lending.WithLoanPeriod(cfg.LoanPeriod()),
		lending.WithClock(clock),
		lending.WithContextualLogger(logger),
		lending.WithMetrics(prommetrics.NewCollector(registry)),
	}

	if cfg.TracingEnabled {
		engineOptions = append(engineOptions,
			lending.WithTracing(oteladapters.NewTracingCollector(otel.Tracer("lendingd"))))
	}

	engine, engineErr := lending.NewEngine(store, engineOptions...)
	if engineErr != nil {
		return engineErr
	}

	reporting, reportingErr := lending.NewReporting(store)
	if reportingErr != nil {
		return reportingErr
	}

	router := httpapi.NewRouter(httpapi.New(engine, reporting, clock, cfg.FinePerDay, logger))
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	worker := overduescan.New(engine, clock, cfg.ScanInterval.Std(), logger)
	go worker.Run(workerCtx)

	serveErr := make(chan error, 1)

	go func() {
		logger.Info("lendingd listening", "addr", cfg.Addr)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

func runScanOverdue(ctx context.Context, configPath string, out io.Writer) error {
	cfg, logger, loadErr := loadConfigAndLogger(configPath)
	if loadErr != nil {
		return loadErr
	}

	pool, store, openErr := openStore(ctx, cfg, logger)
	if openErr != nil {
		return openErr
	}
	defer pool.Close()

	engine, engineErr := lending.NewEngine(store,
		lending.WithLoanPeriod(cfg.LoanPeriod()),
		lending.WithContextualLogger(logger),
	)
	if engineErr != nil {
		return engineErr
	}

	now := time.Now().UTC()
	count := 0

	for loan, scanErr := range engine.ScanOverdue(ctx, now) {
		if scanErr != nil {
			return scanErr
		}

		count++
		fmt.Fprintf(out, "%s  member=%s  title=%s  due=%s  overdue_days=%d  fine=%.2f\n",
			loan.ID, loan.MemberID, loan.TitleID,
			loan.DueAt.Format(time.RFC3339), loan.DaysOverdue(now),
			loan.FineAmount(now, cfg.FinePerDay))
	}

	fmt.Fprintf(out, "%d overdue loan(s)\n", count)

	return nil
}

func runInitSchema(ctx context.Context, configPath string) error {
	cfg, logger, loadErr := loadConfigAndLogger(configPath)
	if loadErr != nil {
		return loadErr
	}

	pool, store, openErr := openStore(ctx, cfg, logger)
	if openErr != nil {
		return openErr
	}
	defer pool.Close()

	if schemaErr := store.CreateSchema(ctx); schemaErr != nil {
		return schemaErr
	}

	logger.Info("schema ready")

	return nil
}

func loadConfigAndLogger(configPath string) (config.Config, *slog.Logger, error) {
	cfg, loadErr := config.Load(configPath)
	if loadErr != nil {
		return config.Config{}, nil, loadErr
	}

	var level slog.Level
	if parseErr := level.UnmarshalText([]byte(cfg.LogLevel)); parseErr != nil {
		return config.Config{}, nil, fmt.Errorf("invalid log_level %q: %w", cfg.LogLevel, parseErr)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	return cfg, logger, nil
}

// openStore connects a pgx pool and wraps it in the postgres store. slog
// satisfies both logging contracts of the store, so it is wired for SQL debug
// logging as well.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*pgxpool.Pool, *postgresstore.Store, error) {
	pool, poolErr := pgxpool.New(ctx, cfg.PostgresDSN)
	if poolErr != nil {
		return nil, nil, fmt.Errorf("connecting to postgres: %w", poolErr)
	}

	store, storeErr := postgresstore.NewStoreFromPGXPool(pool,
		postgresstore.WithLogger(logger),
		postgresstore.WithContextualLogger(logger),
	)
	if storeErr != nil {
		pool.Close()
		return nil, nil, storeErr
	}

	return pool, store, nil
}
