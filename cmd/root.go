package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"hdql/internal/config"
	"hdql/internal/engine"
	"hdql/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	flagDB          string
	flagConfig      string
	flagLogLevel    string
	flagMetricsAddr string
)

// Set by setup before any subcommand runs.
var (
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
)

var rootCmd = &cobra.Command{
	Use:   "hdql",
	Short: "Query entity catalogs with the hyperdimensional query language",
	Long: `hdql loads catalogs of named entity vectors and answers HDQL queries
over them: lookups, relations, similarity search, attribute filters and
constrained optimisation.

Run with no subcommand to open the interactive shell.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE:              runREPL,
}

// Execute runs the root command, printing any error to stderr and exiting 1.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (default "+config.DefaultPath+")")
	pf.StringVar(&flagDB, "db", "", "database path (overrides config)")
	pf.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	pf.StringVar(&flagMetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address, e.g. :9090")
}

func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		c.DB = flagDB
	}
	if flags.Changed("log-level") {
		c.LogLevel = flagLogLevel
	}
	if flags.Changed("metrics-addr") {
		c.MetricsAddr = flagMetricsAddr
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cfg = c

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return nil
}

// openStore opens the configured database, creating it and its directory
// if needed.
func openStore() (*store.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DB), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	st, err := store.Open(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// openExisting opens the configured database and fails if it was never
// created.
func openExisting() (*store.SQLiteStore, error) {
	if _, err := os.Stat(cfg.DB); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("database not found at %s\nRun 'hdql load <path>' first to load a catalog", cfg.DB)
	}
	return openStore()
}

// loadSnapshot reads the whole database into memory. A missing database
// gives an empty store.
func loadSnapshot() (*store.Memory, error) {
	if _, err := os.Stat(cfg.DB); errors.Is(err, os.ErrNotExist) {
		return store.NewMemory(0, nil)
	}
	st, err := openStore()
	if err != nil {
		return nil, err
	}
	defer st.Close()
	snap, err := st.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}
	return snap, nil
}

func newEngine(st store.Store, opts ...engine.Option) *engine.Engine {
	base := []engine.Option{
		engine.WithLogger(logger),
		engine.WithRegistry(registry),
		engine.WithParseCacheSize(cfg.ParseCacheSize),
		engine.WithEntityTypes(cfg.EntityTypes...),
	}
	return engine.New(st, append(base, opts...)...)
}

// topK returns the --top-k flag when given, else the configured default.
func topK(cmd *cobra.Command, flag int) int {
	if cmd.Flags().Changed("top-k") {
		return flag
	}
	return cfg.TopK
}

// serveMetrics exposes the registry on cfg.MetricsAddr until ctx is done.
// It does nothing when no address is configured.
func serveMetrics(ctx context.Context) {
	if cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", "addr", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
