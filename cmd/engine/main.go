// Package main runs the bonding-curve trading engine: HTTP API, trade
// settlement, graduation worker, and Prometheus metrics.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"curvelaunch/internal/config"
	"curvelaunch/internal/dex"
	dexstub "curvelaunch/internal/dex/stub"
	"curvelaunch/internal/engine"
	"curvelaunch/internal/fees"
	"curvelaunch/internal/graduation"
	"curvelaunch/internal/jobs"
	"curvelaunch/internal/observability"
	"curvelaunch/internal/server"
	"curvelaunch/internal/storage"
	chstore "curvelaunch/internal/storage/clickhouse"
	"curvelaunch/internal/storage/memory"
	"curvelaunch/internal/storage/migrations"
	pgstore "curvelaunch/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "curvelaunch",
		Short:        "Bonding-curve pricing and trade settlement engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the trading engine",
		RunE:  runServe,
	}

	serveCmd.Flags().String("listen-addr", ":8080", "API listen address")
	serveCmd.Flags().String("metrics-addr", ":9090", "Prometheus metrics address")
	serveCmd.Flags().Bool("use-memory", false, "use in-memory storage instead of PostgreSQL")
	serveCmd.Flags().String("postgres-dsn", "", "PostgreSQL connection string")
	serveCmd.Flags().String("clickhouse-dsn", "", "ClickHouse DSN for the trade history sink (optional)")
	serveCmd.Flags().String("dex-url", "", "DEX pool-creation service base URL")
	serveCmd.Flags().Duration("dex-timeout", 30*time.Second, "DEX call timeout")
	serveCmd.Flags().Bool("dex-stub", false, "use a stub DEX adapter (local development)")
	serveCmd.Flags().Int64("platform-fee-bps", 100, "platform fee in basis points")
	serveCmd.Flags().Int64("creator-fee-bps", 100, "creator fee in basis points")
	serveCmd.Flags().Float64("liquidity-quote-share", 0.80, "reserve share seeded into the pool on graduation")
	serveCmd.Flags().Float64("liquidity-token-share", 0.30, "supply share seeded into the pool on graduation")
	serveCmd.Flags().Duration("trade-timeout", 10*time.Second, "per-trade settlement timeout")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics("")

	stores, cleanup, err := createStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	dexAdapter := createDexAdapter(cfg, logger)

	controller, err := graduation.NewController(graduation.Options{
		Curves:      stores.curves,
		Graduations: stores.graduations,
		DEX:         dexAdapter,
		Logger:      logger.Named("graduation"),
		Metrics:     metrics,
		QuoteShare:  cfg.LiquidityQuoteShare,
		TokenShare:  cfg.LiquidityTokenShare,
	})
	if err != nil {
		return fmt.Errorf("create graduation controller: %w", err)
	}

	queue := jobs.NewQueue(controller, logger.Named("jobs"), jobs.Options{})
	queue.Start(ctx)
	defer queue.Stop()

	feed := server.NewFeed(logger.Named("feed"), metrics)

	eng, err := engine.NewEngine(engine.Options{
		Curves:      stores.curves,
		Trades:      stores.trades,
		Graduations: stores.graduations,
		History:     stores.history,
		Queue:       queue,
		Notifier:    feed,
		Metrics:     metrics,
		Fees: fees.Schedule{
			PlatformBps: cfg.PlatformFeeBps,
			CreatorBps:  cfg.CreatorFeeBps,
		},
		Logger: logger.Named("engine"),
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer eng.Close()

	srv, err := server.New(server.Options{
		Engine:       eng,
		Graduation:   controller,
		Feed:         feed,
		Logger:       logger.Named("http"),
		TradeTimeout: cfg.TradeTimeout,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	go serveMetrics(cfg.MetricsAddr, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.ListenAddr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	return nil
}

// engineStores holds the storage implementations the engine runs on.
type engineStores struct {
	curves      storage.CurveStore
	trades      storage.TradeRecordStore
	graduations storage.GraduationStore
	history     storage.TradeHistorySink // nil without clickhouse
}

// createStores builds memory or postgres storage, runs migrations, and
// optionally attaches the clickhouse history sink.
func createStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (*engineStores, func(), error) {
	stores := &engineStores{}
	cleanup := func() {}

	if cfg.UseMemory {
		trades := memory.NewTradeRecordStore()
		stores.curves = memory.NewCurveStore(trades)
		stores.trades = trades
		stores.graduations = memory.NewGraduationStore()
		logger.Info("using in-memory storage")
	} else {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}

		trades := pgstore.NewTradeRecordStore(pool)
		stores.curves = pgstore.NewCurveStore(pool)
		stores.trades = trades
		stores.graduations = pgstore.NewGraduationStore(pool)
		cleanup = pool.Close
		logger.Info("connected to postgres")
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		stores.history = chstore.NewTradeHistoryStore(conn)

		prev := cleanup
		cleanup = func() {
			conn.Close()
			prev()
		}
		logger.Info("trade history sink enabled")
	}

	return stores, cleanup, nil
}

// createDexAdapter picks the stub or HTTP DEX integration.
func createDexAdapter(cfg config.Config, logger *zap.Logger) dex.Adapter {
	if cfg.DexStub {
		logger.Warn("using stub dex adapter, graduations will not create real pools")
		return dexstub.NewAdapter()
	}
	return dex.NewHTTPAdapter(cfg.DexURL, cfg.DexTimeout)
}

// serveMetrics exposes Prometheus metrics and liveness.
func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	logger.Info("metrics server listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
