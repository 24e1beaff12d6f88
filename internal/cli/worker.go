package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mukhtiarDev/personal-health-monitor/internal/agent"
	"github.com/mukhtiarDev/personal-health-monitor/internal/config"
	"github.com/mukhtiarDev/personal-health-monitor/internal/coordinator"
	"github.com/mukhtiarDev/personal-health-monitor/internal/metrics"
	"github.com/mukhtiarDev/personal-health-monitor/internal/server"
	"github.com/mukhtiarDev/personal-health-monitor/internal/storage"
	"github.com/mukhtiarDev/personal-health-monitor/internal/store"
)

var workerOnce bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the analyzer/escalator loop",
	Long: `Run the coordinator: classify new readings, raise approval requests for
critical ones and escalate approved requests, then sleep for
worker_interval and repeat until SIGINT or SIGTERM.

The worker also serves gRPC health on grpc_port and Prometheus metrics on
http_port. With --once a single cycle runs and the command exits non-zero
if either agent failed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadEnv(false)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck // best-effort flush
		return runWorker(cmd.Context(), cfg, logger, workerOnce)
	},
}

func init() {
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "run a single cycle and exit")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(parent context.Context, cfg *config.Config, logger *zap.Logger, once bool) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting worker",
		zap.Float64("warn_threshold", cfg.HeartRateAnomalyThreshold),
		zap.Float64("critical_threshold", cfg.HeartRateCriticalThreshold),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Bool("once", once),
	)

	st, err := store.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres unavailable", zap.Error(err))
	}
	defer func() { _ = st.Close() }()
	if err := st.Migrate(ctx); err != nil {
		logger.Fatal("schema migration failed", zap.Error(err))
	}
	logger.Info("postgres connected")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	mirror := newMirror(cfg.ClickHouseDSN, logger)
	defer mirror.Close()
	if ch, ok := mirror.(*storage.ClickHouseWriter); ok {
		metrics.RegisterMirrorDrops(reg, ch.Dropped)
	}

	analyzer := agent.NewAnalyzer(agent.AnalyzerConfig{
		Metrics:    st,
		Approvals:  st,
		Audit:      st,
		Tx:         st,
		Thresholds: cfg.Thresholds(),
		Mirror:     mirror,
		Logger:     logger,
	})
	escalator := agent.NewEscalator(agent.EscalatorConfig{
		Approvals:  st,
		Audit:      st,
		Tx:         st,
		Notifier:   agent.NewLogNotifier(logger),
		ClaimLease: cfg.EscalationLease,
		Mirror:     mirror,
		Logger:     logger,
	})

	health := server.NewHealthServer(logger)
	coord, err := coordinator.New(coordinator.Config{
		Analyzer:  analyzer,
		Escalator: escalator,
		Interval:  cfg.WorkerInterval,
		Metrics:   m,
		Observers: []coordinator.StateObserver{health},
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	if once {
		res := coord.RunOnce(ctx)
		if res.Failed() {
			return fmt.Errorf("cycle %s failed: %w", res.ID, errors.Join(res.Analyzer.Err, res.Escalator.Err))
		}
		return nil
	}

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	go func() {
		if err := health.Serve(lis); err != nil {
			logger.Error("grpc health server failed", zap.Error(err))
		}
	}()
	defer health.Stop()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("metrics server listening", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	runErr := coord.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", zap.Error(err))
	}

	logger.Info("worker stopped")
	return runErr
}

// newMirror returns the ClickHouse audit mirror, or a LogWriter when the DSN
// is empty or the connection fails.
func newMirror(dsn string, logger *zap.Logger) storage.EventWriter {
	if dsn == "" {
		logger.Info("no clickhouse_dsn set, using log writer")
		return storage.NewLogWriter(logger)
	}
	w, err := storage.NewClickHouseWriter(dsn, logger)
	if err != nil {
		logger.Warn("clickhouse connection failed, falling back to log writer", zap.Error(err))
		return storage.NewLogWriter(logger)
	}
	logger.Info("clickhouse writer connected")
	return w
}
