package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mukhtiarDev/personal-health-monitor/internal/api"
	"github.com/mukhtiarDev/personal-health-monitor/internal/auth"
	"github.com/mukhtiarDev/personal-health-monitor/internal/chread"
	"github.com/mukhtiarDev/personal-health-monitor/internal/config"
	"github.com/mukhtiarDev/personal-health-monitor/internal/metrics"
	"github.com/mukhtiarDev/personal-health-monitor/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard HTTP API",
	Long: `Serve the dashboard API on http_port: recent readings, reading ingest,
the approval queue with operator decisions, the agent log and, when
clickhouse_dsn is set, audit analytics.

Approve and reject require an operator bearer token, either the shared
token hashed in operator_token_hash or one issued with "healthmon operator add".`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadEnv(false)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck // best-effort flush
		return runServe(cmd.Context(), cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context, cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres unavailable", zap.Error(err))
	}
	defer func() { _ = st.Close() }()
	logger.Info("postgres connected")

	// ClickHouse reader (for events/analytics endpoints)
	var reader api.AuditReader
	if cfg.ClickHouseDSN != "" {
		chReader, err := chread.NewReader(cfg.ClickHouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
		} else {
			defer func() { _ = chReader.Close() }()
			reader = chReader
			logger.Info("clickhouse reader connected")
		}
	}

	authenticator, err := auth.NewOperatorAuthenticator(auth.OperatorAuthConfig{
		Store:      st,
		SharedHash: cfg.OperatorTokenHash,
		CacheTTL:   cfg.AuthCacheTTL,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	deps := &api.Dependencies{
		Store:    st,
		Reader:   reader,
		Auth:     authenticator,
		Metrics:  metrics.New(reg),
		Gatherer: reg,
		Logger:   logger,
	}
	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("dashboard api stopped")
	return nil
}
