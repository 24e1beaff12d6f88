package cli

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mukhtiarDev/personal-health-monitor/internal/simulator"
	"github.com/mukhtiarDev/personal-health-monitor/internal/store"
)

var (
	simulateTarget string
	simulateToken  string
	simulateSeed   uint64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Generate synthetic heart-rate readings",
	Long: `Append one synthetic reading every simulator_interval until interrupted.

Most readings are resting heart rates around 75 bpm; about one in ten is
elevated (~130 bpm) and a few of those are critical (~165 bpm).

By default readings are written straight to Postgres. With --target they
are posted to a running dashboard API instead and no DSN is needed; the
dashboard requires an operator token (--token or HEALTHMON_OPERATOR_TOKEN).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := ingestToken(simulateTarget, simulateToken)
		if err != nil {
			return err
		}
		cfg, logger, err := loadEnv(simulateTarget != "")
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck // best-effort flush

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var sink simulator.Sink
		if simulateTarget != "" {
			sink = simulator.NewHTTPSink(simulateTarget, token, &http.Client{Timeout: 10 * time.Second})
			logger.Info("posting readings to dashboard", zap.String("target", simulateTarget))
		} else {
			st, err := store.Open(ctx, cfg.PostgresDSN)
			if err != nil {
				logger.Fatal("postgres unavailable", zap.Error(err))
			}
			defer func() { _ = st.Close() }()
			sink = st
		}

		seed := simulateSeed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		sim, err := simulator.New(sink, simulator.NewGenerator(seed), cfg.SimulatorInterval, logger)
		if err != nil {
			return err
		}
		return sim.Run(ctx)
	},
}

// ingestToken resolves the operator token used when posting to target.
func ingestToken(target, flag string) (string, error) {
	if target == "" {
		return "", nil
	}
	token := strings.TrimSpace(flag)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("HEALTHMON_OPERATOR_TOKEN"))
	}
	if token == "" {
		return "", errors.New("simulate: --target requires --token or HEALTHMON_OPERATOR_TOKEN")
	}
	return token, nil
}

func init() {
	simulateCmd.Flags().StringVar(&simulateTarget, "target", "", "dashboard base URL, e.g. http://localhost:8080")
	simulateCmd.Flags().StringVar(&simulateToken, "token", "", "operator token sent with --target")
	simulateCmd.Flags().Uint64Var(&simulateSeed, "seed", 0, "random seed (0 = time based)")
	rootCmd.AddCommand(simulateCmd)
}
