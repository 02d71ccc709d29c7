package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/taskflow/internal/devserver"
	"github.com/good-yellow-bee/taskflow/internal/metrics"
)

const envDevSecret = "TASKFLOW_DEV_SECRET"

var (
	devAddr          string
	devAccessTTL     time.Duration
	devRefreshTTL    time.Duration
	devRotateRefresh bool
	devLockout       int
	devSeed          bool
	devMetricsAddr   string
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run an in-memory taskflow backend",
	Long: `Run a local taskflow backend that keeps everything in memory.

It serves the REST API under /api and Prometheus metrics at /metrics.
Tokens are signed with $TASKFLOW_DEV_SECRET, or a random secret when unset,
so sessions do not survive a restart without it.

With --seed the server starts with three users (admin, user1, user2; the
password for all of them is "password123"), three projects and sample
tasks. POST /api/init-db restores that data at any time.

Example:
  taskctl devserver --addr 127.0.0.1:5000 --seed --access-ttl 1m`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(zap.InfoLevel)
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		defer logger.Sync()

		srv, err := devserver.New(devserver.Config{
			Addr:             devAddr,
			Secret:           []byte(os.Getenv(envDevSecret)),
			AccessTTL:        devAccessTTL,
			RefreshTTL:       devRefreshTTL,
			RotateRefresh:    devRotateRefresh,
			LockoutThreshold: devLockout,
			Seed:             devSeed,
		}, logger.Named("devserver"))
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(srv.Start)

		var metricsSrv *metrics.Server
		if devMetricsAddr != "" {
			metricsSrv = metrics.NewServer(devMetricsAddr, logger.Named("metrics"))
			g.Go(metricsSrv.Start)
		}

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if metricsSrv != nil {
				if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
					logger.Warn("metrics shutdown", zap.Error(err))
				}
			}
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(devserverCmd)

	devserverCmd.Flags().StringVar(&devAddr, "addr", "127.0.0.1:5000", "listen address")
	devserverCmd.Flags().DurationVar(&devAccessTTL, "access-ttl", 15*time.Minute, "access token lifetime")
	devserverCmd.Flags().DurationVar(&devRefreshTTL, "refresh-ttl", 30*24*time.Hour, "refresh token lifetime")
	devserverCmd.Flags().BoolVar(&devRotateRefresh, "rotate-refresh", false, "issue a new refresh token on every renewal")
	devserverCmd.Flags().IntVar(&devLockout, "lockout", 5, "failed logins before an account is locked for 15m (0 disables)")
	devserverCmd.Flags().BoolVar(&devSeed, "seed", false, "load sample data on start")
	devserverCmd.Flags().StringVar(&devMetricsAddr, "metrics-addr", "", "also serve /metrics on this address")
}
