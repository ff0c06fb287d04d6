package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/courierhub/dispatch/internal/dispatch"
	"github.com/courierhub/dispatch/internal/notify"
	"github.com/courierhub/dispatch/internal/reconcile"
	"github.com/courierhub/dispatch/internal/server"
	"github.com/courierhub/dispatch/internal/session"
	"github.com/courierhub/dispatch/internal/telemetry"
	"github.com/courierhub/dispatch/pkg/courier"
)

var version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "dispatch",
	Short:   "CourierHub Dispatch - multi-provider courier dispatch service",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dispatch server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tracer, tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		defer tracerShutdown(ctx)
	}

	rdb, err := initRedis(cfg)
	if err != nil {
		return err
	}
	jobs, creds := initStores(rdb, logger)

	metrics := telemetry.NewMetrics()

	sessions := session.NewManager(creds, logger, session.Options{Metrics: metrics})
	registry := initCourierRegistry(cfg, sessions, logger, tracer)

	dispatcher := dispatch.NewService(dispatch.Config{
		Strategy:        courier.SelectionStrategy(cfg.Strategy),
		ProviderRanking: cfg.ProviderRanking,
		QuoteTimeout:    cfg.QuoteTimeout,
		Batch: dispatch.BatchPolicy{
			Mode:       dispatch.BatchMode(cfg.BatchMode),
			Window:     cfg.BatchWindow,
			CutoffHour: cfg.BatchCutoffHour,
		},
	}, registry, jobs, logger, metrics, tracer)

	runner := notify.NewRunner(logger)
	defer runner.Wait()

	reconciler := reconcile.New(registry, jobs, runner, reconcile.Notifiers{
		SMS:       &notify.LogSMSSender{Logger: logger},
		Email:     &notify.LogEmailSender{Logger: logger},
		Push:      &notify.LogPushSender{Logger: logger},
		Ecommerce: initEcommerceForwarder(cfg, logger),
	}, logger, metrics, tracer)

	logger.Info("Starting CourierHub Dispatch",
		zap.Int("port", cfg.Port),
		zap.String("version", cfg.Version),
		zap.Strings("providers", registry.Names()),
	)

	srv := server.New(server.Config{Port: cfg.Port}, dispatcher, reconciler, jobs, logger)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
