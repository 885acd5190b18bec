// Command connector is the reference CLI entrypoint for the connector
// framework (spec §6): a github.com/spf13/cobra root command with no
// positional arguments, configuration located via the CONFIG_FILE
// environment variable (or pure environment-variable configuration), and
// exit codes 0 (normal shutdown), 2 (fatal runtime error), 3 (configuration
// error).
//
// A production connector binary replaces the demoplugin package and the
// in-memory broker.FakeClient below with its own plugin implementation and
// broker driver; both are out of scope for this framework (spec §1).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danube-messaging/danube-connect/cmd/connector/demoplugin"
	"github.com/danube-messaging/danube-connect/config"
	"github.com/danube-messaging/danube-connect/connerr"
	"github.com/danube-messaging/danube-connect/internal/broker"
	"github.com/danube-messaging/danube-connect/internal/logging"
	"github.com/danube-messaging/danube-connect/metrics"
	"github.com/danube-messaging/danube-connect/runtime"
)

func main() {
	os.Exit(run())
}

func run() int {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		return connerr.ExitCode(err)
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "connector",
		Short:         "danube-connect connector framework runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSinkCmd(), newSourceCmd())
	return root
}

func newSinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sink",
		Short: "run the Sink Runtime",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runSink(context.Background())
		},
	}
}

func newSourceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "source",
		Short: "run the Source Runtime",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runSource(context.Background())
		},
	}
}

// loadConfig loads and validates configuration the way spec §6 describes:
// CONFIG_FILE names an optional document, environment variables override it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSink(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Processing.LogLevel)
	if err != nil {
		return connerr.Fatalf(err, "failed to build logger")
	}
	defer logger.Sync() //nolint:errcheck

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsSink := metrics.NewPrometheusSink(cfg.ConnectorName)
	go func() {
		if err := metricsSink.Serve(runCtx, cfg.MetricsPort); err != nil {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	client := broker.NewFakeClient()
	defer client.Close() //nolint:errcheck

	rt, err := runtime.NewSinkRuntime(cfg, client, demoplugin.NewLoggingSinkPlugin(logger),
		runtime.WithMetrics(metricsSink),
		runtime.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	logger.Info("sink runtime starting", zap.String("connector_name", cfg.ConnectorName))
	return rt.Run(runCtx)
}

func runSource(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Processing.LogLevel)
	if err != nil {
		return connerr.Fatalf(err, "failed to build logger")
	}
	defer logger.Sync() //nolint:errcheck

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsSink := metrics.NewPrometheusSink(cfg.ConnectorName)
	go func() {
		if err := metricsSink.Serve(runCtx, cfg.MetricsPort); err != nil {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	client := broker.NewFakeClient()
	defer client.Close() //nolint:errcheck

	rt, err := runtime.NewSourceRuntime(cfg, client, demoplugin.NewCounterSourcePlugin(logger),
		runtime.WithSourceMetrics(metricsSink),
		runtime.WithSourceLogger(logger),
	)
	if err != nil {
		return err
	}

	logger.Info("source runtime starting", zap.String("connector_name", cfg.ConnectorName))
	return rt.Run(runCtx)
}
