package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaneisley/relay/pkg/config"
	"github.com/shaneisley/relay/pkg/logging"
	"github.com/shaneisley/relay/pkg/service"
	"github.com/shaneisley/relay/pkg/store"
)

const appVersion = "1.0.0"

var configFile string

var rootCmd = &cobra.Command{
	Use:     "relayd",
	Short:   "MCP request-processing daemon",
	Long:    "relayd runs the MCP request-processing core: version negotiation, priority scheduling, cached execution and bounded retry.",
	Version: appVersion,
	RunE:    runDaemon,
}

func init() {
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "Configuration file path (TOML)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewLogger("relayd", logging.LogLevel(cfg.LogLevel))

	versions, err := cfg.VersionTable()
	if err != nil {
		return fmt.Errorf("failed to build version table: %w", err)
	}

	projects, err := store.NewDatabase(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open project store: %w", err)
	}
	defer projects.Close()

	svc := service.New(service.Config{
		Workers:               cfg.Workers,
		MaxAttempts:           cfg.MaxAttempts,
		RequestTimeout:        cfg.RequestTimeout,
		DefaultTTL:            cfg.DefaultTTL,
		CacheCapacity:         cfg.CacheCapacity,
		RedisAddr:             cfg.RedisAddr,
		BatchConcurrency:      cfg.BatchConcurrency,
		CountersResetInterval: cfg.CountersResetInterval,
		HTTPPort:              cfg.ListenPort,
		RetryStrategy:         cfg.RetryStrategy(),
	}, versions, logger)

	svc.RegisterBuiltinHandlers(projects)

	if err := svc.Start(); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	logger.Info("relayd started",
		"version", appVersion,
		"port", cfg.ListenPort,
		"pid", os.Getpid())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.Info("shutting down", "signal", sig.String())
	svc.Stop()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
