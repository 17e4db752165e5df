package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fleetops/fuelsight/internal/alerts"
	"github.com/fleetops/fuelsight/internal/api"
	"github.com/fleetops/fuelsight/internal/config"
	"github.com/fleetops/fuelsight/internal/logging"
	"github.com/fleetops/fuelsight/internal/notifications"
	"github.com/fleetops/fuelsight/internal/pipeline"
	"github.com/fleetops/fuelsight/internal/refuel"
	"github.com/fleetops/fuelsight/internal/store"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:     "fuelsight",
	Short:   "FuelSight - fleet fuel analytics and predictive maintenance",
	Long:    `FuelSight ingests truck telemetry and produces refuel events, anomaly detections, failure predictions, prioritized action items and fleet health.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("FuelSight %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "fuelsight.yml", "Path to the YAML configuration file")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	// Baseline logger for early startup logs; reconfigured from file below.
	logging.Init(logging.Config{Format: "auto", Level: "info", Component: "fuelsight"})

	cfg := config.Load(configPath)
	logging.Init(logging.Config{
		Format:    cfg.Logging.Format,
		Level:     cfg.Logging.Level,
		Component: "fuelsight",
	})

	log.Info().
		Str("version", Version).
		Str("config", configPath).
		Msg("Starting FuelSight")

	gateway, err := store.NewGateway(cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("Persistence gateway failed to start")
	}
	defer gateway.Close()

	// Table overrides beat the file; invalid entries keep the file values.
	if overrides, err := gateway.ConfigOverrides(context.Background()); err != nil {
		log.Warn().Err(err).Msg("Config override load failed, using file values")
	} else if len(overrides) > 0 {
		cfg.ApplyTableOverrides(overrides)
		log.Info().Int("count", len(overrides)).Msg("Config overrides applied")
	}

	dispatcher := buildDispatcher(cfg)
	pipe := pipeline.New(cfg, gateway, dispatcher)
	pipe.Restore(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Hot reload on config file change: full reload, swap atomically.
	watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
		pipe.Reload(next)
	})
	if err != nil {
		log.Warn().Err(err).Msg("Config watcher unavailable, hot reload disabled")
	} else {
		defer watcher.Stop()
	}

	go func() {
		if err := pipe.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Pipeline stopped")
		}
	}()

	server := api.NewServer(pipe, gateway, Version)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}

	// Mirror learned thresholds on disk for the next cold start.
	if err := refuel.SaveThresholds(cfg.Refuel.FallbackFile, pipe.Thresholds()); err != nil {
		log.Warn().Err(err).Msg("Threshold fallback write failed")
	}
}

// buildDispatcher wires the alert channels that have configuration. A fully
// unconfigured deployment still gets in-app alerts via the log.
func buildDispatcher(cfg *config.Config) *alerts.Dispatcher {
	var email alerts.EmailSender
	if m := notifications.NewEmailManager(cfg.Email); m.Configured() {
		email = m
	} else {
		log.Info().Msg("Email transport not configured")
	}

	var sms alerts.SMSSender
	if m := notifications.NewSMSManager(cfg.SMS); m.Configured() {
		sms = m
	} else {
		log.Info().Msg("SMS transport not configured")
	}

	inApp := func(a alerts.Alert) {
		log.Info().
			Str("truckID", a.TruckID).
			Str("type", a.Type).
			Str("severity", string(a.Severity)).
			Msg(a.Message)
	}

	return alerts.NewDispatcher(cfg.Alerts, cfg.Store.TransportDeadline, email, sms, inApp)
}
