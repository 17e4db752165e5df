package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fleetops/fuelsight/internal/config"
	"github.com/fleetops/fuelsight/internal/logging"
	"github.com/fleetops/fuelsight/internal/notifications"
	"github.com/fleetops/fuelsight/internal/report"
	"github.com/fleetops/fuelsight/internal/store"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var (
	configPath string
	dateFlag   string
	sendFlag   bool
	outputDir  string
)

var rootCmd = &cobra.Command{
	Use:     "fuelsight-report",
	Short:   "Generate the fleet daily report",
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "fuelsight.yml", "Path to the YAML configuration file")
	rootCmd.Flags().StringVar(&dateFlag, "date", "", "Report date as YYYY-MM-DD (default: yesterday UTC)")
	rootCmd.Flags().BoolVar(&sendFlag, "send", false, "Email the report to the configured recipients")
	rootCmd.Flags().StringVar(&outputDir, "output", "", "Output directory (default: store.report_dir)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logging.Init(logging.Config{Format: "auto", Level: "info", Component: "report"})

	cfg := config.Load(configPath)

	date := time.Now().UTC().AddDate(0, 0, -1)
	if dateFlag != "" {
		parsed, err := time.Parse("2006-01-02", dateFlag)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", dateFlag, err)
		}
		date = parsed
	}

	dir := outputDir
	if dir == "" {
		dir = cfg.Store.ReportDir
	}
	if dir == "" {
		return fmt.Errorf("no output directory: set --output or store.report_dir")
	}

	gateway, err := store.NewGateway(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer gateway.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	summary, err := report.NewBuilder(gateway).Build(ctx, date, nil)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}

	path, err := report.WriteFile(dir, summary)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	log.Info().Str("path", path).Str("date", summary.Date).Msg("Daily report written")

	if sendFlag {
		mailer := notifications.NewEmailManager(cfg.Email)
		if !mailer.Configured() {
			return fmt.Errorf("--send requires SMTP_HOST, REPORT_FROM_EMAIL and REPORT_TO_EMAILS")
		}
		subject, body := report.RenderEmail(summary)
		if err := mailer.SendEmail(ctx, subject, body); err != nil {
			return fmt.Errorf("send report: %w", err)
		}
		log.Info().Str("subject", subject).Msg("Daily report emailed")
	}
	return nil
}
