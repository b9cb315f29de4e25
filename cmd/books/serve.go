package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aluiziolira/books-analytics/config"
	"github.com/aluiziolira/books-analytics/dashboard"
	"github.com/aluiziolira/books-analytics/scraper"
)

const shutdownTimeout = 10 * time.Second

var serveFlags struct {
	addr  string
	data  string
	pages int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analytics dashboard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyServeFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		return runServe(cfg, newLogger("books-dashboard"))
	},
}

func init() {
	defaults := config.DefaultConfig()
	flags := serveCmd.Flags()
	flags.StringVar(&serveFlags.addr, "addr", defaults.DashboardAddr, "Dashboard listen address")
	flags.StringVar(&serveFlags.data, "data", defaults.OutputFile, "CSV table the dashboard reads and scrapes into")
	flags.IntVar(&serveFlags.pages, "pages", defaults.DashboardPages, "Default pages for scrapes started from the dashboard (1-50)")
	rootCmd.AddCommand(serveCmd)
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.DashboardAddr = serveFlags.addr
	}
	if flags.Changed("data") {
		cfg.OutputFile = serveFlags.data
	}
	if flags.Changed("pages") {
		cfg.DashboardPages = serveFlags.pages
	}
	// The dashboard always reads and rewrites a CSV table.
	cfg.OutputFormat = "csv"
}

func runServe(cfg *config.Config, log *zap.Logger) error {
	s, err := scraper.NewScraper(cfg, log)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	server, err := dashboard.New(cfg, s, s.Metrics.Registry, log)
	if err != nil {
		return fmt.Errorf("creating dashboard: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.DashboardAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down dashboard")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("dashboard shutdown: %w", err)
	}
	return <-errCh
}
