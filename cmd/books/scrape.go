package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aluiziolira/books-analytics/config"
	"github.com/aluiziolira/books-analytics/models"
	"github.com/aluiziolira/books-analytics/pipeline"
	"github.com/aluiziolira/books-analytics/scraper"
)

var scrapeFlags struct {
	pages         int
	output        string
	format        string
	delayMs       int
	baseURL       string
	metricsAddr   string
	timeout       time.Duration
	respectRobots bool
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape the catalogue into a local table",
	Long: `Walks catalogue pages 1..N (or until a page fails when --pages is 0),
fetches each item's detail page and streams records to the output file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyScrapeFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		return runScrape(cfg, newLogger("books-scraper"))
	},
}

func init() {
	defaults := config.DefaultConfig()
	flags := scrapeCmd.Flags()
	flags.IntVar(&scrapeFlags.pages, "pages", defaults.MaxPages, "Maximum catalogue pages to scrape (0 = until a page fails)")
	flags.StringVar(&scrapeFlags.output, "output", defaults.OutputFile, "Output file path")
	flags.StringVar(&scrapeFlags.format, "format", defaults.OutputFormat, "Output format: csv, json, dual, or sqlite")
	flags.IntVar(&scrapeFlags.delayMs, "delay", int(defaults.PageDelay/time.Millisecond), "Delay between pages (milliseconds)")
	flags.StringVar(&scrapeFlags.baseURL, "base-url", defaults.BaseURL, "Base URL to crawl")
	flags.StringVar(&scrapeFlags.metricsAddr, "metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flags.DurationVar(&scrapeFlags.timeout, "timeout", defaults.Timeout, "HTTP request timeout")
	flags.BoolVar(&scrapeFlags.respectRobots, "respect-robots", defaults.RespectRobotsTxt, "Respect robots.txt directives")
	rootCmd.AddCommand(scrapeCmd)
}

// applyScrapeFlags copies explicitly set flags over the file and env values.
func applyScrapeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("pages") {
		cfg.MaxPages = scrapeFlags.pages
	}
	if flags.Changed("output") {
		cfg.OutputFile = scrapeFlags.output
	}
	if flags.Changed("format") {
		cfg.OutputFormat = strings.ToLower(scrapeFlags.format)
	}
	if flags.Changed("delay") {
		cfg.PageDelay = time.Duration(scrapeFlags.delayMs) * time.Millisecond
	}
	if flags.Changed("base-url") {
		cfg.BaseURL = scrapeFlags.baseURL
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = scrapeFlags.metricsAddr
	}
	if flags.Changed("timeout") {
		cfg.Timeout = scrapeFlags.timeout
	}
	if flags.Changed("respect-robots") {
		cfg.RespectRobotsTxt = scrapeFlags.respectRobots
	}
}

func runScrape(cfg *config.Config, log *zap.Logger) error {
	log.Info("starting scrape",
		zap.String("base_url", cfg.BaseURL),
		zap.Int("pages", cfg.MaxPages),
		zap.Duration("delay", cfg.PageDelay),
		zap.String("format", cfg.OutputFormat),
	)

	s, err := scraper.NewScraper(cfg, log)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	writer, err := pipeline.NewWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			log.Error("close writer", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		log.Info("metrics server enabled", zap.String("addr", cfg.MetricsAddr))
	}

	// The pipeline outlives a canceled scrape so partial results still reach disk.
	p := pipeline.NewPipeline(context.Background(), writer, cfg).WithLogger(log)
	p.Start()
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	result, runErr := s.Run(ctx, p)
	if result != nil && result.StopReason == models.StopCanceled {
		log.Info("shutdown signal received, keeping records collected so far")
	}
	if err := p.Close(); err != nil {
		return fmt.Errorf("pipeline shutdown failed: %w", err)
	}
	if runErr != nil {
		return fmt.Errorf("scraping failed: %w", runErr)
	}

	if err := writer.Validate(); err != nil {
		return fmt.Errorf("output validation failed: %w", err)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics server shutdown failed", zap.Error(err))
		}
		cancel()
	}

	printSummary(result, cfg.OutputFile, p.Processed(), p.GetMetrics())
	return nil
}

func printSummary(result *models.ScraperResult, outputFile string, written int64, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	duration := result.Duration()
	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(result.TotalCount()) / duration.Seconds()
	}

	fmt.Printf("  Run ID:          %s\n", result.RunID)
	fmt.Printf("  Items scraped:   %d\n", result.TotalCount())
	fmt.Printf("  Items written:   %d\n", written)
	fmt.Printf("  Pages:           %d\n", result.PageCount)
	fmt.Printf("  Stop reason:     %s\n", result.StopReason)
	if result.StopErr != nil {
		fmt.Printf("  Stop error:      %v\n", result.StopErr)
	}
	successRate := 0.0
	if result.RequestCount > 0 {
		successRate = float64(result.RequestCount-result.ErrorCount) / float64(result.RequestCount) * 100
	}
	fmt.Printf("  Success rate:    %.2f%%\n", successRate)
	fmt.Printf("  Errors:          %d\n", result.ErrorCount)
	fmt.Printf("  Detail defaults: %d\n", result.DetailDefaults)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:     %v\n", result.ErrorsByType)
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Printf("  Validation:      %v\n", valErrors)
	}
	fmt.Printf("  Duration:        %v\n", duration)
	fmt.Printf("  Items/sec:       %.2f\n", itemsPerSec)
	fmt.Printf("  Output file:     %s\n", outputFile)
	fmt.Println(separator)
}
