package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aluiziolira/books-analytics/config"
	"github.com/aluiziolira/books-analytics/logger"
)

var (
	cfgFile string
	verbose bool

	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "books",
	Short: "Scrape the books catalogue and explore it in a dashboard",
	Long: `books walks the books.toscrape.com catalogue page by page, writes every
item to a local table and serves an analytics dashboard over that table.

Settings are read from defaults, then an optional YAML file (--config), then
environment variables (SCRAPER_PAGES, SCRAPER_DELAY, SCRAPER_BASE_URL,
SCRAPER_OUTPUT, SCRAPER_METRICS_ADDR, DASHBOARD_ADDR, LOG_LEVEL, LOG_FILE),
then command-line flags.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig layers defaults, the config file and the environment.
func loadConfig() (*config.Config, error) {
	loaded := config.DefaultConfig()
	if cfgFile != "" {
		if err := config.LoadFile(loaded, cfgFile); err != nil {
			return nil, err
		}
	}
	if err := loaded.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	if verbose {
		loaded.Verbose = true
	}
	if loaded.Verbose {
		loaded.LogLevel = "debug"
	}
	return loaded, nil
}

// newLogger builds the process logger once flags have been applied.
func newLogger(service string) *zap.Logger {
	log = logger.New(logger.Options{
		Service: service,
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Console: logger.IsTerminal(os.Stdout),
	})
	return log
}
