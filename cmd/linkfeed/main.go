// Command linkfeed crawls configured pages for new links, extracts PDF text
// and publishes per-source RSS feeds.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/pevans/linkfeed/config"
	"github.com/pevans/linkfeed/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "linkfeed",
	Short: "Crawl pages for new links and publish them as RSS feeds",
	Long: `linkfeed visits each configured source page, records links it has not
seen before, extracts text from new PDFs and writes one RSS feed per source.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", envOr("LINKFEED_CONFIG", "linkfeed.yaml"), "Path to the YAML config file")
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// envOr returns the value of an environment variable or a default value.
func envOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// loadConfig reads and validates the config. A missing default config file
// is not an error; defaults and environment overrides still apply.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		OutputPaths: cfg.Log.Outputs,
		Console:     cfg.Log.Console,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return log, nil
}
