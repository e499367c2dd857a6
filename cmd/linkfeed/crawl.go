package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pevans/linkfeed/config"
	"github.com/pevans/linkfeed/feed"
	"github.com/pevans/linkfeed/fetcher"
	"github.com/pevans/linkfeed/logger"
	"github.com/pevans/linkfeed/pipeline"
)

var errSourcesFailed = errors.New("one or more sources failed")

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run one crawl over every configured source",
	RunE:  runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)
}

// newOrchestrator wires the fetcher, publisher and store opener from cfg.
func newOrchestrator(cfg *config.Config, log logger.Logger) *pipeline.Orchestrator {
	f := fetcher.New(fetcher.Options{
		Policy:            fetcher.NewRandomPolicy(cfg.Crawler.MaxDelay, cfg.Crawler.UserAgents),
		RequestsPerSecond: cfg.Crawler.RequestsPerSecond,
		Logger:            log,
	})

	return pipeline.New(pipeline.Options{
		Sources:     cfg.Sources,
		Open:        pipeline.StoreOpener(cfg.Storage.Driver, cfg.Storage.DSN),
		Fetcher:     f,
		Publisher:   feed.NewPublisher(cfg.Feeds.OutputDir, log),
		Timeout:     cfg.Crawler.Timeout,
		MaxPDFBytes: cfg.Crawler.MaxPDFBytes,
		Logger:      log,
	})
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(cfg.Sources) == 0 {
		return errors.New("no sources configured")
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	result, err := newOrchestrator(cfg, log).Run(cmd.Context())
	if result != nil {
		printRunSummary(cmd.OutOrStdout(), result)
	}
	if err != nil {
		return fmt.Errorf("crawl aborted: %w", err)
	}
	if result.Failed() {
		return errSourcesFailed
	}
	return nil
}
