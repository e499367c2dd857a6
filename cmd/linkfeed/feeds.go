package main

import (
	"github.com/spf13/cobra"

	"github.com/pevans/linkfeed/api"
	"github.com/pevans/linkfeed/feed"
)

var feedsJSON bool

var feedsCmd = &cobra.Command{
	Use:   "feeds",
	Short: "List published RSS feeds",
	RunE:  runFeeds,
}

func init() {
	feedsCmd.Flags().BoolVar(&feedsJSON, "json", false, "Print feeds as JSON")
	rootCmd.AddCommand(feedsCmd)
}

func runFeeds(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	infos, err := feed.List(cfg.Feeds.OutputDir)
	if err != nil {
		return err
	}

	if feedsJSON {
		return printJSON(cmd.OutOrStdout(), api.FeedsResponse{Feeds: infos})
	}
	printFeedsTable(cmd.OutOrStdout(), infos)
	return nil
}
