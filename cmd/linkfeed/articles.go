package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pevans/linkfeed/api"
	"github.com/pevans/linkfeed/store"
)

var (
	articlesJSON   bool
	articlesSource string
	articlesSince  string
	articlesUntil  string
)

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "List stored PDF articles",
	Long: `List PDF articles extracted by previous crawls, newest first.
Filter by the page they were found on with --source, or by processing date
with --since and --until (YYYY-MM-DD, inclusive).`,
	RunE: runArticles,
}

func init() {
	articlesCmd.Flags().BoolVar(&articlesJSON, "json", false, "Print articles as JSON")
	articlesCmd.Flags().StringVar(&articlesSource, "source", "", "Only articles found on this source URL")
	articlesCmd.Flags().StringVar(&articlesSince, "since", "", "First processing date (YYYY-MM-DD)")
	articlesCmd.Flags().StringVar(&articlesUntil, "until", "", "Last processing date (YYYY-MM-DD)")
	rootCmd.AddCommand(articlesCmd)
}

func runArticles(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st, err := store.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	docs, err := queryArticles(cmd, st)
	if err != nil {
		return err
	}

	if articlesJSON {
		return printJSON(cmd.OutOrStdout(), api.ArticlesResponse{Articles: docs})
	}
	printArticlesTable(cmd.OutOrStdout(), docs)
	return nil
}

func queryArticles(cmd *cobra.Command, st *store.Store) ([]store.PdfDocument, error) {
	ctx := cmd.Context()

	switch {
	case articlesSource != "":
		return st.PdfsBySource(ctx, articlesSource)
	case articlesSince != "" || articlesUntil != "":
		start, end := time.Time{}, time.Now().UTC()
		var err error
		if articlesSince != "" {
			if start, err = time.Parse("2006-01-02", articlesSince); err != nil {
				return nil, fmt.Errorf("invalid --since date: %w", err)
			}
		}
		if articlesUntil != "" {
			if end, err = time.Parse("2006-01-02", articlesUntil); err != nil {
				return nil, fmt.Errorf("invalid --until date: %w", err)
			}
		}
		return st.PdfsByDateRange(ctx, start, end)
	default:
		return st.ListPdfs(ctx)
	}
}
