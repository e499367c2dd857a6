package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pevans/linkfeed/feed"
	"github.com/pevans/linkfeed/pipeline"
	"github.com/pevans/linkfeed/store"
)

const timeLayout = "2006-01-02 15:04"

// printRunSummary prints the outcome of a crawl run.
func printRunSummary(w io.Writer, r *pipeline.RunResult) {
	fmt.Fprintf(w, "Run %s finished in %s\n", r.RunID, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(w, "  Sources processed: %d\n", r.SourcesProcessed)
	fmt.Fprintf(w, "  Sources failed:    %d\n", r.SourcesFailed)
	fmt.Fprintf(w, "  Links inserted:    %d\n", r.LinksInserted)
	fmt.Fprintf(w, "  PDFs extracted:    %d\n", r.PdfsExtracted)

	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  [%s] %s\n", e.Kind, e.Error())
		}
	}
}

// printArticlesTable prints stored PDFs in human-readable format.
func printArticlesTable(w io.Writer, docs []store.PdfDocument) {
	if len(docs) == 0 {
		fmt.Fprintln(w, "No articles to display.")
		return
	}

	for _, d := range docs {
		title := d.Title
		if title == "" {
			title = d.PageTitle
		}
		title = truncate(title, 70)

		fmt.Fprintf(w, "%s\n", title)
		fmt.Fprintf(w, "   %s | Pages: %d | Processed: %s\n",
			d.FeedTitle, d.NumberOfPages, d.DateProcessed.Format(timeLayout))
		if d.Author != "" {
			fmt.Fprintf(w, "   Author: %s\n", d.Author)
		}
		fmt.Fprintf(w, "   URL: %s\n", d.PdfURL)
		fmt.Fprintf(w, "   ID: %d\n", d.ID)
		fmt.Fprintln(w)
	}
}

// printFeedsTable prints published feeds in human-readable format.
func printFeedsTable(w io.Writer, infos []feed.Info) {
	if len(infos) == 0 {
		fmt.Fprintln(w, "No feeds published.")
		return
	}

	fmt.Fprintf(w, "%-40s %-30s %6s %s\n", "FILE", "TITLE", "ITEMS", "MODIFIED")
	for _, info := range infos {
		fmt.Fprintf(w, "%-40s %-30s %6d %s\n",
			truncate(info.Name, 40), truncate(info.Title, 30), info.Items, info.Modified.Format(timeLayout))
	}
}

// printJSON prints v as indented JSON.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
