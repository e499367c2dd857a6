// Package pdfextract downloads newly discovered PDFs and stores their text
// and metadata, at most once per (feed, PDF URL).
package pdfextract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pevans/linkfeed/failure"
	"github.com/pevans/linkfeed/fetcher"
	"github.com/pevans/linkfeed/logger"
	"github.com/pevans/linkfeed/store"
)

// DefaultMaxBytes caps a PDF download.
const DefaultMaxBytes int64 = 50 << 20

var ErrTooLarge = errors.New("pdf exceeds size limit")

// Store is the persistence the extractor needs.
type Store interface {
	PdfExists(ctx context.Context, feedTitle, pdfURL string) (bool, error)
	LinkExists(ctx context.Context, feedTitle, link string) (bool, error)
	InsertPdf(ctx context.Context, doc *store.PdfDocument) error
}

// Getter fetches a URL.
type Getter interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (*fetcher.Response, error)
}

// Options configures an Extractor. Store and Fetcher are required.
type Options struct {
	Store   Store
	Fetcher Getter
	Parser  Parser
	Timeout time.Duration
	// MaxBytes bounds the download; 0 means DefaultMaxBytes.
	MaxBytes int64
	Now      func() time.Time
	Logger   logger.Logger
}

// Extractor downloads, parses and stores PDFs.
type Extractor struct {
	store    Store
	fetch    Getter
	parser   Parser
	timeout  time.Duration
	maxBytes int64
	now      func() time.Time
	log      logger.Logger
}

// New creates an Extractor.
func New(opts Options) *Extractor {
	e := &Extractor{
		store:    opts.Store,
		fetch:    opts.Fetcher,
		parser:   opts.Parser,
		timeout:  opts.Timeout,
		maxBytes: opts.MaxBytes,
		now:      opts.Now,
		log:      opts.Logger,
	}
	if e.parser == nil {
		e.parser = PDFParser{}
	}
	if e.timeout <= 0 {
		e.timeout = fetcher.DefaultTimeout
	}
	if e.maxBytes <= 0 {
		e.maxBytes = DefaultMaxBytes
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.log == nil {
		e.log = logger.NewNop()
	}
	return e
}

// PageTitle is the label stored with each document: the feed title with
// spaces replaced by underscores, then the processing date.
func PageTitle(feedTitle string, processed time.Time) string {
	return strings.ReplaceAll(feedTitle, " ", "_") + "_" + processed.Format("2006-01-02")
}

// ExtractAndStore stores the text and metadata of pdfURL under feedTitle.
// It returns false with a nil error when the document is already stored or
// its link was never recorded. Download, parse and insert failures are
// returned as failure.Network, failure.Parse and failure.Persistence; no row
// is written for them.
func (e *Extractor) ExtractAndStore(ctx context.Context, feedTitle, pdfURL, sourceURL string) (bool, error) {
	log := e.log.With(logger.String("feed_title", feedTitle), logger.String("pdf_url", pdfURL))

	// Skip documents already processed
	exists, err := e.store.PdfExists(ctx, feedTitle, pdfURL)
	if err != nil {
		return false, err
	}
	if exists {
		log.Debug("PDF already processed")
		return false, nil
	}

	// The link must have been recorded first
	recorded, err := e.store.LinkExists(ctx, feedTitle, pdfURL)
	if err != nil {
		return false, err
	}
	if !recorded {
		log.Warn("PDF link not found in all_links, cannot process")
		return false, nil
	}

	data, err := e.download(ctx, pdfURL)
	if err != nil {
		log.Error("Failed to download PDF", logger.Err(err))
		return false, err
	}

	parsed, err := e.parser.Parse(data)
	if err != nil {
		log.Error("Failed to extract PDF content", logger.Err(err))
		return false, failure.New(failure.Parse, "parse pdf", pdfURL, err)
	}

	processed := e.now().UTC()
	doc := &store.PdfDocument{
		FeedTitle:        feedTitle,
		PdfURL:           pdfURL,
		SourceLink:       sourceURL,
		Content:          parsed.Content,
		Title:            parsed.Title,
		PageTitle:        PageTitle(feedTitle, processed),
		Author:           parsed.Author,
		CreationDate:     parsed.CreationDate,
		ModificationDate: parsed.ModificationDate,
		NumberOfPages:    parsed.NumberOfPages,
		FileSizeBytes:    int64(len(data)),
		DateProcessed:    processed,
	}

	if err := e.store.InsertPdf(ctx, doc); err != nil {
		log.Error("Failed to store PDF content", logger.Err(err))
		return false, err
	}

	log.Info("Stored PDF content",
		logger.Int("pages", doc.NumberOfPages),
		logger.Int64("bytes", doc.FileSizeBytes))
	return true, nil
}

func (e *Extractor) download(ctx context.Context, pdfURL string) ([]byte, error) {
	resp, err := e.fetch.Fetch(ctx, pdfURL, e.timeout)
	if err != nil {
		return nil, err
	}
	defer resp.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, failure.New(failure.Network, "download pdf", pdfURL,
			&fetcher.StatusError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)})
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes+1))
	if err != nil {
		return nil, failure.New(failure.Network, "download pdf", pdfURL, fmt.Errorf("failed to read body: %w", err))
	}
	if int64(len(data)) > e.maxBytes {
		return nil, failure.New(failure.Parse, "download pdf", pdfURL, fmt.Errorf("%w: %d bytes", ErrTooLarge, e.maxBytes))
	}

	return data, nil
}
