// Package pipeline runs one crawl cycle: for each configured source it
// fetches the page, extracts and resolves links, keeps the new ones,
// persists them, extracts new PDFs and publishes the source's feed.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pevans/linkfeed/classifier"
	"github.com/pevans/linkfeed/config"
	"github.com/pevans/linkfeed/failure"
	"github.com/pevans/linkfeed/feed"
	"github.com/pevans/linkfeed/fetcher"
	"github.com/pevans/linkfeed/links"
	"github.com/pevans/linkfeed/logger"
	"github.com/pevans/linkfeed/pdfextract"
	"github.com/pevans/linkfeed/store"
)

// Store is the storage handle used for one run.
type Store interface {
	LinkSet
	pdfextract.Store
	InsertNewLinks(ctx context.Context, feedTitle string, links []store.NewLink) (int, error)
	Close() error
}

// Opener acquires the storage handle for a run.
type Opener func(ctx context.Context) (Store, error)

// StoreOpener opens a store.Store with the given driver and DSN.
func StoreOpener(driver, dsn string) Opener {
	return func(ctx context.Context) (Store, error) {
		s, err := store.Open(ctx, driver, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Publisher writes a source's feed.
type Publisher interface {
	Publish(ctx context.Context, ch feed.Channel, entries []feed.Entry) (string, error)
}

// Getter fetches a URL.
type Getter interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (*fetcher.Response, error)
}

// Options configures an Orchestrator. Open and Fetcher are required.
type Options struct {
	Sources   []config.Source
	Open      Opener
	Fetcher   Getter
	Publisher Publisher
	// Parser overrides the PDF parser, mainly for tests.
	Parser      pdfextract.Parser
	Timeout     time.Duration
	MaxPDFBytes int64
	Logger      logger.Logger
}

// Orchestrator drives the pipeline over every source, strictly in order.
type Orchestrator struct {
	sources   []config.Source
	open      Opener
	fetch     Getter
	publisher Publisher
	parser    pdfextract.Parser
	timeout   time.Duration
	maxPDF    int64
	extractor *links.Extractor
	classify  *classifier.Classifier
	log       logger.Logger
}

// New creates an Orchestrator. Sources get their defaults applied.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		open:      opts.Open,
		fetch:     opts.Fetcher,
		publisher: opts.Publisher,
		parser:    opts.Parser,
		timeout:   opts.Timeout,
		maxPDF:    opts.MaxPDFBytes,
		log:       opts.Logger,
	}
	if o.timeout <= 0 {
		o.timeout = fetcher.DefaultTimeout
	}
	if o.log == nil {
		o.log = logger.NewNop()
	}

	o.sources = make([]config.Source, len(opts.Sources))
	for i, src := range opts.Sources {
		src.SetDefaults()
		o.sources[i] = src
	}

	o.extractor = links.NewExtractor(o.log)
	o.classify = classifier.New(o.fetch, o.timeout, o.log)
	return o
}

// SourceError records a failure inside one source. URL is set when the
// failure concerns a single link.
type SourceError struct {
	FeedTitle string
	URL       string
	Kind      failure.Kind
	Err       error
}

func (e SourceError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s: %s: %v", e.FeedTitle, e.URL, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.FeedTitle, e.Err)
}

// RunResult summarizes one run.
type RunResult struct {
	RunID            string
	StartedAt        time.Time
	FinishedAt       time.Time
	SourcesProcessed int
	SourcesFailed    int
	LinksInserted    int
	PdfsExtracted    int
	Errors           []SourceError
}

// Failed reports whether any source was skipped.
func (r *RunResult) Failed() bool {
	return r.SourcesFailed > 0
}

type sourceStats struct {
	inserted  int
	extracted int
	linkErrs  []SourceError
}

// Run processes every source once. Failures inside a source are logged,
// recorded in the result, and the run moves on to the next source. Only a
// failure to acquire storage (failure.Connection) or a cancelled context
// ends the run early; the result so far is returned with the error. The
// storage handle is closed on every exit path.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	log := o.log.With(logger.String("run_id", result.RunID))

	log.Info("Starting crawl run", logger.Int("sources", len(o.sources)))

	st, err := o.open(ctx)
	if err != nil {
		if !failure.IsFatal(err) {
			err = failure.New(failure.Connection, "open storage", "", err)
		}
		log.Error("Failed to establish database connection", logger.Err(err))
		result.FinishedAt = time.Now().UTC()
		return result, err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error("Error closing database connection", logger.Err(err))
			return
		}
		log.Debug("Closed the database connection")
	}()

	diff := NewDiffEngine(st, o.classify, log)
	pdfs := pdfextract.New(pdfextract.Options{
		Store:    st,
		Fetcher:  o.fetch,
		Parser:   o.parser,
		Timeout:  o.timeout,
		MaxBytes: o.maxPDF,
		Logger:   log,
	})

	for i, src := range o.sources {
		if err := ctx.Err(); err != nil {
			log.Warn("Crawl run cancelled", logger.Err(err))
			result.FinishedAt = time.Now().UTC()
			return result, err
		}

		srcLog := log.With(logger.String("feed_title", src.FeedTitle))
		srcLog.Info(fmt.Sprintf("Processing source %d/%d", i+1, len(o.sources)),
			logger.String("source_url", src.SourceURL))

		stats, err := o.processSource(ctx, srcLog, st, diff, pdfs, src)
		result.Errors = append(result.Errors, stats.linkErrs...)
		result.LinksInserted += stats.inserted
		result.PdfsExtracted += stats.extracted

		if err != nil {
			kind := failure.KindOf(err)
			srcLog.Error("Skipping source", logger.String("kind", kind.String()), logger.Err(err))
			result.SourcesFailed++
			result.Errors = append(result.Errors, SourceError{FeedTitle: src.FeedTitle, Kind: kind, Err: err})
			if failure.IsFatal(err) {
				result.FinishedAt = time.Now().UTC()
				return result, err
			}
			continue
		}
		result.SourcesProcessed++
	}

	result.FinishedAt = time.Now().UTC()
	log.Info("Completed crawl run",
		logger.Int("sources_processed", result.SourcesProcessed),
		logger.Int("sources_failed", result.SourcesFailed),
		logger.Int("links_inserted", result.LinksInserted),
		logger.Int("pdfs_extracted", result.PdfsExtracted),
		logger.Duration("duration", result.FinishedAt.Sub(result.StartedAt)))

	return result, nil
}

func (o *Orchestrator) processSource(
	ctx context.Context,
	log logger.Logger,
	st Store,
	diff *DiffEngine,
	pdfs *pdfextract.Extractor,
	src config.Source,
) (sourceStats, error) {
	var stats sourceStats

	// Fetch the source page
	resp, err := o.fetch.Fetch(ctx, src.SourceURL, o.timeout)
	if err != nil {
		return stats, err
	}
	doc, err := links.Parse(resp.Body)
	resp.Close()
	if err != nil {
		return stats, err
	}

	// Extract and resolve candidate links
	raw := o.extractor.Extract(doc, src.LinkSelector)
	candidates, err := links.ResolveAll(src.SourceURL, raw)
	if err != nil {
		return stats, failure.New(failure.Parse, "resolve links", src.SourceURL, err)
	}

	newLinks, newPdfLinks, err := diff.Diff(ctx, src.FeedTitle, src.SourceURL, candidates)
	if err != nil {
		return stats, err
	}

	// Persist the new links before touching their PDFs
	inserted, err := st.InsertNewLinks(ctx, src.FeedTitle, newLinks)
	if err != nil {
		return stats, err
	}
	stats.inserted = inserted
	log.Info("Inserted new links", logger.Int("count", inserted))

	for _, pdfURL := range newPdfLinks {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		ok, err := pdfs.ExtractAndStore(ctx, src.FeedTitle, pdfURL, src.SourceURL)
		if err != nil {
			stats.linkErrs = append(stats.linkErrs, SourceError{
				FeedTitle: src.FeedTitle,
				URL:       pdfURL,
				Kind:      failure.KindOf(err),
				Err:       err,
			})
			continue
		}
		if ok {
			stats.extracted++
		}
	}

	if o.publisher == nil {
		return stats, nil
	}

	now := time.Now().UTC()
	entries := make([]feed.Entry, 0, len(newLinks))
	for _, l := range newLinks {
		if src.PDFOnly && !l.IsPDF {
			continue
		}
		entries = append(entries, feed.Entry{
			Title:   links.EntryTitle(l.Link),
			Link:    l.Link,
			Created: now,
		})
	}

	_, err = o.publisher.Publish(ctx, feed.Channel{
		Title:       src.FeedTitle,
		Description: src.FeedDescription,
		Link:        src.SourceURL,
		OutputName:  src.OutputFilename,
	}, entries)
	if err != nil {
		return stats, failure.New(failure.Persistence, "publish feed", src.SourceURL, err)
	}

	return stats, nil
}
