package pipeline

import (
	"context"

	"github.com/pevans/linkfeed/classifier"
	"github.com/pevans/linkfeed/failure"
	"github.com/pevans/linkfeed/logger"
	"github.com/pevans/linkfeed/store"
)

// LinkSet loads the links already recorded for a feed.
type LinkSet interface {
	ExistingLinks(ctx context.Context, feedTitle string) (map[string]struct{}, error)
}

// Prober classifies a link.
type Prober interface {
	Probe(ctx context.Context, url string) classifier.Result
}

// DiffEngine splits a page's candidate links into the ones not yet
// recorded, probing each survivor once. The existing set for a feed is held
// in memory for the duration of one Diff call, so memory grows with the
// number of links recorded per source.
type DiffEngine struct {
	links LinkSet
	probe Prober
	log   logger.Logger
}

// NewDiffEngine creates a DiffEngine.
func NewDiffEngine(links LinkSet, probe Prober, log logger.Logger) *DiffEngine {
	if log == nil {
		log = logger.NewNop()
	}
	return &DiffEngine{links: links, probe: probe, log: log}
}

// Diff returns the candidates not yet recorded for feedTitle, classified,
// in candidate order; newPdfLinks is the PDF subset. A candidate repeated on
// the page is considered once. Failing to load the existing set is a
// failure.Persistence error.
func (d *DiffEngine) Diff(ctx context.Context, feedTitle, sourceURL string, candidates []string) (newLinks []store.NewLink, newPdfLinks []string, err error) {
	existing, err := d.links.ExistingLinks(ctx, feedTitle)
	if err != nil {
		if failure.KindOf(err) == failure.Unknown {
			err = failure.New(failure.Persistence, "load existing links", sourceURL, err)
		}
		return nil, nil, err
	}

	seen := make(map[string]struct{}, len(candidates))
	for _, link := range candidates {
		if _, ok := existing[link]; ok {
			continue
		}
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}

		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		result := d.probe.Probe(ctx, link)
		newLinks = append(newLinks, store.NewLink{
			Link:        link,
			SourceURL:   sourceURL,
			IsPDF:       result.IsPDF,
			ContentType: result.ContentType,
			HTTPStatus:  result.StatusCode,
		})
		if result.IsPDF {
			newPdfLinks = append(newPdfLinks, link)
		}
	}

	d.log.Debug("Computed new links",
		logger.String("feed_title", feedTitle),
		logger.Int("candidates", len(candidates)),
		logger.Int("existing", len(existing)),
		logger.Int("new", len(newLinks)),
		logger.Int("new_pdfs", len(newPdfLinks)))

	return newLinks, newPdfLinks, nil
}
