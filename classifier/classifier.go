// Package classifier decides whether a link points at a PDF by probing its
// Content-Type. URL suffixes are not trusted: PDF links frequently have no
// recognizable extension.
package classifier

import (
	"context"
	"strings"
	"time"

	"github.com/pevans/linkfeed/fetcher"
	"github.com/pevans/linkfeed/logger"
)

const (
	// PDFMediaType is the token looked for in the Content-Type header.
	PDFMediaType = "application/pdf"
	// UnknownContentType is recorded when the probe failed or the server
	// sent no Content-Type.
	UnknownContentType = "unknown"
)

// Getter is the part of fetcher.Fetcher the classifier needs.
type Getter interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) (*fetcher.Response, error)
}

// Result is the outcome of probing one link.
type Result struct {
	IsPDF       bool
	ContentType string
	// StatusCode is the HTTP status seen, or 0 when no response arrived.
	StatusCode int
	Err        error
}

// Classifier probes links with full GET requests. Some servers mishandle
// HEAD, so the body is requested and then closed without being read.
type Classifier struct {
	fetch   Getter
	timeout time.Duration
	log     logger.Logger
}

// New creates a Classifier.
func New(fetch Getter, timeout time.Duration, log logger.Logger) *Classifier {
	if log == nil {
		log = logger.NewNop()
	}
	return &Classifier{fetch: fetch, timeout: timeout, log: log}
}

// Probe fetches url and inspects its Content-Type. A failed request is
// reported as non-PDF with the error attached.
func (c *Classifier) Probe(ctx context.Context, url string) Result {
	resp, err := c.fetch.Fetch(ctx, url, c.timeout)
	if err != nil {
		c.log.Error("Failed to verify Content-Type", logger.String("url", url), logger.Err(err))
		return Result{
			ContentType: UnknownContentType,
			StatusCode:  fetcher.StatusCodeOf(err),
			Err:         err,
		}
	}
	resp.Close()

	contentType := strings.ToLower(strings.TrimSpace(resp.ContentType()))
	c.log.Debug("Probed link", logger.String("url", url), logger.String("content_type", contentType))

	result := Result{
		IsPDF:       IsPDFContentType(contentType),
		ContentType: contentType,
		StatusCode:  resp.StatusCode,
	}
	if result.ContentType == "" {
		result.ContentType = UnknownContentType
	}
	return result
}

// IsPDF reports whether url serves a PDF. Failures count as non-PDF.
func (c *Classifier) IsPDF(ctx context.Context, url string) bool {
	return c.Probe(ctx, url).IsPDF
}

// IsPDFContentType reports whether a Content-Type value names a PDF.
func IsPDFContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), PDFMediaType)
}
