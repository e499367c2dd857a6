// Package links pulls candidate links out of a fetched HTML page.
package links

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/pevans/linkfeed/failure"
	"github.com/pevans/linkfeed/logger"
)

// Parse parses an HTML body into a goquery document.
func Parse(r io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, failure.New(failure.Parse, "parse html", "", fmt.Errorf("failed to parse HTML: %w", err))
	}
	return doc, nil
}

// Extractor selects link attributes from a parsed document.
type Extractor struct {
	log logger.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(log logger.Logger) *Extractor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Extractor{log: log}
}

// Extract returns, in document order, the href of every element matching
// selector, or its src when href is missing or empty. Duplicates are kept.
// An invalid selector yields an empty result and a logged error.
func (e *Extractor) Extract(doc *goquery.Document, selector string) []string {
	links := []string{}
	if doc == nil {
		return links
	}

	// goquery silently matches nothing on a bad selector, so compile it
	// first to surface the error
	if _, err := cascadia.Compile(selector); err != nil {
		e.log.Error("Error extracting links", logger.String("selector", selector), logger.Err(err))
		return links
	}

	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && strings.TrimSpace(href) != "" {
			links = append(links, strings.TrimSpace(href))
			return
		}
		if src, ok := s.Attr("src"); ok && strings.TrimSpace(src) != "" {
			links = append(links, strings.TrimSpace(src))
		}
	})

	e.log.Debug("Extracted links", logger.String("selector", selector), logger.Int("count", len(links)))
	return links
}

// Resolve makes raw absolute against base. Only http and https results are
// accepted; mailto:, javascript: and unparseable references are rejected.
// An href that is already an absolute http(s) URL is returned as written so
// it matches links stored under the same spelling.
func Resolve(base *url.URL, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		if ref.Host == "" {
			return "", false
		}
		return raw, true
	}

	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}

	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	if abs.Host == "" {
		return "", false
	}

	return abs.String(), true
}

// ResolveAll resolves every raw link against baseURL in order, dropping the
// ones Resolve rejects.
func ResolveAll(baseURL string, raw []string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	resolved := make([]string, 0, len(raw))
	for _, r := range raw {
		if abs, ok := Resolve(base, r); ok {
			resolved = append(resolved, abs)
		}
	}
	return resolved, nil
}

// EntryTitle derives a feed entry title from a link: its last path segment,
// or the link itself when there is none.
func EntryTitle(link string) string {
	trimmed := link
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		if last := trimmed[i+1:]; last != "" {
			if unescaped, err := url.PathUnescape(last); err == nil {
				return unescaped
			}
			return last
		}
	}
	return link
}
