// Package feed writes per-source RSS documents and reads them back for
// listing.
package feed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"github.com/pevans/linkfeed/logger"
)

var ErrInvalidName = errors.New("invalid feed file name")

// Channel describes one RSS document.
type Channel struct {
	Title       string
	Description string
	// Link is the page the feed was built from.
	Link string
	// OutputName is the file name inside the output directory.
	OutputName string
}

// Entry is one feed item.
type Entry struct {
	Title   string
	Link    string
	Created time.Time
}

// Publisher writes RSS 2.0 files into a directory.
type Publisher struct {
	dir string
	now func() time.Time
	log logger.Logger
}

// NewPublisher creates a Publisher writing into dir. The directory is
// created on first use.
func NewPublisher(dir string, log logger.Logger) *Publisher {
	if log == nil {
		log = logger.NewNop()
	}
	return &Publisher{dir: dir, now: time.Now, log: log}
}

// ValidName reports whether name is a plain file name that cannot escape
// the output directory.
func ValidName(name string) bool {
	if name == "" || name == "." || strings.Contains(name, "..") {
		return false
	}
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	return filepath.Base(name) == name
}

// Publish renders ch and entries as RSS and replaces the file
// <dir>/<ch.OutputName>. The file is written to a temporary name first and
// renamed into place, so readers never see a partial document. It returns
// the path written.
func (p *Publisher) Publish(ctx context.Context, ch Channel, entries []Entry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !ValidName(ch.OutputName) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, ch.OutputName)
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create feed directory: %w", err)
	}

	now := p.now().UTC()
	rss := &feeds.Feed{
		Title:       ch.Title,
		Link:        &feeds.Link{Href: ch.Link},
		Description: ch.Description,
		Created:     now,
	}
	for _, e := range entries {
		created := e.Created
		if created.IsZero() {
			created = now
		}
		rss.Items = append(rss.Items, &feeds.Item{
			Title:   e.Title,
			Link:    &feeds.Link{Href: e.Link},
			Id:      e.Link,
			Created: created,
		})
	}

	path := filepath.Join(p.dir, ch.OutputName)

	tmp, err := os.CreateTemp(p.dir, "."+ch.OutputName+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := rss.WriteRss(tmp); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write feed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close feed: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("failed to replace feed: %w", err)
	}

	p.log.Info("Saved RSS feed",
		logger.String("feed_title", ch.Title),
		logger.String("path", path),
		logger.Int("entries", len(entries)))

	return path, nil
}
