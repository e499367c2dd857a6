package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// NewLink is a freshly discovered, classified link ready to be written.
type NewLink struct {
	Link        string
	SourceURL   string
	IsPDF       bool
	ContentType string
	// HTTPStatus is stored as NULL when zero.
	HTTPStatus int
}

// LinkRecord is a row of all_links.
type LinkRecord struct {
	ID          int64         `db:"id" json:"id"`
	FeedTitle   string        `db:"feed_title" json:"feed_title"`
	Link        string        `db:"link" json:"link"`
	SourceURL   string        `db:"source_url" json:"source_url"`
	IsPDF       bool          `db:"is_pdf" json:"is_pdf"`
	ContentType string        `db:"content_type" json:"content_type"`
	FirstSeen   time.Time     `db:"first_seen" json:"first_seen"`
	LastChecked time.Time     `db:"last_checked" json:"last_checked"`
	TimesSeen   int           `db:"times_seen" json:"times_seen"`
	HTTPStatus  sql.NullInt64 `db:"http_status" json:"-"`
}

const linkColumns = `id, feed_title, link, source_url, is_pdf, content_type,
	first_seen, last_checked, times_seen, http_status`

// ExistingLinks loads every link already recorded for feedTitle in a single
// query.
func (s *Store) ExistingLinks(ctx context.Context, feedTitle string) (map[string]struct{}, error) {
	var links []string
	query := s.db.Rebind(`SELECT link FROM all_links WHERE feed_title = ?`)
	if err := s.db.SelectContext(ctx, &links, query, feedTitle); err != nil {
		return nil, persistence("load existing links", "", fmt.Errorf("failed to query links for %q: %w", feedTitle, err))
	}

	set := make(map[string]struct{}, len(links))
	for _, l := range links {
		set[l] = struct{}{}
	}
	return set, nil
}

// LinkExists reports whether (feedTitle, link) is recorded.
func (s *Store) LinkExists(ctx context.Context, feedTitle, link string) (bool, error) {
	var exists bool
	query := s.db.Rebind(`SELECT EXISTS (SELECT 1 FROM all_links WHERE feed_title = ? AND link = ?)`)
	if err := s.db.GetContext(ctx, &exists, query, feedTitle, link); err != nil {
		return false, persistence("check link", link, fmt.Errorf("failed to query link: %w", err))
	}
	return exists, nil
}

// Links returns every record for feedTitle, oldest first.
func (s *Store) Links(ctx context.Context, feedTitle string) ([]LinkRecord, error) {
	records := []LinkRecord{}
	query := s.db.Rebind(`SELECT ` + linkColumns + ` FROM all_links WHERE feed_title = ? ORDER BY id`)
	if err := s.db.SelectContext(ctx, &records, query, feedTitle); err != nil {
		return nil, persistence("list links", "", fmt.Errorf("failed to query links: %w", err))
	}
	return records, nil
}

// InsertNewLinks writes links for feedTitle in one transaction, paging the
// multi-row INSERT at 100 rows. Rows that already exist are skipped by the
// unique constraint. It returns the number of rows actually inserted; on
// error nothing from this call is kept.
func (s *Store) InsertNewLinks(ctx context.Context, feedTitle string, links []NewLink) (int, error) {
	if len(links) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, persistence("insert links", "", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	now := utc(time.Now())
	inserted := 0

	for start := 0; start < len(links); start += pageSize {
		end := min(start+pageSize, len(links))
		page := links[start:end]

		query, args := buildLinkInsert(feedTitle, page, now)
		result, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
		if err != nil {
			return 0, persistence("insert links", "", fmt.Errorf("failed to insert links: %w", err))
		}

		n, err := result.RowsAffected()
		if err != nil {
			return 0, persistence("insert links", "", fmt.Errorf("failed to get rows affected: %w", err))
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, persistence("insert links", "", fmt.Errorf("failed to commit links: %w", err))
	}

	return inserted, nil
}

func buildLinkInsert(feedTitle string, page []NewLink, now time.Time) (string, []any) {
	var b strings.Builder
	b.WriteString(`INSERT INTO all_links
		(feed_title, link, source_url, is_pdf, content_type, first_seen, last_checked, times_seen, http_status)
		VALUES `)

	args := make([]any, 0, len(page)*8)
	for i, l := range page {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?, ?, 1, ?)")

		contentType := l.ContentType
		if contentType == "" {
			contentType = "unknown"
		}
		var status any
		if l.HTTPStatus != 0 {
			status = l.HTTPStatus
		}

		args = append(args, feedTitle, l.Link, l.SourceURL, l.IsPDF, contentType, now, now, status)
	}
	b.WriteString(" ON CONFLICT (feed_title, link) DO NOTHING")

	return b.String(), args
}
