package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PdfDocument is a row of pdf_content: the text and metadata pulled out of
// one PDF link.
type PdfDocument struct {
	ID               int64     `db:"id" json:"id"`
	FeedTitle        string    `db:"feed_title" json:"feed_title"`
	PdfURL           string    `db:"pdf_url" json:"pdf_url"`
	SourceLink       string    `db:"source_link" json:"source_link"`
	Content          string    `db:"content" json:"content"`
	Title            string    `db:"title" json:"title"`
	PageTitle        string    `db:"page_title" json:"page_title"`
	Author           string    `db:"author" json:"author"`
	CreationDate     string    `db:"creation_date" json:"creation_date"`
	ModificationDate string    `db:"modification_date" json:"modification_date"`
	NumberOfPages    int       `db:"number_of_pages" json:"number_of_pages"`
	FileSizeBytes    int64     `db:"file_size_bytes" json:"file_size_bytes"`
	DateProcessed    time.Time `db:"date_processed" json:"date_processed"`
}

const pdfColumns = `id, feed_title, pdf_url, source_link, content, title, page_title,
	author, creation_date, modification_date, number_of_pages, file_size_bytes, date_processed`

// PdfExists reports whether a document is already stored for
// (feedTitle, pdfURL).
func (s *Store) PdfExists(ctx context.Context, feedTitle, pdfURL string) (bool, error) {
	var exists bool
	query := s.db.Rebind(`SELECT EXISTS (SELECT 1 FROM pdf_content WHERE feed_title = ? AND pdf_url = ?)`)
	if err := s.db.GetContext(ctx, &exists, query, feedTitle, pdfURL); err != nil {
		return false, persistence("check pdf", pdfURL, fmt.Errorf("failed to query pdf: %w", err))
	}
	return exists, nil
}

// InsertPdf stores doc and sets its ID. The matching all_links row must
// already exist.
func (s *Store) InsertPdf(ctx context.Context, doc *PdfDocument) error {
	doc.DateProcessed = utc(doc.DateProcessed)

	query := `INSERT INTO pdf_content
		(feed_title, pdf_url, source_link, content, title, page_title, author,
		 creation_date, modification_date, number_of_pages, file_size_bytes, date_processed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := []any{
		doc.FeedTitle, doc.PdfURL, doc.SourceLink, doc.Content, doc.Title, doc.PageTitle, doc.Author,
		doc.CreationDate, doc.ModificationDate, doc.NumberOfPages, doc.FileSizeBytes, doc.DateProcessed,
	}

	// lib/pq does not implement LastInsertId
	if s.db.DriverName() == DriverPostgres {
		err := s.db.QueryRowxContext(ctx, s.db.Rebind(query+" RETURNING id"), args...).Scan(&doc.ID)
		if err != nil {
			return persistence("insert pdf", doc.PdfURL, fmt.Errorf("failed to insert pdf: %w", err))
		}
		return nil
	}

	result, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return persistence("insert pdf", doc.PdfURL, fmt.Errorf("failed to insert pdf: %w", err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return persistence("insert pdf", doc.PdfURL, fmt.Errorf("failed to get inserted id: %w", err))
	}
	doc.ID = id

	return nil
}

// ListPdfs returns every stored document, newest first.
func (s *Store) ListPdfs(ctx context.Context) ([]PdfDocument, error) {
	return s.selectPdfs(ctx, `SELECT `+pdfColumns+` FROM pdf_content ORDER BY date_processed DESC, id DESC`)
}

// PdfsByDateRange returns documents processed on any day from start to end
// inclusive, newest first. Only the calendar dates of start and end are
// used.
func (s *Store) PdfsByDateRange(ctx context.Context, start, end time.Time) ([]PdfDocument, error) {
	from := startOfDay(start)
	until := startOfDay(end).AddDate(0, 0, 1)

	return s.selectPdfs(ctx, `SELECT `+pdfColumns+` FROM pdf_content
		WHERE date_processed >= ? AND date_processed < ?
		ORDER BY date_processed DESC, id DESC`, from, until)
}

// PdfsBySource returns documents found on the page at sourceURL, newest
// first.
func (s *Store) PdfsBySource(ctx context.Context, sourceURL string) ([]PdfDocument, error) {
	return s.selectPdfs(ctx, `SELECT `+pdfColumns+` FROM pdf_content
		WHERE source_link = ?
		ORDER BY date_processed DESC, id DESC`, sourceURL)
}

// PdfByID returns one document or ErrNotFound.
func (s *Store) PdfByID(ctx context.Context, id int64) (*PdfDocument, error) {
	var doc PdfDocument
	query := s.db.Rebind(`SELECT ` + pdfColumns + ` FROM pdf_content WHERE id = ?`)

	err := s.db.GetContext(ctx, &doc, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistence("get pdf", "", fmt.Errorf("failed to query pdf %d: %w", id, err))
	}

	return &doc, nil
}

func (s *Store) selectPdfs(ctx context.Context, query string, args ...any) ([]PdfDocument, error) {
	docs := []PdfDocument{}
	if err := s.db.SelectContext(ctx, &docs, s.db.Rebind(query), args...); err != nil {
		return nil, persistence("list pdfs", "", fmt.Errorf("failed to query pdfs: %w", err))
	}
	return docs, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
