package pdfextract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/linkfeed/failure"
	"github.com/pevans/linkfeed/fetcher"
	"github.com/pevans/linkfeed/store"
)

type key struct{ feed, url string }

// memStore is an in-memory Store.
type memStore struct {
	links     map[key]bool
	pdfs      map[key]*store.PdfDocument
	insertErr error
	checkErr  error
}

func newMemStore() *memStore {
	return &memStore{links: map[key]bool{}, pdfs: map[key]*store.PdfDocument{}}
}

func (m *memStore) PdfExists(_ context.Context, feedTitle, pdfURL string) (bool, error) {
	if m.checkErr != nil {
		return false, m.checkErr
	}
	_, ok := m.pdfs[key{feedTitle, pdfURL}]
	return ok, nil
}

func (m *memStore) LinkExists(_ context.Context, feedTitle, link string) (bool, error) {
	return m.links[key{feedTitle, link}], nil
}

func (m *memStore) InsertPdf(_ context.Context, doc *store.PdfDocument) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.pdfs[key{doc.FeedTitle, doc.PdfURL}] = doc
	return nil
}

// stubParser returns a fixed document or error.
type stubParser struct {
	doc   *Document
	err   error
	calls int
}

func (p *stubParser) Parse(data []byte) (*Document, error) {
	p.calls++
	return p.doc, p.err
}

type testEnv struct {
	server   *httptest.Server
	store    *memStore
	parser   *stubParser
	requests *atomic.Int32
	ext      *Extractor
}

var fixedNow = time.Date(2024, 3, 9, 16, 45, 0, 0, time.UTC)

func newTestEnv(t *testing.T, handler http.HandlerFunc) *testEnv {
	t.Helper()

	requests := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	env := &testEnv{
		server:   server,
		store:    newMemStore(),
		parser:   &stubParser{doc: &Document{Content: "hello", Title: "T", Author: "A", NumberOfPages: 3}},
		requests: requests,
	}
	env.ext = New(Options{
		Store:    env.store,
		Fetcher:  fetcher.New(fetcher.Options{Policy: fetcher.StaticPolicy{}}),
		Parser:   env.parser,
		Timeout:  time.Second,
		MaxBytes: 64,
		Now:      func() time.Time { return fixedNow },
	})
	return env
}

func servePDF(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte(body))
	}
}

// TestExtractAndStore_Success verifies a stored row carries parsed fields,
// the page title and the download size
func TestExtractAndStore_Success(t *testing.T) {
	env := newTestEnv(t, servePDF("%PDF-fake-body"))
	pdfURL := env.server.URL + "/a.pdf"
	env.store.links[key{"City Council", pdfURL}] = true

	ok, err := env.ext.ExtractAndStore(context.Background(), "City Council", pdfURL, "https://example.com/")
	require.NoError(t, err)
	assert.True(t, ok)

	doc := env.store.pdfs[key{"City Council", pdfURL}]
	require.NotNil(t, doc)
	assert.Equal(t, "https://example.com/", doc.SourceLink)
	assert.Equal(t, "hello", doc.Content)
	assert.Equal(t, "T", doc.Title)
	assert.Equal(t, "A", doc.Author)
	assert.Equal(t, "", doc.CreationDate)
	assert.Equal(t, 3, doc.NumberOfPages)
	assert.Equal(t, int64(len("%PDF-fake-body")), doc.FileSizeBytes)
	assert.Equal(t, "City_Council_2024-03-09", doc.PageTitle)
	assert.Equal(t, fixedNow, doc.DateProcessed)
}

// TestExtractAndStore_ExactlyOnce verifies a second call for the same key
// neither downloads nor writes
func TestExtractAndStore_ExactlyOnce(t *testing.T) {
	env := newTestEnv(t, servePDF("%PDF"))
	pdfURL := env.server.URL + "/a.pdf"
	env.store.links[key{"Feed", pdfURL}] = true

	ok, err := env.ext.ExtractAndStore(context.Background(), "Feed", pdfURL, "src")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.ext.ExtractAndStore(context.Background(), "Feed", pdfURL, "src")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, int32(1), env.requests.Load())
	assert.Equal(t, 1, env.parser.calls)
	assert.Len(t, env.store.pdfs, 1)
}

// TestExtractAndStore_UnrecordedLink verifies nothing is fetched for a link
// missing from all_links
func TestExtractAndStore_UnrecordedLink(t *testing.T) {
	env := newTestEnv(t, servePDF("%PDF"))

	ok, err := env.ext.ExtractAndStore(context.Background(), "Feed", env.server.URL+"/a.pdf", "src")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(0), env.requests.Load())
	assert.Empty(t, env.store.pdfs)
}

// TestExtractAndStore_DownloadFailure verifies HTTP errors are network
// failures and nothing is stored
func TestExtractAndStore_DownloadFailure(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) }},
		{"non-200 success", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNonAuthoritativeInfo) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.handler)
			pdfURL := env.server.URL + "/a.pdf"
			env.store.links[key{"Feed", pdfURL}] = true

			ok, err := env.ext.ExtractAndStore(context.Background(), "Feed", pdfURL, "src")
			require.Error(t, err)
			assert.False(t, ok)
			assert.True(t, failure.Is(err, failure.Network))
			assert.Equal(t, 0, env.parser.calls)
			assert.Empty(t, env.store.pdfs)
		})
	}
}

// TestExtractAndStore_ParseFailure verifies unparseable documents write no
// row
func TestExtractAndStore_ParseFailure(t *testing.T) {
	env := newTestEnv(t, servePDF("not a pdf"))
	env.parser.err = errors.New("malformed xref")
	pdfURL := env.server.URL + "/a.pdf"
	env.store.links[key{"Feed", pdfURL}] = true

	ok, err := env.ext.ExtractAndStore(context.Background(), "Feed", pdfURL, "src")
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, failure.Is(err, failure.Parse))
	assert.Empty(t, env.store.pdfs)
}

// TestExtractAndStore_TooLarge verifies the download cap
func TestExtractAndStore_TooLarge(t *testing.T) {
	env := newTestEnv(t, servePDF(strings.Repeat("x", 65)))
	pdfURL := env.server.URL + "/big.pdf"
	env.store.links[key{"Feed", pdfURL}] = true

	_, err := env.ext.ExtractAndStore(context.Background(), "Feed", pdfURL, "src")
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.Parse))
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Equal(t, 0, env.parser.calls)
}

// TestExtractAndStore_StoreErrors verifies storage errors propagate
func TestExtractAndStore_StoreErrors(t *testing.T) {
	env := newTestEnv(t, servePDF("%PDF"))
	pdfURL := env.server.URL + "/a.pdf"
	env.store.links[key{"Feed", pdfURL}] = true

	env.store.insertErr = failure.New(failure.Persistence, "insert pdf", pdfURL, errors.New("constraint"))
	ok, err := env.ext.ExtractAndStore(context.Background(), "Feed", pdfURL, "src")
	assert.False(t, ok)
	assert.True(t, failure.Is(err, failure.Persistence))

	env.store.checkErr = failure.New(failure.Persistence, "check pdf", pdfURL, errors.New("locked"))
	_, err = env.ext.ExtractAndStore(context.Background(), "Feed", pdfURL, "src")
	assert.True(t, failure.Is(err, failure.Persistence))
}

func TestPageTitle(t *testing.T) {
	assert.Equal(t, "Planning_Board_Minutes_2024-12-31",
		PageTitle("Planning Board Minutes", time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Feed_2025-01-02", PageTitle("Feed", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)))
}
