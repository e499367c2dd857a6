package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPublisher(t *testing.T) (*Publisher, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "rss")
	p := NewPublisher(dir, nil)
	p.now = func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) }
	return p, dir
}

// TestPublish_WritesRSS verifies the channel and entries round-trip through
// an RSS parser
func TestPublish_WritesRSS(t *testing.T) {
	p, dir := newTestPublisher(t)

	path, err := p.Publish(context.Background(), Channel{
		Title:       "City Minutes",
		Description: "Automatically generated feed",
		Link:        "https://example.com/minutes",
		OutputName:  "City_Minutes_feed.xml",
	}, []Entry{
		{Title: "jan.pdf", Link: "https://example.com/files/jan.pdf"},
		{Title: "feb.pdf", Link: "https://example.com/files/feb.pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "City_Minutes_feed.xml"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	parsed, err := gofeed.NewParser().Parse(f)
	require.NoError(t, err)

	assert.Equal(t, "rss", parsed.FeedType)
	assert.Equal(t, "City Minutes", parsed.Title)
	assert.Equal(t, "Automatically generated feed", parsed.Description)
	assert.Equal(t, "https://example.com/minutes", parsed.Link)
	require.Len(t, parsed.Items, 2)
	assert.Equal(t, "jan.pdf", parsed.Items[0].Title)
	assert.Equal(t, "https://example.com/files/jan.pdf", parsed.Items[0].Link)
	assert.Equal(t, "feb.pdf", parsed.Items[1].Title)
}

// TestPublish_ReplacesExisting verifies a second publish overwrites the
// previous document and leaves no temp files
func TestPublish_ReplacesExisting(t *testing.T) {
	p, dir := newTestPublisher(t)
	ch := Channel{Title: "Feed", Link: "https://example.com/", OutputName: "feed.xml"}

	_, err := p.Publish(context.Background(), ch, []Entry{{Title: "a", Link: "https://example.com/a"}})
	require.NoError(t, err)
	_, err = p.Publish(context.Background(), ch, nil)
	require.NoError(t, err)

	infos, err := List(dir)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "feed.xml", infos[0].Name)
	assert.Equal(t, 0, infos[0].Items)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

// TestPublish_RejectsUnsafeNames verifies names cannot leave the directory
func TestPublish_RejectsUnsafeNames(t *testing.T) {
	p, _ := newTestPublisher(t)

	for _, name := range []string{"", "../escape.xml", "sub/feed.xml", `sub\feed.xml`, ".."} {
		_, err := p.Publish(context.Background(), Channel{Title: "x", OutputName: name}, nil)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

// TestList verifies only parsed .xml files are listed, sorted by name
func TestList(t *testing.T) {
	p, dir := newTestPublisher(t)
	ctx := context.Background()

	_, err := p.Publish(ctx, Channel{Title: "Beta", Link: "https://b.example.com/", OutputName: "b.xml"},
		[]Entry{{Title: "1", Link: "https://b.example.com/1"}, {Title: "2", Link: "https://b.example.com/2"}})
	require.NoError(t, err)
	_, err = p.Publish(ctx, Channel{Title: "Alpha", Link: "https://a.example.com/", OutputName: "a.xml"}, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.xml"), []byte("not xml at all"), 0o644))

	infos, err := List(dir)
	require.NoError(t, err)
	require.Len(t, infos, 3)

	assert.Equal(t, "a.xml", infos[0].Name)
	assert.Equal(t, "Alpha", infos[0].Title)
	assert.Equal(t, "b.xml", infos[1].Name)
	assert.Equal(t, "Beta", infos[1].Title)
	assert.Equal(t, 2, infos[1].Items)
	assert.Equal(t, "broken.xml", infos[2].Name)
	assert.Equal(t, "", infos[2].Title)
}

// TestList_MissingDir verifies a missing directory lists nothing
func TestList_MissingDir(t *testing.T) {
	infos, err := List(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, infos)
}

// TestOpen verifies lookups are confined to .xml files in the directory
func TestOpen(t *testing.T) {
	p, dir := newTestPublisher(t)
	_, err := p.Publish(context.Background(), Channel{Title: "F", OutputName: "f.xml"}, nil)
	require.NoError(t, err)

	path, err := Open(dir, "f.xml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "f.xml"), path)

	_, err = Open(dir, "missing.xml")
	assert.True(t, os.IsNotExist(err))

	_, err = Open(dir, "../f.xml")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = Open(dir, "f.txt")
	assert.ErrorIs(t, err, ErrInvalidName)
}
