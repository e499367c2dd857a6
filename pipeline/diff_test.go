package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/linkfeed/classifier"
	"github.com/pevans/linkfeed/failure"
)

type staticLinks struct {
	set map[string]struct{}
	err error
}

func (s staticLinks) ExistingLinks(context.Context, string) (map[string]struct{}, error) {
	return s.set, s.err
}

// countingProber classifies by suffix and counts probes per URL.
type countingProber struct {
	calls map[string]int
}

func (p *countingProber) Probe(_ context.Context, url string) classifier.Result {
	if p.calls == nil {
		p.calls = map[string]int{}
	}
	p.calls[url]++
	if strings.HasSuffix(url, ".pdf") {
		return classifier.Result{IsPDF: true, ContentType: "application/pdf", StatusCode: 200}
	}
	if strings.Contains(url, "broken") {
		return classifier.Result{ContentType: classifier.UnknownContentType, StatusCode: 500, Err: errors.New("boom")}
	}
	return classifier.Result{ContentType: "text/html", StatusCode: 200}
}

// TestDiff_DropsExistingAndRepeats verifies known links are skipped and each
// survivor is probed once
func TestDiff_DropsExistingAndRepeats(t *testing.T) {
	known := staticLinks{set: map[string]struct{}{"https://x.test/a": {}}}
	prober := &countingProber{}
	d := NewDiffEngine(known, prober, nil)

	newLinks, newPdfs, err := d.Diff(context.Background(), "Feed", "https://x.test/", []string{
		"https://x.test/a",
		"https://x.test/b.pdf",
		"https://x.test/c",
		"https://x.test/b.pdf",
		"https://x.test/broken",
	})
	require.NoError(t, err)

	require.Len(t, newLinks, 3)
	assert.Equal(t, "https://x.test/b.pdf", newLinks[0].Link)
	assert.True(t, newLinks[0].IsPDF)
	assert.Equal(t, "application/pdf", newLinks[0].ContentType)
	assert.Equal(t, "https://x.test/", newLinks[0].SourceURL)
	assert.Equal(t, "https://x.test/c", newLinks[1].Link)
	assert.False(t, newLinks[1].IsPDF)
	assert.Equal(t, "https://x.test/broken", newLinks[2].Link)
	assert.Equal(t, "unknown", newLinks[2].ContentType)
	assert.Equal(t, 500, newLinks[2].HTTPStatus)

	assert.Equal(t, []string{"https://x.test/b.pdf"}, newPdfs)

	assert.Zero(t, prober.calls["https://x.test/a"], "known links are never probed")
	assert.Equal(t, 1, prober.calls["https://x.test/b.pdf"])
}

// TestDiff_NothingNew verifies an all-known page yields empty results
func TestDiff_NothingNew(t *testing.T) {
	known := staticLinks{set: map[string]struct{}{"https://x.test/a": {}}}
	newLinks, newPdfs, err := NewDiffEngine(known, &countingProber{}, nil).
		Diff(context.Background(), "Feed", "https://x.test/", []string{"https://x.test/a"})
	require.NoError(t, err)
	assert.Empty(t, newLinks)
	assert.Empty(t, newPdfs)
}

// TestDiff_LoadFailure verifies load errors surface as persistence failures
func TestDiff_LoadFailure(t *testing.T) {
	prober := &countingProber{}
	d := NewDiffEngine(staticLinks{err: errors.New("database is locked")}, prober, nil)

	_, _, err := d.Diff(context.Background(), "Feed", "https://x.test/", []string{"https://x.test/a"})
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.Persistence))
	assert.Empty(t, prober.calls)
}
