package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/linkfeed/failure"
)

func newTestFetcher() *Fetcher {
	return New(Options{Policy: StaticPolicy{UserAgent: "linkfeed-test"}})
}

// TestFetch_Success verifies headers are sent and the body is left unread
func TestFetch_Success(t *testing.T) {
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, "<html><body>ok</body></html>")
	}))
	defer server.Close()

	resp, err := newTestFetcher().Fetch(context.Background(), server.URL, time.Second)
	require.NoError(t, err)
	defer resp.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.ContentType())

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "<html><body>ok</body></html>", string(body))

	assert.Equal(t, "linkfeed-test", gotHeaders.Get("User-Agent"))
	assert.Equal(t, "en-US,en;q=0.5", gotHeaders.Get("Accept-Language"))
	assert.Equal(t, "1", gotHeaders.Get("Upgrade-Insecure-Requests"))
	assert.Contains(t, gotHeaders.Get("Accept"), "text/html")
}

// TestFetch_NonSuccessStatus verifies non-2xx responses become network
// failures carrying the status code
func TestFetch_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	resp, err := newTestFetcher().Fetch(context.Background(), server.URL, time.Second)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, failure.Is(err, failure.Network))
	assert.Equal(t, http.StatusNotFound, StatusCodeOf(err))
}

// TestFetch_ConnectionRefused verifies transport errors are network failures
func TestFetch_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := newTestFetcher().Fetch(context.Background(), url, time.Second)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.Network))
	assert.Equal(t, 0, StatusCodeOf(err))
}

// TestFetch_InvalidURL verifies malformed URLs don't panic
func TestFetch_InvalidURL(t *testing.T) {
	_, err := newTestFetcher().Fetch(context.Background(), "http://[::1", time.Second)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.Network))
}

// TestFetch_Timeout verifies the per-call timeout applies
func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	start := time.Now()
	_, err := newTestFetcher().Fetch(context.Background(), server.URL, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.Network))
	assert.Less(t, time.Since(start), 5*time.Second)
}

// TestFetch_CancelledContext verifies a cancelled context stops the delay
func TestFetch_CancelledContext(t *testing.T) {
	f := New(Options{Policy: StaticPolicy{Wait: time.Hour}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, "http://example.invalid", time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestFetch_RateLimit verifies the limiter spaces requests
func TestFetch_RateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	f := New(Options{Policy: StaticPolicy{}, RequestsPerSecond: 20})

	start := time.Now()
	for i := 0; i < 3; i++ {
		resp, err := f.Fetch(context.Background(), server.URL, time.Second)
		require.NoError(t, err)
		resp.Close()
	}

	// Burst of 1 at 20/s: the 2nd and 3rd request each wait ~50ms
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

// TestRandomPolicy verifies delay bounds and user agent rotation
func TestRandomPolicy(t *testing.T) {
	p := NewRandomPolicy(50*time.Millisecond, nil)

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		d := p.Delay()
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, 50*time.Millisecond)
		seen[p.Headers().Get("User-Agent")] = true
	}

	for ua := range seen {
		assert.Contains(t, DefaultUserAgents, ua)
	}
	assert.Greater(t, len(seen), 1, "should rotate user agents")
}

// TestRandomPolicy_ZeroDelay verifies a zero ceiling never sleeps
func TestRandomPolicy_ZeroDelay(t *testing.T) {
	p := NewRandomPolicy(0, []string{"only"})
	assert.Equal(t, time.Duration(0), p.Delay())
	assert.Equal(t, "only", p.Headers().Get("User-Agent"))
}
