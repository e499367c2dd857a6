package fetcher

import (
	"math/rand/v2"
	"net/http"
	"time"
)

// Politeness decides how long to wait before a request and which identity
// headers to send with it.
type Politeness interface {
	Delay() time.Duration
	Headers() http.Header
}

// DefaultUserAgents is the identity pool used when none is configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
}

// browserHeaders builds the header set every request carries next to the
// user agent.
func browserHeaders(userAgent string) http.Header {
	h := make(http.Header)
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	return h
}

// RandomPolicy waits a uniformly random delay in [0, MaxDelay) and rotates
// user agents at random.
type RandomPolicy struct {
	MaxDelay   time.Duration
	UserAgents []string
}

// NewRandomPolicy returns a RandomPolicy, falling back to DefaultUserAgents
// when userAgents is empty.
func NewRandomPolicy(maxDelay time.Duration, userAgents []string) *RandomPolicy {
	if len(userAgents) == 0 {
		userAgents = DefaultUserAgents
	}
	return &RandomPolicy{MaxDelay: maxDelay, UserAgents: userAgents}
}

func (p *RandomPolicy) Delay() time.Duration {
	if p.MaxDelay <= 0 {
		return 0
	}
	return rand.N(p.MaxDelay)
}

func (p *RandomPolicy) Headers() http.Header {
	agents := p.UserAgents
	if len(agents) == 0 {
		agents = DefaultUserAgents
	}
	return browserHeaders(agents[rand.IntN(len(agents))])
}

// StaticPolicy always waits Wait and always sends UserAgent.
type StaticPolicy struct {
	Wait      time.Duration
	UserAgent string
}

func (p StaticPolicy) Delay() time.Duration {
	return p.Wait
}

func (p StaticPolicy) Headers() http.Header {
	ua := p.UserAgent
	if ua == "" {
		ua = DefaultUserAgents[0]
	}
	return browserHeaders(ua)
}
