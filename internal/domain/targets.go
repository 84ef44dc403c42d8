package domain

import "sync/atomic"

// QueryMode selects how a handle is searched on the social API.
type QueryMode string

const (
	// ModeSelf returns posts authored by the handle, excluding retweets and replies.
	ModeSelf QueryMode = "self"
	// ModeAbout returns posts mentioning the handle, excluding the handle's own.
	ModeAbout QueryMode = "about"
	// ModeKeyword treats the endpoint as a plain search term.
	ModeKeyword QueryMode = "keyword"
)

// Target is one unit of scrape work: a page URL or a social handle, plus the
// keywords and feed type that shape its output.
type Target interface {
	// Endpoint is the URL for page targets and the handle for social targets.
	Endpoint() string
	Feed() FeedType
}

// PageTarget scrapes one HTML source for a country.
type PageTarget struct {
	CountryID string
	URL       string
	Keywords  []string
	FeedType  FeedType
}

func (t PageTarget) Endpoint() string { return t.URL }
func (t PageTarget) Feed() FeedType   { return t.FeedType }

// HandleTarget searches the social API for one handle (or keyword).
type HandleTarget struct {
	CountryID string
	Handle    string
	Keyword   string
	Mode      QueryMode
	FeedType  FeedType
}

func (t HandleTarget) Endpoint() string { return t.Handle }
func (t HandleTarget) Feed() FeedType   { return t.FeedType }

// RunStats accumulates per-run counters. It is threaded explicitly through the
// orchestrator and API client instead of living in package globals, so runs
// stay re-entrant and testable.
type RunStats struct {
	APICalls    atomic.Int64
	RateLimited atomic.Int64
	Items       atomic.Int64
	Failures    atomic.Int64
}

// Snapshot returns the current counter values.
func (s *RunStats) Snapshot() (apiCalls, rateLimited, items, failures int64) {
	return s.APICalls.Load(), s.RateLimited.Load(), s.Items.Load(), s.Failures.Load()
}
