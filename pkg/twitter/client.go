package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/statewatch-hq/statewatch-harvester/internal/domain"
	"github.com/statewatch-hq/statewatch-harvester/internal/logger"
	"github.com/statewatch-hq/statewatch-harvester/pkg/httpclient"
)

// ErrRateLimitExhausted reports that the API kept answering 429 until the
// retry attempts or the time budget ran out. The caller records the feed as
// errored and moves on; it never blocks the rest of the run.
var ErrRateLimitExhausted = errors.New("rate limit retry budget exhausted")

const (
	defaultSearchURL   = "https://api.twitter.com/2/tweets/search/recent"
	defaultLookback    = 48 * time.Hour
	defaultMaxAttempts = 5
	defaultRetryBudget = 15 * time.Minute

	// minRateLimitWait floors the 429 backoff so a stale or missing reset
	// header cannot turn the retry loop into a hot spin.
	minRateLimitWait = 15 * time.Second

	maxResults = 100
)

// Config wires a search client.
type Config struct {
	HTTP        httpclient.Client
	BearerToken string
	SearchURL   string
	Lookback    time.Duration
	MaxAttempts int
	RetryBudget time.Duration
	Logger      logger.Logger
}

// Client queries the recent-search API with bounded rate-limit retries.
type Client struct {
	http        httpclient.Client
	bearer      string
	searchURL   string
	lookback    time.Duration
	maxAttempts int
	retryBudget time.Duration
	log         logger.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a Client, filling unset knobs with defaults.
func New(cfg Config) *Client {
	c := &Client{
		http:        cfg.HTTP,
		bearer:      cfg.BearerToken,
		searchURL:   cfg.SearchURL,
		lookback:    cfg.Lookback,
		maxAttempts: cfg.MaxAttempts,
		retryBudget: cfg.RetryBudget,
		log:         cfg.Logger,
		now:         time.Now,
		sleep:       sleepCtx,
	}
	if c.searchURL == "" {
		c.searchURL = defaultSearchURL
	}
	if c.lookback <= 0 {
		c.lookback = defaultLookback
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.retryBudget <= 0 {
		c.retryBudget = defaultRetryBudget
	}
	if c.log == nil {
		c.log = logger.NopLogger{}
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SearchResult is one decoded recent-search page plus how many API calls it
// cost, including rate-limited retries.
type SearchResult struct {
	Tweets  []Tweet
	Media   map[string]Media
	Users   map[string]User
	APIHits int
}

// Tweet is the subset of tweet fields the feeds consume.
type Tweet struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	AuthorID    string    `json:"author_id"`
	CreatedAt   time.Time `json:"created_at"`
	Attachments struct {
		MediaKeys []string `json:"media_keys"`
	} `json:"attachments"`
}

// Media is one attachment from the includes block.
type Media struct {
	MediaKey        string `json:"media_key"`
	Type            string `json:"type"`
	URL             string `json:"url"`
	PreviewImageURL string `json:"preview_image_url"`
}

// User is one author from the includes block.
type User struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url"`
}

type searchResponse struct {
	Data     []Tweet `json:"data"`
	Includes struct {
		Media []Media `json:"media"`
		Users []User  `json:"users"`
	} `json:"includes"`
	Meta struct {
		ResultCount int `json:"result_count"`
	} `json:"meta"`
}

// BuildQuery renders the search query for a handle target. Messaging feeds
// read the handle's own posts, mention feeds read posts about the handle,
// and keyword targets search the term directly.
func BuildQuery(t domain.HandleTarget) string {
	switch t.Mode {
	case domain.ModeAbout:
		return fmt.Sprintf("@%s -from:%s", t.Handle, t.Handle)
	case domain.ModeKeyword:
		if t.Keyword != "" {
			return t.Keyword
		}
		return t.Handle
	default:
		q := fmt.Sprintf("from:%s", t.Handle)
		if t.Keyword != "" {
			q += " " + t.Keyword
		}
		return q + " -is:retweet -is:reply"
	}
}

// Search runs one recent-search query for the target, retrying through rate
// limits within the attempt and time budget. stats counters are bumped for
// every request issued.
func (c *Client) Search(ctx context.Context, target domain.HandleTarget, stats *domain.RunStats) (*SearchResult, error) {
	query := BuildQuery(target)
	params := url.Values{}
	params.Set("query", query)
	params.Set("max_results", strconv.Itoa(maxResults))
	params.Set("start_time", c.now().Add(-c.lookback).UTC().Format(time.RFC3339))
	params.Set("tweet.fields", "created_at,author_id,attachments")
	params.Set("expansions", "attachments.media_keys,author_id")
	params.Set("media.fields", "media_key,type,url,preview_image_url")
	params.Set("user.fields", "name,username,profile_image_url")

	reqURL := c.searchURL + "?" + params.Encode()
	headers := map[string]string{"Authorization": "Bearer " + c.bearer}

	deadline := c.now().Add(c.retryBudget)
	hits := 0

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.http.Get(ctx, reqURL, headers)
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", query, err)
		}
		hits++
		if stats != nil {
			stats.APICalls.Add(1)
		}

		code := resp.StatusCode()
		switch {
		case code == http.StatusOK:
			var decoded searchResponse
			if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
				return nil, fmt.Errorf("decode search response for %q: %w", query, err)
			}
			return buildResult(decoded, hits), nil

		case code == http.StatusTooManyRequests:
			if stats != nil {
				stats.RateLimited.Add(1)
			}
			wait := c.rateLimitWait(resp.Header().Get("x-rate-limit-reset"))
			c.log.WarnObj("search rate limited", "rate_limited", map[string]any{
				"query":   query,
				"attempt": attempt,
				"wait":    wait.String(),
			})
			if attempt == c.maxAttempts || c.now().Add(wait).After(deadline) {
				return nil, fmt.Errorf("search %q after %d attempts: %w", query, attempt, ErrRateLimitExhausted)
			}
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("search %q returned status %d body: %s", query, code, bodySnippet(resp.Body()))
		}
	}

	return nil, fmt.Errorf("search %q: %w", query, ErrRateLimitExhausted)
}

// rateLimitWait derives the backoff from the reset header, floored at
// minRateLimitWait.
func (c *Client) rateLimitWait(resetHeader string) time.Duration {
	wait := minRateLimitWait
	if epoch, err := strconv.ParseInt(strings.TrimSpace(resetHeader), 10, 64); err == nil {
		if until := time.Unix(epoch, 0).Sub(c.now()); until > wait {
			wait = until
		}
	}
	return wait
}

func buildResult(decoded searchResponse, hits int) *SearchResult {
	res := &SearchResult{
		Tweets:  decoded.Data,
		Media:   make(map[string]Media, len(decoded.Includes.Media)),
		Users:   make(map[string]User, len(decoded.Includes.Users)),
		APIHits: hits,
	}
	for _, m := range decoded.Includes.Media {
		res.Media[m.MediaKey] = m
	}
	for _, u := range decoded.Includes.Users {
		res.Users[u.ID] = u
	}
	return res
}

func bodySnippet(body []byte) string {
	const maxLen = 256
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
