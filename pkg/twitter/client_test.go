package twitter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/statewatch-hq/statewatch-harvester/internal/domain"
	"github.com/statewatch-hq/statewatch-harvester/internal/logger"
	"github.com/statewatch-hq/statewatch-harvester/pkg/httpclient"
)

const searchFixture = `{
  "data": [
    {
      "id": "1001",
      "text": "Trade talks concluded today.",
      "author_id": "u1",
      "created_at": "2026-08-01T10:30:00Z",
      "attachments": {"media_keys": ["m1"]}
    }
  ],
  "includes": {
    "media": [{"media_key": "m1", "type": "photo", "url": "https://pbs.example.com/p1.jpg"}],
    "users": [{"id": "u1", "name": "Ministry", "username": "ministry", "profile_image_url": "https://pbs.example.com/avatar.jpg"}]
  },
  "meta": {"result_count": 1}
}`

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name   string
		target domain.HandleTarget
		want   string
	}{
		{
			name:   "self excludes retweets and replies",
			target: domain.HandleTarget{Handle: "ministry", Mode: domain.ModeSelf},
			want:   "from:ministry -is:retweet -is:reply",
		},
		{
			name:   "self with keyword",
			target: domain.HandleTarget{Handle: "ndtv", Keyword: "#BREAKING", Mode: domain.ModeSelf},
			want:   "from:ndtv #BREAKING -is:retweet -is:reply",
		},
		{
			name:   "about excludes own posts",
			target: domain.HandleTarget{Handle: "USAndIndia", Mode: domain.ModeAbout},
			want:   "@USAndIndia -from:USAndIndia",
		},
		{
			name:   "keyword mode",
			target: domain.HandleTarget{Keyword: "sanctions", Mode: domain.ModeKeyword},
			want:   "sanctions",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, BuildQuery(tc.target))
		})
	}
}

func newTestClient(t *testing.T, srvURL string) *Client {
	t.Helper()
	return New(Config{
		HTTP:        httpclient.NewRestyClient(5 * time.Second),
		BearerToken: "test-token",
		SearchURL:   srvURL,
		MaxAttempts: 3,
		RetryBudget: time.Hour,
	})
}

func TestSearchDecodesPage(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("query")
		fmt.Fprint(w, searchFixture)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	stats := &domain.RunStats{}

	res, err := c.Search(context.Background(), domain.HandleTarget{Handle: "ministry", Mode: domain.ModeSelf}, stats)
	require.NoError(t, err)
	require.Equal(t, "Bearer test-token", gotAuth)
	require.Equal(t, "from:ministry -is:retweet -is:reply", gotQuery)

	require.Len(t, res.Tweets, 1)
	require.Equal(t, "1001", res.Tweets[0].ID)
	require.Equal(t, "photo", res.Media["m1"].Type)
	require.Equal(t, "ministry", res.Users["u1"].Username)
	require.Equal(t, 1, res.APIHits)
	require.Equal(t, int64(1), stats.APICalls.Load())
}

func TestSearchRetriesThroughRateLimit(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("x-rate-limit-reset", strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10))
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, searchFixture)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	stats := &domain.RunStats{}
	res, err := c.Search(context.Background(), domain.HandleTarget{Handle: "ministry", Mode: domain.ModeSelf}, stats)
	require.NoError(t, err)
	require.Equal(t, 2, res.APIHits)
	require.Equal(t, int64(1), stats.RateLimited.Load())

	require.Len(t, slept, 1)
	// Reset is a minute out, so the wait tracks it rather than the floor.
	require.Greater(t, slept[0], minRateLimitWait)
}

func TestSearchRateLimitFloor(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			// Stale reset in the past; the floor must apply.
			w.Header().Set("x-rate-limit-reset", "1000")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, searchFixture)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	_, err := c.Search(context.Background(), domain.HandleTarget{Handle: "ministry", Mode: domain.ModeSelf}, nil)
	require.NoError(t, err)
	require.Equal(t, []time.Duration{minRateLimitWait}, slept)
}

// recordingLogger captures emitted warn events for assertions.
type recordingLogger struct {
	logger.NopLogger

	mu     sync.Mutex
	events []string
}

func (l *recordingLogger) WarnObj(_, event string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func TestSearchRateLimitExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.sleep = func(context.Context, time.Duration) error { return nil }

	rec := &recordingLogger{}
	c.log = rec

	stats := &domain.RunStats{}
	_, err := c.Search(context.Background(), domain.HandleTarget{Handle: "ministry", Mode: domain.ModeSelf}, stats)
	require.ErrorIs(t, err, ErrRateLimitExhausted)
	require.Equal(t, int64(3), stats.APICalls.Load())
	require.Equal(t, int64(3), stats.RateLimited.Load())

	// Every 429 is warn-logged, the one that exhausts the budget included.
	require.Equal(t, []string{"rate_limited", "rate_limited", "rate_limited"}, rec.events)
}

func TestSearchNonRetryableStatus(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Search(context.Background(), domain.HandleTarget{Handle: "ministry", Mode: domain.ModeSelf}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 401")
	require.Equal(t, 1, calls, "non-429 statuses are not retried")
}
