package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/statewatch-hq/statewatch-harvester/internal/domain"
	"github.com/statewatch-hq/statewatch-harvester/internal/sources"
	"github.com/statewatch-hq/statewatch-harvester/internal/store"
	"github.com/statewatch-hq/statewatch-harvester/pkg/httpclient"
	"github.com/statewatch-hq/statewatch-harvester/pkg/scrape"
	"github.com/statewatch-hq/statewatch-harvester/pkg/twitter"
)

const indiaListing = `<!doctype html>
<html>
<head><link rel="icon" href="/fav.ico"></head>
<body>
<div>
  <a href="/story/economy-rebounds">Economy rebounds after hard quarter</a>
  <p>Growth returned across most sectors.</p>
</div>
<div>
  <a href="/story/cricket-final">Cricket final draws record crowd numbers</a>
</div>
</body></html>`

const tweetsFixture = `{
  "data": [{
    "id": "42",
    "text": "Exports review meeting held.",
    "author_id": "u1",
    "created_at": "2026-08-01T09:00:00Z"
  }],
  "includes": {"users": [{"id": "u1", "name": "Ministry", "username": "MEAIndia"}]},
  "meta": {"result_count": 1}
}`

func loadTestRegistry(t *testing.T, content string) *sources.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	reg, err := sources.LoadRegistry(path)
	require.NoError(t, err)
	return reg
}

func newBoltStore(t *testing.T) *store.BoltStore {
	t.Helper()
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "harvest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	return st
}

func TestRunHarvestsPageFeed(t *testing.T) {
	etagHits := 0
	pages := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/india":
			if r.Header.Get("If-None-Match") == `"v1"` {
				etagHits++
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Header().Set("ETag", `"v1"`)
			fmt.Fprint(w, indiaListing)
		case "/story/economy-rebounds":
			fmt.Fprint(w, `<html><head><meta property="og:image" content="/img/econ.jpg"></head></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer pages.Close()

	reg := loadTestRegistry(t, fmt.Sprintf(`
countries:
  - id: in
    name: India
    news_sources:
      - %s/india
    keywords: [economy]
`, pages.URL))

	st := newBoltStore(t)
	client := httpclient.NewRestyClient(5 * time.Second)

	h := New(Config{
		Registry:         reg,
		Pages:            httpclient.NewBounded(client, 20),
		Thumbs:           scrape.NewThumbFetcher(client, 2, nil),
		Store:            st,
		BreakerThreshold: 3,
	})

	ctx := context.Background()
	stats := h.Run(ctx)
	_, _, items, failures := stats.Snapshot()
	require.Equal(t, int64(1), items)
	require.Zero(t, failures)

	key := domain.Key{CountryID: "in", FeedType: domain.FeedMain, URL: pages.URL + "/india"}
	rec, err := st.FindFeed(ctx, key)
	require.NoError(t, err)

	ch := rec.Document.Channel
	require.Equal(t, domain.StatusSuccess, ch.Meta.Status)
	require.Equal(t, 1, ch.Meta.ArticleCount)
	require.Len(t, ch.Items, 1)
	require.Equal(t, "Economy rebounds after hard quarter", ch.Items[0].Title)
	require.Equal(t, pages.URL+"/img/econ.jpg", ch.Items[0].Thumbnail)
	require.NotNil(t, ch.Image)
	require.Equal(t, pages.URL+"/fav.ico", ch.Image.URL)
	require.Equal(t, `"v1"`, rec.Validators.ETag)

	// Second run: the page answers 304 and the stored row stays untouched.
	firstUpdated := rec.UpdatedAt
	h.Run(ctx)
	require.Equal(t, 1, etagHits)

	again, err := st.FindFeed(ctx, key)
	require.NoError(t, err)
	require.Equal(t, firstUpdated, again.UpdatedAt)
	require.Len(t, again.Document.Channel.Items, 1)

	logs, err := st.Logs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, domain.StatusSuccess, logs[0].Status)
	require.Equal(t, "skipped", logs[1].Status)
	require.Equal(t, "not_modified", logs[1].Reason)
}

func TestRunRecordsErrorDocument(t *testing.T) {
	pages := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer pages.Close()

	reg := loadTestRegistry(t, fmt.Sprintf(`
countries:
  - id: in
    name: India
    news_sources:
      - %s/india
    keywords: [economy]
`, pages.URL))

	st := newBoltStore(t)
	h := New(Config{
		Registry:         reg,
		Pages:            httpclient.NewRestyClient(5 * time.Second),
		Store:            st,
		BreakerThreshold: 3,
	})

	ctx := context.Background()
	stats := h.Run(ctx)
	_, _, _, failures := stats.Snapshot()
	require.Equal(t, int64(1), failures)

	rec, err := st.FindFeed(ctx, domain.Key{CountryID: "in", FeedType: domain.FeedMain, URL: pages.URL + "/india"})
	require.NoError(t, err)
	require.Equal(t, domain.StatusError, rec.Document.Channel.Meta.Status)
	require.Contains(t, rec.Document.Channel.Meta.Reason, "status 503")
	require.Empty(t, rec.Document.Channel.Items)
}

func TestRunHarvestsSocialFeeds(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, tweetsFixture)
	}))
	defer api.Close()

	reg := loadTestRegistry(t, `
countries:
  - id: in
    name: India
    government_messaging: [MEAIndia]
    breaking_news:
      handle: ndtv
      keyword: "#BREAKING"
`)

	st := newBoltStore(t)
	social := twitter.New(twitter.Config{
		HTTP:        httpclient.NewRestyClient(5 * time.Second),
		BearerToken: "token",
		SearchURL:   api.URL,
	})

	h := New(Config{
		Registry: reg,
		Pages:    httpclient.NewRestyClient(5 * time.Second),
		Social:   social,
		Store:    st,
	})

	ctx := context.Background()
	stats := h.Run(ctx)
	apiCalls, _, items, _ := stats.Snapshot()
	require.Equal(t, int64(2), apiCalls, "one search per handle target")
	require.Equal(t, int64(2), items)

	gov, err := st.FindFeed(ctx, domain.Key{CountryID: "in", FeedType: domain.FeedGovernmentMessaging})
	require.NoError(t, err)
	require.Equal(t, domain.StatusSuccess, gov.Document.Channel.Meta.Status)
	require.Equal(t, 1, gov.Document.Channel.Meta.TweetCount)
	require.Equal(t, 1, gov.Document.Channel.Meta.APIHits)
	require.Equal(t, "Ministry (@MEAIndia)", gov.Document.Channel.Items[0].Creator)

	breaking, err := st.FindFeed(ctx, domain.Key{CountryID: "in", FeedType: domain.FeedBreakingNews})
	require.NoError(t, err)
	require.Equal(t, 1, breaking.Document.Channel.Meta.TweetCount)

	// Families with no configured handles write nothing.
	_, err = st.FindFeed(ctx, domain.Key{CountryID: "in", FeedType: domain.FeedEmbassyMention})
	require.ErrorIs(t, err, store.ErrNotFound)

	// Each searched handle lands its own audit row before the document row.
	logs, err := st.Logs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 4)
	require.Equal(t, "ndtv", logs[0].Handle)
	require.Equal(t, domain.StatusSuccess, logs[0].Status)
	require.Equal(t, 1, logs[0].ItemCount)
	require.Empty(t, logs[1].Handle)
	require.Equal(t, domain.FeedBreakingNews, logs[1].FeedType)
	require.Equal(t, "MEAIndia", logs[2].Handle)
	require.Equal(t, domain.FeedGovernmentMessaging, logs[2].FeedType)
	require.Empty(t, logs[3].Handle)
}

func TestRunSocialLogsFailedHandle(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("query"), "PIBIndia") {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		fmt.Fprint(w, tweetsFixture)
	}))
	defer api.Close()

	reg := loadTestRegistry(t, `
countries:
  - id: in
    name: India
    government_messaging: [MEAIndia, PIBIndia]
`)

	st := newBoltStore(t)
	social := twitter.New(twitter.Config{
		HTTP:        httpclient.NewRestyClient(5 * time.Second),
		BearerToken: "token",
		SearchURL:   api.URL,
	})

	h := New(Config{Registry: reg, Pages: httpclient.NewRestyClient(5 * time.Second), Social: social, Store: st})
	ctx := context.Background()
	h.Run(ctx)

	// The surviving handle still produces a success document.
	rec, err := st.FindFeed(ctx, domain.Key{CountryID: "in", FeedType: domain.FeedGovernmentMessaging})
	require.NoError(t, err)
	require.Equal(t, domain.StatusSuccess, rec.Document.Channel.Meta.Status)
	require.Equal(t, 1, rec.Document.Channel.Meta.TweetCount)

	// The failed handle is still accounted for in the audit log.
	logs, err := st.Logs(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	require.Equal(t, "MEAIndia", logs[0].Handle)
	require.Equal(t, domain.StatusSuccess, logs[0].Status)
	require.Equal(t, "PIBIndia", logs[1].Handle)
	require.Equal(t, domain.StatusError, logs[1].Status)
	require.Contains(t, logs[1].Reason, "status 403")
	require.Empty(t, logs[2].Handle)
	require.Equal(t, domain.StatusSuccess, logs[2].Status)
}

func TestRunSocialAllTargetsFailing(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer api.Close()

	reg := loadTestRegistry(t, `
countries:
  - id: in
    name: India
    government_messaging: [MEAIndia]
`)

	st := newBoltStore(t)
	social := twitter.New(twitter.Config{
		HTTP:        httpclient.NewRestyClient(5 * time.Second),
		BearerToken: "token",
		SearchURL:   api.URL,
	})

	h := New(Config{Registry: reg, Pages: httpclient.NewRestyClient(5 * time.Second), Social: social, Store: st})
	h.Run(context.Background())

	rec, err := st.FindFeed(context.Background(), domain.Key{CountryID: "in", FeedType: domain.FeedGovernmentMessaging})
	require.NoError(t, err)
	require.Equal(t, domain.StatusError, rec.Document.Channel.Meta.Status)
	require.Contains(t, rec.Document.Channel.Meta.Reason, "status 401")
}
