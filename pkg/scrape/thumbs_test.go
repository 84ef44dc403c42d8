package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/statewatch-hq/statewatch-harvester/internal/domain"
	"github.com/statewatch-hq/statewatch-harvester/pkg/httpclient"
)

func TestThumbFetcherEnrich(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/with-image":
			fmt.Fprint(w, `<html><head><meta property="og:image" content="/img/preview.jpg"></head></html>`)
		case "/twitter-only":
			fmt.Fprint(w, `<html><head><meta name="twitter:image" content="https://cdn.example.com/tw.jpg"></head></html>`)
		case "/no-image":
			fmt.Fprint(w, `<html><head><title>plain</title></head></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	items := []domain.Item{
		{Link: srv.URL + "/with-image"},
		{Link: srv.URL + "/twitter-only"},
		{Link: srv.URL + "/no-image"},
		{Link: srv.URL + "/missing"},
	}

	f := NewThumbFetcher(httpclient.NewRestyClient(5*time.Second), 2, nil)
	f.Enrich(context.Background(), items)

	require.Equal(t, srv.URL+"/img/preview.jpg", items[0].Thumbnail)
	require.Equal(t, "https://cdn.example.com/tw.jpg", items[1].Thumbnail)
	require.Empty(t, items[2].Thumbnail)
	require.Empty(t, items[3].Thumbnail)
}

func TestThumbFetcherSharesFetchCap(t *testing.T) {
	var mu sync.Mutex
	inflight, maxInflight := 0, 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		inflight++
		if inflight > maxInflight {
			maxInflight = inflight
		}
		mu.Unlock()

		time.Sleep(30 * time.Millisecond)

		mu.Lock()
		inflight--
		mu.Unlock()
		fmt.Fprint(w, `<html><head><meta property="og:image" content="/p.jpg"></head></html>`)
	}))
	defer srv.Close()

	items := []domain.Item{
		{Link: srv.URL + "/a"},
		{Link: srv.URL + "/b"},
		{Link: srv.URL + "/c"},
		{Link: srv.URL + "/d"},
	}

	// A bounded client caps thumbnail fetches even with more workers.
	bounded := httpclient.NewBounded(httpclient.NewRestyClient(5*time.Second), 1)
	f := NewThumbFetcher(bounded, 4, nil)
	f.Enrich(context.Background(), items)

	require.Equal(t, 1, maxInflight)
	for _, it := range items {
		require.Equal(t, srv.URL+"/p.jpg", it.Thumbnail)
	}
}

func TestThumbFetcherHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := []domain.Item{{Link: "https://unreachable.invalid/a"}}
	f := NewThumbFetcher(httpclient.NewRestyClient(time.Second), 1, nil)

	done := make(chan struct{})
	go func() {
		f.Enrich(ctx, items)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Enrich did not return after context cancellation")
	}
	require.Empty(t, items[0].Thumbnail)
}
