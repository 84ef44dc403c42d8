package httpclient

import (
	"context"
	"math/rand"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client is the minimal HTTP surface the scrape pipeline needs.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
}

// Response exposes the parts of an HTTP response the pipeline reads.
// *resty.Response satisfies it directly.
type Response interface {
	StatusCode() int
	Body() []byte
	Header() http.Header
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Chrome/116.0 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:116.0) Gecko/20100101 Firefox/116.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0 Safari/537.36 Edg/117.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 13; Pixel 6 Pro) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0 Mobile Safari/537.36",
}

type restyClient struct {
	rc *resty.Client
}

// NewRestyClient returns a resty-backed client with a shared connection pool.
// One instance is reused across the whole run for keep-alive efficiency.
func NewRestyClient(timeout time.Duration) Client {
	rc := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10)).
		SetHeader("User-Agent", userAgents[rand.Intn(len(userAgents))]).
		SetHeader("Accept-Language", "en-US,en;q=0.9")
	return &restyClient{rc: rc}
}

func (c *restyClient) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	req := c.rc.R().SetContext(ctx)
	if len(headers) > 0 {
		req.SetHeaders(headers)
	}
	resp, err := req.Get(url)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// NewBounded wraps a client with a counting semaphore capping the number of
// in-flight requests across the whole process, so one country's source list
// cannot starve the others.
func NewBounded(inner Client, max int) Client {
	if max <= 0 {
		return inner
	}
	return &boundedClient{inner: inner, slots: make(chan struct{}, max)}
}

type boundedClient struct {
	inner Client
	slots chan struct{}
}

func (c *boundedClient) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	select {
	case c.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.slots }()
	return c.inner.Get(ctx, url, headers)
}
