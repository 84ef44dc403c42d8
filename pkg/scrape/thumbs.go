package scrape

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/statewatch-hq/statewatch-harvester/internal/domain"
	"github.com/statewatch-hq/statewatch-harvester/internal/logger"
	"github.com/statewatch-hq/statewatch-harvester/pkg/httpclient"
)

const (
	defaultThumbWorkers  = 4
	thumbFetchAttempts   = 3
	thumbRetryBaseDelay  = time.Second
	ogImageProperty      = `meta[property="og:image"]`
	twitterImageProperty = `meta[name="twitter:image"]`
)

// ThumbFetcher resolves article thumbnails by fetching each matched article
// page and reading its social preview image.
type ThumbFetcher struct {
	client  httpclient.Client
	log     logger.Logger
	workers int
}

// NewThumbFetcher builds a fetcher with the given worker count.
func NewThumbFetcher(client httpclient.Client, workers int, log logger.Logger) *ThumbFetcher {
	if workers <= 0 {
		workers = defaultThumbWorkers
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &ThumbFetcher{client: client, log: log, workers: workers}
}

// Enrich fills Thumbnail for each item in place. Items whose article page
// cannot be fetched or carries no preview image keep an empty thumbnail; a
// missed thumbnail never fails the feed.
func (f *ThumbFetcher) Enrich(ctx context.Context, items []domain.Item) {
	if len(items) == 0 {
		return
	}

	jobCh := make(chan int)
	var wg sync.WaitGroup

	workers := f.workers
	if workers > len(items) {
		workers = len(items)
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobCh {
				items[idx].Thumbnail = f.fetchThumbnail(ctx, items[idx].Link)
			}
		}()
	}

	for i := range items {
		select {
		case jobCh <- i:
		case <-ctx.Done():
			close(jobCh)
			wg.Wait()
			return
		}
	}
	close(jobCh)
	wg.Wait()
}

func (f *ThumbFetcher) fetchThumbnail(ctx context.Context, link string) string {
	var lastErr error
	for attempt := 1; attempt <= thumbFetchAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(time.Duration(attempt-1) * thumbRetryBaseDelay):
			case <-ctx.Done():
				return ""
			}
		}

		resp, err := f.client.Get(ctx, link, nil)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode() != http.StatusOK {
			lastErr = nil
			f.log.DebugObj("thumbnail page returned non-200", "thumb_skip", map[string]any{
				"url":    link,
				"status": resp.StatusCode(),
			})
			return ""
		}

		doc, err := ParseDocument(resp.Body())
		if err != nil {
			lastErr = err
			continue
		}
		return previewImage(doc, link)
	}

	if lastErr != nil {
		f.log.DebugObj("thumbnail fetch failed", "thumb_error", map[string]any{
			"url":   link,
			"error": lastErr.Error(),
		})
	}
	return ""
}

// previewImage reads the og:image (or twitter:image fallback) of an article
// page, resolved against the article URL.
func previewImage(doc *goquery.Document, pageURL string) string {
	base, _ := url.Parse(pageURL)

	for _, sel := range []string{ogImageProperty, twitterImageProperty} {
		if content := strings.TrimSpace(doc.Find(sel).AttrOr("content", "")); content != "" {
			if resolved := resolveURL(base, content); resolved != "" {
				return NormalizeImageURL(resolved)
			}
		}
	}
	return ""
}

var transformParam = regexp.MustCompile(`^[a-z]+_[^/]+$`)

// NormalizeImageURL strips CDN transformation parameters from upload-style
// image URLs, keeping only the width so the stored link stays cacheable and
// stable across crops. Non-CDN URLs pass through unchanged.
func NormalizeImageURL(raw string) string {
	const marker = "/upload/"

	idx := strings.Index(raw, marker)
	if idx < 0 {
		return raw
	}

	rest := raw[idx+len(marker):]
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) < 2 {
		return raw
	}

	var width string
	isTransform := true
	for _, p := range strings.Split(parts[0], ",") {
		if !transformParam.MatchString(p) {
			isTransform = false
			break
		}
		if strings.HasPrefix(p, "w_") && width == "" {
			width = p
		}
	}
	if !isTransform {
		return raw
	}

	prefix := raw[:idx+len(marker)]
	if width == "" {
		return prefix + parts[1]
	}
	return prefix + width + "/" + parts[1]
}
