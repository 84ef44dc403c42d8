package scrape

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/statewatch-hq/statewatch-harvester/pkg/httpclient"
)

// Validators holds the conditional-request tokens remembered for one source
// page. Empty fields mean the server never sent the corresponding header.
type Validators struct {
	ETag         string `json:"etag,omitempty" bson:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty" bson:"last_modified,omitempty"`
}

// Empty reports whether no validator is available for the page.
func (v Validators) Empty() bool { return v.ETag == "" && v.LastModified == "" }

// PageResult is the outcome of one conditional page fetch. NotModified means
// the server answered 304 and Body is nil; the caller must leave the stored
// document untouched. Validators always carries whatever tokens the latest
// 2xx response advertised, replacing the previous ones even when absent.
type PageResult struct {
	Body        []byte
	Validators  Validators
	NotModified bool
}

// FetchPage performs a conditional GET against one source page, sending the
// remembered validators when present.
func FetchPage(ctx context.Context, client httpclient.Client, url string, prev Validators) (*PageResult, error) {
	headers := map[string]string{}
	if prev.ETag != "" {
		headers["If-None-Match"] = prev.ETag
	}
	if prev.LastModified != "" {
		headers["If-Modified-Since"] = prev.LastModified
	}

	resp, err := client.Get(ctx, url, headers)
	if err != nil {
		return nil, fmt.Errorf("fetch page %s: %w", url, err)
	}

	code := resp.StatusCode()
	if code == http.StatusNotModified {
		return &PageResult{Validators: prev, NotModified: true}, nil
	}
	if code < 200 || code > 299 {
		return nil, fmt.Errorf("page %s returned status %d body: %s", url, code, responseSnippet(resp.Body()))
	}

	return &PageResult{
		Body: resp.Body(),
		Validators: Validators{
			ETag:         resp.Header().Get("ETag"),
			LastModified: resp.Header().Get("Last-Modified"),
		},
	}, nil
}

func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
