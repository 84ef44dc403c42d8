package scrape

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/statewatch-hq/statewatch-harvester/internal/domain"
)

// Anchor is one headline candidate harvested from a listing page. Context is
// the text used for keyword matching: the anchor text plus nearby paragraph
// and image-caption text.
type Anchor struct {
	Title   string
	Link    string
	Context string
	Images  []string
}

// maxContextParagraphs bounds how many sibling paragraphs feed the match text.
const maxContextParagraphs = 3

// ParseDocument parses an HTML body into a goquery document.
func ParseDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// CollectAnchors harvests headline candidates from a listing page. Anchors of
// three words or fewer are navigation chrome, not headlines, and are dropped.
// Candidates are deduplicated by resolved link; the first occurrence wins.
func CollectAnchors(doc *goquery.Document, base *url.URL) []Anchor {
	var anchors []Anchor
	seen := make(map[string]struct{})

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		title := normalizeSpace(a.Text())
		if wordCount(title) <= 3 {
			return
		}

		href, _ := a.Attr("href")
		link := resolveURL(base, href)
		if link == "" {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}

		anchors = append(anchors, Anchor{
			Title:   title,
			Link:    link,
			Context: contextText(a, title),
			Images:  nearbyImages(a, base),
		})
	})

	return anchors
}

// contextText assembles the keyword-match text for one anchor: its own text,
// up to maxContextParagraphs sibling paragraphs, and image alt text from the
// parent block.
func contextText(a *goquery.Selection, title string) string {
	parts := []string{title}

	a.Siblings().Filter("p").EachWithBreak(func(i int, p *goquery.Selection) bool {
		if i >= maxContextParagraphs {
			return false
		}
		if txt := normalizeSpace(p.Text()); txt != "" {
			parts = append(parts, txt)
		}
		return true
	})

	a.Parent().Find("img[alt]").Each(func(_ int, img *goquery.Selection) {
		if alt := normalizeSpace(img.AttrOr("alt", "")); alt != "" {
			parts = append(parts, alt)
		}
	})

	return strings.Join(parts, " ")
}

func nearbyImages(a *goquery.Selection, base *url.URL) []string {
	var images []string
	a.Parent().Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		if src := resolveURL(base, img.AttrOr("src", "")); src != "" {
			images = append(images, src)
		}
	})
	return images
}

// resolveURL resolves href against the page URL and keeps only http(s) links.
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}

	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// Matcher decides whether a text block mentions any of the configured
// keywords as whole words, case-insensitively.
type Matcher struct {
	patterns []*regexp.Regexp
}

// NewMatcher compiles one whole-word pattern per keyword.
func NewMatcher(keywords []string) (*Matcher, error) {
	patterns := make([]*regexp.Regexp, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("compile keyword %q: %w", kw, err)
		}
		patterns = append(patterns, re)
	}
	if len(patterns) == 0 {
		return nil, fmt.Errorf("no usable keywords")
	}
	return &Matcher{patterns: patterns}, nil
}

// Match reports whether any keyword occurs as a whole word. An occurrence
// immediately followed by a currency sign does not count: "US$50" is a price,
// not a mention of the US.
func (m *Matcher) Match(text string) bool {
	for _, re := range m.patterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			rest := text[loc[1]:]
			if strings.HasPrefix(rest, "$") || strings.HasPrefix(rest, "€") {
				continue
			}
			return true
		}
	}
	return false
}

// FilterAnchors keeps the anchors whose context matches the keyword set.
func FilterAnchors(anchors []Anchor, m *Matcher) []Anchor {
	var out []Anchor
	for _, a := range anchors {
		if m.Match(a.Context) {
			out = append(out, a)
		}
	}
	return out
}

// Favicon returns the page's icon URL, falling back to the conventional
// /favicon.ico location.
func Favicon(doc *goquery.Document, base *url.URL) string {
	var icon string
	doc.Find(`link[rel*="icon"]`).EachWithBreak(func(_ int, l *goquery.Selection) bool {
		if href := resolveURL(base, l.AttrOr("href", "")); href != "" {
			icon = href
			return false
		}
		return true
	})
	if icon != "" {
		return icon
	}
	if base == nil || base.Host == "" {
		return ""
	}
	return base.Scheme + "://" + base.Host + "/favicon.ico"
}

// BuildItems converts matched anchors to channel items. Listing pages carry no
// per-article timestamps, so the fetch time stands in for ordering and display.
func BuildItems(anchors []Anchor, host string, fetchedAt time.Time) []domain.Item {
	items := make([]domain.Item, 0, len(anchors))
	for _, a := range anchors {
		items = append(items, domain.Item{
			Title:       a.Title,
			Description: a.Context,
			Link:        a.Link,
			GUID:        domain.GUID{IsPermaLink: true, Value: a.Link},
			Creator:     host,
			PubDate:     fetchedAt.Format(time.RFC1123),
			Images:      a.Images,
			PublishedAt: fetchedAt,
		})
	}
	return items
}
