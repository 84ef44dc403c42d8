package domain

import "time"

// Domain contains core models shared by the scrape pipeline.

// FeedType labels the category a harvested document belongs to.
type FeedType string

const (
	FeedMain                FeedType = "MAIN_FEED"
	FeedUSMentions          FeedType = "US_MENTIONS"
	FeedBreakingNews        FeedType = "BREAKING_NEWS"
	FeedGovernmentMessaging FeedType = "GOVERNMENT_MESSAGING"
	FeedLeadershipMessaging FeedType = "LEADERSHIP_MESSAGING"
	FeedEmbassyMention      FeedType = "EMBASSY_MENTION"
	FeedAmbassadorMention   FeedType = "AMBASSADOR_MENTION"
	FeedDailySummary        FeedType = "DAILY_SUMMARY"
)

// PerURL reports whether documents of this feed type are keyed per source URL.
// HTML-scraped families keep one row per (country, url) so conditional-request
// validators stay meaningful per physical page; every other family keeps one
// merged row per country.
func (ft FeedType) PerURL() bool {
	return ft == FeedMain || ft == FeedUSMentions
}

// Social reports whether the feed is fed by the social search API. Social
// documents count tweets; page-scraped and summary documents count articles.
func (ft FeedType) Social() bool {
	switch ft {
	case FeedBreakingNews, FeedGovernmentMessaging, FeedLeadershipMessaging,
		FeedEmbassyMention, FeedAmbassadorMention:
		return true
	}
	return false
}

// Title renders the feed type as a human heading, e.g. "Government Messaging".
func (ft FeedType) Title() string {
	s := string(ft)
	out := make([]byte, 0, len(s))
	up := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_':
			out = append(out, ' ')
			up = true
		case up:
			out = append(out, c)
			up = false
		default:
			if c >= 'A' && c <= 'Z' {
				c += 'a' - 'A'
			}
			out = append(out, c)
		}
	}
	return string(out)
}

// Country is externally owned; the pipeline looks countries up, never creates them.
type Country struct {
	ID   string
	Name string
}

// Key identifies exactly one persisted feed document. URL is empty for merged
// families and required for per-URL families.
type Key struct {
	CountryID string
	FeedType  FeedType
	URL       string
}

// Document statuses recorded in channel meta.
const (
	StatusSuccess = "success"
	StatusEmpty   = "empty"
	StatusError   = "error"
)

// GUID mirrors the RSS guid element of a harvested item.
type GUID struct {
	IsPermaLink bool   `json:"isPermaLink"`
	Value       string `json:"value"`
}

// Item is one harvested article or post, shaped for the persisted channel
// payload. PublishedAt backs the cross-source sort and is not serialized;
// PubDate carries the display form.
type Item struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Link        string   `json:"link"`
	GUID        GUID     `json:"guid"`
	Creator     string   `json:"dc:creator"`
	PubDate     string   `json:"pubDate"`
	Images      []string `json:"images,omitempty"`
	SiteImage   string   `json:"thumbnails,omitempty"`
	Thumbnail   string   `json:"thumbnail_url,omitempty"`

	PublishedAt time.Time `json:"-"`
}

// Meta carries per-document observability fields.
type Meta struct {
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
	ArticleCount int    `json:"article_count,omitempty"`
	TweetCount   int    `json:"tweet_count,omitempty"`
	APIHits      int    `json:"api_hits,omitempty"`
}

// ChannelImage is the optional feed-level image.
type ChannelImage struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Link  string `json:"link"`
}

// Channel is the persisted snapshot of one feed.
type Channel struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Link        string        `json:"link,omitempty"`
	Items       []Item        `json:"items"`
	Meta        Meta          `json:"meta"`
	Image       *ChannelImage `json:"image,omitempty"`
}

// Document is the unit of persistence: one channel per key.
type Document struct {
	Channel Channel `json:"channel"`
}
