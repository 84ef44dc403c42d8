package store

import (
	"context"
	"errors"
	"time"

	"github.com/statewatch-hq/statewatch-harvester/internal/domain"
	"github.com/statewatch-hq/statewatch-harvester/pkg/scrape"
)

// ErrNotFound is returned when no record exists for a feed key.
var ErrNotFound = errors.New("feed not found")

// Record is the persisted state for one feed key: the latest document plus
// the conditional-request validators for per-URL feeds.
type Record struct {
	CountryID  string            `bson:"country_id" json:"country_id"`
	FeedType   domain.FeedType   `bson:"feed_type" json:"feed_type"`
	URL        string            `bson:"url,omitempty" json:"url,omitempty"`
	Document   domain.Document   `bson:"document" json:"document"`
	Validators scrape.Validators `bson:"validators,omitempty" json:"validators,omitempty"`
	UpdatedAt  time.Time         `bson:"updated_at" json:"updated_at"`
}

// Key returns the identity of the record.
func (r Record) Key() domain.Key {
	return domain.Key{CountryID: r.CountryID, FeedType: r.FeedType, URL: r.URL}
}

// LogEntry is one append-only audit row describing a harvest outcome.
type LogEntry struct {
	CountryID string          `bson:"country_id" json:"country_id"`
	FeedType  domain.FeedType `bson:"feed_type" json:"feed_type"`
	URL       string          `bson:"url,omitempty" json:"url,omitempty"`
	Handle    string          `bson:"handle,omitempty" json:"handle,omitempty"`
	Status    string          `bson:"status" json:"status"`
	Reason    string          `bson:"reason,omitempty" json:"reason,omitempty"`
	ItemCount int             `bson:"item_count" json:"item_count"`
	At        time.Time       `bson:"at" json:"at"`
}

// FeedStore persists feed documents keyed per (country, feed type[, url]) and
// an append-only harvest log. Implementations must make UpsertFeed replace
// the whole record so repeated runs stay idempotent.
type FeedStore interface {
	UpsertFeed(ctx context.Context, rec Record) error
	FindFeed(ctx context.Context, key domain.Key) (*Record, error)
	AppendLog(ctx context.Context, entry LogEntry) error
	Close(ctx context.Context) error
}
