package publishers

import (
	"context"
	"time"
)

// FeedEvent announces that one feed document was rewritten. Downstream
// consumers key on country and feed type; URL is set only for per-URL feeds.
type FeedEvent struct {
	CountryID string    `json:"country_id"`
	FeedType  string    `json:"feed_type"`
	URL       string    `json:"url,omitempty"`
	Status    string    `json:"status"`
	ItemCount int       `json:"item_count"`
	At        time.Time `json:"at"`
}

// Publisher delivers feed events to one configured sink.
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt FeedEvent) error
}

// Logger is the minimal logging surface publishers need; it matches the
// application logger so any implementation can be passed straight through.
type Logger interface {
	DebugObj(msg, event string, fields map[string]any)
	InfoObj(msg, event string, fields map[string]any)
	WarnObj(msg, event string, fields map[string]any)
	ErrorObj(msg, event string, fields map[string]any)
}

type nopLogger struct{}

func (nopLogger) DebugObj(string, string, map[string]any) {}
func (nopLogger) InfoObj(string, string, map[string]any)  {}
func (nopLogger) WarnObj(string, string, map[string]any)  {}
func (nopLogger) ErrorObj(string, string, map[string]any) {}

func ensureLogger(log Logger) Logger {
	if log == nil {
		return nopLogger{}
	}
	return log
}

// Fanout broadcasts each event to every publisher. Delivery failures are
// logged and swallowed; event publication never blocks or fails a harvest.
type Fanout struct {
	pubs []Publisher
	log  Logger
}

// NewFanout builds a fanout over the given publishers.
func NewFanout(pubs []Publisher, log Logger) *Fanout {
	return &Fanout{pubs: pubs, log: ensureLogger(log)}
}

// Publish sends the event to every sink.
func (f *Fanout) Publish(ctx context.Context, evt FeedEvent) {
	if f == nil {
		return
	}
	for _, p := range f.pubs {
		if err := p.Publish(ctx, evt); err != nil {
			f.log.ErrorObj("feed event delivery failed", "publisher_error", map[string]any{
				"publisher": p.ID(),
				"type":      p.Type(),
				"country":   evt.CountryID,
				"feed":      evt.FeedType,
				"error":     err.Error(),
			})
		}
	}
}
