package crawler

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/statewatch-hq/statewatch-harvester/internal/domain"
	"github.com/statewatch-hq/statewatch-harvester/internal/feed"
	"github.com/statewatch-hq/statewatch-harvester/internal/logger"
	"github.com/statewatch-hq/statewatch-harvester/internal/sources"
	"github.com/statewatch-hq/statewatch-harvester/internal/store"
	"github.com/statewatch-hq/statewatch-harvester/pkg/httpclient"
	"github.com/statewatch-hq/statewatch-harvester/pkg/publishers"
	"github.com/statewatch-hq/statewatch-harvester/pkg/scrape"
	"github.com/statewatch-hq/statewatch-harvester/pkg/twitter"
)

const defaultCountryConcurrency = 5

// pageFeeds are the HTML-scraped families, keyed per source URL.
var pageFeeds = []domain.FeedType{domain.FeedMain, domain.FeedUSMentions}

// socialFeeds are the API-backed families, one merged document per country.
var socialFeeds = []domain.FeedType{
	domain.FeedBreakingNews,
	domain.FeedGovernmentMessaging,
	domain.FeedLeadershipMessaging,
	domain.FeedEmbassyMention,
	domain.FeedAmbassadorMention,
}

// Config wires a Harvester.
type Config struct {
	Registry *sources.Registry
	Pages    httpclient.Client
	Thumbs   *scrape.ThumbFetcher
	Social   *twitter.Client
	Store    store.FeedStore
	Events   *publishers.Fanout
	Log      logger.Logger

	CountryConcurrency int
	BreakerThreshold   int
}

// Harvester runs one full scrape cycle over every configured country.
type Harvester struct {
	registry *sources.Registry
	pages    httpclient.Client
	thumbs   *scrape.ThumbFetcher
	social   *twitter.Client
	store    store.FeedStore
	events   *publishers.Fanout
	log      logger.Logger

	countryConcurrency int
	breakerThreshold   int

	now func() time.Time
}

// New builds a Harvester, filling unset knobs with defaults.
func New(cfg Config) *Harvester {
	h := &Harvester{
		registry:           cfg.Registry,
		pages:              cfg.Pages,
		thumbs:             cfg.Thumbs,
		social:             cfg.Social,
		store:              cfg.Store,
		events:             cfg.Events,
		log:                cfg.Log,
		countryConcurrency: cfg.CountryConcurrency,
		breakerThreshold:   cfg.BreakerThreshold,
		now:                time.Now,
	}
	if h.log == nil {
		h.log = logger.NopLogger{}
	}
	if h.countryConcurrency <= 0 {
		h.countryConcurrency = defaultCountryConcurrency
	}
	return h
}

// Run harvests every country concurrently, bounded by the country semaphore,
// and returns the run counters. A failing source never aborts the run.
func (h *Harvester) Run(ctx context.Context) *domain.RunStats {
	stats := &domain.RunStats{}
	breaker := NewBreaker(h.breakerThreshold)
	started := h.now()

	sem := make(chan struct{}, h.countryConcurrency)
	var wg sync.WaitGroup

	for _, cc := range h.registry.All() {
		wg.Add(1)
		go func(cc sources.CountryConfig) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()
			h.harvestCountry(ctx, cc, breaker, stats)
		}(cc)
	}
	wg.Wait()

	apiCalls, rateLimited, items, failures := stats.Snapshot()
	h.log.InfoObj("harvest run complete", "run_summary", map[string]any{
		"countries":    len(h.registry.All()),
		"api_calls":    apiCalls,
		"rate_limited": rateLimited,
		"items":        items,
		"failures":     failures,
		"elapsed":      h.now().Sub(started).String(),
	})
	return stats
}

func (h *Harvester) harvestCountry(ctx context.Context, cc sources.CountryConfig, breaker *Breaker, stats *domain.RunStats) {
	country := cc.Country()

	var wg sync.WaitGroup
	for _, ft := range pageFeeds {
		for _, target := range cc.PageTargets(ft) {
			wg.Add(1)
			go func(t domain.PageTarget) {
				defer wg.Done()
				h.harvestPage(ctx, country, t, breaker, stats)
			}(target)
		}
	}
	wg.Wait()

	if h.social == nil {
		return
	}
	for _, ft := range socialFeeds {
		h.harvestSocial(ctx, country, ft, cc.HandleTargets(ft), stats)
	}
}

// harvestPage fetches one source page and rewrites its document. A 304 leaves
// the stored record untouched; everything else, including errors, produces a
// fresh row so readers always see the latest outcome.
func (h *Harvester) harvestPage(ctx context.Context, country domain.Country, t domain.PageTarget, breaker *Breaker, stats *domain.RunStats) {
	defer func() {
		if r := recover(); r != nil {
			stats.Failures.Add(1)
			h.log.ErrorObj("source harvest panicked", "harvest_panic", map[string]any{
				"country": country.ID,
				"url":     t.URL,
				"panic":   r,
			})
		}
	}()

	key := domain.Key{CountryID: country.ID, FeedType: t.FeedType, URL: t.URL}
	base, err := url.Parse(t.URL)
	if err != nil {
		stats.Failures.Add(1)
		h.writeError(ctx, country, key, "invalid source url", scrape.Validators{})
		return
	}
	host := base.Host

	if !breaker.Allow(host) {
		stats.Failures.Add(1)
		h.log.WarnObj("source skipped, circuit open", "breaker_skip", map[string]any{
			"country": country.ID,
			"host":    host,
			"url":     t.URL,
		})
		h.appendLog(ctx, store.LogEntry{
			CountryID: country.ID, FeedType: t.FeedType, URL: t.URL,
			Status: domain.StatusError, Reason: "circuit breaker open", At: h.now(),
		})
		return
	}

	var prevValidators scrape.Validators
	if prev, err := h.store.FindFeed(ctx, key); err == nil {
		prevValidators = prev.Validators
	} else if !errors.Is(err, store.ErrNotFound) {
		h.log.WarnObj("stored feed lookup failed", "store_error", map[string]any{
			"country": country.ID, "url": t.URL, "error": err.Error(),
		})
	}

	res, err := scrape.FetchPage(ctx, h.pages, t.URL, prevValidators)
	if err != nil {
		stats.Failures.Add(1)
		if breaker.Failure(host) {
			h.log.WarnObj("host circuit tripped", "breaker_trip", map[string]any{
				"country": country.ID, "host": host,
			})
		}
		h.writeError(ctx, country, key, err.Error(), prevValidators)
		return
	}
	breaker.Success(host)

	if res.NotModified {
		h.log.DebugObj("source unchanged, skipping rewrite", "not_modified", map[string]any{
			"country": country.ID, "url": t.URL,
		})
		h.appendLog(ctx, store.LogEntry{
			CountryID: country.ID, FeedType: t.FeedType, URL: t.URL,
			Status: "skipped", Reason: "not_modified", At: h.now(),
		})
		return
	}

	doc, err := scrape.ParseDocument(res.Body)
	if err != nil {
		stats.Failures.Add(1)
		h.writeError(ctx, country, key, err.Error(), res.Validators)
		return
	}

	matcher, err := scrape.NewMatcher(t.Keywords)
	if err != nil {
		stats.Failures.Add(1)
		h.writeError(ctx, country, key, err.Error(), res.Validators)
		return
	}

	anchors := scrape.FilterAnchors(scrape.CollectAnchors(doc, base), matcher)
	items := scrape.BuildItems(anchors, host, h.now())
	if h.thumbs != nil {
		h.thumbs.Enrich(ctx, items)
	}

	var image *domain.ChannelImage
	if icon := scrape.Favicon(doc, base); icon != "" {
		image = &domain.ChannelImage{URL: icon, Title: country.Name, Link: t.URL}
	}

	out := feed.Assemble(country, t.FeedType, t.URL, items, 0, image)
	h.persist(ctx, country, key, out, res.Validators)
	stats.Items.Add(int64(len(items)))
}

// harvestSocial merges every handle target of one family into the country's
// single document. Each attempted search lands its own audit row keyed by
// handle. Partial handle failures degrade the feed instead of erroring it;
// the document errors only when every target failed.
func (h *Harvester) harvestSocial(ctx context.Context, country domain.Country, ft domain.FeedType, targets []domain.HandleTarget, stats *domain.RunStats) {
	if len(targets) == 0 {
		return
	}

	key := domain.Key{CountryID: country.ID, FeedType: ft}
	var batches [][]domain.Item
	hits := 0
	var firstErr string
	failed := 0

	for _, t := range targets {
		res, err := h.social.Search(ctx, t, stats)
		if err != nil {
			failed++
			stats.Failures.Add(1)
			if firstErr == "" {
				firstErr = err.Error()
			}
			h.log.WarnObj("handle search failed", "search_error", map[string]any{
				"country": country.ID,
				"feed":    string(ft),
				"handle":  t.Handle,
				"error":   err.Error(),
			})
			h.appendLog(ctx, store.LogEntry{
				CountryID: country.ID, FeedType: ft, Handle: t.Handle,
				Status: domain.StatusError, Reason: err.Error(), At: h.now(),
			})
			continue
		}
		hits += res.APIHits
		batch := twitter.BuildItems(res, t)
		batches = append(batches, batch)
		h.appendLog(ctx, store.LogEntry{
			CountryID: country.ID, FeedType: ft, Handle: t.Handle,
			Status: domain.StatusSuccess, ItemCount: len(batch), At: h.now(),
		})
	}

	if failed == len(targets) {
		h.writeError(ctx, country, key, firstErr, scrape.Validators{})
		return
	}

	items := feed.Merge(batches...)
	out := feed.Assemble(country, ft, "", items, hits, nil)
	h.persist(ctx, country, key, out, scrape.Validators{})
	stats.Items.Add(int64(len(items)))
}

func (h *Harvester) persist(ctx context.Context, country domain.Country, key domain.Key, doc domain.Document, validators scrape.Validators) {
	rec := store.Record{
		CountryID:  key.CountryID,
		FeedType:   key.FeedType,
		URL:        key.URL,
		Document:   doc,
		Validators: validators,
		UpdatedAt:  h.now(),
	}
	if err := h.store.UpsertFeed(ctx, rec); err != nil {
		h.log.ErrorObj("feed upsert failed", "store_error", map[string]any{
			"country": key.CountryID, "feed": string(key.FeedType), "url": key.URL,
			"error": err.Error(),
		})
		return
	}

	meta := doc.Channel.Meta
	count := meta.ArticleCount + meta.TweetCount
	h.appendLog(ctx, store.LogEntry{
		CountryID: key.CountryID, FeedType: key.FeedType, URL: key.URL,
		Status: meta.Status, Reason: meta.Reason, ItemCount: count, At: h.now(),
	})
	h.publish(ctx, key, meta.Status, count)

	h.log.InfoObj("feed persisted", "feed_saved", map[string]any{
		"country": key.CountryID,
		"feed":    string(key.FeedType),
		"url":     key.URL,
		"status":  meta.Status,
		"items":   count,
	})
}

func (h *Harvester) writeError(ctx context.Context, country domain.Country, key domain.Key, reason string, validators scrape.Validators) {
	doc := feed.AssembleError(country, key.FeedType, key.URL, reason)
	rec := store.Record{
		CountryID:  key.CountryID,
		FeedType:   key.FeedType,
		URL:        key.URL,
		Document:   doc,
		Validators: validators,
		UpdatedAt:  h.now(),
	}
	if err := h.store.UpsertFeed(ctx, rec); err != nil {
		h.log.ErrorObj("error document upsert failed", "store_error", map[string]any{
			"country": key.CountryID, "url": key.URL, "error": err.Error(),
		})
		return
	}
	h.appendLog(ctx, store.LogEntry{
		CountryID: key.CountryID, FeedType: key.FeedType, URL: key.URL,
		Status: domain.StatusError, Reason: reason, At: h.now(),
	})
	h.publish(ctx, key, domain.StatusError, 0)
}

func (h *Harvester) appendLog(ctx context.Context, entry store.LogEntry) {
	if err := h.store.AppendLog(ctx, entry); err != nil {
		h.log.WarnObj("feed log append failed", "store_error", map[string]any{
			"country": entry.CountryID, "url": entry.URL, "error": err.Error(),
		})
	}
}

func (h *Harvester) publish(ctx context.Context, key domain.Key, status string, count int) {
	if h.events == nil {
		return
	}
	h.events.Publish(ctx, publishers.FeedEvent{
		CountryID: key.CountryID,
		FeedType:  string(key.FeedType),
		URL:       key.URL,
		Status:    status,
		ItemCount: count,
		At:        h.now(),
	})
}
