package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/statewatch-hq/statewatch-harvester/internal/config"
	"github.com/statewatch-hq/statewatch-harvester/internal/crawler"
	"github.com/statewatch-hq/statewatch-harvester/internal/logger"
	"github.com/statewatch-hq/statewatch-harvester/internal/sources"
	"github.com/statewatch-hq/statewatch-harvester/internal/store"
	"github.com/statewatch-hq/statewatch-harvester/pkg/httpclient"
	"github.com/statewatch-hq/statewatch-harvester/pkg/publishers"
	"github.com/statewatch-hq/statewatch-harvester/pkg/scrape"
	"github.com/statewatch-hq/statewatch-harvester/pkg/twitter"
)

func main() {
	_ = godotenv.Load()

	log := logger.New("harvester")

	cfg, err := config.Load(os.Getenv("HARVESTER_CONFIG"))
	if err != nil {
		log.ErrorObj("configuration load failed", "config_error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := sources.LoadRegistry(cfg.SourcesFile)
	if err != nil {
		log.ErrorObj("sources registry load failed", "config_error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	st, err := store.Open(ctx, cfg)
	if err != nil {
		log.ErrorObj("store open failed", "store_error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			log.WarnObj("store close failed", "store_error", map[string]any{"error": err.Error()})
		}
	}()

	events, err := publishers.NewFanoutFromConfig(ctx, cfg.PublishersFile, log)
	if err != nil {
		log.ErrorObj("publishers setup failed", "config_error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	// One bounded client for listing pages and article thumbnails, so all
	// page-side fetches share the url_concurrency cap.
	pageClient := httpclient.NewBounded(httpclient.NewRestyClient(cfg.PageTimeout), cfg.URLConcurrency)

	var social *twitter.Client
	if cfg.TwitterBearerToken != "" {
		social = twitter.New(twitter.Config{
			HTTP:        httpclient.NewRestyClient(cfg.SearchTimeout),
			BearerToken: cfg.TwitterBearerToken,
			Lookback:    time.Duration(cfg.LookbackHours) * time.Hour,
			MaxAttempts: cfg.RateLimitAttempts,
			RetryBudget: cfg.RateLimitBudget,
			Logger:      log,
		})
	} else {
		log.WarnObj("no bearer token configured, social feeds disabled", "config_warning", nil)
	}

	h := crawler.New(crawler.Config{
		Registry:           registry,
		Pages:              pageClient,
		Thumbs:             scrape.NewThumbFetcher(pageClient, 0, log),
		Social:             social,
		Store:              st,
		Events:             events,
		Log:                log,
		CountryConcurrency: cfg.CountryConcurrency,
		BreakerThreshold:   cfg.BreakerThreshold,
	})

	log.InfoObj("harvest run starting", "run_start", map[string]any{
		"countries": len(registry.All()),
		"store":     cfg.StoreBackend,
	})
	h.Run(ctx)
}
