package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/statewatch-hq/statewatch-harvester/internal/config"
	"github.com/statewatch-hq/statewatch-harvester/internal/logger"
	"github.com/statewatch-hq/statewatch-harvester/internal/sources"
	"github.com/statewatch-hq/statewatch-harvester/internal/store"
	"github.com/statewatch-hq/statewatch-harvester/internal/summary"
)

func main() {
	_ = godotenv.Load()

	log := logger.New("summarizer")

	cfg, err := config.Load(os.Getenv("HARVESTER_CONFIG"))
	if err != nil {
		log.ErrorObj("configuration load failed", "config_error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	if cfg.OpenAIAPIKey == "" {
		log.ErrorObj("openai api key is required", "config_error", nil)
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

	llm := summary.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.SummaryModel)
	gen := summary.NewGenerator(registry, st, llm, log)

	log.InfoObj("summary run starting", "run_start", map[string]any{
		"countries": len(registry.All()),
		"model":     cfg.SummaryModel,
	})
	if err := gen.Run(ctx); err != nil {
		log.ErrorObj("summary run finished with errors", "run_error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	log.InfoObj("summary run complete", "run_complete", nil)
}
