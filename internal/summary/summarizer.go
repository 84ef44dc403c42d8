package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/statewatch-hq/statewatch-harvester/internal/domain"
	"github.com/statewatch-hq/statewatch-harvester/internal/feed"
	"github.com/statewatch-hq/statewatch-harvester/internal/logger"
	"github.com/statewatch-hq/statewatch-harvester/internal/sources"
	"github.com/statewatch-hq/statewatch-harvester/internal/store"
)

const systemPrompt = `You are a geopolitical news editor. Given a list of headlines
about one country harvested over the last day, write a single neutral paragraph
summarizing the day's developments. Keep every fact, name, and number; do not
speculate beyond the headlines. Output plain text only.`

// maxHeadlines caps the prompt size per country.
const maxHeadlines = 40

// summaryIconURL is the fixed channel icon for summary documents.
const summaryIconURL = "https://cdn.statewatch.io/icons/daily-summary.png"

// LLM produces one summary paragraph from a country's headlines.
type LLM interface {
	Summarize(ctx context.Context, countryName string, headlines []string) (string, error)
}

// OpenAIClient is the chat-completions backed LLM.
type OpenAIClient struct {
	client *openai.Client
	model  openai.ChatModel
}

// NewOpenAIClient builds a client for the given model name.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{client: &client, model: openai.ChatModel(model)}
}

// Summarize asks the model for one paragraph over the headlines.
func (c *OpenAIClient) Summarize(ctx context.Context, countryName string, headlines []string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Country: %s\nHeadlines:\n", countryName)
	for i, h := range headlines {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, h)
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(sb.String()),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Generator writes one DAILY_SUMMARY document per country, condensing the
// day's already-persisted feeds through the LLM.
type Generator struct {
	registry *sources.Registry
	store    store.FeedStore
	llm      LLM
	log      logger.Logger

	now func() time.Time
}

// NewGenerator wires a Generator.
func NewGenerator(registry *sources.Registry, st store.FeedStore, llm LLM, log logger.Logger) *Generator {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Generator{registry: registry, store: st, llm: llm, log: log, now: time.Now}
}

// Run generates summaries for every country. A failing country is logged and
// skipped; the first error is returned after all countries were attempted.
func (g *Generator) Run(ctx context.Context) error {
	var firstErr error
	for _, cc := range g.registry.All() {
		if err := g.summarizeCountry(ctx, cc); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			g.log.ErrorObj("country summary failed", "summary_error", map[string]any{
				"country": cc.ID,
				"error":   err.Error(),
			})
		}
	}
	return firstErr
}

func (g *Generator) summarizeCountry(ctx context.Context, cc sources.CountryConfig) error {
	country := cc.Country()
	headlines := g.collectHeadlines(ctx, cc)
	key := domain.Key{CountryID: country.ID, FeedType: domain.FeedDailySummary}

	if len(headlines) == 0 {
		doc := feed.Assemble(country, domain.FeedDailySummary, "", nil, 0, nil)
		return g.persist(ctx, key, doc)
	}

	text, err := g.llm.Summarize(ctx, country.Name, headlines)
	if err != nil {
		return fmt.Errorf("summarize %s: %w", country.ID, err)
	}

	at := g.now()
	item := domain.Item{
		Title:       fmt.Sprintf("Daily Summary - %s - %s", country.Name, at.Format("Jan 02, 2006")),
		Description: text,
		GUID:        domain.GUID{Value: fmt.Sprintf("daily-summary-%s-%s", country.ID, at.Format("2006-01-02"))},
		Creator:     "statewatch",
		PubDate:     at.Format(time.RFC1123),
		PublishedAt: at,
	}

	doc := feed.Assemble(country, domain.FeedDailySummary, "", []domain.Item{item}, 1, &domain.ChannelImage{
		URL:   summaryIconURL,
		Title: country.Name,
	})
	return g.persist(ctx, key, doc)
}

// collectHeadlines gathers item titles from the country's persisted feeds,
// per-URL documents first, then the merged social families.
func (g *Generator) collectHeadlines(ctx context.Context, cc sources.CountryConfig) []string {
	var keys []domain.Key
	for _, ft := range []domain.FeedType{domain.FeedMain, domain.FeedUSMentions} {
		for _, t := range cc.PageTargets(ft) {
			keys = append(keys, domain.Key{CountryID: cc.ID, FeedType: ft, URL: t.URL})
		}
	}
	for _, ft := range []domain.FeedType{
		domain.FeedBreakingNews,
		domain.FeedGovernmentMessaging,
		domain.FeedLeadershipMessaging,
		domain.FeedEmbassyMention,
		domain.FeedAmbassadorMention,
	} {
		keys = append(keys, domain.Key{CountryID: cc.ID, FeedType: ft})
	}

	var headlines []string
	for _, key := range keys {
		rec, err := g.store.FindFeed(ctx, key)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				g.log.WarnObj("summary feed lookup failed", "store_error", map[string]any{
					"country": key.CountryID, "feed": string(key.FeedType), "error": err.Error(),
				})
			}
			continue
		}
		for _, it := range rec.Document.Channel.Items {
			if title := strings.TrimSpace(it.Title); title != "" {
				headlines = append(headlines, title)
			}
			if len(headlines) >= maxHeadlines {
				return headlines
			}
		}
	}
	return headlines
}

func (g *Generator) persist(ctx context.Context, key domain.Key, doc domain.Document) error {
	rec := store.Record{
		CountryID: key.CountryID,
		FeedType:  key.FeedType,
		Document:  doc,
		UpdatedAt: g.now(),
	}
	if err := g.store.UpsertFeed(ctx, rec); err != nil {
		return err
	}
	return g.store.AppendLog(ctx, store.LogEntry{
		CountryID: key.CountryID,
		FeedType:  key.FeedType,
		Status:    doc.Channel.Meta.Status,
		ItemCount: len(doc.Channel.Items),
		At:        g.now(),
	})
}
