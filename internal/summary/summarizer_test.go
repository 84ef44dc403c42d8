package summary

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/statewatch-hq/statewatch-harvester/internal/domain"
	"github.com/statewatch-hq/statewatch-harvester/internal/sources"
	"github.com/statewatch-hq/statewatch-harvester/internal/store"
)

type stubLLM struct {
	gotCountry   string
	gotHeadlines []string
	text         string
}

func (s *stubLLM) Summarize(_ context.Context, country string, headlines []string) (string, error) {
	s.gotCountry = country
	s.gotHeadlines = headlines
	return s.text, nil
}

func registryFromYAML(t *testing.T, content string) *sources.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	reg, err := sources.LoadRegistry(path)
	require.NoError(t, err)
	return reg
}

func TestGeneratorRun(t *testing.T) {
	reg := registryFromYAML(t, `
countries:
  - id: in
    name: India
    news_sources:
      - https://news.example.com/india
    keywords: [economy]
    government_messaging: [MEAIndia]
`)

	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "summary.db"))
	require.NoError(t, err)
	defer st.Close(context.Background())

	ctx := context.Background()

	// Seed the day's harvested feeds.
	require.NoError(t, st.UpsertFeed(ctx, store.Record{
		CountryID: "in", FeedType: domain.FeedMain, URL: "https://news.example.com/india",
		Document: domain.Document{Channel: domain.Channel{
			Items: []domain.Item{{Title: "Economy rebounds"}, {Title: "Trade pact signed"}},
		}},
	}))
	require.NoError(t, st.UpsertFeed(ctx, store.Record{
		CountryID: "in", FeedType: domain.FeedGovernmentMessaging,
		Document: domain.Document{Channel: domain.Channel{
			Items: []domain.Item{{Title: "Ministry statement on exports"}},
		}},
	}))

	llm := &stubLLM{text: "India saw renewed economic momentum."}
	gen := NewGenerator(reg, st, llm, nil)
	gen.now = func() time.Time { return time.Date(2026, 8, 1, 18, 0, 0, 0, time.UTC) }

	require.NoError(t, gen.Run(ctx))
	require.Equal(t, "India", llm.gotCountry)
	require.Len(t, llm.gotHeadlines, 3)

	rec, err := st.FindFeed(ctx, domain.Key{CountryID: "in", FeedType: domain.FeedDailySummary})
	require.NoError(t, err)
	require.Equal(t, domain.StatusSuccess, rec.Document.Channel.Meta.Status)
	require.Equal(t, 1, rec.Document.Channel.Meta.APIHits)
	require.Equal(t, 1, rec.Document.Channel.Meta.ArticleCount)
	require.Zero(t, rec.Document.Channel.Meta.TweetCount)
	require.Len(t, rec.Document.Channel.Items, 1)

	item := rec.Document.Channel.Items[0]
	require.True(t, strings.HasPrefix(item.Title, "Daily Summary - India"))
	require.Equal(t, "India saw renewed economic momentum.", item.Description)
	require.Equal(t, "daily-summary-in-2026-08-01", item.GUID.Value)
	require.NotNil(t, rec.Document.Channel.Image)
}

func TestGeneratorEmptyCountry(t *testing.T) {
	reg := registryFromYAML(t, `
countries:
  - id: bt
    name: Bhutan
    news_sources:
      - https://news.example.com/bhutan
    keywords: [economy]
`)

	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "summary.db"))
	require.NoError(t, err)
	defer st.Close(context.Background())

	llm := &stubLLM{text: "should not be called"}
	gen := NewGenerator(reg, st, llm, nil)

	require.NoError(t, gen.Run(context.Background()))
	require.Empty(t, llm.gotCountry, "LLM is not consulted when there are no headlines")

	rec, err := st.FindFeed(context.Background(), domain.Key{CountryID: "bt", FeedType: domain.FeedDailySummary})
	require.NoError(t, err)
	require.Equal(t, domain.StatusEmpty, rec.Document.Channel.Meta.Status)
}
