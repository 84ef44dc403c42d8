package twitter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/statewatch-hq/statewatch-harvester/internal/domain"
)

func TestBuildItems(t *testing.T) {
	created := time.Date(2026, 8, 1, 15, 4, 0, 0, time.UTC)
	res := &SearchResult{
		Tweets: []Tweet{
			{ID: "1", Text: " Trade talks concluded. ", AuthorID: "u1", CreatedAt: created},
		},
		Users: map[string]User{
			"u1": {ID: "u1", Name: "Ministry", Username: "ministry", ProfileImageURL: "https://pbs.example.com/a.jpg"},
		},
		Media: map[string]Media{},
	}

	items := BuildItems(res, domain.HandleTarget{Handle: "ministry", Mode: domain.ModeSelf})
	require.Len(t, items, 1)

	it := items[0]
	require.Equal(t, "Trade talks concluded.", it.Title)
	require.Equal(t, "https://twitter.com/ministry/status/1", it.Link)
	require.True(t, it.GUID.IsPermaLink)
	require.Equal(t, "Ministry (@ministry)", it.Creator)
	require.Equal(t, "3:04 PM · Aug 01, 2026", it.PubDate)
	require.Equal(t, "https://pbs.example.com/a.jpg", it.SiteImage)
	require.Equal(t, created, it.PublishedAt)
	require.Empty(t, it.Thumbnail)
}

func TestBuildItemsMentionAttribution(t *testing.T) {
	res := &SearchResult{
		Tweets: []Tweet{{ID: "2", Text: "Great visit by @USAndIndia", AuthorID: "u9"}},
		Users: map[string]User{
			"u9": {ID: "u9", Name: "Reporter", Username: "reporter"},
		},
		Media: map[string]Media{},
	}

	// Mention feeds credit the actual author, not the searched handle.
	items := BuildItems(res, domain.HandleTarget{Handle: "USAndIndia", Mode: domain.ModeAbout})
	require.Len(t, items, 1)
	require.Equal(t, "Reporter (@reporter)", items[0].Creator)
	require.Equal(t, "https://twitter.com/reporter/status/2", items[0].Link)
}

func TestBuildItemsMedia(t *testing.T) {
	tw := Tweet{ID: "3", Text: "clip", AuthorID: "u1"}
	tw.Attachments.MediaKeys = []string{"photo1", "vid1", "missing"}

	res := &SearchResult{
		Tweets: []Tweet{tw},
		Users:  map[string]User{"u1": {ID: "u1", Username: "ministry"}},
		Media: map[string]Media{
			"photo1": {MediaKey: "photo1", Type: "photo", URL: "https://pbs.example.com/p.jpg"},
			"vid1":   {MediaKey: "vid1", Type: "video", PreviewImageURL: "https://pbs.example.com/v_thumb.jpg"},
		},
	}

	items := BuildItems(res, domain.HandleTarget{Handle: "ministry", Mode: domain.ModeSelf})
	require.Len(t, items, 1)
	require.Equal(t, []string{
		"https://pbs.example.com/p.jpg",
		"https://pbs.example.com/v_thumb.jpg?name=orig",
	}, items[0].Images)
	require.Equal(t, "https://pbs.example.com/p.jpg", items[0].Thumbnail)
}

func TestBuildItemsUnknownAuthorFallsBack(t *testing.T) {
	res := &SearchResult{
		Tweets: []Tweet{{ID: "4", Text: "orphan", AuthorID: "gone"}},
		Users:  map[string]User{},
		Media:  map[string]Media{},
	}
	items := BuildItems(res, domain.HandleTarget{Handle: "ministry", Mode: domain.ModeSelf})
	require.Len(t, items, 1)
	require.Equal(t, "https://twitter.com/ministry/status/4", items[0].Link)
}

func TestBuildItemsEmpty(t *testing.T) {
	require.Nil(t, BuildItems(nil, domain.HandleTarget{}))
	require.Nil(t, BuildItems(&SearchResult{}, domain.HandleTarget{}))
}
