package feed

import (
	"fmt"
	"sort"

	"github.com/statewatch-hq/statewatch-harvester/internal/domain"
)

// Merge combines per-source item batches into one list, newest first.
// Duplicate links across batches collapse to the first occurrence. The sort
// is stable, so items sharing a timestamp keep their batch order.
func Merge(batches ...[]domain.Item) []domain.Item {
	var merged []domain.Item
	seen := make(map[string]struct{})

	for _, batch := range batches {
		for _, it := range batch {
			if it.Link != "" {
				if _, dup := seen[it.Link]; dup {
					continue
				}
				seen[it.Link] = struct{}{}
			}
			merged = append(merged, it)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].PublishedAt.After(merged[j].PublishedAt)
	})
	return merged
}

// Assemble builds the persisted document for one feed key. An empty item list
// yields an empty-status document, which readers can tell apart from an
// errored one.
func Assemble(country domain.Country, ft domain.FeedType, link string, items []domain.Item, apiHits int, image *domain.ChannelImage) domain.Document {
	meta := domain.Meta{Status: domain.StatusSuccess, APIHits: apiHits}
	if len(items) == 0 {
		meta.Status = domain.StatusEmpty
		meta.Reason = "no items matched"
	}
	if ft.Social() {
		meta.TweetCount = len(items)
	} else {
		meta.ArticleCount = len(items)
	}

	return domain.Document{Channel: domain.Channel{
		Title:       channelTitle(country, ft),
		Description: channelDescription(country, ft),
		Link:        link,
		Items:       items,
		Meta:        meta,
		Image:       image,
	}}
}

// AssembleError records a failed harvest for the key without carrying items.
func AssembleError(country domain.Country, ft domain.FeedType, link, reason string) domain.Document {
	return domain.Document{Channel: domain.Channel{
		Title:       channelTitle(country, ft),
		Description: channelDescription(country, ft),
		Link:        link,
		Items:       []domain.Item{},
		Meta:        domain.Meta{Status: domain.StatusError, Reason: reason},
	}}
}

func channelTitle(country domain.Country, ft domain.FeedType) string {
	return fmt.Sprintf("%s - %s", country.Name, ft.Title())
}

func channelDescription(country domain.Country, ft domain.FeedType) string {
	return fmt.Sprintf("%s coverage for %s", ft.Title(), country.Name)
}
