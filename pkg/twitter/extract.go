package twitter

import (
	"fmt"
	"strings"

	"github.com/statewatch-hq/statewatch-harvester/internal/domain"
)

// displayTimeLayout renders tweet timestamps the way the platform shows them.
const displayTimeLayout = "3:04 PM · Jan 02, 2006"

// BuildItems converts one search page into channel items. The author comes
// from the includes block keyed by author_id, so mention feeds attribute each
// post to whoever actually wrote it rather than to the searched handle.
func BuildItems(res *SearchResult, target domain.HandleTarget) []domain.Item {
	if res == nil || len(res.Tweets) == 0 {
		return nil
	}

	items := make([]domain.Item, 0, len(res.Tweets))
	for _, tw := range res.Tweets {
		author, ok := res.Users[tw.AuthorID]
		if !ok {
			author = User{Username: target.Handle, Name: target.Handle}
		}

		text := strings.TrimSpace(tw.Text)
		link := fmt.Sprintf("https://twitter.com/%s/status/%s", author.Username, tw.ID)

		item := domain.Item{
			Title:       text,
			Description: text,
			Link:        link,
			GUID:        domain.GUID{IsPermaLink: true, Value: link},
			Creator:     creatorLabel(author),
			PubDate:     tw.CreatedAt.Format(displayTimeLayout),
			SiteImage:   author.ProfileImageURL,
			PublishedAt: tw.CreatedAt,
		}

		if imgs := mediaImages(tw, res.Media); len(imgs) > 0 {
			item.Images = imgs
			item.Thumbnail = imgs[0]
		}

		items = append(items, item)
	}
	return items
}

func creatorLabel(u User) string {
	if u.Name != "" && u.Username != "" {
		return fmt.Sprintf("%s (@%s)", u.Name, u.Username)
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// mediaImages resolves a tweet's attachments to image URLs. Photos expose a
// direct url; video and animated_gif only expose a preview frame, which gets
// upgraded to its original resolution.
func mediaImages(tw Tweet, media map[string]Media) []string {
	var imgs []string
	for _, key := range tw.Attachments.MediaKeys {
		m, ok := media[key]
		if !ok {
			continue
		}
		switch m.Type {
		case "photo":
			if m.URL != "" {
				imgs = append(imgs, m.URL)
			}
		case "video", "animated_gif":
			if m.PreviewImageURL != "" {
				imgs = append(imgs, upgradePreview(m.PreviewImageURL))
			}
		}
	}
	return imgs
}

func upgradePreview(u string) string {
	if strings.Contains(u, "?") {
		return u
	}
	return u + "?name=orig"
}
