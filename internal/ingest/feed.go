package ingest

import (
	"context"
	"html"
	"net/url"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/TobiSchelling/reviewguard/internal/config"
	"github.com/TobiSchelling/reviewguard/internal/records"
)

// FeedReview is a review taken from a feed item.
type FeedReview struct {
	Review records.Review
	Source string
}

// FeedParser turns RSS/Atom review feeds into reviews. Every item of a feed
// is a review of the feed's configured location.
type FeedParser struct {
	feeds  []config.Feed
	parser *gofeed.Parser
}

// NewFeedParser creates a new FeedParser.
func NewFeedParser(feeds []config.Feed) *FeedParser {
	return &FeedParser{feeds: feeds, parser: gofeed.NewParser()}
}

// ParseAll fetches every feed. Failing feeds are logged and skipped.
func (fp *FeedParser) ParseAll(ctx context.Context) []FeedReview {
	var all []FeedReview
	for _, fc := range fp.feeds {
		name := fc.Name
		if name == "" {
			name = extractSourceName(fc.URL)
		}

		feed, err := fp.parser.ParseURLWithContext(fc.URL, ctx)
		if err != nil {
			zap.L().Warn("Failed to parse feed", zap.String("url", fc.URL), zap.Error(err))
			continue
		}
		reviews := FeedReviews(feed, fc.LocationID, name)
		all = append(all, reviews...)
		zap.L().Info("Parsed review feed", zap.String("source", name), zap.Int("reviews", len(reviews)))
	}
	return all
}

// FeedReviews converts the items of feed into reviews of locationID. Items
// without an id or body are skipped.
func FeedReviews(feed *gofeed.Feed, locationID, source string) []FeedReview {
	var out []FeedReview
	for _, item := range feed.Items {
		if rv, ok := itemReview(item, locationID); ok {
			out = append(out, FeedReview{Review: rv, Source: source})
		}
	}
	return out
}

func itemReview(item *gofeed.Item, locationID string) (records.Review, bool) {
	id := item.GUID
	if id == "" {
		id = item.Link
	}
	if id == "" {
		return records.Review{}, false
	}

	body := item.Content
	if body == "" {
		body = item.Description
	}
	body = stripHTML(body)
	if body == "" {
		return records.Review{}, false
	}

	rv := records.Review{
		ReviewID:   id,
		LocationID: locationID,
		Text:       &body,
	}

	if a := item.Author; a != nil {
		rv.UserID = a.Email
		if a.Name != "" {
			name := a.Name
			rv.UserName = &name
			if rv.UserID == "" {
				rv.UserID = a.Name
			}
		}
	}

	published := item.PublishedParsed
	if published == nil {
		published = item.UpdatedParsed
	}
	if published != nil {
		ms := published.UnixMilli()
		rv.Time = &ms
	}

	if v, ok := item.Custom["rating"]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			rv.Rating = &n
		}
	}
	return rv, true
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(html.UnescapeString(result.String())), " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		name := parts[len(parts)-2]
		return strings.ToUpper(name[:1]) + name[1:]
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
