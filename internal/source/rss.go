package source

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"detiksync/internal/httpclient"
)

// RSSFetcher reads the listing from an RSS or Atom feed. Detail pages are
// still scraped because feeds omit the media URL.
type RSSFetcher struct {
	detailer
	parser *gofeed.Parser
}

// NewRSSFetcher creates a feed listing fetcher.
func NewRSSFetcher(client *httpclient.Client, logger *zap.Logger, opts Options) *RSSFetcher {
	return &RSSFetcher{
		detailer: newDetailer(client, logger, opts),
		parser:   gofeed.NewParser(),
	}
}

// Fetch retrieves the feed and the detail page of every entry, in feed order.
func (f *RSSFetcher) Fetch(ctx context.Context, feedURL string) ([]Item, error) {
	resp, err := f.client.Get(ctx, feedURL)
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: err}
	}

	feed, err := f.parser.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, &FetchError{URL: feedURL, Err: err}
	}

	base, _ := url.Parse(feedURL)
	var links []string
	hints := make(map[string]hint)
	seen := make(map[string]bool)
	for _, entry := range feed.Items {
		link := strings.TrimSpace(entry.Link)
		if link == "" {
			continue
		}
		if ref, err := url.Parse(link); err == nil && base != nil {
			link = base.ResolveReference(ref).String()
		}
		id := ItemID(link)
		if seen[id] {
			continue
		}
		seen[id] = true
		links = append(links, link)

		h := hint{Title: strings.TrimSpace(entry.Title)}
		if entry.PublishedParsed != nil {
			h.Published = entry.PublishedParsed.UTC()
		}
		hints[link] = h
	}
	return f.collect(ctx, feedURL, links, hints)
}
