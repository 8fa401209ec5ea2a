package source

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"detiksync/internal/httpclient"
)

// HTMLFetcher scrapes the listing page markup.
type HTMLFetcher struct {
	detailer
}

// NewHTMLFetcher creates an HTML listing fetcher.
func NewHTMLFetcher(client *httpclient.Client, logger *zap.Logger, opts Options) *HTMLFetcher {
	return &HTMLFetcher{detailer: newDetailer(client, logger, opts)}
}

// Fetch retrieves the listing and the detail page of every video link on it,
// in listing order.
func (f *HTMLFetcher) Fetch(ctx context.Context, baseURL string) ([]Item, error) {
	resp, err := f.client.Get(ctx, baseURL)
	if err != nil {
		return nil, &FetchError{URL: baseURL, Err: err}
	}

	links, err := ParseListing(resp.Body, baseURL)
	if err != nil {
		return nil, &FetchError{URL: baseURL, Err: err}
	}
	return f.collect(ctx, baseURL, links, nil)
}

// ParseListing returns the absolute video links of a listing page, first
// occurrence first. Links are compared by item id so tracking parameters do
// not duplicate an item.
func ParseListing(body []byte, baseURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	var links []string
	seen := make(map[string]bool)
	doc.Find("article.list-content__item").Each(func(_ int, article *goquery.Selection) {
		href, ok := article.Find("a.block-link").First().Attr("href")
		if !ok {
			return
		}
		if link := videoLink(base, href); link != "" {
			id := ItemID(link)
			if !seen[id] {
				seen[id] = true
				links = append(links, link)
			}
		}
	})
	return links, nil
}

// videoLink resolves href against base, or returns "" when it is not a video page.
func videoLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || !strings.Contains(strings.ToLower(href), "video") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
