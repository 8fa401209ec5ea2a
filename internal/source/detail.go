package source

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"detiksync/internal/httpclient"
)

const noTitle = "No Title"

// Fallback patterns tried in order when the page has no JSON-LD VideoObject.
var mediaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)videoUrl\s*:\s*["'](.*?\.m3u8[^"']*)["']`),
	regexp.MustCompile(`(?i)<meta[^>]*content=["']((?:https?:)?//[^"']*\.mp4[^"']*)["']`),
	regexp.MustCompile(`(?i)src:\s*["']((?:https?:)?//[^"']*\.mp4[^"']*)["']`),
}

var publishedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05",
}

// hint carries what the listing already knows about an item.
type hint struct {
	Title     string
	Published time.Time
}

// detailer fetches and parses detail pages for both listing kinds.
type detailer struct {
	client   *httpclient.Client
	logger   *zap.Logger
	maxItems int
	now      func() time.Time
}

func newDetailer(client *httpclient.Client, logger *zap.Logger, opts Options) detailer {
	if client == nil {
		client = httpclient.New(nil, logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return detailer{client: client, logger: logger, maxItems: opts.MaxItems, now: now}
}

// collect turns page links into items. Pages that fail or carry no media are
// skipped; only a cancelled context aborts.
func (d detailer) collect(ctx context.Context, listingURL string, links []string, hints map[string]hint) ([]Item, error) {
	items := make([]Item, 0, len(links))
	for _, link := range links {
		if d.maxItems > 0 && len(items) >= d.maxItems {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, &FetchError{URL: listingURL, Err: err}
		}

		item, err := d.fetchDetail(ctx, link, hints[link])
		if err != nil {
			if ctx.Err() != nil {
				return nil, &FetchError{URL: listingURL, Err: ctx.Err()}
			}
			d.logger.Warn("skipping item", zap.String("url", link), zap.Error(err))
			continue
		}
		items = append(items, *item)
	}

	d.logger.Info("fetched candidates",
		zap.String("url", listingURL), zap.Int("links", len(links)), zap.Int("items", len(items)))
	return items, nil
}

func (d detailer) fetchDetail(ctx context.Context, pageURL string, h hint) (*Item, error) {
	resp, err := d.client.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	item, err := ParseDetail(resp.Body, pageURL)
	if err != nil {
		return nil, err
	}
	if item.Title == noTitle && h.Title != "" {
		item.Title = h.Title
	}
	if item.DiscoveredAt.IsZero() {
		item.DiscoveredAt = h.Published
	}
	if item.DiscoveredAt.IsZero() {
		item.DiscoveredAt = d.now()
	}
	return item, nil
}

// ParseDetail extracts an item from a detail page. DiscoveredAt is left zero
// when the page has no publish time. Returns ErrNoMedia if no media URL is found.
func ParseDetail(body []byte, pageURL string) (*Item, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	ld := findVideoObject(doc)

	media := ld.ContentURL
	if media == "" {
		media = matchMedia(body)
	}
	if media == "" {
		return nil, ErrNoMedia
	}

	item := &Item{
		ID:           ItemID(pageURL),
		PageURL:      pageURL,
		Title:        extractTitle(doc),
		Description:  cleanText(doc.Find("div.detail__body-text").First().Text()),
		Hashtags:     extractHashtags(doc),
		MediaURL:     absoluteMedia(media, pageURL),
		Duration:     ParseDuration(doc.Find(".media__icon--top-right").First().Text()),
		DiscoveredAt: parsePublished(ld.UploadDate, ld.DatePublished, metaContent(doc, `meta[property="article:published_time"]`)),
	}
	return item, nil
}

func extractTitle(doc *goquery.Document) string {
	if t := cleanText(doc.Find("h1.detail__title").First().Text()); t != "" {
		return t
	}
	if t := cleanText(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return noTitle
}

// extractHashtags turns the keywords meta into hashtags, dropping inner spaces.
func extractHashtags(doc *goquery.Document) []string {
	content := metaContent(doc, `meta[name="keywords"]`)
	if content == "" {
		return nil
	}
	var tags []string
	for _, k := range strings.Split(content, ",") {
		k = strings.Join(strings.Fields(k), "")
		if k != "" {
			tags = append(tags, "#"+k)
		}
	}
	return tags
}

func metaContent(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(v)
}

// ParseDuration reads the badge shown on the player: "45 detik", "1:30" or
// "1:02:03". Anything else is zero.
func ParseDuration(text string) time.Duration {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return 0
	}
	if n, ok := strings.CutSuffix(text, "detik"); ok {
		secs, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil || secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	parts := strings.Split(text, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second
}

// videoObject holds the JSON-LD fields we read.
type videoObject struct {
	Type          any    `json:"@type"`
	ContentURL    string `json:"contentUrl"`
	UploadDate    string `json:"uploadDate"`
	DatePublished string `json:"datePublished"`
}

func (v videoObject) isVideo() bool {
	switch t := v.Type.(type) {
	case string:
		return t == "VideoObject"
	case []any:
		for _, x := range t {
			if s, ok := x.(string); ok && s == "VideoObject" {
				return true
			}
		}
	}
	return false
}

// findVideoObject returns the first JSON-LD VideoObject on the page. Scripts
// may hold a single object, an array or an @graph.
func findVideoObject(doc *goquery.Document) videoObject {
	var found videoObject
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := []byte(strings.TrimSpace(s.Text()))

		var candidates []videoObject
		var graph struct {
			Graph []videoObject `json:"@graph"`
		}
		var single videoObject
		switch {
		case json.Unmarshal(raw, &candidates) == nil:
		case json.Unmarshal(raw, &graph) == nil && len(graph.Graph) > 0:
			candidates = graph.Graph
		case json.Unmarshal(raw, &single) == nil:
			candidates = []videoObject{single}
		}

		for _, c := range candidates {
			if c.isVideo() && c.ContentURL != "" {
				found = c
				return false
			}
		}
		return true
	})
	return found
}

func matchMedia(body []byte) string {
	for _, re := range mediaPatterns {
		if m := re.FindSubmatch(body); m != nil {
			return string(m[1])
		}
	}
	return ""
}

// absoluteMedia gives protocol relative URLs https and resolves relative ones
// against the page.
func absoluteMedia(media, pageURL string) string {
	media = strings.TrimSpace(media)
	if strings.HasPrefix(media, "//") {
		return "https:" + media
	}
	ref, err := url.Parse(media)
	if err != nil || ref.IsAbs() {
		return media
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return media
	}
	return base.ResolveReference(ref).String()
}

func parsePublished(values ...string) time.Time {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		for _, layout := range publishedLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
