// Package source discovers candidate items on the listing page and extracts
// the metadata and media URL of each item from its detail page.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"detiksync/internal/httpclient"
)

// ErrNoMedia is returned when a detail page does not reference a media file.
var ErrNoMedia = errors.New("source: no media url found")

// ErrUnknownKind is returned by New for an unsupported source kind.
var ErrUnknownKind = errors.New("source: unknown source kind")

// Item is a candidate discovered in one pass. Items are not persisted; only
// the ID ends up in the ledger.
type Item struct {
	// ID is stable across runs for the same page.
	ID          string
	PageURL     string
	Title       string
	Description string
	Hashtags    []string
	MediaURL    string
	// Duration is zero when the page does not state it.
	Duration     time.Duration
	DiscoveredAt time.Time
}

// Caption is the text published with the item: description, a blank line,
// then the hashtags.
func (it Item) Caption() string {
	tags := strings.Join(it.Hashtags, " ")
	switch {
	case it.Description == "":
		return tags
	case tags == "":
		return it.Description
	}
	return it.Description + "\n\n" + tags
}

// Fetcher lists the candidate items currently offered by a source.
type Fetcher interface {
	Fetch(ctx context.Context, baseURL string) ([]Item, error)
}

// FetchError means the listing could not be retrieved. It aborts the run.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("source: fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Options tunes a fetcher.
type Options struct {
	// MaxItems caps the candidates returned per pass. Zero means no cap.
	MaxItems int
	// Now stamps items whose page has no publish time. Defaults to time.Now.
	Now func() time.Time
}

// New returns the fetcher for kind ("html" or "rss").
func New(kind string, client *httpclient.Client, logger *zap.Logger, opts Options) (Fetcher, error) {
	switch kind {
	case "", "html":
		return NewHTMLFetcher(client, logger, opts), nil
	case "rss":
		return NewRSSFetcher(client, logger, opts), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// ItemID derives the stable item id from a page URL: the name based UUID of
// its canonical form.
func ItemID(pageURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(CanonicalURL(pageURL))).String()
}

// CanonicalURL strips query, fragment and trailing slash and lower-cases
// scheme and host, so tracking parameters do not produce new ids.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(raw, "/")
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + strings.TrimRight(u.EscapedPath(), "/")
}
