// Package media downloads item media to local files and optionally converts
// short clips to the vertical Reel format.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"detiksync/internal/source"
)

// Sentinel errors for download conditions.
var (
	// ErrIncomplete indicates fewer bytes arrived than the server announced.
	ErrIncomplete = errors.New("media: incomplete transfer")
	// ErrNoMediaURL indicates an item without a media URL.
	ErrNoMediaURL = errors.New("media: item has no media url")
	// ErrYtdlpNotInstalled indicates yt-dlp is not available on PATH.
	ErrYtdlpNotInstalled = errors.New("media: yt-dlp not installed")
	// ErrFfmpegNotInstalled indicates ffmpeg is not available on PATH.
	ErrFfmpegNotInstalled = errors.New("media: ffmpeg not installed")
)

// Asset is a downloaded file ready to publish.
type Asset struct {
	ItemID string
	Path   string
	// Reel is set when the file was converted to the vertical short format.
	Reel bool
}

// Remove deletes the asset file. A missing file is not an error.
func (a *Asset) Remove() error {
	if a == nil || a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Downloader fetches the media of an item.
type Downloader interface {
	Download(ctx context.Context, item source.Item) (*Asset, error)
}

// DownloadError means an item's media could not be obtained. The item is
// skipped for this run and retried on the next.
type DownloadError struct {
	ItemID string
	URL    string
	Err    error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("media: download %s (%s): %v", e.ItemID, e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// IsHLS reports whether the URL points to an HLS playlist.
func IsHLS(mediaURL string) bool {
	return strings.EqualFold(path.Ext(urlPath(mediaURL)), ".m3u8")
}

// extension returns the file extension of the media URL, ".mp4" when unknown.
func extension(mediaURL string) string {
	ext := strings.ToLower(path.Ext(urlPath(mediaURL)))
	switch ext {
	case ".mp4", ".m4v", ".mov", ".webm", ".mkv", ".ts":
		return ext
	}
	return ".mp4"
}

func urlPath(mediaURL string) string {
	p := mediaURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return p
}

// prepareDir makes sure the download directory exists.
func prepareDir(dir string) error {
	if dir == "" {
		dir = "."
	}
	return os.MkdirAll(dir, 0o755)
}

func assetPath(dir, itemID, ext string) string {
	return filepath.Join(dir, itemID+ext)
}
