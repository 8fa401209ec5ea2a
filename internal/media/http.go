package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"detiksync/internal/httpclient"
	"detiksync/internal/retry"
	"detiksync/internal/source"
)

// HTTPDownloader streams direct media files.
type HTTPDownloader struct {
	client *httpclient.Client
	dir    string
	policy retry.Policy
	logger *zap.Logger
}

// NewHTTPDownloader creates a downloader writing into dir.
func NewHTTPDownloader(client *httpclient.Client, dir string, policy retry.Policy, logger *zap.Logger) *HTTPDownloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		client = httpclient.New(nil, logger)
	}
	return &HTTPDownloader{client: client, dir: dir, policy: policy, logger: logger}
}

// Download writes the media to a temporary ".part" file and renames it to
// <dir>/<item id><ext> once the byte count matches.
func (d *HTTPDownloader) Download(ctx context.Context, item source.Item) (*Asset, error) {
	if item.MediaURL == "" {
		return nil, &DownloadError{ItemID: item.ID, Err: ErrNoMediaURL}
	}
	if err := prepareDir(d.dir); err != nil {
		return nil, &DownloadError{ItemID: item.ID, URL: item.MediaURL, Err: err}
	}

	final := assetPath(d.dir, item.ID, extension(item.MediaURL))
	part := filepath.Join(d.dir, "."+item.ID+".part")

	attempt := 0
	err := retry.Do(ctx, d.policy, classify, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			d.logger.Info("retrying download",
				zap.String("item_id", item.ID), zap.Int("attempt", attempt))
		}
		return d.fetch(ctx, item.MediaURL, part)
	})
	if err != nil {
		os.Remove(part)
		return nil, &DownloadError{ItemID: item.ID, URL: item.MediaURL, Err: err}
	}

	if err := os.Rename(part, final); err != nil {
		os.Remove(part)
		return nil, &DownloadError{ItemID: item.ID, URL: item.MediaURL, Err: err}
	}

	d.logger.Debug("downloaded media", zap.String("item_id", item.ID), zap.String("path", final))
	return &Asset{ItemID: item.ID, Path: final}, nil
}

func (d *HTTPDownloader) fetch(ctx context.Context, mediaURL, part string) error {
	resp, err := d.client.Open(ctx, mediaURL, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	f, err := os.Create(part)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create %s: %w", part, err))
	}

	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		return fmt.Errorf("%w: %v", ErrIncomplete, copyErr)
	case closeErr != nil:
		return retry.Permanent(closeErr)
	case resp.ContentLength >= 0 && n != resp.ContentLength:
		return fmt.Errorf("%w: got %d of %d bytes", ErrIncomplete, n, resp.ContentLength)
	case n == 0:
		return fmt.Errorf("%w: empty body", ErrIncomplete)
	}
	return nil
}

// classify retries transport failures, short reads and 5xx responses.
func classify(err error) bool {
	if errors.Is(err, ErrIncomplete) {
		return retry.IsRetryable(err)
	}
	return httpclient.IsRetryable(err)
}
