package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"detiksync/internal/source"
)

const (
	defaultFfmpegPath    = "ffmpeg"
	defaultFfmpegTimeout = 10 * time.Minute
	// reelFilter letterboxes any input into a 720x1280 portrait frame.
	reelFilter = "scale=720:1280:force_original_aspect_ratio=decrease,pad=720:1280:(ow-iw)/2:(oh-ih)/2,setsar=1"
)

// ReelConverter turns short clips into Reel shaped mp4 files with ffmpeg.
type ReelConverter struct {
	// Path is the ffmpeg executable. Defaults to "ffmpeg".
	Path string
	// MaxDuration is the longest clip converted. Zero disables conversion.
	MaxDuration time.Duration
	Timeout     time.Duration

	logger *zap.Logger
}

// NewReelConverter creates a converter for clips up to maxDuration.
func NewReelConverter(path string, maxDuration time.Duration, logger *zap.Logger) *ReelConverter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReelConverter{Path: path, MaxDuration: maxDuration, Timeout: defaultFfmpegTimeout, logger: logger}
}

// Eligible reports whether a clip of duration d becomes a Reel. Clips of
// unknown length are published as regular videos.
func (c *ReelConverter) Eligible(d time.Duration) bool {
	return c != nil && c.MaxDuration > 0 && d > 0 && d <= c.MaxDuration
}

// Convert writes reel_<item id>.mp4 next to the input.
func (c *ReelConverter) Convert(ctx context.Context, in *Asset) (*Asset, error) {
	out := filepath.Join(filepath.Dir(in.Path), "reel_"+in.ItemID+".mp4")
	args := []string{
		"-y",
		"-loglevel", "error",
		"-i", in.Path,
		"-vf", reelFilter,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-f", "mp4",
		out,
	}

	timeout := c.Timeout
	if timeout == 0 {
		timeout = defaultFfmpegTimeout
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	path := c.Path
	if path == "" {
		path = defaultFfmpegPath
	}
	if _, err := exec.LookPath(path); err != nil {
		return nil, ErrFfmpegNotInstalled
	}

	cmd := exec.CommandContext(cmdCtx, path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(out)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if fi, err := os.Stat(out); err != nil || fi.Size() == 0 {
		os.Remove(out)
		return nil, fmt.Errorf("ffmpeg produced no output at %s", out)
	}
	return &Asset{ItemID: in.ItemID, Path: out, Reel: true}, nil
}

// ReelDownloader downloads with Next and converts eligible clips. The
// original download is removed once the Reel exists.
type ReelDownloader struct {
	Next      Downloader
	Converter *ReelConverter
	logger    *zap.Logger
}

// WithReels wraps next with Reel conversion. A nil or disabled converter
// returns next unchanged.
func WithReels(next Downloader, conv *ReelConverter, logger *zap.Logger) Downloader {
	if conv == nil || conv.MaxDuration <= 0 {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReelDownloader{Next: next, Converter: conv, logger: logger}
}

// Download fetches the item and converts it when it is short enough.
func (r *ReelDownloader) Download(ctx context.Context, item source.Item) (*Asset, error) {
	asset, err := r.Next.Download(ctx, item)
	if err != nil || !r.Converter.Eligible(item.Duration) {
		return asset, err
	}

	r.logger.Info("converting to reel",
		zap.String("item_id", item.ID), zap.Duration("duration", item.Duration))
	reel, err := r.Converter.Convert(ctx, asset)
	if err != nil {
		asset.Remove()
		return nil, &DownloadError{ItemID: item.ID, URL: item.MediaURL, Err: err}
	}
	if err := asset.Remove(); err != nil {
		r.logger.Warn("failed to remove source file", zap.String("path", asset.Path), zap.Error(err))
	}
	return reel, nil
}
