package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"detiksync/internal/retry"
	"detiksync/internal/source"
)

const (
	defaultYtdlpPath    = "yt-dlp"
	defaultYtdlpTimeout = 10 * time.Minute
	ytdlpFormat         = "bestvideo[height<=1080]+bestaudio/best"
)

// YtdlpDownloader downloads streams (HLS playlists) with yt-dlp as a subprocess.
type YtdlpDownloader struct {
	// Path is the yt-dlp executable. Defaults to "yt-dlp".
	Path string
	// Dir receives the merged file.
	Dir string
	// Timeout bounds one yt-dlp invocation. Defaults to 10 minutes.
	Timeout time.Duration
	// ExtraArgs are passed before the URL.
	ExtraArgs []string
	Policy    retry.Policy

	logger *zap.Logger
}

// NewYtdlpDownloader creates a yt-dlp downloader writing into dir.
func NewYtdlpDownloader(path, dir string, policy retry.Policy, logger *zap.Logger) *YtdlpDownloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YtdlpDownloader{
		Path:    path,
		Dir:     dir,
		Timeout: defaultYtdlpTimeout,
		Policy:  policy,
		logger:  logger,
	}
}

// Download runs yt-dlp and returns the merged file.
func (y *YtdlpDownloader) Download(ctx context.Context, item source.Item) (*Asset, error) {
	if item.MediaURL == "" {
		return nil, &DownloadError{ItemID: item.ID, Err: ErrNoMediaURL}
	}
	if err := y.checkInstalled(ctx); err != nil {
		return nil, &DownloadError{ItemID: item.ID, URL: item.MediaURL, Err: err}
	}
	if err := prepareDir(y.Dir); err != nil {
		return nil, &DownloadError{ItemID: item.ID, URL: item.MediaURL, Err: err}
	}

	var out string
	err := retry.Do(ctx, y.Policy, nil, func(ctx context.Context) error {
		p, err := y.run(ctx, item)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, &DownloadError{ItemID: item.ID, URL: item.MediaURL, Err: err}
	}

	y.logger.Debug("downloaded stream", zap.String("item_id", item.ID), zap.String("path", out))
	return &Asset{ItemID: item.ID, Path: out}, nil
}

func (y *YtdlpDownloader) run(ctx context.Context, item source.Item) (string, error) {
	template := filepath.Join(y.Dir, item.ID+".%(ext)s")
	args := []string{
		"--no-warnings",
		"--no-progress",
		"--no-playlist",
		"-f", ytdlpFormat,
		"--merge-output-format", "mp4",
		"-o", template,
		"--print", "after_move:filepath",
	}
	args = append(args, y.ExtraArgs...)
	args = append(args, item.MediaURL)

	timeout := y.Timeout
	if timeout == 0 {
		timeout = defaultYtdlpTimeout
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, y.path(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if cmdCtx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("yt-dlp timed out after %v", timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(msg, "HTTP Error 404") || strings.Contains(msg, "Unsupported URL") {
			return "", retry.Permanent(fmt.Errorf("yt-dlp: %s", msg))
		}
		return "", fmt.Errorf("yt-dlp failed: %w: %s", err, msg)
	}

	p := lastLine(stdout.String())
	if p == "" {
		// Older yt-dlp releases ignore --print after_move.
		matches, _ := filepath.Glob(filepath.Join(y.Dir, item.ID+".*"))
		for _, m := range matches {
			if !strings.HasSuffix(m, ".part") {
				p = m
				break
			}
		}
	}
	if p == "" {
		return "", errors.New("yt-dlp reported no output file")
	}
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("yt-dlp output missing: %w", err)
	}
	return p, nil
}

func (y *YtdlpDownloader) checkInstalled(ctx context.Context) error {
	if err := exec.CommandContext(ctx, y.path(), "--version").Run(); err != nil {
		return ErrYtdlpNotInstalled
	}
	return nil
}

func (y *YtdlpDownloader) path() string {
	if y.Path != "" {
		return y.Path
	}
	return defaultYtdlpPath
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// AutoDownloader sends HLS playlists to yt-dlp and everything else to the
// direct HTTP downloader.
type AutoDownloader struct {
	Direct Downloader
	Stream Downloader
}

// Download picks the downloader for the item's media URL.
func (a *AutoDownloader) Download(ctx context.Context, item source.Item) (*Asset, error) {
	if IsHLS(item.MediaURL) && a.Stream != nil {
		return a.Stream.Download(ctx, item)
	}
	return a.Direct.Download(ctx, item)
}
