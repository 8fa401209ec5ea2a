package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"detiksync/internal/config"
	"detiksync/internal/httpclient"
	"detiksync/internal/media"
)

// Default Facebook endpoints.
const (
	DefaultGraphAPIVersion = "v20.0"
	DefaultGraphURL        = "https://graph.facebook.com"
	DefaultVideoURL        = "https://graph-video.facebook.com"
	DefaultUploadURL       = "https://rupload.facebook.com"
)

// GraphOptions selects the API version and endpoints. Empty fields use the defaults.
type GraphOptions struct {
	Version   string
	GraphURL  string
	VideoURL  string
	UploadURL string
}

// GraphPublisher publishes to Facebook pages through the Graph API. Short
// assets marked as Reels go through the three phase Reels upload, the rest
// are posted as regular page videos.
type GraphPublisher struct {
	client *httpclient.Client
	opts   GraphOptions
	logger *zap.Logger

	mu      sync.Mutex
	checked map[string]error
}

// NewGraphPublisher creates a publisher. The client's retry policy applies
// to every request.
func NewGraphPublisher(client *httpclient.Client, opts GraphOptions, logger *zap.Logger) *GraphPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		client = httpclient.New(nil, logger)
	}
	if opts.Version == "" {
		opts.Version = DefaultGraphAPIVersion
	}
	if opts.GraphURL == "" {
		opts.GraphURL = DefaultGraphURL
	}
	if opts.VideoURL == "" {
		opts.VideoURL = DefaultVideoURL
	}
	if opts.UploadURL == "" {
		opts.UploadURL = DefaultUploadURL
	}
	opts.GraphURL = strings.TrimRight(opts.GraphURL, "/")
	opts.VideoURL = strings.TrimRight(opts.VideoURL, "/")
	opts.UploadURL = strings.TrimRight(opts.UploadURL, "/")

	return &GraphPublisher{
		client:  client,
		opts:    opts,
		logger:  logger,
		checked: make(map[string]error),
	}
}

// Publish uploads asset to dest with caption as its description.
func (g *GraphPublisher) Publish(ctx context.Context, asset *media.Asset, dest config.Destination, caption string) (Result, error) {
	fail := func(err error) (Result, error) {
		return Result{}, &PublishError{Destination: dest.ID, ItemID: asset.ItemID, Err: err}
	}

	if dest.AccessToken == "" {
		return fail(ErrMissingToken)
	}
	if err := g.checkToken(ctx, dest); err != nil {
		return fail(err)
	}

	var (
		id  string
		err error
	)
	if asset.Reel {
		id, err = g.publishReel(ctx, asset, dest, caption)
	} else {
		id, err = g.publishVideo(ctx, asset, dest, caption)
	}
	if err != nil {
		return fail(describe(err))
	}

	g.logger.Info("published",
		zap.String("item_id", asset.ItemID),
		zap.String("destination_id", dest.ID),
		zap.String("remote_id", id),
		zap.Bool("reel", asset.Reel))
	return Result{Success: true, RemoteID: id}, nil
}

// checkToken verifies a page token once per publisher. Results are keyed by
// page and token, so a token replaced in the destinations file is checked
// again.
func (g *GraphPublisher) checkToken(ctx context.Context, dest config.Destination) error {
	key := dest.ID + "\x00" + dest.AccessToken
	g.mu.Lock()
	err, done := g.checked[key]
	g.mu.Unlock()
	if done {
		return err
	}

	q := url.Values{}
	q.Set("since", "today")
	_, err = g.client.Do(ctx, http.MethodGet, g.graphEndpoint(dest.ID, "video_reels")+"?"+q.Encode(), nil, bearer(dest))

	var he *httpclient.HTTPError
	switch {
	case err == nil:
	case errors.As(err, &he) && he.StatusCode < 500:
		err = fmt.Errorf("%w: %v", ErrInvalidToken, describe(err))
	default:
		// Transient failures are not cached so the next item tries again.
		return describe(err)
	}

	g.mu.Lock()
	g.checked[key] = err
	g.mu.Unlock()
	return err
}

// bearer carries the page token in a header so it never appears in a URL.
func bearer(dest config.Destination) map[string]string {
	return map[string]string{"Authorization": "Bearer " + dest.AccessToken}
}

func (g *GraphPublisher) publishReel(ctx context.Context, asset *media.Asset, dest config.Destination, caption string) (string, error) {
	endpoint := g.graphEndpoint(dest.ID, "video_reels")

	var start struct {
		VideoID string `json:"video_id"`
	}
	err := g.postForm(ctx, endpoint, url.Values{
		"upload_phase": {"start"},
		"access_token": {dest.AccessToken},
	}, &start)
	if err != nil {
		return "", fmt.Errorf("start reel upload: %w", err)
	}
	if start.VideoID == "" {
		return "", fmt.Errorf("start reel upload: %w", ErrNoRemoteID)
	}

	size, err := fileSize(asset.Path)
	if err != nil {
		return "", err
	}
	uploadURL := fmt.Sprintf("%s/video-upload/%s/%s", g.opts.UploadURL, g.opts.Version, start.VideoID)
	resp, err := g.client.Do(ctx, http.MethodPost, uploadURL, fileBody(asset.Path), map[string]string{
		"Authorization": "OAuth " + dest.AccessToken,
		"offset":        "0",
		"file_size":     strconv.FormatInt(size, 10),
		"Content-Type":  "application/octet-stream",
	})
	if err != nil {
		return "", fmt.Errorf("upload reel data: %w", err)
	}
	var uploaded struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(resp.Body, &uploaded); err != nil || !uploaded.Success {
		return "", fmt.Errorf("upload reel data: unexpected response %s", resp.Body)
	}

	var finish struct {
		Success bool   `json:"success"`
		PostID  string `json:"post_id"`
	}
	err = g.postForm(ctx, endpoint, url.Values{
		"access_token":   {dest.AccessToken},
		"video_id":       {start.VideoID},
		"upload_phase":   {"finish"},
		"video_state":    {"PUBLISHED"},
		"description":    {caption},
		"container_type": {"REELS"},
		"share_to_feed":  {"true"},
	}, &finish)
	if err != nil {
		return "", fmt.Errorf("finish reel upload: %w", err)
	}
	if !finish.Success {
		return "", errors.New("finish reel upload: not accepted")
	}
	return start.VideoID, nil
}

func (g *GraphPublisher) publishVideo(ctx context.Context, asset *media.Asset, dest config.Destination, caption string) (string, error) {
	q := url.Values{}
	q.Set("description", caption)
	q.Set("published", "true")
	endpoint := fmt.Sprintf("%s/%s/%s/videos?%s", g.opts.VideoURL, g.opts.Version, url.PathEscape(dest.ID), q.Encode())

	boundary := strings.ReplaceAll(uuid.NewString(), "-", "")
	headers := bearer(dest)
	headers["Content-Type"] = "multipart/form-data; boundary=" + boundary
	resp, err := g.client.Do(ctx, http.MethodPost, endpoint, multipartBody(asset.Path, boundary), headers)
	if err != nil {
		return "", fmt.Errorf("upload video: %w", err)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", fmt.Errorf("upload video: decode response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("upload video: %w", ErrNoRemoteID)
	}
	return out.ID, nil
}

func (g *GraphPublisher) graphEndpoint(pageID, edge string) string {
	return fmt.Sprintf("%s/%s/%s/%s", g.opts.GraphURL, g.opts.Version, url.PathEscape(pageID), edge)
}

func (g *GraphPublisher) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	encoded := form.Encode()
	body := func() (io.Reader, int64, error) {
		return strings.NewReader(encoded), int64(len(encoded)), nil
	}
	resp, err := g.client.Do(ctx, http.MethodPost, endpoint, body, map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// readCloser closes the file once the transport is done with the body.
type readCloser struct {
	io.Reader
	f *os.File
}

func (r *readCloser) Close() error { return r.f.Close() }

// fileBody reopens the file for every attempt.
func fileBody(path string) httpclient.BodyFunc {
	return func() (io.Reader, int64, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, err
		}
		fi, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, 0, err
		}
		return &readCloser{Reader: f, f: f}, fi.Size(), nil
	}
}

// multipartBody streams the file as the "source" field of a multipart form
// without buffering it, so the length is known up front.
func multipartBody(path, boundary string) httpclient.BodyFunc {
	return func() (io.Reader, int64, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, err
		}
		fi, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, 0, err
		}

		var head bytes.Buffer
		mw := multipart.NewWriter(&head)
		if err := mw.SetBoundary(boundary); err != nil {
			f.Close()
			return nil, 0, err
		}
		if _, err := mw.CreateFormFile("source", filepath.Base(path)); err != nil {
			f.Close()
			return nil, 0, err
		}
		tail := "\r\n--" + boundary + "--\r\n"

		length := int64(head.Len()) + fi.Size() + int64(len(tail))
		r := io.MultiReader(bytes.NewReader(head.Bytes()), f, strings.NewReader(tail))
		return &readCloser{Reader: r, f: f}, length, nil
	}
}

func fileSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// graphErrorBody is the error envelope of the Graph API.
type graphErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// describe adds the Graph error message to HTTP errors while keeping the
// original error reachable.
func describe(err error) error {
	var he *httpclient.HTTPError
	if !errors.As(err, &he) {
		return err
	}
	var body graphErrorBody
	if json.Unmarshal(he.Body, &body) != nil || body.Error.Message == "" {
		return err
	}
	return fmt.Errorf("%w (graph %s #%d: %s)", err, body.Error.Type, body.Error.Code, body.Error.Message)
}
