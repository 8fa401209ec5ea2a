package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"detiksync/internal/retry"
)

func testConfig() *Config {
	return &Config{
		Timeout:   5 * time.Second,
		UserAgent: "detiksync-test",
		Retry: retry.Policy{
			MaxRetries:     2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			Multiplier:     2,
		},
	}
}

func TestNewClientNilConfig(t *testing.T) {
	client := New(nil, nil)
	if client == nil {
		t.Fatal("expected client to be created with default config")
	}
	client.Close()
}

func TestClientGetSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if ua := r.Header.Get("User-Agent"); ua != "detiksync-test" {
			t.Errorf("User-Agent = %q, want detiksync-test", ua)
		}
		w.Write([]byte("test response"))
	}))
	defer server.Close()

	client := New(testConfig(), nil)
	defer client.Close()

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	if string(resp.Body) != "test response" {
		t.Errorf("expected 'test response', got %q", string(resp.Body))
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := New(testConfig(), nil)
	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Body) != "ok" {
		t.Errorf("body = %q, want ok", resp.Body)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestClientRetriesRateLimit(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := New(testConfig(), nil)
	if _, err := client.Get(context.Background(), server.URL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestClientDoesNotRetryNotFound(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer server.Close()

	client := New(testConfig(), nil)
	_, err := client.Get(context.Background(), server.URL)

	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("error = %v, want *HTTPError", err)
	}
	if he.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", he.StatusCode)
	}
	if !strings.Contains(string(he.Body), "missing") {
		t.Errorf("Body = %q, want to contain 'missing'", he.Body)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestClientExhaustedRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(testConfig(), nil)
	_, err := client.Get(context.Background(), server.URL)

	var re *retry.RetryableError
	if !errors.As(err, &re) {
		t.Fatalf("error = %v, want *retry.RetryableError", err)
	}
	if re.Retries != 2 {
		t.Errorf("Retries = %d, want 2", re.Retries)
	}
}

func TestClientDoSendsFreshBodyPerAttempt(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		if string(data) != "payload" {
			t.Errorf("body = %q, want payload", data)
		}
		if r.ContentLength != int64(len("payload")) {
			t.Errorf("ContentLength = %d, want %d", r.ContentLength, len("payload"))
		}
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("done"))
	}))
	defer server.Close()

	body := func() (io.Reader, int64, error) {
		return strings.NewReader("payload"), int64(len("payload")), nil
	}

	client := New(testConfig(), nil)
	resp, err := client.Do(context.Background(), http.MethodPost, server.URL, body, map[string]string{"X-Test": "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Body) != "done" {
		t.Errorf("body = %q, want done", resp.Body)
	}
}

func TestClientOpenStreams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("stream"))
	}))
	defer server.Close()

	client := New(testConfig(), nil)
	resp, err := client.Open(context.Background(), server.URL, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if string(data) != "stream" {
		t.Errorf("body = %q, want stream", data)
	}
}

func TestParseRetryAfter(t *testing.T) {
	h := http.Header{}
	if got := parseRetryAfter(h); got != 0 {
		t.Errorf("parseRetryAfter(empty) = %v, want 0", got)
	}
	h.Set("Retry-After", "7")
	if got := parseRetryAfter(h); got != 7*time.Second {
		t.Errorf("parseRetryAfter(7) = %v, want 7s", got)
	}
	h.Set("Retry-After", "soon")
	if got := parseRetryAfter(h); got != 0 {
		t.Errorf("parseRetryAfter(soon) = %v, want 0", got)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", &RateLimitError{StatusCode: 429}, true},
		{"server error", &HTTPError{StatusCode: 502}, true},
		{"client error", &HTTPError{StatusCode: 400}, false},
		{"permanent", retry.Permanent(errors.New("x")), false},
		{"canceled", context.Canceled, false},
		{"transport", errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClientErrorsRedactTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	client := New(testConfig(), nil)
	defer client.Close()

	_, err := client.Get(context.Background(), server.URL+"/feed?access_token=secret-value&page=2")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if strings.Contains(err.Error(), "secret-value") {
		t.Errorf("error leaks token: %v", err)
	}
	if !strings.Contains(httpErr.URL, "page=2") {
		t.Errorf("URL = %q, want other query values kept", httpErr.URL)
	}

	server.Close()
	_, err = client.Get(context.Background(), server.URL+"/feed?access_token=secret-value")
	if err == nil {
		t.Fatal("expected transport error from closed server")
	}
	if strings.Contains(err.Error(), "secret-value") {
		t.Errorf("transport error leaks token: %v", err)
	}
}

type trackedBody struct {
	io.Reader
	closed bool
}

func (b *trackedBody) Close() error {
	b.closed = true
	return nil
}

func TestClientClosesBodyOnBadRequest(t *testing.T) {
	client := New(testConfig(), nil)
	defer client.Close()

	tracked := &trackedBody{Reader: strings.NewReader("payload")}
	body := func() (io.Reader, int64, error) {
		return tracked, int64(len("payload")), nil
	}
	_, err := client.Do(context.Background(), http.MethodPost, "http://[::1", body, nil)
	if err == nil {
		t.Fatal("expected error for malformed URL")
	}
	if !tracked.closed {
		t.Error("body was not closed")
	}
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://graph.facebook.com/v20.0/page/videos", "https://graph.facebook.com/v20.0/page/videos"},
		{"https://graph.facebook.com/page?access_token=abc", "https://graph.facebook.com/page?access_token=REDACTED"},
		{"https://x/y?a=1&client_secret=s", "https://x/y?a=1&client_secret=REDACTED"},
		{"https://x/y?a=1", "https://x/y?a=1"},
	}
	for _, tt := range tests {
		if got := redactURL(tt.in); got != tt.want {
			t.Errorf("redactURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
