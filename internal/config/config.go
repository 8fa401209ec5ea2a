// Package config manages operating parameters and the destinations file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is accepted in front of every parameter name and wins over the bare name.
const EnvPrefix = "DETIKSYNC_"

// DefaultFile is read from the working directory when no file is given.
const DefaultFile = "detiksync.json"

// Source kinds understood by the fetcher.
const (
	SourceHTML = "html"
	SourceRSS  = "rss"
)

// Config holds all operating parameters of a run.
type Config struct {
	BaseURL     string
	SourceKind  string
	DataFile    string
	PagesFile   string
	DownloadDir string

	// CheckInterval is advisory for the one-shot run and drives `watch`.
	CheckInterval time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	UploadDelay   time.Duration

	RunTimeout     time.Duration
	ShutdownMargin time.Duration
	MaxItems       int

	ReelMaxDuration    time.Duration
	KeepDownloads      bool
	PersistEachPublish bool

	UserAgent       string
	YtdlpPath       string
	FfmpegPath      string
	GraphAPIVersion string
	MetricsFile     string

	GateStartHour int
	GateEndHour   int
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "https://20.detik.com/detikupdate",
		SourceKind:         SourceHTML,
		DataFile:           "posted_videos.json",
		PagesFile:          "facebook_pages.json",
		DownloadDir:        "downloaded_videos",
		CheckInterval:      7200 * time.Second,
		MaxRetries:         3,
		RetryDelay:         5 * time.Second,
		UploadDelay:        30 * time.Second,
		RunTimeout:         30 * time.Minute,
		ShutdownMargin:     2 * time.Minute,
		MaxItems:           0,
		ReelMaxDuration:    60 * time.Second,
		UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		YtdlpPath:          "yt-dlp",
		FfmpegPath:         "ffmpeg",
		GraphAPIVersion:    "v20.0",
		GateStartHour:      6,
		GateEndHour:        22,
		KeepDownloads:      false,
		PersistEachPublish: false,
	}
}

// Load builds the configuration from defaults, the optional JSON file and the
// environment, in increasing priority. A .env file in the working directory
// is merged into the environment first. An empty path means DefaultFile,
// which may be absent; an explicit path must exist.
func Load(path string) (*Config, error) {
	// A missing .env is normal in CI where secrets come from the runner.
	_ = godotenv.Load()

	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := cfg.loadFromFile(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) || explicit {
			return nil, &ConfigError{Path: path, Err: err}
		}
	}

	if err := cfg.apply(envLookup); err != nil {
		return nil, &ConfigError{Path: "environment", Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Err: err}
	}
	return cfg, nil
}

// loadFromFile reads a flat object using the same keys as the environment.
// Files ending in .yaml or .yml are YAML, anything else is JSON.
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var values map[string]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		values, err = decodeYAML(data)
	default:
		values, err = decodeJSON(data)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return c.apply(func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	})
}

func decodeJSON(data []byte) (map[string]string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			values[strings.ToUpper(k)] = s
			continue
		}
		values[strings.ToUpper(k)] = strings.TrimSpace(string(v))
	}
	return values, nil
}

func decodeYAML(data []byte) (map[string]string, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		values[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return values, nil
}

// envLookup prefers the prefixed variable over the bare one.
func envLookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
		return v, true
	}
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v, true
	}
	return "", false
}

type setter func(c *Config, v string) error

var params = map[string]setter{
	"BASE_URL":             str(func(c *Config) *string { return &c.BaseURL }),
	"SOURCE_KIND":          str(func(c *Config) *string { return &c.SourceKind }),
	"DATA_FILE":            str(func(c *Config) *string { return &c.DataFile }),
	"FB_PAGES_FILE":        str(func(c *Config) *string { return &c.PagesFile }),
	"DOWNLOAD_DIR":         str(func(c *Config) *string { return &c.DownloadDir }),
	"CHECK_INTERVAL":       seconds(func(c *Config) *time.Duration { return &c.CheckInterval }),
	"MAX_RETRIES":          integer(func(c *Config) *int { return &c.MaxRetries }),
	"RETRY_DELAY":          seconds(func(c *Config) *time.Duration { return &c.RetryDelay }),
	"UPLOAD_DELAY":         seconds(func(c *Config) *time.Duration { return &c.UploadDelay }),
	"RUN_TIMEOUT":          seconds(func(c *Config) *time.Duration { return &c.RunTimeout }),
	"SHUTDOWN_MARGIN":      seconds(func(c *Config) *time.Duration { return &c.ShutdownMargin }),
	"MAX_ITEMS":            integer(func(c *Config) *int { return &c.MaxItems }),
	"REEL_MAX_DURATION":    seconds(func(c *Config) *time.Duration { return &c.ReelMaxDuration }),
	"KEEP_DOWNLOADS":       boolean(func(c *Config) *bool { return &c.KeepDownloads }),
	"PERSIST_EACH_PUBLISH": boolean(func(c *Config) *bool { return &c.PersistEachPublish }),
	"USER_AGENT":           str(func(c *Config) *string { return &c.UserAgent }),
	"YTDLP_PATH":           str(func(c *Config) *string { return &c.YtdlpPath }),
	"FFMPEG_PATH":          str(func(c *Config) *string { return &c.FfmpegPath }),
	"GRAPH_API_VERSION":    str(func(c *Config) *string { return &c.GraphAPIVersion }),
	"METRICS_FILE":         str(func(c *Config) *string { return &c.MetricsFile }),
	"GATE_START_HOUR":      integer(func(c *Config) *int { return &c.GateStartHour }),
	"GATE_END_HOUR":        integer(func(c *Config) *int { return &c.GateEndHour }),
}

// apply overrides every parameter the lookup knows about.
func (c *Config) apply(lookup func(string) (string, bool)) error {
	var errs []error
	for key, set := range params {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		if err := set(c, strings.TrimSpace(v)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

func str(field func(*Config) *string) setter {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func integer(field func(*Config) *int) setter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid integer %q", v)
		}
		*field(c) = n
		return nil
	}
}

func boolean(field func(*Config) *bool) setter {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", v)
		}
		*field(c) = b
		return nil
	}
}

// seconds accepts a plain number of seconds or a Go duration string.
func seconds(field func(*Config) *time.Duration) setter {
	return func(c *Config, v string) error {
		d, err := ParseSeconds(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

// ParseSeconds parses "30", "1.5" or "45s" style values.
func ParseSeconds(v string) (time.Duration, error) {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("invalid duration %q", v)
		}
		return time.Duration(f * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	var errs []error
	if c.BaseURL == "" {
		errs = append(errs, errors.New("base_url must be set"))
	}
	if c.SourceKind != SourceHTML && c.SourceKind != SourceRSS {
		errs = append(errs, fmt.Errorf("source_kind must be %q or %q", SourceHTML, SourceRSS))
	}
	if c.DataFile == "" || c.PagesFile == "" || c.DownloadDir == "" {
		errs = append(errs, errors.New("data_file, fb_pages_file and download_dir must be set"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, errors.New("max_retries must be non-negative"))
	}
	if c.RetryDelay < 0 || c.UploadDelay < 0 || c.ReelMaxDuration < 0 {
		errs = append(errs, errors.New("retry_delay, upload_delay and reel_max_duration must be non-negative"))
	}
	if c.RunTimeout <= 0 {
		errs = append(errs, errors.New("run_timeout must be positive"))
	}
	if c.ShutdownMargin < 0 || c.ShutdownMargin >= c.RunTimeout {
		errs = append(errs, errors.New("shutdown_margin must be non-negative and below run_timeout"))
	}
	if c.MaxItems < 0 {
		errs = append(errs, errors.New("max_items must be non-negative"))
	}
	if c.CheckInterval <= 0 {
		errs = append(errs, errors.New("check_interval must be positive"))
	}
	if c.GateStartHour < 0 || c.GateStartHour > 23 || c.GateEndHour < 0 || c.GateEndHour > 24 {
		errs = append(errs, errors.New("gate hours must be within 0-23 (end may be 24)"))
	}
	return errors.Join(errs...)
}

// Budget is the time a pass may spend before it must start persisting.
func (c *Config) Budget() time.Duration {
	return c.RunTimeout - c.ShutdownMargin
}
