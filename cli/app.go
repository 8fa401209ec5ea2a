package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"detiksync/internal/config"
	"detiksync/internal/gate"
	"detiksync/internal/httpclient"
	"detiksync/internal/media"
	"detiksync/internal/metrics"
	"detiksync/internal/publish"
	"detiksync/internal/retry"
	"detiksync/internal/runner"
	"detiksync/internal/source"
	"detiksync/internal/storage"
)

// uploadTimeout bounds one Graph request, which may carry a whole video.
const uploadTimeout = 15 * time.Minute

// lockTimeout is how long a pass waits for another instance's ledger lock.
const lockTimeout = 5 * time.Second

// app is a fully wired pipeline.
type app struct {
	cfg         *config.Config
	logger      *zap.Logger
	registry    *prometheus.Registry
	coordinator *runner.Coordinator
	clients     []*httpclient.Client
}

func retryPolicy(cfg *config.Config) retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxRetries = cfg.MaxRetries
	p.InitialBackoff = cfg.RetryDelay
	if p.MaxBackoff < cfg.RetryDelay {
		p.MaxBackoff = cfg.RetryDelay
	}
	return p
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	policy := retryPolicy(cfg)

	fetchCfg := httpclient.DefaultConfig()
	fetchCfg.Retry = policy
	fetchCfg.UserAgent = cfg.UserAgent
	fetchClient := httpclient.New(fetchCfg, logger.Named("http"))

	// The Graph API is paced separately, so the publish client is unlimited.
	pubCfg := httpclient.DefaultConfig()
	pubCfg.Retry = policy
	pubCfg.UserAgent = cfg.UserAgent
	pubCfg.Timeout = uploadTimeout
	pubCfg.RequestsPerSecond = 0
	pubClient := httpclient.New(pubCfg, logger.Named("graph"))

	fetcher, err := source.New(cfg.SourceKind, fetchClient, logger.Named("source"), source.Options{MaxItems: cfg.MaxItems})
	if err != nil {
		return nil, &config.ConfigError{Err: err}
	}

	dlog := logger.Named("media")
	downloader := media.WithReels(
		&media.AutoDownloader{
			Direct: media.NewHTTPDownloader(fetchClient, cfg.DownloadDir, policy, dlog),
			Stream: media.NewYtdlpDownloader(cfg.YtdlpPath, cfg.DownloadDir, policy, dlog),
		},
		media.NewReelConverter(cfg.FfmpegPath, cfg.ReelMaxDuration, dlog),
		dlog,
	)

	publisher := publish.NewGraphPublisher(pubClient, publish.GraphOptions{Version: cfg.GraphAPIVersion}, logger.Named("publish"))

	reg := prometheus.NewRegistry()
	coordinator := runner.New(cfg, runner.Deps{
		Fetcher:    fetcher,
		Downloader: downloader,
		Publisher:  publisher,
		Pacer:      publish.NewPacer(cfg.UploadDelay),
		Metrics:    metrics.New(reg),
		Logger:     logger.Named("runner"),
	})

	return &app{
		cfg:         cfg,
		logger:      logger,
		registry:    reg,
		coordinator: coordinator,
		clients:     []*httpclient.Client{fetchClient, pubClient},
	}, nil
}

func (a *app) Close() {
	for _, c := range a.clients {
		c.Close()
	}
}

func (a *app) window() gate.Window {
	return gate.Window{StartHour: a.cfg.GateStartHour, EndHour: a.cfg.GateEndHour, Location: gate.WIB}
}

// errLocked reports that another instance holds the ledger.
var errLocked = errors.New("ledger is locked by another run")

// pass runs one coordinator pass, optionally gated and under the ledger lock,
// and writes the metrics textfile when configured.
func (a *app) pass(ctx context.Context, useGate, useLock bool) (*runner.Summary, error) {
	if useGate {
		if w := a.window(); !w.Open(time.Now()) {
			a.logger.Info("outside operating hours, skipping run", zap.Stringer("window", w))
			return nil, nil
		}
	}

	if useLock {
		lock := storage.NewFileLock(a.cfg.DataFile)
		if err := lock.Lock(lockTimeout); err != nil {
			if storage.IsLockTimeout(err) {
				return nil, errLocked
			}
			a.logger.Error("cannot lock ledger", zap.Error(err))
			return nil, err
		}
		defer lock.Unlock()
	}

	sum, err := a.coordinator.Run(ctx)

	if a.cfg.MetricsFile != "" {
		if werr := metrics.WriteTextfile(a.registry, a.cfg.MetricsFile); werr != nil {
			a.logger.Warn("failed to write metrics", zap.String("path", a.cfg.MetricsFile), zap.Error(werr))
		}
	}
	return sum, err
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func describeConfig(cfg *config.Config) string {
	return fmt.Sprintf("source=%s base_url=%s budget=%s", cfg.SourceKind, cfg.BaseURL, cfg.Budget())
}
