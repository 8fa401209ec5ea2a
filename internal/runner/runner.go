// Package runner coordinates one sync pass: load the destinations and the
// ledger, fetch candidates, then download, publish and record each new item
// before persisting the ledger.
package runner

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"detiksync/internal/config"
	"detiksync/internal/media"
	"detiksync/internal/metrics"
	"detiksync/internal/publish"
	"detiksync/internal/source"
	"detiksync/internal/storage"
)

// Deps are the collaborators of a Coordinator. Fetcher, Downloader and
// Publisher are required.
type Deps struct {
	Fetcher    source.Fetcher
	Downloader media.Downloader
	Publisher  publish.Publisher
	// Pacer spaces publishes. Nil never waits.
	Pacer   *publish.Pacer
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	// Now is the clock used for ledger timestamps and the time budget.
	Now func() time.Time
}

// Coordinator runs passes. It holds no state between passes; the ledger
// file is the only thing that survives.
type Coordinator struct {
	cfg  *config.Config
	deps Deps
	log  *zap.Logger

	state State
}

// New creates a coordinator for cfg.
func New(cfg *config.Config, deps Deps) *Coordinator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Coordinator{cfg: cfg, deps: deps, log: deps.Logger}
}

// State returns the state the last pass reached.
func (c *Coordinator) State() State { return c.state }

// pass carries what one Run needs.
type pass struct {
	ledger   *storage.Ledger
	dests    []config.Destination
	destIDs  []string
	deadline time.Time
	summary  *Summary
	log      *zap.Logger
}

// Run performs one pass. A fatal error (configuration, corrupt ledger,
// unreachable listing) returns before the ledger file is touched. Per item
// failures are logged and counted in the Summary, which is returned in
// every case.
func (c *Coordinator) Run(ctx context.Context) (*Summary, error) {
	started := c.deps.Now()
	p := &pass{summary: newSummary(uuid.NewString(), started)}
	p.log = c.log.With(zap.String("run_id", p.summary.RunID))
	if budget := c.cfg.Budget(); budget > 0 {
		p.deadline = started.Add(budget)
		var cancel context.CancelFunc
		// In-flight uploads are cut off when the budget runs out so the
		// shutdown margin stays available for persisting.
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	err := c.run(ctx, p)
	p.summary.Duration = c.deps.Now().Sub(started)
	p.summary.State = c.state
	c.deps.Metrics.RunFinished(c.deps.Now(), p.summary.Duration, err == nil)

	if err != nil {
		p.log.Error("run failed", append(p.summary.Fields(), zap.Error(err))...)
		return p.summary, err
	}
	p.log.Info("run finished", p.summary.Fields()...)
	return p.summary, nil
}

func (c *Coordinator) run(ctx context.Context, p *pass) error {
	c.state = StateIdle

	dests, err := config.LoadDestinations(c.cfg.PagesFile, p.log)
	if err != nil {
		return c.fail(err)
	}
	p.dests = dests
	p.destIDs = config.DestinationIDs(dests)
	c.state = StateConfigLoaded

	ledger, err := storage.LoadLedger(c.cfg.DataFile)
	if err != nil {
		return c.fail(err)
	}
	p.ledger = ledger
	c.state = StateLedgerLoaded
	p.log.Info("ledger loaded", zap.String("path", c.cfg.DataFile), zap.Int("items", ledger.Len()),
		zap.Strings("destinations", p.destIDs))

	c.state = StateFetching
	items, err := c.deps.Fetcher.Fetch(ctx, c.cfg.BaseURL)
	if err != nil {
		var fe *source.FetchError
		if !errors.As(err, &fe) {
			err = &source.FetchError{URL: c.cfg.BaseURL, Err: err}
		}
		return c.fail(err)
	}
	p.summary.Fetched = len(items)
	c.deps.Metrics.Fetched(len(items))

	for i, item := range items {
		if c.stop(ctx, p) {
			p.log.Warn("stopping before all items were processed",
				zap.Int("processed", i), zap.Int("remaining", len(items)-i))
			break
		}
		c.state = StateProcessingItem
		if !c.processItem(ctx, p, item) {
			p.log.Warn("stopping during item", zap.String("item_id", item.ID),
				zap.Int("remaining", len(items)-i-1))
			break
		}
	}

	if err := p.ledger.Save(c.cfg.DataFile); err != nil {
		return c.fail(err)
	}
	c.state = StateLedgerPersisted
	p.log.Debug("ledger saved", zap.String("path", c.cfg.DataFile), zap.Int("items", p.ledger.Len()))

	c.state = StateDone
	return nil
}

func (c *Coordinator) fail(err error) error {
	c.state = StateFailed
	return err
}

// stop reports whether the budget or the context has run out, and marks the
// summary when it has.
func (c *Coordinator) stop(ctx context.Context, p *pass) bool {
	if ctx.Err() == nil && (p.deadline.IsZero() || c.deps.Now().Before(p.deadline)) {
		return false
	}
	p.summary.StoppedEarly = true
	return true
}

// processItem handles one candidate. It returns false when the pass must stop.
func (c *Coordinator) processItem(ctx context.Context, p *pass, item source.Item) bool {
	log := p.log.With(zap.String("item_id", item.ID))

	pending := make([]config.Destination, 0, len(p.dests))
	for _, d := range p.dests {
		if !p.ledger.Contains(item.ID, d.ID) {
			pending = append(pending, d)
		}
	}
	if len(pending) == 0 {
		p.summary.Skipped++
		c.deps.Metrics.Skipped()
		log.Debug("already published everywhere")
		return true
	}

	log.Info("processing item",
		zap.String("title", item.Title),
		zap.String("page_url", item.PageURL),
		zap.Int("pending_destinations", len(pending)))

	asset, err := c.deps.Downloader.Download(ctx, item)
	if err != nil {
		p.summary.DownloadFailed++
		c.deps.Metrics.Downloaded(false)
		log.Warn("download failed, skipping item", zap.Error(err))
		if ctx.Err() != nil {
			p.summary.StoppedEarly = true
			return false
		}
		return true
	}
	p.summary.Downloaded++
	c.deps.Metrics.Downloaded(true)
	defer c.cleanup(log, asset)

	caption := item.Caption()
	for _, dest := range pending {
		if c.stop(ctx, p) {
			return false
		}
		if err := c.deps.Pacer.Wait(ctx); err != nil {
			p.summary.StoppedEarly = true
			return false
		}

		res, err := c.deps.Publisher.Publish(ctx, asset, dest, caption)
		c.deps.Pacer.Done()

		dlog := log.With(zap.String("destination_id", dest.ID), zap.String("destination", dest.Name))
		if err == nil && !res.Success {
			err = errors.New("publisher reported no success")
		}
		if err != nil {
			p.summary.PublishFailed[dest.ID]++
			c.deps.Metrics.Published(dest.ID, false)
			dlog.Warn("publish failed, will retry next run", zap.Error(err))
			continue
		}

		c.record(dlog, p, item, dest, res)
	}
	return true
}

func (c *Coordinator) record(log *zap.Logger, p *pass, item source.Item, dest config.Destination, res publish.Result) {
	p.ledger.Record(item.ID, dest.ID, c.deps.Now())
	p.ledger.Describe(item.ID, item.Title, item.PageURL)
	if res.RemoteID != "" {
		p.ledger.SetRemoteID(item.ID, dest.ID, res.RemoteID)
	}
	p.summary.Published[dest.ID]++
	c.deps.Metrics.Published(dest.ID, true)
	log.Info("recorded", zap.String("remote_id", res.RemoteID))

	if c.cfg.PersistEachPublish {
		if err := p.ledger.Save(c.cfg.DataFile); err != nil {
			// The end of run save reports a persistent failure.
			log.Warn("incremental ledger save failed", zap.Error(err))
		}
	}
}

func (c *Coordinator) cleanup(log *zap.Logger, asset *media.Asset) {
	if c.cfg.KeepDownloads {
		return
	}
	if err := asset.Remove(); err != nil {
		log.Warn("failed to remove download", zap.String("path", asset.Path), zap.Error(err))
	}
}
