package runner

import (
	"time"

	"go.uber.org/zap"
)

// State is the coordinator's position in a pass.
type State int

const (
	StateIdle State = iota
	StateConfigLoaded
	StateLedgerLoaded
	StateFetching
	StateProcessingItem
	StateLedgerPersisted
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateIdle:            "idle",
	StateConfigLoaded:    "config_loaded",
	StateLedgerLoaded:    "ledger_loaded",
	StateFetching:        "fetching",
	StateProcessingItem:  "processing_item",
	StateLedgerPersisted: "ledger_persisted",
	StateDone:            "done",
	StateFailed:          "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Summary reports what one pass did.
type Summary struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	// State is the last state reached: StateDone or StateFailed.
	State State

	Fetched        int
	Skipped        int
	Downloaded     int
	DownloadFailed int
	// Published and PublishFailed are keyed by destination id.
	Published     map[string]int
	PublishFailed map[string]int

	// StoppedEarly is set when the time budget or the context ended the
	// pass before every candidate was processed.
	StoppedEarly bool
}

func newSummary(runID string, started time.Time) *Summary {
	return &Summary{
		RunID:         runID,
		StartedAt:     started,
		State:         StateIdle,
		Published:     make(map[string]int),
		PublishFailed: make(map[string]int),
	}
}

// TotalPublished sums successful publishes over all destinations.
func (s *Summary) TotalPublished() int {
	n := 0
	for _, v := range s.Published {
		n += v
	}
	return n
}

// TotalPublishFailed sums failed publishes over all destinations.
func (s *Summary) TotalPublishFailed() int {
	n := 0
	for _, v := range s.PublishFailed {
		n += v
	}
	return n
}

// Fields renders the summary as log fields.
func (s *Summary) Fields() []zap.Field {
	return []zap.Field{
		zap.String("run_id", s.RunID),
		zap.Stringer("state", s.State),
		zap.Duration("duration", s.Duration),
		zap.Int("fetched", s.Fetched),
		zap.Int("skipped", s.Skipped),
		zap.Int("downloaded", s.Downloaded),
		zap.Int("download_failed", s.DownloadFailed),
		zap.Int("published", s.TotalPublished()),
		zap.Int("publish_failed", s.TotalPublishFailed()),
		zap.Any("published_by_destination", s.Published),
		zap.Any("failed_by_destination", s.PublishFailed),
		zap.Bool("stopped_early", s.StoppedEarly),
	}
}
