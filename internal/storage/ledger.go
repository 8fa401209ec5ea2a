package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"
)

const schemaVersion = "1.0"

// Ledger maps item ids to the destinations they were published to. It is
// the only state that survives between runs.
type Ledger struct {
	mu    sync.RWMutex
	items map[string]*Entry
}

// ledgerFile is the on-disk document.
type ledgerFile struct {
	Version   string            `json:"version"`
	UpdatedAt time.Time         `json:"updated_at"`
	Items     map[string]*Entry `json:"items"`
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{items: make(map[string]*Entry)}
}

// LoadLedger reads the ledger at path. An absent or empty file yields an
// empty ledger; a file that exists but does not decode is ErrStorageCorrupt.
func LoadLedger(path string) (*Ledger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewLedger(), nil
		}
		return nil, &StorageError{Op: "load", Path: path, Err: err}
	}
	if len(data) == 0 {
		return NewLedger(), nil
	}

	var doc ledgerFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &StorageError{Op: "load", Path: path, Err: fmt.Errorf("%w: %v", ErrStorageCorrupt, err)}
	}
	if doc.Version != "" && doc.Version != schemaVersion {
		return nil, &StorageError{Op: "load", Path: path,
			Err: fmt.Errorf("%w: unsupported version %q", ErrStorageCorrupt, doc.Version)}
	}

	l := NewLedger()
	for id, e := range doc.Items {
		if e == nil || id == "" {
			return nil, &StorageError{Op: "load", Path: path,
				Err: fmt.Errorf("%w: empty entry %q", ErrStorageCorrupt, id)}
		}
		if e.ItemID == "" {
			e.ItemID = id
		}
		if e.ItemID != id {
			return nil, &StorageError{Op: "load", Path: path,
				Err: fmt.Errorf("%w: entry key %q holds item %q", ErrStorageCorrupt, id, e.ItemID)}
		}
		normalize(e)
		l.items[id] = e
	}
	return l, nil
}

// normalize keeps times in UTC and maps non-nil so a reload equals the original.
func normalize(e *Entry) {
	e.ProcessedAt = e.ProcessedAt.UTC()
	if e.Destinations == nil {
		e.Destinations = make(map[string]Delivery)
	}
	for k, d := range e.Destinations {
		d.PublishedAt = d.PublishedAt.UTC()
		e.Destinations[k] = d
	}
}

// Contains reports whether itemID was published to destinationID.
func (l *Ledger) Contains(itemID, destinationID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.items[itemID]
	if !ok {
		return false
	}
	_, ok = e.Destinations[destinationID]
	return ok
}

// Complete reports whether itemID was published to every destination in ids.
// An empty ids list is never complete.
func (l *Ledger) Complete(itemID string, destinationIDs []string) bool {
	if len(destinationIDs) == 0 {
		return false
	}
	for _, id := range destinationIDs {
		if !l.Contains(itemID, id) {
			return false
		}
	}
	return true
}

// Record marks itemID as published to destinationID at the given time.
// Recording an existing pair has no effect. It reports whether the ledger changed.
func (l *Ledger) Record(itemID, destinationID string, at time.Time) bool {
	if itemID == "" || destinationID == "" {
		return false
	}
	at = at.UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.items[itemID]
	if !ok {
		e = &Entry{ItemID: itemID, ProcessedAt: at, Destinations: make(map[string]Delivery)}
		l.items[itemID] = e
	}
	if _, done := e.Destinations[destinationID]; done {
		return false
	}
	e.Destinations[destinationID] = Delivery{PublishedAt: at}
	return true
}

// SetRemoteID stores the id the destination assigned to a recorded delivery.
func (l *Ledger) SetRemoteID(itemID, destinationID, remoteID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.items[itemID]
	if !ok {
		return fmt.Errorf("%w: item %q not recorded", ErrInvalidInput, itemID)
	}
	d, ok := e.Destinations[destinationID]
	if !ok {
		return fmt.Errorf("%w: item %q not recorded for %q", ErrInvalidInput, itemID, destinationID)
	}
	d.RemoteID = remoteID
	e.Destinations[destinationID] = d
	return nil
}

// Describe attaches human readable metadata to a recorded item.
func (l *Ledger) Describe(itemID, title, pageURL string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.items[itemID]; ok {
		e.Title = title
		e.PageURL = pageURL
	}
}

// Entry returns a copy of the entry for itemID.
func (l *Ledger) Entry(itemID string) (*Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.items[itemID]
	if !ok {
		return nil, false
	}
	return e.clone(), true
}

// Entries returns a copy of every entry keyed by item id.
func (l *Ledger) Entries() map[string]*Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]*Entry, len(l.items))
	for id, e := range l.items {
		out[id] = e.clone()
	}
	return out
}

// Len returns the number of items in the ledger.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// DeliveryCounts returns the number of items delivered per destination.
func (l *Ledger) DeliveryCounts() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	counts := make(map[string]int)
	for _, e := range l.items {
		for dest := range e.Destinations {
			counts[dest]++
		}
	}
	return counts
}

// ItemIDs returns all item ids sorted, mostly for stable output.
func (l *Ledger) ItemIDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.items))
	for id := range l.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Save atomically writes the full ledger to path.
func (l *Ledger) Save(path string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	doc := ledgerFile{
		Version:   schemaVersion,
		UpdatedAt: time.Now().UTC(),
		Items:     l.items,
	}
	err := writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	})
	if err != nil {
		return &StorageError{Op: "save", Path: path, Err: err}
	}
	return nil
}
