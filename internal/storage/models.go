package storage

import "time"

// Entry records which destinations received an item.
type Entry struct {
	ItemID      string    `json:"item_id"`
	Title       string    `json:"title,omitempty"`
	PageURL     string    `json:"page_url,omitempty"`
	ProcessedAt time.Time `json:"processed_at"` // first successful delivery
	// Destinations is keyed by destination id.
	Destinations map[string]Delivery `json:"destinations"`
}

// Delivery is one successful publish of an item to a destination.
type Delivery struct {
	PublishedAt time.Time `json:"published_at"`
	RemoteID    string    `json:"remote_id,omitempty"`
}

// clone returns a deep copy so callers cannot mutate the ledger.
func (e *Entry) clone() *Entry {
	c := *e
	c.Destinations = make(map[string]Delivery, len(e.Destinations))
	for k, v := range e.Destinations {
		c.Destinations[k] = v
	}
	return &c
}
