// Package publish uploads assets to destinations and paces consecutive uploads.
package publish

import (
	"context"
	"errors"
	"fmt"

	"detiksync/internal/config"
	"detiksync/internal/media"
)

// Sentinel errors for destinations that can never succeed in this run.
var (
	// ErrMissingToken indicates a destination without an access token.
	ErrMissingToken = errors.New("publish: destination has no access token")
	// ErrInvalidToken indicates the destination rejected its token.
	ErrInvalidToken = errors.New("publish: access token rejected")
	// ErrNoRemoteID indicates the destination accepted the upload but
	// returned no id for it.
	ErrNoRemoteID = errors.New("publish: no id in response")
)

// Result is the outcome of a successful publish.
type Result struct {
	Success bool
	// RemoteID is the id the destination assigned, if any.
	RemoteID string
}

// Publisher delivers one asset to one destination.
type Publisher interface {
	Publish(ctx context.Context, asset *media.Asset, dest config.Destination, caption string) (Result, error)
}

// PublishError means an asset could not be delivered to a destination. The
// pair stays unrecorded and is retried on the next run.
type PublishError struct {
	Destination string
	ItemID      string
	Err         error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish: %s to %s: %v", e.ItemID, e.Destination, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
