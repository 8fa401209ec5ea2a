package detiksync

import (
	"detiksync/internal/config"
	"detiksync/internal/httpclient"
	"detiksync/internal/media"
	"detiksync/internal/publish"
	"detiksync/internal/retry"
	"detiksync/internal/source"
	"detiksync/internal/storage"
)

// Error types of a pass. ConfigError, StorageError (on load) and FetchError
// are fatal for the pass; DownloadError and PublishError only affect one item
// or one destination.
type (
	// ConfigError reports a missing or malformed parameter or destinations file.
	ConfigError = config.ConfigError
	// StorageError wraps ledger and lock failures.
	StorageError = storage.StorageError
	// FetchError means the listing could not be retrieved.
	FetchError = source.FetchError
	// DownloadError means an item's media could not be obtained.
	DownloadError = media.DownloadError
	// PublishError means one destination rejected or failed an upload.
	PublishError = publish.PublishError
	// RetryableError wraps errors that persisted after all retries.
	RetryableError = retry.RetryableError
	// HTTPError is a non-2xx response that was not a rate limit.
	HTTPError = httpclient.HTTPError
	// RateLimitError is a 429 or rate limiting 503 response.
	RateLimitError = httpclient.RateLimitError
)

// Sentinel errors exported from sub-packages.
var (
	ErrNoDestinations = config.ErrNoDestinations

	// ErrStorageCorrupt indicates an unreadable ledger file.
	ErrStorageCorrupt = storage.ErrStorageCorrupt
	// ErrLockTimeout indicates another process holds the ledger lock.
	ErrLockTimeout = storage.ErrLockTimeout

	ErrNoMedia      = source.ErrNoMedia
	ErrIncomplete   = media.ErrIncomplete
	ErrMissingToken = publish.ErrMissingToken
	ErrInvalidToken = publish.ErrInvalidToken
)

// IsRetryable determines if an error should be retried. Rate limits, 5xx
// responses and transport failures are; other HTTP errors, cancellation and
// errors marked permanent are not.
func IsRetryable(err error) bool {
	return httpclient.IsRetryable(err)
}
