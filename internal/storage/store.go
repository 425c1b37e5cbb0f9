package storage

import "context"

// ObjectStore is the durable put/get contract used to exchange images and
// payloads between asynchronous stages. Keys are opaque locators; a missing
// object surfaces as domain.ErrNotFound so pollers can distinguish "not yet
// present" from hard failures.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}
