// Package objectstore abstracts the object-storage backend holding file
// bytes. The service never proxies object payloads; it only issues presigned
// URLs and reconciles metadata against what the backend reports.
package objectstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Stat when no object exists at the key.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes an object as reported by the backend.
type ObjectInfo struct {
	Size        int64
	ContentType string
}

// Storage is the object-storage contract: signed-URL issuance, existence and
// metadata lookup, and delete-by-key. Deletes are retryable; deleting a
// missing key is not an error.
type Storage interface {
	// PresignPut returns a URL granting a single direct upload to key,
	// valid for the given duration.
	PresignPut(ctx context.Context, key string, expires time.Duration) (string, error)

	// PresignGet returns a URL granting a direct download of key.
	PresignGet(ctx context.Context, key string, expires time.Duration) (string, error)

	// Stat reports size and content type of the object at key, or ErrNotFound.
	Stat(ctx context.Context, key string) (ObjectInfo, error)

	// Remove deletes the object at key. Removing a missing key succeeds.
	Remove(ctx context.Context, key string) error
}
