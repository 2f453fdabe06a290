package service

import (
	"errors"
	"time"
)

// Errors surfaced by the upload broker and lifecycle logic, on top of the
// store-layer sentinels. Handlers translate them into HTTP statuses.
var (
	// ErrExpiredToken covers an upload token past its TTL, already consumed,
	// or revoked. All three look identical to the caller.
	ErrExpiredToken = errors.New("upload token expired or already used")

	// ErrStorageMismatch means the registered object violates the token's
	// bound constraints or is absent from object storage.
	ErrStorageMismatch = errors.New("uploaded object does not match token constraints")

	// ErrQuotaExceeded means a policy-defined storage limit would be crossed.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Clock supplies the current time. Injected so TTL and retention behavior is
// deterministic under test.
type Clock func() time.Time
