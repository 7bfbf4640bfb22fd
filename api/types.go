package api

import (
	"context"

	"kanban-api/domain"
)

// Authenticator is implemented by types able to extract the caller's
// identity from an Authorization header.
type Authenticator interface {
	IdentityFromAuthHeader(string) (domain.Identity, error)
}

// Deduper prevents reprocessing of replayed mutating requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, userID, key string) error
}
