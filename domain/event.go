package domain

// ChangeEvent describes a completed mutation for the change feed.
type ChangeEvent struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Op         string `json:"op"`
	Timestamp  int64  `json:"timestamp"`
}

// ChangeEnvelope wraps a change event with the user who performed it.
type ChangeEnvelope struct {
	UserID string      `json:"userId"`
	Event  ChangeEvent `json:"event"`
}

// Change event operations.
const (
	OpCreated = "created"
	OpUpdated = "updated"
	OpMoved   = "moved"
	OpDeleted = "deleted"
)

// Identity is the authenticated caller as reported by the identity provider.
type Identity struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
}
