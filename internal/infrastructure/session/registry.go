package session

import "context"

// Registry maps an authenticated user to its live connection descriptor and
// back. At most one mapping exists per user: a newer connect overwrites an
// older one, and the replaced reverse entry is pruned so the two maps never
// disagree. All implementations are safe for concurrent use.
type Registry interface {
	// Register installs userID→connID and connID→userID, replacing any
	// previous connection of the user (last-connect-wins).
	Register(ctx context.Context, userID, connID string) error

	// Unregister removes both mappings for the connection. Unknown
	// descriptors are a no-op, which absorbs double disconnects.
	Unregister(ctx context.Context, connID string) error

	IsOnline(ctx context.Context, userID string) bool

	// Lookup returns the user's registered connection descriptor.
	Lookup(ctx context.Context, userID string) (string, bool)

	// UserFor resolves a connection descriptor back to its user.
	UserFor(ctx context.Context, connID string) (string, bool)
}
