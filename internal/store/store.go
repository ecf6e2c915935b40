// Package store provides the local persistence used by the desk itself:
// operator identities and the audit trail of user-triggered actions.
// Messages, leads and snapshots are never stored here.
package store

import (
	"context"
	"time"

	"github.com/ashureev/pagedesk/internal/domain"
)

// Repository defines the interface for persisting operators and their actions.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// RecordAction appends an entry to the audit trail.
	RecordAction(ctx context.Context, action *domain.ActionRecord) error

	// ListActions returns the most recent actions of a user, newest first.
	ListActions(ctx context.Context, userID string, limit int) ([]*domain.ActionRecord, error)

	// PruneActions removes audit entries older than ttl.
	PruneActions(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
