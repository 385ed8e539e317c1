package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
)

// NotificationStore defines the contract for notification persistence.
// It is the only shared mutable resource between dispatch workers, so every
// state transition it exposes is a single conditional update.
type NotificationStore interface {
	// Save persists a new pending notification.
	Save(ctx context.Context, n *model.Notification) (*model.Notification, error)

	// GetByID retrieves a notification by its unique ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Notification, error)

	// FindDue returns pending, unclaimed notifications with ScheduledFor <= now,
	// oldest first, at most limit rows.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*model.Notification, error)

	// Claim gives workerToken exclusive ownership of a pending notification until leaseUntil.
	// It returns ErrConflict when another worker holds it or it is no longer pending.
	Claim(ctx context.Context, id uuid.UUID, workerToken string, leaseUntil time.Time) (*model.Notification, error)

	// RecordOutcome applies the result of a send attempt and releases the claim.
	// A retry of a row whose booking was cancelled mid-send cancels the row.
	RecordOutcome(ctx context.Context, id uuid.UUID, workerToken string, outcome model.Outcome) error

	// CancelForBooking cancels pending rows of a booking, optionally limited to the
	// given types, and returns their ids. A row claimed by an in-flight send is
	// cancelled by its outcome unless that send succeeds.
	CancelForBooking(ctx context.Context, bookingID uuid.UUID, types ...model.Type) ([]uuid.UUID, error)

	// List returns notification history matching the filter, newest first.
	List(ctx context.Context, filter model.Filter) ([]*model.Notification, error)
}

// ClientDirectory resolves where a clinic client can be reached.
type ClientDirectory interface {
	GetContact(ctx context.Context, clientID uuid.UUID) (*model.Contact, error)
}

// NotificationCache defines the contract for a caching layer.
type NotificationCache interface {
	// Get retrieves an item from the cache.
	Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)

	// Set adds an item to the cache for a specified duration
	Set(ctx context.Context, n *model.Notification, expiration time.Duration) error

	// Delete removes items from the cache.
	Delete(ctx context.Context, ids ...uuid.UUID) error
}

// DispatchTrigger asks a running worker to perform an ad-hoc sweep.
type DispatchTrigger interface {
	PublishDispatchTrigger(ctx context.Context, requestedBy string) error
}
