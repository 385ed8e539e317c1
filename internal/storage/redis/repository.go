package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/clinic-notifier/internal/domain/repository"
	"github.com/rs/zerolog"
)

// Ensure CachedNotificationStore implements the interface
var _ repo.NotificationStore = (*CachedNotificationStore)(nil)

const defaultTTL = 24 * time.Hour

// CachedNotificationStore is a decorator for a NotificationStore that caches
// single-notification lookups in Redis. Only terminal snapshots are cached:
// they never change, so a lookup racing a transition cannot store a stale row.
// Every state transition goes to the primary store and then drops the affected
// keys, so the claim and outcome semantics stay those of the primary store.
type CachedNotificationStore struct {
	primary repo.NotificationStore
	cache   repo.NotificationCache
	logger  zerolog.Logger
	ttl     time.Duration
}

// NewCachedNotificationStore creates a new instance of the cached store.
// A non-positive ttl falls back to 24 hours.
func NewCachedNotificationStore(
	primary repo.NotificationStore,
	cache repo.NotificationCache,
	logger *zerolog.Logger,
	ttl time.Duration,
) *CachedNotificationStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &CachedNotificationStore{
		primary: primary,
		cache:   cache,
		logger:  logger.With().Str("layer", "cached_repository").Logger(),
		ttl:     ttl,
	}
}

// Save persists the notification in the primary store. New rows are pending,
// so nothing is cached yet.
func (s *CachedNotificationStore) Save(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	return s.primary.Save(ctx, n)
}

// GetByID implements the cache-aside pattern for terminal notifications.
func (s *CachedNotificationStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	cached, err := s.cache.Get(ctx, id)
	if err == nil {
		return cached, nil
	}

	if !errors.Is(err, repo.ErrNotFound) {
		s.logger.Error().Err(err).Stringer("id", id).Msg("cache get error, falling back to primary store")
	}

	primary, err := s.primary.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !primary.Status.Terminal() {
		return primary, nil
	}
	if err := s.cache.Set(ctx, primary, s.ttl); err != nil {
		s.logger.Error().Err(err).Stringer("id", primary.ID).Msg("failed to set cache after db fetch")
	}

	return primary, nil
}

// FindDue always reads the primary store; due sets must never be stale.
func (s *CachedNotificationStore) FindDue(ctx context.Context, now time.Time, limit int) ([]*model.Notification, error) {
	return s.primary.FindDue(ctx, now, limit)
}

// Claim delegates to the primary store and drops the cached copy.
func (s *CachedNotificationStore) Claim(ctx context.Context, id uuid.UUID, workerToken string, leaseUntil time.Time) (*model.Notification, error) {
	n, err := s.primary.Claim(ctx, id, workerToken, leaseUntil)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return n, nil
}

// RecordOutcome delegates to the primary store and drops the cached copy.
func (s *CachedNotificationStore) RecordOutcome(ctx context.Context, id uuid.UUID, workerToken string, outcome model.Outcome) error {
	if err := s.primary.RecordOutcome(ctx, id, workerToken, outcome); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// CancelForBooking delegates to the primary store and drops every cancelled id.
func (s *CachedNotificationStore) CancelForBooking(ctx context.Context, bookingID uuid.UUID, types ...model.Type) ([]uuid.UUID, error) {
	ids, err := s.primary.CancelForBooking(ctx, bookingID, types...)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, ids...)
	return ids, nil
}

// List always reads the primary store.
func (s *CachedNotificationStore) List(ctx context.Context, filter model.Filter) ([]*model.Notification, error) {
	return s.primary.List(ctx, filter)
}

func (s *CachedNotificationStore) invalidate(ctx context.Context, ids ...uuid.UUID) {
	if len(ids) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, ids...); err != nil {
		s.logger.Error().Err(err).Int("count", len(ids)).Msg("failed to invalidate cache")
	}
}
