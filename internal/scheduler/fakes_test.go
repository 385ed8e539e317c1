package scheduler

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/clinic-notifier/internal/domain/repository"
	"github.com/stretchr/testify/mock"
)

// clock is a settable time source shared by the scheduler and the memory store.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type claim struct {
	token string
	until time.Time
}

// memoryStore mirrors the conditional updates of the postgres store.
type memoryStore struct {
	mu     sync.Mutex
	clock  *clock
	rows   map[uuid.UUID]*model.Notification
	claims map[uuid.UUID]claim
	// slots holds the first scheduled time of each row, the deduplication key.
	slots           map[uuid.UUID]time.Time
	cancelRequested map[uuid.UUID]bool
	sends           map[uuid.UUID]int

	findDueErr error
	claimErr   error
}

func newMemoryStore(c *clock) *memoryStore {
	return &memoryStore{
		clock:           c,
		rows:            make(map[uuid.UUID]*model.Notification),
		claims:          make(map[uuid.UUID]claim),
		slots:           make(map[uuid.UUID]time.Time),
		cancelRequested: make(map[uuid.UUID]bool),
		sends:           make(map[uuid.UUID]int),
	}
}

func (s *memoryStore) add(n *model.Notification) *model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[n.ID] = n
	s.slots[n.ID] = n.ScheduledFor
	return n
}

// byBooking returns copies of every row of a booking with the given type.
func (s *memoryStore) byBooking(bookingID uuid.UUID, typ model.Type) []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Notification
	for _, n := range s.rows {
		if n.BookingID != nil && *n.BookingID == bookingID && n.Type == typ {
			out = append(out, *n)
		}
	}
	return out
}

func (s *memoryStore) get(id uuid.UUID) model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rows[id]
}

func (s *memoryStore) claimedLocked(id uuid.UUID) bool {
	c, ok := s.claims[id]
	return ok && c.until.After(s.clock.Now())
}

func (s *memoryStore) Save(_ context.Context, n *model.Notification) (*model.Notification, error) {
	s.mu.Lock()
	if n.BookingID != nil {
		for id, existing := range s.rows {
			if existing.BookingID != nil && *existing.BookingID == *n.BookingID &&
				existing.Type == n.Type && s.slots[id].Equal(n.ScheduledFor) &&
				existing.Status != model.StatusCancelled && !s.cancelRequested[id] {
				s.mu.Unlock()
				return nil, repo.ErrDuplicateRecord
			}
		}
	}
	s.mu.Unlock()
	cp := *n
	return s.add(&cp), nil
}

func (s *memoryStore) GetByID(_ context.Context, id uuid.UUID) (*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *memoryStore) FindDue(_ context.Context, now time.Time, limit int) ([]*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findDueErr != nil {
		return nil, s.findDueErr
	}

	for id, n := range s.rows {
		if n.Status == model.StatusPending && s.cancelRequested[id] && !s.claimedLocked(id) {
			n.Status = model.StatusCancelled
			delete(s.claims, id)
		}
	}

	var due []*model.Notification
	for id, n := range s.rows {
		if n.Status == model.StatusPending && !s.cancelRequested[id] && !n.ScheduledFor.After(now) && !s.claimedLocked(id) {
			cp := *n
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledFor.Before(due[j].ScheduledFor) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *memoryStore) Claim(_ context.Context, id uuid.UUID, token string, leaseUntil time.Time) (*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return nil, s.claimErr
	}

	n, ok := s.rows[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	if n.Status != model.StatusPending || s.cancelRequested[id] || s.claimedLocked(id) {
		return nil, repo.ErrConflict
	}
	s.claims[id] = claim{token: token, until: leaseUntil}
	s.sends[id]++
	cp := *n
	return &cp, nil
}

func (s *memoryStore) RecordOutcome(_ context.Context, id uuid.UUID, token string, o model.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.rows[id]
	if !ok {
		return repo.ErrNotFound
	}
	if n.Status != model.StatusPending || s.claims[id].token != token {
		return repo.ErrConflict
	}

	switch o.Kind {
	case model.OutcomeSent:
		n.Status = model.StatusSent
		n.SentAt = &o.At
		n.ExternalID = &o.ExternalID
	case model.OutcomeRetry:
		if s.cancelRequested[id] {
			n.Status = model.StatusCancelled
		} else {
			n.RetryCount++
			n.ScheduledFor = o.NextAttemptAt
		}
		n.ErrorMessage = &o.ErrorMessage
	case model.OutcomeFailed:
		n.Status = model.StatusFailed
		n.ErrorMessage = &o.ErrorMessage
	}
	delete(s.claims, id)
	return nil
}

func (s *memoryStore) CancelForBooking(_ context.Context, bookingID uuid.UUID, types ...model.Type) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []uuid.UUID
	for id, n := range s.rows {
		if n.BookingID == nil || *n.BookingID != bookingID || n.Status != model.StatusPending {
			continue
		}
		if len(types) > 0 && !slices.Contains(types, n.Type) {
			continue
		}
		if !s.claimedLocked(id) {
			n.Status = model.StatusCancelled
		}
		s.cancelRequested[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memoryStore) List(context.Context, model.Filter) ([]*model.Notification, error) {
	return nil, nil
}

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) GetContact(ctx context.Context, clientID uuid.UUID) (*model.Contact, error) {
	args := m.Called(ctx, clientID)
	if v := args.Get(0); v != nil {
		return v.(*model.Contact), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, n *model.Notification, to model.Contact) (string, error) {
	args := m.Called(ctx, n, to)
	return args.String(0), args.Error(1)
}

type mockAlerter struct {
	mock.Mock
}

func (m *mockAlerter) NotifyFailure(ctx context.Context, n *model.Notification, reason string) error {
	return m.Called(ctx, n, reason).Error(0)
}
