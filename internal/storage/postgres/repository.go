package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ilindan-dev/clinic-notifier/internal/domain/model"
	repo "github.com/ilindan-dev/clinic-notifier/internal/domain/repository"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Ensure NotificationRepository implements the interface
var _ repo.NotificationStore = (*NotificationRepository)(nil)

// NotificationRepository implements the domain.repository.NotificationStore interface
// using PostgreSQL as a backend.
type NotificationRepository struct {
	db     DBTX
	logger zerolog.Logger
}

// NewNotificationRepository creates a new instance of the NotificationRepository
func NewNotificationRepository(pool *pgxpool.Pool, logger *zerolog.Logger) *NotificationRepository {
	return newNotificationRepository(pool, logger)
}

func newNotificationRepository(db DBTX, logger *zerolog.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger.With().Str("layer", "postgres_repository").Logger(),
	}
}

// Save persists a new notification and returns the created object with DB-generated fields.
func (r *NotificationRepository) Save(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	data, err := json.Marshal(n.TemplateData)
	if err != nil {
		r.logger.Error().Err(err).Stringer("id", n.ID).Msg("failed to marshal template data")
		return nil, fmt.Errorf("postgres: marshal template data: %w", err)
	}
	if n.TemplateData == nil {
		data = []byte("{}")
	}

	var row notificationRow
	err = r.db.QueryRow(ctx, createNotificationQuery,
		pgUUID(n.ID),
		pgUUID(n.ClientID),
		pgNullUUID(n.BookingID),
		string(n.Type),
		string(n.Channel),
		n.ScheduledFor,
		n.TemplateName,
		data,
		n.CreatedAt,
	).Scan(row.targets()...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, repo.ErrDuplicateRecord
		}
		r.logger.Err(err).Msg("cannot create notification")
		return nil, persistenceErr("CreateNotification", err)
	}

	return row.toDomain()
}

// GetByID retrieves a notification by its unique ID.
func (r *NotificationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	var row notificationRow
	err := r.db.QueryRow(ctx, getNotificationByIDQuery, pgUUID(id)).Scan(row.targets()...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn().Stringer("id", id).Msg("notification not found by id")
			return nil, repo.ErrNotFound
		}
		r.logger.Err(err).Str("method", "GetByID").Msg("cannot get notification")
		return nil, persistenceErr("GetNotificationByID", err)
	}

	return row.toDomain()
}

// FindDue returns pending notifications whose time has come, oldest first.
func (r *NotificationRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*model.Notification, error) {
	if limit <= 0 {
		return nil, nil
	}

	tag, err := r.db.Exec(ctx, settleCancelRequestsQuery)
	if err != nil {
		r.logger.Err(err).Str("method", "FindDue").Msg("cannot settle cancel requests")
		return nil, persistenceErr("SettleCancelRequests", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		r.logger.Info().Int64("cancelled", n).Msg("settled cancellations of abandoned sends")
	}

	rows, err := r.db.Query(ctx, findDueQuery, now, limit)
	if err != nil {
		r.logger.Err(err).Str("method", "FindDue").Msg("cannot query due notifications")
		return nil, persistenceErr("FindDue", err)
	}
	return r.collect(rows, "FindDue")
}

// Claim atomically takes ownership of a pending notification for workerToken until leaseUntil.
func (r *NotificationRepository) Claim(ctx context.Context, id uuid.UUID, workerToken string, leaseUntil time.Time) (*model.Notification, error) {
	var row notificationRow
	err := r.db.QueryRow(ctx, claimNotificationQuery, pgUUID(id), workerToken, leaseUntil).Scan(row.targets()...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.explainMiss(ctx, id)
		}
		r.logger.Err(err).Stringer("id", id).Msg("cannot claim notification")
		return nil, persistenceErr("ClaimNotification", err)
	}

	return row.toDomain()
}

// RecordOutcome applies the result of a send attempt. It only succeeds while
// workerToken still holds the claim on a pending row.
func (r *NotificationRepository) RecordOutcome(ctx context.Context, id uuid.UUID, workerToken string, outcome model.Outcome) error {
	var (
		tag pgconn.CommandTag
		err error
	)

	switch outcome.Kind {
	case model.OutcomeSent:
		if outcome.ExternalID == "" {
			return errors.New("postgres: sent outcome requires an external id")
		}
		tag, err = r.db.Exec(ctx, markSentQuery, pgUUID(id), workerToken, outcome.At, outcome.ExternalID)
	case model.OutcomeRetry:
		if outcome.NextAttemptAt.IsZero() {
			return errors.New("postgres: retry outcome requires a next attempt time")
		}
		tag, err = r.db.Exec(ctx, markRetryQuery, pgUUID(id), workerToken, outcome.NextAttemptAt, outcome.ErrorMessage)
	case model.OutcomeFailed:
		tag, err = r.db.Exec(ctx, markFailedQuery, pgUUID(id), workerToken, outcome.ErrorMessage)
	default:
		return fmt.Errorf("postgres: unknown outcome kind %q", outcome.Kind)
	}
	if err != nil {
		r.logger.Err(err).Stringer("id", id).Str("outcome", string(outcome.Kind)).Msg("cannot record outcome")
		return persistenceErr("RecordOutcome", err)
	}

	if tag.RowsAffected() == 0 {
		return r.explainMiss(ctx, id)
	}
	return nil
}

// CancelForBooking transitions the pending rows of a booking to cancelled.
// A row claimed by an in-flight send is flagged instead: a successful send
// still counts, any other outcome cancels it. Terminal rows are left alone.
func (r *NotificationRepository) CancelForBooking(ctx context.Context, bookingID uuid.UUID, types ...model.Type) ([]uuid.UUID, error) {
	typeNames := make([]string, 0, len(types))
	for _, t := range types {
		typeNames = append(typeNames, string(t))
	}

	rows, err := r.db.Query(ctx, cancelForBookingQuery, pgUUID(bookingID), typeNames)
	if err != nil {
		r.logger.Err(err).Stringer("booking_id", bookingID).Msg("cannot cancel notifications for booking")
		return nil, persistenceErr("CancelForBooking", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, persistenceErr("CancelForBooking", err)
		}
		ids = append(ids, uuid.UUID(id.Bytes))
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("CancelForBooking", err)
	}

	r.logger.Info().Stringer("booking_id", bookingID).Int("cancelled", len(ids)).Msg("cancelled notifications for booking")
	return ids, nil
}

// List returns the notification history that matches the filter, newest first.
func (r *NotificationRepository) List(ctx context.Context, filter model.Filter) ([]*model.Notification, error) {
	query, args := buildListQuery(filter.Normalize())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Err(err).Str("method", "List").Msg("cannot list notifications")
		return nil, persistenceErr("ListNotifications", err)
	}
	return r.collect(rows, "ListNotifications")
}

func buildListQuery(f model.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.ClientID != nil {
		add("client_id = $%d", pgUUID(*f.ClientID))
	}
	if f.BookingID != nil {
		add("booking_id = $%d", pgUUID(*f.BookingID))
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if f.Type != nil {
		add("type = $%d", string(*f.Type))
	}

	var sb strings.Builder
	sb.WriteString(listNotificationsQuery)
	if len(conds) > 0 {
		sb.WriteString("\nWHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	args = append(args, f.Limit, f.Offset)
	fmt.Fprintf(&sb, "\nORDER BY scheduled_for DESC, id\nLIMIT $%d OFFSET $%d", len(args)-1, len(args))

	return sb.String(), args
}

// explainMiss tells apart a missing row from a row in the wrong state
// after a conditional update matched nothing.
func (r *NotificationRepository) explainMiss(ctx context.Context, id uuid.UUID) error {
	var status string
	err := r.db.QueryRow(ctx, getNotificationStatusQuery, pgUUID(id)).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repo.ErrNotFound
		}
		return persistenceErr("GetNotificationStatus", err)
	}
	r.logger.Debug().Stringer("id", id).Str("status", status).Msg("conditional update lost")
	return fmt.Errorf("%w: notification %s is %s or claimed elsewhere", repo.ErrConflict, id, status)
}

func (r *NotificationRepository) collect(rows pgx.Rows, op string) ([]*model.Notification, error) {
	defer rows.Close()

	var result []*model.Notification
	for rows.Next() {
		var row notificationRow
		if err := rows.Scan(row.targets()...); err != nil {
			r.logger.Err(err).Str("method", op).Msg("cannot scan notification row")
			return nil, persistenceErr(op, err)
		}
		n, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr(op, err)
	}
	return result, nil
}

func persistenceErr(op string, err error) error {
	return fmt.Errorf("postgres: %s failed: %w: %w", op, repo.ErrPersistence, err)
}

// === Mapper Functions ===

// notificationRow mirrors one scheduled_notifications row in column order.
type notificationRow struct {
	ID           pgtype.UUID
	ClientID     pgtype.UUID
	BookingID    pgtype.UUID
	Type         string
	Channel      string
	ScheduledFor time.Time
	Status       string
	TemplateName string
	TemplateData []byte
	SentAt       pgtype.Timestamptz
	ErrorMessage pgtype.Text
	RetryCount   int32
	ExternalID   pgtype.Text
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r *notificationRow) targets() []any {
	return []any{
		&r.ID, &r.ClientID, &r.BookingID, &r.Type, &r.Channel, &r.ScheduledFor, &r.Status,
		&r.TemplateName, &r.TemplateData, &r.SentAt, &r.ErrorMessage, &r.RetryCount, &r.ExternalID,
		&r.CreatedAt, &r.UpdatedAt,
	}
}

// toDomain safely converts a database row to a domain model.
func (r *notificationRow) toDomain() (*model.Notification, error) {
	n := &model.Notification{
		ID:           r.ID.Bytes,
		ClientID:     r.ClientID.Bytes,
		Type:         model.Type(r.Type),
		Channel:      model.Channel(r.Channel),
		Status:       model.Status(r.Status),
		TemplateName: r.TemplateName,
		TemplateData: map[string]string{},
		ScheduledFor: r.ScheduledFor,
		RetryCount:   int(r.RetryCount),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if len(r.TemplateData) > 0 {
		if err := json.Unmarshal(r.TemplateData, &n.TemplateData); err != nil {
			return nil, fmt.Errorf("postgres: decode template data of %s: %w", n.ID, err)
		}
	}
	if r.BookingID.Valid {
		id := uuid.UUID(r.BookingID.Bytes)
		n.BookingID = &id
	}
	if r.SentAt.Valid {
		t := r.SentAt.Time
		n.SentAt = &t
	}
	if r.ErrorMessage.Valid {
		msg := r.ErrorMessage.String
		n.ErrorMessage = &msg
	}
	if r.ExternalID.Valid {
		ext := r.ExternalID.String
		n.ExternalID = &ext
	}
	return n, nil
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func pgNullUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{Valid: false}
	}
	return pgUUID(*id)
}
