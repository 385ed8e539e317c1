package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgxpool.Pool used by the repositories.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const notificationColumns = `id, client_id, booking_id, type, channel, scheduled_for, status,
    template_name, template_data, sent_at, error_message, retry_count, external_id, created_at, updated_at`

const createNotificationQuery = `
INSERT INTO scheduled_notifications (
    id, client_id, booking_id, type, channel, scheduled_for, slot, status,
    template_name, template_data, retry_count, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $6, 'pending', $7, $8, 0, $9, $9)
RETURNING ` + notificationColumns

const getNotificationByIDQuery = `
SELECT ` + notificationColumns + `
FROM scheduled_notifications
WHERE id = $1`

const getNotificationStatusQuery = `
SELECT status FROM scheduled_notifications WHERE id = $1`

// Finishes cancellations that were requested while a send was in flight
// and whose worker never reported back.
const settleCancelRequestsQuery = `
UPDATE scheduled_notifications
SET status = 'cancelled', claimed_by = NULL, claimed_until = NULL, updated_at = now()
WHERE status = 'pending'
  AND cancel_requested
  AND (claimed_until IS NULL OR claimed_until < now())`

// A row under a live claim is invisible to other sweeps until its lease runs out.
const findDueQuery = `
SELECT ` + notificationColumns + `
FROM scheduled_notifications
WHERE status = 'pending'
  AND NOT cancel_requested
  AND scheduled_for <= $1
  AND (claimed_until IS NULL OR claimed_until < now())
ORDER BY scheduled_for ASC
LIMIT $2`

const claimNotificationQuery = `
UPDATE scheduled_notifications
SET claimed_by = $2, claimed_until = $3, updated_at = now()
WHERE id = $1
  AND status = 'pending'
  AND NOT cancel_requested
  AND (claimed_until IS NULL OR claimed_until < now())
RETURNING ` + notificationColumns

const markSentQuery = `
UPDATE scheduled_notifications
SET status = 'sent', sent_at = $3, external_id = $4,
    claimed_by = NULL, claimed_until = NULL, updated_at = now()
WHERE id = $1 AND status = 'pending' AND claimed_by = $2`

// A retry of a row whose booking was cancelled mid-send ends the row instead.
const markRetryQuery = `
UPDATE scheduled_notifications
SET status = CASE WHEN cancel_requested THEN 'cancelled' ELSE status END,
    retry_count = CASE WHEN cancel_requested THEN retry_count ELSE retry_count + 1 END,
    scheduled_for = CASE WHEN cancel_requested THEN scheduled_for ELSE $3 END,
    error_message = $4,
    claimed_by = NULL, claimed_until = NULL, updated_at = now()
WHERE id = $1 AND status = 'pending' AND claimed_by = $2`

const markFailedQuery = `
UPDATE scheduled_notifications
SET status = 'failed', error_message = $3,
    claimed_by = NULL, claimed_until = NULL, updated_at = now()
WHERE id = $1 AND status = 'pending' AND claimed_by = $2`

// An empty type list means every type. Rows under a live claim keep their
// in-flight send and are only flagged, the outcome of that send decides.
const cancelForBookingQuery = `
UPDATE scheduled_notifications
SET status = CASE WHEN claimed_until IS NULL OR claimed_until < now() THEN 'cancelled' ELSE status END,
    cancel_requested = true,
    updated_at = now()
WHERE booking_id = $1
  AND status = 'pending'
  AND (cardinality($2::text[]) = 0 OR type = ANY($2::text[]))
RETURNING id`

const listNotificationsQuery = `
SELECT ` + notificationColumns + `
FROM scheduled_notifications`

const getClientContactQuery = `
SELECT full_name, email, phone FROM clients WHERE id = $1`
