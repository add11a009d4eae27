package postgres

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"psicomapa-webhooks/internal/model"
	"psicomapa-webhooks/internal/webhook"
)

type EventRepo struct {
	db *pgxpool.Pool
}

func NewEventRepo(db *pgxpool.Pool) *EventRepo {
	return &EventRepo{db: db}
}

const eventColumns = `id, event_type, payload, status, attempt_count, signature,
       last_error, last_status_code, created_at, last_attempt_at, delivered_at`

func (r *EventRepo) Insert(ctx context.Context, ev model.Event) error {
	const q = `
INSERT INTO webhook_events (id, event_type, payload, status, attempt_count, signature, created_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7);
`
	_, err := r.db.Exec(ctx, q,
		ev.ID,
		string(ev.Type),
		[]byte(ev.Payload),
		string(ev.Status),
		ev.AttemptCount,
		ev.Signature,
		ev.CreatedAt.UTC(),
	)
	return err
}

func (r *EventRepo) GetByID(ctx context.Context, id string) (model.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM webhook_events WHERE id = $1;`

	ev, err := scanEvent(r.db.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Event{}, model.ErrNotFound
		}
		return model.Event{}, err
	}
	return ev, nil
}

func (r *EventRepo) List(ctx context.Context, f webhook.ListFilter) ([]model.Event, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		where = append(where, "event_type = $"+strconv.Itoa(len(args)))
	}
	args = append(args, f.NormalizedLimit())

	q := `SELECT ` + eventColumns + ` FROM webhook_events`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)) + `;`

	return r.queryEvents(ctx, q, args...)
}

func (r *EventRepo) ListRetryable(ctx context.Context, q webhook.RetryQuery) ([]model.Event, error) {
	query := `
SELECT ` + eventColumns + `
FROM webhook_events
WHERE attempt_count < $1
  AND (status = 'failed' OR (status = 'pending' AND created_at < $2))
ORDER BY created_at, id
LIMIT $3;
`
	limit := q.Limit
	if limit <= 0 {
		limit = webhook.MaxListLimit
	}
	return r.queryEvents(ctx, query, q.MaxAttempts, q.StaleBefore.UTC(), limit)
}

func (r *EventRepo) RecordSuccess(ctx context.Context, id string, statusCode int, at time.Time) error {
	const q = `
UPDATE webhook_events
SET status = 'delivered',
    attempt_count = attempt_count + 1,
    last_attempt_at = $2,
    delivered_at = COALESCE(delivered_at, $2),
    last_status_code = $3,
    last_error = NULL
WHERE id = $1;
`
	return r.execOne(ctx, q, id, at.UTC(), statusCode)
}

// RecordFailure keeps delivered records delivered; a confirmation may land
// between the send and this write.
func (r *EventRepo) RecordFailure(ctx context.Context, id string, statusCode *int, lastErr string, at time.Time) error {
	const q = `
UPDATE webhook_events
SET status = CASE WHEN status = 'delivered' THEN status ELSE 'failed' END,
    attempt_count = attempt_count + 1,
    last_attempt_at = $2,
    last_status_code = $3,
    last_error = $4
WHERE id = $1;
`
	return r.execOne(ctx, q, id, at.UTC(), statusCode, lastErr)
}

func (r *EventRepo) SetSignature(ctx context.Context, id string, sig string) error {
	const q = `
UPDATE webhook_events
SET signature = $2
WHERE id = $1 AND signature IS NULL;
`
	_, err := r.db.Exec(ctx, q, id, sig)
	return err
}

func (r *EventRepo) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	const q = `
UPDATE webhook_events
SET status = 'delivered',
    delivered_at = $2
WHERE id = $1 AND status <> 'delivered';
`
	tag, err := r.db.Exec(ctx, q, id, at.UTC())
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM webhook_events WHERE id = $1);`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, model.ErrNotFound
	}
	return false, nil
}

// Ping is used by readyz.
func (r *EventRepo) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()
	return r.db.Ping(ctx)
}

func (r *EventRepo) execOne(ctx context.Context, q string, args ...any) error {
	tag, err := r.db.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *EventRepo) queryEvents(ctx context.Context, q string, args ...any) ([]model.Event, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Event, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func scanEvent(row pgx.Row) (model.Event, error) {
	var (
		ev        model.Event
		eventType string
		status    string
		payload   []byte
		signature *string
	)
	err := row.Scan(
		&ev.ID,
		&eventType,
		&payload,
		&status,
		&ev.AttemptCount,
		&signature,
		&ev.LastError,
		&ev.LastStatusCode,
		&ev.CreatedAt,
		&ev.LastAttemptAt,
		&ev.DeliveredAt,
	)
	if err != nil {
		return model.Event{}, err
	}
	ev.Type = model.EventType(eventType)
	ev.Status = model.EventStatus(status)
	ev.Payload = payload
	if signature != nil {
		ev.Signature = *signature
	}
	ev.CreatedAt = ev.CreatedAt.UTC()
	return ev, nil
}
