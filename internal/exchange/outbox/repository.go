package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository is the pgx-backed outbox store.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Enqueue stages a new outbound message.
func (r *PgRepository) Enqueue(ctx context.Context, targetParty, messageType string, payload []byte) (Message, error) {
	msg := Message{
		ID:          uuid.New(),
		TargetParty: targetParty,
		MessageType: messageType,
		Payload:     payload,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
	msg.NextRetryAt = msg.CreatedAt
	_, err := r.pool.Exec(ctx, `
INSERT INTO outbox_messages
  (id, target_party, message_type, payload, status, attempts, next_retry_at, created_at)
VALUES ($1, $2, $3, $4, $5, 0, $6, $7)`,
		msg.ID, msg.TargetParty, msg.MessageType, msg.Payload, string(msg.Status),
		msg.NextRetryAt, msg.CreatedAt)
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

// ClaimPending atomically flips eligible PENDING rows to SENDING and
// returns them. SKIP LOCKED keeps concurrent dispatcher instances from
// claiming the same rows.
func (r *PgRepository) ClaimPending(ctx context.Context, limit int, now time.Time) ([]Message, error) {
	rows, err := r.pool.Query(ctx, `
UPDATE outbox_messages SET status=$1, claimed_at=$2
WHERE id IN (
  SELECT id FROM outbox_messages
  WHERE status=$3 AND next_retry_at<=$2
  ORDER BY created_at ASC
  LIMIT $4
  FOR UPDATE SKIP LOCKED
)
RETURNING id, target_party, message_type, payload, status, attempts, next_retry_at,
          created_at, sent_at, last_error`,
		string(StatusSending), now, string(StatusPending), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// MarkSent finalises a delivered message.
func (r *PgRepository) MarkSent(ctx context.Context, msg Message, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
UPDATE outbox_messages SET status=$1, sent_at=$2, claimed_at=NULL
WHERE id=$3 AND status=$4`,
		string(StatusSent), at, msg.ID, string(StatusSending))
	return err
}

// ScheduleRetry returns a failed message to PENDING with a backoff.
func (r *PgRepository) ScheduleRetry(ctx context.Context, msg Message, attempts int, nextRetry time.Time, lastError string) error {
	_, err := r.pool.Exec(ctx, `
UPDATE outbox_messages
SET status=$1, attempts=$2, next_retry_at=$3, last_error=$4, claimed_at=NULL
WHERE id=$5 AND status=$6`,
		string(StatusPending), attempts, nextRetry, lastError, msg.ID, string(StatusSending))
	return err
}

// MarkDeadLettered retires a message after exhausted retries or a
// permanent rejection.
func (r *PgRepository) MarkDeadLettered(ctx context.Context, msg Message, attempts int, lastError string) error {
	_, err := r.pool.Exec(ctx, `
UPDATE outbox_messages
SET status=$1, attempts=$2, last_error=$3, claimed_at=NULL
WHERE id=$4 AND status=$5`,
		string(StatusDeadLettered), attempts, lastError, msg.ID, string(StatusSending))
	return err
}

// ReleaseStale returns SENDING rows whose claim predates the cutoff to
// PENDING so a restarted dispatcher can retry them.
func (r *PgRepository) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE outbox_messages SET status=$1, claimed_at=NULL
WHERE status=$2 AND claimed_at < $3`,
		string(StatusPending), string(StatusSending), claimedBefore)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// ListDeadLettered returns dead-lettered messages for operator review.
func (r *PgRepository) ListDeadLettered(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, target_party, message_type, payload, status, attempts, next_retry_at,
       created_at, sent_at, last_error
FROM outbox_messages WHERE status=$1 ORDER BY created_at DESC LIMIT $2`,
		string(StatusDeadLettered), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Requeue clones a dead-lettered message as a fresh pending entry. The
// dead-lettered original stays immutable for the audit trail.
func (r *PgRepository) Requeue(ctx context.Context, id uuid.UUID) (Message, error) {
	var original Message
	row := r.pool.QueryRow(ctx, `
SELECT id, target_party, message_type, payload, status, attempts, next_retry_at,
       created_at, sent_at, last_error
FROM outbox_messages WHERE id=$1`, id)
	if err := scanMessage(row, &original); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrMessageNotFound
		}
		return Message{}, err
	}
	if original.Status != StatusDeadLettered {
		return Message{}, ErrNotDeadLettered
	}
	return r.Enqueue(ctx, original.TargetParty, original.MessageType, original.Payload)
}

func scanMessages(rows pgx.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var msg Message
		if err := scanMessage(rows, &msg); err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner, msg *Message) error {
	var status string
	var lastError *string
	if err := row.Scan(&msg.ID, &msg.TargetParty, &msg.MessageType, &msg.Payload, &status,
		&msg.Attempts, &msg.NextRetryAt, &msg.CreatedAt, &msg.SentAt, &lastError); err != nil {
		return err
	}
	msg.Status = Status(status)
	if lastError != nil {
		msg.LastError = *lastError
	}
	return nil
}
