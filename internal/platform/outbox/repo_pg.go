package outbox

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/referral/referral/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates the Postgres-backed outbox repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) Enqueue(ctx context.Context, e *Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.Status = StatusPending
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO outbox_event (id, event_type, referral_id, payload, status)
		VALUES ($1,$2,$3,$4,$5)`,
		e.ID, e.EventType, e.ReferralID, e.Payload, e.Status)
	return err
}

// PendingBatch returns up to limit pending events oldest-first. The server
// runs a single dispatcher per process and retries by flipping status back to
// pending, so delivery is at-least-once; running several server instances
// against one database can deliver an event more than once.
func (r *repoPG) PendingBatch(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, event_type, referral_id, payload, status, attempts, last_error, created_at, delivered_at
		FROM outbox_event
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.EventType, &e.ReferralID, &e.Payload,
			&e.Status, &e.Attempts, &e.LastError, &e.CreatedAt, &e.DeliveredAt); err != nil {
			return nil, err
		}
		items = append(items, &e)
	}
	return items, rows.Err()
}

func (r *repoPG) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE outbox_event SET status='delivered', delivered_at=NOW()
		WHERE id = $1`, id)
	return err
}

func (r *repoPG) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string, terminal bool) error {
	status := StatusPending
	if terminal {
		status = StatusFailed
	}
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE outbox_event SET status=$2, attempts=$3, last_error=$4
		WHERE id = $1`, id, status, attempts, lastError)
	return err
}
