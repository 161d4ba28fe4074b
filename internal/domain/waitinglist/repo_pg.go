package waitinglist

import (
	"context"
	"errors"

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

// NewRepoPG creates the Postgres-backed waiting-list repository. The
// one-active-entry rule is enforced by a partial unique index on
// (referral_id) WHERE status = 'active'.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const entryCols = `id, referral_id, specialty, added_by, position, added_at, closed_at, outcome, status`

func (r *repoPG) Create(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO waiting_list_entry (id, referral_id, specialty, added_by, position, added_at, status)
		VALUES ($1,$2,$3,$4,
			(SELECT COALESCE(MAX(position), 0) + 1 FROM waiting_list_entry
			 WHERE specialty = $3 AND status = $6),
			$5,$6)
		RETURNING position`,
		e.ID, e.ReferralID, e.Specialty, e.AddedBy, e.AddedAt, StatusActive).Scan(&e.Position)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyListed
		}
		return err
	}
	return nil
}

func (r *repoPG) GetActive(ctx context.Context, referralID uuid.UUID) (*Entry, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+entryCols+` FROM waiting_list_entry
		WHERE referral_id = $1 AND status = $2`, referralID, StatusActive)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (r *repoPG) Close(ctx context.Context, referralID uuid.UUID, outcome string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE waiting_list_entry
		SET status = $1, outcome = $2, closed_at = NOW()
		WHERE referral_id = $3 AND status = $4`,
		StatusClosed, outcome, referralID, StatusActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListActive(ctx context.Context, specialty string) ([]*Entry, error) {
	query := `SELECT ` + entryCols + ` FROM waiting_list_entry WHERE status = $1`
	args := []interface{}{StatusActive}
	if specialty != "" {
		query += ` AND specialty = $2`
		args = append(args, specialty)
	}
	query += ` ORDER BY specialty ASC, position ASC, added_at ASC`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *repoPG) ListSpecialties(ctx context.Context) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT DISTINCT specialty FROM waiting_list_entry
		WHERE status = $1 ORDER BY specialty`, StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repoPG) SetPositions(ctx context.Context, specialty string, entryIDs []uuid.UUID) error {
	conn := r.conn(ctx)
	for i, id := range entryIDs {
		tag, err := conn.Exec(ctx, `
			UPDATE waiting_list_entry SET position = $1
			WHERE id = $2 AND specialty = $3 AND status = $4`,
			i+1, id, specialty, StatusActive)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
	}
	return nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var outcome *string
	err := row.Scan(&e.ID, &e.ReferralID, &e.Specialty, &e.AddedBy,
		&e.Position, &e.AddedAt, &e.ClosedAt, &outcome, &e.Status)
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		e.Outcome = *outcome
	}
	return &e, nil
}
