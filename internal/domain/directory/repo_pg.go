package directory

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

// NewRepoPG creates the Postgres-backed directory repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) ListSpecialties(ctx context.Context) ([]*Specialty, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, code, name, active, created_at FROM directory_specialty
		WHERE active ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Specialty
	for rows.Next() {
		var s Specialty
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.Active, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *repoPG) GetSpecialty(ctx context.Context, id uuid.UUID) (*Specialty, error) {
	var s Specialty
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, code, name, active, created_at FROM directory_specialty
		WHERE id = $1`, id).Scan(&s.ID, &s.Code, &s.Name, &s.Active, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) GetSpecialtyByName(ctx context.Context, name string) (*Specialty, error) {
	var s Specialty
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, code, name, active, created_at FROM directory_specialty
		WHERE LOWER(name) = LOWER($1)`, name).Scan(&s.ID, &s.Code, &s.Name, &s.Active, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) CreateSpecialty(ctx context.Context, s *Specialty) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO directory_specialty (id, code, name, active)
		VALUES ($1,$2,$3,$4)`, s.ID, s.Code, s.Name, s.Active)
	return err
}

func (r *repoPG) ListServices(ctx context.Context, specialtyID uuid.UUID) ([]*Service, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, specialty_id, name, location, active, created_at
		FROM directory_service
		WHERE specialty_id = $1 AND active ORDER BY name`, specialtyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Service
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.SpecialtyID, &s.Name, &s.Location, &s.Active, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *repoPG) CreateService(ctx context.Context, s *Service) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO directory_service (id, specialty_id, name, location, active)
		VALUES ($1,$2,$3,$4,$5)`, s.ID, s.SpecialtyID, s.Name, s.Location, s.Active)
	return err
}

func (r *repoPG) ListTeams(ctx context.Context, specialtyID uuid.UUID) ([]*Team, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, specialty_id, name, active, created_at
		FROM directory_team
		WHERE specialty_id = $1 AND active ORDER BY name`, specialtyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Team
	for rows.Next() {
		var t Team
		if err := rows.Scan(&t.ID, &t.SpecialtyID, &t.Name, &t.Active, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (r *repoPG) CreateTeam(ctx context.Context, t *Team) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO directory_team (id, specialty_id, name, active)
		VALUES ($1,$2,$3,$4)`, t.ID, t.SpecialtyID, t.Name, t.Active)
	return err
}

func (r *repoPG) ListPractitioners(ctx context.Context, specialtyID uuid.UUID) ([]*Practitioner, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, specialty_id, name, role, active, created_at
		FROM directory_practitioner
		WHERE specialty_id = $1 AND active ORDER BY name`, specialtyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Practitioner
	for rows.Next() {
		var p Practitioner
		if err := rows.Scan(&p.ID, &p.SpecialtyID, &p.Name, &p.Role, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *repoPG) CreatePractitioner(ctx context.Context, p *Practitioner) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO directory_practitioner (id, specialty_id, name, role, active)
		VALUES ($1,$2,$3,$4,$5)`, p.ID, p.SpecialtyID, p.Name, p.Role, p.Active)
	return err
}
