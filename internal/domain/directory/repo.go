package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a specialty or service does not exist.
var ErrNotFound = errors.New("directory: not found")

// Repository persists the directory reference data.
type Repository interface {
	ListSpecialties(ctx context.Context) ([]*Specialty, error)
	GetSpecialty(ctx context.Context, id uuid.UUID) (*Specialty, error)
	GetSpecialtyByName(ctx context.Context, name string) (*Specialty, error)
	CreateSpecialty(ctx context.Context, s *Specialty) error

	ListServices(ctx context.Context, specialtyID uuid.UUID) ([]*Service, error)
	CreateService(ctx context.Context, s *Service) error

	ListTeams(ctx context.Context, specialtyID uuid.UUID) ([]*Team, error)
	CreateTeam(ctx context.Context, t *Team) error

	ListPractitioners(ctx context.Context, specialtyID uuid.UUID) ([]*Practitioner, error)
	CreatePractitioner(ctx context.Context, p *Practitioner) error
}
