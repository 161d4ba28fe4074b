// Package directory serves the reference data behind the referral form:
// specialties and the clinical services offered under each, with a
// read-through cache in front of the database.
package directory

import (
	"time"

	"github.com/google/uuid"
)

// Specialty is a clinical specialty a referral can be addressed to.
type Specialty struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Service is a named clinic or service line within a specialty, the optional
// second-level pick on the referral form.
type Service struct {
	ID          uuid.UUID `db:"id" json:"id"`
	SpecialtyID uuid.UUID `db:"specialty_id" json:"specialty_id"`
	Name        string    `db:"name" json:"name"`
	Location    string    `db:"location" json:"location,omitempty"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Team is a named clinical team within a specialty, shown for assignment and
// filtering.
type Team struct {
	ID          uuid.UUID `db:"id" json:"id"`
	SpecialtyID uuid.UUID `db:"specialty_id" json:"specialty_id"`
	Name        string    `db:"name" json:"name"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Practitioner is a healthcare-professional directory entry.
type Practitioner struct {
	ID          uuid.UUID `db:"id" json:"id"`
	SpecialtyID uuid.UUID `db:"specialty_id" json:"specialty_id"`
	Name        string    `db:"name" json:"name"`
	Role        string    `db:"role" json:"role,omitempty"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
