package waitinglist

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no active entry exists for a referral.
var ErrNotFound = errors.New("waitinglist: entry not found")

// ErrAlreadyListed is returned when a referral already has an active entry.
var ErrAlreadyListed = errors.New("waitinglist: referral already has an active entry")

// Repository persists waiting-list entries. Create and Close must honor a
// transaction carried in the context so the lifecycle transition that caused
// them commits atomically.
type Repository interface {
	// Create appends the entry at the tail of its specialty's queue,
	// assigning Position = max active position + 1.
	Create(ctx context.Context, e *Entry) error
	GetActive(ctx context.Context, referralID uuid.UUID) (*Entry, error)
	Close(ctx context.Context, referralID uuid.UUID, outcome string) error
	// ListActive returns active entries in queue order, optionally
	// restricted to one specialty.
	ListActive(ctx context.Context, specialty string) ([]*Entry, error)
	ListSpecialties(ctx context.Context) ([]string, error)
	// SetPositions rewrites the queue positions of the given active entries
	// to 1..n in the order of entryIDs.
	SetPositions(ctx context.Context, specialty string, entryIDs []uuid.UUID) error
}
