package referral

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a referral, note, or attachment does not exist.
var ErrNotFound = errors.New("referral: not found")

// Repository is the persistence interface for referrals and their embedded
// collections. Implementations must honor a transaction carried in the
// context so lifecycle transitions commit atomically with their audit and
// outbox writes.
type Repository interface {
	Create(ctx context.Context, r *Referral) error
	GetByID(ctx context.Context, id uuid.UUID) (*Referral, error)
	GetByUBRN(ctx context.Context, ubrn string) (*Referral, error)
	Update(ctx context.Context, r *Referral) error
	ListAll(ctx context.Context) ([]*Referral, error)
	ListChildren(ctx context.Context, parentID uuid.UUID) ([]*Referral, error)

	AddNote(ctx context.Context, n *Note) error
	ListNotes(ctx context.Context, referralID uuid.UUID) ([]*Note, error)

	AddAttachment(ctx context.Context, a *Attachment) error
	ListAttachments(ctx context.Context, referralID uuid.UUID) ([]*Attachment, error)
}
