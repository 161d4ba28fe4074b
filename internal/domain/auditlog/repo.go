package auditlog

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists audit entries.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	ListByReferral(ctx context.Context, referralID uuid.UUID, limit, offset int) ([]*Entry, int, error)
}
