// Package auditlog records referral state changes as append-only entries,
// written in the same transaction as the change itself.
package auditlog

import (
	"time"

	"github.com/google/uuid"
)

// Entry is a single audit record for a referral.
type Entry struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ReferralID uuid.UUID `db:"referral_id" json:"referral_id"`
	Actor      string    `db:"actor" json:"actor"`
	Action     string    `db:"action" json:"action"`
	FromStatus string    `db:"from_status" json:"from_status,omitempty"`
	ToStatus   string    `db:"to_status" json:"to_status,omitempty"`
	Detail     string    `db:"detail" json:"detail,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
