// Package waitinglist manages per-specialty waiting lists: one active entry
// per referral, queue positions by time of listing, and the wait-time view
// shown to triage coordinators.
package waitinglist

import (
	"time"

	"github.com/google/uuid"

	"github.com/referral/referral/internal/domain/rtt"
)

// Entry statuses.
const (
	StatusActive = "active"
	StatusClosed = "closed"
)

// Close outcomes.
const (
	OutcomeDischarged = "discharged"
	OutcomeCompleted  = "completed"
	OutcomeRemoved    = "removed"
)

// Entry is one referral's membership of a specialty waiting list. A referral
// has at most one active entry at a time; re-listing after a close creates a
// fresh entry with a fresh clock. New entries append at the tail of their
// specialty's queue; Position is only meaningful while the entry is active.
type Entry struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	ReferralID uuid.UUID  `db:"referral_id" json:"referral_id"`
	Specialty  string     `db:"specialty" json:"specialty"`
	AddedBy    string     `db:"added_by" json:"added_by"`
	Position   int        `db:"position" json:"position"`
	AddedAt    time.Time  `db:"added_at" json:"added_at"`
	ClosedAt   *time.Time `db:"closed_at" json:"closed_at,omitempty"`
	Outcome    string     `db:"outcome" json:"outcome,omitempty"`
	Status     string     `db:"status" json:"status"`
}

// View is an active entry enriched for the waiting-list screen: days waited
// and the referral's RTT pathway evaluated from the referral clock start.
type View struct {
	Entry
	DaysWaiting int          `json:"days_waiting"`
	PatientName string       `json:"patient_name"`
	NHSNumber   string       `json:"nhs_number"`
	UBRN        string       `json:"ubrn"`
	Priority    string       `json:"priority"`
	Pathway     *rtt.Pathway `json:"rtt_pathway,omitempty"`
}

var validOutcomes = map[string]bool{
	OutcomeDischarged: true, OutcomeCompleted: true, OutcomeRemoved: true,
}

// ValidOutcome reports whether s names a known close outcome.
func ValidOutcome(s string) bool { return validOutcomes[s] }
