// Package notify builds user-facing notifications from referral change events
// and keeps a bounded, process-wide notification history with explicit
// subscriber registration.
package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the change filter.
const (
	TypeNewReferral     = "new_referral"
	TypeReferralUpdated = "referral_updated"
)

// enrichmentWindow suppresses update notifications that land right after the
// row was created; intake pipelines write enrichment fields within seconds of
// the insert and those writes are not user-meaningful.
const enrichmentWindow = 5 * time.Second

// ReferralSnapshot is the subset of a referral row the filter compares. The
// hub stays decoupled from the domain package by accepting snapshots.
type ReferralSnapshot struct {
	ID           uuid.UUID
	PatientName  string
	Specialty    string
	Priority     string
	Status       string
	TriageStatus string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Notification is a single entry in the notification history and the payload
// delivered to webhook subscribers.
type Notification struct {
	ID                string     `json:"id"`
	Type              string     `json:"type"`
	Title             string     `json:"title"`
	Message           string     `json:"message"`
	ReferralID        string     `json:"referral_id"`
	PatientName       string     `json:"patient_name"`
	Specialty         string     `json:"specialty"`
	Priority          string     `json:"priority"`
	CreatedAt         *time.Time `json:"created_at,omitempty"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
	ChangeDescription string     `json:"change_description,omitempty"`
	Read              bool       `json:"read"`
	ReceivedAt        time.Time  `json:"received_at"`
}

// OnInsert always produces a new-referral notification.
func OnInsert(s ReferralSnapshot) *Notification {
	created := s.CreatedAt
	return &Notification{
		ID:          uuid.New().String(),
		Type:        TypeNewReferral,
		Title:       "New referral received",
		Message:     fmt.Sprintf("%s referred to %s (%s)", displayName(s), s.Specialty, s.Priority),
		ReferralID:  s.ID.String(),
		PatientName: displayName(s),
		Specialty:   s.Specialty,
		Priority:    s.Priority,
		CreatedAt:   &created,
	}
}

// OnUpdate compares old and new row images and returns a notification only
// when the change is user-meaningful: updates inside the enrichment window
// are suppressed, as are updates that touch none of status, priority,
// specialty, or triage status. When several fields changed, the description
// names only the first in that precedence order.
func OnUpdate(old, new ReferralSnapshot) *Notification {
	if new.UpdatedAt.Sub(new.CreatedAt) <= enrichmentWindow {
		return nil
	}

	desc := changeDescription(old, new)
	if desc == "" {
		return nil
	}

	updated := new.UpdatedAt
	return &Notification{
		ID:                uuid.New().String(),
		Type:              TypeReferralUpdated,
		Title:             "Referral updated",
		Message:           fmt.Sprintf("%s: %s", displayName(new), desc),
		ReferralID:        new.ID.String(),
		PatientName:       displayName(new),
		Specialty:         new.Specialty,
		Priority:          new.Priority,
		UpdatedAt:         &updated,
		ChangeDescription: desc,
	}
}

// changeDescription returns a human-readable description of the first changed
// field in precedence order, or "" when nothing meaningful changed.
func changeDescription(old, new ReferralSnapshot) string {
	switch {
	case old.Status != new.Status:
		return fmt.Sprintf("status changed from %s to %s", old.Status, new.Status)
	case old.Priority != new.Priority:
		return fmt.Sprintf("priority changed from %s to %s", old.Priority, new.Priority)
	case old.Specialty != new.Specialty:
		return fmt.Sprintf("specialty changed from %s to %s", old.Specialty, new.Specialty)
	case old.TriageStatus != new.TriageStatus:
		return fmt.Sprintf("triage status changed from %s to %s",
			orNone(old.TriageStatus), orNone(new.TriageStatus))
	}
	return ""
}

// displayName degrades to a placeholder when the patient lookup failed;
// a notification with a placeholder beats a suppressed one.
func displayName(s ReferralSnapshot) string {
	if s.PatientName == "" {
		return "Unknown Patient"
	}
	return s.PatientName
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
