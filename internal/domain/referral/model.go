// Package referral holds the referral entity, its triage lifecycle, and the
// in-memory filter/sort and statistics pipelines that back the dashboard and
// cohort views.
package referral

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the referral lifecycle state.
type Status string

const (
	StatusNew        Status = "new"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected"
	StatusDischarged Status = "discharged"
	StatusCompleted  Status = "completed"
)

// Priority is the clinical urgency of a referral.
type Priority string

const (
	PriorityRoutine   Priority = "routine"
	PriorityUrgent    Priority = "urgent"
	PriorityEmergency Priority = "emergency"
)

// TriageStatus is the workflow sub-state of an accepted referral.
type TriageStatus string

const (
	TriageNone         TriageStatus = ""
	TriagePreAssess    TriageStatus = "pre-assessment"
	TriageAssessed     TriageStatus = "assessed"
	TriageWaitingList  TriageStatus = "waiting-list"
	TriagePreAdmission TriageStatus = "pre-admission-assessment"
	TriageReferToOther TriageStatus = "refer-to-another-specialty"
	TriageDischarged   TriageStatus = "discharged"
)

// Patient is the demographic record embedded in a referral.
type Patient struct {
	Name                  string     `db:"patient_name" json:"name"`
	NHSNumber             string     `db:"patient_nhs_number" json:"nhs_number"`
	BirthDate             *time.Time `db:"patient_birth_date" json:"birth_date,omitempty"`
	Gender                string     `db:"patient_gender" json:"gender,omitempty"`
	Address               string     `db:"patient_address" json:"address,omitempty"`
	Phone                 string     `db:"patient_phone" json:"phone,omitempty"`
	Allergies             []string   `db:"patient_allergies" json:"allergies,omitempty"`
	ReasonableAdjustments bool       `db:"patient_reasonable_adjustments" json:"reasonable_adjustments"`
}

// Referrer identifies the practitioner who raised the referral.
type Referrer struct {
	Name         string `db:"referrer_name" json:"name"`
	Organization string `db:"referrer_organization" json:"organization,omitempty"`
	Contact      string `db:"referrer_contact" json:"contact,omitempty"`
}

// ClinicalInfo carries the clinical narrative attached to a referral.
type ClinicalInfo struct {
	Reason      string   `db:"clinical_reason" json:"reason"`
	History     string   `db:"clinical_history" json:"history,omitempty"`
	Diagnosis   string   `db:"clinical_diagnosis" json:"diagnosis,omitempty"`
	Medications []string `db:"clinical_medications" json:"medications,omitempty"`
	Allergies   []string `db:"clinical_allergies" json:"allergies,omitempty"`
	Notes       string   `db:"clinical_notes" json:"notes,omitempty"`
}

// Attachment is the stored metadata of an uploaded document; the bytes live in
// external blob storage.
type Attachment struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ReferralID  uuid.UUID `db:"referral_id" json:"referral_id"`
	Filename    string    `db:"filename" json:"filename"`
	ContentType string    `db:"content_type" json:"content_type"`
	SizeBytes   int64     `db:"size_bytes" json:"size_bytes"`
	StorageURL  string    `db:"storage_url" json:"storage_url"`
	UploadedBy  string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Note is a collaboration note appended to a referral.
type Note struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ReferralID uuid.UUID `db:"referral_id" json:"referral_id"`
	Author     string    `db:"author" json:"author"`
	Body       string    `db:"body" json:"body"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Referral maps to the referral table. CreatedAt doubles as the RTT clock
// start. Exactly one specialty per referral; sub-referrals link back through
// ParentID.
type Referral struct {
	ID              uuid.UUID    `db:"id" json:"id"`
	UBRN            string       `db:"ubrn" json:"ubrn"`
	Status          Status       `db:"status" json:"status"`
	Priority        Priority     `db:"priority" json:"priority"`
	TriageStatus    TriageStatus `db:"triage_status" json:"triage_status,omitempty"`
	Specialty       string       `db:"specialty" json:"specialty"`
	Service         *string      `db:"service" json:"service,omitempty"`
	Patient         Patient      `json:"patient"`
	Referrer        Referrer     `json:"referrer"`
	Clinical        ClinicalInfo `json:"clinical_info"`
	Tags            []string     `db:"tags" json:"tags,omitempty"`
	ParentID        *uuid.UUID   `db:"parent_id" json:"parent_id,omitempty"`
	DisplayOrder    *int         `db:"display_order" json:"display_order,omitempty"`
	RejectionReason *string      `db:"rejection_reason" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`

	// Computed at load time, never persisted.
	AgeDays    int    `db:"-" json:"age_days"`
	PatientAge int    `db:"-" json:"patient_age"`
	Location   string `db:"-" json:"location,omitempty"`
}

// ComputeDerived fills the calculated fields from the stored ones as of now.
func (r *Referral) ComputeDerived(now time.Time) {
	r.AgeDays = int(now.Sub(r.CreatedAt) / (24 * time.Hour))
	if r.AgeDays < 0 {
		r.AgeDays = 0
	}
	if r.Patient.BirthDate != nil {
		r.PatientAge = yearsBetween(*r.Patient.BirthDate, now)
	}
	r.Location = coarseLocation(r.Patient.Address)
}

// Terminal reports whether the referral has left the active workflow.
func (r *Referral) Terminal() bool {
	return r.Status == StatusRejected || r.Status == StatusDischarged || r.Status == StatusCompleted
}

func yearsBetween(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	anniversary := birth.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// coarseLocation extracts a display-grade locality from a free-text address:
// the last comma-separated segment before any postcode-looking tail, else the
// last segment itself.
func coarseLocation(address string) string {
	if address == "" {
		return ""
	}
	parts := strings.Split(address, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		seg := strings.TrimSpace(parts[i])
		if seg == "" || looksLikePostcode(seg) {
			continue
		}
		return seg
	}
	return ""
}

func looksLikePostcode(s string) bool {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 5 || len(s) > 8 {
		return false
	}
	hasDigit := false
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			hasDigit = true
		case c >= 'A' && c <= 'Z', c == ' ':
		default:
			return false
		}
	}
	return hasDigit
}

var validStatuses = map[Status]bool{
	StatusNew: true, StatusAccepted: true, StatusRejected: true,
	StatusDischarged: true, StatusCompleted: true,
}

var validPriorities = map[Priority]bool{
	PriorityRoutine: true, PriorityUrgent: true, PriorityEmergency: true,
}

var validTriageStatuses = map[TriageStatus]bool{
	TriageNone: true, TriagePreAssess: true, TriageAssessed: true,
	TriageWaitingList: true, TriagePreAdmission: true,
	TriageReferToOther: true, TriageDischarged: true,
}

// ValidStatus reports whether s is a known lifecycle status.
func ValidStatus(s Status) bool { return validStatuses[s] }

// ValidPriority reports whether p is a known priority.
func ValidPriority(p Priority) bool { return validPriorities[p] }

// ValidTriageStatus reports whether t is a known triage sub-state.
func ValidTriageStatus(t TriageStatus) bool { return validTriageStatuses[t] }
