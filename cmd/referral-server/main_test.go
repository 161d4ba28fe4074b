package main

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/referral/referral/internal/domain/referral"
	"github.com/referral/referral/internal/platform/notify"
	"github.com/referral/referral/internal/platform/stream"
)

func makeReferral(createdAt, updatedAt time.Time) *referral.Referral {
	return &referral.Referral{
		ID:           uuid.New(),
		UBRN:         "123456789012",
		Specialty:    "Cardiology",
		Priority:     referral.PriorityUrgent,
		Status:       referral.StatusNew,
		TriageStatus: referral.TriageNone,
		Patient: referral.Patient{
			Name:      "Ada Byrne",
			NHSNumber: "9434765919",
		},
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

func TestSnapshotConversion(t *testing.T) {
	now := time.Now()
	r := makeReferral(now, now)

	s := snapshot(r)
	if s.ID != r.ID {
		t.Errorf("ID = %v, want %v", s.ID, r.ID)
	}
	if s.PatientName != "Ada Byrne" {
		t.Errorf("PatientName = %q, want %q", s.PatientName, "Ada Byrne")
	}
	if s.Specialty != "Cardiology" {
		t.Errorf("Specialty = %q, want %q", s.Specialty, "Cardiology")
	}
	if s.Priority != "urgent" {
		t.Errorf("Priority = %q, want %q", s.Priority, "urgent")
	}
	if s.Status != "new" {
		t.Errorf("Status = %q, want %q", s.Status, "new")
	}
	if !s.CreatedAt.Equal(now) || !s.UpdatedAt.Equal(now) {
		t.Error("timestamps not carried through")
	}
}

func newTestFanout() (*referralFanout, *notify.Hub, *stream.Hub) {
	nh := notify.NewHub()
	sh := stream.NewHub(zerolog.Nop())
	return &referralFanout{
		notifications: nh,
		stream:        sh,
		logger:        zerolog.Nop(),
	}, nh, sh
}

func TestFanoutPublishesOnCreate(t *testing.T) {
	f, nh, _ := newTestFanout()
	now := time.Now()

	f.ReferralCreated(makeReferral(now, now))

	history := nh.History()
	if len(history) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(history))
	}
	if history[0].Type != notify.TypeNewReferral {
		t.Errorf("notification type = %q, want %q", history[0].Type, notify.TypeNewReferral)
	}
	if history[0].Specialty != "Cardiology" {
		t.Errorf("notification specialty = %q, want Cardiology", history[0].Specialty)
	}
}

func TestFanoutSuppressesEnrichmentUpdates(t *testing.T) {
	f, nh, _ := newTestFanout()
	now := time.Now()

	// An update landing seconds after creation is intake enrichment,
	// not a change anyone needs to be told about.
	old := makeReferral(now, now)
	updated := makeReferral(now, now.Add(2*time.Second))
	updated.ID = old.ID
	updated.Patient.Address = "12 Harley Street, London"

	f.ReferralUpdated(old, updated)

	if got := len(nh.History()); got != 0 {
		t.Errorf("expected no notifications for enrichment update, got %d", got)
	}
}

func TestFanoutNotifiesOnLaterUpdate(t *testing.T) {
	f, nh, _ := newTestFanout()
	now := time.Now()

	old := makeReferral(now, now)
	updated := makeReferral(now, now.Add(time.Hour))
	updated.ID = old.ID
	updated.Status = referral.StatusAccepted

	f.ReferralUpdated(old, updated)

	history := nh.History()
	if len(history) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(history))
	}
	if history[0].Type != notify.TypeReferralUpdated {
		t.Errorf("notification type = %q, want %q", history[0].Type, notify.TypeReferralUpdated)
	}
}
