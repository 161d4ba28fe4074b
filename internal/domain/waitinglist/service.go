package waitinglist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/referral/referral/internal/domain/referral"
	"github.com/referral/referral/internal/domain/rtt"
)

// ReferralSource is the slice of the referral repository the waiting-list
// view needs. Satisfied by referral.Repository.
type ReferralSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*referral.Referral, error)
}

// Service manages waiting-list entries and builds the enriched per-specialty
// view. It satisfies the referral service's waiting-list dependency.
type Service struct {
	repo      Repository
	referrals ReferralSource
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, referrals ReferralSource, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		referrals: referrals,
		logger:    logger.With().Str("component", "waitinglist").Logger(),
		now:       time.Now,
	}
}

// WithClock overrides the service clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Open creates an active entry for the referral. Called inside the lifecycle
// transition's transaction.
func (s *Service) Open(ctx context.Context, referralID uuid.UUID, specialty, addedBy string) error {
	return s.repo.Create(ctx, &Entry{
		ID:         uuid.New(),
		ReferralID: referralID,
		Specialty:  specialty,
		AddedBy:    addedBy,
		AddedAt:    s.now(),
		Status:     StatusActive,
	})
}

// Close ends the referral's active entry with the given outcome. A referral
// that was never listed is not an error: discharge and completion call this
// unconditionally.
func (s *Service) Close(ctx context.Context, referralID uuid.UUID, outcome string) error {
	if !ValidOutcome(outcome) {
		return fmt.Errorf("invalid waiting-list outcome: %s", outcome)
	}
	err := s.repo.Close(ctx, referralID, outcome)
	if err == ErrNotFound {
		return nil
	}
	return err
}

// AddedAt returns when the referral's active entry was opened, used as the
// wait-clock start for dashboard statistics.
func (s *Service) AddedAt(ctx context.Context, referralID uuid.UUID) (time.Time, bool) {
	e, err := s.repo.GetActive(ctx, referralID)
	if err != nil {
		return time.Time{}, false
	}
	return e.AddedAt, true
}

// Reorder rewrites one specialty's queue. referralIDs must name every active
// entry in the specialty exactly once; positions become 1..n in that order.
func (s *Service) Reorder(ctx context.Context, specialty string, referralIDs []uuid.UUID) error {
	if specialty == "" {
		return fmt.Errorf("specialty is required")
	}
	entries, err := s.repo.ListActive(ctx, specialty)
	if err != nil {
		return err
	}
	if len(referralIDs) != len(entries) {
		return fmt.Errorf("reorder must cover all %d active entries, got %d", len(entries), len(referralIDs))
	}
	byReferral := make(map[uuid.UUID]uuid.UUID, len(entries))
	for _, e := range entries {
		byReferral[e.ReferralID] = e.ID
	}
	entryIDs := make([]uuid.UUID, 0, len(referralIDs))
	for _, rid := range referralIDs {
		eid, ok := byReferral[rid]
		if !ok {
			return fmt.Errorf("referral %s has no active entry in %s", rid, specialty)
		}
		delete(byReferral, rid)
		entryIDs = append(entryIDs, eid)
	}
	return s.repo.SetPositions(ctx, specialty, entryIDs)
}

// List builds the waiting-list view for one specialty, or all specialties
// when empty, in queue order. The RTT pathway is evaluated from the
// referral's creation date, not the listing date: joining a waiting list
// never resets the statutory clock.
func (s *Service) List(ctx context.Context, specialty string) ([]*View, error) {
	entries, err := s.repo.ListActive(ctx, specialty)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]*View, 0, len(entries))
	for _, e := range entries {
		v := &View{
			Entry:       *e,
			DaysWaiting: daysBetween(e.AddedAt, now),
		}
		r, err := s.referrals.GetByID(ctx, e.ReferralID)
		if err != nil {
			// A dangling entry still shows on the list rather than
			// hiding a waiting patient.
			s.logger.Warn().Err(err).
				Str("referral_id", e.ReferralID.String()).
				Msg("waiting-list entry references missing referral")
			views = append(views, v)
			continue
		}
		v.PatientName = r.Patient.Name
		v.NHSNumber = r.Patient.NHSNumber
		v.UBRN = r.UBRN
		v.Priority = string(r.Priority)
		if p, err := rtt.Evaluate(r.CreatedAt, now); err == nil {
			v.Pathway = p
		}
		views = append(views, v)
	}
	return views, nil
}

// Specialties returns the specialties with at least one active entry.
func (s *Service) Specialties(ctx context.Context) ([]string, error) {
	return s.repo.ListSpecialties(ctx)
}

func daysBetween(from, to time.Time) int {
	d := int(to.Sub(from) / (24 * time.Hour))
	if d < 0 {
		return 0
	}
	return d
}
