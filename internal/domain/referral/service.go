package referral

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/referral/referral/internal/domain/auditlog"
	"github.com/referral/referral/internal/domain/rtt"
	"github.com/referral/referral/internal/platform/outbox"
)

// Outbox event types emitted by lifecycle transitions.
const (
	EventCreated           = "referral.created"
	EventUpdated           = "referral.updated"
	EventAccepted          = "referral.accepted"
	EventRejected          = "referral.rejected"
	EventForwarded         = "referral.forwarded"
	EventWaitingListAdd    = "referral.waiting_list_added"
	EventWaitingListRemove = "referral.waiting_list_removed"
	EventDischarged        = "referral.discharged"
	EventCompleted         = "referral.completed"
)

// TxRunner executes fn inside a database transaction carried on the context.
// Tests substitute a pass-through runner.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// PassthroughTx runs fn without a transaction.
func PassthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// WaitingList is the slice of the waiting-list workflow the referral service
// drives: opening an entry when a referral joins the list and closing it when
// the referral leaves the active pathway.
type WaitingList interface {
	Open(ctx context.Context, referralID uuid.UUID, specialty, addedBy string) error
	Close(ctx context.Context, referralID uuid.UUID, outcome string) error
	AddedAt(ctx context.Context, referralID uuid.UUID) (time.Time, bool)
}

// ChangeListener receives committed referral changes for realtime fan-out.
// Calls happen after the owning transaction commits.
type ChangeListener interface {
	ReferralCreated(r *Referral)
	ReferralUpdated(old, updated *Referral)
}

// Service owns referral lifecycle semantics: creation, triage transitions,
// notes, attachments, and the dashboard read paths.
type Service struct {
	repo        Repository
	audit       auditlog.Repository
	outbox      outbox.Repository
	inTx        TxRunner
	waitingList WaitingList
	listener    ChangeListener
	now         func() time.Time
}

// ServiceOption configures optional service collaborators.
type ServiceOption func(*Service)

// WithWaitingList attaches the waiting-list workflow.
func WithWaitingList(wl WaitingList) ServiceOption {
	return func(s *Service) { s.waitingList = wl }
}

// WithChangeListener attaches a post-commit change listener.
func WithChangeListener(l ChangeListener) ServiceOption {
	return func(s *Service) { s.listener = l }
}

// WithClock overrides the service clock, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, audit auditlog.Repository, ob outbox.Repository, inTx TxRunner, opts ...ServiceOption) *Service {
	s := &Service{
		repo:   repo,
		audit:  audit,
		outbox: ob,
		inTx:   inTx,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// generateUBRN produces a 12-digit booking reference from crypto randomness.
func generateUBRN() (string, error) {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	digits := make([]byte, 12)
	for i, b := range buf {
		digits[i] = '0' + b%10
	}
	return string(digits), nil
}

// Create validates and persists a new referral, assigning its UBRN and
// recording the intake in the audit trail and outbox atomically.
func (s *Service) Create(ctx context.Context, r *Referral) error {
	if r.Patient.Name == "" {
		return fmt.Errorf("patient name is required")
	}
	if r.Specialty == "" {
		return fmt.Errorf("specialty is required")
	}
	if r.Status == "" {
		r.Status = StatusNew
	}
	if r.Status != StatusNew {
		return fmt.Errorf("new referrals must start in status %q, got %q", StatusNew, r.Status)
	}
	if r.Priority == "" {
		r.Priority = PriorityRoutine
	}
	if !ValidPriority(r.Priority) {
		return fmt.Errorf("invalid priority: %s", r.Priority)
	}
	if r.TriageStatus != TriageNone {
		return fmt.Errorf("new referrals cannot carry a triage status")
	}

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.UBRN == "" {
		ubrn, err := generateUBRN()
		if err != nil {
			return fmt.Errorf("generating ubrn: %w", err)
		}
		r.UBRN = ubrn
	}
	now := s.now()
	r.CreatedAt = now
	r.UpdatedAt = now

	err := s.inTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, r); err != nil {
			return err
		}
		if err := s.appendAudit(ctx, r.ID, ActorFrom(ctx), "create", "", string(r.Status), ""); err != nil {
			return err
		}
		return s.enqueue(ctx, EventCreated, r)
	})
	if err != nil {
		return err
	}

	r.ComputeDerived(now)
	if s.listener != nil {
		s.listener.ReferralCreated(r)
	}
	return nil
}

// Get loads a referral with its derived fields computed.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Referral, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.ComputeDerived(s.now())
	return r, nil
}

// GetByUBRN loads a referral by its booking reference.
func (s *Service) GetByUBRN(ctx context.Context, ubrn string) (*Referral, error) {
	r, err := s.repo.GetByUBRN(ctx, ubrn)
	if err != nil {
		return nil, err
	}
	r.ComputeDerived(s.now())
	return r, nil
}

// List fetches referrals, applies the conjunctive filter and sort in memory,
// and returns the requested page plus the filtered total.
func (s *Service) List(ctx context.Context, f Filter, key SortKey, ascending bool, limit, offset int) ([]*Referral, int, error) {
	items, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, 0, err
	}

	now := s.now()
	for _, r := range items {
		r.ComputeDerived(now)
	}

	items = f.Apply(items)
	if key == SortByDefault {
		DefaultOrder(items)
	} else {
		Sort(items, key, ascending)
	}

	total := len(items)
	if offset >= total {
		return []*Referral{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return items[offset:end], total, nil
}

// ListChildren returns the sub-referrals forwarded from a parent referral.
func (s *Service) ListChildren(ctx context.Context, parentID uuid.UUID) ([]*Referral, error) {
	items, err := s.repo.ListChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, r := range items {
		r.ComputeDerived(now)
	}
	return items, nil
}

// Update applies a general edit to a non-terminal referral. Lifecycle and
// triage fields must move through the transition methods.
func (s *Service) Update(ctx context.Context, r *Referral) (*Referral, error) {
	current, err := s.repo.GetByID(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	if current.Terminal() {
		return nil, fmt.Errorf("referral %s is %s and cannot be edited", r.ID, current.Status)
	}
	if r.Status != current.Status {
		return nil, fmt.Errorf("status cannot be changed through update")
	}
	if r.TriageStatus != current.TriageStatus {
		return nil, fmt.Errorf("triage status cannot be changed through update")
	}
	if !ValidPriority(r.Priority) {
		return nil, fmt.Errorf("invalid priority: %s", r.Priority)
	}

	old := *current
	r.UBRN = current.UBRN
	r.CreatedAt = current.CreatedAt
	r.UpdatedAt = s.now()

	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, r); err != nil {
			return err
		}
		if err := s.appendAudit(ctx, r.ID, ActorFrom(ctx), "update", string(old.Status), string(r.Status), ""); err != nil {
			return err
		}
		return s.enqueue(ctx, EventUpdated, r)
	})
	if err != nil {
		return nil, err
	}

	r.ComputeDerived(r.UpdatedAt)
	s.notifyUpdated(&old, r)
	return r, nil
}

// Accept moves a new referral into the active triage workflow.
func (s *Service) Accept(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return s.transition(ctx, id, EventAccepted, "accept", func(r *Referral) error {
		if r.Status != StatusNew {
			return fmt.Errorf("only new referrals can be accepted, current status %q", r.Status)
		}
		r.Status = StatusAccepted
		r.TriageStatus = TriagePreAssess
		return nil
	}, nil)
}

// Reject declines a new referral. A reason is mandatory: the referring
// practitioner sees it verbatim.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, reason string) (*Referral, error) {
	if reason == "" {
		return nil, errors.New("rejection reason is required")
	}
	return s.transition(ctx, id, EventRejected, "reject", func(r *Referral) error {
		if r.Status != StatusNew {
			return fmt.Errorf("only new referrals can be rejected, current status %q", r.Status)
		}
		r.Status = StatusRejected
		r.RejectionReason = &reason
		return nil
	}, func(detail *string) { *detail = reason })
}

// Forward redirects an accepted referral to another specialty: the original
// is marked refer-to-another-specialty and a linked sub-referral opens in the
// target specialty with a fresh waiting clock.
func (s *Service) Forward(ctx context.Context, id uuid.UUID, targetSpecialty string) (*Referral, *Referral, error) {
	if targetSpecialty == "" {
		return nil, nil, errors.New("target specialty is required")
	}

	parent, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if parent.Status != StatusAccepted {
		return nil, nil, fmt.Errorf("only accepted referrals can be forwarded, current status %q", parent.Status)
	}
	if parent.Specialty == targetSpecialty {
		return nil, nil, fmt.Errorf("referral is already with %s", targetSpecialty)
	}

	old := *parent
	now := s.now()
	parent.TriageStatus = TriageReferToOther
	parent.UpdatedAt = now

	childUBRN, err := generateUBRN()
	if err != nil {
		return nil, nil, fmt.Errorf("generating ubrn: %w", err)
	}
	parentID := parent.ID
	child := &Referral{
		ID:        uuid.New(),
		UBRN:      childUBRN,
		Status:    StatusNew,
		Priority:  parent.Priority,
		Specialty: targetSpecialty,
		Patient:   parent.Patient,
		Referrer:  parent.Referrer,
		Clinical:  parent.Clinical,
		Tags:      parent.Tags,
		ParentID:  &parentID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, parent); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, child); err != nil {
			return err
		}
		actor := ActorFrom(ctx)
		detail := fmt.Sprintf("forwarded to %s", targetSpecialty)
		if err := s.appendAudit(ctx, parent.ID, actor, "forward", string(old.Status), string(parent.Status), detail); err != nil {
			return err
		}
		if err := s.appendAudit(ctx, child.ID, actor, "create", "", string(child.Status), fmt.Sprintf("forwarded from %s", parent.Specialty)); err != nil {
			return err
		}
		if err := s.enqueue(ctx, EventForwarded, parent); err != nil {
			return err
		}
		return s.enqueue(ctx, EventCreated, child)
	})
	if err != nil {
		return nil, nil, err
	}

	parent.ComputeDerived(now)
	child.ComputeDerived(now)
	s.notifyUpdated(&old, parent)
	if s.listener != nil {
		s.listener.ReferralCreated(child)
	}
	return parent, child, nil
}

// SetTriageStatus moves an accepted referral between triage sub-states that
// have no dedicated transition.
func (s *Service) SetTriageStatus(ctx context.Context, id uuid.UUID, target TriageStatus) (*Referral, error) {
	if !ValidTriageStatus(target) || target == TriageNone {
		return nil, fmt.Errorf("invalid triage status: %s", target)
	}
	if target == TriageWaitingList {
		return s.AddToWaitingList(ctx, id)
	}
	return s.transition(ctx, id, EventUpdated, "triage", func(r *Referral) error {
		if r.Status != StatusAccepted {
			return fmt.Errorf("only accepted referrals can move through triage, current status %q", r.Status)
		}
		r.TriageStatus = target
		return nil
	}, nil)
}

// AddToWaitingList puts an accepted referral on its specialty's waiting list
// and opens the waiting-list entry in the same transaction.
func (s *Service) AddToWaitingList(ctx context.Context, id uuid.UUID) (*Referral, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusAccepted {
		return nil, fmt.Errorf("only accepted referrals can join the waiting list, current status %q", r.Status)
	}
	if r.TriageStatus == TriageWaitingList {
		return nil, fmt.Errorf("referral is already on the waiting list")
	}

	old := *r
	actor := ActorFrom(ctx)
	r.TriageStatus = TriageWaitingList
	r.UpdatedAt = s.now()

	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, r); err != nil {
			return err
		}
		if s.waitingList != nil {
			if err := s.waitingList.Open(ctx, r.ID, r.Specialty, actor); err != nil {
				return err
			}
		}
		if err := s.appendAudit(ctx, r.ID, actor, "waiting-list", string(old.Status), string(r.Status), "added to waiting list"); err != nil {
			return err
		}
		return s.enqueue(ctx, EventWaitingListAdd, r)
	})
	if err != nil {
		return nil, err
	}

	r.ComputeDerived(r.UpdatedAt)
	s.notifyUpdated(&old, r)
	return r, nil
}

// RemoveFromWaitingList takes a referral off its specialty's waiting list
// without ending the pathway. The entry closes with a removed outcome and the
// referral returns to the assessed triage state, all in one transaction.
func (s *Service) RemoveFromWaitingList(ctx context.Context, id uuid.UUID) (*Referral, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.TriageStatus != TriageWaitingList {
		return nil, fmt.Errorf("referral is not on the waiting list")
	}

	old := *r
	actor := ActorFrom(ctx)
	r.TriageStatus = TriageAssessed
	r.UpdatedAt = s.now()

	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, r); err != nil {
			return err
		}
		if s.waitingList != nil {
			if err := s.waitingList.Close(ctx, r.ID, "removed"); err != nil {
				return err
			}
		}
		if err := s.appendAudit(ctx, r.ID, actor, "waiting-list-remove", string(old.Status), string(r.Status), "removed from waiting list"); err != nil {
			return err
		}
		return s.enqueue(ctx, EventWaitingListRemove, r)
	})
	if err != nil {
		return nil, err
	}

	r.ComputeDerived(r.UpdatedAt)
	s.notifyUpdated(&old, r)
	return r, nil
}

// Discharge ends the pathway without admission. Any open waiting-list entry
// closes with a discharged outcome.
func (s *Service) Discharge(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return s.endPathway(ctx, id, StatusDischarged, EventDischarged, "discharge", "discharged")
}

// Complete ends the pathway with treatment done. Any open waiting-list entry
// closes with a completed outcome.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return s.endPathway(ctx, id, StatusCompleted, EventCompleted, "complete", "completed")
}

func (s *Service) endPathway(ctx context.Context, id uuid.UUID, target Status, eventType, action, outcome string) (*Referral, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusAccepted {
		return nil, fmt.Errorf("only accepted referrals can be %s, current status %q", outcome, r.Status)
	}

	old := *r
	wasWaiting := r.TriageStatus == TriageWaitingList
	r.Status = target
	r.TriageStatus = TriageNone
	if target == StatusDischarged {
		r.TriageStatus = TriageDischarged
	}
	r.UpdatedAt = s.now()

	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, r); err != nil {
			return err
		}
		if wasWaiting && s.waitingList != nil {
			if err := s.waitingList.Close(ctx, r.ID, outcome); err != nil {
				return err
			}
		}
		if err := s.appendAudit(ctx, r.ID, ActorFrom(ctx), action, string(old.Status), string(r.Status), ""); err != nil {
			return err
		}
		return s.enqueue(ctx, eventType, r)
	})
	if err != nil {
		return nil, err
	}

	r.ComputeDerived(r.UpdatedAt)
	s.notifyUpdated(&old, r)
	return r, nil
}

// transition is the shared skeleton for single-row lifecycle changes: load,
// mutate, then persist with audit and outbox in one transaction.
func (s *Service) transition(ctx context.Context, id uuid.UUID, eventType, action string, mutate func(*Referral) error, detailFn func(*string)) (*Referral, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	old := *r
	if err := mutate(r); err != nil {
		return nil, err
	}
	r.UpdatedAt = s.now()

	var detail string
	if detailFn != nil {
		detailFn(&detail)
	}

	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, r); err != nil {
			return err
		}
		if err := s.appendAudit(ctx, r.ID, ActorFrom(ctx), action, string(old.Status), string(r.Status), detail); err != nil {
			return err
		}
		return s.enqueue(ctx, eventType, r)
	})
	if err != nil {
		return nil, err
	}

	r.ComputeDerived(r.UpdatedAt)
	s.notifyUpdated(&old, r)
	return r, nil
}

// AddNote appends a collaboration note.
func (s *Service) AddNote(ctx context.Context, referralID uuid.UUID, author, body string) (*Note, error) {
	if body == "" {
		return nil, errors.New("note body is required")
	}
	if _, err := s.repo.GetByID(ctx, referralID); err != nil {
		return nil, err
	}
	n := &Note{
		ID:         uuid.New(),
		ReferralID: referralID,
		Author:     author,
		Body:       body,
		CreatedAt:  s.now(),
	}
	if err := s.repo.AddNote(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// ListNotes returns a referral's notes, oldest first.
func (s *Service) ListNotes(ctx context.Context, referralID uuid.UUID) ([]*Note, error) {
	return s.repo.ListNotes(ctx, referralID)
}

// AddAttachment records uploaded document metadata.
func (s *Service) AddAttachment(ctx context.Context, a *Attachment) error {
	if a.Filename == "" {
		return errors.New("filename is required")
	}
	if _, err := s.repo.GetByID(ctx, a.ReferralID); err != nil {
		return err
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = s.now()
	return s.repo.AddAttachment(ctx, a)
}

// ListAttachments returns a referral's attachment metadata.
func (s *Service) ListAttachments(ctx context.Context, referralID uuid.UUID) ([]*Attachment, error) {
	return s.repo.ListAttachments(ctx, referralID)
}

// Stats aggregates the dashboard statistics over every referral.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	items, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	waitStart := func(r *Referral) time.Time {
		if s.waitingList != nil {
			if at, ok := s.waitingList.AddedAt(ctx, r.ID); ok {
				return at
			}
		}
		return r.CreatedAt
	}
	return Aggregate(items, now, waitStart), nil
}

// Pathway evaluates the referral's RTT clock as of now. The clock starts at
// creation and stops when the referral ends: completed referrals reached
// treatment, discharged and rejected ones stopped short of it.
func (s *Service) Pathway(ctx context.Context, id uuid.UUID) (*rtt.Pathway, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := rtt.Evaluate(r.CreatedAt, s.now())
	if err != nil {
		return nil, err
	}
	switch r.Status {
	case StatusCompleted:
		p.Stop(true)
	case StatusDischarged, StatusRejected:
		p.Stop(false)
	}
	return p, nil
}

// AuditTrail returns the audit entries for a referral.
func (s *Service) AuditTrail(ctx context.Context, referralID uuid.UUID, limit, offset int) ([]*auditlog.Entry, int, error) {
	return s.audit.ListByReferral(ctx, referralID, limit, offset)
}

func (s *Service) appendAudit(ctx context.Context, referralID uuid.UUID, actor, action, from, to, detail string) error {
	return s.audit.Append(ctx, &auditlog.Entry{
		ID:         uuid.New(),
		ReferralID: referralID,
		Actor:      actor,
		Action:     action,
		FromStatus: from,
		ToStatus:   to,
		Detail:     detail,
		CreatedAt:  s.now(),
	})
}

func (s *Service) enqueue(ctx context.Context, eventType string, r *Referral) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling outbox payload: %w", err)
	}
	return s.outbox.Enqueue(ctx, &outbox.Event{
		ID:         uuid.New(),
		EventType:  eventType,
		ReferralID: r.ID,
		Payload:    payload,
		CreatedAt:  s.now(),
	})
}

func (s *Service) notifyUpdated(old, updated *Referral) {
	if s.listener != nil {
		s.listener.ReferralUpdated(old, updated)
	}
}

type actorKey struct{}

// WithActor stamps the acting user onto the context for audit attribution.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the acting user stamped by WithActor, or "system" when
// the context carries none.
func ActorFrom(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return "system"
}
