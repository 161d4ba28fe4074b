package referral

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/referral/referral/internal/domain/auditlog"
	"github.com/referral/referral/internal/domain/rtt"
	"github.com/referral/referral/internal/platform/outbox"
)

// -- Mocks --

type mockRepo struct {
	store       map[uuid.UUID]*Referral
	notes       map[uuid.UUID][]*Note
	attachments map[uuid.UUID][]*Attachment
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		store:       make(map[uuid.UUID]*Referral),
		notes:       make(map[uuid.UUID][]*Note),
		attachments: make(map[uuid.UUID][]*Attachment),
	}
}

func (m *mockRepo) Create(_ context.Context, r *Referral) error {
	cp := *r
	m.store[r.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Referral, error) {
	r, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockRepo) GetByUBRN(_ context.Context, ubrn string) (*Referral, error) {
	for _, r := range m.store {
		if r.UBRN == ubrn {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) Update(_ context.Context, r *Referral) error {
	if _, ok := m.store[r.ID]; !ok {
		return ErrNotFound
	}
	cp := *r
	m.store[r.ID] = &cp
	return nil
}

func (m *mockRepo) ListAll(_ context.Context) ([]*Referral, error) {
	out := make([]*Referral, 0, len(m.store))
	for _, r := range m.store {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockRepo) ListChildren(_ context.Context, parentID uuid.UUID) ([]*Referral, error) {
	var out []*Referral
	for _, r := range m.store {
		if r.ParentID != nil && *r.ParentID == parentID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) AddNote(_ context.Context, n *Note) error {
	m.notes[n.ReferralID] = append(m.notes[n.ReferralID], n)
	return nil
}

func (m *mockRepo) ListNotes(_ context.Context, referralID uuid.UUID) ([]*Note, error) {
	return m.notes[referralID], nil
}

func (m *mockRepo) AddAttachment(_ context.Context, a *Attachment) error {
	m.attachments[a.ReferralID] = append(m.attachments[a.ReferralID], a)
	return nil
}

func (m *mockRepo) ListAttachments(_ context.Context, referralID uuid.UUID) ([]*Attachment, error) {
	return m.attachments[referralID], nil
}

type mockAudit struct {
	entries []*auditlog.Entry
}

func (m *mockAudit) Append(_ context.Context, e *auditlog.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockAudit) ListByReferral(_ context.Context, referralID uuid.UUID, limit, offset int) ([]*auditlog.Entry, int, error) {
	var out []*auditlog.Entry
	for _, e := range m.entries {
		if e.ReferralID == referralID {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

func (m *mockAudit) last() *auditlog.Entry {
	if len(m.entries) == 0 {
		return nil
	}
	return m.entries[len(m.entries)-1]
}

type mockOutbox struct {
	events []*outbox.Event
}

func (m *mockOutbox) Enqueue(_ context.Context, e *outbox.Event) error {
	m.events = append(m.events, e)
	return nil
}

func (m *mockOutbox) PendingBatch(_ context.Context, limit int) ([]*outbox.Event, error) {
	return nil, nil
}
func (m *mockOutbox) MarkDelivered(_ context.Context, id uuid.UUID) error { return nil }
func (m *mockOutbox) MarkFailed(_ context.Context, id uuid.UUID, attempts int, lastError string, terminal bool) error {
	return nil
}

type mockWaitingList struct {
	open   map[uuid.UUID]time.Time
	closed map[uuid.UUID]string
}

func newMockWaitingList() *mockWaitingList {
	return &mockWaitingList{open: make(map[uuid.UUID]time.Time), closed: make(map[uuid.UUID]string)}
}

func (m *mockWaitingList) Open(_ context.Context, referralID uuid.UUID, specialty, addedBy string) error {
	m.open[referralID] = time.Now()
	return nil
}

func (m *mockWaitingList) Close(_ context.Context, referralID uuid.UUID, outcome string) error {
	delete(m.open, referralID)
	m.closed[referralID] = outcome
	return nil
}

func (m *mockWaitingList) AddedAt(_ context.Context, referralID uuid.UUID) (time.Time, bool) {
	at, ok := m.open[referralID]
	return at, ok
}

type mockListener struct {
	created []*Referral
	updated []*Referral
}

func (m *mockListener) ReferralCreated(r *Referral) { m.created = append(m.created, r) }
func (m *mockListener) ReferralUpdated(_, upd *Referral) { m.updated = append(m.updated, upd) }

type fixture struct {
	svc      *Service
	repo     *mockRepo
	audit    *mockAudit
	outbox   *mockOutbox
	waiting  *mockWaitingList
	listener *mockListener
}

func newFixture() *fixture {
	f := &fixture{
		repo:     newMockRepo(),
		audit:    &mockAudit{},
		outbox:   &mockOutbox{},
		waiting:  newMockWaitingList(),
		listener: &mockListener{},
	}
	f.svc = NewService(f.repo, f.audit, f.outbox, PassthroughTx,
		WithWaitingList(f.waiting),
		WithChangeListener(f.listener),
	)
	return f
}

func (f *fixture) create(t *testing.T) *Referral {
	t.Helper()
	r := &Referral{
		Specialty: "Cardiology",
		Patient:   Patient{Name: "Mary Holt", NHSNumber: "9434765919"},
		Referrer:  Referrer{Name: "Dr Shaw", Organization: "Oak Lane Surgery"},
	}
	if err := f.svc.Create(context.Background(), r); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return r
}

func (f *fixture) accepted(t *testing.T) *Referral {
	t.Helper()
	r := f.create(t)
	accepted, err := f.svc.Accept(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	return accepted
}

// -- Tests --

func TestCreateDefaults(t *testing.T) {
	f := newFixture()
	r := f.create(t)

	if r.Status != StatusNew {
		t.Errorf("Status = %s, want new", r.Status)
	}
	if r.Priority != PriorityRoutine {
		t.Errorf("Priority = %s, want routine", r.Priority)
	}
	if len(r.UBRN) != 12 || strings.Trim(r.UBRN, "0123456789") != "" {
		t.Errorf("UBRN = %q, want 12 digits", r.UBRN)
	}
	if r.ID == uuid.Nil {
		t.Error("ID not assigned")
	}

	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != EventCreated {
		t.Errorf("expected one %s outbox event, got %+v", EventCreated, f.outbox.events)
	}
	if e := f.audit.last(); e == nil || e.Action != "create" || e.ToStatus != "new" {
		t.Errorf("audit entry wrong: %+v", e)
	}
	if len(f.listener.created) != 1 {
		t.Errorf("listener should see one created referral, got %d", len(f.listener.created))
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	if err := f.svc.Create(ctx, &Referral{Specialty: "Cardiology"}); err == nil {
		t.Error("missing patient name should fail")
	}
	if err := f.svc.Create(ctx, &Referral{Patient: Patient{Name: "A"}}); err == nil {
		t.Error("missing specialty should fail")
	}
	if err := f.svc.Create(ctx, &Referral{
		Patient: Patient{Name: "A"}, Specialty: "X", Priority: "stat",
	}); err == nil {
		t.Error("unknown priority should fail")
	}
	if err := f.svc.Create(ctx, &Referral{
		Patient: Patient{Name: "A"}, Specialty: "X", Status: StatusAccepted,
	}); err == nil {
		t.Error("non-new starting status should fail")
	}
	if err := f.svc.Create(ctx, &Referral{
		Patient: Patient{Name: "A"}, Specialty: "X", TriageStatus: TriageAssessed,
	}); err == nil {
		t.Error("triage status on intake should fail")
	}
}

func TestAccept(t *testing.T) {
	f := newFixture()
	r := f.accepted(t)

	if r.Status != StatusAccepted || r.TriageStatus != TriagePreAssess {
		t.Errorf("after accept: status=%s triage=%s", r.Status, r.TriageStatus)
	}
	if e := f.audit.last(); e.Action != "accept" || e.FromStatus != "new" || e.ToStatus != "accepted" {
		t.Errorf("audit entry wrong: %+v", e)
	}
	if len(f.listener.updated) != 1 {
		t.Errorf("listener should see the update")
	}

	// Accept is not idempotent.
	if _, err := f.svc.Accept(context.Background(), r.ID); err == nil {
		t.Error("accepting an accepted referral should fail")
	}
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture()
	r := f.create(t)

	if _, err := f.svc.Reject(context.Background(), r.ID, ""); err == nil {
		t.Fatal("empty reason should fail")
	}

	rejected, err := f.svc.Reject(context.Background(), r.ID, "duplicate referral")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != StatusRejected {
		t.Errorf("Status = %s, want rejected", rejected.Status)
	}
	if rejected.RejectionReason == nil || *rejected.RejectionReason != "duplicate referral" {
		t.Errorf("RejectionReason = %v", rejected.RejectionReason)
	}
	if e := f.audit.last(); e.Detail != "duplicate referral" {
		t.Errorf("audit detail should carry the reason, got %q", e.Detail)
	}
}

func TestRejectOnlyFromNew(t *testing.T) {
	f := newFixture()
	r := f.accepted(t)
	if _, err := f.svc.Reject(context.Background(), r.ID, "late"); err == nil {
		t.Error("rejecting an accepted referral should fail")
	}
}

func TestForwardCreatesSubReferral(t *testing.T) {
	f := newFixture()
	r := f.accepted(t)
	ctx := context.Background()

	parent, child, err := f.svc.Forward(ctx, r.ID, "Dermatology")
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}

	if parent.TriageStatus != TriageReferToOther {
		t.Errorf("parent triage = %s, want refer-to-another-specialty", parent.TriageStatus)
	}
	if parent.Status != StatusAccepted {
		t.Errorf("forward must not change the parent lifecycle status, got %s", parent.Status)
	}

	if child.Specialty != "Dermatology" || child.Status != StatusNew {
		t.Errorf("child: specialty=%s status=%s", child.Specialty, child.Status)
	}
	if child.ParentID == nil || *child.ParentID != parent.ID {
		t.Error("child should link back to the parent")
	}
	if child.UBRN == parent.UBRN || len(child.UBRN) != 12 {
		t.Errorf("child needs its own UBRN, got %q", child.UBRN)
	}
	if child.Patient.Name != parent.Patient.Name {
		t.Error("child should carry the patient record")
	}

	children, err := f.svc.ListChildren(ctx, parent.ID)
	if err != nil || len(children) != 1 {
		t.Fatalf("ListChildren: %v, %d children", err, len(children))
	}

	// Forward emits both the parent change and the child creation.
	var sawForwarded, sawCreated bool
	for _, e := range f.outbox.events {
		switch e.EventType {
		case EventForwarded:
			sawForwarded = true
		case EventCreated:
			if e.ReferralID == child.ID {
				sawCreated = true
			}
		}
	}
	if !sawForwarded || !sawCreated {
		t.Errorf("outbox missing forward events: %+v", f.outbox.events)
	}
}

func TestForwardRejectsSameSpecialty(t *testing.T) {
	f := newFixture()
	r := f.accepted(t)
	if _, _, err := f.svc.Forward(context.Background(), r.ID, "Cardiology"); err == nil {
		t.Error("forwarding to the current specialty should fail")
	}
}

func TestAddToWaitingList(t *testing.T) {
	f := newFixture()
	r := f.accepted(t)
	ctx := context.Background()

	listed, err := f.svc.AddToWaitingList(ctx, r.ID)
	if err != nil {
		t.Fatalf("AddToWaitingList: %v", err)
	}
	if listed.TriageStatus != TriageWaitingList {
		t.Errorf("triage = %s, want waiting-list", listed.TriageStatus)
	}
	if _, ok := f.waiting.open[r.ID]; !ok {
		t.Error("waiting-list entry not opened")
	}

	if _, err := f.svc.AddToWaitingList(ctx, r.ID); err == nil {
		t.Error("double listing should fail")
	}
}

func TestRemoveFromWaitingList(t *testing.T) {
	f := newFixture()
	r := f.accepted(t)
	ctx := WithActor(context.Background(), "triage.nurse")

	if _, err := f.svc.AddToWaitingList(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	removed, err := f.svc.RemoveFromWaitingList(ctx, r.ID)
	if err != nil {
		t.Fatalf("RemoveFromWaitingList: %v", err)
	}
	if removed.Status != StatusAccepted || removed.TriageStatus != TriageAssessed {
		t.Errorf("status=%s triage=%s, want accepted/assessed", removed.Status, removed.TriageStatus)
	}
	if f.waiting.closed[r.ID] != "removed" {
		t.Errorf("waiting-list outcome = %q, want removed", f.waiting.closed[r.ID])
	}
	if last := f.audit.last(); last == nil || last.Action != "waiting-list-remove" || last.Actor != "triage.nurse" {
		t.Errorf("audit entry = %+v, want waiting-list-remove by triage.nurse", last)
	}
	var sawEvent bool
	for _, e := range f.outbox.events {
		if e.EventType == EventWaitingListRemove {
			sawEvent = true
		}
	}
	if !sawEvent {
		t.Errorf("outbox missing %s event", EventWaitingListRemove)
	}

	if _, err := f.svc.RemoveFromWaitingList(ctx, r.ID); err == nil {
		t.Error("removing an unlisted referral should fail")
	}
}

func TestDischargeClosesWaitingListEntry(t *testing.T) {
	f := newFixture()
	r := f.accepted(t)
	ctx := context.Background()

	if _, err := f.svc.AddToWaitingList(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	discharged, err := f.svc.Discharge(ctx, r.ID)
	if err != nil {
		t.Fatalf("Discharge: %v", err)
	}
	if discharged.Status != StatusDischarged || discharged.TriageStatus != TriageDischarged {
		t.Errorf("status=%s triage=%s", discharged.Status, discharged.TriageStatus)
	}
	if f.waiting.closed[r.ID] != "discharged" {
		t.Errorf("waiting-list outcome = %q, want discharged", f.waiting.closed[r.ID])
	}
}

func TestCompleteClearsTriage(t *testing.T) {
	f := newFixture()
	r := f.accepted(t)
	ctx := context.Background()

	if _, err := f.svc.AddToWaitingList(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	done, err := f.svc.Complete(ctx, r.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != StatusCompleted || done.TriageStatus != TriageNone {
		t.Errorf("status=%s triage=%q", done.Status, done.TriageStatus)
	}
	if f.waiting.closed[r.ID] != "completed" {
		t.Errorf("waiting-list outcome = %q, want completed", f.waiting.closed[r.ID])
	}
}

func TestDischargeRequiresAccepted(t *testing.T) {
	f := newFixture()
	r := f.create(t)
	if _, err := f.svc.Discharge(context.Background(), r.ID); err == nil {
		t.Error("discharging a new referral should fail")
	}
}

func TestSetTriageStatus(t *testing.T) {
	f := newFixture()
	r := f.accepted(t)
	ctx := context.Background()

	moved, err := f.svc.SetTriageStatus(ctx, r.ID, TriageAssessed)
	if err != nil {
		t.Fatalf("SetTriageStatus: %v", err)
	}
	if moved.TriageStatus != TriageAssessed {
		t.Errorf("triage = %s, want assessed", moved.TriageStatus)
	}

	// The waiting-list target routes through the full workflow.
	listed, err := f.svc.SetTriageStatus(ctx, r.ID, TriageWaitingList)
	if err != nil {
		t.Fatalf("SetTriageStatus(waiting-list): %v", err)
	}
	if listed.TriageStatus != TriageWaitingList {
		t.Errorf("triage = %s, want waiting-list", listed.TriageStatus)
	}
	if _, ok := f.waiting.open[r.ID]; !ok {
		t.Error("waiting-list entry not opened through SetTriageStatus")
	}

	if _, err := f.svc.SetTriageStatus(ctx, r.ID, "unknown"); err == nil {
		t.Error("unknown triage status should fail")
	}
}

func TestUpdateGuardsLifecycleFields(t *testing.T) {
	f := newFixture()
	r := f.create(t)
	ctx := context.Background()

	edit := *r
	edit.Status = StatusAccepted
	if _, err := f.svc.Update(ctx, &edit); err == nil {
		t.Error("status change through update should fail")
	}

	edit = *r
	edit.Priority = PriorityUrgent
	updated, err := f.svc.Update(ctx, &edit)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Priority != PriorityUrgent {
		t.Errorf("priority = %s, want urgent", updated.Priority)
	}
	if updated.UBRN != r.UBRN || !updated.CreatedAt.Equal(r.CreatedAt) {
		t.Error("update must preserve UBRN and creation date")
	}

	rejected, err := f.svc.Reject(ctx, r.ID, "dup")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Update(ctx, rejected); err == nil {
		t.Error("editing a terminal referral should fail")
	}
}

func TestListFilterSortPaginate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	names := []string{"Adams", "Brown", "Clark", "Davis", "Evans"}
	for _, name := range names {
		r := &Referral{
			Specialty: "Cardiology",
			Patient:   Patient{Name: name},
		}
		if err := f.svc.Create(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	other := &Referral{Specialty: "Dermatology", Patient: Patient{Name: "Zed"}}
	if err := f.svc.Create(ctx, other); err != nil {
		t.Fatal(err)
	}

	items, total, err := f.svc.List(ctx, Filter{Specialty: "Cardiology"}, SortByPatientName, true, 2, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(items) != 2 || items[0].Patient.Name != "Clark" || items[1].Patient.Name != "Davis" {
		t.Errorf("page wrong: %+v", items)
	}

	// Offset past the end returns an empty page with the true total.
	items, total, err = f.svc.List(ctx, Filter{}, SortByDefault, true, 10, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 || total != 6 {
		t.Errorf("overrun page: %d items, total %d", len(items), total)
	}
}

func TestNotesAndAttachments(t *testing.T) {
	f := newFixture()
	r := f.create(t)
	ctx := context.Background()

	if _, err := f.svc.AddNote(ctx, r.ID, "dr.shaw", ""); err == nil {
		t.Error("empty note body should fail")
	}
	n, err := f.svc.AddNote(ctx, r.ID, "dr.shaw", "seen in clinic")
	if err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	notes, err := f.svc.ListNotes(ctx, r.ID)
	if err != nil || len(notes) != 1 || notes[0].ID != n.ID {
		t.Errorf("ListNotes: %v, %+v", err, notes)
	}

	a := &Attachment{ReferralID: r.ID, Filename: "gp-letter.pdf", ContentType: "application/pdf"}
	if err := f.svc.AddAttachment(ctx, a); err != nil {
		t.Fatalf("AddAttachment: %v", err)
	}
	if err := f.svc.AddAttachment(ctx, &Attachment{ReferralID: r.ID}); err == nil {
		t.Error("attachment without filename should fail")
	}
	if _, err := f.svc.AddNote(ctx, uuid.New(), "x", "y"); err == nil {
		t.Error("note on a missing referral should fail")
	}
}

func TestPathwayEvaluation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.create(t)

	r.CreatedAt = time.Now().AddDate(0, 0, -130)
	if err := f.repo.Update(ctx, r); err != nil {
		t.Fatal(err)
	}

	p, err := f.svc.Pathway(ctx, r.ID)
	if err != nil {
		t.Fatalf("Pathway: %v", err)
	}
	if p.Risk != rtt.RiskBreached {
		t.Errorf("Risk = %s, want breached at 130 days", p.Risk)
	}
	if p.DaysOverdue != 4 {
		t.Errorf("DaysOverdue = %d, want 4", p.DaysOverdue)
	}
	if p.Status != rtt.StatusIncomplete {
		t.Errorf("Status = %s, want incomplete while the referral is open", p.Status)
	}

	r.Status = StatusCompleted
	if err := f.repo.Update(ctx, r); err != nil {
		t.Fatal(err)
	}
	p, err = f.svc.Pathway(ctx, r.ID)
	if err != nil {
		t.Fatalf("Pathway after completion: %v", err)
	}
	if p.Status != rtt.StatusCompleted {
		t.Errorf("Status = %s, want completed once treated", p.Status)
	}
}

func TestStatsUsesWaitingListClock(t *testing.T) {
	f := newFixture()
	r := f.accepted(t)
	ctx := context.Background()

	if _, err := f.svc.AddToWaitingList(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	// Pretend the entry opened 10 days ago.
	f.waiting.open[r.ID] = time.Now().Add(-10 * 24 * time.Hour)

	stats, err := f.svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Overall.WaitingList != 1 {
		t.Errorf("WaitingList = %d, want 1", stats.Overall.WaitingList)
	}
	if stats.Overall.LongestWaitDays != 10 {
		t.Errorf("LongestWaitDays = %d, want 10", stats.Overall.LongestWaitDays)
	}
}

func TestGetNotFound(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Get(context.Background(), uuid.New()); err != ErrNotFound {
		t.Errorf("Get on missing id: %v, want ErrNotFound", err)
	}
}

func TestActorAttribution(t *testing.T) {
	f := newFixture()
	ctx := WithActor(context.Background(), "triage.nurse")

	r := &Referral{Specialty: "Cardiology", Patient: Patient{Name: "A"}}
	if err := f.svc.Create(ctx, r); err != nil {
		t.Fatal(err)
	}
	if e := f.audit.last(); e.Actor != "triage.nurse" {
		t.Errorf("Actor = %q, want triage.nurse", e.Actor)
	}

	// Without an actor the system user is recorded.
	if _, err := f.svc.Accept(context.Background(), r.ID); err != nil {
		t.Fatal(err)
	}
	if e := f.audit.last(); e.Actor != "system" {
		t.Errorf("Actor = %q, want system", e.Actor)
	}
}
