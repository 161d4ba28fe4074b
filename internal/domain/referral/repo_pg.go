package referral

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/referral/referral/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates the Postgres-backed referral repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const referralCols = `id, ubrn, status, priority, triage_status, specialty, service,
	patient_name, patient_nhs_number, patient_birth_date, patient_gender,
	patient_address, patient_phone, patient_allergies, patient_reasonable_adjustments,
	referrer_name, referrer_organization, referrer_contact,
	clinical_reason, clinical_history, clinical_diagnosis,
	clinical_medications, clinical_allergies, clinical_notes,
	tags, parent_id, display_order, rejection_reason, created_at, updated_at`

func scanReferral(row pgx.Row) (*Referral, error) {
	var rf Referral
	err := row.Scan(&rf.ID, &rf.UBRN, &rf.Status, &rf.Priority, &rf.TriageStatus,
		&rf.Specialty, &rf.Service,
		&rf.Patient.Name, &rf.Patient.NHSNumber, &rf.Patient.BirthDate, &rf.Patient.Gender,
		&rf.Patient.Address, &rf.Patient.Phone, &rf.Patient.Allergies, &rf.Patient.ReasonableAdjustments,
		&rf.Referrer.Name, &rf.Referrer.Organization, &rf.Referrer.Contact,
		&rf.Clinical.Reason, &rf.Clinical.History, &rf.Clinical.Diagnosis,
		&rf.Clinical.Medications, &rf.Clinical.Allergies, &rf.Clinical.Notes,
		&rf.Tags, &rf.ParentID, &rf.DisplayOrder, &rf.RejectionReason,
		&rf.CreatedAt, &rf.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rf, nil
}

func (r *repoPG) Create(ctx context.Context, rf *Referral) error {
	if rf.ID == uuid.Nil {
		rf.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO referral (id, ubrn, status, priority, triage_status, specialty, service,
			patient_name, patient_nhs_number, patient_birth_date, patient_gender,
			patient_address, patient_phone, patient_allergies, patient_reasonable_adjustments,
			referrer_name, referrer_organization, referrer_contact,
			clinical_reason, clinical_history, clinical_diagnosis,
			clinical_medications, clinical_allergies, clinical_notes,
			tags, parent_id, display_order, rejection_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)`,
		rf.ID, rf.UBRN, rf.Status, rf.Priority, rf.TriageStatus, rf.Specialty, rf.Service,
		rf.Patient.Name, rf.Patient.NHSNumber, rf.Patient.BirthDate, rf.Patient.Gender,
		rf.Patient.Address, rf.Patient.Phone, rf.Patient.Allergies, rf.Patient.ReasonableAdjustments,
		rf.Referrer.Name, rf.Referrer.Organization, rf.Referrer.Contact,
		rf.Clinical.Reason, rf.Clinical.History, rf.Clinical.Diagnosis,
		rf.Clinical.Medications, rf.Clinical.Allergies, rf.Clinical.Notes,
		rf.Tags, rf.ParentID, rf.DisplayOrder, rf.RejectionReason)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return scanReferral(r.conn(ctx).QueryRow(ctx,
		`SELECT `+referralCols+` FROM referral WHERE id = $1`, id))
}

func (r *repoPG) GetByUBRN(ctx context.Context, ubrn string) (*Referral, error) {
	return scanReferral(r.conn(ctx).QueryRow(ctx,
		`SELECT `+referralCols+` FROM referral WHERE ubrn = $1`, ubrn))
}

func (r *repoPG) Update(ctx context.Context, rf *Referral) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE referral SET status=$2, priority=$3, triage_status=$4, specialty=$5,
			service=$6, tags=$7, display_order=$8, rejection_reason=$9,
			clinical_reason=$10, clinical_history=$11, clinical_diagnosis=$12,
			clinical_medications=$13, clinical_allergies=$14, clinical_notes=$15,
			updated_at=NOW()
		WHERE id = $1`,
		rf.ID, rf.Status, rf.Priority, rf.TriageStatus, rf.Specialty,
		rf.Service, rf.Tags, rf.DisplayOrder, rf.RejectionReason,
		rf.Clinical.Reason, rf.Clinical.History, rf.Clinical.Diagnosis,
		rf.Clinical.Medications, rf.Clinical.Allergies, rf.Clinical.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListAll(ctx context.Context) ([]*Referral, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+referralCols+` FROM referral ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (r *repoPG) ListChildren(ctx context.Context, parentID uuid.UUID) ([]*Referral, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+referralCols+` FROM referral WHERE parent_id = $1 ORDER BY created_at`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows pgx.Rows) ([]*Referral, error) {
	var items []*Referral
	for rows.Next() {
		rf, err := scanReferral(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rf)
	}
	return items, rows.Err()
}

func (r *repoPG) AddNote(ctx context.Context, n *Note) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO referral_note (id, referral_id, author, body)
		VALUES ($1,$2,$3,$4)`,
		n.ID, n.ReferralID, n.Author, n.Body)
	return err
}

func (r *repoPG) ListNotes(ctx context.Context, referralID uuid.UUID) ([]*Note, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, referral_id, author, body, created_at
		FROM referral_note WHERE referral_id = $1 ORDER BY created_at`, referralID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []*Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.ReferralID, &n.Author, &n.Body, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, &n)
	}
	return notes, rows.Err()
}

func (r *repoPG) AddAttachment(ctx context.Context, a *Attachment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO referral_attachment (id, referral_id, filename, content_type, size_bytes, storage_url, uploaded_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		a.ID, a.ReferralID, a.Filename, a.ContentType, a.SizeBytes, a.StorageURL, a.UploadedBy)
	return err
}

func (r *repoPG) ListAttachments(ctx context.Context, referralID uuid.UUID) ([]*Attachment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, referral_id, filename, content_type, size_bytes, storage_url, uploaded_by, created_at
		FROM referral_attachment WHERE referral_id = $1 ORDER BY created_at`, referralID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Attachment
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.ReferralID, &a.Filename, &a.ContentType,
			&a.SizeBytes, &a.StorageURL, &a.UploadedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &a)
	}
	return items, rows.Err()
}
