// Package outbox implements the transactional outbox: state changes and their
// outbound notifications are written in one transaction, and a background
// dispatcher delivers pending events with retry, giving at-least-once
// delivery without a partial-failure window.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event statuses.
const (
	StatusPending   = "pending"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
)

// Event is a pending outbound notification, persisted alongside the state
// change that produced it.
type Event struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	EventType   string          `db:"event_type" json:"event_type"`
	ReferralID  uuid.UUID       `db:"referral_id" json:"referral_id"`
	Payload     json.RawMessage `db:"payload" json:"payload"`
	Status      string          `db:"status" json:"status"`
	Attempts    int             `db:"attempts" json:"attempts"`
	LastError   string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	DeliveredAt *time.Time      `db:"delivered_at" json:"delivered_at,omitempty"`
}

// Repository persists outbox events. Enqueue must join a transaction carried
// in the context.
type Repository interface {
	Enqueue(ctx context.Context, e *Event) error
	PendingBatch(ctx context.Context, limit int) ([]*Event, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string, terminal bool) error
}
