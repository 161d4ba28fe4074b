package outbox

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sender delivers one event to its subscribers. The webhook manager satisfies
// this through an adapter in the server wiring.
type Sender interface {
	Send(ctx context.Context, e *Event) error
}

// SenderFunc is a function adapter for Sender.
type SenderFunc func(ctx context.Context, e *Event) error

func (f SenderFunc) Send(ctx context.Context, e *Event) error { return f(ctx, e) }

// Dispatcher polls the outbox and pushes pending events through the Sender.
type Dispatcher struct {
	repo        Repository
	sender      Sender
	logger      zerolog.Logger
	interval    time.Duration
	batchSize   int
	maxAttempts int
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) { dp.interval = d }
}

// WithBatchSize sets how many events one tick claims.
func WithBatchSize(n int) DispatcherOption {
	return func(dp *Dispatcher) { dp.batchSize = n }
}

// WithMaxAttempts sets the attempt count after which an event is marked
// terminally failed.
func WithMaxAttempts(n int) DispatcherOption {
	return func(dp *Dispatcher) { dp.maxAttempts = n }
}

// NewDispatcher creates a dispatcher with sensible defaults.
func NewDispatcher(repo Repository, sender Sender, logger zerolog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		repo:        repo,
		sender:      sender,
		logger:      logger,
		interval:    2 * time.Second,
		batchSize:   25,
		maxAttempts: 5,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Run polls until the context is cancelled. It is meant to be started as a
// single background goroutine from the server.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := d.Tick(ctx); err != nil {
				d.logger.Error().Err(err).Msg("outbox tick failed")
			} else if n > 0 {
				d.logger.Debug().Int("delivered", n).Msg("outbox tick")
			}
		}
	}
}

// Tick claims one batch of pending events and attempts delivery, returning
// the number delivered successfully.
func (d *Dispatcher) Tick(ctx context.Context) (int, error) {
	events, err := d.repo.PendingBatch(ctx, d.batchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, e := range events {
		if err := d.sender.Send(ctx, e); err != nil {
			attempts := e.Attempts + 1
			terminal := attempts >= d.maxAttempts
			if markErr := d.repo.MarkFailed(ctx, e.ID, attempts, err.Error(), terminal); markErr != nil {
				d.logger.Error().Err(markErr).Str("event_id", e.ID.String()).Msg("failed to record delivery failure")
			}
			evt := d.logger.Warn()
			if terminal {
				evt = d.logger.Error()
			}
			evt.Err(err).
				Str("event_id", e.ID.String()).
				Str("event_type", e.EventType).
				Int("attempts", attempts).
				Bool("terminal", terminal).
				Msg("outbox delivery failed")
			continue
		}
		if err := d.repo.MarkDelivered(ctx, e.ID); err != nil {
			d.logger.Error().Err(err).Str("event_id", e.ID.String()).Msg("failed to mark delivered")
			continue
		}
		delivered++
	}
	return delivered, nil
}
