package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finledger/internal/log"
)

const (
	DefaultBatchSize      = 50
	DefaultPollInterval   = 2 * time.Second
	DefaultMaxAttempts    = 10
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 5 * time.Minute
)

// Dispatcher drains an Outbox into a Publisher. A single Dispatcher per outbox is assumed.
type Dispatcher struct {
	outbox    Outbox
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time

	BatchSize      int
	PollInterval   time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func NewDispatcher(outbox Outbox, publisher Publisher, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		outbox:         outbox,
		publisher:      publisher,
		logger:         log.WithComponent(logger, log.ComponentNotify),
		now:            func() time.Time { return time.Now().UTC() },
		BatchSize:      DefaultBatchSize,
		PollInterval:   DefaultPollInterval,
		MaxAttempts:    DefaultMaxAttempts,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
	}
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("Notification dispatcher started", "poll_interval", d.PollInterval, "batch_size", d.BatchSize)
	ticker := time.NewTicker(d.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := d.DispatchOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("Dispatch cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			d.logger.Info("Notification dispatcher stopped")
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce publishes one batch and returns how many rows were sent.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	due, err := d.outbox.Due(ctx, d.now(), d.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("load due notifications: %w", err)
	}

	sent := 0
	for _, n := range due {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		pubErr := d.publisher.Publish(ctx, n)
		if pubErr == nil {
			if err := d.outbox.MarkSent(ctx, n.ID, d.now()); err != nil {
				d.logger.Error("Failed to mark notification sent", log.FieldNotification, n.ID, "error", err)
				continue
			}
			sent++
			continue
		}

		attempts := n.Attempts + 1
		dead := d.MaxAttempts > 0 && attempts >= d.MaxAttempts
		next := d.now().Add(d.backoff(attempts))
		if err := d.outbox.MarkFailed(ctx, n.ID, next, pubErr.Error(), dead); err != nil {
			d.logger.Error("Failed to record notification failure", log.FieldNotification, n.ID, "error", err)
			continue
		}
		if dead {
			d.logger.Error("Notification dead after max attempts",
				log.FieldNotification, n.ID,
				log.FieldUserID, n.UserID,
				"attempts", attempts,
				"error", pubErr)
		} else {
			d.logger.Warn("Notification publish failed, will retry",
				log.FieldNotification, n.ID,
				log.FieldUserID, n.UserID,
				"attempts", attempts,
				"next_attempt_at", next,
				"error", pubErr)
		}
	}

	if len(due) > 0 {
		d.logger.Debug("Dispatch cycle complete", "due", len(due), "sent", sent)
	}
	return sent, nil
}

// backoff returns InitialBackoff doubled per prior attempt, capped at MaxBackoff.
func (d *Dispatcher) backoff(attempts int) time.Duration {
	delay := d.InitialBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= d.MaxBackoff {
			return d.MaxBackoff
		}
	}
	if delay > d.MaxBackoff {
		return d.MaxBackoff
	}
	return delay
}
