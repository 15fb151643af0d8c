// Package notify fans change events and purchase attempts out to the
// configured channels. Delivery is fire-and-forget: a failing channel
// is logged and never blocks the poll loop or the other channels.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/takuyadev/amazon-price-watcher/internal/models"
)

// Event is the payload every channel receives. Exactly one of Snapshot
// or Attempt is set depending on the kind.
type Event struct {
	ID       uuid.UUID               `json:"id"`
	Kind     string                  `json:"kind"`
	ASIN     models.ASIN             `json:"asin"`
	At       time.Time               `json:"at"`
	Snapshot *models.Snapshot        `json:"snapshot,omitempty"`
	Attempt  *models.PurchaseAttempt `json:"attempt,omitempty"`
}

// ChangeEvent builds the notification payload for a classified change.
func ChangeEvent(event models.ChangeEvent) Event {
	snap := event.Current
	return Event{
		ID:       uuid.New(),
		Kind:     string(event.Kind),
		ASIN:     event.ASIN,
		At:       snap.ObservedAt,
		Snapshot: &snap,
	}
}

// AttemptEvent builds the notification payload for a purchase attempt.
func AttemptEvent(attempt models.PurchaseAttempt) Event {
	return Event{
		ID:      uuid.New(),
		Kind:    "PURCHASE_" + string(attempt.Outcome),
		ASIN:    attempt.ASIN,
		At:      attempt.DecidedAt,
		Attempt: &attempt,
	}
}

// Notifier delivers one event to one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, event Event) error
}

// Dispatcher delivers events to every channel, isolating failures.
type Dispatcher struct {
	notifiers []Notifier
	logger    *slog.Logger
}

func NewDispatcher(notifiers []Notifier) *Dispatcher {
	return &Dispatcher{
		notifiers: notifiers,
		logger:    slog.Default().With("component", "notify"),
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	for _, n := range d.notifiers {
		if err := n.Notify(ctx, event); err != nil {
			d.logger.Warn("notification delivery failed",
				"channel", n.Name(), "kind", event.Kind, "asin", event.ASIN, "error", err)
			continue
		}
		d.logger.Debug("notification delivered",
			"channel", n.Name(), "kind", event.Kind, "asin", event.ASIN)
	}
}
