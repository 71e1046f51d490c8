package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/btouchard/taskboard/internal/domain"
)

// Observer sees every event the hub fans out, whatever the recipients.
// It is used to mirror events to the admin surface.
type Observer interface {
	Observe(event Event, recipients []domain.UserID)
}

// Notifier is the entry point invoked after a committed mutation.
// Defined here so callers can substitute a recorder in tests.
type Notifier interface {
	Notify(ctx context.Context, event Event, recipients ...domain.UserID)
}

// Hub fans one event out to a set of recipients through a Registry.
type Hub struct {
	registry  *Registry
	observers []Observer
}

// NewHub creates a Hub delivering through registry.
func NewHub(registry *Registry, observers ...Observer) *Hub {
	return &Hub{registry: registry, observers: observers}
}

// Notify encodes event once and broadcasts it to each distinct recipient.
// Recipients are served concurrently with no ordering between them, and a
// failure for one never affects another. Delivery is best effort.
func (h *Hub) Notify(ctx context.Context, event Event, recipients ...domain.UserID) {
	targets := dedupe(recipients)

	for _, o := range h.observers {
		go o.Observe(event, targets)
	}

	if len(targets) == 0 {
		return
	}

	payload, err := event.Encode()
	if err != nil {
		slog.Error("dropping event", "event", event.Kind, "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, id := range targets {
		wg.Go(func() {
			h.registry.Broadcast(ctx, id, payload)
		})
	}
	wg.Wait()

	slog.Debug("event fanned out",
		"event", event.Kind,
		"task_id", event.TaskID,
		"recipients", len(targets))
}

func dedupe(ids []domain.UserID) []domain.UserID {
	seen := make(map[domain.UserID]struct{}, len(ids))
	out := make([]domain.UserID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
