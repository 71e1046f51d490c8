package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/btouchard/taskboard/internal/domain"
)

// Channel is one live push connection. Implementations must be comparable
// (pointer types) since the registry removes channels by identity.
type Channel interface {
	ID() string
	Connected() bool
	Send(ctx context.Context, payload []byte) error
}

// Registry maps recipients to their open channels.
// Channels are kept in connection order. A recipient with no channel has no
// entry in the table.
type Registry struct {
	mu      sync.RWMutex
	buckets map[domain.UserID][]Channel
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{buckets: make(map[domain.UserID][]Channel)}
}

// Connect registers ch under recipient. Registering the same channel twice
// is a caller error.
func (r *Registry) Connect(recipient domain.UserID, ch Channel) {
	r.mu.Lock()
	r.buckets[recipient] = append(r.buckets[recipient], ch)
	n := len(r.buckets[recipient])
	r.mu.Unlock()

	slog.Debug("channel connected",
		"user_id", recipient,
		"channel_id", ch.ID(),
		"channels", n)
}

// Disconnect removes ch from recipient. It is a no-op when either is absent,
// so the read loop, a protocol error and a failed send may all call it.
func (r *Registry) Disconnect(recipient domain.UserID, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, ok := r.buckets[recipient]
	if !ok {
		return
	}

	kept := make([]Channel, 0, len(bucket))
	removed := false
	for _, c := range bucket {
		if c == ch {
			removed = true
			continue
		}
		kept = append(kept, c)
	}
	if !removed {
		return
	}

	if len(kept) == 0 {
		delete(r.buckets, recipient)
	} else {
		r.buckets[recipient] = kept
	}

	slog.Debug("channel disconnected",
		"user_id", recipient,
		"channel_id", ch.ID(),
		"channels", len(kept))
}

// Broadcast delivers payload to every channel of recipient. The lock is only
// held to copy the bucket; delivery happens on the copy, one goroutine per
// channel. Channels that are no longer connected are skipped but left in
// place for their own disconnect path. Delivery errors are logged and never
// returned.
func (r *Registry) Broadcast(ctx context.Context, recipient domain.UserID, payload []byte) {
	r.mu.RLock()
	snapshot := append([]Channel(nil), r.buckets[recipient]...)
	r.mu.RUnlock()

	if len(snapshot) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, ch := range snapshot {
		if !ch.Connected() {
			continue
		}
		wg.Go(func() {
			if err := ch.Send(ctx, payload); err != nil {
				slog.Warn("delivery failed",
					"user_id", recipient,
					"channel_id", ch.ID(),
					"error", err)
			}
		})
	}
	wg.Wait()
}

// Count returns the number of channels open for recipient.
func (r *Registry) Count(recipient domain.UserID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buckets[recipient])
}

// Online returns every recipient with at least one open channel.
func (r *Registry) Online() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]domain.UserID, 0, len(r.buckets))
	for id := range r.buckets {
		ids = append(ids, id)
	}
	return ids
}
