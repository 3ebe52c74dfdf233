package slots

import (
	"context"
	"time"
)

// reap deletes the owner's elapsed AVAILABLE slots. Booked and cancelled history
// is kept. Running it twice with no writes in between is a no-op the second time.
func reap(ctx context.Context, store Store, ownerID string, now time.Time) (int, error) {
	removed, err := store.DeleteStale(ctx, ownerID, now)
	if err != nil {
		return 0, err
	}
	for _, s := range removed {
		if err := store.Record(ctx, Event{Type: EventSlotReaped, Slot: s, OccurredAt: now}); err != nil {
			return 0, err
		}
	}
	return len(removed), nil
}
