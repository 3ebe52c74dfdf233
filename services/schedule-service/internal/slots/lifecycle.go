package slots

import (
	"context"
	"time"
)

// updateStatus and deleteSlot are keyed by slot id alone. Callers authorize
// ownership before reaching them.

// updateStatus checks existence, then the status value, then elapsed.
func updateStatus(ctx context.Context, store Store, id string, status Status, now time.Time) (Slot, error) {
	slot, err := store.FindByID(ctx, id)
	if err != nil {
		return Slot{}, err
	}
	if status, err = ParseStatus(string(status)); err != nil {
		return Slot{}, err
	}
	if slot.Elapsed(now) {
		return Slot{}, Conflict(MsgScheduleIsPast)
	}
	if err := store.UpdateStatus(ctx, id, status); err != nil {
		return Slot{}, err
	}
	prev := slot.Status
	slot.Status = status
	if err := store.Record(ctx, Event{Type: EventSlotStatusChanged, Slot: slot, PreviousStatus: prev, OccurredAt: now}); err != nil {
		return Slot{}, err
	}
	return slot, nil
}

func deleteSlot(ctx context.Context, store Store, id string, now time.Time) (Slot, error) {
	slot, err := store.FindByID(ctx, id)
	if err != nil {
		return Slot{}, err
	}
	if slot.Elapsed(now) {
		return Slot{}, Conflict(MsgScheduleIsPast)
	}
	if err := store.DeleteByID(ctx, id); err != nil {
		return Slot{}, err
	}
	if err := store.Record(ctx, Event{Type: EventSlotDeleted, Slot: slot, OccurredAt: now}); err != nil {
		return Slot{}, err
	}
	return slot, nil
}
