package slots

import (
	"context"
	"time"
)

// Store is the typed, transaction-scoped view of slot persistence. A Store is only
// valid inside the Repository.InTx callback that produced it.
type Store interface {
	// LockOwner serializes the rest of the transaction against other
	// transactions holding the same owner's lock.
	LockOwner(ctx context.Context, ownerID string) error

	// FindOverlapping returns the owner's slots, of any status, that overlap iv.
	FindOverlapping(ctx context.Context, ownerID string, iv Interval) ([]Slot, error)
	// FindByID returns an error matching ErrNotFound when id is unknown. The row
	// stays locked until the transaction ends.
	FindByID(ctx context.Context, id string) (Slot, error)
	Insert(ctx context.Context, slot Slot) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	DeleteByID(ctx context.Context, id string) error
	// ListByOwner is ordered by start time ascending.
	ListByOwner(ctx context.Context, ownerID string) ([]Slot, error)
	// DeleteStale removes the owner's AVAILABLE slots ending before now and
	// returns what it removed.
	DeleteStale(ctx context.Context, ownerID string, now time.Time) ([]Slot, error)

	// OwnersWithAvailable lists owners holding at least one AVAILABLE slot.
	OwnersWithAvailable(ctx context.Context) ([]string, error)
	// AvailableProviders groups AVAILABLE slots by owner, ordered by owner id then
	// start time, with the owner's directory name when known.
	AvailableProviders(ctx context.Context) ([]ProviderAvailability, error)

	// Record appends a lifecycle event to be published after commit.
	Record(ctx context.Context, ev Event) error
}

// Repository opens transactions. fn's error rolls the whole transaction back.
type Repository interface {
	InTx(ctx context.Context, fn func(Store) error) error
}

const (
	EventSlotCreated       = "schedule.slot.created.v1"
	EventSlotStatusChanged = "schedule.slot.status_changed.v1"
	EventSlotDeleted       = "schedule.slot.deleted.v1"
	EventSlotReaped        = "schedule.slot.reaped.v1"
)

type Event struct {
	Type           string    `json:"type"`
	Slot           Slot      `json:"slot"`
	PreviousStatus Status    `json:"previousStatus,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}
