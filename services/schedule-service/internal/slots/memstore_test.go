package slots

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memRepo is an in-memory Repository. Transactions are serialized and work on a
// copy that is discarded when fn fails.
type memRepo struct {
	mu     sync.Mutex
	slots  map[string]Slot
	names  map[string]string
	events []Event
	locks  []string
}

func newMemRepo() *memRepo {
	return &memRepo{slots: map[string]Slot{}, names: map[string]string{}}
}

func (r *memRepo) InTx(ctx context.Context, fn func(Store) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memTx{slots: make(map[string]Slot, len(r.slots)), names: r.names}
	for k, v := range r.slots {
		tx.slots[k] = v
	}
	if err := fn(tx); err != nil {
		return err
	}
	r.slots = tx.slots
	r.events = append(r.events, tx.events...)
	r.locks = append(r.locks, tx.locks...)
	return nil
}

func (r *memRepo) put(s Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[s.ID] = s
}

func (r *memRepo) snapshot() map[string]Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Slot, len(r.slots))
	for k, v := range r.slots {
		out[k] = v
	}
	return out
}

func (r *memRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type memTx struct {
	slots  map[string]Slot
	names  map[string]string
	events []Event
	locks  []string
}

func (t *memTx) LockOwner(ctx context.Context, ownerID string) error {
	t.locks = append(t.locks, ownerID)
	return nil
}

func (t *memTx) FindOverlapping(ctx context.Context, ownerID string, iv Interval) ([]Slot, error) {
	var out []Slot
	for _, s := range t.slots {
		if s.OwnerID == ownerID && s.Interval().Overlaps(iv) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (t *memTx) FindByID(ctx context.Context, id string) (Slot, error) {
	s, ok := t.slots[id]
	if !ok {
		return Slot{}, NotFound(MsgScheduleNotFound)
	}
	return s, nil
}

func (t *memTx) Insert(ctx context.Context, slot Slot) error {
	t.slots[slot.ID] = slot
	return nil
}

func (t *memTx) UpdateStatus(ctx context.Context, id string, status Status) error {
	s, ok := t.slots[id]
	if !ok {
		return NotFound(MsgScheduleNotFound)
	}
	s.Status = status
	t.slots[id] = s
	return nil
}

func (t *memTx) DeleteByID(ctx context.Context, id string) error {
	if _, ok := t.slots[id]; !ok {
		return NotFound(MsgScheduleNotFound)
	}
	delete(t.slots, id)
	return nil
}

func (t *memTx) ListByOwner(ctx context.Context, ownerID string) ([]Slot, error) {
	var out []Slot
	for _, s := range t.slots {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	sortSlots(out)
	return out, nil
}

func (t *memTx) DeleteStale(ctx context.Context, ownerID string, now time.Time) ([]Slot, error) {
	var removed []Slot
	for id, s := range t.slots {
		if s.OwnerID == ownerID && s.Stale(now) {
			removed = append(removed, s)
			delete(t.slots, id)
		}
	}
	sortSlots(removed)
	return removed, nil
}

func (t *memTx) OwnersWithAvailable(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, s := range t.slots {
		if s.Status == StatusAvailable && !seen[s.OwnerID] {
			seen[s.OwnerID] = true
			out = append(out, s.OwnerID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (t *memTx) AvailableProviders(ctx context.Context) ([]ProviderAvailability, error) {
	owners, _ := t.OwnersWithAvailable(ctx)
	out := make([]ProviderAvailability, 0, len(owners))
	for _, owner := range owners {
		all, _ := t.ListByOwner(ctx, owner)
		var avail []Slot
		for _, s := range all {
			if s.Status == StatusAvailable {
				avail = append(avail, s)
			}
		}
		out = append(out, ProviderAvailability{ProviderID: owner, Name: t.names[owner], AvailableSlots: avail})
	}
	return out, nil
}

func (t *memTx) Record(ctx context.Context, ev Event) error {
	t.events = append(t.events, ev)
	return nil
}

func sortSlots(s []Slot) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Start.Equal(s[j].Start) {
			return s[i].ID < s[j].ID
		}
		return s[i].Start.Before(s[j].Start)
	})
}

var _ Store = (*memTx)(nil)
