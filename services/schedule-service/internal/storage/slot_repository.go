package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/carebook/carebook/libs/db"
	"github.com/carebook/carebook/services/schedule-service/internal/outbox"
	"github.com/carebook/carebook/services/schedule-service/internal/slots"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SlotRepository is the Postgres implementation of slots.Repository.
type SlotRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewSlotRepository(pool *db.Pool, outboxRepo *outbox.Repository) *SlotRepository {
	return &SlotRepository{pool: pool, outbox: outboxRepo}
}

func (r *SlotRepository) InTx(ctx context.Context, fn func(slots.Store) error) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		return fn(&slotStore{tx: tx, outbox: r.outbox})
	})
}

type slotStore struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

const slotColumns = `id::text, owner_id, start_time, end_time, status`

func scanSlot(row pgx.Row) (slots.Slot, error) {
	var s slots.Slot
	var status string
	if err := row.Scan(&s.ID, &s.OwnerID, &s.Start, &s.End, &status); err != nil {
		return slots.Slot{}, err
	}
	s.Status = slots.Status(status)
	s.Start = s.Start.UTC()
	s.End = s.End.UTC()
	return s, nil
}

func collectSlots(rows pgx.Rows) ([]slots.Slot, error) {
	defer rows.Close()
	var out []slots.Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (s *slotStore) LockOwner(ctx context.Context, ownerID string) error {
	_, err := s.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ownerID)
	return err
}

func (s *slotStore) FindOverlapping(ctx context.Context, ownerID string, iv slots.Interval) ([]slots.Slot, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT `+slotColumns+`
		FROM schedule_slots
		WHERE owner_id = $1
			AND NOT (start_time >= $3 OR end_time <= $2)
		ORDER BY start_time
	`, ownerID, iv.Start, iv.End)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (s *slotStore) FindByID(ctx context.Context, id string) (slots.Slot, error) {
	if _, err := uuid.Parse(id); err != nil {
		return slots.Slot{}, slots.NotFound(slots.MsgScheduleNotFound)
	}
	slot, err := scanSlot(s.tx.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM schedule_slots
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return slots.Slot{}, mapError(err)
	}
	return slot, nil
}

func (s *slotStore) Insert(ctx context.Context, slot slots.Slot) error {
	_, err := s.tx.Exec(ctx, `
		INSERT INTO schedule_slots (id, owner_id, start_time, end_time, status)
		VALUES ($1, $2, $3, $4, $5)
	`, slot.ID, slot.OwnerID, slot.Start, slot.End, string(slot.Status))
	return mapError(err)
}

func (s *slotStore) UpdateStatus(ctx context.Context, id string, status slots.Status) error {
	tag, err := s.tx.Exec(ctx, `
		UPDATE schedule_slots
		SET status = $2, updated_at = now()
		WHERE id = $1
	`, id, string(status))
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return slots.NotFound(slots.MsgScheduleNotFound)
	}
	return nil
}

func (s *slotStore) DeleteByID(ctx context.Context, id string) error {
	tag, err := s.tx.Exec(ctx, `DELETE FROM schedule_slots WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return slots.NotFound(slots.MsgScheduleNotFound)
	}
	return nil
}

func (s *slotStore) ListByOwner(ctx context.Context, ownerID string) ([]slots.Slot, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT `+slotColumns+`
		FROM schedule_slots
		WHERE owner_id = $1
		ORDER BY start_time, id
	`, ownerID)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (s *slotStore) DeleteStale(ctx context.Context, ownerID string, now time.Time) ([]slots.Slot, error) {
	rows, err := s.tx.Query(ctx, `
		DELETE FROM schedule_slots
		WHERE owner_id = $1 AND status = 'AVAILABLE' AND end_time < $2
		RETURNING `+slotColumns, ownerID, now)
	if err != nil {
		return nil, err
	}
	return collectSlots(rows)
}

func (s *slotStore) OwnersWithAvailable(ctx context.Context) ([]string, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT DISTINCT owner_id
		FROM schedule_slots
		WHERE status = 'AVAILABLE'
		ORDER BY owner_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *slotStore) AvailableProviders(ctx context.Context) ([]slots.ProviderAvailability, error) {
	rows, err := s.tx.Query(ctx, `
		SELECT s.id::text, s.owner_id, s.start_time, s.end_time, s.status, COALESCE(p.name, '')
		FROM schedule_slots s
		LEFT JOIN providers p ON p.id = s.owner_id
		WHERE s.status = 'AVAILABLE'
		ORDER BY s.owner_id, s.start_time, s.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []slots.ProviderAvailability
	for rows.Next() {
		var slot slots.Slot
		var status, name string
		if err := rows.Scan(&slot.ID, &slot.OwnerID, &slot.Start, &slot.End, &status, &name); err != nil {
			return nil, err
		}
		slot.Status = slots.Status(status)
		slot.Start = slot.Start.UTC()
		slot.End = slot.End.UTC()

		if n := len(out); n == 0 || out[n-1].ProviderID != slot.OwnerID {
			out = append(out, slots.ProviderAvailability{ProviderID: slot.OwnerID, Name: name})
		}
		last := &out[len(out)-1]
		last.AvailableSlots = append(last.AvailableSlots, slot)
	}
	return out, rows.Err()
}

// slotEventPayload is the JSON body of schedule.slot.* events.
type slotEventPayload struct {
	SlotID         string    `json:"slot_id"`
	OwnerID        string    `json:"owner_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func encodeEvent(ev slots.Event) (outbox.Event, error) {
	payload, err := json.Marshal(slotEventPayload{
		SlotID:         ev.Slot.ID,
		OwnerID:        ev.Slot.OwnerID,
		StartTime:      ev.Slot.Start,
		EndTime:        ev.Slot.End,
		Status:         string(ev.Slot.Status),
		PreviousStatus: string(ev.PreviousStatus),
		OccurredAt:     ev.OccurredAt.UTC(),
	})
	if err != nil {
		return outbox.Event{}, fmt.Errorf("encode %s: %w", ev.Type, err)
	}
	return outbox.Event{
		AggregateType: "schedule_slot",
		AggregateID:   ev.Slot.OwnerID,
		EventType:     ev.Type,
		Payload:       payload,
	}, nil
}

func (s *slotStore) Record(ctx context.Context, ev slots.Event) error {
	out, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, s.tx, out)
}

var _ slots.Repository = (*SlotRepository)(nil)
var _ slots.Store = (*slotStore)(nil)
