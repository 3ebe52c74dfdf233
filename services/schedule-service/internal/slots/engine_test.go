package slots

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestEngine(repo *memRepo, now time.Time) *Engine {
	var seq atomic.Int64
	return NewEngine(repo,
		WithClock(func() time.Time { return now }),
		WithIDGenerator(func() string { return fmt.Sprintf("slot-%03d", seq.Add(1)) }),
	)
}

func TestCreateScheduleEndToEnd(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	engine := newTestEngine(repo, time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC))

	out, err := engine.CreateSchedule(ctx, CreateRequest{
		OwnerID: "P1",
		Date:    "2030-05-10",
		Morning: &Window{Start: "09:00", End: "10:30"},
	})
	if err != nil {
		t.Fatalf("CreateSchedule failed: %v", err)
	}
	if out.Afternoon != nil {
		t.Fatalf("afternoon not requested, got %+v", out.Afternoon)
	}
	want := []Interval{{
		Start: time.Date(2030, 5, 10, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2030, 5, 10, 10, 0, 0, 0, time.UTC),
	}}
	if !reflect.DeepEqual(out.Morning, want) {
		t.Fatalf("unexpected morning %+v", out.Morning)
	}

	list, err := engine.List(ctx, "P1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 || list[0].Status != StatusAvailable || list[0].OwnerID != "P1" {
		t.Fatalf("unexpected list %+v", list)
	}

	_, err = engine.CreateSchedule(ctx, CreateRequest{
		OwnerID: "P1",
		Date:    "2030-05-10",
		Morning: &Window{Start: "09:30", End: "10:30"},
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	e, _ := AsError(err)
	if e.Message != MsgScheduleConflict {
		t.Fatalf("unexpected message %q", e.Message)
	}
}

func TestCreateScheduleTouchingWindowsSucceed(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	engine := newTestEngine(repo, time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC))

	out, err := engine.CreateSchedule(ctx, CreateRequest{
		OwnerID:   "P1",
		Date:      "2030-05-10",
		Morning:   &Window{Start: "08:00", End: "12:00"},
		Afternoon: &Window{Start: "12:00", End: "14:00"},
		Duration:  30 * time.Minute,
	})
	if err != nil {
		t.Fatalf("CreateSchedule failed: %v", err)
	}
	if len(out.Morning) != 8 || len(out.Afternoon) != 4 {
		t.Fatalf("unexpected counts morning=%d afternoon=%d", len(out.Morning), len(out.Afternoon))
	}
	if got := len(repo.snapshot()); got != 12 {
		t.Fatalf("expected 12 stored slots, got %d", got)
	}
	types := repo.eventTypes()
	if len(types) != 12 || types[0] != EventSlotCreated {
		t.Fatalf("unexpected events %v", types)
	}
}

func TestCreateScheduleOverlapRollsBackWholeBatch(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	engine := newTestEngine(repo, time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC))

	_, err := engine.CreateSchedule(ctx, CreateRequest{
		OwnerID:   "P1",
		Date:      "2030-05-10",
		Morning:   &Window{Start: "08:00", End: "12:00"},
		Afternoon: &Window{Start: "11:59", End: "14:00"},
		Duration:  60 * time.Minute,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if got := len(repo.snapshot()); got != 0 {
		t.Fatalf("expected nothing persisted, got %d slots", got)
	}
	if len(repo.eventTypes()) != 0 {
		t.Fatal("expected no events after rollback")
	}
}

func TestCreateScheduleConflictsWithCancelledSlot(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	repo.put(Slot{ID: "old", OwnerID: "P1", Start: time.Date(2030, 5, 10, 9, 0, 0, 0, time.UTC), End: time.Date(2030, 5, 10, 10, 0, 0, 0, time.UTC), Status: StatusCancelled})
	engine := newTestEngine(repo, time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC))

	_, err := engine.CreateSchedule(ctx, CreateRequest{OwnerID: "P1", Date: "2030-05-10", Morning: &Window{Start: "09:00", End: "10:00"}})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateScheduleOtherOwnerIndependent(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	engine := newTestEngine(repo, time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC))
	req := CreateRequest{OwnerID: "P1", Date: "2030-05-10", Morning: &Window{Start: "09:00", End: "10:00"}}
	if _, err := engine.CreateSchedule(ctx, req); err != nil {
		t.Fatalf("CreateSchedule failed: %v", err)
	}
	req.OwnerID = "P2"
	if _, err := engine.CreateSchedule(ctx, req); err != nil {
		t.Fatalf("CreateSchedule for second owner failed: %v", err)
	}
}

func TestCreateScheduleValidation(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	engine := newTestEngine(repo, time.Now())

	out, err := engine.CreateSchedule(ctx, CreateRequest{OwnerID: "P1", Date: "2030-05-10"})
	if err != nil {
		t.Fatalf("no windows should not fail: %v", err)
	}
	if out.Morning != nil || out.Afternoon != nil {
		t.Fatalf("expected empty result, got %+v", out)
	}

	out, err = engine.CreateSchedule(ctx, CreateRequest{OwnerID: "P1", Date: "2030-05-10", Morning: &Window{"09:00", "09:30"}})
	if err != nil {
		t.Fatalf("short window should not fail: %v", err)
	}
	if out.Morning == nil || len(out.Morning) != 0 {
		t.Fatalf("expected empty morning slice, got %#v", out.Morning)
	}

	cases := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{"missing owner", CreateRequest{Date: "2030-05-10", Morning: &Window{"09:00", "10:00"}}, ErrInvalidArgument},
		{"negative duration", CreateRequest{OwnerID: "P1", Date: "2030-05-10", Morning: &Window{"09:00", "10:00"}, Duration: -time.Minute}, ErrInvalidArgument},
		{"sub-minute duration", CreateRequest{OwnerID: "P1", Date: "2030-05-10", Morning: &Window{"09:00", "10:00"}, Duration: 2048 * time.Nanosecond}, ErrInvalidArgument},
		{"duration over a day", CreateRequest{OwnerID: "P1", Date: "2030-05-10", Morning: &Window{"09:00", "10:00"}, Duration: MaxDuration + time.Minute}, ErrInvalidArgument},
		{"reversed window", CreateRequest{OwnerID: "P1", Date: "2030-05-10", Morning: &Window{"10:00", "09:00"}}, ErrInvalidInterval},
		{"bad afternoon", CreateRequest{OwnerID: "P1", Date: "2030-05-10", Morning: &Window{"09:00", "10:00"}, Afternoon: &Window{"xx", "15:00"}}, ErrInvalidInterval},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := engine.CreateSchedule(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if got := len(repo.snapshot()); got != 0 {
		t.Fatalf("validation failures persisted %d slots", got)
	}
}

func TestConcurrentCreatesForSameOwner(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	engine := newTestEngine(repo, time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC))

	var wg sync.WaitGroup
	var ok, conflicts atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.CreateSchedule(ctx, CreateRequest{OwnerID: "P1", Date: "2030-05-10", Morning: &Window{"09:00", "12:00"}})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok.Load() != 1 || conflicts.Load() != 7 {
		t.Fatalf("expected 1 success and 7 conflicts, got %d and %d", ok.Load(), conflicts.Load())
	}
	if got := len(repo.snapshot()); got != 3 {
		t.Fatalf("expected 3 slots, got %d", got)
	}
}

func TestUpdateStatusAndDelete(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2030, 5, 10, 12, 0, 0, 0, time.UTC)
	repo := newMemRepo()
	repo.put(Slot{ID: "past", OwnerID: "P1", Start: now.Add(-2 * time.Hour), End: now.Add(-time.Hour), Status: StatusAvailable})
	repo.put(Slot{ID: "future", OwnerID: "P1", Start: now.Add(time.Hour), End: now.Add(2 * time.Hour), Status: StatusAvailable})
	repo.put(Slot{ID: "future2", OwnerID: "P1", Start: now.Add(3 * time.Hour), End: now.Add(4 * time.Hour), Status: StatusBooked})
	engine := newTestEngine(repo, now)

	if _, err := engine.UpdateStatus(ctx, "past", StatusBooked); !errors.Is(err, ErrConflict) {
		t.Fatalf("update past: expected ErrConflict, got %v", err)
	} else if e, _ := AsError(err); e.Message != MsgScheduleIsPast {
		t.Fatalf("unexpected message %q", e.Message)
	}
	if err := engine.Delete(ctx, "past"); !errors.Is(err, ErrConflict) {
		t.Fatalf("delete past: expected ErrConflict, got %v", err)
	}

	slot, err := engine.UpdateStatus(ctx, "future", Status("occupied"))
	if err != nil {
		t.Fatalf("update future failed: %v", err)
	}
	if slot.Status != StatusBooked || repo.snapshot()["future"].Status != StatusBooked {
		t.Fatalf("status not persisted: %+v", slot)
	}

	if _, err := engine.UpdateStatus(ctx, "future", Status("PENDING")); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := engine.UpdateStatus(ctx, "missing", StatusCancelled); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := engine.UpdateStatus(ctx, "missing", Status("PENDING")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown id is reported before a bad status, got %v", err)
	}
	if _, err := engine.UpdateStatus(ctx, "past", Status("PENDING")); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("bad status is reported before elapsed, got %v", err)
	}
	if err := engine.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// deletion ignores the current status
	if err := engine.Delete(ctx, "future2"); err != nil {
		t.Fatalf("delete booked future slot failed: %v", err)
	}
	if _, ok := repo.snapshot()["future2"]; ok {
		t.Fatal("slot still present after delete")
	}
	if _, ok := repo.snapshot()["past"]; !ok {
		t.Fatal("past slot must survive rejected delete")
	}

	types := repo.eventTypes()
	if !reflect.DeepEqual(types, []string{EventSlotStatusChanged, EventSlotDeleted}) {
		t.Fatalf("unexpected events %v", types)
	}
}

func TestSlotEndingExactlyNowIsNotPast(t *testing.T) {
	now := time.Date(2030, 5, 10, 12, 0, 0, 0, time.UTC)
	repo := newMemRepo()
	repo.put(Slot{ID: "edge", OwnerID: "P1", Start: now.Add(-time.Hour), End: now, Status: StatusAvailable})
	engine := newTestEngine(repo, now)
	if _, err := engine.UpdateStatus(context.Background(), "edge", StatusCancelled); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestReapIsIdempotentAndKeepsHistory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2030, 5, 10, 12, 0, 0, 0, time.UTC)
	repo := newMemRepo()
	repo.put(Slot{ID: "stale", OwnerID: "P1", Start: now.Add(-3 * time.Hour), End: now.Add(-2 * time.Hour), Status: StatusAvailable})
	repo.put(Slot{ID: "booked", OwnerID: "P1", Start: now.Add(-2 * time.Hour), End: now.Add(-time.Hour), Status: StatusBooked})
	repo.put(Slot{ID: "cancelled", OwnerID: "P1", Start: now.Add(-5 * time.Hour), End: now.Add(-4 * time.Hour), Status: StatusCancelled})
	repo.put(Slot{ID: "future", OwnerID: "P1", Start: now.Add(time.Hour), End: now.Add(2 * time.Hour), Status: StatusAvailable})
	repo.put(Slot{ID: "other", OwnerID: "P2", Start: now.Add(-3 * time.Hour), End: now.Add(-2 * time.Hour), Status: StatusAvailable})
	engine := newTestEngine(repo, now)

	n, err := engine.Reap(ctx, "P1")
	if err != nil || n != 1 {
		t.Fatalf("first reap: n=%d err=%v", n, err)
	}
	after := repo.snapshot()

	n, err = engine.Reap(ctx, "P1")
	if err != nil || n != 0 {
		t.Fatalf("second reap: n=%d err=%v", n, err)
	}
	if !reflect.DeepEqual(after, repo.snapshot()) {
		t.Fatal("second reap changed the store")
	}
	for _, id := range []string{"booked", "cancelled", "future", "other"} {
		if _, ok := after[id]; !ok {
			t.Fatalf("%s must survive reaping", id)
		}
	}
	if _, ok := after["stale"]; ok {
		t.Fatal("stale slot not reaped")
	}
}

func TestListReapsAndOrders(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2030, 5, 10, 12, 0, 0, 0, time.UTC)
	repo := newMemRepo()
	repo.put(Slot{ID: "c", OwnerID: "P1", Start: now.Add(3 * time.Hour), End: now.Add(4 * time.Hour), Status: StatusAvailable})
	repo.put(Slot{ID: "a", OwnerID: "P1", Start: now.Add(-3 * time.Hour), End: now.Add(-2 * time.Hour), Status: StatusBooked})
	repo.put(Slot{ID: "stale", OwnerID: "P1", Start: now.Add(-2 * time.Hour), End: now.Add(-time.Hour), Status: StatusAvailable})
	repo.put(Slot{ID: "b", OwnerID: "P1", Start: now.Add(time.Hour), End: now.Add(2 * time.Hour), Status: StatusCancelled})
	engine := newTestEngine(repo, now)

	list, err := engine.List(ctx, "P1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var ids []string
	for _, s := range list {
		ids = append(ids, s.ID)
	}
	if !reflect.DeepEqual(ids, []string{"a", "b", "c"}) {
		t.Fatalf("unexpected order %v", ids)
	}
	if !reflect.DeepEqual(repo.eventTypes(), []string{EventSlotReaped}) {
		t.Fatalf("unexpected events %v", repo.eventTypes())
	}

	empty, err := engine.List(ctx, "nobody")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil list, got %v err=%v", empty, err)
	}
	if _, err := engine.List(ctx, " "); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestFindAvailableProviders(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2030, 5, 10, 12, 0, 0, 0, time.UTC)
	repo := newMemRepo()
	repo.names["P1"] = "Dr. Ada"
	// P1 has one live slot, P2 only a stale one, P3 only bookings.
	repo.put(Slot{ID: "p1-live", OwnerID: "P1", Start: now.Add(time.Hour), End: now.Add(2 * time.Hour), Status: StatusAvailable})
	repo.put(Slot{ID: "p1-booked", OwnerID: "P1", Start: now.Add(3 * time.Hour), End: now.Add(4 * time.Hour), Status: StatusBooked})
	repo.put(Slot{ID: "p2-stale", OwnerID: "P2", Start: now.Add(-2 * time.Hour), End: now.Add(-time.Hour), Status: StatusAvailable})
	repo.put(Slot{ID: "p3-booked", OwnerID: "P3", Start: now.Add(time.Hour), End: now.Add(2 * time.Hour), Status: StatusBooked})
	engine := newTestEngine(repo, now)

	got, err := engine.FindAvailableProviders(ctx)
	if err != nil {
		t.Fatalf("FindAvailableProviders failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one provider, got %+v", got)
	}
	if got[0].ProviderID != "P1" || got[0].Name != "Dr. Ada" {
		t.Fatalf("unexpected provider %+v", got[0])
	}
	if len(got[0].AvailableSlots) != 1 || got[0].AvailableSlots[0].ID != "p1-live" {
		t.Fatalf("unexpected slots %+v", got[0].AvailableSlots)
	}
	if _, ok := repo.snapshot()["p2-stale"]; ok {
		t.Fatal("stale slot of P2 should have been reaped")
	}
}

func TestParseStatus(t *testing.T) {
	cases := map[string]Status{
		"AVAILABLE":   StatusAvailable,
		"booked":      StatusBooked,
		"OCCUPIED":    StatusBooked,
		" Cancelled ": StatusCancelled,
	}
	for raw, want := range cases {
		got, err := ParseStatus(raw)
		if err != nil || got != want {
			t.Fatalf("ParseStatus(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseStatus(""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestErrorKindsAreDistinct(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Conflict(MsgScheduleIsPast))
	if !errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
		t.Fatal("kind matching is wrong")
	}
	e, ok := AsError(err)
	if !ok || e.Kind != KindConflict || e.Message != MsgScheduleIsPast {
		t.Fatalf("unexpected AsError result %+v %v", e, ok)
	}
	if _, ok := AsError(errors.New("boom")); ok {
		t.Fatal("plain errors are not engine errors")
	}
}

type countingObserver struct {
	created, conflicts, reaped int
}

func (o *countingObserver) SlotsCreated(n int) { o.created += n }
func (o *countingObserver) Conflict()          { o.conflicts++ }
func (o *countingObserver) SlotsReaped(n int)  { o.reaped += n }

func TestObserverCounts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC)
	repo := newMemRepo()
	repo.put(Slot{ID: "stale", OwnerID: "P1", Start: now.Add(-2 * time.Hour), End: now.Add(-time.Hour), Status: StatusAvailable})
	obs := &countingObserver{}
	engine := NewEngine(repo, WithClock(func() time.Time { return now }), WithObserver(obs))

	req := CreateRequest{OwnerID: "P1", Date: "2030-05-10", Morning: &Window{"09:00", "11:00"}}
	if _, err := engine.CreateSchedule(ctx, req); err != nil {
		t.Fatalf("CreateSchedule failed: %v", err)
	}
	if _, err := engine.CreateSchedule(ctx, req); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := engine.List(ctx, "P1"); err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if obs.created != 2 || obs.conflicts != 1 || obs.reaped != 1 {
		t.Fatalf("unexpected counts %+v", obs)
	}
}
