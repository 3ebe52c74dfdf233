package slots

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultDuration = 60 * time.Minute

// Engine composes interval generation, conflict detection, the status lifecycle
// and stale-slot reaping over a Repository. It holds no per-request state.
type Engine struct {
	repo            Repository
	now             func() time.Time
	newID           func() string
	defaultDuration time.Duration
	logger          *slog.Logger
	tracer          trace.Tracer
	observer        Observer
}

// Observer receives engine outcome counts, e.g. for metrics.
type Observer interface {
	SlotsCreated(n int)
	Conflict()
	SlotsReaped(n int)
}

type nopObserver struct{}

func (nopObserver) SlotsCreated(int) {}
func (nopObserver) Conflict()        {}
func (nopObserver) SlotsReaped(int)  {}

type Option func(*Engine)

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func WithDefaultDuration(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.defaultDuration = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func NewEngine(repo Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:            repo,
		now:             time.Now,
		newID:           uuid.NewString,
		defaultDuration: DefaultDuration,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:          otel.Tracer("schedule-service/slots"),
		observer:        nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type CreateRequest struct {
	OwnerID   string
	Date      string
	Morning   *Window
	Afternoon *Window
	// Zero means the engine default.
	Duration time.Duration
}

// Schedule is the result of a creation request. A nil side means that window
// was not requested.
type Schedule struct {
	Morning   []Interval
	Afternoon []Interval
}

// CreateSchedule tiles each requested window and persists every interval as an
// AVAILABLE slot. Candidates are checked and inserted in order under the owner's
// lock; the first conflict rolls back the whole request.
func (e *Engine) CreateSchedule(ctx context.Context, req CreateRequest) (Schedule, error) {
	ctx, span := e.tracer.Start(ctx, "slots.CreateSchedule", trace.WithAttributes(attribute.String("owner_id", req.OwnerID)))
	defer span.End()

	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		return Schedule{}, fail(span, InvalidArgument("owner id is required"))
	}
	d := req.Duration
	if d == 0 {
		d = e.defaultDuration
	}
	if err := checkDuration(d); err != nil {
		return Schedule{}, fail(span, err)
	}

	var out Schedule
	var err error
	if req.Morning != nil {
		if out.Morning, err = Generate(req.Date, *req.Morning, d); err != nil {
			return Schedule{}, fail(span, err)
		}
		if out.Morning == nil {
			out.Morning = []Interval{}
		}
	}
	if req.Afternoon != nil {
		if out.Afternoon, err = Generate(req.Date, *req.Afternoon, d); err != nil {
			return Schedule{}, fail(span, err)
		}
		if out.Afternoon == nil {
			out.Afternoon = []Interval{}
		}
	}
	candidates := append(append([]Interval{}, out.Morning...), out.Afternoon...)
	if len(candidates) == 0 {
		return out, nil
	}

	now := e.now()
	err = e.repo.InTx(ctx, func(store Store) error {
		if err := store.LockOwner(ctx, ownerID); err != nil {
			return err
		}
		for _, c := range candidates {
			conflict, err := HasConflict(ctx, store, ownerID, c)
			if err != nil {
				return err
			}
			if conflict {
				e.logger.InfoContext(ctx, "schedule conflict", "owner_id", ownerID, "start", c.Start, "end", c.End)
				return Conflict(MsgScheduleConflict)
			}
			slot := Slot{ID: e.newID(), OwnerID: ownerID, Start: c.Start, End: c.End, Status: StatusAvailable}
			if err := store.Insert(ctx, slot); err != nil {
				return err
			}
			if err := store.Record(ctx, Event{Type: EventSlotCreated, Slot: slot, OccurredAt: now}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			e.observer.Conflict()
		}
		return Schedule{}, fail(span, err)
	}
	e.observer.SlotsCreated(len(candidates))
	span.SetAttributes(attribute.Int("slots_created", len(candidates)))
	return out, nil
}

// Get returns a slot by id without reaping. Handlers use it to authorize
// ownership before mutating.
func (e *Engine) Get(ctx context.Context, id string) (Slot, error) {
	if strings.TrimSpace(id) == "" {
		return Slot{}, InvalidArgument("schedule id is required")
	}
	var slot Slot
	err := e.repo.InTx(ctx, func(store Store) error {
		var err error
		slot, err = store.FindByID(ctx, id)
		return err
	})
	return slot, err
}

func (e *Engine) UpdateStatus(ctx context.Context, id string, status Status) (Slot, error) {
	ctx, span := e.tracer.Start(ctx, "slots.UpdateStatus", trace.WithAttributes(attribute.String("slot_id", id)))
	defer span.End()

	if strings.TrimSpace(id) == "" {
		return Slot{}, fail(span, InvalidArgument("schedule id is required"))
	}
	now := e.now()
	var slot Slot
	err := e.repo.InTx(ctx, func(store Store) error {
		var err error
		slot, err = updateStatus(ctx, store, id, status, now)
		return err
	})
	if err != nil {
		return Slot{}, fail(span, err)
	}
	return slot, nil
}

func (e *Engine) Delete(ctx context.Context, id string) error {
	ctx, span := e.tracer.Start(ctx, "slots.Delete", trace.WithAttributes(attribute.String("slot_id", id)))
	defer span.End()

	if strings.TrimSpace(id) == "" {
		return fail(span, InvalidArgument("schedule id is required"))
	}
	now := e.now()
	err := e.repo.InTx(ctx, func(store Store) error {
		_, err := deleteSlot(ctx, store, id, now)
		return err
	})
	return fail(span, err)
}

// List reaps the owner's stale slots and returns the rest ordered by start time.
func (e *Engine) List(ctx context.Context, ownerID string) ([]Slot, error) {
	ctx, span := e.tracer.Start(ctx, "slots.List", trace.WithAttributes(attribute.String("owner_id", ownerID)))
	defer span.End()

	if strings.TrimSpace(ownerID) == "" {
		return nil, fail(span, InvalidArgument("owner id is required"))
	}
	now := e.now()
	var out []Slot
	var reaped int
	err := e.repo.InTx(ctx, func(store Store) error {
		if err := store.LockOwner(ctx, ownerID); err != nil {
			return err
		}
		n, err := reap(ctx, store, ownerID, now)
		if err != nil {
			return err
		}
		reaped = n
		out, err = store.ListByOwner(ctx, ownerID)
		return err
	})
	if err != nil {
		return nil, fail(span, err)
	}
	e.noteReaped(ctx, ownerID, reaped)
	if out == nil {
		out = []Slot{}
	}
	return out, nil
}

// Reap removes the owner's elapsed AVAILABLE slots and reports how many went.
func (e *Engine) Reap(ctx context.Context, ownerID string) (int, error) {
	return e.reapOwner(ctx, ownerID, e.now())
}

func (e *Engine) reapOwner(ctx context.Context, ownerID string, now time.Time) (int, error) {
	var n int
	err := e.repo.InTx(ctx, func(store Store) error {
		if err := store.LockOwner(ctx, ownerID); err != nil {
			return err
		}
		var err error
		n, err = reap(ctx, store, ownerID, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	e.noteReaped(ctx, ownerID, n)
	return n, nil
}

func (e *Engine) noteReaped(ctx context.Context, ownerID string, n int) {
	if n == 0 {
		return
	}
	e.logger.DebugContext(ctx, "reaped stale slots", "owner_id", ownerID, "count", n)
	e.observer.SlotsReaped(n)
}

// FindAvailableProviders reaps every owner that currently holds AVAILABLE slots,
// then reports each provider that still has at least one.
func (e *Engine) FindAvailableProviders(ctx context.Context) ([]ProviderAvailability, error) {
	ctx, span := e.tracer.Start(ctx, "slots.FindAvailableProviders")
	defer span.End()

	now := e.now()
	var owners []string
	err := e.repo.InTx(ctx, func(store Store) error {
		var err error
		owners, err = store.OwnersWithAvailable(ctx)
		return err
	})
	if err != nil {
		return nil, fail(span, err)
	}
	for _, owner := range owners {
		if _, err := e.reapOwner(ctx, owner, now); err != nil {
			return nil, fail(span, err)
		}
	}

	var out []ProviderAvailability
	err = e.repo.InTx(ctx, func(store Store) error {
		var err error
		out, err = store.AvailableProviders(ctx)
		return err
	})
	if err != nil {
		return nil, fail(span, err)
	}
	if out == nil {
		out = []ProviderAvailability{}
	}
	span.SetAttributes(attribute.Int("providers", len(out)))
	return out, nil
}

// fail records unexpected faults on the span and passes err through.
func fail(span trace.Span, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); !ok {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
