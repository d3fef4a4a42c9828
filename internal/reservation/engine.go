// Package reservation turns availability into holds and bookings without
// double-booking: find-and-lock, confirm, release and reaping of expired locks.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/kalos-marketplace/internal/availability"
	"github.com/wolfman30/kalos-marketplace/internal/observability/metrics"
	"github.com/wolfman30/kalos-marketplace/pkg/logging"
)

var engineTracer = otel.Tracer("kalos.internal.reservation")

const (
	DefaultLockTTL     = 5 * time.Minute
	DefaultMaxAttempts = 4
	DefaultReapBatch   = 100

	defaultBaseBackoff = 25 * time.Millisecond
	maxBackoff         = time.Second
)

// Hold is a short-lived claim on the contiguous slots covering one opening.
type Hold struct {
	ID              string    `json:"id"`
	ProfessionalID  string    `json:"professionalId"`
	Date            string    `json:"date"`
	Start           string    `json:"start"`
	End             string    `json:"end"`
	DurationMinutes int       `json:"durationMinutes"`
	SlotStarts      []string  `json:"slotStarts"`
	LockedUntil     time.Time `json:"lockedUntil"`
}

func (h *Hold) validate() error {
	if h == nil {
		return fmt.Errorf("%w: hold required", ErrInvalidHold)
	}
	if strings.TrimSpace(h.ID) == "" || h.ProfessionalID == "" || h.Date == "" || len(h.SlotStarts) == 0 {
		return fmt.Errorf("%w: id, professional, date and slots required", ErrInvalidHold)
	}
	return nil
}

// ReapResult summarizes one reaper pass.
type ReapResult struct {
	ReapedCount    int `json:"reapedCount"`
	RecordsVisited int `json:"recordsVisited"`
}

// Engine coordinates slot locks on top of an availability.Store.
type Engine struct {
	store       availability.Store
	index       LockIndex
	metrics     *metrics.ReservationMetrics
	logger      *logging.Logger
	now         func() time.Time
	sleep       func(context.Context, time.Duration) error
	lockTTL     time.Duration
	maxAttempts int
	baseBackoff time.Duration
	reapBatch   int
}

// NewEngine builds an engine. A nil index falls back to a process-local one.
func NewEngine(store availability.Store, index LockIndex, logger *logging.Logger) *Engine {
	if store == nil {
		panic("reservation: store cannot be nil")
	}
	if index == nil {
		index = NewMemoryLockIndex()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		store:       store,
		index:       index,
		logger:      logger,
		now:         time.Now,
		sleep:       sleepContext,
		lockTTL:     DefaultLockTTL,
		maxAttempts: DefaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
		reapBatch:   DefaultReapBatch,
	}
}

func (e *Engine) WithLockTTL(d time.Duration) *Engine {
	if d > 0 {
		e.lockTTL = d
	}
	return e
}

func (e *Engine) WithMaxAttempts(n int) *Engine {
	if n > 0 {
		e.maxAttempts = n
	}
	return e
}

func (e *Engine) WithBackoff(base time.Duration) *Engine {
	if base >= 0 {
		e.baseBackoff = base
	}
	return e
}

func (e *Engine) WithReapBatch(n int) *Engine {
	if n > 0 {
		e.reapBatch = n
	}
	return e
}

func (e *Engine) WithMetrics(m *metrics.ReservationMetrics) *Engine {
	e.metrics = m
	return e
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// LockTTL reports how long holds last.
func (e *Engine) LockTTL() time.Duration {
	return e.lockTTL
}

// FindAndLock locks the earliest opening that fits durationMinutes.
func (e *Engine) FindAndLock(ctx context.Context, professionalID, date string, durationMinutes int) (*Hold, error) {
	ctx, span := engineTracer.Start(ctx, "reservation.find_and_lock")
	defer span.End()
	span.SetAttributes(
		attribute.String("kalos.professional_id", professionalID),
		attribute.String("kalos.date", date),
		attribute.Int("kalos.duration_minutes", durationMinutes),
	)
	started := time.Now()
	defer func() { e.metrics.ObserveLatency("find_and_lock", time.Since(started).Seconds()) }()

	if strings.TrimSpace(professionalID) == "" {
		return nil, fmt.Errorf("%w: professional id required", availability.ErrInvalidRequest)
	}
	if _, err := availability.ParseDate(date); err != nil {
		return nil, err
	}
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("%w: %d", availability.ErrInvalidDuration, durationMinutes)
	}

	hold := &Hold{
		ID:              uuid.NewString(),
		ProfessionalID:  professionalID,
		Date:            date,
		DurationMinutes: durationMinutes,
	}
	rec, err := e.update(ctx, "find_and_lock", professionalID, date, func(rec *availability.Record) error {
		now := e.now()
		runs, err := availability.FindRuns(rec, durationMinutes, now)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			return ErrNoSlotAvailable
		}
		run := runs[0]
		until := now.Add(e.lockTTL).UTC()
		hold.Start, hold.End, hold.LockedUntil = run.Start, run.End, until
		hold.SlotStarts = hold.SlotStarts[:0]
		for _, i := range run.Slots {
			rec.TimeSlots[i].Lock(hold.ID, until)
			hold.SlotStarts = append(hold.SlotStarts, rec.TimeSlots[i].Start)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, availability.ErrRecordNotFound) {
			err = ErrNoSlotAvailable
		}
		e.metrics.ObserveHold(outcome(err))
		span.RecordError(err)
		return nil, err
	}

	if err := e.index.Track(ctx, rec.Key(), hold.LockedUntil, e.now()); err != nil {
		e.logger.Warn("lock expiry not indexed", "error", err, "professional_id", professionalID, "date", date, "hold_id", hold.ID)
	}
	e.metrics.ObserveHold("locked")
	span.SetAttributes(attribute.String("kalos.hold_id", hold.ID))
	e.logger.Info("slots locked",
		"professional_id", professionalID, "date", date, "hold_id", hold.ID,
		"start", hold.Start, "end", hold.End, "locked_until", hold.LockedUntil)
	return hold, nil
}

// Inspect rebuilds the hold from the stored record: its bounds, slot starts
// and expiry come from the slots the hold still owns, never from the copy
// the caller presents.
func (e *Engine) Inspect(ctx context.Context, hold *Hold) (*Hold, error) {
	ctx, span := engineTracer.Start(ctx, "reservation.inspect")
	defer span.End()
	if err := hold.validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("kalos.hold_id", hold.ID))

	rec, err := e.store.Get(ctx, hold.ProfessionalID, hold.Date)
	if err != nil {
		if errors.Is(err, availability.ErrRecordNotFound) {
			err = fmt.Errorf("%w: availability record removed", ErrLockExpired)
		}
		span.RecordError(err)
		return nil, err
	}
	c, err := claimFor(rec, hold, "", e.now())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return c.hold(rec, hold)
}

// Confirm turns the hold into a booking and returns the hold as stored.
// Every slot the hold owns is booked, including slots a schedule change
// split its lock across; confirming the same booking twice is a no-op.
func (e *Engine) Confirm(ctx context.Context, hold *Hold, bookingID string) (*Hold, error) {
	ctx, span := engineTracer.Start(ctx, "reservation.confirm")
	defer span.End()
	if err := hold.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(bookingID) == "" {
		return nil, fmt.Errorf("%w: booking id required", ErrInvalidHold)
	}
	span.SetAttributes(attribute.String("kalos.hold_id", hold.ID), attribute.String("kalos.booking_id", bookingID))

	var confirmed *Hold
	_, err := e.update(ctx, "confirm", hold.ProfessionalID, hold.Date, func(rec *availability.Record) error {
		c, err := claimFor(rec, hold, bookingID, e.now())
		if err != nil {
			return err
		}
		if confirmed, err = c.hold(rec, hold); err != nil {
			return err
		}
		if len(c.pending) == 0 {
			return errNoChange
		}
		for _, i := range c.pending {
			rec.TimeSlots[i].Unlock()
			rec.TimeSlots[i].BookingID = bookingID
		}
		return nil
	})
	if errors.Is(err, availability.ErrRecordNotFound) {
		err = fmt.Errorf("%w: availability record removed", ErrLockExpired)
	}
	if err != nil {
		e.metrics.ObserveConfirm(outcome(err))
		span.RecordError(err)
		return nil, err
	}
	e.metrics.ObserveConfirm("confirmed")
	e.logger.Info("hold confirmed",
		"professional_id", hold.ProfessionalID, "date", hold.Date, "hold_id", hold.ID, "booking_id", bookingID,
		"start", confirmed.Start, "end", confirmed.End)
	return confirmed, nil
}

// Release gives the hold's slots back. Slots no longer owned by the hold are
// left alone, so releasing twice is harmless.
func (e *Engine) Release(ctx context.Context, hold *Hold) error {
	ctx, span := engineTracer.Start(ctx, "reservation.release")
	defer span.End()
	if err := hold.validate(); err != nil {
		return err
	}
	span.SetAttributes(attribute.String("kalos.hold_id", hold.ID))

	released := 0
	_, err := e.update(ctx, "release", hold.ProfessionalID, hold.Date, func(rec *availability.Record) error {
		released = 0
		for i := range rec.TimeSlots {
			slot := &rec.TimeSlots[i]
			if slot.Locked && slot.LockID == hold.ID && !slot.Booked() {
				slot.Unlock()
				released++
			}
		}
		if released == 0 {
			return errNoChange
		}
		return nil
	})
	if errors.Is(err, availability.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return err
	}
	if released > 0 {
		e.metrics.ObserveRelease()
		e.logger.Info("hold released", "professional_id", hold.ProfessionalID, "date", hold.Date, "hold_id", hold.ID, "slots", released)
	}
	return nil
}

// claim is the set of slots a hold owns on one record.
type claim struct {
	pending []int // still locked by the hold
	slots   []int // pending plus slots already booked under the booking id
}

// claimFor collects the slots locked by hold (and, when bookingID is set,
// those already booked under it). They must form one contiguous run that
// includes every start the hold lists.
func claimFor(rec *availability.Record, hold *Hold, bookingID string, now time.Time) (*claim, error) {
	c := &claim{}
	owned := make(map[int]bool)
	for i, slot := range rec.TimeSlots {
		switch {
		case bookingID != "" && slot.BookingID == bookingID:
		case !slot.Booked() && slot.HeldBy(hold.ID, now):
			c.pending = append(c.pending, i)
		default:
			continue
		}
		c.slots = append(c.slots, i)
		owned[i] = true
	}
	for _, start := range hold.SlotStarts {
		i := rec.SlotIndex(start)
		if i < 0 {
			return nil, fmt.Errorf("%w: slot %s no longer exists", ErrLockExpired, start)
		}
		if !owned[i] {
			return nil, fmt.Errorf("%w: slot %s", ErrLockExpired, start)
		}
	}
	for k := 1; k < len(c.slots); k++ {
		if rec.TimeSlots[c.slots[k-1]].End != rec.TimeSlots[c.slots[k]].Start {
			return nil, fmt.Errorf("%w: held slots are no longer contiguous", ErrLockExpired)
		}
	}
	return c, nil
}

// hold describes the claim as a Hold. The requested duration is kept when it
// fits inside the claimed span.
func (c *claim) hold(rec *availability.Record, requested *Hold) (*Hold, error) {
	first, last := rec.TimeSlots[c.slots[0]], rec.TimeSlots[c.slots[len(c.slots)-1]]
	start, _, err := first.Minutes()
	if err != nil {
		return nil, err
	}
	_, end, err := last.Minutes()
	if err != nil {
		return nil, err
	}
	span := end - start

	duration := requested.DurationMinutes
	if duration <= 0 {
		duration = span
	}
	if duration > span {
		return nil, fmt.Errorf("%w: hold covers %d minutes, %d requested", ErrInvalidHold, span, duration)
	}

	out := &Hold{
		ID:              requested.ID,
		ProfessionalID:  rec.ProfessionalID,
		Date:            rec.Date,
		Start:           first.Start,
		End:             last.End,
		DurationMinutes: duration,
		SlotStarts:      make([]string, 0, len(c.slots)),
	}
	for _, i := range c.slots {
		out.SlotStarts = append(out.SlotStarts, rec.TimeSlots[i].Start)
		if until := rec.TimeSlots[i].LockedUntil; until != nil && (out.LockedUntil.IsZero() || until.Before(out.LockedUntil)) {
			out.LockedUntil = *until
		}
	}
	return out, nil
}

// CancelBooking frees every slot occupied by bookingID and returns how many
// were cleared.
func (e *Engine) CancelBooking(ctx context.Context, professionalID, date, bookingID string) (int, error) {
	ctx, span := engineTracer.Start(ctx, "reservation.cancel_booking")
	defer span.End()
	if strings.TrimSpace(bookingID) == "" {
		return 0, fmt.Errorf("%w: booking id required", availability.ErrInvalidRequest)
	}
	span.SetAttributes(attribute.String("kalos.booking_id", bookingID))

	cleared := 0
	_, err := e.update(ctx, "cancel_booking", professionalID, date, func(rec *availability.Record) error {
		cleared = 0
		for i := range rec.TimeSlots {
			if rec.TimeSlots[i].BookingID == bookingID {
				rec.TimeSlots[i].BookingID = ""
				cleared++
			}
		}
		if cleared == 0 {
			return errNoChange
		}
		return nil
	})
	if errors.Is(err, availability.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if cleared > 0 {
		e.logger.Info("booking slots freed", "professional_id", professionalID, "date", date, "booking_id", bookingID, "slots", cleared)
	}
	return cleared, nil
}

// ReapExpiredLocks clears locks whose expiry has passed on the records the
// lock index reports as due. Offerability never depends on this running.
func (e *Engine) ReapExpiredLocks(ctx context.Context, now time.Time) (*ReapResult, error) {
	ctx, span := engineTracer.Start(ctx, "reservation.reap")
	defer span.End()

	entries, err := e.index.Due(ctx, now, e.reapBatch)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := &ReapResult{}
	for _, entry := range entries {
		reaped := 0
		rec, err := e.update(ctx, "reap", entry.Key.ProfessionalID, entry.Key.Date, func(rec *availability.Record) error {
			reaped = 0
			for i := range rec.TimeSlots {
				if rec.TimeSlots[i].LockExpired(now) {
					rec.TimeSlots[i].Unlock()
					reaped++
				}
			}
			if reaped == 0 {
				return errNoChange
			}
			return nil
		})
		if errors.Is(err, availability.ErrRecordNotFound) {
			if err := e.index.Settle(ctx, entry, nil); err != nil {
				e.logger.Warn("lock index settle failed", "error", err, "record", entry.Key.String())
			}
			continue
		}
		if err != nil {
			e.logger.Error("reap failed", "error", err, "professional_id", entry.Key.ProfessionalID, "date", entry.Key.Date)
			continue
		}

		result.RecordsVisited++
		result.ReapedCount += reaped

		var next *time.Time
		if earliest, ok := rec.EarliestLockExpiry(now); ok {
			next = &earliest
		}
		if err := e.index.Settle(ctx, entry, next); err != nil {
			e.logger.Warn("lock index settle failed", "error", err, "record", entry.Key.String())
		}
	}

	e.metrics.ObserveReaped(result.ReapedCount)
	span.SetAttributes(attribute.Int("kalos.reaped", result.ReapedCount), attribute.Int("kalos.records_visited", result.RecordsVisited))
	if result.ReapedCount > 0 {
		e.logger.Info("expired locks reaped", "reaped", result.ReapedCount, "records", result.RecordsVisited)
	}
	return result, nil
}

// update runs fn against the latest record and writes it back with a
// version check. Lost races and transient store errors are retried with
// exponential backoff; errors from fn end the loop.
func (e *Engine) update(ctx context.Context, op, professionalID, date string, fn func(*availability.Record) error) (*availability.Record, error) {
	var lastErr error
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := e.sleep(ctx, e.nextDelay(attempt)); err != nil {
				return nil, err
			}
		}

		rec, err := e.store.Get(ctx, professionalID, date)
		if err != nil {
			if permanent(err) {
				return nil, err
			}
			lastErr = err
			continue
		}

		expected := rec.Version
		if err := fn(rec); err != nil {
			if errors.Is(err, errNoChange) {
				return rec, nil
			}
			return nil, err
		}

		err = e.store.Replace(ctx, rec, expected)
		if err == nil {
			return rec, nil
		}
		if permanent(err) {
			return nil, err
		}
		if errors.Is(err, availability.ErrConflict) {
			e.metrics.ObserveConflict(op)
		}
		lastErr = err
		e.logger.Debug("reservation write retry", "operation", op, "professional_id", professionalID, "date", date, "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("%w: %s gave up after %d attempts: %v", ErrConflict, op, e.maxAttempts, lastErr)
}

func (e *Engine) nextDelay(attempt int) time.Duration {
	delay := e.baseBackoff * time.Duration(1<<(attempt-1))
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

func permanent(err error) bool {
	return errors.Is(err, availability.ErrRecordNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		availability.IsValidation(err)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoSlotAvailable):
		return "no_slot"
	case errors.Is(err, ErrLockExpired):
		return "expired"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
