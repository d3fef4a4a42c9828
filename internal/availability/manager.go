package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/kalos-marketplace/internal/schedule"
	"github.com/wolfman30/kalos-marketplace/pkg/logging"
)

var managerTracer = otel.Tracer("kalos.internal.availability")

const (
	// DefaultHorizonDays bounds how far ahead a base schedule change is applied.
	DefaultHorizonDays = 365

	defaultMaxAttempts = 5
)

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLocation sets the timezone used to decide what "today" is.
func WithLocation(loc *time.Location) ManagerOption {
	return func(m *Manager) {
		if loc != nil {
			m.location = loc
		}
	}
}

// WithHorizonDays sets how many days ahead UpdateBaseSchedule rewrites.
func WithHorizonDays(days int) ManagerOption {
	return func(m *Manager) {
		if days > 0 {
			m.horizonDays = days
		}
	}
}

// WithMaxAttempts bounds compare-and-swap retries per record.
func WithMaxAttempts(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// Manager creates and maintains availability records.
type Manager struct {
	store       Store
	logger      *logging.Logger
	now         func() time.Time
	location    *time.Location
	horizonDays int
	maxAttempts int
}

// NewManager wires a manager over store.
func NewManager(store Store, logger *logging.Logger, opts ...ManagerOption) *Manager {
	if store == nil {
		panic("availability: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	m := &Manager{
		store:       store,
		logger:      logger,
		now:         time.Now,
		location:    time.UTC,
		horizonDays: DefaultHorizonDays,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GenerateResult reports the records created by GenerateAvailability.
type GenerateResult struct {
	GeneratedCount int       `json:"generatedCount"`
	Records        []*Record `json:"records"`
}

// GenerateAvailability creates a record for every date that has none yet.
// Existing dates are left untouched, so repeated calls are harmless.
func (m *Manager) GenerateAvailability(ctx context.Context, professionalID string, dates []string, base schedule.BaseSchedule) (*GenerateResult, error) {
	ctx, span := managerTracer.Start(ctx, "availability.generate")
	defer span.End()
	span.SetAttributes(attribute.String("kalos.professional_id", professionalID), attribute.Int("kalos.dates", len(dates)))

	professionalID = strings.TrimSpace(professionalID)
	if professionalID == "" {
		return nil, fmt.Errorf("%w: professional id required", ErrInvalidRequest)
	}
	base = base.WithDefaults()
	if err := base.Validate(); err != nil {
		return nil, err
	}
	for _, date := range dates {
		if _, err := ParseDate(date); err != nil {
			return nil, err
		}
	}

	result := &GenerateResult{Records: []*Record{}}
	for _, date := range dates {
		existing, err := m.GetByDate(ctx, professionalID, date)
		if err != nil {
			span.RecordError(err)
			return result, err
		}
		if existing != nil {
			continue
		}

		rec := &Record{ProfessionalID: professionalID, Date: date}
		if _, err := rebuild(rec, base, m.now()); err != nil {
			return result, err
		}
		if err := m.store.Create(ctx, rec); err != nil {
			if errors.Is(err, ErrRecordExists) {
				continue
			}
			span.RecordError(err)
			return result, err
		}
		result.Records = append(result.Records, rec)
		result.GeneratedCount++
	}

	m.logger.Info("availability generated", "professional_id", professionalID, "requested", len(dates), "generated", result.GeneratedCount)
	return result, nil
}

// GetByDate returns the record, or nil without error when none exists.
func (m *Manager) GetByDate(ctx context.Context, professionalID, date string) (*Record, error) {
	if _, err := ParseDate(date); err != nil {
		return nil, err
	}
	rec, err := m.store.Get(ctx, professionalID, date)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetRange returns the records between start and end inclusive, ordered by date.
func (m *Manager) GetRange(ctx context.Context, professionalID, startDate, endDate string) ([]*Record, error) {
	from, err := ParseDate(startDate)
	if err != nil {
		return nil, err
	}
	to, err := ParseDate(endDate)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: end %s is before start %s", ErrInvalidDate, endDate, startDate)
	}
	recs, err := m.store.Range(ctx, professionalID, startDate, endDate)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []*Record{}
	}
	return recs, nil
}

// UpdateOptions controls UpdateBaseSchedule.
type UpdateOptions struct {
	// Force applies the change even when confirmed bookings lose their slots.
	Force bool
}

// UpdateResult reports what UpdateBaseSchedule rewrote.
type UpdateResult struct {
	UpdatedCount int      `json:"updatedCount"`
	Orphaned     []Orphan `json:"orphaned"`
}

// UpdateBaseSchedule regenerates every record from today through the horizon
// with base, keeping bookings and active locks on the slots they overlap.
// Without opts.Force nothing is written when a booking would be orphaned;
// the returned result then lists the offending bookings.
func (m *Manager) UpdateBaseSchedule(ctx context.Context, professionalID string, base schedule.BaseSchedule, opts UpdateOptions) (*UpdateResult, error) {
	ctx, span := managerTracer.Start(ctx, "availability.update_base_schedule")
	defer span.End()
	span.SetAttributes(attribute.String("kalos.professional_id", professionalID), attribute.Bool("kalos.force", opts.Force))

	if strings.TrimSpace(professionalID) == "" {
		return nil, fmt.Errorf("%w: professional id required", ErrInvalidRequest)
	}
	base = base.WithDefaults()
	if err := base.Validate(); err != nil {
		return nil, err
	}

	today := m.now().In(m.location)
	startDate := today.Format(DateLayout)
	endDate := today.AddDate(0, 0, m.horizonDays).Format(DateLayout)

	recs, err := m.store.Range(ctx, professionalID, startDate, endDate)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := &UpdateResult{Orphaned: []Orphan{}}
	now := m.now()
	for _, rec := range recs {
		orphans, err := rebuild(rec.Clone(), base, now)
		if err != nil {
			return nil, err
		}
		result.Orphaned = append(result.Orphaned, orphans...)
	}
	if len(result.Orphaned) > 0 && !opts.Force {
		m.logger.Warn("base schedule update rejected", "professional_id", professionalID, "orphaned", len(result.Orphaned))
		return result, fmt.Errorf("%w: %d bookings", ErrOrphanedBookings, len(result.Orphaned))
	}

	// Bookings confirmed after the dry run are re-checked per record.
	result.Orphaned = []Orphan{}
	for _, rec := range recs {
		var recOrphans []Orphan
		_, err := m.mutate(ctx, professionalID, rec.Date, func(r *Record) error {
			orphans, err := rebuild(r, base, m.now())
			if err != nil {
				return err
			}
			if len(orphans) > 0 && !opts.Force {
				return fmt.Errorf("%w: %d bookings on %s", ErrOrphanedBookings, len(orphans), r.Date)
			}
			recOrphans = orphans
			return nil
		})
		if errors.Is(err, ErrRecordNotFound) {
			continue
		}
		if err != nil {
			span.RecordError(err)
			return result, err
		}
		result.Orphaned = append(result.Orphaned, recOrphans...)
		result.UpdatedCount++
	}

	for _, o := range result.Orphaned {
		m.logger.Warn("booking orphaned by base schedule update",
			"professional_id", professionalID, "date", o.Date, "booking_id", o.BookingID, "start", o.Start, "end", o.End)
	}
	m.logger.Info("base schedule updated", "professional_id", professionalID, "updated", result.UpdatedCount, "from", startDate, "to", endDate)
	return result, nil
}

// AddException records an exception on an existing date. An all-day
// exception closes the day; a partial one blocks the slots it intersects.
// Exceptions that would remove or block a confirmed booking are rejected.
func (m *Manager) AddException(ctx context.Context, professionalID, date string, exc Exception) (*Record, error) {
	ctx, span := managerTracer.Start(ctx, "availability.add_exception")
	defer span.End()
	span.SetAttributes(attribute.String("kalos.professional_id", professionalID), attribute.String("kalos.date", date))

	if _, err := ParseDate(date); err != nil {
		return nil, err
	}
	if err := exc.Validate(); err != nil {
		return nil, err
	}
	if exc.AllDay {
		exc.Start, exc.End = "", ""
	}

	rec, err := m.mutate(ctx, professionalID, date, func(r *Record) error {
		for _, s := range r.TimeSlots {
			if s.Booked() && exc.blocks(s) {
				return fmt.Errorf("%w: slot %s is booked", ErrOrphanedBookings, s.Start)
			}
		}
		r.Exceptions = append(r.Exceptions, exc)
		if exc.AllDay {
			r.IsWorkingDay = false
			r.TimeSlots = []schedule.Slot{}
			return nil
		}
		r.applyPartialExceptions()
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	m.logger.Info("availability exception added", "professional_id", professionalID, "date", date, "all_day", exc.AllDay)
	return rec, nil
}

// RemoveException deletes the exception at index. When no all-day exception
// remains the day is regenerated from its stored base schedule.
func (m *Manager) RemoveException(ctx context.Context, professionalID, date string, index int) (*Record, error) {
	ctx, span := managerTracer.Start(ctx, "availability.remove_exception")
	defer span.End()
	span.SetAttributes(attribute.String("kalos.professional_id", professionalID), attribute.String("kalos.date", date))

	if _, err := ParseDate(date); err != nil {
		return nil, err
	}

	rec, err := m.mutate(ctx, professionalID, date, func(r *Record) error {
		if index < 0 || index >= len(r.Exceptions) {
			return fmt.Errorf("%w: index %d out of range", ErrInvalidException, index)
		}
		removed := r.Exceptions[index]
		r.Exceptions = append(r.Exceptions[:index:index], r.Exceptions[index+1:]...)
		if r.hasAllDayException() {
			return nil
		}
		if removed.AllDay {
			_, err := rebuild(r, r.BaseSchedule, m.now())
			return err
		}
		r.applyPartialExceptions()
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	m.logger.Info("availability exception removed", "professional_id", professionalID, "date", date, "index", index)
	return rec, nil
}

// mutate applies fn to a fresh copy of the record and writes it back with a
// version check, retrying on lost races.
func (m *Manager) mutate(ctx context.Context, professionalID, date string, fn func(*Record) error) (*Record, error) {
	var lastErr error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := m.store.Get(ctx, professionalID, date)
		if err != nil {
			return nil, err
		}
		expected := rec.Version
		if err := fn(rec); err != nil {
			return nil, err
		}
		err = m.store.Replace(ctx, rec, expected)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
		lastErr = err
		m.logger.Debug("availability write conflict", "professional_id", professionalID, "date", date, "attempt", attempt)
	}
	return nil, lastErr
}
