package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/kalos-marketplace/internal/reservation"
	"github.com/wolfman30/kalos-marketplace/pkg/logging"
)

var bookingsTracer = otel.Tracer("kalos.internal.bookings")

type reserver interface {
	FindAndLock(ctx context.Context, professionalID, date string, durationMinutes int) (*reservation.Hold, error)
	Inspect(ctx context.Context, hold *reservation.Hold) (*reservation.Hold, error)
	Confirm(ctx context.Context, hold *reservation.Hold, bookingID string) (*reservation.Hold, error)
	Release(ctx context.Context, hold *reservation.Hold) error
	CancelBooking(ctx context.Context, professionalID, date, bookingID string) (int, error)
}

// CreateRequest describes a booking to place. When Hold is set its slots are
// confirmed directly; otherwise the earliest fitting opening is locked first.
// Date and DurationMinutes are required either way and must match the hold.
type CreateRequest struct {
	ProfessionalID  string            `json:"professionalId"`
	CustomerID      string            `json:"customerId"`
	ServiceID       string            `json:"serviceId,omitempty"`
	Date            string            `json:"date"`
	DurationMinutes int               `json:"durationMinutes"`
	PaymentMethod   string            `json:"paymentMethod,omitempty"`
	Hold            *reservation.Hold `json:"hold,omitempty"`
}

func (r CreateRequest) validate() error {
	if strings.TrimSpace(r.ProfessionalID) == "" || strings.TrimSpace(r.CustomerID) == "" {
		return fmt.Errorf("%w: professional and customer required", ErrInvalidBooking)
	}
	if strings.TrimSpace(r.Date) == "" || r.DurationMinutes <= 0 {
		return fmt.Errorf("%w: date and positive duration required", ErrInvalidBooking)
	}
	if r.Hold == nil {
		return nil
	}
	switch {
	case r.Hold.ProfessionalID != r.ProfessionalID:
		return fmt.Errorf("%w: hold belongs to another professional", ErrInvalidBooking)
	case r.Hold.Date != r.Date:
		return fmt.Errorf("%w: hold is for %s, not %s", ErrInvalidBooking, r.Hold.Date, r.Date)
	case r.Hold.DurationMinutes != r.DurationMinutes:
		return fmt.Errorf("%w: hold is for %d minutes, not %d", ErrInvalidBooking, r.Hold.DurationMinutes, r.DurationMinutes)
	}
	return nil
}

// Service places bookings on top of the reservation engine.
type Service struct {
	store  Store
	engine reserver
	logger *logging.Logger
}

// NewService constructs a bookings service.
func NewService(store Store, engine reserver, logger *logging.Logger) *Service {
	if store == nil {
		panic("bookings: store required")
	}
	if engine == nil {
		panic("bookings: reservation engine required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, engine: engine, logger: logger}
}

// Create locks slots, records the booking and confirms the lock. A supplied
// hold is re-read from the availability record first, so the booking's
// bounds are always the ones the slots carry. Failures after the lock was
// taken give the slots back.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Booking, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("kalos.professional_id", req.ProfessionalID),
		attribute.String("kalos.date", req.Date),
	)

	if err := req.validate(); err != nil {
		return nil, err
	}

	var (
		hold *reservation.Hold
		err  error
	)
	if req.Hold != nil {
		hold, err = s.engine.Inspect(ctx, req.Hold)
	} else {
		hold, err = s.engine.FindAndLock(ctx, req.ProfessionalID, req.Date, req.DurationMinutes)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	booking := &Booking{
		ID:              uuid.NewString(),
		ProfessionalID:  hold.ProfessionalID,
		CustomerID:      req.CustomerID,
		ServiceID:       req.ServiceID,
		Date:            hold.Date,
		Start:           hold.Start,
		End:             hold.End,
		DurationMinutes: hold.DurationMinutes,
		PaymentMethod:   req.PaymentMethod,
		HoldID:          hold.ID,
		Status:          StatusPending,
	}
	span.SetAttributes(attribute.String("kalos.booking_id", booking.ID))

	if err := s.store.Create(ctx, booking); err != nil {
		span.RecordError(err)
		s.release(ctx, hold)
		return nil, fmt.Errorf("bookings: record booking: %w", err)
	}

	confirmed, err := s.engine.Confirm(ctx, hold, booking.ID)
	if err == nil && (confirmed.Start != booking.Start || confirmed.End != booking.End) {
		// The schedule was regranulated between Inspect and Confirm.
		if _, cerr := s.engine.CancelBooking(ctx, booking.ProfessionalID, booking.Date, booking.ID); cerr != nil {
			s.logger.Error("failed to free slots of mismatched booking", "error", cerr, "booking_id", booking.ID)
		}
		err = fmt.Errorf("%w: hold moved to %s-%s", reservation.ErrLockExpired, confirmed.Start, confirmed.End)
	}
	if err != nil {
		span.RecordError(err)
		if _, uerr := s.store.UpdateStatus(ctx, booking.ID, []Status{StatusPending}, StatusCancelled); uerr != nil {
			s.logger.Error("failed to cancel unconfirmed booking", "error", uerr, "booking_id", booking.ID)
		}
		s.release(ctx, hold)
		return nil, err
	}

	stored, err := s.store.UpdateStatus(ctx, booking.ID, []Status{StatusPending}, StatusConfirmed)
	if err != nil {
		// The slots already carry the booking; leave it pending rather than
		// invite a retry that would book twice.
		s.logger.Warn("booking slots confirmed but status update failed", "error", err, "booking_id", booking.ID)
		return booking, nil
	}

	s.logger.Info("booking confirmed",
		"professional_id", stored.ProfessionalID, "customer_id", stored.CustomerID,
		"booking_id", stored.ID, "date", stored.Date, "start", stored.Start, "end", stored.End)
	return stored, nil
}

// Get returns a booking by id.
func (s *Service) Get(ctx context.Context, id string) (*Booking, error) {
	return s.store.Get(ctx, id)
}

// Cancel marks the booking cancelled and frees its slots. Cancelling an
// already cancelled booking retries the slot release.
func (s *Service) Cancel(ctx context.Context, id string) (*Booking, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("kalos.booking_id", id))

	booking, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status != StatusCancelled {
		booking, err = s.store.UpdateStatus(ctx, id, cancellable, StatusCancelled)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	freed, err := s.engine.CancelBooking(ctx, booking.ProfessionalID, booking.Date, booking.ID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("bookings: free slots: %w", err)
	}
	s.logger.Info("booking cancelled", "booking_id", id, "professional_id", booking.ProfessionalID, "date", booking.Date, "slots_freed", freed)
	return booking, nil
}

func (s *Service) release(ctx context.Context, hold *reservation.Hold) {
	if err := s.engine.Release(ctx, hold); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("failed to release hold", "error", err, "hold_id", hold.ID)
	}
}
