package bookings

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// cancellable lists the statuses a booking may be cancelled from.
var cancellable = []Status{StatusPending, StatusAccepted, StatusConfirmed}

var (
	ErrBookingNotFound   = errors.New("bookings: booking not found")
	ErrBookingExists     = errors.New("bookings: booking already exists")
	ErrInvalidBooking    = errors.New("bookings: invalid booking")
	ErrInvalidTransition = errors.New("bookings: invalid status transition")
)

// Booking ties a customer to the slots it occupies on a professional's day.
type Booking struct {
	ID              string    `dynamodbav:"bookingId" json:"id"`
	ProfessionalID  string    `dynamodbav:"professionalId" json:"professionalId"`
	CustomerID      string    `dynamodbav:"customerId" json:"customerId"`
	ServiceID       string    `dynamodbav:"serviceId,omitempty" json:"serviceId,omitempty"`
	Date            string    `dynamodbav:"date" json:"date"`
	Start           string    `dynamodbav:"start" json:"start"`
	End             string    `dynamodbav:"end" json:"end"`
	DurationMinutes int       `dynamodbav:"durationMinutes" json:"durationMinutes"`
	PaymentMethod   string    `dynamodbav:"paymentMethod,omitempty" json:"paymentMethod,omitempty"`
	HoldID          string    `dynamodbav:"holdId,omitempty" json:"holdId,omitempty"`
	Status          Status    `dynamodbav:"status" json:"status"`
	CreatedAt       time.Time `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time `dynamodbav:"updatedAt" json:"updatedAt"`
}

func statusIn(s Status, allowed []Status) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}
