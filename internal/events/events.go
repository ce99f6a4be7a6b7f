// Package events publishes domain events for downstream notifiers. This
// service only supplies structured payloads; message formatting and delivery
// belong to the consumers.
package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Type identifies a domain event.
type Type string

const (
	ViolationCreated Type = "violation.created"
	VehicleSuspended Type = "vehicle.suspended"
	PaymentConfirmed Type = "payment.confirmed"
	PaymentRefunded  Type = "payment.refunded"
)

// Recipient is who a notifier should contact about the event.
type Recipient struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Event is the payload published for every domain event.
type Event struct {
	OccurredAt       time.Time        `json:"occurredAt"`
	DueDate          *time.Time       `json:"dueDate,omitempty"`
	Amount           *decimal.Decimal `json:"amount,omitempty"`
	Recipient        Recipient        `json:"recipient"`
	Type             Type             `json:"type"`
	PlateNumber      string           `json:"plateNumber"`
	PaymentReference string           `json:"paymentReference,omitempty"`
	TicketNumbers    []string         `json:"ticketNumbers,omitempty"`
	Points           int              `json:"points,omitempty"`
}

// Publisher delivers domain events. Publish is called after the state change
// has been committed; an error means the event was lost, not that the change
// failed.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
