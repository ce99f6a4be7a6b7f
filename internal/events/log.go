package events

import (
	"context"

	"github.com/stwalsh4118/roadwarden/internal/logger"
)

// LogPublisher records events in the application log. It is used when no
// broker is configured.
type LogPublisher struct {
	log *logger.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	fields := map[string]interface{}{
		"event_type": string(event.Type),
		"plate":      event.PlateNumber,
	}
	if len(event.TicketNumbers) > 0 {
		fields["tickets"] = event.TicketNumbers
	}
	if event.PaymentReference != "" {
		fields["payment_reference"] = event.PaymentReference
	}
	if event.Amount != nil {
		fields["amount"] = event.Amount.StringFixed(2)
	}
	p.log.Info("Domain event", fields)
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
