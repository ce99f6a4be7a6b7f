package services

import (
	"context"

	"github.com/stwalsh4118/roadwarden/internal/events"
	"github.com/stwalsh4118/roadwarden/internal/logger"
)

// Recorder receives domain counters. *metrics.Metrics implements it.
type Recorder interface {
	ViolationsCreated(n int)
	SuspensionTriggered()
	PaymentResolved(gateway, status string)
	RefundProcessed(gateway, kind string)
	SignatureFailure(gateway string)
}

type nopRecorder struct{}

func (nopRecorder) ViolationsCreated(int)          {}
func (nopRecorder) SuspensionTriggered()           {}
func (nopRecorder) PaymentResolved(string, string) {}
func (nopRecorder) RefundProcessed(string, string) {}
func (nopRecorder) SignatureFailure(string)        {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}

// publish sends an event after a commit. A failure is logged and never
// undoes the committed change. The request context is detached so a client
// that disconnects after the commit does not lose the event.
func publish(ctx context.Context, p events.Publisher, log *logger.Logger, event events.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(context.WithoutCancel(ctx), event); err != nil {
		log.Error("Failed to publish domain event", err, map[string]interface{}{
			"event_type": string(event.Type),
			"plate":      event.PlateNumber,
		})
	}
}
