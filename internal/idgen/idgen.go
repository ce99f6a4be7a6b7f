// Package idgen generates human-referenceable identifiers for violations and
// payments. Identifiers combine a UTC timestamp with a random suffix drawn
// from a version 4 UUID; uniqueness is finally enforced by the database and
// callers retry on conflict.
package idgen

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ticketPrefix    = "TKT"
	referencePrefix = "PAY"
	ticketSuffix    = 8
	referenceSuffix = 12
)

// Generator produces ticket numbers and payment references.
type Generator interface {
	TicketNumber() string
	PaymentReference() string
}

type generator struct {
	now func() time.Time
}

// New returns a Generator using the wall clock.
func New() Generator {
	return NewWithClock(time.Now)
}

// NewWithClock returns a Generator that reads time from now.
func NewWithClock(now func() time.Time) Generator {
	return &generator{now: now}
}

// TicketNumber returns an identifier such as TKT-20240301-101500-9F86D081.
func (g *generator) TicketNumber() string {
	return g.build(ticketPrefix, ticketSuffix)
}

// PaymentReference returns an identifier such as PAY-20240301-101500-9F86D081884C.
func (g *generator) PaymentReference() string {
	return g.build(referencePrefix, referenceSuffix)
}

func (g *generator) build(prefix string, n int) string {
	ts := g.now().UTC().Format("20060102-150405")
	return prefix + "-" + ts + "-" + randomHex(n)
}

func randomHex(n int) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	// skip the version nibble at index 12
	hex = hex[:12] + hex[13:]
	return strings.ToUpper(hex[:n])
}
