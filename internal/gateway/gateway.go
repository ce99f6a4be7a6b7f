// Package gateway isolates third-party payment processors behind a common
// interface. Amount units, endpoints and webhook signature schemes are
// provider-specific and never leak out of this package.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Status is the outcome a provider reports for a transaction.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	// StatusPending means the provider has not settled the transaction yet.
	StatusPending Status = "pending"
)

var (
	// ErrUnknownGateway is returned by Registry.Get for unregistered names.
	ErrUnknownGateway = errors.New("unknown payment gateway")
	// ErrRefundUnsupported is returned by providers without a refund path.
	ErrRefundUnsupported = errors.New("refunds are not supported by this gateway")
	// ErrNoReference is returned when a webhook payload carries no reference.
	ErrNoReference = errors.New("webhook payload has no transaction reference")
)

// InitializeRequest describes a checkout to open with a provider.
type InitializeRequest struct {
	Metadata    map[string]string
	Email       string
	Name        string
	Phone       string
	Reference   string
	Currency    string
	CallbackURL string
	Amount      decimal.Decimal
}

// InitializeResult is the provider's answer to a checkout request.
type InitializeResult struct {
	RedirectURL       string
	ProviderReference string
	Raw               json.RawMessage
}

// VerifyResult is the provider's view of a transaction.
type VerifyResult struct {
	Status                Status
	ProviderTransactionID string
	Amount                decimal.Decimal
	Raw                   json.RawMessage
}

// RefundResult is the provider's answer to a refund request.
type RefundResult struct {
	Raw json.RawMessage
}

// Gateway is one payment provider.
type Gateway interface {
	Name() string
	Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
	Refund(ctx context.Context, providerReference string, amount decimal.Decimal) (*RefundResult, error)

	// SignatureHeader is the HTTP header carrying the webhook signature.
	SignatureHeader() string
	// VerifyWebhookSignature checks signature against the raw payload in
	// constant time.
	VerifyWebhookSignature(payload []byte, signature string) bool
	// ExtractReference returns the payment reference a webhook refers to.
	ExtractReference(payload []byte) (string, error)
}

// Error is a failed call to a provider. Message holds the provider's own
// description when one was returned.
type Error struct {
	Err        error
	Provider   string
	Op         string
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed (HTTP %d): %s", e.Provider, e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Provider, e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Registry resolves gateways by name.
type Registry struct {
	gateways map[string]Gateway
}

// NewRegistry creates a registry holding gws.
func NewRegistry(gws ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gws))}
	for _, g := range gws {
		r.gateways[g.Name()] = g
	}
	return r
}

// Get returns the gateway registered under name.
func (r *Registry) Get(name string) (Gateway, error) {
	g, ok := r.gateways[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, name)
	}
	return g, nil
}

// Names returns the registered gateway names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
