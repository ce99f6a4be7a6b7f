package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sony/gobreaker"
	"github.com/stwalsh4118/roadwarden/internal/resilience"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("gateway")

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 1 << 20

// Options tune the outbound HTTP behaviour shared by every provider.
type Options struct {
	HTTPClient *http.Client
	Retry      resilience.Config
	// OnError is called once per failed provider call.
	OnError func(provider, op string)
	// OnStateChange is called when a provider's circuit breaker changes state.
	OnStateChange func(name string, from, to gobreaker.State)
}

// client performs authenticated JSON calls to one provider.
type client struct {
	http     *http.Client
	cb       *gobreaker.CircuitBreaker
	onError  func(provider, op string)
	provider string
	baseURL  string
	secret   string
	retry    resilience.Config
}

func newClient(provider, baseURL, secret string, opts Options) *client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &client{
		http:     httpClient,
		cb:       resilience.NewCircuitBreaker(provider, opts.OnStateChange),
		onError:  opts.OnError,
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		secret:   secret,
		retry:    opts.Retry,
	}
}

// call sends body as JSON to path and returns the raw response. Only
// idempotent operations should set retry. Provider 4xx responses are not
// retried and do not count against the circuit breaker.
func (c *client) call(ctx context.Context, op, method, path string, body any, retry bool) ([]byte, error) {
	ctx, span := tracer.Start(ctx, c.provider+"."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("gateway.provider", c.provider),
		attribute.String("gateway.op", op),
	)

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, &Error{Provider: c.provider, Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
	}

	cfg := c.retry
	if !retry {
		cfg.MaxRetries = 0
	}

	var raw []byte
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, cfg, func() error {
			var err error
			raw, err = c.do(ctx, op, method, path, payload)
			return err
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if c.onError != nil {
			c.onError(c.provider, op)
		}

		var gwErr *Error
		if errors.As(err, &gwErr) {
			return nil, gwErr
		}
		return nil, &Error{Provider: c.provider, Op: op, Err: err}
	}
	return raw, nil
}

func (c *client) do(ctx context.Context, op, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, resilience.Permanent(&Error{Provider: c.provider, Op: op, Err: fmt.Errorf("create http request: %w", err)})
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Provider: c.provider, Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Provider: c.provider, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 300 {
		gwErr := &Error{
			Provider:   c.provider,
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    providerMessage(raw, resp.Status),
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, resilience.Permanent(gwErr)
		}
		return nil, gwErr
	}
	return raw, nil
}

// providerMessage extracts the "message" field both providers use in error
// bodies, falling back to the HTTP status text.
func providerMessage(raw []byte, fallback string) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return fallback
}
