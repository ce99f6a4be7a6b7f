package gateway

import (
	"context"
	"crypto/sha512"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
)

// PaystackName is the registry name of the Paystack gateway.
const PaystackName = "paystack"

// Paystack talks to the Paystack API. Amounts are sent in kobo and webhooks
// are signed with HMAC-SHA512 of the raw body using the secret key.
type Paystack struct {
	c *client
}

// NewPaystack creates a Paystack gateway.
func NewPaystack(secretKey, baseURL string, opts Options) *Paystack {
	return &Paystack{c: newClient(PaystackName, baseURL, secretKey, opts)}
}

func (p *Paystack) Name() string { return PaystackName }

func (p *Paystack) SignatureHeader() string { return "x-paystack-signature" }

// paystackEnvelope is the response shape shared by every Paystack endpoint.
type paystackEnvelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Status  bool            `json:"status"`
}

func (p *Paystack) decode(op string, raw []byte, data any) error {
	var env paystackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &Error{Provider: PaystackName, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if !env.Status {
		return &Error{Provider: PaystackName, Op: op, Message: env.Message}
	}
	if data != nil {
		if err := json.Unmarshal(env.Data, data); err != nil {
			return &Error{Provider: PaystackName, Op: op, Err: fmt.Errorf("decode data: %w", err)}
		}
	}
	return nil
}

func (p *Paystack) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	body := map[string]any{
		"email":     req.Email,
		"amount":    toMinorUnits(req.Amount),
		"reference": req.Reference,
		"currency":  req.Currency,
		"metadata":  req.Metadata,
	}
	if req.CallbackURL != "" {
		body["callback_url"] = req.CallbackURL
	}

	raw, err := p.c.call(ctx, "initialize", http.MethodPost, "/transaction/initialize", body, false)
	if err != nil {
		return nil, err
	}

	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := p.decode("initialize", raw, &data); err != nil {
		return nil, err
	}

	return &InitializeResult{
		RedirectURL:       data.AuthorizationURL,
		ProviderReference: data.AccessCode,
		Raw:               raw,
	}, nil
}

func (p *Paystack) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	raw, err := p.c.call(ctx, "verify", http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, true)
	if err != nil {
		return nil, err
	}

	var data struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		ID        int64  `json:"id"`
	}
	if err := p.decode("verify", raw, &data); err != nil {
		return nil, err
	}

	var status Status
	switch data.Status {
	case "success":
		status = StatusSuccess
	case "failed", "abandoned", "reversed":
		status = StatusFailed
	default:
		status = StatusPending
	}

	return &VerifyResult{
		Status:                status,
		ProviderTransactionID: strconv.FormatInt(data.ID, 10),
		Amount:                fromMinorUnits(data.Amount),
		Raw:                   raw,
	}, nil
}

func (p *Paystack) Refund(ctx context.Context, providerReference string, amount decimal.Decimal) (*RefundResult, error) {
	body := map[string]any{
		"transaction": providerReference,
		"amount":      toMinorUnits(amount),
	}

	raw, err := p.c.call(ctx, "refund", http.MethodPost, "/refund", body, false)
	if err != nil {
		return nil, err
	}
	if err := p.decode("refund", raw, nil); err != nil {
		return nil, err
	}
	return &RefundResult{Raw: raw}, nil
}

func (p *Paystack) VerifyWebhookSignature(payload []byte, signature string) bool {
	return verifyHexHMAC(sha512.New, []byte(p.c.secret), payload, signature)
}

func (p *Paystack) ExtractReference(payload []byte) (string, error) {
	var body struct {
		Data struct {
			Reference string `json:"reference"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoReference, err)
	}
	if body.Data.Reference == "" {
		return "", ErrNoReference
	}
	return body.Data.Reference, nil
}
