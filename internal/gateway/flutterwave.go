package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
)

// FlutterwaveName is the registry name of the Flutterwave gateway.
const FlutterwaveName = "flutterwave"

// Flutterwave talks to the Flutterwave v3 API. Amounts are sent in major
// units and webhooks are signed with HMAC-SHA256 of the raw body using the
// dashboard webhook secret. Refunds are not supported through this service.
type Flutterwave struct {
	c             *client
	webhookSecret string
}

// NewFlutterwave creates a Flutterwave gateway.
func NewFlutterwave(secretKey, webhookSecret, baseURL string, opts Options) *Flutterwave {
	return &Flutterwave{
		c:             newClient(FlutterwaveName, baseURL, secretKey, opts),
		webhookSecret: webhookSecret,
	}
}

func (f *Flutterwave) Name() string { return FlutterwaveName }

func (f *Flutterwave) SignatureHeader() string { return "verif-hash" }

type flutterwaveEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (f *Flutterwave) decode(op string, raw []byte, data any) error {
	var env flutterwaveEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &Error{Provider: FlutterwaveName, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if env.Status != "success" {
		return &Error{Provider: FlutterwaveName, Op: op, Message: env.Message}
	}
	if err := json.Unmarshal(env.Data, data); err != nil {
		return &Error{Provider: FlutterwaveName, Op: op, Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}

func (f *Flutterwave) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	body := map[string]any{
		"tx_ref":       req.Reference,
		"amount":       req.Amount.StringFixed(2),
		"currency":     req.Currency,
		"redirect_url": req.CallbackURL,
		"customer": map[string]string{
			"email":       req.Email,
			"name":        req.Name,
			"phonenumber": req.Phone,
		},
		"meta": req.Metadata,
	}

	raw, err := f.c.call(ctx, "initialize", http.MethodPost, "/payments", body, false)
	if err != nil {
		return nil, err
	}

	var data struct {
		Link string `json:"link"`
	}
	if err := f.decode("initialize", raw, &data); err != nil {
		return nil, err
	}

	return &InitializeResult{
		RedirectURL:       data.Link,
		ProviderReference: req.Reference,
		Raw:               raw,
	}, nil
}

func (f *Flutterwave) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	path := "/transactions/verify_by_reference?tx_ref=" + url.QueryEscape(reference)
	raw, err := f.c.call(ctx, "verify", http.MethodGet, path, nil, true)
	if err != nil {
		return nil, err
	}

	var data struct {
		Status string          `json:"status"`
		TxRef  string          `json:"tx_ref"`
		Amount decimal.Decimal `json:"amount"`
		ID     int64           `json:"id"`
	}
	if err := f.decode("verify", raw, &data); err != nil {
		return nil, err
	}

	var status Status
	switch data.Status {
	case "successful":
		status = StatusSuccess
	case "failed", "cancelled":
		status = StatusFailed
	default:
		status = StatusPending
	}

	return &VerifyResult{
		Status:                status,
		ProviderTransactionID: strconv.FormatInt(data.ID, 10),
		Amount:                data.Amount,
		Raw:                   raw,
	}, nil
}

func (f *Flutterwave) Refund(_ context.Context, _ string, _ decimal.Decimal) (*RefundResult, error) {
	return nil, ErrRefundUnsupported
}

func (f *Flutterwave) VerifyWebhookSignature(payload []byte, signature string) bool {
	return verifyHexHMAC(sha256.New, []byte(f.webhookSecret), payload, signature)
}

func (f *Flutterwave) ExtractReference(payload []byte) (string, error) {
	var body struct {
		Data struct {
			TxRef string `json:"tx_ref"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoReference, err)
	}
	if body.Data.TxRef == "" {
		return "", ErrNoReference
	}
	return body.Data.TxRef, nil
}
