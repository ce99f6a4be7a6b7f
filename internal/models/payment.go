package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of a payment attempt.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// PaymentMethod is how the payer intends to settle the fine.
type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodUSSD         PaymentMethod = "ussd"
	PaymentMethodMobileMoney  PaymentMethod = "mobile_money"
)

// IsValidPaymentMethod reports whether m is a supported payment method.
func IsValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case PaymentMethodCard, PaymentMethodBankTransfer, PaymentMethodUSSD, PaymentMethodMobileMoney:
		return true
	}
	return false
}

// Payer holds the contact information of whoever pays a fine.
type Payer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Payment is one monetary transaction attempt against exactly one violation.
// Payments created by the same checkout share a PaymentReference.
type Payment struct {
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	GatewayReference *string         `json:"gatewayReference,omitempty"`
	PaymentURL       *string         `json:"paymentUrl,omitempty"`
	PaymentDate      *time.Time      `json:"paymentDate,omitempty"`
	RefundReason     *string         `json:"refundReason,omitempty"`
	RefundDate       *time.Time      `json:"refundDate,omitempty"`
	RefundedBy       *int64          `json:"refundedBy,omitempty"`
	GatewayResponse  json.RawMessage `json:"gatewayResponse,omitempty"`
	Payer            Payer           `json:"payer"`
	PaymentReference string          `json:"paymentReference"`
	Gateway          string          `json:"gateway"`
	Method           PaymentMethod   `json:"method"`
	Status           PaymentStatus   `json:"status"`
	Amount           decimal.Decimal `json:"amount"`
	RefundedAmount   decimal.Decimal `json:"refundedAmount"`
	ID               int64           `json:"id"`
	ViolationID      int64           `json:"violationId"`
}
