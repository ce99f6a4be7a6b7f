package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	apierrors "github.com/stwalsh4118/roadwarden/internal/errors"
	"github.com/stwalsh4118/roadwarden/internal/gateway"
	"github.com/stwalsh4118/roadwarden/internal/middleware"
	"github.com/stwalsh4118/roadwarden/internal/models"
	"github.com/stwalsh4118/roadwarden/internal/repository"
	"github.com/stwalsh4118/roadwarden/internal/services"
)

// maxWebhookBytes caps the webhook body read for signature verification.
const maxWebhookBytes = 1 << 20

// PaymentHandler handles payment HTTP requests and provider webhooks.
type PaymentHandler struct {
	service  services.PaymentService
	gateways *gateway.Registry
}

// NewPaymentHandler creates a new PaymentHandler instance. gateways is used
// to find the signature header of each provider's webhooks.
func NewPaymentHandler(service services.PaymentService, gateways *gateway.Registry) *PaymentHandler {
	return &PaymentHandler{
		service:  service,
		gateways: gateways,
	}
}

// PayerRequest holds the contact details of whoever pays.
type PayerRequest struct {
	Name  string `json:"name" binding:"max=255"`
	Email string `json:"email" binding:"required,email"`
	Phone string `json:"phone" binding:"max=20"`
}

// InitiatePaymentRequest is the body of POST /api/v1/payments.
type InitiatePaymentRequest struct {
	Payer        PayerRequest         `json:"payer"`
	Method       models.PaymentMethod `json:"method" binding:"required,oneof=card bank_transfer ussd mobile_money"`
	Gateway      string               `json:"gateway" binding:"required"`
	ViolationIDs []int64              `json:"violationIds" binding:"required,min=1,max=50,unique,dive,gt=0"`
}

// VerifyPaymentRequest is the body of POST /api/v1/payments/verify. Gateway
// defaults to the one the checkout was opened with.
type VerifyPaymentRequest struct {
	PaymentReference string `json:"paymentReference" binding:"required,max=64"`
	Gateway          string `json:"gateway"`
	GatewayReference string `json:"gatewayReference"`
}

// RefundRequest is the body of POST /api/v1/payments/:id/refund.
type RefundRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" binding:"required,max=1000"`
}

// StatisticsRequest represents the query parameters for the statistics
// endpoint. From is inclusive and To exclusive, both as UTC dates.
type StatisticsRequest struct {
	From    time.Time `form:"from" time_format:"2006-01-02" time_utc:"1"`
	To      time.Time `form:"to" time_format:"2006-01-02" time_utc:"1"`
	Gateway string    `form:"gateway"`
}

// PaymentsResponse lists the payments sharing a reference.
type PaymentsResponse struct {
	PaymentReference string           `json:"paymentReference"`
	Payments         []models.Payment `json:"payments"`
	TotalAmount      decimal.Decimal  `json:"totalAmount"`
}

// PaymentResponse wraps a single payment.
type PaymentResponse struct {
	Payment *models.Payment `json:"payment"`
}

// WebhookResponse acknowledges a processed webhook.
type WebhookResponse struct {
	Status string `json:"status"`
}

// Register mounts the payment routes under rg.
func (h *PaymentHandler) Register(rg *gin.RouterGroup) {
	payments := rg.Group("/payments")
	{
		payments.POST("", h.Initiate)
		payments.POST("/verify", h.Verify)
		payments.POST("/webhook/:gateway", h.Webhook)
		payments.POST("/:id/refund", h.Refund)
		payments.GET("/statistics", h.Statistics)
		payments.GET("/reference/:reference", h.GetByReference)
	}
}

// Initiate handles POST /api/v1/payments.
func (h *PaymentHandler) Initiate(c *gin.Context) {
	var req InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "Invalid request body")
		return
	}

	result, err := h.service.Initiate(c.Request.Context(), services.InitiateInput{
		Payer: models.Payer{
			Name:  req.Payer.Name,
			Email: req.Payer.Email,
			Phone: req.Payer.Phone,
		},
		Method:       req.Method,
		Gateway:      req.Gateway,
		ViolationIDs: req.ViolationIDs,
	})
	if err != nil {
		serviceError(c, err, "Failed to initiate payment")
		return
	}

	c.JSON(http.StatusCreated, result)
}

// Verify handles POST /api/v1/payments/verify. A reference that was already
// resolved is reported with alreadyProcessed set rather than as an error.
func (h *PaymentHandler) Verify(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "Invalid request body")
		return
	}

	result, err := h.service.Verify(c.Request.Context(), req.PaymentReference, req.Gateway, req.GatewayReference)
	if err != nil {
		serviceError(c, err, "Failed to verify payment")
		return
	}

	c.JSON(http.StatusOK, result)
}

// Webhook handles POST /api/v1/payments/webhook/:gateway. The raw body is
// passed through untouched because the provider signs the exact bytes.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	name := c.Param("gateway")
	gw, err := h.gateways.Get(name)
	if err != nil {
		apierrors.NotFound(c, "Unknown payment gateway")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
	if err != nil {
		apierrors.BadRequest(c, "Failed to read request body", nil)
		return
	}

	if err := h.service.HandleWebhook(c.Request.Context(), name, c.GetHeader(gw.SignatureHeader()), payload); err != nil {
		serviceError(c, err, "Failed to process webhook")
		return
	}

	c.JSON(http.StatusOK, WebhookResponse{Status: "received"})
}

// Refund handles POST /api/v1/payments/:id/refund.
func (h *PaymentHandler) Refund(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	actor, ok := requiredActor(c, "refund payments")
	if !ok {
		return
	}

	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "Invalid request body")
		return
	}

	payment, err := h.service.Refund(c.Request.Context(), id, req.Amount, req.Reason, actor)
	if err != nil {
		serviceError(c, err, "Failed to refund payment")
		return
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Info("Refund processed", map[string]interface{}{
			"payment_id": id,
			"amount":     req.Amount.String(),
			"status":     string(payment.Status),
			"actor_id":   actor,
		})
	}

	c.JSON(http.StatusOK, PaymentResponse{Payment: payment})
}

// Statistics handles GET /api/v1/payments/statistics.
func (h *PaymentHandler) Statistics(c *gin.Context) {
	var req StatisticsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, err, "Invalid query parameters; dates use YYYY-MM-DD")
		return
	}

	filter := repository.StatsFilter{Gateway: req.Gateway}
	if !req.From.IsZero() {
		filter.From = &req.From
	}
	if !req.To.IsZero() {
		filter.To = &req.To
	}
	if filter.From != nil && filter.To != nil && !filter.To.After(*filter.From) {
		apierrors.BadRequest(c, "to must be after from", nil)
		return
	}

	report, err := h.service.Statistics(c.Request.Context(), filter)
	if err != nil {
		serviceError(c, err, "Failed to compute payment statistics")
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetByReference handles GET /api/v1/payments/reference/:reference.
func (h *PaymentHandler) GetByReference(c *gin.Context) {
	reference := c.Param("reference")
	payments, err := h.service.GetByReference(c.Request.Context(), reference)
	if err != nil {
		serviceError(c, err, "Failed to load payments")
		return
	}

	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}

	c.JSON(http.StatusOK, PaymentsResponse{
		PaymentReference: reference,
		Payments:         payments,
		TotalAmount:      total,
	})
}
