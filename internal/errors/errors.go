// Package errors renders the JSON error envelope shared by every handler:
// {"error": {"code", "message", "details", "request_id"}}.
package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stwalsh4118/roadwarden/internal/middleware"
)

// Error code constants for standardized error responses
const (
	ErrNotFound               = "NOT_FOUND"
	ErrBadRequest             = "BAD_REQUEST"
	ErrInternalServer         = "INTERNAL_SERVER_ERROR"
	ErrValidation             = "VALIDATION_ERROR"
	ErrConflict               = "CONFLICT"
	ErrIllegalStateTransition = "ILLEGAL_STATE_TRANSITION"
	ErrInvalidSignature       = "INVALID_SIGNATURE"
	ErrGateway                = "GATEWAY_ERROR"
	ErrServiceUnavailable     = "SERVICE_UNAVAILABLE"
)

// ErrorResponse is the top-level error response structure.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// write logs a client-side failure at warn and sends the envelope.
func write(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	requestID := middleware.GetRequestID(c)

	if log := middleware.GetLogger(c); log != nil {
		fields := map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": requestID,
			"path":       c.Request.URL.Path,
		}
		if details != nil {
			fields["details"] = details
		}
		log.Warn("Request rejected", fields)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: requestID,
		},
	})
}

// NotFound returns a 404 Not Found error response.
func NotFound(c *gin.Context, message string) {
	write(c, http.StatusNotFound, ErrNotFound, message, nil)
}

// BadRequest returns a 400 Bad Request error response with optional details.
func BadRequest(c *gin.Context, message string, details map[string]interface{}) {
	write(c, http.StatusBadRequest, ErrBadRequest, message, details)
}

// Conflict returns a 409 for unique-constraint clashes such as a plate that
// is already registered.
func Conflict(c *gin.Context, message string) {
	write(c, http.StatusConflict, ErrConflict, message, nil)
}

// IllegalStateTransition returns a 409 for lifecycle moves the current
// status does not allow.
func IllegalStateTransition(c *gin.Context, message string) {
	write(c, http.StatusConflict, ErrIllegalStateTransition, message, nil)
}

// InvalidSignature returns a 401 for webhooks that fail authentication.
// The message never echoes the payload.
func InvalidSignature(c *gin.Context) {
	write(c, http.StatusUnauthorized, ErrInvalidSignature, "Webhook signature verification failed", nil)
}

// BadGateway returns a 502 when a payment provider call failed. The
// provider's message is passed through for diagnostics.
func BadGateway(c *gin.Context, message string, err error) {
	logServerError(c, "Payment gateway error", err)
	write(c, http.StatusBadGateway, ErrGateway, message, nil)
}

// ServiceUnavailable returns a 503 for transient failures the client may retry.
func ServiceUnavailable(c *gin.Context, message string, err error) {
	logServerError(c, "Service unavailable", err)
	c.Header("Retry-After", "1")
	write(c, http.StatusServiceUnavailable, ErrServiceUnavailable, message, nil)
}

// InternalServerError returns a 500 Internal Server Error response.
// The underlying error is logged but never exposed to the client.
func InternalServerError(c *gin.Context, message string, err error) {
	logServerError(c, "Internal server error", err)

	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
		Error: ErrorDetail{
			Code:      ErrInternalServer,
			Message:   message,
			RequestID: middleware.GetRequestID(c),
		},
	})
}

func logServerError(c *gin.Context, msg string, err error) {
	if log := middleware.GetLogger(c); log != nil {
		log.Error(msg, err, map[string]interface{}{
			"request_id": middleware.GetRequestID(c),
			"path":       c.Request.URL.Path,
			"method":     c.Request.Method,
		})
	}
}

// ValidationError returns a 400 Bad Request error response with field-specific validation errors.
func ValidationError(c *gin.Context, validationErrors validator.ValidationErrors) {
	details := make(map[string]interface{}, len(validationErrors))
	for _, err := range validationErrors {
		details[err.Field()] = formatValidationError(err)
	}

	write(c, http.StatusBadRequest, ErrValidation, "Validation failed for one or more fields", details)
}

// formatValidationError converts a validator.FieldError to a human-readable message.
func formatValidationError(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Must be a valid email address"
	case "min":
		return "Value is too short or small (minimum: " + err.Param() + ")"
	case "max":
		return "Value is too long or large (maximum: " + err.Param() + ")"
	case "gt":
		return "Must be greater than " + err.Param()
	case "gte":
		return "Must be greater than or equal to " + err.Param()
	case "lte":
		return "Must be less than or equal to " + err.Param()
	case "oneof":
		return "Must be one of: " + err.Param()
	case "dive":
		return "Every element must be valid"
	case "unique":
		return "Values must not repeat"
	case "url":
		return "Must be a valid URL"
	default:
		return "Validation failed for tag: " + err.Tag()
	}
}
