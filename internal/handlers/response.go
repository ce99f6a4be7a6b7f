package handlers

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	apierrors "github.com/stwalsh4118/roadwarden/internal/errors"
	"github.com/stwalsh4118/roadwarden/internal/middleware"
	"github.com/stwalsh4118/roadwarden/internal/services"
)

// bindError renders a request binding failure. Validator failures carry
// per-field details; anything else (malformed JSON, wrong types) is a plain
// bad request.
func bindError(c *gin.Context, err error, message string) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		apierrors.ValidationError(c, validationErrors)
		return
	}
	apierrors.BadRequest(c, message, nil)
}

// serviceError maps a service error onto the API error envelope. fallback is
// the client message used for unexpected failures.
func serviceError(c *gin.Context, err error, fallback string) {
	var detailed *services.DetailedError
	switch {
	case errors.As(err, &detailed) && errors.Is(detailed.Kind, services.ErrInvalidInput):
		apierrors.BadRequest(c, detailed.Message, detailed.Details)
	case errors.Is(err, services.ErrInvalidInput):
		apierrors.BadRequest(c, err.Error(), nil)
	case errors.Is(err, services.ErrNotFound):
		apierrors.NotFound(c, err.Error())
	case errors.Is(err, services.ErrIllegalStateTransition):
		apierrors.IllegalStateTransition(c, err.Error())
	case errors.Is(err, services.ErrConflict):
		apierrors.Conflict(c, err.Error())
	case errors.Is(err, services.ErrSignatureInvalid):
		apierrors.InvalidSignature(c)
	case errors.Is(err, services.ErrGateway):
		apierrors.BadGateway(c, err.Error(), err)
	case errors.Is(err, services.ErrTransient):
		apierrors.ServiceUnavailable(c, "Temporary failure, please retry", err)
	default:
		apierrors.InternalServerError(c, fallback, err)
	}
}

// actorID reads the acting officer or administrator from the X-Actor-ID
// header. A missing header yields 0.
func actorID(c *gin.Context) (int64, error) {
	raw := c.GetHeader(middleware.ActorIDHeader)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", middleware.ActorIDHeader)
	}
	return id, nil
}

// pathID parses a positive integer path parameter.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		apierrors.BadRequest(c, "Invalid "+name, map[string]interface{}{
			name: c.Param(name),
		})
		return 0, false
	}
	return id, true
}

// requestActor is actorID that renders the error itself.
func requestActor(c *gin.Context) (int64, bool) {
	id, err := actorID(c)
	if err != nil {
		apierrors.BadRequest(c, err.Error(), nil)
		return 0, false
	}
	return id, true
}

// requiredActor is requestActor for operations that must be attributed to
// staff; a missing header is rejected.
func requiredActor(c *gin.Context, action string) (int64, bool) {
	id, ok := requestActor(c)
	if !ok {
		return 0, false
	}
	if id == 0 {
		apierrors.BadRequest(c, middleware.ActorIDHeader+" header is required to "+action, nil)
		return 0, false
	}
	return id, true
}
