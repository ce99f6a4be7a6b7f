package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/roadwarden/internal/models"
	"github.com/stwalsh4118/roadwarden/internal/services"
)

// ViolationHandler handles violation ledger HTTP requests.
type ViolationHandler struct {
	service services.ViolationService
}

// NewViolationHandler creates a new ViolationHandler instance.
func NewViolationHandler(service services.ViolationService) *ViolationHandler {
	return &ViolationHandler{
		service: service,
	}
}

// CreateViolationsRequest is one roadside stop. The recording officer comes
// from the X-Actor-ID header.
type CreateViolationsRequest struct {
	ViolationDate    *time.Time        `json:"violationDate"`
	DueDate          *time.Time        `json:"dueDate"`
	Location         models.Location   `json:"location"`
	Conditions       models.Conditions `json:"conditions"`
	PlateNumber      string            `json:"plateNumber" binding:"required,max=32"`
	Notes            string            `json:"notes" binding:"max=2000"`
	Evidence         models.Evidence   `json:"evidence" binding:"omitempty,max=20"`
	ViolationTypeIDs []int64           `json:"violationTypeIds" binding:"required,min=1,max=20,unique,dive,gt=0"`
}

// UpdateStatusRequest is the body of PATCH /api/v1/violations/:id/status.
type UpdateStatusRequest struct {
	Status models.ViolationStatus `json:"status" binding:"required,oneof=pending paid partially_paid contested dismissed court_pending"`
	Notes  string                 `json:"notes" binding:"max=2000"`
}

// ContestRequest is the body of POST /api/v1/violations/:id/contest.
type ContestRequest struct {
	Reason string `json:"reason" binding:"required,max=2000"`
}

// ListTypesRequest represents the query parameters for the violation types endpoint.
type ListTypesRequest struct {
	IncludeInactive bool `form:"includeInactive"`
}

// ViolationResponse wraps a single violation.
type ViolationResponse struct {
	Violation *models.Violation `json:"violation"`
}

// ViolationTypesResponse lists the violation catalog.
type ViolationTypesResponse struct {
	ViolationTypes []models.ViolationType `json:"violationTypes"`
	Count          int                    `json:"count"`
}

// Register mounts the violation and violation type routes under rg.
func (h *ViolationHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/violation-types", h.ListTypes)

	violations := rg.Group("/violations")
	{
		violations.POST("", h.Create)
		violations.GET("/ticket/:ticket", h.GetByTicket)
		violations.GET("/plate/:plate", h.GetByPlate)
		violations.GET("/:id", h.Get)
		violations.PATCH("/:id/status", h.UpdateStatus)
		violations.POST("/:id/contest", h.Contest)
	}
}

// ListTypes handles GET /api/v1/violation-types.
func (h *ViolationHandler) ListTypes(c *gin.Context) {
	var req ListTypesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, err, "Invalid query parameters")
		return
	}

	types, err := h.service.ListViolationTypes(c.Request.Context(), !req.IncludeInactive)
	if err != nil {
		serviceError(c, err, "Failed to list violation types")
		return
	}
	if types == nil {
		types = []models.ViolationType{}
	}

	c.JSON(http.StatusOK, ViolationTypesResponse{
		ViolationTypes: types,
		Count:          len(types),
	})
}

// Create handles POST /api/v1/violations.
func (h *ViolationHandler) Create(c *gin.Context) {
	officer, ok := requiredActor(c, "record violations")
	if !ok {
		return
	}

	var req CreateViolationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "Invalid request body")
		return
	}

	result, err := h.service.CreateBatch(c.Request.Context(), services.BatchInput{
		ViolationDate:    req.ViolationDate,
		DueDate:          req.DueDate,
		Location:         req.Location,
		Conditions:       req.Conditions,
		PlateNumber:      req.PlateNumber,
		Notes:            req.Notes,
		Evidence:         req.Evidence,
		ViolationTypeIDs: req.ViolationTypeIDs,
		OfficerID:        officer,
	})
	if err != nil {
		serviceError(c, err, "Failed to record violations")
		return
	}

	c.JSON(http.StatusCreated, result)
}

// Get handles GET /api/v1/violations/:id.
func (h *ViolationHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	violation, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		serviceError(c, err, "Failed to load violation")
		return
	}

	c.JSON(http.StatusOK, ViolationResponse{Violation: violation})
}

// GetByTicket handles GET /api/v1/violations/ticket/:ticket.
func (h *ViolationHandler) GetByTicket(c *gin.Context) {
	violation, err := h.service.GetByTicket(c.Request.Context(), c.Param("ticket"))
	if err != nil {
		serviceError(c, err, "Failed to load violation")
		return
	}

	c.JSON(http.StatusOK, ViolationResponse{Violation: violation})
}

// GetByPlate handles GET /api/v1/violations/plate/:plate. This is the
// owner self-service view.
func (h *ViolationHandler) GetByPlate(c *gin.Context) {
	history, err := h.service.GetByPlate(c.Request.Context(), c.Param("plate"))
	if err != nil {
		serviceError(c, err, "Failed to load plate history")
		return
	}

	c.JSON(http.StatusOK, history)
}

// UpdateStatus handles PATCH /api/v1/violations/:id/status.
func (h *ViolationHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	actor, ok := requestActor(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "Invalid request body")
		return
	}

	violation, err := h.service.UpdateStatus(c.Request.Context(), id, req.Status, actor, req.Notes)
	if err != nil {
		serviceError(c, err, "Failed to update violation status")
		return
	}

	c.JSON(http.StatusOK, ViolationResponse{Violation: violation})
}

// Contest handles POST /api/v1/violations/:id/contest. Without an actor
// header the contest is attributed to the owner.
func (h *ViolationHandler) Contest(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	actor, ok := requestActor(c)
	if !ok {
		return
	}

	var req ContestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "Invalid request body")
		return
	}

	violation, err := h.service.Contest(c.Request.Context(), id, req.Reason, actor)
	if err != nil {
		serviceError(c, err, "Failed to contest violation")
		return
	}

	c.JSON(http.StatusOK, ViolationResponse{Violation: violation})
}
