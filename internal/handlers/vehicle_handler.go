package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/roadwarden/internal/middleware"
	"github.com/stwalsh4118/roadwarden/internal/models"
	"github.com/stwalsh4118/roadwarden/internal/services"
)

// VehicleHandler handles vehicle registry HTTP requests.
type VehicleHandler struct {
	service services.VehicleService
}

// NewVehicleHandler creates a new VehicleHandler instance.
func NewVehicleHandler(service services.VehicleService) *VehicleHandler {
	return &VehicleHandler{
		service: service,
	}
}

// LookupRequest represents the query parameters for the lookup endpoint.
type LookupRequest struct {
	Plate string `form:"plate" binding:"required,max=32"`
}

// SimilarRequest represents the query parameters for the similar endpoint.
type SimilarRequest struct {
	Plate string `form:"plate" binding:"required,max=32"`
	Limit int    `form:"limit" binding:"omitempty,min=1,max=50"`
}

// VehicleRequest is the body for creating or updating an owner record.
type VehicleRequest struct {
	LicenseNumber *string              `json:"licenseNumber" binding:"omitempty,max=50"`
	LicenseClass  *string              `json:"licenseClass" binding:"omitempty,max=10"`
	OwnerPhone    *string              `json:"ownerPhone" binding:"omitempty,max=20"`
	OwnerEmail    *string              `json:"ownerEmail" binding:"omitempty,email"`
	OwnerAddress  *string              `json:"ownerAddress" binding:"omitempty,max=500"`
	VehicleMake   *string              `json:"vehicleMake" binding:"omitempty,max=100"`
	VehicleModel  *string              `json:"vehicleModel" binding:"omitempty,max=100"`
	VehicleColor  *string              `json:"vehicleColor" binding:"omitempty,max=50"`
	PlateNumber   string               `json:"plateNumber" binding:"required,max=32"`
	OwnerName     string               `json:"ownerName" binding:"required,max=255"`
	Status        models.VehicleStatus `json:"status" binding:"omitempty,oneof=active suspended expired revoked"`
}

// AdjustPointsRequest is the body of POST /api/v1/vehicles/points.
type AdjustPointsRequest struct {
	PlateNumber string `json:"plateNumber" binding:"required,max=32"`
	Delta       int    `json:"delta" binding:"required,min=-100,max=100"`
}

// SimilarResponse lists registered plates close to the query.
type SimilarResponse struct {
	Plate      string               `json:"plate"`
	Candidates []services.Candidate `json:"candidates"`
	Count      int                  `json:"count"`
}

// VehicleResponse wraps a single vehicle.
type VehicleResponse struct {
	Vehicle *models.Vehicle `json:"vehicle"`
}

// Register mounts the vehicle routes under rg.
func (h *VehicleHandler) Register(rg *gin.RouterGroup) {
	vehicles := rg.Group("/vehicles")
	{
		vehicles.GET("/lookup", h.Lookup)
		vehicles.GET("/similar", h.Similar)
		vehicles.POST("", h.Create)
		vehicles.POST("/points", h.AdjustPoints)
		vehicles.GET("/:id", h.Get)
		vehicles.PUT("/:id", h.Update)
	}
}

func (r VehicleRequest) toInput() services.VehicleInput {
	return services.VehicleInput{
		LicenseNumber: r.LicenseNumber,
		LicenseClass:  r.LicenseClass,
		OwnerPhone:    r.OwnerPhone,
		OwnerEmail:    r.OwnerEmail,
		OwnerAddress:  r.OwnerAddress,
		VehicleMake:   r.VehicleMake,
		VehicleModel:  r.VehicleModel,
		VehicleColor:  r.VehicleColor,
		PlateNumber:   r.PlateNumber,
		OwnerName:     r.OwnerName,
		Status:        r.Status,
	}
}

// Lookup handles GET /api/v1/vehicles/lookup.
// An unmatched plate is a 200 with no vehicle, so that callers can show the
// validation result and suggestions.
func (h *VehicleHandler) Lookup(c *gin.Context) {
	var req LookupRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, err, "Invalid query parameters")
		return
	}

	result, err := h.service.Lookup(c.Request.Context(), req.Plate)
	if err != nil {
		serviceError(c, err, "Failed to look up plate")
		return
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Info("Plate lookup", map[string]interface{}{
			"plate":      result.Validation.Normalized,
			"exact":      result.Exact,
			"matched":    result.Vehicle != nil,
			"similarity": result.Similarity,
		})
	}

	c.JSON(http.StatusOK, result)
}

// Similar handles GET /api/v1/vehicles/similar.
func (h *VehicleHandler) Similar(c *gin.Context) {
	var req SimilarRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		bindError(c, err, "Invalid query parameters")
		return
	}

	candidates, err := h.service.FindSimilar(c.Request.Context(), req.Plate, req.Limit)
	if err != nil {
		serviceError(c, err, "Failed to search similar plates")
		return
	}
	if candidates == nil {
		candidates = []services.Candidate{}
	}

	c.JSON(http.StatusOK, SimilarResponse{
		Plate:      req.Plate,
		Candidates: candidates,
		Count:      len(candidates),
	})
}

// Get handles GET /api/v1/vehicles/:id.
func (h *VehicleHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	vehicle, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		serviceError(c, err, "Failed to load vehicle")
		return
	}

	c.JSON(http.StatusOK, VehicleResponse{Vehicle: vehicle})
}

// Create handles POST /api/v1/vehicles.
func (h *VehicleHandler) Create(c *gin.Context) {
	var req VehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "Invalid request body")
		return
	}

	vehicle, err := h.service.Create(c.Request.Context(), req.toInput())
	if err != nil {
		serviceError(c, err, "Failed to register vehicle")
		return
	}

	c.JSON(http.StatusCreated, VehicleResponse{Vehicle: vehicle})
}

// Update handles PUT /api/v1/vehicles/:id.
func (h *VehicleHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req VehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "Invalid request body")
		return
	}

	vehicle, err := h.service.Update(c.Request.Context(), id, req.toInput())
	if err != nil {
		serviceError(c, err, "Failed to update vehicle")
		return
	}

	c.JSON(http.StatusOK, VehicleResponse{Vehicle: vehicle})
}

// AdjustPoints handles POST /api/v1/vehicles/points.
func (h *VehicleHandler) AdjustPoints(c *gin.Context) {
	actor, ok := requestActor(c)
	if !ok {
		return
	}

	var req AdjustPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "Invalid request body")
		return
	}

	result, err := h.service.AdjustPoints(c.Request.Context(), req.PlateNumber, req.Delta)
	if err != nil {
		serviceError(c, err, "Failed to adjust points")
		return
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Info("Adjusted vehicle points", map[string]interface{}{
			"plate":                result.Vehicle.PlateNumber,
			"delta":                req.Delta,
			"previous_points":      result.PreviousPoints,
			"current_points":       result.Vehicle.CurrentPoints,
			"suspension_triggered": result.SuspensionTriggered,
			"actor_id":             actor,
		})
	}

	c.JSON(http.StatusOK, result)
}
