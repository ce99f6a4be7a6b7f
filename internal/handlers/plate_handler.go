package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/roadwarden/internal/middleware"
	"github.com/stwalsh4118/roadwarden/internal/plates"
)

// PlateHandler exposes plate validation and fuzzy matching. It has no
// storage dependency.
type PlateHandler struct{}

// NewPlateHandler creates a new PlateHandler instance.
func NewPlateHandler() *PlateHandler {
	return &PlateHandler{}
}

// ValidatePlateRequest is the body of POST /api/v1/plates/validate.
type ValidatePlateRequest struct {
	Plate string `json:"plate" binding:"required,max=32"`
}

// ValidatePlateResponse wraps the validation result. Corrections lists
// single-character OCR variants of an invalid plate that do validate.
type ValidatePlateResponse struct {
	plates.Result
	Corrections []string `json:"corrections,omitempty"`
}

// FuzzyMatchRequest is the body of POST /api/v1/plates/fuzzy-match.
type FuzzyMatchRequest struct {
	Threshold *float64 `json:"threshold" binding:"omitempty,gte=0,lte=1"`
	Input     string   `json:"input" binding:"required,max=32"`
	Target    string   `json:"target" binding:"required,max=32"`
}

// FuzzyMatchResponse is the fuzzy comparison of two plates.
type FuzzyMatchResponse struct {
	plates.Match
	Input     string  `json:"input"`
	Target    string  `json:"target"`
	Threshold float64 `json:"threshold"`
}

// Register mounts the plate routes under rg.
func (h *PlateHandler) Register(rg *gin.RouterGroup) {
	plateRoutes := rg.Group("/plates")
	{
		plateRoutes.POST("/validate", h.Validate)
		plateRoutes.POST("/fuzzy-match", h.FuzzyMatch)
	}
}

// Validate handles POST /api/v1/plates/validate.
func (h *PlateHandler) Validate(c *gin.Context) {
	var req ValidatePlateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "Invalid request body")
		return
	}

	result := plates.Validate(req.Plate)
	resp := ValidatePlateResponse{Result: result}
	if !result.IsValid && result.Normalized != "" {
		for _, variant := range plates.Suggestions(result.Normalized) {
			if plates.Validate(variant).IsValid {
				resp.Corrections = append(resp.Corrections, variant)
			}
		}
	}

	if log := middleware.GetLogger(c); log != nil {
		log.Debug("Validated plate", map[string]interface{}{
			"plate":    result.Normalized,
			"is_valid": result.IsValid,
			"format":   result.Format,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// FuzzyMatch handles POST /api/v1/plates/fuzzy-match.
func (h *PlateHandler) FuzzyMatch(c *gin.Context) {
	var req FuzzyMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err, "Invalid request body")
		return
	}

	threshold := plates.DefaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	c.JSON(http.StatusOK, FuzzyMatchResponse{
		Match:     plates.FuzzyMatch(req.Input, req.Target, threshold),
		Input:     plates.Normalize(req.Input),
		Target:    plates.Normalize(req.Target),
		Threshold: threshold,
	})
}
