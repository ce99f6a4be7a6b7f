package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/stwalsh4118/roadwarden/internal/logger"
	"github.com/stwalsh4118/roadwarden/internal/models"
	"github.com/stwalsh4118/roadwarden/internal/plates"
	"github.com/stwalsh4118/roadwarden/internal/repository"
)

// Fuzzy lookup constants
const (
	// LookupThreshold is the minimum similarity for a fuzzy registry match.
	LookupThreshold = 0.6
	// DefaultSimilarLimit is the number of candidates returned when no limit is given.
	DefaultSimilarLimit = 5
	// MaxSimilarLimit caps the number of candidates a caller may request.
	MaxSimilarLimit = 50
)

// PlateIndex lists every registered plate for fuzzy scans. Implementations
// may cache; Invalidate is called whenever the set of plates changes.
type PlateIndex interface {
	AllPlates(ctx context.Context) ([]string, error)
	Invalidate(ctx context.Context)
}

// Candidate is a registered plate similar to a looked-up one.
type Candidate struct {
	PlateNumber string  `json:"plateNumber"`
	Similarity  float64 `json:"similarity"`
}

// LookupResult is the outcome of resolving a raw plate against the registry.
type LookupResult struct {
	Vehicle     *models.Vehicle `json:"vehicle,omitempty"`
	Validation  plates.Result   `json:"validation"`
	Suggestions []string        `json:"suggestions,omitempty"`
	Similarity  float64         `json:"similarity"`
	Exact       bool            `json:"exact"`
}

// VehicleInput holds the owner-record fields an administrator may set.
// Status is optional; an empty value keeps the current status (or active on create).
type VehicleInput struct {
	LicenseNumber *string
	LicenseClass  *string
	OwnerPhone    *string
	OwnerEmail    *string
	OwnerAddress  *string
	VehicleMake   *string
	VehicleModel  *string
	VehicleColor  *string
	PlateNumber   string
	OwnerName     string
	Status        models.VehicleStatus
}

// PointsResult is the outcome of a point adjustment.
type PointsResult struct {
	Vehicle             *models.Vehicle `json:"vehicle"`
	PreviousPoints      int             `json:"previousPoints"`
	SuspensionTriggered bool            `json:"suspensionTriggered"`
}

// VehicleService defines the vehicle registry operations.
type VehicleService interface {
	// Lookup resolves a raw plate. An exact match on the normalized plate is
	// returned directly. Otherwise, when the input is malformed, every stored
	// plate is scanned and the closest one at or above LookupThreshold is
	// returned with up to five suggestions. A nil Vehicle means no match.
	Lookup(ctx context.Context, rawPlate string) (*LookupResult, error)

	// FindSimilar ranks registered plates by similarity to rawPlate.
	FindSimilar(ctx context.Context, rawPlate string, limit int) ([]Candidate, error)

	// GetByID returns ErrNotFound if the vehicle does not exist.
	GetByID(ctx context.Context, id int64) (*models.Vehicle, error)

	// Create registers an owner record. Creating a record for a plate that
	// only has a placeholder owner claims that record and keeps its points.
	Create(ctx context.Context, input VehicleInput) (*models.Vehicle, error)

	// Update replaces the owner-record fields of an existing vehicle.
	Update(ctx context.Context, id int64, input VehicleInput) (*models.Vehicle, error)

	// AdjustPoints adds delta to the vehicle's points, flooring at zero, and
	// suspends an active vehicle that reaches SuspensionThreshold.
	AdjustPoints(ctx context.Context, rawPlate string, delta int) (*PointsResult, error)
}

type vehicleService struct {
	store repository.Store
	index PlateIndex
	log   *logger.Logger
}

// NewVehicleService creates a new instance of VehicleService.
func NewVehicleService(store repository.Store, index PlateIndex, log *logger.Logger) VehicleService {
	return &vehicleService{
		store: store,
		index: index,
		log:   log,
	}
}

func (s *vehicleService) Lookup(ctx context.Context, rawPlate string) (*LookupResult, error) {
	validation := plates.Validate(rawPlate)
	if validation.Normalized == "" {
		return nil, invalidInput("plate number is required", nil)
	}

	vehicle, err := s.store.Vehicles().FindByPlate(ctx, validation.Normalized)
	if err != nil {
		s.log.Error("Failed to look up vehicle", err, map[string]interface{}{
			"plate": validation.Normalized,
		})
		return nil, storeErr("failed to look up vehicle", err)
	}

	result := &LookupResult{Validation: validation}
	if vehicle != nil {
		result.Vehicle = vehicle
		result.Exact = true
		result.Similarity = 1
		return result, nil
	}

	if validation.IsValid {
		s.log.Debug("Well-formed plate not registered", map[string]interface{}{
			"plate": validation.Normalized,
		})
		return result, nil
	}

	candidates, err := s.scan(ctx, validation.Normalized, DefaultSimilarLimit)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return result, nil
	}

	for _, c := range candidates {
		result.Suggestions = append(result.Suggestions, c.PlateNumber)
	}

	best, err := s.store.Vehicles().FindByPlate(ctx, candidates[0].PlateNumber)
	if err != nil {
		return nil, storeErr("failed to load fuzzy match", err)
	}
	result.Vehicle = best
	result.Similarity = candidates[0].Similarity

	s.log.Info("Fuzzy plate match", map[string]interface{}{
		"input":      validation.Normalized,
		"match":      candidates[0].PlateNumber,
		"similarity": candidates[0].Similarity,
	})
	return result, nil
}

func (s *vehicleService) FindSimilar(ctx context.Context, rawPlate string, limit int) ([]Candidate, error) {
	normalized := plates.Normalize(rawPlate)
	if normalized == "" {
		return nil, invalidInput("plate number is required", nil)
	}
	if limit <= 0 {
		limit = DefaultSimilarLimit
	}
	if limit > MaxSimilarLimit {
		return nil, invalidInput(fmt.Sprintf("limit must be between 1 and %d", MaxSimilarLimit), nil)
	}

	return s.scan(ctx, normalized, limit)
}

// scan compares normalized against every registered plate. It is linear in
// the number of vehicles; an n-gram or bounded edit-distance index is needed
// once the registry grows well beyond tens of thousands of plates.
func (s *vehicleService) scan(ctx context.Context, normalized string, limit int) ([]Candidate, error) {
	start := time.Now()

	all, err := s.index.AllPlates(ctx)
	if err != nil {
		s.log.Error("Failed to load plate index", err, nil)
		return nil, storeErr("failed to load plate index", err)
	}

	candidates := rankCandidates(normalized, all, LookupThreshold, limit)

	s.log.Debug("Fuzzy plate scan", map[string]interface{}{
		"input":       normalized,
		"scanned":     len(all),
		"matches":     len(candidates),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return candidates, nil
}

// rankCandidates returns up to limit plates with similarity at or above
// threshold, most similar first, ties broken alphabetically.
func rankCandidates(normalized string, all []string, threshold float64, limit int) []Candidate {
	candidates := []Candidate{}
	for _, p := range all {
		sim := plates.Similarity(normalized, p)
		if sim >= threshold {
			candidates = append(candidates, Candidate{PlateNumber: p, Similarity: sim})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].PlateNumber < candidates[j].PlateNumber
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

func (s *vehicleService) GetByID(ctx context.Context, id int64) (*models.Vehicle, error) {
	vehicle, err := s.store.Vehicles().FindByID(ctx, id)
	if err != nil {
		return nil, storeErr("failed to query vehicle", err)
	}
	if vehicle == nil {
		return nil, fmt.Errorf("%w: vehicle %d", ErrNotFound, id)
	}
	return vehicle, nil
}

// normalizeInput validates input and returns its normalized plate and license.
func normalizeInput(input VehicleInput) (string, *string, error) {
	validation := plates.Validate(input.PlateNumber)
	if !validation.IsValid {
		return "", nil, invalidInput("plate number is not in a recognized format", map[string]interface{}{
			"plate":  validation.Normalized,
			"errors": validation.Errors,
		})
	}

	if strings.TrimSpace(input.OwnerName) == "" {
		return "", nil, invalidInput("owner name is required", nil)
	}
	if input.Status != "" && !models.IsValidVehicleStatus(input.Status) {
		return "", nil, invalidInput(fmt.Sprintf("unknown vehicle status %q", input.Status), nil)
	}

	var license *string
	if input.LicenseNumber != nil {
		if l := strings.ToUpper(strings.TrimSpace(*input.LicenseNumber)); l != "" {
			license = &l
		}
	}
	return validation.Normalized, license, nil
}

func applyInput(v *models.Vehicle, input VehicleInput, plate string, license *string) {
	v.PlateNumber = plate
	v.LicenseNumber = license
	v.LicenseClass = input.LicenseClass
	v.OwnerName = strings.TrimSpace(input.OwnerName)
	v.OwnerPhone = input.OwnerPhone
	v.OwnerEmail = input.OwnerEmail
	v.OwnerAddress = input.OwnerAddress
	v.VehicleMake = input.VehicleMake
	v.VehicleModel = input.VehicleModel
	v.VehicleColor = input.VehicleColor
	v.IsPlaceholder = false
	if input.Status != "" {
		v.Status = input.Status
	}
}

// checkLicense returns ErrConflict if license belongs to a vehicle other than selfID.
func checkLicense(ctx context.Context, tx repository.Store, license *string, selfID int64) error {
	if license == nil {
		return nil
	}
	other, err := tx.Vehicles().FindByLicense(ctx, *license)
	if err != nil {
		return storeErr("failed to check license number", err)
	}
	if other != nil && other.ID != selfID {
		return fmt.Errorf("%w: license number %s is already registered", ErrConflict, *license)
	}
	return nil
}

func (s *vehicleService) Create(ctx context.Context, input VehicleInput) (*models.Vehicle, error) {
	plate, license, err := normalizeInput(input)
	if err != nil {
		s.log.Warn("Invalid vehicle input", map[string]interface{}{
			"plate": input.PlateNumber,
			"error": err.Error(),
		})
		return nil, err
	}

	var vehicle *models.Vehicle
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		existing, err := tx.Vehicles().FindByPlateForUpdate(ctx, plate)
		if err != nil {
			return storeErr("failed to check plate number", err)
		}
		if existing != nil && !existing.IsPlaceholder {
			return fmt.Errorf("%w: plate %s is already registered", ErrConflict, plate)
		}

		var selfID int64
		if existing != nil {
			selfID = existing.ID
		}
		if err := checkLicense(ctx, tx, license, selfID); err != nil {
			return err
		}

		if existing != nil {
			applyInput(existing, input, plate, license)
			if err := tx.Vehicles().Update(ctx, existing); err != nil {
				return storeErr("failed to claim placeholder vehicle", err)
			}
			vehicle = existing
			return nil
		}

		v := &models.Vehicle{Status: models.VehicleStatusActive}
		applyInput(v, input, plate, license)
		if err := tx.Vehicles().Create(ctx, v); err != nil {
			return storeErr("failed to create vehicle", err)
		}
		vehicle = v
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrConflict) {
			s.log.Error("Failed to create vehicle", err, map[string]interface{}{"plate": plate})
		}
		return nil, txErr("failed to create vehicle", err)
	}

	s.index.Invalidate(ctx)
	s.log.Info("Vehicle registered", map[string]interface{}{
		"vehicle_id": vehicle.ID,
		"plate":      vehicle.PlateNumber,
	})
	return vehicle, nil
}

func (s *vehicleService) Update(ctx context.Context, id int64, input VehicleInput) (*models.Vehicle, error) {
	plate, license, err := normalizeInput(input)
	if err != nil {
		return nil, err
	}

	var (
		vehicle      *models.Vehicle
		plateChanged bool
	)
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		current, err := tx.Vehicles().FindByID(ctx, id)
		if err != nil {
			return storeErr("failed to query vehicle", err)
		}
		if current == nil {
			return fmt.Errorf("%w: vehicle %d", ErrNotFound, id)
		}

		// Re-read under a row lock so point updates are not overwritten.
		current, err = tx.Vehicles().FindByPlateForUpdate(ctx, current.PlateNumber)
		if err != nil {
			return storeErr("failed to lock vehicle", err)
		}
		if current == nil {
			return fmt.Errorf("%w: vehicle %d", ErrNotFound, id)
		}

		if plate != current.PlateNumber {
			other, err := tx.Vehicles().FindByPlate(ctx, plate)
			if err != nil {
				return storeErr("failed to check plate number", err)
			}
			if other != nil {
				return fmt.Errorf("%w: plate %s is already registered", ErrConflict, plate)
			}
			plateChanged = true
		}
		if err := checkLicense(ctx, tx, license, current.ID); err != nil {
			return err
		}

		applyInput(current, input, plate, license)
		if err := tx.Vehicles().Update(ctx, current); err != nil {
			return storeErr("failed to update vehicle", err)
		}
		vehicle = current
		return nil
	})
	if err != nil {
		return nil, txErr("failed to update vehicle", err)
	}

	if plateChanged {
		s.index.Invalidate(ctx)
	}
	s.log.Info("Vehicle updated", map[string]interface{}{
		"vehicle_id": vehicle.ID,
		"plate":      vehicle.PlateNumber,
	})
	return vehicle, nil
}

func (s *vehicleService) AdjustPoints(ctx context.Context, rawPlate string, delta int) (*PointsResult, error) {
	plate := plates.Normalize(rawPlate)
	if plate == "" {
		return nil, invalidInput("plate number is required", nil)
	}

	var result *PointsResult
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		vehicle, err := tx.Vehicles().FindByPlateForUpdate(ctx, plate)
		if err != nil {
			return storeErr("failed to lock vehicle", err)
		}
		if vehicle == nil {
			return fmt.Errorf("%w: no vehicle registered for plate %s", ErrNotFound, plate)
		}

		previous := vehicle.CurrentPoints
		triggered := applyPoints(vehicle, delta)
		if err := tx.Vehicles().Update(ctx, vehicle); err != nil {
			return storeErr("failed to update points", err)
		}

		result = &PointsResult{Vehicle: vehicle, PreviousPoints: previous, SuspensionTriggered: triggered}
		return nil
	})
	if err != nil {
		return nil, txErr("failed to adjust points", err)
	}

	s.log.Info("Vehicle points adjusted", map[string]interface{}{
		"plate":      plate,
		"delta":      delta,
		"points":     result.Vehicle.CurrentPoints,
		"suspended":  result.SuspensionTriggered,
		"vehicle_id": result.Vehicle.ID,
	})
	return result, nil
}

// applyPoints adds delta to v's points, flooring at zero, and suspends an
// active vehicle that reaches the threshold. Suspension never reverts here.
// It reports whether suspension was newly triggered.
func applyPoints(v *models.Vehicle, delta int) bool {
	points := v.CurrentPoints + delta
	if points < 0 {
		points = 0
	}
	v.CurrentPoints = points

	if points >= models.SuspensionThreshold && v.Status == models.VehicleStatusActive {
		v.Status = models.VehicleStatusSuspended
		return true
	}
	return false
}
