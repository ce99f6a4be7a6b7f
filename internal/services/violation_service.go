package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stwalsh4118/roadwarden/internal/events"
	"github.com/stwalsh4118/roadwarden/internal/idgen"
	"github.com/stwalsh4118/roadwarden/internal/logger"
	"github.com/stwalsh4118/roadwarden/internal/models"
	"github.com/stwalsh4118/roadwarden/internal/plates"
	"github.com/stwalsh4118/roadwarden/internal/repository"
)

// DefaultGraceDays is the due date offset used when none is configured.
const DefaultGraceDays = 30

// maxTicketAttempts bounds ticket number regeneration on a unique conflict.
const maxTicketAttempts = 3

// BatchInput describes one roadside stop: every violation type observed
// against a single plate.
type BatchInput struct {
	ViolationDate    *time.Time
	DueDate          *time.Time
	Location         models.Location
	Conditions       models.Conditions
	PlateNumber      string
	Notes            string
	Evidence         models.Evidence
	ViolationTypeIDs []int64
	OfficerID        int64
}

// BatchResult is the outcome of CreateBatch.
type BatchResult struct {
	Vehicle             *models.Vehicle    `json:"vehicle"`
	Violations          []models.Violation `json:"violations"`
	TotalAmount         decimal.Decimal    `json:"totalAmount"`
	TotalPoints         int                `json:"totalPoints"`
	SuspensionTriggered bool               `json:"suspensionTriggered"`
	VehicleCreated      bool               `json:"vehicleCreated"`
}

// HistorySummary aggregates a plate's violation history.
type HistorySummary struct {
	TotalAmount       decimal.Decimal      `json:"totalAmount"`
	PaidAmount        decimal.Decimal      `json:"paidAmount"`
	OutstandingAmount decimal.Decimal      `json:"outstandingAmount"`
	VehicleStatus     models.VehicleStatus `json:"vehicleStatus,omitempty"`
	TotalViolations   int                  `json:"totalViolations"`
	PaidViolations    int                  `json:"paidViolations"`
	PendingViolations int                  `json:"pendingViolations"`
	CurrentPoints     int                  `json:"currentPoints"`
}

// PlateHistory is the self-service view of a plate.
type PlateHistory struct {
	Vehicle     *models.Vehicle    `json:"vehicle,omitempty"`
	PlateNumber string             `json:"plateNumber"`
	Violations  []models.Violation `json:"violations"`
	Summary     HistorySummary     `json:"summary"`
}

// ViolationService defines the violation ledger operations.
type ViolationService interface {
	// CreateBatch records one violation per type against a plate in a single
	// transaction and applies the combined points once. Any invalid or
	// inactive type rejects the whole batch.
	CreateBatch(ctx context.Context, input BatchInput) (*BatchResult, error)

	// UpdateStatus sets any known status and appends an audit note.
	UpdateStatus(ctx context.Context, id int64, status models.ViolationStatus, actorID int64, notes string) (*models.Violation, error)

	// Contest moves a pending violation to contested. actorID 0 means the owner.
	Contest(ctx context.Context, id int64, reason string, actorID int64) (*models.Violation, error)

	GetByID(ctx context.Context, id int64) (*models.Violation, error)
	GetByTicket(ctx context.Context, ticket string) (*models.Violation, error)

	// GetByPlate returns ErrNotFound only when the plate has neither an owner
	// record nor any violations.
	GetByPlate(ctx context.Context, rawPlate string) (*PlateHistory, error)

	ListViolationTypes(ctx context.Context, activeOnly bool) ([]models.ViolationType, error)
}

type violationService struct {
	store     repository.Store
	vehicles  VehicleService
	index     PlateIndex
	ids       idgen.Generator
	publisher events.Publisher
	recorder  Recorder
	log       *logger.Logger
	now       func() time.Time
	graceDays int
}

// NewViolationService creates a new instance of ViolationService.
// A graceDays below one falls back to DefaultGraceDays.
func NewViolationService(
	store repository.Store,
	vehicles VehicleService,
	index PlateIndex,
	ids idgen.Generator,
	publisher events.Publisher,
	recorder Recorder,
	graceDays int,
	log *logger.Logger,
) ViolationService {
	if graceDays < 1 {
		graceDays = DefaultGraceDays
	}
	return &violationService{
		store:     store,
		vehicles:  vehicles,
		index:     index,
		ids:       ids,
		publisher: publisher,
		recorder:  recorderOrNop(recorder),
		log:       log,
		now:       time.Now,
		graceDays: graceDays,
	}
}

func (s *violationService) validateBatch(ctx context.Context, input BatchInput, now time.Time) (plates.Result, time.Time, time.Time, error) {
	var zero time.Time

	if input.OfficerID <= 0 {
		return plates.Result{}, zero, zero, invalidInput("officer id is required", nil)
	}
	if len(input.ViolationTypeIDs) == 0 {
		return plates.Result{}, zero, zero, invalidInput("at least one violation type is required", nil)
	}
	seen := make(map[int64]bool, len(input.ViolationTypeIDs))
	for _, id := range input.ViolationTypeIDs {
		if seen[id] {
			return plates.Result{}, zero, zero, invalidInput(fmt.Sprintf("violation type %d is listed more than once", id), nil)
		}
		seen[id] = true
	}

	validation := plates.Validate(input.PlateNumber)
	if !validation.IsValid {
		details := map[string]interface{}{
			"plate":  validation.Normalized,
			"errors": validation.Errors,
		}
		if validation.Normalized != "" {
			candidates, err := s.vehicles.FindSimilar(ctx, validation.Normalized, DefaultSimilarLimit)
			if err != nil {
				return plates.Result{}, zero, zero, err
			}
			suggestions := make([]string, 0, len(candidates))
			for _, c := range candidates {
				suggestions = append(suggestions, c.PlateNumber)
			}
			details["suggestions"] = suggestions
		}
		return plates.Result{}, zero, zero, invalidInput("plate number is not in a recognized format", details)
	}

	violationDate := now
	if input.ViolationDate != nil {
		violationDate = input.ViolationDate.UTC()
		if violationDate.After(now) {
			return plates.Result{}, zero, zero, invalidInput("violation date cannot be in the future", nil)
		}
	}

	earliestDue := violationDate.AddDate(0, 0, s.graceDays)
	dueDate := earliestDue
	if input.DueDate != nil {
		if input.DueDate.Before(earliestDue) {
			return plates.Result{}, zero, zero, invalidInput(
				fmt.Sprintf("due date must be at least %d days after the violation date", s.graceDays),
				map[string]interface{}{"earliestDueDate": earliestDue},
			)
		}
		dueDate = input.DueDate.UTC()
	}

	return validation, violationDate, dueDate, nil
}

func (s *violationService) CreateBatch(ctx context.Context, input BatchInput) (*BatchResult, error) {
	now := s.now().UTC()

	validation, violationDate, dueDate, err := s.validateBatch(ctx, input, now)
	if err != nil {
		s.log.Warn("Rejected violation batch", map[string]interface{}{
			"plate":      input.PlateNumber,
			"officer_id": input.OfficerID,
			"error":      err.Error(),
		})
		return nil, err
	}
	plate := validation.Normalized

	var result *BatchResult
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		types, err := tx.ViolationTypes().FindByIDs(ctx, input.ViolationTypeIDs)
		if err != nil {
			return storeErr("failed to load violation types", err)
		}
		byID := make(map[int64]models.ViolationType, len(types))
		for _, t := range types {
			byID[t.ID] = t
		}
		var rejected []int64
		for _, id := range input.ViolationTypeIDs {
			if t, ok := byID[id]; !ok || !t.Active {
				rejected = append(rejected, id)
			}
		}
		if len(rejected) > 0 {
			return invalidInput("unknown or inactive violation types", map[string]interface{}{
				"violationTypeIds": rejected,
			})
		}

		vehicle, created, err := s.resolveVehicle(ctx, tx, plate)
		if err != nil {
			return err
		}

		res := &BatchResult{
			Vehicle:        vehicle,
			Violations:     make([]models.Violation, 0, len(input.ViolationTypeIDs)),
			TotalAmount:    decimal.Zero,
			VehicleCreated: created,
		}

		for _, id := range input.ViolationTypeIDs {
			vt := byID[id]
			v := &models.Violation{
				VehicleID:       &vehicle.ID,
				ViolationTypeID: vt.ID,
				OfficerID:       input.OfficerID,
				PlateNumber:     plate,
				Location:        input.Location,
				Evidence:        input.Evidence,
				Conditions:      input.Conditions,
				ViolationDate:   violationDate,
				DueDate:         dueDate,
				FineAmount:      vt.FineAmount,
				Points:          vt.Points,
				Status:          models.ViolationStatusPending,
				Notes:           strings.TrimSpace(input.Notes),
			}
			if v.Evidence == nil {
				v.Evidence = models.Evidence{}
			}
			if err := s.createWithTicket(ctx, tx, v); err != nil {
				return err
			}
			res.Violations = append(res.Violations, *v)
			res.TotalAmount = res.TotalAmount.Add(vt.FineAmount)
			res.TotalPoints += vt.Points
		}

		res.SuspensionTriggered = applyPoints(vehicle, res.TotalPoints)
		if err := tx.Vehicles().Update(ctx, vehicle); err != nil {
			return storeErr("failed to update vehicle points", err)
		}

		result = res
		return nil
	})
	if err != nil {
		if !isServiceErr(err) {
			s.log.Error("Failed to create violation batch", err, map[string]interface{}{"plate": plate})
		}
		return nil, txErr("failed to create violation batch", err)
	}

	if result.VehicleCreated {
		s.index.Invalidate(ctx)
	}
	s.recorder.ViolationsCreated(len(result.Violations))
	s.afterBatch(ctx, result, dueDate, now)

	s.log.Info("Violation batch recorded", map[string]interface{}{
		"plate":                plate,
		"officer_id":           input.OfficerID,
		"violations":           len(result.Violations),
		"total_amount":         result.TotalAmount.String(),
		"total_points":         result.TotalPoints,
		"suspension_triggered": result.SuspensionTriggered,
	})
	return result, nil
}

// resolveVehicle locks the owner record for plate, creating a placeholder
// when none exists. It reports whether a record was created.
func (s *violationService) resolveVehicle(ctx context.Context, tx repository.Store, plate string) (*models.Vehicle, bool, error) {
	vehicle, err := tx.Vehicles().FindByPlateForUpdate(ctx, plate)
	if err != nil {
		return nil, false, storeErr("failed to lock vehicle", err)
	}
	if vehicle != nil {
		return vehicle, false, nil
	}

	placeholder := &models.Vehicle{
		PlateNumber:   plate,
		OwnerName:     models.PlaceholderOwnerName,
		Status:        models.VehicleStatusActive,
		IsPlaceholder: true,
	}
	err = tx.Vehicles().Create(ctx, placeholder)
	if err == nil {
		return placeholder, true, nil
	}
	if !errors.Is(err, repository.ErrUniqueViolation) {
		return nil, false, storeErr("failed to create placeholder vehicle", err)
	}

	// Another stop registered the plate first.
	vehicle, err = tx.Vehicles().FindByPlateForUpdate(ctx, plate)
	if err != nil {
		return nil, false, storeErr("failed to lock vehicle", err)
	}
	if vehicle == nil {
		return nil, false, fmt.Errorf("%w: plate %s was registered concurrently", ErrTransient, plate)
	}
	return vehicle, false, nil
}

func (s *violationService) createWithTicket(ctx context.Context, tx repository.Store, v *models.Violation) error {
	var err error
	for attempt := 0; attempt < maxTicketAttempts; attempt++ {
		v.TicketNumber = s.ids.TicketNumber()
		err = tx.Violations().Create(ctx, v)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrUniqueViolation) {
			return storeErr("failed to create violation", err)
		}
		s.log.Warn("Ticket number collision, regenerating", map[string]interface{}{
			"ticket":  v.TicketNumber,
			"attempt": attempt + 1,
		})
	}
	return storeErr("failed to allocate a unique ticket number", err)
}

func (s *violationService) afterBatch(ctx context.Context, result *BatchResult, dueDate, now time.Time) {
	recipient := recipientFor(result.Vehicle)
	tickets := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		tickets = append(tickets, v.TicketNumber)
	}
	amount := result.TotalAmount

	publish(ctx, s.publisher, s.log, events.Event{
		Type:          events.ViolationCreated,
		OccurredAt:    now,
		PlateNumber:   result.Vehicle.PlateNumber,
		TicketNumbers: tickets,
		Amount:        &amount,
		Points:        result.TotalPoints,
		DueDate:       &dueDate,
		Recipient:     recipient,
	})

	if result.SuspensionTriggered {
		s.recorder.SuspensionTriggered()
		publish(ctx, s.publisher, s.log, events.Event{
			Type:        events.VehicleSuspended,
			OccurredAt:  now,
			PlateNumber: result.Vehicle.PlateNumber,
			Points:      result.Vehicle.CurrentPoints,
			Recipient:   recipient,
		})
	}
}

func recipientFor(v *models.Vehicle) events.Recipient {
	if v == nil || v.IsPlaceholder {
		return events.Recipient{}
	}
	r := events.Recipient{Name: v.OwnerName}
	if v.OwnerEmail != nil {
		r.Email = *v.OwnerEmail
	}
	if v.OwnerPhone != nil {
		r.Phone = *v.OwnerPhone
	}
	return r
}

// appendNote adds one audit line to notes. Existing lines are never rewritten.
func appendNote(notes string, at time.Time, line string) string {
	entry := fmt.Sprintf("[%s] %s", at.UTC().Format(time.RFC3339), line)
	if notes == "" {
		return entry
	}
	return notes + "\n" + entry
}

func actorLabel(actorID int64) string {
	if actorID == 0 {
		return "owner"
	}
	return fmt.Sprintf("actor %d", actorID)
}

func (s *violationService) UpdateStatus(ctx context.Context, id int64, status models.ViolationStatus, actorID int64, notes string) (*models.Violation, error) {
	if !models.IsValidViolationStatus(status) {
		return nil, invalidInput(fmt.Sprintf("unknown violation status %q", status), nil)
	}

	now := s.now().UTC()
	var violation *models.Violation
	var previous models.ViolationStatus
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		v, err := tx.Violations().FindByIDForUpdate(ctx, id)
		if err != nil {
			return storeErr("failed to lock violation", err)
		}
		if v == nil {
			return fmt.Errorf("%w: violation %d", ErrNotFound, id)
		}

		previous = v.Status
		line := fmt.Sprintf("status %s -> %s by %s", previous, status, actorLabel(actorID))
		if n := strings.TrimSpace(notes); n != "" {
			line += ": " + n
		}
		v.Notes = appendNote(v.Notes, now, line)
		v.Status = status

		if status == models.ViolationStatusPaid {
			v.PaidDate = &now
		}
		if previous == models.ViolationStatusContested && status == models.ViolationStatusDismissed {
			v.IsOverturned = true
		}

		if err := tx.Violations().Update(ctx, v); err != nil {
			return storeErr("failed to update violation", err)
		}
		violation = v
		return nil
	})
	if err != nil {
		return nil, txErr("failed to update violation status", err)
	}

	s.log.Info("Violation status updated", map[string]interface{}{
		"violation_id": id,
		"from":         previous,
		"to":           status,
		"actor_id":     actorID,
	})
	return violation, nil
}

func (s *violationService) Contest(ctx context.Context, id int64, reason string, actorID int64) (*models.Violation, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalidInput("contest reason is required", nil)
	}

	now := s.now().UTC()
	var violation *models.Violation
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		v, err := tx.Violations().FindByIDForUpdate(ctx, id)
		if err != nil {
			return storeErr("failed to lock violation", err)
		}
		if v == nil {
			return fmt.Errorf("%w: violation %d", ErrNotFound, id)
		}
		if v.Status != models.ViolationStatusPending {
			return fmt.Errorf("%w: cannot contest a violation in status %s", ErrIllegalStateTransition, v.Status)
		}

		v.Status = models.ViolationStatusContested
		v.ContestDate = &now
		v.ContestReason = &reason
		v.Notes = appendNote(v.Notes, now, fmt.Sprintf("contested by %s: %s", actorLabel(actorID), reason))

		if err := tx.Violations().Update(ctx, v); err != nil {
			return storeErr("failed to update violation", err)
		}
		violation = v
		return nil
	})
	if err != nil {
		return nil, txErr("failed to contest violation", err)
	}

	s.log.Info("Violation contested", map[string]interface{}{
		"violation_id": id,
		"ticket":       violation.TicketNumber,
		"actor_id":     actorID,
	})
	return violation, nil
}

func (s *violationService) GetByID(ctx context.Context, id int64) (*models.Violation, error) {
	v, err := s.store.Violations().FindByID(ctx, id)
	if err != nil {
		return nil, storeErr("failed to query violation", err)
	}
	if v == nil {
		return nil, fmt.Errorf("%w: violation %d", ErrNotFound, id)
	}
	return v, nil
}

func (s *violationService) GetByTicket(ctx context.Context, ticket string) (*models.Violation, error) {
	ticket = strings.ToUpper(strings.TrimSpace(ticket))
	if ticket == "" {
		return nil, invalidInput("ticket number is required", nil)
	}
	v, err := s.store.Violations().FindByTicket(ctx, ticket)
	if err != nil {
		return nil, storeErr("failed to query violation", err)
	}
	if v == nil {
		return nil, fmt.Errorf("%w: ticket %s", ErrNotFound, ticket)
	}
	return v, nil
}

func (s *violationService) GetByPlate(ctx context.Context, rawPlate string) (*PlateHistory, error) {
	plate := plates.Normalize(rawPlate)
	if plate == "" {
		return nil, invalidInput("plate number is required", nil)
	}

	vehicle, err := s.store.Vehicles().FindByPlate(ctx, plate)
	if err != nil {
		return nil, storeErr("failed to query vehicle", err)
	}
	violations, err := s.store.Violations().FindByPlate(ctx, plate)
	if err != nil {
		return nil, storeErr("failed to query violations", err)
	}
	if vehicle == nil && len(violations) == 0 {
		return nil, fmt.Errorf("%w: no records for plate %s", ErrNotFound, plate)
	}

	return &PlateHistory{
		PlateNumber: plate,
		Vehicle:     vehicle,
		Violations:  violations,
		Summary:     summarize(vehicle, violations),
	}, nil
}

// summarize totals a plate's history. Outstanding covers payable violations
// only; contested and court-pending fines are neither paid nor outstanding.
func summarize(vehicle *models.Vehicle, violations []models.Violation) HistorySummary {
	sum := HistorySummary{
		TotalAmount:       decimal.Zero,
		PaidAmount:        decimal.Zero,
		OutstandingAmount: decimal.Zero,
		TotalViolations:   len(violations),
	}
	for _, v := range violations {
		sum.TotalAmount = sum.TotalAmount.Add(v.FineAmount)
		switch {
		case v.Status == models.ViolationStatusPaid:
			sum.PaidViolations++
			sum.PaidAmount = sum.PaidAmount.Add(v.FineAmount)
		case v.Status.IsPayable():
			sum.PendingViolations++
			sum.OutstandingAmount = sum.OutstandingAmount.Add(v.FineAmount)
		}
	}
	if vehicle != nil {
		sum.CurrentPoints = vehicle.CurrentPoints
		sum.VehicleStatus = vehicle.Status
	}
	return sum
}

func (s *violationService) ListViolationTypes(ctx context.Context, activeOnly bool) ([]models.ViolationType, error) {
	types, err := s.store.ViolationTypes().List(ctx, activeOnly)
	if err != nil {
		return nil, storeErr("failed to list violation types", err)
	}
	return types, nil
}
