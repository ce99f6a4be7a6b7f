package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/stwalsh4118/roadwarden/internal/models"
)

// ViolationRepository defines data access for violation records.
type ViolationRepository interface {
	// Create inserts v and sets its ID and timestamps. A ticket number that
	// already exists yields ErrUniqueViolation without aborting the
	// enclosing transaction, so the caller can retry with a new number.
	Create(ctx context.Context, v *models.Violation) error

	// FindByID returns nil, nil if the violation does not exist.
	FindByID(ctx context.Context, id int64) (*models.Violation, error)

	// FindByIDForUpdate is FindByID with a row lock.
	FindByIDForUpdate(ctx context.Context, id int64) (*models.Violation, error)

	// FindByTicket returns nil, nil if the ticket number is unknown.
	FindByTicket(ctx context.Context, ticket string) (*models.Violation, error)

	// FindByPlate returns every violation recorded against the plate,
	// newest first.
	FindByPlate(ctx context.Context, plate string) ([]models.Violation, error)

	// FindPayableForUpdate locks and returns the violations among ids whose
	// status allows a payment to be initiated.
	FindPayableForUpdate(ctx context.Context, ids []int64) ([]models.Violation, error)

	// Update writes the mutable lifecycle columns of v.
	Update(ctx context.Context, v *models.Violation) error
}

type violationRepository struct {
	q querier
}

const violationColumns = `
	id, ticket_number, plate_number, vehicle_id, officer_id, violation_type_id,
	fine_amount, points, latitude, longitude, address, state, lga, evidence,
	conditions, status, violation_date, due_date, paid_date, contest_date,
	contest_reason, is_overturned, notes, created_at, updated_at`

func scanViolation(row scanner) (*models.Violation, error) {
	var v models.Violation
	err := row.Scan(
		&v.ID,
		&v.TicketNumber,
		&v.PlateNumber,
		&v.VehicleID,
		&v.OfficerID,
		&v.ViolationTypeID,
		&v.FineAmount,
		&v.Points,
		&v.Location.Latitude,
		&v.Location.Longitude,
		&v.Location.Address,
		&v.Location.State,
		&v.Location.LGA,
		&v.Evidence,
		&v.Conditions,
		&v.Status,
		&v.ViolationDate,
		&v.DueDate,
		&v.PaidDate,
		&v.ContestDate,
		&v.ContestReason,
		&v.IsOverturned,
		&v.Notes,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *violationRepository) Create(ctx context.Context, v *models.Violation) error {
	query := `
		INSERT INTO violations (
			ticket_number, plate_number, vehicle_id, officer_id, violation_type_id,
			fine_amount, points, latitude, longitude, address, state, lga, evidence,
			conditions, status, violation_date, due_date, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (ticket_number) DO NOTHING
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		v.TicketNumber, v.PlateNumber, v.VehicleID, v.OfficerID, v.ViolationTypeID,
		v.FineAmount, v.Points, v.Location.Latitude, v.Location.Longitude,
		v.Location.Address, v.Location.State, v.Location.LGA, v.Evidence,
		v.Conditions, v.Status, v.ViolationDate, v.DueDate, v.Notes,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("ticket number %s already exists: %w", v.TicketNumber, ErrUniqueViolation)
		}
		return wrapErr("failed to insert violation", err)
	}
	return nil
}

func (r *violationRepository) findOne(ctx context.Context, op, where string, lock bool, arg any) (*models.Violation, error) {
	query := forUpdate(`SELECT `+violationColumns+` FROM violations WHERE `+where, lock)

	v, err := scanViolation(r.q.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr(op, err)
	}
	return v, nil
}

func (r *violationRepository) FindByID(ctx context.Context, id int64) (*models.Violation, error) {
	return r.findOne(ctx, "failed to query violation", "id = $1", false, id)
}

func (r *violationRepository) FindByIDForUpdate(ctx context.Context, id int64) (*models.Violation, error) {
	return r.findOne(ctx, "failed to lock violation", "id = $1", true, id)
}

func (r *violationRepository) FindByTicket(ctx context.Context, ticket string) (*models.Violation, error) {
	return r.findOne(ctx, "failed to query violation by ticket", "ticket_number = $1", false, ticket)
}

func (r *violationRepository) findMany(ctx context.Context, op, query string, args ...any) ([]models.Violation, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	violations := []models.Violation{}
	for rows.Next() {
		v, err := scanViolation(rows)
		if err != nil {
			return nil, wrapErr("failed to scan violation", err)
		}
		violations = append(violations, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("error iterating violations", err)
	}
	return violations, nil
}

func (r *violationRepository) FindByPlate(ctx context.Context, plate string) ([]models.Violation, error) {
	query := `SELECT ` + violationColumns + ` FROM violations
		WHERE plate_number = $1
		ORDER BY violation_date DESC, id DESC`
	return r.findMany(ctx, "failed to query violations by plate", query, plate)
}

func (r *violationRepository) FindPayableForUpdate(ctx context.Context, ids []int64) ([]models.Violation, error) {
	query := `SELECT ` + violationColumns + ` FROM violations
		WHERE id = ANY($1) AND status IN ('pending', 'partially_paid')
		ORDER BY id
		FOR UPDATE`
	return r.findMany(ctx, "failed to lock payable violations", query, ids)
}

func (r *violationRepository) Update(ctx context.Context, v *models.Violation) error {
	query := `
		UPDATE violations SET
			status = $2, paid_date = $3, contest_date = $4, contest_reason = $5,
			is_overturned = $6, notes = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.q.QueryRow(ctx, query,
		v.ID, v.Status, v.PaidDate, v.ContestDate, v.ContestReason, v.IsOverturned, v.Notes,
	).Scan(&v.UpdatedAt)
	if err != nil {
		return wrapErr("failed to update violation", err)
	}
	return nil
}
