package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/stwalsh4118/roadwarden/internal/models"
)

// VehicleRepository defines data access for vehicle owner records.
// Plate and license numbers are stored normalized; callers normalize first.
type VehicleRepository interface {
	// FindByID returns nil, nil if no vehicle has the given id.
	FindByID(ctx context.Context, id int64) (*models.Vehicle, error)

	// FindByPlate returns nil, nil if the plate is not registered.
	FindByPlate(ctx context.Context, plate string) (*models.Vehicle, error)

	// FindByPlateForUpdate is FindByPlate with a row lock held until the
	// enclosing transaction ends.
	FindByPlateForUpdate(ctx context.Context, plate string) (*models.Vehicle, error)

	// FindByLicense returns nil, nil if no vehicle carries the license number.
	FindByLicense(ctx context.Context, license string) (*models.Vehicle, error)

	// ListPlates returns every stored plate number.
	ListPlates(ctx context.Context) ([]string, error)

	// Create inserts v and sets its ID and timestamps. A duplicate plate or
	// license yields ErrUniqueViolation without aborting the enclosing
	// transaction.
	Create(ctx context.Context, v *models.Vehicle) error

	// Update writes every mutable column of v and refreshes UpdatedAt.
	Update(ctx context.Context, v *models.Vehicle) error
}

type vehicleRepository struct {
	q querier
}

const vehicleColumns = `
	id, plate_number, license_number, license_class, owner_name, owner_phone,
	owner_email, owner_address, vehicle_make, vehicle_model, vehicle_color,
	current_points, status, is_placeholder, created_at, updated_at`

func scanVehicle(row scanner) (*models.Vehicle, error) {
	var v models.Vehicle
	err := row.Scan(
		&v.ID,
		&v.PlateNumber,
		&v.LicenseNumber,
		&v.LicenseClass,
		&v.OwnerName,
		&v.OwnerPhone,
		&v.OwnerEmail,
		&v.OwnerAddress,
		&v.VehicleMake,
		&v.VehicleModel,
		&v.VehicleColor,
		&v.CurrentPoints,
		&v.Status,
		&v.IsPlaceholder,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *vehicleRepository) findOne(ctx context.Context, op, where string, lock bool, arg any) (*models.Vehicle, error) {
	query := forUpdate(`SELECT `+vehicleColumns+` FROM vehicles WHERE `+where, lock)

	v, err := scanVehicle(r.q.QueryRow(ctx, query, arg))
	if err != nil {
		// Handle no rows found - this is not an error at the repository level
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr(op, err)
	}
	return v, nil
}

func (r *vehicleRepository) FindByID(ctx context.Context, id int64) (*models.Vehicle, error) {
	return r.findOne(ctx, "failed to query vehicle by id", "id = $1", false, id)
}

func (r *vehicleRepository) FindByPlate(ctx context.Context, plate string) (*models.Vehicle, error) {
	return r.findOne(ctx, "failed to query vehicle by plate", "plate_number = $1", false, plate)
}

func (r *vehicleRepository) FindByPlateForUpdate(ctx context.Context, plate string) (*models.Vehicle, error) {
	return r.findOne(ctx, "failed to lock vehicle by plate", "plate_number = $1", true, plate)
}

func (r *vehicleRepository) FindByLicense(ctx context.Context, license string) (*models.Vehicle, error) {
	return r.findOne(ctx, "failed to query vehicle by license", "license_number = $1", false, license)
}

func (r *vehicleRepository) ListPlates(ctx context.Context) ([]string, error) {
	rows, err := r.q.Query(ctx, `SELECT plate_number FROM vehicles ORDER BY id`)
	if err != nil {
		return nil, wrapErr("failed to list plates", err)
	}

	plates, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrapErr("failed to scan plates", err)
	}
	return plates, nil
}

func (r *vehicleRepository) Create(ctx context.Context, v *models.Vehicle) error {
	query := `
		INSERT INTO vehicles (
			plate_number, license_number, license_class, owner_name, owner_phone,
			owner_email, owner_address, vehicle_make, vehicle_model, vehicle_color,
			current_points, status, is_placeholder
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT DO NOTHING
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		v.PlateNumber, v.LicenseNumber, v.LicenseClass, v.OwnerName, v.OwnerPhone,
		v.OwnerEmail, v.OwnerAddress, v.VehicleMake, v.VehicleModel, v.VehicleColor,
		v.CurrentPoints, v.Status, v.IsPlaceholder,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("plate %s or its license is already registered: %w", v.PlateNumber, ErrUniqueViolation)
		}
		return wrapErr("failed to insert vehicle", err)
	}
	return nil
}

func (r *vehicleRepository) Update(ctx context.Context, v *models.Vehicle) error {
	query := `
		UPDATE vehicles SET
			plate_number = $2, license_number = $3, license_class = $4, owner_name = $5,
			owner_phone = $6, owner_email = $7, owner_address = $8, vehicle_make = $9,
			vehicle_model = $10, vehicle_color = $11, current_points = $12, status = $13,
			is_placeholder = $14, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.q.QueryRow(ctx, query,
		v.ID, v.PlateNumber, v.LicenseNumber, v.LicenseClass, v.OwnerName,
		v.OwnerPhone, v.OwnerEmail, v.OwnerAddress, v.VehicleMake,
		v.VehicleModel, v.VehicleColor, v.CurrentPoints, v.Status,
		v.IsPlaceholder,
	).Scan(&v.UpdatedAt)
	if err != nil {
		return wrapErr("failed to update vehicle", err)
	}
	return nil
}
