package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/stwalsh4118/roadwarden/internal/models"
)

// ViolationTypeRepository defines read access to the violation catalog.
type ViolationTypeRepository interface {
	// FindByIDs returns the catalog entries with the given ids, active or not.
	// Missing ids are simply absent from the result.
	FindByIDs(ctx context.Context, ids []int64) ([]models.ViolationType, error)

	// List returns catalog entries ordered by code.
	List(ctx context.Context, activeOnly bool) ([]models.ViolationType, error)

	// Create inserts t and sets its ID and CreatedAt.
	Create(ctx context.Context, t *models.ViolationType) error
}

type violationTypeRepository struct {
	q querier
}

const violationTypeColumns = `
	id, code, name, description, category, fine_amount, points,
	suspension_eligible, active, created_at`

func scanViolationType(row scanner) (models.ViolationType, error) {
	var t models.ViolationType
	err := row.Scan(
		&t.ID,
		&t.Code,
		&t.Name,
		&t.Description,
		&t.Category,
		&t.FineAmount,
		&t.Points,
		&t.SuspensionEligible,
		&t.Active,
		&t.CreatedAt,
	)
	return t, err
}

func (r *violationTypeRepository) collect(rows pgx.Rows, err error, op string) ([]models.ViolationType, error) {
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	types := []models.ViolationType{}
	for rows.Next() {
		t, err := scanViolationType(rows)
		if err != nil {
			return nil, wrapErr("failed to scan violation type", err)
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("error iterating violation types", err)
	}
	return types, nil
}

func (r *violationTypeRepository) FindByIDs(ctx context.Context, ids []int64) ([]models.ViolationType, error) {
	query := `SELECT ` + violationTypeColumns + ` FROM violation_types WHERE id = ANY($1) ORDER BY id`
	rows, err := r.q.Query(ctx, query, ids)
	return r.collect(rows, err, "failed to query violation types")
}

func (r *violationTypeRepository) List(ctx context.Context, activeOnly bool) ([]models.ViolationType, error) {
	query := `SELECT ` + violationTypeColumns + ` FROM violation_types WHERE ($1 = FALSE OR active) ORDER BY code`
	rows, err := r.q.Query(ctx, query, activeOnly)
	return r.collect(rows, err, "failed to list violation types")
}

func (r *violationTypeRepository) Create(ctx context.Context, t *models.ViolationType) error {
	query := `
		INSERT INTO violation_types (
			code, name, description, category, fine_amount, points, suspension_eligible, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := r.q.QueryRow(ctx, query,
		t.Code, t.Name, t.Description, t.Category, t.FineAmount, t.Points,
		t.SuspensionEligible, t.Active,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return wrapErr("failed to insert violation type", err)
	}
	return nil
}
