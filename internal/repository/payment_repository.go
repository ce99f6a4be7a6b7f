package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stwalsh4118/roadwarden/internal/models"
)

// StatsGroup selects the dimension payment statistics are grouped by.
type StatsGroup string

const (
	GroupByStatus  StatsGroup = "status"
	GroupByGateway StatsGroup = "gateway"
	GroupByDay     StatsGroup = "day"
)

// groupExpressions whitelists the SQL expression for each StatsGroup.
var groupExpressions = map[StatsGroup]string{
	GroupByStatus:  "status",
	GroupByGateway: "gateway",
	GroupByDay:     "to_char(date_trunc('day', created_at AT TIME ZONE 'UTC'), 'YYYY-MM-DD')",
}

// StatsFilter restricts payment statistics. Nil bounds and an empty gateway
// are unrestricted. From is inclusive, To is exclusive.
type StatsFilter struct {
	From    *time.Time
	To      *time.Time
	Gateway string
}

// GroupTotal is the count and summed amount of payments sharing Key.
type GroupTotal struct {
	Key    string          `json:"key"`
	Amount decimal.Decimal `json:"amount"`
	Count  int64           `json:"count"`
}

// PaymentRepository defines data access for payment rows.
type PaymentRepository interface {
	// Create inserts p and sets its ID and timestamps.
	Create(ctx context.Context, p *models.Payment) error

	// FindByID returns nil, nil if the payment does not exist.
	FindByID(ctx context.Context, id int64) (*models.Payment, error)

	// FindByIDForUpdate is FindByID with a row lock.
	FindByIDForUpdate(ctx context.Context, id int64) (*models.Payment, error)

	// FindByReference returns every payment sharing the reference, any status.
	FindByReference(ctx context.Context, reference string) ([]models.Payment, error)

	// FindPendingByReferenceForUpdate locks and returns the pending payments
	// sharing the reference.
	FindPendingByReferenceForUpdate(ctx context.Context, reference string) ([]models.Payment, error)

	// ReferenceExists reports whether any payment uses the reference.
	ReferenceExists(ctx context.Context, reference string) (bool, error)

	// Update writes the mutable lifecycle columns of p.
	Update(ctx context.Context, p *models.Payment) error

	// Aggregate counts and sums payments matching filter, grouped by group.
	Aggregate(ctx context.Context, filter StatsFilter, group StatsGroup) ([]GroupTotal, error)
}

type paymentRepository struct {
	q querier
}

const paymentColumns = `
	id, violation_id, amount, method, payment_reference, gateway_reference, gateway,
	gateway_response, payment_url, payer_name, payer_email, payer_phone, status,
	payment_date, refunded_amount, refund_reason, refund_date, refunded_by,
	created_at, updated_at`

func scanPayment(row scanner) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(
		&p.ID,
		&p.ViolationID,
		&p.Amount,
		&p.Method,
		&p.PaymentReference,
		&p.GatewayReference,
		&p.Gateway,
		&p.GatewayResponse,
		&p.PaymentURL,
		&p.Payer.Name,
		&p.Payer.Email,
		&p.Payer.Phone,
		&p.Status,
		&p.PaymentDate,
		&p.RefundedAmount,
		&p.RefundReason,
		&p.RefundDate,
		&p.RefundedBy,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepository) Create(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO payments (
			violation_id, amount, method, payment_reference, gateway_reference, gateway,
			gateway_response, payment_url, payer_name, payer_email, payer_phone, status,
			refunded_amount
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		p.ViolationID, p.Amount, p.Method, p.PaymentReference, p.GatewayReference, p.Gateway,
		p.GatewayResponse, p.PaymentURL, p.Payer.Name, p.Payer.Email, p.Payer.Phone, p.Status,
		p.RefundedAmount,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return wrapErr("failed to insert payment", err)
	}
	return nil
}

func (r *paymentRepository) findOne(ctx context.Context, op string, lock bool, id int64) (*models.Payment, error) {
	query := forUpdate(`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, lock)

	p, err := scanPayment(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr(op, err)
	}
	return p, nil
}

func (r *paymentRepository) FindByID(ctx context.Context, id int64) (*models.Payment, error) {
	return r.findOne(ctx, "failed to query payment", false, id)
}

func (r *paymentRepository) FindByIDForUpdate(ctx context.Context, id int64) (*models.Payment, error) {
	return r.findOne(ctx, "failed to lock payment", true, id)
}

func (r *paymentRepository) findMany(ctx context.Context, op, query string, args ...any) ([]models.Payment, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()

	payments := []models.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, wrapErr("failed to scan payment", err)
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("error iterating payments", err)
	}
	return payments, nil
}

func (r *paymentRepository) FindByReference(ctx context.Context, reference string) ([]models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_reference = $1 ORDER BY id`
	return r.findMany(ctx, "failed to query payments by reference", query, reference)
}

func (r *paymentRepository) FindPendingByReferenceForUpdate(ctx context.Context, reference string) ([]models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE payment_reference = $1 AND status = 'pending'
		ORDER BY id
		FOR UPDATE`
	return r.findMany(ctx, "failed to lock pending payments", query, reference)
}

func (r *paymentRepository) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE payment_reference = $1)`, reference,
	).Scan(&exists)
	if err != nil {
		return false, wrapErr("failed to check payment reference", err)
	}
	return exists, nil
}

func (r *paymentRepository) Update(ctx context.Context, p *models.Payment) error {
	query := `
		UPDATE payments SET
			gateway_reference = $2, gateway_response = $3, payment_url = $4, status = $5,
			payment_date = $6, refunded_amount = $7, refund_reason = $8, refund_date = $9,
			refunded_by = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.q.QueryRow(ctx, query,
		p.ID, p.GatewayReference, p.GatewayResponse, p.PaymentURL, p.Status,
		p.PaymentDate, p.RefundedAmount, p.RefundReason, p.RefundDate, p.RefundedBy,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return wrapErr("failed to update payment", err)
	}
	return nil
}

func (r *paymentRepository) Aggregate(ctx context.Context, filter StatsFilter, group StatsGroup) ([]GroupTotal, error) {
	expr, ok := groupExpressions[group]
	if !ok {
		return nil, fmt.Errorf("unsupported statistics group %q", group)
	}

	query := fmt.Sprintf(`
		SELECT %s AS bucket, COUNT(*), COALESCE(SUM(amount), 0)
		FROM payments
		WHERE ($1::timestamptz IS NULL OR created_at >= $1)
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		  AND ($3 = '' OR gateway = $3)
		GROUP BY bucket
		ORDER BY bucket
	`, expr)

	rows, err := r.q.Query(ctx, query, filter.From, filter.To, filter.Gateway)
	if err != nil {
		return nil, wrapErr("failed to aggregate payments", err)
	}
	defer rows.Close()

	totals := []GroupTotal{}
	for rows.Next() {
		var t GroupTotal
		if err := rows.Scan(&t.Key, &t.Count, &t.Amount); err != nil {
			return nil, wrapErr("failed to scan payment aggregate", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("error iterating payment aggregates", err)
	}
	return totals, nil
}
