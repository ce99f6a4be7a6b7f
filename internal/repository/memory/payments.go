package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stwalsh4118/roadwarden/internal/models"
	"github.com/stwalsh4118/roadwarden/internal/repository"
)

type paymentRepo struct{ s *Store }

func (r paymentRepo) Create(_ context.Context, p *models.Payment) error {
	return r.s.do(func(st *state, now time.Time) error {
		if _, ok := st.violations[p.ViolationID]; !ok {
			return fmt.Errorf("violation %d does not exist", p.ViolationID)
		}
		for _, existing := range st.payments {
			if existing.PaymentReference == p.PaymentReference && existing.ViolationID == p.ViolationID {
				return fmt.Errorf("payment %s for violation %d: %w", p.PaymentReference, p.ViolationID, repository.ErrUniqueViolation)
			}
		}
		p.ID = st.id()
		p.CreatedAt = now
		p.UpdatedAt = now
		st.payments[p.ID] = *p
		return nil
	})
}

func (r paymentRepo) FindByID(_ context.Context, id int64) (*models.Payment, error) {
	var out *models.Payment
	err := r.s.do(func(st *state, _ time.Time) error {
		if p, ok := st.payments[id]; ok {
			out = &p
		}
		return nil
	})
	return out, err
}

func (r paymentRepo) FindByIDForUpdate(ctx context.Context, id int64) (*models.Payment, error) {
	return r.FindByID(ctx, id)
}

func (r paymentRepo) filter(match func(models.Payment) bool) ([]models.Payment, error) {
	out := []models.Payment{}
	err := r.s.do(func(st *state, _ time.Time) error {
		for _, p := range st.payments {
			if match(p) {
				out = append(out, p)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

func (r paymentRepo) FindByReference(_ context.Context, reference string) ([]models.Payment, error) {
	return r.filter(func(p models.Payment) bool { return p.PaymentReference == reference })
}

func (r paymentRepo) FindPendingByReferenceForUpdate(_ context.Context, reference string) ([]models.Payment, error) {
	return r.filter(func(p models.Payment) bool {
		return p.PaymentReference == reference && p.Status == models.PaymentStatusPending
	})
}

func (r paymentRepo) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	payments, err := r.FindByReference(ctx, reference)
	return len(payments) > 0, err
}

func (r paymentRepo) Update(_ context.Context, p *models.Payment) error {
	return r.s.do(func(st *state, now time.Time) error {
		existing, ok := st.payments[p.ID]
		if !ok {
			return fmt.Errorf("payment %d does not exist", p.ID)
		}
		if p.RefundedAmount.GreaterThan(existing.Amount) {
			return fmt.Errorf("refunded amount %s exceeds payment amount %s", p.RefundedAmount, existing.Amount)
		}
		existing.GatewayReference = p.GatewayReference
		existing.GatewayResponse = p.GatewayResponse
		existing.PaymentURL = p.PaymentURL
		existing.Status = p.Status
		existing.PaymentDate = p.PaymentDate
		existing.RefundedAmount = p.RefundedAmount
		existing.RefundReason = p.RefundReason
		existing.RefundDate = p.RefundDate
		existing.RefundedBy = p.RefundedBy
		existing.UpdatedAt = now
		st.payments[p.ID] = existing
		p.UpdatedAt = now
		return nil
	})
}

func (r paymentRepo) Aggregate(_ context.Context, filter repository.StatsFilter, group repository.StatsGroup) ([]repository.GroupTotal, error) {
	var key func(models.Payment) string
	switch group {
	case repository.GroupByStatus:
		key = func(p models.Payment) string { return string(p.Status) }
	case repository.GroupByGateway:
		key = func(p models.Payment) string { return p.Gateway }
	case repository.GroupByDay:
		key = func(p models.Payment) string { return p.CreatedAt.UTC().Format("2006-01-02") }
	default:
		return nil, fmt.Errorf("unsupported statistics group %q", group)
	}

	payments, err := r.filter(func(p models.Payment) bool {
		if filter.From != nil && p.CreatedAt.Before(*filter.From) {
			return false
		}
		if filter.To != nil && !p.CreatedAt.Before(*filter.To) {
			return false
		}
		return filter.Gateway == "" || p.Gateway == filter.Gateway
	})
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]*repository.GroupTotal)
	for _, p := range payments {
		k := key(p)
		t, ok := byKey[k]
		if !ok {
			t = &repository.GroupTotal{Key: k, Amount: decimal.Zero}
			byKey[k] = t
		}
		t.Count++
		t.Amount = t.Amount.Add(p.Amount)
	}

	totals := make([]repository.GroupTotal, 0, len(byKey))
	for _, t := range byKey {
		totals = append(totals, *t)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Key < totals[j].Key })
	return totals, nil
}
