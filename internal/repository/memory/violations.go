package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/stwalsh4118/roadwarden/internal/models"
	"github.com/stwalsh4118/roadwarden/internal/repository"
)

type violationTypeRepo struct{ s *Store }

func (r violationTypeRepo) FindByIDs(_ context.Context, ids []int64) ([]models.ViolationType, error) {
	out := []models.ViolationType{}
	err := r.s.do(func(st *state, _ time.Time) error {
		seen := make(map[int64]bool, len(ids))
		for _, id := range ids {
			if t, ok := st.types[id]; ok && !seen[id] {
				seen[id] = true
				out = append(out, t)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

func (r violationTypeRepo) List(_ context.Context, activeOnly bool) ([]models.ViolationType, error) {
	out := []models.ViolationType{}
	err := r.s.do(func(st *state, _ time.Time) error {
		for _, t := range st.types {
			if activeOnly && !t.Active {
				continue
			}
			out = append(out, t)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
		return nil
	})
	return out, err
}

func (r violationTypeRepo) Create(_ context.Context, t *models.ViolationType) error {
	return r.s.do(func(st *state, now time.Time) error {
		for _, existing := range st.types {
			if existing.Code == t.Code {
				return fmt.Errorf("violation type %s: %w", t.Code, repository.ErrUniqueViolation)
			}
		}
		t.ID = st.id()
		t.CreatedAt = now
		st.types[t.ID] = *t
		return nil
	})
}

type violationRepo struct{ s *Store }

func (r violationRepo) Create(_ context.Context, v *models.Violation) error {
	return r.s.do(func(st *state, now time.Time) error {
		for _, existing := range st.violations {
			if existing.TicketNumber == v.TicketNumber {
				return fmt.Errorf("ticket number %s already exists: %w", v.TicketNumber, repository.ErrUniqueViolation)
			}
		}
		if _, ok := st.types[v.ViolationTypeID]; !ok {
			return fmt.Errorf("violation type %d does not exist", v.ViolationTypeID)
		}
		if v.Evidence == nil {
			v.Evidence = models.Evidence{}
		}
		v.ID = st.id()
		v.CreatedAt = now
		v.UpdatedAt = now
		st.violations[v.ID] = *v
		return nil
	})
}

func (r violationRepo) FindByID(_ context.Context, id int64) (*models.Violation, error) {
	var out *models.Violation
	err := r.s.do(func(st *state, _ time.Time) error {
		if v, ok := st.violations[id]; ok {
			out = &v
		}
		return nil
	})
	return out, err
}

func (r violationRepo) FindByIDForUpdate(ctx context.Context, id int64) (*models.Violation, error) {
	return r.FindByID(ctx, id)
}

func (r violationRepo) FindByTicket(_ context.Context, ticket string) (*models.Violation, error) {
	var out *models.Violation
	err := r.s.do(func(st *state, _ time.Time) error {
		for _, v := range st.violations {
			if v.TicketNumber == ticket {
				v := v
				out = &v
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r violationRepo) FindByPlate(_ context.Context, plate string) ([]models.Violation, error) {
	out := []models.Violation{}
	err := r.s.do(func(st *state, _ time.Time) error {
		for _, v := range st.violations {
			if v.PlateNumber == plate {
				out = append(out, v)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if !out[i].ViolationDate.Equal(out[j].ViolationDate) {
				return out[i].ViolationDate.After(out[j].ViolationDate)
			}
			return out[i].ID > out[j].ID
		})
		return nil
	})
	return out, err
}

func (r violationRepo) FindPayableForUpdate(_ context.Context, ids []int64) ([]models.Violation, error) {
	out := []models.Violation{}
	err := r.s.do(func(st *state, _ time.Time) error {
		seen := make(map[int64]bool, len(ids))
		for _, id := range ids {
			v, ok := st.violations[id]
			if !ok || seen[id] || !v.Status.IsPayable() {
				continue
			}
			seen[id] = true
			out = append(out, v)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

func (r violationRepo) Update(_ context.Context, v *models.Violation) error {
	return r.s.do(func(st *state, now time.Time) error {
		existing, ok := st.violations[v.ID]
		if !ok {
			return fmt.Errorf("violation %d does not exist", v.ID)
		}
		existing.Status = v.Status
		existing.PaidDate = v.PaidDate
		existing.ContestDate = v.ContestDate
		existing.ContestReason = v.ContestReason
		existing.IsOverturned = v.IsOverturned
		existing.Notes = v.Notes
		existing.UpdatedAt = now
		st.violations[v.ID] = existing
		v.UpdatedAt = now
		return nil
	})
}
