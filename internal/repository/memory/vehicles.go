package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/stwalsh4118/roadwarden/internal/models"
	"github.com/stwalsh4118/roadwarden/internal/repository"
)

type vehicleRepo struct{ s *Store }

func (r vehicleRepo) find(match func(models.Vehicle) bool) (*models.Vehicle, error) {
	var out *models.Vehicle
	err := r.s.do(func(st *state, _ time.Time) error {
		for _, v := range st.vehicles {
			if match(v) {
				v := v
				out = &v
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r vehicleRepo) FindByID(_ context.Context, id int64) (*models.Vehicle, error) {
	return r.find(func(v models.Vehicle) bool { return v.ID == id })
}

func (r vehicleRepo) FindByPlate(_ context.Context, plate string) (*models.Vehicle, error) {
	return r.find(func(v models.Vehicle) bool { return v.PlateNumber == plate })
}

func (r vehicleRepo) FindByPlateForUpdate(ctx context.Context, plate string) (*models.Vehicle, error) {
	return r.FindByPlate(ctx, plate)
}

func (r vehicleRepo) FindByLicense(_ context.Context, license string) (*models.Vehicle, error) {
	return r.find(func(v models.Vehicle) bool {
		return v.LicenseNumber != nil && *v.LicenseNumber == license
	})
}

func (r vehicleRepo) ListPlates(_ context.Context) ([]string, error) {
	var plates []string
	err := r.s.do(func(st *state, _ time.Time) error {
		ids := make([]int64, 0, len(st.vehicles))
		for id := range st.vehicles {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		plates = make([]string, 0, len(ids))
		for _, id := range ids {
			plates = append(plates, st.vehicles[id].PlateNumber)
		}
		return nil
	})
	return plates, err
}

func checkVehicleUnique(st *state, v *models.Vehicle) error {
	for _, existing := range st.vehicles {
		if existing.ID == v.ID {
			continue
		}
		if existing.PlateNumber == v.PlateNumber {
			return fmt.Errorf("plate %s: %w", v.PlateNumber, repository.ErrUniqueViolation)
		}
		if v.LicenseNumber != nil && existing.LicenseNumber != nil && *existing.LicenseNumber == *v.LicenseNumber {
			return fmt.Errorf("license %s: %w", *v.LicenseNumber, repository.ErrUniqueViolation)
		}
	}
	return nil
}

func (r vehicleRepo) Create(_ context.Context, v *models.Vehicle) error {
	return r.s.do(func(st *state, now time.Time) error {
		if err := checkVehicleUnique(st, v); err != nil {
			return err
		}
		v.ID = st.id()
		v.CreatedAt = now
		v.UpdatedAt = now
		st.vehicles[v.ID] = *v
		return nil
	})
}

func (r vehicleRepo) Update(_ context.Context, v *models.Vehicle) error {
	return r.s.do(func(st *state, now time.Time) error {
		existing, ok := st.vehicles[v.ID]
		if !ok {
			return fmt.Errorf("vehicle %d does not exist", v.ID)
		}
		if err := checkVehicleUnique(st, v); err != nil {
			return err
		}
		v.CreatedAt = existing.CreatedAt
		v.UpdatedAt = now
		st.vehicles[v.ID] = *v
		return nil
	})
}
