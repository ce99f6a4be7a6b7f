package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/roadwarden/internal/models"
	"github.com/stwalsh4118/roadwarden/internal/repository"
)

func strPtr(s string) *string { return &s }

func TestVehicles_UniquePlateAndLicense(t *testing.T) {
	s := New()
	ctx := context.Background()

	a := &models.Vehicle{PlateNumber: "ABC-123-DE", LicenseNumber: strPtr("LIC1"), OwnerName: "A", Status: models.VehicleStatusActive}
	require.NoError(t, s.Vehicles().Create(ctx, a))

	err := s.Vehicles().Create(ctx, &models.Vehicle{PlateNumber: "ABC-123-DE", OwnerName: "B"})
	assert.ErrorIs(t, err, repository.ErrUniqueViolation)

	err = s.Vehicles().Create(ctx, &models.Vehicle{PlateNumber: "LA-456-B", LicenseNumber: strPtr("LIC1"), OwnerName: "B"})
	assert.ErrorIs(t, err, repository.ErrUniqueViolation)

	// updating a record with its own plate is not a conflict
	a.OwnerName = "A. Renamed"
	require.NoError(t, s.Vehicles().Update(ctx, a))

	got, err := s.Vehicles().FindByLicense(ctx, "LIC1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "A. Renamed", got.OwnerName)

	missing, err := s.Vehicles().FindByPlate(ctx, "NOPE")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx repository.Store) error {
		require.NoError(t, tx.Vehicles().Create(ctx, &models.Vehicle{PlateNumber: "ABC-123-DE", OwnerName: "A"}))
		// nested transactions join the outer one
		return tx.WithTx(ctx, func(inner repository.Store) error {
			require.NoError(t, inner.Vehicles().Create(ctx, &models.Vehicle{PlateNumber: "LA-456-B", OwnerName: "B"}))
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	plates, err := s.Vehicles().ListPlates(ctx)
	require.NoError(t, err)
	assert.Empty(t, plates)
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx repository.Store) error {
		return tx.Vehicles().Create(ctx, &models.Vehicle{PlateNumber: "ABC-123-DE", OwnerName: "A"})
	})
	require.NoError(t, err)

	plates, err := s.Vehicles().ListPlates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC-123-DE"}, plates)
}

func TestWithTx_SerializesReadModifyWrite(t *testing.T) {
	s := New()
	ctx := context.Background()
	v := &models.Vehicle{PlateNumber: "ABC-123-DE", OwnerName: "A", Status: models.VehicleStatusActive}
	require.NoError(t, s.Vehicles().Create(ctx, v))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithTx(ctx, func(tx repository.Store) error {
				cur, err := tx.Vehicles().FindByPlateForUpdate(ctx, "ABC-123-DE")
				if err != nil {
					return err
				}
				cur.CurrentPoints++
				return tx.Vehicles().Update(ctx, cur)
			})
		}()
	}
	wg.Wait()

	got, err := s.Vehicles().FindByPlate(ctx, "ABC-123-DE")
	require.NoError(t, err)
	assert.Equal(t, 20, got.CurrentPoints)
}

func TestViolations_PayableAndTicketUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()

	vt := &models.ViolationType{Code: "SPD", Name: "Speeding", FineAmount: decimal.NewFromInt(100), Points: 2, Active: true}
	require.NoError(t, s.ViolationTypes().Create(ctx, vt))

	now := time.Now().UTC()
	mk := func(ticket string, status models.ViolationStatus) *models.Violation {
		v := &models.Violation{
			TicketNumber: ticket, PlateNumber: "ABC-123-DE", ViolationTypeID: vt.ID,
			FineAmount: vt.FineAmount, Status: status, ViolationDate: now, DueDate: now.AddDate(0, 0, 30),
		}
		require.NoError(t, s.Violations().Create(ctx, v))
		return v
	}
	pending := mk("T1", models.ViolationStatusPending)
	paid := mk("T2", models.ViolationStatusPaid)
	partial := mk("T3", models.ViolationStatusPartiallyPaid)

	err := s.Violations().Create(ctx, &models.Violation{TicketNumber: "T1", ViolationTypeID: vt.ID})
	assert.ErrorIs(t, err, repository.ErrUniqueViolation)

	payable, err := s.Violations().FindPayableForUpdate(ctx, []int64{pending.ID, paid.ID, partial.ID, 999})
	require.NoError(t, err)
	require.Len(t, payable, 2)
	assert.Equal(t, pending.ID, payable[0].ID)
	assert.Equal(t, partial.ID, payable[1].ID)

	byPlate, err := s.Violations().FindByPlate(ctx, "ABC-123-DE")
	require.NoError(t, err)
	assert.Len(t, byPlate, 3)
	assert.Equal(t, partial.ID, byPlate[0].ID, "same date orders newest id first")
}

func TestPayments_Aggregate(t *testing.T) {
	day1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := day1
	s := NewWithClock(func() time.Time { return clock })
	ctx := context.Background()

	vt := &models.ViolationType{Code: "SPD", FineAmount: decimal.NewFromInt(100), Active: true}
	require.NoError(t, s.ViolationTypes().Create(ctx, vt))
	v := &models.Violation{TicketNumber: "T1", ViolationTypeID: vt.ID, Status: models.ViolationStatusPending}
	require.NoError(t, s.Violations().Create(ctx, v))

	add := func(ref, gateway string, amount int64, status models.PaymentStatus) {
		require.NoError(t, s.Payments().Create(ctx, &models.Payment{
			ViolationID: v.ID, PaymentReference: ref, Gateway: gateway,
			Amount: decimal.NewFromInt(amount), Status: status,
		}))
	}
	add("R1", "paystack", 100, models.PaymentStatusCompleted)
	add("R2", "paystack", 50, models.PaymentStatusFailed)
	clock = day1.Add(24 * time.Hour)
	add("R3", "flutterwave", 70, models.PaymentStatusCompleted)

	byStatus, err := s.Payments().Aggregate(ctx, repository.StatsFilter{}, repository.GroupByStatus)
	require.NoError(t, err)
	require.Len(t, byStatus, 2)
	assert.Equal(t, "completed", byStatus[0].Key)
	assert.Equal(t, int64(2), byStatus[0].Count)
	assert.True(t, decimal.NewFromInt(170).Equal(byStatus[0].Amount))

	byDay, err := s.Payments().Aggregate(ctx, repository.StatsFilter{Gateway: "paystack"}, repository.GroupByDay)
	require.NoError(t, err)
	require.Len(t, byDay, 1)
	assert.Equal(t, "2024-03-01", byDay[0].Key)

	from := day1.Add(time.Hour)
	byGateway, err := s.Payments().Aggregate(ctx, repository.StatsFilter{From: &from}, repository.GroupByGateway)
	require.NoError(t, err)
	require.Len(t, byGateway, 1)
	assert.Equal(t, "flutterwave", byGateway[0].Key)

	_, err = s.Payments().Aggregate(ctx, repository.StatsFilter{}, "officer")
	assert.Error(t, err)
}

func TestPayments_RefundBoundEnforced(t *testing.T) {
	s := New()
	ctx := context.Background()

	vt := &models.ViolationType{Code: "SPD", Active: true}
	require.NoError(t, s.ViolationTypes().Create(ctx, vt))
	v := &models.Violation{TicketNumber: "T1", ViolationTypeID: vt.ID}
	require.NoError(t, s.Violations().Create(ctx, v))

	p := &models.Payment{ViolationID: v.ID, PaymentReference: "R1", Amount: decimal.NewFromInt(100)}
	require.NoError(t, s.Payments().Create(ctx, p))

	p.RefundedAmount = decimal.NewFromInt(101)
	assert.Error(t, s.Payments().Update(ctx, p))
}
