package gormstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carrental/internal/domain"
	"carrental/internal/repository"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func testRental(id, vehicleID string, now time.Time) *domain.Rental {
	return &domain.Rental{
		ID:            id,
		VehicleID:     vehicleID,
		RenterID:      "U1",
		StartDate:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC),
		TotalPrice:    500,
		Status:        domain.RentalStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestStore_VehicleRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC)

	vehicle := domain.NewVehicle("V101")
	vehicle.UpdatedAt = now
	require.NoError(t, store.Vehicles().Create(ctx, vehicle))

	err := store.Vehicles().Create(ctx, domain.NewVehicle("V101"))
	assert.ErrorIs(t, err, repository.ErrAlreadyExists)

	got, err := store.Vehicles().GetByID(ctx, "V101")
	require.NoError(t, err)
	assert.True(t, got.IsAvailable)
	assert.False(t, got.IsRented)
	assert.Equal(t, domain.VehicleStatusNotRented, got.Status)
	assert.Empty(t, got.RentedBy)
	assert.Empty(t, got.RentalID)
	assert.True(t, got.HeldUntil.IsZero())

	got.MarkRented("R1", "U1", now.Add(time.Minute))
	require.NoError(t, store.Vehicles().Update(ctx, got))

	got, err = store.Vehicles().GetByID(ctx, "V101")
	require.NoError(t, err)
	assert.True(t, got.IsRented)
	assert.False(t, got.IsAvailable)
	assert.Equal(t, "U1", got.RentedBy)
	assert.Equal(t, "R1", got.RentalID)
	assert.Equal(t, domain.VehicleStatusApproved, got.Status)
	assert.True(t, got.UpdatedAt.Equal(now.Add(time.Minute)))

	got.Release(now.Add(2 * time.Minute))
	require.NoError(t, store.Vehicles().Update(ctx, got))

	got, err = store.Vehicles().GetByID(ctx, "V101")
	require.NoError(t, err)
	assert.Empty(t, got.RentedBy)
	assert.Empty(t, got.RentalID)
}

func TestStore_NotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Vehicles().GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = store.Rentals().GetByIDForUpdate(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	err = store.Vehicles().Update(ctx, domain.NewVehicle("missing"))
	assert.ErrorIs(t, err, repository.ErrNotFound)

	err = store.Rentals().Update(ctx, testRental("missing", "V1", time.Now().UTC()))
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStore_RentalUpdate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC)

	rental := testRental("R1", "V101", now)
	rental.ReservedUntil = now.Add(15 * time.Minute)
	require.NoError(t, store.Rentals().Create(ctx, rental))

	got, err := store.Rentals().GetByID(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, domain.RentalStatusPending, got.Status)
	assert.Equal(t, domain.PaymentStatusPending, got.PaymentStatus)
	assert.Empty(t, got.PaymentReference)
	assert.True(t, got.ReservedUntil.Equal(now.Add(15*time.Minute)))
	assert.Equal(t, 500.0, got.TotalPrice)

	got.Confirm("ref-1", now.Add(time.Minute))
	require.NoError(t, store.Rentals().Update(ctx, got))

	got, err = store.Rentals().GetByID(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, domain.RentalStatusConfirmed, got.Status)
	assert.Equal(t, domain.PaymentStatusPaid, got.PaymentStatus)
	assert.Equal(t, "ref-1", got.PaymentReference)
}

func TestStore_ListQueries(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC)

	lapsed := testRental("R-lapsed", "V1", now)
	lapsed.ReservedUntil = now.Add(-time.Minute)
	live := testRental("R-live", "V2", now.Add(time.Second))
	live.ReservedUntil = now.Add(time.Hour)
	open := testRental("R-open", "V3", now.Add(2*time.Second))
	done := testRental("R-done", "V4", now.Add(3*time.Second))
	done.Confirm("ref", now)

	for _, r := range []*domain.Rental{lapsed, live, open, done} {
		require.NoError(t, store.Rentals().Create(ctx, r))
	}

	expired, err := store.Rentals().ListExpiredHolds(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "R-lapsed", expired[0].ID)

	pending, err := store.Rentals().ListByStatus(ctx, domain.RentalStatusPending, repository.RentalCursor{}, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "R-lapsed", pending[0].ID)
	assert.Equal(t, "R-open", pending[2].ID)

	limited, err := store.Rentals().ListByStatus(ctx, domain.RentalStatusPending, repository.RentalCursor{}, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	confirmed, err := store.Rentals().ListByStatus(ctx, domain.RentalStatusConfirmed, repository.RentalCursor{}, 10)
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, "R-done", confirmed[0].ID)
}

func TestStore_ListByStatusPagesWithCursor(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC)

	// R-b and R-c share a creation time, so the ID breaks the tie.
	for _, r := range []*domain.Rental{
		testRental("R-a", "V1", now),
		testRental("R-c", "V3", now.Add(time.Second)),
		testRental("R-b", "V2", now.Add(time.Second)),
		testRental("R-d", "V4", now.Add(2*time.Second)),
		testRental("R-e", "V5", now.Add(3*time.Second)),
	} {
		require.NoError(t, store.Rentals().Create(ctx, r))
	}

	var (
		seen   []string
		cursor repository.RentalCursor
	)
	for {
		page, err := store.Rentals().ListByStatus(ctx, domain.RentalStatusPending, cursor, 2)
		require.NoError(t, err)
		for _, r := range page {
			seen = append(seen, r.ID)
		}
		if len(page) < 2 {
			break
		}
		cursor = repository.CursorAfter(page[len(page)-1])
	}

	assert.Equal(t, []string{"R-a", "R-b", "R-c", "R-d", "R-e"}, seen)
}

func TestStore_WithinTxRollsBack(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Vehicles().Create(ctx, domain.NewVehicle("V101")))

	errBoom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		v, err := repos.Vehicles().GetByIDForUpdate(ctx, "V101")
		if err != nil {
			return err
		}
		v.Hold("R1", time.Time{}, now)
		if err := repos.Vehicles().Update(ctx, v); err != nil {
			return err
		}
		if err := repos.Rentals().Create(ctx, testRental("R1", "V101", now)); err != nil {
			return err
		}
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	v, err := store.Vehicles().GetByID(ctx, "V101")
	require.NoError(t, err)
	assert.Equal(t, domain.VehicleStatusNotRented, v.Status)

	_, err = store.Rentals().GetByID(ctx, "R1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStore_WithinTxCommits(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Vehicles().Create(ctx, domain.NewVehicle("V101")))

	err := store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		v, err := repos.Vehicles().GetByIDForUpdate(ctx, "V101")
		if err != nil {
			return err
		}
		v.Hold("R1", time.Time{}, now)
		if err := repos.Vehicles().Update(ctx, v); err != nil {
			return err
		}
		return repos.Rentals().Create(ctx, testRental("R1", "V101", now))
	})
	require.NoError(t, err)

	v, err := store.Vehicles().GetByID(ctx, "V101")
	require.NoError(t, err)
	assert.Equal(t, domain.VehicleStatusPending, v.Status)
	assert.Equal(t, "R1", v.RentalID)
}
