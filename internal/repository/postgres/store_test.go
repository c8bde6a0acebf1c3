package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carrental/internal/domain"
	"carrental/internal/repository"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewStore(db), mock
}

var rentalRowColumns = []string{
	"id", "vehicle_id", "renter_id", "start_date", "end_date", "total_price",
	"status", "payment_status", "payment_reference", "reserved_until", "created_at", "updated_at",
}

var vehicleRowColumns = []string{
	"id", "is_rented", "is_available", "rented_by", "status", "rental_id", "held_until", "updated_at",
}

func sampleRental(now time.Time) *domain.Rental {
	return &domain.Rental{
		ID:            "R1",
		VehicleID:     "V101",
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

func TestRentalRepository_Create(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC)
	rental := sampleRental(now)

	insert := regexp.QuoteMeta("INSERT INTO rentals (" + rentalColumns + ")")
	mock.ExpectExec(insert).
		WithArgs("R1", "V101", "U1", rental.StartDate, rental.EndDate, 500.0,
			"pending", "pending", nil, nil, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Rentals().Create(context.Background(), rental))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRentalRepository_CreateDuplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO rentals`)).
		WillReturnError(&pq.Error{Code: "23505"})

	err := store.Rentals().Create(context.Background(), sampleRental(time.Now().UTC()))
	assert.ErrorIs(t, err, repository.ErrAlreadyExists)
}

func TestRentalRepository_GetByIDForUpdate(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC)
	until := now.Add(15 * time.Minute)

	rows := sqlmock.NewRows(rentalRowColumns).AddRow(
		"R1", "V101", "U1", now, now.Add(96*time.Hour), 500.0,
		"pending", "pending", nil, until, now, now,
	)
	mock.ExpectQuery(`SELECT .+ FROM rentals WHERE id = \$1 FOR UPDATE`).
		WithArgs("R1").
		WillReturnRows(rows)

	got, err := store.Rentals().GetByIDForUpdate(context.Background(), "R1")
	require.NoError(t, err)
	assert.Equal(t, domain.RentalStatusPending, got.Status)
	assert.Equal(t, domain.PaymentStatusPending, got.PaymentStatus)
	assert.Empty(t, got.PaymentReference)
	assert.Equal(t, until, got.ReservedUntil)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRentalRepository_GetByIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM rentals WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(rentalRowColumns))

	_, err := store.Rentals().GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRentalRepository_Update(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC)
	rental := sampleRental(now)
	rental.Confirm("ref-1", now)

	mock.ExpectExec(`UPDATE rentals`).
		WithArgs("confirmed", "paid", "ref-1", nil, now, "R1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Rentals().Update(context.Background(), rental))

	mock.ExpectExec(`UPDATE rentals`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Rentals().Update(context.Background(), rental)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRentalRepository_ListExpiredHolds(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(rentalRowColumns).
		AddRow("R1", "V1", "U1", now, now, 100.0, "pending", "pending", nil, now.Add(-time.Minute), now, now).
		AddRow("R2", "V2", "U2", now, now, 100.0, "pending", "pending", nil, now.Add(-time.Second), now, now)
	mock.ExpectQuery(`(?s)SELECT .+FROM rentals\s+WHERE status = \$1 AND reserved_until IS NOT NULL`).
		WithArgs("pending", now, 50).
		WillReturnRows(rows)

	got, err := store.Rentals().ListExpiredHolds(context.Background(), now, 50)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "R1", got[0].ID)
	assert.Equal(t, "R2", got[1].ID)
}

func TestRentalRepository_ListByStatusAfterCursor(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC)
	cursor := repository.RentalCursor{CreatedAt: now, ID: "R1"}

	rows := sqlmock.NewRows(rentalRowColumns).
		AddRow("R2", "V2", "U2", now, now, 100.0, "confirmed", "paid", "ref-2", nil, now, now)
	mock.ExpectQuery(`(?s)SELECT .+FROM rentals\s+WHERE status = \$1 AND \(created_at, id\) > \(\$2, \$3\)\s+ORDER BY created_at ASC, id ASC LIMIT \$4`).
		WithArgs("confirmed", now, "R1", 500).
		WillReturnRows(rows)

	got, err := store.Rentals().ListByStatus(context.Background(), domain.RentalStatusConfirmed, cursor, 500)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "R2", got[0].ID)
	assert.Equal(t, "ref-2", got[0].PaymentReference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVehicleRepository_GetAndUpdate(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM vehicles WHERE id = \$1`).
		WithArgs("V101").
		WillReturnRows(sqlmock.NewRows(vehicleRowColumns).
			AddRow("V101", false, true, nil, "not-rented", nil, nil, now))

	vehicle, err := store.Vehicles().GetByID(context.Background(), "V101")
	require.NoError(t, err)
	assert.True(t, vehicle.ValidFlags())
	assert.Empty(t, vehicle.RentedBy)

	vehicle.MarkRented("R1", "U1", now)
	mock.ExpectExec(`UPDATE vehicles`).
		WithArgs(true, false, "U1", "approved", "R1", nil, now, "V101").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Vehicles().Update(context.Background(), vehicle))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithinTxCommits(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM vehicles WHERE id = \$1 FOR UPDATE`).
		WithArgs("V101").
		WillReturnRows(sqlmock.NewRows(vehicleRowColumns).
			AddRow("V101", false, true, nil, "not-rented", nil, nil, now))
	mock.ExpectExec(`UPDATE vehicles`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), func(ctx context.Context, repos repository.Repositories) error {
		v, err := repos.Vehicles().GetByIDForUpdate(ctx, "V101")
		if err != nil {
			return err
		}
		v.Hold("R1", time.Time{}, now)
		return repos.Vehicles().Update(ctx, v)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithinTxRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	errBoom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(ctx context.Context, repos repository.Repositories) error {
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithinTxBeginFails(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin().WillReturnError(sql.ErrConnDone)

	called := false
	err := store.WithinTx(context.Background(), func(ctx context.Context, repos repository.Repositories) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.False(t, called)
}
