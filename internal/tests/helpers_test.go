package tests

import (
	"context"
	"testing"
	"time"

	"carrental/internal/domain"
	"carrental/internal/service"
)

var (
	testNow   = time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)
	startDate = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	endDate   = time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC)
)

const (
	vehicleID  = "V101"
	renterID   = "U1"
	totalPrice = 500.0
	payerEmail = "u1@example.com"
)

// clock is a settable time source shared by the services under test.
type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// fixture wires every service over one in-memory store.
type fixture struct {
	store      *MemoryStore
	gateway    *MockGateway
	locks      *MockLockStore
	cache      *MockCacheStore
	publisher  *MockPublisher
	clock      *clock
	reserve    *service.ReservationService
	payments   *service.PaymentService
	reconciler *service.ReconciliationService
	checker    *service.ConsistencyService
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	holdTTL  time.Duration
	lockWait time.Duration
}

func withHoldTTL(d time.Duration) fixtureOption {
	return func(c *fixtureConfig) { c.holdTTL = d }
}

func withLockWait(d time.Duration) fixtureOption {
	return func(c *fixtureConfig) { c.lockWait = d }
}

const webhookSecret = "whsec_test"

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	cfg := fixtureConfig{lockWait: time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	f := &fixture{
		store:     NewMemoryStore(),
		gateway:   NewMockGateway(webhookSecret),
		locks:     NewMockLockStore(),
		cache:     NewMockCacheStore(),
		publisher: NewMockPublisher(),
		clock:     &clock{now: testNow},
	}

	f.reserve = service.NewReservationService(f.store, f.locks, f.cache, cfg.holdTTL)
	f.reserve.SetClock(f.clock.Now)

	f.payments = service.NewPaymentService(f.store, f.gateway, "http://localhost:8080/payment/callback")
	f.payments.SetClock(f.clock.Now)

	f.reconciler = service.NewReconciliationService(
		f.store, f.gateway, f.gateway, f.locks, f.cache, f.publisher,
		30*time.Second, cfg.lockWait,
	)
	f.reconciler.SetClock(f.clock.Now)

	f.checker = service.NewConsistencyService(f.store, f.cache)
	f.checker.SetClock(f.clock.Now)

	f.store.AddVehicle(domain.NewVehicle(vehicleID))
	return f
}

// reserveDefault creates the standard V101/U1 reservation.
func (f *fixture) reserveDefault(t *testing.T) *domain.Rental {
	t.Helper()

	rental, err := f.reserve.CreateReservation(context.Background(), service.CreateReservationRequest{
		VehicleID:  vehicleID,
		RenterID:   renterID,
		StartDate:  startDate,
		EndDate:    endDate,
		TotalPrice: totalPrice,
	})
	if err != nil {
		t.Fatalf("failed to create reservation: %v", err)
	}
	return rental
}

// pay initializes a payment for rental and returns the gateway reference.
func (f *fixture) pay(t *testing.T, rental *domain.Rental) string {
	t.Helper()

	result, err := f.payments.InitializePayment(context.Background(), service.InitializePaymentRequest{
		VehicleID: rental.VehicleID,
		RenterID:  rental.RenterID,
		Email:     payerEmail,
		Amount:    rental.TotalPrice,
		RentalID:  rental.ID,
	})
	if err != nil {
		t.Fatalf("failed to initialize payment: %v", err)
	}
	return result.Reference
}

func assertRental(t *testing.T, r *domain.Rental, status domain.RentalStatus, payment domain.PaymentStatus) {
	t.Helper()
	if r == nil {
		t.Fatal("rental not found")
	}
	if r.Status != status || r.PaymentStatus != payment {
		t.Errorf("expected rental %s/%s, got %s/%s", status, payment, r.Status, r.PaymentStatus)
	}
}

func assertVehicleFree(t *testing.T, v *domain.Vehicle) {
	t.Helper()
	if v == nil {
		t.Fatal("vehicle not found")
	}
	if v.IsRented || !v.IsAvailable || v.RentedBy != "" || v.Status != domain.VehicleStatusNotRented || v.RentalID != "" {
		t.Errorf("expected free vehicle, got %+v", *v)
	}
}

func assertVehicleRentedBy(t *testing.T, v *domain.Vehicle, rental *domain.Rental) {
	t.Helper()
	if v == nil {
		t.Fatal("vehicle not found")
	}
	if !v.RentedFor(rental) {
		t.Errorf("expected vehicle rented for %s by %s, got %+v", rental.ID, rental.RenterID, *v)
	}
}
