package tests

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"carrental/internal/domain"
	"carrental/internal/service"
)

// ──────────────────────────────────────────────
// 8. CONSISTENCY AUDIT AND REPAIR
// ──────────────────────────────────────────────

func TestConsistency_CheckReportsProblems(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rental := f.reserveDefault(t)

	report, err := f.checker.Check(context.Background(), rental.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Consistent || len(report.Problems) != 0 {
		t.Errorf("fresh reservation should be consistent, got %+v", *report)
	}

	// Drop the hold behind the service's back.
	f.store.AddVehicle(domain.NewVehicle(vehicleID))

	report, err = f.checker.Check(context.Background(), rental.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Consistent {
		t.Fatal("expected drift to be reported")
	}
	if len(report.Problems) != 1 || report.Problems[0] != domain.ProblemHoldMissing {
		t.Errorf("expected hold-missing problem, got %v", report.Problems)
	}
	if report.Repaired {
		t.Error("check must not repair")
	}
}

func TestConsistency_RepairCases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		rental     domain.Rental
		vehicle    func() *domain.Vehicle
		wantStatus domain.VehicleStatus
		wantRental string
		repaired   bool
	}{
		{
			name:   "confirmed but vehicle free",
			rental: domain.Rental{Status: domain.RentalStatusConfirmed, PaymentStatus: domain.PaymentStatusPaid},
			vehicle: func() *domain.Vehicle {
				return domain.NewVehicle(vehicleID)
			},
			wantStatus: domain.VehicleStatusApproved,
			wantRental: "rental-1",
			repaired:   true,
		},
		{
			name:   "confirmed but vehicle only held",
			rental: domain.Rental{Status: domain.RentalStatusConfirmed, PaymentStatus: domain.PaymentStatusPaid},
			vehicle: func() *domain.Vehicle {
				v := domain.NewVehicle(vehicleID)
				v.Hold("rental-1", time.Time{}, testNow)
				return v
			},
			wantStatus: domain.VehicleStatusApproved,
			wantRental: "rental-1",
			repaired:   true,
		},
		{
			name:   "cancelled but vehicle still held",
			rental: domain.Rental{Status: domain.RentalStatusCancelled, PaymentStatus: domain.PaymentStatusFailed},
			vehicle: func() *domain.Vehicle {
				v := domain.NewVehicle(vehicleID)
				v.Hold("rental-1", time.Time{}, testNow)
				return v
			},
			wantStatus: domain.VehicleStatusNotRented,
			repaired:   true,
		},
		{
			name:   "cancelled but vehicle still rented",
			rental: domain.Rental{Status: domain.RentalStatusCancelled, PaymentStatus: domain.PaymentStatusFailed},
			vehicle: func() *domain.Vehicle {
				v := domain.NewVehicle(vehicleID)
				v.MarkRented("rental-1", renterID, testNow)
				return v
			},
			wantStatus: domain.VehicleStatusNotRented,
			repaired:   true,
		},
		{
			name:   "pending but hold lost",
			rental: domain.Rental{Status: domain.RentalStatusPending, PaymentStatus: domain.PaymentStatusPending},
			vehicle: func() *domain.Vehicle {
				return domain.NewVehicle(vehicleID)
			},
			wantStatus: domain.VehicleStatusPending,
			wantRental: "rental-1",
			repaired:   true,
		},
		{
			name:   "already consistent",
			rental: domain.Rental{Status: domain.RentalStatusPending, PaymentStatus: domain.PaymentStatusPending},
			vehicle: func() *domain.Vehicle {
				v := domain.NewVehicle(vehicleID)
				v.Hold("rental-1", time.Time{}, testNow)
				return v
			},
			wantStatus: domain.VehicleStatusPending,
			wantRental: "rental-1",
			repaired:   false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			rental := tt.rental
			rental.ID = "rental-1"
			rental.VehicleID = vehicleID
			rental.RenterID = renterID
			f.store.AddRental(&rental)
			f.store.AddVehicle(tt.vehicle())

			report, err := f.checker.Repair(context.Background(), rental.ID)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if report.Repaired != tt.repaired {
				t.Errorf("expected repaired=%t, got %t", tt.repaired, report.Repaired)
			}
			if !report.Consistent {
				t.Errorf("expected consistent after repair, got problems %v", report.Problems)
			}

			vehicle := f.store.GetVehicle(vehicleID)
			if vehicle.Status != tt.wantStatus || vehicle.RentalID != tt.wantRental {
				t.Errorf("expected vehicle %s for %q, got %s for %q", tt.wantStatus, tt.wantRental, vehicle.Status, vehicle.RentalID)
			}
			if !vehicle.ValidFlags() {
				t.Errorf("repaired vehicle has contradictory flags: %+v", *vehicle)
			}

			// Rental is never rewritten by a vehicle repair.
			if got := f.store.GetRental(rental.ID); got.Status != rental.Status {
				t.Errorf("rental status changed from %s to %s", rental.Status, got.Status)
			}
		})
	}
}

func TestConsistency_RepairRefusesToStealVehicle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.store.AddRental(&domain.Rental{
		ID: "rental-1", VehicleID: vehicleID, RenterID: renterID,
		Status: domain.RentalStatusConfirmed, PaymentStatus: domain.PaymentStatusPaid,
	})
	other := domain.NewVehicle(vehicleID)
	other.MarkRented("rental-2", "U2", testNow)
	f.store.AddVehicle(other)

	_, err := f.checker.Repair(context.Background(), "rental-1")
	if !errors.Is(err, service.ErrVehicleTaken) {
		t.Fatalf("expected ErrVehicleTaken, got %v", err)
	}
	if got := f.store.GetVehicle(vehicleID).RentalID; got != "rental-2" {
		t.Errorf("vehicle must stay with rental-2, got %q", got)
	}
}

func TestConsistency_RepairCancelsLapsedHoldThatLostVehicle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.store.AddRental(&domain.Rental{
		ID: "rental-1", VehicleID: vehicleID, RenterID: renterID,
		Status: domain.RentalStatusPending, PaymentStatus: domain.PaymentStatusPending,
		ReservedUntil: testNow.Add(-time.Minute),
	})
	other := domain.NewVehicle(vehicleID)
	other.Hold("rental-2", time.Time{}, testNow)
	f.store.AddVehicle(other)

	report, err := f.checker.Repair(context.Background(), "rental-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Repaired || !report.Consistent {
		t.Errorf("expected repaired consistent report, got %+v", *report)
	}
	assertRental(t, f.store.GetRental("rental-1"), domain.RentalStatusCancelled, domain.PaymentStatusFailed)
	if got := f.store.GetVehicle(vehicleID).RentalID; got != "rental-2" {
		t.Errorf("vehicle must stay with rental-2, got %q", got)
	}
}

func TestConsistency_InvalidPairIsNotRepaired(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.store.AddRental(&domain.Rental{
		ID: "rental-1", VehicleID: vehicleID, RenterID: renterID,
		Status: domain.RentalStatusConfirmed, PaymentStatus: domain.PaymentStatusFailed,
	})

	report, err := f.checker.Check(context.Background(), "rental-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Consistent {
		t.Error("confirmed/failed must be reported")
	}

	_, err = f.checker.Repair(context.Background(), "rental-1")
	if !errors.Is(err, service.ErrInconsistentState) {
		t.Errorf("expected ErrInconsistentState, got %v", err)
	}
}

func TestConsistency_MissingVehicle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.store.AddRental(&domain.Rental{
		ID: "rental-1", VehicleID: "V404", RenterID: renterID,
		Status: domain.RentalStatusPending, PaymentStatus: domain.PaymentStatusPending,
	})

	report, err := f.checker.Check(context.Background(), "rental-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Consistent || len(report.Problems) != 1 || report.Problems[0] != domain.ProblemVehicleMissing {
		t.Errorf("expected missing vehicle problem, got %+v", *report)
	}

	if _, err := f.checker.Repair(context.Background(), "rental-1"); !errors.Is(err, service.ErrInconsistentState) {
		t.Errorf("expected ErrInconsistentState, got %v", err)
	}
}

func TestConsistency_Sweep(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for _, id := range []string{"V2", "V3", "V4"} {
		f.store.AddVehicle(domain.NewVehicle(id))
	}

	// Consistent pending hold.
	f.reserveDefault(t)

	// Confirmed rental whose vehicle was never flipped.
	f.store.AddRental(&domain.Rental{
		ID: "rental-drift", VehicleID: "V2", RenterID: "U2",
		Status: domain.RentalStatusConfirmed, PaymentStatus: domain.PaymentStatusPaid,
	})

	// Confirmed rental whose vehicle belongs to someone else.
	f.store.AddRental(&domain.Rental{
		ID: "rental-stolen", VehicleID: "V3", RenterID: "U3",
		Status: domain.RentalStatusConfirmed, PaymentStatus: domain.PaymentStatusPaid,
	})
	taken := domain.NewVehicle("V3")
	taken.MarkRented("rental-x", "U9", testNow)
	f.store.AddVehicle(taken)

	// Cancelled rentals are not swept.
	f.store.AddRental(&domain.Rental{
		ID: "rental-old", VehicleID: "V4", RenterID: "U4",
		Status: domain.RentalStatusCancelled, PaymentStatus: domain.PaymentStatusFailed,
	})

	result, err := f.checker.Sweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := service.SweepResult{Checked: 3, Repaired: 1, Failed: 1}
	if result != want {
		t.Errorf("expected %+v, got %+v", want, result)
	}

	assertVehicleRentedBy(t, f.store.GetVehicle("V2"), f.store.GetRental("rental-drift"))
}

func TestConsistency_SweepPagesThroughEveryRental(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.checker.SetSweepBatchSize(2)

	const total = 5
	for i := 0; i < total; i++ {
		rentalID := fmt.Sprintf("rental-%d", i)
		vehicle := domain.NewVehicle(fmt.Sprintf("V-%d", i))
		f.store.AddRental(&domain.Rental{
			ID: rentalID, VehicleID: vehicle.ID, RenterID: renterID,
			Status: domain.RentalStatusConfirmed, PaymentStatus: domain.PaymentStatusPaid,
			CreatedAt: testNow.Add(time.Duration(i) * time.Minute),
		})
		// Only the newest rental has drifted.
		if i < total-1 {
			vehicle.MarkRented(rentalID, renterID, testNow)
		}
		f.store.AddVehicle(vehicle)
	}

	result, err := f.checker.Sweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := service.SweepResult{Checked: total, Repaired: 1}
	if result != want {
		t.Errorf("expected %+v, got %+v", want, result)
	}
	assertVehicleRentedBy(t, f.store.GetVehicle("V-4"), f.store.GetRental("rental-4"))
}

func TestConsistency_SweepFullPageBoundary(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.checker.SetSweepBatchSize(2)

	// Two pending holds fill exactly one page; the next page comes back empty.
	for i, id := range []string{"rental-a", "rental-b"} {
		vehicle := domain.NewVehicle(id + "-car")
		vehicle.Hold(id, time.Time{}, testNow)
		f.store.AddVehicle(vehicle)
		f.store.AddRental(&domain.Rental{
			ID: id, VehicleID: vehicle.ID, RenterID: renterID,
			Status: domain.RentalStatusPending, PaymentStatus: domain.PaymentStatusPending,
			CreatedAt: testNow.Add(time.Duration(i) * time.Second),
		})
	}

	result, err := f.checker.Sweep(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Checked != 2 || result.Repaired != 0 || result.Failed != 0 {
		t.Errorf("expected two clean checks, got %+v", result)
	}
}
