package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carrental/internal/domain"
	"carrental/internal/redis"
	"carrental/internal/repository"
)

const defaultSweepBatchSize = 500

// ConsistencyReport is the audit result for one rental and its vehicle.
type ConsistencyReport struct {
	RentalID   string           `json:"rental_id"`
	VehicleID  string           `json:"vehicle_id"`
	Consistent bool             `json:"consistent"`
	Problems   []domain.Problem `json:"problems,omitempty"`
	Repaired   bool             `json:"repaired"`
}

// SweepResult summarises one consistency sweep.
type SweepResult struct {
	Checked  int `json:"checked"`
	Repaired int `json:"repaired"`
	Failed   int `json:"failed"`
}

// ConsistencyService detects and repairs rental/vehicle disagreement.
// The rental is treated as the source of truth.
type ConsistencyService struct {
	store      repository.Store
	cacheStore redis.CacheStoreInterface
	now        func() time.Time
	batchSize  int
}

// NewConsistencyService creates a new ConsistencyService. cacheStore may be nil.
func NewConsistencyService(store repository.Store, cacheStore redis.CacheStoreInterface) *ConsistencyService {
	return &ConsistencyService{
		store:      store,
		cacheStore: cacheStore,
		now:        func() time.Time { return time.Now().UTC() },
		batchSize:  defaultSweepBatchSize,
	}
}

// SetClock replaces the time source.
func (s *ConsistencyService) SetClock(now func() time.Time) {
	s.now = now
}

// SetSweepBatchSize sets how many rentals a sweep reads per page.
func (s *ConsistencyService) SetSweepBatchSize(n int) {
	if n > 0 {
		s.batchSize = n
	}
}

// Check audits a rental against its vehicle without changing either.
func (s *ConsistencyService) Check(ctx context.Context, rentalID string) (*ConsistencyReport, error) {
	if rentalID == "" {
		return nil, ErrInvalidRentalID
	}

	rental, err := s.store.Rentals().GetByID(ctx, rentalID)
	if err != nil {
		return nil, err
	}

	vehicle, err := s.store.Vehicles().GetByID(ctx, rental.VehicleID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	return newReport(rental, vehicle), nil
}

// Repair re-derives the vehicle from the rental in one transaction and
// returns the audit after the repair. It fails with ErrInconsistentState
// when the pair cannot be fixed automatically.
func (s *ConsistencyService) Repair(ctx context.Context, rentalID string) (*ConsistencyReport, error) {
	if rentalID == "" {
		return nil, ErrInvalidRentalID
	}

	var report *ConsistencyReport
	now := s.now()

	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		rental, vehicle, err := lockPair(ctx, repos, rentalID)
		if err != nil {
			return err
		}
		if vehicle == nil {
			return fmt.Errorf("%w: vehicle %s missing", ErrInconsistentState, rental.VehicleID)
		}
		if !rental.ValidPair() {
			return fmt.Errorf("%w: rental %s has status %s with payment %s",
				ErrInconsistentState, rental.ID, rental.Status, rental.PaymentStatus)
		}

		if len(domain.CheckConsistency(rental, vehicle)) == 0 {
			report = newReport(rental, vehicle)
			return nil
		}

		changed, ok := domain.ResyncVehicle(rental, vehicle, now)
		if !ok && rental.HoldExpired(now) {
			// A lapsed hold that lost its vehicle is simply abandoned.
			rental.Cancel(now)
			if err := repos.Rentals().Update(ctx, rental); err != nil {
				return err
			}
			report = newReport(rental, vehicle)
			report.Repaired = true
			return nil
		}
		if !ok {
			return ErrVehicleTaken
		}

		if changed {
			if err := repos.Vehicles().Update(ctx, vehicle); err != nil {
				return err
			}
		}

		report = newReport(rental, vehicle)
		report.Repaired = changed
		return nil
	})
	if err != nil {
		return nil, err
	}

	if report.Repaired && s.cacheStore != nil {
		_ = s.cacheStore.Invalidate(ctx, report.RentalID, report.VehicleID)
	}
	return report, nil
}

// Sweep audits every pending and confirmed rental, a page at a time, and
// repairs the inconsistent ones. Rentals that cannot be repaired are counted
// as failed.
func (s *ConsistencyService) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	for _, status := range []domain.RentalStatus{domain.RentalStatusPending, domain.RentalStatusConfirmed} {
		var cursor repository.RentalCursor
		for {
			rentals, err := s.store.Rentals().ListByStatus(ctx, status, cursor, s.batchSize)
			if err != nil {
				return result, err
			}

			for _, rental := range rentals {
				if err := s.sweepOne(ctx, rental.ID, &result); err != nil {
					return result, err
				}
			}

			if len(rentals) < s.batchSize {
				break
			}
			cursor = repository.CursorAfter(rentals[len(rentals)-1])
		}
	}

	return result, nil
}

func (s *ConsistencyService) sweepOne(ctx context.Context, rentalID string, result *SweepResult) error {
	result.Checked++

	report, err := s.Check(ctx, rentalID)
	if err != nil {
		return err
	}
	if report.Consistent {
		return nil
	}

	repaired, err := s.Repair(ctx, rentalID)
	if errors.Is(err, ErrInconsistentState) {
		result.Failed++
		return nil
	}
	if err != nil {
		return err
	}
	if repaired.Repaired {
		result.Repaired++
	}
	return nil
}

func newReport(rental *domain.Rental, vehicle *domain.Vehicle) *ConsistencyReport {
	report := &ConsistencyReport{
		RentalID:  rental.ID,
		VehicleID: rental.VehicleID,
	}

	if vehicle == nil {
		report.Problems = []domain.Problem{domain.ProblemVehicleMissing}
		return report
	}

	report.Problems = domain.CheckConsistency(rental, vehicle)
	report.Consistent = len(report.Problems) == 0
	return report
}
