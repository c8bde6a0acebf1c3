package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"carrental/internal/domain"
	"carrental/internal/redis"
	"carrental/internal/repository"
)

const (
	vehicleLockTTL   = 10 * time.Second
	expiredBatchSize = 100
)

// ReservationService creates reservations and releases abandoned ones.
type ReservationService struct {
	store      repository.Store
	lockStore  redis.LockStoreInterface
	cacheStore redis.CacheStoreInterface
	holdTTL    time.Duration
	now        func() time.Time
}

// NewReservationService creates a new ReservationService.
// lockStore and cacheStore may be nil. A zero holdTTL means holds never lapse.
func NewReservationService(
	store repository.Store,
	lockStore redis.LockStoreInterface,
	cacheStore redis.CacheStoreInterface,
	holdTTL time.Duration,
) *ReservationService {
	return &ReservationService{
		store:      store,
		lockStore:  lockStore,
		cacheStore: cacheStore,
		holdTTL:    holdTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source.
func (s *ReservationService) SetClock(now func() time.Time) {
	s.now = now
}

// CreateReservationRequest contains the parameters for reserving a vehicle.
type CreateReservationRequest struct {
	VehicleID  string
	RenterID   string
	StartDate  time.Time
	EndDate    time.Time
	TotalPrice float64
}

// CreateReservation creates a pending rental and soft-locks the vehicle.
// The availability check and the hold write happen under the vehicle row lock.
func (s *ReservationService) CreateReservation(ctx context.Context, req CreateReservationRequest) (*domain.Rental, error) {
	if err := validateReservation(req); err != nil {
		return nil, err
	}

	if s.lockStore != nil {
		token, locked, err := s.lockStore.AcquireVehicleLock(ctx, req.VehicleID, vehicleLockTTL)
		if err != nil {
			return nil, err
		}
		if !locked {
			return nil, ErrVehicleReserved
		}
		defer s.lockStore.ReleaseVehicleLock(context.WithoutCancel(ctx), req.VehicleID, token)
	}

	now := s.now()
	var rental *domain.Rental
	var staleID string

	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		vehicle, err := repos.Vehicles().GetByIDForUpdate(ctx, req.VehicleID)
		if err != nil {
			return err
		}

		if vehicle.IsRented || vehicle.Status == domain.VehicleStatusApproved {
			return ErrVehicleAlreadyRented
		}

		if vehicle.Status == domain.VehicleStatusPending && vehicle.RentalID != "" {
			staleID, err = s.takeOverHold(ctx, repos, vehicle, now)
			if err != nil {
				return err
			}
		}

		rental = &domain.Rental{
			ID:            uuid.New().String(),
			VehicleID:     req.VehicleID,
			RenterID:      req.RenterID,
			StartDate:     req.StartDate,
			EndDate:       req.EndDate,
			TotalPrice:    req.TotalPrice,
			Status:        domain.RentalStatusPending,
			PaymentStatus: domain.PaymentStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if s.holdTTL > 0 {
			rental.ReservedUntil = now.Add(s.holdTTL)
		}

		if err := repos.Rentals().Create(ctx, rental); err != nil {
			return err
		}

		vehicle.Hold(rental.ID, rental.ReservedUntil, now)
		return repos.Vehicles().Update(ctx, vehicle)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, staleID, req.VehicleID)
	return rental, nil
}

// takeOverHold decides whether the rental currently holding vehicle still
// blocks new reservations. A lapsed pending holder is cancelled and its id
// returned; a cancelled or missing holder is a stale hold and is ignored.
func (s *ReservationService) takeOverHold(ctx context.Context, repos repository.Repositories, vehicle *domain.Vehicle, now time.Time) (string, error) {
	holder, err := repos.Rentals().GetByIDForUpdate(ctx, vehicle.RentalID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	switch holder.Status {
	case domain.RentalStatusPending:
		if !holder.HoldExpired(now) {
			return "", ErrVehicleReserved
		}
		holder.Cancel(now)
		if err := repos.Rentals().Update(ctx, holder); err != nil {
			return "", err
		}
		return holder.ID, nil
	case domain.RentalStatusConfirmed:
		return "", ErrVehicleAlreadyRented
	default:
		return "", nil
	}
}

// ReleaseExpired cancels pending rentals whose hold lapsed and frees their
// vehicles. It returns how many rentals were cancelled.
func (s *ReservationService) ReleaseExpired(ctx context.Context) (int, error) {
	now := s.now()

	expired, err := s.store.Rentals().ListExpiredHolds(ctx, now, expiredBatchSize)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, candidate := range expired {
		ok, err := s.releaseOne(ctx, candidate, now)
		if err != nil {
			return released, err
		}
		if ok {
			released++
			s.invalidate(ctx, candidate.ID, candidate.VehicleID)
		}
	}

	return released, nil
}

func (s *ReservationService) releaseOne(ctx context.Context, candidate *domain.Rental, now time.Time) (bool, error) {
	released := false

	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		vehicle, err := repos.Vehicles().GetByIDForUpdate(ctx, candidate.VehicleID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		rental, err := repos.Rentals().GetByIDForUpdate(ctx, candidate.ID)
		if err != nil {
			return err
		}
		// Reconciled since it was listed.
		if !rental.HoldExpired(now) {
			return nil
		}

		rental.Cancel(now)
		if err := repos.Rentals().Update(ctx, rental); err != nil {
			return err
		}

		if vehicle != nil && vehicle.RentalID == rental.ID {
			vehicle.Release(now)
			if err := repos.Vehicles().Update(ctx, vehicle); err != nil {
				return err
			}
		}

		released = true
		return nil
	})

	return released, err
}

// GetRental retrieves a rental, reading through the cache.
func (s *ReservationService) GetRental(ctx context.Context, rentalID string) (*domain.Rental, error) {
	if rentalID == "" {
		return nil, ErrInvalidRentalID
	}

	var generation int64
	cacheOK := false
	if s.cacheStore != nil {
		cached, gen, err := s.cacheStore.GetRental(ctx, rentalID)
		if err == nil && cached != nil {
			return cached.Rental(), nil
		}
		generation, cacheOK = gen, err == nil
	}

	rental, err := s.store.Rentals().GetByID(ctx, rentalID)
	if err != nil {
		return nil, err
	}

	if cacheOK {
		_ = s.cacheStore.SetRental(ctx, redis.NewCachedRental(rental), generation)
	}
	return rental, nil
}

// GetVehicle retrieves a vehicle, reading through the cache.
func (s *ReservationService) GetVehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error) {
	if vehicleID == "" {
		return nil, ErrInvalidVehicleID
	}

	var generation int64
	cacheOK := false
	if s.cacheStore != nil {
		cached, gen, err := s.cacheStore.GetVehicle(ctx, vehicleID)
		if err == nil && cached != nil {
			return cached.Vehicle(), nil
		}
		generation, cacheOK = gen, err == nil
	}

	vehicle, err := s.store.Vehicles().GetByID(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	if cacheOK {
		_ = s.cacheStore.SetVehicle(ctx, redis.NewCachedVehicle(vehicle), generation)
	}
	return vehicle, nil
}

// RegisterVehicle adds the rentability record for a vehicle that is free to reserve.
func (s *ReservationService) RegisterVehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error) {
	if vehicleID == "" {
		return nil, ErrInvalidVehicleID
	}

	vehicle := domain.NewVehicle(vehicleID)
	vehicle.UpdatedAt = s.now()

	if err := s.store.Vehicles().Create(ctx, vehicle); err != nil {
		return nil, err
	}
	return vehicle, nil
}

func (s *ReservationService) invalidate(ctx context.Context, rentalID, vehicleID string) {
	if s.cacheStore == nil {
		return
	}
	_ = s.cacheStore.Invalidate(ctx, rentalID, vehicleID)
}

func validateReservation(req CreateReservationRequest) error {
	if req.VehicleID == "" {
		return ErrInvalidVehicleID
	}
	if req.RenterID == "" {
		return ErrInvalidRenterID
	}
	if req.StartDate.IsZero() || !req.EndDate.After(req.StartDate) {
		return ErrInvalidDateRange
	}
	if req.TotalPrice <= 0 {
		return ErrInvalidTotalPrice
	}
	return nil
}
