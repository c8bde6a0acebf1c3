package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"carrental/internal/domain"
	"carrental/internal/gateway"
	"carrental/internal/queue"
	"carrental/internal/redis"
	"carrental/internal/repository"
)

const (
	lockRetryInterval = 50 * time.Millisecond

	// publishTimeout bounds the best-effort outcome event after commit.
	publishTimeout = 3 * time.Second
)

// CallbackTarget is where a gateway push callback sends the payer.
type CallbackTarget string

const (
	CallbackSuccess CallbackTarget = "success"
	CallbackFailure CallbackTarget = "failure"
	CallbackError   CallbackTarget = "error"
)

// ReconcileResult describes the state after an outcome was reconciled.
type ReconcileResult struct {
	Rental       *domain.Rental
	Vehicle      *domain.Vehicle
	Outcome      domain.Outcome
	Applied      bool // False when the outcome had already been recorded
	Verification *gateway.VerifyResult
}

// ReconciliationService applies gateway outcomes to a rental and its vehicle.
// Pull verification, push callbacks and webhooks all go through Reconcile.
type ReconciliationService struct {
	store      repository.Store
	gateway    gateway.PaymentGateway
	webhooks   gateway.WebhookVerifier
	lockStore  redis.LockStoreInterface
	cacheStore redis.CacheStoreInterface
	publisher  EventPublisher
	lockTTL    time.Duration
	lockWait   time.Duration
	now        func() time.Time
}

// NewReconciliationService creates a new ReconciliationService.
// webhooks, lockStore, cacheStore and publisher may be nil.
func NewReconciliationService(
	store repository.Store,
	gw gateway.PaymentGateway,
	webhooks gateway.WebhookVerifier,
	lockStore redis.LockStoreInterface,
	cacheStore redis.CacheStoreInterface,
	publisher EventPublisher,
	lockTTL time.Duration,
	lockWait time.Duration,
) *ReconciliationService {
	return &ReconciliationService{
		store:      store,
		gateway:    gw,
		webhooks:   webhooks,
		lockStore:  lockStore,
		cacheStore: cacheStore,
		publisher:  publisher,
		lockTTL:    lockTTL,
		lockWait:   lockWait,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for transition timestamps.
func (s *ReconciliationService) SetClock(now func() time.Time) {
	s.now = now
}

// VerifyReservationPayment is the pull entry point: the caller learns the
// outcome directly.
func (s *ReconciliationService) VerifyReservationPayment(ctx context.Context, reference, rentalID string) (*ReconcileResult, error) {
	return s.Reconcile(ctx, reference, rentalID)
}

// HandlePaymentCallback is the push entry point used by the gateway redirect.
// It always resolves to a target; err explains an error target.
func (s *ReconciliationService) HandlePaymentCallback(ctx context.Context, reference, rentalID string) (CallbackTarget, error) {
	result, err := s.Reconcile(ctx, reference, rentalID)
	if err != nil {
		return CallbackError, err
	}
	if result.Outcome == domain.OutcomeSucceeded {
		return CallbackSuccess, nil
	}
	return CallbackFailure, nil
}

// HandlePaymentWebhook authenticates a gateway notification and reconciles
// the rental it names. Events that name no rental return nil, nil.
func (s *ReconciliationService) HandlePaymentWebhook(ctx context.Context, signature string, body []byte) (*ReconcileResult, error) {
	if s.webhooks == nil {
		return nil, ErrWebhookDisabled
	}

	event, err := s.webhooks.ParseWebhook(signature, body)
	if err != nil {
		return nil, err
	}
	if event.Reference == "" || event.RentalID == "" {
		return nil, nil
	}

	return s.Reconcile(ctx, event.Reference, event.RentalID)
}

// Reconcile verifies reference with the gateway and applies the outcome to
// the rental and its vehicle in one transaction. Re-applying an outcome that
// is already recorded changes nothing.
func (s *ReconciliationService) Reconcile(ctx context.Context, reference, rentalID string) (*ReconcileResult, error) {
	if reference == "" {
		return nil, ErrInvalidReference
	}
	if rentalID == "" {
		return nil, ErrInvalidRentalID
	}

	unlock, err := s.lockRental(ctx, rentalID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	verification, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPaymentVerify, err)
	}
	if err := checkVerification(verification, reference, rentalID); err != nil {
		return nil, err
	}

	outcome := domain.OutcomeOf(verification.Succeeded)
	result := &ReconcileResult{Outcome: outcome, Verification: verification}
	vehicleChanged := false
	now := s.now()

	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		rental, vehicle, err := lockPair(ctx, repos, rentalID)
		if err != nil {
			return err
		}

		if recorded, done := rental.Outcome(); done {
			if recorded != outcome {
				return ErrOutcomeConflict
			}
			if vehicle == nil {
				result.Rental = rental
				return nil
			}
			changed, ok := domain.ResyncVehicle(rental, vehicle, now)
			if !ok {
				return ErrVehicleTaken
			}
			if changed {
				if err := repos.Vehicles().Update(ctx, vehicle); err != nil {
					return err
				}
				vehicleChanged = true
			}
			result.Rental, result.Vehicle = rental, vehicle
			return nil
		}

		if vehicle == nil {
			return fmt.Errorf("%w: vehicle %s missing", ErrInconsistentState, rental.VehicleID)
		}

		if vehicle.RentalID != "" && vehicle.RentalID != rental.ID {
			if outcome == domain.OutcomeSucceeded {
				return ErrVehicleTaken
			}
			// The vehicle belongs to someone else; only the rental records the failure.
			rental.Cancel(now)
			if err := repos.Rentals().Update(ctx, rental); err != nil {
				return err
			}
			result.Rental, result.Vehicle, result.Applied = rental, vehicle, true
			return nil
		}

		domain.ApplyOutcome(rental, vehicle, outcome, reference, now)
		if err := repos.Rentals().Update(ctx, rental); err != nil {
			return err
		}
		if err := repos.Vehicles().Update(ctx, vehicle); err != nil {
			return err
		}

		result.Rental, result.Vehicle, result.Applied = rental, vehicle, true
		vehicleChanged = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Applied || vehicleChanged {
		s.invalidate(ctx, result.Rental)
	}
	if result.Applied {
		s.publish(ctx, result.Rental, outcome, now)
	}

	return result, nil
}

// lockPair locks the vehicle row before the rental row, the same order
// reservation creation uses. A missing vehicle is returned as nil.
func lockPair(ctx context.Context, repos repository.Repositories, rentalID string) (*domain.Rental, *domain.Vehicle, error) {
	current, err := repos.Rentals().GetByID(ctx, rentalID)
	if err != nil {
		return nil, nil, err
	}

	vehicle, err := repos.Vehicles().GetByIDForUpdate(ctx, current.VehicleID)
	if errors.Is(err, repository.ErrNotFound) {
		vehicle = nil
	} else if err != nil {
		return nil, nil, err
	}

	rental, err := repos.Rentals().GetByIDForUpdate(ctx, rentalID)
	if err != nil {
		return nil, nil, err
	}

	return rental, vehicle, nil
}

// checkVerification rejects gateway answers that are empty or that describe
// a different transaction or rental than the one being reconciled.
func checkVerification(v *gateway.VerifyResult, reference, rentalID string) error {
	if v == nil {
		return fmt.Errorf("%w: %w", ErrPaymentVerify, gateway.ErrMalformedResponse)
	}
	if v.Reference != "" && v.Reference != reference {
		return fmt.Errorf("%w: gateway returned reference %q", ErrPaymentVerify, v.Reference)
	}
	if v.Metadata.RentalID != "" && v.Metadata.RentalID != rentalID {
		return fmt.Errorf("%w: reference belongs to rental %q", ErrPaymentVerify, v.Metadata.RentalID)
	}
	return nil
}

// lockRental takes the distributed per-rental lock, polling until lockWait
// elapses. Without a lock store the row locks alone serialize reconciliation.
func (s *ReconciliationService) lockRental(ctx context.Context, rentalID string) (func(), error) {
	if s.lockStore == nil {
		return func() {}, nil
	}

	deadline := time.Now().Add(s.lockWait)
	for {
		token, locked, err := s.lockStore.AcquireRentalLock(ctx, rentalID, s.lockTTL)
		if err != nil {
			return nil, err
		}
		if locked {
			return func() {
				_ = s.lockStore.ReleaseRentalLock(context.WithoutCancel(ctx), rentalID, token)
			}, nil
		}

		if !time.Now().Before(deadline) {
			return nil, ErrReconcileInProgress
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

func (s *ReconciliationService) invalidate(ctx context.Context, rental *domain.Rental) {
	if s.cacheStore == nil || rental == nil {
		return
	}
	_ = s.cacheStore.Invalidate(ctx, rental.ID, rental.VehicleID)
}

func (s *ReconciliationService) publish(ctx context.Context, rental *domain.Rental, outcome domain.Outcome, at time.Time) {
	if s.publisher == nil {
		return
	}

	event := queue.RentalOutcomeEvent{
		RentalID:   rental.ID,
		VehicleID:  rental.VehicleID,
		RenterID:   rental.RenterID,
		Outcome:    string(outcome),
		Reference:  rental.PaymentReference,
		OccurredAt: at,
	}
	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.PublishRentalOutcome(publishCtx, event); err != nil {
		log.Printf("reconcile: publish outcome for rental %s: %v", rental.ID, err)
	}
}
