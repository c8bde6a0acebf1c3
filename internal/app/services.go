package app

import (
	"github.com/redis/go-redis/v9"

	"carrental/internal/config"
	"carrental/internal/handler"
	"carrental/internal/queue"
	internalRedis "carrental/internal/redis"
	"carrental/internal/repository"
	"carrental/internal/service"
	"carrental/internal/worker"
)

// Services holds the wired application services.
type Services struct {
	Reservations *service.ReservationService
	Payments     *service.PaymentService
	Reconciler   *service.ReconciliationService
	Consistency  *service.ConsistencyService
	Sweeper      *worker.Sweeper
}

// NewServices wires the services over store. redisClient and publisher may be
// nil; the services then run on row locks alone and emit no events.
func NewServices(cfg *config.Config, store repository.Store, gw Gateway, redisClient *redis.Client, publisher *queue.Publisher) *Services {
	// Leave the interfaces nil rather than wrapping a nil client.
	var lockStore internalRedis.LockStoreInterface
	var cacheStore internalRedis.CacheStoreInterface
	if redisClient != nil {
		lockStore = internalRedis.NewLockStore(redisClient)
		cacheStore = internalRedis.NewCacheStore(redisClient)
	}

	var events service.EventPublisher
	if publisher != nil {
		events = publisher
	}

	reservations := service.NewReservationService(store, lockStore, cacheStore, cfg.Reservation.HoldTTL)
	payments := service.NewPaymentService(store, gw, cfg.Paystack.CallbackURL)
	reconciler := service.NewReconciliationService(
		store, gw, gw, lockStore, cacheStore, events,
		cfg.Reservation.LockTTL, cfg.Reservation.LockWait,
	)
	consistency := service.NewConsistencyService(store, cacheStore)
	sweeper := worker.NewSweeper(reservations, consistency, cfg.Reservation.SweepInterval, cfg.Reservation.HoldTTL > 0)

	return &Services{
		Reservations: reservations,
		Payments:     payments,
		Reconciler:   reconciler,
		Consistency:  consistency,
		Sweeper:      sweeper,
	}
}

// Handlers builds the HTTP handlers over the services.
func (s *Services) Handlers(cfg *config.Config) (*handler.RentalHandler, *handler.PaymentHandler) {
	rentals := handler.NewRentalHandler(s.Reservations, s.Consistency)
	payments := handler.NewPaymentHandler(s.Payments, s.Reconciler, handler.RedirectURLs{
		Success: cfg.Redirects.SuccessURL,
		Failure: cfg.Redirects.FailureURL,
		Error:   cfg.Redirects.ErrorURL,
	})
	return rentals, payments
}
