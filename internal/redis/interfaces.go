package redis

import (
	"context"
	"time"
)

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquireVehicleLock(ctx context.Context, vehicleID string, ttl time.Duration) (string, bool, error)
	ReleaseVehicleLock(ctx context.Context, vehicleID, token string) error
	AcquireRentalLock(ctx context.Context, rentalID string, ttl time.Duration) (string, bool, error)
	ReleaseRentalLock(ctx context.Context, rentalID, token string) error
}

// CacheStoreInterface defines the interface for read-model caching. Reads
// return a generation; a fill carrying an older generation than the current
// one is dropped, so a read that raced an invalidation is never cached.
type CacheStoreInterface interface {
	GetRental(ctx context.Context, rentalID string) (*CachedRental, int64, error)
	SetRental(ctx context.Context, rental *CachedRental, generation int64) error
	GetVehicle(ctx context.Context, vehicleID string) (*CachedVehicle, int64, error)
	SetVehicle(ctx context.Context, vehicle *CachedVehicle, generation int64) error
	Invalidate(ctx context.Context, rentalID, vehicleID string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LockStoreInterface  = (*LockStore)(nil)
	_ CacheStoreInterface = (*CacheStore)(nil)
)
