package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still carries the caller's token,
// so an expired-and-reacquired lock is never released by the old holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore handles distributed locking in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

func vehicleLockKey(vehicleID string) string { return fmt.Sprintf("lock:vehicle:%s", vehicleID) }
func rentalLockKey(rentalID string) string   { return fmt.Sprintf("lock:rental:%s", rentalID) }

// AcquireVehicleLock attempts to lock a vehicle for reservation creation.
// The returned token must be passed to ReleaseVehicleLock.
func (s *LockStore) AcquireVehicleLock(ctx context.Context, vehicleID string, ttl time.Duration) (string, bool, error) {
	return s.acquire(ctx, vehicleLockKey(vehicleID), ttl)
}

// ReleaseVehicleLock releases the vehicle lock if token still owns it.
func (s *LockStore) ReleaseVehicleLock(ctx context.Context, vehicleID, token string) error {
	return s.release(ctx, vehicleLockKey(vehicleID), token)
}

// AcquireRentalLock attempts to lock a rental for outcome reconciliation.
func (s *LockStore) AcquireRentalLock(ctx context.Context, rentalID string, ttl time.Duration) (string, bool, error) {
	return s.acquire(ctx, rentalLockKey(rentalID), ttl)
}

// ReleaseRentalLock releases the rental lock if token still owns it.
func (s *LockStore) ReleaseRentalLock(ctx context.Context, rentalID, token string) error {
	return s.release(ctx, rentalLockKey(rentalID), token)
}

func (s *LockStore) acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()

	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}

	return token, true, nil
}

func (s *LockStore) release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, s.client, []string{key}, token).Err()
}
