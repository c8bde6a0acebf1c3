package redis

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"carrental/internal/domain"
)

// CacheStore handles read-model caching in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// Cache TTL constants. Entries are also dropped on every transition.
const (
	RentalCacheTTL  = 30 * time.Second
	VehicleCacheTTL = 10 * time.Second // Contended by reservation attempts
)

// Key prefixes
const (
	rentalCachePrefix  = "cache:rental:"
	vehicleCachePrefix = "cache:vehicle:"
	rentalGenPrefix    = "cache:gen:rental:"
	vehicleGenPrefix   = "cache:gen:vehicle:"
)

// generationTTL outlives any read-then-fill window by a wide margin.
const generationTTL = 10 * time.Minute

// setIfGeneration writes KEYS[1] only while the generation counter in KEYS[2]
// still holds the value seen by the read that produced the entry.
var setIfGeneration = redis.NewScript(`
local gen = redis.call("GET", KEYS[2])
if (gen or "0") ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// CachedRental represents a cached rental.
type CachedRental struct {
	ID               string    `json:"id"`
	VehicleID        string    `json:"vehicle_id"`
	RenterID         string    `json:"renter_id"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	TotalPrice       float64   `json:"total_price"`
	Status           string    `json:"status"`
	PaymentStatus    string    `json:"payment_status"`
	PaymentReference string    `json:"payment_reference,omitempty"`
	ReservedUntil    time.Time `json:"reserved_until"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CachedVehicle represents a cached vehicle.
type CachedVehicle struct {
	ID          string    `json:"id"`
	IsRented    bool      `json:"is_rented"`
	IsAvailable bool      `json:"is_available"`
	RentedBy    string    `json:"rented_by,omitempty"`
	Status      string    `json:"status"`
	RentalID    string    `json:"rental_id,omitempty"`
	HeldUntil   time.Time `json:"held_until"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewCachedRental snapshots a rental for caching.
func NewCachedRental(r *domain.Rental) *CachedRental {
	return &CachedRental{
		ID:               r.ID,
		VehicleID:        r.VehicleID,
		RenterID:         r.RenterID,
		StartDate:        r.StartDate,
		EndDate:          r.EndDate,
		TotalPrice:       r.TotalPrice,
		Status:           string(r.Status),
		PaymentStatus:    string(r.PaymentStatus),
		PaymentReference: r.PaymentReference,
		ReservedUntil:    r.ReservedUntil,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// Rental converts the cached entry back to a domain rental.
func (c *CachedRental) Rental() *domain.Rental {
	return &domain.Rental{
		ID:               c.ID,
		VehicleID:        c.VehicleID,
		RenterID:         c.RenterID,
		StartDate:        c.StartDate,
		EndDate:          c.EndDate,
		TotalPrice:       c.TotalPrice,
		Status:           domain.RentalStatus(c.Status),
		PaymentStatus:    domain.PaymentStatus(c.PaymentStatus),
		PaymentReference: c.PaymentReference,
		ReservedUntil:    c.ReservedUntil,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

// NewCachedVehicle snapshots a vehicle for caching.
func NewCachedVehicle(v *domain.Vehicle) *CachedVehicle {
	return &CachedVehicle{
		ID:          v.ID,
		IsRented:    v.IsRented,
		IsAvailable: v.IsAvailable,
		RentedBy:    v.RentedBy,
		Status:      string(v.Status),
		RentalID:    v.RentalID,
		HeldUntil:   v.HeldUntil,
		UpdatedAt:   v.UpdatedAt,
	}
}

// Vehicle converts the cached entry back to a domain vehicle.
func (c *CachedVehicle) Vehicle() *domain.Vehicle {
	return &domain.Vehicle{
		ID:          c.ID,
		IsRented:    c.IsRented,
		IsAvailable: c.IsAvailable,
		RentedBy:    c.RentedBy,
		Status:      domain.VehicleStatus(c.Status),
		RentalID:    c.RentalID,
		HeldUntil:   c.HeldUntil,
		UpdatedAt:   c.UpdatedAt,
	}
}

// GetRental retrieves a rental from cache. A miss returns nil with the
// generation to pass to SetRental.
func (s *CacheStore) GetRental(ctx context.Context, rentalID string) (*CachedRental, int64, error) {
	var rental CachedRental
	found, gen, err := s.get(ctx, rentalCachePrefix+rentalID, rentalGenPrefix+rentalID, &rental)
	if err != nil || !found {
		return nil, gen, err
	}
	return &rental, gen, nil
}

// SetRental stores a rental in cache unless it was invalidated after the
// read that returned generation.
func (s *CacheStore) SetRental(ctx context.Context, rental *CachedRental, generation int64) error {
	return s.set(ctx, rentalCachePrefix+rental.ID, rentalGenPrefix+rental.ID, generation, rental, RentalCacheTTL)
}

// GetVehicle retrieves a vehicle from cache. A miss returns nil with the
// generation to pass to SetVehicle.
func (s *CacheStore) GetVehicle(ctx context.Context, vehicleID string) (*CachedVehicle, int64, error) {
	var vehicle CachedVehicle
	found, gen, err := s.get(ctx, vehicleCachePrefix+vehicleID, vehicleGenPrefix+vehicleID, &vehicle)
	if err != nil || !found {
		return nil, gen, err
	}
	return &vehicle, gen, nil
}

// SetVehicle stores a vehicle in cache unless it was invalidated after the
// read that returned generation.
func (s *CacheStore) SetVehicle(ctx context.Context, vehicle *CachedVehicle, generation int64) error {
	return s.set(ctx, vehicleCachePrefix+vehicle.ID, vehicleGenPrefix+vehicle.ID, generation, vehicle, VehicleCacheTTL)
}

// Invalidate drops the cached rental and vehicle and bumps their
// generations in one transaction. Empty ids are skipped.
func (s *CacheStore) Invalidate(ctx context.Context, rentalID, vehicleID string) error {
	pipe := s.client.TxPipeline()
	if rentalID != "" {
		bump(ctx, pipe, rentalCachePrefix+rentalID, rentalGenPrefix+rentalID)
	}
	if vehicleID != "" {
		bump(ctx, pipe, vehicleCachePrefix+vehicleID, vehicleGenPrefix+vehicleID)
	}
	if pipe.Len() == 0 {
		return nil
	}

	_, err := pipe.Exec(ctx)
	return err
}

func bump(ctx context.Context, pipe redis.Pipeliner, key, genKey string) {
	pipe.Del(ctx, key)
	pipe.Incr(ctx, genKey)
	pipe.Expire(ctx, genKey, generationTTL)
}

func (s *CacheStore) get(ctx context.Context, key, genKey string, dst any) (bool, int64, error) {
	values, err := s.client.MGet(ctx, key, genKey).Result()
	if err != nil {
		return false, 0, err
	}

	gen := parseGeneration(values[1])
	data, ok := values[0].(string)
	if !ok {
		return false, gen, nil
	}

	if err := json.Unmarshal([]byte(data), dst); err != nil {
		return false, gen, err
	}
	return true, gen, nil
}

func (s *CacheStore) set(ctx context.Context, key, genKey string, generation int64, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return setIfGeneration.Run(ctx, s.client, []string{key, genKey},
		strconv.FormatInt(generation, 10), data, ttl.Milliseconds()).Err()
}

func parseGeneration(v any) int64 {
	str, ok := v.(string)
	if !ok {
		return 0
	}
	gen, _ := strconv.ParseInt(str, 10, 64)
	return gen
}
