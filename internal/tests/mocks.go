package tests

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"carrental/internal/domain"
	"carrental/internal/gateway"
	"carrental/internal/queue"
	"carrental/internal/redis"
	"carrental/internal/repository"
)

// ──────────────────────────────────────────────
// MOCK STORE
// ──────────────────────────────────────────────

// MemoryStore is an in-memory repository.Store. Transactions are serialized
// by a single mutex, which stands in for the row locks a database takes, and
// a failed transaction restores the state it started from.
type MemoryStore struct {
	txMu sync.Mutex

	mu       sync.RWMutex
	rentals  map[string]*domain.Rental
	vehicles map[string]*domain.Vehicle

	// Counters
	TxCount     int32
	CommitCount int32

	// Error injection
	RentalUpdateError  error
	VehicleUpdateError error

	// AfterRentalRead runs after every rental read, outside the store lock.
	AfterRentalRead func(id string)
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rentals:  make(map[string]*domain.Rental),
		vehicles: make(map[string]*domain.Vehicle),
	}
}

var _ repository.Store = (*MemoryStore)(nil)

func (m *MemoryStore) Rentals() repository.RentalRepository   { return memRentals{m} }
func (m *MemoryStore) Vehicles() repository.VehicleRepository { return memVehicles{m} }

func (m *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	atomic.AddInt32(&m.TxCount, 1)
	m.txMu.Lock()
	defer m.txMu.Unlock()

	rentals, vehicles := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.rentals, m.vehicles = rentals, vehicles
		m.mu.Unlock()
		return err
	}

	atomic.AddInt32(&m.CommitCount, 1)
	return nil
}

func (m *MemoryStore) Migrate(ctx context.Context) error { return nil }
func (m *MemoryStore) Close() error                      { return nil }

func (m *MemoryStore) snapshot() (map[string]*domain.Rental, map[string]*domain.Vehicle) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rentals := make(map[string]*domain.Rental, len(m.rentals))
	for id, r := range m.rentals {
		c := *r
		rentals[id] = &c
	}
	vehicles := make(map[string]*domain.Vehicle, len(m.vehicles))
	for id, v := range m.vehicles {
		c := *v
		vehicles[id] = &c
	}
	return rentals, vehicles
}

// AddVehicle adds a vehicle for test setup.
func (m *MemoryStore) AddVehicle(v *domain.Vehicle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *v
	m.vehicles[v.ID] = &c
}

// AddRental adds a rental for test setup.
func (m *MemoryStore) AddRental(r *domain.Rental) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *r
	m.rentals[r.ID] = &c
}

// GetVehicle returns a copy of a stored vehicle for test assertions.
func (m *MemoryStore) GetVehicle(id string) *domain.Vehicle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vehicles[id]
	if !ok {
		return nil
	}
	c := *v
	return &c
}

// GetRental returns a copy of a stored rental for test assertions.
func (m *MemoryStore) GetRental(id string) *domain.Rental {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rentals[id]
	if !ok {
		return nil
	}
	c := *r
	return &c
}

// CountRentals returns the number of stored rentals.
func (m *MemoryStore) CountRentals() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rentals)
}

type memRentals struct{ m *MemoryStore }

func (r memRentals) Create(ctx context.Context, rental *domain.Rental) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, exists := r.m.rentals[rental.ID]; exists {
		return repository.ErrAlreadyExists
	}
	c := *rental
	r.m.rentals[rental.ID] = &c
	return nil
}

func (r memRentals) GetByID(ctx context.Context, id string) (*domain.Rental, error) {
	r.m.mu.RLock()
	rental, ok := r.m.rentals[id]
	var c domain.Rental
	if ok {
		// Return a copy to avoid mutation issues.
		c = *rental
	}
	r.m.mu.RUnlock()

	if !ok {
		return nil, repository.ErrNotFound
	}
	if r.m.AfterRentalRead != nil {
		r.m.AfterRentalRead(id)
	}
	return &c, nil
}

func (r memRentals) GetByIDForUpdate(ctx context.Context, id string) (*domain.Rental, error) {
	return r.GetByID(ctx, id)
}

func (r memRentals) Update(ctx context.Context, rental *domain.Rental) error {
	if r.m.RentalUpdateError != nil {
		return r.m.RentalUpdateError
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.rentals[rental.ID]; !ok {
		return repository.ErrNotFound
	}
	c := *rental
	r.m.rentals[rental.ID] = &c
	return nil
}

func (r memRentals) ListByStatus(ctx context.Context, status domain.RentalStatus, after repository.RentalCursor, limit int) ([]*domain.Rental, error) {
	return r.list(limit, func(rental *domain.Rental) bool {
		return rental.Status == status && afterCursor(rental, after)
	})
}

func afterCursor(rental *domain.Rental, after repository.RentalCursor) bool {
	if !rental.CreatedAt.Equal(after.CreatedAt) {
		return rental.CreatedAt.After(after.CreatedAt)
	}
	return rental.ID > after.ID
}

func (r memRentals) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]*domain.Rental, error) {
	return r.list(limit, func(rental *domain.Rental) bool { return rental.HoldExpired(now) })
}

func (r memRentals) list(limit int, keep func(*domain.Rental) bool) ([]*domain.Rental, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var result []*domain.Rental
	for _, rental := range r.m.rentals {
		if keep(rental) {
			c := *rental
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

type memVehicles struct{ m *MemoryStore }

func (v memVehicles) Create(ctx context.Context, vehicle *domain.Vehicle) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if _, exists := v.m.vehicles[vehicle.ID]; exists {
		return repository.ErrAlreadyExists
	}
	c := *vehicle
	v.m.vehicles[vehicle.ID] = &c
	return nil
}

func (v memVehicles) GetByID(ctx context.Context, id string) (*domain.Vehicle, error) {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	vehicle, ok := v.m.vehicles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *vehicle
	return &c, nil
}

func (v memVehicles) GetByIDForUpdate(ctx context.Context, id string) (*domain.Vehicle, error) {
	return v.GetByID(ctx, id)
}

func (v memVehicles) Update(ctx context.Context, vehicle *domain.Vehicle) error {
	if v.m.VehicleUpdateError != nil {
		return v.m.VehicleUpdateError
	}
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if _, ok := v.m.vehicles[vehicle.ID]; !ok {
		return repository.ErrNotFound
	}
	c := *vehicle
	v.m.vehicles[vehicle.ID] = &c
	return nil
}

// ──────────────────────────────────────────────
// MOCK GATEWAY
// ──────────────────────────────────────────────

// MockGateway is a scriptable payment gateway.
type MockGateway struct {
	mu      sync.Mutex
	secret  string
	results map[string]*gateway.VerifyResult
	inits   []gateway.InitializeRequest
	seq     int

	// Counters
	InitializeCallCount int32
	VerifyCallCount     int32

	// Error injection
	InitializeError error
	VerifyError     error

	// Delay before Verify answers, to widen race windows.
	VerifyDelay time.Duration
}

// NewMockGateway creates a gateway whose webhooks are signed with secret.
func NewMockGateway(secret string) *MockGateway {
	return &MockGateway{
		secret:  secret,
		results: make(map[string]*gateway.VerifyResult),
	}
}

var (
	_ gateway.PaymentGateway  = (*MockGateway)(nil)
	_ gateway.WebhookVerifier = (*MockGateway)(nil)
)

func (m *MockGateway) Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.InitializeResult, error) {
	atomic.AddInt32(&m.InitializeCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InitializeError != nil {
		return nil, m.InitializeError
	}

	m.seq++
	reference := fmt.Sprintf("ref-%d", m.seq)
	m.inits = append(m.inits, req)
	m.results[reference] = &gateway.VerifyResult{
		Succeeded:   true,
		Status:      "success",
		Reference:   reference,
		Metadata:    req.Metadata,
		AmountMinor: gateway.ToMinorUnits(req.Amount),
	}

	return &gateway.InitializeResult{
		RedirectURL: "https://checkout.example/" + reference,
		Reference:   reference,
	}, nil
}

func (m *MockGateway) Verify(ctx context.Context, reference string) (*gateway.VerifyResult, error) {
	atomic.AddInt32(&m.VerifyCallCount, 1)
	if m.VerifyDelay > 0 {
		time.Sleep(m.VerifyDelay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.VerifyError != nil {
		return nil, m.VerifyError
	}
	result, ok := m.results[reference]
	if !ok {
		return nil, gateway.ErrUnknownReference
	}
	c := *result
	return &c, nil
}

func (m *MockGateway) ParseWebhook(signature string, body []byte) (*gateway.WebhookEvent, error) {
	if !gateway.SignatureValid(m.secret, signature, body) {
		return nil, gateway.ErrInvalidSignature
	}
	return decodeWebhook(body)
}

func decodeWebhook(body []byte) (*gateway.WebhookEvent, error) {
	var payload struct {
		Event string `json:"event"`
		Data  struct {
			Reference string                  `json:"reference"`
			Metadata  gateway.PaymentMetadata `json:"metadata"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", gateway.ErrMalformedResponse, err)
	}
	return &gateway.WebhookEvent{
		Event:     payload.Event,
		Reference: payload.Data.Reference,
		RentalID:  payload.Data.Metadata.RentalID,
	}, nil
}

// SetResult scripts how reference verifies.
func (m *MockGateway) SetResult(reference, rentalID string, succeeded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := "failed"
	if succeeded {
		status = "success"
	}
	m.results[reference] = &gateway.VerifyResult{
		Succeeded: succeeded,
		Status:    status,
		Reference: reference,
		Metadata:  gateway.PaymentMetadata{RentalID: rentalID},
	}
}

// SetVerifyResult scripts the full verification answer for reference.
func (m *MockGateway) SetVerifyResult(reference string, result *gateway.VerifyResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[reference] = result
}

// LastInitialize returns the most recent initialize request.
func (m *MockGateway) LastInitialize() (gateway.InitializeRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.inits) == 0 {
		return gateway.InitializeRequest{}, false
	}
	return m.inits[len(m.inits)-1], true
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is a mock implementation of LockStore.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]mockLock
	seq   int

	// Counters
	AcquireCallCount int32
	ReleaseCallCount int32

	// Error injection
	AcquireError error

	// Force lock failure
	ForceAcquireFailure bool
}

type mockLock struct {
	token  string
	expiry time.Time
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{
		locks: make(map[string]mockLock),
	}
}

var _ redis.LockStoreInterface = (*MockLockStore)(nil)

func (m *MockLockStore) AcquireVehicleLock(ctx context.Context, vehicleID string, ttl time.Duration) (string, bool, error) {
	return m.acquire("lock:vehicle:"+vehicleID, ttl)
}

func (m *MockLockStore) ReleaseVehicleLock(ctx context.Context, vehicleID, token string) error {
	return m.release("lock:vehicle:"+vehicleID, token)
}

func (m *MockLockStore) AcquireRentalLock(ctx context.Context, rentalID string, ttl time.Duration) (string, bool, error) {
	return m.acquire("lock:rental:"+rentalID, ttl)
}

func (m *MockLockStore) ReleaseRentalLock(ctx context.Context, rentalID, token string) error {
	return m.release("lock:rental:"+rentalID, token)
}

func (m *MockLockStore) acquire(key string, ttl time.Duration) (string, bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return "", false, m.AcquireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceAcquireFailure {
		return "", false, nil
	}

	if held, exists := m.locks[key]; exists && time.Now().Before(held.expiry) {
		return "", false, nil // Lock still held.
	}

	m.seq++
	token := fmt.Sprintf("token-%d", m.seq)
	m.locks[key] = mockLock{token: token, expiry: time.Now().Add(ttl)}
	return token, true, nil
}

func (m *MockLockStore) release(key, token string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if held, exists := m.locks[key]; exists && held.token == token {
		delete(m.locks, key)
	}
	return nil
}

// HoldRentalLock takes the rental lock as another caller would.
func (m *MockLockStore) HoldRentalLock(rentalID string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks["lock:rental:"+rentalID] = mockLock{token: "other", expiry: time.Now().Add(ttl)}
}

// IsLocked checks if a key is locked (for test assertions).
func (m *MockLockStore) IsLocked(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	held, exists := m.locks[key]
	return exists && time.Now().Before(held.expiry)
}

// SetForceAcquireFailure makes every acquire report contention.
func (m *MockLockStore) SetForceAcquireFailure(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ForceAcquireFailure = fail
}

// ──────────────────────────────────────────────
// MOCK CACHE STORE
// ──────────────────────────────────────────────

// MockCacheStore is a mock implementation of CacheStore. Like the Redis
// store, it drops fills whose generation predates the latest invalidation.
type MockCacheStore struct {
	mu       sync.RWMutex
	rentals  map[string]*redis.CachedRental
	vehicles map[string]*redis.CachedVehicle
	gens     map[string]int64

	// Counters
	GetRentalCallCount  int32
	InvalidateCallCount int32
	DroppedFillCount    int32
}

// NewMockCacheStore creates a new mock cache store.
func NewMockCacheStore() *MockCacheStore {
	return &MockCacheStore{
		rentals:  make(map[string]*redis.CachedRental),
		vehicles: make(map[string]*redis.CachedVehicle),
		gens:     make(map[string]int64),
	}
}

var _ redis.CacheStoreInterface = (*MockCacheStore)(nil)

func (m *MockCacheStore) GetRental(ctx context.Context, rentalID string) (*redis.CachedRental, int64, error) {
	atomic.AddInt32(&m.GetRentalCallCount, 1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rentals[rentalID], m.gens["rental:"+rentalID], nil
}

func (m *MockCacheStore) SetRental(ctx context.Context, rental *redis.CachedRental, generation int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gens["rental:"+rental.ID] != generation {
		atomic.AddInt32(&m.DroppedFillCount, 1)
		return nil
	}
	m.rentals[rental.ID] = rental
	return nil
}

func (m *MockCacheStore) GetVehicle(ctx context.Context, vehicleID string) (*redis.CachedVehicle, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.vehicles[vehicleID], m.gens["vehicle:"+vehicleID], nil
}

func (m *MockCacheStore) SetVehicle(ctx context.Context, vehicle *redis.CachedVehicle, generation int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gens["vehicle:"+vehicle.ID] != generation {
		atomic.AddInt32(&m.DroppedFillCount, 1)
		return nil
	}
	m.vehicles[vehicle.ID] = vehicle
	return nil
}

func (m *MockCacheStore) Invalidate(ctx context.Context, rentalID, vehicleID string) error {
	atomic.AddInt32(&m.InvalidateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if rentalID != "" {
		delete(m.rentals, rentalID)
		m.gens["rental:"+rentalID]++
	}
	if vehicleID != "" {
		delete(m.vehicles, vehicleID)
		m.gens["vehicle:"+vehicleID]++
	}
	return nil
}

// HasRental reports whether a rental is cached.
func (m *MockCacheStore) HasRental(rentalID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rentals[rentalID]
	return ok
}

// HasVehicle reports whether a vehicle is cached.
func (m *MockCacheStore) HasVehicle(vehicleID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.vehicles[vehicleID]
	return ok
}

// ──────────────────────────────────────────────
// MOCK PUBLISHER
// ──────────────────────────────────────────────

// MockPublisher records published outcome events.
type MockPublisher struct {
	mu        sync.Mutex
	events    []queue.RentalOutcomeEvent
	deadlines []time.Time

	// Error injection
	PublishError error
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) PublishRentalOutcome(ctx context.Context, event queue.RentalOutcomeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	deadline, _ := ctx.Deadline()
	m.deadlines = append(m.deadlines, deadline)
	if m.PublishError != nil {
		return m.PublishError
	}
	m.events = append(m.events, event)
	return nil
}

// Deadlines returns the context deadline of each publish call, zero when unset.
func (m *MockPublisher) Deadlines() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]time.Time, len(m.deadlines))
	copy(result, m.deadlines)
	return result
}

// Events returns the published events.
func (m *MockPublisher) Events() []queue.RentalOutcomeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]queue.RentalOutcomeEvent, len(m.events))
	copy(result, m.events)
	return result
}

// ──────────────────────────────────────────────
// HELPER ERRORS
// ──────────────────────────────────────────────

var (
	ErrMockDBWrite    = errors.New("mock: write failed")
	ErrMockGatewayOff = errors.New("mock: gateway unreachable")
)
