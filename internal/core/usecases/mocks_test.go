package usecases_test

import (
	"context"
	"errors"
	"sync"

	"github.com/greenhouse-ops/zonefix/internal/core/domain"
)

var errCacheMiss = errors.New("cache miss")

// --- Mock ZoneRepository ---

type mockZoneRepo struct {
	readFn             func(ctx context.Context, filter domain.ZoneFilter) ([]domain.ZoneGeometry, error)
	listFn             func(ctx context.Context, filter domain.ZoneFilter) ([]domain.Zone, error)
	listWithGeometryFn func(ctx context.Context) ([]domain.Zone, error)

	mu    sync.Mutex
	reads int
}

func (m *mockZoneRepo) Upsert(ctx context.Context, zone *domain.Zone) error { return nil }

func (m *mockZoneRepo) Read(ctx context.Context, filter domain.ZoneFilter) ([]domain.ZoneGeometry, error) {
	m.mu.Lock()
	m.reads++
	m.mu.Unlock()
	if m.readFn != nil {
		return m.readFn(ctx, filter)
	}
	return nil, nil
}

func (m *mockZoneRepo) List(ctx context.Context, filter domain.ZoneFilter) ([]domain.Zone, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return nil, nil
}

func (m *mockZoneRepo) ListWithGeometry(ctx context.Context) ([]domain.Zone, error) {
	if m.listWithGeometryFn != nil {
		return m.listWithGeometryFn(ctx)
	}
	return nil, nil
}

func (m *mockZoneRepo) readCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// --- Mock BedRepository ---

type mockBedRepo struct {
	listFn func(ctx context.Context) ([]domain.Bed, error)
}

func (m *mockBedRepo) Upsert(ctx context.Context, bed *domain.Bed) error { return nil }

func (m *mockBedRepo) List(ctx context.Context) ([]domain.Bed, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

// --- Mock CacheService ---

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]int
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]int{}}
}

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, errCacheMiss
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.ttls[key] = ttlSeconds
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	err error

	mu        sync.Mutex
	published []*domain.ScoutingResolution
}

func (m *mockPublisher) PublishResolution(ctx context.Context, res *domain.ScoutingResolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, res)
	return m.err
}

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.published)
}
