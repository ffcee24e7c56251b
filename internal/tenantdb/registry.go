package tenantdb

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexiath/sovera/pkg/database"
	"github.com/nexiath/sovera/pkg/logger"
)

// Registry caches one connection pool per tenant database. Pools are dialed
// on first use and kept until the project is deleted or the service stops.
type Registry struct {
	mu    sync.RWMutex
	pools map[string]*pgxpool.Pool

	base   database.PostgreSQLConfig
	logger *logger.Logger
}

// NewRegistry creates a registry. The base config supplies the host and
// credentials; the database name is swapped per tenant.
func NewRegistry(base database.PostgreSQLConfig, log *logger.Logger) *Registry {
	return &Registry{
		pools:  make(map[string]*pgxpool.Pool),
		base:   base,
		logger: log,
	}
}

// Get returns the pool for the tenant database, dialing it on first use.
func (r *Registry) Get(ctx context.Context, dbName string) (*pgxpool.Pool, error) {
	r.mu.RLock()
	pool, ok := r.pools[dbName]
	r.mu.RUnlock()
	if ok {
		return pool, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have dialed while we waited for the lock.
	if pool, ok := r.pools[dbName]; ok {
		return pool, nil
	}

	cfg := r.base
	cfg.Database = dbName
	// Tenant pools stay small; the platform pool carries the bulk of traffic.
	cfg.MaxConnections = 5

	db, err := database.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to tenant database %s: %w", dbName, err)
	}

	r.logger.Infof("Opened tenant pool for database %s", dbName)
	r.pools[dbName] = db.Pool()
	return db.Pool(), nil
}

// Invalidate closes and drops the cached pool for a tenant database. Called
// before the database is dropped so no live connections block the drop.
func (r *Registry) Invalidate(dbName string) {
	r.mu.Lock()
	pool, ok := r.pools[dbName]
	if ok {
		delete(r.pools, dbName)
	}
	r.mu.Unlock()

	if ok {
		pool.Close()
		r.logger.Infof("Closed tenant pool for database %s", dbName)
	}
}

// Close shuts down every cached pool.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, pool := range r.pools {
		pool.Close()
		delete(r.pools, name)
	}
}

// Ping verifies every cached tenant pool is still reachable. A registry with
// no cached pools is healthy.
func (r *Registry) Ping(ctx context.Context) error {
	r.mu.RLock()
	pools := make(map[string]*pgxpool.Pool, len(r.pools))
	for name, pool := range r.pools {
		pools[name] = pool
	}
	r.mu.RUnlock()

	for name, pool := range pools {
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("tenant database %s unreachable: %w", name, err)
		}
	}
	return nil
}

// Size returns the number of cached tenant pools.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}
