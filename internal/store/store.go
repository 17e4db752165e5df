// Package store is the persistence gateway: typed reads and writes against
// the SQLite system of record with a Redis hot-copy in front of the
// algorithm-state tables. Store and cache failures are logged and swallowed;
// reads fall through to default-constructed state so the pipeline never
// blocks on persistence.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/fleetops/fuelsight/internal/config"
	"github.com/fleetops/fuelsight/internal/models"
	"github.com/fleetops/fuelsight/internal/telemetry"
)

// Gateway owns the database handle and the cache client.
type Gateway struct {
	db    *sql.DB
	cache *redis.Client
	cfg   config.StoreConfig

	healthMu     sync.Mutex
	storeHealthy bool
	cacheHealthy bool
}

// NewGateway opens the SQLite store and connects the Redis cache. The cache
// is optional: a nil address or an unreachable server degrades to
// store-only operation.
func NewGateway(cfg config.StoreConfig) (*Gateway, error) {
	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	// WAL mode for concurrent readers; SQLite works best with one writer.
	db, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	g := &Gateway{
		db:           db,
		cfg:          cfg,
		storeHealthy: true,
	}

	if err := g.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	if cfg.RedisAddr != "" {
		g.cache = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), cfg.CacheDeadline)
		defer cancel()
		if err := g.cache.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).
				Msg("Cache unreachable, continuing store-only")
			g.cacheHealthy = false
		} else {
			g.cacheHealthy = true
		}
	}

	log.Info().
		Str("path", cfg.DBPath).
		Bool("cache", g.cache != nil).
		Msg("Persistence gateway initialized")
	return g, nil
}

// NewGatewayWithClients wires pre-built handles; used by tests with
// in-memory SQLite and miniredis.
func NewGatewayWithClients(db *sql.DB, cache *redis.Client, cfg config.StoreConfig) (*Gateway, error) {
	g := &Gateway{
		db:           db,
		cache:        cache,
		cfg:          cfg,
		storeHealthy: true,
		cacheHealthy: cache != nil,
	}
	if err := g.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return g, nil
}

// Close shuts down both handles.
func (g *Gateway) Close() error {
	if g.cache != nil {
		g.cache.Close()
	}
	return g.db.Close()
}

// Health reports the gateway's view of the persistence sub-systems.
func (g *Gateway) Health() models.DataQuality {
	g.healthMu.Lock()
	defer g.healthMu.Unlock()

	dq := models.DataQuality{
		StoreHealthy:      g.storeHealthy,
		CacheHealthy:      g.cacheHealthy,
		TransportsHealthy: true,
	}
	if !g.storeHealthy {
		dq.DegradedSystems = append(dq.DegradedSystems, "store")
	}
	if !g.cacheHealthy {
		dq.DegradedSystems = append(dq.DegradedSystems, "cache")
	}
	return dq
}

func (g *Gateway) noteStore(err error) {
	g.healthMu.Lock()
	g.storeHealthy = err == nil
	g.healthMu.Unlock()
}

func (g *Gateway) noteCache(err error) {
	if err != nil {
		telemetry.CacheErrors.Inc()
	}
	g.healthMu.Lock()
	g.cacheHealthy = err == nil
	g.healthMu.Unlock()
}

// storeCtx bounds a store operation with the configured deadline.
func (g *Gateway) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.cfg.StoreDeadline)
}

// cacheCtx bounds a cache operation with the configured deadline.
func (g *Gateway) cacheCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.cfg.CacheDeadline)
}
