package store

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Cache key layout. Versioned prefix so a format change invalidates cleanly.
const cachePrefix = "fs:v1:"

func algStateKey(truckID, sensor string) string {
	return cachePrefix + "algstate:" + truckID + ":" + sensor
}

func thresholdKey(truckID string) string {
	return cachePrefix + "threshold:" + truckID
}

// SnapshotKey names the cached dashboard snapshot.
const SnapshotKey = cachePrefix + "snapshot"

// cacheSet mirrors a value into the cache. Failures log and degrade; the
// store remains the system of record.
func (g *Gateway) cacheSet(ctx context.Context, key string, v any) {
	if g.cache == nil {
		return
	}
	body, err := json.Marshal(v)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache marshal failed")
		return
	}
	cctx, cancel := g.cacheCtx(ctx)
	defer cancel()
	err = g.cache.Set(cctx, key, body, g.cfg.CacheTTL).Err()
	g.noteCache(err)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

// cacheGet loads a value from the cache into v; false on miss or any failure.
func (g *Gateway) cacheGet(ctx context.Context, key string, v any) bool {
	if g.cache == nil {
		return false
	}
	cctx, cancel := g.cacheCtx(ctx)
	defer cancel()
	body, err := g.cache.Get(cctx, key).Bytes()
	if err == redis.Nil {
		g.noteCache(nil)
		return false
	}
	g.noteCache(err)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Cache entry corrupt, ignoring")
		return false
	}
	return true
}

// CacheSnapshot stores the rendered dashboard snapshot with the snapshot TTL.
func (g *Gateway) CacheSnapshot(ctx context.Context, body []byte) {
	if g.cache == nil {
		return
	}
	cctx, cancel := g.cacheCtx(ctx)
	defer cancel()
	err := g.cache.Set(cctx, SnapshotKey, body, g.cfg.SnapshotTTL).Err()
	g.noteCache(err)
	if err != nil {
		log.Warn().Err(err).Msg("Snapshot cache write failed")
	}
}

// CachedSnapshot returns the cached dashboard snapshot, or false on miss.
func (g *Gateway) CachedSnapshot(ctx context.Context) ([]byte, bool) {
	if g.cache == nil {
		return nil, false
	}
	cctx, cancel := g.cacheCtx(ctx)
	defer cancel()
	body, err := g.cache.Get(cctx, SnapshotKey).Bytes()
	if err == redis.Nil {
		g.noteCache(nil)
		return nil, false
	}
	g.noteCache(err)
	if err != nil {
		log.Warn().Err(err).Msg("Snapshot cache read failed")
		return nil, false
	}
	return body, true
}
