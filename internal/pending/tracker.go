// Package pending implements the ephemeral pending-transaction
// tracker (C3): a set of unconfirmed tx hashes with arrival
// timestamps, backed by Redis so it survives a monitor process
// restart without a full re-scan of the mempool.
package pending

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/luxfi/ethmonitor/log"
)

var logger = log.New("component", "pending")

// RedisKey is the hash key the tracker lives under (spec.md §6).
const RedisKey = "toshieth.monitor:unconfirmed_txs"

// Expiry is the TTL past which an entry with no on-chain sighting is
// evicted (spec.md §3, §4.6).
const Expiry = 60 * time.Second

// Tracker is the interface the filter-poll and pending-tx-processor
// loops depend on. It also carries the sanity heartbeat write, since
// both the pending-tx map and the heartbeat key live in the same
// key-value store (spec.md §3 "Ownership").
type Tracker interface {
	AddIfAbsent(ctx context.Context, hash string, now time.Time) (bool, error)
	Remove(ctx context.Context, hash string) error
	Size(ctx context.Context) (int64, error)
	Snapshot(ctx context.Context) (map[string]time.Time, error)
	WriteHeartbeat(ctx context.Context, key string, ttl time.Duration) error
}

type redisTracker struct {
	rdb *redis.Client
	key string
}

// New wraps an existing Redis client. A dedicated key namespace keeps
// this separate from the dispatch bus and sanity heartbeat, which
// share the same connection.
func New(rdb *redis.Client) Tracker {
	return &redisTracker{rdb: rdb, key: RedisKey}
}

// AddIfAbsent records hash's first-seen time unless already tracked,
// mirroring HSETNX semantics so concurrent pollers never clobber an
// earlier arrival time.
func (t *redisTracker) AddIfAbsent(ctx context.Context, hash string, now time.Time) (bool, error) {
	set, err := t.rdb.HSetNX(ctx, t.key, hash, strconv.FormatInt(now.Unix(), 10)).Result()
	if err != nil {
		return false, err
	}
	return set, nil
}

func (t *redisTracker) Remove(ctx context.Context, hash string) error {
	return t.rdb.HDel(ctx, t.key, hash).Err()
}

// WriteHeartbeat sets key to "1" with the given TTL, the liveness
// signal external monitors poll for (spec.md §6).
func (t *redisTracker) WriteHeartbeat(ctx context.Context, key string, ttl time.Duration) error {
	return t.rdb.Set(ctx, key, "1", ttl).Err()
}

func (t *redisTracker) Size(ctx context.Context) (int64, error) {
	return t.rdb.HLen(ctx, t.key).Result()
}

// Snapshot returns the full unconfirmed set at this instant. Arrival
// times are stored as whole Unix seconds and come back as wall-clock
// times with no monotonic reading, so ages computed from them against
// a "now" sampled once per caller iteration use the wall clock, not a
// monotonic one.
func (t *redisTracker) Snapshot(ctx context.Context) (map[string]time.Time, error) {
	raw, err := t.rdb.HGetAll(ctx, t.key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(raw))
	for hash, v := range raw {
		sec, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			logger.Warn("dropping unparsable pending-tx timestamp", "hash", hash, "value", v)
			continue
		}
		out[hash] = time.Unix(sec, 0)
	}
	return out, nil
}
