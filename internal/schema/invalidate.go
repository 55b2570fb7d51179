// File path: internal/schema/invalidate.go
package schema

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/careatlas/nlsql/internal/common"
)

// Publisher broadcasts an invalidation payload to every process instance.
type Publisher interface {
	Publish(ctx context.Context, payload string) error
}

// RedisBroadcast carries invalidation events over a redis pub/sub channel.
type RedisBroadcast struct {
	client  *redis.Client
	channel string
}

// NewRedisBroadcast returns a broadcast over the given channel, or nil when
// no client is configured (single-process deployments).
func NewRedisBroadcast(client *redis.Client, channel string) *RedisBroadcast {
	if client == nil {
		return nil
	}
	return &RedisBroadcast{client: client, channel: channel}
}

func (b *RedisBroadcast) Publish(ctx context.Context, payload string) error {
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Listen subscribes to the invalidation channel and force-refreshes the
// local cache on every received event. It returns once ctx is cancelled.
// Refreshing on a self-originated event is harmless: the rebuild is
// idempotent.
func (b *RedisBroadcast) Listen(ctx context.Context, cache *Cache, refreshTimeout time.Duration) {
	logger := common.Logger()
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()
	logger.Info("schema: invalidation subscriber started", "channel", b.channel)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				logger.Warn("schema: invalidation subscription closed")
				return
			}
			refreshCtx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
			manifest, err := cache.ForceRefresh(refreshCtx)
			cancel()
			if err != nil {
				logger.Warn("schema: refresh after invalidation failed", "error", err)
				continue
			}
			logger.Info("schema: refreshed after invalidation",
				"received", msg.Payload, "snapshot_id", manifest.SnapshotID)
		}
	}
}

// Invalidator coordinates the administrative cache bust: refresh locally,
// then broadcast so every other instance refreshes too.
type Invalidator struct {
	cache *Cache
	pub   Publisher
}

func NewInvalidator(cache *Cache, pub Publisher) *Invalidator {
	return &Invalidator{cache: cache, pub: pub}
}

// BustResult reports the outcome of an administrative bust.
type BustResult struct {
	SnapshotID string `json:"snapshot_id"`
	Degraded   bool   `json:"degraded"`
}

// Bust force-refreshes the local manifest and publishes the invalidation
// event fire-and-forget. An unreachable broadcast channel degrades the bust
// to local-only; it is never a hard failure.
func (inv *Invalidator) Bust(ctx context.Context) (BustResult, error) {
	if inv == nil || inv.cache == nil {
		return BustResult{}, errors.New("invalidator not configured")
	}
	logger := common.Logger()
	manifest, err := inv.cache.ForceRefresh(ctx)
	if err != nil {
		return BustResult{}, err
	}
	result := BustResult{SnapshotID: manifest.SnapshotID}
	switch {
	case isNilPublisher(inv.pub):
		result.Degraded = true
		logger.Warn("schema: bust applied locally only, no broadcast channel configured",
			"snapshot_id", manifest.SnapshotID)
	default:
		if err := inv.pub.Publish(ctx, manifest.SnapshotID); err != nil {
			result.Degraded = true
			logger.Warn("schema: degraded invalidation, broadcast failed",
				"snapshot_id", manifest.SnapshotID, "error", err)
		} else {
			logger.Info("schema: invalidation broadcast", "snapshot_id", manifest.SnapshotID)
		}
	}
	return result, nil
}

func isNilPublisher(p Publisher) bool {
	if p == nil {
		return true
	}
	if rb, ok := p.(*RedisBroadcast); ok {
		return rb == nil
	}
	return false
}
