package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"schoolnotify/internal/util"
)

// Redis keeps the cooldown in Redis so several dispatcher processes share it.
// Keys expire with the cooldown, so no sweep is needed.
type Redis struct {
	rdb      redis.Cmdable
	cooldown time.Duration
	logger   *zap.Logger
}

func NewRedis(rdb redis.Cmdable, cooldown time.Duration, logger *zap.Logger) *Redis {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Redis{
		rdb:      rdb,
		cooldown: cooldown,
		logger:   logger.Named("dedup-redis"),
	}
}

func redisKey(alertID, recipientID string) string {
	return fmt.Sprintf("dedup:alert:%s:%s", util.NormalizeID(recipientID), alertID)
}

// TryAcquire sets the pair key only if absent (SET NX PX cooldown).
func (d *Redis) TryAcquire(ctx context.Context, alertID, recipientID string) bool {
	key := redisKey(alertID, recipientID)

	ok, err := d.rdb.SetNX(ctx, key, time.Now().UnixMilli(), d.cooldown).Result()
	if err != nil {
		// Redis 挂了：不阻止发送，返回 true
		d.logger.Warn("Redis dedup check failed, allowing send",
			zap.String("alert_id", alertID),
			zap.String("recipient_id", recipientID),
			zap.Error(err),
		)
		return true
	}

	if !ok {
		d.logger.Info("Skipped duplicated alert",
			zap.String("alert_id", alertID),
			zap.String("recipient_id", recipientID),
			zap.String("dedup_key", key),
		)
	}
	return ok
}

// MarkSent restarts the cooldown from now.
func (d *Redis) MarkSent(ctx context.Context, alertID, recipientID string) {
	key := redisKey(alertID, recipientID)
	if err := d.rdb.Set(ctx, key, time.Now().UnixMilli(), d.cooldown).Err(); err != nil {
		d.logger.Warn("Failed to refresh dedup key",
			zap.String("dedup_key", key),
			zap.Error(err),
		)
	}
}

// ShouldSend reports whether no key exists for the pair.
func (d *Redis) ShouldSend(ctx context.Context, alertID, recipientID string) bool {
	n, err := d.rdb.Exists(ctx, redisKey(alertID, recipientID)).Result()
	if err != nil {
		return true
	}
	return n == 0
}
