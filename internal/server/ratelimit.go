package server

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	uploadQuotaPrefix = "obralog:uploads"
	uploadQuotaWindow = 24 * time.Hour
)

type quotaStore interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// UploadQuota counts uploads per user in a fixed 24 hour window that starts
// at the first upload.
type UploadQuota struct {
	store quotaStore
	limit int64
}

func NewUploadQuota(client *redis.Client, limit int64) *UploadQuota {
	return &UploadQuota{store: client, limit: limit}
}

// Allow counts one upload for userID. When the limit is exceeded it returns
// false and the time left until the window resets.
func (q *UploadQuota) Allow(ctx context.Context, userID string) (bool, time.Duration, error) {
	key := fmt.Sprintf("%s:%s", uploadQuotaPrefix, userID)

	count, err := q.store.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment upload counter: %w", err)
	}

	if count == 1 {
		if err := q.store.Expire(ctx, key, uploadQuotaWindow).Err(); err != nil {
			return false, 0, fmt.Errorf("failed to set upload counter expiry: %w", err)
		}
	}

	if q.limit > 0 && count > q.limit {
		ttl, err := q.store.TTL(ctx, key).Result()
		if err != nil {
			return false, 0, fmt.Errorf("failed to read upload counter ttl: %w", err)
		}
		if ttl < 0 {
			ttl = uploadQuotaWindow
		}
		return false, ttl, nil
	}

	return true, 0, nil
}
