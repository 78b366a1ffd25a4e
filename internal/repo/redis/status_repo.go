package redis

import (
	"context"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	paysvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/payments"
)

const statusPrefix = "purchase_status:"

// StatusRepo is a best-effort read cache for purchase status polls. Entries
// are short-lived and invalidated on every state transition; a miss or a
// redis failure always falls through to postgres.
type StatusRepo struct {
	client *goredis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewStatusRepo(client *goredis.Client, ttl time.Duration, logger *zap.Logger) *StatusRepo {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusRepo{client: client, ttl: ttl, logger: logger}
}

func (r *StatusRepo) GetStatus(ctx context.Context, purchaseID string) (paysvc.StatusSnapshot, bool) {
	if r.client == nil || strings.TrimSpace(purchaseID) == "" {
		return paysvc.StatusSnapshot{}, false
	}

	values, err := r.client.HGetAll(ctx, statusKey(purchaseID)).Result()
	if err != nil {
		r.logger.Warn("read status cache", zap.String("purchase_id", purchaseID), zap.Error(err))
		return paysvc.StatusSnapshot{}, false
	}
	if len(values) == 0 || values["status"] == "" {
		return paysvc.StatusSnapshot{}, false
	}

	return paysvc.StatusSnapshot{
		Status:           values["status"],
		EntitlementToken: values["entitlement_token"],
	}, true
}

func (r *StatusRepo) SetStatus(ctx context.Context, purchaseID string, snap paysvc.StatusSnapshot) {
	if r.client == nil || strings.TrimSpace(purchaseID) == "" || snap.Status == "" {
		return
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, statusKey(purchaseID), map[string]interface{}{
		"status":            snap.Status,
		"entitlement_token": snap.EntitlementToken,
	})
	pipe.Expire(ctx, statusKey(purchaseID), r.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn("write status cache", zap.String("purchase_id", purchaseID), zap.Error(err))
	}
}

func (r *StatusRepo) Invalidate(ctx context.Context, purchaseID string) {
	if r.client == nil || strings.TrimSpace(purchaseID) == "" {
		return
	}
	if err := r.client.Del(ctx, statusKey(purchaseID)).Err(); err != nil {
		r.logger.Warn("invalidate status cache", zap.String("purchase_id", purchaseID), zap.Error(err))
	}
}

func statusKey(purchaseID string) string {
	return statusPrefix + purchaseID
}
