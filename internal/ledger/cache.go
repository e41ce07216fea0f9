package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"adcopysurge/internal/logger"
	"adcopysurge/internal/metrics"
)

// BalanceCache is a read-through cache for balance views. It only ever
// accelerates reads; deducts and refunds always hit the database and
// invalidate synchronously, so a client refetching after a mutation sees
// the new balance immediately. The TTL bounds staleness for writes that
// bypass this process entirely.
type BalanceCache interface {
	Get(ctx context.Context, id AccountID) (*BalanceView, bool)
	Set(ctx context.Context, id AccountID, view *BalanceView)
	Invalidate(ctx context.Context, id AccountID)
}

// cachedBalance is the storage form. BalanceView renders unlimited
// balances as a string, so it cannot round-trip through its own JSON.
type cachedBalance struct {
	Balance          int64     `json:"balance"`
	MonthlyAllowance int64     `json:"monthly_allowance"`
	BonusBalance     int64     `json:"bonus_balance"`
	TotalConsumed    int64     `json:"total_consumed"`
	Tier             Tier      `json:"tier"`
	IsUnlimited      bool      `json:"is_unlimited"`
	LastResetAt      time.Time `json:"last_reset_at"`
}

func toCached(v *BalanceView) cachedBalance {
	return cachedBalance{
		Balance:          v.Balance,
		MonthlyAllowance: v.MonthlyAllowance,
		BonusBalance:     v.BonusBalance,
		TotalConsumed:    v.TotalConsumed,
		Tier:             v.Tier,
		IsUnlimited:      v.IsUnlimited,
		LastResetAt:      v.LastResetAt,
	}
}

func (c cachedBalance) view() *BalanceView {
	return &BalanceView{
		Balance:          c.Balance,
		MonthlyAllowance: c.MonthlyAllowance,
		BonusBalance:     c.BonusBalance,
		TotalConsumed:    c.TotalConsumed,
		Tier:             c.Tier,
		IsUnlimited:      c.IsUnlimited,
		LastResetAt:      c.LastResetAt,
	}
}

type redisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) BalanceCache {
	return &redisCache{rdb: rdb, ttl: ttl}
}

func balanceKey(id AccountID) string {
	return "credits:balance:" + id.String()
}

func (c *redisCache) Get(ctx context.Context, id AccountID) (*BalanceView, bool) {
	data, err := c.rdb.Get(ctx, balanceKey(id)).Bytes()
	if err != nil {
		metrics.RecordCacheMiss()
		return nil, false
	}

	var cached cachedBalance
	if err := json.Unmarshal(data, &cached); err != nil {
		metrics.RecordCacheMiss()
		return nil, false
	}

	metrics.RecordCacheHit()
	return cached.view(), true
}

func (c *redisCache) Set(ctx context.Context, id AccountID, view *BalanceView) {
	data, err := json.Marshal(toCached(view))
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, balanceKey(id), data, c.ttl).Err(); err != nil {
		logger.Debug("balance cache set failed", "account_id", id.String(), "error", err)
	}
}

func (c *redisCache) Invalidate(ctx context.Context, id AccountID) {
	if err := c.rdb.Del(ctx, balanceKey(id)).Err(); err != nil {
		// The stale entry will age out at the TTL, but log loudly: a
		// client could see an outdated balance until then.
		logger.Error("balance cache invalidation failed",
			"account_id", id.String(), "error", err)
	}
}

// noopCache disables caching. Used when Redis is not configured and in
// tests that exercise the database path.
type noopCache struct{}

func NewNoopCache() BalanceCache {
	return noopCache{}
}

func (noopCache) Get(ctx context.Context, id AccountID) (*BalanceView, bool) { return nil, false }
func (noopCache) Set(ctx context.Context, id AccountID, view *BalanceView)  {}
func (noopCache) Invalidate(ctx context.Context, id AccountID)              {}
