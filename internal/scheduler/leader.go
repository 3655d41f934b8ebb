package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLeaderElector is the optional singleton-ownership guard described in
// SPEC_FULL.md §4.4: when REDIS_URL is configured, the scheduler tier can
// run with replica count > 1 and only the lease holder polls. Grounded on
// the flowcatalyst outbox-processor reference's Redis-backed leader
// elector shape (periodic SETNX-with-TTL refresh, OnBecomeLeader/
// OnLoseLeadership callbacks), adapted to go-redis/v9's SetNX API.
type RedisLeaderElector struct {
	client   *redis.Client
	lockName string
	ttl      time.Duration
	refresh  time.Duration
	holderID string

	onBecomeLeader   func()
	onLoseLeadership func()
}

func NewRedisLeaderElector(client *redis.Client, lockName string, ttl, refresh time.Duration) *RedisLeaderElector {
	return &RedisLeaderElector{
		client:   client,
		lockName: lockName,
		ttl:      ttl,
		refresh:  refresh,
		holderID: uuid.NewString(),
	}
}

func (e *RedisLeaderElector) OnBecomeLeader(fn func())   { e.onBecomeLeader = fn }
func (e *RedisLeaderElector) OnLoseLeadership(fn func()) { e.onLoseLeadership = fn }

// Run blocks, periodically attempting to acquire or renew the lease, until
// ctx is canceled.
func (e *RedisLeaderElector) Run(ctx context.Context, log *slog.Logger) {
	ticker := time.NewTicker(e.refresh)
	defer ticker.Stop()

	wasLeader := false
	for {
		acquired, err := e.tryAcquire(ctx)
		if err != nil {
			log.WarnContext(ctx, "leader election: redis error", "error", err)
		}
		if acquired && !wasLeader {
			wasLeader = true
			if e.onBecomeLeader != nil {
				e.onBecomeLeader()
			}
		} else if !acquired && wasLeader {
			wasLeader = false
			if e.onLoseLeadership != nil {
				e.onLoseLeadership()
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (e *RedisLeaderElector) tryAcquire(ctx context.Context) (bool, error) {
	ok, err := e.client.SetNX(ctx, e.lockName, e.holderID, e.ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	// Already held; renew only if we're the current holder.
	holder, err := e.client.Get(ctx, e.lockName).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if holder != e.holderID {
		return false, nil
	}
	if err := e.client.Expire(ctx, e.lockName, e.ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}
