// Package ratelimit caps how many reconciliation jobs a tenant can run at
// once. The orchestrator acquires a slot before a job starts and releases
// it when the job reaches a terminal state.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	sageerrors "github.com/Ramsey-B/sage/pkg/errors"
	"github.com/Ramsey-B/sage/pkg/redis"
)

// TenantLimiter bounds concurrent jobs per tenant
type TenantLimiter interface {
	// Acquire claims a job slot for the tenant. It returns a release
	// function on success and a resource-exhausted error when the tenant
	// is at its limit.
	Acquire(ctx context.Context, tenantID string) (release func(), err error)
}

// MemoryLimiter is an in-process TenantLimiter for single-instance
// deployments and tests
type MemoryLimiter struct {
	maxPerTenant int

	mu     sync.Mutex
	active map[string]int
}

// NewMemoryLimiter creates a MemoryLimiter
func NewMemoryLimiter(maxPerTenant int) *MemoryLimiter {
	return &MemoryLimiter{
		maxPerTenant: maxPerTenant,
		active:       make(map[string]int),
	}
}

// Acquire claims a slot or fails with a resource-exhausted error
func (l *MemoryLimiter) Acquire(_ context.Context, tenantID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active[tenantID] >= l.maxPerTenant {
		return nil, sageerrors.NewResourceExhausted("tenant %s already has %d running jobs", tenantID, l.active[tenantID])
	}

	l.active[tenantID]++
	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.active[tenantID] > 0 {
				l.active[tenantID]--
			}
		})
	}
	return release, nil
}

// Active returns the number of running jobs for a tenant
func (l *MemoryLimiter) Active(tenantID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active[tenantID]
}

// slotTTL bounds how long a crashed instance can pin a slot
const slotTTL = 2 * time.Hour

// RedisLimiter is a TenantLimiter shared across instances, backed by
// per-tenant slot locks
type RedisLimiter struct {
	locker       *redis.Locker
	maxPerTenant int
	logger       ectologger.Logger
}

// NewRedisLimiter creates a RedisLimiter
func NewRedisLimiter(client *redis.Client, maxPerTenant int, logger ectologger.Logger) *RedisLimiter {
	return &RedisLimiter{
		locker:       redis.NewLocker(client, "sage:jobslots:"),
		maxPerTenant: maxPerTenant,
		logger:       logger,
	}
}

// Acquire tries each of the tenant's slots in turn
func (l *RedisLimiter) Acquire(ctx context.Context, tenantID string) (func(), error) {
	for i := 0; i < l.maxPerTenant; i++ {
		slotKey := fmt.Sprintf("%s:slot:%d", tenantID, i)
		lock, err := l.locker.Acquire(ctx, slotKey, slotTTL)
		if err == redis.ErrLockNotAcquired {
			continue
		}
		if err != nil {
			return nil, sageerrors.NewTransientIO(err, "failed to acquire job slot for tenant %s", tenantID)
		}

		release := func() {
			if err := lock.Release(context.Background()); err != nil {
				l.logger.WithError(err).Errorf("failed to release job slot for tenant %s", tenantID)
			}
		}
		return release, nil
	}

	return nil, sageerrors.NewResourceExhausted("tenant %s is at its concurrent job limit (%d)", tenantID, l.maxPerTenant)
}
