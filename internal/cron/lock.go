package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// defaultLockTTL bounds how long a crashed worker can hold the cycle.
const defaultLockTTL = 10 * time.Minute

// Lease is proof of a held lock. Only the holder of the matching token can
// release it.
type Lease struct {
	Key      string
	Token    string
	Deadline time.Time
}

// Lock coordinates exclusive cron runs across worker replicas. Acquire
// returns a nil lease when someone else holds the lock.
type Lock interface {
	Acquire(ctx context.Context) (*Lease, error)
	Release(ctx context.Context, lease *Lease) error
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
}

// RedisLock is a SETNX key whose value is the lease token.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisLock(client redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case client == nil:
		return nil, errors.New("redis client required for lock")
	case key == "":
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl, now: time.Now}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (*Lease, error) {
	token := uuid.NewString()
	// Taken before the round trip so the deadline never outlives the key.
	deadline := l.now().Add(l.ttl)
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if !ok {
		return nil, nil
	}
	return &Lease{Key: l.key, Token: token, Deadline: deadline}, nil
}

// Release is a no-op for a nil lease or one that already expired and was
// taken over by another worker.
func (l *RedisLock) Release(ctx context.Context, lease *Lease) error {
	if lease == nil {
		return nil
	}
	if lease.Key != l.key {
		return fmt.Errorf("lease for %q released on lock %q", lease.Key, l.key)
	}
	if _, err := l.client.ReleaseIfOwner(ctx, l.key, lease.Token); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
