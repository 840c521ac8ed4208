// Package redis holds the Redis connection behind Idempotency-Key replay,
// the webhook delivery guard and the cron lock.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Keyspace prefixes every key this service writes so the instance can be
// shared with other apps.
const Keyspace = "sf"

// compareAndDelete removes KEYS[1] only while it holds ARGV[1].
const compareAndDelete = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

var errNotConnected = errors.New("redis client not connected")

// commands is the subset of go-redis the client calls. Tests swap in a map.
type commands interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
	Eval(context.Context, string, []string, ...any) *redis.Cmd
}

type Pinger interface {
	Ping(context.Context) error
}

// IdempotencyStore is what the Idempotency-Key middleware and the webhook
// delivery guard need from Redis.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	Set(context.Context, string, any, time.Duration) error
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(context.Context, ...string) error
}

type Client struct {
	cmds   commands
	closer interface{ Close() error }
}

// New connects and pings. Either STOREFRONT_REDIS_URL or an address must be
// set; explicit pool and timeout settings fill what the URL leaves out.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	conn := redis.NewClient(opts)
	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"addr": opts.Addr, "db": opts.DB}), "redis connection established")
	}
	return &Client{cmds: conn, closer: conn}, nil
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	default:
		return nil, errors.New("redis url or address is required")
	}

	fill := func(dst *int, v int) {
		if *dst == 0 {
			*dst = v
		}
	}
	fillDur := func(dst *time.Duration, v time.Duration) {
		if *dst == 0 {
			*dst = v
		}
	}
	fill(&opts.DB, cfg.DB)
	fill(&opts.PoolSize, cfg.PoolSize)
	fill(&opts.MinIdleConns, cfg.MinIdleConns)
	fillDur(&opts.DialTimeout, cfg.DialTimeout)
	fillDur(&opts.ReadTimeout, cfg.ReadTimeout)
	fillDur(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func (c *Client) conn() (commands, error) {
	if c == nil || c.cmds == nil {
		return nil, errNotConnected
	}
	return c.cmds, nil
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	cmds, err := c.conn()
	if err != nil {
		return err
	}
	return cmds.Set(ctx, key, value, ttl).Err()
}

// Get returns the value at key. A missing key is reported as an error that
// IsNil recognises.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	cmds, err := c.conn()
	if err != nil {
		return "", err
	}
	return cmds.Get(ctx, key).Result()
}

func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	cmds, err := c.conn()
	if err != nil {
		return false, err
	}
	return cmds.SetNX(ctx, key, value, ttl).Result()
}

// ReleaseIfOwner deletes key only while its value still equals owner, and
// reports whether it did.
func (c *Client) ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error) {
	cmds, err := c.conn()
	if err != nil {
		return false, err
	}
	deleted, err := cmds.Eval(ctx, compareAndDelete, []string{key}, owner).Int64()
	if err != nil {
		return false, err
	}
	return deleted == 1, nil
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	cmds, err := c.conn()
	if err != nil {
		return err
	}
	return cmds.Del(ctx, keys...).Err()
}

func (c *Client) Ping(ctx context.Context) error {
	cmds, err := c.conn()
	if err != nil {
		return err
	}
	return cmds.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// IdempotencyKey is sf:idempotency:<scope>:<id>.
func (c *Client) IdempotencyKey(scope, id string) string {
	return Key("idempotency", scope, id)
}

// LockKey is sf:lock:<name>.
func (c *Client) LockKey(name string) string {
	return Key("lock", name)
}

// Key joins parts under Keyspace, skipping blank ones.
func Key(parts ...string) string {
	var b strings.Builder
	b.WriteString(Keyspace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}

// IsNil reports whether err is the missing-key sentinel.
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
