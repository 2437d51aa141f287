package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/rafflepot-backend/pkg/config"
	"github.com/angelmondragon/rafflepot-backend/pkg/logger"
)

var errNotConnected = errors.New("redis client not initialized")

// backend is the slice of go-redis the platform relies on.
type backend interface {
	goredis.Scripter
	Ping(ctx context.Context) *goredis.StatusCmd
	Get(ctx context.Context, key string) *goredis.StringCmd
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) *goredis.BoolCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

// Client backs request idempotency, rate-limit windows and cron locks.
type Client struct {
	conn backend
	raw  *goredis.Client
	keys Keyspace
}

// IdempotencyStore is what the HTTP and webhook idempotency guards need.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(context.Context, ...string) error
}

// New dials Redis and fails fast when the server does not answer PING.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := dialOptions(cfg)
	if err != nil {
		return nil, err
	}
	raw := goredis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"redis_addr": opts.Addr, "redis_db": opts.DB}), "redis connection established")
	}
	return &Client{conn: raw, raw: raw, keys: DefaultKeyspace}, nil
}

// dialOptions prefers RAFFLEPOT_REDIS_URL; discrete settings only fill in
// what the URL leaves unset.
func dialOptions(cfg config.RedisConfig) (*goredis.Options, error) {
	opts := &goredis.Options{Addr: cfg.Address, Password: cfg.Password}
	switch {
	case cfg.URL != "":
		parsed, err := goredis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	case cfg.Address == "":
		return nil, errors.New("redis url or address is required")
	}

	fillInt(&opts.DB, cfg.DB)
	fillInt(&opts.PoolSize, cfg.PoolSize)
	fillInt(&opts.MinIdleConns, cfg.MinIdleConns)
	fillDuration(&opts.DialTimeout, cfg.DialTimeout)
	fillDuration(&opts.ReadTimeout, cfg.ReadTimeout)
	fillDuration(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func fillInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}

func fillDuration(dst *time.Duration, v time.Duration) {
	if *dst == 0 {
		*dst = v
	}
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.conn == nil {
		return "", errNotConnected
	}
	return c.conn.Get(ctx, key).Result()
}

func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.conn == nil {
		return false, errNotConnected
	}
	return c.conn.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.conn == nil {
		return errNotConnected
	}
	return c.conn.Del(ctx, keys...).Err()
}

// IncrWithTTL bumps a fixed-window counter. The expiry is attached by the
// same script that creates the key, so a counter can never outlive its
// window.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if c.conn == nil {
		return 0, errNotConnected
	}
	n, err := incrWindow.Run(ctx, c.conn, []string{key}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return n, nil
}

// ReleaseIfOwner deletes key only when it still holds owner. It reports
// whether the key was removed.
func (c *Client) ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error) {
	if c.conn == nil {
		return false, errNotConnected
	}
	n, err := releaseOwned.Run(ctx, c.conn, []string{key}, owner).Int64()
	if err != nil {
		return false, fmt.Errorf("release %s: %w", key, err)
	}
	return n == 1, nil
}

// Swap replaces key with next only while it still holds expected, so a
// marker that expired and was reclaimed by another request is left alone.
func (c *Client) Swap(ctx context.Context, key, expected, next string, ttl time.Duration) (bool, error) {
	if c.conn == nil {
		return false, errNotConnected
	}
	n, err := swapIfEqual.Run(ctx, c.conn, []string{key}, expected, next, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("swap %s: %w", key, err)
	}
	return n == 1, nil
}

func (c *Client) IdempotencyKey(scope, id string) string {
	return c.keys.Idempotency(scope, id)
}

func (c *Client) LockKey(name string) string {
	return c.keys.Lock(name)
}

func (c *Client) Ping(ctx context.Context) error {
	if c.conn == nil {
		return errNotConnected
	}
	return c.conn.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}
