package redisclient

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/alim08/cryptobook/pkg/logger"
	"github.com/alim08/cryptobook/pkg/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

var (
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
)

const (
	stateClosed int32 = iota
	stateOpen
	stateHalfOpen
)

const (
	failureThreshold = 5
	openCooldown     = 10 * time.Second
	attemptTimeout   = 250 * time.Millisecond
	maxRetries       = 3
)

type Client struct {
	rdb *redis.Client

	failureCount int64
	openedAt     int64 // unix nanos
	state        int32

	// newBackOff builds the retry policy for writes
	newBackOff func() backoff.BackOff
}

// New constructs a Client with sensible pool defaults and retry logic.
func New(redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	opt.PoolSize = 20
	opt.MinIdleConns = 5
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.IdleTimeout = 5 * time.Minute
	return newClient(redis.NewClient(opt)), nil
}

func newClient(rdb *redis.Client) *Client {
	return &Client{
		rdb: rdb,
		newBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries)
		},
	}
}

// withMetrics wraps operations with metrics collection
func (c *Client) withMetrics(operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RedisOperationDuration.WithLabelValues(operation, metrics.Status(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RedisErrors.WithLabelValues(operation).Inc()
	}
	return err
}

// allow reports whether a call may proceed. After the cooldown an open
// breaker lets one trial call through in half-open state.
func (c *Client) allow() bool {
	switch atomic.LoadInt32(&c.state) {
	case stateOpen:
		opened := time.Unix(0, atomic.LoadInt64(&c.openedAt))
		if time.Since(opened) < openCooldown {
			return false
		}
		return atomic.CompareAndSwapInt32(&c.state, stateOpen, stateHalfOpen)
	default:
		return true
	}
}

// record updates the breaker with the outcome of a call. redis.Nil is a
// normal "no such key" reply and counts as success.
func (c *Client) record(err error) {
	if err == nil || errors.Is(err, redis.Nil) {
		atomic.StoreInt64(&c.failureCount, 0)
		atomic.StoreInt32(&c.state, stateClosed)
		return
	}
	n := atomic.AddInt64(&c.failureCount, 1)
	if n >= failureThreshold || atomic.LoadInt32(&c.state) == stateHalfOpen {
		if atomic.SwapInt32(&c.state, stateOpen) != stateOpen {
			atomic.StoreInt64(&c.openedAt, time.Now().UnixNano())
			logger.Log.Warn("circuit breaker opened", zap.String("operation", "redis"), zap.Int64("failures", n))
		}
	}
}

// Read runs a single-attempt read through the breaker.
func (c *Client) Read(ctx context.Context, op string, fn func(ctx context.Context, rdb *redis.Client) error) error {
	return c.withMetrics(op, func() error {
		if !c.allow() {
			return ErrCircuitBreakerOpen
		}
		err := fn(ctx, c.rdb)
		c.record(err)
		return err
	})
}

// Write runs fn with a per-attempt timeout, retrying transient failures
// with exponential backoff.
func (c *Client) Write(ctx context.Context, op string, fn func(ctx context.Context, rdb *redis.Client) error) error {
	return c.withMetrics(op, func() error {
		attempt := func() error {
			if !c.allow() {
				return backoff.Permanent(ErrCircuitBreakerOpen)
			}
			actx, cancel := context.WithTimeout(ctx, attemptTimeout)
			defer cancel()
			err := fn(actx, c.rdb)
			c.record(err)
			return err
		}
		return backoff.Retry(attempt, backoff.WithContext(c.newBackOff(), ctx))
	})
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.Read(ctx, "ping", func(ctx context.Context, rdb *redis.Client) error {
		return rdb.Ping(ctx).Err()
	})
}

// Close closes the underlying connection pool
func (c *Client) Close() error {
	return c.rdb.Close()
}
