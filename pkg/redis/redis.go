// Package redis opens go-redis clients and waits for the server to answer before returning.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

const defaultConnectTimeout = 30 * time.Second

type options struct {
	redis          redis.Options
	connectTimeout time.Duration
}

type Option func(*options)

func WithPassword(password string) Option {
	return func(o *options) {
		o.redis.Password = password
	}
}

func WithDB(db int) Option {
	return func(o *options) {
		o.redis.DB = db
	}
}

func WithPoolSize(n int) Option {
	return func(o *options) {
		o.redis.PoolSize = n
	}
}

func WithMinIdleConns(n int) Option {
	return func(o *options) {
		o.redis.MinIdleConns = n
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		o.redis.DialTimeout = d
	}
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *options) {
		o.redis.ReadTimeout = d
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		o.redis.WriteTimeout = d
	}
}

// WithConnectTimeout bounds how long New keeps retrying the first PING.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		o.connectTimeout = d
	}
}

func New(ctx context.Context, addr string, opts ...Option) (*redis.Client, error) {
	const op = "redis.New"

	o := options{
		redis:          redis.Options{Addr: addr},
		connectTimeout: defaultConnectTimeout,
	}

	for _, opt := range opts {
		opt(&o)
	}

	client := redis.NewClient(&o.redis)

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = o.connectTimeout

	if err := backoff.Retry(func() error {
		return client.Ping(ctx).Err()
	}, backoff.WithContext(b, ctx)); err != nil {
		client.Close()
		return nil, fmt.Errorf("%s: failed to connect to redis: %w", op, err)
	}

	return client, nil
}
