// Package store keeps short-lived copies of upstream reads so repeated
// dashboard queries for the same period do not hit the providers again.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/AngelCh415/metta-metrics/internal/telemetry"
)

// Cache es el puerto de almacenamiento con TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Key arma provider:operation:partes.
func Key(provider, operation string, parts ...string) string {
	return strings.Join(append([]string{provider, operation}, parts...), ":")
}

// Remember devuelve el valor cacheado o ejecuta fn y guarda el resultado.
// Con c == nil o ttl <= 0 siempre ejecuta fn. Los errores del cache sólo se
// registran; nunca ocultan el resultado de fn.
func Remember[T any](ctx context.Context, c Cache, key string, ttl time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if c == nil || ttl <= 0 {
		return fn(ctx)
	}
	if raw, ok, err := c.Get(ctx, key); err != nil {
		telemetry.CacheLookups.WithLabelValues("error").Inc()
		slog.Warn("cache get", slog.String("key", key), slog.String("err", err.Error()))
	} else if ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			telemetry.CacheLookups.WithLabelValues("hit").Inc()
			return v, nil
		}
	}
	telemetry.CacheLookups.WithLabelValues("miss").Inc()

	v, err := fn(ctx)
	if err != nil {
		return v, err
	}
	if raw, err := json.Marshal(v); err == nil {
		if err := c.Set(ctx, key, raw, ttl); err != nil {
			slog.Warn("cache set", slog.String("key", key), slog.String("err", err.Error()))
		}
	}
	return v, nil
}

// RedisStore guarda las entradas en Redis bajo un namespace.
type RedisStore struct {
	client    redis.UniversalClient
	namespace string
}

func NewRedisStore(client redis.UniversalClient, namespace string) *RedisStore {
	return &RedisStore{client: client, namespace: namespace}
}

func (s *RedisStore) key(k string) string {
	if s.namespace == "" {
		return k
	}
	return s.namespace + ":" + k
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(key), val, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
