package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/jhoicas/stock-engine/internal/application/inventory"
)

const (
	keyPrefix     = "stock:availability:"
	versionPrefix = "stock:availability-ver:"
	// versionTTL mayor que cualquier TTL de vista: si la generación expira, la siguiente lectura vuelve a 0.
	versionTTL = 24 * time.Hour
)

var _ inventory.AvailabilityCache = (*RedisAvailabilityCache)(nil)

// RedisAvailabilityCache caché de la vista de disponibilidad por SKU.
type RedisAvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAvailabilityCache(addr string, password string, db int, ttl time.Duration) *RedisAvailabilityCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisAvailabilityCache{client: client, ttl: ttl}
}

func (c *RedisAvailabilityCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisAvailabilityCache) Close() error {
	return c.client.Close()
}

func (c *RedisAvailabilityCache) Get(ctx context.Context, sku string) (*inventory.Availability, bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+sku).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var resp inventory.Availability
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		return nil, false, err
	}
	return &resp, true, nil
}

// Version generación actual del SKU; 0 si nunca se invalidó.
func (c *RedisAvailabilityCache) Version(ctx context.Context, sku string) (int64, error) {
	v, err := c.client.Get(ctx, versionPrefix+sku).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Set guarda la vista solo si la generación no cambió desde version (WATCH + MULTI).
// Un Evict concurrente aborta la transacción y la vista se descarta.
func (c *RedisAvailabilityCache) Set(ctx context.Context, value *inventory.Availability, version int64) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	verKey := versionPrefix + value.SKU
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, verKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, keyPrefix+value.SKU, payload, c.ttl)
			return nil
		})
		return err
	}, verKey)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

// Evict invalida los SKUs tocados por un commit y avanza su generación.
func (c *RedisAvailabilityCache) Evict(ctx context.Context, skus ...string) error {
	if len(skus) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, sku := range skus {
			pipe.Incr(ctx, versionPrefix+sku)
			pipe.Expire(ctx, versionPrefix+sku, versionTTL)
			pipe.Del(ctx, keyPrefix+sku)
		}
		return nil
	})
	return err
}
